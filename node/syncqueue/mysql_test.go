package syncqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/metasync/metasync/api/types"
)

const testDSN = "root:123456@tcp(127.0.0.1:3306)/metasync"

func initTestStore(t *testing.T, owner string, desiredCounts map[types.MetadataType]int) *sqlStore {
	store, err := InitSQL(testDSN, owner, desiredCounts)
	if err != nil {
		t.Skipf("mysql not available: %s", err)
	}

	s := store.(*sqlStore)
	t.Cleanup(func() {
		s.cli.Exec("DELETE FROM " + replicationQueueTable) //nolint:errcheck
		s.cli.Close()                                      //nolint:errcheck
	})
	return s
}

func insertTestRow(t *testing.T, s *sqlStore, row *types.ReplicationRow) {
	_, err := s.cli.NamedExec(`INSERT INTO replication_queue
		(file_id, user_id, data_type, size, latest_bucket, replicated_buckets, inflight_buckets, pending_sync)
		VALUES (:file_id, :user_id, :data_type, :size, :latest_bucket, :replicated_buckets, :inflight_buckets, :pending_sync)`, row)
	require.NoError(t, err)
}

func pendingRow(fileID int64) *types.ReplicationRow {
	return &types.ReplicationRow{
		FileID:            fileID,
		UserID:            7,
		Type:              types.MetadataTypeMLData,
		Size:              1024,
		LatestBucket:      "b0",
		ReplicatedBuckets: types.BucketSet{},
		InflightBuckets:   types.BucketSet{},
		PendingSync:       true,
	}
}

func TestClaimLifecycle(t *testing.T) {
	s := initTestStore(t, "worker-a", nil)
	insertTestRow(t, s, pendingRow(1))

	ctx := context.Background()

	row, err := s.ClaimPending(ctx, time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, row.FileID)
	assert.True(t, row.LockedUntil.After(time.Now()))

	require.NoError(t, s.RegisterAttempt(ctx, row, "b1"))
	assert.True(t, row.InflightBuckets.Contains("b1"))

	require.NoError(t, s.PromoteToReplicated(ctx, row, "b1"))
	assert.True(t, row.ReplicatedBuckets.Contains("b1"))
	assert.False(t, row.InflightBuckets.Contains("b1"))

	require.NoError(t, s.MarkDone(ctx, row))
	require.NoError(t, s.ResetLock(ctx, row))

	// done row no longer matches the pending predicate
	_, err = s.ClaimPending(ctx, time.Hour)
	require.True(t, xerrors.Is(err, ErrNoRowAvailable))
}

func TestClaimMutualExclusion(t *testing.T) {
	s := initTestStore(t, "worker-a", nil)
	insertTestRow(t, s, pendingRow(2))

	ctx := context.Background()

	_, err := s.ClaimPending(ctx, time.Hour)
	require.NoError(t, err)

	// the lease is still held, a second claim must not return the row
	_, err = s.ClaimPending(ctx, time.Hour)
	require.Error(t, err)
	assert.True(t, xerrors.Is(err, ErrNoRowAvailable) || xerrors.Is(err, ErrClaimContention))
}

func TestLeaseExpiryRecovery(t *testing.T) {
	s := initTestStore(t, "worker-a", nil)
	insertTestRow(t, s, pendingRow(3))

	ctx := context.Background()

	row, err := s.ClaimPending(ctx, time.Hour)
	require.NoError(t, err)

	// simulate the lease running out without the row completing
	_, err = s.cli.Exec("UPDATE replication_queue SET locked_until=? WHERE file_id=? AND data_type=?",
		time.Now().Add(-time.Minute), row.FileID, row.Type)
	require.NoError(t, err)

	reclaimed, err := s.ClaimPending(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, row.FileID, reclaimed.FileID)
}

func TestConfigChangeRependsDoneRow(t *testing.T) {
	desired := map[types.MetadataType]int{types.MetadataTypeMLData: 2}
	s := initTestStore(t, "worker-a", desired)

	row := pendingRow(4)
	row.ReplicatedBuckets = types.BucketSet{"b1"}
	insertTestRow(t, s, row)

	ctx := context.Background()

	claimed, err := s.ClaimPending(ctx, time.Hour)
	require.NoError(t, err)
	require.NoError(t, s.MarkDone(ctx, claimed))
	require.NoError(t, s.ResetLock(ctx, claimed))

	// satisfied under the current policy
	_, err = s.ClaimPending(ctx, time.Hour)
	require.True(t, xerrors.Is(err, ErrNoRowAvailable))

	// a new required bucket makes the done row pending again
	s.desiredCounts[types.MetadataTypeMLData] = 3
	reclaimed, err := s.ClaimPending(ctx, time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 4, reclaimed.FileID)
}
