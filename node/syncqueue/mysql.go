package syncqueue

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"golang.org/x/xerrors"

	"github.com/metasync/metasync/api/types"
)

const replicationQueueTable = "replication_queue"

const createQueueTable = `CREATE TABLE IF NOT EXISTS replication_queue (
	file_id            BIGINT NOT NULL,
	user_id            BIGINT NOT NULL,
	data_type          VARCHAR(32) NOT NULL,
	size               BIGINT NOT NULL,
	latest_bucket      VARCHAR(128) NOT NULL,
	replicated_buckets TEXT NOT NULL,
	inflight_buckets   TEXT NOT NULL,
	pending_sync       BOOLEAN NOT NULL DEFAULT TRUE,
	locked_until       DATETIME NOT NULL DEFAULT '1970-01-01 00:00:01',
	lock_owner         VARCHAR(64) NOT NULL DEFAULT '',
	last_synced_at     DATETIME NOT NULL DEFAULT '1970-01-01 00:00:01',
	PRIMARY KEY (file_id, data_type),
	KEY idx_pending (pending_sync, locked_until)
)`

type sqlStore struct {
	cli *sqlx.DB
	// identifies this process instance on claimed rows
	owner string
	// desired bucket count per metadata type, derived from current config.
	// Lets the pending predicate re-select done rows after a config change
	// adds a required bucket.
	desiredCounts map[types.MetadataType]int
}

// InitSQL opens the sync queue database and ensures the queue table exists.
func InitSQL(url, owner string, desiredCounts map[types.MetadataType]int) (Store, error) {
	url = fmt.Sprintf("%s?parseTime=true&loc=Local", url)

	cli, err := sqlx.Open("mysql", url)
	if err != nil {
		return nil, err
	}

	if err := cli.Ping(); err != nil {
		return nil, err
	}

	if _, err := cli.Exec(createQueueTable); err != nil {
		return nil, xerrors.Errorf("ensure queue table: %w", err)
	}

	return &sqlStore{cli: cli, owner: owner, desiredCounts: desiredCounts}, nil
}

// pendingPredicate returns the sql fragment selecting rows that still need
// work, with its arguments. A row is pending when its ingest flag is set, or
// when the current policy wants more buckets than the row has recorded.
func (s *sqlStore) pendingPredicate(now time.Time) (string, []interface{}) {
	args := []interface{}{now}

	if len(s.desiredCounts) == 0 {
		return "locked_until < ? AND pending_sync = TRUE", args
	}

	// stable iteration, map order is random
	dataTypes := make([]string, 0, len(s.desiredCounts))
	for t := range s.desiredCounts {
		dataTypes = append(dataTypes, string(t))
	}
	sort.Strings(dataTypes)

	var caseExpr strings.Builder
	caseExpr.WriteString("CASE data_type")
	for _, t := range dataTypes {
		caseExpr.WriteString(" WHEN ? THEN JSON_LENGTH(replicated_buckets) + 1 < ?")
		args = append(args, t, s.desiredCounts[types.MetadataType(t)])
	}
	caseExpr.WriteString(" ELSE FALSE END")

	return fmt.Sprintf("locked_until < ? AND (pending_sync = TRUE OR (%s))", caseExpr.String()), args
}

func (s *sqlStore) ClaimPending(ctx context.Context, leaseDuration time.Duration) (*types.ReplicationRow, error) {
	now := time.Now()
	pred, args := s.pendingPredicate(now)

	row := new(types.ReplicationRow)
	cmd := fmt.Sprintf("SELECT * FROM %s WHERE %s ORDER BY locked_until LIMIT 1", replicationQueueTable, pred)
	if err := s.cli.GetContext(ctx, row, cmd, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNoRowAvailable
		}
		return nil, xerrors.Errorf("select pending row: %w", err)
	}

	// conditional atomic update, the previous lease value is the guard
	until := now.Add(leaseDuration)
	res, err := s.cli.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET locked_until=?, lock_owner=? WHERE file_id=? AND data_type=? AND locked_until=?", replicationQueueTable),
		until, s.owner, row.FileID, row.Type, row.LockedUntil)
	if err != nil {
		return nil, xerrors.Errorf("extend lease: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil || n != 1 {
		return nil, ErrClaimContention
	}

	row.LockedUntil = until
	row.LockOwner = s.owner
	return row, nil
}

func (s *sqlStore) ResetLock(ctx context.Context, row *types.ReplicationRow) error {
	_, err := s.cli.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET locked_until=?, lock_owner='' WHERE file_id=? AND data_type=? AND lock_owner=?", replicationQueueTable),
		time.Now(), row.FileID, row.Type, s.owner)
	if err != nil {
		return xerrors.Errorf("reset lock: %w", err)
	}
	return nil
}

func (s *sqlStore) RegisterAttempt(ctx context.Context, row *types.ReplicationRow, bucket string) error {
	// re-attempting an inflight bucket is expected, the registration is
	// already durable
	if row.InflightBuckets.Contains(bucket) {
		return nil
	}

	inflight := row.InflightBuckets.Add(bucket)

	if err := s.updateBucketSets(ctx, row, row.ReplicatedBuckets, inflight); err != nil {
		return xerrors.Errorf("register attempt on %s: %w", bucket, err)
	}

	row.InflightBuckets = inflight
	return nil
}

func (s *sqlStore) PromoteToReplicated(ctx context.Context, row *types.ReplicationRow, bucket string) error {
	inflight := row.InflightBuckets.Remove(bucket)
	replicated := row.ReplicatedBuckets.Add(bucket)

	if err := s.updateBucketSets(ctx, row, replicated, inflight); err != nil {
		return xerrors.Errorf("promote %s to replicated: %w", bucket, err)
	}

	row.InflightBuckets = inflight
	row.ReplicatedBuckets = replicated
	return nil
}

// updateBucketSets writes both set columns in one statement, guarded by the
// lock owner so a worker whose lease was taken over cannot clobber the row.
func (s *sqlStore) updateBucketSets(ctx context.Context, row *types.ReplicationRow, replicated, inflight types.BucketSet) error {
	res, err := s.cli.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET replicated_buckets=?, inflight_buckets=? WHERE file_id=? AND data_type=? AND lock_owner=?", replicationQueueTable),
		replicated, inflight, row.FileID, row.Type, s.owner)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n != 1 {
		return ErrClaimContention
	}
	return nil
}

func (s *sqlStore) MarkDone(ctx context.Context, row *types.ReplicationRow) error {
	now := time.Now()
	_, err := s.cli.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET pending_sync=FALSE, last_synced_at=? WHERE file_id=? AND data_type=? AND lock_owner=?", replicationQueueTable),
		now, row.FileID, row.Type, s.owner)
	if err != nil {
		return xerrors.Errorf("mark done: %w", err)
	}

	row.PendingSync = false
	row.LastSyncedAt = now
	return nil
}

func (s *sqlStore) QueueLength(ctx context.Context) (int64, error) {
	pred, args := s.pendingPredicate(time.Now())

	var count int64
	cmd := fmt.Sprintf("SELECT count(*) FROM %s WHERE %s", replicationQueueTable, pred)
	if err := s.cli.GetContext(ctx, &count, cmd, args...); err != nil {
		return 0, xerrors.Errorf("count pending rows: %w", err)
	}
	return count, nil
}

var _ Store = (*sqlStore)(nil)
