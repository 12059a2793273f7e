package syncqueue

import (
	"context"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/metasync/metasync/api/types"
)

var log = logging.Logger("syncqueue")

var (
	// ErrNoRowAvailable the queue holds no claimable row. Not a real
	// failure, workers back off and poll again.
	ErrNoRowAvailable = xerrors.New("no replication row available")

	// ErrClaimContention another worker won the race for the row or the
	// lease changed under a mutation. Treated as transient.
	ErrClaimContention = xerrors.New("lost claim race on replication row")
)

// Store durable queue of pending replication rows. All mutations are atomic
// at the storage layer, the lease on a claimed row is the only exclusivity
// mechanism between workers and between process instances.
type Store interface {
	// ClaimPending selects one eligible row and extends its lease to
	// now + leaseDuration. Returns ErrNoRowAvailable when the queue is
	// empty.
	ClaimPending(ctx context.Context, leaseDuration time.Duration) (*types.ReplicationRow, error)
	// ResetLock releases the lease early after a fully processed row.
	ResetLock(ctx context.Context, row *types.ReplicationRow) error
	// RegisterAttempt durably adds bucket to the row's inflight set
	// before any transfer is attempted.
	RegisterAttempt(ctx context.Context, row *types.ReplicationRow, bucket string) error
	// PromoteToReplicated moves bucket from the inflight set to the
	// replicated set.
	PromoteToReplicated(ctx context.Context, row *types.ReplicationRow, bucket string) error
	// MarkDone records that the row needed no further action this cycle.
	MarkDone(ctx context.Context, row *types.ReplicationRow) error
	// QueueLength counts rows matching the pending predicate.
	QueueLength(ctx context.Context) (int64, error)
}
