package replication

import (
	"context"
	"fmt"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"go.opencensus.io/stats"
	"go.opencensus.io/tag"
	"golang.org/x/xerrors"

	"github.com/metasync/metasync/api/types"
	"github.com/metasync/metasync/metrics"
	"github.com/metasync/metasync/node/objstore"
	"github.com/metasync/metasync/node/syncqueue"
)

var log = logging.Logger("replication")

const (
	// defaultWorkerCount workers per process when not configured
	defaultWorkerCount = 6
	// leaseDuration how long a claimed row stays locked. A failed cycle
	// does not release the lease, expiry is the retry backoff for the row.
	leaseDuration = 60 * time.Minute
	// cycleTimeout bounds a single claim-to-completion cycle
	cycleTimeout = 20 * time.Minute
)

// SizeMismatchError the backend reported a different byte count than the
// row's authoritative size. The bucket must not be promoted.
type SizeMismatchError struct {
	Bucket   string
	Expected int64
	Actual   int64
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("uploaded size %d to %s does not match expected size %d", e.Actual, e.Bucket, e.Expected)
}

// Controller drives the per-row replication algorithm. One instance is
// shared by reference across all workers of the process; any number of
// process instances may run against the same queue, exclusivity comes from
// the queue store's lease semantics alone.
type Controller struct {
	queue   syncqueue.Store
	store   objstore.Client
	fetcher objstore.Downloader
	policy  *Policy
	stats   *Stats

	workerCount int
}

// NewController wires the replication controller. When workerURL is not
// empty, downloads are delegated to the external worker endpoint instead of
// being performed in-process.
func NewController(queue syncqueue.Store, store objstore.Client, policy *Policy, stats *Stats, workerCount int, workerURL string) *Controller {
	if stats == nil {
		stats = &Stats{}
	}
	if workerCount <= 0 {
		workerCount = defaultWorkerCount
	}

	c := &Controller{
		queue:       queue,
		store:       store,
		fetcher:     store,
		policy:      policy,
		stats:       stats,
		workerCount: workerCount,
	}

	if workerURL == "" {
		log.Info("worker url not configured, objects will be downloaded directly during replication")
	} else {
		log.Infof("objects for replication will be downloaded via worker url %s", workerURL)
		c.fetcher = objstore.NewOffloadFetcher(workerURL)
	}

	return c
}

// StartReplication launches the worker pool. Workers run until ctx is
// cancelled.
func (c *Controller) StartReplication(ctx context.Context) {
	go c.startWorkers(ctx, c.workerCount)
}

func (c *Controller) startWorkers(ctx context.Context, n int) {
	log.Infof("starting %d replication workers", n)

	for i := 0; i < n; i++ {
		go c.replicate(ctx, i)
		// stagger the workers
		if !sleepCtx(ctx, time.Duration(2*i+1)*time.Second) {
			return
		}
	}
}

// replicate is the entry point of one replication worker.
//
// i is an arbitrary index of the current worker.
func (c *Controller) replicate(ctx context.Context, i int) {
	for ctx.Err() == nil {
		err := c.tryReplicate(ctx)
		if err != nil {
			// sleep in proportion to the index to space out the
			// workers further
			if !sleepCtx(ctx, time.Duration(i+1)*time.Minute) {
				return
			}
		}
	}
}

func (c *Controller) tryReplicate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, cycleTimeout)
	defer cancel()

	row, err := c.queue.ClaimPending(ctx, leaseDuration)
	if err != nil {
		if !xerrors.Is(err, syncqueue.ErrNoRowAvailable) {
			log.Errorf("could not fetch row for replication: %s", err)
		}
		return err
	}

	if err := c.replicateRow(ctx, row); err != nil {
		log.Errorw("could not replicate file data",
			"file_id", row.FileID,
			"type", row.Type,
			"size", row.Size,
			"user_id", row.UserID,
			"err", err)
		c.stats.RowFailed()
		ctx, _ := tag.New(ctx, tag.Upsert(metrics.DataType, string(row.Type)))
		stats.Record(ctx, metrics.RowsFailed.M(1))
		return err
	}

	// the row was fully processed, release the lease early instead of
	// waiting it out
	return c.queue.ResetLock(ctx, row)
}

// replicateRow ensures a verified copy of the row's object exists in every
// bucket the policy wants. Already-satisfied rows are a pure no-op.
func (c *Controller) replicateRow(ctx context.Context, row *types.ReplicationRow) error {
	desired := c.policy.Desired(row.Type)
	if len(desired) == 0 {
		return xerrors.Errorf("no bucket policy for type %s", row.Type)
	}

	missing := map[string]bool{}
	for _, bucket := range desired {
		missing[bucket] = true
	}
	delete(missing, row.LatestBucket)
	for _, bucket := range row.ReplicatedBuckets {
		delete(missing, bucket)
	}

	if len(missing) > 0 {
		// one download regardless of how many buckets are missing
		data, err := c.fetcher.Download(ctx, row.LatestBucket, row.ObjectKey())
		if err != nil {
			return xerrors.Errorf("fetch object %s from %s: %w", row.ObjectKey(), row.LatestBucket, err)
		}

		for bucket := range missing {
			if err := c.uploadAndVerify(ctx, row, data, bucket); err != nil {
				return xerrors.Errorf("upload and verify object in %s: %w", bucket, err)
			}
		}

		c.stats.RowDone()
		ctx, _ := tag.New(ctx, tag.Upsert(metrics.DataType, string(row.Type)))
		stats.Record(ctx, metrics.RowsReplicated.M(1))
	} else {
		log.Debugf("no replication pending for file %d and type %s", row.FileID, row.Type)
	}

	return c.queue.MarkDone(ctx, row)
}

// uploadAndVerify registers the attempt, uploads, gates promotion on the
// byte count reported by the backend matching the row's size.
func (c *Controller) uploadAndVerify(ctx context.Context, row *types.ReplicationRow, data []byte, dstBucket string) error {
	if err := c.queue.RegisterAttempt(ctx, row, dstBucket); err != nil {
		return xerrors.Errorf("register replication attempt: %w", err)
	}

	mctx, _ := tag.New(ctx, tag.Upsert(metrics.Bucket, dstBucket))
	stop := metrics.Timer(mctx, metrics.UploadDuration)
	written, err := c.store.Upload(ctx, dstBucket, row.ObjectKey(), data)
	stop()
	if err != nil {
		return err
	}

	if written != row.Size {
		return &SizeMismatchError{Bucket: dstBucket, Expected: row.Size, Actual: written}
	}

	c.stats.AddBytes(dstBucket, written)
	stats.Record(mctx, metrics.BytesReplicated.M(written))

	return c.queue.PromoteToReplicated(ctx, row, dstBucket)
}

// sleepCtx sleeps for d, returns false when ctx was cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
