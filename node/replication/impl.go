package replication

import (
	"context"

	"github.com/metasync/metasync/api"
	"github.com/metasync/metasync/api/types"
)

// Version of the replication service, reported over the admin api.
const Version = "0.1.0"

func (c *Controller) Version(ctx context.Context) (string, error) {
	return Version, nil
}

func (c *Controller) Stats(ctx context.Context) (types.ReplicationStats, error) {
	st := c.stats.Snapshot(ctx)

	pending, err := c.queue.QueueLength(ctx)
	if err != nil {
		return types.ReplicationStats{}, err
	}
	st.PendingRows = pending

	return st, nil
}

func (c *Controller) QueueLength(ctx context.Context) (int64, error) {
	return c.queue.QueueLength(ctx)
}

var _ api.Syncer = (*Controller)(nil)
