package api

import (
	"context"

	"github.com/metasync/metasync/api/types"
)

// Syncer is the admin api of the replication service
type Syncer interface {
	// Version returns the service version
	Version(ctx context.Context) (string, error) //perm:read
	// Stats returns process lifetime replication counters
	Stats(ctx context.Context) (types.ReplicationStats, error) //perm:read
	// QueueLength returns the number of rows matching the pending predicate
	QueueLength(ctx context.Context) (int64, error) //perm:read
}

// SyncerStruct rpc proxy struct for Syncer
type SyncerStruct struct {
	Internal struct {
		Version     func(ctx context.Context) (string, error)
		Stats       func(ctx context.Context) (types.ReplicationStats, error)
		QueueLength func(ctx context.Context) (int64, error)
	}
}

func (s *SyncerStruct) Version(ctx context.Context) (string, error) {
	return s.Internal.Version(ctx)
}

func (s *SyncerStruct) Stats(ctx context.Context) (types.ReplicationStats, error) {
	return s.Internal.Stats(ctx)
}

func (s *SyncerStruct) QueueLength(ctx context.Context) (int64, error) {
	return s.Internal.QueueLength(ctx)
}

var _ Syncer = (*SyncerStruct)(nil)
