package replication

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/metasync/metasync/api/types"
)

const (
	// redisKeyRowsReplicated counter of fully replicated rows
	redisKeyRowsReplicated = "MetaSync:RowsReplicated"
	// redisKeyRowsFailed counter of failed row cycles
	redisKeyRowsFailed = "MetaSync:RowsFailed"
	// redisKeyBytesReplicated total bytes uploaded
	redisKeyBytesReplicated = "MetaSync:BytesReplicated"
	// redisKeyBucketBytes bytes uploaded per bucket
	redisKeyBucketBytes = "MetaSync:BucketBytes:%s"
)

// Stats replication counters. Process-local counters are always kept; when a
// redis address is configured they are additionally accumulated across
// process instances.
type Stats struct {
	rdb *redis.Client

	rowsDone   int64
	rowsFailed int64
	bytes      int64
}

// NewStats returns a stats recorder. redisAddr may be empty, counters are
// then process-local only.
func NewStats(redisAddr string) (*Stats, error) {
	s := &Stats{}
	if redisAddr == "" {
		return s, nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, err
	}

	s.rdb = rdb
	return s, nil
}

// RowDone counts one fully replicated row.
func (s *Stats) RowDone() {
	atomic.AddInt64(&s.rowsDone, 1)
	s.incr(redisKeyRowsReplicated, 1)
}

// RowFailed counts one row cycle that ended in failure.
func (s *Stats) RowFailed() {
	atomic.AddInt64(&s.rowsFailed, 1)
	s.incr(redisKeyRowsFailed, 1)
}

// AddBytes counts verified bytes uploaded to bucket.
func (s *Stats) AddBytes(bucket string, n int64) {
	atomic.AddInt64(&s.bytes, n)
	s.incr(redisKeyBytesReplicated, n)
	s.incr(fmt.Sprintf(redisKeyBucketBytes, bucket), n)
}

func (s *Stats) incr(key string, n int64) {
	if s.rdb == nil {
		return
	}

	if err := s.rdb.IncrBy(context.Background(), key, n).Err(); err != nil {
		log.Errorf("incr counter %s error:%s", key, err.Error())
	}
}

// Snapshot returns the current counters, cross-process when redis is
// configured.
func (s *Stats) Snapshot(ctx context.Context) types.ReplicationStats {
	if s.rdb == nil {
		return types.ReplicationStats{
			RowsReplicated:  atomic.LoadInt64(&s.rowsDone),
			RowsFailed:      atomic.LoadInt64(&s.rowsFailed),
			BytesReplicated: atomic.LoadInt64(&s.bytes),
		}
	}

	var out types.ReplicationStats
	out.RowsReplicated, _ = s.rdb.Get(ctx, redisKeyRowsReplicated).Int64()
	out.RowsFailed, _ = s.rdb.Get(ctx, redisKeyRowsFailed).Int64()
	out.BytesReplicated, _ = s.rdb.Get(ctx, redisKeyBytesReplicated).Int64()
	return out
}
