package metrics

import (
	"context"
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

// Tag keys
var (
	Bucket, _   = tag.NewKey("bucket")
	DataType, _ = tag.NewKey("data_type")
)

// Measures
var (
	RowsReplicated  = stats.Int64("replication/rows_done", "Counter of fully replicated rows", stats.UnitDimensionless)
	RowsFailed      = stats.Int64("replication/rows_failed", "Counter of row cycles that ended in failure", stats.UnitDimensionless)
	BytesReplicated = stats.Int64("replication/bytes", "Bytes uploaded to replica buckets", stats.UnitBytes)
	UploadDuration  = stats.Float64("replication/upload_ms", "Duration of a single upload and verify", stats.UnitMilliseconds)
)

// DefaultViews views registered by the service at startup
var DefaultViews = []*view.View{
	{
		Measure:     RowsReplicated,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{DataType},
	},
	{
		Measure:     RowsFailed,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{DataType},
	},
	{
		Measure:     BytesReplicated,
		Aggregation: view.Sum(),
		TagKeys:     []tag.Key{Bucket},
	},
	{
		Measure:     UploadDuration,
		Aggregation: view.Distribution(50, 250, 1000, 5000, 30000, 120000),
		TagKeys:     []tag.Key{Bucket},
	},
}

// Timer records the elapsed milliseconds on the returned stop function.
func Timer(ctx context.Context, m *stats.Float64Measure) func() {
	start := time.Now()
	return func() {
		stats.Record(ctx, m.M(float64(time.Since(start).Milliseconds())))
	}
}
