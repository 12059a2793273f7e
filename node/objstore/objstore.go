package objstore

import (
	"context"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"
)

var log = logging.Logger("objstore")

// ErrNotFound object does not exist in the bucket. Any other error from a
// client is treated as transient and retried on a later cycle.
var ErrNotFound = xerrors.New("object not found")

// Downloader fetches the full content of an object from a bucket.
type Downloader interface {
	Download(ctx context.Context, bucket, key string) ([]byte, error)
}

// Client moves bytes against named storage buckets.
type Client interface {
	Downloader
	// Upload writes data and returns the byte count the backend reports
	// for the stored object.
	Upload(ctx context.Context, bucket, key string, data []byte) (int64, error)
}
