package objstore

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/xerrors"
)

const (
	offloadTimeout    = 5 * time.Minute
	offloadRetryCount = 3
)

// OffloadFetcher downloads objects through an external worker endpoint
// instead of hitting the source bucket from this process. It only changes
// where bytes are fetched from, uploads still go through the Client.
type OffloadFetcher struct {
	endpoint string
	client   *http.Client
}

// NewOffloadFetcher returns a fetcher that delegates downloads to endpoint.
func NewOffloadFetcher(endpoint string) *OffloadFetcher {
	return &OffloadFetcher{
		endpoint: endpoint,
		client:   &http.Client{Timeout: offloadTimeout},
	}
}

// Download fetches the object via the worker endpoint.
func (f *OffloadFetcher) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	var lastErr error
	for i := 0; i < offloadRetryCount; i++ {
		data, err := f.fetch(ctx, bucket, key)
		if err == nil {
			return data, nil
		}
		if err == ErrNotFound || ctx.Err() != nil {
			return nil, err
		}

		log.Errorf("offload fetch %s from %s error:%s", key, bucket, err.Error())
		lastErr = err
	}
	return nil, lastErr
}

func (f *OffloadFetcher) fetch(ctx context.Context, bucket, key string) ([]byte, error) {
	u, err := url.Parse(f.endpoint)
	if err != nil {
		return nil, err
	}

	q := u.Query()
	q.Set("bucket", bucket)
	q.Set("key", key)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}

	rsp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer rsp.Body.Close() //nolint:errcheck

	switch rsp.StatusCode {
	case http.StatusOK:
		return io.ReadAll(rsp.Body)
	case http.StatusNotFound:
		return nil, ErrNotFound
	default:
		return nil, xerrors.Errorf("offload worker returned status %d", rsp.StatusCode)
	}
}

var _ Downloader = (*OffloadFetcher)(nil)
