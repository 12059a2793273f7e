package client

import (
	"context"
	"net/http"

	"github.com/filecoin-project/go-jsonrpc"

	"github.com/metasync/metasync/api"
)

// NewSyncer creates a new http jsonrpc client for the replication service.
func NewSyncer(ctx context.Context, addr string, requestHeader http.Header) (api.Syncer, jsonrpc.ClientCloser, error) {
	var res api.SyncerStruct

	closer, err := jsonrpc.NewMergeClient(ctx, addr, "metasync",
		[]interface{}{&res.Internal}, requestHeader)

	return &res, closer, err
}
