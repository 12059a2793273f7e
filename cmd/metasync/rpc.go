package main

import (
	"net/http"

	"github.com/filecoin-project/go-jsonrpc"
	"github.com/gorilla/mux"

	"github.com/metasync/metasync/api"

	_ "net/http/pprof"
)

func syncerHandler(a api.Syncer, metricsHandler http.Handler) http.Handler {
	mux := mux.NewRouter()

	// register the proxy struct so only the Syncer surface is exposed
	var wapi api.SyncerStruct
	wapi.Internal.Version = a.Version
	wapi.Internal.Stats = a.Stats
	wapi.Internal.QueueLength = a.QueueLength

	rpcServer := jsonrpc.NewServer()
	rpcServer.Register("metasync", &wapi)

	mux.Handle("/rpc/v0", rpcServer)
	mux.Handle("/debug/metrics", metricsHandler)
	mux.PathPrefix("/").Handler(http.DefaultServeMux) // pprof

	return mux
}
