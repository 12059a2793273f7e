package config

// DefaultSyncerCfg returns the default syncer config
func DefaultSyncerCfg() *SyncerCfg {
	return &SyncerCfg{
		ListenAddress:   "0.0.0.0:3456",
		DatabaseAddress: "user:passwd@tcp(127.0.0.1:3306)/metasync",
		RedisAddress:    "",
		WorkerCount:     6,
		WorkerURL:       "",
	}
}
