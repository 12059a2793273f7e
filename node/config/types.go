package config

// // NOTE: ONLY PUT STRUCT DEFINITIONS IN THIS FILE

// SyncerCfg replication service config
type SyncerCfg struct {
	// host address and port the admin api and metrics will listen on
	ListenAddress string
	// mysql dsn of the sync queue database
	DatabaseAddress string
	// redis address for replication counters, counters are disabled when empty
	RedisAddress string
	// number of replication workers
	WorkerCount int
	// optional external endpoint that downloads objects on our behalf,
	// downloads happen in-process when empty
	WorkerURL string
	// per metadata type bucket policy
	Policies []TypePolicy
	// object storage endpoints, one per bucket id
	Buckets []BucketCfg
}

// TypePolicy bucket assignment for one metadata type
type TypePolicy struct {
	// metadata type this policy applies to
	Type string
	// bucket that receives the first write
	PrimaryBucket string
	// buckets that must eventually hold a verified copy
	ReplicaBuckets []string
}

// BucketCfg connection info for one s3 compatible bucket
type BucketCfg struct {
	// bucket id referenced by the policies
	Name string
	// s3 endpoint url
	Endpoint string
	// region passed to the s3 client
	Region string
	// bucket name at the endpoint
	Bucket string
	// access key id
	AccessKeyID string
	// secret access key
	SecretAccessKey string
}
