package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/xerrors"
)

// MetadataType enumerated kind of the metadata object, determines which
// bucket is primary and which buckets are required replica targets
type MetadataType string

const (
	// MetadataTypeMLData derived machine-learning embeddings
	MetadataTypeMLData MetadataType = "mldata"
	// MetadataTypePreviewVideo transcoded video preview
	MetadataTypePreviewVideo MetadataType = "vid_preview"
	// MetadataTypeImagePreview rendered image preview
	MetadataTypeImagePreview MetadataType = "img_preview"
)

// BucketSet set of bucket identifiers, persisted as a JSON array
type BucketSet []string

// Contains reports whether the set holds the bucket id
func (bs BucketSet) Contains(bucket string) bool {
	for _, b := range bs {
		if b == bucket {
			return true
		}
	}
	return false
}

// Add returns a set that holds bucket, without duplicating an existing entry
func (bs BucketSet) Add(bucket string) BucketSet {
	if bs.Contains(bucket) {
		return bs
	}
	return append(bs, bucket)
}

// Remove returns a set with bucket removed
func (bs BucketSet) Remove(bucket string) BucketSet {
	out := make(BucketSet, 0, len(bs))
	for _, b := range bs {
		if b != bucket {
			out = append(out, b)
		}
	}
	return out
}

// Value implements driver.Valuer
func (bs BucketSet) Value() (driver.Value, error) {
	if bs == nil {
		bs = BucketSet{}
	}
	return json.Marshal(bs)
}

// Scan implements sql.Scanner
func (bs *BucketSet) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*bs = BucketSet{}
		return nil
	case []byte:
		if len(v) == 0 {
			*bs = BucketSet{}
			return nil
		}
		return json.Unmarshal(v, bs)
	case string:
		if len(v) == 0 {
			*bs = BucketSet{}
			return nil
		}
		return json.Unmarshal([]byte(v), bs)
	default:
		return xerrors.Errorf("cannot scan %T into BucketSet", src)
	}
}

// ReplicationRow one pending replication unit in the sync queue
type ReplicationRow struct {
	FileID            int64        `db:"file_id"`
	UserID            int64        `db:"user_id"`
	Type              MetadataType `db:"data_type"`
	Size              int64        `db:"size"`
	LatestBucket      string       `db:"latest_bucket"`
	ReplicatedBuckets BucketSet    `db:"replicated_buckets"`
	InflightBuckets   BucketSet    `db:"inflight_buckets"`
	PendingSync       bool         `db:"pending_sync"`
	LockedUntil       time.Time    `db:"locked_until"`
	LockOwner         string       `db:"lock_owner"`
	LastSyncedAt      time.Time    `db:"last_synced_at"`
}

// ObjectKey the storage key of the metadata object, identical in every bucket
func (r *ReplicationRow) ObjectKey() string {
	return fmt.Sprintf("%d/file_data/%d/%s", r.UserID, r.FileID, r.Type)
}

// ReplicationStats counters reported over the admin api
type ReplicationStats struct {
	PendingRows     int64
	RowsReplicated  int64
	RowsFailed      int64
	BytesReplicated int64
}
