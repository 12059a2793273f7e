package replication

import (
	"golang.org/x/xerrors"

	"github.com/metasync/metasync/api/types"
	"github.com/metasync/metasync/node/config"
)

type bucketPolicy struct {
	primary  string
	replicas types.BucketSet
}

// Policy resolves the desired bucket set per metadata type from the current
// configuration. Doneness of a row is always evaluated against this, never
// cached, so adding a replica bucket to the config re-pends existing rows.
type Policy struct {
	policies map[types.MetadataType]bucketPolicy
}

// NewPolicy builds the policy table from config.
func NewPolicy(cfgs []config.TypePolicy) (*Policy, error) {
	policies := make(map[types.MetadataType]bucketPolicy, len(cfgs))

	for _, tp := range cfgs {
		if tp.PrimaryBucket == "" {
			return nil, xerrors.Errorf("type %s has no primary bucket", tp.Type)
		}
		policies[types.MetadataType(tp.Type)] = bucketPolicy{
			primary:  tp.PrimaryBucket,
			replicas: types.BucketSet(tp.ReplicaBuckets),
		}
	}

	return &Policy{policies: policies}, nil
}

// PrimaryBucket returns the bucket receiving first writes for the type.
func (p *Policy) PrimaryBucket(t types.MetadataType) string {
	return p.policies[t].primary
}

// Desired returns the full bucket set the type must be present in.
func (p *Policy) Desired(t types.MetadataType) types.BucketSet {
	bp, ok := p.policies[t]
	if !ok {
		return nil
	}

	desired := types.BucketSet{bp.primary}
	for _, b := range bp.replicas {
		desired = desired.Add(b)
	}
	return desired
}

// DesiredCounts returns the desired bucket count per type, used by the queue
// store's pending predicate.
func (p *Policy) DesiredCounts() map[types.MetadataType]int {
	counts := make(map[types.MetadataType]int, len(p.policies))
	for t := range p.policies {
		counts[t] = len(p.Desired(t))
	}
	return counts
}
