package replication

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metasync/metasync/node/config"
)

func TestPolicyDesired(t *testing.T) {
	policy, err := NewPolicy([]config.TypePolicy{
		{Type: "mldata", PrimaryBucket: "b0", ReplicaBuckets: []string{"b1", "b2"}},
		{Type: "vid_preview", PrimaryBucket: "b1", ReplicaBuckets: []string{"b1", "b3"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "b0", policy.PrimaryBucket("mldata"))
	assert.ElementsMatch(t, []string{"b0", "b1", "b2"}, policy.Desired("mldata"))

	// primary listed among replicas is not counted twice
	assert.ElementsMatch(t, []string{"b1", "b3"}, policy.Desired("vid_preview"))

	counts := policy.DesiredCounts()
	assert.Equal(t, 3, counts["mldata"])
	assert.Equal(t, 2, counts["vid_preview"])

	assert.Empty(t, policy.Desired("unknown"))
}

func TestPolicyRequiresPrimary(t *testing.T) {
	_, err := NewPolicy([]config.TypePolicy{{Type: "mldata"}})
	require.Error(t, err)
}
