package crisis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/counseld/internal/taxonomy"
)

func TestSelectResponse_AllTiersDefined(t *testing.T) {
	for _, tier := range taxonomy.TiersByPriority {
		resp, err := SelectResponse(tier)
		require.NoError(t, err, "tier %s", tier)
		assert.Equal(t, tier, resp.Level)
		assert.NotEmpty(t, resp.Message)
		assert.NotEmpty(t, resp.Priority)
	}
}

func TestSelectResponse_EscalationMatchesPredicate(t *testing.T) {
	// The response table and NeedsEscalation must never disagree.
	for _, tier := range taxonomy.TiersByPriority {
		resp, err := SelectResponse(tier)
		require.NoError(t, err)
		assert.Equal(t, NeedsEscalation(tier), resp.EscalationRequired, "tier %s", tier)
	}
}

func TestSelectResponse_Immediate(t *testing.T) {
	resp, err := SelectResponse(taxonomy.TierImmediate)
	require.NoError(t, err)

	assert.True(t, resp.EscalationRequired)
	assert.Equal(t, PriorityCritical, resp.Priority)
	assert.Contains(t, resp.Message, "988")
}

func TestSelectResponse_ModerateDoesNotEscalate(t *testing.T) {
	resp, err := SelectResponse(taxonomy.TierModerate)
	require.NoError(t, err)

	assert.False(t, resp.EscalationRequired)
	assert.Equal(t, PriorityMedium, resp.Priority)
}

func TestSelectResponse_NoneIsAnError(t *testing.T) {
	_, err := SelectResponse(taxonomy.TierNone)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no response defined")
}

func TestSelectResponse_UnknownTier(t *testing.T) {
	_, err := SelectResponse(taxonomy.Tier("catastrophic"))
	require.Error(t, err)
}
