package crisis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/counseld/internal/taxonomy"
)

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	c, err := NewClassifier(taxonomy.NewStatic(taxonomy.Default()))
	require.NoError(t, err)
	return c
}

func TestNewClassifier_RequiresSource(t *testing.T) {
	_, err := NewClassifier(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "taxonomy source is required")
}

func TestNewClassifier_RejectsBrokenTaxonomy(t *testing.T) {
	_, err := NewClassifier(taxonomy.NewStatic(&taxonomy.Taxonomy{}))
	require.Error(t, err)
}

func TestClassify_ImmediateIntent(t *testing.T) {
	c := newTestClassifier(t)

	a := c.Classify("I want to kill myself")

	assert.Equal(t, taxonomy.TierImmediate, a.Level)
	assert.Contains(t, a.MatchedKeywords, "kill myself")
	assert.True(t, a.RequiresEscalation)
	assert.False(t, a.RequiresMonitoring)
}

func TestClassify_ModerateDistress(t *testing.T) {
	c := newTestClassifier(t)

	a := c.Classify("I've been feeling really down and hopeless lately")

	assert.Equal(t, taxonomy.TierModerate, a.Level)
	assert.Contains(t, a.MatchedKeywords, "hopeless")
	assert.False(t, a.RequiresEscalation)
	assert.True(t, a.RequiresMonitoring)
}

func TestClassify_PriorityOrdering(t *testing.T) {
	c := newTestClassifier(t)

	// Immediate phrase co-occurring with a moderate phrase must yield
	// immediate, and only immediate-tier keywords are collected.
	a := c.Classify("I feel hopeless and I want to kill myself")

	assert.Equal(t, taxonomy.TierImmediate, a.Level)
	assert.Contains(t, a.MatchedKeywords, "kill myself")
	assert.NotContains(t, a.MatchedKeywords, "hopeless")
}

func TestClassify_CollectsAllWinningTierMatches(t *testing.T) {
	c := newTestClassifier(t)

	a := c.Classify("I want to die, there is no reason to live")

	assert.Equal(t, taxonomy.TierImmediate, a.Level)
	assert.Contains(t, a.MatchedKeywords, "want to die")
	assert.Contains(t, a.MatchedKeywords, "no reason to live")
}

func TestClassify_CaseInsensitive(t *testing.T) {
	c := newTestClassifier(t)

	a := c.Classify("I WANT TO KILL MYSELF")
	assert.Equal(t, taxonomy.TierImmediate, a.Level)
}

func TestClassify_NoMatch(t *testing.T) {
	c := newTestClassifier(t)

	a := c.Classify("The weather has been lovely this week")

	assert.Equal(t, taxonomy.TierNone, a.Level)
	assert.Empty(t, a.MatchedKeywords)
	assert.False(t, a.RequiresEscalation)
	assert.False(t, a.RequiresMonitoring)
}

func TestClassify_EmptyAndWhitespace(t *testing.T) {
	c := newTestClassifier(t)

	assert.Equal(t, taxonomy.TierNone, c.Classify("").Level)
	assert.Equal(t, taxonomy.TierNone, c.Classify("   \n\t ").Level)
}

func TestClassify_SubstringSemantics(t *testing.T) {
	c := newTestClassifier(t)

	// Literal containment is intentional: phrases match inside larger
	// words and sentences, including ones about the topic rather than
	// the speaker. This over-triggers rather than under-triggers.
	a := c.Classify("I read an article about suicide prevention")
	assert.Equal(t, taxonomy.TierImmediate, a.Level)
}

func TestClassify_SubstanceAndViolenceTiers(t *testing.T) {
	c := newTestClassifier(t)

	tests := []struct {
		name string
		text string
		want taxonomy.Tier
		esc  bool
	}{
		{"substance relapse", "I relapsed last night after six months", taxonomy.TierSubstance, false},
		{"violence threat", "I'm going to hurt him when I see him", taxonomy.TierViolence, true},
		{"severe distress", "I just can't go on like this", taxonomy.TierSevere, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := c.Classify(tt.text)
			assert.Equal(t, tt.want, a.Level)
			assert.Equal(t, tt.esc, a.RequiresEscalation)
		})
	}
}

func TestNeedsEscalation(t *testing.T) {
	assert.True(t, NeedsEscalation(taxonomy.TierImmediate))
	assert.True(t, NeedsEscalation(taxonomy.TierSevere))
	assert.True(t, NeedsEscalation(taxonomy.TierViolence))
	assert.False(t, NeedsEscalation(taxonomy.TierModerate))
	assert.False(t, NeedsEscalation(taxonomy.TierSubstance))
	assert.False(t, NeedsEscalation(taxonomy.TierNone))
}
