package taxonomy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Valid(t *testing.T) {
	tax := Default()
	require.NoError(t, tax.Validate())
	assert.Equal(t, "builtin-1", tax.Version)

	for _, tier := range TiersByPriority {
		assert.NotEmpty(t, tax.Tiers[tier], "tier %s should have phrases", tier)
	}
}

func TestTiersByPriority_Order(t *testing.T) {
	expected := []Tier{TierImmediate, TierSevere, TierModerate, TierSubstance, TierViolence}
	assert.Equal(t, expected, TiersByPriority)
}

func TestValidate_MissingTier(t *testing.T) {
	tax := Default()
	delete(tax.Tiers, TierViolence)

	err := tax.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "violence")
}

func TestValidate_UnknownTier(t *testing.T) {
	tax := Default()
	tax.Tiers["catastrophic"] = []string{"doom"}

	err := tax.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tier")
}

func TestValidate_EmptyPhrase(t *testing.T) {
	tax := Default()
	tax.Tiers[TierModerate] = append(tax.Tiers[TierModerate], "   ")

	err := tax.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty phrase")
}

func TestValidate_NoTiers(t *testing.T) {
	tax := &Taxonomy{}
	require.Error(t, tax.Validate())
}

func TestPhrases_ReturnsCopy(t *testing.T) {
	tax := Default()
	phrases := tax.Phrases(TierImmediate)
	require.NotEmpty(t, phrases)

	phrases[0] = "mutated"
	assert.NotEqual(t, "mutated", tax.Tiers[TierImmediate][0])
}

const testYAML = `
version: clinic-2026-08
tiers:
  immediate:
    - Kill Myself
    - suicide
  severe:
    - can't go on
  moderate:
    - hopeless
  substance:
    - relapse
  violence:
    - hurt someone
`

func TestParse_NormalizesCase(t *testing.T) {
	tax, err := Parse([]byte(testYAML))
	require.NoError(t, err)

	assert.Equal(t, "clinic-2026-08", tax.Version)
	assert.Contains(t, tax.Tiers[TierImmediate], "kill myself")
	assert.NotContains(t, tax.Tiers[TierImmediate], "Kill Myself")
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("tiers: [not: a: map"))
	require.Error(t, err)
}

func TestParse_MissingTierFails(t *testing.T) {
	_, err := Parse([]byte("version: v1\ntiers:\n  immediate:\n    - suicide\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid taxonomy")
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taxonomy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testYAML), 0o600))

	tax, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "clinic-2026-08", tax.Version)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
