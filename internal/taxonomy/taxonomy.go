// Package taxonomy defines the versioned keyword taxonomy used for crisis
// detection. Tiers are ordered by escalation priority; phrase sets are
// matched by literal substring containment, never tokenized or stemmed.
package taxonomy

import (
	"fmt"
	"strings"
)

// Tier is a risk tier name. TierNone is a classifier outcome, not a
// taxonomy entry: no phrase set exists for it.
type Tier string

const (
	TierNone      Tier = "none"
	TierImmediate Tier = "immediate"
	TierSevere    Tier = "severe"
	TierModerate  Tier = "moderate"
	TierSubstance Tier = "substance"
	TierViolence  Tier = "violence"
)

// TiersByPriority lists the taxonomy tiers in strict matching order.
// Classification stops at the first tier with a match.
var TiersByPriority = []Tier{
	TierImmediate,
	TierSevere,
	TierModerate,
	TierSubstance,
	TierViolence,
}

// Taxonomy maps each risk tier to its trigger phrases. Phrases are stored
// lower-cased so matching stays case-insensitive without per-call folding.
type Taxonomy struct {
	Version string
	Tiers   map[Tier][]string
}

// Default returns the built-in taxonomy shipped with the engine.
func Default() *Taxonomy {
	return &Taxonomy{
		Version: "builtin-1",
		Tiers: map[Tier][]string{
			TierImmediate: {
				"kill myself",
				"killing myself",
				"suicide",
				"suicidal",
				"end my life",
				"ending my life",
				"want to die",
				"better off dead",
				"hurt myself",
				"harm myself",
				"self-harm",
				"self harm",
				"cutting myself",
				"overdose",
				"no reason to live",
			},
			TierSevere: {
				"can't go on",
				"cant go on",
				"can't take it anymore",
				"cant take it anymore",
				"give up on everything",
				"giving up on everything",
				"no way out",
				"unbearable",
				"falling apart",
				"breaking down",
				"losing my mind",
				"can't cope",
				"cant cope",
			},
			TierModerate: {
				"hopeless",
				"worthless",
				"depressed",
				"depressing",
				"anxious",
				"anxiety attack",
				"panic attack",
				"overwhelmed",
				"so alone",
				"feel empty",
				"feeling empty",
				"really struggling",
				"can't sleep",
				"cant sleep",
			},
			TierSubstance: {
				"relapse",
				"relapsed",
				"using again",
				"drinking again",
				"can't stop drinking",
				"cant stop drinking",
				"can't stop using",
				"cant stop using",
				"blackout drunk",
				"withdrawal",
				"getting high",
				"binge",
			},
			TierViolence: {
				"hurt someone",
				"hurt him",
				"hurt her",
				"hurt them",
				"kill him",
				"kill her",
				"kill them",
				"make them pay",
				"make him pay",
				"make her pay",
				"want revenge",
				"going to attack",
			},
		},
	}
}

// Validate checks the taxonomy for structural problems. A taxonomy that
// fails validation is a startup-time fatal condition, never a per-message
// error.
func (t *Taxonomy) Validate() error {
	if t == nil {
		return fmt.Errorf("taxonomy is nil")
	}
	if len(t.Tiers) == 0 {
		return fmt.Errorf("taxonomy has no tiers")
	}

	known := make(map[Tier]bool, len(TiersByPriority))
	for _, tier := range TiersByPriority {
		known[tier] = true
	}

	for tier, phrases := range t.Tiers {
		if !known[tier] {
			return fmt.Errorf("unknown tier %q", tier)
		}
		if len(phrases) == 0 {
			return fmt.Errorf("tier %q has no phrases", tier)
		}
		for _, p := range phrases {
			if strings.TrimSpace(p) == "" {
				return fmt.Errorf("tier %q contains an empty phrase", tier)
			}
		}
	}

	for _, tier := range TiersByPriority {
		if _, ok := t.Tiers[tier]; !ok {
			return fmt.Errorf("tier %q is missing", tier)
		}
	}

	return nil
}

// Phrases returns the phrase set for a tier, lower-cased. The returned
// slice is a copy; callers may not mutate the taxonomy through it.
func (t *Taxonomy) Phrases(tier Tier) []string {
	src := t.Tiers[tier]
	out := make([]string, len(src))
	for i, p := range src {
		out[i] = strings.ToLower(p)
	}
	return out
}

// normalize lower-cases all phrases in place. Called after loading from
// file so matching never depends on the file's casing.
func (t *Taxonomy) normalize() {
	for tier, phrases := range t.Tiers {
		for i, p := range phrases {
			phrases[i] = strings.ToLower(strings.TrimSpace(p))
		}
		t.Tiers[tier] = phrases
	}
}
