package crisis

import (
	"errors"
	"strings"

	"github.com/fyrsmithlabs/counseld/internal/taxonomy"
)

// Assessment is the classifier's verdict for a single message.
type Assessment struct {
	Level              taxonomy.Tier `json:"level"`
	MatchedKeywords    []string      `json:"matched_keywords,omitempty"`
	RequiresEscalation bool          `json:"requires_escalation"`
	RequiresMonitoring bool          `json:"requires_monitoring"`
}

// escalationByTier is the single source of truth for the escalation
// predicate. The response table and NeedsEscalation both read from it.
var escalationByTier = map[taxonomy.Tier]bool{
	taxonomy.TierImmediate: true,
	taxonomy.TierSevere:    true,
	taxonomy.TierModerate:  false,
	taxonomy.TierSubstance: false,
	taxonomy.TierViolence:  true,
}

// NeedsEscalation reports whether a tier routes to a human counselor.
func NeedsEscalation(tier taxonomy.Tier) bool {
	return escalationByTier[tier]
}

// Classifier evaluates message text against the active taxonomy.
type Classifier struct {
	source taxonomy.Source
}

// NewClassifier creates a classifier over a taxonomy source. The source's
// current taxonomy is validated up front: a broken taxonomy is a startup
// failure, not a per-message one.
func NewClassifier(source taxonomy.Source) (*Classifier, error) {
	if source == nil {
		return nil, errors.New("taxonomy source is required")
	}
	if err := source.Current().Validate(); err != nil {
		return nil, err
	}
	return &Classifier{source: source}, nil
}

// Classify produces a risk verdict for raw message text.
//
// Tiers are tested in priority order and matching stops at the first tier
// with at least one hit; an immediate-tier phrase co-occurring with a
// moderate-tier phrase yields immediate, never both. All matched phrases
// within the winning tier are collected for the audit trail.
//
// Deterministic for a given taxonomy version and input. Empty or
// whitespace-only text is TierNone.
func (c *Classifier) Classify(text string) Assessment {
	lowered := strings.ToLower(strings.TrimSpace(text))
	if lowered == "" {
		classificationsTotal.WithLabelValues(string(taxonomy.TierNone)).Inc()
		return Assessment{Level: taxonomy.TierNone}
	}

	tax := c.source.Current()

	for _, tier := range taxonomy.TiersByPriority {
		var matched []string
		for _, phrase := range tax.Phrases(tier) {
			if strings.Contains(lowered, phrase) {
				matched = append(matched, phrase)
			}
		}
		if len(matched) > 0 {
			classificationsTotal.WithLabelValues(string(tier)).Inc()
			if escalationByTier[tier] {
				escalationsTotal.Inc()
			}
			return Assessment{
				Level:              tier,
				MatchedKeywords:    matched,
				RequiresEscalation: escalationByTier[tier],
				RequiresMonitoring: !escalationByTier[tier],
			}
		}
	}

	classificationsTotal.WithLabelValues(string(taxonomy.TierNone)).Inc()
	return Assessment{Level: taxonomy.TierNone}
}
