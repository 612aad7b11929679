package crisis

import (
	"fmt"

	"github.com/fyrsmithlabs/counseld/internal/taxonomy"
)

// Priority is the downstream alerting priority for a response.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
)

// Response is the prescribed safety message for a risk tier.
type Response struct {
	Level              taxonomy.Tier `json:"level"`
	Message            string        `json:"message"`
	EscalationRequired bool          `json:"escalation_required"`
	Priority           Priority      `json:"priority"`
}

// responseTable has one entry per non-none tier. The escalation flag is
// filled from escalationByTier at init so the two can never drift.
var responseTable = map[taxonomy.Tier]Response{
	taxonomy.TierImmediate: {
		Level: taxonomy.TierImmediate,
		Message: "I'm really concerned about what you're sharing. Your safety matters. " +
			"A counselor is being connected to you right now. If you are in immediate danger, " +
			"please call 988 (Suicide & Crisis Lifeline) or 911.",
		Priority: PriorityCritical,
	},
	taxonomy.TierSevere: {
		Level: taxonomy.TierSevere,
		Message: "It sounds like you're carrying something very heavy right now. " +
			"You don't have to face this alone - I'm connecting you with a counselor " +
			"who can support you through this.",
		Priority: PriorityHigh,
	},
	taxonomy.TierModerate: {
		Level: taxonomy.TierModerate,
		Message: "Thank you for sharing how you're feeling. What you're going through " +
			"is real, and support is available whenever you need it. Would you like to " +
			"talk more about what's been weighing on you?",
		Priority: PriorityMedium,
	},
	taxonomy.TierSubstance: {
		Level: taxonomy.TierSubstance,
		Message: "It takes courage to talk about this. Recovery has setbacks, and a setback " +
			"doesn't erase your progress. The SAMHSA helpline (1-800-662-4357) is available " +
			"24/7 if you want to talk to someone now.",
		Priority: PriorityMedium,
	},
	taxonomy.TierViolence: {
		Level: taxonomy.TierViolence,
		Message: "I hear how much anger you're holding. Your safety and the safety of others " +
			"matters. A counselor is being brought in to work through this with you.",
		Priority: PriorityHigh,
	},
}

func init() {
	for tier, resp := range responseTable {
		resp.EscalationRequired = escalationByTier[tier]
		responseTable[tier] = resp
	}
}

// SelectResponse returns the prescribed response for a non-none tier.
// Callers must check the verdict first: there is no entry for TierNone.
func SelectResponse(tier taxonomy.Tier) (Response, error) {
	resp, ok := responseTable[tier]
	if !ok {
		return Response{}, fmt.Errorf("no response defined for tier %q", tier)
	}
	return resp, nil
}
