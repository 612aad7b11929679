// Package crisis classifies inbound counseling messages for risk and maps
// risk tiers to prescribed safety responses.
//
// Classification is literal, case-insensitive substring containment against
// the taxonomy's phrase sets, tested in strict tier-priority order. The
// substring semantics are deliberate and load-bearing: "harm" matches inside
// "harmless". Over-triggering is preferred to under-triggering here; changing
// to tokenized matching changes clinical-safety behavior and needs explicit
// sign-off.
//
// The escalation policy lives in exactly one place (escalationByTier). Both
// the response table and NeedsEscalation derive from it.
package crisis
