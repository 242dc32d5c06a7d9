// Package validator implements the ledger's Artifact Validator: the
// per-artifact admission decision against the tier/weight/authentication
// policy. Decisions are values, not exceptions: a tagged Decision variant
// with Mintable, NeedsCorroboration, and Rejected cases, following the
// sum-type pattern the ledger uses throughout instead of duck-typed
// branching.
package validator

import (
	"fmt"

	"github.com/chittyos/chittychain/internal/ledger/chain"
	"github.com/chittyos/chittychain/internal/ledgererr"
	"github.com/chittyos/chittychain/pkg/evidence"
)

// Outcome tags which variant of Decision was produced.
type Outcome int32

const (
	OutcomeUnspecified Outcome = iota
	Mintable
	NeedsCorroboration
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Mintable:
		return "MINTABLE"
	case NeedsCorroboration:
		return "NEEDS_CORROBORATION"
	case Rejected:
		return "REJECTED"
	default:
		return "UNSPECIFIED"
	}
}

// Decision is the result of classifying a candidate artifact. Exactly one
// of the outcome-specific fields is meaningful, selected by Outcome.
type Decision struct {
	Outcome Outcome

	// Populated for NeedsCorroboration.
	RequiredCorroborations int

	// Populated for Rejected.
	Reason error

	// The numeric thresholds that drove the decision, for auditability.
	// Left zero when the candidate is rejected by the shape, uniqueness or
	// corroboration checks; AutoMintThreshold is zero for tiers that have
	// no auto-mint threshold.
	EffectiveWeight     float64
	AutoMintThreshold   float64
	AuthenticationBonus float64
}

// MinPersonalCorroborations is the number of distinct corroborating
// committed artifacts a PERSONAL-tier artifact must cite to ever mint.
const MinPersonalCorroborations = 3

func autoMintThreshold(tier evidence.Tier) (threshold float64, applicable bool) {
	switch tier {
	case evidence.TierGovernment:
		return 0.90, true
	case evidence.TierFinancial:
		return 0.95, true
	case evidence.TierThirdParty:
		return 0.90, true
	default:
		return 0, false
	}
}

// Classify runs the admission policy against candidate, consulting ch to
// check id uniqueness and corroboration resolution. minPersonalCorrob is
// the number of distinct corroborating committed artifacts a
// PERSONAL-tier artifact must cite to mint; pass MinPersonalCorroborations
// absent a configured value.
func Classify(ch *chain.Chain, candidate *evidence.Artifact, minPersonalCorrob int) Decision {
	if err := candidate.ValidateShape(); err != nil {
		return Decision{Outcome: Rejected, Reason: err}
	}

	if _, _, exists := ch.ArtifactByID(candidate.ID); exists {
		return Decision{Outcome: Rejected, Reason: fmt.Errorf("id %s: %w", candidate.ID, ledgererr.ErrDuplicateID)}
	}

	distinctCorrob := map[string]bool{}
	for _, corrobID := range candidate.CorroboratingIDs {
		if _, _, ok := ch.ArtifactByID(corrobID); !ok {
			return Decision{Outcome: Rejected, Reason: fmt.Errorf("corroborating id %s: %w", corrobID, ledgererr.ErrUnknownCorrobID)}
		}
		distinctCorrob[corrobID] = true
	}

	effWeight := candidate.EffectiveWeight()
	bonus := candidate.AuthenticationMethod.Bonus()

	if candidate.Tier == evidence.TierPersonal {
		if len(distinctCorrob) >= minPersonalCorrob {
			return Decision{
				Outcome:             Mintable,
				EffectiveWeight:     effWeight,
				AuthenticationBonus: bonus,
			}
		}
		return Decision{
			Outcome:                NeedsCorroboration,
			RequiredCorroborations: minPersonalCorrob,
			EffectiveWeight:        effWeight,
			AuthenticationBonus:    bonus,
		}
	}

	threshold, _ := autoMintThreshold(candidate.Tier)
	decision := Decision{
		EffectiveWeight:     effWeight,
		AutoMintThreshold:   threshold,
		AuthenticationBonus: bonus,
	}

	if effWeight < threshold {
		decision.Outcome = NeedsCorroboration
		decision.RequiredCorroborations = 1
		return decision
	}

	switch candidate.Tier {
	case evidence.TierGovernment:
		if candidate.AuthenticationMethod != evidence.AuthDigitalSeal {
			decision.Outcome = NeedsCorroboration
			decision.RequiredCorroborations = 1
			return decision
		}
	case evidence.TierFinancial, evidence.TierThirdParty:
		if candidate.AuthenticationMethod == evidence.AuthNone {
			decision.Outcome = NeedsCorroboration
			decision.RequiredCorroborations = 1
			return decision
		}
	}

	decision.Outcome = Mintable
	return decision
}
