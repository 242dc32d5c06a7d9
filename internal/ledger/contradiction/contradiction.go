// Package contradiction implements the Contradiction Engine: detection of
// conflicts between a candidate artifact and already-committed (or
// batch-sibling) artifacts in the same case, and a ranked set of
// resolution rules that pick a winner. Resolution rules are modeled as a
// small ordered strategy list rather than duck-typed branching, per the
// ledger's sum-type-and-explicit-matching design.
package contradiction

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/chittyos/chittychain/pkg/evidence"
	"github.com/google/uuid"
)

// Kind classifies the nature of a detected conflict.
type Kind int32

const (
	KindUnspecified Kind = iota
	Direct
	Temporal
	Logical
	Partial
)

func (k Kind) String() string {
	switch k {
	case Direct:
		return "DIRECT"
	case Temporal:
		return "TEMPORAL"
	case Logical:
		return "LOGICAL"
	case Partial:
		return "PARTIAL"
	default:
		return "UNSPECIFIED"
	}
}

// Severity ranks how serious a detected conflict is.
type Severity int32

const (
	SeverityUnspecified Severity = iota
	Minor
	Moderate
	Major
	Critical
)

func (s Severity) String() string {
	switch s {
	case Critical:
		return "CRITICAL"
	case Major:
		return "MAJOR"
	case Moderate:
		return "MODERATE"
	default:
		return "MINOR"
	}
}

// Resolution identifies which ranked rule decided a conflict.
type Resolution int32

const (
	ResolutionUnspecified Resolution = iota
	Hierarchy
	TemporalPriority
	Authentication
	AdverseAdmission
	Contemporaneous
	Weight
)

func (r Resolution) String() string {
	switch r {
	case Hierarchy:
		return "HIERARCHY"
	case TemporalPriority:
		return "TEMPORAL_PRIORITY"
	case Authentication:
		return "AUTHENTICATION"
	case AdverseAdmission:
		return "ADVERSE_ADMISSION"
	case Contemporaneous:
		return "CONTEMPORANEOUS"
	case Weight:
		return "WEIGHT"
	default:
		return "UNSPECIFIED"
	}
}

// Record is the outcome of checking one pair of artifacts for conflict:
// which kind was found, how severe, which rule broke the tie, and the
// confidence of that call. ID and DecidedAt identify the decision itself;
// the winner, rule, and confidence are deterministic for a given pair.
type Record struct {
	ID         string
	ArtifactA  string
	ArtifactB  string
	Kind       Kind
	Severity   Severity
	Resolution Resolution
	WinnerID   string
	Confidence float64
	DecidedAt  time.Time
}

// antonymPairs is the closed lexicon of opposing predicates used to detect
// DIRECT conflicts. Lookups are case-insensitive and symmetric.
var antonymPairs = map[string]string{
	"signed":  "unsigned",
	"paid":    "unpaid",
	"present": "absent",
}

// sequentialActionPairs is the small table of prerequisite-ordered action
// pairs used to detect TEMPORAL conflicts: key must precede value.
var sequentialActionPairs = map[string]string{
	"draft":   "sign",
	"order":   "deliver",
	"invoice": "pay",
}

// DefaultPartialAmountTolerance is the fallback fractional amount
// tolerance used when a caller does not thread config.Config's
// partial_amount_tolerance through Detect.
const DefaultPartialAmountTolerance = 0.05

// Detect checks candidate against existing for a conflict, restricted to
// artifacts in the same case. tolerance is the fractional amount
// difference (see PartialAmountExceedsTolerance) beyond which a PARTIAL
// conflict is flagged; pass DefaultPartialAmountTolerance absent a
// configured value. It returns (nil, false) when no conflict is found.
func Detect(candidate, existing *evidence.Artifact, tolerance float64) (*Record, bool) {
	if candidate.CaseID != existing.CaseID || candidate.ID == existing.ID {
		return nil, false
	}

	if kind, ok := detectKind(candidate, existing, tolerance); ok {
		rec := &Record{
			ID:        uuid.New().String(),
			ArtifactA: existing.ID,
			ArtifactB: candidate.ID,
			Kind:      kind,
			DecidedAt: time.Now().UTC(),
		}
		rec.Severity = severityFor(kind, candidate, existing)
		resolve(rec, candidate, existing)
		return rec, true
	}
	return nil, false
}

func detectKind(candidate, existing *evidence.Artifact, tolerance float64) (Kind, bool) {
	candStmt := strings.ToLower(strings.TrimSpace(candidate.Statement))
	existStmt := strings.ToLower(strings.TrimSpace(existing.Statement))

	if sameSubject(candidate, existing) {
		if isDirectOpposite(candStmt, existStmt) {
			return Direct, true
		}
		if isTemporalConflict(candStmt, existStmt) {
			return Temporal, true
		}
	}
	if isLogicalConflict(candidate, existing) {
		return Logical, true
	}
	if isPartialConflict(candidate, existing, tolerance) {
		return Partial, true
	}
	return Kind(0), false
}

// sameSubject reports whether two artifacts can be about the same
// subject, gating the DIRECT and TEMPORAL checks: opposing or
// sequence-violating predicates only conflict when applied over the same
// subject. When both sides declare a subject in metadata and they
// differ, the pair is ruled out; an artifact with no declared subject is
// treated as potentially about any subject in its case.
func sameSubject(a, b *evidence.Artifact) bool {
	aSubject, aok := metaSubject(a)
	bSubject, bok := metaSubject(b)
	if aok && bok {
		return aSubject == bSubject
	}
	return true
}

// isLogicalConflict reports a LOGICAL conflict: same subject, overlapping
// time interval, mutually exclusive location. Subject and interval bounds
// are read from the artifact metadata bag ("subject", "interval_start",
// "interval_end", "location"); an artifact missing any of these fields
// cannot participate in a LOGICAL conflict.
func isLogicalConflict(candidate, existing *evidence.Artifact) bool {
	candSubject, ok := metaSubject(candidate)
	if !ok {
		return false
	}
	existSubject, ok := metaSubject(existing)
	if !ok || candSubject != existSubject {
		return false
	}

	candStart, candEnd, ok := metaInterval(candidate)
	if !ok {
		return false
	}
	existStart, existEnd, ok := metaInterval(existing)
	if !ok {
		return false
	}
	if !intervalsOverlap(candStart, candEnd, existStart, existEnd) {
		return false
	}

	candLoc, ok := metaValue(candidate, "location")
	if !ok {
		return false
	}
	existLoc, ok := metaValue(existing, "location")
	if !ok {
		return false
	}
	return candLoc != existLoc
}

// isPartialConflict reports a PARTIAL conflict: same context, numeric
// "amount" metadata differing beyond tolerance.
func isPartialConflict(candidate, existing *evidence.Artifact, tolerance float64) bool {
	candAmount, ok := metaAmount(candidate)
	if !ok {
		return false
	}
	existAmount, ok := metaAmount(existing)
	if !ok {
		return false
	}
	return PartialAmountExceedsTolerance(candAmount, existAmount, tolerance)
}

func metaValue(a *evidence.Artifact, key string) (string, bool) {
	v, ok := a.Metadata[key]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func metaSubject(a *evidence.Artifact) (string, bool) {
	return metaValue(a, "subject")
}

func metaAmount(a *evidence.Artifact) (float64, bool) {
	raw, ok := metaValue(a, "amount")
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func metaInterval(a *evidence.Artifact) (start, end time.Time, ok bool) {
	rawStart, okStart := metaValue(a, "interval_start")
	rawEnd, okEnd := metaValue(a, "interval_end")
	if !okStart || !okEnd {
		return time.Time{}, time.Time{}, false
	}
	start, err := time.Parse(time.RFC3339, rawStart)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	end, err = time.Parse(time.RFC3339, rawEnd)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

func intervalsOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

func isDirectOpposite(a, b string) bool {
	for word, antonym := range antonymPairs {
		aHas := strings.Contains(a, word)
		bHasAntonym := strings.Contains(b, antonym)
		aHasAntonym := strings.Contains(a, antonym)
		bHas := strings.Contains(b, word)
		if (aHas && bHasAntonym) || (aHasAntonym && bHas) {
			return true
		}
	}
	return false
}

func isTemporalConflict(a, b string) bool {
	for before, after := range sequentialActionPairs {
		if strings.Contains(a, after) && strings.Contains(b, before) {
			return true
		}
		if strings.Contains(b, after) && strings.Contains(a, before) {
			return true
		}
	}
	return false
}

func severityFor(kind Kind, candidate, existing *evidence.Artifact) Severity {
	avgWeight := (candidate.EffectiveWeight() + existing.EffectiveWeight()) / 2
	if kind == Direct && candidate.EffectiveWeight() > 0.8 && existing.EffectiveWeight() > 0.8 {
		return Critical
	}
	if avgWeight > 0.6 {
		return Major
	}
	if avgWeight > 0.4 {
		return Moderate
	}
	return Minor
}

// resolve applies the ranked resolution rules in order; the first rule
// that distinguishes the pair decides the winner.
func resolve(rec *Record, candidate, existing *evidence.Artifact) {
	type rule struct {
		resolution Resolution
		decide     func() (winnerID string, decided bool)
	}

	rules := []rule{
		{Hierarchy, func() (string, bool) {
			if candidate.Tier.Rank() == existing.Tier.Rank() {
				return "", false
			}
			if candidate.Tier.Rank() > existing.Tier.Rank() {
				return candidate.ID, true
			}
			return existing.ID, true
		}},
		{Authentication, func() (string, bool) {
			cr, er := candidate.AuthenticationMethod.Rank(), existing.AuthenticationMethod.Rank()
			if cr == er {
				return "", false
			}
			if cr > er {
				return candidate.ID, true
			}
			return existing.ID, true
		}},
		{AdverseAdmission, func() (string, bool) {
			if candidate.AdverseAdmission == existing.AdverseAdmission {
				return "", false
			}
			if candidate.AdverseAdmission {
				return candidate.ID, true
			}
			return existing.ID, true
		}},
		{Contemporaneous, func() (string, bool) {
			if candidate.Contemporaneous == existing.Contemporaneous {
				return "", false
			}
			if candidate.Contemporaneous {
				return candidate.ID, true
			}
			return existing.ID, true
		}},
		{TemporalPriority, func() (string, bool) {
			if !candidate.Contemporaneous || !existing.Contemporaneous {
				return "", false
			}
			if candidate.Timestamp.Equal(existing.Timestamp) {
				return "", false
			}
			if candidate.Timestamp.Before(existing.Timestamp) {
				return candidate.ID, true
			}
			return existing.ID, true
		}},
		{Weight, func() (string, bool) {
			cw, ew := candidate.EffectiveWeight(), existing.EffectiveWeight()
			if math.Abs(cw-ew) < 1e-9 {
				return existing.ID, true // stable tiebreak: keep incumbent
			}
			if cw > ew {
				return candidate.ID, true
			}
			return existing.ID, true
		}},
	}

	for i, r := range rules {
		if winner, decided := r.decide(); decided {
			rec.Resolution = r.resolution
			rec.WinnerID = winner
			rec.Confidence = confidenceFor(i, len(rules))
			return
		}
	}
}

// confidenceFor maps how early a rule fired (index i of n rules) to a
// confidence in [0.5, 0.95]: earlier, more decisive rules score higher.
func confidenceFor(i, n int) float64 {
	if n <= 1 {
		return 0.95
	}
	step := (0.95 - 0.5) / float64(n-1)
	return 0.95 - step*float64(i)
}

// PartialAmountExceedsTolerance reports whether two numeric amounts differ
// by more than the fractional tolerance, used by callers to flag PARTIAL
// conflicts over financial figures extracted from candidate metadata.
func PartialAmountExceedsTolerance(a, b, tolerance float64) bool {
	if a == 0 && b == 0 {
		return false
	}
	base := math.Max(math.Abs(a), math.Abs(b))
	if base == 0 {
		return false
	}
	return math.Abs(a-b)/base > tolerance
}
