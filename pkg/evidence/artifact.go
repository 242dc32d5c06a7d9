// Package evidence defines the artifact types admitted into the ledger:
// their tiers, authentication methods, and the canonical encoding used to
// compute their content hash. It mirrors the per-type Validate() pattern
// used across the ledger's other domain types, but an Artifact's structural
// validation (field presence, shape) is kept separate from the policy
// decision made by internal/ledger/validator.
package evidence

import (
	"fmt"
	"sort"
	"time"

	"github.com/chittyos/chittychain/internal/ledgerhash"
	"github.com/chittyos/chittychain/internal/ledgererr"
	"github.com/google/uuid"
)

// Tier is an artifact's authority class, which governs its admission
// threshold in internal/ledger/validator.
type Tier int32

const (
	TierUnspecified Tier = iota
	TierGovernment
	TierFinancial
	TierThirdParty
	TierPersonal
)

var tierNames = map[Tier]string{
	TierGovernment: "GOVERNMENT",
	TierFinancial:  "FINANCIAL",
	TierThirdParty: "THIRD_PARTY",
	TierPersonal:   "PERSONAL",
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return "UNSPECIFIED"
}

// Rank orders tiers for the HIERARCHY resolution rule: higher rank wins.
func (t Tier) Rank() int {
	switch t {
	case TierGovernment:
		return 4
	case TierFinancial:
		return 3
	case TierThirdParty:
		return 2
	case TierPersonal:
		return 1
	default:
		return 0
	}
}

func (t Tier) Valid() bool {
	_, ok := tierNames[t]
	return ok
}

// ParseTier resolves a tier's wire name (as produced by String) back to
// its Tier value, the inverse conversion recovery snapshots need to
// restore an artifact's typed fields from their YAML-serialized names.
func ParseTier(name string) (Tier, error) {
	if name == TierUnspecified.String() {
		return TierUnspecified, nil
	}
	for t, n := range tierNames {
		if n == name {
			return t, nil
		}
	}
	return TierUnspecified, fmt.Errorf("tier %q: %w", name, ledgererr.ErrUnknownTier)
}

// AuthenticationMethod contributes a fixed bonus to an artifact's effective
// weight and breaks ties in the AUTHENTICATION resolution rule.
type AuthenticationMethod int32

const (
	AuthUnspecified AuthenticationMethod = iota
	AuthDigitalSeal
	AuthNotarization
	AuthDigitalSignature
	AuthCertification
	AuthStamp
	AuthMetadata
	AuthWitness
	AuthNone
)

var authNames = map[AuthenticationMethod]string{
	AuthDigitalSeal:      "DIGITAL_SEAL",
	AuthNotarization:     "NOTARIZATION",
	AuthDigitalSignature: "DIGITAL_SIGNATURE",
	AuthCertification:    "CERTIFICATION",
	AuthStamp:            "STAMP",
	AuthMetadata:         "METADATA",
	AuthWitness:          "WITNESS",
	AuthNone:             "NONE",
}

func (a AuthenticationMethod) String() string {
	if name, ok := authNames[a]; ok {
		return name
	}
	return "UNSPECIFIED"
}

func (a AuthenticationMethod) Valid() bool {
	_, ok := authNames[a]
	return ok
}

// ParseAuthenticationMethod resolves an authentication method's wire name
// back to its AuthenticationMethod value; see ParseTier.
func ParseAuthenticationMethod(name string) (AuthenticationMethod, error) {
	if name == AuthUnspecified.String() {
		return AuthUnspecified, nil
	}
	for m, n := range authNames {
		if n == name {
			return m, nil
		}
	}
	return AuthUnspecified, fmt.Errorf("authentication_method %q: %w", name, ledgererr.ErrUnknownAuth)
}

// Bonus returns the additive effective-weight bonus for a.
func (a AuthenticationMethod) Bonus() float64 {
	switch a {
	case AuthDigitalSeal, AuthNotarization:
		return 0.10
	case AuthDigitalSignature, AuthCertification:
		return 0.08
	case AuthStamp:
		return 0.05
	case AuthMetadata, AuthWitness:
		return 0.03
	default:
		return 0.0
	}
}

// Rank orders authentication methods for the AUTHENTICATION resolution
// rule: SEAL > NOTARIZATION > DIGITAL_SIGNATURE > CERTIFICATION > STAMP >
// NONE. METADATA and WITNESS are treated as weaker than STAMP but stronger
// than NONE, matching their weight bonus ordering.
func (a AuthenticationMethod) Rank() int {
	switch a {
	case AuthDigitalSeal:
		return 6
	case AuthNotarization:
		return 5
	case AuthDigitalSignature:
		return 4
	case AuthCertification:
		return 3
	case AuthStamp:
		return 2
	case AuthMetadata, AuthWitness:
		return 1
	default:
		return 0
	}
}

// Artifact is a candidate or committed piece of evidence. BlockIndex,
// MintedAt, and MinerID are only populated once committed.
type Artifact struct {
	ID                   string
	ContentHash          []byte
	Tier                 Tier
	Weight               float64
	AuthenticationMethod AuthenticationMethod
	Statement            string
	CaseID               string
	Type                 string
	Timestamp            time.Time
	CorroboratingIDs     []string
	Metadata             map[string]string

	// AdverseAdmission and Contemporaneous feed the contradiction engine's
	// ADVERSE_ADMISSION and CONTEMPORANEOUS resolution rules; they are
	// supplied by the caller as part of the candidate, not inferred.
	AdverseAdmission bool
	Contemporaneous  bool

	// Populated only once committed.
	BlockIndex int64
	MintedAt   time.Time
	MinerID    string
}

// EffectiveWeight returns Weight plus the authentication bonus, clamped to
// 1.0.
func (a *Artifact) EffectiveWeight() float64 {
	w := a.Weight + a.AuthenticationMethod.Bonus()
	if w > 1.0 {
		return 1.0
	}
	return w
}

// CanonicalFields returns the ordered, length-framed field set hashed to
// produce ContentHash and to include the artifact as a Merkle leaf.
// Numeric precision is fixed by formatting Weight to a stable number of
// decimal digits, and the timestamp is serialized at second precision.
func (a *Artifact) CanonicalFields() ledgerhash.Fields {
	corrob := append([]string(nil), a.CorroboratingIDs...)
	sort.Strings(corrob)
	var corrobBytes []byte
	for _, id := range corrob {
		corrobBytes = append(corrobBytes, []byte(id+"\x00")...)
	}

	metaKeys := make([]string, 0, len(a.Metadata))
	for k := range a.Metadata {
		metaKeys = append(metaKeys, k)
	}
	sort.Strings(metaKeys)
	var metaBytes []byte
	for _, k := range metaKeys {
		metaBytes = append(metaBytes, []byte(k+"="+a.Metadata[k]+"\x00")...)
	}

	return ledgerhash.Fields{
		"id":            []byte(a.ID),
		"tier":          []byte(a.Tier.String()),
		"weight":        []byte(fmt.Sprintf("%.6f", a.Weight)),
		"auth":          []byte(a.AuthenticationMethod.String()),
		"statement":     []byte(a.Statement),
		"case_id":       []byte(a.CaseID),
		"type":          []byte(a.Type),
		"timestamp":     []byte(a.Timestamp.UTC().Truncate(time.Second).Format(time.RFC3339)),
		"corroborating": corrobBytes,
		"metadata":      metaBytes,
	}
}

// ComputeContentHash derives the content digest from the artifact's
// canonical fields using alg.
func (a *Artifact) ComputeContentHash(alg ledgerhash.Algorithm) []byte {
	return ledgerhash.Sum(alg, ledgerhash.Encode(a.CanonicalFields()))
}

// VerifyContentHash reports whether a.ContentHash matches the digest of
// a's current canonical fields under alg, satisfying the round-trip
// hashing property.
func (a *Artifact) VerifyContentHash(alg ledgerhash.Algorithm) bool {
	return ledgerhash.Equal(a.ContentHash, a.ComputeContentHash(alg))
}

// Bounds on the free-form fields a caller controls.
const (
	MaxStatementLength     = 1000
	MaxMetadataEntries     = 64
	MaxMetadataKeyLength   = 128
	MaxMetadataValueLength = 1024
)

// ValidateShape checks structural well-formedness: required fields
// present, tier and authentication method known, weight in range, id a
// valid UUID, content hash a well-formed 32-byte digest, statement and
// metadata within bounds. It does not check uniqueness or corroboration
// resolution, which require chain state and are the validator's
// responsibility.
func (a *Artifact) ValidateShape() error {
	if a.ID == "" {
		return fmt.Errorf("id: %w", ledgererr.ErrMissingField)
	}
	if _, err := uuid.Parse(a.ID); err != nil {
		return fmt.Errorf("id %q: %w", a.ID, ledgererr.ErrInvalidUUID)
	}
	if !a.Tier.Valid() {
		return fmt.Errorf("tier %v: %w", a.Tier, ledgererr.ErrUnknownTier)
	}
	if !a.AuthenticationMethod.Valid() {
		return fmt.Errorf("authentication_method %v: %w", a.AuthenticationMethod, ledgererr.ErrUnknownAuth)
	}
	if a.Weight < 0.0 || a.Weight > 1.0 {
		return fmt.Errorf("weight %f: %w", a.Weight, ledgererr.ErrWeightOutOfRange)
	}
	if len(a.ContentHash) != 32 {
		return fmt.Errorf("content_hash length %d: %w", len(a.ContentHash), ledgererr.ErrInvalidDigest)
	}
	if a.Statement == "" {
		return fmt.Errorf("statement: %w", ledgererr.ErrMissingField)
	}
	if len(a.Statement) > MaxStatementLength {
		return fmt.Errorf("statement length %d: %w", len(a.Statement), ledgererr.ErrStringTooLong)
	}
	if a.CaseID == "" {
		return fmt.Errorf("case_id: %w", ledgererr.ErrMissingField)
	}
	if a.Timestamp.IsZero() {
		return fmt.Errorf("timestamp: %w", ledgererr.ErrMissingField)
	}
	for _, id := range a.CorroboratingIDs {
		if _, err := uuid.Parse(id); err != nil {
			return fmt.Errorf("corroborating_ids contains %q: %w", id, ledgererr.ErrInvalidUUID)
		}
	}
	if len(a.Metadata) > MaxMetadataEntries {
		return fmt.Errorf("metadata has %d entries: %w", len(a.Metadata), ledgererr.ErrTooManyItems)
	}
	for k, v := range a.Metadata {
		if k == "" {
			return fmt.Errorf("metadata key: %w", ledgererr.ErrStringTooShort)
		}
		if len(k) > MaxMetadataKeyLength {
			return fmt.Errorf("metadata key %q: %w", k, ledgererr.ErrStringTooLong)
		}
		if len(v) > MaxMetadataValueLength {
			return fmt.Errorf("metadata value for %q: %w", k, ledgererr.ErrStringTooLong)
		}
	}
	return nil
}
