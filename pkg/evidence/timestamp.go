package evidence

import (
	"time"

	"google.golang.org/protobuf/types/known/timestamppb"
)

// TimestampProto renders a.Timestamp in the wire format external
// collaborators (intake submitters, proof requesters) exchange with the
// ledger; the domain type itself keeps a plain time.Time for hashing and
// arithmetic.
func (a *Artifact) TimestampProto() *timestamppb.Timestamp {
	return timestamppb.New(a.Timestamp)
}

// MintedAtProto renders a.MintedAt the same way, valid only once the
// artifact has been committed.
func (a *Artifact) MintedAtProto() *timestamppb.Timestamp {
	return timestamppb.New(a.MintedAt)
}

// SetTimestampFromProto populates a.Timestamp from an incoming wire
// timestamp, the inverse of TimestampProto.
func (a *Artifact) SetTimestampFromProto(ts *timestamppb.Timestamp) {
	a.Timestamp = tsOrZero(ts)
}

func tsOrZero(ts *timestamppb.Timestamp) time.Time {
	if ts == nil {
		return time.Time{}
	}
	return ts.AsTime()
}
