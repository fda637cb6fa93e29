package db

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/felafax/split/pkg/utils/cmp"
)

// ParticipantKey identifies a participant within an experiment,
// for assignment stickiness.
//
// A user id takes precedence over a session id when both are given.
// The prefixes keep user ids and session ids from colliding.
func ParticipantKey(userId string, sessionId string) (string, error) {
	if userId != "" {
		return "user/" + userId, nil
	}
	if sessionId != "" {
		return "session/" + sessionId, nil
	}
	return "", ErrDeficientSpec
}

// Assignment is a sticky (experiment, participant) -> variant binding.
//
// At most one Assignment exists per (experiment, participant key);
// the store enforces this with a uniqueness constraint.
type Assignment struct {
	ExperimentId   string
	ParticipantKey string
	VariantId      string
	AssignedAt     time.Time
}

// Result is a single participant outcome record. Append-only.
type Result struct {
	Id             string
	ExperimentId   string
	VariantId      string
	ParticipantKey *string

	Metrics   json.RawMessage
	Converted bool
	Revenue   float64
	Metadata  json.RawMessage

	// control flag of the variant this result belongs to,
	// denormalized for statistics.
	VariantIsControl bool

	RecordedAt time.Time
}

func (r Result) Equal(other Result) bool {
	return r.Id == other.Id &&
		r.ExperimentId == other.ExperimentId &&
		r.VariantId == other.VariantId &&
		cmp.PEqEq(r.ParticipantKey, other.ParticipantKey) &&
		bytes.Equal(r.Metrics, other.Metrics) &&
		r.Converted == other.Converted &&
		r.Revenue == other.Revenue &&
		bytes.Equal(r.Metadata, other.Metadata) &&
		r.VariantIsControl == other.VariantIsControl &&
		r.RecordedAt.Equal(other.RecordedAt)
}

// ResultSpec is what a caller provides to record a result.
//
// The (experiment, variant) association is caller-trusted: the store
// verifies both exist, but not that the variant was the one assigned.
type ResultSpec struct {
	ExperimentId string
	VariantId    string

	// either of them, or both empty for anonymous bulk imports.
	UserId    string
	SessionId string

	Metrics   json.RawMessage
	Converted bool
	Revenue   float64
	Metadata  json.RawMessage
}

type AssignmentInterface interface {
	// Assign routes a participant to a variant of the experiment.
	//
	// When an Assignment already exists for (experimentId, participantKey),
	// its variant is returned unchanged (stickiness). Otherwise a variant is
	// drawn at random, each variant weighted by Weight relative to the total,
	// and the binding is persisted atomically: concurrent calls for the same
	// new participant collapse to a single winner.
	//
	// Returns:
	//
	// - Variant: the variant the participant is routed to
	//
	// - error: ErrMissing (no such experiment, or it has no variants),
	// ErrNotRunning (experiment is not in Running status)
	Assign(ctx context.Context, experimentId string, participantKey string) (Variant, error)

	// Record appends a result row. Results are immutable once created.
	//
	// Returns:
	//
	// - string: id of the new result
	//
	// - error: ErrMissing (experiment or variant does not exist)
	Record(ctx context.Context, spec ResultSpec) (string, error)

	// ListResults returns all results of an experiment, newest first.
	//
	// Returns ErrMissing when the experiment does not exist.
	ListResults(ctx context.Context, experimentId string) ([]Result, error)
}
