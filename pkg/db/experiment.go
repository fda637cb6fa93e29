package db

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/felafax/split/pkg/utils/cmp"
)

type ExperimentStatus string

const (
	// The experiment is being configured. Variants can be attached.
	Draft ExperimentStatus = "draft"

	// The experiment accepts assignments and results.
	Running ExperimentStatus = "running"

	// The experiment is suspended. It can go back to Running.
	Paused ExperimentStatus = "paused"

	// The experiment has finished. Terminal.
	Completed ExperimentStatus = "completed"

	// The experiment was discarded before finishing. Terminal.
	Cancelled ExperimentStatus = "cancelled"
)

func (es ExperimentStatus) String() string {
	return string(es)
}

func AsExperimentStatus(status string) (ExperimentStatus, error) {
	switch status {
	case string(Draft):
		return Draft, nil
	case string(Running):
		return Running, nil
	case string(Paused):
		return Paused, nil
	case string(Completed):
		return Completed, nil
	case string(Cancelled):
		return Cancelled, nil
	default:
		return "", fmt.Errorf("'%s' is not ExperimentStatus", status)
	}
}

func (es ExperimentStatus) IsTerminal() bool {
	switch es {
	case Completed, Cancelled:
		return true
	default:
		return false
	}
}

// statuses in which an experiment accepts new variants.
func EditableStatuses() []ExperimentStatus {
	return []ExperimentStatus{Draft, Paused}
}

// transition table: target status -> statuses allowed as source.
//
// Transitions are one-directional except Running <-> Paused.
var statusTransitions = map[ExperimentStatus][]ExperimentStatus{
	Running:   {Draft, Paused},
	Paused:    {Running},
	Completed: {Draft, Running, Paused},
	Cancelled: {Draft, Running, Paused},
}

// SourcesOf returns statuses from which an experiment may transit to `to`.
// Empty for statuses nothing can transit to (Draft).
func SourcesOf(to ExperimentStatus) []ExperimentStatus {
	return statusTransitions[to]
}

func (es ExperimentStatus) CanTransitTo(to ExperimentStatus) bool {
	for _, from := range statusTransitions[to] {
		if es == from {
			return true
		}
	}
	return false
}

type ExperimentBody struct {
	Id          string
	OwnerId     string
	Name        string
	Description string

	// experiment category, e.g. "model_comparison". Free-form, caller defined.
	Type string

	// optimization target, e.g. "conversion". Free-form, caller defined.
	Goal string

	// opaque configuration & metrics definition documents.
	Config  json.RawMessage
	Metrics json.RawMessage

	// stopping configuration. nil = rule disabled.
	DurationDays *int
	SampleSize   *int

	TrafficSplit      float64
	SignificanceLevel float64

	Status ExperimentStatus

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time

	// optional scheduling window
	BeginAt *time.Time
	EndAt   *time.Time
}

func (eb ExperimentBody) Equal(other ExperimentBody) bool {
	return eb.Id == other.Id &&
		eb.OwnerId == other.OwnerId &&
		eb.Name == other.Name &&
		eb.Description == other.Description &&
		eb.Type == other.Type &&
		eb.Goal == other.Goal &&
		bytes.Equal(eb.Config, other.Config) &&
		bytes.Equal(eb.Metrics, other.Metrics) &&
		cmp.PEqEq(eb.DurationDays, other.DurationDays) &&
		cmp.PEqEq(eb.SampleSize, other.SampleSize) &&
		eb.TrafficSplit == other.TrafficSplit &&
		eb.SignificanceLevel == other.SignificanceLevel &&
		eb.Status == other.Status &&
		eb.CreatedAt.Equal(other.CreatedAt) &&
		cmp.PEqualWith(eb.StartedAt, other.StartedAt, time.Time.Equal) &&
		cmp.PEqualWith(eb.CompletedAt, other.CompletedAt, time.Time.Equal) &&
		cmp.PEqualWith(eb.BeginAt, other.BeginAt, time.Time.Equal) &&
		cmp.PEqualWith(eb.EndAt, other.EndAt, time.Time.Equal)
}

type Experiment struct {
	ExperimentBody

	// variants in assignment order.
	Variants []Variant
}

func (e Experiment) Equal(other Experiment) bool {
	return e.ExperimentBody.Equal(other.ExperimentBody) &&
		cmp.SliceEqWith(e.Variants, other.Variants, Variant.Equal)
}

// ExperimentSpec is what a caller provides to create an experiment.
type ExperimentSpec struct {
	OwnerId     string
	Name        string
	Description string
	Type        string
	Goal        string
	Config      json.RawMessage
	Metrics     json.RawMessage

	DurationDays *int
	SampleSize   *int

	// nil means default (0.5)
	TrafficSplit *float64

	// nil means default (0.05)
	SignificanceLevel *float64

	BeginAt *time.Time
	EndAt   *time.Time
}

const (
	DefaultTrafficSplit      = 0.5
	DefaultSignificanceLevel = 0.05
)

type ExperimentFindQuery struct {
	OwnerId []string
	Status  []ExperimentStatus
}

func (q ExperimentFindQuery) Equal(other ExperimentFindQuery) bool {
	return cmp.SliceEq(q.OwnerId, other.OwnerId) &&
		cmp.SliceEq(q.Status, other.Status)
}

// StopCursor tracks the position of the auto-stop sweep over running experiments.
type StopCursor struct {
	// experiment id picked last. empty = sweep from the beginning.
	Head string
}

type ExperimentInterface interface {
	// Create registers a new experiment in Draft status.
	//
	// Returns:
	//
	// - string: id of the new experiment
	//
	// - error: ErrDeficientSpec when name is empty, traffic split is out of
	// (0, 1], significance level is out of (0, 1), or weights/limits are negative.
	Create(ctx context.Context, spec ExperimentSpec) (string, error)

	// Get experiments with their variants, indexed by experiment id.
	// Ids not found are simply omitted from the map.
	Get(ctx context.Context, experimentIds []string) (map[string]Experiment, error)

	// Find experiment ids matching the query, ordered by creation time.
	// Empty query fields match everything.
	Find(ctx context.Context, query ExperimentFindQuery) ([]string, error)

	// AddVariant attaches a variant to an experiment.
	//
	// Returns:
	//
	// - string: id of the new variant
	//
	// - error: ErrMissing (no such experiment),
	// ErrNotEditable (experiment is not draft nor paused),
	// ErrDeficientSpec (empty name or negative weight)
	AddVariant(ctx context.Context, experimentId string, spec VariantSpec) (string, error)

	// SetStatus transits an experiment to newStatus, guarded by the
	// transition table (SourcesOf).
	//
	// Starting an experiment for the first time records StartedAt;
	// completing or cancelling records CompletedAt.
	//
	// Returns:
	//
	// - error: ErrMissing (no such experiment),
	// ErrInvalidStatusChanging (current status may not transit to newStatus)
	SetStatus(ctx context.Context, experimentId string, newStatus ExperimentStatus) error

	// PickToStop picks the next running experiment after the cursor, locks it,
	// and calls fn with the experiment and all its results. When fn returns
	// true, the experiment transits to Completed.
	//
	// Returns:
	//
	// - StopCursor: cursor pointing at the picked experiment.
	// Unchanged when nothing could be picked.
	//
	// - bool: true when an experiment was picked.
	//
	// - error
	PickToStop(
		ctx context.Context,
		cursor StopCursor,
		fn func(Experiment, []Result) (bool, error),
	) (StopCursor, bool, error)
}
