package experiments

import (
	"bytes"
	"encoding/json"
	"time"

	kdb "github.com/felafax/split/pkg/db"
	"github.com/felafax/split/pkg/utils/cmp"
	"github.com/felafax/split/pkg/utils/pointer"
	"github.com/felafax/split/pkg/utils/rfctime"
	"github.com/felafax/split/pkg/utils/slices"
)

// ExperimentSpec is the request body to create an experiment.
type ExperimentSpec struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type,omitempty"`
	Goal        string `json:"goal,omitempty"`

	Config  json.RawMessage `json:"config,omitempty"`
	Metrics json.RawMessage `json:"metrics,omitempty"`

	DurationDays *int `json:"durationDays,omitempty"`
	SampleSize   *int `json:"sampleSize,omitempty"`

	TrafficSplit      *float64 `json:"trafficSplit,omitempty"`
	SignificanceLevel *float64 `json:"significanceLevel,omitempty"`

	BeginAt *rfctime.RFC3339 `json:"beginAt,omitempty"`
	EndAt   *rfctime.RFC3339 `json:"endAt,omitempty"`
}

// VariantSpec is the request body to attach a variant to an experiment.
type VariantSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	ModelRef    *string         `json:"modelRef,omitempty"`
	Config      json.RawMessage `json:"config,omitempty"`
	Weight      *float64        `json:"weight,omitempty"`
	IsControl   bool            `json:"isControl,omitempty"`
}

type Variant struct {
	VariantId   string          `json:"variantId"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	ModelRef    *string         `json:"modelRef,omitempty"`
	Config      json.RawMessage `json:"config,omitempty"`
	Weight      float64         `json:"weight"`
	IsControl   bool            `json:"isControl"`
	CreatedAt   rfctime.RFC3339 `json:"createdAt"`
}

func ComposeVariant(v kdb.Variant) Variant {
	return Variant{
		VariantId:   v.Id,
		Name:        v.Name,
		Description: v.Description,
		ModelRef:    v.ModelRef,
		Config:      v.Config,
		Weight:      v.Weight,
		IsControl:   v.IsControl,
		CreatedAt:   rfctime.RFC3339(v.CreatedAt),
	}
}

func (v *Variant) Equal(o *Variant) bool {
	if v == nil || o == nil {
		return (v == nil) && (o == nil)
	}

	return v.VariantId == o.VariantId &&
		v.Name == o.Name &&
		v.Description == o.Description &&
		cmp.PEqEq(v.ModelRef, o.ModelRef) &&
		bytes.Equal(v.Config, o.Config) &&
		v.Weight == o.Weight &&
		v.IsControl == o.IsControl &&
		v.CreatedAt.Equal(&o.CreatedAt)
}

type Summary struct {
	ExperimentId string           `json:"experimentId"`
	OwnerId      string           `json:"ownerId,omitempty"`
	Name         string           `json:"name"`
	Type         string           `json:"type,omitempty"`
	Status       string           `json:"status"`
	CreatedAt    rfctime.RFC3339  `json:"createdAt"`
	StartedAt    *rfctime.RFC3339 `json:"startedAt,omitempty"`
	CompletedAt  *rfctime.RFC3339 `json:"completedAt,omitempty"`
}

func ComposeSummary(e kdb.ExperimentBody) Summary {
	return Summary{
		ExperimentId: e.Id,
		OwnerId:      e.OwnerId,
		Name:         e.Name,
		Type:         e.Type,
		Status:       string(e.Status),
		CreatedAt:    rfctime.RFC3339(e.CreatedAt),
		StartedAt:    rfctime.Pointer(e.StartedAt),
		CompletedAt:  rfctime.Pointer(e.CompletedAt),
	}
}

func (s *Summary) Equal(o *Summary) bool {
	if s == nil || o == nil {
		return (s == nil) && (o == nil)
	}

	return s.ExperimentId == o.ExperimentId &&
		s.OwnerId == o.OwnerId &&
		s.Name == o.Name &&
		s.Type == o.Type &&
		s.Status == o.Status &&
		s.CreatedAt.Equal(&o.CreatedAt) &&
		s.StartedAt.Equal(o.StartedAt) &&
		s.CompletedAt.Equal(o.CompletedAt)
}

type Detail struct {
	Summary
	Description string `json:"description,omitempty"`
	Goal        string `json:"goal,omitempty"`

	Config  json.RawMessage `json:"config,omitempty"`
	Metrics json.RawMessage `json:"metrics,omitempty"`

	DurationDays *int `json:"durationDays,omitempty"`
	SampleSize   *int `json:"sampleSize,omitempty"`

	TrafficSplit      float64 `json:"trafficSplit"`
	SignificanceLevel float64 `json:"significanceLevel"`

	BeginAt *rfctime.RFC3339 `json:"beginAt,omitempty"`
	EndAt   *rfctime.RFC3339 `json:"endAt,omitempty"`

	Variants []Variant `json:"variants"`

	// latest results first. Only a recent window, not the full history.
	RecentResults []Result `json:"recentResults,omitempty"`
}

func ComposeDetail(e kdb.Experiment) Detail {
	return Detail{
		Summary:           ComposeSummary(e.ExperimentBody),
		Description:       e.Description,
		Goal:              e.Goal,
		Config:            e.Config,
		Metrics:           e.Metrics,
		DurationDays:      e.DurationDays,
		SampleSize:        e.SampleSize,
		TrafficSplit:      e.TrafficSplit,
		SignificanceLevel: e.SignificanceLevel,
		BeginAt:           rfctime.Pointer(e.BeginAt),
		EndAt:             rfctime.Pointer(e.EndAt),
		Variants:          slices.Map(e.Variants, ComposeVariant),
	}
}

func (d *Detail) Equal(o *Detail) bool {
	if d == nil || o == nil {
		return (d == nil) && (o == nil)
	}

	return d.Summary.Equal(&o.Summary) &&
		d.Description == o.Description &&
		d.Goal == o.Goal &&
		bytes.Equal(d.Config, o.Config) &&
		bytes.Equal(d.Metrics, o.Metrics) &&
		cmp.PEqEq(d.DurationDays, o.DurationDays) &&
		cmp.PEqEq(d.SampleSize, o.SampleSize) &&
		d.TrafficSplit == o.TrafficSplit &&
		d.SignificanceLevel == o.SignificanceLevel &&
		d.BeginAt.Equal(o.BeginAt) &&
		d.EndAt.Equal(o.EndAt) &&
		cmp.SliceEqWith(
			d.Variants, o.Variants,
			func(a, b Variant) bool { return a.Equal(&b) },
		) &&
		cmp.SliceEqWith(
			d.RecentResults, o.RecentResults,
			func(a, b Result) bool { return a.Equal(&b) },
		)
}

// AssignmentRequest is the request body to route a participant.
//
// At least one of UserId and SessionId is required; UserId takes precedence.
type AssignmentRequest struct {
	UserId    string `json:"userId,omitempty"`
	SessionId string `json:"sessionId,omitempty"`
}

type Assignment struct {
	ExperimentId string  `json:"experimentId"`
	Variant      Variant `json:"variant"`
}

func (a *Assignment) Equal(o *Assignment) bool {
	if a == nil || o == nil {
		return (a == nil) && (o == nil)
	}
	return a.ExperimentId == o.ExperimentId && a.Variant.Equal(&o.Variant)
}

// ResultSpec is the request body to record an outcome.
type ResultSpec struct {
	VariantId string `json:"variantId"`

	UserId    string `json:"userId,omitempty"`
	SessionId string `json:"sessionId,omitempty"`

	Metrics   json.RawMessage `json:"metrics,omitempty"`
	Converted bool            `json:"converted,omitempty"`
	Revenue   float64         `json:"revenue,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

type Result struct {
	ResultId       string          `json:"resultId"`
	ExperimentId   string          `json:"experimentId"`
	VariantId      string          `json:"variantId"`
	ParticipantKey *string         `json:"participantKey,omitempty"`
	Metrics        json.RawMessage `json:"metrics,omitempty"`
	Converted      bool            `json:"converted"`
	Revenue        float64         `json:"revenue"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	RecordedAt     rfctime.RFC3339 `json:"recordedAt"`
}

func ComposeResult(r kdb.Result) Result {
	return Result{
		ResultId:       r.Id,
		ExperimentId:   r.ExperimentId,
		VariantId:      r.VariantId,
		ParticipantKey: r.ParticipantKey,
		Metrics:        r.Metrics,
		Converted:      r.Converted,
		Revenue:        r.Revenue,
		Metadata:       r.Metadata,
		RecordedAt:     rfctime.RFC3339(r.RecordedAt),
	}
}

func (r *Result) Equal(o *Result) bool {
	if r == nil || o == nil {
		return (r == nil) && (o == nil)
	}

	return r.ResultId == o.ResultId &&
		r.ExperimentId == o.ExperimentId &&
		r.VariantId == o.VariantId &&
		cmp.PEqEq(r.ParticipantKey, o.ParticipantKey) &&
		bytes.Equal(r.Metrics, o.Metrics) &&
		r.Converted == o.Converted &&
		r.Revenue == o.Revenue &&
		bytes.Equal(r.Metadata, o.Metadata) &&
		r.RecordedAt.Equal(&o.RecordedAt)
}

// ToDBSpec converts the API spec into the storage spec, filling the owner.
func (s ExperimentSpec) ToDBSpec(ownerId string) kdb.ExperimentSpec {
	var beginAt, endAt = timeOrNil(s.BeginAt), timeOrNil(s.EndAt)
	return kdb.ExperimentSpec{
		OwnerId:           ownerId,
		Name:              s.Name,
		Description:       s.Description,
		Type:              s.Type,
		Goal:              s.Goal,
		Config:            s.Config,
		Metrics:           s.Metrics,
		DurationDays:      s.DurationDays,
		SampleSize:        s.SampleSize,
		TrafficSplit:      s.TrafficSplit,
		SignificanceLevel: s.SignificanceLevel,
		BeginAt:           beginAt,
		EndAt:             endAt,
	}
}

func (s VariantSpec) ToDBSpec() kdb.VariantSpec {
	return kdb.VariantSpec{
		Name:        s.Name,
		Description: s.Description,
		ModelRef:    s.ModelRef,
		Config:      s.Config,
		Weight:      s.Weight,
		IsControl:   s.IsControl,
	}
}

func timeOrNil(t *rfctime.RFC3339) *time.Time {
	if t == nil {
		return nil
	}
	return pointer.Ref(t.Time())
}
