package db

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/felafax/split/pkg/utils/cmp"
)

type Variant struct {
	Id           string
	ExperimentId string
	Name         string
	Description  string

	// reference to a model resource served by this variant, if any.
	ModelRef *string

	Config json.RawMessage

	// relative probability mass. Not required to sum to 1 across the
	// experiment; normalized at assignment time.
	Weight float64

	// conventionally at most one variant per experiment is the control.
	// Exclusivity is not enforced here.
	IsControl bool

	CreatedAt time.Time
}

func (v Variant) Equal(other Variant) bool {
	return v.Id == other.Id &&
		v.ExperimentId == other.ExperimentId &&
		v.Name == other.Name &&
		v.Description == other.Description &&
		cmp.PEqEq(v.ModelRef, other.ModelRef) &&
		bytes.Equal(v.Config, other.Config) &&
		v.Weight == other.Weight &&
		v.IsControl == other.IsControl &&
		v.CreatedAt.Equal(other.CreatedAt)
}

// VariantSpec is what a caller provides to attach a variant.
type VariantSpec struct {
	Name        string
	Description string
	ModelRef    *string
	Config      json.RawMessage

	// nil means default (0.5)
	Weight *float64

	IsControl bool
}

const DefaultVariantWeight = 0.5
