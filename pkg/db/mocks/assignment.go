package mocks

import (
	"context"
	"errors"

	kdb "github.com/felafax/split/pkg/db"
)

type AssignmentInterface struct {
	Impl struct {
		Assign      func(ctx context.Context, experimentId string, participantKey string) (kdb.Variant, error)
		Record      func(ctx context.Context, spec kdb.ResultSpec) (string, error)
		ListResults func(ctx context.Context, experimentId string) ([]kdb.Result, error)
	}

	Calls struct {
		Assign CallLog[struct {
			ExperimentId   string
			ParticipantKey string
		}]
		Record      CallLog[kdb.ResultSpec]
		ListResults CallLog[string]
	}
}

func NewAssignmentInterface() *AssignmentInterface {
	return &AssignmentInterface{}
}

var _ kdb.AssignmentInterface = &AssignmentInterface{}

func (m *AssignmentInterface) Assign(ctx context.Context, experimentId string, participantKey string) (kdb.Variant, error) {
	m.Calls.Assign = append(m.Calls.Assign, struct {
		ExperimentId   string
		ParticipantKey string
	}{
		ExperimentId:   experimentId,
		ParticipantKey: participantKey,
	})
	if m.Impl.Assign != nil {
		return m.Impl.Assign(ctx, experimentId, participantKey)
	}

	panic(errors.New("it should not be called"))
}

func (m *AssignmentInterface) Record(ctx context.Context, spec kdb.ResultSpec) (string, error) {
	m.Calls.Record = append(m.Calls.Record, spec)
	if m.Impl.Record != nil {
		return m.Impl.Record(ctx, spec)
	}

	panic(errors.New("it should not be called"))
}

func (m *AssignmentInterface) ListResults(ctx context.Context, experimentId string) ([]kdb.Result, error) {
	m.Calls.ListResults = append(m.Calls.ListResults, experimentId)
	if m.Impl.ListResults != nil {
		return m.Impl.ListResults(ctx, experimentId)
	}

	panic(errors.New("it should not be called"))
}
