package mocks

import (
	"context"
	"errors"

	kdb "github.com/felafax/split/pkg/db"
)

type ExperimentInterface struct {
	Impl struct {
		Create     func(ctx context.Context, spec kdb.ExperimentSpec) (string, error)
		Get        func(ctx context.Context, experimentIds []string) (map[string]kdb.Experiment, error)
		Find       func(ctx context.Context, query kdb.ExperimentFindQuery) ([]string, error)
		AddVariant func(ctx context.Context, experimentId string, spec kdb.VariantSpec) (string, error)
		SetStatus  func(ctx context.Context, experimentId string, newStatus kdb.ExperimentStatus) error
		PickToStop func(ctx context.Context, cursor kdb.StopCursor, fn func(kdb.Experiment, []kdb.Result) (bool, error)) (kdb.StopCursor, bool, error)
	}

	Calls struct {
		Create     CallLog[kdb.ExperimentSpec]
		Get        CallLog[[]string]
		Find       CallLog[kdb.ExperimentFindQuery]
		AddVariant CallLog[struct {
			ExperimentId string
			Spec         kdb.VariantSpec
		}]
		SetStatus CallLog[struct {
			ExperimentId string
			NewStatus    kdb.ExperimentStatus
		}]
		PickToStop CallLog[kdb.StopCursor]
	}
}

func NewExperimentInterface() *ExperimentInterface {
	return &ExperimentInterface{}
}

var _ kdb.ExperimentInterface = &ExperimentInterface{}

func (m *ExperimentInterface) Create(ctx context.Context, spec kdb.ExperimentSpec) (string, error) {
	m.Calls.Create = append(m.Calls.Create, spec)
	if m.Impl.Create != nil {
		return m.Impl.Create(ctx, spec)
	}

	panic(errors.New("it should not be called"))
}

func (m *ExperimentInterface) Get(ctx context.Context, experimentIds []string) (map[string]kdb.Experiment, error) {
	m.Calls.Get = append(m.Calls.Get, experimentIds)
	if m.Impl.Get != nil {
		return m.Impl.Get(ctx, experimentIds)
	}

	panic(errors.New("it should not be called"))
}

func (m *ExperimentInterface) Find(ctx context.Context, query kdb.ExperimentFindQuery) ([]string, error) {
	m.Calls.Find = append(m.Calls.Find, query)
	if m.Impl.Find != nil {
		return m.Impl.Find(ctx, query)
	}

	panic(errors.New("it should not be called"))
}

func (m *ExperimentInterface) AddVariant(ctx context.Context, experimentId string, spec kdb.VariantSpec) (string, error) {
	m.Calls.AddVariant = append(m.Calls.AddVariant, struct {
		ExperimentId string
		Spec         kdb.VariantSpec
	}{
		ExperimentId: experimentId,
		Spec:         spec,
	})
	if m.Impl.AddVariant != nil {
		return m.Impl.AddVariant(ctx, experimentId, spec)
	}

	panic(errors.New("it should not be called"))
}

func (m *ExperimentInterface) SetStatus(ctx context.Context, experimentId string, newStatus kdb.ExperimentStatus) error {
	m.Calls.SetStatus = append(m.Calls.SetStatus, struct {
		ExperimentId string
		NewStatus    kdb.ExperimentStatus
	}{
		ExperimentId: experimentId,
		NewStatus:    newStatus,
	})
	if m.Impl.SetStatus != nil {
		return m.Impl.SetStatus(ctx, experimentId, newStatus)
	}

	panic(errors.New("it should not be called"))
}

func (m *ExperimentInterface) PickToStop(
	ctx context.Context,
	cursor kdb.StopCursor,
	fn func(kdb.Experiment, []kdb.Result) (bool, error),
) (kdb.StopCursor, bool, error) {
	m.Calls.PickToStop = append(m.Calls.PickToStop, cursor)
	if m.Impl.PickToStop != nil {
		return m.Impl.PickToStop(ctx, cursor, fn)
	}

	panic(errors.New("it should not be called"))
}
