package experiment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"

	kdb "github.com/felafax/split/pkg/db"
	kpgerr "github.com/felafax/split/pkg/db/postgres/errors"
	"github.com/felafax/split/pkg/db/postgres/marshal"
	kpool "github.com/felafax/split/pkg/db/postgres/pool"
	xe "github.com/felafax/split/pkg/errors"
)

// a struct for DB operations related to Experiment
type experimentPG struct { // implements kdb.ExperimentInterface
	// DB connection pool
	pool kpool.Pool

	// id generator for new experiments and variants
	newId func() string
}

type Option func(*experimentPG) *experimentPG

func WithIdGenerator(newId func() string) Option {
	return func(e *experimentPG) *experimentPG {
		e.newId = newId
		return e
	}
}

func New(pool kpool.Pool, options ...Option) *experimentPG {
	e := &experimentPG{
		pool:  pool,
		newId: uuid.NewString,
	}
	for _, o := range options {
		e = o(e)
	}
	return e
}

var _ kdb.ExperimentInterface = &experimentPG{}

func (m *experimentPG) Create(ctx context.Context, spec kdb.ExperimentSpec) (string, error) {
	if spec.Name == "" {
		return "", fmt.Errorf(`%w: "name" is required`, kdb.ErrDeficientSpec)
	}

	trafficSplit := kdb.DefaultTrafficSplit
	if spec.TrafficSplit != nil {
		trafficSplit = *spec.TrafficSplit
	}
	if trafficSplit <= 0 || 1 < trafficSplit {
		return "", fmt.Errorf(
			`%w: "trafficSplit" should be in (0, 1], but %f`,
			kdb.ErrDeficientSpec, trafficSplit,
		)
	}

	significance := kdb.DefaultSignificanceLevel
	if spec.SignificanceLevel != nil {
		significance = *spec.SignificanceLevel
	}
	if significance <= 0 || 1 <= significance {
		return "", fmt.Errorf(
			`%w: "significanceLevel" should be in (0, 1), but %f`,
			kdb.ErrDeficientSpec, significance,
		)
	}

	if spec.DurationDays != nil && *spec.DurationDays < 1 {
		return "", fmt.Errorf(
			`%w: "durationDays" should be positive, but %d`,
			kdb.ErrDeficientSpec, *spec.DurationDays,
		)
	}
	if spec.SampleSize != nil && *spec.SampleSize < 1 {
		return "", fmt.Errorf(
			`%w: "sampleSize" should be positive, but %d`,
			kdb.ErrDeficientSpec, *spec.SampleSize,
		)
	}

	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return "", xe.Wrap(err)
	}
	defer conn.Release()

	experimentId := m.newId()
	if _, err := conn.Exec(
		ctx,
		`
		insert into "experiment" (
			"experiment_id", "owner_id", "name", "description",
			"exp_type", "goal", "config", "metrics",
			"duration_days", "sample_size",
			"traffic_split", "significance_level",
			"status", "begin_at", "end_at"
		) values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		`,
		experimentId, spec.OwnerId, spec.Name, spec.Description,
		spec.Type, spec.Goal, marshal.Blob(spec.Config), marshal.Blob(spec.Metrics),
		spec.DurationDays, spec.SampleSize,
		trafficSplit, significance,
		string(kdb.Draft), spec.BeginAt, spec.EndAt,
	); err != nil {
		return "", xe.Wrap(err)
	}

	return experimentId, nil
}

func (m *experimentPG) Get(ctx context.Context, experimentIds []string) (map[string]kdb.Experiment, error) {
	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	defer conn.Release()

	return getExperiments(ctx, conn, experimentIds)
}

// getExperiments loads experiments with their variants over any Queryer,
// so that it is reusable inside transactions.
func getExperiments(ctx context.Context, q kpool.Queryer, experimentIds []string) (map[string]kdb.Experiment, error) {
	experiments := map[string]kdb.Experiment{}
	{
		rows, err := q.Query(
			ctx,
			`
			select
				"experiment_id", "owner_id", "name", "description",
				"exp_type", "goal", "config", "metrics",
				"duration_days", "sample_size",
				"traffic_split", "significance_level",
				"status", "created_at", "started_at", "completed_at",
				"begin_at", "end_at"
			from "experiment"
			where "experiment_id" = any($1)
			`,
			experimentIds,
		)
		if err != nil {
			return nil, xe.Wrap(err)
		}
		defer rows.Close()

		for rows.Next() {
			var body kdb.ExperimentBody
			var status string
			var config, metrics marshal.Blob
			if err := rows.Scan(
				&body.Id, &body.OwnerId, &body.Name, &body.Description,
				&body.Type, &body.Goal, &config, &metrics,
				&body.DurationDays, &body.SampleSize,
				&body.TrafficSplit, &body.SignificanceLevel,
				&status, &body.CreatedAt, &body.StartedAt, &body.CompletedAt,
				&body.BeginAt, &body.EndAt,
			); err != nil {
				return nil, xe.Wrap(err)
			}
			s, err := kdb.AsExperimentStatus(status)
			if err != nil {
				return nil, xe.Wrap(err)
			}
			body.Status = s
			body.Config = json.RawMessage(config)
			body.Metrics = json.RawMessage(metrics)
			experiments[body.Id] = kdb.Experiment{ExperimentBody: body, Variants: []kdb.Variant{}}
		}
	}

	{
		rows, err := q.Query(
			ctx,
			`
			select
				"variant_id", "experiment_id", "name", "description",
				"model_ref", "config", "weight", "is_control", "created_at"
			from "variant"
			where "experiment_id" = any($1)
			order by "created_at", "variant_id"
			`,
			experimentIds,
		)
		if err != nil {
			return nil, xe.Wrap(err)
		}
		defer rows.Close()

		for rows.Next() {
			var v kdb.Variant
			var config marshal.Blob
			if err := rows.Scan(
				&v.Id, &v.ExperimentId, &v.Name, &v.Description,
				&v.ModelRef, &config, &v.Weight, &v.IsControl, &v.CreatedAt,
			); err != nil {
				return nil, xe.Wrap(err)
			}
			v.Config = json.RawMessage(config)

			e, ok := experiments[v.ExperimentId]
			if !ok {
				continue
			}
			e.Variants = append(e.Variants, v)
			experiments[v.ExperimentId] = e
		}
	}

	return experiments, nil
}

func (m *experimentPG) Find(ctx context.Context, query kdb.ExperimentFindQuery) ([]string, error) {
	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	defer conn.Release()

	statuses := make([]string, 0, len(query.Status))
	for _, s := range query.Status {
		statuses = append(statuses, string(s))
	}

	rows, err := conn.Query(
		ctx,
		`
		select "experiment_id" from "experiment"
		where (cardinality($1::varchar[]) = 0 or "owner_id" = any($1))
			and (cardinality($2::varchar[]) = 0 or "status" = any($2))
		order by "created_at", "experiment_id"
		`,
		query.OwnerId, statuses,
	)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	defer rows.Close()

	experimentIds := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, xe.Wrap(err)
		}
		experimentIds = append(experimentIds, id)
	}
	return experimentIds, nil
}

func (m *experimentPG) AddVariant(ctx context.Context, experimentId string, spec kdb.VariantSpec) (string, error) {
	if spec.Name == "" {
		return "", fmt.Errorf(`%w: "name" is required`, kdb.ErrDeficientSpec)
	}

	weight := kdb.DefaultVariantWeight
	if spec.Weight != nil {
		weight = *spec.Weight
	}
	if weight < 0 {
		return "", fmt.Errorf(
			`%w: "weight" should not be negative, but %f`, kdb.ErrDeficientSpec, weight,
		)
	}

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return "", xe.Wrap(err)
	}
	defer tx.Rollback(ctx)

	var status string
	if err := tx.QueryRow(
		ctx,
		`select "status" from "experiment" where "experiment_id" = $1 for update`,
		experimentId,
	).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", kpgerr.Missing{Table: "experiment", Identity: experimentId}
		}
		return "", xe.Wrap(err)
	}

	current, err := kdb.AsExperimentStatus(status)
	if err != nil {
		return "", xe.Wrap(err)
	}
	editable := false
	for _, s := range kdb.EditableStatuses() {
		if current == s {
			editable = true
			break
		}
	}
	if !editable {
		return "", fmt.Errorf("%w: status is %s", kdb.ErrNotEditable, current)
	}

	variantId := m.newId()
	if _, err := tx.Exec(
		ctx,
		`
		insert into "variant" (
			"variant_id", "experiment_id", "name", "description",
			"model_ref", "config", "weight", "is_control"
		) values ($1, $2, $3, $4, $5, $6, $7, $8)
		`,
		variantId, experimentId, spec.Name, spec.Description,
		spec.ModelRef, marshal.Blob(spec.Config), weight, spec.IsControl,
	); err != nil {
		return "", xe.Wrap(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", xe.Wrap(err)
	}
	return variantId, nil
}

func (m *experimentPG) SetStatus(ctx context.Context, experimentId string, newStatus kdb.ExperimentStatus) error {
	sources := kdb.SourcesOf(newStatus)
	if len(sources) == 0 {
		return fmt.Errorf(
			"%w: nothing can transit to %s", kdb.ErrInvalidStatusChanging, newStatus,
		)
	}

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return xe.Wrap(err)
	}
	defer tx.Rollback(ctx)

	if err := setStatus(ctx, tx, experimentId, newStatus); err != nil {
		return err
	}
	return xe.Wrap(tx.Commit(ctx))
}

// setStatus performs the guarded transition over a Queryer.
//
// The UPDATE is conditional on the current status being a legal source of
// newStatus, so that concurrent transitions never skip the guard.
func setStatus(ctx context.Context, tx kpool.Queryer, experimentId string, newStatus kdb.ExperimentStatus) error {
	sources := kdb.SourcesOf(newStatus)
	from := make([]string, 0, len(sources))
	for _, s := range sources {
		from = append(from, string(s))
	}

	tag, err := tx.Exec(
		ctx,
		`
		update "experiment"
		set "status" = $2,
			"started_at" = case
				when $2 = 'running' then coalesce("started_at", now())
				else "started_at"
			end,
			"completed_at" = case
				when $2 in ('completed', 'cancelled') then coalesce("completed_at", now())
				else "completed_at"
			end
		where "experiment_id" = $1 and "status" = any($3)
		`,
		experimentId, string(newStatus), from,
	)
	if err != nil {
		return xe.Wrap(err)
	}
	if tag.RowsAffected() != 0 {
		return nil
	}

	// not updated: missing experiment, or illegal transition. tell them apart.
	var current string
	if err := tx.QueryRow(
		ctx, `select "status" from "experiment" where "experiment_id" = $1`, experimentId,
	).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return kpgerr.Missing{Table: "experiment", Identity: experimentId}
		}
		return xe.Wrap(err)
	}
	return fmt.Errorf(
		"%w: %s -> %s", kdb.ErrInvalidStatusChanging, current, newStatus,
	)
}

func (m *experimentPG) PickToStop(
	ctx context.Context,
	cursor kdb.StopCursor,
	fn func(kdb.Experiment, []kdb.Result) (bool, error),
) (kdb.StopCursor, bool, error) {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return cursor, false, xe.Wrap(err)
	}
	defer tx.Rollback(ctx)

	pick := func(after string) (string, error) {
		var experimentId string
		err := tx.QueryRow(
			ctx,
			`
			select "experiment_id" from "experiment"
			where "status" = 'running' and "experiment_id" > $1
			order by "experiment_id"
			limit 1
			for update skip locked
			`,
			after,
		).Scan(&experimentId)
		return experimentId, err
	}

	experimentId, err := pick(cursor.Head)
	if errors.Is(err, pgx.ErrNoRows) && cursor.Head != "" {
		experimentId, err = pick("") // wrap the sweep around
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return cursor, false, nil
		}
		return cursor, false, xe.Wrap(err)
	}

	experiments, err := getExperiments(ctx, tx, []string{experimentId})
	if err != nil {
		return cursor, false, err
	}
	experiment, ok := experiments[experimentId]
	if !ok {
		return cursor, false, kpgerr.Missing{Table: "experiment", Identity: experimentId}
	}

	results, err := listResults(ctx, tx, experimentId)
	if err != nil {
		return cursor, false, err
	}

	stop, err := fn(experiment, results)
	if err != nil {
		return cursor, false, err
	}

	newCursor := kdb.StopCursor{Head: experimentId}
	if !stop {
		return newCursor, true, xe.Wrap(tx.Commit(ctx))
	}

	if err := setStatus(ctx, tx, experimentId, kdb.Completed); err != nil {
		return cursor, false, err
	}
	return newCursor, true, xe.Wrap(tx.Commit(ctx))
}

// listResults loads all results of an experiment, newest first,
// with the control flag of the variant each result belongs to.
//
// Shared with the assignment repository via identical schema; kept here for
// PickToStop so that locking and reading happen in one transaction.
func listResults(ctx context.Context, q kpool.Queryer, experimentId string) ([]kdb.Result, error) {
	rows, err := q.Query(
		ctx,
		`
		select
			"r"."result_id", "r"."experiment_id", "r"."variant_id",
			"r"."participant_key", "r"."metrics", "r"."converted",
			"r"."revenue", "r"."metadata", "v"."is_control", "r"."recorded_at"
		from "result" as "r"
		inner join "variant" as "v" using ("variant_id")
		where "r"."experiment_id" = $1
		order by "r"."recorded_at" desc, "r"."result_id" desc
		`,
		experimentId,
	)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	defer rows.Close()

	results := []kdb.Result{}
	for rows.Next() {
		var r kdb.Result
		var metrics, metadata marshal.Blob
		if err := rows.Scan(
			&r.Id, &r.ExperimentId, &r.VariantId,
			&r.ParticipantKey, &metrics, &r.Converted,
			&r.Revenue, &metadata, &r.VariantIsControl, &r.RecordedAt,
		); err != nil {
			return nil, xe.Wrap(err)
		}
		r.Metrics = json.RawMessage(metrics)
		r.Metadata = json.RawMessage(metadata)
		results = append(results, r)
	}
	return results, nil
}

// ListResultsTx exposes listResults for sibling repositories.
func ListResultsTx(ctx context.Context, q kpool.Queryer, experimentId string) ([]kdb.Result, error) {
	return listResults(ctx, q, experimentId)
}
