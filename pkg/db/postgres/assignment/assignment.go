package assignment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4"

	kdb "github.com/felafax/split/pkg/db"
	kpgerr "github.com/felafax/split/pkg/db/postgres/errors"
	"github.com/felafax/split/pkg/db/postgres/experiment"
	"github.com/felafax/split/pkg/db/postgres/marshal"
	kpool "github.com/felafax/split/pkg/db/postgres/pool"
	xe "github.com/felafax/split/pkg/errors"
)

// a struct for DB operations related to Assignment and Result
type assignmentPG struct { // implements kdb.AssignmentInterface
	pool kpool.Pool

	// id generator for new results
	newId func() string

	// source of uniform random values in [0, 1), for the weighted draw
	random func() float64
}

type Option func(*assignmentPG) *assignmentPG

func WithIdGenerator(newId func() string) Option {
	return func(a *assignmentPG) *assignmentPG {
		a.newId = newId
		return a
	}
}

func WithRandom(random func() float64) Option {
	return func(a *assignmentPG) *assignmentPG {
		a.random = random
		return a
	}
}

func New(pool kpool.Pool, options ...Option) *assignmentPG {
	a := &assignmentPG{
		pool:   pool,
		newId:  uuid.NewString,
		random: rand.Float64,
	}
	for _, o := range options {
		a = o(a)
	}
	return a
}

var _ kdb.AssignmentInterface = &assignmentPG{}

func (m *assignmentPG) Assign(ctx context.Context, experimentId string, participantKey string) (kdb.Variant, error) {
	if participantKey == "" {
		return kdb.Variant{}, fmt.Errorf(`%w: "participantKey" is required`, kdb.ErrDeficientSpec)
	}

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return kdb.Variant{}, xe.Wrap(err)
	}
	defer tx.Rollback(ctx)

	var status string
	if err := tx.QueryRow(
		ctx, `select "status" from "experiment" where "experiment_id" = $1`, experimentId,
	).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return kdb.Variant{}, kpgerr.Missing{Table: "experiment", Identity: experimentId}
		}
		return kdb.Variant{}, xe.Wrap(err)
	}
	if status != string(kdb.Running) {
		return kdb.Variant{}, fmt.Errorf("%w: status is %s", kdb.ErrNotRunning, status)
	}

	variants, err := variantsOf(ctx, tx, experimentId)
	if err != nil {
		return kdb.Variant{}, err
	}
	if len(variants) == 0 {
		return kdb.Variant{}, kpgerr.Missing{
			Table: "variant", Identity: fmt.Sprintf("experiment_id = %s", experimentId),
		}
	}

	byId := map[string]kdb.Variant{}
	for _, v := range variants {
		byId[v.Id] = v
	}

	if variantId, ok, err := boundVariant(ctx, tx, experimentId, participantKey); err != nil {
		return kdb.Variant{}, err
	} else if ok {
		if v, found := byId[variantId]; found {
			return v, nil // sticky: no commit needed, nothing changed
		}
		return kdb.Variant{}, kpgerr.Missing{Table: "variant", Identity: variantId}
	}

	candidate := pickWeighted(variants, m.random())

	// ON CONFLICT DO NOTHING + reread: when two calls race on the same new
	// participant, exactly one insert wins and both return the winner's variant.
	if _, err := tx.Exec(
		ctx,
		`
		insert into "assignment" ("experiment_id", "participant_key", "variant_id")
		values ($1, $2, $3)
		on conflict ("experiment_id", "participant_key") do nothing
		`,
		experimentId, participantKey, candidate.Id,
	); err != nil {
		return kdb.Variant{}, xe.Wrap(err)
	}

	variantId, ok, err := boundVariant(ctx, tx, experimentId, participantKey)
	if err != nil {
		return kdb.Variant{}, err
	}
	if !ok {
		return kdb.Variant{}, kpgerr.Missing{
			Table: "assignment", Identity: fmt.Sprintf("%s/%s", experimentId, participantKey),
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return kdb.Variant{}, xe.Wrap(err)
	}

	if v, found := byId[variantId]; found {
		return v, nil
	}
	return kdb.Variant{}, kpgerr.Missing{Table: "variant", Identity: variantId}
}

func variantsOf(ctx context.Context, q kpool.Queryer, experimentId string) ([]kdb.Variant, error) {
	rows, err := q.Query(
		ctx,
		`
		select
			"variant_id", "experiment_id", "name", "description",
			"model_ref", "config", "weight", "is_control", "created_at"
		from "variant"
		where "experiment_id" = $1
		order by "created_at", "variant_id"
		`,
		experimentId,
	)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	defer rows.Close()

	variants := []kdb.Variant{}
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
		variants = append(variants, v)
	}
	return variants, nil
}

func boundVariant(ctx context.Context, q kpool.Queryer, experimentId string, participantKey string) (string, bool, error) {
	var variantId string
	err := q.QueryRow(
		ctx,
		`
		select "variant_id" from "assignment"
		where "experiment_id" = $1 and "participant_key" = $2
		`,
		experimentId, participantKey,
	).Scan(&variantId)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, xe.Wrap(err)
	}
	return variantId, true, nil
}

// pickWeighted draws a variant with probability proportional to its weight.
//
// r should be uniform in [0, 1). When the total weight is not positive,
// the draw degenerates to the first variant.
func pickWeighted(variants []kdb.Variant, r float64) kdb.Variant {
	total := 0.0
	for _, v := range variants {
		if 0 < v.Weight {
			total += v.Weight
		}
	}
	if total <= 0 {
		return variants[0]
	}

	x := r * total
	for _, v := range variants {
		if v.Weight <= 0 {
			continue
		}
		x -= v.Weight
		if x < 0 {
			return v
		}
	}

	// rounding pushed x to exactly 0. land on the last weighted variant.
	for i := len(variants) - 1; 0 <= i; i-- {
		if 0 < variants[i].Weight {
			return variants[i]
		}
	}
	return variants[0]
}

func (m *assignmentPG) Record(ctx context.Context, spec kdb.ResultSpec) (string, error) {
	var participantKey *string
	if key, err := kdb.ParticipantKey(spec.UserId, spec.SessionId); err == nil {
		participantKey = &key
	}

	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return "", xe.Wrap(err)
	}
	defer conn.Release()

	resultId := m.newId()
	if _, err := conn.Exec(
		ctx,
		`
		insert into "result" (
			"result_id", "experiment_id", "variant_id", "participant_key",
			"metrics", "converted", "revenue", "metadata"
		) values ($1, $2, $3, $4, $5, $6, $7, $8)
		`,
		resultId, spec.ExperimentId, spec.VariantId, participantKey,
		marshal.Blob(spec.Metrics), spec.Converted, spec.Revenue, marshal.Blob(spec.Metadata),
	); err != nil {
		pgErr := &pgconn.PgError{}
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return "", kpgerr.Missing{
				Table:    "experiment x variant",
				Identity: fmt.Sprintf("%s x %s", spec.ExperimentId, spec.VariantId),
			}
		}
		return "", xe.Wrap(err)
	}

	return resultId, nil
}

func (m *assignmentPG) ListResults(ctx context.Context, experimentId string) ([]kdb.Result, error) {
	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	defer conn.Release()

	var found bool
	if err := conn.QueryRow(
		ctx, `select exists (select 1 from "experiment" where "experiment_id" = $1)`, experimentId,
	).Scan(&found); err != nil {
		return nil, xe.Wrap(err)
	}
	if !found {
		return nil, kpgerr.Missing{Table: "experiment", Identity: experimentId}
	}

	return experiment.ListResultsTx(ctx, conn, experimentId)
}
