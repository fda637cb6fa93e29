package assignment_test

import (
	"context"
	"errors"
	"testing"
	"time"

	kdb "github.com/felafax/split/pkg/db"
	kpgassign "github.com/felafax/split/pkg/db/postgres/assignment"
	kpgexp "github.com/felafax/split/pkg/db/postgres/experiment"
	"github.com/felafax/split/pkg/db/postgres/pool/testenv"
	"github.com/felafax/split/pkg/utils/try"
)

// queuedIds feeds ids in order, so that variant ordering
// (created_at, then variant_id) is deterministic in tests.
func queuedIds(ids ...string) func() string {
	i := 0
	return func() string {
		id := ids[i]
		i += 1
		return id
	}
}

// queuedDraws feeds random values in order.
// The last value repeats when the queue runs out.
func queuedDraws(draws ...float64) func() float64 {
	i := 0
	return func() float64 {
		d := draws[i]
		if i < len(draws)-1 {
			i += 1
		}
		return d
	}
}

func TestAssign_Stickiness(t *testing.T) {
	ctx := context.Background()
	if deadline, ok := t.Deadline(); ok {
		_ctx, cancel := context.WithDeadline(ctx, deadline.Add(-time.Second))
		defer cancel()
		ctx = _ctx
	}
	poolBroaker := testenv.NewPoolBroaker(ctx, t)

	t.Run("a second call for the same participant returns the bound variant, without a new row", func(t *testing.T) {
		pgpool := poolBroaker.GetPool(ctx, t)

		experiments := kpgexp.New(pgpool, kpgexp.WithIdGenerator(queuedIds(
			"test-exp", "variant/a", "variant/b",
		)))
		experimentId := try.To(experiments.Create(ctx, kdb.ExperimentSpec{
			Name: "checkout button color", OwnerId: "user-alpha",
		})).OrFatal(t)
		variantA := try.To(experiments.AddVariant(ctx, experimentId, kdb.VariantSpec{
			Name: "control", IsControl: true,
		})).OrFatal(t)
		variantB := try.To(experiments.AddVariant(ctx, experimentId, kdb.VariantSpec{
			Name: "challenger",
		})).OrFatal(t)
		if err := experiments.SetStatus(ctx, experimentId, kdb.Running); err != nil {
			t.Fatal(err)
		}

		// the first draw lands on variant a. were the second call to draw
		// again, it would land on variant b.
		testee := kpgassign.New(pgpool, kpgassign.WithRandom(queuedDraws(0.0, 0.9)))

		first := try.To(testee.Assign(ctx, experimentId, "user/u-1")).OrFatal(t)
		if first.Id != variantA {
			t.Fatalf("unmatch: first assignment: %s != %s", first.Id, variantA)
		}

		second := try.To(testee.Assign(ctx, experimentId, "user/u-1")).OrFatal(t)
		if second.Id != first.Id {
			t.Errorf("unmatch: second assignment: %s != %s", second.Id, first.Id)
		}

		// another participant drawing 0.9 proves the draw itself would have
		// diverged, so the match above is stickiness, not chance.
		other := try.To(testee.Assign(ctx, experimentId, "user/u-2")).OrFatal(t)
		if other.Id != variantB {
			t.Errorf("unmatch: other participant's assignment: %s != %s", other.Id, variantB)
		}

		conn := try.To(pgpool.Acquire(ctx)).OrFatal(t)
		defer conn.Release()

		var count int
		if err := conn.QueryRow(
			ctx,
			`select count(*) from "assignment" where "experiment_id" = $1 and "participant_key" = $2`,
			experimentId, "user/u-1",
		).Scan(&count); err != nil {
			t.Fatal(err)
		}
		if count != 1 {
			t.Errorf("unmatch: assignment rows for the participant: %d != 1", count)
		}
	})

	t.Run("an existing binding wins over the draw", func(t *testing.T) {
		pgpool := poolBroaker.GetPool(ctx, t)

		experiments := kpgexp.New(pgpool, kpgexp.WithIdGenerator(queuedIds(
			"test-exp", "variant/a", "variant/b",
		)))
		experimentId := try.To(experiments.Create(ctx, kdb.ExperimentSpec{
			Name: "ranking model rollout", OwnerId: "user-alpha",
		})).OrFatal(t)
		variantA := try.To(experiments.AddVariant(ctx, experimentId, kdb.VariantSpec{
			Name: "control", IsControl: true,
		})).OrFatal(t)
		try.To(experiments.AddVariant(ctx, experimentId, kdb.VariantSpec{
			Name: "challenger",
		})).OrFatal(t)
		if err := experiments.SetStatus(ctx, experimentId, kdb.Running); err != nil {
			t.Fatal(err)
		}

		// a binding created out-of-band, as if a concurrent call won the insert.
		{
			conn := try.To(pgpool.Acquire(ctx)).OrFatal(t)
			try.To(conn.Exec(
				ctx,
				`insert into "assignment" ("experiment_id", "participant_key", "variant_id") values ($1, $2, $3)`,
				experimentId, "session/s-1", variantA,
			)).OrFatal(t)
			conn.Release()
		}

		// draw 0.9 would land on variant b, but the binding must win.
		testee := kpgassign.New(pgpool, kpgassign.WithRandom(queuedDraws(0.9)))
		assigned := try.To(testee.Assign(ctx, experimentId, "session/s-1")).OrFatal(t)
		if assigned.Id != variantA {
			t.Errorf("unmatch: assignment: %s != %s", assigned.Id, variantA)
		}
	})

	t.Run("it denies assigning against an experiment which is not running", func(t *testing.T) {
		pgpool := poolBroaker.GetPool(ctx, t)

		experiments := kpgexp.New(pgpool)
		experimentId := try.To(experiments.Create(ctx, kdb.ExperimentSpec{
			Name: "still drafting", OwnerId: "user-alpha",
		})).OrFatal(t)
		try.To(experiments.AddVariant(ctx, experimentId, kdb.VariantSpec{
			Name: "control", IsControl: true,
		})).OrFatal(t)

		testee := kpgassign.New(pgpool)
		if _, err := testee.Assign(ctx, experimentId, "user/u-1"); !errors.Is(err, kdb.ErrNotRunning) {
			t.Errorf("unexpected error: %+v (expected: %+v)", err, kdb.ErrNotRunning)
		}
	})

	t.Run("it denies assigning against a missing experiment", func(t *testing.T) {
		pgpool := poolBroaker.GetPool(ctx, t)

		testee := kpgassign.New(pgpool)
		if _, err := testee.Assign(ctx, "no-such-experiment", "user/u-1"); !errors.Is(err, kdb.ErrMissing) {
			t.Errorf("unexpected error: %+v (expected: %+v)", err, kdb.ErrMissing)
		}
	})
}
