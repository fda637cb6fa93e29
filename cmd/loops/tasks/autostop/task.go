package autostop

import (
	"context"
	"time"

	"github.com/felafax/split/cmd/loops/recurring"
	kdb "github.com/felafax/split/pkg/db"
	"github.com/felafax/split/pkg/stats"
)

// initial value for task
func Seed() kdb.StopCursor {
	return kdb.StopCursor{}
}

// return:
//
// - task: complete running experiments which meet a stopping rule.
//
// Each cycle picks at most one running experiment (moving a cursor over
// them), aggregates its results and completes it when ShouldStop says so.
// Overlapping invocations are safe: picking locks the experiment row, and
// completion is a guarded status transition.
func Task(
	experiments kdb.ExperimentInterface,
	now func() time.Time,
) recurring.Task[kdb.StopCursor] {
	return func(ctx context.Context, cursor kdb.StopCursor) (kdb.StopCursor, bool, error) {
		_cursor, picked, err := experiments.PickToStop(
			ctx, cursor,
			func(experiment kdb.Experiment, results []kdb.Result) (bool, error) {
				s := stats.Aggregate(experiment, results)
				return stats.ShouldStop(experiment, s, now()), nil
			},
		)
		return _cursor, picked, err
	}
}
