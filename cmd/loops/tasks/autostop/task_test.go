package autostop_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felafax/split/cmd/loops/tasks/autostop"
	kdb "github.com/felafax/split/pkg/db"
	mockdb "github.com/felafax/split/pkg/db/mocks"
	"github.com/felafax/split/pkg/utils/pointer"
)

func TestTask(t *testing.T) {
	now := time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	runningExperiment := func(sampleSize *int) kdb.Experiment {
		return kdb.Experiment{
			ExperimentBody: kdb.ExperimentBody{
				Id:                "exp-1",
				Name:              "checkout button color",
				SignificanceLevel: 0.05,
				SampleSize:        sampleSize,
				Status:            kdb.Running,
				StartedAt:         pointer.Ref(now.AddDate(0, 0, -1)),
			},
			Variants: []kdb.Variant{
				{Id: "var-a", IsControl: true, Weight: 0.5},
				{Id: "var-b", Weight: 0.5},
			},
		}
	}

	resultsOf := func(n int) []kdb.Result {
		results := make([]kdb.Result, n)
		for i := range results {
			variantId := "var-a"
			if i%2 == 0 {
				variantId = "var-b"
			}
			results[i] = kdb.Result{Id: "res", ExperimentId: "exp-1", VariantId: variantId}
		}
		return results
	}

	t.Run("it asks to stop an experiment which reached its sample size", func(t *testing.T) {
		mockExperiment := mockdb.NewExperimentInterface()
		var askedToStop *bool
		mockExperiment.Impl.PickToStop = func(
			ctx context.Context, cursor kdb.StopCursor,
			fn func(kdb.Experiment, []kdb.Result) (bool, error),
		) (kdb.StopCursor, bool, error) {
			stop, err := fn(runningExperiment(pointer.Ref(10)), resultsOf(15))
			if err != nil {
				t.Fatalf("decision fails unexpectedly: %s", err)
			}
			askedToStop = &stop
			return kdb.StopCursor{Head: "exp-1"}, true, nil
		}

		testee := autostop.Task(mockExperiment, clock)
		cursor, picked, err := testee(context.Background(), autostop.Seed())

		if err != nil {
			t.Fatalf("task fails unexpectedly: %s", err)
		}
		if !picked {
			t.Error("task should report progress")
		}
		if cursor.Head != "exp-1" {
			t.Errorf("unmatch: cursor: %+v", cursor)
		}
		if askedToStop == nil || !*askedToStop {
			t.Error("the experiment should be asked to stop")
		}
	})

	t.Run("it keeps an experiment with no rule holding", func(t *testing.T) {
		mockExperiment := mockdb.NewExperimentInterface()
		var askedToStop *bool
		mockExperiment.Impl.PickToStop = func(
			ctx context.Context, cursor kdb.StopCursor,
			fn func(kdb.Experiment, []kdb.Result) (bool, error),
		) (kdb.StopCursor, bool, error) {
			stop, err := fn(runningExperiment(pointer.Ref(1000)), resultsOf(10))
			if err != nil {
				t.Fatalf("decision fails unexpectedly: %s", err)
			}
			askedToStop = &stop
			return kdb.StopCursor{Head: "exp-1"}, true, nil
		}

		testee := autostop.Task(mockExperiment, clock)
		_, picked, err := testee(context.Background(), autostop.Seed())

		if err != nil {
			t.Fatalf("task fails unexpectedly: %s", err)
		}
		if !picked {
			t.Error("task should report progress")
		}
		if askedToStop == nil || *askedToStop {
			t.Error("the experiment should not be asked to stop")
		}
	})

	t.Run("it reports no progress when nothing is picked", func(t *testing.T) {
		mockExperiment := mockdb.NewExperimentInterface()
		mockExperiment.Impl.PickToStop = func(
			ctx context.Context, cursor kdb.StopCursor,
			fn func(kdb.Experiment, []kdb.Result) (bool, error),
		) (kdb.StopCursor, bool, error) {
			return cursor, false, nil
		}

		testee := autostop.Task(mockExperiment, clock)
		cursor, picked, err := testee(context.Background(), kdb.StopCursor{Head: "exp-9"})

		if err != nil {
			t.Fatalf("task fails unexpectedly: %s", err)
		}
		if picked {
			t.Error("task should not report progress")
		}
		if cursor.Head != "exp-9" {
			t.Errorf("unmatch: cursor: %+v", cursor)
		}
	})

	t.Run("it propagates errors", func(t *testing.T) {
		expectedError := errors.New("fake error")

		mockExperiment := mockdb.NewExperimentInterface()
		mockExperiment.Impl.PickToStop = func(
			ctx context.Context, cursor kdb.StopCursor,
			fn func(kdb.Experiment, []kdb.Result) (bool, error),
		) (kdb.StopCursor, bool, error) {
			return cursor, false, expectedError
		}

		testee := autostop.Task(mockExperiment, clock)
		if _, _, err := testee(context.Background(), autostop.Seed()); !errors.Is(err, expectedError) {
			t.Errorf("unmatch: error: %v", err)
		}
	})
}
