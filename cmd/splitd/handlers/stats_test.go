package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"

	handlers "github.com/felafax/split/cmd/splitd/handlers"
	httptestutil "github.com/felafax/split/internal/testutils/http"
	kdb "github.com/felafax/split/pkg/db"
	mockdb "github.com/felafax/split/pkg/db/mocks"
	"github.com/felafax/split/pkg/stats"
)

func TestGetStatsHandler(t *testing.T) {

	t.Run("it responses the aggregated stats", func(t *testing.T) {
		experiment := dummyExperiment(t, "exp-1", kdb.Running)
		results := []kdb.Result{
			{Id: "res-1", ExperimentId: "exp-1", VariantId: "var-a", Converted: false},
			{Id: "res-2", ExperimentId: "exp-1", VariantId: "var-b", Converted: true, Revenue: 10},
			{Id: "res-3", ExperimentId: "exp-1", VariantId: "var-b", Converted: true, Revenue: 20},
		}

		mockExperiment := mockdb.NewExperimentInterface()
		mockExperiment.Impl.Get = func(context.Context, []string) (map[string]kdb.Experiment, error) {
			return map[string]kdb.Experiment{"exp-1": experiment}, nil
		}
		mockAssignment := mockdb.NewAssignmentInterface()
		mockAssignment.Impl.ListResults = func(context.Context, string) ([]kdb.Result, error) {
			return results, nil
		}

		e := echo.New()
		c, resp := httptestutil.Get(e, "/api/experiments/exp-1/stats/")
		c.SetPath("/experiments/:experimentId/stats/")
		c.SetParamNames("experimentId")
		c.SetParamValues("exp-1")

		testee := handlers.GetStatsHandler(mockExperiment, mockAssignment)
		if err := testee(c); err != nil {
			t.Fatalf("testee returns error unexpectedly: %s", err)
		}

		if resp.Code != http.StatusOK {
			t.Errorf("unmatch: status code: %d != %d", resp.Code, http.StatusOK)
		}

		actual := stats.TestStats{}
		if err := json.Unmarshal(resp.Body.Bytes(), &actual); err != nil {
			t.Fatalf("response is not json: %s", err)
		}

		expected := stats.Aggregate(experiment, results)
		if actual.ExperimentId != expected.ExperimentId {
			t.Errorf("unmatch: experimentId: %s", actual.ExperimentId)
		}
		if actual.TotalParticipants != expected.TotalParticipants {
			t.Errorf(
				"unmatch: totalParticipants: %d != %d",
				actual.TotalParticipants, expected.TotalParticipants,
			)
		}
		if actual.TotalConversions != expected.TotalConversions {
			t.Errorf(
				"unmatch: totalConversions: %d != %d",
				actual.TotalConversions, expected.TotalConversions,
			)
		}
		if actual.PValue != expected.PValue {
			t.Errorf("unmatch: pValue: %f != %f", actual.PValue, expected.PValue)
		}
		if len(actual.Variants) != len(expected.Variants) {
			t.Errorf("unmatch: variants: %d != %d", len(actual.Variants), len(expected.Variants))
		}
	})

	t.Run("it responses error (NotFound), when the experiment is missing", func(t *testing.T) {
		mockExperiment := mockdb.NewExperimentInterface()
		mockExperiment.Impl.Get = func(context.Context, []string) (map[string]kdb.Experiment, error) {
			return map[string]kdb.Experiment{}, nil
		}
		mockAssignment := mockdb.NewAssignmentInterface()

		e := echo.New()
		c, _ := httptestutil.Get(e, "/api/experiments/exp-404/stats/")
		c.SetPath("/experiments/:experimentId/stats/")
		c.SetParamNames("experimentId")
		c.SetParamValues("exp-404")

		testee := handlers.GetStatsHandler(mockExperiment, mockAssignment)
		err := testee(c)
		if httperr := new(echo.HTTPError); !errors.As(err, &httperr) {
			t.Fatalf("unmatch: error type: %+v is not echo.HTTPError", err)
		} else if httperr.Code != http.StatusNotFound {
			t.Errorf("unmatch: status code: %d != %d", httperr.Code, http.StatusNotFound)
		}
	})

	t.Run("it responses error (InternalServerError), when ListResults fails", func(t *testing.T) {
		experiment := dummyExperiment(t, "exp-1", kdb.Running)

		mockExperiment := mockdb.NewExperimentInterface()
		mockExperiment.Impl.Get = func(context.Context, []string) (map[string]kdb.Experiment, error) {
			return map[string]kdb.Experiment{"exp-1": experiment}, nil
		}
		mockAssignment := mockdb.NewAssignmentInterface()
		mockAssignment.Impl.ListResults = func(context.Context, string) ([]kdb.Result, error) {
			return nil, errors.New("fake error")
		}

		e := echo.New()
		c, _ := httptestutil.Get(e, "/api/experiments/exp-1/stats/")
		c.SetPath("/experiments/:experimentId/stats/")
		c.SetParamNames("experimentId")
		c.SetParamValues("exp-1")

		testee := handlers.GetStatsHandler(mockExperiment, mockAssignment)
		err := testee(c)
		if httperr := new(echo.HTTPError); !errors.As(err, &httperr) {
			t.Fatalf("unmatch: error type: %+v is not echo.HTTPError", err)
		} else if httperr.Code != http.StatusInternalServerError {
			t.Errorf("unmatch: status code: %d != %d", httperr.Code, http.StatusInternalServerError)
		}
	})
}
