package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	handlers "github.com/felafax/split/cmd/splitd/handlers"
	httptestutil "github.com/felafax/split/internal/testutils/http"
	apiexp "github.com/felafax/split/pkg/api/types/experiments"
	kdb "github.com/felafax/split/pkg/db"
	mockdb "github.com/felafax/split/pkg/db/mocks"
)

func TestAssignVariantHandler(t *testing.T) {

	t.Run("it responses the assigned variant", func(t *testing.T) {
		variant := kdb.Variant{
			Id: "var-b", ExperimentId: "exp-1", Name: "green button", Weight: 0.5,
		}

		mockAssignment := mockdb.NewAssignmentInterface()
		mockAssignment.Impl.Assign = func(context.Context, string, string) (kdb.Variant, error) {
			return variant, nil
		}

		e := echo.New()
		c, resp := httptestutil.Post(
			e, "/api/experiments/exp-1/assignments/",
			strings.NewReader(`{"userId": "u-1", "sessionId": "s-1"}`),
			httptestutil.ContentType("application/json"),
		)
		c.SetPath("/experiments/:experimentId/assignments/")
		c.SetParamNames("experimentId")
		c.SetParamValues("exp-1")

		testee := handlers.AssignVariantHandler(mockAssignment, "experimentId")
		if err := testee(c); err != nil {
			t.Fatalf("testee returns error unexpectedly: %s", err)
		}

		if resp.Code != http.StatusOK {
			t.Errorf("unmatch: status code: %d != %d", resp.Code, http.StatusOK)
		}

		if mockAssignment.Calls.Assign.Times() != 1 {
			t.Fatalf("Assign should be called once")
		}
		call := mockAssignment.Calls.Assign[0]
		if call.ExperimentId != "exp-1" {
			t.Errorf("unmatch: experimentId: %s", call.ExperimentId)
		}

		// userId takes precedence over sessionId
		if call.ParticipantKey != "user/u-1" {
			t.Errorf("unmatch: participantKey: %s", call.ParticipantKey)
		}

		actual := apiexp.Assignment{}
		if err := json.Unmarshal(resp.Body.Bytes(), &actual); err != nil {
			t.Fatalf("response is not json: %s", err)
		}
		expected := apiexp.Assignment{
			ExperimentId: "exp-1",
			Variant:      apiexp.ComposeVariant(variant),
		}
		if !actual.Equal(&expected) {
			t.Errorf("unmatch: response:\n%+v\n%+v", actual, expected)
		}
	})

	t.Run("it uses the session id when no user id is given", func(t *testing.T) {
		mockAssignment := mockdb.NewAssignmentInterface()
		mockAssignment.Impl.Assign = func(context.Context, string, string) (kdb.Variant, error) {
			return kdb.Variant{Id: "var-a"}, nil
		}

		e := echo.New()
		c, _ := httptestutil.Post(
			e, "/api/experiments/exp-1/assignments/",
			strings.NewReader(`{"sessionId": "s-1"}`),
			httptestutil.ContentType("application/json"),
		)
		c.SetPath("/experiments/:experimentId/assignments/")
		c.SetParamNames("experimentId")
		c.SetParamValues("exp-1")

		testee := handlers.AssignVariantHandler(mockAssignment, "experimentId")
		if err := testee(c); err != nil {
			t.Fatalf("testee returns error unexpectedly: %s", err)
		}

		call := mockAssignment.Calls.Assign[0]
		if call.ParticipantKey != "session/s-1" {
			t.Errorf("unmatch: participantKey: %s", call.ParticipantKey)
		}
	})

	type When struct {
		Body        string
		AssignError error
	}
	type Then struct {
		StatusCode int
	}

	theory := func(when When, then Then) func(*testing.T) {
		return func(t *testing.T) {
			mockAssignment := mockdb.NewAssignmentInterface()
			mockAssignment.Impl.Assign = func(context.Context, string, string) (kdb.Variant, error) {
				return kdb.Variant{}, when.AssignError
			}

			e := echo.New()
			c, _ := httptestutil.Post(
				e, "/api/experiments/exp-1/assignments/",
				strings.NewReader(when.Body),
				httptestutil.ContentType("application/json"),
			)
			c.SetPath("/experiments/:experimentId/assignments/")
			c.SetParamNames("experimentId")
			c.SetParamValues("exp-1")

			testee := handlers.AssignVariantHandler(mockAssignment, "experimentId")
			err := testee(c)
			if httperr := new(echo.HTTPError); !errors.As(err, &httperr) {
				t.Fatalf("unmatch: error type: %+v is not echo.HTTPError", err)
			} else if httperr.Code != then.StatusCode {
				t.Errorf("unmatch: status code: %d != %d", httperr.Code, then.StatusCode)
			}
		}
	}

	t.Run("it responses error (BadRequest), when no participant key is given", theory(
		When{Body: `{}`},
		Then{StatusCode: http.StatusBadRequest},
	))
	t.Run("it responses error (NotFound), when the experiment is missing", theory(
		When{Body: `{"userId": "u-1"}`, AssignError: kdb.ErrMissing},
		Then{StatusCode: http.StatusNotFound},
	))
	t.Run("it responses error (Conflict), when the experiment is not running", theory(
		When{Body: `{"userId": "u-1"}`, AssignError: kdb.ErrNotRunning},
		Then{StatusCode: http.StatusConflict},
	))
}

func TestRecordResultHandler(t *testing.T) {

	t.Run("it responses the id of the new result", func(t *testing.T) {
		mockAssignment := mockdb.NewAssignmentInterface()
		mockAssignment.Impl.Record = func(context.Context, kdb.ResultSpec) (string, error) {
			return "res-1", nil
		}

		e := echo.New()
		c, resp := httptestutil.Post(
			e, "/api/experiments/exp-1/results/",
			strings.NewReader(`{
				"variantId": "var-b",
				"userId": "u-1",
				"converted": true,
				"revenue": 12.5,
				"metrics": {"clicks": 3}
			}`),
			httptestutil.ContentType("application/json"),
		)
		c.SetPath("/experiments/:experimentId/results/")
		c.SetParamNames("experimentId")
		c.SetParamValues("exp-1")

		testee := handlers.RecordResultHandler(mockAssignment, "experimentId")
		if err := testee(c); err != nil {
			t.Fatalf("testee returns error unexpectedly: %s", err)
		}

		if resp.Code != http.StatusCreated {
			t.Errorf("unmatch: status code: %d != %d", resp.Code, http.StatusCreated)
		}

		if mockAssignment.Calls.Record.Times() != 1 {
			t.Fatalf("Record should be called once")
		}
		spec := mockAssignment.Calls.Record[0]
		if spec.ExperimentId != "exp-1" || spec.VariantId != "var-b" {
			t.Errorf("unmatch: spec: %+v", spec)
		}
		if !spec.Converted || spec.Revenue != 12.5 {
			t.Errorf("unmatch: spec: %+v", spec)
		}

		actual := map[string]string{}
		if err := json.Unmarshal(resp.Body.Bytes(), &actual); err != nil {
			t.Fatalf("response is not json: %s", err)
		}
		if actual["resultId"] != "res-1" {
			t.Errorf("unmatch: resultId: %s", actual["resultId"])
		}
	})

	t.Run("it responses error (BadRequest), when variantId is missing", func(t *testing.T) {
		mockAssignment := mockdb.NewAssignmentInterface()

		e := echo.New()
		c, _ := httptestutil.Post(
			e, "/api/experiments/exp-1/results/",
			strings.NewReader(`{"converted": true}`),
			httptestutil.ContentType("application/json"),
		)
		c.SetPath("/experiments/:experimentId/results/")
		c.SetParamNames("experimentId")
		c.SetParamValues("exp-1")

		testee := handlers.RecordResultHandler(mockAssignment, "experimentId")
		err := testee(c)
		if httperr := new(echo.HTTPError); !errors.As(err, &httperr) {
			t.Fatalf("unmatch: error type: %+v is not echo.HTTPError", err)
		} else if httperr.Code != http.StatusBadRequest {
			t.Errorf("unmatch: status code: %d != %d", httperr.Code, http.StatusBadRequest)
		}
	})

	t.Run("it responses error (NotFound), when the variant pair is missing", func(t *testing.T) {
		mockAssignment := mockdb.NewAssignmentInterface()
		mockAssignment.Impl.Record = func(context.Context, kdb.ResultSpec) (string, error) {
			return "", kdb.ErrMissing
		}

		e := echo.New()
		c, _ := httptestutil.Post(
			e, "/api/experiments/exp-1/results/",
			strings.NewReader(`{"variantId": "var-x"}`),
			httptestutil.ContentType("application/json"),
		)
		c.SetPath("/experiments/:experimentId/results/")
		c.SetParamNames("experimentId")
		c.SetParamValues("exp-1")

		testee := handlers.RecordResultHandler(mockAssignment, "experimentId")
		err := testee(c)
		if httperr := new(echo.HTTPError); !errors.As(err, &httperr) {
			t.Fatalf("unmatch: error type: %+v is not echo.HTTPError", err)
		} else if httperr.Code != http.StatusNotFound {
			t.Errorf("unmatch: status code: %d != %d", httperr.Code, http.StatusNotFound)
		}
	})
}
