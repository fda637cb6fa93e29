package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	apierr "github.com/felafax/split/pkg/api/types/errors"
	apiexp "github.com/felafax/split/pkg/api/types/experiments"
	"github.com/felafax/split/pkg/auth"
	kdb "github.com/felafax/split/pkg/db"
	kstrings "github.com/felafax/split/pkg/utils/strings"
)

// how many results GetExperimentHandler embeds in the detail.
const recentResultsWindow = 20

func CreateExperimentHandler(dbExperiment kdb.ExperimentInterface) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Add("Content-Type", "application/json")

		spec := apiexp.ExperimentSpec{}
		if err := c.Bind(&spec); err != nil {
			return apierr.BadRequest("can not understand the requested experiment", err)
		}

		ctx := c.Request().Context()
		experimentId, err := dbExperiment.Create(ctx, spec.ToDBSpec(auth.Owner(c)))
		if err != nil {
			if errors.Is(err, kdb.ErrDeficientSpec) {
				return apierr.BadRequest("the requested experiment is deficient", err)
			}
			return apierr.InternalServerError(err)
		}

		experiments, err := dbExperiment.Get(ctx, []string{experimentId})
		if err != nil {
			return apierr.InternalServerError(err)
		}
		experiment, ok := experiments[experimentId]
		if !ok {
			return apierr.InternalServerError(
				errors.New("created experiment is not found"),
			)
		}

		return c.JSON(http.StatusCreated, apiexp.ComposeDetail(experiment))
	}
}

func FindExperimentHandler(dbExperiment kdb.ExperimentInterface) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Add("Content-Type", "application/json")

		query := kdb.ExperimentFindQuery{
			OwnerId: []string{},
			Status:  []kdb.ExperimentStatus{},
		}

		for _, p := range kstrings.SplitIfNotEmpty(c.QueryParam("status"), ",") {
			s, err := kdb.AsExperimentStatus(p)
			if err != nil {
				return apierr.BadRequest(
					`"status" should be one of "draft", "running", "paused", "completed" or "cancelled"`,
					nil,
				)
			}
			query.Status = append(query.Status, s)
		}

		if c.QueryParam("mine") == "true" {
			owner := auth.Owner(c)
			if owner == "" {
				return apierr.Unauthorized(`"mine=true" requires a bearer token`, nil)
			}
			query.OwnerId = []string{owner}
		}

		ctx := c.Request().Context()
		experimentIds, err := dbExperiment.Find(ctx, query)
		if err != nil {
			return apierr.InternalServerError(err)
		}

		experiments, err := dbExperiment.Get(ctx, experimentIds)
		if err != nil {
			return apierr.InternalServerError(err)
		}

		resp := make([]apiexp.Summary, 0, len(experiments))
		for _, id := range experimentIds {
			if e, ok := experiments[id]; ok {
				resp = append(resp, apiexp.ComposeSummary(e.ExperimentBody))
			}
		}

		return c.JSON(http.StatusOK, resp)
	}
}

func GetExperimentHandler(
	dbExperiment kdb.ExperimentInterface,
	dbAssignment kdb.AssignmentInterface,
) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Add("Content-Type", "application/json")

		experimentId := c.Param("experimentId")
		ctx := c.Request().Context()

		experiments, err := dbExperiment.Get(ctx, []string{experimentId})
		if err != nil {
			return apierr.InternalServerError(err)
		}
		experiment, ok := experiments[experimentId]
		if !ok {
			return apierr.NotFound()
		}

		results, err := dbAssignment.ListResults(ctx, experimentId)
		if err != nil {
			if errors.Is(err, kdb.ErrMissing) {
				return apierr.NotFound()
			}
			return apierr.InternalServerError(err)
		}
		if recentResultsWindow < len(results) {
			results = results[:recentResultsWindow]
		}

		detail := apiexp.ComposeDetail(experiment)
		for _, r := range results {
			detail.RecentResults = append(detail.RecentResults, apiexp.ComposeResult(r))
		}

		return c.JSON(http.StatusOK, detail)
	}
}

func AddVariantHandler(dbExperiment kdb.ExperimentInterface, paramExperimentId string) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Add("Content-Type", "application/json")

		experimentId := c.Param(paramExperimentId)

		spec := apiexp.VariantSpec{}
		if err := c.Bind(&spec); err != nil {
			return apierr.BadRequest("can not understand the requested variant", err)
		}

		ctx := c.Request().Context()
		if _, err := dbExperiment.AddVariant(ctx, experimentId, spec.ToDBSpec()); err != nil {
			if errors.Is(err, kdb.ErrMissing) {
				return apierr.NotFound()
			}
			if errors.Is(err, kdb.ErrNotEditable) {
				return apierr.Conflict(
					"experiment is not editable",
					apierr.WithError(err),
					apierr.WithAdvice("Variants can be added to draft or paused experiments only"),
				)
			}
			if errors.Is(err, kdb.ErrDeficientSpec) {
				return apierr.BadRequest("the requested variant is deficient", err)
			}
			return apierr.InternalServerError(err)
		}

		experiments, err := dbExperiment.Get(ctx, []string{experimentId})
		if err != nil {
			return apierr.InternalServerError(err)
		}
		experiment, ok := experiments[experimentId]
		if !ok {
			return apierr.NotFound()
		}

		return c.JSON(http.StatusCreated, apiexp.ComposeDetail(experiment))
	}
}

// TransitExperimentHandler moves an experiment to newStatus.
//
// Used for the start, pause, complete and cancel endpoints; the transition
// table of the storage layer decides which moves are legal.
func TransitExperimentHandler(
	dbExperiment kdb.ExperimentInterface,
	paramExperimentId string,
	newStatus kdb.ExperimentStatus,
) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Add("Content-Type", "application/json")

		experimentId := c.Param(paramExperimentId)
		ctx := c.Request().Context()

		if err := dbExperiment.SetStatus(ctx, experimentId, newStatus); err != nil {
			if errors.Is(err, kdb.ErrMissing) {
				return apierr.NotFound()
			}
			if errors.Is(err, kdb.ErrInvalidStatusChanging) {
				return apierr.Conflict("prohibited operation", apierr.WithError(err))
			}
			return apierr.InternalServerError(err)
		}

		experiments, err := dbExperiment.Get(ctx, []string{experimentId})
		if err != nil {
			return apierr.InternalServerError(err)
		}
		if e, ok := experiments[experimentId]; ok {
			return c.JSON(http.StatusOK, apiexp.ComposeDetail(e))
		}
		return apierr.NotFound()
	}
}
