package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	apierr "github.com/felafax/split/pkg/api/types/errors"
	kdb "github.com/felafax/split/pkg/db"
	"github.com/felafax/split/pkg/stats"
)

func GetStatsHandler(
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

		return c.JSON(http.StatusOK, stats.Aggregate(experiment, results))
	}
}
