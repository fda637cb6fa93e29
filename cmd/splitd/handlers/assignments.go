package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	apierr "github.com/felafax/split/pkg/api/types/errors"
	apiexp "github.com/felafax/split/pkg/api/types/experiments"
	kdb "github.com/felafax/split/pkg/db"
)

func AssignVariantHandler(dbAssignment kdb.AssignmentInterface, paramExperimentId string) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Add("Content-Type", "application/json")

		experimentId := c.Param(paramExperimentId)

		req := apiexp.AssignmentRequest{}
		if err := c.Bind(&req); err != nil {
			return apierr.BadRequest("can not understand the assignment request", err)
		}

		participantKey, err := kdb.ParticipantKey(req.UserId, req.SessionId)
		if err != nil {
			return apierr.BadRequest(
				`either "userId" or "sessionId" is required`, err,
			)
		}

		ctx := c.Request().Context()
		variant, err := dbAssignment.Assign(ctx, experimentId, participantKey)
		if err != nil {
			if errors.Is(err, kdb.ErrMissing) {
				return apierr.NotFound()
			}
			if errors.Is(err, kdb.ErrNotRunning) {
				return apierr.Conflict(
					"experiment is not running",
					apierr.WithError(err),
					apierr.WithAdvice("Start the experiment before assigning participants"),
				)
			}
			return apierr.InternalServerError(err)
		}

		return c.JSON(http.StatusOK, apiexp.Assignment{
			ExperimentId: experimentId,
			Variant:      apiexp.ComposeVariant(variant),
		})
	}
}
