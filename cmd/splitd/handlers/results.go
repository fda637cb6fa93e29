package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	apierr "github.com/felafax/split/pkg/api/types/errors"
	apiexp "github.com/felafax/split/pkg/api/types/experiments"
	kdb "github.com/felafax/split/pkg/db"
)

type resultCreated struct {
	ResultId string `json:"resultId"`
}

func RecordResultHandler(dbAssignment kdb.AssignmentInterface, paramExperimentId string) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Add("Content-Type", "application/json")

		experimentId := c.Param(paramExperimentId)

		spec := apiexp.ResultSpec{}
		if err := c.Bind(&spec); err != nil {
			return apierr.BadRequest("can not understand the requested result", err)
		}
		if spec.VariantId == "" {
			return apierr.BadRequest(`"variantId" is required`, nil)
		}

		ctx := c.Request().Context()
		resultId, err := dbAssignment.Record(ctx, kdb.ResultSpec{
			ExperimentId: experimentId,
			VariantId:    spec.VariantId,
			UserId:       spec.UserId,
			SessionId:    spec.SessionId,
			Metrics:      spec.Metrics,
			Converted:    spec.Converted,
			Revenue:      spec.Revenue,
			Metadata:     spec.Metadata,
		})
		if err != nil {
			if errors.Is(err, kdb.ErrMissing) {
				return apierr.NotFound()
			}
			return apierr.InternalServerError(err)
		}

		return c.JSON(http.StatusCreated, resultCreated{ResultId: resultId})
	}
}
