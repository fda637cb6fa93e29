package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/felafax/split/pkg/buildtime"
	"github.com/felafax/split/pkg/utils/rfctime"
)

type healthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Timestamp rfctime.RFC3339 `json:"timestamp"`
}

func HealthHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, healthResponse{
			Status:    "healthy",
			Version:   buildtime.VERSION(),
			Timestamp: rfctime.RFC3339(time.Now()),
		})
	}
}
