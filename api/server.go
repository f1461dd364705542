package api

import (
	"github.com/brpaz/echozap"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/chartline-org/chartline/errors"
)

func NewServer(handler *Handler, healthCheck *HealthCheck, log *zap.Logger) (*echo.Echo, error) {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Recover())
	e.Use(echozap.ZapLogger(log))

	e.HTTPErrorHandler = errors.CustomHTTPErrorHandler

	e.GET("/ready", healthCheck.Ready)

	v1 := e.Group("/v1")
	v1.POST("/patients/:patientId/encounters/:encounterId/delta", func(c echo.Context) error {
		return handler.ProcessDelta(c, c.Param("patientId"), c.Param("encounterId"))
	})
	v1.POST("/encounters/:encounterId/sign", func(c echo.Context) error {
		return handler.SignEncounter(c, c.Param("encounterId"))
	})
	v1.GET("/problems/:problemId/history", func(c echo.Context) error {
		return handler.GetVisitHistory(c, c.Param("problemId"))
	})
	v1.GET("/problems/:problemId/changelog", func(c echo.Context) error {
		return handler.GetChangeLog(c, c.Param("problemId"))
	})
	v1.GET("/patients/:patientId/problems", func(c echo.Context) error {
		return handler.ListProblems(c, c.Param("patientId"))
	})
	v1.POST("/orders/merge", handler.MergeOrders)

	return e, nil
}
