// Package api exposes the engine's operations over HTTP. Handlers are thin
// wrappers: decode and validate the request, call the engine, map typed
// errors to status codes.
package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apimw "github.com/tandahub/tanda/internal/api/middleware"
	"github.com/tandahub/tanda/internal/auth"
	"github.com/tandahub/tanda/internal/engine"
	"github.com/tandahub/tanda/internal/settlement"
	"github.com/tandahub/tanda/internal/storage"
)

// Server wires the engine to HTTP routes.
type Server struct {
	engine *engine.Engine
}

// NewServer creates an API server over the given engine.
func NewServer(e *engine.Engine) *Server {
	return &Server{engine: e}
}

// Register mounts all routes on the echo instance. Every /api route
// requires a valid bearer token; /metrics and /healthz do not.
func (s *Server) Register(e *echo.Echo, jwtManager *auth.JWTManager) {
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	g := e.Group("/api", apimw.RequireAuth(jwtManager))
	g.POST("/roscas", s.createROSCA)
	g.GET("/roscas", s.listROSCAs)
	g.GET("/roscas/:id", s.getROSCA)
	g.POST("/roscas/:id/join", s.joinROSCA)
	g.POST("/roscas/:id/advance", s.advanceRound)
	g.POST("/roscas/:id/cancel", s.cancelROSCA)
	g.GET("/roscas/:id/payments", s.listPayments)
	g.POST("/payments/:id/submit", s.submitPayment)
	g.GET("/me/participations", s.listParticipations)
	g.GET("/me/notifications", s.listNotifications)
}

// httpError maps the engine's typed outcomes to response codes.
func httpError(err error) error {
	switch {
	case errors.Is(err, storage.ErrInvalidConfig):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, storage.ErrFull),
		errors.Is(err, storage.ErrAlreadyJoined),
		errors.Is(err, storage.ErrDuplicateRound),
		errors.Is(err, storage.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, storage.ErrNotForming),
		errors.Is(err, storage.ErrStateForbidden),
		errors.Is(err, settlement.ErrAlreadySettled):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, settlement.ErrSubmission),
		errors.Is(err, settlement.ErrTimeout),
		errors.Is(err, settlement.ErrRejected):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
