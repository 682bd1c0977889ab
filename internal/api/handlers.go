package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	apimw "github.com/tandahub/tanda/internal/api/middleware"
	"github.com/tandahub/tanda/internal/engine"
	"github.com/tandahub/tanda/internal/models"
)

type createROSCARequest struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	TotalAmount     int64  `json:"total_amount"`
	Frequency       string `json:"frequency"`
	Rounds          int    `json:"rounds"`
	MaxParticipants int    `json:"max_participants"`
	StartDate       int64  `json:"start_date"`
}

func (s *Server) createROSCA(c echo.Context) error {
	var req createROSCARequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	rosca, err := s.engine.CreateROSCA(c.Request().Context(), engine.CreateROSCAInput{
		Name:            req.Name,
		Description:     req.Description,
		TotalAmount:     req.TotalAmount,
		Frequency:       models.Frequency(req.Frequency),
		Rounds:          req.Rounds,
		MaxParticipants: req.MaxParticipants,
		StartDate:       req.StartDate,
		AdminID:         apimw.GetUserID(c),
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, toROSCAResponse(rosca))
}

func (s *Server) getROSCA(c echo.Context) error {
	rosca, err := s.engine.GetROSCA(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toROSCAResponse(rosca))
}

func (s *Server) listROSCAs(c echo.Context) error {
	status := models.ROSCAStatus(c.QueryParam("status"))
	roscas, err := s.engine.ListROSCAs(c.Request().Context(), status)
	if err != nil {
		return httpError(err)
	}
	out := make([]*roscaResponse, len(roscas))
	for i, r := range roscas {
		out[i] = toROSCAResponse(r)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) joinROSCA(c echo.Context) error {
	participation, err := s.engine.JoinROSCA(c.Request().Context(), c.Param("id"), apimw.GetUserID(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, toParticipationResponse(participation))
}

func (s *Server) advanceRound(c echo.Context) error {
	advanced, err := s.engine.AdvanceRound(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"advanced": advanced})
}

type cancelROSCARequest struct {
	Reason string `json:"reason"`
}

func (s *Server) cancelROSCA(c echo.Context) error {
	var req cancelROSCARequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	err := s.engine.CancelROSCA(c.Request().Context(), c.Param("id"), apimw.GetUserID(c), req.Reason)
	if err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listPayments(c echo.Context) error {
	var round *int
	if raw := c.QueryParam("round"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "round must be a positive integer")
		}
		round = &n
	}

	payments, err := s.engine.ListPayments(c.Request().Context(), c.Param("id"), round)
	if err != nil {
		return httpError(err)
	}
	out := make([]*paymentResponse, len(payments))
	for i, p := range payments {
		out[i] = toPaymentResponse(p)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) submitPayment(c echo.Context) error {
	txID, err := s.engine.SubmitPayment(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"tx_id": txID})
}

func (s *Server) listParticipations(c echo.Context) error {
	participations, err := s.engine.ListParticipations(c.Request().Context(), apimw.GetUserID(c))
	if err != nil {
		return httpError(err)
	}
	out := make([]*participationResponse, len(participations))
	for i, p := range participations {
		out[i] = toParticipationResponse(p)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) listNotifications(c echo.Context) error {
	notifications, err := s.engine.ListNotifications(c.Request().Context(), apimw.GetUserID(c))
	if err != nil {
		return httpError(err)
	}
	out := make([]*notificationResponse, len(notifications))
	for i, n := range notifications {
		out[i] = toNotificationResponse(n)
	}
	return c.JSON(http.StatusOK, out)
}
