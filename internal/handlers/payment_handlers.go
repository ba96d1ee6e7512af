package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"tripfund/internal/coordinator"
)

type PaymentHandler struct {
	coord *coordinator.Coordinator
}

func NewPaymentHandler(coord *coordinator.Coordinator) *PaymentHandler {
	return &PaymentHandler{coord: coord}
}

// RegisterRoutes wires the payment API under the given group.
func (h *PaymentHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/payments/setup", h.SetupPayment)
	g.POST("/payments/:tripId/join", h.Join)
	g.DELETE("/payments/:tripId/participants/:participantId", h.RemoveParticipant)
	g.POST("/payments/:tripId/virtual-card", h.IssueVirtualCard)
	g.GET("/payments/:tripId/status", h.Status)
}

// SetupPayment creates the trip's payment configuration. When the trip is
// already configured the existing configuration is returned with 409; clients
// treat that as success.
func (h *PaymentHandler) SetupPayment(c echo.Context) error {
	var req SetupPaymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	// An authenticated caller is always the host of the setup they request.
	if uid := getStringFromContext(c, "userUID"); uid != "" {
		req.HostID = uid
	}

	cfg, created, err := h.coord.Setup(c.Request().Context(), coordinator.SetupParams{
		TripID:          req.TripID,
		HostID:          req.HostID,
		TotalCost:       req.TotalCost,
		Currency:        req.Currency,
		MinParticipants: req.MinParticipants,
	})
	if err != nil {
		return err
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusConflict
	}
	return c.JSON(status, SetupPaymentResponse{Configuration: cfg})
}

// Join places a preauthorization hold for the caller and records the seat.
func (h *PaymentHandler) Join(c echo.Context) error {
	tripID := c.Param("tripId")

	var req JoinRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if uid := getStringFromContext(c, "userUID"); uid != "" {
		req.ParticipantID = uid
	}

	res, err := h.coord.JoinWithPayment(c.Request().Context(), tripID, req.ParticipantID, req.PaymentMethod)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, JoinResponse{
		HoldRef:      res.HoldRef,
		ClientSecret: res.ClientSecret,
		Amount:       res.Amount,
		Currency:     res.Currency,
		Threshold:    res.Threshold,
	})
}

// RemoveParticipant voids the participant's hold. Host only.
func (h *PaymentHandler) RemoveParticipant(c echo.Context) error {
	tripID := c.Param("tripId")
	participantID := c.Param("participantId")

	actorID := getStringFromContext(c, "userUID")
	if actorID == "" {
		actorID = c.QueryParam("actor_id")
	}

	view, err := h.coord.RemoveParticipant(c.Request().Context(), tripID, participantID, actorID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, RemoveParticipantResponse{
		Status:    "voided",
		Threshold: view,
	})
}

// IssueVirtualCard issues (or returns) the trip's funding card. Host only.
func (h *PaymentHandler) IssueVirtualCard(c echo.Context) error {
	tripID := c.Param("tripId")

	actorID := getStringFromContext(c, "userUID")
	if actorID == "" {
		actorID = c.QueryParam("actor_id")
	}

	res, err := h.coord.IssueVirtualCard(c.Request().Context(), tripID, actorID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, VirtualCardResponse{
		CardRef:       res.CardRef,
		LastFour:      res.LastFour,
		Brand:         res.Brand,
		ExpMonth:      res.ExpMonth,
		ExpYear:       res.ExpYear,
		FundedAmount:  res.FundedAmount,
		Currency:      res.Currency,
		AlreadyExists: res.AlreadyExists,
	})
}

// Status returns the configuration, the full ledger and the derived
// threshold view for a trip.
func (h *PaymentHandler) Status(c echo.Context) error {
	st, err := h.coord.GetStatus(c.Request().Context(), c.Param("tripId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

// Health is the unauthenticated liveness endpoint.
func Health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// Helper to safely get string values from echo context
func getStringFromContext(c echo.Context, key string) string {
	if val := c.Get(key); val != nil {
		if s, ok := val.(string); ok {
			return s
		}
	}
	return ""
}
