package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"tripfund/internal/coordinator"
)

// ErrorResponse is the JSON body for every error the API returns.
type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`

	// Populated for threshold failures so clients can show progress.
	CurrentParticipants int `json:"current_participants,omitempty"`
	MinParticipants     int `json:"min_participants,omitempty"`
}

// CustomErrorHandler maps coordinator outcomes onto HTTP statuses. Business
// outcomes (decline, threshold not met, duplicate join) get precise codes;
// anything unrecognized is a 500 with a generic body.
func CustomErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	body := ErrorResponse{Error: "internal server error"}

	var pf *coordinator.PaymentFailedError
	var tnm *coordinator.ThresholdNotMetError
	var he *echo.HTTPError

	switch {
	case errors.As(err, &pf):
		code = http.StatusPaymentRequired
		body = ErrorResponse{Error: "payment failed", Reason: pf.Reason}
	case errors.As(err, &tnm):
		code = http.StatusConflict
		body = ErrorResponse{
			Error:               "threshold not met",
			CurrentParticipants: tnm.Current,
			MinParticipants:     tnm.Required,
		}
	case errors.Is(err, coordinator.ErrInvalidArgument):
		code = http.StatusBadRequest
		body = ErrorResponse{Error: err.Error()}
	case errors.Is(err, coordinator.ErrConfigurationMissing):
		code = http.StatusNotFound
		body = ErrorResponse{Error: coordinator.ErrConfigurationMissing.Error()}
	case errors.Is(err, coordinator.ErrNothingToRemove):
		code = http.StatusNotFound
		body = ErrorResponse{Error: coordinator.ErrNothingToRemove.Error()}
	case errors.Is(err, coordinator.ErrAlreadyPending):
		code = http.StatusConflict
		body = ErrorResponse{Error: coordinator.ErrAlreadyPending.Error()}
	case errors.Is(err, coordinator.ErrAlreadyAuthorized):
		code = http.StatusConflict
		body = ErrorResponse{Error: coordinator.ErrAlreadyAuthorized.Error()}
	case errors.Is(err, coordinator.ErrAlreadyFinal):
		code = http.StatusConflict
		body = ErrorResponse{Error: coordinator.ErrAlreadyFinal.Error()}
	case errors.Is(err, coordinator.ErrNotHost):
		code = http.StatusForbidden
		body = ErrorResponse{Error: coordinator.ErrNotHost.Error()}
	case errors.Is(err, coordinator.ErrGatewayTimeout):
		code = http.StatusGatewayTimeout
		body = ErrorResponse{Error: coordinator.ErrGatewayTimeout.Error()}
	case errors.As(err, &he):
		code = he.Code
		if msg, ok := he.Message.(string); ok && msg != "" {
			body = ErrorResponse{Error: msg}
		} else {
			body = ErrorResponse{Error: http.StatusText(code)}
		}
	}

	if code == http.StatusInternalServerError {
		c.Logger().Error(err)
	}

	if jsonErr := c.JSON(code, body); jsonErr != nil {
		c.Logger().Error(jsonErr)
	}
}
