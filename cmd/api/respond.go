package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/render"
	"go.uber.org/zap"

	"marketplace/apperr"
	"marketplace/user"
	"marketplace/vendorprofile"
)

type successBody struct {
	Success    bool `json:"success"`
	StatusCode int  `json:"statusCode"`
	Data       any  `json:"data"`
}

type errorBody struct {
	Success    bool     `json:"success"`
	StatusCode int      `json:"statusCode"`
	Message    string   `json:"message"`
	Fields     []string `json:"fields,omitempty"`
	Values     []string `json:"values,omitempty"`
	Path       string   `json:"path"`
	Method     string   `json:"method"`
	Timestamp  string   `json:"timestamp"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func writeData(w http.ResponseWriter, r *http.Request, status int, data any) {
	render.Status(r, status)
	render.JSON(w, r, successBody{Success: true, StatusCode: status, Data: data})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ae := classify(err)
	status := ae.HTTPStatus()
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	}

	render.Status(r, status)
	render.JSON(w, r, errorBody{
		Success:    false,
		StatusCode: status,
		Message:    ae.Message,
		Fields:     ae.Fields,
		Values:     ae.Values,
		Path:       r.URL.Path,
		Method:     r.Method,
		Timestamp:  s.now().UTC().Format(time.RFC3339),
	})
}

// classify turns any service error into an *apperr.Error. Internal details
// never reach the response body.
func classify(err error) *apperr.Error {
	if ae, ok := apperr.As(err); ok {
		return ae
	}
	switch {
	case errors.Is(err, user.ErrNotFound):
		return apperr.Wrap(apperr.KindNotFound, "User not found", err)
	case errors.Is(err, vendorprofile.ErrNotFound):
		return apperr.Wrap(apperr.KindNotFound, "Vendor profile not found", err)
	case errors.Is(err, vendorprofile.ErrUnknownUser):
		return apperr.Wrap(apperr.KindNotFound, "User not found", err)
	case errors.Is(err, user.ErrInvalidType):
		return apperr.Wrap(apperr.KindInvalidFormat, "Invalid user type", err)
	case errors.Is(err, user.ErrInvalidStatus):
		return apperr.Wrap(apperr.KindInvalidFormat, "Invalid status", err)
	case errors.Is(err, user.ErrInvalidEmail):
		return apperr.Wrap(apperr.KindInvalidFormat, "Invalid email format", err).WithField("email", "")
	case errors.Is(err, user.ErrInvalidPhone):
		return apperr.Wrap(apperr.KindInvalidFormat, "Invalid phone number format", err).WithField("phone", "")
	case errors.Is(err, user.ErrFirstNameRequired):
		return apperr.Wrap(apperr.KindInvalidFormat, "First name is required", err).WithField("firstName", "")
	case errors.Is(err, user.ErrDuplicateEmail):
		return apperr.Wrap(apperr.KindConflict, "User with this email already exists", err).WithField("email", "")
	case errors.Is(err, user.ErrDuplicateExternalID):
		return apperr.Wrap(apperr.KindConflict, "User with this identity already exists", err).WithField("awsCognitoId", "")
	case errors.Is(err, vendorprofile.ErrInvalidEstablishment):
		return apperr.Wrap(apperr.KindInvalidFormat, "Invalid establishment year", err).WithField("establishment", "")
	case errors.Is(err, vendorprofile.ErrInvalidEmployeeCount):
		return apperr.Wrap(apperr.KindInvalidFormat, "Employee count must not be negative", err).WithField("employeeCount", "")
	case errors.Is(err, vendorprofile.ErrUnknownBusinessType):
		return apperr.Wrap(apperr.KindInvalidRequest, "Unknown business type", err).WithField("businessTypeId", "")
	case errors.Is(err, vendorprofile.ErrProfileExists):
		return apperr.Wrap(apperr.KindConflict, "Vendor profile already exists", err)
	case errors.Is(err, context.DeadlineExceeded):
		return apperr.Wrap(apperr.KindInternal, "Request timed out", err).WithStatus(http.StatusGatewayTimeout)
	default:
		return apperr.Wrap(apperr.KindInternal, "Internal server error", err)
	}
}

func decodeJSON(r *http.Request, v any) error {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		return apperr.Wrap(apperr.KindInvalidFormat, "Invalid request body", err)
	}
	return nil
}
