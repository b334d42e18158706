package errcodes

import (
	"context"
	"net/http"

	"github.com/iancoleman/strcase"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/robinjoseph08/golib/errutils"
	golog "github.com/robinjoseph08/golib/logger"
)

// Payload is the body of every error response.
type Payload struct {
	Error PayloadError `json:"error"`
}

type PayloadError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
}

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

// Handle renders err as a Payload. Errors that are neither *Error nor
// *echo.HTTPError become a 500, except for deadlines which become a 504.
func (h *Handler) Handle(err error, c echo.Context) {
	log := logger.FromEchoContext(c)

	if errutils.IsIgnorableErr(err) {
		log.Err(err).Warn("broken pipe")
		return
	}
	if errors.Is(err, context.Canceled) && c.Request().Context().Err() != nil {
		log.Err(err).Warn("request canceled by client")
		return
	}

	payload := Render(err)
	switch {
	case payload.Error.StatusCode >= http.StatusInternalServerError && payload.Error.Code == "internal_server_error":
		log.Err(err).Error("server error")
	case payload.Error.StatusCode >= http.StatusInternalServerError:
		log.Err(err).Warn("upstream failure", golog.Data{"code": payload.Error.Code})
	}

	if c.Response().Committed {
		return
	}
	if err := c.JSON(payload.Error.StatusCode, payload); err != nil {
		log.Err(errors.WithStack(err)).Error("error handler json error")
	}
}

// Render converts err into the payload that would be sent for it.
func Render(err error) Payload {
	p := PayloadError{StatusCode: http.StatusInternalServerError}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		p.StatusCode = he.Code
		if msg, ok := he.Message.(string); ok {
			p.Message = msg
		} else {
			p.Message = http.StatusText(he.Code)
		}
		p.Code = strcase.ToSnake(p.Message)
	}

	var e *Error
	if errors.As(err, &e) {
		p.StatusCode = e.HTTPCode
		p.Code = e.Code
		p.Message = e.Message
	}

	if p.Message == "" && errors.Is(err, context.DeadlineExceeded) {
		p.StatusCode = http.StatusGatewayTimeout
		p.Code = "timeout"
		p.Message = "The request timed out."
	}

	if p.StatusCode == http.StatusInternalServerError && p.Message == "" {
		p.Code = "internal_server_error"
		p.Message = "Internal Server Error"
	}

	return Payload{Error: p}
}
