package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicapi/clinic/internal/platform/apperr"
)

// unauthenticatedMessage is the only message a 401 ever carries, so callers
// cannot tell a bad signature from an expired or missing token.
const unauthenticatedMessage = "authentication required"

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Code      apperr.Code       `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// HTTPErrorHandler renders *apperr.Error and *echo.HTTPError values as
// ErrorBody. Internal errors are logged and replaced by a generic message.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := errorBody(err)
		body.RequestID, _ = c.Get("request_id").(string)

		if status >= http.StatusInternalServerError {
			logger.Error().Err(err).Str("request_id", body.RequestID).Msg("request failed")
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, body)
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("write error response")
		}
	}
}

func errorBody(err error) (int, ErrorBody) {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		status := ae.Code.HTTPStatus()
		body := ErrorBody{Code: ae.Code, Message: ae.Message, Fields: ae.Fields}
		switch ae.Code {
		case apperr.CodeUnauthenticated:
			body.Message = unauthenticatedMessage
		case apperr.CodeInternal:
			body.Message = http.StatusText(http.StatusInternalServerError)
		}
		return status, body
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code := codeForStatus(he.Code)
		msg := fmt.Sprintf("%v", he.Message)
		switch {
		case code == apperr.CodeUnauthenticated:
			msg = unauthenticatedMessage
		case he.Code >= http.StatusInternalServerError:
			msg = http.StatusText(he.Code)
		}
		return he.Code, ErrorBody{Code: code, Message: msg}
	}

	return http.StatusInternalServerError, ErrorBody{
		Code:    apperr.CodeInternal,
		Message: http.StatusText(http.StatusInternalServerError),
	}
}

func codeForStatus(status int) apperr.Code {
	switch status {
	case http.StatusUnauthorized:
		return apperr.CodeUnauthenticated
	case http.StatusForbidden:
		return apperr.CodeForbidden
	case http.StatusNotFound:
		return apperr.CodeNotFound
	case http.StatusConflict:
		return apperr.CodeConflict
	case http.StatusTooManyRequests:
		return apperr.CodeRateLimited
	}
	if status >= 400 && status < 500 {
		return apperr.CodeValidationFailed
	}
	return apperr.CodeInternal
}
