package echoapi

import (
	"fmt"
	"net/http"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/ecolage/core"
)

var (
	errUnauthorized       = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAccountDeactivated = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired     = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden      = echo.NewHTTPError(http.StatusForbidden, "permission denied")
)

// errorResponse is the body of every error response.
type errorResponse struct {
	Code    string            `json:"code"`
	Error   string            `json:"error"`
	Fields  map[string]string `json:"fields,omitempty"`
	Details interface{}       `json:"details,omitempty"`
}

func fieldsMap(flds []core.FieldError) map[string]string {
	if len(flds) == 0 {
		return nil
	}
	m := make(map[string]string, len(flds))
	for _, fErr := range flds {
		m[fErr.Field] = fErr.Error
	}
	return m
}

// httpCode turns a status into a snake_case code, eg. 403 -> "forbidden".
func httpCode(status int) string {
	return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
}

func validationResponse(vErr *core.ValidationError) errorResponse {
	resp := errorResponse{
		Code:   vErr.Code(),
		Error:  vErr.Error(),
		Fields: fieldsMap(vErr.Fields),
	}
	if len(vErr.Details) > 0 {
		resp.Details = vErr.Details
	}
	return resp
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var resp errorResponse

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				origErr = echo.NewHTTPError(http.StatusUnauthorized, origErr.Message)
			} else if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
				origErr = herr
			}
			code = origErr.Code
			resp = errorResponse{Code: httpCode(code), Error: fmt.Sprint(origErr.Message)}
		case validator.ValidationErrors:
			code = http.StatusBadRequest
			resp = validationResponse(core.TranslateValidationErrors(origErr, translator))
		case *core.ValidationError:
			code = http.StatusBadRequest
			resp = validationResponse(origErr)
		case *core.NotEligibleError:
			code = http.StatusUnprocessableEntity
			resp = errorResponse{Code: origErr.Code(), Error: origErr.Error()}
			details := map[string]interface{}{"reason": origErr.Reason}
			for k, v := range origErr.Details {
				details[k] = v
			}
			resp.Details = details
		case *core.InvalidStateTransitionError:
			code = http.StatusConflict
			resp = errorResponse{
				Code:    origErr.Code(),
				Error:   origErr.Error(),
				Details: map[string]string{"from": origErr.From, "action": origErr.Action},
			}
		case *core.NotFoundError:
			code = http.StatusNotFound
			resp = errorResponse{Code: origErr.Code(), Error: origErr.Error()}
		case *core.ConflictError:
			code = http.StatusConflict
			resp = errorResponse{Code: origErr.Code(), Error: origErr.Error(), Details: origErr.Details}
		default: // any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(code)
			resp = errorResponse{Code: httpCode(code), Error: msg}

			var actor core.Actor
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				actor = claims.Actor()
			}
			logger.Error(msg, errors.Wrap(err, msg), actor)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}

			if ctx.Echo().Debug {
				resp.Error = err.Error()
			}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, resp)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
