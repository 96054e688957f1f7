package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const requestIDKey = "request_id"

// SlogPanicRecover turns a handler panic into a 500 and logs the stack.
func SlogPanicRecover(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (returnErr error) {
			defer func() {
				if r := recover(); r != nil {
					err, ok := r.(error)
					if !ok {
						err = fmt.Errorf("%v", r)
					}
					logger.ErrorContext(c.Request().Context(), "PANIC recovered",
						"request_id", c.Get(requestIDKey),
						"error", err,
						"stack", string(debug.Stack()),
					)
					if hub := sentryecho.GetHubFromContext(c); hub != nil {
						hub.Recover(r)
					}
					returnErr = echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
				}
			}()
			return next(c)
		}
	}
}

// RequestLogger assigns a request id and logs one line per request. Server
// errors are also sent to Sentry when a hub is attached.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			reqID := c.Request().Header.Get(echo.HeaderXRequestID)
			if reqID == "" {
				reqID = uuid.New().String()
			}
			c.Set(requestIDKey, reqID)
			c.Response().Header().Set(echo.HeaderXRequestID, reqID)

			hub := sentryecho.GetHubFromContext(c)
			if hub != nil {
				hub.Scope().SetTag(requestIDKey, reqID)
			}

			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				} else {
					status = http.StatusInternalServerError
				}
				if status >= http.StatusInternalServerError && hub != nil {
					hub.CaptureException(err)
				}
			}

			logger.InfoContext(c.Request().Context(), "HTTP Request",
				"request_id", reqID,
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", status,
				"latency_ms", time.Since(start).Milliseconds(),
				"user_agent", c.Request().UserAgent(),
				"ip", c.RealIP(),
			)
			return err
		}
	}
}
