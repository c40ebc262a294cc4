package logging

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// health endpoints are polled by orchestrators and would drown the log
var quietPaths = map[string]struct{}{
	"/healthz": {},
	"/readyz":  {},
}

// LoggerMiddleware writes one entry per request. Client errors are logged at
// warn and server errors at error level.
func LoggerMiddleware(logger *logrus.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			if _, ok := quietPaths[req.URL.Path]; ok {
				return nil
			}

			res := c.Response()
			entry := logger.WithFields(logrus.Fields{
				"method":     req.Method,
				"uri":        req.RequestURI,
				"route":      c.Path(),
				"status":     res.Status,
				"remote_ip":  c.RealIP(),
				"latency_ms": time.Since(start).Milliseconds(),
				"bytes_out":  res.Size,
			})
			if err != nil {
				entry = entry.WithError(err)
			}

			switch {
			case res.Status >= http.StatusInternalServerError:
				entry.Error("request failed")
			case res.Status >= http.StatusBadRequest:
				entry.Warn("request rejected")
			default:
				entry.Info("request served")
			}
			return nil
		}
	}
}
