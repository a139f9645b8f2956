package middleware

import (
	"time"

	applogger "TasaPull/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RequestLogging logs every request at debug level and failed ones as errors.
func RequestLogging(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			fields := []applogger.Field{
				applogger.String("method", c.Request().Method),
				applogger.String("route", c.Path()),
				applogger.String("uri", c.Request().RequestURI),
				applogger.Int("status", c.Response().Status),
				applogger.Duration("latency", time.Since(start)),
			}
			if c.Response().Status >= 500 {
				l.Error("http request failed", fields...)
			} else {
				l.Debug("http request", fields...)
			}
			return nil
		}
	}
}
