package api

import (
	"github.com/labstack/echo/v4"

	"github.com/satriahrh/convai-relay/internal/metrics"
)

// MetricsMiddleware counts requests by route and final status
func MetricsMiddleware(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.RecordHTTPRequest(route, c.Response().Status)
			return nil
		}
	}
}
