package handler

import (
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"
)

// tenantFromContext extracts the tenant_id placed in the context by the
// JWT middleware.  A zero return means the route was wired without the
// middleware, which scoped queries treat as matching nothing.
func tenantFromContext(c echo.Context) uint64 {
	v := c.Get("tenant_id")
	switch t := v.(type) {
	case uint64:
		return t
	case int:
		return uint64(t)
	case int64:
		return uint64(t)
	case float64:
		return uint64(t)
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

// actorFromContext builds the audit identity recorded on manual
// amendment decisions.
func actorFromContext(c echo.Context) string {
	if id := tenantFromContext(c); id != 0 {
		return fmt.Sprintf("tenant:%d", id)
	}
	return "unknown"
}
