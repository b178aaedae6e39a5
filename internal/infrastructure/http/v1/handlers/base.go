// Package handlers contains HTTP request handlers for the v1 API.
package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
)

const dateLayout = "2006-01-02"

// parseIDParam extracts and validates a UUID path parameter.
func parseIDParam(c *gin.Context, name string) (id.ID, bool) {
	raw := c.Param(name)
	parsed, err := id.Parse(raw)
	if err != nil {
		_ = c.Error(apperror.NewValidation("invalid " + name).WithDetail(name, raw))
		return id.Nil(), false
	}
	return parsed, true
}

// parseDateQuery extracts an optional YYYY-MM-DD query parameter.
// Returns the zero time when the parameter is absent.
func parseDateQuery(c *gin.Context, name string) (time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.ParseInLocation(dateLayout, raw, time.UTC)
	if err != nil {
		_ = c.Error(apperror.NewValidation("invalid date for " + name + ", expected YYYY-MM-DD").WithDetail(name, raw))
		return time.Time{}, false
	}
	return t, true
}
