package api

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// ListParams holds the common pagination parameters
type ListParams struct {
	Limit  int32
	Offset int32
	Page   int
}

// PaginatedResponse wraps a page of results with the total match count.
type PaginatedResponse struct {
	TotalCount int64 `json:"total_count"`
	Page       int   `json:"page"`
	Limit      int32 `json:"limit"`
	Data       any   `json:"data"`
}

// parseListParams reads limit and page query parameters. Missing or invalid
// values fall back to the first page of defaultPageSize; limits are capped.
func parseListParams(c echo.Context) ListParams {
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	page, err := strconv.Atoi(c.QueryParam("page"))
	if err != nil || page <= 0 {
		page = 1
	}
	return ListParams{
		Limit:  int32(limit),
		Offset: int32((page - 1) * limit),
		Page:   page,
	}
}

func optionalQuery(c echo.Context, name string) *string {
	if v := c.QueryParam(name); v != "" {
		return &v
	}
	return nil
}
