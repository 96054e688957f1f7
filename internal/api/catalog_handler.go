package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jjckrbbt/labcatalog/internal/processing"
	"github.com/jjckrbbt/labcatalog/internal/repository"
	"github.com/labstack/echo/v4"
)

// MappingLister exposes the registered mappings.
type MappingLister interface {
	Configs() []processing.MappingConfig
}

// CatalogHandler serves read-only views of the catalog, the service
// registry, the registered mappings and the ingest run history.
type CatalogHandler struct {
	queries  repository.Querier
	mappings MappingLister
	logger   *slog.Logger
}

// NewCatalogHandler creates a new instance of the CatalogHandler.
func NewCatalogHandler(q repository.Querier, mappings MappingLister, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{
		queries:  q,
		mappings: mappings,
		logger:   logger.With("component", "catalog_handler"),
	}
}

func (h *CatalogHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/catalog", h.listEntries)
	g.GET("/catalog/:id", h.getEntry)
	g.GET("/services", h.listServices)
	g.GET("/mappings", h.listMappings)
	g.GET("/ingest-runs", h.listRuns)
}

// MappingSummary is the public view of a mapping configuration.
type MappingSummary struct {
	ServiceName    string             `json:"service_name"`
	Variant        string             `json:"variant"`
	Category       string             `json:"category"`
	DefaultSheet   string             `json:"default_sheet,omitempty"`
	HeaderRowIndex int                `json:"header_row_index"`
	Fields         []processing.Field `json:"fields"`
	SkipGroups     []string           `json:"skip_groups"`
}

func (h *CatalogHandler) listEntries(c echo.Context) error {
	ctx := c.Request().Context()
	list := parseListParams(c)
	service := optionalQuery(c, "service")
	search := optionalQuery(c, "q")

	entries, err := h.queries.ListCatalogEntries(ctx, repository.ListCatalogEntriesParams{
		ServiceName: service,
		Search:      search,
		Limit:       list.Limit,
		Offset:      list.Offset,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list catalog entries", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get catalog entries").SetInternal(err)
	}
	total, err := h.queries.CountCatalogEntries(ctx, repository.CountCatalogEntriesParams{
		ServiceName: service,
		Search:      search,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to count catalog entries", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get catalog entries").SetInternal(err)
	}
	if entries == nil {
		entries = []repository.CatalogEntry{}
	}

	return c.JSON(http.StatusOK, PaginatedResponse{
		TotalCount: total,
		Page:       list.Page,
		Limit:      list.Limit,
		Data:       entries,
	})
}

func (h *CatalogHandler) getEntry(c echo.Context) error {
	ctx := c.Request().Context()
	idParam := c.Param("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		h.logger.WarnContext(ctx, "invalid catalog entry ID format provided", "error", err, "id_param", idParam)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid catalog entry ID format")
	}

	entry, err := h.queries.GetCatalogEntry(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "catalog entry not found")
		}
		h.logger.ErrorContext(ctx, "failed to get catalog entry", "error", err, "id", id)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get catalog entry").SetInternal(err)
	}
	return c.JSON(http.StatusOK, entry)
}

func (h *CatalogHandler) listServices(c echo.Context) error {
	ctx := c.Request().Context()
	services, err := h.queries.ListServices(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list services", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get services").SetInternal(err)
	}
	if services == nil {
		services = []repository.Service{}
	}
	return c.JSON(http.StatusOK, services)
}

func (h *CatalogHandler) listMappings(c echo.Context) error {
	configs := h.mappings.Configs()
	out := make([]MappingSummary, 0, len(configs))
	for _, cfg := range configs {
		fields := make([]processing.Field, 0, len(cfg.Columns))
		for _, f := range processing.Fields {
			if _, ok := cfg.Columns[f]; ok {
				fields = append(fields, f)
			}
		}
		skip := cfg.SkipGroups
		if skip == nil {
			skip = []string{}
		}
		out = append(out, MappingSummary{
			ServiceName:    cfg.ServiceName,
			Variant:        cfg.Variant,
			Category:       cfg.Category,
			DefaultSheet:   cfg.DefaultSheet,
			HeaderRowIndex: cfg.HeaderRowIndex,
			Fields:         fields,
			SkipGroups:     skip,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CatalogHandler) listRuns(c echo.Context) error {
	ctx := c.Request().Context()
	list := parseListParams(c)

	runs, err := h.queries.ListIngestRuns(ctx, repository.ListIngestRunsParams{
		ServiceName: optionalQuery(c, "service"),
		Limit:       list.Limit,
		Offset:      list.Offset,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list ingest runs", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get ingest runs").SetInternal(err)
	}
	if runs == nil {
		runs = []repository.IngestRun{}
	}

	h.logger.InfoContext(ctx, "successfully retrieved ingest runs", "count", len(runs), "limit", list.Limit, "offset", list.Offset)
	return c.JSON(http.StatusOK, runs)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler answers GET /health.
func HealthHandler(store Pinger, logger *slog.Logger) echo.HandlerFunc {
	logger = logger.With("component", "health")
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if err := store.Ping(ctx); err != nil {
			logger.ErrorContext(ctx, "Store ping failed during health check", "error", err)
			return c.String(http.StatusServiceUnavailable, "DB Not Ready")
		}
		return c.String(http.StatusOK, "OK")
	}
}
