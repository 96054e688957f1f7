package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jjckrbbt/labcatalog/internal/ingestion"
	"github.com/labstack/echo/v4"
)

// MaxUploadBytes bounds the size of an uploaded rate list.
const MaxUploadBytes = 32 << 20

// Ingestor runs one ingestion.
type Ingestor interface {
	Ingest(ctx context.Context, req ingestion.Request) (*ingestion.Report, error)
}

// IngestHandler accepts rate-list uploads and runs them synchronously.
type IngestHandler struct {
	ingestor Ingestor
	logger   *slog.Logger
	now      func() time.Time
}

// NewIngestHandler creates a new instance of the IngestHandler.
func NewIngestHandler(ingestor Ingestor, logger *slog.Logger) *IngestHandler {
	return &IngestHandler{
		ingestor: ingestor,
		logger:   logger.With("component", "ingest_handler"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (h *IngestHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/ingest", h.HandleIngest)
}

// HandleIngest reads the multipart fields rate_list, service_name, sheet,
// version_stamp and dry_run, and answers with the run report.
func (h *IngestHandler) HandleIngest(c echo.Context) error {
	ctx := c.Request().Context()

	serviceName := strings.TrimSpace(c.FormValue("service_name"))
	if serviceName == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "service_name is required")
	}

	dryRun := false
	if raw := c.FormValue("dry_run"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "dry_run must be a boolean")
		}
		dryRun = parsed
	}

	file, err := c.FormFile("rate_list")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "rate_list is required")
	}
	if file.Size > MaxUploadBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, fmt.Sprintf("rate_list exceeds %d bytes", MaxUploadBytes))
	}

	src, err := file.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to open uploaded file").SetInternal(err)
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, MaxUploadBytes+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to read uploaded file").SetInternal(err)
	}
	if len(data) > MaxUploadBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, fmt.Sprintf("rate_list exceeds %d bytes", MaxUploadBytes))
	}

	versionStamp := strings.TrimSpace(c.FormValue("version_stamp"))
	if versionStamp == "" {
		versionStamp = h.now().Format(time.RFC3339)
	}

	req := ingestion.Request{
		Data:         data,
		ServiceName:  serviceName,
		SheetName:    strings.TrimSpace(c.FormValue("sheet")),
		VersionStamp: versionStamp,
		SourcePath:   file.Filename,
		DryRun:       dryRun,
	}

	h.logger.InfoContext(ctx, "Ingest requested", "service", serviceName, "sheet", req.SheetName, "file", file.Filename, "dry_run", dryRun)

	report, err := h.ingestor.Ingest(ctx, req)
	if err != nil {
		return h.ingestError(ctx, err)
	}
	return c.JSON(http.StatusOK, report)
}

func (h *IngestHandler) ingestError(ctx context.Context, err error) error {
	var structErr *ingestion.StructuralError
	switch {
	case errors.Is(err, ingestion.ErrUnknownMapping):
		h.logger.WarnContext(ctx, "Ingest rejected: unknown mapping", "error", err)
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.As(err, &structErr):
		h.logger.WarnContext(ctx, "Ingest rejected: structural error", "error", err)
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.logger.WarnContext(ctx, "Ingest abandoned by caller", "error", err)
		return echo.NewHTTPError(http.StatusServiceUnavailable, "ingestion was cancelled").SetInternal(err)
	default:
		h.logger.ErrorContext(ctx, "Ingest failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "ingestion failed").SetInternal(err)
	}
}
