// Package archive stores raw rate-list uploads in Google Cloud Storage so
// every catalog refresh can be traced back to the exact bytes ingested.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"regexp"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
)

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// GCSArchiver uploads raw files to a single bucket.
type GCSArchiver struct {
	client *storage.Client
	bucket string
	logger *slog.Logger
}

func NewGCSArchiver(client *storage.Client, bucket string, logger *slog.Logger) *GCSArchiver {
	return &GCSArchiver{
		client: client,
		bucket: bucket,
		logger: logger.With("component", "archive"),
	}
}

// Archive writes data under raw-rate-lists/<service>/<run id>-<file> and
// returns the gs:// URI of the stored object.
func (a *GCSArchiver) Archive(ctx context.Context, runID uuid.UUID, serviceName, filename string, data []byte) (string, error) {
	key := ObjectKey(runID, serviceName, filename)

	wc := a.client.Bucket(a.bucket).Object(key).NewWriter(ctx)
	wc.ContentType = contentType(filename)
	wc.Metadata = map[string]string{
		"service_name": serviceName,
		"run_id":       runID.String(),
	}

	if _, err := io.Copy(wc, bytes.NewReader(data)); err != nil {
		_ = wc.Close()
		a.logger.ErrorContext(ctx, "Failed to upload file to GCS", "error", err, "object_key", key)
		return "", fmt.Errorf("failed to upload file to GCS: %w", err)
	}
	if err := wc.Close(); err != nil {
		a.logger.ErrorContext(ctx, "Failed to close GCS writer", "error", err, "object_key", key)
		return "", fmt.Errorf("failed to close GCS writer: %w", err)
	}

	uri := fmt.Sprintf("gs://%s/%s", a.bucket, key)
	a.logger.InfoContext(ctx, "Rate list archived", "run_id", runID, "uri", uri, "bytes", len(data))
	return uri, nil
}

// ObjectKey builds the storage key for one upload. Path separators and other
// unsafe characters in the service name and file name are replaced.
func ObjectKey(runID uuid.UUID, serviceName, filename string) string {
	service := sanitize(strings.ToLower(serviceName))
	file := sanitize(path.Base(strings.ReplaceAll(filename, "\\", "/")))
	if file == "" || file == "." {
		file = "upload.xlsx"
	}
	return fmt.Sprintf("raw-rate-lists/%s/%s-%s", service, runID.String(), file)
}

func sanitize(s string) string {
	return strings.Trim(unsafeKeyChars.ReplaceAllString(strings.TrimSpace(s), "-"), "-")
}

func contentType(filename string) string {
	if strings.EqualFold(path.Ext(filename), ".xlsx") {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "application/octet-stream"
}
