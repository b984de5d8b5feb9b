// Package report writes projector output to blob storage as downloadable
// CSV and JSON artifacts.
package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"trackcore/internal/blob"
	"trackcore/internal/core"
)

// Format identifies an export serialization.
type Format string

// Supported export formats.
const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// Exporter renders tenant summaries and stores them as blobs.
type Exporter struct {
	projector *core.Projector
	blobs     blob.Store
	nowFn     func() time.Time
}

// NewExporter constructs an exporter over a projector and a blob store.
func NewExporter(projector *core.Projector, blobs blob.Store) *Exporter {
	return &Exporter{
		projector: projector,
		blobs:     blobs,
		nowFn:     func() time.Time { return time.Now().UTC() },
	}
}

// ExportSummary renders the tenant summary in the requested format and stores
// it under a timestamped key. The returned info carries the blob key and, for
// drivers that support it, a URL.
func (e *Exporter) ExportSummary(ctx context.Context, tenantID string, format Format) (blob.Info, error) {
	rows, err := e.projector.Summary(ctx, tenantID)
	if err != nil {
		return blob.Info{}, err
	}

	var payload []byte
	var contentType string
	switch format {
	case FormatCSV:
		payload, err = encodeCSV(rows)
		contentType = "text/csv"
	case FormatJSON:
		payload, err = json.MarshalIndent(rows, "", "  ")
		contentType = "application/json"
	default:
		return blob.Info{}, fmt.Errorf("unknown export format %q", format)
	}
	if err != nil {
		return blob.Info{}, err
	}

	key := e.key(tenantID, format)
	return e.blobs.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
		ContentType: contentType,
		Metadata: map[string]string{
			"tenant_id": tenantID,
			"rows":      strconv.Itoa(len(rows)),
		},
	})
}

func (e *Exporter) key(tenantID string, format Format) string {
	scope := tenantID
	if scope == "" {
		scope = "all"
	}
	return fmt.Sprintf("reports/%s/summary-%s.%s", scope, e.nowFn().Format("20060102T150405Z"), format)
}

func encodeCSV(rows []core.SummaryRow) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := []string{"tenant_id", "user_id", "client_id", "project_id", "day", "total_minutes", "entries"}
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, row := range rows {
		record := []string{
			row.TenantID,
			row.UserID,
			row.ClientID,
			row.ProjectID,
			row.Day,
			strconv.FormatInt(row.TotalMinutes, 10),
			strconv.Itoa(row.Entries),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
