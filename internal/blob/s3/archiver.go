package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/openpredict/marketd/internal/domain"
)

// archivePageSize bounds each settlement store query during an export.
const archivePageSize = 500

// SettlementArchiver periodically exports the settlement history to object
// storage as newline-delimited JSON. Each run exports the settlements created
// since the previous run; the primary store is never modified.
type SettlementArchiver struct {
	writer      *Writer
	settlements domain.SettlementStore
	audit       domain.AuditStore
	interval    time.Duration
	logger      *slog.Logger

	lastRun time.Time
}

// NewSettlementArchiver creates an archiver that exports every interval.
// audit may be nil, in which case archival events are only logged.
func NewSettlementArchiver(
	writer *Writer,
	settlements domain.SettlementStore,
	audit domain.AuditStore,
	interval time.Duration,
	logger *slog.Logger,
) *SettlementArchiver {
	if interval <= 0 {
		interval = time.Hour
	}
	return &SettlementArchiver{
		writer:      writer,
		settlements: settlements,
		audit:       audit,
		interval:    interval,
		logger:      logger.With(slog.String("component", "settlement_archiver")),
	}
}

// Run exports on the configured interval until the context is cancelled.
// Export failures are logged and retried on the next tick.
func (a *SettlementArchiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			count, err := a.ArchiveOnce(ctx)
			if err != nil {
				a.logger.ErrorContext(ctx, "settlement export failed",
					slog.String("error", err.Error()),
				)
				continue
			}
			if count > 0 {
				a.logger.InfoContext(ctx, "settlements archived",
					slog.Int64("count", count),
				)
			}
		}
	}
}

// ArchiveOnce exports all settlements created since the previous export and
// returns the number of records uploaded. A run with no new settlements
// uploads nothing.
func (a *SettlementArchiver) ArchiveOnce(ctx context.Context) (int64, error) {
	now := time.Now().UTC()

	var since *time.Time
	if !a.lastRun.IsZero() {
		t := a.lastRun
		since = &t
	}

	var records []domain.Settlement
	for offset := 0; ; offset += archivePageSize {
		page, err := a.settlements.List(ctx, domain.ListOpts{
			Limit:  archivePageSize,
			Offset: offset,
			Since:  since,
			Until:  &now,
		})
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive settlements query: %w", err)
		}
		records = append(records, page...)
		if len(page) < archivePageSize {
			break
		}
	}
	if len(records) == 0 {
		a.lastRun = now
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive settlements marshal: %w", err)
	}

	path := archivePath(now)
	if int64(len(buf)) >= minPartSize {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive settlements upload: %w", err)
	}

	count := int64(len(records))
	a.lastRun = now

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.settlements", map[string]any{
			"path":  path,
			"count": count,
			"until": now.Format(time.RFC3339),
		}); err != nil {
			return count, fmt.Errorf("s3blob: archive settlements audit log: %w", err)
		}
	}

	return count, nil
}

// archivePath builds the object key for one export, keyed by export time:
//
//	archive/settlements/2025-01-02T15-04-05Z.jsonl
func archivePath(at time.Time) string {
	return fmt.Sprintf("archive/settlements/%s.jsonl", at.Format("2006-01-02T15-04-05Z"))
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
