package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/auctionhaus/marketd/internal/domain"
)

// archiveBatchSize caps how many rows one archive run uploads. Runs
// are periodic and the object path is month-keyed, so a rerun rewrites
// the same object with the fuller set.
const archiveBatchSize = 10000

// ArchiveImpl implements domain.Archiver by querying the stores for
// records older than a cutoff, serializing them to JSONL, and uploading
// the result to object storage.
//
// Deletion of the archived records from the primary store is
// intentionally NOT performed here. That is a separate, explicit step
// to be executed after the archive has been verified.
type ArchiveImpl struct {
	writer domain.BlobWriter
	sales  domain.SaleStore
	audit  domain.AuditStore
}

var _ domain.Archiver = (*ArchiveImpl)(nil)

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, sales domain.SaleStore, audit domain.AuditStore) *ArchiveImpl {
	return &ArchiveImpl{
		writer: writer,
		sales:  sales,
		audit:  audit,
	}
}

// ArchiveSales drains all sales settled before the cutoff, serializes
// them to JSONL, and uploads the file at archive/sales/YYYY-MM.jsonl.
// The archival event is recorded in the audit log and the count of
// archived records is returned.
func (a *ArchiveImpl) ArchiveSales(ctx context.Context, before time.Time) (int64, error) {
	all, err := a.sales.ListBefore(ctx, before, archiveBatchSize)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive sales query: %w", err)
	}
	if len(all) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(all)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive sales marshal: %w", err)
	}

	path := archivePath("sales", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive sales upload: %w", err)
	}

	count := int64(len(all))

	if err := a.audit.Log(ctx, "archive.sales", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive sales audit log: %w", err)
	}

	return count, nil
}

// ArchiveAudit drains all audit entries logged before the cutoff,
// serializes them to JSONL, and uploads the file at
// archive/audit/YYYY-MM.jsonl. The count of archived records is
// returned.
func (a *ArchiveImpl) ArchiveAudit(ctx context.Context, before time.Time) (int64, error) {
	all, err := a.audit.ListBefore(ctx, before, archiveBatchSize)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit query: %w", err)
	}
	if len(all) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(all)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit marshal: %w", err)
	}

	path := archivePath("audit", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive audit upload: %w", err)
	}

	count := int64(len(all))

	if err := a.audit.Log(ctx, "archive.audit", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive audit log: %w", err)
	}

	return count, nil
}

// archivePath builds the object key for an archive file, partitioned by
// the year-month of the cutoff time.
//
//	archive/sales/2026-08.jsonl
//	archive/audit/2026-08.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
// Each element is marshalled as a single compact JSON line.
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
