package audit

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/gatherhq/gather/pkg/observability"
)

// DefaultArchiveBatchSize bounds how many events one archive object holds.
const DefaultArchiveBatchSize = 500

const archiveSelectQuery = `
	SELECT
		id, timestamp, event_type, status,
		user_id, session_id,
		action, identifier,
		ip_address, request_id,
		message, error_message, metadata
	FROM audit_events
	WHERE timestamp < $1
	ORDER BY timestamp, id
	LIMIT $2
`

// ObjectStore is the slice of the blob storage client the archiver
// needs. *postgres.S3Client satisfies it.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, content io.Reader, contentType string) error
}

// S3Archiver moves audit events past their retention window out of
// Postgres and into object storage as newline-delimited JSON. Rows are
// deleted only after their batch has been uploaded, so a failed upload
// leaves the trail intact.
type S3Archiver struct {
	db     *sql.DB
	store  ObjectStore
	prefix string
	logger *observability.Logger

	now func() time.Time
}

// NewS3Archiver creates an archiver. prefix namespaces the archive
// objects within the bucket (e.g. "audit"); it may be empty.
func NewS3Archiver(db *sql.DB, store ObjectStore, prefix string, logger *observability.Logger) *S3Archiver {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &S3Archiver{
		db:     db,
		store:  store,
		prefix: prefix,
		logger: logger,
		now:    time.Now,
	}
}

// Archive exports events older than retention in batches and deletes
// each batch after its object has been stored. Returns the number of
// events archived.
func (a *S3Archiver) Archive(ctx context.Context, retention time.Duration, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultArchiveBatchSize
	}

	cutoff := a.now().UTC().Add(-retention)
	total := 0

	for {
		events, err := a.fetchBatch(ctx, cutoff, batchSize)
		if err != nil {
			return total, err
		}
		if len(events) == 0 {
			return total, nil
		}

		key := a.objectKey(events)
		body, err := encodeJSONL(events)
		if err != nil {
			return total, err
		}

		if err := a.store.PutObject(ctx, key, bytes.NewReader(body), "application/x-ndjson"); err != nil {
			return total, fmt.Errorf("failed to upload audit archive %s: %w", key, err)
		}

		ids := make([]int64, len(events))
		for i, event := range events {
			ids[i] = event.ID
		}
		if err := a.deleteByID(ctx, ids); err != nil {
			return total, err
		}

		total += len(events)
		a.logger.WithFields(map[string]interface{}{
			"key":    key,
			"events": len(events),
		}).Info("archived audit batch")

		if len(events) < batchSize {
			return total, nil
		}
	}
}

func (a *S3Archiver) fetchBatch(ctx context.Context, cutoff time.Time, limit int) ([]*Event, error) {
	rows, err := a.db.QueryContext(ctx, archiveSelectQuery, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch archivable audit events: %w", err)
	}
	defer rows.Close()

	events := make([]*Event, 0, limit)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating archivable audit events: %w", err)
	}
	return events, nil
}

func (a *S3Archiver) deleteByID(ctx context.Context, ids []int64) error {
	_, err := a.db.ExecContext(ctx, `DELETE FROM audit_events WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to delete archived audit events: %w", err)
	}
	return nil
}

// objectKey names an archive object after the batch it holds.
func (a *S3Archiver) objectKey(events []*Event) string {
	first := events[0]
	last := events[len(events)-1]
	name := fmt.Sprintf("audit-%s-%d-%d.jsonl",
		first.Timestamp.UTC().Format("20060102T150405Z"), first.ID, last.ID)
	if a.prefix == "" {
		return name
	}
	return strings.TrimSuffix(a.prefix, "/") + "/" + name
}

// encodeJSONL renders events as newline-delimited JSON.
func encodeJSONL(events []*Event) ([]byte, error) {
	var buf bytes.Buffer
	for _, event := range events {
		line, err := event.ToJSON()
		if err != nil {
			return nil, fmt.Errorf("failed to encode event %d: %w", event.ID, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}
