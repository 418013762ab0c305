package tenant

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klauspost/compress/zstd"
)

// AuditAction represents the type of audited tenant operation.
type AuditAction string

const (
	AuditActionCreate   AuditAction = "create"
	AuditActionSuspend  AuditAction = "suspend"
	AuditActionActivate AuditAction = "activate"
	AuditActionDelete   AuditAction = "delete"
)

// CompressionAlgo specifies the compression algorithm used for change payloads.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// AuditEntry represents a single tenant lifecycle audit record.
type AuditEntry struct {
	ID                string          `db:"id"`
	TenantID          string          `db:"tenant_id"`
	Action            AuditAction     `db:"action"`
	Actor             string          `db:"actor"`
	Changes           json.RawMessage `db:"changes"`
	ChangesCompressed []byte          `db:"changes_compressed"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo"`
	CreatedAt         time.Time       `db:"created_at"`
}

// AuditLog records tenant lifecycle transitions in the meta-database.
// Large change payloads are stored zstd-compressed.
type AuditLog struct {
	pool              *pgxpool.Pool
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int // bytes
}

// NewAuditLog creates an audit log backed by the meta-database pool.
func NewAuditLog(pool *pgxpool.Pool) (*AuditLog, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &AuditLog{
		pool:              pool,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: 10 * 1024,
	}, nil
}

// Record inserts an audit entry. Missing ID and CreatedAt are filled in.
func (l *AuditLog) Record(ctx context.Context, entry AuditEntry) error {
	if entry.TenantID == "" {
		return fmt.Errorf("audit entry requires tenant id")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	entry.Changes, entry.ChangesCompressed, entry.CompressionAlgo = l.compress(entry.Changes)

	_, err := l.pool.Exec(ctx, `
		INSERT INTO tenant_audit (
			id, tenant_id, action, actor,
			changes, changes_compressed, compression_algo, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		entry.ID, entry.TenantID, entry.Action, entry.Actor,
		entry.Changes, entry.ChangesCompressed, entry.CompressionAlgo, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record audit entry: %w", err)
	}
	return nil
}

// RecordChange is a convenience method for recording a tenant transition.
func (l *AuditLog) RecordChange(
	ctx context.Context,
	tenantID string,
	action AuditAction,
	actor string,
	changes map[string]any,
) error {
	var changesJSON json.RawMessage
	if len(changes) > 0 {
		data, err := json.Marshal(changes)
		if err != nil {
			return fmt.Errorf("marshal changes: %w", err)
		}
		changesJSON = data
	}

	return l.Record(ctx, AuditEntry{
		TenantID: tenantID,
		Action:   action,
		Actor:    actor,
		Changes:  changesJSON,
	})
}

// History retrieves audit entries for a tenant, newest first.
func (l *AuditLog) History(ctx context.Context, tenantID string, limit int) ([]AuditEntry, error) {
	var entries []AuditEntry
	err := pgxscan.Select(ctx, l.pool, &entries, `
		SELECT id, tenant_id, action, actor,
		       changes, changes_compressed, compression_algo, created_at
		FROM tenant_audit
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit history: %w", err)
	}

	for i := range entries {
		if err := l.decompress(&entries[i]); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// compress stores payloads above the threshold zstd-compressed.
func (l *AuditLog) compress(changes json.RawMessage) (json.RawMessage, []byte, CompressionAlgo) {
	if len(changes) <= l.compressThreshold {
		return changes, nil, CompressionNone
	}
	return nil, l.encoder.EncodeAll(changes, nil), CompressionZstd
}

// decompress restores the Changes payload in place.
func (l *AuditLog) decompress(e *AuditEntry) error {
	if e.CompressionAlgo != CompressionZstd || len(e.ChangesCompressed) == 0 {
		return nil
	}
	decompressed, err := l.decoder.DecodeAll(e.ChangesCompressed, nil)
	if err != nil {
		return fmt.Errorf("decompress audit changes: %w", err)
	}
	e.Changes = decompressed
	e.ChangesCompressed = nil
	return nil
}
