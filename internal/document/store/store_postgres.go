package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"signet/internal/document/models"
	"signet/internal/platform/blob"
	"signet/internal/platform/postgres"
	id "signet/pkg/domain"
	"signet/pkg/platform/sentinel"
)

// PostgresStore keeps metadata in the documents table and text in a blob
// store. The blob is written first; a failed insert deletes it again.
type PostgresStore struct {
	db    *sql.DB
	blobs blob.Store
}

func NewPostgres(db *sql.DB, blobs blob.Store) *PostgresStore {
	return &PostgresStore{db: db, blobs: blobs}
}

const documentColumns = `
	id, type_code, owner_user_id, canonical_hash, status, created_at,
	signed_at, expires_at, variables, evidence, text_ref, template_version
`

func (s *PostgresStore) Create(ctx context.Context, in models.NewDocument) (*models.Document, error) {
	doc := newDocument(in)

	vars, err := json.Marshal(doc.Variables)
	if err != nil {
		return nil, fmt.Errorf("encode variables: %w", err)
	}
	if err := s.blobs.Put(ctx, doc.TextRef, []byte(in.Text)); err != nil {
		return nil, fmt.Errorf("write document text: %w", err)
	}

	query := `
		INSERT INTO documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, NULL, $7, $8, NULL, $9, $10)
	`
	_, err = s.db.ExecContext(ctx, query,
		uuid.UUID(doc.ID),
		string(doc.TypeCode),
		uuid.UUID(doc.OwnerUserID),
		doc.CanonicalHash,
		string(doc.Status),
		doc.CreatedAt,
		nullTime(doc.ExpiresAt),
		vars,
		doc.TextRef,
		doc.TemplateVersion,
	)
	if err != nil {
		// Detached context: the caller's may already be cancelled.
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = s.blobs.Delete(cleanupCtx, doc.TextRef)
		if postgres.IsUniqueViolation(err) {
			return nil, fmt.Errorf("document %s already exists: %w", doc.ID, sentinel.ErrConflict)
		}
		return nil, fmt.Errorf("insert document: %w", err)
	}
	return doc, nil
}

func (s *PostgresStore) Get(ctx context.Context, docID id.DocumentID) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, uuid.UUID(docID))
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

func (s *PostgresStore) Text(ctx context.Context, docID id.DocumentID) (string, error) {
	doc, err := s.Get(ctx, docID)
	if err != nil {
		return "", err
	}
	raw, err := s.blobs.Get(ctx, doc.TextRef)
	if err != nil {
		return "", fmt.Errorf("read document text: %w", err)
	}
	return string(raw), nil
}

func (s *PostgresStore) FindByOwnerAndType(ctx context.Context, owner id.UserID, typeCode models.DocumentType) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE owner_user_id = $1 AND type_code = $2`,
		uuid.UUID(owner), string(typeCode),
	)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var out []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

// UpdateStatus is a single conditional UPDATE. When no row matches, a follow-up
// read tells a missing document apart from a lost compare-and-set.
func (s *PostgresStore) UpdateStatus(ctx context.Context, upd models.StatusUpdate) (*models.Document, error) {
	if !models.CanTransition(upd.From, upd.To) {
		return nil, fmt.Errorf("illegal transition %s -> %s: %w", upd.From, upd.To, sentinel.ErrConflict)
	}

	var (
		signedAt     *time.Time
		evidence     []byte
		evidenceHash string
	)
	if upd.To == models.StatusSigned {
		if upd.Evidence == nil {
			return nil, fmt.Errorf("signing requires evidence: %w", sentinel.ErrConflict)
		}
		at := upd.At
		if at.IsZero() {
			at = time.Now()
		}
		at = at.UTC()
		signedAt = &at
		raw, err := json.Marshal(upd.Evidence)
		if err != nil {
			return nil, fmt.Errorf("encode evidence: %w", err)
		}
		evidence = raw
		evidenceHash = upd.Evidence.DocumentHashAtSigning
	}

	query := `
		UPDATE documents
		SET status = $3,
			signed_at = COALESCE($4::timestamptz, signed_at),
			evidence = COALESCE($5::jsonb, evidence)
		WHERE id = $1
		  AND status = $2
		  AND ($6::text = '' OR canonical_hash = $6::text)
		RETURNING ` + documentColumns
	row := s.db.QueryRowContext(ctx, query,
		uuid.UUID(upd.ID),
		string(upd.From),
		string(upd.To),
		nullTime(signedAt),
		nullBytes(evidence),
		evidenceHash,
	)
	doc, err := scanDocument(row)
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update document status: %w", err)
	}

	current, err := s.Get(ctx, upd.ID)
	if err != nil {
		return nil, err
	}
	if err := checkUpdate(current, upd); err != nil {
		return nil, err
	}
	// The row changed between the UPDATE and the read.
	return nil, fmt.Errorf("document %s changed concurrently: %w", upd.ID, sentinel.ErrConflict)
}

func (s *PostgresStore) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET status = $1
		WHERE status = ANY($2::text[])
		  AND expires_at IS NOT NULL
		  AND expires_at <= $3
	`,
		string(models.StatusExpired),
		pq.Array([]string{string(models.StatusDrafted), string(models.StatusSigning)}),
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("expire documents: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire documents: %w", err)
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var (
		doc       models.Document
		docID     uuid.UUID
		ownerID   uuid.UUID
		typeCode  string
		status    string
		signedAt  sql.NullTime
		expiresAt sql.NullTime
		vars      []byte
		evidence  []byte
	)
	err := row.Scan(
		&docID,
		&typeCode,
		&ownerID,
		&doc.CanonicalHash,
		&status,
		&doc.CreatedAt,
		&signedAt,
		&expiresAt,
		&vars,
		&evidence,
		&doc.TextRef,
		&doc.TemplateVersion,
	)
	if err != nil {
		return nil, err
	}
	doc.ID = id.DocumentID(docID)
	doc.OwnerUserID = id.UserID(ownerID)
	doc.TypeCode = models.DocumentType(typeCode)
	doc.Status = models.Status(status)
	doc.CreatedAt = doc.CreatedAt.UTC()
	if signedAt.Valid {
		t := signedAt.Time.UTC()
		doc.SignedAt = &t
	}
	if expiresAt.Valid {
		t := expiresAt.Time.UTC()
		doc.ExpiresAt = &t
	}
	if len(vars) > 0 {
		if err := json.Unmarshal(vars, &doc.Variables); err != nil {
			return nil, fmt.Errorf("decode variables: %w", err)
		}
	}
	if len(evidence) > 0 {
		doc.Evidence = &models.SignatureEvidence{}
		if err := json.Unmarshal(evidence, doc.Evidence); err != nil {
			return nil, fmt.Errorf("decode evidence: %w", err)
		}
	}
	return &doc, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullBytes(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}
