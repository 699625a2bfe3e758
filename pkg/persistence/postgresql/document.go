package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/dealflow/pkg/models"
	"github.com/google/uuid"
)

type DocumentRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewDocumentRepository(db *sql.DB, logger *slog.Logger) *DocumentRepository {
	return &DocumentRepository{db: db, logger: logger}
}

func (r *DocumentRepository) AddDocument(ctx context.Context, document *models.Document) error {
	if document.ID == "" {
		document.ID = uuid.NewString()
	}

	if document.UploadedAt.IsZero() {
		document.UploadedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO deal_documents (id, deal_id, document_type, title, storage_path, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		document.ID,
		document.DealID,
		document.DocumentType,
		document.Title,
		document.StoragePath,
		document.UploadedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	return nil
}

func (r *DocumentRepository) ListByDeal(ctx context.Context, dealID string) ([]*models.Document, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, deal_id, document_type, title, storage_path, uploaded_at
		FROM deal_documents
		WHERE deal_id = $1
		ORDER BY uploaded_at
	`, dealID)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	documents := make([]*models.Document, 0)

	for rows.Next() {
		var document models.Document

		err := rows.Scan(&document.ID, &document.DealID, &document.DocumentType, &document.Title, &document.StoragePath, &document.UploadedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}

		documents = append(documents, &document)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}

	return documents, nil
}
