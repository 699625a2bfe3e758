package file

import (
	"context"
	"sort"
	"time"

	"github.com/dukex/dealflow/pkg/models"
	"github.com/google/uuid"
)

const documentsCollection = "deal_documents"

type DocumentRepository struct {
	st *store
}

func (r *DocumentRepository) AddDocument(_ context.Context, document *models.Document) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	if document.ID == "" {
		document.ID = uuid.NewString()
	}

	if document.UploadedAt.IsZero() {
		document.UploadedAt = time.Now().UTC()
	}

	return r.st.write(documentsCollection, document.ID, document)
}

func (r *DocumentRepository) ListByDeal(_ context.Context, dealID string) ([]*models.Document, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	all, err := readAll[models.Document](r.st, documentsCollection)
	if err != nil {
		return nil, err
	}

	documents := make([]*models.Document, 0)

	for _, document := range all {
		if document.DealID == dealID {
			documents = append(documents, document)
		}
	}

	sort.SliceStable(documents, func(i, j int) bool {
		return documents[i].UploadedAt.Before(documents[j].UploadedAt)
	})

	return documents, nil
}
