package file

import (
	"context"
	"sort"
	"time"

	"github.com/dukex/dealflow/pkg/models"
	"github.com/google/uuid"
)

const (
	paymentsCollection    = "payments"
	riskReportsCollection = "risk_reports"
)

// IntegrationRepository stores records received from external providers.
type IntegrationRepository struct {
	st *store
}

func (r *IntegrationRepository) InsertPayment(_ context.Context, payment *models.Payment) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}

	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}

	return r.st.write(paymentsCollection, payment.ID, payment)
}

func (r *IntegrationRepository) ListPayments(_ context.Context, dealID string) ([]*models.Payment, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	all, err := readAll[models.Payment](r.st, paymentsCollection)
	if err != nil {
		return nil, err
	}

	payments := make([]*models.Payment, 0)

	for _, payment := range all {
		if payment.DealID == dealID {
			payments = append(payments, payment)
		}
	}

	sort.SliceStable(payments, func(i, j int) bool {
		return payments[i].CreatedAt.Before(payments[j].CreatedAt)
	})

	return payments, nil
}

func (r *IntegrationRepository) InsertRiskReport(_ context.Context, report *models.RiskReport) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	if report.ID == "" {
		report.ID = uuid.NewString()
	}

	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}

	return r.st.write(riskReportsCollection, report.ID, report)
}
