package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-admin-api/internal/models"
	appErrors "github.com/noah-isme/academy-admin-api/pkg/errors"
)

type paymentCategoryRepoStub struct {
	categories map[string]models.PaymentCategory
	payments   map[string]int
	seeded     []string
	deleted    []string
}

func newPaymentCategoryRepoStub() *paymentCategoryRepoStub {
	return &paymentCategoryRepoStub{categories: map[string]models.PaymentCategory{}, payments: map[string]int{}}
}

func (p *paymentCategoryRepoStub) List(_ context.Context, activeOnly bool) ([]models.PaymentCategory, error) {
	var out []models.PaymentCategory
	for _, c := range p.categories {
		if activeOnly && !c.IsActive {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (p *paymentCategoryRepoStub) FindByID(_ context.Context, id string) (*models.PaymentCategory, error) {
	if c, ok := p.categories[id]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

func (p *paymentCategoryRepoStub) ExistsByName(_ context.Context, name, excludeID string) (bool, error) {
	for id, c := range p.categories {
		if c.Name == name && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (p *paymentCategoryRepoStub) CountPayments(_ context.Context, id string) (int, error) {
	return p.payments[id], nil
}

func (p *paymentCategoryRepoStub) Create(_ context.Context, category *models.PaymentCategory) error {
	category.ID = "cat-" + category.Name
	p.categories[category.ID] = *category
	return nil
}

func (p *paymentCategoryRepoStub) InsertIfMissing(ctx context.Context, category *models.PaymentCategory) (bool, error) {
	if exists, _ := p.ExistsByName(ctx, category.Name, ""); exists {
		return false, nil
	}
	p.seeded = append(p.seeded, category.Name)
	return true, p.Create(ctx, category)
}

func (p *paymentCategoryRepoStub) Update(_ context.Context, category *models.PaymentCategory) error {
	p.categories[category.ID] = *category
	return nil
}

func (p *paymentCategoryRepoStub) Delete(_ context.Context, id string) error {
	p.deleted = append(p.deleted, id)
	delete(p.categories, id)
	return nil
}

type paymentRepoStub struct {
	payments map[string]models.Payment
	totals   models.PaymentTotals
	deleted  []string
}

func newPaymentRepoStub() *paymentRepoStub {
	return &paymentRepoStub{payments: map[string]models.Payment{}}
}

func (p *paymentRepoStub) List(context.Context, models.PaymentFilter) ([]models.PaymentDetail, models.PaymentTotals, error) {
	var out []models.PaymentDetail
	for _, payment := range p.payments {
		detail := models.PaymentDetail{Payment: payment}
		detail.Derive()
		out = append(out, detail)
	}
	return out, p.totals, nil
}

func (p *paymentRepoStub) FindByID(_ context.Context, id string) (*models.PaymentDetail, error) {
	payment, ok := p.payments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	detail := &models.PaymentDetail{Payment: payment}
	detail.Derive()
	return detail, nil
}

func (p *paymentRepoStub) Create(_ context.Context, payment *models.Payment) error {
	payment.ID = "pay-1"
	p.payments[payment.ID] = *payment
	return nil
}

func (p *paymentRepoStub) Update(_ context.Context, payment *models.Payment) error {
	p.payments[payment.ID] = *payment
	return nil
}

func (p *paymentRepoStub) Delete(_ context.Context, id string) error {
	if _, ok := p.payments[id]; !ok {
		return sql.ErrNoRows
	}
	p.deleted = append(p.deleted, id)
	delete(p.payments, id)
	return nil
}

func (p *paymentRepoStub) TotalsByStatus(context.Context, models.PaymentFilter) ([]models.PaymentGroupTotal, error) {
	return []models.PaymentGroupTotal{{Key: "paid", PaymentTotals: models.PaymentTotals{Count: 1, TotalDue: 100, TotalPaid: 100}}}, nil
}

func (p *paymentRepoStub) TotalsByCategory(context.Context, models.PaymentFilter) ([]models.PaymentGroupTotal, error) {
	return []models.PaymentGroupTotal{{Key: "Monthly Fee", PaymentTotals: models.PaymentTotals{Count: 1, TotalDue: 100, TotalPaid: 100}}}, nil
}

func newTestPaymentService() (*PaymentService, *paymentRepoStub, *auditRecorder) {
	repo := newPaymentRepoStub()
	students := newStudentRepoStub()
	students.students["s1"] = models.Student{ID: "s1"}
	categories := newPaymentCategoryRepoStub()
	categories.categories["cat-1"] = models.PaymentCategory{ID: "cat-1", Name: "Monthly Fee", IsActive: true}
	audit := &auditRecorder{}
	svc := NewPaymentService(PaymentServiceParams{Repo: repo, Students: students, Categories: categories, Audit: audit})
	svc.now = func() time.Time { return time.Date(2025, 3, 14, 15, 0, 0, 0, time.UTC) }
	return svc, repo, audit
}

func TestPaymentServiceRecordDerivesStatus(t *testing.T) {
	svc, repo, _ := newTestPaymentService()

	payment, err := svc.Record(context.Background(), PaymentRequest{StudentID: "s1", CategoryID: "cat-1", AmountDue: 1000, AmountPaid: 400}, &models.JWTClaims{UserID: "acc-1"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPartialPaid, payment.Status)
	assert.Equal(t, models.PaymentMethodCash, payment.Method)
	assert.Equal(t, 600.0, payment.RemainingAmount)
	assert.Equal(t, 40.0, payment.PaidPercentage)
	assert.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), payment.PaymentDate)
	require.NotNil(t, repo.payments["pay-1"].RecordedByUserID)
}

func TestPaymentServiceRecordAllowsOverpayment(t *testing.T) {
	svc, _, _ := newTestPaymentService()

	payment, err := svc.Record(context.Background(), PaymentRequest{StudentID: "s1", CategoryID: "cat-1", AmountDue: 100, AmountPaid: 150, PaymentDate: "2025-02-01"}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, payment.Status)
	assert.Equal(t, -50.0, payment.RemainingAmount)
}

func TestPaymentServiceRecordValidation(t *testing.T) {
	svc, _, _ := newTestPaymentService()

	_, err := svc.Record(context.Background(), PaymentRequest{StudentID: "s1", CategoryID: "cat-1", Method: "crypto"}, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Record(context.Background(), PaymentRequest{StudentID: "s1", CategoryID: "missing"}, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestPaymentServiceMarkStatus(t *testing.T) {
	svc, repo, _ := newTestPaymentService()
	repo.payments["pay-9"] = models.Payment{ID: "pay-9", StudentID: "s1", CategoryID: "cat-1", AmountDue: 500, Status: models.PaymentStatusPending}

	amount := 500.0
	payment, err := svc.MarkStatus(context.Background(), "pay-9", MarkPaymentStatusRequest{Status: "paid", AmountPaid: &amount})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, payment.Status)
	assert.Equal(t, 500.0, payment.AmountPaid)

	payment, err = svc.MarkStatus(context.Background(), "pay-9", MarkPaymentStatusRequest{Status: "pending"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, payment.Status)
	assert.Equal(t, 500.0, payment.AmountPaid)

	_, err = svc.MarkStatus(context.Background(), "pay-9", MarkPaymentStatusRequest{Status: "refunded"})
	require.Error(t, err)
}

func TestPaymentServiceDeleteAudits(t *testing.T) {
	svc, repo, audit := newTestPaymentService()
	repo.payments["pay-9"] = models.Payment{ID: "pay-9"}

	require.NoError(t, svc.Delete(context.Background(), "pay-9", &models.JWTClaims{UserID: "admin-1"}))
	assert.Equal(t, []string{"pay-9"}, repo.deleted)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionPaymentDelete, audit.logs[0].Action)

	err := svc.Delete(context.Background(), "pay-9", nil)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestPaymentServiceSummary(t *testing.T) {
	svc, repo, _ := newTestPaymentService()
	repo.totals = models.PaymentTotals{Count: 3, TotalDue: 900, TotalPaid: 600}

	summary, err := svc.Summary(context.Background(), models.PaymentFilter{})
	require.NoError(t, err)
	assert.Equal(t, 300.0, summary.Pending)
	assert.Len(t, summary.ByStatus, 1)
	assert.Equal(t, "Monthly Fee", summary.ByCategory[0].Key)
}

func TestPaymentCategoryServiceDeleteBlockedByPayments(t *testing.T) {
	repo := newPaymentCategoryRepoStub()
	repo.categories["cat-1"] = models.PaymentCategory{ID: "cat-1", Name: "Monthly Fee"}
	repo.payments["cat-1"] = 2
	svc := NewPaymentCategoryService(repo, nil, nil)

	err := svc.Delete(context.Background(), "cat-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.deleted)

	repo.payments["cat-1"] = 0
	require.NoError(t, svc.Delete(context.Background(), "cat-1"))
}

func TestPaymentCategoryServiceCreateDuplicate(t *testing.T) {
	repo := newPaymentCategoryRepoStub()
	svc := NewPaymentCategoryService(repo, nil, nil)

	created, err := svc.Create(context.Background(), PaymentCategoryRequest{Name: " Lab Fee ", DefaultAmount: 50})
	require.NoError(t, err)
	assert.Equal(t, "Lab Fee", created.Name)
	assert.True(t, created.IsActive)

	_, err = svc.Create(context.Background(), PaymentCategoryRequest{Name: "Lab Fee"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestPaymentCategoryServiceSeedDefaultsIsIdempotent(t *testing.T) {
	repo := newPaymentCategoryRepoStub()
	svc := NewPaymentCategoryService(repo, nil, nil)

	created, err := svc.SeedDefaults(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(DefaultPaymentCategories), created)

	created, err = svc.SeedDefaults(context.Background())
	require.NoError(t, err)
	assert.Zero(t, created)
}
