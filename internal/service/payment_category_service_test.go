package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-admin-api/internal/models"
	appErrors "github.com/noah-isme/academy-admin-api/pkg/errors"
)

type categoryRepoFake struct {
	byID     map[string]*models.PaymentCategory
	payments map[string]int
	deleted  []string
}

func newCategoryRepoFake() *categoryRepoFake {
	return &categoryRepoFake{byID: map[string]*models.PaymentCategory{}, payments: map[string]int{}}
}

func (f *categoryRepoFake) List(_ context.Context, activeOnly bool) ([]models.PaymentCategory, error) {
	var out []models.PaymentCategory
	for _, c := range f.byID {
		if activeOnly && !c.IsActive {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

func (f *categoryRepoFake) FindByID(_ context.Context, id string) (*models.PaymentCategory, error) {
	c, ok := f.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *c
	return &cp, nil
}

func (f *categoryRepoFake) ExistsByName(_ context.Context, name, excludeID string) (bool, error) {
	for id, c := range f.byID {
		if c.Name == name && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (f *categoryRepoFake) CountPayments(_ context.Context, id string) (int, error) {
	return f.payments[id], nil
}

func (f *categoryRepoFake) Create(_ context.Context, c *models.PaymentCategory) error {
	if c.ID == "" {
		c.ID = c.Name
	}
	f.byID[c.ID] = c
	return nil
}

func (f *categoryRepoFake) InsertIfMissing(ctx context.Context, c *models.PaymentCategory) (bool, error) {
	exists, _ := f.ExistsByName(ctx, c.Name, "")
	if exists {
		return false, nil
	}
	return true, f.Create(ctx, c)
}

func (f *categoryRepoFake) Update(_ context.Context, c *models.PaymentCategory) error {
	f.byID[c.ID] = c
	return nil
}

func (f *categoryRepoFake) Delete(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	delete(f.byID, id)
	return nil
}

func TestPaymentCategoryCreateRejectsDuplicateName(t *testing.T) {
	repo := newCategoryRepoFake()
	svc := NewPaymentCategoryService(repo, nil, nil)

	created, err := svc.Create(context.Background(), PaymentCategoryRequest{Name: "  Lab Fee ", DefaultAmount: 500})
	require.NoError(t, err)
	assert.Equal(t, "Lab Fee", created.Name)
	assert.True(t, created.IsActive)

	_, err = svc.Create(context.Background(), PaymentCategoryRequest{Name: "Lab Fee"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	_, err = svc.Create(context.Background(), PaymentCategoryRequest{Name: "Bad", DefaultAmount: -1})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Create(context.Background(), PaymentCategoryRequest{Name: " \t "})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestPaymentCategoryDeleteBlockedByPayments(t *testing.T) {
	repo := newCategoryRepoFake()
	repo.byID["c1"] = &models.PaymentCategory{ID: "c1", Name: "Monthly Fee", IsActive: true}
	repo.payments["c1"] = 2
	svc := NewPaymentCategoryService(repo, nil, nil)

	err := svc.Delete(context.Background(), "c1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.deleted)

	repo.payments["c1"] = 0
	require.NoError(t, svc.Delete(context.Background(), "c1"))
	assert.Equal(t, []string{"c1"}, repo.deleted)

	err = svc.Delete(context.Background(), "c1")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestPaymentCategorySeedDefaultsIsIdempotent(t *testing.T) {
	repo := newCategoryRepoFake()
	repo.byID["Monthly Fee"] = &models.PaymentCategory{ID: "Monthly Fee", Name: "Monthly Fee"}
	svc := NewPaymentCategoryService(repo, nil, nil)

	created, err := svc.SeedDefaults(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(DefaultPaymentCategories)-1, created)

	created, err = svc.SeedDefaults(context.Background())
	require.NoError(t, err)
	assert.Zero(t, created)
}

func TestPaymentCategoryUpdateKeepsActiveFlagWhenOmitted(t *testing.T) {
	repo := newCategoryRepoFake()
	repo.byID["c1"] = &models.PaymentCategory{ID: "c1", Name: "Lab Fee", IsActive: false}
	repo.byID["c2"] = &models.PaymentCategory{ID: "c2", Name: "Library Fee", IsActive: true}
	svc := NewPaymentCategoryService(repo, nil, nil)

	updated, err := svc.Update(context.Background(), "c1", PaymentCategoryRequest{Name: "Lab Fee", DefaultAmount: 750})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)
	assert.Equal(t, 750.0, updated.DefaultAmount)

	_, err = svc.Update(context.Background(), "c1", PaymentCategoryRequest{Name: "Library Fee"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}
