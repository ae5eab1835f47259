package customer

import (
	"context"
	"testing"
	"time"

	"crm-core/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeCustomerRepo хранит клиентов в памяти
type fakeCustomerRepo struct {
	customers map[int64]*models.CustomerProfile
	nextID    int64
}

func newFakeCustomerRepo() *fakeCustomerRepo {
	return &fakeCustomerRepo{customers: make(map[int64]*models.CustomerProfile), nextID: 1}
}

func (f *fakeCustomerRepo) Create(ctx context.Context, customer *models.CustomerProfile) error {
	customer.ID = f.nextID
	customer.CreatedAt = time.Now()
	f.nextID++
	f.customers[customer.ID] = customer
	return nil
}

func (f *fakeCustomerRepo) GetByID(ctx context.Context, id int64) (*models.CustomerProfile, error) {
	customer, ok := f.customers[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return customer, nil
}

func (f *fakeCustomerRepo) UpdateOnboardingStage(ctx context.Context, customerID int64, stage string) error {
	customer, ok := f.customers[customerID]
	if !ok {
		return models.ErrNotFound
	}
	customer.OnboardingStage = stage
	return nil
}

func (f *fakeCustomerRepo) ListTestIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	for id, c := range f.customers {
		if c.IsTest {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeCustomerRepo) DeleteTestData(ctx context.Context) ([]int64, error) {
	var ids []int64
	for id, c := range f.customers {
		if c.IsTest {
			ids = append(ids, id)
			delete(f.customers, id)
		}
	}
	return ids, nil
}

type fakeAffiliateRepo struct {
	byUsername map[string]*models.Affiliate
}

func (f *fakeAffiliateRepo) GetByUsername(ctx context.Context, username string) (*models.Affiliate, error) {
	affiliate, ok := f.byUsername[username]
	if !ok {
		return nil, models.ErrNotFound
	}
	return affiliate, nil
}

type fakePlanRepo struct {
	byCode map[string]*models.Plan
}

func (f *fakePlanRepo) GetByCode(ctx context.Context, code string) (*models.Plan, error) {
	plan, ok := f.byCode[code]
	if !ok {
		return nil, models.ErrNotFound
	}
	return plan, nil
}

type fakeCommissionRepo struct {
	byCustomer map[int64]int64 // customer -> число начислений
}

func (f *fakeCommissionRepo) DeleteByCustomerIDs(ctx context.Context, customerIDs []int64) (int64, error) {
	var deleted int64
	for _, id := range customerIDs {
		deleted += f.byCustomer[id]
		delete(f.byCustomer, id)
	}
	return deleted, nil
}

func newTestService() (*Service, *fakeCustomerRepo, *fakeCommissionRepo) {
	customerRepo := newFakeCustomerRepo()
	commissionRepo := &fakeCommissionRepo{byCustomer: make(map[int64]int64)}
	svc := NewService(
		customerRepo,
		&fakeAffiliateRepo{byUsername: map[string]*models.Affiliate{
			"johnny": {ID: 1, Username: "johnny", Email: "johnny@partners.example"},
		}},
		&fakePlanRepo{byCode: map[string]*models.Plan{
			"pro": {ID: 2, Code: "pro", MonthlyPrice: 997.0, Currency: "USD"},
		}},
		commissionRepo,
		zap.NewNop(),
	)
	return svc, customerRepo, commissionRepo
}

func TestCreateResolvesAffiliateAndPlan(t *testing.T) {
	svc, _, _ := newTestService()

	customer, err := svc.Create(context.Background(), &models.CreateCustomerRequest{
		Email:             "test@example.com",
		Name:              "Тестовый клиент",
		AffiliateUsername: "johnny",
		PlanCode:          "pro",
		IsTest:            true,
	})
	require.NoError(t, err)

	require.NotNil(t, customer.AffiliateID)
	assert.Equal(t, int64(1), *customer.AffiliateID)
	require.NotNil(t, customer.PlanID)
	assert.Equal(t, int64(2), *customer.PlanID)
	assert.Equal(t, models.CustomerTypePaying, customer.CustomerType)
	assert.Equal(t, models.StageNotStarted, customer.OnboardingStage)
	assert.True(t, customer.IsTest)
	require.NotNil(t, customer.PaymentReceivedAt)
	assert.WithinDuration(t, time.Now(), *customer.PaymentReceivedAt, time.Minute)
}

func TestCreateComplimentaryHasNoPayment(t *testing.T) {
	svc, _, _ := newTestService()

	customer, err := svc.Create(context.Background(), &models.CreateCustomerRequest{
		Email:        "free@example.com",
		CustomerType: models.CustomerTypeComplimentary,
	})
	require.NoError(t, err)

	assert.Nil(t, customer.PaymentReceivedAt)
	assert.Nil(t, customer.AffiliateID)
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.Create(context.Background(), &models.CreateCustomerRequest{Email: "нет-собаки"})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = svc.Create(context.Background(), &models.CreateCustomerRequest{
		Email:        "x@example.com",
		CustomerType: "vip",
	})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestCreateUnknownAffiliate(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.Create(context.Background(), &models.CreateCustomerRequest{
		Email:             "x@example.com",
		AffiliateUsername: "nobody",
	})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCompleteOnboarding(t *testing.T) {
	svc, customerRepo, _ := newTestService()

	customer, err := svc.Create(context.Background(), &models.CreateCustomerRequest{Email: "x@example.com"})
	require.NoError(t, err)

	require.NoError(t, svc.CompleteOnboarding(context.Background(), customer.ID))
	assert.Equal(t, models.StageCompleted, customerRepo.customers[customer.ID].OnboardingStage)

	assert.ErrorIs(t, svc.CompleteOnboarding(context.Background(), 999), models.ErrNotFound)
}

func TestClearTestDataDeletesCommissionsFirst(t *testing.T) {
	svc, customerRepo, commissionRepo := newTestService()

	test1, err := svc.Create(context.Background(), &models.CreateCustomerRequest{Email: "t1@example.com", IsTest: true})
	require.NoError(t, err)
	test2, err := svc.Create(context.Background(), &models.CreateCustomerRequest{Email: "t2@example.com", IsTest: true})
	require.NoError(t, err)
	regular, err := svc.Create(context.Background(), &models.CreateCustomerRequest{Email: "regular@example.com"})
	require.NoError(t, err)

	commissionRepo.byCustomer[test1.ID] = 3
	commissionRepo.byCustomer[test2.ID] = 1
	commissionRepo.byCustomer[regular.ID] = 2

	result, err := svc.ClearTestData(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.CustomersDeleted)
	assert.Equal(t, int64(4), result.CommissionsDeleted)

	// Реальный клиент и его начисления не тронуты
	_, ok := customerRepo.customers[regular.ID]
	assert.True(t, ok)
	assert.Equal(t, int64(2), commissionRepo.byCustomer[regular.ID])
}

func TestClearTestDataEmpty(t *testing.T) {
	svc, _, _ := newTestService()

	result, err := svc.ClearTestData(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, result.CustomersDeleted)
	assert.Equal(t, int64(0), result.CommissionsDeleted)
}
