package topup

import (
	"context"
	"testing"
	"time"

	"offerpay/internal/coupon"
	"offerpay/internal/gateway"
	"offerpay/internal/wallet"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Mock repositories
type MockAttemptsRepo struct{ mock.Mock }
type MockWalletRepo struct{ mock.Mock }
type MockCouponRepo struct{ mock.Mock }
type MockGateway struct{ mock.Mock }

func (m *MockAttemptsRepo) CreateAttempt(ctx context.Context, ext sqlx.ExtContext, p CreateAttemptParams) (*Attempt, error) {
	args := m.Called(ctx, ext, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Attempt), args.Error(1)
}

func (m *MockAttemptsRepo) GetByIdempotencyKey(ctx context.Context, userID int, key string) (*Attempt, error) {
	args := m.Called(ctx, userID, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Attempt), args.Error(1)
}

func (m *MockAttemptsRepo) GetByProviderOrderIDForUpdate(ctx context.Context, ext sqlx.ExtContext, providerOrderID string) (*Attempt, error) {
	args := m.Called(ctx, ext, providerOrderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Attempt), args.Error(1)
}

func (m *MockAttemptsRepo) GetByUserAndOrderID(ctx context.Context, userID int, providerOrderID string) (*Attempt, error) {
	args := m.Called(ctx, userID, providerOrderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Attempt), args.Error(1)
}

func (m *MockAttemptsRepo) MarkCompleted(ctx context.Context, ext sqlx.ExtContext, attemptID int, providerPaymentID string, rawPayment []byte) error {
	return m.Called(ctx, ext, attemptID, providerPaymentID, rawPayment).Error(0)
}

func (m *MockAttemptsRepo) UpdateStatus(ctx context.Context, ext sqlx.ExtContext, attemptID int, status AttemptStatus, errorMessage *string) error {
	return m.Called(ctx, ext, attemptID, status, errorMessage).Error(0)
}

func (m *MockAttemptsRepo) ListByUser(ctx context.Context, userID int, limit, offset int) ([]Attempt, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Attempt), args.Error(1)
}

func (m *MockAttemptsRepo) FailStale(ctx context.Context, maxAge time.Duration) (int64, error) {
	args := m.Called(ctx, maxAge)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockWalletRepo) EnsureWallet(ctx context.Context, userID int) (*wallet.Wallet, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wallet.Wallet), args.Error(1)
}

func (m *MockWalletRepo) GetByUserID(ctx context.Context, userID int) (*wallet.Wallet, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wallet.Wallet), args.Error(1)
}

func (m *MockWalletRepo) ApplyTransaction(ctx context.Context, ext sqlx.ExtContext, p wallet.ApplyParams) (*wallet.Transaction, error) {
	args := m.Called(ctx, ext, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wallet.Transaction), args.Error(1)
}

func (m *MockWalletRepo) FindTransactionByPaymentID(ctx context.Context, ext sqlx.ExtContext, paymentID string) (*wallet.Transaction, error) {
	args := m.Called(ctx, ext, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wallet.Transaction), args.Error(1)
}

func (m *MockWalletRepo) ListTransactions(ctx context.Context, userID int, limit, offset int, txType string) ([]wallet.Transaction, error) {
	args := m.Called(ctx, userID, limit, offset, txType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]wallet.Transaction), args.Error(1)
}

func (m *MockCouponRepo) GetByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*coupon.Coupon), args.Error(1)
}

func (m *MockCouponRepo) CountUserUsages(ctx context.Context, couponID, userID int) (int, error) {
	args := m.Called(ctx, couponID, userID)
	return args.Int(0), args.Error(1)
}

func (m *MockCouponRepo) CreateUsage(ctx context.Context, ext sqlx.ExtContext, p coupon.CreateUsageParams) (*coupon.Usage, error) {
	args := m.Called(ctx, ext, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*coupon.Usage), args.Error(1)
}

func (m *MockCouponRepo) MarkUsageRedeemed(ctx context.Context, ext sqlx.ExtContext, usageID, attemptID int) error {
	return m.Called(ctx, ext, usageID, attemptID).Error(0)
}

func (m *MockCouponRepo) MarkUsageStatus(ctx context.Context, ext sqlx.ExtContext, usageID int, status coupon.UsageStatus) error {
	return m.Called(ctx, ext, usageID, status).Error(0)
}

func (m *MockCouponRepo) IncrementUsedCount(ctx context.Context, ext sqlx.ExtContext, couponID int) error {
	return m.Called(ctx, ext, couponID).Error(0)
}

func (m *MockCouponRepo) GetUsageByID(ctx context.Context, ext sqlx.ExtContext, usageID int) (*coupon.Usage, error) {
	args := m.Called(ctx, ext, usageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*coupon.Usage), args.Error(1)
}

func (m *MockCouponRepo) Create(ctx context.Context, c *coupon.Coupon) (*coupon.Coupon, error) {
	args := m.Called(ctx, c)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*coupon.Coupon), args.Error(1)
}

func (m *MockCouponRepo) Update(ctx context.Context, c *coupon.Coupon) (*coupon.Coupon, error) {
	args := m.Called(ctx, c)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*coupon.Coupon), args.Error(1)
}

func (m *MockCouponRepo) SoftDelete(ctx context.Context, id int) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockCouponRepo) List(ctx context.Context, limit, offset int) ([]coupon.Coupon, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]coupon.Coupon), args.Error(1)
}

func (m *MockCouponRepo) ListAvailableForUser(ctx context.Context, userID int, userType string) ([]coupon.Coupon, error) {
	args := m.Called(ctx, userID, userType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]coupon.Coupon), args.Error(1)
}

func (m *MockCouponRepo) ListUsageHistory(ctx context.Context, userID int, limit, offset int) ([]coupon.UsageWithCode, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]coupon.UsageWithCode), args.Error(1)
}

func (m *MockGateway) Provider() string {
	return m.Called().String(0)
}

func (m *MockGateway) CreateOrder(ctx context.Context, req gateway.OrderRequest) (*gateway.Order, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Order), args.Error(1)
}

func (m *MockGateway) VerifyWebhookSignature(rawBody []byte, signature string) error {
	return m.Called(rawBody, signature).Error(0)
}

func (m *MockGateway) VerifyPaymentSignature(orderID, paymentID, signature string) error {
	return m.Called(orderID, paymentID, signature).Error(0)
}

func newTestDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mck, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return sqlx.NewDb(mockDB, "sqlmock"), mck
}

func activeCoupon() *coupon.Coupon {
	return &coupon.Coupon{
		ID:                7,
		Code:              "SAVE10",
		DiscountType:      coupon.DiscountPercentage,
		DiscountValue:     10,
		EligibleUserTypes: []string{"all"},
		ValidFrom:         time.Now().Add(-time.Hour),
		ValidTill:         time.Now().Add(time.Hour),
		PerUserLimit:      1,
		IsActive:          true,
	}
}

func TestOrchestrator_CreateTopupOrder(t *testing.T) {
	t.Run("rejects request without plan or amount", func(t *testing.T) {
		db, _ := newTestDB(t)
		o := NewOrchestrator(db, new(MockAttemptsRepo), new(MockWalletRepo), new(MockCouponRepo), new(MockGateway))

		_, err := o.CreateTopupOrder(context.Background(), CreateOrderRequest{UserID: 1})
		assert.ErrorIs(t, err, ErrNoAmount)
	})

	t.Run("rejects unknown plan", func(t *testing.T) {
		db, _ := newTestDB(t)
		o := NewOrchestrator(db, new(MockAttemptsRepo), new(MockWalletRepo), new(MockCouponRepo), new(MockGateway))

		_, err := o.CreateTopupOrder(context.Background(), CreateOrderRequest{UserID: 1, PlanID: "platinum"})
		assert.ErrorIs(t, err, ErrUnknownPlan)
	})

	t.Run("idempotency key replays the prior quote without a new gateway order", func(t *testing.T) {
		db, _ := newTestDB(t)
		attempts := new(MockAttemptsRepo)
		gw := new(MockGateway)
		o := NewOrchestrator(db, attempts, new(MockWalletRepo), new(MockCouponRepo), gw)

		prior := &Attempt{ID: 42, UserID: 1, DiscountCents: 500, BonusCents: 0, FinalCents: 9500}
		attempts.On("GetByIdempotencyKey", mock.Anything, 1, "key-1").Return(prior, nil)

		result, err := o.CreateTopupOrder(context.Background(), CreateOrderRequest{
			UserID:         1,
			AmountCents:    10000,
			IdempotencyKey: "key-1",
		})

		require.NoError(t, err)
		assert.True(t, result.AlreadyExisted)
		assert.Equal(t, 42, result.Attempt.ID)
		assert.Equal(t, int64(500), result.DiscountCents)
		gw.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
		attempts.AssertExpectations(t)
	})

	t.Run("per-user limit fails before the gateway is called", func(t *testing.T) {
		db, _ := newTestDB(t)
		attempts := new(MockAttemptsRepo)
		wallets := new(MockWalletRepo)
		coupons := new(MockCouponRepo)
		gw := new(MockGateway)
		o := NewOrchestrator(db, attempts, wallets, coupons, gw)

		c := activeCoupon()
		wallets.On("EnsureWallet", mock.Anything, 1).Return(&wallet.Wallet{ID: 3, UserID: 1, Currency: "INR"}, nil)
		coupons.On("GetByCode", mock.Anything, "SAVE10").Return(c, nil)
		coupons.On("CountUserUsages", mock.Anything, c.ID, 1).Return(1, nil)

		_, err := o.CreateTopupOrder(context.Background(), CreateOrderRequest{
			UserID:      1,
			UserType:    "customer",
			AmountCents: 10000,
			CouponCode:  "SAVE10",
		})

		assert.ErrorIs(t, err, ErrCouponExhausted)
		gw.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
		coupons.AssertExpectations(t)
	})

	t.Run("invalid coupon is rejected before the gateway is called", func(t *testing.T) {
		db, _ := newTestDB(t)
		wallets := new(MockWalletRepo)
		coupons := new(MockCouponRepo)
		gw := new(MockGateway)
		o := NewOrchestrator(db, new(MockAttemptsRepo), wallets, coupons, gw)

		c := activeCoupon()
		c.IsActive = false
		wallets.On("EnsureWallet", mock.Anything, 1).Return(&wallet.Wallet{ID: 3, UserID: 1, Currency: "INR"}, nil)
		coupons.On("GetByCode", mock.Anything, "SAVE10").Return(c, nil)

		_, err := o.CreateTopupOrder(context.Background(), CreateOrderRequest{
			UserID:      1,
			AmountCents: 10000,
			CouponCode:  "SAVE10",
		})

		assert.ErrorIs(t, err, ErrInvalidCoupon)
		gw.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
	})

	t.Run("gateway failure persists nothing", func(t *testing.T) {
		db, mck := newTestDB(t)
		attempts := new(MockAttemptsRepo)
		wallets := new(MockWalletRepo)
		gw := new(MockGateway)
		o := NewOrchestrator(db, attempts, wallets, new(MockCouponRepo), gw)

		wallets.On("EnsureWallet", mock.Anything, 1).Return(&wallet.Wallet{ID: 3, UserID: 1, Currency: "INR"}, nil)
		gw.On("CreateOrder", mock.Anything, mock.Anything).Return(nil, gateway.ErrOrderRejected)

		_, err := o.CreateTopupOrder(context.Background(), CreateOrderRequest{UserID: 1, AmountCents: 10000})

		assert.ErrorIs(t, err, gateway.ErrOrderRejected)
		attempts.AssertNotCalled(t, "CreateAttempt", mock.Anything, mock.Anything, mock.Anything)
		assert.NoError(t, mck.ExpectationsWereMet())
	})

	t.Run("plan purchase with percentage coupon quotes discounted charge and full credit", func(t *testing.T) {
		db, mck := newTestDB(t)
		attempts := new(MockAttemptsRepo)
		wallets := new(MockWalletRepo)
		coupons := new(MockCouponRepo)
		gw := new(MockGateway)
		o := NewOrchestrator(db, attempts, wallets, coupons, gw)

		c := activeCoupon()
		wallets.On("EnsureWallet", mock.Anything, 1).Return(&wallet.Wallet{ID: 3, UserID: 1, Currency: "INR"}, nil)
		coupons.On("GetByCode", mock.Anything, "SAVE10").Return(c, nil)
		coupons.On("CountUserUsages", mock.Anything, c.ID, 1).Return(0, nil)

		// value plan: price 50000, credit 55000; 10% off the price only.
		gw.On("Provider").Return("razorpay")
		gw.On("CreateOrder", mock.Anything, mock.MatchedBy(func(req gateway.OrderRequest) bool {
			return req.AmountCents == 45000 && req.Currency == "INR"
		})).Return(&gateway.Order{OrderID: "order_abc", AmountCents: 45000, Currency: "INR"}, nil)

		mck.ExpectBegin()
		coupons.On("CreateUsage", mock.Anything, mock.Anything, mock.MatchedBy(func(p coupon.CreateUsageParams) bool {
			return p.CouponID == c.ID && p.DiscountCents == 5000 && p.FinalPaidCents == 45000 && p.FinalCreditCents == 50000
		})).Return(&coupon.Usage{ID: 11, CouponID: c.ID, Status: coupon.UsageApplied}, nil)
		attempts.On("CreateAttempt", mock.Anything, mock.Anything, mock.MatchedBy(func(p CreateAttemptParams) bool {
			return p.BaseCents == 50000 &&
				p.DiscountCents == 5000 &&
				p.FinalCents == 45000 &&
				p.CreditCents == 50000 &&
				p.Status == StatusCouponApplied &&
				p.ProviderOrderID == "order_abc" &&
				p.CouponUsageID != nil && *p.CouponUsageID == 11
		})).Return(&Attempt{ID: 9, UserID: 1, FinalCents: 45000, CreditCents: 50000, Status: StatusCouponApplied}, nil)
		mck.ExpectCommit()

		result, err := o.CreateTopupOrder(context.Background(), CreateOrderRequest{
			UserID:     1,
			UserType:   "customer",
			PlanID:     "value",
			CouponCode: "SAVE10",
		})

		require.NoError(t, err)
		assert.False(t, result.AlreadyExisted)
		assert.Equal(t, int64(5000), result.DiscountCents)
		assert.Equal(t, "order_abc", result.Order.OrderID)
		assert.NoError(t, mck.ExpectationsWereMet())
		attempts.AssertExpectations(t)
		coupons.AssertExpectations(t)
		gw.AssertExpectations(t)
	})

	t.Run("free amount without coupon charges and credits the same", func(t *testing.T) {
		db, mck := newTestDB(t)
		attempts := new(MockAttemptsRepo)
		wallets := new(MockWalletRepo)
		gw := new(MockGateway)
		o := NewOrchestrator(db, attempts, wallets, new(MockCouponRepo), gw)

		wallets.On("EnsureWallet", mock.Anything, 1).Return(&wallet.Wallet{ID: 3, UserID: 1, Currency: "INR"}, nil)
		gw.On("Provider").Return("razorpay")
		gw.On("CreateOrder", mock.Anything, mock.MatchedBy(func(req gateway.OrderRequest) bool {
			return req.AmountCents == 2500
		})).Return(&gateway.Order{OrderID: "order_xyz", AmountCents: 2500, Currency: "INR"}, nil)

		mck.ExpectBegin()
		attempts.On("CreateAttempt", mock.Anything, mock.Anything, mock.MatchedBy(func(p CreateAttemptParams) bool {
			return p.BaseCents == 2500 && p.FinalCents == 2500 && p.CreditCents == 2500 &&
				p.Status == StatusInitiated && p.CouponUsageID == nil
		})).Return(&Attempt{ID: 10, UserID: 1, FinalCents: 2500, CreditCents: 2500, Status: StatusInitiated}, nil)
		mck.ExpectCommit()

		result, err := o.CreateTopupOrder(context.Background(), CreateOrderRequest{UserID: 1, AmountCents: 2500})

		require.NoError(t, err)
		assert.Equal(t, int64(0), result.DiscountCents)
		assert.NoError(t, mck.ExpectationsWereMet())
	})
}
