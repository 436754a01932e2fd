package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperTrader/internal/domain"
	"paperTrader/internal/ports"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// setupTestDB creates a temporary database for testing
func setupTestDB(t *testing.T) *Repository {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "paper-trader-test-*")
	require.NoError(t, err)

	dbPath := filepath.Join(tmpDir, "test.db")
	repo, err := NewRepository(Config{
		DBPath: dbPath,
		Logger: &mockLogger{},
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		repo.Close()
		os.RemoveAll(tmpDir)
	})
	return repo
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestRepository_PricePointUpsertAndRange(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		p := domain.PricePoint{
			Symbol:  "AAPL",
			Instant: base.Add(time.Duration(i) * 5 * time.Minute),
			Open:    dec("100.10"),
			High:    dec("101.00"),
			Low:     dec("99.50"),
			Close:   dec(fmt.Sprintf("100.%d", i)),
			Volume:  int64(1000 + i),
		}
		require.NoError(t, repo.UpsertPricePoint(ctx, p))
	}

	// replaying the same instant must replace, not duplicate
	replay := domain.PricePoint{
		Symbol:  "AAPL",
		Instant: base,
		Open:    dec("100.10"),
		High:    dec("102.00"),
		Low:     dec("99.50"),
		Close:   dec("101.75"),
		Volume:  2000,
	}
	require.NoError(t, repo.UpsertPricePoint(ctx, replay))

	points, err := repo.PricePointsInRange(ctx, "AAPL", base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, points, 5)
	assert.True(t, points[0].Close.Equal(dec("101.75")), "replayed bar should overwrite the original")
	for i := 1; i < len(points); i++ {
		assert.True(t, points[i].Instant.After(points[i-1].Instant), "range query must be ordered ascending")
	}

	// other symbols are invisible
	other, err := repo.PricePointsInRange(ctx, "MSFT", base, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestRepository_UserLifecycle(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	user := &domain.User{Username: "alice"}
	id, err := repo.CreateUser(ctx, user)
	require.NoError(t, err)
	require.NotZero(t, id)

	loaded, err := repo.GetUser(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "alice", loaded.Username)
	assert.True(t, loaded.CashBalance.Equal(domain.DefaultStartingCash), "new accounts get the default starting cash")

	loaded.Debit(dec("1000"))
	require.NoError(t, repo.UpdateCashBalance(ctx, loaded))

	reloaded, err := repo.GetUser(ctx, id)
	require.NoError(t, err)
	assert.True(t, reloaded.CashBalance.Equal(dec("9000")))

	_, err = repo.GetUser(ctx, 9999)
	assert.ErrorIs(t, err, ports.ErrUserNotFound)
}

func TestRepository_HoldingUpsertAndDelete(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	userID, err := repo.CreateUser(ctx, &domain.User{Username: "bob"})
	require.NoError(t, err)

	h := &domain.Holding{UserID: userID, Symbol: "AAPL", Quantity: dec("10"), AvgPrice: dec("100")}
	id, err := repo.SaveHolding(ctx, h)
	require.NoError(t, err)
	require.NotZero(t, id)

	// saving the same (user, symbol) again must update the existing row
	h.Quantity = dec("16")
	h.AvgPrice = dec("105.5")
	id2, err := repo.SaveHolding(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, id, id2)

	loaded, err := repo.GetHolding(ctx, userID, "AAPL")
	require.NoError(t, err)
	assert.True(t, loaded.Quantity.Equal(dec("16")))
	assert.True(t, loaded.AvgPrice.Equal(dec("105.5")))

	_, err = repo.SaveHolding(ctx, &domain.Holding{UserID: userID, Symbol: "MSFT", Quantity: dec("3"), AvgPrice: dec("200")})
	require.NoError(t, err)

	symbols, err := repo.HeldSymbols(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, symbols)

	require.NoError(t, repo.DeleteHolding(ctx, id))
	_, err = repo.GetHolding(ctx, userID, "AAPL")
	assert.ErrorIs(t, err, ports.ErrNotFound)

	assert.ErrorIs(t, repo.DeleteHolding(ctx, id), ports.ErrNotFound)
}

func TestRepository_OrderLifecycle(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	userID, err := repo.CreateUser(ctx, &domain.User{Username: "carol"})
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	order := &domain.Order{
		UserID:        userID,
		Symbol:        "AAPL",
		Type:          domain.Limit,
		Side:          domain.Buy,
		Status:        domain.StatusPending,
		Quantity:      dec("5"),
		Price:         dec("50"),
		ClientOrderID: "client-1",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	id, err := repo.CreateOrder(ctx, order)
	require.NoError(t, err)

	loaded, err := repo.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.Limit, loaded.Type)
	assert.Equal(t, domain.Buy, loaded.Side)
	assert.Equal(t, domain.StatusPending, loaded.Status)
	assert.True(t, loaded.Price.Equal(dec("50")))
	assert.Equal(t, "client-1", loaded.ClientOrderID)

	loaded.Status = domain.StatusExecuted
	loaded.UpdatedAt = now.Add(time.Minute)
	require.NoError(t, repo.UpdateOrder(ctx, loaded))

	pending, err := repo.GetOrdersByStatus(ctx, domain.StatusPending)
	require.NoError(t, err)
	assert.Empty(t, pending)

	executed, err := repo.GetOrdersByUserAndStatus(ctx, userID, domain.StatusExecuted)
	require.NoError(t, err)
	require.Len(t, executed, 1)

	all, err := repo.GetOrdersByUser(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = repo.GetOrder(ctx, 9999)
	assert.ErrorIs(t, err, ports.ErrOrderNotFound)

	assert.ErrorIs(t, repo.UpdateOrder(ctx, &domain.Order{ID: 9999, UpdatedAt: now}), ports.ErrOrderNotFound)
}

func TestRepository_TransactionLedger(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	userID, err := repo.CreateUser(ctx, &domain.User{Username: "dave"})
	require.NoError(t, err)

	holdingID := int64(7)
	tx := &domain.Transaction{
		UserID:        userID,
		HoldingID:     &holdingID,
		Type:          domain.TxBuy,
		Symbol:        "AAPL",
		Quantity:      dec("10"),
		Price:         dec("100"),
		TotalAmount:   dec("1000"),
		ExecutionTime: time.Now().UTC().Truncate(time.Second),
	}
	_, err = repo.CreateTransaction(ctx, tx)
	require.NoError(t, err)

	closeOut := &domain.Transaction{
		UserID:        userID,
		Type:          domain.TxSell,
		Symbol:        "AAPL",
		Quantity:      dec("10"),
		Price:         dec("120"),
		TotalAmount:   dec("1200"),
		ExecutionTime: time.Now().UTC().Truncate(time.Second).Add(time.Minute),
	}
	_, err = repo.CreateTransaction(ctx, closeOut)
	require.NoError(t, err)

	txs, err := repo.GetTransactionsByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, domain.TxSell, txs[0].Type, "ledger reads newest first")
	assert.Nil(t, txs[0].HoldingID, "a close-out entry has no holding reference")
	require.NotNil(t, txs[1].HoldingID)
	assert.Equal(t, holdingID, *txs[1].HoldingID)
}

func TestRepository_WithinTxRollsBackOnError(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	userID, err := repo.CreateUser(ctx, &domain.User{Username: "erin"})
	require.NoError(t, err)

	boom := fmt.Errorf("settlement exploded")
	err = repo.WithinTx(ctx, func(ctx context.Context) error {
		user, err := repo.GetUser(ctx, userID)
		require.NoError(t, err)
		user.Debit(dec("5000"))
		require.NoError(t, repo.UpdateCashBalance(ctx, user))

		_, err = repo.SaveHolding(ctx, &domain.Holding{UserID: userID, Symbol: "AAPL", Quantity: dec("1"), AvgPrice: dec("100")})
		require.NoError(t, err)

		return boom
	})
	require.ErrorIs(t, err, boom)

	// everything inside the transaction must be gone
	user, err := repo.GetUser(ctx, userID)
	require.NoError(t, err)
	assert.True(t, user.CashBalance.Equal(domain.DefaultStartingCash), "debit must roll back")

	_, err = repo.GetHolding(ctx, userID, "AAPL")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestRepository_WithinTxCommits(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	userID, err := repo.CreateUser(ctx, &domain.User{Username: "frank"})
	require.NoError(t, err)

	err = repo.WithinTx(ctx, func(ctx context.Context) error {
		user, err := repo.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		user.Debit(dec("1000"))
		if err := repo.UpdateCashBalance(ctx, user); err != nil {
			return err
		}
		_, err = repo.SaveHolding(ctx, &domain.Holding{UserID: userID, Symbol: "AAPL", Quantity: dec("10"), AvgPrice: dec("100")})
		return err
	})
	require.NoError(t, err)

	user, err := repo.GetUser(ctx, userID)
	require.NoError(t, err)
	assert.True(t, user.CashBalance.Equal(dec("9000")))

	holding, err := repo.GetHolding(ctx, userID, "AAPL")
	require.NoError(t, err)
	assert.True(t, holding.Quantity.Equal(dec("10")))
}
