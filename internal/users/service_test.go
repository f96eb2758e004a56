package users_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-voyage/internal/config"
	"ms-voyage/internal/ledger"
	ledgerdb "ms-voyage/internal/ledger/db"
	"ms-voyage/internal/logger"
	"ms-voyage/internal/models"
	"ms-voyage/internal/users"
	usersdb "ms-voyage/internal/users/db"
)

func setupServices(t *testing.T) (*users.UserService, *ledger.LedgerService) {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	ctx := context.Background()
	require.NoError(t, bunDB.ResetModel(ctx, (*models.User)(nil)))
	require.NoError(t, bunDB.ResetModel(ctx, (*models.PointTransaction)(nil)))
	t.Cleanup(func() { bunDB.Close() })

	log := logger.NewLogger()
	ledgerService := ledger.NewLedgerService(&ledgerdb.DB{Bun: bunDB}, log)
	userService := users.NewUserService(usersdb.NewDB(ctx, bunDB), ledgerService, log, config.StayConfig{
		SignupBonus: 1000,
	})
	return userService, ledgerService
}

func TestRegisterGrantsSignupBonus(t *testing.T) {
	userService, ledgerService := setupServices(t)
	ctx := context.Background()

	user, err := userService.Register(ctx, "Nomad@Example.com", "nomad")
	require.NoError(t, err)
	assert.Equal(t, "nomad@example.com", user.Email, "email is normalized")
	assert.Equal(t, int64(1000), user.CurrentPoints)

	balance, err := ledgerService.GetBalance(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance)

	txs, err := ledgerService.ListTransactions(ctx, user.ID, ledger.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, models.TransactionReasonSignedUp, txs[0].Reason)
	assert.Equal(t, models.TransactionReferenceUsers, txs[0].ReferenceType)
	assert.Equal(t, user.ID, txs[0].ReferenceID)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	userService, _ := setupServices(t)
	ctx := context.Background()

	_, err := userService.Register(ctx, "nomad@example.com", "nomad")
	require.NoError(t, err)

	_, err = userService.Register(ctx, "nomad@example.com", "copycat")
	assert.Error(t, err)
}

func TestRegisterValidatesInput(t *testing.T) {
	userService, _ := setupServices(t)
	ctx := context.Background()

	_, err := userService.Register(ctx, "not-an-email", "nomad")
	assert.Error(t, err)

	_, err = userService.Register(ctx, "nomad@example.com", "   ")
	assert.Error(t, err)
}

func TestUpdateNickname(t *testing.T) {
	userService, _ := setupServices(t)
	ctx := context.Background()

	user, err := userService.Register(ctx, "nomad@example.com", "nomad")
	require.NoError(t, err)

	updated, err := userService.UpdateNickname(ctx, user.ID, "wanderer")
	require.NoError(t, err)
	assert.Equal(t, "wanderer", updated.Nickname)

	_, err = userService.UpdateNickname(ctx, "ghost", "x")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDeactivateHidesUserButKeepsLedger(t *testing.T) {
	userService, ledgerService := setupServices(t)
	ctx := context.Background()

	user, err := userService.Register(ctx, "nomad@example.com", "nomad")
	require.NoError(t, err)
	require.NoError(t, userService.Deactivate(ctx, user.ID))

	_, err = userService.Get(ctx, user.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	// Ledger history survives the account.
	txs, err := ledgerService.ListTransactions(ctx, user.ID, ledger.TransactionFilter{})
	require.NoError(t, err)
	assert.Len(t, txs, 1)

	// Deactivating twice is an error, not a silent no-op.
	assert.ErrorIs(t, userService.Deactivate(ctx, user.ID), models.ErrNotFound)
}
