package rooms_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-voyage/internal/catalog"
	catalogdb "ms-voyage/internal/catalog/db"
	"ms-voyage/internal/config"
	"ms-voyage/internal/kafka"
	"ms-voyage/internal/ledger"
	ledgerdb "ms-voyage/internal/ledger/db"
	"ms-voyage/internal/logger"
	"ms-voyage/internal/models"
	"ms-voyage/internal/rooms"
	roomsdb "ms-voyage/internal/rooms/db"
	"ms-voyage/internal/scheduler"
	schedulerdb "ms-voyage/internal/scheduler/db"
	"ms-voyage/internal/tickets"
	ticketdb "ms-voyage/internal/tickets/db"
	"ms-voyage/internal/users"
	usersdb "ms-voyage/internal/users/db"
)

// The full traveler journey over one database: register, buy a ticket, arrive,
// get a room, extend the stay, leave.
func TestTravelerJourney(t *testing.T) {
	ctx := context.Background()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	for _, model := range []interface{}{
		(*models.User)(nil), (*models.PointTransaction)(nil),
		(*models.City)(nil), (*models.Airship)(nil), (*models.GuestHouse)(nil),
		(*models.Ticket)(nil), (*models.Room)(nil), (*models.Stay)(nil),
		(*models.ScheduledTask)(nil), (*models.DeadLetter)(nil),
	} {
		require.NoError(t, bunDB.ResetModel(ctx, model))
	}
	t.Cleanup(func() { bunDB.Close() })

	now := time.Now().UTC()
	seed := []interface{}{
		&models.City{ID: "city-harbor", Name: "Lumen Harbor", BaseCostPoints: 100, BaseDurationHours: 1.0, IsActive: true, CreatedAt: now, UpdatedAt: now},
		&models.Airship{ID: "ship-breeze", Name: "Breeze", CostFactor: 1.0, DurationFactor: 1.0, IsActive: true, CreatedAt: now, UpdatedAt: now},
		&models.GuestHouse{ID: "gh-harbor", CityID: "city-harbor", Type: models.GuestHouseTypeMixed, Name: "Harborside Commons", IsActive: true, CreatedAt: now, UpdatedAt: now},
	}
	for _, row := range seed {
		_, err := bunDB.NewInsert().Model(row).Exec(ctx)
		require.NoError(t, err)
	}

	log := logger.NewLogger()
	stayCfg := config.StayConfig{
		RoomMaxCapacity: 6,
		StayDuration:    24 * time.Hour,
		ReminderOffset:  time.Hour,
		ExtensionCost:   300,
		SignupBonus:     1000,
	}

	producer := kafka.NewProducer(config.KafkaConfig{MockMode: true}, log)
	queue := scheduler.NewQueue(&schedulerdb.DB{Bun: bunDB})

	ledgerService := ledger.NewLedgerService(&ledgerdb.DB{Bun: bunDB}, log)
	catalogService := catalog.NewCatalogService(&catalogdb.DB{Bun: bunDB})
	ticketDB := &ticketdb.DB{Bun: bunDB}
	ticketService := tickets.NewTicketService(ticketDB, catalogService, ledgerService, producer, log)
	roomService := rooms.NewRoomService(
		roomsdb.NewDB(ctx, bunDB), ticketDB, catalogService, ledgerService,
		queue, producer, NoopCache{}, log, stayCfg,
	)
	userService := users.NewUserService(usersdb.NewDB(ctx, bunDB), ledgerService, log, stayCfg)

	// Register: signup bonus lands.
	user, err := userService.Register(ctx, "nomad@example.com", "nomad")
	require.NoError(t, err)
	require.Equal(t, int64(1000), user.CurrentPoints)

	// Purchase: 100 base * 1.0 factor, boards immediately.
	ticket, err := ticketService.Purchase(ctx, user.ID, "city-harbor", "ship-breeze")
	require.NoError(t, err)
	assert.Equal(t, int64(100), ticket.CostPoints)
	assert.Equal(t, models.TicketStatusBoarding, ticket.Status)

	balance, err := ledgerService.GetBalance(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(900), balance)

	// Completion was queued for the arrival time.
	taskCount, err := bunDB.NewSelect().Model((*models.ScheduledTask)(nil)).
		Where("task_name = ?", scheduler.TaskCompleteTicket).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, taskCount)

	// Arrival: ticket completes, check-in chains.
	completed, err := ticketService.Complete(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketStatusCompleted, completed.Status)

	stay, err := roomService.CheckIn(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, "gh-harbor", stay.GuestHouseID)
	assert.Equal(t, models.StayStatusCheckedIn, stay.Status)

	current, err := roomService.GetCurrentStay(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, stay.ID, current.ID)

	// A second check-in attempt for the same ticket is a business no-op.
	_, err = roomService.CheckIn(ctx, ticket.ID)
	assert.ErrorIs(t, err, models.ErrActiveStayExists)
	assert.True(t, models.IsDomainError(err), "redelivered check-in must not be retried")

	// Extend: 300 points, checkout moves a full day.
	extended, err := roomService.Extend(ctx, stay.ID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, stay.ScheduledCheckOutAt.Add(24*time.Hour).Unix(), extended.ScheduledCheckOutAt.Unix())

	balance, err = ledgerService.GetBalance(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(600), balance)

	// Leave early; the room empties and is tombstoned.
	out, err := roomService.CheckoutManual(ctx, stay.ID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StayStatusCheckedOut, out.Status)

	_, err = roomService.GetCurrentStay(ctx, user.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	visibleRooms, err := bunDB.NewSelect().Model((*models.Room)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, visibleRooms)

	// The ledger story: +1000 signup, -100 ticket, -300 extension.
	txs, err := ledgerService.ListTransactions(ctx, user.ID, ledger.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, txs, 3)
	var folded int64
	for _, tx := range txs {
		folded += tx.SignedAmount()
	}
	assert.Equal(t, int64(600), folded)
}
