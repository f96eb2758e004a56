package rooms_test

import (
	"context"
	"database/sql"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-voyage/internal/config"
	"ms-voyage/internal/ledger"
	"ms-voyage/internal/logger"
	"ms-voyage/internal/models"
	"ms-voyage/internal/rooms"
	roomsdb "ms-voyage/internal/rooms/db"
)

func testStayConfig() config.StayConfig {
	return config.StayConfig{
		RoomMaxCapacity: 6,
		StayDuration:    24 * time.Hour,
		ReminderOffset:  time.Hour,
		ExtensionCost:   300,
		SignupBonus:     1000,
	}
}

func setupTestDB(t *testing.T) *roomsdb.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	ctx := context.Background()
	require.NoError(t, bunDB.ResetModel(ctx, (*models.Room)(nil)))
	require.NoError(t, bunDB.ResetModel(ctx, (*models.Stay)(nil)))

	t.Cleanup(func() { bunDB.Close() })
	return roomsdb.NewDB(ctx, bunDB)
}

// Test doubles

type StubTickets struct {
	tickets map[string]*models.Ticket
}

func (s *StubTickets) GetTicketByID(_ context.Context, id string) (*models.Ticket, error) {
	ticket, ok := s.tickets[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return ticket, nil
}

type StubGuestHouses struct{}

func (s *StubGuestHouses) GetGuestHouseForCity(_ context.Context, cityID string) (*models.GuestHouse, error) {
	return &models.GuestHouse{ID: "gh-" + cityID, CityID: cityID, Type: models.GuestHouseTypeMixed}, nil
}

type StubLedger struct {
	mu       sync.Mutex
	balances map[string]int64
	earns    int
}

func (s *StubLedger) Spend(_ context.Context, p ledger.SpendParams) (*models.PointTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.balances[p.UserID] < p.Amount {
		return nil, models.ErrInsufficientBalance
	}
	s.balances[p.UserID] -= p.Amount
	return &models.PointTransaction{Amount: p.Amount, BalanceAfter: s.balances[p.UserID]}, nil
}

func (s *StubLedger) Earn(_ context.Context, p ledger.EarnParams) (*models.PointTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[p.UserID] += p.Amount
	s.earns++
	return &models.PointTransaction{Amount: p.Amount, BalanceAfter: s.balances[p.UserID]}, nil
}

type StubScheduler struct {
	mu        sync.Mutex
	nextID    int
	scheduled map[string]time.Time
	cancelled []string
}

func NewStubScheduler() *StubScheduler {
	return &StubScheduler{scheduled: make(map[string]time.Time)}
}

func (s *StubScheduler) Schedule(_ context.Context, taskName string, _ any, runAt time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := taskName + "-" + strconv.Itoa(s.nextID)
	s.scheduled[id] = runAt
	return id, nil
}

func (s *StubScheduler) Cancel(_ context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if taskID != "" {
		s.cancelled = append(s.cancelled, taskID)
	}
	return nil
}

type StubPublisher struct {
	mu         sync.Mutex
	checkedIn  int
	checkedOut int
	reminders  int
}

func (s *StubPublisher) PublishStayCheckedIn(*models.Stay) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkedIn++
	return nil
}

func (s *StubPublisher) PublishStayReminder(*models.Stay) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reminders++
	return nil
}

func (s *StubPublisher) PublishStayCheckedOut(*models.Stay, bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkedOut++
	return nil
}

type NoopCache struct{}

func (NoopCache) GetCurrentStay(context.Context, string) (*models.Stay, bool) { return nil, false }
func (NoopCache) SetCurrentStay(context.Context, *models.Stay)                {}
func (NoopCache) Invalidate(context.Context, string)                          {}

type fixture struct {
	svc    *rooms.RoomService
	db     *roomsdb.DB
	ledger *StubLedger
	sched  *StubScheduler
	pub    *StubPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := setupTestDB(t)
	led := &StubLedger{balances: map[string]int64{}}
	sched := NewStubScheduler()
	pub := &StubPublisher{}
	svc := rooms.NewRoomService(
		db,
		&StubTickets{tickets: map[string]*models.Ticket{}},
		&StubGuestHouses{},
		led,
		sched,
		pub,
		NoopCache{},
		logger.NewLogger(),
		testStayConfig(),
	)
	return &fixture{svc: svc, db: db, ledger: led, sched: sched, pub: pub}
}

func countRooms(t *testing.T, f *fixture, guestHouseID string) []models.Room {
	t.Helper()
	var out []models.Room
	err := f.db.Bun.NewSelect().Model(&out).
		Where("guest_house_id = ?", guestHouseID).
		Order("room_number ASC").
		Scan(context.Background())
	require.NoError(t, err)
	return out
}

func TestAssignFillsRoomThenOpensNext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		user := "user-" + string(rune('a'+i))
		_, err := f.svc.Assign(ctx, "gh-1", user, "ticket-"+user, "city-1")
		require.NoError(t, err)
	}

	roomList := countRooms(t, f, "gh-1")
	require.Len(t, roomList, 2, "seventh guest must open a second room")
	assert.Equal(t, 1, roomList[0].RoomNumber)
	assert.Equal(t, 6, roomList[0].CurrentCapacity)
	assert.Equal(t, models.RoomStatusFull, roomList[0].Status)
	assert.Equal(t, 2, roomList[1].RoomNumber)
	assert.Equal(t, 1, roomList[1].CurrentCapacity)
	assert.Equal(t, models.RoomStatusActive, roomList[1].Status)
}

func TestAssignRejectsSecondActiveStay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Assign(ctx, "gh-1", "user-1", "ticket-1", "city-1")
	require.NoError(t, err)

	_, err = f.svc.Assign(ctx, "gh-2", "user-1", "ticket-2", "city-2")
	assert.ErrorIs(t, err, models.ErrActiveStayExists)
}

func TestAssignSchedulesCheckoutAndReminder(t *testing.T) {
	f := newFixture(t)

	stay, err := f.svc.Assign(context.Background(), "gh-1", "user-1", "ticket-1", "city-1")
	require.NoError(t, err)

	require.NotEmpty(t, stay.CheckoutTaskID)
	require.NotEmpty(t, stay.ReminderTaskID)
	assert.Equal(t, stay.ScheduledCheckOutAt, f.sched.scheduled[stay.CheckoutTaskID])
	assert.Equal(t, stay.ScheduledCheckOutAt.Add(-time.Hour), f.sched.scheduled[stay.ReminderTaskID])
	assert.Equal(t, 1, f.pub.checkedIn)

	assert.Equal(t, 24*time.Hour, stay.ScheduledCheckOutAt.Sub(stay.CheckInAt))
}

func TestConcurrentAssignsNeverOverbook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const guests = 15
	var wg sync.WaitGroup
	errs := make(chan error, guests)
	for i := 0; i < guests; i++ {
		user := "user-" + string(rune('a'+i))
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			_, err := f.svc.Assign(ctx, "gh-1", user, "ticket-"+user, "city-1")
			errs <- err
		}(user)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	roomList := countRooms(t, f, "gh-1")
	total := 0
	for _, room := range roomList {
		assert.LessOrEqual(t, room.CurrentCapacity, room.MaxCapacity, "room %d overbooked", room.RoomNumber)
		if room.CurrentCapacity == room.MaxCapacity {
			assert.Equal(t, models.RoomStatusFull, room.Status)
		}
		total += room.CurrentCapacity
	}
	assert.Equal(t, guests, total)
}

func TestManualCheckoutVacatesAndTombstonesEmptyRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stay, err := f.svc.Assign(ctx, "gh-1", "user-1", "ticket-1", "city-1")
	require.NoError(t, err)

	out, err := f.svc.CheckoutManual(ctx, stay.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.StayStatusCheckedOut, out.Status)
	require.NotNil(t, out.ActualCheckOutAt)
	assert.Equal(t, 1, f.pub.checkedOut)

	// Pending callbacks are cancelled on early checkout.
	assert.ElementsMatch(t, []string{stay.CheckoutTaskID, stay.ReminderTaskID}, f.sched.cancelled)

	// Room emptied -> soft deleted, invisible to the next lookup.
	visible := countRooms(t, f, "gh-1")
	assert.Empty(t, visible)

	// A fresh arrival gets a new room with the next number, not a recycled one.
	stay2, err := f.svc.Assign(ctx, "gh-1", "user-2", "ticket-2", "city-1")
	require.NoError(t, err)
	assert.NotEqual(t, stay.RoomID, stay2.RoomID)
	rooms2 := countRooms(t, f, "gh-1")
	require.Len(t, rooms2, 1)
	assert.Equal(t, 2, rooms2[0].RoomNumber)
}

func TestCheckoutIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stay, err := f.svc.Assign(ctx, "gh-1", "user-1", "ticket-1", "city-1")
	require.NoError(t, err)
	_, err = f.svc.Assign(ctx, "gh-1", "user-2", "ticket-2", "city-1")
	require.NoError(t, err)

	_, err = f.svc.CheckoutManual(ctx, stay.ID, "user-1")
	require.NoError(t, err)

	again, err := f.svc.CheckoutManual(ctx, stay.ID, "user-1")
	require.NoError(t, err, "second checkout must be a no-op")
	assert.Equal(t, models.StayStatusCheckedOut, again.Status)
	assert.Equal(t, 1, f.pub.checkedOut, "event must not fire twice")

	roomList := countRooms(t, f, "gh-1")
	require.Len(t, roomList, 1)
	assert.Equal(t, 1, roomList[0].CurrentCapacity, "capacity must not be decremented twice")
}

func TestCheckoutForeignStayForbidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stay, err := f.svc.Assign(ctx, "gh-1", "user-1", "ticket-1", "city-1")
	require.NoError(t, err)

	_, err = f.svc.CheckoutManual(ctx, stay.ID, "user-2")
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestAutoCheckoutSkipsWhenExtensionMovedTheClock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stay, err := f.svc.Assign(ctx, "gh-1", "user-1", "ticket-1", "city-1")
	require.NoError(t, err)

	// scheduled_check_out_at is 24h ahead: a callback arriving now is stale.
	out, err := f.svc.CheckoutAuto(ctx, stay.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StayStatusCheckedIn, out.Status, "stale auto checkout must not evict the guest")
	assert.Equal(t, 0, f.pub.checkedOut)
}

func TestAutoCheckoutAtDueTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stay, err := f.svc.Assign(ctx, "gh-1", "user-1", "ticket-1", "city-1")
	require.NoError(t, err)

	// Pull the checkout clock into the past.
	_, err = f.db.Bun.NewUpdate().Model((*models.Stay)(nil)).
		Set("scheduled_check_out_at = ?", time.Now().UTC().Add(-time.Minute)).
		Where("id = ?", stay.ID).
		Exec(ctx)
	require.NoError(t, err)

	out, err := f.svc.CheckoutAuto(ctx, stay.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StayStatusCheckedOut, out.Status)
}

func TestExtendChargesAndReplacesCallbacks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledger.balances["user-1"] = 1000

	stay, err := f.svc.Assign(ctx, "gh-1", "user-1", "ticket-1", "city-1")
	require.NoError(t, err)
	originalCheckout := stay.ScheduledCheckOutAt

	extended, err := f.svc.Extend(ctx, stay.ID, "user-1")
	require.NoError(t, err)

	assert.Equal(t, originalCheckout.Add(24*time.Hour), extended.ScheduledCheckOutAt)
	assert.Equal(t, 1, extended.ExtensionCount)
	assert.Equal(t, int64(300), extended.TotalExtensionCost)
	assert.Equal(t, int64(700), f.ledger.balances["user-1"])

	// Old callbacks cancelled, new ones registered for the moved clock.
	assert.ElementsMatch(t, []string{stay.CheckoutTaskID, stay.ReminderTaskID}, f.sched.cancelled)
	assert.Equal(t, extended.ScheduledCheckOutAt, f.sched.scheduled[extended.CheckoutTaskID])

	// Second extension stacks.
	extended2, err := f.svc.Extend(ctx, stay.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, originalCheckout.Add(48*time.Hour), extended2.ScheduledCheckOutAt)
	assert.Equal(t, 2, extended2.ExtensionCount)
	assert.Equal(t, int64(600), extended2.TotalExtensionCost)
	assert.Equal(t, int64(400), f.ledger.balances["user-1"])
}

func TestExtendWithoutPointsFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledger.balances["user-1"] = 299

	stay, err := f.svc.Assign(ctx, "gh-1", "user-1", "ticket-1", "city-1")
	require.NoError(t, err)

	_, err = f.svc.Extend(ctx, stay.ID, "user-1")
	assert.ErrorIs(t, err, models.ErrInsufficientBalance)

	current, err := f.db.GetStayByID(ctx, stay.ID)
	require.NoError(t, err)
	assert.Equal(t, stay.ScheduledCheckOutAt.Unix(), current.ScheduledCheckOutAt.Unix())
	assert.Equal(t, 0, current.ExtensionCount)
}

func TestExtendAfterCheckoutRefunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledger.balances["user-1"] = 1000

	stay, err := f.svc.Assign(ctx, "gh-1", "user-1", "ticket-1", "city-1")
	require.NoError(t, err)
	_, err = f.svc.CheckoutManual(ctx, stay.ID, "user-1")
	require.NoError(t, err)

	_, err = f.svc.Extend(ctx, stay.ID, "user-1")
	assert.ErrorIs(t, err, models.ErrStayNotCheckedIn)
	assert.Equal(t, int64(1000), f.ledger.balances["user-1"], "fee comes back when the stay is already over")
}

func TestListRoomMembersRequiresMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stay1, err := f.svc.Assign(ctx, "gh-1", "user-1", "ticket-1", "city-1")
	require.NoError(t, err)
	_, err = f.svc.Assign(ctx, "gh-1", "user-2", "ticket-2", "city-1")
	require.NoError(t, err)

	members, err := f.svc.ListRoomMembers(ctx, stay1.RoomID, "user-1")
	require.NoError(t, err)
	assert.Len(t, members, 2)

	_, err = f.svc.ListRoomMembers(ctx, stay1.RoomID, "user-outside")
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestGetCurrentStay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.GetCurrentStay(ctx, "user-1")
	assert.ErrorIs(t, err, models.ErrNotFound)

	stay, err := f.svc.Assign(ctx, "gh-1", "user-1", "ticket-1", "city-1")
	require.NoError(t, err)

	current, err := f.svc.GetCurrentStay(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, stay.ID, current.ID)
}

func TestCheckInRequiresCompletedTicket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stub := f.svc.Tickets.(*StubTickets)
	stub.tickets["ticket-boarding"] = &models.Ticket{
		ID: "ticket-boarding", UserID: "user-1", CityID: "city-1",
		Status: models.TicketStatusBoarding,
	}
	stub.tickets["ticket-done"] = &models.Ticket{
		ID: "ticket-done", UserID: "user-1", CityID: "city-1",
		Status: models.TicketStatusCompleted,
	}

	_, err := f.svc.CheckIn(ctx, "ticket-boarding")
	assert.ErrorIs(t, err, models.ErrInvalidTicketStatus)

	stay, err := f.svc.CheckIn(ctx, "ticket-done")
	require.NoError(t, err)
	assert.Equal(t, "gh-city-1", stay.GuestHouseID)
	assert.Equal(t, "city-1", stay.CityID)
}

func TestReapRoomsRemovesOldTombstones(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stay, err := f.svc.Assign(ctx, "gh-1", "user-1", "ticket-1", "city-1")
	require.NoError(t, err)
	_, err = f.svc.CheckoutManual(ctx, stay.ID, "user-1")
	require.NoError(t, err)

	// Fresh tombstone survives the sweep.
	require.NoError(t, f.svc.ReapRooms(ctx, 24*time.Hour))
	var all []models.Room
	err = f.db.Bun.NewSelect().Model(&all).WhereAllWithDeleted().Scan(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	// Age the tombstone past the cutoff.
	_, err = f.db.Bun.NewUpdate().Model((*models.Room)(nil)).
		WhereAllWithDeleted().
		Set("deleted_at = ?", time.Now().UTC().Add(-48*time.Hour)).
		Where("id = ?", stay.RoomID).
		Exec(ctx)
	require.NoError(t, err)

	require.NoError(t, f.svc.ReapRooms(ctx, 24*time.Hour))
	all = nil
	err = f.db.Bun.NewSelect().Model(&all).WhereAllWithDeleted().Scan(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
