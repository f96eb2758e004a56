package rooms

import (
	"context"
	"fmt"
	"time"

	"ms-voyage/internal/config"
	"ms-voyage/internal/ledger"
	"ms-voyage/internal/logger"
	"ms-voyage/internal/models"
	"ms-voyage/internal/scheduler"
	"ms-voyage/internal/utils"
)

// TxOps are the storage operations available inside one room/stay transaction.
// The ForUpdate variants hold exclusive row locks until commit; the
// find-or-create step in Assign relies on them to never overbook a room.
type TxOps interface {
	FindAvailableRoomForUpdate(ctx context.Context, guestHouseID string) (*models.Room, error)
	NextRoomNumber(ctx context.Context, guestHouseID string) (int, error)
	InsertRoom(ctx context.Context, room *models.Room) error
	UpdateRoom(ctx context.Context, room *models.Room) error
	SoftDeleteRoom(ctx context.Context, room *models.Room, now time.Time) error
	GetRoomForUpdate(ctx context.Context, roomID string) (*models.Room, error)

	InsertStay(ctx context.Context, stay *models.Stay) error
	GetStayForUpdate(ctx context.Context, stayID string) (*models.Stay, error)
	UpdateStay(ctx context.Context, stay *models.Stay) error
	GetActiveStayByUser(ctx context.Context, userID string) (*models.Stay, error)
}

type DBLayer interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, ops TxOps) error) error
	GetStayByID(ctx context.Context, stayID string) (*models.Stay, error)
	GetActiveStayByUser(ctx context.Context, userID string) (*models.Stay, error)
	ListActiveStaysByRoom(ctx context.Context, roomID string) ([]models.Stay, error)
	UpdateStayTaskIDs(ctx context.Context, stayID, checkoutTaskID, reminderTaskID string) error
	// ReapRooms hard-deletes rooms tombstoned before the cutoff and reports
	// how many were removed.
	ReapRooms(ctx context.Context, cutoff time.Time) (int, error)
	// IsUniqueViolation reports whether err is a unique-constraint conflict,
	// which Assign treats as a lost race worth retrying.
	IsUniqueViolation(err error) bool
}

// TicketSource resolves the ticket a check-in was triggered by.
type TicketSource interface {
	GetTicketByID(ctx context.Context, id string) (*models.Ticket, error)
}

type GuestHouseSource interface {
	GetGuestHouseForCity(ctx context.Context, cityID string) (*models.GuestHouse, error)
}

type Ledger interface {
	Earn(ctx context.Context, p ledger.EarnParams) (*models.PointTransaction, error)
	Spend(ctx context.Context, p ledger.SpendParams) (*models.PointTransaction, error)
}

type Publisher interface {
	PublishStayCheckedIn(stay *models.Stay) error
	PublishStayReminder(stay *models.Stay) error
	PublishStayCheckedOut(stay *models.Stay, manual bool) error
}

// PresenceCache is the hot-read cache for a user's current stay. A nil-safe
// no-op implementation is acceptable; the database stays authoritative.
type PresenceCache interface {
	GetCurrentStay(ctx context.Context, userID string) (*models.Stay, bool)
	SetCurrentStay(ctx context.Context, stay *models.Stay)
	Invalidate(ctx context.Context, userID string)
}

// RoomService is the room-assignment engine plus the stay lifecycle. All
// capacity mutations run inside a single transaction with the affected room
// row locked, so concurrent arrivals can neither overbook a room nor create
// two rooms where one had space.
type RoomService struct {
	DB          DBLayer
	Tickets     TicketSource
	GuestHouses GuestHouseSource
	Ledger      Ledger
	Scheduler   scheduler.Client
	Kafka       Publisher
	Cache       PresenceCache
	Logger      *logger.Logger
	Cfg         config.StayConfig
}

func NewRoomService(
	db DBLayer,
	tickets TicketSource,
	guestHouses GuestHouseSource,
	ledgerSvc Ledger,
	sched scheduler.Client,
	kafka Publisher,
	cache PresenceCache,
	log *logger.Logger,
	cfg config.StayConfig,
) *RoomService {
	return &RoomService{
		DB:          db,
		Tickets:     tickets,
		GuestHouses: guestHouses,
		Ledger:      ledgerSvc,
		Scheduler:   sched,
		Kafka:       kafka,
		Cache:       cache,
		Logger:      log,
		Cfg:         cfg,
	}
}

// CheckIn is the scheduled continuation of ticket completion: it resolves the
// destination guesthouse and admits the traveler into a room.
func (s *RoomService) CheckIn(ctx context.Context, ticketID string) (*models.Stay, error) {
	ticket, err := s.Tickets.GetTicketByID(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	if ticket.Status != models.TicketStatusCompleted {
		return nil, models.ErrInvalidTicketStatus
	}

	guestHouse, err := s.GuestHouses.GetGuestHouseForCity(ctx, ticket.CityID)
	if err != nil {
		return nil, fmt.Errorf("get guesthouse: %w", err)
	}

	return s.Assign(ctx, guestHouse.ID, ticket.UserID, ticket.ID, ticket.CityID)
}

// Assign admits a user into a room under the guesthouse, creating a room when
// every active one is full. The find-or-create-and-increment sequence is one
// transaction; losing the room-number race to a concurrent creator surfaces as
// a unique violation and the whole transaction is retried.
func (s *RoomService) Assign(ctx context.Context, guestHouseID, userID, ticketID, cityID string) (*models.Stay, error) {
	var stay *models.Stay
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		stay, err = s.assignOnce(ctx, guestHouseID, userID, ticketID, cityID)
		if err != nil && s.DB.IsUniqueViolation(err) {
			s.Logger.Warn("ROOM", fmt.Sprintf("room creation race in guesthouse %s, retrying", guestHouseID))
			continue
		}
		break
	}
	if err != nil {
		return nil, err
	}

	s.scheduleCheckout(ctx, stay)
	s.Cache.Invalidate(ctx, userID)

	if err := s.Kafka.PublishStayCheckedIn(stay); err != nil {
		s.Logger.Error("ROOM", fmt.Sprintf("kafka publish error (stay checked in): %v", err))
	}

	s.Logger.LogStay("CHECK_IN", stay.ID, fmt.Sprintf("user %s -> room %s until %s", userID, stay.RoomID, stay.ScheduledCheckOutAt.Format(time.RFC3339)))
	return stay, nil
}

func (s *RoomService) assignOnce(ctx context.Context, guestHouseID, userID, ticketID, cityID string) (*models.Stay, error) {
	var created *models.Stay
	err := s.DB.RunInTx(ctx, func(ctx context.Context, ops TxOps) error {
		if existing, err := ops.GetActiveStayByUser(ctx, userID); err != nil {
			return err
		} else if existing != nil {
			return models.ErrActiveStayExists
		}

		room, err := ops.FindAvailableRoomForUpdate(ctx, guestHouseID)
		if err != nil {
			return err
		}
		if room == nil {
			room, err = s.createRoom(ctx, ops, guestHouseID)
			if err != nil {
				return err
			}
		}

		if err := room.Occupy(); err != nil {
			// Structurally impossible with the row locked; treat as a
			// consistency failure, not user input.
			return fmt.Errorf("room %s: %w", room.ID, err)
		}
		if err := ops.UpdateRoom(ctx, room); err != nil {
			return err
		}

		now := time.Now().UTC()
		created = &models.Stay{
			ID:                  utils.GenerateID(),
			UserID:              userID,
			CityID:              cityID,
			GuestHouseID:        guestHouseID,
			RoomID:              room.ID,
			TicketID:            ticketID,
			Status:              models.StayStatusCheckedIn,
			CheckInAt:           now,
			ScheduledCheckOutAt: now.Add(s.Cfg.StayDuration),
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		return ops.InsertStay(ctx, created)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *RoomService) createRoom(ctx context.Context, ops TxOps, guestHouseID string) (*models.Room, error) {
	number, err := ops.NextRoomNumber(ctx, guestHouseID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	room := &models.Room{
		ID:           utils.GenerateID(),
		GuestHouseID: guestHouseID,
		RoomNumber:   number,
		MaxCapacity:  s.Cfg.RoomMaxCapacity,
		Status:       models.RoomStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := ops.InsertRoom(ctx, room); err != nil {
		return nil, err
	}
	s.Logger.Info("ROOM", fmt.Sprintf("created room %d in guesthouse %s", room.RoomNumber, guestHouseID))
	return room, nil
}

// Extend pushes the checkout clock back by one stay period, charging the
// extension fee first. The pending checkout and reminder callbacks are
// cancelled and replaced so only one checkout ever fires per stay.
func (s *RoomService) Extend(ctx context.Context, stayID, requesterID string) (*models.Stay, error) {
	stay, err := s.DB.GetStayByID(ctx, stayID)
	if err != nil {
		return nil, err
	}
	if stay.UserID != requesterID {
		return nil, models.ErrForbidden
	}
	if !stay.IsCheckedIn() {
		return nil, models.ErrStayNotCheckedIn
	}

	if _, err := s.Ledger.Spend(ctx, ledger.SpendParams{
		UserID:        requesterID,
		Amount:        s.Cfg.ExtensionCost,
		Reason:        models.TransactionReasonExtension,
		ReferenceType: models.TransactionReferenceStays,
		ReferenceID:   stay.ID,
	}); err != nil {
		return nil, fmt.Errorf("spend extension fee: %w", err)
	}

	var extended *models.Stay
	err = s.DB.RunInTx(ctx, func(ctx context.Context, ops TxOps) error {
		locked, err := ops.GetStayForUpdate(ctx, stayID)
		if err != nil {
			return err
		}
		if !locked.IsCheckedIn() {
			return models.ErrStayNotCheckedIn
		}

		locked.ScheduledCheckOutAt = locked.ScheduledCheckOutAt.Add(s.Cfg.StayDuration)
		locked.ExtensionCount++
		locked.TotalExtensionCost += s.Cfg.ExtensionCost
		locked.UpdatedAt = time.Now().UTC()
		if err := ops.UpdateStay(ctx, locked); err != nil {
			return err
		}
		extended = locked
		return nil
	})
	if err != nil {
		// The fee was taken but the stay could not be extended (e.g. checked
		// out between the spend and the lock); give the points back.
		s.refundExtension(ctx, requesterID, stayID)
		return nil, err
	}

	s.cancelScheduled(ctx, stay)
	s.scheduleCheckout(ctx, extended)
	s.Cache.Invalidate(ctx, requesterID)

	s.Logger.LogStay("EXTEND", stayID, fmt.Sprintf("user %s, extension #%d, checkout now %s", requesterID, extended.ExtensionCount, extended.ScheduledCheckOutAt.Format(time.RFC3339)))
	return extended, nil
}

// CheckoutAuto is the scheduled checkout callback. A stay whose checkout time
// moved into the future (extension raced the delivery) is left alone.
func (s *RoomService) CheckoutAuto(ctx context.Context, stayID string) (*models.Stay, error) {
	return s.checkout(ctx, stayID, "", false)
}

// CheckoutManual is an early checkout requested by the occupant.
func (s *RoomService) CheckoutManual(ctx context.Context, stayID, requesterID string) (*models.Stay, error) {
	return s.checkout(ctx, stayID, requesterID, true)
}

func (s *RoomService) checkout(ctx context.Context, stayID, requesterID string, manual bool) (*models.Stay, error) {
	var stay *models.Stay
	var alreadyOut, stale bool

	err := s.DB.RunInTx(ctx, func(ctx context.Context, ops TxOps) error {
		locked, err := ops.GetStayForUpdate(ctx, stayID)
		if err != nil {
			return err
		}
		if manual && locked.UserID != requesterID {
			return models.ErrForbidden
		}

		now := time.Now().UTC()
		if !locked.IsCheckedIn() {
			stay, alreadyOut = locked, true
			return nil
		}
		if !manual && locked.ScheduledCheckOutAt.After(now) {
			stay, stale = locked, true
			return nil
		}

		locked.Status = models.StayStatusCheckedOut
		locked.ActualCheckOutAt = &now
		locked.UpdatedAt = now
		if err := ops.UpdateStay(ctx, locked); err != nil {
			return err
		}

		room, err := ops.GetRoomForUpdate(ctx, locked.RoomID)
		if err != nil {
			return err
		}
		if err := room.Vacate(); err != nil {
			return fmt.Errorf("room %s: %w", room.ID, err)
		}
		if room.IsEmpty() {
			if err := ops.SoftDeleteRoom(ctx, room, now); err != nil {
				return err
			}
			s.Logger.Info("ROOM", fmt.Sprintf("room %s empty, tombstoned", room.ID))
		} else if err := ops.UpdateRoom(ctx, room); err != nil {
			return err
		}

		stay = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	if alreadyOut {
		s.Logger.LogStay("CHECKOUT", stayID, "already checked out, nothing to do")
		return stay, nil
	}
	if stale {
		s.Logger.LogStay("CHECKOUT", stayID, "checkout moved by extension, skipping stale callback")
		return stay, nil
	}

	s.cancelScheduled(ctx, stay)
	s.Cache.Invalidate(ctx, stay.UserID)

	if err := s.Kafka.PublishStayCheckedOut(stay, manual); err != nil {
		s.Logger.Error("ROOM", fmt.Sprintf("kafka publish error (stay checked out): %v", err))
	}

	s.Logger.LogStay("CHECKOUT", stayID, fmt.Sprintf("user %s left room %s (manual=%t)", stay.UserID, stay.RoomID, manual))
	return stay, nil
}

// Remind publishes the checkout reminder. Stale deliveries (extension moved
// the clock, or the guest already left) are dropped.
func (s *RoomService) Remind(ctx context.Context, stayID string) error {
	stay, err := s.DB.GetStayByID(ctx, stayID)
	if err != nil {
		return err
	}
	if !stay.IsCheckedIn() {
		return nil
	}
	if time.Until(stay.ScheduledCheckOutAt) > s.Cfg.ReminderOffset+time.Minute {
		return nil
	}
	return s.Kafka.PublishStayReminder(stay)
}

func (s *RoomService) GetCurrentStay(ctx context.Context, userID string) (*models.Stay, error) {
	if stay, ok := s.Cache.GetCurrentStay(ctx, userID); ok {
		return stay, nil
	}

	stay, err := s.DB.GetActiveStayByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if stay == nil {
		return nil, models.ErrNotFound
	}
	s.Cache.SetCurrentStay(ctx, stay)
	return stay, nil
}

// ListRoomMembers returns the checked-in stays of a room. Only a current
// occupant may look inside.
func (s *RoomService) ListRoomMembers(ctx context.Context, roomID, requesterID string) ([]models.Stay, error) {
	stays, err := s.DB.ListActiveStaysByRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	member := false
	for _, stay := range stays {
		if stay.UserID == requesterID {
			member = true
			break
		}
	}
	if !member {
		return nil, models.ErrForbidden
	}
	return stays, nil
}

// ReapRooms hard-deletes rooms tombstoned before now-cutoff. Runs as a
// periodic maintenance sweep, outside the assignment hot path.
func (s *RoomService) ReapRooms(ctx context.Context, cutoff time.Duration) error {
	n, err := s.DB.ReapRooms(ctx, time.Now().UTC().Add(-cutoff))
	if err != nil {
		return err
	}
	if n > 0 {
		s.Logger.Info("ROOM", fmt.Sprintf("reaped %d tombstoned rooms", n))
	}
	return nil
}

func (s *RoomService) scheduleCheckout(ctx context.Context, stay *models.Stay) {
	payload := scheduler.StayPayload{StayID: stay.ID}

	checkoutID, err := s.Scheduler.Schedule(ctx, scheduler.TaskCheckout, payload, stay.ScheduledCheckOutAt)
	if err != nil {
		s.Logger.Error("ROOM", fmt.Sprintf("failed to schedule checkout for stay %s: %v", stay.ID, err))
	}
	reminderID, err := s.Scheduler.Schedule(ctx, scheduler.TaskReminder, payload, stay.ScheduledCheckOutAt.Add(-s.Cfg.ReminderOffset))
	if err != nil {
		s.Logger.Error("ROOM", fmt.Sprintf("failed to schedule reminder for stay %s: %v", stay.ID, err))
	}

	stay.CheckoutTaskID = checkoutID
	stay.ReminderTaskID = reminderID
	if err := s.DB.UpdateStayTaskIDs(ctx, stay.ID, checkoutID, reminderID); err != nil {
		s.Logger.Error("ROOM", fmt.Sprintf("failed to store task handles for stay %s: %v", stay.ID, err))
	}
}

func (s *RoomService) cancelScheduled(ctx context.Context, stay *models.Stay) {
	if err := s.Scheduler.Cancel(ctx, stay.CheckoutTaskID); err != nil {
		s.Logger.Error("ROOM", fmt.Sprintf("failed to cancel checkout task for stay %s: %v", stay.ID, err))
	}
	if err := s.Scheduler.Cancel(ctx, stay.ReminderTaskID); err != nil {
		s.Logger.Error("ROOM", fmt.Sprintf("failed to cancel reminder task for stay %s: %v", stay.ID, err))
	}
}

func (s *RoomService) refundExtension(ctx context.Context, userID, stayID string) {
	if _, err := s.Ledger.Earn(ctx, ledger.EarnParams{
		UserID:      userID,
		Amount:      s.Cfg.ExtensionCost,
		Reason:      models.TransactionReasonRefund,
		Description: fmt.Sprintf("refund extension fee for stay %s", stayID),
	}); err != nil {
		s.Logger.Error("ROOM", fmt.Sprintf("failed to refund extension fee to %s: %v", userID, err))
	}
}
