package tickets

import (
	"context"
	"fmt"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"ms-voyage/internal/ledger"
	"ms-voyage/internal/logger"
	"ms-voyage/internal/models"
	"ms-voyage/internal/scheduler"
	"ms-voyage/internal/utils"
)

type DBLayer interface {
	// CreateTicket inserts the ticket together with its completion task; the
	// two commit or fail as one.
	CreateTicket(ctx context.Context, ticket *models.Ticket, completion *models.ScheduledTask) error
	GetTicketByID(ctx context.Context, id string) (*models.Ticket, error)
	ListTicketsByUser(ctx context.Context, userID string, status models.TicketStatus) ([]models.Ticket, error)
	GetBoardingTicketByUser(ctx context.Context, userID string) (*models.Ticket, error)
	// TransitionStatus performs a compare-and-swap on the status column and
	// reports whether the row changed. A false result means the ticket was not
	// in the expected state (or does not exist). When the swap lands, a
	// non-nil chained task commits in the same transaction.
	TransitionStatus(ctx context.Context, id string, from, to models.TicketStatus, now time.Time, chained *models.ScheduledTask) (bool, error)
}

type Catalog interface {
	GetActiveCity(ctx context.Context, id string) (*models.City, error)
	GetActiveAirship(ctx context.Context, id string) (*models.Airship, error)
}

type Ledger interface {
	Earn(ctx context.Context, p ledger.EarnParams) (*models.PointTransaction, error)
	Spend(ctx context.Context, p ledger.SpendParams) (*models.PointTransaction, error)
}

type Publisher interface {
	PublishTicketCompleted(ticket *models.Ticket) error
}

// TicketService owns the ticket state machine:
// PURCHASED -> BOARDING -> COMPLETED, or PURCHASED -> CANCELLED.
// Purchase boards immediately, so the cancellable window is empty in the
// current product; Cancel still implements the PURCHASED path.
type TicketService struct {
	DB      DBLayer
	Catalog Catalog
	Ledger  Ledger
	Kafka   Publisher
	Logger  *logger.Logger
}

func NewTicketService(db DBLayer, catalog Catalog, ledger Ledger, kafka Publisher, log *logger.Logger) *TicketService {
	return &TicketService{
		DB:      db,
		Catalog: catalog,
		Ledger:  ledger,
		Kafka:   kafka,
		Logger:  log,
	}
}

// Purchase validates the city/airship pair, debits the fare and issues a
// ticket that boards immediately. Completion is scheduled for the arrival
// time. On a failed insert the fare is refunded, so no points are lost to a
// half-created ticket.
func (s *TicketService) Purchase(ctx context.Context, userID, cityID, airshipID string) (*models.Ticket, error) {
	city, err := s.Catalog.GetActiveCity(ctx, cityID)
	if err != nil {
		return nil, fmt.Errorf("get city: %w", err)
	}
	airship, err := s.Catalog.GetActiveAirship(ctx, airshipID)
	if err != nil {
		return nil, fmt.Errorf("get airship: %w", err)
	}

	now := time.Now().UTC()
	cost := models.TravelCost(city, airship)
	duration := models.TravelDuration(city, airship)
	ticket := s.buildTicket(userID, city, airship, cost, now, duration)

	completion, err := scheduler.NewTask(scheduler.TaskCompleteTicket,
		scheduler.TicketPayload{TicketID: ticket.ID}, ticket.ArrivalAt)
	if err != nil {
		return nil, fmt.Errorf("build completion task: %w", err)
	}

	if _, err := s.Ledger.Spend(ctx, ledger.SpendParams{
		UserID:        userID,
		Amount:        cost,
		Reason:        models.TransactionReasonTicket,
		ReferenceType: models.TransactionReferenceTickets,
		ReferenceID:   ticket.ID,
	}); err != nil {
		return nil, fmt.Errorf("spend fare: %w", err)
	}

	if err := s.DB.CreateTicket(ctx, ticket, completion); err != nil {
		s.refundFare(ctx, userID, cost, ticket.ID)
		return nil, fmt.Errorf("create ticket: %w", err)
	}

	s.Logger.LogTicket("PURCHASE", ticket.ID, fmt.Sprintf("user %s -> %s for %d points, arrives %s", userID, city.Name, cost, ticket.ArrivalAt.Format(time.RFC3339)))
	return ticket, nil
}

// Cancel voids a ticket that has not boarded. Purchase boards immediately, so
// in practice this fails with ErrInvalidTicketStatus for every issued ticket;
// the transition stays implemented for the day a pre-boarding window exists.
func (s *TicketService) Cancel(ctx context.Context, ticketID, requesterID string) (*models.Ticket, error) {
	ticket, err := s.DB.GetTicketByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.UserID != requesterID {
		return nil, models.ErrForbidden
	}

	now := time.Now().UTC()
	changed, err := s.DB.TransitionStatus(ctx, ticketID, models.TicketStatusPurchased, models.TicketStatusCancelled, now, nil)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, models.ErrInvalidTicketStatus
	}

	s.refundFare(ctx, ticket.UserID, ticket.CostPoints, ticket.ID)
	s.Logger.LogTicket("CANCEL", ticket.ID, fmt.Sprintf("user %s refunded %d points", requesterID, ticket.CostPoints))
	return s.DB.GetTicketByID(ctx, ticketID)
}

// Complete moves a boarding ticket to COMPLETED and hands the traveler to the
// room-assignment task. Idempotent: a ticket already completed or cancelled is
// returned unchanged, so redelivered callbacks are harmless.
func (s *TicketService) Complete(ctx context.Context, ticketID string) (*models.Ticket, error) {
	// The check-in task commits with the status swap. Chaining it after the
	// fact would leave an arrived traveler with no room assignment whenever
	// the enqueue is lost, because a redelivered completion takes the
	// already-terminal branch below.
	checkIn, err := scheduler.NewTask(scheduler.TaskCheckIn,
		scheduler.TicketPayload{TicketID: ticketID}, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("build check-in task: %w", err)
	}

	changed, err := s.DB.TransitionStatus(ctx, ticketID, models.TicketStatusBoarding, models.TicketStatusCompleted, time.Now().UTC(), checkIn)
	if err != nil {
		return nil, err
	}

	ticket, err := s.DB.GetTicketByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	if !changed {
		if ticket.IsTerminal() {
			s.Logger.LogTicket("COMPLETE", ticketID, "already terminal, nothing to do")
			return ticket, nil
		}
		return nil, models.ErrInvalidTicketStatus
	}

	if err := s.Kafka.PublishTicketCompleted(ticket); err != nil {
		s.Logger.Error("TICKET", fmt.Sprintf("kafka publish error (ticket completed): %v", err))
	}

	s.Logger.LogTicket("COMPLETE", ticket.ID, fmt.Sprintf("user %s arrived at %s", ticket.UserID, ticket.CityName))
	return ticket, nil
}

func (s *TicketService) Get(ctx context.Context, ticketID, requesterID string) (*models.Ticket, error) {
	ticket, err := s.DB.GetTicketByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.UserID != requesterID {
		return nil, models.ErrForbidden
	}
	return ticket, nil
}

func (s *TicketService) List(ctx context.Context, userID string, status models.TicketStatus) ([]models.Ticket, error) {
	return s.DB.ListTicketsByUser(ctx, userID, status)
}

// GetCurrentBoarding returns the user's in-flight ticket, if any.
func (s *TicketService) GetCurrentBoarding(ctx context.Context, userID string) (*models.Ticket, error) {
	return s.DB.GetBoardingTicketByUser(ctx, userID)
}

func (s *TicketService) buildTicket(userID string, city *models.City, airship *models.Airship, cost int64, now time.Time, duration time.Duration) *models.Ticket {
	ticket := &models.Ticket{
		ID:           utils.GenerateID(),
		TicketNumber: utils.GenerateTicketNumber(now),
		UserID:       userID,
		Status:       models.TicketStatusBoarding,

		CityID:                city.ID,
		CityName:              city.Name,
		CityTheme:             city.Theme,
		CityBaseCostPoints:    city.BaseCostPoints,
		CityBaseDurationHours: city.BaseDurationHours,

		AirshipID:             airship.ID,
		AirshipName:           airship.Name,
		AirshipCostFactor:     airship.CostFactor,
		AirshipDurationFactor: airship.DurationFactor,

		CostPoints:  cost,
		DepartureAt: now,
		ArrivalAt:   now.Add(duration),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// Boarding-pass QR; a failed encode leaves the column empty rather than
	// blocking the purchase.
	if png, err := qrcode.Encode(ticket.TicketNumber, qrcode.Medium, 256); err == nil {
		ticket.QRCode = png
	}
	return ticket
}

func (s *TicketService) refundFare(ctx context.Context, userID string, cost int64, ticketID string) {
	if _, err := s.Ledger.Earn(ctx, ledger.EarnParams{
		UserID:      userID,
		Amount:      cost,
		Reason:      models.TransactionReasonRefund,
		Description: fmt.Sprintf("refund for ticket %s", ticketID),
	}); err != nil {
		s.Logger.Error("TICKET", fmt.Sprintf("failed to refund %d points to %s for ticket %s: %v", cost, userID, ticketID, err))
	}
}
