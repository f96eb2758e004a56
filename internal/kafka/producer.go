package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"ms-voyage/internal/config"
	"ms-voyage/internal/logger"
	"ms-voyage/internal/models"
)

// Event payloads published on domain state changes. Downstream consumers
// (notification delivery, analytics) are outside this service; we only emit.

type TicketCompletedEvent struct {
	TicketID  string    `json:"ticket_id"`
	UserID    string    `json:"user_id"`
	CityID    string    `json:"city_id"`
	CityName  string    `json:"city_name"`
	ArrivedAt time.Time `json:"arrived_at"`
}

type StayCheckedInEvent struct {
	StayID              string    `json:"stay_id"`
	UserID              string    `json:"user_id"`
	RoomID              string    `json:"room_id"`
	GuestHouseID        string    `json:"guest_house_id"`
	CheckInAt           time.Time `json:"check_in_at"`
	ScheduledCheckOutAt time.Time `json:"scheduled_check_out_at"`
}

type StayReminderEvent struct {
	StayID              string    `json:"stay_id"`
	UserID              string    `json:"user_id"`
	ScheduledCheckOutAt time.Time `json:"scheduled_check_out_at"`
}

type StayCheckedOutEvent struct {
	StayID           string    `json:"stay_id"`
	UserID           string    `json:"user_id"`
	RoomID           string    `json:"room_id"`
	ActualCheckOutAt time.Time `json:"actual_check_out_at"`
	Manual           bool      `json:"manual"`
}

// Producer publishes domain events. In mock mode (local dev, tests) events are
// logged instead of written to a broker.
type Producer struct {
	Writer *kafka.Writer
	Topics config.TopicConfig
	Logger *logger.Logger
	Mock   bool
}

func NewProducer(cfg config.KafkaConfig, log *logger.Logger) *Producer {
	p := &Producer{
		Topics: cfg.Topics,
		Logger: log,
		Mock:   cfg.MockMode || !cfg.Enabled,
	}
	if !p.Mock {
		p.Writer = &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers...),
			Balancer: &kafka.LeastBytes{},
		}
	}
	return p
}

func (p *Producer) Close() error {
	if p.Writer != nil {
		return p.Writer.Close()
	}
	return nil
}

func (p *Producer) PublishTicketCompleted(ticket *models.Ticket) error {
	return p.publish(p.Topics.TicketCompleted, ticket.ID, TicketCompletedEvent{
		TicketID:  ticket.ID,
		UserID:    ticket.UserID,
		CityID:    ticket.CityID,
		CityName:  ticket.CityName,
		ArrivedAt: ticket.ArrivalAt,
	})
}

func (p *Producer) PublishStayCheckedIn(stay *models.Stay) error {
	return p.publish(p.Topics.StayCheckedIn, stay.ID, StayCheckedInEvent{
		StayID:              stay.ID,
		UserID:              stay.UserID,
		RoomID:              stay.RoomID,
		GuestHouseID:        stay.GuestHouseID,
		CheckInAt:           stay.CheckInAt,
		ScheduledCheckOutAt: stay.ScheduledCheckOutAt,
	})
}

func (p *Producer) PublishStayReminder(stay *models.Stay) error {
	return p.publish(p.Topics.StayReminder, stay.ID, StayReminderEvent{
		StayID:              stay.ID,
		UserID:              stay.UserID,
		ScheduledCheckOutAt: stay.ScheduledCheckOutAt,
	})
}

func (p *Producer) PublishStayCheckedOut(stay *models.Stay, manual bool) error {
	var checkedOut time.Time
	if stay.ActualCheckOutAt != nil {
		checkedOut = *stay.ActualCheckOutAt
	}
	return p.publish(p.Topics.StayCheckedOut, stay.ID, StayCheckedOutEvent{
		StayID:           stay.ID,
		UserID:           stay.UserID,
		RoomID:           stay.RoomID,
		ActualCheckOutAt: checkedOut,
		Manual:           manual,
	})
}

func (p *Producer) publish(topic, key string, event any) error {
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if p.Mock {
		p.Logger.LogKafka("MOCK", topic, string(msgBytes))
		return nil
	}

	p.Logger.LogKafka("PUBLISH", topic, fmt.Sprintf("key=%s", key))
	return p.Writer.WriteMessages(context.Background(),
		kafka.Message{
			Topic: topic,
			Key:   []byte(key),
			Value: msgBytes,
		},
	)
}
