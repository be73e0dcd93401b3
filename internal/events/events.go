// Package events описывает доменные события маркетплейса и их публикацию в Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/mmeshcher/marketplace-ledger/internal/model"
)

// Type определяет тип доменного события.
type Type string

const (
	TypeUserRegistered    Type = "user.registered"
	TypeUserRoleChanged   Type = "user.role_changed"
	TypeProductAdded      Type = "product.added"
	TypeListingCreated    Type = "listing.created"
	TypeListingUpdated    Type = "listing.updated"
	TypeOrderPlaced       Type = "order.placed"
	TypeOrderStateChanged Type = "order.state_changed"
)

// Event описывает зафиксированное изменение состояния маркетплейса.
type Event struct {
	ID         string         `json:"id"`
	Type       Type           `json:"type"`
	Identity   model.Identity `json:"identity"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    any            `json:"payload,omitempty"`
}

// New создаёт событие с новым идентификатором.
func New(t Type, identity model.Identity, at time.Time, payload any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		Identity:   identity,
		OccurredAt: at.UTC(),
		Payload:    payload,
	}
}

// UserPayload описывает пользователя в событиях.
type UserPayload struct {
	Name string     `json:"name"`
	Role model.Role `json:"role"`
}

// ProductPayload описывает товар в событиях.
type ProductPayload struct {
	ID       uint64         `json:"id"`
	Name     string         `json:"name"`
	Category model.Category `json:"category"`
	Quantity uint64         `json:"quantity"`
}

// ListingPayload описывает объявление в событиях.
type ListingPayload struct {
	Index       uint64 `json:"index"`
	ProductID   uint64 `json:"product_id"`
	Description string `json:"description"`
	Price       uint64 `json:"price"`
	Available   uint64 `json:"available"`
}

// OrderPayload описывает заказ в событиях.
type OrderPayload struct {
	ID        uint64           `json:"id"`
	Buyer     model.Identity   `json:"buyer"`
	Seller    model.Identity   `json:"seller"`
	ProductID uint64           `json:"product_id"`
	Quantity  uint64           `json:"quantity"`
	State     model.OrderState `json:"state"`
}

// NewListingPayload собирает описание объявления с индексом index.
func NewListingPayload(index uint64, l model.Listing) ListingPayload {
	return ListingPayload{
		Index:       index,
		ProductID:   l.Product.ID,
		Description: l.Description,
		Price:       l.Price,
		Available:   l.Available,
	}
}

// NewOrderPayload собирает описание заказа.
func NewOrderPayload(o model.Order) OrderPayload {
	return OrderPayload{
		ID:        o.ID,
		Buyer:     o.Buyer,
		Seller:    o.Seller,
		ProductID: o.ProductID,
		Quantity:  o.Quantity,
		State:     o.State,
	}
}

// KafkaPublisher публикует события в топик Kafka.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher создаёт издателя событий для указанных брокеров и топика.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: kafka.RequireAll,
		},
	}
}

// Publish отправляет события. Ключом сообщения служит идентификатор пользователя,
// поэтому события одного пользователя попадают в одну партицию по порядку.
func (p *KafkaPublisher) Publish(ctx context.Context, evs ...Event) error {
	if len(evs) == 0 {
		return nil
	}

	msgs, err := Messages(evs...)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write messages: %w", err)
	}
	return nil
}

// Close завершает работу издателя.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Messages кодирует события в сообщения Kafka.
func Messages(evs ...Event) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(evs))
	for _, e := range evs {
		value, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal event %s: %w", e.Type, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(e.Identity),
			Value: value,
			Time:  e.OccurredAt,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(e.Type)},
			},
		})
	}
	return msgs, nil
}
