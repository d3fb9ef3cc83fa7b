package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap/zaptest"

	"github.com/jbleroy75/boisson-api/internal/core/domain"
)

type orderAccruerStub struct {
	events []domain.OrderCompletedEvent
	member *domain.LoyaltyMember
	err    error
}

func (s *orderAccruerStub) AccrueOrder(_ context.Context, event domain.OrderCompletedEvent) (*domain.LoyaltyMember, error) {
	s.events = append(s.events, event)
	if s.err != nil {
		return nil, s.err
	}
	return s.member, nil
}

func TestHandleMessageDecodesAndAccrues(t *testing.T) {
	accruer := &orderAccruerStub{member: &domain.LoyaltyMember{UserID: "user-1", Points: 542}}
	consumer := NewOrderCompletedConsumer(accruer, zaptest.NewLogger(t))

	msg := &sarama.ConsumerMessage{
		Topic: "orders.completed",
		Value: []byte(`{"event_id":"evt-1","order_id":"order-9","user_id":"user-1","total":42.90,"currency":"EUR","completed_at":"2024-05-10T12:00:00Z"}`),
	}

	if err := consumer.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleMessage returned error: %v", err)
	}

	if len(accruer.events) != 1 {
		t.Fatalf("accrued %d events, want 1", len(accruer.events))
	}
	got := accruer.events[0]
	if got.OrderID != "order-9" || got.UserID != "user-1" {
		t.Fatalf("unexpected event %+v", got)
	}
	if got.Total != 42.90 {
		t.Fatalf("total = %v, want 42.90", got.Total)
	}
	if !got.CompletedAt.Equal(time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("completed_at = %v", got.CompletedAt)
	}
}

func TestHandleMessageRejectsMalformedPayload(t *testing.T) {
	accruer := &orderAccruerStub{}
	consumer := NewOrderCompletedConsumer(accruer, zaptest.NewLogger(t))

	msg := &sarama.ConsumerMessage{Value: []byte(`{"order_id":`)}
	if err := consumer.HandleMessage(context.Background(), msg); err == nil {
		t.Fatal("expected decode error for malformed payload")
	}
	if len(accruer.events) != 0 {
		t.Fatalf("accrued %d events for malformed payload, want 0", len(accruer.events))
	}
}

func TestHandleEventWrapsAccrualFailure(t *testing.T) {
	sentinel := errors.New("storage down")
	accruer := &orderAccruerStub{err: sentinel}
	consumer := NewOrderCompletedConsumer(accruer, zaptest.NewLogger(t))

	err := consumer.HandleEvent(context.Background(), domain.OrderCompletedEvent{OrderID: "order-9", UserID: "user-1"})
	if !errors.Is(err, sentinel) {
		t.Fatalf("error = %v, want wrapped %v", err, sentinel)
	}
}

func TestHandleMessageNilMessage(t *testing.T) {
	consumer := NewOrderCompletedConsumer(&orderAccruerStub{}, zaptest.NewLogger(t))
	if err := consumer.HandleMessage(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil message")
	}
}
