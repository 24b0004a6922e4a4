package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/orderledger/internal/domain"
)

func TestTimelineRepository_PostgresAppendAndList(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewTimelineRepository(store)

	createdAt := time.Now().UTC().Add(-time.Minute).Round(time.Microsecond)

	if err := repo.Append(domain.TimelineEvent{
		OrderID:  "timeline-order",
		Type:     domain.EventPaymentRecorded,
		Reason:   "utr-1",
		Occurred: createdAt.Add(10 * time.Second),
	}); err != nil {
		t.Fatalf("append payment event: %v", err)
	}
	if err := repo.Append(domain.TimelineEvent{
		OrderID:  "timeline-order",
		Type:     domain.EventOrderCreated,
		Occurred: createdAt,
	}); err != nil {
		t.Fatalf("append created event: %v", err)
	}
	if err := repo.Append(domain.TimelineEvent{OrderID: "timeline-order", Type: domain.EventDeliveryUpdated}); err != nil {
		t.Fatalf("append event with zero occurred: %v", err)
	}

	events, err := repo.List("timeline-order")
	if err != nil {
		t.Fatalf("list timeline events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Type != domain.EventOrderCreated || events[1].Type != domain.EventPaymentRecorded {
		t.Fatalf("events must be ordered by occurred: %+v", events)
	}
	if events[2].Occurred.IsZero() {
		t.Fatal("zero occurred must be filled on append")
	}
}

func TestTimelineRepository_PostgresValidation(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewTimelineRepository(store)

	if err := repo.Append(domain.TimelineEvent{Type: domain.EventOrderCreated}); !errors.Is(err, domain.ErrOrderIDRequired) {
		t.Fatalf("expected ErrOrderIDRequired, got %v", err)
	}

	events, err := repo.List("missing-order")
	if err != nil {
		t.Fatalf("list for missing order should not fail: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}
}
