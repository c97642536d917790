package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/kursadbilgin/fieldops/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

func TestQueueNames(t *testing.T) {
	work := WorkQueueNames()
	if len(work) != 1 || work[0] != "fieldops.cache-invalidation" {
		t.Fatalf("WorkQueueNames = %v", work)
	}

	dlq := DLQNames()
	if len(dlq) != 1 || dlq[0] != "dlq.fieldops.cache-invalidation" {
		t.Fatalf("DLQNames = %v", dlq)
	}
}

func TestQueueArgsDeadLetterToOwnDLQ(t *testing.T) {
	args := queueArgs(CacheInvalidationQueue)
	if args["x-dead-letter-exchange"] != dlxExchangeName {
		t.Fatalf("x-dead-letter-exchange = %v", args["x-dead-letter-exchange"])
	}
	if args["x-dead-letter-routing-key"] != CacheInvalidationQueue {
		t.Fatalf("x-dead-letter-routing-key = %v", args["x-dead-letter-routing-key"])
	}
}

func TestImportEventValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		event   ImportEvent
		wantErr bool
	}{
		{name: "valid", event: ImportEvent{RunID: "r1", Total: 3, Imported: 1, Duplicates: 1, Errors: 1}},
		{name: "empty import", event: ImportEvent{RunID: "r1"}},
		{name: "missing run id", event: ImportEvent{Total: 1, Imported: 1}, wantErr: true},
		{name: "negative count", event: ImportEvent{RunID: "r1", Errors: -1}, wantErr: true},
		{name: "counts exceed total", event: ImportEvent{RunID: "r1", Total: 1, Imported: 1, Duplicates: 1}, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.event.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewImportEvent(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("EST", -5*3600))
	event := NewImportEvent(
		domain.ImportRequest{StartDate: "2024-01-01", EndDate: "2024-01-02"},
		domain.ImportResult{RunID: "r1", Total: 5, Imported: 4, Duplicates: 1},
		"corr-1",
		at,
	)

	if event.RunID != "r1" || event.CorrelationID != "corr-1" {
		t.Fatalf("ids = %s/%s", event.RunID, event.CorrelationID)
	}
	if event.StartDate != "2024-01-01" || event.EndDate != "2024-01-02" {
		t.Fatalf("dates = %s..%s", event.StartDate, event.EndDate)
	}
	if event.OccurredAt.Location() != time.UTC || !event.OccurredAt.Equal(at) {
		t.Fatalf("OccurredAt = %v, want %v in UTC", event.OccurredAt, at)
	}
	if !event.HasNewOrders() {
		t.Fatal("HasNewOrders() = false, want true")
	}
}

func TestBuildPublishing(t *testing.T) {
	now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	publishing, err := buildPublishing(ImportEvent{RunID: "r1", CorrelationID: "c1", Total: 1, Imported: 1}, now)
	if err != nil {
		t.Fatalf("buildPublishing() error = %v", err)
	}

	if publishing.DeliveryMode != amqp.Persistent {
		t.Fatalf("DeliveryMode = %d, want persistent", publishing.DeliveryMode)
	}
	if publishing.MessageId != "r1" || publishing.CorrelationId != "c1" {
		t.Fatalf("MessageId/CorrelationId = %s/%s", publishing.MessageId, publishing.CorrelationId)
	}
	if !publishing.Timestamp.Equal(now) {
		t.Fatalf("Timestamp = %v, want %v", publishing.Timestamp, now)
	}

	var decoded ImportEvent
	if err := json.Unmarshal(publishing.Body, &decoded); err != nil {
		t.Fatalf("body is not an ImportEvent: %v", err)
	}
	if decoded.Imported != 1 || !decoded.OccurredAt.Equal(now) {
		t.Fatalf("decoded = %+v", decoded)
	}

	if _, err := buildPublishing(ImportEvent{}, now); err == nil {
		t.Fatal("expected error for invalid event")
	}
}

type fakeAcker struct {
	acks    int
	nacks   []bool
	rejects []bool
}

func (f *fakeAcker) Ack(bool) error { f.acks++; return nil }

func (f *fakeAcker) Nack(_ bool, requeue bool) error {
	f.nacks = append(f.nacks, requeue)
	return nil
}

func (f *fakeAcker) Reject(requeue bool) error {
	f.rejects = append(f.rejects, requeue)
	return nil
}

func TestConsumerSettle(t *testing.T) {
	t.Parallel()

	valid := `{"runId":"r1","total":2,"imported":2}`
	handlerErr := errors.New("redis down")

	tests := []struct {
		name        string
		body        string
		redelivered bool
		handlerErr  error
		wantAcks    int
		wantNacks   []bool
		wantRejects []bool
		wantCalls   int
	}{
		{name: "handled", body: valid, wantAcks: 1, wantCalls: 1},
		{name: "malformed json", body: `{`, wantRejects: []bool{false}},
		{name: "invalid event", body: `{"total":1}`, wantRejects: []bool{false}},
		{name: "handler failure requeues once", body: valid, handlerErr: handlerErr, wantNacks: []bool{true}, wantCalls: 1},
		{name: "redelivered failure dead-letters", body: valid, redelivered: true, handlerErr: handlerErr, wantNacks: []bool{false}, wantCalls: 1},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := NewRabbitMQConsumer(nil, 0, zap.NewNop())
			acker := &fakeAcker{}
			calls := 0
			err := c.settle(context.Background(), acker, []byte(tt.body), RoutingKeyImported, tt.redelivered, func(ctx context.Context, event ImportEvent) error {
				calls++
				if event.RunID != "r1" {
					t.Errorf("RunID = %q, want r1", event.RunID)
				}
				return tt.handlerErr
			})
			if err != nil {
				t.Fatalf("settle() error = %v", err)
			}
			if calls != tt.wantCalls || acker.acks != tt.wantAcks {
				t.Fatalf("calls=%d acks=%d, want %d/%d", calls, acker.acks, tt.wantCalls, tt.wantAcks)
			}
			if !equalBools(acker.nacks, tt.wantNacks) || !equalBools(acker.rejects, tt.wantRejects) {
				t.Fatalf("nacks=%v rejects=%v, want %v/%v", acker.nacks, acker.rejects, tt.wantNacks, tt.wantRejects)
			}
		})
	}
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	if err := p.Publish(context.Background(), ImportEvent{}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func equalBools(a, b []bool) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
