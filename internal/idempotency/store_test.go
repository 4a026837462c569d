package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func TestCreateIfNotExists_Get_MarkDone_MarkFailed(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "idempotency-table", 48*time.Hour)

	ctx := context.Background()
	key := "user-7:test-key-1"

	created, err := s.CreateIfNotExists(ctx, key, "fp-1")
	if err != nil {
		t.Fatalf("CreateIfNotExists error: %v", err)
	}
	if !created {
		t.Fatalf("expected created=true")
	}

	// second create should return created=false (exists)
	created2, err := s.CreateIfNotExists(ctx, key, "fp-1")
	if err != nil {
		t.Fatalf("second CreateIfNotExists error: %v", err)
	}
	if created2 {
		t.Fatalf("expected created=false on duplicate create")
	}

	rec, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if rec == nil {
		t.Fatalf("expected record, got nil")
	}
	if rec.Status != StatusInProgress {
		t.Fatalf("expected IN_PROGRESS, got %s", rec.Status)
	}
	if rec.Fingerprint != "fp-1" {
		t.Fatalf("fingerprint mismatch: %s", rec.Fingerprint)
	}

	err = s.MarkDone(ctx, key, 42, "{\"ok\":true}", 201)
	if err != nil {
		t.Fatalf("MarkDone error: %v", err)
	}

	item := mock.table[key]
	if st, ok := item["status"].(*types.AttributeValueMemberS); !ok || st.Value != StatusDone {
		t.Fatalf("status not updated to DONE, got %+v", item["status"])
	}
	if rb, ok := item["response_body"].(*types.AttributeValueMemberS); !ok || rb.Value != "{\"ok\":true}" {
		t.Fatalf("response_body not set correctly: %+v", item["response_body"])
	}
	if oid, ok := item["order_id"].(*types.AttributeValueMemberN); !ok || oid.Value != "42" {
		t.Fatalf("order_id not set correctly: %+v", item["order_id"])
	}

	err = s.MarkFailed(ctx, key, "failed-reason")
	if err != nil {
		t.Fatalf("MarkFailed error: %v", err)
	}
	item2 := mock.table[key]
	if st, ok := item2["status"].(*types.AttributeValueMemberS); !ok || st.Value != StatusFailed {
		t.Fatalf("status not updated to FAILED, got %+v", item2["status"])
	}
	if n, ok := item2["note"].(*types.AttributeValueMemberS); !ok || n.Value != "failed-reason" {
		t.Fatalf("note not set, got %+v", item2["note"])
	}
}

func TestAcquire_Lifecycle(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "idempotency-table", time.Hour)
	ctx := context.Background()
	key := "user-1:abc"

	d, _, err := s.Acquire(ctx, key, "fp")
	if err != nil || d != Proceed {
		t.Fatalf("first acquire: decision=%v err=%v", d, err)
	}

	d, _, err = s.Acquire(ctx, key, "fp")
	if err != nil || d != InFlight {
		t.Fatalf("concurrent acquire: decision=%v err=%v", d, err)
	}

	if err := s.MarkDone(ctx, key, 9, `{"order_id":9}`, 201); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}
	d, rec, err := s.Acquire(ctx, key, "fp")
	if err != nil || d != Replay {
		t.Fatalf("replay acquire: decision=%v err=%v", d, err)
	}
	if rec.ResponseStatus != 201 || rec.ResponseBody != `{"order_id":9}` || rec.OrderID != 9 {
		t.Fatalf("unexpected replay record %+v", rec)
	}
}

func TestAcquire_RetakesFailedOnce(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "idempotency-table", time.Hour)
	ctx := context.Background()
	key := "user-1:retry"

	if _, _, err := s.Acquire(ctx, key, "fp"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := s.MarkFailed(ctx, key, "gateway down"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	d, _, err := s.Acquire(ctx, key, "fp")
	if err != nil || d != Proceed {
		t.Fatalf("expected retry to proceed, got decision=%v err=%v", d, err)
	}
	d, _, err = s.Acquire(ctx, key, "fp")
	if err != nil || d != InFlight {
		t.Fatalf("expected second retry to be in flight, got decision=%v err=%v", d, err)
	}
}

func TestAcquire_FingerprintMismatch(t *testing.T) {
	s := NewStore(newSimpleMock(), "idempotency-table", time.Hour)
	ctx := context.Background()

	if _, _, err := s.Acquire(ctx, "k", "fp-a"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	_, _, err := s.Acquire(ctx, "k", "fp-b")
	if !errors.Is(err, ErrFingerprintMismatch) {
		t.Fatalf("expected ErrFingerprintMismatch, got %v", err)
	}
}

func TestAttributevalueMarshal_Unmarshal(t *testing.T) {
	rec := IdempotencyRecord{
		IdempotencyKey: "k1",
		Status:         StatusInProgress,
		Fingerprint:    "fp",
		OrderID:        12,
		CreatedAt:      time.Now().Round(time.Second),
		UpdatedAt:      time.Now().Round(time.Second),
		ExpiresAt:      time.Now().Add(24 * time.Hour).Unix(),
	}
	m, err := attributevalue.MarshalMap(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out IdempotencyRecord
	if err := attributevalue.UnmarshalMap(m, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.IdempotencyKey != rec.IdempotencyKey || out.OrderID != rec.OrderID {
		t.Fatalf("unmarshal mismatch")
	}
}
