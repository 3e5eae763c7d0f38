package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"equilex/pkg/platform/sentinel"
)

// Receipt is the opaque result of a successfully applied action.
type Receipt struct {
	ID           uuid.UUID         `json:"receipt_id"`
	Action       string            `json:"action"`
	Principal    string            `json:"principal"`
	AppliedAt    time.Time         `json:"applied_at"`
	LastEventSeq uint64            `json:"last_event_seq,omitempty"`
	Result       map[string]string `json:"result,omitempty"`
}

// ReceiptStore retains receipts for later lookup by the synchronizer. Storage
// is best effort: a store failure never fails the applied action.
type ReceiptStore interface {
	Save(ctx context.Context, receipt Receipt) error
	Find(ctx context.Context, receiptID uuid.UUID) (Receipt, error)
}

type InMemoryReceiptStore struct {
	mu       sync.RWMutex
	receipts map[uuid.UUID]Receipt
}

func NewInMemoryReceiptStore() *InMemoryReceiptStore {
	return &InMemoryReceiptStore{receipts: make(map[uuid.UUID]Receipt)}
}

func (s *InMemoryReceiptStore) Save(_ context.Context, receipt Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts[receipt.ID] = Receipt{
		ID:           receipt.ID,
		Action:       receipt.Action,
		Principal:    receipt.Principal,
		AppliedAt:    receipt.AppliedAt,
		LastEventSeq: receipt.LastEventSeq,
		Result:       maps.Clone(receipt.Result),
	}
	return nil
}

func (s *InMemoryReceiptStore) Find(_ context.Context, receiptID uuid.UUID) (Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	receipt, ok := s.receipts[receiptID]
	if !ok {
		return Receipt{}, sentinel.ErrNotFound
	}
	receipt.Result = maps.Clone(receipt.Result)
	return receipt, nil
}

const receiptTTL = 24 * time.Hour

// RedisReceiptStore keeps receipts in redis with a TTL so a restarted
// synchronizer can still resolve recent submissions.
type RedisReceiptStore struct {
	client goredis.UniversalClient
}

func NewRedisReceiptStore(client goredis.UniversalClient) *RedisReceiptStore {
	return &RedisReceiptStore{client: client}
}

func receiptKey(receiptID uuid.UUID) string {
	return "receipt:" + receiptID.String()
}

func (s *RedisReceiptStore) Save(ctx context.Context, receipt Receipt) error {
	raw, err := json.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("marshal receipt: %w", err)
	}
	if err := s.client.Set(ctx, receiptKey(receipt.ID), raw, receiptTTL).Err(); err != nil {
		return fmt.Errorf("store receipt: %w", err)
	}
	return nil
}

func (s *RedisReceiptStore) Find(ctx context.Context, receiptID uuid.UUID) (Receipt, error) {
	raw, err := s.client.Get(ctx, receiptKey(receiptID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return Receipt{}, sentinel.ErrNotFound
		}
		return Receipt{}, fmt.Errorf("load receipt: %w", err)
	}
	var receipt Receipt
	if err := json.Unmarshal(raw, &receipt); err != nil {
		return Receipt{}, fmt.Errorf("unmarshal receipt: %w", err)
	}
	return receipt, nil
}
