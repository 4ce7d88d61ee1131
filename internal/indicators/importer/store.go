package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/habilita/habilita/internal/indicators"
	"github.com/habilita/habilita/internal/platform/httpx"
)

// DefaultPreviewTTL bounds how long an unconfirmed preview is kept.
const DefaultPreviewTTL = 30 * time.Minute

const keyPrefix = "indicators:import:"

// Store errors.
var (
	ErrPreviewNotFound  = fmt.Errorf("importer: preview %w", httpx.ErrNotFound)
	ErrOutcomeNotFound  = fmt.Errorf("importer: outcome %w", httpx.ErrNotFound)
	ErrAlreadyCommitted = fmt.Errorf("importer: batch already committed: %w", httpx.ErrDuplicate)
)

// Preview is a validated upload waiting for confirmation.
type Preview struct {
	ID        string    `json:"id"`
	FileName  string    `json:"fileName"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
	Rows      []Row     `json:"rows"`
}

// ValidCount is the number of rows that will be posted.
func (p Preview) ValidCount() int {
	n := 0
	for _, r := range p.Rows {
		if r.Valid() {
			n++
		}
	}
	return n
}

// InvalidCount is the number of rows that will be skipped.
func (p Preview) InvalidCount() int {
	return len(p.Rows) - p.ValidCount()
}

// Inputs returns the request bodies of the valid rows in file order.
func (p Preview) Inputs() []indicators.ResultInput {
	out := make([]indicators.ResultInput, 0, len(p.Rows))
	for _, r := range p.Rows {
		if r.Valid() {
			out = append(out, r.Input)
		}
	}
	return out
}

// Outcome records what a commit did.
type Outcome struct {
	BatchID    string    `json:"batchId"`
	Status     string    `json:"status"`
	Created    int       `json:"created"`
	Skipped    int       `json:"skipped"`
	Error      string    `json:"error,omitempty"`
	Actor      string    `json:"actor"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Outcome statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Store keeps previews, commit locks and outcomes in Redis, all expiring
// after the same TTL.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore constructs a Store.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultPreviewTTL
	}
	return &Store{client: client, ttl: ttl}
}

// Save assigns an id when missing and writes the preview.
func (s *Store) Save(ctx context.Context, p *Preview) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, previewKey(p.ID), data, s.ttl).Err()
}

// Load returns a stored preview.
func (s *Store) Load(ctx context.Context, id string) (Preview, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Preview{}, ErrPreviewNotFound
	}
	data, err := s.client.Get(ctx, previewKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Preview{}, ErrPreviewNotFound
	}
	if err != nil {
		return Preview{}, err
	}
	var p Preview
	if err := json.Unmarshal(data, &p); err != nil {
		return Preview{}, err
	}
	return p, nil
}

// Claim takes the commit lock for a batch. It fails with ErrAlreadyCommitted
// when another commit already claimed it.
func (s *Store) Claim(ctx context.Context, id string) error {
	ok, err := s.client.SetNX(ctx, lockKey(id), time.Now().UTC().Format(time.RFC3339), s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyCommitted
	}
	return nil
}

// Release drops the commit lock so the batch can be retried.
func (s *Store) Release(ctx context.Context, id string) error {
	return s.client.Del(ctx, lockKey(id)).Err()
}

// SaveOutcome writes the commit result.
func (s *Store) SaveOutcome(ctx context.Context, o Outcome) error {
	data, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, outcomeKey(o.BatchID), data, s.ttl).Err()
}

// Outcome returns the commit result of a batch.
func (s *Store) Outcome(ctx context.Context, id string) (Outcome, error) {
	data, err := s.client.Get(ctx, outcomeKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Outcome{}, ErrOutcomeNotFound
	}
	if err != nil {
		return Outcome{}, err
	}
	var o Outcome
	if err := json.Unmarshal(data, &o); err != nil {
		return Outcome{}, err
	}
	return o, nil
}

func previewKey(id string) string { return keyPrefix + id }
func lockKey(id string) string    { return keyPrefix + id + ":lock" }
func outcomeKey(id string) string { return keyPrefix + id + ":outcome" }
