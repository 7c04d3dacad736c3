package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const inFlight = "pending"

// IdempotencyStore remembers mutating requests by client key.
type IdempotencyStore struct {
	rdb       *redis.Client
	lockTTL   time.Duration
	replayTTL time.Duration
}

func NewIdempotencyStore(rdb *redis.Client, replay time.Duration) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb, lockTTL: time.Minute, replayTTL: replay}
}

// StoredResponse is a completed response kept for replay.
type StoredResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"contentType"`
	Body        []byte `json:"body"`
}

func idemKey(scope, key string) string { return fmt.Sprintf("lab:idem:%s:%s", scope, key) }

// Claim returns (nil, true) when the caller owns key now, (resp, false) when a
// finished response exists, and (nil, false) while another request holds it.
func (s *IdempotencyStore) Claim(ctx context.Context, scope, key string) (*StoredResponse, bool, error) {
	k := idemKey(scope, key)
	ok, err := s.rdb.SetNX(ctx, k, inFlight, s.lockTTL).Result()
	if err != nil {
		return nil, false, err
	}
	if ok {
		return nil, true, nil
	}
	b, err := s.rdb.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		// 刚好过期，再抢一次
		ok, err = s.rdb.SetNX(ctx, k, inFlight, s.lockTTL).Result()
		return nil, ok, err
	}
	if err != nil {
		return nil, false, err
	}
	if string(b) == inFlight {
		return nil, false, nil
	}
	var sr StoredResponse
	if err := json.Unmarshal(b, &sr); err != nil {
		return nil, false, err
	}
	return &sr, false, nil
}

func (s *IdempotencyStore) Complete(ctx context.Context, scope, key string, resp StoredResponse) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, idemKey(scope, key), b, s.replayTTL).Err()
}

// Release drops the claim so the client can retry, used when the request
// failed with a server error.
func (s *IdempotencyStore) Release(ctx context.Context, scope, key string) error {
	return s.rdb.Del(ctx, idemKey(scope, key)).Err()
}
