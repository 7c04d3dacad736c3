package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/redis/go-redis/v9"
)

// PasskeyStore keeps WebAuthn ceremony state between begin and finish.
type PasskeyStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewPasskeyStore(rdb *redis.Client, ttl time.Duration) *PasskeyStore {
	return &PasskeyStore{rdb: rdb, ttl: ttl}
}

func regKey(userID string) string { return fmt.Sprintf("webauthn:reg:%s", userID) }
func authKey(sid string) string   { return fmt.Sprintf("webauthn:auth:%s", sid) }

func (s *PasskeyStore) save(ctx context.Context, key string, sd *webauthn.SessionData) error {
	b, err := json.Marshal(sd)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key, b, s.ttl).Err()
}

// load 读完即删，ceremony 数据只能用一次
func (s *PasskeyStore) load(ctx context.Context, key string) (*webauthn.SessionData, error) {
	b, err := s.rdb.GetDel(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}
	var sd webauthn.SessionData
	if err := json.Unmarshal(b, &sd); err != nil {
		return nil, err
	}
	return &sd, nil
}

func (s *PasskeyStore) SaveReg(ctx context.Context, userID string, sd *webauthn.SessionData) error {
	return s.save(ctx, regKey(userID), sd)
}

func (s *PasskeyStore) LoadReg(ctx context.Context, userID string) (*webauthn.SessionData, error) {
	return s.load(ctx, regKey(userID))
}

func (s *PasskeyStore) SaveAuth(ctx context.Context, sid string, sd *webauthn.SessionData) error {
	return s.save(ctx, authKey(sid), sd)
}

func (s *PasskeyStore) LoadAuth(ctx context.Context, sid string) (*webauthn.SessionData, error) {
	return s.load(ctx, authKey(sid))
}
