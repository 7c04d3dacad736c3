package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrRefreshInvalid = errors.New("refresh token invalid or expired")

// RefreshStore 保存 refresh token；每个用户一个集合，方便一次性撤销
type RefreshStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRefreshStore(rdb *redis.Client, ttl time.Duration) *RefreshStore {
	return &RefreshStore{rdb: rdb, ttl: ttl}
}

type RefreshSession struct {
	UserID    string `json:"uid"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

func refreshKey(id string) string  { return fmt.Sprintf("lab:refresh:%s", id) }
func userSetKey(uid string) string { return fmt.Sprintf("lab:user_refresh:%s", uid) }

func (s *RefreshStore) TTL() time.Duration { return s.ttl }

// Create issues a new refresh token for userID.
func (s *RefreshStore) Create(ctx context.Context, userID string) (string, error) {
	id := uuid.NewString()
	now := time.Now()
	b, _ := json.Marshal(RefreshSession{
		UserID:    userID,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(s.ttl).Unix(),
	})
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, refreshKey(id), b, s.ttl)
	pipe.SAdd(ctx, userSetKey(userID), id)
	pipe.Expire(ctx, userSetKey(userID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", err
	}
	return id, nil
}

func (s *RefreshStore) Get(ctx context.Context, id string) (*RefreshSession, error) {
	b, err := s.rdb.Get(ctx, refreshKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrRefreshInvalid
	}
	if err != nil {
		return nil, err
	}
	var rs RefreshSession
	if err := json.Unmarshal(b, &rs); err != nil {
		return nil, err
	}
	return &rs, nil
}

// Rotate consumes id and issues a replacement. GETDEL makes a token usable
// exactly once even under concurrent refreshes.
func (s *RefreshStore) Rotate(ctx context.Context, id string) (userID, next string, err error) {
	b, err := s.rdb.GetDel(ctx, refreshKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return "", "", ErrRefreshInvalid
	}
	if err != nil {
		return "", "", err
	}
	var rs RefreshSession
	if err := json.Unmarshal(b, &rs); err != nil {
		return "", "", err
	}
	_ = s.rdb.SRem(ctx, userSetKey(rs.UserID), id).Err()
	next, err = s.Create(ctx, rs.UserID)
	if err != nil {
		return "", "", err
	}
	return rs.UserID, next, nil
}

func (s *RefreshStore) Delete(ctx context.Context, id string) error {
	rs, _ := s.Get(ctx, id) // 忽略失败
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, refreshKey(id))
	if rs != nil {
		pipe.SRem(ctx, userSetKey(rs.UserID), id)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// RevokeAllForUser 停用账号时调用，撤销该用户的所有 refresh token
func (s *RefreshStore) RevokeAllForUser(ctx context.Context, userID string) error {
	ids, err := s.rdb.SMembers(ctx, userSetKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	pipe := s.rdb.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, refreshKey(id))
	}
	pipe.Del(ctx, userSetKey(userID))
	_, err = pipe.Exec(ctx)
	return err
}
