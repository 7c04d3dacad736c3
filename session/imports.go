package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"lab_lending_tool/inventory"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrImportExpired = errors.New("import token expired or unknown")

// StagedImport is a parsed upload waiting for mapping confirmation.
type StagedImport struct {
	Filename string            `json:"filename"`
	OwnerID  string            `json:"ownerId"`
	Sheet    *inventory.Sheet  `json:"sheet"`
	Mapping  inventory.Mapping `json:"mapping"`
}

// ImportStore parks parsed spreadsheets between parse, preview and commit.
type ImportStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewImportStore(rdb *redis.Client, ttl time.Duration) *ImportStore {
	return &ImportStore{rdb: rdb, ttl: ttl}
}

func importKey(token string) string { return fmt.Sprintf("lab:import:%s", token) }

func (s *ImportStore) Save(ctx context.Context, imp *StagedImport) (string, error) {
	b, err := json.Marshal(imp)
	if err != nil {
		return "", err
	}
	token := uuid.NewString()
	if err := s.rdb.Set(ctx, importKey(token), b, s.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

func (s *ImportStore) Load(ctx context.Context, token string) (*StagedImport, error) {
	b, err := s.rdb.Get(ctx, importKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrImportExpired
	}
	if err != nil {
		return nil, err
	}
	var imp StagedImport
	if err := json.Unmarshal(b, &imp); err != nil {
		return nil, err
	}
	return &imp, nil
}

func (s *ImportStore) Delete(ctx context.Context, token string) error {
	return s.rdb.Del(ctx, importKey(token)).Err()
}
