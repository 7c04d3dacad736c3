package db

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicate      = errors.New("already exists")
	ErrForbidden      = errors.New("not allowed for this user")
	ErrUnknownProduct = errors.New("unknown product")
)

// normalize maps driver errors onto the package sentinels.
func normalize(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "SQLSTATE 23505") {
		return ErrDuplicate
	}
	return err
}

// validID uuid 列收到非 uuid 会报 22P02，先挡掉
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
