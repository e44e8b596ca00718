package repository

import (
	"errors"

	"github.com/zeebo/errs"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errs.Class("not found")
	// ErrStore wraps every other database failure.
	ErrStore = errs.Class("store")
)

func wrap(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound.Wrap(err)
	}
	return ErrStore.Wrap(err)
}
