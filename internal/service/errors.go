package service

import (
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("not found")
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrForbidden          = errors.New("forbidden")
	ErrStorage            = errors.New("storage failure")
	ErrUnsupportedMedia   = errors.New("unsupported media")
)

func validationError(msg string) error {
	return errors.Wrap(ErrValidation, msg)
}

// lookupError turns gorm's missing-row error into ErrNotFound and wraps anything else.
func lookupError(err error, what string, id uint64) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Wrapf(ErrNotFound, "%s %d", what, id)
	}
	return errors.Wrapf(err, "get %s %d", what, id)
}
