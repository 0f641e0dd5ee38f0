package service

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/config"
	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/db"
)

// Sessions issues, rotates and checks the per-user credential pair. A session
// token is valid until its expiration; the update token never expires and is
// only good for minting the next pair, after which it is gone.
type Sessions struct {
	db     *gorm.DB
	ttl    time.Duration
	now    func() time.Time
	logger *zap.SugaredLogger
}

func NewSessions(gdb *gorm.DB, cfg *config.Config, l *zap.SugaredLogger) *Sessions {
	return &Sessions{
		db:     gdb,
		ttl:    cfg.SessionTTL,
		now:    time.Now,
		logger: l,
	}
}

func (s *Sessions) Issue() (db.SessionCredential, error) {
	sessionToken, err := randomToken()
	if err != nil {
		return db.SessionCredential{}, errors.Wrap(err, "session token")
	}
	updateToken, err := randomToken()
	if err != nil {
		return db.SessionCredential{}, errors.Wrap(err, "update token")
	}
	return db.SessionCredential{
		SessionToken:      sessionToken,
		SessionExpiration: s.now().Add(s.ttl),
		UpdateToken:       updateToken,
	}, nil
}

func (s *Sessions) Renew(ctx context.Context, updateToken string) (*db.User, error) {
	if updateToken == "" {
		return nil, errors.Wrap(ErrInvalidToken, "missing update token")
	}

	user := db.User{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("update_token = ?", updateToken).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.Wrap(ErrInvalidToken, "unknown update token")
			}
			return errors.Wrap(err, "find user by update token")
		}
		if !VerifyUpdate(&user, updateToken) {
			return errors.Wrap(ErrInvalidToken, "update token mismatch")
		}
		return s.replace(tx, &user, updateToken)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Infow("session renewed", "user_id", user.ID)
	return &user, nil
}

// Authenticate resolves the owner of a session token and checks it has not expired.
func (s *Sessions) Authenticate(ctx context.Context, sessionToken string) (*db.User, error) {
	if sessionToken == "" {
		return nil, errors.Wrap(ErrInvalidToken, "missing session token")
	}

	user := db.User{}
	if err := s.db.WithContext(ctx).Where("session_token = ?", sessionToken).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrap(ErrInvalidToken, "unknown session token")
		}
		return nil, errors.Wrap(err, "find user by session token")
	}
	if !VerifySession(&user, sessionToken, s.now()) {
		return nil, errors.Wrap(ErrInvalidToken, "session expired")
	}
	return &user, nil
}

// rotate replaces the credential of a user unconditionally (login paths).
func (s *Sessions) rotate(tx *gorm.DB, user *db.User) error {
	return s.replace(tx, user, "")
}

// replace swaps the whole credential. With a non-empty expectedUpdate the write only
// lands if the stored update token is still that value, so a token can be spent once.
func (s *Sessions) replace(tx *gorm.DB, user *db.User, expectedUpdate string) error {
	cred, err := s.Issue()
	if err != nil {
		return err
	}

	q := tx.Model(&db.User{}).Where("id = ?", user.ID)
	if expectedUpdate != "" {
		q = q.Where("update_token = ?", expectedUpdate)
	}
	res := q.Updates(map[string]interface{}{
		"session_token":      cred.SessionToken,
		"session_expiration": cred.SessionExpiration,
		"update_token":       cred.UpdateToken,
	})
	if res.Error != nil {
		return errors.Wrap(res.Error, "update credential")
	}
	if res.RowsAffected == 0 {
		if expectedUpdate != "" {
			return errors.Wrap(ErrInvalidToken, "update token already used")
		}
		return errors.Wrapf(ErrNotFound, "user %d", user.ID)
	}

	user.Credential = cred
	return nil
}

func VerifySession(user *db.User, token string, now time.Time) bool {
	if user == nil || token == "" {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(user.Credential.SessionToken)) != 1 {
		return false
	}
	return now.Before(user.Credential.SessionExpiration)
}

// VerifyUpdate has no expiry check: update tokens are long-lived.
func VerifyUpdate(user *db.User, token string) bool {
	if user == nil || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(user.Credential.UpdateToken)) == 1
}
