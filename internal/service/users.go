package service

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/config"
	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/db"
)

type CreateUserInput struct {
	Name     string
	Email    string
	Password *string
}

type Users struct {
	db         *gorm.DB
	sessions   *Sessions
	ledger     *Ledger
	bcryptCost int
	logger     *zap.SugaredLogger
}

func NewUsers(gdb *gorm.DB, sessions *Sessions, ledger *Ledger, cfg *config.Config, l *zap.SugaredLogger) *Users {
	return &Users{
		db:         gdb,
		sessions:   sessions,
		ledger:     ledger,
		bcryptCost: cfg.BcryptCost,
		logger:     l,
	}
}

func (s *Users) Create(ctx context.Context, in CreateUserInput) (*Profile, error) {
	user, err := s.newUser(in)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.insert(tx, user)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Infow("user created", "user_id", user.ID)
	return &Profile{
		User:             *user,
		SavedEvents:      []db.Event{},
		SavedBuckets:     []db.BucketItem{},
		CreatedEvents:    []db.Event{},
		CompletedBuckets: []db.BucketItem{},
	}, nil
}

func (s *Users) Get(ctx context.Context, id uint64) (*Profile, error) {
	return s.ledger.profile(s.db.WithContext(ctx), id)
}

// Delete removes the user with all of their ledger memberships and returns
// the profile as it was before removal.
func (s *Users) Delete(ctx context.Context, id uint64) (*Profile, error) {
	var p *Profile
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if p, err = s.ledger.profile(tx, id); err != nil {
			return err
		}
		if err := s.ledger.purgeUser(tx, id); err != nil {
			return err
		}
		if err := tx.Delete(&db.User{}, id).Error; err != nil {
			return errors.Wrapf(err, "delete user %d", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Infow("user deleted", "user_id", id)
	return p, nil
}

func (s *Users) SetPhoneNumber(ctx context.Context, id uint64, number string) (*Profile, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, validationError("number is required")
	}

	var p *Profile
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureExists(tx, "users", id, "user"); err != nil {
			return err
		}
		if err := tx.Model(&db.User{}).Where("id = ?", id).Update("phone_number", number).Error; err != nil {
			return errors.Wrap(err, "update phone number")
		}
		var err error
		p, err = s.ledger.profile(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// LoginWithPassword checks the stored bcrypt hash and hands out a fresh credential.
func (s *Users) LoginWithPassword(ctx context.Context, email, password string) (*db.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, validationError("email and password are required")
	}

	user := db.User{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("email = ?", email).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidCredentials
			}
			return errors.Wrap(err, "find user by email")
		}
		if user.PasswordHash == nil || s.bcryptCheck(*user.PasswordHash, password) != nil {
			return ErrInvalidCredentials
		}
		return s.sessions.rotate(tx, &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// LoginWithIdentity maps an identity-provider login onto a local user, creating
// the user on first sight, and hands out a fresh credential.
func (s *Users) LoginWithIdentity(ctx context.Context, name, email string) (*db.User, bool, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, false, validationError("identity token carries no email")
	}

	var (
		user    *db.User
		created bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing := db.User{}
		err := tx.Where("email = ?", email).First(&existing).Error
		switch {
		case err == nil:
			user = &existing
			return s.sessions.rotate(tx, user)
		case errors.Is(err, gorm.ErrRecordNotFound):
			if user, err = s.newUser(CreateUserInput{Name: name, Email: email}); err != nil {
				return err
			}
			created = true
			return s.insert(tx, user)
		default:
			return errors.Wrap(err, "find user by email")
		}
	})
	if err != nil {
		return nil, false, err
	}
	return user, created, nil
}

func (s *Users) newUser(in CreateUserInput) (*db.User, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, validationError("name is required")
	}
	email := normalizeEmail(in.Email)
	if email == "" {
		return nil, validationError("email is required")
	}

	cred, err := s.sessions.Issue()
	if err != nil {
		return nil, err
	}
	user := db.User{
		Name:       name,
		Email:      email,
		Credential: cred,
	}

	if in.Password != nil {
		if *in.Password == "" {
			return nil, validationError("password must not be empty")
		}
		hash, err := s.bcryptGen(*in.Password)
		if err != nil {
			return nil, errors.Wrap(err, "bcryptGen")
		}
		user.PasswordHash = &hash
	}
	return &user, nil
}

func (s *Users) insert(tx *gorm.DB, user *db.User) error {
	var count int64
	if err := tx.Model(&db.User{}).Where("email = ?", user.Email).Count(&count).Error; err != nil {
		return errors.Wrap(err, "count users by email")
	}
	if count > 0 {
		return validationError("email is already registered")
	}
	if err := tx.Create(user).Error; err != nil {
		return errors.Wrap(err, "create user")
	}
	return nil
}

func (s *Users) bcryptGen(pass string) (string, error) {
	passwordHashB, err := bcrypt.GenerateFromPassword([]byte(pass), s.bcryptCost)
	if err != nil {
		return "", errors.Wrap(err, "generate password hash")
	}
	return string(passwordHashB), nil
}

func (s *Users) bcryptCheck(hash, pass string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pass))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
