package identity

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/config"
)

var (
	ErrInvalidToken  = errors.New("invalid id token")
	ErrNotConfigured = errors.New("id token verification is not configured")
)

// Claims is the subset of an OpenID Connect id token the login flow reads.
type Claims struct {
	jwt.RegisteredClaims
	Email      string `json:"email"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Name       string `json:"name"`
}

// DisplayName prefers "given family" and falls back to the name claim.
func (c *Claims) DisplayName() string {
	full := strings.TrimSpace(c.GivenName + " " + c.FamilyName)
	if full != "" {
		return full
	}
	return strings.TrimSpace(c.Name)
}

// Verifier checks HS256 id tokens issued for our audience.
type Verifier struct {
	secret   []byte
	audience string
}

func NewVerifier(cfg *config.Config) *Verifier {
	return &Verifier{
		secret:   []byte(cfg.IDTokenSecret),
		audience: cfg.IDTokenAudience,
	}
}

func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	if len(v.secret) == 0 {
		return nil, ErrNotConfigured
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidToken, err.Error())
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Email == "" {
		return nil, errors.Wrap(ErrInvalidToken, "no email claim")
	}

	return claims, nil
}
