package identity

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/config"
)

const testSecret = "test-secret"

func sign(t *testing.T, method jwt.SigningMethod, key interface{}, claims Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func validClaims() Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{"buckethaca"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Email:      "ann@example.com",
		GivenName:  "Ann",
		FamilyName: "Lee",
	}
}

func TestVerifierVerify(t *testing.T) {
	v := NewVerifier(&config.Config{IDTokenSecret: testSecret, IDTokenAudience: "buckethaca"})

	t.Run("valid", func(t *testing.T) {
		claims, err := v.Verify(sign(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims()))
		require.NoError(t, err)
		assert.Equal(t, "ann@example.com", claims.Email)
		assert.Equal(t, "Ann Lee", claims.DisplayName())
	})

	tests := []struct {
		name  string
		token func(t *testing.T) string
	}{
		{
			name: "wrong secret",
			token: func(t *testing.T) string {
				return sign(t, jwt.SigningMethodHS256, []byte("other"), validClaims())
			},
		},
		{
			name: "wrong audience",
			token: func(t *testing.T) string {
				c := validClaims()
				c.Audience = jwt.ClaimStrings{"someone-else"}
				return sign(t, jwt.SigningMethodHS256, []byte(testSecret), c)
			},
		},
		{
			name: "expired",
			token: func(t *testing.T) string {
				c := validClaims()
				c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
				return sign(t, jwt.SigningMethodHS256, []byte(testSecret), c)
			},
		},
		{
			name: "no expiry",
			token: func(t *testing.T) string {
				c := validClaims()
				c.ExpiresAt = nil
				return sign(t, jwt.SigningMethodHS256, []byte(testSecret), c)
			},
		},
		{
			name: "other algorithm",
			token: func(t *testing.T) string {
				return sign(t, jwt.SigningMethodHS512, []byte(testSecret), validClaims())
			},
		},
		{
			name: "no email",
			token: func(t *testing.T) string {
				c := validClaims()
				c.Email = ""
				return sign(t, jwt.SigningMethodHS256, []byte(testSecret), c)
			},
		},
		{
			name:  "garbage",
			token: func(t *testing.T) string { return "not.a.jwt" },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token(t))
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestVerifierNotConfigured(t *testing.T) {
	_, err := NewVerifier(&config.Config{}).Verify("anything")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Ann", (&Claims{GivenName: "Ann"}).DisplayName())
	assert.Equal(t, "Ann Lee", (&Claims{Name: " Ann Lee "}).DisplayName())
	assert.Equal(t, "", (&Claims{}).DisplayName())
}
