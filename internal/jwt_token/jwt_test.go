package jwttoken

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "fedcred/pkg/domain"
	dErrors "fedcred/pkg/domain-errors"
	"fedcred/pkg/requestcontext"
)

var userID = id.UserID(uuid.New())

var jwtService = NewJWTService("test-signing-key", "test-issuer", "test-audience", time.Hour)

func Test_GenerateAccessToken(t *testing.T) {
	token, jti, err := jwtService.GenerateAccessToken(context.Background(), userID, id.RoleVerifier)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := jwtService.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.UserID)
	assert.Equal(t, "verifier", claims.Role)
	assert.Equal(t, jti, claims.ID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func Test_GenerateAccessToken_RejectsBadInput(t *testing.T) {
	_, _, err := jwtService.GenerateAccessToken(context.Background(), id.UserID{}, id.RoleAdmin)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, _, err = jwtService.GenerateAccessToken(context.Background(), userID, id.Role("owner"))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func Test_ValidateToken_Failures(t *testing.T) {
	past := requestcontext.WithTime(context.Background(), time.Now().Add(-2*time.Hour))
	expired, _, err := jwtService.GenerateAccessToken(past, userID, id.RoleAdmin)
	require.NoError(t, err)

	otherIssuer, _, err := NewJWTService("test-signing-key", "someone-else", "test-audience", time.Hour).
		GenerateAccessToken(context.Background(), userID, id.RoleAdmin)
	require.NoError(t, err)

	otherAudience, _, err := NewJWTService("test-signing-key", "test-issuer", "other-api", time.Hour).
		GenerateAccessToken(context.Background(), userID, id.RoleAdmin)
	require.NoError(t, err)

	wrongKey, _, err := NewJWTService("wrong-key", "test-issuer", "test-audience", time.Hour).
		GenerateAccessToken(context.Background(), userID, id.RoleAdmin)
	require.NoError(t, err)

	cases := []struct {
		name  string
		token string
		msg   string
	}{
		{"empty", "", "empty token"},
		{"garbage", "invalid-token-string", "invalid token"},
		{"expired", expired, "token expired"},
		{"foreign issuer", otherIssuer, "invalid token issuer"},
		{"foreign audience", otherAudience, "invalid token"},
		{"wrong key", wrongKey, "invalid token"},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := jwtService.ValidateToken(tt.token)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
			assert.ErrorContains(t, err, tt.msg)
		})
	}
}

func Test_ValidateToken_RejectsAlgorithmConfusion(t *testing.T) {
	claims := AccessTokenClaims{
		UserID: userID.String(),
		Role:   "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "test-issuer",
			Audience:  []string{"test-audience"},
			ID:        uuid.NewString(),
		},
	}

	cases := []struct {
		name       string
		signMethod jwt.SigningMethod
		signKey    any
	}{
		{"hs512 header rejected", jwt.SigningMethodHS512, []byte("test-signing-key")},
		{"alg none rejected", jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			tokenString, err := jwt.NewWithClaims(tt.signMethod, claims).SignedString(tt.signKey)
			require.NoError(t, err)

			_, err = jwtService.ValidateToken(tokenString)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
		})
	}
}

func TestValidator(t *testing.T) {
	t.Run("maps claims", func(t *testing.T) {
		token, jti, err := jwtService.GenerateAccessToken(context.Background(), userID, id.RoleMember)
		require.NoError(t, err)

		claims, err := jwtService.Validator().ValidateToken(token)
		require.NoError(t, err)
		assert.Equal(t, userID.String(), claims.UserID)
		assert.Equal(t, "member", claims.Role)
		assert.Equal(t, jti, claims.JTI)
	})

	t.Run("rejects subject mismatch", func(t *testing.T) {
		now := time.Now()
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessTokenClaims{
			UserID: userID.String(),
			Role:   "member",
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   uuid.NewString(),
				Issuer:    "test-issuer",
				Audience:  []string{"test-audience"},
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			},
		}).SignedString([]byte("test-signing-key"))
		require.NoError(t, err)

		_, err = jwtService.Validator().ValidateToken(token)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}
