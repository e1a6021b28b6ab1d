package jwttoken

import (
	dErrors "fedcred/pkg/domain-errors"
	"fedcred/pkg/platform/middleware/auth"
)

// ValidatorFunc lets a plain function serve as the auth middleware's validator.
type ValidatorFunc func(token string) (*auth.JWTClaims, error)

func (f ValidatorFunc) ValidateToken(token string) (*auth.JWTClaims, error) {
	return f(token)
}

// Validator returns the validator RequireAuth uses. Tokens whose subject and
// user_id disagree are rejected.
func (s *JWTService) Validator() auth.JWTValidator {
	return ValidatorFunc(func(token string) (*auth.JWTClaims, error) {
		claims, err := s.ValidateToken(token)
		if err != nil {
			return nil, err
		}
		if claims.Subject != "" && claims.Subject != claims.UserID {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token subject mismatch")
		}
		return &auth.JWTClaims{UserID: claims.UserID, Role: claims.Role, JTI: claims.ID}, nil
	})
}
