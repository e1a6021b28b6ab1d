package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	id "fedcred/pkg/domain"
	"fedcred/pkg/platform/httputil"
	"fedcred/pkg/requestcontext"
)

const testUserID = "550e8400-e29b-41d4-a716-446655440001"

type MockJWTValidator struct {
	mock.Mock
}

func (m *MockJWTValidator) ValidateToken(tokenString string) (*JWTClaims, error) {
	args := m.Called(tokenString)
	if claims := args.Get(0); claims != nil {
		return claims.(*JWTClaims), args.Error(1)
	}
	return nil, args.Error(1)
}

type captureHandler struct {
	called bool
	ctx    context.Context
}

func (h *captureHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.called = true
	h.ctx = r.Context()
	w.WriteHeader(http.StatusOK)
}

type AuthMiddlewareSuite struct {
	suite.Suite
	validator *MockJWTValidator
	logger    *slog.Logger
	next      *captureHandler
}

func (s *AuthMiddlewareSuite) SetupTest() {
	s.validator = new(MockJWTValidator)
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.next = &captureHandler{}
}

func (s *AuthMiddlewareSuite) serve(header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/credentials/stats", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	RequireAuth(s.validator, s.logger)(s.next).ServeHTTP(w, req)
	return w
}

func (s *AuthMiddlewareSuite) errorCode(w *httptest.ResponseRecorder) string {
	var env httputil.Envelope
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &env))
	s.Require().NotNil(env.Error)
	return env.Error.Code
}

func TestAuthMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(AuthMiddlewareSuite))
}

func (s *AuthMiddlewareSuite) TestRequireAuth() {
	s.Run("valid token populates user and role", func() {
		s.SetupTest()
		s.validator.On("ValidateToken", "good").Return(&JWTClaims{UserID: testUserID, Role: "verifier", JTI: "j1"}, nil)

		w := s.serve("Bearer good")

		s.Equal(http.StatusOK, w.Code)
		s.True(s.next.called)
		s.Equal(testUserID, requestcontext.UserID(s.next.ctx).String())
		s.Equal(id.RoleVerifier, requestcontext.Role(s.next.ctx))
	})

	s.Run("missing header", func() {
		s.SetupTest()
		w := s.serve("")

		s.Equal(http.StatusUnauthorized, w.Code)
		s.Equal("unauthorized", s.errorCode(w))
		s.False(s.next.called)
	})

	s.Run("wrong scheme", func() {
		s.SetupTest()
		w := s.serve("Basic abc")

		s.Equal(http.StatusUnauthorized, w.Code)
		s.False(s.next.called)
	})

	s.Run("validator rejects token", func() {
		s.SetupTest()
		s.validator.On("ValidateToken", "bad").Return(nil, errors.New("expired"))

		w := s.serve("Bearer bad")

		s.Equal(http.StatusUnauthorized, w.Code)
		s.False(s.next.called)
	})

	s.Run("unknown role claim", func() {
		s.SetupTest()
		s.validator.On("ValidateToken", "odd").Return(&JWTClaims{UserID: testUserID, Role: "referee"}, nil)

		w := s.serve("Bearer odd")

		s.Equal(http.StatusUnauthorized, w.Code)
		s.False(s.next.called)
	})

	s.Run("malformed user id", func() {
		s.SetupTest()
		s.validator.On("ValidateToken", "uid").Return(&JWTClaims{UserID: "nope", Role: "admin"}, nil)

		w := s.serve("Bearer uid")

		s.Equal(http.StatusUnauthorized, w.Code)
	})
}

func TestRequireRole(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	run := func(role id.Role) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/credentials/verify", nil)
		req = req.WithContext(requestcontext.WithRole(req.Context(), role))
		w := httptest.NewRecorder()
		RequireRole(logger, id.RoleAdmin, id.RoleVerifier)(&captureHandler{}).ServeHTTP(w, req)
		return w
	}

	require.Equal(t, http.StatusOK, run(id.RoleVerifier).Code)
	require.Equal(t, http.StatusOK, run(id.RoleAdmin).Code)
	require.Equal(t, http.StatusForbidden, run(id.RoleMember).Code)
	require.Equal(t, http.StatusForbidden, run("").Code)
}
