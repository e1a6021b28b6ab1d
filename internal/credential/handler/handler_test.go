package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"fedcred/internal/credential/export"
	"fedcred/internal/credential/handler/mocks"
	"fedcred/internal/credential/models"
	id "fedcred/pkg/domain"
	dErrors "fedcred/pkg/domain-errors"
	"fedcred/pkg/requestcontext"
	"fedcred/pkg/testutil"
)

const (
	headerRole = "X-Test-Role"
	headerUser = "X-Test-User"
)

type HandlerSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	service  *mocks.MockService
	exporter *mocks.MockExporter
	router   http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	s.exporter = mocks.NewMockExporter(s.ctrl)
	s.router = s.newRouter(New(s.service, s.exporter, slog.New(slog.DiscardHandler)))
}

// newRouter stands in for RequireAuth by reading the caller from test headers.
func (s *HandlerSuite) newRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := req.Context()
			if role := req.Header.Get(headerRole); role != "" {
				ctx = requestcontext.WithRole(ctx, id.Role(role))
			}
			if user := req.Header.Get(headerUser); user != "" {
				userID, err := id.ParseUserID(user)
				s.Require().NoError(err)
				ctx = requestcontext.WithUserID(ctx, userID)
			}
			ctx = requestcontext.WithRequestID(ctx, "req-1")
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	h.Register(r)
	return r
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *HandlerSuite) do(method, path string, role id.Role, body string) (*httptest.ResponseRecorder, envelope) {
	return s.doAs(method, path, role, testutil.TestIDs.AdminID, body)
}

func (s *HandlerSuite) doAs(method, path string, role id.Role, user id.UserID, body string) (*httptest.ResponseRecorder, envelope) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerRole, role.String())
	req.Header.Set(headerUser, user.String())
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var env envelope
	s.Require().NoError(json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&env), rec.Body.String())
	return rec, env
}

func (s *HandlerSuite) decodeData(env envelope, target any) {
	s.Require().True(env.Success)
	s.Require().NoError(json.Unmarshal(env.Data, target))
}

func (s *HandlerSuite) credential() *models.Credential {
	return testutil.NewCredentialBuilder().
		WithID(testutil.TestIDs.CredentialID1).
		WithVerificationURL("https://verify.example.org").
		Build()
}

func (s *HandlerSuite) TestVerify() {
	credID := testutil.TestIDs.CredentialID1.String()

	s.Run("valid credential", func() {
		cred := s.credential()
		s.service.EXPECT().Verify(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, in models.VerifyInput) (*models.VerificationResult, error) {
				s.Equal(credID, in.CredentialID)
				s.Equal("abc123", in.PresentedChecksum)
				s.Equal(models.ChannelSingle, in.Verifier.Channel)
				s.Equal(id.RoleVerifier, in.Verifier.Role)
				s.Equal("req-1", in.Verifier.RequestID)
				return &models.VerificationResult{CredentialID: credID, Valid: true, Credential: cred}, nil
			})

		rec, env := s.do(http.MethodGet, "/api/credentials/verify/"+credID+"?checksum=abc123", id.RoleVerifier, "")
		s.Equal(http.StatusOK, rec.Code)

		var got VerificationResponse
		s.decodeData(env, &got)
		s.True(got.Valid)
		s.Empty(got.Reason)
		s.Require().NotNil(got.Credential)
		s.Equal(credID, got.Credential.ID)
		s.Equal(models.StatusActive, got.Credential.Status)
	})

	s.Run("invalid outcome is still a success response", func() {
		s.service.EXPECT().Verify(gomock.Any(), gomock.Any()).
			Return(&models.VerificationResult{CredentialID: credID, Reason: models.ReasonRevoked}, nil)

		rec, env := s.do(http.MethodGet, "/api/credentials/verify/"+credID, id.RoleAdmin, "")
		s.Equal(http.StatusOK, rec.Code)

		var got VerificationResponse
		s.decodeData(env, &got)
		s.False(got.Valid)
		s.Equal(models.ReasonRevoked, got.Reason)
		s.Nil(got.Credential)
	})

	s.Run("store outage surfaces as 503", func() {
		s.service.EXPECT().Verify(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeStoreUnavailable, "credential store unavailable"))

		rec, env := s.do(http.MethodGet, "/api/credentials/verify/"+credID, id.RoleVerifier, "")
		s.Equal(http.StatusServiceUnavailable, rec.Code)
		s.Equal("store_unavailable", env.Error.Code)
	})

	s.Run("members cannot verify", func() {
		rec, env := s.do(http.MethodGet, "/api/credentials/verify/"+credID, id.RoleMember, "")
		s.Equal(http.StatusForbidden, rec.Code)
		s.False(env.Success)
	})
}

func (s *HandlerSuite) TestVerifyBulk() {
	s.Run("per item outcomes in request order", func() {
		ids := []string{"cred_missing", testutil.TestIDs.CredentialID1.String()}
		s.service.EXPECT().VerifyBulk(gomock.Any(), ids, gomock.Any()).
			DoAndReturn(func(_ context.Context, got []string, v models.VerifierContext) ([]*models.VerificationResult, error) {
				s.Equal(models.ChannelBulk, v.Channel)
				return []*models.VerificationResult{
					{CredentialID: got[0], Reason: models.ReasonNotFound},
					{CredentialID: got[1], Valid: true, Credential: s.credential()},
				}, nil
			})

		rec, env := s.do(http.MethodPost, "/api/credentials/verify-bulk", id.RoleVerifier,
			`{"credentialIds":["cred_missing","`+testutil.TestIDs.CredentialID1.String()+`"]}`)
		s.Equal(http.StatusOK, rec.Code)

		var got BulkVerificationResponse
		s.decodeData(env, &got)
		s.Equal(2, got.Total)
		s.Equal(1, got.Valid)
		s.Equal(1, got.Invalid)
		s.Require().Len(got.Results, 2)
		s.Equal(models.ReasonNotFound, got.Results[0].Reason)
		s.True(got.Results[1].Valid)
	})

	s.Run("missing ids", func() {
		rec, env := s.do(http.MethodPost, "/api/credentials/verify-bulk", id.RoleVerifier, `{}`)
		s.Equal(http.StatusBadRequest, rec.Code)
		s.Equal("validation_error", env.Error.Code)
	})

	s.Run("oversized batch", func() {
		s.service.EXPECT().VerifyBulk(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeBatchTooLarge, "at most 50 credential ids per request"))

		rec, env := s.do(http.MethodPost, "/api/credentials/verify-bulk", id.RoleVerifier, `{"credentialIds":["a"]}`)
		s.Equal(http.StatusBadRequest, rec.Code)
		s.Equal("batch_too_large", env.Error.Code)
	})

	s.Run("oversized batch with an oversized id reports the batch", func() {
		ids := make([]string, 51)
		for i := range ids {
			ids[i] = "cred_" + strconv.Itoa(i)
		}
		ids[3] = strings.Repeat("x", 200)
		body, err := json.Marshal(map[string][]string{"credentialIds": ids})
		s.Require().NoError(err)

		s.service.EXPECT().VerifyBulk(gomock.Any(), gomock.Len(51), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeBatchTooLarge, "batch of 51 exceeds the maximum of 50 credential ids"))

		rec, env := s.do(http.MethodPost, "/api/credentials/verify-bulk", id.RoleVerifier, string(body))
		s.Equal(http.StatusBadRequest, rec.Code)
		s.Equal("batch_too_large", env.Error.Code)
	})

	s.Run("malformed body", func() {
		rec, env := s.do(http.MethodPost, "/api/credentials/verify-bulk", id.RoleVerifier, `not json`)
		s.Equal(http.StatusBadRequest, rec.Code)
		s.Equal("bad_request", env.Error.Code)
	})
}

func (s *HandlerSuite) TestIssue() {
	body := `{
		"subjectUserId": "` + testutil.TestIDs.UserID1.String() + `",
		"subjectType": "Player",
		"fullName": "Ada Okafor",
		"stateId": "lagos",
		"stateName": "Lagos",
		"federationIdNumber": "NGF-000123",
		"nationality": "NG",
		"expirationDate": "2027-06-30"
	}`

	s.Run("created", func() {
		s.service.EXPECT().Issue(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req models.IssueRequest) (*models.Credential, error) {
				s.Equal(testutil.TestIDs.UserID1, req.SubjectUserID)
				s.Equal(models.SubjectPlayer, req.SubjectType)
				s.Equal(id.StateID("lagos"), req.StateID)
				s.Require().NotNil(req.ExpirationDate)
				s.Equal("2027-06-30", req.ExpirationDate.Format("2006-01-02"))
				return s.credential(), nil
			})

		rec, env := s.do(http.MethodPost, "/api/credentials", id.RoleAdmin, body)
		s.Equal(http.StatusCreated, rec.Code)

		var got CredentialResponse
		s.decodeData(env, &got)
		s.Equal(testutil.TestIDs.CredentialID1.String(), got.ID)
		s.Equal("https://verify.example.org/verify/"+got.ID, got.VerificationURL)
	})

	s.Run("malformed subject id is rejected before the service", func() {
		rec, env := s.do(http.MethodPost, "/api/credentials", id.RoleAdmin, `{"subjectUserId":"nope"}`)
		s.Equal(http.StatusBadRequest, rec.Code)
		s.False(env.Success)
	})

	s.Run("duplicate federation id", func() {
		s.service.EXPECT().Issue(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeDuplicateFederationID, "federation id number is already held"))

		rec, env := s.do(http.MethodPost, "/api/credentials", id.RoleAdmin, body)
		s.Equal(http.StatusConflict, rec.Code)
		s.Equal("duplicate_federation_id", env.Error.Code)
	})

	s.Run("verifiers cannot issue", func() {
		rec, _ := s.do(http.MethodPost, "/api/credentials", id.RoleVerifier, body)
		s.Equal(http.StatusForbidden, rec.Code)
	})
}

func (s *HandlerSuite) TestChangeStatus() {
	path := "/api/credentials/" + testutil.TestIDs.CredentialID1.String() + "/status"

	s.Run("suspends", func() {
		cred := s.credential()
		cred.Status = models.StatusSuspended
		s.service.EXPECT().ChangeStatus(gomock.Any(), models.StatusChangeRequest{
			ID:     testutil.TestIDs.CredentialID1,
			Target: models.StatusSuspended,
			Reason: "doping investigation",
		}).Return(cred, nil)

		rec, env := s.do(http.MethodPut, path, id.RoleAdmin, `{"status":"SUSPENDED","reason":" doping investigation "}`)
		s.Equal(http.StatusOK, rec.Code)

		var got CredentialResponse
		s.decodeData(env, &got)
		s.Equal(models.StatusSuspended, got.Status)
	})

	s.Run("reason required", func() {
		rec, env := s.do(http.MethodPut, path, id.RoleAdmin, `{"status":"revoked","reason":"   "}`)
		s.Equal(http.StatusBadRequest, rec.Code)
		s.Equal("validation_error", env.Error.Code)
	})

	s.Run("reason too long", func() {
		long := strings.Repeat("x", 501)
		rec, _ := s.do(http.MethodPut, path, id.RoleAdmin, `{"status":"revoked","reason":"`+long+`"}`)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("unknown status", func() {
		rec, env := s.do(http.MethodPut, path, id.RoleAdmin, `{"status":"archived","reason":"x"}`)
		s.Equal(http.StatusBadRequest, rec.Code)
		s.Equal("bad_request", env.Error.Code)
	})

	s.Run("illegal transition", func() {
		s.service.EXPECT().ChangeStatus(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeIllegalTransition, "cannot move revoked credential to active"))

		rec, env := s.do(http.MethodPut, path, id.RoleAdmin, `{"status":"active","reason":"appeal"}`)
		s.Equal(http.StatusConflict, rec.Code)
		s.Equal("illegal_transition", env.Error.Code)
	})
}

func (s *HandlerSuite) TestRenew() {
	path := "/api/credentials/" + testutil.TestIDs.CredentialID1.String() + "/renew"

	s.Run("default extension is left to the service", func() {
		s.service.EXPECT().Renew(gomock.Any(), models.RenewRequest{ID: testutil.TestIDs.CredentialID1}).
			Return(s.credential(), nil)

		rec, _ := s.do(http.MethodPut, path, id.RoleAdmin, `{}`)
		s.Equal(http.StatusOK, rec.Code)
	})

	s.Run("explicit extension", func() {
		s.service.EXPECT().Renew(gomock.Any(), models.RenewRequest{ID: testutil.TestIDs.CredentialID1, ExtensionMonths: 24}).
			Return(s.credential(), nil)

		rec, _ := s.do(http.MethodPut, path, id.RoleAdmin, `{"extensionMonths":24}`)
		s.Equal(http.StatusOK, rec.Code)
	})

	s.Run("out of range", func() {
		rec, env := s.do(http.MethodPut, path, id.RoleAdmin, `{"extensionMonths":61}`)
		s.Equal(http.StatusBadRequest, rec.Code)
		s.Equal("validation_error", env.Error.Code)
	})
}

func (s *HandlerSuite) TestListBySubject() {
	owner := testutil.TestIDs.UserID1
	path := "/api/credentials/user/" + owner.String()
	page := models.PageResult[*models.Credential]{Items: []*models.Credential{s.credential()}, Total: 1, Limit: 20}

	s.Run("the subject may list their own", func() {
		s.service.EXPECT().ListBySubject(gomock.Any(), owner, models.Page{Limit: 20}).Return(page, nil)

		rec, env := s.doAs(http.MethodGet, path, id.RoleMember, owner, "")
		s.Equal(http.StatusOK, rec.Code)

		var got PageResponse[CredentialResponse]
		s.decodeData(env, &got)
		s.Equal(1, got.Total)
		s.Len(got.Items, 1)
	})

	s.Run("admin with explicit page", func() {
		s.service.EXPECT().ListBySubject(gomock.Any(), owner, models.Page{Limit: 100, Offset: 5}).Return(page, nil)

		rec, _ := s.do(http.MethodGet, path+"?limit=500&offset=5", id.RoleAdmin, "")
		s.Equal(http.StatusOK, rec.Code)
	})

	s.Run("another member is forbidden", func() {
		rec, _ := s.doAs(http.MethodGet, path, id.RoleMember, testutil.TestIDs.UserID2, "")
		s.Equal(http.StatusForbidden, rec.Code)
	})

	s.Run("malformed user id", func() {
		rec, _ := s.do(http.MethodGet, "/api/credentials/user/not-a-uuid", id.RoleAdmin, "")
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("negative offset", func() {
		rec, _ := s.do(http.MethodGet, path+"?offset=-1", id.RoleAdmin, "")
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *HandlerSuite) TestListByState() {
	s.service.EXPECT().ListByState(gomock.Any(), models.StateFilter{
		StateID:     "lagos",
		SubjectType: models.SubjectCoach,
		Status:      models.StatusExpired,
	}, models.Page{Limit: 10}).Return(models.PageResult[*models.Credential]{Limit: 10}, nil)

	rec, env := s.do(http.MethodGet, "/api/credentials/state/lagos?userType=coach&status=Expired&limit=10", id.RoleAdmin, "")
	s.Equal(http.StatusOK, rec.Code)

	var got PageResponse[CredentialResponse]
	s.decodeData(env, &got)
	s.NotNil(got.Items)
	s.Empty(got.Items)

	rec, _ = s.do(http.MethodGet, "/api/credentials/state/lagos?limit=ten", id.RoleAdmin, "")
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestExpiring() {
	s.service.EXPECT().Expiring(gomock.Any(), 7, models.Page{Limit: 20}).
		Return(models.PageResult[*models.Credential]{Items: []*models.Credential{s.credential()}, Total: 1, Limit: 20}, nil)

	rec, _ := s.do(http.MethodGet, "/api/credentials/expiring?days=7", id.RoleAdmin, "")
	s.Equal(http.StatusOK, rec.Code)

	s.service.EXPECT().Expiring(gomock.Any(), 400, gomock.Any()).
		Return(models.PageResult[*models.Credential]{}, dErrors.New(dErrors.CodeValidation, "days must be between 1 and 365"))
	rec, env := s.do(http.MethodGet, "/api/credentials/expiring?days=400", id.RoleAdmin, "")
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("validation_error", env.Error.Code)
}

func (s *HandlerSuite) TestStats() {
	stats := models.NewStats(requestcontext.Now(context.Background()))
	stats.Total = 2
	stats.ByStatus[models.StatusActive] = 2
	s.service.EXPECT().Stats(gomock.Any()).Return(stats, nil)

	rec, env := s.do(http.MethodGet, "/api/credentials/stats", id.RoleAdmin, "")
	s.Equal(http.StatusOK, rec.Code)

	var got models.Stats
	s.decodeData(env, &got)
	s.Equal(2, got.Total)
	s.Equal(2, got.ByStatus[models.StatusActive])
	s.Contains(got.ByStatus, models.StatusRevoked)

	rec, _ = s.do(http.MethodGet, "/api/credentials/stats", id.RoleVerifier, "")
	s.Equal(http.StatusForbidden, rec.Code)
}

func (s *HandlerSuite) TestGetAndEvents() {
	credID := testutil.TestIDs.CredentialID1

	s.service.EXPECT().Get(gomock.Any(), credID).Return(nil, dErrors.New(dErrors.CodeNotFound, "credential not found"))
	rec, env := s.do(http.MethodGet, "/api/credentials/"+credID.String(), id.RoleAdmin, "")
	s.Equal(http.StatusNotFound, rec.Code)
	s.Equal("not_found", env.Error.Code)

	event := models.NewVerificationEvent(credID.String(), requestcontext.Now(context.Background()), models.ReasonTampered,
		models.VerifierContext{UserID: testutil.TestIDs.UserID2, Role: id.RoleVerifier, Device: "mobile", Channel: models.ChannelBulk})
	s.service.EXPECT().ListEvents(gomock.Any(), credID.String(), models.Page{Limit: 20}).
		Return(models.PageResult[models.VerificationEvent]{Items: []models.VerificationEvent{event}, Total: 1, Limit: 20}, nil)

	rec, env = s.do(http.MethodGet, "/api/credentials/"+credID.String()+"/events", id.RoleAdmin, "")
	s.Equal(http.StatusOK, rec.Code)

	var got PageResponse[EventResponse]
	s.decodeData(env, &got)
	s.Require().Len(got.Items, 1)
	s.Equal("invalid", got.Items[0].Result)
	s.Equal(models.ReasonTampered, got.Items[0].Reason)
	s.Equal(testutil.TestIDs.UserID2.String(), got.Items[0].VerifierID)
	s.Equal(models.ChannelBulk, got.Items[0].Channel)
}

func (s *HandlerSuite) TestExport() {
	credID := testutil.TestIDs.CredentialID1

	s.Run("uploads artifact", func() {
		s.exporter.EXPECT().Export(gomock.Any(), credID, export.KindImage).Return(&export.Result{
			Key:         "credentials/player/ada/x-image.json",
			URL:         "https://cdn.example.org/x",
			ContentType: export.ManifestContentType,
			Size:        42,
		}, nil)

		rec, env := s.do(http.MethodPost, "/api/credentials/"+credID.String()+"/image", id.RoleAdmin, "")
		s.Equal(http.StatusOK, rec.Code)

		var got export.Result
		s.decodeData(env, &got)
		s.Equal(int64(42), got.Size)
	})

	s.Run("untrusted credential", func() {
		s.exporter.EXPECT().Export(gomock.Any(), credID, export.KindPDF).
			Return(nil, dErrors.New(dErrors.CodeConflict, "credential is suspended"))

		rec, _ := s.do(http.MethodGet, "/api/credentials/"+credID.String()+"/pdf", id.RoleAdmin, "")
		s.Equal(http.StatusConflict, rec.Code)
	})

	s.Run("not configured", func() {
		router := s.newRouter(New(s.service, nil, slog.New(slog.DiscardHandler)))
		req := httptest.NewRequest(http.MethodGet, "/api/credentials/"+credID.String()+"/pdf", nil)
		req.Header.Set(headerRole, id.RoleAdmin.String())
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		s.Equal(http.StatusNotImplemented, rec.Code)
	})
}
