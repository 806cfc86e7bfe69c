package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sabiprep/sabiprep/internal/admin"
	"github.com/sabiprep/sabiprep/internal/audit"
	"github.com/sabiprep/sabiprep/internal/auth"
	"github.com/sabiprep/sabiprep/internal/goals"
	"github.com/sabiprep/sabiprep/internal/guest"
	"github.com/sabiprep/sabiprep/internal/llm"
	"github.com/sabiprep/sabiprep/internal/question"
	"github.com/sabiprep/sabiprep/internal/review"
	"github.com/sabiprep/sabiprep/internal/session"
	"github.com/sabiprep/sabiprep/internal/store"
)

const (
	testAdminEmail    = "admin@sabiprep.test"
	testAdminPassword = "correct horse"
)

type testEnv struct {
	handler http.Handler
	store   *store.Store
	mock    *llm.MockProvider
	auth    *auth.Service
	adminID string
}

func newTestEnv(t *testing.T, guestLimit int) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.Open(ctx, store.DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	st.SetDailyGoal(2)

	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminPassword), bcrypt.MinCost)
	require.NoError(t, err)
	adminID := auth.AccountID(testAdminEmail)
	require.NoError(t, st.UpsertUser(ctx, &admin.User{ID: adminID, Email: testAdminEmail, Role: auth.RoleAdmin}))

	rec := audit.NewRecorder(st, logger)
	guests := guest.NewPolicy(st, guestLimit)
	mgr := session.NewManager(session.Config{Store: st, Logger: logger}, func(id string) session.GuestGate {
		return guests.ForDevice(id)
	})
	t.Cleanup(mgr.Shutdown)

	mock := llm.NewMockProvider()
	authSvc := auth.NewService("test-secret", 0)

	h := New(Deps{
		Sessions:  mgr,
		Goals:     goals.NewService(st, 2),
		Guests:    guests,
		Questions: admin.NewQuestions(st, rec, logger),
		Users:     admin.NewUsers(st, rec),
		Reviews:   review.NewWorkflow(st, review.NewLLMGenerator(mock, review.DefaultConfig()), rec, logger, 2),
		Audit:     rec,
		Auth:      authSvc,
		Admin:     AdminAccount{ID: adminID, Email: testAdminEmail, PassHash: string(hash)},
		Logger:    logger,
	})
	return &testEnv{handler: h, store: st, mock: mock, auth: authSvc, adminID: adminID}
}

func (e *testEnv) token(t *testing.T, userID string, role auth.Role) string {
	t.Helper()
	tok, _, err := e.auth.Issue(userID, userID+"@sabiprep.test", role)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) adminToken(t *testing.T) string {
	return e.token(t, e.adminID, auth.RoleAdmin)
}

// request carries optional credentials for do.
type request struct {
	token  string
	cookie *http.Cookie
}

func (e *testEnv) do(t *testing.T, method, path string, body any, req request) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	r := httptest.NewRequest(method, path, rd)
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	if req.token != "" {
		r.Header.Set("Authorization", "Bearer "+req.token)
	}
	if req.cookie != nil {
		r.AddCookie(req.cookie)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (e *testEnv) seedQuestions(t *testing.T, n int) []question.Question {
	t.Helper()
	out := make([]question.Question, 0, n)
	for i := range n {
		q := &question.Question{
			SubjectID:     "chem",
			TopicID:       "acids",
			Text:          fmt.Sprintf("Question %d", i+1),
			OptionA:       "Oxygen",
			OptionB:       "Carbon dioxide",
			OptionC:       "Hydrogen",
			OptionD:       "Nitrogen",
			CorrectAnswer: question.OptionB,
			Status:        question.StatusPublished,
		}
		require.NoError(t, e.store.CreateQuestion(context.Background(), q))
		out = append(out, *q)
	}
	return out
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, 5)
	w := env.do(t, http.MethodGet, "/healthz", nil, request{})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t, 5)

	w := env.do(t, http.MethodPost, "/api/auth/login", loginRequest{Email: testAdminEmail, Password: "wrong"}, request{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodPost, "/api/auth/login", loginRequest{Email: "nobody@sabiprep.test", Password: testAdminPassword}, request{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodPost, "/api/auth/login", loginRequest{Email: "  ADMIN@sabiprep.test", Password: testAdminPassword}, request{})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[loginResponse](t, w)
	assert.Equal(t, env.adminID, resp.UserID)
	assert.Equal(t, auth.RoleAdmin, resp.Role)

	claims, err := env.auth.Parse(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, env.adminID, claims.Subject)

	w = env.do(t, http.MethodPost, "/api/auth/logout", nil, request{token: resp.Token})
	assert.Equal(t, http.StatusNoContent, w.Code)

	entries, total, err := env.store.ListAudit(context.Background(), audit.Filter{EntityType: audit.EntityUser})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, entries, 2)
	assert.ElementsMatch(t, []audit.Action{audit.ActionLogin, audit.ActionLogout},
		[]audit.Action{entries[0].Action, entries[1].Action})
	assert.Equal(t, env.adminID, entries[0].AdminID)
}

func TestLogin_Suspended(t *testing.T) {
	env := newTestEnv(t, 5)
	ctx := context.Background()
	require.NoError(t, env.store.UpdateUserStatus(ctx, env.adminID, admin.UserSuspended, time.Now()))

	w := env.do(t, http.MethodPost, "/api/auth/login", loginRequest{Email: testAdminEmail, Password: testAdminPassword}, request{})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	env := newTestEnv(t, 5)

	w := env.do(t, http.MethodGet, "/api/admin/questions", nil, request{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodGet, "/api/admin/questions", nil, request{token: env.token(t, "student-1", auth.RoleStudent)})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodGet, "/api/admin/questions", nil, request{token: "garbage"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{session.ErrSessionNotFound, http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", admin.ErrNotFound), http.StatusNotFound},
		{session.ErrInvalidStart, http.StatusBadRequest},
		{review.ErrRejectionReasonRequired, http.StatusBadRequest},
		{admin.ErrInvalidQuestion, http.StatusUnprocessableEntity},
		{session.ErrGuestLimitReached, http.StatusForbidden},
		{review.ErrNoPendingReview, http.StatusConflict},
		{session.ErrHintLocked, http.StatusConflict},
		{review.ErrNoGenerator, http.StatusServiceUnavailable},
		{fmt.Errorf("generate: %w", &llm.ErrRateLimit{}), http.StatusTooManyRequests},
		{fmt.Errorf("generate: %w", &llm.ErrProviderUnavailable{}), http.StatusBadGateway},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusOf(tt.err), tt.err.Error())
	}
}
