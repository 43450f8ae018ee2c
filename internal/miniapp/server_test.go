package miniapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/TGMysticBot/internal/auth"
	"github.com/digkill/TGMysticBot/internal/freepik"
	"github.com/digkill/TGMysticBot/internal/models"
	"github.com/digkill/TGMysticBot/internal/service"
)

// tokenGate accepts initData of the form "user:<id>".
type tokenGate struct {
	notSubscribed map[int64]bool
}

func (g *tokenGate) Authenticate(initData string) (*auth.Identity, error) {
	raw, ok := strings.CutPrefix(initData, "user:")
	if !ok {
		return nil, auth.ErrUnauthorized
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, auth.ErrUnauthorized
	}
	return &auth.Identity{UserID: id, Username: "u" + raw}, nil
}

func (g *tokenGate) Authorize(_ context.Context, id *auth.Identity) error {
	if id == nil {
		return auth.ErrUnauthorized
	}
	if g.notSubscribed[id.UserID] {
		return auth.ErrNotSubscribed
	}
	return nil
}

type stubGenerator struct {
	gate *tokenGate
	res  *service.GenerationResult
	err  error
	got  service.GenerationRequest
}

func (g *stubGenerator) Generate(ctx context.Context, req service.GenerationRequest) (*service.GenerationResult, error) {
	g.got = req
	id, err := g.gate.Authenticate(req.InitData)
	if err != nil {
		return nil, err
	}
	if err := g.gate.Authorize(ctx, id); err != nil {
		return nil, err
	}
	return g.res, g.err
}

type stubAccounts struct{}

func (stubAccounts) Register(_ context.Context, p models.Profile, _ string) (*service.Registration, error) {
	return &service.Registration{User: &models.User{ID: p.UserID, Username: p.Username, Credits: 2}}, nil
}

func (stubAccounts) ReferralLink(userID int64) string {
	return fmt.Sprintf("https://t.me/mystic_bot?start=%s", service.ReferralCode(userID))
}

type stubHistory struct{ limit int }

func (h *stubHistory) ListByUser(_ context.Context, userID int64, limit int) ([]models.Generation, error) {
	h.limit = limit
	return []models.Generation{{UserID: userID, TaskID: "t1", Status: models.GenerationCompleted}}, nil
}

type stubPrompts struct{}

func (stubPrompts) Latest(context.Context, int) ([]models.Prompt, error) { return nil, nil }

type stubPacks struct{}

func (stubPacks) List(context.Context, bool) ([]models.Pack, error) {
	return []models.Pack{{Code: "p10", Stars: 49, Credits: 10, IsActive: true}}, nil
}

type stubInvoices struct{}

func (stubInvoices) InvoiceLink(_ context.Context, code string) (string, *models.Pack, error) {
	if code != "p10" {
		return "", nil, service.ErrPackNotFound
	}
	return "https://t.me/$invoice", &models.Pack{Code: "p10", Stars: 49}, nil
}

type fixture struct {
	gate    *tokenGate
	gen     *stubGenerator
	history *stubHistory
	srv     *Server
}

func newFixture(rate float64, burst int) *fixture {
	gate := &tokenGate{notSubscribed: map[int64]bool{}}
	f := &fixture{
		gate:    gate,
		gen:     &stubGenerator{gate: gate},
		history: &stubHistory{},
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.srv = NewServer(Config{RatePerSecond: rate, RateBurst: burst}, log, gate, f.gen, stubAccounts{}, f.history, stubPrompts{}, stubPacks{}, stubInvoices{})
	return f
}

func (f *fixture) do(t *testing.T, method, path, initData, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if initData != "" {
		req.Header.Set(initDataHeader, initData)
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestHealthIsPublic(t *testing.T) {
	f := newFixture(0, 0)
	rec, body := f.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["ok"])
}

func TestMissingInitDataIsUnauthorized(t *testing.T) {
	f := newFixture(0, 0)
	rec, body := f.do(t, http.MethodGet, "/api/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", body["error"])
}

func TestAuthorizationHeaderTMA(t *testing.T) {
	f := newFixture(0, 0)
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "tma user:7")
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMe(t *testing.T) {
	f := newFixture(0, 0)
	rec, body := f.do(t, http.MethodGet, "/api/me", "user:42", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://t.me/mystic_bot?start=ref_16", body["referral_link"])
	user := body["user"].(map[string]any)
	assert.Equal(t, float64(42), user["user_id"])
}

func TestNotSubscribedIsForbidden(t *testing.T) {
	f := newFixture(0, 0)
	f.gate.notSubscribed[42] = true
	rec, body := f.do(t, http.MethodGet, "/api/history", "user:42", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "not_subscribed", body["error"])
}

func TestHistoryIsCapped(t *testing.T) {
	f := newFixture(0, 0)
	rec, body := f.do(t, http.MethodGet, "/api/history", "user:42", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, historyLimit, f.history.limit)
	assert.Len(t, body["items"], 1)
}

func TestPromptsEmptyListIsArray(t *testing.T) {
	f := newFixture(0, 0)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/prompts", nil)
	req.Header.Set(initDataHeader, "user:1")
	f.srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"items":[]}`, rec.Body.String())
}

func TestInvoice(t *testing.T) {
	f := newFixture(0, 0)

	rec, body := f.do(t, http.MethodPost, "/api/invoice", "user:42", `{"pack_id":"p10"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://t.me/$invoice", body["url"])

	rec, body = f.do(t, http.MethodPost, "/api/invoice", "user:42", `{"pack_id":"nope"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "pack_not_found", body["error"])

	rec, _ = f.do(t, http.MethodPost, "/api/invoice", "user:42", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateCompleted(t *testing.T) {
	f := newFixture(0, 0)
	f.gen.res = &service.GenerationResult{UserID: 42, TaskID: "t1", Status: models.GenerationCompleted, URL: "img://abc"}

	rec, body := f.do(t, http.MethodPost, "/api/generate", "user:42", `{"prompt":"a cat","aspect_ratio":"square_1_1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"ok": true, "url": "img://abc"}, body)
	assert.Equal(t, "user:42", f.gen.got.InitData)
	assert.Equal(t, "square_1_1", f.gen.got.AspectRatio)
}

func TestGeneratePending(t *testing.T) {
	f := newFixture(0, 0)
	f.gen.res = &service.GenerationResult{UserID: 42, TaskID: "t9", Status: models.GenerationInProgress}

	rec, body := f.do(t, http.MethodPost, "/api/generate", "user:42", `{"prompt":"a cat"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"ok": true, "task_id": "t9", "status": "IN_PROGRESS"}, body)
}

func TestGenerateErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"prompt", service.ErrPromptRequired, http.StatusBadRequest, "prompt_required"},
		{"credits", service.ErrInsufficientCredits, http.StatusPaymentRequired, "no_credits"},
		{"failed", service.ErrGenerationFailed, http.StatusInternalServerError, "gen_failed"},
		{"submission", fmt.Errorf("%w: %w", service.ErrSubmissionFailed, freepik.ErrProviderUnavailable), http.StatusInternalServerError, "gen_error"},
		{"gate", auth.ErrNotSubscribed, http.StatusForbidden, "not_subscribed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(0, 0)
			f.gen.err = tc.err

			rec, body := f.do(t, http.MethodPost, "/api/generate", "user:42", `{"prompt":"x"}`)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, body["error"])
			if tc.code == "gen_error" {
				assert.Contains(t, body["message"], "provider unavailable")
			}
		})
	}
}

func TestGenerateBadJSON(t *testing.T) {
	f := newFixture(0, 0)
	rec, body := f.do(t, http.MethodPost, "/api/generate", "user:42", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "prompt_required", body["error"])
}

func TestRateLimitedPerUser(t *testing.T) {
	f := newFixture(0.001, 2)

	for i := 0; i < 2; i++ {
		rec, _ := f.do(t, http.MethodGet, "/api/me", "user:42", "")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec, body := f.do(t, http.MethodGet, "/api/me", "user:42", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", body["error"])

	rec, _ = f.do(t, http.MethodGet, "/api/me", "user:43", "")
	assert.Equal(t, http.StatusOK, rec.Code, "other users keep their own bucket")
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(0, 0)
	req := httptest.NewRequest(http.MethodOptions, "/api/generate", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", initDataHeader)
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)

	assert.Less(t, rec.Code, 300)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestUserLimiterEvictsIdleBuckets(t *testing.T) {
	l := newUserLimiter(1, 1)
	now := time.Unix(1_800_000_000, 0)
	l.now = func() time.Time { return now }

	assert.True(t, l.allow(1))
	assert.False(t, l.allow(1))
	assert.True(t, l.allow(2))
	assert.Equal(t, 2, l.size())

	now = now.Add(2 * limiterIdleTTL)
	assert.True(t, l.allow(3))
	assert.Equal(t, 1, l.size())
}

func TestGenerateDeniedBeforeBody(t *testing.T) {
	f := newFixture(0, 0)
	rec, body := f.do(t, http.MethodPost, "/api/generate", "garbage", `{"prompt":"x"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", body["error"])
	assert.Empty(t, f.gen.got.Prompt)
}
