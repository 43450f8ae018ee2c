package miniapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/digkill/TGMysticBot/internal/auth"
	"github.com/digkill/TGMysticBot/internal/metrics"
	"github.com/digkill/TGMysticBot/internal/models"
	"github.com/digkill/TGMysticBot/internal/service"
)

const (
	initDataHeader = "X-Telegram-InitData"
	historyLimit   = 10
	promptsLimit   = 20
	maxBodyBytes   = 16 << 10
)

type Generator interface {
	Generate(ctx context.Context, req service.GenerationRequest) (*service.GenerationResult, error)
}

type Accounts interface {
	Register(ctx context.Context, profile models.Profile, startParam string) (*service.Registration, error)
	ReferralLink(userID int64) string
}

type History interface {
	ListByUser(ctx context.Context, userID int64, limit int) ([]models.Generation, error)
}

type Prompts interface {
	Latest(ctx context.Context, limit int) ([]models.Prompt, error)
}

type Packs interface {
	List(ctx context.Context, activeOnly bool) ([]models.Pack, error)
}

type Invoices interface {
	InvoiceLink(ctx context.Context, packCode string) (string, *models.Pack, error)
}

type Config struct {
	Addr           string
	AllowedOrigins []string
	RatePerSecond  float64
	RateBurst      int
}

type Server struct {
	cfg       Config
	log       *slog.Logger
	gate      service.Authorizer
	generator Generator
	accounts  Accounts
	history   History
	prompts   Prompts
	packs     Packs
	invoices  Invoices
	limiter   *userLimiter
	handler   http.Handler
}

func NewServer(cfg Config, log *slog.Logger, gate service.Authorizer, generator Generator, accounts Accounts, history History, prompts Prompts, packs Packs, invoices Invoices) *Server {
	s := &Server{
		cfg:       cfg,
		log:       log,
		gate:      gate,
		generator: generator,
		accounts:  accounts,
		history:   history,
		prompts:   prompts,
		packs:     packs,
		invoices:  invoices,
		limiter:   newUserLimiter(cfg.RatePerSecond, cfg.RateBurst),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.InstrumentHandler)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
	r.Route("/api", func(api chi.Router) {
		api.Use(s.authenticate)
		api.Use(s.rateLimit)
		api.Get("/me", s.handleMe)
		api.Get("/prompts", s.handlePrompts)
		api.Get("/packs", s.handlePacks)
		api.Get("/history", s.handleHistory)
		api.Post("/invoice", s.handleInvoice)
		api.Post("/generate", s.handleGenerate)
	})

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", initDataHeader},
	})
	s.handler = c.Handler(r)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		// /api/generate holds the connection for the whole poll loop.
		WriteTimeout: 3 * time.Minute,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("mini-app api shutdown error", "err", err)
		}
	}()

	s.log.Info("mini-app api listening", "addr", s.cfg.Addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("mini-app listen: %w", err)
	}
	return nil
}

type ctxKey struct{}

func identityFrom(ctx context.Context) *auth.Identity {
	id, _ := ctx.Value(ctxKey{}).(*auth.Identity)
	return id
}

// initData reads the raw WebApp initData from the request headers.
func initData(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(initDataHeader)); v != "" {
		return v
	}
	if v, ok := strings.CutPrefix(r.Header.Get("Authorization"), "tma "); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := s.gate.Authenticate(initData(r))
		if err != nil {
			s.log.Debug("mini-app auth rejected", "path", r.URL.Path, "err", err)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := identityFrom(r.Context())
		if id != nil && !s.limiter.allow(id.UserID) {
			s.log.Warn("mini-app rate limited", "user_id", id.UserID, "path", r.URL.Path)
			writeError(w, http.StatusTooManyRequests, "rate_limited")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authorize applies the channel gate and writes the refusal when it fails.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	id := identityFrom(r.Context())
	if err := s.gate.Authorize(r.Context(), id); err != nil {
		s.writeGateError(w, err)
		return nil, false
	}
	return id, true
}

func (s *Server) writeGateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, auth.ErrNotSubscribed), errors.Is(err, auth.ErrCheckUnavailable):
		writeError(w, http.StatusForbidden, "not_subscribed")
	default:
		s.log.Error("authorize mini-app caller", "err", err)
		writeError(w, http.StatusInternalServerError, "internal")
	}
}

type meResponse struct {
	User         *models.User `json:"user"`
	ReferralLink string       `json:"referral_link"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := s.authorize(w, r)
	if !ok {
		return
	}
	reg, err := s.accounts.Register(r.Context(), id.Profile(), id.StartParam)
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{User: reg.User, ReferralLink: s.accounts.ReferralLink(id.UserID)})
}

func (s *Server) handlePrompts(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorize(w, r); !ok {
		return
	}
	items, err := s.prompts.Latest(r.Context(), promptsLimit)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if items == nil {
		items = []models.Prompt{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handlePacks(w http.ResponseWriter, r *http.Request) {
	packs, err := s.packs.List(r.Context(), true)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if packs == nil {
		packs = []models.Pack{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": packs})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := s.authorize(w, r)
	if !ok {
		return
	}
	items, err := s.history.ListByUser(r.Context(), id.UserID, historyLimit)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if items == nil {
		items = []models.Generation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type invoiceRequest struct {
	PackID string `json:"pack_id"`
}

func (s *Server) handleInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := s.authorize(w, r)
	if !ok {
		return
	}
	var req invoiceRequest
	if err := decodeJSON(w, r, &req); err != nil || strings.TrimSpace(req.PackID) == "" {
		writeError(w, http.StatusBadRequest, "pack_required")
		return
	}
	if _, err := s.accounts.Register(r.Context(), id.Profile(), id.StartParam); err != nil {
		s.internalError(w, err)
		return
	}
	link, pack, err := s.invoices.InvoiceLink(r.Context(), req.PackID)
	if errors.Is(err, service.ErrPackNotFound) {
		writeError(w, http.StatusNotFound, "pack_not_found")
		return
	}
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "url": link, "pack": pack})
}

type generateRequest struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio"`
}

type generateResponse struct {
	OK     bool   `json:"ok"`
	URL    string `json:"url,omitempty"`
	TaskID string `json:"task_id,omitempty"`
	Status string `json:"status,omitempty"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "prompt_required")
		return
	}

	res, err := s.generator.Generate(r.Context(), service.GenerationRequest{
		InitData:    initData(r),
		Prompt:      req.Prompt,
		AspectRatio: req.AspectRatio,
	})
	if err != nil {
		s.writeGenerationError(w, r, err)
		return
	}
	if res.Pending() {
		writeJSON(w, http.StatusOK, generateResponse{OK: true, TaskID: res.TaskID, Status: string(res.Status)})
		return
	}
	writeJSON(w, http.StatusOK, generateResponse{OK: true, URL: res.URL})
}

func (s *Server) writeGenerationError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case auth.IsDenied(err):
		s.writeGateError(w, err)
	case errors.Is(err, service.ErrPromptRequired):
		writeError(w, http.StatusBadRequest, "prompt_required")
	case errors.Is(err, service.ErrInsufficientCredits):
		writeError(w, http.StatusPaymentRequired, "no_credits")
	case errors.Is(err, service.ErrGenerationFailed):
		writeError(w, http.StatusInternalServerError, "gen_failed")
	default:
		s.log.Error("mini-app generate", "request_id", middleware.GetReqID(r.Context()), "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "gen_error", Message: err.Error()})
	}
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error("mini-app handler error", "err", err)
	writeError(w, http.StatusInternalServerError, "internal")
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, errorResponse{Error: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
