package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/digkill/TGMysticBot/internal/metrics"
	"github.com/digkill/TGMysticBot/internal/models"
	"github.com/digkill/TGMysticBot/internal/repository"
	"github.com/digkill/TGMysticBot/internal/service"
)

// Telegram rejects bursts above roughly 30 messages per second per bot.
const broadcastPerSecond = 25

type Users interface {
	Get(ctx context.Context, userID int64) (*models.User, error)
	Grant(ctx context.Context, userID int64, amount int) error
	ListTelegramIDs(ctx context.Context) ([]int64, error)
}

type Packs interface {
	List(ctx context.Context, activeOnly bool) ([]models.Pack, error)
	Create(ctx context.Context, input service.CreatePackInput) (*models.Pack, error)
	Update(ctx context.Context, id int64, input service.UpdatePackInput) (*models.Pack, error)
	Delete(ctx context.Context, id int64) error
}

type Promos interface {
	List(ctx context.Context) ([]models.PromoCode, error)
	GetByID(ctx context.Context, id int64) (*models.PromoCode, error)
	Create(ctx context.Context, code string, maxUses int) (*models.PromoCode, error)
	Update(ctx context.Context, promo *models.PromoCode) (*models.PromoCode, error)
	Delete(ctx context.Context, id int64) error
}

type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Config struct {
	Addr     string
	Username string
	Password string
}

type Server struct {
	cfg       Config
	log       *slog.Logger
	users     Users
	packs     Packs
	promos    Promos
	bot       Sender
	router    *chi.Mux
	broadcast *rate.Limiter
}

func NewServer(cfg Config, log *slog.Logger, users Users, packs Packs, promos Promos, bot Sender) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		cfg:       cfg,
		log:       log,
		users:     users,
		packs:     packs,
		promos:    promos,
		bot:       bot,
		router:    r,
		broadcast: rate.NewLimiter(rate.Limit(broadcastPerSecond), 1),
	}
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
	r.Group(func(protected chi.Router) {
		protected.Use(s.basicAuthMiddleware())
		protected.Use(metrics.InstrumentHandler)
		protected.Handle("/metrics", metrics.Handler())
		protected.Post("/broadcast", s.handleBroadcast)
		protected.Route("/users/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetUser)
			r.Post("/credits", s.handleGrantCredits)
		})
		protected.Route("/packs", func(r chi.Router) {
			r.Get("/", s.handleListPacks)
			r.Post("/", s.handleCreatePack)
			r.Put("/{id}", s.handleUpdatePack)
			r.Delete("/{id}", s.handleDeletePack)
		})
		protected.Route("/promo-codes", func(r chi.Router) {
			r.Get("/", s.handleListPromos)
			r.Post("/", s.handleCreatePromo)
			r.Put("/{id}", s.handleUpdatePromo)
			r.Delete("/{id}", s.handleDeletePromo)
		})
	})
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("admin shutdown error", "err", err)
		}
	}()

	s.log.Info("admin panel listening", "addr", s.cfg.Addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin listen: %w", err)
	}
	return nil
}

type broadcastRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "message required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	ids, err := s.users.ListTelegramIDs(ctx)
	if err != nil {
		s.internalError(w, err)
		return
	}

	count := 0
	for _, id := range ids {
		if err := s.broadcast.Wait(ctx); err != nil {
			break
		}
		if _, err := s.bot.Send(tgbotapi.NewMessage(id, req.Message)); err != nil {
			s.log.Error("send broadcast", "user", id, "err", err)
			continue
		}
		count++
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"sent":  count,
		"total": len(ids),
	})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	user, err := s.users.Get(r.Context(), id)
	if errors.Is(err, repository.ErrUserNotFound) {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, user)
}

type grantRequest struct {
	Amount int `json:"amount"`
}

func (s *Server) handleGrantCredits(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Amount <= 0 {
		http.Error(w, "amount must be positive", http.StatusBadRequest)
		return
	}
	if err := s.users.Grant(r.Context(), id, req.Amount); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		s.internalError(w, err)
		return
	}
	user, err := s.users.Get(r.Context(), id)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.log.Info("credits granted", "user_id", id, "amount", req.Amount)
	s.writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleListPacks(w http.ResponseWriter, r *http.Request) {
	packs, err := s.packs.List(r.Context(), false)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, packs)
}

func (s *Server) handleCreatePack(w http.ResponseWriter, r *http.Request) {
	var req packRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	pack, err := s.packs.Create(r.Context(), service.CreatePackInput{
		Code:        req.Code,
		Title:       req.Title,
		Description: req.Description,
		Stars:       req.Stars,
		Credits:     req.Credits,
		IsActive:    req.IsActive,
	})
	if err != nil {
		s.badRequest(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, pack)
}

func (s *Server) handleUpdatePack(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req packUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	pack, err := s.packs.Update(r.Context(), id, service.UpdatePackInput{
		Title:       req.Title,
		Description: req.Description,
		Stars:       req.Stars,
		Credits:     req.Credits,
		IsActive:    req.IsActive,
	})
	if err != nil {
		s.badRequest(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, pack)
}

func (s *Server) handleDeletePack(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if err := s.packs.Delete(r.Context(), id); err != nil {
		s.badRequest(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListPromos(w http.ResponseWriter, r *http.Request) {
	promos, err := s.promos.List(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, promos)
}

func (s *Server) handleCreatePromo(w http.ResponseWriter, r *http.Request) {
	var req promoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Code == "" || req.MaxUses <= 0 {
		http.Error(w, "code and max_uses required", http.StatusBadRequest)
		return
	}
	promo, err := s.promos.Create(r.Context(), req.Code, req.MaxUses)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, promo)
}

func (s *Server) handleUpdatePromo(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req promoUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	existing, err := s.promos.GetByID(r.Context(), id)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if existing == nil {
		http.Error(w, "promo not found", http.StatusNotFound)
		return
	}
	if req.Code != nil && *req.Code != "" {
		existing.Code = *req.Code
	}
	if req.MaxUses != nil && *req.MaxUses > 0 {
		existing.MaxUses = *req.MaxUses
	}
	if req.Uses != nil && *req.Uses >= 0 {
		existing.Uses = *req.Uses
	}
	if existing.Uses > existing.MaxUses {
		http.Error(w, "uses cannot exceed max_uses", http.StatusBadRequest)
		return
	}
	promo, err := s.promos.Update(r.Context(), existing)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, promo)
}

func (s *Server) handleDeletePromo(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if err := s.promos.Delete(r.Context(), id); err != nil {
		s.badRequest(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) basicAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || user != s.cfg.Username || pass != s.cfg.Password {
				w.Header().Set("WWW-Authenticate", `Basic realm="mysticbot"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error("admin handler error", "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func parseID(value string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(value), 10, 64)
}

type packRequest struct {
	Code        string `json:"code"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Stars       int    `json:"stars"`
	Credits     int    `json:"credits"`
	IsActive    *bool  `json:"is_active"`
}

type packUpdateRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Stars       *int    `json:"stars"`
	Credits     *int    `json:"credits"`
	IsActive    *bool   `json:"is_active"`
}

type promoRequest struct {
	Code    string `json:"code"`
	MaxUses int    `json:"max_uses"`
}

type promoUpdateRequest struct {
	Code    *string `json:"code"`
	MaxUses *int    `json:"max_uses"`
	Uses    *int    `json:"uses"`
}
