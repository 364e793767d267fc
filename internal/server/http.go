package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kayteedberserker/oreblogda-sub000/internal/clan"
	"github.com/kayteedberserker/oreblogda-sub000/internal/config"
	"github.com/kayteedberserker/oreblogda-sub000/internal/engagement"
	"github.com/kayteedberserker/oreblogda-sub000/internal/leaderboard"
	"github.com/kayteedberserker/oreblogda-sub000/internal/ledger"
	"github.com/kayteedberserker/oreblogda-sub000/internal/store"
	"github.com/kayteedberserker/oreblogda-sub000/internal/war"
)

const maxBodyBytes = 1 << 16

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	cfg         *config.Config
	db          Pinger
	rdb         *redis.Client
	hub         *Hub
	logger      *slog.Logger
	mux         *http.ServeMux
	wars        *war.Service
	clans       *clan.Service
	pipeline    *engagement.Pipeline
	ledger      *ledger.Ledger
	leaderboard *leaderboard.Service
	metrics     *Metrics
	limiter     *RateLimiter
}

// New builds the API server. db and rdb may be nil when running on the
// in-memory store; health then skips them and leaderboards are computed
// from a clan snapshot.
func New(cfg *config.Config, db Pinger, rdb *redis.Client, hub *Hub, metrics *Metrics, logger *slog.Logger) *Server {
	if metrics == nil {
		metrics = NewMetrics()
	}
	s := &Server{
		cfg:     cfg,
		db:      db,
		rdb:     rdb,
		hub:     hub,
		logger:  logger,
		mux:     http.NewServeMux(),
		metrics: metrics,
		limiter: NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
	}
	if rdb != nil {
		s.leaderboard = leaderboard.NewService(rdb)
	}
	s.routes()
	return s
}

func (s *Server) SetWarService(svc *war.Service) {
	s.wars = svc
}

func (s *Server) SetClanService(svc *clan.Service) {
	s.clans = svc
}

func (s *Server) SetPipeline(p *engagement.Pipeline) {
	s.pipeline = p
}

func (s *Server) SetLedger(l *ledger.Ledger) {
	s.ledger = l
}

// Limiter exposes the rate limiter so its cleanup loop can be run.
func (s *Server) Limiter() *RateLimiter {
	return s.limiter
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /metrics", s.metrics.ServeHTTP)
	if s.hub != nil {
		s.mux.Handle("GET /ws/wars/{warId}", s.hub)
	}

	// Clans
	s.mux.HandleFunc("POST /api/clans", s.handleCreateClan)
	s.mux.HandleFunc("GET /api/clans", s.handleListClans)
	s.mux.HandleFunc("GET /api/clans/{tag}", s.handleGetClan)
	s.mux.HandleFunc("POST /api/clans/{tag}/join", s.handleJoinClan)
	s.mux.HandleFunc("POST /api/clans/{tag}/leave", s.handleLeaveClan)
	s.mux.HandleFunc("POST /api/clans/{tag}/recruitment", s.handleRecruitment)
	s.mux.HandleFunc("POST /api/clans/{tag}/disband", s.handleDisband)
	s.mux.HandleFunc("POST /api/clans/{tag}/follow", s.handleFollow)
	s.mux.HandleFunc("GET /api/clans/{tag}/wars", s.handleWarHistory)
	s.mux.HandleFunc("GET /api/clans/{tag}/ledger", s.handleLedger)
	s.mux.HandleFunc("POST /api/clans/{tag}/spend", s.handleSpend)
	s.mux.HandleFunc("POST /api/clans/{tag}/refund", s.handleRefund)

	// Wars
	s.mux.HandleFunc("POST /api/wars", s.handleDeclare)
	s.mux.HandleFunc("GET /api/wars/{warId}", s.handleGetWar)
	s.mux.HandleFunc("POST /api/wars/{warId}/counter", s.handleCounter)
	s.mux.HandleFunc("POST /api/wars/{warId}/accept", s.handleAccept)
	s.mux.HandleFunc("POST /api/wars/{warId}/decline", s.handleDecline)

	// Engagement
	s.mux.HandleFunc("POST /api/interactions", s.handleInteraction)

	// Leaderboard
	s.mux.HandleFunc("GET /api/leaderboard", s.handleLeaderboard)
	s.mux.HandleFunc("GET /api/leaderboard/{tag}", s.handleLeaderboardPosition)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"status": "ok"}

	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			status["db"] = "down"
			status["status"] = "degraded"
		} else {
			status["db"] = "ok"
		}
	}

	if s.rdb != nil {
		if err := s.rdb.Ping(ctx).Err(); err != nil {
			status["redis"] = "down"
			status["status"] = "degraded"
		} else {
			status["redis"] = "ok"
		}
	}

	code := http.StatusOK
	if status["status"] != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (s *Server) handleCreateClan(w http.ResponseWriter, r *http.Request) {
	if s.clans == nil {
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}
	var req clan.Founding
	if !s.decode(w, r, &req) {
		return
	}
	c, err := s.clans.Create(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleListClans(w http.ResponseWriter, r *http.Request) {
	if s.clans == nil {
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}
	clans, err := s.clans.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, clans)
}

func (s *Server) handleGetClan(w http.ResponseWriter, r *http.Request) {
	if s.clans == nil {
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}
	c, err := s.clans.Get(r.Context(), r.PathValue("tag"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type memberRequest struct {
	UserID string `json:"userId"`
}

func (s *Server) handleJoinClan(w http.ResponseWriter, r *http.Request) {
	if s.clans == nil {
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}
	var req memberRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	if err := s.clans.Join(r.Context(), r.PathValue("tag"), req.UserID); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "joined"})
}

func (s *Server) handleLeaveClan(w http.ResponseWriter, r *http.Request) {
	if s.clans == nil {
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}
	var req memberRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.clans.Leave(r.Context(), r.PathValue("tag"), req.UserID); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "left"})
}

func (s *Server) handleRecruitment(w http.ResponseWriter, r *http.Request) {
	if s.clans == nil {
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}
	var req struct {
		ActorID string `json:"actorId"`
		Open    bool   `json:"open"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.clans.SetRecruitment(r.Context(), r.PathValue("tag"), req.ActorID, req.Open); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"recruitmentOpen": req.Open})
}

func (s *Server) handleDisband(w http.ResponseWriter, r *http.Request) {
	if s.clans == nil {
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}
	var req struct {
		ActorID string `json:"actorId"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.clans.Disband(r.Context(), r.PathValue("tag"), req.ActorID); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "disbanded"})
}

func (s *Server) handleFollow(w http.ResponseWriter, r *http.Request) {
	if s.clans == nil {
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}
	var req struct {
		Follow bool `json:"follow"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.clans.Follow(r.Context(), r.PathValue("tag"), req.Follow); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"following": req.Follow})
}

func (s *Server) handleWarHistory(w http.ResponseWriter, r *http.Request) {
	if s.wars == nil {
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}
	wars, err := s.wars.History(r.Context(), r.PathValue("tag"), queryInt(r, "limit", 20))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wars)
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}
	entries, err := s.ledger.History(r.Context(), store.NormalizeTag(r.PathValue("tag")), queryInt(r, "limit", 50))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type amountRequest struct {
	Amount int64 `json:"amount"`
}

func (s *Server) handleSpend(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}
	var req amountRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.ledger.Spend(r.Context(), store.NormalizeTag(r.PathValue("tag")), req.Amount); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"spent": req.Amount})
}

func (s *Server) handleRefund(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}
	var req amountRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.ledger.Refund(r.Context(), store.NormalizeTag(r.PathValue("tag")), req.Amount); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"refunded": req.Amount})
}

func (s *Server) handleDeclare(w http.ResponseWriter, r *http.Request) {
	if s.wars == nil {
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}
	var req war.Declaration
	if !s.decode(w, r, &req) {
		return
	}
	wr, err := s.wars.Declare(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.metrics.IncrDeclared()
	writeJSON(w, http.StatusCreated, wr)
}

func (s *Server) handleGetWar(w http.ResponseWriter, r *http.Request) {
	if s.wars == nil {
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}
	wr, err := s.wars.Get(r.Context(), r.PathValue("warId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wr)
}

func (s *Server) handleCounter(w http.ResponseWriter, r *http.Request) {
	if s.wars == nil {
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}
	var req struct {
		SenderTag string `json:"senderTag"`
		war.CounterOffer
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.SenderTag == "" {
		writeError(w, http.StatusBadRequest, "senderTag is required")
		return
	}
	wr, err := s.wars.Counter(r.Context(), r.PathValue("warId"), req.SenderTag, req.CounterOffer)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.metrics.IncrCounter()
	writeJSON(w, http.StatusOK, wr)
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	if s.wars == nil {
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}
	var req struct {
		ClanTag string `json:"clanTag"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.ClanTag == "" {
		writeError(w, http.StatusBadRequest, "clanTag is required")
		return
	}
	wr, err := s.wars.Accept(r.Context(), r.PathValue("warId"), req.ClanTag)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.metrics.IncrAccepted()
	writeJSON(w, http.StatusOK, wr)
}

func (s *Server) handleDecline(w http.ResponseWriter, r *http.Request) {
	if s.wars == nil {
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}
	wr, err := s.wars.Decline(r.Context(), r.PathValue("warId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wr)
}

func (s *Server) handleInteraction(w http.ResponseWriter, r *http.Request) {
	if s.pipeline == nil {
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}
	var req engagement.Event
	if !s.decode(w, r, &req) {
		return
	}
	out, err := s.pipeline.Record(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.metrics.IncrEvent()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	key, ok := sortKey(w, r)
	if !ok {
		return
	}
	count := int64(queryInt(r, "count", 50))
	if count > 100 {
		count = 100
	}

	if s.leaderboard != nil {
		entries, err := s.leaderboard.Top(r.Context(), key, count)
		if err == nil && len(entries) > 0 {
			writeJSON(w, http.StatusOK, entries)
			return
		}
		if err != nil {
			s.logger.Warn("cached leaderboard unavailable", "sort", key, "err", err)
		}
	}

	entries, err := s.rankSnapshot(r.Context(), key)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if int64(len(entries)) > count {
		entries = entries[:count]
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleLeaderboardPosition(w http.ResponseWriter, r *http.Request) {
	key, ok := sortKey(w, r)
	if !ok {
		return
	}
	tag := store.NormalizeTag(r.PathValue("tag"))

	if s.leaderboard != nil {
		entry, err := s.leaderboard.Position(r.Context(), key, tag)
		if err == nil && entry != nil {
			writeJSON(w, http.StatusOK, entry)
			return
		}
	}

	entries, err := s.rankSnapshot(r.Context(), key)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	for _, e := range entries {
		if e.Tag == tag {
			writeJSON(w, http.StatusOK, e)
			return
		}
	}
	writeError(w, http.StatusNotFound, "not ranked")
}

func (s *Server) rankSnapshot(ctx context.Context, key leaderboard.SortKey) ([]leaderboard.Entry, error) {
	if s.clans == nil {
		return []leaderboard.Entry{}, nil
	}
	clans, err := s.clans.List(ctx)
	if err != nil {
		return nil, err
	}
	return leaderboard.RankClans(clans, key), nil
}

func sortKey(w http.ResponseWriter, r *http.Request) (leaderboard.SortKey, bool) {
	key := leaderboard.SortKey(r.URL.Query().Get("sort"))
	if key == "" {
		key = leaderboard.ByTotalPoints
	}
	if !key.Valid() {
		writeError(w, http.StatusBadRequest, "unknown sort key")
		return "", false
	}
	return key, true
}

func queryInt(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return false
	}
	return true
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrClanNotFound), errors.Is(err, store.ErrWarNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInsufficientFunds), errors.Is(err, store.ErrInsufficientEscrow):
		return http.StatusPaymentRequired
	case errors.Is(err, clan.ErrNotLeader):
		return http.StatusForbidden
	case errors.Is(err, store.ErrConflictExists),
		errors.Is(err, store.ErrAlreadyAtWar),
		errors.Is(err, store.ErrStaleWar),
		errors.Is(err, store.ErrClanExists),
		errors.Is(err, store.ErrRosterFull),
		errors.Is(err, store.ErrRecruitmentClosed),
		errors.Is(err, store.ErrAlreadyMember),
		errors.Is(err, clan.ErrCannotDisband),
		errors.Is(err, clan.ErrLeaderCannotLeave):
		return http.StatusConflict
	case errors.Is(err, war.ErrSelfAcceptance),
		errors.Is(err, war.ErrAwaitingOpponent),
		errors.Is(err, war.ErrNotParticipant),
		errors.Is(err, war.ErrInvalidTerms),
		errors.Is(err, engagement.ErrInvalidEvent),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, store.ErrNotMember),
		errors.Is(err, clan.ErrInvalidClan):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.logger.Error("request failed", "id", requestID(r.Context()), "path", r.URL.Path, "err", err)
		writeError(w, code, "internal error")
		return
	}
	writeError(w, code, err.Error())
}

func (s *Server) Handler() http.Handler {
	return ChainMiddleware(s.mux,
		RecoveryMiddleware(s.logger),
		RequestIDMiddleware,
		LoggingMiddleware(s.logger),
		RateLimitMiddleware(s.limiter, s.metrics, s.logger),
	)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
