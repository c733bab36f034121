package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/funcwar-server/internal/config"
	"github.com/MJE43/funcwar-server/internal/function"
	"github.com/MJE43/funcwar-server/internal/game"
	"github.com/MJE43/funcwar-server/internal/shot"
	"github.com/MJE43/funcwar-server/internal/store"
	"github.com/MJE43/funcwar-server/internal/terrain"
	"github.com/MJE43/funcwar-server/internal/trajectory"
)

const maxBodyBytes = 64 << 10

// Rooms is the registry surface the API needs. *game.Registry implements it.
type Rooms interface {
	List() []game.RoomInfo
	Get(code string) (*game.Room, bool)
	CreateRoom() string
}

// MatchStore is the persistence surface the API needs. *store.Store
// implements it.
type MatchStore interface {
	Ping(ctx context.Context) error
	Leaderboard(ctx context.Context, limit int) ([]store.LeaderboardEntry, error)
	ListMatches(ctx context.Context, limit, offset int) ([]store.Match, error)
	GetMatch(ctx context.Context, id string) (store.Match, error)
}

type Options struct {
	Rooms Rooms
	// Store may be nil when persistence is disabled. Pass an untyped nil,
	// not a nil *store.Store.
	Store          MatchStore
	WS             http.Handler
	Game           config.Game
	AllowedOrigins []string
	Logger         *log.Logger
}

// Server handles HTTP requests
type Server struct {
	rooms        Rooms
	store        MatchStore
	ws           http.Handler
	game         config.Game
	origins      map[string]bool
	errorHandler *ErrorHandler
	logger       *log.Logger
	startTime    time.Time

	httpServer *http.Server
	listener   net.Listener
}

func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	origins := make(map[string]bool, len(opts.AllowedOrigins))
	for _, o := range opts.AllowedOrigins {
		origins[strings.TrimRight(strings.TrimSpace(o), "/")] = true
	}
	return &Server{
		rooms:        opts.Rooms,
		store:        opts.Store,
		ws:           opts.WS,
		game:         opts.Game,
		origins:      origins,
		errorHandler: NewErrorHandler(opts.Logger),
		logger:       opts.Logger,
		startTime:    time.Now(),
	}
}

// Routes sets up the HTTP routes with proper middleware
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequest)
	r.Use(s.errorHandler.RecoveryHandler)

	r.Get("/health", s.handleHealthCheck)
	r.Get("/health/live", s.handleLiveness)
	r.Get("/version", s.handleVersion)

	if s.ws != nil {
		r.Handle("/ws", s.ws)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Use(s.cors)

		r.Get("/rooms", s.handleListRooms)
		r.Post("/rooms", s.handleCreateRoom)
		r.Get("/rooms/{code}", s.handleGetRoom)

		r.Get("/leaderboard", s.handleLeaderboard)
		r.Get("/matches", s.handleListMatches)
		r.Get("/matches/{id}", s.handleGetMatch)

		r.Post("/functions/check", s.handleCheckFunction)
		r.Post("/shots/preview", s.handlePreviewShot)
	})
	return r
}

// Start begins listening in a goroutine. It returns when the socket is bound.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("serve failed err=%v", err)
		}
	}()
	s.logger.Printf("listening addr=%s", ln.Addr())
	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown gracefully stops the HTTP server. Hijacked websocket connections
// are not tracked by http.Server; rooms close them when the registry stops.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// ========== Rooms ==========

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms := s.rooms.List()
	s.writeJSON(w, http.StatusOK, RoomsResponse{Rooms: rooms, Count: len(rooms)})
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	code := s.rooms.CreateRoom()
	s.logger.Printf("room_created code=%s request_id=%s", code, middleware.GetReqID(r.Context()))
	s.writeJSON(w, http.StatusCreated, CreateRoomResponse{Code: code, WSURL: "/ws?room=" + code})
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	room, ok := s.rooms.Get(code)
	if !ok {
		s.errorHandler.HandleNotFound(w, r, ErrTypeRoomNotFound, code)
		return
	}
	s.writeJSON(w, http.StatusOK, game.RoomInfo{
		Code:    room.Code,
		Clients: room.NumClients(),
		Phase:   room.Phase().String(),
	})
}

// ========== Stats ==========

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w, r) {
		return
	}
	entries, err := s.store.Leaderboard(r.Context(), qInt(r, "limit", 20))
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []store.LeaderboardEntry{}
	}
	s.writeJSON(w, http.StatusOK, LeaderboardResponse{Entries: entries})
}

func (s *Server) handleListMatches(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w, r) {
		return
	}
	limit, offset := qInt(r, "limit", 50), qInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	matches, err := s.store.ListMatches(r.Context(), limit, offset)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	if matches == nil {
		matches = []store.Match{}
	}
	s.writeJSON(w, http.StatusOK, MatchesResponse{Matches: matches, Limit: limit, Offset: offset})
}

func (s *Server) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w, r) {
		return
	}
	id := chi.URLParam(r, "id")
	m, err := s.store.GetMatch(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		s.errorHandler.HandleNotFound(w, r, ErrTypeMatchNotFound, id)
		return
	}
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, m)
}

// storeError reports a failed store query; the driver error goes in the context.
func (s *Server) storeError(w http.ResponseWriter, r *http.Request, err error) {
	s.errorHandler.HandleError(w, r,
		NewError(ErrTypeInternal, "Match store query failed").
			WithRequestID(middleware.GetReqID(r.Context())).
			WithContext("path", r.URL.Path).
			WithCause(err).
			Build(),
		http.StatusInternalServerError)
}

func (s *Server) requireStore(w http.ResponseWriter, r *http.Request) bool {
	if s.store != nil {
		return true
	}
	s.errorHandler.HandleError(w, r,
		NewError(ErrTypeServiceUnavailable, "Match storage is disabled").
			WithRequestID(middleware.GetReqID(r.Context())).
			Build(),
		http.StatusServiceUnavailable)
	return false
}

// ========== Functions ==========

func (s *Server) handleCheckFunction(w http.ResponseWriter, r *http.Request) {
	var req CheckFunctionRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Function) == "" {
		s.errorHandler.HandleValidationError(w, r, "function", "function is required")
		return
	}
	mode, err := trajectory.ParseMode(req.Mode)
	if err != nil {
		s.errorHandler.HandleValidationError(w, r, "mode", err.Error())
		return
	}
	fn, err := function.Parse(req.Function)
	if err == nil {
		for _, k := range []function.Kind{function.VarY, function.VarDY} {
			if fn.Uses(k) && !mode.Allows(k) {
				err = &function.MalformedFunctionError{Input: req.Function, Reason: k.String() + " is not available in " + mode.String() + " mode"}
				break
			}
		}
	}
	if err != nil {
		s.errorHandler.HandleError(w, r,
			NewError(ErrTypeInvalidFunction, err.Error()).
				WithRequestID(middleware.GetReqID(r.Context())).
				WithContext("function", req.Function).
				Build(),
			http.StatusUnprocessableEntity)
		return
	}
	s.writeJSON(w, http.StatusOK, CheckFunctionResponse{
		Valid:     true,
		Canonical: fn.String(),
		Mode:      mode.String(),
		Tokens:    fn.Len(),
	})
}

// handlePreviewShot simulates a shot on the posted circles without touching
// any room.
func (s *Server) handlePreviewShot(w http.ResponseWriter, r *http.Request) {
	var req PreviewShotRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	mode, err := trajectory.ParseMode(req.Mode)
	if err != nil {
		s.errorHandler.HandleValidationError(w, r, "mode", err.Error())
		return
	}
	if req.Team == 0 {
		req.Team = 1
	}
	if req.Team != 1 && req.Team != 2 {
		s.errorHandler.HandleValidationError(w, r, "team", "team must be 1 or 2")
		return
	}
	t := terrain.New(s.game.PlaneWidth, s.game.PlaneHeight, req.Circles)
	origin := terrain.Point{X: req.X, Y: req.Y}
	if !t.InBounds(origin) {
		s.errorHandler.HandleValidationError(w, r, "x,y", "shooter must be inside the plane")
		return
	}

	res, err := shot.Simulate(shot.Request{
		Mode:     mode,
		Function: req.Function,
		Terrain:  t,
		Shooter:  shot.Target{ClientID: "preview", Team: req.Team, Pos: origin},
		Angle:    req.Angle,
		Game:     s.game,
	})
	var malformed *function.MalformedFunctionError
	switch {
	case errors.As(err, &malformed):
		s.errorHandler.HandleError(w, r,
			NewError(ErrTypeInvalidFunction, err.Error()).
				WithRequestID(middleware.GetReqID(r.Context())).
				Build(),
			http.StatusUnprocessableEntity)
		return
	case errors.Is(err, shot.ErrInvalidShot):
		s.errorHandler.HandleError(w, r,
			NewError(ErrTypeInvalidShot, err.Error()).
				WithRequestID(middleware.GetReqID(r.Context())).
				Build(),
			http.StatusUnprocessableEntity)
		return
	case err != nil:
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, PreviewShotResponse{
		Path:       res.Path,
		Explosion:  res.Explosion,
		Stop:       res.Stop.String(),
		FireAngle:  res.FireAngle,
		DurationMs: shot.Offset(s.game, len(res.Path)).Milliseconds(),
	})
}

// ========== helpers ==========

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Server-Version", ServerVersion)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Printf("encode_failed err=%v", err)
	}
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.errorHandler.HandleValidationError(w, r, "body", "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func qInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func (s *Server) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Printf("request method=%s path=%s status=%d duration_ms=%d request_id=%s",
			r.Method, r.URL.Path, ww.Status(), time.Since(start).Milliseconds(), middleware.GetReqID(r.Context()))
	})
}

// cors answers preflights and sets CORS headers for configured origins.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (s.origins["*"] || s.origins[origin]) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
