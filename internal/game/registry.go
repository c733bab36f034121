package game

import (
	"context"
	"crypto/rand"
	"io"
	"log"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MJE43/funcwar-server/internal/config"
)

// RoomInfo is returned by the API for the room list.
type RoomInfo struct {
	Code    string `json:"code"`
	Clients int    `json:"clients"`
	Phase   string `json:"phase"`
}

// RegistryOptions are shared by every room the registry creates.
type RegistryOptions struct {
	Game        config.Game
	Hinter      Hinter
	HintTimeout time.Duration
	Recorder    MatchRecorder
	Logger      *log.Logger
	// IdleRoomTTL is how long a room nobody has joined is kept. Defaults to
	// two minutes.
	IdleRoomTTL time.Duration
}

// Registry owns the rooms by code. Rooms are created on first join or via
// CreateRoom and removed when the last client leaves.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
	opts  RegistryOptions
	log   *log.Logger
}

func NewRegistry(opts RegistryOptions) *Registry {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	if opts.IdleRoomTTL <= 0 {
		opts.IdleRoomTTL = 2 * time.Minute
	}
	return &Registry{
		rooms: make(map[string]*Room),
		opts:  opts,
		log:   opts.Logger,
	}
}

// GetOrCreate returns the room for code, creating it if needed. Codes are
// case-insensitive.
func (m *Registry) GetOrCreate(code string) *Room {
	code = normalizeCode(code)
	if code == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rooms[code]; ok {
		return r
	}
	return m.newRoomLocked(code)
}

// Get returns an existing room.
func (m *Registry) Get(code string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[normalizeCode(code)]
	return r, ok
}

const codeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// CreateRoom generates a unique 6-char code, creates the room, and returns
// the code.
func (m *Registry) CreateRoom() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for {
		code := generateCode(6)
		if _, exists := m.rooms[code]; exists {
			continue
		}
		m.newRoomLocked(code)
		return code
	}
}

func (m *Registry) newRoomLocked(code string) *Room {
	r := NewRoom(RoomOptions{
		Code:        code,
		Game:        m.opts.Game,
		Hinter:      m.opts.Hinter,
		HintTimeout: m.opts.HintTimeout,
		Recorder:    m.opts.Recorder,
		Logger:      m.opts.Logger,
	})
	r.OnEmpty = m.removeRoom
	m.rooms[code] = r
	go r.Run()
	m.log.Printf("room created code=%s", code)
	return r
}

// removeRoom runs on the room's own goroutine, so it must not wait for it.
func (m *Registry) removeRoom(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rooms[code]; ok {
		r.Stop()
		delete(m.rooms, code)
		m.log.Printf("room removed code=%s", code)
	}
}

// List returns all active rooms sorted by code.
func (m *Registry) List() []RoomInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RoomInfo, 0, len(m.rooms))
	for code, r := range m.rooms {
		out = append(out, RoomInfo{Code: code, Clients: r.NumClients(), Phase: r.Phase().String()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Run sends a Tick to every room each TurnTickInterval and sweeps idle rooms
// until ctx is done, then stops all rooms. A room whose inbox is full skips
// the tick.
func (m *Registry) Run(ctx context.Context) {
	interval := m.opts.Game.TurnTickInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.Close()
			return
		case now := <-ticker.C:
			m.mu.RLock()
			for _, r := range m.rooms {
				select {
				case r.Inbox <- Tick{Now: now}:
				default:
				}
			}
			m.mu.RUnlock()
			m.SweepIdle(now)
		}
	}
}

// SweepIdle removes rooms that have been empty for at least IdleRoomTTL,
// such as rooms created over HTTP that nobody joined.
func (m *Registry) SweepIdle(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for code, r := range m.rooms {
		if r.NumClients() == 0 && r.IdleFor(now) >= m.opts.IdleRoomTTL {
			r.Stop()
			delete(m.rooms, code)
			m.log.Printf("idle room removed code=%s", code)
			n++
		}
	}
	return n
}

// Close stops every room.
func (m *Registry) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for code, r := range m.rooms {
		r.Stop()
		delete(m.rooms, code)
	}
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func generateCode(n int) string {
	b := make([]byte, n)
	max := big.NewInt(int64(len(codeChars)))
	for i := range b {
		idx, _ := rand.Int(rand.Reader, max)
		b[i] = codeChars[idx.Int64()]
	}
	return string(b)
}
