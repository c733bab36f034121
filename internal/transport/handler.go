package transport

import (
	"errors"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MJE43/funcwar-server/internal/game"
	"github.com/MJE43/funcwar-server/internal/protocol"
)

const (
	maxNameRunes = 24
	joinTimeout  = 5 * time.Second
)

var errRoomGone = errors.New("transport: room closed while joining")

// Rooms resolves a room code. *game.Registry implements it.
type Rooms interface {
	GetOrCreate(code string) *game.Room
}

type Options struct {
	// AllowedOrigins lists exact Origin values accepted besides same-host
	// and localhost. "*" accepts any origin.
	AllowedOrigins []string
	SendBuffer     int
	Logger         *log.Logger
}

// Handler upgrades /ws?room=CODE&name=NAME requests and joins the client to
// the room.
type Handler struct {
	rooms    Rooms
	upgrader websocket.Upgrader
	buffer   int
	log      *log.Logger
}

func NewHandler(rooms Rooms, opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	return &Handler{
		rooms: rooms,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(opts.AllowedOrigins, opts.Logger),
		},
		buffer: opts.SendBuffer,
		log:    opts.Logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code := strings.ToUpper(strings.TrimSpace(q.Get("room")))
	if code == "" {
		http.Error(w, "missing room code", http.StatusBadRequest)
		return
	}
	name := clampName(q.Get("name"))

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.log.Printf("upgrade failed room=%s remote=%s err=%v", code, r.RemoteAddr, err)
		return
	}
	c := newConn(ws, h.buffer, h.log)
	go c.writePump()

	room, id, err := h.join(code, name, c)
	if err != nil {
		h.log.Printf("join failed room=%s remote=%s err=%v", code, r.RemoteAddr, err)
		if msg, encErr := protocol.Encode(protocol.MsgError, protocol.Error{Code: joinErrorCode(err), Message: err.Error()}); encErr == nil {
			c.Send(msg)
		}
		c.Close()
		return
	}

	c.readPump(func(data []byte) {
		if !room.Post(game.Inbound{ClientID: id, Data: data}) {
			c.Close()
		}
	})
	room.Post(game.Leave{ClientID: id})
	c.Close()
}

// join posts a Join to the room. A room that stopped between lookup and
// post is looked up once more, which creates a fresh one.
func (h *Handler) join(code, name string, c *Conn) (*game.Room, string, error) {
	for attempt := 0; attempt < 2; attempt++ {
		room := h.rooms.GetOrCreate(code)
		if room == nil {
			return nil, "", errRoomGone
		}
		reply := make(chan game.JoinResult, 1)
		if !room.Post(game.Join{Conn: c, Name: name, Reply: reply}) {
			continue
		}
		select {
		case res := <-reply:
			if errors.Is(res.Err, game.ErrRoomClosed) {
				continue
			}
			return room, res.ClientID, res.Err
		case <-time.After(joinTimeout):
			return nil, "", errRoomGone
		}
	}
	return nil, "", errRoomGone
}

func joinErrorCode(err error) string {
	if errors.Is(err, game.ErrRoomFull) {
		return "room_full"
	}
	return "join_failed"
}

func clampName(name string) string {
	name = strings.TrimSpace(name)
	if r := []rune(name); len(r) > maxNameRunes {
		name = string(r[:maxNameRunes])
	}
	return name
}

// originChecker accepts requests without an Origin header, same-host and
// localhost origins, and the configured list.
func originChecker(allowed []string, logger *log.Logger) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(strings.TrimSpace(o), "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || set["*"] || set[origin] {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			logger.Printf("invalid origin origin=%q", origin)
			return false
		}
		if u.Host == r.Host {
			return true
		}
		host := u.Hostname()
		if host == "localhost" || host == "127.0.0.1" || host == "::1" {
			return true
		}
		logger.Printf("origin rejected origin=%q", origin)
		return false
	}
}
