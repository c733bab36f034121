package game

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MJE43/funcwar-server/internal/config"
	"github.com/MJE43/funcwar-server/internal/function"
	"github.com/MJE43/funcwar-server/internal/hint"
	"github.com/MJE43/funcwar-server/internal/protocol"
	"github.com/MJE43/funcwar-server/internal/shot"
	"github.com/MJE43/funcwar-server/internal/trajectory"
)

const maxMembers = 8

var (
	ErrRoomFull   = errors.New("game: room is full")
	ErrRoomClosed = errors.New("game: room closed")
)

// RoomOptions configures a Room.
type RoomOptions struct {
	Code        string
	Game        config.Game
	Hinter      Hinter
	HintTimeout time.Duration
	Recorder    MatchRecorder
	Logger      *log.Logger
	// Clock defaults to time.Now.
	Clock func() time.Time
}

type member struct {
	id   string
	name string
	conn Conn
}

// Room is an actor: every session mutation happens on the goroutine running
// Run, fed through Inbox. Hint generation runs on its own goroutine and
// posts its result back to the inbox.
type Room struct {
	Code    string
	Inbox   chan any
	OnEmpty func(code string) // called when the last client leaves

	g           config.Game
	hinter      Hinter
	hintTimeout time.Duration
	recorder    MatchRecorder
	log         *log.Logger
	clock       func() time.Time

	members  map[string]*member
	order    []string
	nextName int
	session  *Session

	numClients atomic.Int32
	phase      atomic.Int32
	idleSince  atomic.Int64 // unix nanos; 0 while someone is connected
	quit       chan struct{}
	stopOnce   sync.Once
}

// NewRoom creates a room. Call Run on its own goroutine.
func NewRoom(opts RoomOptions) *Room {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	if opts.Hinter == nil {
		opts.Hinter = hint.NewAdvisor(nil, opts.Logger)
	}
	if opts.HintTimeout <= 0 {
		opts.HintTimeout = 20 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	r := &Room{
		Code:        opts.Code,
		Inbox:       make(chan any, 256),
		g:           opts.Game,
		hinter:      opts.Hinter,
		hintTimeout: opts.HintTimeout,
		recorder:    opts.Recorder,
		log:         opts.Logger,
		clock:       opts.Clock,
		members:     make(map[string]*member),
		quit:        make(chan struct{}),
	}
	r.idleSince.Store(opts.Clock().UnixNano())
	return r
}

// Stop ends Run. Safe to call more than once.
func (r *Room) Stop() {
	r.stopOnce.Do(func() { close(r.quit) })
}

// NumClients returns the number of connected clients.
func (r *Room) NumClients() int {
	return int(r.numClients.Load())
}

// Phase returns the phase of the current session, or PhaseLobby.
func (r *Room) Phase() Phase {
	return Phase(r.phase.Load())
}

// IdleFor reports how long the room has had no clients.
func (r *Room) IdleFor(now time.Time) time.Duration {
	since := r.idleSince.Load()
	if since == 0 {
		return 0
	}
	return now.Sub(time.Unix(0, since))
}

// Post delivers msg to the room unless it has stopped.
func (r *Room) Post(msg any) bool {
	select {
	case <-r.quit:
		return false
	default:
	}
	select {
	case r.Inbox <- msg:
		return true
	case <-r.quit:
		return false
	}
}

func (r *Room) Run() {
	wake := time.NewTimer(time.Hour)
	defer wake.Stop()

	for {
		r.resetWake(wake)
		select {
		case <-r.quit:
			r.rejectPending()
			return
		case msg := <-r.Inbox:
			r.handle(msg)
		case <-wake.C:
			r.runDue()
		}
		if r.session != nil {
			r.phase.Store(int32(r.session.Phase()))
		}
	}
}

// rejectPending answers joins that were queued while the room stopped.
func (r *Room) rejectPending() {
	for {
		select {
		case msg := <-r.Inbox:
			if j, ok := msg.(Join); ok {
				j.Reply <- JoinResult{Err: ErrRoomClosed}
			}
		default:
			return
		}
	}
}

func (r *Room) resetWake(wake *time.Timer) {
	if r.session == nil {
		wake.Stop()
		return
	}
	next, ok := r.session.Next()
	if !ok {
		wake.Stop()
		return
	}
	wake.Reset(max(0, next.Sub(r.clock())))
}

func (r *Room) runDue() {
	if r.session != nil {
		r.session.RunDue(r.clock())
	}
}

func (r *Room) handle(msg any) {
	now := r.clock()
	switch m := msg.(type) {
	case Join:
		m.Reply <- r.join(m)
	case Inbound:
		r.handleInbound(m.ClientID, m.Data, now)
	case Leave:
		r.leave(m.ClientID, now)
	case Tick:
		if r.session != nil {
			r.session.Tick(now)
			r.session.RunDue(now)
		}
	case hintProgress:
		if r.session != nil {
			r.session.HintProgress(m.clientID, m.turnSeq, m.attempt, m.max)
		}
	case hintDone:
		if r.session != nil {
			r.session.EndHint(m.clientID, m.turnSeq, m.resp, now)
		}
	}
}

func (r *Room) join(j Join) JoinResult {
	if len(r.members) >= maxMembers {
		return JoinResult{Err: ErrRoomFull}
	}
	r.nextName++
	name := j.Name
	if name == "" {
		name = fmt.Sprintf("Player %d", r.nextName)
	}
	m := &member{id: uuid.NewString(), name: name, conn: j.Conn}
	r.members[m.id] = m
	r.order = append(r.order, m.id)
	r.numClients.Store(int32(len(r.members)))
	r.idleSince.Store(0)
	r.log.Printf("client joined room=%s client=%s name=%q", r.Code, m.id, name)

	r.sendTo(m, protocol.MsgWelcome, protocol.Welcome{ClientID: m.id, Room: r.Code, Name: name})
	if r.session != nil {
		r.sendTo(m, protocol.MsgState, r.session.State())
	} else {
		r.Broadcast(r.Code, r.encode(protocol.MsgState, r.lobbyState()))
	}
	return JoinResult{ClientID: m.id}
}

func (r *Room) leave(id string, now time.Time) {
	m, ok := r.members[id]
	if !ok {
		return
	}
	delete(r.members, id)
	for i, o := range r.order {
		if o == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.numClients.Store(int32(len(r.members)))
	_ = m.conn.Close()
	r.log.Printf("client left room=%s client=%s", r.Code, id)

	if r.session != nil {
		r.session.PlayerLeft(id, now)
	} else {
		r.Broadcast(r.Code, r.encode(protocol.MsgState, r.lobbyState()))
	}
	if len(r.members) == 0 {
		r.idleSince.Store(now.UnixNano())
		if r.OnEmpty != nil {
			r.OnEmpty(r.Code)
		}
	}
}

func (r *Room) handleInbound(id string, data []byte, now time.Time) {
	if _, ok := r.members[id]; !ok {
		return
	}
	env, err := protocol.DecodeEnvelope(data)
	if err != nil {
		r.sendError(id, "bad_message", err)
		return
	}
	switch env.T {
	case protocol.MsgStart:
		p, err := protocol.DecodePayload[protocol.Start](env)
		if err == nil {
			err = r.start(p, now)
		}
		r.sendError(id, "", err)
	case protocol.MsgFire:
		p, err := protocol.DecodePayload[protocol.Fire](env)
		if err == nil {
			err = r.activeSession().Fire(id, p.Function, now)
		}
		r.sendError(id, "", err)
	case protocol.MsgAngle:
		p, err := protocol.DecodePayload[protocol.Angle](env)
		if err == nil {
			err = r.activeSession().SetAngle(id, p.Angle)
		}
		r.sendError(id, "", err)
	case protocol.MsgSurrender:
		r.sendError(id, "", r.activeSession().Surrender(id, now))
	case protocol.MsgRequestHint:
		r.sendError(id, "", r.startHint(id, now))
	default:
		r.sendError(id, "unknown_message", fmt.Errorf("unknown message type %q", env.T))
	}
}

// activeSession returns the running session, or an idle one that rejects
// every action.
func (r *Room) activeSession() *Session {
	if r.session == nil {
		return &Session{phase: PhaseLobby}
	}
	return r.session
}

// start opens a new match with every connected client. Humans alternate
// between the two teams; a requested bot joins the smaller one.
func (r *Room) start(p protocol.Start, now time.Time) error {
	if r.session != nil && r.session.Phase() != PhaseOver {
		return ErrNotPlaying
	}
	mode, err := trajectory.ParseMode(p.Mode)
	if err != nil {
		return err
	}
	specs := make([]PlayerSpec, 0, len(r.order)+1)
	size := map[int]int{}
	for i, id := range r.order {
		team := i%2 + 1
		size[team]++
		specs = append(specs, PlayerSpec{ClientID: id, Name: r.members[id].name, Team: team})
	}
	if p.Bot {
		team := 2
		if size[1] < size[2] {
			team = 1
		}
		specs = append(specs, PlayerSpec{ClientID: "bot-" + uuid.NewString()[:8], Name: "Bot", Team: team, IsBot: true})
	}
	s, err := NewSession(Options{
		ID:        r.Code,
		Mode:      mode,
		Game:      r.g,
		Players:   specs,
		Seed:      p.Seed,
		Transport: r,
		Recorder:  r.recorder,
		Logger:    r.log,
	})
	if err != nil {
		return err
	}
	r.session = s
	s.Start(now)
	return nil
}

func (r *Room) startHint(id string, now time.Time) error {
	req, seq, err := r.activeSession().BeginHint(id, now)
	if err != nil {
		return err
	}
	req.Progress = func(attempt, max int) {
		r.Post(hintProgress{clientID: id, turnSeq: seq, attempt: attempt, max: max})
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.hintTimeout)
	go func() {
		defer cancel()
		resp := r.hinter.Generate(ctx, req)
		r.Post(hintDone{clientID: id, turnSeq: seq, resp: resp})
	}()
	return nil
}

// Send implements Transport.
func (r *Room) Send(_ string, clientID string, msg []byte) {
	if m, ok := r.members[clientID]; ok {
		r.deliver(m, msg)
	}
}

// Broadcast implements Transport.
func (r *Room) Broadcast(_ string, msg []byte) {
	if msg == nil {
		return
	}
	for _, id := range r.order {
		r.deliver(r.members[id], msg)
	}
}

func (r *Room) deliver(m *member, msg []byte) {
	if err := m.conn.Send(msg); err != nil {
		// The connection's read pump reports the disconnect as a Leave.
		r.log.Printf("send failed room=%s client=%s err=%v", r.Code, m.id, err)
	}
}

func (r *Room) sendTo(m *member, t string, payload any) {
	if b := r.encode(t, payload); b != nil {
		r.deliver(m, b)
	}
}

func (r *Room) encode(t string, payload any) []byte {
	b, err := protocol.Encode(t, payload)
	if err != nil {
		r.log.Printf("encode failed room=%s type=%s err=%v", r.Code, t, err)
		return nil
	}
	return b
}

// sendError reports err to one client. code is derived from err when empty.
func (r *Room) sendError(id, code string, err error) {
	if err == nil {
		return
	}
	if code == "" {
		code = errorCode(err)
	}
	if m, ok := r.members[id]; ok {
		r.sendTo(m, protocol.MsgError, protocol.Error{Code: code, Message: err.Error()})
	}
}

func errorCode(err error) string {
	var malformed *function.MalformedFunctionError
	switch {
	case errors.As(err, &malformed):
		return "malformed_function"
	case errors.Is(err, shot.ErrInvalidShot):
		return "invalid_shot"
	case errors.Is(err, ErrNotYourTurn):
		return "not_your_turn"
	case errors.Is(err, ErrNotPlaying):
		return "not_playing"
	case errors.Is(err, ErrHintBusy), errors.Is(err, ErrBotHint):
		return "hint_unavailable"
	case errors.Is(err, ErrNeedOpponents):
		return "need_opponents"
	case errors.Is(err, ErrUnknownPlayer):
		return "unknown_player"
	}
	return "bad_request"
}

func (r *Room) lobbyState() protocol.State {
	st := protocol.State{Room: r.Code, Phase: PhaseLobby.String(), Players: make([]protocol.PlayerState, 0, len(r.order))}
	for i, id := range r.order {
		st.Players = append(st.Players, protocol.PlayerState{
			ClientID: id,
			Name:     r.members[id].name,
			Team:     i%2 + 1,
			Soldiers: []protocol.SoldierState{},
		})
	}
	return st
}
