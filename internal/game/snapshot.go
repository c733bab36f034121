package game

import (
	"time"

	"github.com/MJE43/funcwar-server/internal/protocol"
)

// State builds the full snapshot clients render from.
func (s *Session) State() protocol.State {
	st := protocol.State{
		Room:    s.id,
		Phase:   s.phase.String(),
		Mode:    s.mode.String(),
		Terrain: s.terrain,
		Players: make([]protocol.PlayerState, 0, len(s.players)),
	}
	onTurn := s.phase == PhasePlaying || s.phase == PhaseAnimatingShot
	for i, p := range s.players {
		current := p.Current
		if !onTurn || i != s.current {
			current = p.upcoming()
		}
		ps := protocol.PlayerState{
			ClientID:       p.ClientID,
			Name:           p.Name,
			Team:           p.Team,
			IsBot:          p.IsBot,
			Left:           p.Left,
			Soldiers:       make([]protocol.SoldierState, 0, len(p.Soldiers)),
			CurrentSoldier: current,
		}
		for _, sd := range p.Soldiers {
			ps.Soldiers = append(ps.Soldiers, protocol.SoldierState{X: sd.Pos.X, Y: sd.Pos.Y, Angle: sd.Angle, Alive: sd.Alive})
		}
		st.Players = append(st.Players, ps)
	}
	if onTurn {
		p := s.players[s.current]
		st.CurrentTurn = p.ClientID
		st.TurnSoldier = p.Current
		st.TurnStartedAt = s.turnStartedAt.UnixMilli()
		st.TimeLimitMs = s.g.TurnTimeLimit.Milliseconds()
		st.HintPaused = s.HintPaused()
	}
	if s.lastShot != nil {
		ls := *s.lastShot
		st.LastShot = &ls
	}
	return st
}

func (s *Session) stats() []protocol.PlayerStats {
	out := make([]protocol.PlayerStats, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, protocol.PlayerStats{
			ClientID:      p.ClientID,
			Name:          p.Name,
			Team:          p.Team,
			Kills:         p.Kills,
			BestMultiKill: p.BestMultiKill,
			Won:           s.winner != 0 && p.Team == s.winner,
		})
	}
	return out
}

func (s *Session) results(now time.Time, reason string) []MatchResult {
	out := make([]MatchResult, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, MatchResult{
			MatchID:       s.matchID,
			SessionID:     s.id,
			Mode:          s.mode.String(),
			ClientID:      p.ClientID,
			Name:          p.Name,
			Team:          p.Team,
			IsBot:         p.IsBot,
			Won:           s.winner != 0 && p.Team == s.winner,
			Kills:         p.Kills,
			Shots:         p.Shots,
			BestMultiKill: p.BestMultiKill,
			Reason:        reason,
			StartedAt:     s.startedAt,
			EndedAt:       now,
		})
	}
	return out
}

func (s *Session) broadcastState() {
	s.broadcast(protocol.MsgState, s.State())
}

func (s *Session) broadcast(t string, payload any) {
	if s.transport == nil {
		return
	}
	b, err := protocol.Encode(t, payload)
	if err != nil {
		s.log.Printf("encode failed session=%s type=%s err=%v", s.id, t, err)
		return
	}
	s.transport.Broadcast(s.id, b)
}

func (s *Session) send(clientID, t string, payload any) {
	if s.transport == nil {
		return
	}
	b, err := protocol.Encode(t, payload)
	if err != nil {
		s.log.Printf("encode failed session=%s type=%s err=%v", s.id, t, err)
		return
	}
	s.transport.Send(s.id, clientID, b)
}
