package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/MJE43/funcwar-server/internal/game"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func match(id string, winner int, players ...game.MatchResult) []game.MatchResult {
	out := make([]game.MatchResult, len(players))
	for i, p := range players {
		p.MatchID = id
		p.SessionID = "ROOM01"
		p.Mode = "normal"
		p.Reason = "eliminated"
		p.StartedAt = start
		p.EndedAt = start.Add(time.Duration(len(id)) * time.Minute)
		p.Won = p.Team == winner
		out[i] = p
	}
	return out
}

func TestSaveAndGetMatch(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	results := match("m1", 1,
		game.MatchResult{ClientID: "a", Name: "alice", Team: 1, Kills: 2, Shots: 3, BestMultiKill: 2},
		game.MatchResult{ClientID: "b", Name: "bob", Team: 2, Kills: 0, Shots: 2},
	)
	if err := s.SaveMatch(ctx, results); err != nil {
		t.Fatalf("SaveMatch: %v", err)
	}
	// Idempotent on match id.
	if err := s.SaveMatch(ctx, results); err != nil {
		t.Fatalf("SaveMatch again: %v", err)
	}

	m, err := s.GetMatch(ctx, "m1")
	if err != nil {
		t.Fatalf("GetMatch: %v", err)
	}
	if m.WinnerTeam != 1 {
		t.Errorf("WinnerTeam = %d, want 1", m.WinnerTeam)
	}
	if m.Room != "ROOM01" || m.Mode != "normal" || m.Reason != "eliminated" {
		t.Errorf("unexpected match metadata: %+v", m)
	}
	if !m.StartedAt.Equal(start) {
		t.Errorf("StartedAt = %v, want %v", m.StartedAt, start)
	}
	if len(m.Players) != 2 {
		t.Fatalf("len(Players) = %d, want 2", len(m.Players))
	}
	if p := m.Players[0]; p.Name != "alice" || !p.Won || p.Kills != 2 || p.BestMultiKill != 2 {
		t.Errorf("unexpected first player: %+v", p)
	}
	if p := m.Players[1]; p.Won {
		t.Errorf("bob should not have won: %+v", p)
	}
}

func TestSaveMatchRejectsEmpty(t *testing.T) {
	s := testStore(t)
	if err := s.SaveMatch(context.Background(), nil); err != ErrNoResults {
		t.Fatalf("err = %v, want ErrNoResults", err)
	}
}

func TestListMatchesNewestFirst(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	for _, id := range []string{"m1", "m22", "m333"} {
		if err := s.SaveMatch(ctx, match(id, 2,
			game.MatchResult{ClientID: "a", Name: "alice", Team: 1},
			game.MatchResult{ClientID: "b", Name: "bob", Team: 2},
		)); err != nil {
			t.Fatalf("SaveMatch %s: %v", id, err)
		}
	}

	got, err := s.ListMatches(ctx, 2, 0)
	if err != nil {
		t.Fatalf("ListMatches: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != "m333" || got[1].ID != "m22" {
		t.Errorf("order = %s,%s, want m333,m22", got[0].ID, got[1].ID)
	}
	if len(got[0].Players) != 2 {
		t.Errorf("players not loaded: %+v", got[0])
	}
}

func TestLeaderboard(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	save := func(id string, winner int, players ...game.MatchResult) {
		t.Helper()
		if err := s.SaveMatch(ctx, match(id, winner, players...)); err != nil {
			t.Fatalf("SaveMatch %s: %v", id, err)
		}
	}
	save("m1", 1,
		game.MatchResult{ClientID: "a1", Name: "alice", Team: 1, Kills: 2, Shots: 3, BestMultiKill: 2},
		game.MatchResult{ClientID: "bot1", Name: "Bot", Team: 2, IsBot: true, Kills: 5, Shots: 5},
	)
	save("m2", 2,
		game.MatchResult{ClientID: "a2", Name: "alice", Team: 1, Kills: 0, Shots: 3},
		game.MatchResult{ClientID: "c2", Name: "carol", Team: 2, Kills: 2, Shots: 2, BestMultiKill: 1},
	)
	save("m3", 1,
		game.MatchResult{ClientID: "c3", Name: "carol", Team: 1, Kills: 1, Shots: 4, BestMultiKill: 1},
		game.MatchResult{ClientID: "d3", Name: "dave", Team: 2},
	)

	board, err := s.Leaderboard(ctx, 10)
	if err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}
	if len(board) != 3 {
		t.Fatalf("len = %d, want 3 (bots excluded): %+v", len(board), board)
	}
	// carol: 2 wins; alice: 1 win; dave: 0.
	want := []string{"carol", "alice", "dave"}
	for i, name := range want {
		if board[i].Name != name {
			t.Errorf("board[%d] = %s, want %s", i, board[i].Name, name)
		}
	}
	alice := board[1]
	if alice.Matches != 2 || alice.Wins != 1 || alice.Kills != 2 || alice.Shots != 6 || alice.BestMultiKill != 2 {
		t.Errorf("alice = %+v", alice)
	}
	if alice.WinRate != 0.5 {
		t.Errorf("alice.WinRate = %v, want 0.5", alice.WinRate)
	}
	if alice.Accuracy != 0.333 {
		t.Errorf("alice.Accuracy = %v, want 0.333", alice.Accuracy)
	}
	if board[2].Accuracy != 0 {
		t.Errorf("dave.Accuracy = %v, want 0", board[2].Accuracy)
	}
}

func TestRecorderWritesInBackground(t *testing.T) {
	s := testStore(t)
	rec := NewRecorder(s, time.Second)

	rec.RecordMatch(match("m1", 1,
		game.MatchResult{ClientID: "a", Name: "alice", Team: 1},
		game.MatchResult{ClientID: "b", Name: "bob", Team: 2},
	))
	rec.Close()

	if _, err := s.GetMatch(context.Background(), "m1"); err != nil {
		t.Fatalf("GetMatch after Close: %v", err)
	}

	// Closed recorders drop new matches.
	rec.RecordMatch(match("m2", 1, game.MatchResult{ClientID: "a", Name: "alice", Team: 1}))
	rec.Flush()
	if _, err := s.GetMatch(context.Background(), "m2"); err == nil {
		t.Fatal("match recorded after Close")
	}
}
