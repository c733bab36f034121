package protocol

import (
	"github.com/MJE43/funcwar-server/internal/shot"
	"github.com/MJE43/funcwar-server/internal/terrain"
)

type Welcome struct {
	ClientID string `json:"clientId"`
	Room     string `json:"room"`
	Name     string `json:"name"`
}

type State struct {
	Room          string           `json:"room"`
	Phase         string           `json:"phase"`
	Mode          string           `json:"mode,omitempty"`
	Terrain       *terrain.Terrain `json:"terrain,omitempty"`
	Players       []PlayerState    `json:"players"`
	CurrentTurn   string           `json:"currentTurn,omitempty"`
	TurnSoldier   int              `json:"turnSoldier"`
	TurnStartedAt int64            `json:"turnStartedAt,omitempty"` // unix ms
	TimeLimitMs   int64            `json:"timeLimitMs,omitempty"`
	HintPaused    bool             `json:"hintPaused,omitempty"`
	LastShot      *ShotState       `json:"lastShot,omitempty"`
}

type PlayerState struct {
	ClientID       string         `json:"clientId"`
	Name           string         `json:"name"`
	Team           int            `json:"team"`
	IsBot          bool           `json:"isBot,omitempty"`
	Left           bool           `json:"left,omitempty"`
	Soldiers       []SoldierState `json:"soldiers"`
	CurrentSoldier int            `json:"currentSoldier"` // acting or next to act; -1 when none is alive
}

type SoldierState struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Angle float64 `json:"angle"`
	Alive bool    `json:"alive"`
}

// ShotState is the animation descriptor clients replay at Velocity points
// per second from StartedAt.
type ShotState struct {
	ShooterID string          `json:"shooterId"`
	Function  string          `json:"function"`
	Mode      string          `json:"mode"`
	FireAngle float64         `json:"fireAngle"`
	StartedAt int64           `json:"startedAt"` // unix ms
	Velocity  float64         `json:"velocity"`
	Explosion terrain.Circle  `json:"explosion"`
	Hits      []shot.Hit      `json:"hits"`
	Path      []terrain.Point `json:"path,omitempty"`
}

type Kill struct {
	TargetClientID string `json:"targetClientId"`
	SoldierIndex   int    `json:"soldierIndex"`
	ByClientID     string `json:"byClientId"`
}

type Turn struct {
	ClientID     string `json:"clientId"`
	SoldierIndex int    `json:"soldierIndex"`
	StartedAt    int64  `json:"startedAt"`
	TimeLimitMs  int64  `json:"timeLimitMs"`
	Reason       string `json:"reason,omitempty"` // shot, timeout, surrender, left
}

type HintProgress struct {
	Attempt     int `json:"attempt"`
	MaxAttempts int `json:"maxAttempts"`
}

type Hint struct {
	Function string `json:"function"`
	Source   string `json:"source"`
	Attempts int    `json:"attempts"`
	Accepted bool   `json:"accepted"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type GameOver struct {
	WinnerTeam int           `json:"winnerTeam"` // 0 when nobody is left
	Reason     string        `json:"reason"`
	Stats      []PlayerStats `json:"stats"`
}

type PlayerStats struct {
	ClientID      string `json:"clientId"`
	Name          string `json:"name"`
	Team          int    `json:"team"`
	Kills         int    `json:"kills"`
	BestMultiKill int    `json:"bestMultiKill"`
	Won           bool   `json:"won"`
}
