// Package config loads server, game and hint settings from the environment.
//
// A `.env` file in the working directory is loaded first when present; real
// environment variables always win over it. Every game constant has a default
// so an empty environment yields a playable server.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Game holds the tuning constants injected into the simulation and session core.
type Game struct {
	// PlaneWidth and PlaneHeight are the playfield size in world pixels.
	PlaneWidth  float64
	PlaneHeight float64
	// PlaneLength is the playfield width in function units; it sets the
	// pixel-per-unit scale used to map local shot coordinates to the world.
	PlaneLength float64

	StepSize  float64 // function units advanced per integration step
	MaxSteps  int
	SubStepPx float64 // terrain sub-sampling interval between samples

	FunctionVelocity float64 // steps drawn per second
	PostShotDelay    time.Duration
	TurnTimeLimit    time.Duration
	TurnTickInterval time.Duration
	BotDelay         time.Duration

	HitRadius       float64
	ExplosionRadius float64
	MaxAngle        float64

	SoldiersPerPlayer int
	CircleCount       int
	MinCircleRadius   float64
	MaxCircleRadius   float64

	MaxHintAttempts     int
	HintProgressRatio   float64
	HintProximityFactor float64
}

// Scale returns world pixels per function unit.
func (g Game) Scale() float64 {
	return g.PlaneWidth / g.PlaneLength
}

// StepDuration returns how long one drawn step takes on the clients.
func (g Game) StepDuration() time.Duration {
	return time.Duration(float64(time.Second) / g.FunctionVelocity)
}

// DefaultGame returns the stock tuning.
func DefaultGame() Game {
	return Game{
		PlaneWidth:          770,
		PlaneHeight:         450,
		PlaneLength:         50,
		StepSize:            0.025,
		MaxSteps:            4000,
		SubStepPx:           2,
		FunctionVelocity:    400,
		PostShotDelay:       1500 * time.Millisecond,
		TurnTimeLimit:       60 * time.Second,
		TurnTickInterval:    time.Second,
		BotDelay:            1200 * time.Millisecond,
		HitRadius:           8,
		ExplosionRadius:     25,
		MaxAngle:            math.Pi/2 - 0.05,
		SoldiersPerPlayer:   2,
		CircleCount:         14,
		MinCircleRadius:     15,
		MaxCircleRadius:     60,
		MaxHintAttempts:     4,
		HintProgressRatio:   0.85,
		HintProximityFactor: 1.25,
	}
}

// Server holds listener and storage settings.
type Server struct {
	Addr           string
	DBPath         string
	AllowedOrigins []string
}

// Hint selects and configures the hint backend.
type Hint struct {
	// Provider is one of "llm", "script" or "none".
	Provider      string
	Endpoint      string
	Model         string
	APIKey        string
	ScriptPath    string
	Timeout       time.Duration
	MaxRetryDelay time.Duration
}

// Config is the full runtime configuration.
type Config struct {
	Server Server
	Game   Game
	Hint   Hint
}

// Load reads `.env` (if any) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	} else if err == nil {
		log.Println("[CONFIG] loaded environment overrides from .env")
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function, which keeps tests away from
// the real process environment.
func FromEnv(getenv func(string) string) (*Config, error) {
	r := envReader{getenv: getenv}
	g := DefaultGame()

	cfg := &Config{
		Server: Server{
			Addr:           r.str("FUNCWAR_ADDR", "127.0.0.1:8090"),
			DBPath:         r.str("FUNCWAR_DB_PATH", "funcwar.db"),
			AllowedOrigins: r.list("FUNCWAR_ALLOWED_ORIGINS"),
		},
		Game: Game{
			PlaneWidth:          r.float("FUNCWAR_PLANE_WIDTH", g.PlaneWidth),
			PlaneHeight:         r.float("FUNCWAR_PLANE_HEIGHT", g.PlaneHeight),
			PlaneLength:         r.float("FUNCWAR_PLANE_LENGTH", g.PlaneLength),
			StepSize:            r.float("FUNCWAR_STEP_SIZE", g.StepSize),
			MaxSteps:            r.int("FUNCWAR_MAX_STEPS", g.MaxSteps),
			SubStepPx:           r.float("FUNCWAR_SUBSTEP_PX", g.SubStepPx),
			FunctionVelocity:    r.float("FUNCWAR_FUNCTION_VELOCITY", g.FunctionVelocity),
			PostShotDelay:       r.duration("FUNCWAR_POST_SHOT_DELAY", g.PostShotDelay),
			TurnTimeLimit:       r.duration("FUNCWAR_TURN_TIME_LIMIT", g.TurnTimeLimit),
			TurnTickInterval:    r.duration("FUNCWAR_TURN_TICK_INTERVAL", g.TurnTickInterval),
			BotDelay:            r.duration("FUNCWAR_BOT_DELAY", g.BotDelay),
			HitRadius:           r.float("FUNCWAR_HIT_RADIUS", g.HitRadius),
			ExplosionRadius:     r.float("FUNCWAR_EXPLOSION_RADIUS", g.ExplosionRadius),
			MaxAngle:            r.float("FUNCWAR_MAX_ANGLE", g.MaxAngle),
			SoldiersPerPlayer:   r.int("FUNCWAR_SOLDIERS_PER_PLAYER", g.SoldiersPerPlayer),
			CircleCount:         r.int("FUNCWAR_CIRCLE_COUNT", g.CircleCount),
			MinCircleRadius:     r.float("FUNCWAR_MIN_CIRCLE_RADIUS", g.MinCircleRadius),
			MaxCircleRadius:     r.float("FUNCWAR_MAX_CIRCLE_RADIUS", g.MaxCircleRadius),
			MaxHintAttempts:     r.int("FUNCWAR_MAX_HINT_ATTEMPTS", g.MaxHintAttempts),
			HintProgressRatio:   r.float("FUNCWAR_HINT_PROGRESS_RATIO", g.HintProgressRatio),
			HintProximityFactor: r.float("FUNCWAR_HINT_PROXIMITY_FACTOR", g.HintProximityFactor),
		},
		Hint: Hint{
			Provider:      strings.ToLower(r.str("FUNCWAR_HINT_PROVIDER", "none")),
			Endpoint:      r.str("FUNCWAR_HINT_ENDPOINT", ""),
			Model:         r.str("FUNCWAR_HINT_MODEL", ""),
			APIKey:        r.str("FUNCWAR_HINT_API_KEY", ""),
			ScriptPath:    r.str("FUNCWAR_HINT_SCRIPT", ""),
			Timeout:       r.duration("FUNCWAR_HINT_TIMEOUT", 20*time.Second),
			MaxRetryDelay: r.duration("FUNCWAR_HINT_MAX_RETRY_DELAY", 5*time.Second),
		},
	}
	if r.err != nil {
		return nil, r.err
	}
	if err := cfg.Game.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the simulation cannot run with.
func (g Game) Validate() error {
	switch {
	case g.PlaneWidth <= 0 || g.PlaneHeight <= 0 || g.PlaneLength <= 0:
		return fmt.Errorf("config: plane dimensions must be positive")
	case g.StepSize <= 0 || g.MaxSteps <= 0:
		return fmt.Errorf("config: step size and max steps must be positive")
	case g.SubStepPx <= 0:
		return fmt.Errorf("config: sub-step interval must be positive")
	case g.FunctionVelocity <= 0:
		return fmt.Errorf("config: function velocity must be positive")
	case g.SoldiersPerPlayer <= 0:
		return fmt.Errorf("config: soldiers per player must be positive")
	case g.MaxHintAttempts <= 0:
		return fmt.Errorf("config: max hint attempts must be positive")
	case g.MaxAngle <= 0 || g.MaxAngle >= math.Pi/2:
		return fmt.Errorf("config: max angle must be in (0, pi/2)")
	}
	return nil
}

type envReader struct {
	getenv func(string) string
	err    error
}

func (r *envReader) str(key, def string) string {
	if v := strings.TrimSpace(r.getenv(key)); v != "" {
		return v
	}
	return def
}

func (r *envReader) list(key string) []string {
	raw := strings.TrimSpace(r.getenv(key))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (r *envReader) float(key string, def float64) float64 {
	raw := strings.TrimSpace(r.getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return v
}

func (r *envReader) int(key string, def int) int {
	raw := strings.TrimSpace(r.getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return v
}

func (r *envReader) duration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(r.getenv(key))
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return v
}

func (r *envReader) fail(key string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("config: invalid %s: %w", key, err)
	}
}
