package api

import (
	"github.com/MJE43/funcwar-server/internal/game"
	"github.com/MJE43/funcwar-server/internal/store"
	"github.com/MJE43/funcwar-server/internal/terrain"
)

// APIError represents a structured error response with context
type APIError struct {
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
}

// Error implements the error interface
func (e APIError) Error() string {
	return e.Message
}

// Error types with proper categorization
const (
	// Input validation errors
	ErrTypeValidation      = "validation_error"
	ErrTypeInvalidFunction = "invalid_function"
	ErrTypeInvalidShot     = "invalid_shot"

	// Lookup errors
	ErrTypeRoomNotFound  = "room_not_found"
	ErrTypeMatchNotFound = "match_not_found"

	// System errors
	ErrTypeTimeout            = "timeout"
	ErrTypeInternal           = "internal_error"
	ErrTypeServiceUnavailable = "service_unavailable"
)

// ErrorCategory represents error categories for monitoring
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryNotFound   ErrorCategory = "not_found"
	CategorySystem     ErrorCategory = "system"
	CategoryTimeout    ErrorCategory = "timeout"
)

// GetErrorCategory returns the category for an error type
func GetErrorCategory(errType string) ErrorCategory {
	switch errType {
	case ErrTypeValidation, ErrTypeInvalidFunction, ErrTypeInvalidShot:
		return CategoryValidation
	case ErrTypeRoomNotFound, ErrTypeMatchNotFound:
		return CategoryNotFound
	case ErrTypeTimeout:
		return CategoryTimeout
	default:
		return CategorySystem
	}
}

// VersionInfo contains server version information
type VersionInfo struct {
	ServerVersion string `json:"server_version"`
	GitCommit     string `json:"git_commit,omitempty"`
	BuildTime     string `json:"build_time,omitempty"`
}

type RoomsResponse struct {
	Rooms []game.RoomInfo `json:"rooms"`
	Count int             `json:"count"`
}

type CreateRoomResponse struct {
	Code  string `json:"code"`
	WSURL string `json:"ws_url"`
}

type LeaderboardResponse struct {
	Entries []store.LeaderboardEntry `json:"entries"`
}

type MatchesResponse struct {
	Matches []store.Match `json:"matches"`
	Limit   int           `json:"limit"`
	Offset  int           `json:"offset"`
}

// CheckFunctionRequest asks whether a function compiles for a mode.
type CheckFunctionRequest struct {
	Function string `json:"function"`
	Mode     string `json:"mode,omitempty"`
}

type CheckFunctionResponse struct {
	Valid     bool   `json:"valid"`
	Canonical string `json:"canonical"`
	Mode      string `json:"mode"`
	Tokens    int    `json:"tokens"`
}

// PreviewShotRequest simulates one shot on an ad-hoc terrain.
type PreviewShotRequest struct {
	Function string           `json:"function"`
	Mode     string           `json:"mode,omitempty"`
	Team     int              `json:"team"`
	X        float64          `json:"x"`
	Y        float64          `json:"y"`
	Angle    float64          `json:"angle,omitempty"`
	Circles  []terrain.Circle `json:"circles,omitempty"`
}

type PreviewShotResponse struct {
	Path       []terrain.Point `json:"path"`
	Explosion  terrain.Circle  `json:"explosion"`
	Stop       string          `json:"stop"`
	FireAngle  float64         `json:"fire_angle"`
	DurationMs int64           `json:"duration_ms"`
}
