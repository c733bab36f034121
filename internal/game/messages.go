package game

import (
	"time"

	"github.com/MJE43/funcwar-server/internal/hint"
)

// Conn is a client connection as seen by a room.
type Conn interface {
	Send([]byte) error
	Close() error
}

// Join is issued once per connection.
type Join struct {
	Conn  Conn
	Name  string
	Reply chan<- JoinResult
}

type JoinResult struct {
	ClientID string
	Err      error
}

// Inbound carries one raw client message.
type Inbound struct {
	ClientID string
	Data     []byte
}

// Leave is issued on disconnect.
type Leave struct {
	ClientID string
}

// Tick drives turn timeouts.
type Tick struct {
	Now time.Time
}

type hintProgress struct {
	clientID string
	turnSeq  int64
	attempt  int
	max      int
}

type hintDone struct {
	clientID string
	turnSeq  int64
	resp     hint.Response
}
