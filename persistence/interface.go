// persistence/interface.go
package persistence

import (
	"encoding/json"
	"errors"
	"time"
)

// SessionHeader is the first line of every save file.
type SessionHeader struct {
	Type    string    `json:"type"` // "session_start"
	Room    string    `json:"room"`
	Host    string    `json:"host"`
	Players []string  `json:"players"`
	At      time.Time `json:"at"`
}

// SnapshotRecord is one accepted state push.
type SnapshotRecord struct {
	Version   int             `json:"version"`
	ActorID   string          `json:"actorId"`
	Action    string          `json:"action"`
	At        time.Time       `json:"at"`
	GameState json.RawMessage `json:"gameState"`
}

// RollbackRecord marks an undone push.
type RollbackRecord struct {
	Type          string    `json:"type"` // "rollback"
	UndoneVersion int       `json:"undoneVersion"`
	Version       int       `json:"version"`
	At            time.Time `json:"at"`
}

// SaveInfo describes one save file for the listing API.
type SaveInfo struct {
	ID        string    `json:"id"`
	Room      string    `json:"room"`
	Host      string    `json:"host"`
	Players   []string  `json:"players"`
	CreatedAt time.Time `json:"createdAt"`
}

// SaveLog is one room's (or local session's) append-only log. Writes are
// fire-and-forget from the caller's point of view: a failure must never
// stop the game.
type SaveLog interface {
	ID() string
	AppendSnapshot(rec SnapshotRecord) error
	AppendRollback(rec RollbackRecord) error
	Close() error
}

// Store 存档仓库
type Store interface {
	Open(room, host string, players []string) (SaveLog, error)
	List() ([]SaveInfo, error)
	LoadLatest(id string) (*SnapshotRecord, error)
}

// 错误定义
var (
	ErrSaveNotFound = errors.New("save not found")
	ErrNoSnapshot   = errors.New("save contains no snapshot")
)
