// room/room.go
package room

import (
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/wfunc/settlers/game"
	"github.com/wfunc/settlers/logger"
	"github.com/wfunc/settlers/persistence"
)

// Room codes avoid easily-confused characters.
const (
	CodeChars  = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	CodeLength = 5
)

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrRoomFull       = errors.New("room is full")
	ErrAlreadyStarted = errors.New("game already started")
	ErrNotStarted     = errors.New("game has not started yet")
	ErrNotHost        = errors.New("only the host can do that")
	ErrPlayerCount    = errors.New("rooms require 3-4 players")
	ErrNotSeated      = errors.New("only room players can sync state")
	ErrNotYourTurn    = errors.New("not your turn")
	ErrMissingState   = errors.New("missing game state payload")
	ErrNothingToUndo  = errors.New("not enough history to roll back")
	ErrCodesExhausted = errors.New("unable to allocate room code")
)

// Seat 房间内的一个座位
type Seat struct {
	ID        string
	Name      string
	Connected bool
}

// HistoryEntry is one accepted state push, kept for rollback.
type HistoryEntry struct {
	Version int
	State   json.RawMessage
	ActorID string
	Action  string
	At      time.Time
}

// Limits carries the manager's player-count and history configuration
// into each room.
type Limits struct {
	MinPlayers int
	MaxPlayers int
	HistoryCap int
}

// Room 是一个游戏房间：座位、回合所有权与状态转发
type Room struct {
	Code string

	mutex       sync.Mutex
	hostID      string
	started     bool
	seatMap     []string
	players     []*Seat
	version     int
	gameState   json.RawMessage
	turnSeconds int
	history     []HistoryEntry
	limits      Limits
	store       persistence.Store
	save        persistence.SaveLog
	broadcaster Broadcaster
	observer    SaveObserver
	archived    bool
}

// NewRoom creates a room with the creator seated as host.
func NewRoom(code, hostID, hostName string, limits Limits, store persistence.Store, broadcaster Broadcaster) *Room {
	return &Room{
		Code:        code,
		hostID:      hostID,
		players:     []*Seat{{ID: hostID, Name: hostName, Connected: true}},
		limits:      limits,
		store:       store,
		broadcaster: broadcaster,
	}
}

// Join seats a new client, or reconnects a known seat id mid-game.
func (r *Room) Join(id, name string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, seat := range r.players {
		if seat.ID == id {
			// Reconnection: the seat and its numbering survive.
			seat.Connected = true
			return nil
		}
	}
	if r.started {
		return ErrAlreadyStarted
	}
	if len(r.players) >= r.limits.MaxPlayers {
		return ErrRoomFull
	}
	r.players = append(r.players, &Seat{ID: id, Name: name, Connected: true})
	return nil
}

// Leave handles a disconnect or explicit leave. Before the game starts the
// seat is removed; during a game it is only marked disconnected so state
// and seat numbering survive reconnection. The host role migrates to the
// next connected member. Returns true when the room is dead.
func (r *Room) Leave(id string) (empty bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	found := false
	for i, seat := range r.players {
		if seat.ID != id {
			continue
		}
		found = true
		if r.started {
			seat.Connected = false
		} else {
			r.players = append(r.players[:i], r.players[i+1:]...)
		}
		break
	}
	if !found {
		return false
	}

	r.markHostLocked()

	connected := 0
	for _, seat := range r.players {
		if seat.Connected {
			connected++
		}
	}
	if len(r.players) == 0 || connected == 0 {
		r.closeSaveLocked()
		return true
	}
	return false
}

// markHostLocked migrates the host role to the next connected member when
// the current host is gone.
func (r *Room) markHostLocked() {
	for _, seat := range r.players {
		if seat.ID == r.hostID && seat.Connected {
			return
		}
	}
	r.hostID = ""
	for _, seat := range r.players {
		if seat.Connected {
			r.hostID = seat.ID
			return
		}
	}
}

// Start freezes the seat map and opens the on-disk save log. Host only,
// 3-4 players.
func (r *Room) Start(actorID string, turnSeconds int) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if actorID != r.hostID {
		return ErrNotHost
	}
	if r.started {
		return ErrAlreadyStarted
	}
	if len(r.players) < r.limits.MinPlayers || len(r.players) > r.limits.MaxPlayers {
		return ErrPlayerCount
	}

	r.started = true
	r.seatMap = make([]string, len(r.players))
	names := make([]string, len(r.players))
	for i, seat := range r.players {
		r.seatMap[i] = seat.ID
		names[i] = seat.Name
	}
	r.gameState = nil
	r.version = 0
	r.history = nil
	r.turnSeconds = game.ClampTurnSeconds(turnSeconds)

	if r.store != nil {
		save, err := r.store.Open(r.Code, r.hostID, names)
		if err != nil {
			// Saving is best-effort; the game itself must start.
			logger.Log.Warnf("room %s: open save log failed: %v", r.Code, err)
		} else {
			r.save = save
		}
	}
	return nil
}

// stateTurn is the slice of a pushed snapshot the relay actually reads.
type stateTurn struct {
	CurrentPlayer *int   `json:"currentPlayer"`
	Phase         string `json:"phase"`
}

// PushState accepts a full snapshot from the seat owning the current turn
// (or from the host covering a disconnected seat), bumps the version and
// records it for rollback. The relay trusts the blob itself.
func (r *Room) PushState(actorID string, state json.RawMessage, action string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if !r.started {
		return ErrNotStarted
	}
	seated := false
	for _, id := range r.seatMap {
		if id == actorID {
			seated = true
			break
		}
	}
	if !seated {
		return ErrNotSeated
	}
	if len(state) == 0 {
		return ErrMissingState
	}

	// Turn ownership is judged against the state being replaced.
	if r.gameState != nil {
		var turn stateTurn
		if err := json.Unmarshal(r.gameState, &turn); err == nil && turn.CurrentPlayer != nil {
			cp := *turn.CurrentPlayer
			if cp >= 0 && cp < len(r.seatMap) {
				expected := r.seatMap[cp]
				if expected != actorID && !r.hostTakeoverAllowedLocked(actorID, expected) {
					return ErrNotYourTurn
				}
			}
		}
	}

	r.version++
	r.gameState = state
	entry := HistoryEntry{
		Version: r.version,
		State:   state,
		ActorID: actorID,
		Action:  action,
		At:      time.Now().UTC(),
	}
	r.history = append(r.history, entry)
	if hc := r.limits.HistoryCap; hc > 0 && len(r.history) > hc {
		// Ring semantics: oldest entries drop past the cap.
		r.history = r.history[len(r.history)-hc:]
	}

	r.appendSnapshotLocked(entry)
	return nil
}

// hostTakeoverAllowedLocked permits the host to act for a seat whose owner
// is disconnected.
func (r *Room) hostTakeoverAllowedLocked(actorID, seatOwner string) bool {
	if actorID != r.hostID {
		return false
	}
	for _, seat := range r.players {
		if seat.ID == seatOwner {
			return !seat.Connected
		}
	}
	// Seat owner no longer listed at all: treat as disconnected.
	return true
}

// Rollback pops the newest history entry and makes the entry now on top
// the current state again, under a fresh version number. Host only; needs
// at least two entries.
func (r *Room) Rollback(actorID string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if !r.started {
		return ErrNotStarted
	}
	if actorID != r.hostID {
		return ErrNotHost
	}
	if len(r.history) < 2 {
		return ErrNothingToUndo
	}

	undone := r.history[len(r.history)-1]
	r.history = r.history[:len(r.history)-1]
	top := r.history[len(r.history)-1]

	r.version++
	r.gameState = top.State

	if r.save != nil {
		rec := persistence.RollbackRecord{
			UndoneVersion: undone.Version,
			Version:       r.version,
			At:            time.Now().UTC(),
		}
		if err := r.save.AppendRollback(rec); err != nil {
			logger.Log.Warnf("room %s: append rollback failed: %v", r.Code, err)
			if r.observer != nil {
				r.observer.IncSaveFailures()
			}
		}
	}
	return nil
}

func (r *Room) appendSnapshotLocked(entry HistoryEntry) {
	if r.save == nil {
		return
	}
	rec := persistence.SnapshotRecord{
		Version:   entry.Version,
		ActorID:   entry.ActorID,
		Action:    entry.Action,
		At:        entry.At,
		GameState: entry.State,
	}
	start := time.Now()
	err := r.save.AppendSnapshot(rec)
	if r.observer != nil {
		r.observer.ObserveSaveLatency(time.Since(start))
	}
	if err != nil {
		// Non-fatal: the live game continues without the save.
		logger.Log.Warnf("room %s: append snapshot failed: %v", r.Code, err)
		if r.observer != nil {
			r.observer.IncSaveFailures()
		}
	}
}

func (r *Room) closeSaveLocked() {
	if r.save == nil {
		return
	}
	if err := r.save.Close(); err != nil {
		logger.Log.Warnf("room %s: close save failed: %v", r.Code, err)
	}
	r.save = nil
}

// Close releases the room's save log.
func (r *Room) Close() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.closeSaveLocked()
}

// --- 只读访问 ---

func (r *Room) HostID() string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.hostID
}

func (r *Room) Started() bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.started
}

func (r *Room) Version() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.version
}

func (r *Room) SeatCount() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.players)
}

func (r *Room) HistoryCount() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.history)
}

// CurrentPhase reads the phase tag out of the last accepted snapshot.
func (r *Room) CurrentPhase() string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.gameState == nil {
		return ""
	}
	var turn stateTurn
	if err := json.Unmarshal(r.gameState, &turn); err != nil {
		return ""
	}
	return turn.Phase
}

// MarkArchived flips the archived flag once; returns false when already set.
func (r *Room) MarkArchived() bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.archived {
		return false
	}
	r.archived = true
	return true
}

// PublicSeat mirrors one seat on the wire.
type PublicSeat struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
}

// SaveSummary points members at the room's save file.
type SaveSummary struct {
	File         string `json:"file"`
	HistoryCount int    `json:"historyCount"`
}

// PublicRoom is the room payload broadcast to members.
type PublicRoom struct {
	Code        string          `json:"code"`
	HostID      string          `json:"hostId"`
	Started     bool            `json:"started"`
	SeatMap     []string        `json:"seatMap"`
	Players     []PublicSeat    `json:"players"`
	Version     int             `json:"version"`
	GameState   json.RawMessage `json:"gameState"`
	TurnSeconds int             `json:"turnSeconds,omitempty"`
	Save        *SaveSummary    `json:"save,omitempty"`
}

// Public snapshots the room for broadcast.
func (r *Room) Public() *PublicRoom {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	pub := &PublicRoom{
		Code:        r.Code,
		HostID:      r.hostID,
		Started:     r.started,
		SeatMap:     append([]string{}, r.seatMap...),
		Players:     make([]PublicSeat, len(r.players)),
		Version:     r.version,
		GameState:   r.gameState,
		TurnSeconds: r.turnSeconds,
	}
	for i, seat := range r.players {
		pub.Players[i] = PublicSeat{ID: seat.ID, Name: seat.Name, Connected: seat.Connected}
	}
	if r.save != nil {
		pub.Save = &SaveSummary{File: r.save.ID(), HistoryCount: len(r.history)}
	}
	return pub
}

// Broadcast fans the current public state out to members.
func (r *Room) Broadcast() {
	if r.broadcaster == nil {
		return
	}
	r.broadcaster.BroadcastRoomState(r.Code, r.Public())
}

// --- 房间管理器 ---

// Manager 管理所有房间
type Manager struct {
	rooms    map[string]*Room
	mutex    sync.RWMutex
	limits   Limits
	store    persistence.Store
	observer SaveObserver
}

// SetObserver installs a save-log health reporter for rooms created
// after this call. Intended to be set once during startup.
func (m *Manager) SetObserver(obs SaveObserver) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.observer = obs
}

// NewRoomManager 创建一个新的房间管理器
func NewRoomManager(limits Limits, store persistence.Store) *Manager {
	return &Manager{
		rooms:  make(map[string]*Room),
		limits: limits,
		store:  store,
	}
}

// CreateRoom allocates a fresh code and seats the creator as host.
func (m *Manager) CreateRoom(hostID, hostName string, broadcaster Broadcaster) (*Room, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	code, err := m.uniqueCodeLocked()
	if err != nil {
		return nil, err
	}
	room := NewRoom(code, hostID, hostName, m.limits, m.store, broadcaster)
	room.observer = m.observer
	m.rooms[code] = room
	return room, nil
}

// GetRoom 获取一个房间
func (m *Manager) GetRoom(code string) (*Room, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	room, exists := m.rooms[code]
	return room, exists
}

// RemoveRoom 移除并关闭一个房间
func (m *Manager) RemoveRoom(code string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if room, exists := m.rooms[code]; exists {
		room.Close()
		delete(m.rooms, code)
	}
}

// Count returns the number of live rooms.
func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms)
}

func (m *Manager) uniqueCodeLocked() (string, error) {
	for attempts := 0; attempts < 50; attempts++ {
		code := randomCode()
		if _, taken := m.rooms[code]; !taken {
			return code, nil
		}
	}
	return "", ErrCodesExhausted
}

func randomCode() string {
	out := make([]byte, CodeLength)
	for i := range out {
		out[i] = CodeChars[rand.Intn(len(CodeChars))]
	}
	return string(out)
}
