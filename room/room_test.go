package room

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/wfunc/settlers/persistence"
)

// MockSaveLog records appended lines in memory.
type MockSaveLog struct {
	id        string
	snapshots []persistence.SnapshotRecord
	rollbacks []persistence.RollbackRecord
	closed    bool
	failNext  bool
}

func (l *MockSaveLog) ID() string { return l.id }

func (l *MockSaveLog) AppendSnapshot(rec persistence.SnapshotRecord) error {
	if l.failNext {
		l.failNext = false
		return errors.New("disk full")
	}
	l.snapshots = append(l.snapshots, rec)
	return nil
}

func (l *MockSaveLog) AppendRollback(rec persistence.RollbackRecord) error {
	l.rollbacks = append(l.rollbacks, rec)
	return nil
}

func (l *MockSaveLog) Close() error {
	l.closed = true
	return nil
}

// MockStore hands out MockSaveLogs.
type MockStore struct {
	logs []*MockSaveLog
}

func (s *MockStore) Open(room, host string, players []string) (persistence.SaveLog, error) {
	log := &MockSaveLog{id: fmt.Sprintf("save-%d", len(s.logs))}
	s.logs = append(s.logs, log)
	return log, nil
}

func (s *MockStore) List() ([]persistence.SaveInfo, error) { return nil, nil }

func (s *MockStore) LoadLatest(id string) (*persistence.SnapshotRecord, error) {
	return nil, persistence.ErrSaveNotFound
}

// MockBroadcaster counts fanouts.
type MockBroadcaster struct {
	calls int
	last  *PublicRoom
}

func (b *MockBroadcaster) BroadcastRoomState(code string, pub *PublicRoom) {
	b.calls++
	b.last = pub
}

func testLimits() Limits {
	return Limits{MinPlayers: 3, MaxPlayers: 4, HistoryCap: 50}
}

func stateWithTurn(current int, phase string) json.RawMessage {
	data, _ := json.Marshal(map[string]interface{}{
		"currentPlayer": current,
		"phase":         phase,
	})
	return data
}

// newStartedRoom seats host h plus p2, p3 and starts the game.
func newStartedRoom(t *testing.T) (*Room, *MockStore) {
	t.Helper()
	store := &MockStore{}
	r := NewRoom("TEST1", "h", "Host", testLimits(), store, &MockBroadcaster{})
	if err := r.Join("p2", "Two"); err != nil {
		t.Fatalf("Join p2: %v", err)
	}
	if err := r.Join("p3", "Three"); err != nil {
		t.Fatalf("Join p3: %v", err)
	}
	if err := r.Start("h", 60); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return r, store
}

func TestRoom_JoinRules(t *testing.T) {
	r := NewRoom("TEST1", "h", "Host", testLimits(), nil, nil)

	for i := 0; i < 3; i++ {
		if err := r.Join(fmt.Sprintf("p%d", i), "x"); err != nil {
			t.Fatalf("Join %d failed: %v", i, err)
		}
	}
	if err := r.Join("late", "x"); !errors.Is(err, ErrRoomFull) {
		t.Errorf("Fifth join should hit the cap, got %v", err)
	}
	// A seated id can always re-join (reconnect), even at the cap.
	if err := r.Join("p0", "x"); err != nil {
		t.Errorf("Reconnect join failed: %v", err)
	}
}

func TestRoom_JoinAfterStart(t *testing.T) {
	r, _ := newStartedRoom(t)

	if err := r.Join("stranger", "x"); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("New player after start should be rejected, got %v", err)
	}

	// Mid-game a known seat reconnects.
	r.Leave("p2")
	if err := r.Join("p2", "Two"); err != nil {
		t.Errorf("Reconnect after start failed: %v", err)
	}
}

func TestRoom_StartValidation(t *testing.T) {
	r := NewRoom("TEST1", "h", "Host", testLimits(), nil, nil)

	if err := r.Start("h", 60); !errors.Is(err, ErrPlayerCount) {
		t.Errorf("Start with one player should fail, got %v", err)
	}

	r.Join("p2", "Two")
	r.Join("p3", "Three")
	if err := r.Start("p2", 60); !errors.Is(err, ErrNotHost) {
		t.Errorf("Non-host start should fail, got %v", err)
	}
	if err := r.Start("h", 60); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := r.Start("h", 60); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("Double start should fail, got %v", err)
	}
}

func TestRoom_StartClampsTurnSeconds(t *testing.T) {
	r := NewRoom("TEST1", "h", "Host", testLimits(), nil, nil)
	r.Join("p2", "Two")
	r.Join("p3", "Three")
	if err := r.Start("h", 100000); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if pub := r.Public(); pub.TurnSeconds != 600 {
		t.Errorf("Turn seconds not clamped, got %d", pub.TurnSeconds)
	}
}

func TestRoom_PushState_TurnOwnership(t *testing.T) {
	r, store := newStartedRoom(t)

	// First push replaces nothing and is accepted from any seat.
	if err := r.PushState("h", stateWithTurn(0, "main"), "roll"); err != nil {
		t.Fatalf("First push failed: %v", err)
	}
	if r.Version() != 1 {
		t.Fatalf("Version should be 1, got %d", r.Version())
	}

	// Seat 0 belongs to "h"; a push from p2 must be rejected untouched.
	before := r.Public()
	if err := r.PushState("p2", stateWithTurn(1, "main"), "roll"); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("Out-of-turn push should be rejected, got %v", err)
	}
	after := r.Public()
	if after.Version != before.Version || string(after.GameState) != string(before.GameState) {
		t.Error("Rejected push must not change version or state")
	}

	// The owner of seat 0 advances the turn to seat 1...
	if err := r.PushState("h", stateWithTurn(1, "main"), "end_turn"); err != nil {
		t.Fatalf("Owner push failed: %v", err)
	}
	// ...after which seat 1's owner may push.
	if err := r.PushState("p2", stateWithTurn(2, "main"), "end_turn"); err != nil {
		t.Fatalf("New owner push failed: %v", err)
	}
	if r.Version() != 3 {
		t.Errorf("Version should be 3, got %d", r.Version())
	}

	if len(store.logs) != 1 || len(store.logs[0].snapshots) != 3 {
		t.Errorf("Save log should hold 3 snapshots, got %d", len(store.logs[0].snapshots))
	}
}

func TestRoom_PushState_Validation(t *testing.T) {
	r, _ := newStartedRoom(t)

	if err := r.PushState("stranger", stateWithTurn(0, "main"), "x"); !errors.Is(err, ErrNotSeated) {
		t.Errorf("Unseated push should fail, got %v", err)
	}
	if err := r.PushState("h", nil, "x"); !errors.Is(err, ErrMissingState) {
		t.Errorf("Empty state should fail, got %v", err)
	}

	fresh := NewRoom("X", "h", "Host", testLimits(), nil, nil)
	if err := fresh.PushState("h", stateWithTurn(0, "main"), "x"); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Push before start should fail, got %v", err)
	}
}

func TestRoom_HostTakeoverForDisconnectedSeat(t *testing.T) {
	r, _ := newStartedRoom(t)

	if err := r.PushState("h", stateWithTurn(1, "main"), "x"); err != nil {
		t.Fatalf("Push: %v", err)
	}

	// Seat 1 is p2's turn. The host may not cover while p2 is online.
	if err := r.PushState("h", stateWithTurn(2, "main"), "x"); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("Takeover with owner online should fail, got %v", err)
	}

	r.Leave("p2")
	if err := r.PushState("h", stateWithTurn(2, "main"), "x"); err != nil {
		t.Fatalf("Takeover for disconnected seat failed: %v", err)
	}

	// Seat 2's owner hands the turn back to the disconnected seat. A
	// non-host member may not cover it; the host may.
	if err := r.PushState("p3", stateWithTurn(1, "main"), "x"); err != nil {
		t.Fatalf("Owner push failed: %v", err)
	}
	if err := r.PushState("p3", stateWithTurn(2, "main"), "x"); !errors.Is(err, ErrNotYourTurn) {
		t.Errorf("Non-host takeover should fail, got %v", err)
	}
	if err := r.PushState("h", stateWithTurn(2, "main"), "x"); err != nil {
		t.Errorf("Host takeover should succeed, got %v", err)
	}
}

func TestRoom_Rollback(t *testing.T) {
	r, store := newStartedRoom(t)

	if err := r.Rollback("h"); !errors.Is(err, ErrNothingToUndo) {
		t.Errorf("Rollback with no history should fail, got %v", err)
	}

	first := stateWithTurn(0, "main")
	second := stateWithTurn(1, "main")
	r.PushState("h", first, "roll")
	if err := r.Rollback("h"); !errors.Is(err, ErrNothingToUndo) {
		t.Errorf("Rollback with one entry should fail, got %v", err)
	}

	r.PushState("h", second, "end_turn")
	if err := r.Rollback("p2"); !errors.Is(err, ErrNotHost) {
		t.Errorf("Non-host rollback should fail, got %v", err)
	}

	if err := r.Rollback("h"); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	pub := r.Public()
	if string(pub.GameState) != string(first) {
		t.Errorf("Rollback should restore the prior state, got %s", pub.GameState)
	}
	if pub.Version != 3 {
		t.Errorf("Rollback should bump the version, got %d", pub.Version)
	}
	if r.HistoryCount() != 1 {
		t.Errorf("History should shrink to 1, got %d", r.HistoryCount())
	}

	if got := len(store.logs[0].rollbacks); got != 1 {
		t.Fatalf("Expected 1 rollback record, got %d", got)
	}
	if rec := store.logs[0].rollbacks[0]; rec.UndoneVersion != 2 || rec.Version != 3 {
		t.Errorf("Rollback record wrong: %+v", rec)
	}
}

func TestRoom_HistoryCap(t *testing.T) {
	store := &MockStore{}
	limits := testLimits()
	limits.HistoryCap = 3
	r := NewRoom("TEST1", "h", "Host", limits, store, nil)
	r.Join("p2", "Two")
	r.Join("p3", "Three")
	if err := r.Start("h", 60); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for i := 0; i < 10; i++ {
		if err := r.PushState("h", stateWithTurn(0, "main"), "x"); err != nil {
			t.Fatalf("Push %d: %v", i, err)
		}
	}
	if r.HistoryCount() != 3 {
		t.Errorf("History should cap at 3, got %d", r.HistoryCount())
	}
	// The on-disk log keeps everything; only the in-memory ring trims.
	if got := len(store.logs[0].snapshots); got != 10 {
		t.Errorf("Save log should keep all 10 snapshots, got %d", got)
	}
}

func TestRoom_SaveFailureDoesNotBlockPush(t *testing.T) {
	r, store := newStartedRoom(t)
	store.logs[0].failNext = true

	if err := r.PushState("h", stateWithTurn(0, "main"), "x"); err != nil {
		t.Fatalf("Push should survive a failed append, got %v", err)
	}
	if r.Version() != 1 {
		t.Errorf("Version should advance despite the failed append, got %d", r.Version())
	}
}

func TestRoom_LeaveBeforeStartRemovesSeat(t *testing.T) {
	r := NewRoom("TEST1", "h", "Host", testLimits(), nil, nil)
	r.Join("p2", "Two")

	if empty := r.Leave("p2"); empty {
		t.Error("Room with the host still in it is not empty")
	}
	if pub := r.Public(); len(pub.Players) != 1 {
		t.Errorf("Seat should be removed, players: %d", len(pub.Players))
	}
}

func TestRoom_LeaveAfterStartKeepsSeat(t *testing.T) {
	r, _ := newStartedRoom(t)

	r.Leave("p2")
	pub := r.Public()
	if len(pub.Players) != 3 {
		t.Fatalf("Mid-game leave should keep the seat, players: %d", len(pub.Players))
	}
	for _, seat := range pub.Players {
		if seat.ID == "p2" && seat.Connected {
			t.Error("Leaver should be flagged disconnected")
		}
	}
}

func TestRoom_HostMigration(t *testing.T) {
	r, _ := newStartedRoom(t)

	r.Leave("h")
	if got := r.HostID(); got != "p2" {
		t.Errorf("Host should migrate to the next connected member, got %s", got)
	}

	r.Leave("p2")
	if got := r.HostID(); got != "p3" {
		t.Errorf("Host should migrate again, got %s", got)
	}
}

func TestRoom_EmptiesWhenLastPlayerLeaves(t *testing.T) {
	r, store := newStartedRoom(t)

	r.Leave("h")
	r.Leave("p2")
	if empty := r.Leave("p3"); !empty {
		t.Fatal("Room with nobody connected should report empty")
	}
	if !store.logs[0].closed {
		t.Error("Save log should be closed when the room empties")
	}
}

func TestManager_CreateAndRemove(t *testing.T) {
	m := NewRoomManager(testLimits(), &MockStore{})

	r, err := m.CreateRoom("h", "Host", &MockBroadcaster{})
	if err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	if len(r.Code) != CodeLength {
		t.Errorf("Code %q has wrong length", r.Code)
	}
	for _, c := range r.Code {
		found := false
		for _, allowed := range CodeChars {
			if c == allowed {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Code %q uses a disallowed character %q", r.Code, c)
		}
	}

	got, exists := m.GetRoom(r.Code)
	if !exists || got != r {
		t.Error("GetRoom should return the created room")
	}
	if m.Count() != 1 {
		t.Errorf("Count should be 1, got %d", m.Count())
	}

	m.RemoveRoom(r.Code)
	if _, exists := m.GetRoom(r.Code); exists {
		t.Error("Removed room should be gone")
	}
}

func TestRoom_PublicPayload(t *testing.T) {
	r, _ := newStartedRoom(t)
	r.PushState("h", stateWithTurn(0, "main"), "roll")

	pub := r.Public()
	if pub.Code != "TEST1" || pub.HostID != "h" || !pub.Started {
		t.Errorf("Room header wrong: %+v", pub)
	}
	if len(pub.SeatMap) != 3 || pub.SeatMap[0] != "h" {
		t.Errorf("Seat map wrong: %v", pub.SeatMap)
	}
	if pub.Save == nil || pub.Save.HistoryCount != 1 || pub.Save.File == "" {
		t.Errorf("Save summary wrong: %+v", pub.Save)
	}

	if r.CurrentPhase() != "main" {
		t.Errorf("CurrentPhase = %q, want main", r.CurrentPhase())
	}
}

func TestRoom_MarkArchivedOnce(t *testing.T) {
	r, _ := newStartedRoom(t)
	if !r.MarkArchived() {
		t.Error("First MarkArchived should succeed")
	}
	if r.MarkArchived() {
		t.Error("Second MarkArchived should report already done")
	}
}
