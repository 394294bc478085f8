package services

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/wfunc/settlers/persistence"
	"gorm.io/gorm"
)

// MockArchive captures saved records.
type MockArchive struct {
	saved   []*persistence.GameRecord
	saveErr error
}

func (a *MockArchive) SaveGameRecord(rec *persistence.GameRecord) error {
	if a.saveErr != nil {
		return a.saveErr
	}
	a.saved = append(a.saved, rec)
	return nil
}

func (a *MockArchive) PlayerStats(name string) (*persistence.PlayerStats, error) {
	return &persistence.PlayerStats{TotalGames: 2, Wins: 1, Losses: 1}, nil
}

func (a *MockArchive) Transaction(fn func(tx *gorm.DB) error) error { return nil }
func (a *MockArchive) Close() error                                 { return nil }

func finalState() json.RawMessage {
	data, _ := json.Marshal(map[string]interface{}{
		"phase": "gameover",
		"round": 17,
		"players": []map[string]interface{}{
			{"name": "Alice", "settlements": []int{1, 2}, "cities": []int{3}},
			{"name": "Bob", "settlements": []int{4, 5, 6, 7}, "cities": []int{8, 9, 10}},
			{"name": "Cara", "settlements": []int{11}, "cities": []int{}},
		},
	})
	return data
}

func TestArchiveFinishedGame(t *testing.T) {
	archive := &MockArchive{}
	svc := NewRecordService(archive)

	if err := svc.ArchiveFinishedGame("ABCDE", finalState()); err != nil {
		t.Fatalf("ArchiveFinishedGame failed: %v", err)
	}
	if len(archive.saved) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(archive.saved))
	}

	rec := archive.saved[0]
	if rec.RoomCode != "ABCDE" || rec.Rounds != 17 {
		t.Errorf("Record header wrong: %+v", rec)
	}
	if rec.Winner != "Bob" {
		t.Errorf("Winner = %s, want Bob (10 points)", rec.Winner)
	}

	bob, isMap := rec.Players["Bob"].(map[string]interface{})
	if !isMap {
		t.Fatalf("Player entry wrong shape: %#v", rec.Players["Bob"])
	}
	if bob["points"] != 10 || bob["outcome"] != "win" {
		t.Errorf("Bob entry wrong: %v", bob)
	}
	alice := rec.Players["Alice"].(map[string]interface{})
	if alice["points"] != 4 || alice["outcome"] != "loss" {
		t.Errorf("Alice entry wrong: %v", alice)
	}
}

func TestArchiveFinishedGame_BadInput(t *testing.T) {
	svc := NewRecordService(&MockArchive{})

	if err := svc.ArchiveFinishedGame("X", json.RawMessage("not json")); err == nil {
		t.Error("Malformed state should fail")
	}
	empty, _ := json.Marshal(map[string]interface{}{"players": []int{}})
	if err := svc.ArchiveFinishedGame("X", empty); !errors.Is(err, ErrNoPlayers) {
		t.Errorf("Expected ErrNoPlayers, got %v", err)
	}
}
