// services/record_service.go
package services

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wfunc/settlers/game"
	"github.com/wfunc/settlers/persistence"
)

var ErrNoPlayers = errors.New("game state has no players")

// RecordService 将结束的对局写入归档数据库
type RecordService struct {
	archive persistence.Archive
}

func NewRecordService(archive persistence.Archive) *RecordService {
	return &RecordService{archive: archive}
}

// ArchiveFinishedGame reads the final game state of a room and stores a
// per-player result record. The winner is whoever holds the most points;
// the caller is expected to invoke this once the game is over.
func (s *RecordService) ArchiveFinishedGame(roomCode string, stateJSON json.RawMessage) error {
	var state game.GameState
	if err := json.Unmarshal(stateJSON, &state); err != nil {
		return fmt.Errorf("decode final state: %w", err)
	}
	if len(state.Players) == 0 {
		return ErrNoPlayers
	}

	winner := state.Players[0]
	for _, p := range state.Players[1:] {
		if p.VictoryPoints() > winner.VictoryPoints() {
			winner = p
		}
	}

	players := make(map[string]interface{}, len(state.Players))
	for _, p := range state.Players {
		outcome := "loss"
		if p == winner {
			outcome = "win"
		}
		players[p.Name] = map[string]interface{}{
			"points":  p.VictoryPoints(),
			"outcome": outcome,
		}
	}

	rec := &persistence.GameRecord{
		RoomCode: roomCode,
		Winner:   winner.Name,
		Rounds:   state.Round,
		Players:  players,
	}
	return s.archive.SaveGameRecord(rec)
}

// PlayerStats 查询玩家的累计战绩
func (s *RecordService) PlayerStats(name string) (*persistence.PlayerStats, error) {
	return s.archive.PlayerStats(name)
}
