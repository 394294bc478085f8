// server/http.go
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/wfunc/settlers/logger"
	"github.com/wfunc/settlers/persistence"
	"github.com/wfunc/settlers/session"
)

// Request bodies are small JSON blobs; anything larger is abuse.
const maxBodyBytes = 256 * 1024

type localSession struct {
	save    persistence.SaveLog
	version int
}

func (s *GameServer) routes() {
	s.mux.HandleFunc("/ws", s.handleWebSocket)
	s.mux.HandleFunc("/api/game-saves", s.handleListSaves)
	s.mux.HandleFunc("/api/game-saves/load", s.handleLoadSave)
	s.mux.HandleFunc("/api/local-game/start", s.handleLocalStart)
	s.mux.HandleFunc("/api/local-game/state", s.handleLocalState)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Warnf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}

func (s *GameServer) handleListSaves(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	infos, err := s.store.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "unable to list saves")
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

func (s *GameServer) handleLoadSave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing id")
		return
	}

	rec, err := s.store.LoadLatest(id)
	switch {
	case errors.Is(err, persistence.ErrSaveNotFound):
		writeError(w, http.StatusNotFound, "save not found")
		return
	case errors.Is(err, persistence.ErrNoSnapshot):
		writeError(w, http.StatusNotFound, "save has no snapshot")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "unable to load save")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleLocalStart opens a save log for a single-machine game. Offline
// games reuse the same NDJSON format as rooms so they show up in the
// saves list and can be reloaded the same way.
func (s *GameServer) handleLocalStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		Players []string `json:"players"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Players) == 0 {
		writeError(w, http.StatusBadRequest, "players required")
		return
	}
	names := make([]string, len(req.Players))
	for i, raw := range req.Players {
		names[i] = session.SanitizeName(raw, "Player")
	}

	save, err := s.store.Open("LOCAL", names[0], names)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "unable to open save")
		return
	}

	s.localMu.Lock()
	s.localSessions[save.ID()] = &localSession{save: save}
	s.localMu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"sessionId": save.ID()})
}

func (s *GameServer) handleLocalState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		SessionID string          `json:"sessionId"`
		GameState json.RawMessage `json:"gameState"`
		Action    string          `json:"action"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.SessionID == "" || len(req.GameState) == 0 {
		writeError(w, http.StatusBadRequest, "sessionId and gameState required")
		return
	}

	s.localMu.Lock()
	ls, exists := s.localSessions[req.SessionID]
	if !exists {
		s.localMu.Unlock()
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	ls.version++
	rec := persistence.SnapshotRecord{
		Version:   ls.version,
		ActorID:   "local",
		Action:    req.Action,
		At:        time.Now().UTC(),
		GameState: req.GameState,
	}
	err := ls.save.AppendSnapshot(rec)
	s.localMu.Unlock()

	if err != nil {
		if s.mon != nil {
			s.mon.IncSaveFailures()
		}
		writeError(w, http.StatusInternalServerError, "unable to append snapshot")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"version": rec.Version})
}
