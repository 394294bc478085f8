// server/server.go
package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/wfunc/settlers/broadcast"
	"github.com/wfunc/settlers/game"
	"github.com/wfunc/settlers/logger"
	"github.com/wfunc/settlers/monitor"
	"github.com/wfunc/settlers/network"
	"github.com/wfunc/settlers/persistence"
	"github.com/wfunc/settlers/room"
	"github.com/wfunc/settlers/services"
	"github.com/wfunc/settlers/session"
)

type GameServer struct {
	addr           string
	upgrader       websocket.Upgrader
	mux            *http.ServeMux
	roomManager    *room.Manager
	sessionManager *session.Manager
	broadcaster    *broadcast.RoomBroadcaster
	store          persistence.Store
	recorder       *services.RecordService
	mon            *monitor.Monitor

	localMu       sync.Mutex
	localSessions map[string]*localSession

	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

func NewGameServer(addr string, limits room.Limits, store persistence.Store) *GameServer {
	s := &GameServer{
		addr:           addr,
		mux:            http.NewServeMux(),
		roomManager:    room.NewRoomManager(limits, store),
		sessionManager: session.NewManager(),
		store:          store,
		localSessions:  make(map[string]*localSession),
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}

	s.broadcaster = broadcast.NewRoomBroadcaster(s.sessionManager)
	s.routes()
	return s
}

// SetRecorder enables archiving of finished games. Optional.
func (s *GameServer) SetRecorder(rec *services.RecordService) {
	s.recorder = rec
}

// SetMonitor enables metrics reporting. Optional.
func (s *GameServer) SetMonitor(mon *monitor.Monitor) {
	s.mon = mon
	s.roomManager.SetObserver(mon)
}

func (s *GameServer) Start() error {
	logger.Log.Infof("Game server listening on %s", s.addr)
	return http.ListenAndServe(s.addr, s.mux)
}

func (s *GameServer) Shutdown() {
	s.shutdownOnce.Do(func() {
		close(s.shutdownChan)
	})
}

// Handler exposes the route table, mainly for tests.
func (s *GameServer) Handler() http.Handler {
	return s.mux
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn)
}

func (s *GameServer) handleConnection(conn *websocket.Conn) {
	wsConn := network.NewWSConnection(conn)
	sess := session.NewSession(uuid.New().String(), wsConn)
	s.sessionManager.Add(sess)
	if s.mon != nil {
		s.mon.IncConnectedClients()
	}

	logger.Log.Infof("New connection from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())
		s.dropFromRoom(sess)
		s.sessionManager.Remove(sess.GetID())
		if s.mon != nil {
			s.mon.DecConnectedClients()
		}
		wsConn.Close()
	}()

	if err := sess.Send(network.Welcome(sess.GetID())); err != nil {
		return
	}

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
			msg, err := wsConn.ReadMessage()
			if err != nil {
				if errors.Is(err, network.ErrMalformedMessage) {
					// Bad frame, connection stays up.
					sess.Send(network.RoomError("malformed message"))
					continue
				}
				return
			}
			s.handleMessage(sess, msg)
		}
	}
}

func (s *GameServer) handleMessage(sess *session.Session, msg *network.Message) {
	switch msg.Type {
	case network.MsgCreateRoom:
		s.handleCreateRoom(sess, msg)
	case network.MsgJoinRoom:
		s.handleJoinRoom(sess, msg)
	case network.MsgLeaveRoom:
		s.handleLeaveRoom(sess)
	case network.MsgStartGame:
		s.handleStartGame(sess, msg)
	case network.MsgStateSync:
		s.handleStateSync(sess, msg)
	case network.MsgRollbackState:
		s.handleRollback(sess)
	default:
		logger.Log.Infof("Unknown message type: %s", msg.Type)
		sess.Send(network.RoomError("unknown message type"))
	}
}

func (s *GameServer) handleCreateRoom(sess *session.Session, msg *network.Message) {
	if sess.Room() != "" {
		sess.Send(network.RoomError("already in a room"))
		return
	}

	name := session.SanitizeName(msg.Name, "Host")
	rm, err := s.roomManager.CreateRoom(sess.GetID(), name, s.broadcaster)
	if err != nil {
		sess.Send(network.RoomError(err.Error()))
		return
	}
	sess.SetRoom(rm.Code)
	if s.mon != nil {
		s.mon.SetActiveRooms(s.roomManager.Count())
	}

	logger.Log.Infof("Session %s created room %s", sess.GetID(), rm.Code)
	rm.Broadcast()
}

func (s *GameServer) handleJoinRoom(sess *session.Session, msg *network.Message) {
	if sess.Room() != "" {
		sess.Send(network.RoomError("already in a room"))
		return
	}

	code := strings.ToUpper(strings.TrimSpace(msg.Code))
	rm, exists := s.roomManager.GetRoom(code)
	if !exists {
		sess.Send(network.RoomError("room not found"))
		return
	}

	name := session.SanitizeName(msg.Name, fmt.Sprintf("Player %d", rm.SeatCount()+1))
	if err := rm.Join(sess.GetID(), name); err != nil {
		sess.Send(network.RoomError(err.Error()))
		return
	}
	sess.SetRoom(code)

	logger.Log.Infof("Session %s joined room %s", sess.GetID(), code)
	rm.Broadcast()
}

func (s *GameServer) handleLeaveRoom(sess *session.Session) {
	s.dropFromRoom(sess)
}

// dropFromRoom handles both explicit leave and socket closure. Pre-start
// the seat is removed; mid-game the seat is only flagged disconnected so
// the player can rejoin by id.
func (s *GameServer) dropFromRoom(sess *session.Session) {
	code := sess.Room()
	if code == "" {
		return
	}
	sess.SetRoom("")

	rm, exists := s.roomManager.GetRoom(code)
	if !exists {
		return
	}
	if empty := rm.Leave(sess.GetID()); empty {
		s.roomManager.RemoveRoom(code)
		logger.Log.Infof("Room %s closed", code)
	} else {
		rm.Broadcast()
	}
	if s.mon != nil {
		s.mon.SetActiveRooms(s.roomManager.Count())
	}
}

func (s *GameServer) handleStartGame(sess *session.Session, msg *network.Message) {
	rm, exists := s.roomManager.GetRoom(sess.Room())
	if !exists {
		sess.Send(network.RoomError("not in a room"))
		return
	}
	if err := rm.Start(sess.GetID(), msg.TurnSeconds); err != nil {
		sess.Send(network.RoomError(err.Error()))
		return
	}

	logger.Log.Infof("Room %s started by %s", rm.Code, sess.GetID())
	rm.Broadcast()
}

func (s *GameServer) handleStateSync(sess *session.Session, msg *network.Message) {
	rm, exists := s.roomManager.GetRoom(sess.Room())
	if !exists {
		sess.Send(network.RoomError("not in a room"))
		return
	}
	if err := rm.PushState(sess.GetID(), msg.GameState, msg.Action); err != nil {
		sess.Send(network.RoomError(err.Error()))
		return
	}
	if s.mon != nil {
		s.mon.IncStateSyncs()
	}
	rm.Broadcast()
	s.maybeArchive(rm)
}

func (s *GameServer) handleRollback(sess *session.Session) {
	rm, exists := s.roomManager.GetRoom(sess.Room())
	if !exists {
		sess.Send(network.RoomError("not in a room"))
		return
	}
	if err := rm.Rollback(sess.GetID()); err != nil {
		sess.Send(network.RoomError(err.Error()))
		return
	}
	if s.mon != nil {
		s.mon.IncRollbacks()
	}
	rm.Broadcast()
}

// maybeArchive writes the finished game to the archive exactly once.
func (s *GameServer) maybeArchive(rm *room.Room) {
	if s.recorder == nil {
		return
	}
	if rm.CurrentPhase() != string(game.PhaseGameover) {
		return
	}
	if !rm.MarkArchived() {
		return
	}

	pub := rm.Public()
	go func() {
		if err := s.recorder.ArchiveFinishedGame(pub.Code, pub.GameState); err != nil {
			logger.Log.Errorf("archive game %s: %v", pub.Code, err)
		}
	}()
}
