// broadcast/broadcast.go
package broadcast

import (
	"github.com/wfunc/settlers/logger"
	"github.com/wfunc/settlers/network"
	"github.com/wfunc/settlers/room"
	"github.com/wfunc/settlers/session"
)

// 基于房间座位表的广播器
type RoomBroadcaster struct {
	sessionManager *session.Manager
}

func NewRoomBroadcaster(sessionManager *session.Manager) *RoomBroadcaster {
	return &RoomBroadcaster{sessionManager: sessionManager}
}

var _ room.Broadcaster = (*RoomBroadcaster)(nil)

// BroadcastRoomState fans the room snapshot out to every seated session
// that still has a live connection. Send failures are logged and skipped;
// the disconnect path cleans the seat up separately.
func (b *RoomBroadcaster) BroadcastRoomState(code string, pub *room.PublicRoom) {
	if pub == nil {
		return
	}

	msg := network.RoomState(pub)
	for _, seat := range pub.Players {
		s, exists := b.sessionManager.Get(seat.ID)
		if !exists {
			continue
		}
		if err := s.Send(msg); err != nil {
			logger.Log.Warnf("broadcast to session %s in room %s failed: %v", seat.ID, code, err)
			continue
		}
	}
}
