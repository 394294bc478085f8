package room

import "time"

// Broadcaster fans a room's public state out to its connected members.
// Defined here to break the import cycle between room and broadcast.
type Broadcaster interface {
	BroadcastRoomState(code string, pub *PublicRoom)
}

// SaveObserver reports save-log health without coupling room to the
// metrics backend. A nil observer disables reporting.
type SaveObserver interface {
	ObserveSaveLatency(d time.Duration)
	IncSaveFailures()
}
