// client/main.go
//
// Headless bot harness: opens three websocket connections, assembles a
// room, then plays a full random game through a local rules engine while
// relaying every state change over the wire. Useful for soaking the
// server without a browser.
package main

import (
	"encoding/json"
	"log"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wfunc/settlers/board"
	"github.com/wfunc/settlers/game"
	"github.com/wfunc/settlers/network"
)

const playerCount = 3

type roomPayload struct {
	Code      string            `json:"code"`
	HostID    string            `json:"hostId"`
	Started   bool              `json:"started"`
	SeatMap   []string          `json:"seatMap"`
	Players   []json.RawMessage `json:"players"`
	Version   int               `json:"version"`
	GameState json.RawMessage   `json:"gameState"`
}

type serverMsg struct {
	Type     string       `json:"type"`
	ClientID string       `json:"clientId"`
	Room     *roomPayload `json:"room"`
	Message  string       `json:"message"`
}

type peer struct {
	conn *websocket.Conn
	id   string

	mu   sync.Mutex
	room *roomPayload
}

func (p *peer) send(v interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.conn.WriteJSON(v); err != nil {
		log.Printf("write to %s: %v", p.id, err)
	}
}

func (p *peer) lastRoom() *roomPayload {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.room
}

func dial(host string) *peer {
	u := url.URL{Scheme: "ws", Host: host, Path: "/ws"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("dial %s: %v", u.String(), err)
	}

	p := &peer{conn: conn}
	welcome := make(chan string, 1)
	go func() {
		for {
			var msg serverMsg
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			switch msg.Type {
			case network.MsgWelcome:
				welcome <- msg.ClientID
			case network.MsgRoomState:
				p.mu.Lock()
				p.room = msg.Room
				p.mu.Unlock()
			case network.MsgRoomError:
				log.Printf("room_error for %s: %s", p.id, msg.Message)
			}
		}
	}()

	select {
	case p.id = <-welcome:
	case <-time.After(5 * time.Second):
		log.Fatal("no welcome from server")
	}
	return p
}

func waitRoom(p *peer, ready func(*roomPayload) bool) *roomPayload {
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if r := p.lastRoom(); r != nil && ready(r) {
			return r
		}
		time.Sleep(20 * time.Millisecond)
	}
	log.Fatal("timed out waiting for room state")
	return nil
}

type change struct {
	action   string
	snapshot []byte
}

func main() {
	host := "localhost:8080"
	if len(os.Args) > 1 {
		host = os.Args[1]
	}

	peers := make([]*peer, playerCount)
	names := []string{"Bot-1", "Bot-2", "Bot-3"}
	for i := range peers {
		peers[i] = dial(host)
	}
	host0 := peers[0]

	host0.send(network.Message{Type: network.MsgCreateRoom, Name: names[0]})
	created := waitRoom(host0, func(r *roomPayload) bool { return r.Code != "" })
	log.Printf("room %s created", created.Code)

	for i := 1; i < playerCount; i++ {
		peers[i].send(network.Message{Type: network.MsgJoinRoom, Code: created.Code, Name: names[i]})
	}
	waitRoom(host0, func(r *roomPayload) bool { return !r.Started && len(r.Players) == playerCount })

	host0.send(network.Message{Type: network.MsgStartGame, TurnSeconds: 60})
	started := waitRoom(host0, func(r *roomPayload) bool { return r.Started })
	log.Printf("room %s started, seats %v", started.Code, started.SeatMap)

	byID := make(map[string]*peer, playerCount)
	for _, p := range peers {
		byID[p.id] = p
	}

	changes := make(chan change, 1024)
	eng := game.NewEngine(names, 60,
		game.WithChooser(game.AutoChooser{}),
		game.WithOnChange(func(action string, snapshot []byte) {
			select {
			case changes <- change{action, snapshot}:
			default:
				log.Printf("dropping change %s: relay backlog", action)
			}
		}),
	)
	defer eng.Stop()

	if err := eng.StartGame(board.Generate()); err != nil {
		log.Fatalf("start game: %v", err)
	}

	relayDone := make(chan struct{})
	go relay(byID, started.SeatMap, host0, changes, relayDone)

	playOut(eng)

	close(changes)
	<-relayDone
	log.Printf("game over, room %s", started.Code)
}

// relay pushes each engine change over the connection of the seat that
// owned the turn in the state being replaced. The first push, replacing
// nothing, goes through the host.
func relay(byID map[string]*peer, seatMap []string, host *peer, changes <-chan change, done chan<- struct{}) {
	defer close(done)

	var prev []byte
	for c := range changes {
		sender := host
		if prev != nil {
			var turn struct {
				CurrentPlayer *int `json:"currentPlayer"`
			}
			if err := json.Unmarshal(prev, &turn); err == nil && turn.CurrentPlayer != nil {
				cp := *turn.CurrentPlayer
				if cp >= 0 && cp < len(seatMap) {
					if p, ok := byID[seatMap[cp]]; ok {
						sender = p
					}
				}
			}
		}
		sender.send(network.Message{
			Type:      network.MsgStateSync,
			GameState: c.snapshot,
			Action:    c.action,
		})
		prev = c.snapshot
	}
}

// playOut drives the engine to completion with random legal moves.
func playOut(eng *game.Engine) {
	for turns := 0; turns < 5000; turns++ {
		st, err := eng.Snapshot()
		if err != nil {
			log.Fatalf("snapshot: %v", err)
		}

		switch st.Phase {
		case game.PhaseGameover:
			return
		case game.PhaseSetup:
			p := st.Setup.Order[st.Setup.TurnIndex]
			if st.Setup.Expecting == game.ExpectingSettlement {
				node, edge, ok := game.RandomSetupPlacementPair(st, p)
				if !ok {
					log.Fatal("no legal setup placement")
				}
				mustDo(eng.PlaceSetupSettlement(p, node))
				mustDo(eng.PlaceSetupRoad(p, edge))
			}
		case game.PhaseMain:
			p := st.CurrentPlayer
			if !st.HasRolled {
				if _, err := eng.RollDice(p); err != nil {
					log.Fatalf("roll: %v", err)
				}
				continue
			}
			tryBuilds(eng, st, p)
			if err := eng.EndTurn(p); err != nil {
				// Gameover can land between snapshot and end turn.
				return
			}
		}
	}
	log.Fatal("game did not finish within turn budget")
}

func tryBuilds(eng *game.Engine, st *game.GameState, p int) {
	player := st.Players[p]
	if player.Hand.CanAfford(game.CostCity) {
		for _, n := range player.Settlements {
			if eng.BuildCity(p, n) == nil {
				return
			}
		}
	}
	if player.Hand.CanAfford(game.CostSettlement) {
		for n := range st.Nodes {
			if game.CanBuildSettlement(st, p, n, false).OK && eng.BuildSettlement(p, n) == nil {
				return
			}
		}
	}
	if player.Hand.CanAfford(game.CostRoad) {
		for e := range st.Edges {
			if game.CanBuildRoad(st, p, e, -1).OK && eng.BuildRoad(p, e) == nil {
				return
			}
		}
	}
}

func mustDo(err error) {
	if err != nil {
		log.Fatalf("setup move rejected: %v", err)
	}
}
