package game

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wfunc/settlers/timer"
)

// Chooser answers the interactive prompts of the turn cycle. Decisions are
// synchronous; a UI adapter owns any actual prompting. AutoChooser is the
// unattended fallback.
type Chooser interface {
	// ChooseDiscard picks one card to discard from the player's hand.
	// Returning an empty resource delegates to a random held card.
	ChooseDiscard(s *GameState, playerIdx, remaining int) Resource
	// ChooseVictim picks a robber victim among the candidates.
	ChooseVictim(s *GameState, playerIdx int, victims []int) int
	// AcceptTrade answers a player-to-player offer on behalf of offer.To.
	AcceptTrade(s *GameState, offer TradeOffer) bool
}

// AutoChooser resolves every prompt randomly (trades are accepted).
type AutoChooser struct{}

func (AutoChooser) ChooseDiscard(s *GameState, playerIdx, remaining int) Resource {
	return ""
}

func (AutoChooser) ChooseVictim(s *GameState, playerIdx int, victims []int) int {
	return victims[rand.Intn(len(victims))]
}

func (AutoChooser) AcceptTrade(s *GameState, offer TradeOffer) bool {
	return true
}

// ChangeFunc observes every externally visible state change. The snapshot
// is a fresh JSON encoding of the full state. The callback runs with the
// engine lock held and must not call back into the engine.
type ChangeFunc func(action string, snapshot []byte)

// Engine owns one GameState and sequences it through
// pregame -> setup -> main -> gameover. All mutation goes through its
// methods; a per-turn countdown auto-resolves stalled required actions.
type Engine struct {
	mu    sync.Mutex
	state *GameState

	clock        *timer.Manager
	ownClock     bool
	turnGen      int64
	turnTask     int64
	turnDeadline time.Time

	// advancing guards against a turn timeout racing a manual action
	// that is completing the same turn.
	advancing atomic.Bool

	chooser  Chooser
	onChange ChangeFunc
}

// EngineOption customises engine construction.
type EngineOption func(*Engine)

// WithChooser installs an interactive decision adapter.
func WithChooser(c Chooser) EngineOption {
	return func(e *Engine) { e.chooser = c }
}

// WithClock shares an external scheduler instead of owning one.
func WithClock(clock *timer.Manager) EngineOption {
	return func(e *Engine) {
		e.clock = clock
		e.ownClock = false
	}
}

// WithOnChange registers the state change observer.
func WithOnChange(fn ChangeFunc) EngineOption {
	return func(e *Engine) { e.onChange = fn }
}

// NewEngine creates an engine in the pregame phase for the named players.
func NewEngine(names []string, turnSeconds int, opts ...EngineOption) *Engine {
	turnSeconds = ClampTurnSeconds(turnSeconds)
	players := make([]*Player, len(names))
	for i, name := range names {
		players[i] = NewPlayer(name, PlayerColors[i%len(PlayerColors)])
	}

	e := &Engine{
		state: &GameState{
			Players:              players,
			Phase:                PhasePregame,
			Round:                1,
			RobberTile:           -1,
			RollHistogram:        EmptyRollHistogram(),
			TurnSeconds:          turnSeconds,
			TurnTimerRemainingMs: int64(turnSeconds) * 1000,
		},
		chooser:  AutoChooser{},
		ownClock: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.clock == nil {
		e.clock = timer.NewManager()
	}
	return e
}

// Snapshot returns an independent deep copy of the current state.
func (e *Engine) Snapshot() (*GameState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	data, err := e.marshalLocked()
	if err != nil {
		return nil, err
	}
	var out GameState
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stop cancels the pending countdown and, if owned, the scheduler.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.stopTurnTimerLocked()
	e.mu.Unlock()
	if e.ownClock {
		e.clock.Stop()
	}
}

// --- 阶段推进 ---

// StartGame attaches a generated board and begins the setup snake draft.
func (e *Engine) StartGame(b *Board) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.state.Players) < 2 {
		return fmt.Errorf("need at least 2 players")
	}
	if err := e.state.ChangePhase(PhaseSetup); err != nil {
		return err
	}

	s := e.state
	s.Tiles = b.Tiles
	s.Nodes = b.Nodes
	s.Edges = b.Edges
	s.Geometry = b.Geometry
	s.RobberTile = b.RobberTile

	// Snake draft: forward lap then reverse lap.
	order := make([]int, 0, len(s.Players)*2)
	for i := range s.Players {
		order = append(order, i)
	}
	for i := len(s.Players) - 1; i >= 0; i-- {
		order = append(order, i)
	}
	s.Setup = &Setup{
		Order:              order,
		Expecting:          ExpectingSettlement,
		LastSettlementNode: -1,
	}
	s.CurrentPlayer = order[0]
	s.Round = 1

	e.scheduleTurnTimerLocked()
	e.notifyLocked("setup_start")
	return nil
}

// PlaceSetupSettlement places the free settlement of the current draft turn.
func (e *Engine) PlaceSetupSettlement(playerIdx, nodeIdx int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireSetupTurnLocked(playerIdx, ExpectingSettlement); err != nil {
		return err
	}
	if err := BuildSettlement(e.state, playerIdx, nodeIdx, BuildOptions{Free: true, Setup: true}); err != nil {
		return err
	}
	e.state.Setup.Expecting = ExpectingRoad
	e.state.Setup.LastSettlementNode = nodeIdx
	e.notifyLocked("setup_settlement")
	return nil
}

// PlaceSetupRoad places the adjacent road, grants second-lap starting
// resources and advances the draft.
func (e *Engine) PlaceSetupRoad(playerIdx, edgeIdx int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireSetupTurnLocked(playerIdx, ExpectingRoad); err != nil {
		return err
	}
	setup := e.state.Setup
	opts := BuildOptions{Free: true, Setup: true, SetupNode: setup.LastSettlementNode}
	if err := BuildRoad(e.state, playerIdx, edgeIdx, opts); err != nil {
		return err
	}
	if setup.TurnIndex >= len(e.state.Players) {
		GainStartingResources(e.state, playerIdx, setup.LastSettlementNode)
	}
	e.advanceSetupLocked()
	e.notifyLocked("setup_road")
	return nil
}

func (e *Engine) requireSetupTurnLocked(playerIdx int, expecting string) error {
	s := e.state
	if s.Phase != PhaseSetup {
		return fmt.Errorf("not in setup phase")
	}
	if playerIdx != s.CurrentPlayer {
		return fmt.Errorf("not %s's turn", s.Players[playerIdx].Name)
	}
	if s.Setup.Expecting != expecting {
		return fmt.Errorf("expecting a %s placement", s.Setup.Expecting)
	}
	return nil
}

func (e *Engine) advanceSetupLocked() {
	setup := e.state.Setup
	setup.TurnIndex++
	if setup.TurnIndex >= len(setup.Order) {
		e.startMainPhaseLocked()
		return
	}
	e.state.CurrentPlayer = setup.Order[setup.TurnIndex]
	setup.Expecting = ExpectingSettlement
	setup.LastSettlementNode = -1
	e.scheduleTurnTimerLocked()
}

func (e *Engine) startMainPhaseLocked() {
	s := e.state
	_ = s.ChangePhase(PhaseMain)
	s.Setup = nil
	s.CurrentPlayer = 0
	s.Round = 1
	s.HasRolled = false
	s.DiceResult = 0
	s.DicePair = [2]int{}
	s.PendingRobberMove = false
	s.RollHistogram = EmptyRollHistogram()
	s.RollCountTotal = 0
	e.scheduleTurnTimerLocked()
}

// --- 主阶段操作 ---

// RollDice rolls two d6 for the current player and resolves production or
// the roll-7 discard flow.
func (e *Engine) RollDice(playerIdx int) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.state
	if s.Phase != PhaseMain {
		return 0, fmt.Errorf("not in main phase")
	}
	if playerIdx != s.CurrentPlayer {
		return 0, fmt.Errorf("not your turn")
	}
	if s.HasRolled {
		return 0, fmt.Errorf("already rolled this turn")
	}
	roll := e.rollLocked(playerIdx, false)
	e.notifyLocked("roll")
	return roll, nil
}

func (e *Engine) rollLocked(playerIdx int, auto bool) int {
	s := e.state
	roll := rand.Intn(6) + rand.Intn(6) + 2
	s.HasRolled = true
	s.DiceResult = roll
	s.DicePair = DicePairForTotal(roll)
	s.RollHistogram[roll]++
	s.RollCountTotal++

	if roll == 7 {
		e.resolveSevenLocked(playerIdx, auto)
	} else {
		DistributeResources(s, roll)
	}
	return roll
}

func (e *Engine) resolveSevenLocked(playerIdx int, auto bool) {
	s := e.state
	for idx, player := range s.Players {
		total := player.Hand.Total()
		if total <= 7 {
			continue
		}
		toDiscard := total / 2
		if auto {
			DiscardRandomResources(s, idx, toDiscard)
			continue
		}
		for remaining := toDiscard; remaining > 0; remaining-- {
			res := e.chooser.ChooseDiscard(s, idx, remaining)
			if res == "" || player.Hand[res] <= 0 {
				DiscardRandomResources(s, idx, 1)
				continue
			}
			player.Hand[res]--
		}
	}

	if auto {
		AutoMoveRobber(s, playerIdx)
		s.PendingRobberMove = false
	} else {
		s.PendingRobberMove = true
	}
}

// MoveRobberTo resolves the pending robber move, stealing from a victim
// chosen through the Chooser when there are candidates.
func (e *Engine) MoveRobberTo(playerIdx, tileIdx int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.state
	if s.Phase != PhaseMain || playerIdx != s.CurrentPlayer {
		return fmt.Errorf("not your turn")
	}
	if !s.PendingRobberMove {
		return fmt.Errorf("no robber move pending")
	}
	victims, err := MoveRobber(s, playerIdx, tileIdx)
	if err != nil {
		return err
	}
	if len(victims) > 0 {
		victim := e.chooser.ChooseVictim(s, playerIdx, victims)
		if !intsContain(victims, victim) {
			victim = victims[rand.Intn(len(victims))]
		}
		StealRandomResource(s, victim, playerIdx)
	}
	s.PendingRobberMove = false
	e.notifyLocked("robber")
	return nil
}

// BuildRoad builds a paid road for the current player.
func (e *Engine) BuildRoad(playerIdx, edgeIdx int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireActionWindowLocked(playerIdx); err != nil {
		return err
	}
	if err := BuildRoad(e.state, playerIdx, edgeIdx, BuildOptions{}); err != nil {
		return err
	}
	e.notifyLocked("build_road")
	return nil
}

// BuildSettlement builds a paid settlement; reaching the victory target
// freezes the game immediately.
func (e *Engine) BuildSettlement(playerIdx, nodeIdx int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireActionWindowLocked(playerIdx); err != nil {
		return err
	}
	if err := BuildSettlement(e.state, playerIdx, nodeIdx, BuildOptions{}); err != nil {
		return err
	}
	e.afterBuildLocked("build_settlement")
	return nil
}

// BuildCity upgrades a settlement of the current player.
func (e *Engine) BuildCity(playerIdx, nodeIdx int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireActionWindowLocked(playerIdx); err != nil {
		return err
	}
	if err := BuildCity(e.state, playerIdx, nodeIdx); err != nil {
		return err
	}
	e.afterBuildLocked("build_city")
	return nil
}

func (e *Engine) afterBuildLocked(action string) {
	if e.state.Phase == PhaseGameover {
		e.stopTurnTimerLocked()
		e.notifyLocked("gameover")
		return
	}
	e.notifyLocked(action)
}

// BankTrade trades 4 give for 1 get with the bank.
func (e *Engine) BankTrade(playerIdx int, give, get Resource) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireActionWindowLocked(playerIdx); err != nil {
		return err
	}
	if err := BankTrade(e.state, playerIdx, give, get); err != nil {
		return err
	}
	e.notifyLocked("bank_trade")
	return nil
}

// ProposeTrade offers a player-to-player trade; the counterpart answers
// through the Chooser and the exchange applies all-or-nothing.
func (e *Engine) ProposeTrade(offer TradeOffer) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireActionWindowLocked(offer.From); err != nil {
		return err
	}
	if err := ValidateTrade(e.state, offer); err != nil {
		return err
	}
	if !e.chooser.AcceptTrade(e.state, offer) {
		return fmt.Errorf("%s declined the trade", e.state.Players[offer.To].Name)
	}
	if err := ExecuteTrade(e.state, offer); err != nil {
		return err
	}
	e.notifyLocked("player_trade")
	return nil
}

// EndTurn passes the turn; it requires a roll and no pending robber move.
func (e *Engine) EndTurn(playerIdx int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.state
	if s.Phase != PhaseMain {
		return fmt.Errorf("not in main phase")
	}
	if playerIdx != s.CurrentPlayer {
		return fmt.Errorf("not your turn")
	}
	if !s.HasRolled {
		return fmt.Errorf("roll the dice first")
	}
	if s.PendingRobberMove {
		return fmt.Errorf("move the robber first")
	}
	e.endTurnLocked()
	e.notifyLocked("end_turn")
	return nil
}

func (e *Engine) requireActionWindowLocked(playerIdx int) error {
	s := e.state
	if s.Phase != PhaseMain {
		return fmt.Errorf("not in main phase")
	}
	if playerIdx != s.CurrentPlayer {
		return fmt.Errorf("not your turn")
	}
	if !s.HasRolled {
		return fmt.Errorf("roll the dice first")
	}
	if s.PendingRobberMove {
		return fmt.Errorf("move the robber first")
	}
	return nil
}

func (e *Engine) endTurnLocked() {
	s := e.state
	s.CurrentPlayer = (s.CurrentPlayer + 1) % len(s.Players)
	if s.CurrentPlayer == 0 {
		s.Round++
	}
	s.HasRolled = false
	s.DiceResult = 0
	s.DicePair = [2]int{}
	e.scheduleTurnTimerLocked()
}

// --- 回合倒计时 ---

func (e *Engine) scheduleTurnTimerLocked() {
	e.clock.Cancel(e.turnTask)
	e.turnGen++
	gen := e.turnGen
	e.turnDeadline = time.Now().Add(time.Duration(e.state.TurnSeconds) * time.Second)
	e.turnTask = e.clock.Schedule(time.Duration(e.state.TurnSeconds)*time.Second, func() {
		e.handleTurnTimeout(gen)
	})
}

func (e *Engine) stopTurnTimerLocked() {
	e.clock.Cancel(e.turnTask)
	e.turnGen++
	e.turnDeadline = time.Time{}
}

// handleTurnTimeout auto-resolves the pending required action and
// force-advances the turn so a stalled player can never block the game.
func (e *Engine) handleTurnTimeout(gen int64) {
	if !e.advancing.CompareAndSwap(false, true) {
		return
	}
	defer e.advancing.Store(false)

	e.mu.Lock()
	defer e.mu.Unlock()

	// A manual action completed this turn while the callback was in
	// flight; the generation moved on and this timeout is stale.
	if gen != e.turnGen {
		return
	}

	switch e.state.Phase {
	case PhaseSetup:
		if !e.autoCompleteSetupTurnLocked() {
			e.scheduleTurnTimerLocked()
			return
		}
		e.notifyLocked("auto_setup")

	case PhaseMain:
		playerIdx := e.state.CurrentPlayer
		if !e.state.HasRolled {
			e.rollLocked(playerIdx, true)
		} else if e.state.PendingRobberMove {
			AutoMoveRobber(e.state, playerIdx)
			e.state.PendingRobberMove = false
		}
		if e.state.Phase != PhaseMain {
			e.stopTurnTimerLocked()
			e.notifyLocked("gameover")
			return
		}
		e.endTurnLocked()
		e.notifyLocked("auto_end_turn")
	}
}

func (e *Engine) autoCompleteSetupTurnLocked() bool {
	s := e.state
	setup := s.Setup
	playerIdx := s.CurrentPlayer

	if setup.Expecting == ExpectingRoad && setup.LastSettlementNode >= 0 {
		options := SetupRoadOptionsForNode(s, playerIdx, setup.LastSettlementNode)
		if len(options) == 0 {
			return false
		}
		edgeIdx := options[rand.Intn(len(options))]
		opts := BuildOptions{Free: true, Setup: true, SetupNode: setup.LastSettlementNode}
		if err := BuildRoad(s, playerIdx, edgeIdx, opts); err != nil {
			return false
		}
		if setup.TurnIndex >= len(s.Players) {
			GainStartingResources(s, playerIdx, setup.LastSettlementNode)
		}
		e.advanceSetupLocked()
		return true
	}

	nodeIdx, edgeIdx, found := RandomSetupPlacementPair(s, playerIdx)
	if !found {
		return false
	}
	if err := BuildSettlement(s, playerIdx, nodeIdx, BuildOptions{Free: true, Setup: true}); err != nil {
		return false
	}
	setup.Expecting = ExpectingRoad
	setup.LastSettlementNode = nodeIdx
	opts := BuildOptions{Free: true, Setup: true, SetupNode: nodeIdx}
	if err := BuildRoad(s, playerIdx, edgeIdx, opts); err != nil {
		return false
	}
	if setup.TurnIndex >= len(s.Players) {
		GainStartingResources(s, playerIdx, nodeIdx)
	}
	e.advanceSetupLocked()
	return true
}

// --- 快照 ---

func (e *Engine) marshalLocked() ([]byte, error) {
	if e.turnDeadline.IsZero() {
		e.state.TurnTimerRemainingMs = 0
	} else {
		remaining := time.Until(e.turnDeadline).Milliseconds()
		if remaining < 0 {
			remaining = 0
		}
		e.state.TurnTimerRemainingMs = remaining
	}
	return json.Marshal(e.state)
}

func (e *Engine) notifyLocked(action string) {
	if e.onChange == nil {
		return
	}
	data, err := e.marshalLocked()
	if err != nil {
		return
	}
	e.onChange(action, data)
}
