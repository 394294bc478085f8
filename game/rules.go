package game

import (
	"fmt"
	"math/rand"
)

// Verdict is the result of a placement check: either ok, or a
// human-readable reason suitable for a status line.
type Verdict struct {
	OK     bool
	Reason string
}

func ok() Verdict { return Verdict{OK: true} }
func fail(reason string) Verdict { return Verdict{Reason: reason} }

// --- 图结构辅助 ---

// NodeNeighbors returns the nodes connected to nodeIdx by one edge.
func NodeNeighbors(s *GameState, nodeIdx int) []int {
	node := s.Nodes[nodeIdx]
	out := make([]int, 0, len(node.Edges))
	for _, edgeIdx := range node.Edges {
		edge := s.Edges[edgeIdx]
		if edge.A == nodeIdx {
			out = append(out, edge.B)
		} else {
			out = append(out, edge.A)
		}
	}
	return out
}

func distanceRuleOk(s *GameState, nodeIdx int) bool {
	for _, nbr := range NodeNeighbors(s, nodeIdx) {
		if s.Nodes[nbr].Owner != NoOwner {
			return false
		}
	}
	return true
}

func hasConnectedRoad(s *GameState, playerIdx, nodeIdx int) bool {
	for _, edgeIdx := range s.Nodes[nodeIdx].Edges {
		if s.Edges[edgeIdx].Owner == playerIdx {
			return true
		}
	}
	return false
}

// --- 放置合法性 ---

// CanBuildRoad checks road placement. setupNode >= 0 restricts the edge to
// ones touching the just-placed setup settlement.
func CanBuildRoad(s *GameState, playerIdx, edgeIdx, setupNode int) Verdict {
	if edgeIdx < 0 || edgeIdx >= len(s.Edges) {
		return fail("Invalid edge.")
	}
	edge := s.Edges[edgeIdx]
	if edge.Owner != NoOwner {
		return fail("Road already exists there.")
	}

	if setupNode >= 0 {
		if edge.A == setupNode || edge.B == setupNode {
			return ok()
		}
		return fail("Setup road must touch your new settlement.")
	}

	for _, nIdx := range []int{edge.A, edge.B} {
		node := s.Nodes[nIdx]
		if node.Owner == playerIdx {
			return ok()
		}
		for _, eIdx := range node.Edges {
			if s.Edges[eIdx].Owner == playerIdx {
				return ok()
			}
		}
	}
	return fail("Road must connect to your road or building.")
}

// CanBuildSettlement checks settlement placement, including the distance
// rule. During setup the road-connectivity requirement is waived.
func CanBuildSettlement(s *GameState, playerIdx, nodeIdx int, setup bool) Verdict {
	if nodeIdx < 0 || nodeIdx >= len(s.Nodes) {
		return fail("Invalid node.")
	}
	node := s.Nodes[nodeIdx]
	if node.Owner != NoOwner {
		return fail("That corner is already occupied.")
	}
	if !distanceRuleOk(s, nodeIdx) {
		return fail("Distance rule violation.")
	}
	if !setup && !hasConnectedRoad(s, playerIdx, nodeIdx) {
		return fail("Settlement must connect to one of your roads.")
	}
	return ok()
}

// CanBuildCity requires an un-upgraded settlement owned by the player.
func CanBuildCity(s *GameState, playerIdx, nodeIdx int) Verdict {
	if nodeIdx < 0 || nodeIdx >= len(s.Nodes) {
		return fail("Invalid node.")
	}
	node := s.Nodes[nodeIdx]
	if node.Owner != playerIdx {
		return fail("You do not own this settlement.")
	}
	if node.IsCity {
		return fail("That is already a city.")
	}
	return ok()
}

// --- 建造 ---

// BuildOptions carries the setup/free flags used during the draft and
// auto-resolution.
type BuildOptions struct {
	Free      bool
	Setup     bool
	SetupNode int // -1 outside setup road placement
}

// BuildRoad validates, charges (unless free) and claims the edge.
func BuildRoad(s *GameState, playerIdx, edgeIdx int, opts BuildOptions) error {
	if s.Phase == PhaseGameover {
		return fmt.Errorf("game is over")
	}
	setupNode := opts.SetupNode
	if !opts.Setup {
		setupNode = -1
	}
	if v := CanBuildRoad(s, playerIdx, edgeIdx, setupNode); !v.OK {
		return fmt.Errorf("%s", v.Reason)
	}

	player := s.Players[playerIdx]
	if !opts.Free {
		if !player.Hand.CanAfford(CostRoad) {
			return fmt.Errorf("not enough resources for road")
		}
		player.Hand.Pay(CostRoad)
	}
	s.Edges[edgeIdx].Owner = playerIdx
	player.Roads = append(player.Roads, edgeIdx)
	return nil
}

// BuildSettlement validates, charges (unless free), claims the node and
// runs the victory check.
func BuildSettlement(s *GameState, playerIdx, nodeIdx int, opts BuildOptions) error {
	if s.Phase == PhaseGameover {
		return fmt.Errorf("game is over")
	}
	if v := CanBuildSettlement(s, playerIdx, nodeIdx, opts.Setup); !v.OK {
		return fmt.Errorf("%s", v.Reason)
	}

	player := s.Players[playerIdx]
	if !opts.Free {
		if !player.Hand.CanAfford(CostSettlement) {
			return fmt.Errorf("not enough resources for settlement")
		}
		player.Hand.Pay(CostSettlement)
	}
	node := s.Nodes[nodeIdx]
	node.Owner = playerIdx
	node.IsCity = false
	player.Settlements = append(player.Settlements, nodeIdx)
	checkVictory(s, playerIdx)
	return nil
}

// BuildCity upgrades an owned settlement. The node id moves from the
// settlements set to the cities set, never both.
func BuildCity(s *GameState, playerIdx, nodeIdx int) error {
	if s.Phase == PhaseGameover {
		return fmt.Errorf("game is over")
	}
	if v := CanBuildCity(s, playerIdx, nodeIdx); !v.OK {
		return fmt.Errorf("%s", v.Reason)
	}

	player := s.Players[playerIdx]
	if !player.Hand.CanAfford(CostCity) {
		return fmt.Errorf("not enough resources for city")
	}
	player.Hand.Pay(CostCity)
	s.Nodes[nodeIdx].IsCity = true
	player.Settlements = intsRemove(player.Settlements, nodeIdx)
	player.Cities = append(player.Cities, nodeIdx)
	checkVictory(s, playerIdx)
	return nil
}

// checkVictory freezes the game the moment a build reaches the target.
func checkVictory(s *GameState, playerIdx int) {
	if s.Players[playerIdx].VictoryPoints() >= VictoryTarget {
		_ = s.ChangePhase(PhaseGameover)
	}
}

// --- 资源 ---

// GainStartingResources credits one card per producing tile touching the
// node (second setup lap).
func GainStartingResources(s *GameState, playerIdx, nodeIdx int) {
	gains := NewHand()
	for _, tileIdx := range s.Nodes[nodeIdx].Hexes {
		tile := s.Tiles[tileIdx]
		if tile.Resource != Desert {
			gains[tile.Resource]++
		}
	}
	s.Players[playerIdx].Hand.Add(gains)
}

// DistributeResources credits every producing tile matching roll, skipping
// the robber's tile. Gains are batched per player before applying and
// returned for logging.
func DistributeResources(s *GameState, roll int) []Hand {
	gains := make([]Hand, len(s.Players))
	for i := range gains {
		gains[i] = NewHand()
	}

	for _, tile := range s.Tiles {
		if tile.Resource == Desert || tile.Idx == s.RobberTile || tile.Number != roll {
			continue
		}
		for _, nodeIdx := range tile.Nodes {
			node := s.Nodes[nodeIdx]
			if node.Owner == NoOwner {
				continue
			}
			if node.IsCity {
				gains[node.Owner][tile.Resource] += 2
			} else {
				gains[node.Owner][tile.Resource]++
			}
		}
	}

	for idx, player := range s.Players {
		player.Hand.Add(gains[idx])
	}
	return gains
}

// --- 强盗 ---

// StealRandomResource moves one card chosen uniformly from the victim's
// hand to the thief. Returns false when the victim holds nothing.
func StealRandomResource(s *GameState, fromIdx, toIdx int) (Resource, bool) {
	victim := s.Players[fromIdx]
	var bag []Resource
	for _, res := range Resources {
		for i := 0; i < victim.Hand[res]; i++ {
			bag = append(bag, res)
		}
	}
	if len(bag) == 0 {
		return "", false
	}
	stolen := bag[rand.Intn(len(bag))]
	victim.Hand[stolen]--
	s.Players[toIdx].Hand[stolen]++
	return stolen, true
}

// RobberVictims lists distinct non-mover owners on the tile holding at
// least one resource.
func RobberVictims(s *GameState, playerIdx, tileIdx int) []int {
	seen := make(map[int]bool)
	var victims []int
	for _, nodeIdx := range s.Tiles[tileIdx].Nodes {
		owner := s.Nodes[nodeIdx].Owner
		if owner == NoOwner || owner == playerIdx || seen[owner] {
			continue
		}
		if s.Players[owner].Hand.Total() == 0 {
			continue
		}
		seen[owner] = true
		victims = append(victims, owner)
	}
	return victims
}

// MoveRobber relocates the robber and returns the victim candidates.
func MoveRobber(s *GameState, playerIdx, tileIdx int) ([]int, error) {
	if tileIdx < 0 || tileIdx >= len(s.Tiles) {
		return nil, fmt.Errorf("invalid tile")
	}
	if tileIdx == s.RobberTile {
		return nil, fmt.Errorf("robber is already on that tile")
	}
	s.RobberTile = tileIdx
	return RobberVictims(s, playerIdx, tileIdx), nil
}

// DiscardRandomResources drops amount cards one at a time, randomly among
// held kinds. Used by auto-resolution.
func DiscardRandomResources(s *GameState, playerIdx, amount int) {
	player := s.Players[playerIdx]
	for i := 0; i < amount; i++ {
		var held []Resource
		for _, res := range Resources {
			if player.Hand[res] > 0 {
				held = append(held, res)
			}
		}
		if len(held) == 0 {
			break
		}
		player.Hand[held[rand.Intn(len(held))]]--
	}
}

// AutoMoveRobber picks a random new tile, then a random victim if any.
func AutoMoveRobber(s *GameState, playerIdx int) {
	var choices []int
	for _, tile := range s.Tiles {
		if tile.Idx != s.RobberTile {
			choices = append(choices, tile.Idx)
		}
	}
	if len(choices) == 0 {
		return
	}
	s.RobberTile = choices[rand.Intn(len(choices))]

	victims := RobberVictims(s, playerIdx, s.RobberTile)
	if len(victims) > 0 {
		StealRandomResource(s, victims[rand.Intn(len(victims))], playerIdx)
	}
}

// --- 交易 ---

// BankTrade executes the fixed 4-give : 1-get bank trade.
func BankTrade(s *GameState, playerIdx int, give, get Resource) error {
	if give == get {
		return fmt.Errorf("choose different resources for trade")
	}
	player := s.Players[playerIdx]
	if player.Hand[give] < 4 {
		return fmt.Errorf("need 4 %s to trade", give)
	}
	player.Hand[give] -= 4
	player.Hand[get]++
	return nil
}

// TradeOffer is a proposed player-to-player exchange.
type TradeOffer struct {
	From    int      `json:"from"`
	To      int      `json:"to"`
	GiveRes Resource `json:"giveRes"`
	GiveAmt int      `json:"giveAmt"`
	GetRes  Resource `json:"getRes"`
	GetAmt  int      `json:"getAmt"`
}

// ValidateTrade checks both legs against the respective hands without
// mutating anything.
func ValidateTrade(s *GameState, offer TradeOffer) error {
	if offer.To < 0 || offer.To >= len(s.Players) || offer.To == offer.From {
		return fmt.Errorf("choose a valid target player")
	}
	if offer.GiveAmt < 1 || offer.GetAmt < 1 {
		return fmt.Errorf("trade amounts must be whole numbers >= 1")
	}
	if offer.GiveRes == offer.GetRes {
		return fmt.Errorf("give and get resources must be different")
	}
	from := s.Players[offer.From]
	to := s.Players[offer.To]
	if from.Hand[offer.GiveRes] < offer.GiveAmt {
		return fmt.Errorf("%s does not have %d %s", from.Name, offer.GiveAmt, offer.GiveRes)
	}
	if to.Hand[offer.GetRes] < offer.GetAmt {
		return fmt.Errorf("%s does not have %d %s", to.Name, offer.GetAmt, offer.GetRes)
	}
	return nil
}

// ExecuteTrade re-validates and applies an accepted offer all-or-nothing.
func ExecuteTrade(s *GameState, offer TradeOffer) error {
	if err := ValidateTrade(s, offer); err != nil {
		return err
	}
	from := s.Players[offer.From]
	to := s.Players[offer.To]
	from.Hand[offer.GiveRes] -= offer.GiveAmt
	to.Hand[offer.GiveRes] += offer.GiveAmt
	to.Hand[offer.GetRes] -= offer.GetAmt
	from.Hand[offer.GetRes] += offer.GetAmt
	return nil
}

// --- 回合评估辅助 ---

// HasAnyBuildByResources reports whether the hand affords any build.
func HasAnyBuildByResources(p *Player) bool {
	return p.Hand.CanAfford(CostRoad) || p.Hand.CanAfford(CostSettlement) || p.Hand.CanAfford(CostCity)
}

// HasBankTradeOption reports whether a 4:1 trade is possible.
func HasBankTradeOption(p *Player) bool {
	for _, res := range Resources {
		if p.Hand[res] >= 4 {
			return true
		}
	}
	return false
}

// HasPlayerTradeOption reports whether any counterpart holds cards too.
func HasPlayerTradeOption(s *GameState, playerIdx int) bool {
	if s.Players[playerIdx].Hand.Total() == 0 {
		return false
	}
	for idx, p := range s.Players {
		if idx != playerIdx && p.Hand.Total() > 0 {
			return true
		}
	}
	return false
}

// SetupRoadOptionsForNode lists edges a setup road may take from the node.
func SetupRoadOptionsForNode(s *GameState, playerIdx, nodeIdx int) []int {
	if nodeIdx < 0 || nodeIdx >= len(s.Nodes) {
		return nil
	}
	var options []int
	for _, edgeIdx := range s.Nodes[nodeIdx].Edges {
		if CanBuildRoad(s, playerIdx, edgeIdx, nodeIdx).OK {
			options = append(options, edgeIdx)
		}
	}
	return options
}

// RandomSetupPlacementPair finds a random legal settlement node plus an
// adjacent road edge, for setup auto-resolution.
func RandomSetupPlacementPair(s *GameState, playerIdx int) (nodeIdx, edgeIdx int, found bool) {
	order := rand.Perm(len(s.Nodes))
	for _, n := range order {
		if !CanBuildSettlement(s, playerIdx, n, true).OK {
			continue
		}
		options := SetupRoadOptionsForNode(s, playerIdx, n)
		if len(options) == 0 {
			continue
		}
		return n, options[rand.Intn(len(options))], true
	}
	return 0, 0, false
}
