package game

import "math/rand"

// Resource 资源类型
type Resource string

const (
	Wood   Resource = "wood"
	Brick  Resource = "brick"
	Sheep  Resource = "sheep"
	Wheat  Resource = "wheat"
	Ore    Resource = "ore"
	Desert Resource = "desert"
)

// Resources lists the five productive resource kinds (desert excluded).
var Resources = []Resource{Wood, Brick, Sheep, Wheat, Ore}

// ResourceCounts is the fixed tile multiset for a standard 19-tile board.
var ResourceCounts = map[Resource]int{
	Wood:   4,
	Brick:  3,
	Sheep:  4,
	Wheat:  4,
	Ore:    3,
	Desert: 1,
}

// NumberTokens is the fixed probability-number multiset (18 tokens, desert gets none).
var NumberTokens = []int{2, 3, 3, 4, 4, 5, 5, 6, 6, 8, 8, 9, 9, 10, 10, 11, 11, 12}

// HighProbabilityNumbers may never sit on two hex-adjacent tiles.
var HighProbabilityNumbers = map[int]bool{6: true, 8: true}

// PlayerColors is the fixed display palette, assigned by seat index.
var PlayerColors = []string{"#b93b2a", "#2b66be", "#d49419", "#2f8852"}

// Build costs.
var (
	CostRoad       = Hand{Wood: 1, Brick: 1}
	CostSettlement = Hand{Wood: 1, Brick: 1, Sheep: 1, Wheat: 1}
	CostCity       = Hand{Wheat: 2, Ore: 3}
)

const (
	// VictoryTarget ends the game: settlements count 1, cities count 2.
	VictoryTarget = 10

	DefaultTurnSeconds = 60
	MinTurnSeconds     = 10
	MaxTurnSeconds     = 600

	// NoOwner marks an unowned node or edge.
	NoOwner = -1
)

// Hand 玩家手牌，每种资源的数量
type Hand map[Resource]int

// NewHand returns a hand with every productive resource at zero.
func NewHand() Hand {
	h := make(Hand, len(Resources))
	for _, res := range Resources {
		h[res] = 0
	}
	return h
}

// Total returns the number of cards held.
func (h Hand) Total() int {
	total := 0
	for _, res := range Resources {
		total += h[res]
	}
	return total
}

// CanAfford reports whether the hand covers every entry of cost.
func (h Hand) CanAfford(cost Hand) bool {
	for res, amt := range cost {
		if h[res] < amt {
			return false
		}
	}
	return true
}

// Pay deducts cost from the hand. Caller must have checked CanAfford.
func (h Hand) Pay(cost Hand) {
	for res, amt := range cost {
		h[res] -= amt
	}
}

// Add credits gains to the hand.
func (h Hand) Add(gains Hand) {
	for res, amt := range gains {
		h[res] += amt
	}
}

// Clone returns an independent copy of the hand.
func (h Hand) Clone() Hand {
	out := make(Hand, len(h))
	for res, amt := range h {
		out[res] = amt
	}
	return out
}

// Tile 六边形地块。除强盗占用外，棋盘生成后不再变化。
type Tile struct {
	Idx      int      `json:"idx"`
	Q        int      `json:"q"`
	R        int      `json:"r"`
	Resource Resource `json:"resource"`
	Number   int      `json:"number"` // 0 for desert
	CX       float64  `json:"cx"`
	CY       float64  `json:"cy"`
	Nodes    []int    `json:"nodes"`
}

// Node 定居点角位
type Node struct {
	Idx    int     `json:"idx"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Hexes  []int   `json:"hexes"`
	Edges  []int   `json:"edges"`
	Owner  int     `json:"owner"` // NoOwner when vacant
	IsCity bool    `json:"isCity"`
}

// Edge 道路槽位，A < B
type Edge struct {
	Idx   int `json:"idx"`
	A     int `json:"a"`
	B     int `json:"b"`
	Owner int `json:"owner"` // NoOwner when vacant, immutable once set
}

// Geometry is the bounding-box layout a renderer needs.
type Geometry struct {
	MinX   float64 `json:"minX"`
	MinY   float64 `json:"minY"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Board bundles everything the generator produces.
type Board struct {
	Tiles      []*Tile   `json:"tiles"`
	Nodes      []*Node   `json:"nodes"`
	Edges      []*Edge   `json:"edges"`
	RobberTile int       `json:"robberTile"`
	Geometry   *Geometry `json:"geometry"`
}

// Player 玩家
type Player struct {
	Name        string `json:"name"`
	Color       string `json:"color"`
	Hand        Hand   `json:"hand"`
	Roads       []int  `json:"roads"`
	Settlements []int  `json:"settlements"`
	Cities      []int  `json:"cities"`
}

func NewPlayer(name, color string) *Player {
	return &Player{
		Name:        name,
		Color:       color,
		Hand:        NewHand(),
		Roads:       []int{},
		Settlements: []int{},
		Cities:      []int{},
	}
}

// VictoryPoints 定居点1分，城市2分
func (p *Player) VictoryPoints() int {
	return len(p.Settlements) + len(p.Cities)*2
}

// Setup tracks the snake draft while phase == setup.
type Setup struct {
	Order              []int  `json:"order"`
	TurnIndex          int    `json:"turnIndex"`
	Expecting          string `json:"expecting"` // "settlement" | "road"
	LastSettlementNode int    `json:"lastSettlementNode"`
}

const (
	ExpectingSettlement = "settlement"
	ExpectingRoad       = "road"
)

// GameState is the unit that is snapshotted, persisted and transmitted.
type GameState struct {
	Players []*Player `json:"players"`

	Tiles    []*Tile   `json:"tiles"`
	Nodes    []*Node   `json:"nodes"`
	Edges    []*Edge   `json:"edges"`
	Geometry *Geometry `json:"geometry"`

	RobberTile        int  `json:"robberTile"`
	PendingRobberMove bool `json:"pendingRobberMove"`

	Phase         Phase  `json:"phase"`
	Setup         *Setup `json:"setup,omitempty"`
	CurrentPlayer int    `json:"currentPlayer"`
	Round         int    `json:"round"`

	HasRolled      bool        `json:"hasRolled"`
	DiceResult     int         `json:"diceResult"` // 0 before the first roll of a turn
	DicePair       [2]int      `json:"dicePair"`   // individual die faces behind DiceResult
	RollHistogram  map[int]int `json:"rollHistogram"`
	RollCountTotal int         `json:"rollCountTotal"`

	TurnSeconds          int   `json:"turnSeconds"`
	TurnTimerRemainingMs int64 `json:"turnTimerRemainingMs"`
}

// EmptyRollHistogram covers every two-dice sum.
func EmptyRollHistogram() map[int]int {
	out := make(map[int]int, 11)
	for sum := 2; sum <= 12; sum++ {
		out[sum] = 0
	}
	return out
}

// DicePairForTotal picks a random pair of die faces summing to total, so a
// snapshot can show the individual dice behind a roll.
func DicePairForTotal(total int) [2]int {
	var pairs [][2]int
	for dieA := 1; dieA <= 6; dieA++ {
		dieB := total - dieA
		if dieB >= 1 && dieB <= 6 {
			pairs = append(pairs, [2]int{dieA, dieB})
		}
	}
	if len(pairs) == 0 {
		return [2]int{}
	}
	return pairs[rand.Intn(len(pairs))]
}

// CurrentPlayerObj returns the player whose turn it is.
func (s *GameState) CurrentPlayerObj() *Player {
	return s.Players[s.CurrentPlayer]
}

// ClampTurnSeconds bounds a requested per-turn countdown, falling back to the default.
func ClampTurnSeconds(raw int) int {
	if raw < 1 {
		return DefaultTurnSeconds
	}
	if raw < MinTurnSeconds {
		return MinTurnSeconds
	}
	if raw > MaxTurnSeconds {
		return MaxTurnSeconds
	}
	return raw
}

func intsContain(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func intsRemove(list []int, v int) []int {
	for i, x := range list {
		if x == v {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
