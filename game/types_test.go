package game

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestHand(t *testing.T) {
	h := NewHand()
	if h.Total() != 0 {
		t.Errorf("New hand should be empty, got %d", h.Total())
	}

	h.Add(Hand{Wood: 2, Brick: 1})
	if h.Total() != 3 {
		t.Errorf("Expected total 3, got %d", h.Total())
	}

	if h.CanAfford(CostSettlement) {
		t.Error("Hand should not afford a settlement")
	}
	if !h.CanAfford(CostRoad) {
		t.Error("Hand should afford a road")
	}

	h.Pay(CostRoad)
	if h[Wood] != 1 || h[Brick] != 0 {
		t.Errorf("Pay wrong: %v", h)
	}

	clone := h.Clone()
	clone[Wood] = 99
	if h[Wood] != 1 {
		t.Error("Clone should not share storage")
	}
}

func TestClampTurnSeconds(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, DefaultTurnSeconds},
		{-5, DefaultTurnSeconds},
		{1, MinTurnSeconds},
		{10, 10},
		{60, 60},
		{600, 600},
		{601, MaxTurnSeconds},
	}
	for _, c := range cases {
		if got := ClampTurnSeconds(c.in); got != c.want {
			t.Errorf("ClampTurnSeconds(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestDicePairForTotal(t *testing.T) {
	for total := 2; total <= 12; total++ {
		for i := 0; i < 20; i++ {
			pair := DicePairForTotal(total)
			if pair[0]+pair[1] != total {
				t.Fatalf("Pair %v does not sum to %d", pair, total)
			}
			if pair[0] < 1 || pair[0] > 6 || pair[1] < 1 || pair[1] > 6 {
				t.Fatalf("Pair %v has an impossible die face for total %d", pair, total)
			}
		}
	}
	for _, total := range []int{0, 1, 13} {
		if pair := DicePairForTotal(total); pair != ([2]int{}) {
			t.Errorf("DicePairForTotal(%d) = %v, want zero pair", total, pair)
		}
	}
}

func TestGameStateRoundTrip(t *testing.T) {
	s := newTestState(3)
	place(s, 0, 0)
	place(s, 1, 4)
	s.Nodes[4].IsCity = true
	s.Players[1].Cities = []int{4}
	s.Players[1].Settlements = nil
	s.Players[0].Hand.Add(Hand{Wood: 3, Ore: 1})
	s.Edges[0].Owner = 0
	s.Players[0].Roads = []int{0}
	s.CurrentPlayer = 1
	s.Round = 4
	s.HasRolled = true
	s.DiceResult = 8
	s.RollHistogram[8] = 3
	s.RollCountTotal = 3
	s.TurnSeconds = 45

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var back GameState
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if back.Phase != s.Phase || back.Round != s.Round || back.CurrentPlayer != s.CurrentPlayer {
		t.Errorf("Turn fields differ: %+v", back)
	}
	if back.RobberTile != s.RobberTile || back.DiceResult != s.DiceResult {
		t.Errorf("Board fields differ: %+v", back)
	}
	if !reflect.DeepEqual(back.RollHistogram, s.RollHistogram) {
		t.Errorf("Histogram differs: %v vs %v", back.RollHistogram, s.RollHistogram)
	}
	for i, p := range s.Players {
		q := back.Players[i]
		if q.Name != p.Name || !reflect.DeepEqual(q.Hand, p.Hand) {
			t.Errorf("Player %d differs: %+v vs %+v", i, q, p)
		}
		if !reflect.DeepEqual(q.Settlements, p.Settlements) || !reflect.DeepEqual(q.Cities, p.Cities) {
			t.Errorf("Player %d holdings differ", i)
		}
	}
	for i, n := range s.Nodes {
		if back.Nodes[i].Owner != n.Owner || back.Nodes[i].IsCity != n.IsCity {
			t.Errorf("Node %d differs", i)
		}
	}
	for i, e := range s.Edges {
		if back.Edges[i].Owner != e.Owner {
			t.Errorf("Edge %d differs", i)
		}
	}
}

func TestVictoryPoints(t *testing.T) {
	p := NewPlayer("x", "#fff")
	p.Settlements = []int{1, 2}
	p.Cities = []int{3}
	if got := p.VictoryPoints(); got != 4 {
		t.Errorf("Expected 4 points, got %d", got)
	}
}

func TestEmptyRollHistogram(t *testing.T) {
	h := EmptyRollHistogram()
	if len(h) != 11 {
		t.Fatalf("Expected 11 buckets, got %d", len(h))
	}
	for sum := 2; sum <= 12; sum++ {
		if v, present := h[sum]; !present || v != 0 {
			t.Errorf("Bucket %d missing or nonzero", sum)
		}
	}
}
