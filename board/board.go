// Package board builds randomised hex boards: tile layout, constrained
// number-token placement and the deduplicated node/edge graph.
package board

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/wfunc/settlers/game"
)

const (
	Radius  = 2
	HexSize = 74.0
	Padding = 36.0
)

// hexNeighborDirs are the six axial neighbour offsets.
var hexNeighborDirs = [6][2]int{
	{1, 0}, {1, -1}, {0, -1}, {-1, 0}, {-1, 1}, {0, 1},
}

type axial struct {
	q, r int
}

// axialHexes enumerates every coordinate within radius (19 tiles at radius 2).
func axialHexes(radius int) []axial {
	var coords []axial
	for q := -radius; q <= radius; q++ {
		r1 := max(-radius, -q-radius)
		r2 := min(radius, -q+radius)
		for r := r1; r <= r2; r++ {
			coords = append(coords, axial{q, r})
		}
	}
	return coords
}

func hexCenter(q, r int) (x, y float64) {
	x = math.Sqrt(3) * HexSize * (float64(q) + float64(r)/2)
	y = 1.5 * HexSize * float64(r)
	return
}

// pointKey rounds to a shared grid so corners of adjacent tiles collapse
// onto one node.
func pointKey(x, y float64) string {
	return fmt.Sprintf("%d:%d", int(math.Round(x*1000)), int(math.Round(y*1000)))
}

func shuffled[T any](in []T) []T {
	out := make([]T, len(in))
	copy(out, in)
	rand.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}

// tileAdjacency maps each coordinate to the indices of its hex neighbours.
func tileAdjacency(coords []axial) [][]int {
	byCoord := make(map[axial]int, len(coords))
	for idx, c := range coords {
		byCoord[c] = idx
	}
	adjacency := make([][]int, len(coords))
	for idx, c := range coords {
		for _, dir := range hexNeighborDirs {
			if nbr, exists := byCoord[axial{c.q + dir[0], c.r + dir[1]}]; exists {
				adjacency[idx] = append(adjacency[idx], nbr)
			}
		}
	}
	return adjacency
}

// assignNumbers places the token multiset on non-desert tiles by
// backtracking, never putting two high-probability numbers (6/8) on
// adjacent hexes. Most-connected tiles are attempted first to fail fast.
//
// The standard tile and token counts are always satisfiable, so failure
// here means the constraint set itself is broken: it panics.
func assignNumbers(coords []axial, resources []game.Resource) []int {
	adjacency := tileAdjacency(coords)

	var nonDesert []int
	for idx, res := range resources {
		if res != game.Desert {
			nonDesert = append(nonDesert, idx)
		}
	}

	remaining := make(map[int]int)
	for _, number := range game.NumberTokens {
		remaining[number]++
	}
	var distinct []int
	for number := range remaining {
		distinct = append(distinct, number)
	}

	order := shuffled(nonDesert)
	// Stable by degree after the shuffle, so ties stay random.
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && len(adjacency[order[j]]) > len(adjacency[order[j-1]]); j-- {
			order[j], order[j-1] = order[j-1], order[j]
		}
	}

	assigned := make([]int, len(coords))

	canPlace := func(tileIdx, number int) bool {
		if !game.HighProbabilityNumbers[number] {
			return true
		}
		for _, nbr := range adjacency[tileIdx] {
			if game.HighProbabilityNumbers[assigned[nbr]] {
				return false
			}
		}
		return true
	}

	var backtrack func(pos int) bool
	backtrack = func(pos int) bool {
		if pos >= len(order) {
			return true
		}
		tileIdx := order[pos]
		var choices []int
		for _, number := range distinct {
			if remaining[number] > 0 {
				choices = append(choices, number)
			}
		}
		for _, number := range shuffled(choices) {
			if !canPlace(tileIdx, number) {
				continue
			}
			assigned[tileIdx] = number
			remaining[number]--
			if backtrack(pos + 1) {
				return true
			}
			remaining[number]++
			assigned[tileIdx] = 0
		}
		return false
	}

	if !backtrack(0) {
		panic("board: unable to place number tokens with non-adjacent high-probability constraint")
	}
	return assigned
}

// Generate builds a complete randomised board.
func Generate() *game.Board {
	coords := shuffled(axialHexes(Radius))

	var resources []game.Resource
	for res, count := range game.ResourceCounts {
		for i := 0; i < count; i++ {
			resources = append(resources, res)
		}
	}
	resources = shuffled(resources)
	numbers := assignNumbers(coords, resources)

	b := &game.Board{RobberTile: -1}
	nodeByPoint := make(map[string]int)
	edgeByPair := make(map[[2]int]int)

	for i, c := range coords {
		cx, cy := hexCenter(c.q, c.r)
		number := numbers[i]
		if resources[i] == game.Desert {
			number = 0
		}

		nodeIds := make([]int, 0, 6)
		for corner := 0; corner < 6; corner++ {
			angle := (60*float64(corner) + 30) * math.Pi / 180
			x := cx + HexSize*math.Cos(angle)
			y := cy + HexSize*math.Sin(angle)
			key := pointKey(x, y)
			nodeIdx, exists := nodeByPoint[key]
			if !exists {
				nodeIdx = len(b.Nodes)
				nodeByPoint[key] = nodeIdx
				b.Nodes = append(b.Nodes, &game.Node{
					Idx:   nodeIdx,
					X:     x,
					Y:     y,
					Owner: game.NoOwner,
				})
			}
			nodeIds = append(nodeIds, nodeIdx)
			b.Nodes[nodeIdx].Hexes = append(b.Nodes[nodeIdx].Hexes, i)
		}

		b.Tiles = append(b.Tiles, &game.Tile{
			Idx:      i,
			Q:        c.q,
			R:        c.r,
			Resource: resources[i],
			Number:   number,
			CX:       cx,
			CY:       cy,
			Nodes:    nodeIds,
		})
		if resources[i] == game.Desert {
			b.RobberTile = i
		}

		for corner := 0; corner < 6; corner++ {
			a := nodeIds[corner]
			bb := nodeIds[(corner+1)%6]
			pair := [2]int{min(a, bb), max(a, bb)}
			edgeIdx, exists := edgeByPair[pair]
			if !exists {
				edgeIdx = len(b.Edges)
				edgeByPair[pair] = edgeIdx
				b.Edges = append(b.Edges, &game.Edge{
					Idx:   edgeIdx,
					A:     pair[0],
					B:     pair[1],
					Owner: game.NoOwner,
				})
				b.Nodes[a].Edges = append(b.Nodes[a].Edges, edgeIdx)
				b.Nodes[bb].Edges = append(b.Nodes[bb].Edges, edgeIdx)
			}
		}
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, node := range b.Nodes {
		minX = math.Min(minX, node.X)
		minY = math.Min(minY, node.Y)
		maxX = math.Max(maxX, node.X)
		maxY = math.Max(maxY, node.Y)
	}
	b.Geometry = &game.Geometry{
		MinX:   minX,
		MinY:   minY,
		Width:  maxX - minX + Padding*2,
		Height: maxY - minY + Padding*2,
	}

	return b
}
