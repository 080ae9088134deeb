package model

import (
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

const (
	RoomWidth  = 12
	RoomHeight = 12
)

// Position is a cell in the agent's room.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// StartPosition is where every agent wakes up.
var StartPosition = Position{X: 5, Y: 5}

var locations = map[string]Position{
	"desk":      {X: 10, Y: 1},
	"bookshelf": {X: 1, Y: 2},
	"window":    {X: 4, Y: 0},
	"plant":     {X: 0, Y: 8},
	"bed":       {X: 3, Y: 10},
	"rug":       {X: 5, Y: 5},
	"center":    {X: 5, Y: 5},
}

// Locations returns the sorted location names accepted by move.
func Locations() []string {
	names := make([]string, 0, len(locations))
	for name := range locations {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// LookupLocation resolves a location name case-insensitively.
func LookupLocation(name string) (Position, error) {
	p, ok := locations[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Position{}, goerr.Wrap(ErrUnknownLocation, "no such place in the room", goerr.V("location", name))
	}
	return p, nil
}

// Wander moves at most one cell along each axis and stays inside the room.
func (p Position) Wander(r *rand.Rand) Position {
	next := Position{
		X: p.X + r.IntN(3) - 1,
		Y: p.Y + r.IntN(3) - 1,
	}
	next.X = max(0, min(RoomWidth-1, next.X))
	next.Y = max(0, min(RoomHeight-1, next.Y))
	return next
}
