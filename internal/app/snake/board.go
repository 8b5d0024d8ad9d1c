package snake

import (
	"math/rand/v2"
	"strings"
)

type Direction string

const (
	Up    Direction = "UP"
	Down  Direction = "DOWN"
	Left  Direction = "LEFT"
	Right Direction = "RIGHT"
)

// ParseDirection accepts the four cardinal names in any case.
func ParseDirection(s string) (Direction, bool) {
	switch d := Direction(strings.ToUpper(strings.TrimSpace(s))); d {
	case Up, Down, Left, Right:
		return d, true
	}
	return "", false
}

func (d Direction) Opposite() Direction {
	switch d {
	case Up:
		return Down
	case Down:
		return Up
	case Left:
		return Right
	case Right:
		return Left
	}
	return ""
}

func (d Direction) offset() Position {
	switch d {
	case Up:
		return Position{X: 0, Y: -1}
	case Down:
		return Position{X: 0, Y: 1}
	case Left:
		return Position{X: -1, Y: 0}
	case Right:
		return Position{X: 1, Y: 0}
	}
	return Position{}
}

type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Position) step(d Direction) Position {
	o := d.offset()
	return Position{X: p.X + o.X, Y: p.Y + o.Y}
}

func (p Position) inside(size int) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < size && p.Y < size
}

// InitialFood is where the first food of every board appears when free.
var InitialFood = Position{X: 5, Y: 5}

var palette = []string{"#06d6a0", "#ef476f", "#ffd166", "#118ab2"}

// MaxPlayers is the number of spawn slots on a board.
const MaxPlayers = 4

// spawn returns the body and heading for the n-th player to join. Slots sit
// in the corners, each snake pointing along its wall.
func spawn(slot, size, length int) ([]Position, Direction) {
	far := size - 3
	var (
		head Position
		dir  Direction
	)
	switch slot % MaxPlayers {
	case 0:
		head, dir = Position{X: 2, Y: 2}, Right
	case 1:
		head, dir = Position{X: far, Y: far}, Left
	case 2:
		head, dir = Position{X: far, Y: 2}, Down
	default:
		head, dir = Position{X: 2, Y: far}, Up
	}
	body := make([]Position, 0, length)
	cur := head
	for i := 0; i < length; i++ {
		body = append(body, cur)
		cur = cur.step(dir.Opposite())
		if !cur.inside(size) {
			break
		}
	}
	return body, dir
}

// placeFood picks a free cell. It tries random cells first and falls back to
// a scan; ok is false when the board is full.
func placeFood(rng *rand.Rand, size int, occupied map[Position]struct{}) (Position, bool) {
	for attempt := 0; attempt < 100; attempt++ {
		p := Position{X: rng.IntN(size), Y: rng.IntN(size)}
		if _, taken := occupied[p]; !taken {
			return p, true
		}
	}
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			p := Position{X: x, Y: y}
			if _, taken := occupied[p]; !taken {
				return p, true
			}
		}
	}
	return Position{}, false
}
