// Package schedule orders the pending objects on a plate for pushing.
//
// The order is built greedily: each pick re-evaluates every remaining object
// against the objects still pending, because removing one object changes the
// corridor occupancy of all the others. Collision counts are never cached
// between picks.
package schedule

import (
	"fmt"
	"sort"

	"github.com/banshee-data/platesort/internal/plate"
)

// Candidate is one pending object with the metrics computed for the current
// pick.
type Candidate struct {
	Object       plate.Object `json:"object"`
	Collisions   int          `json:"collisions"`
	EdgeDistance float64      `json:"edge_distance"`
	Manhattan    float64      `json:"manhattan"`
}

// Entry is one scheduled object, in output order.
type Entry struct {
	Rank int `json:"rank"`
	Candidate
	Path string `json:"path"`
}

// Key is the ordering tuple for a candidate; lower sorts first.
type Key [3]float64

// Less compares keys lexicographically.
func (k Key) Less(o Key) bool {
	for i := range k {
		if k[i] != o[i] {
			return k[i] < o[i]
		}
	}
	return false
}

// RankFunc maps a candidate to its ordering key.
type RankFunc func(Candidate) Key

// EdgeFirst ranks by (edge distance, collisions, manhattan distance). Objects
// near the collection edge need the shortest push and free room for others.
func EdgeFirst(c Candidate) Key {
	return Key{c.EdgeDistance, float64(c.Collisions), c.Manhattan}
}

// CollisionFirst ranks by (collisions, edge distance, manhattan distance),
// preferring currently unobstructed paths.
func CollisionFirst(c Candidate) Key {
	return Key{float64(c.Collisions), c.EdgeDistance, c.Manhattan}
}

// RankByName resolves a configured ranking policy.
func RankByName(name string) (RankFunc, error) {
	switch name {
	case "", "edge_first":
		return EdgeFirst, nil
	case "collision_first":
		return CollisionFirst, nil
	default:
		return nil, fmt.Errorf("unknown ranking %q", name)
	}
}

// Scheduler produces push orders for a fixed plate geometry.
type Scheduler struct {
	plate  *plate.Plate
	margin float64
	rank   RankFunc
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMargin sets the corridor half-width in millimetres.
func WithMargin(margin float64) Option {
	return func(s *Scheduler) { s.margin = margin }
}

// WithRank replaces the ranking-key function.
func WithRank(rank RankFunc) Option {
	return func(s *Scheduler) { s.rank = rank }
}

// New returns a Scheduler using EdgeFirst and the default margin.
func New(p *plate.Plate, opts ...Option) *Scheduler {
	s := &Scheduler{plate: p, margin: plate.DefaultMargin, rank: EdgeFirst}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Margin returns the corridor half-width in use.
func (s *Scheduler) Margin() float64 { return s.margin }

// Candidates evaluates every object in pending against the others.
func (s *Scheduler) Candidates(pending []plate.Object) []Candidate {
	out := make([]Candidate, 0, len(pending))
	for _, o := range pending {
		out = append(out, Candidate{
			Object:       o,
			Collisions:   s.plate.PathCollisionCount(o, pending, s.margin),
			EdgeDistance: s.plate.EdgeDistance(o),
			Manhattan:    s.plate.ManhattanDistance(o),
		})
	}
	return out
}

// Schedule returns a total order over objects. Objects whose class has no
// bin are skipped. The input slice is not modified. Among candidates with
// equal keys the first listed wins.
func (s *Scheduler) Schedule(objects []plate.Object) []Entry {
	pending := make([]plate.Object, 0, len(objects))
	for _, o := range objects {
		if _, ok := s.plate.Bin(o.Class); ok {
			pending = append(pending, o)
		}
	}

	order := make([]Entry, 0, len(pending))
	for len(pending) > 0 {
		candidates := s.Candidates(pending)
		sort.SliceStable(candidates, func(i, j int) bool {
			return s.rank(candidates[i]).Less(s.rank(candidates[j]))
		})

		best := candidates[0]
		order = append(order, Entry{
			Rank:      len(order) + 1,
			Candidate: best,
			Path:      s.plate.DescribePath(best.Object),
		})
		pending = without(pending, best.Object.ID)
	}
	return order
}

// Objects strips the scheduling metrics from an order.
func Objects(order []Entry) []plate.Object {
	out := make([]plate.Object, len(order))
	for i, e := range order {
		out[i] = e.Object
	}
	return out
}

func without(objects []plate.Object, id int) []plate.Object {
	out := make([]plate.Object, 0, len(objects))
	for _, o := range objects {
		if o.ID != id {
			out = append(out, o)
		}
	}
	return out
}
