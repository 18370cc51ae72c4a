/*
order.go - Payout-order assignment

PURPOSE:
  Assigns each member a 1-based payout position determining which cycle
  number they receive the pooled payout in. Three methods:

  fixed:
    Deterministic. Members with an existing position sort first (by that
    position), positionless members follow in lexical user-ID order, then
    everyone is renumbered 1..N. The lexical tie-break is part of the
    contract: it is visible in real payout ordering and must stay stable.

  lottery:
    Uniform random permutation (Fisher-Yates). Randomness comes from the
    injected rand.Source so tests can seed it; production callers use
    NewLotterySource().

  organizer_assigned:
    Pre-set positions are kept verbatim. Positionless members receive the
    smallest unused integers past the pre-existing maximum, in input order.
    The 1..N bijection holds when the organizer's pre-set positions form a
    contiguous prefix, which the membership layer enforces by assigning
    through this same function.

INVARIANT:
  For every method the output is a total ordering: exactly N assignments
  whose positions form the set {1..N} with no gaps or duplicates (for
  organizer_assigned, under the contiguous-prefix precondition above).

SEE ALSO:
  - lifecycle.go: Applies assignments at group start
*/
package paluwagan

import (
	"fmt"
	"math/rand"
	"sort"
	"time"
)

// OrderCandidate is one member entering payout-order assignment.
type OrderCandidate struct {
	UserID   UserID
	Position *int // existing position, if any
}

// PositionAssignment is the assigned slot for one member.
type PositionAssignment struct {
	UserID   UserID
	Position int
}

// NewLotterySource returns a time-seeded source for production lottery
// draws. Tests pass a fixed-seed source instead.
func NewLotterySource() rand.Source {
	return rand.NewSource(time.Now().UnixNano())
}

// AssignPayoutOrder produces the payout ordering for a member list. src is
// only consulted for the lottery method and may be nil otherwise.
func AssignPayoutOrder(members []OrderCandidate, method OrderMethod, src rand.Source) ([]PositionAssignment, error) {
	switch method {
	case OrderFixed:
		return assignFixed(members), nil
	case OrderLottery:
		if src == nil {
			src = NewLotterySource()
		}
		return assignLottery(members, src), nil
	case OrderOrganizerAssigned:
		return assignOrganizer(members), nil
	default:
		return nil, fmt.Errorf("unknown order method %q", method)
	}
}

func assignFixed(members []OrderCandidate) []PositionAssignment {
	sorted := make([]OrderCandidate, len(members))
	copy(sorted, members)

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		switch {
		case a.Position != nil && b.Position != nil:
			return *a.Position < *b.Position
		case a.Position != nil:
			return true
		case b.Position != nil:
			return false
		default:
			return a.UserID < b.UserID
		}
	})

	// Full renumbering: original position values only decide order.
	out := make([]PositionAssignment, len(sorted))
	for i, c := range sorted {
		out[i] = PositionAssignment{UserID: c.UserID, Position: i + 1}
	}
	return out
}

func assignLottery(members []OrderCandidate, src rand.Source) []PositionAssignment {
	shuffled := make([]OrderCandidate, len(members))
	copy(shuffled, members)

	// Existing positions are deliberately ignored: every member can land
	// anywhere.
	rng := rand.New(src)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	out := make([]PositionAssignment, len(shuffled))
	for i, c := range shuffled {
		out[i] = PositionAssignment{UserID: c.UserID, Position: i + 1}
	}
	return out
}

func assignOrganizer(members []OrderCandidate) []PositionAssignment {
	used := make(map[int]bool)
	maxPos := 0
	for _, c := range members {
		if c.Position != nil {
			used[*c.Position] = true
			if *c.Position > maxPos {
				maxPos = *c.Position
			}
		}
	}

	out := make([]PositionAssignment, 0, len(members))
	next := maxPos + 1
	for _, c := range members {
		if c.Position != nil {
			out = append(out, PositionAssignment{UserID: c.UserID, Position: *c.Position})
			continue
		}
		for used[next] {
			next++
		}
		out = append(out, PositionAssignment{UserID: c.UserID, Position: next})
		used[next] = true
		next++
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}
