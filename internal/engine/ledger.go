package engine

import (
	"fmt"
	"math/big"
	"sort"
)

// EntryRange is one purchase recorded as a contiguous half-open ticket range
// [StartTicket, EndTicket). Ranges are appended in strictly increasing
// StartTicket order; their union is exactly [0, totalEntriesSold).
type EntryRange struct {
	Buyer       Address
	StartTicket uint64
	EndTicket   uint64
	PricePaid   *big.Int
}

// EntryLedger is the append-only cumulative range ledger. Winner lookup is
// a binary search over range boundaries, so settlement cost depends on the
// number of purchases, never on the number of tickets.
type EntryLedger struct {
	ranges map[Key][]EntryRange
}

func NewEntryLedger() *EntryLedger {
	return &EntryLedger{ranges: make(map[Key][]EntryRange)}
}

// Append records a purchase of entryCount tickets, returning the assigned
// range. The start ticket is the current cumulative total.
func (l *EntryLedger) Append(key Key, buyer Address, entryCount uint64, pricePaid *big.Int) EntryRange {
	start := uint64(0)
	if existing := l.ranges[key]; len(existing) > 0 {
		start = existing[len(existing)-1].EndTicket
	}
	r := EntryRange{
		Buyer:       buyer,
		StartTicket: start,
		EndTicket:   start + entryCount,
		PricePaid:   new(big.Int).Set(pricePaid),
	}
	l.ranges[key] = append(l.ranges[key], r)
	return r
}

// Ranges returns a copy of the recorded ranges for a raffle.
func (l *EntryLedger) Ranges(key Key) []EntryRange {
	src := l.ranges[key]
	out := make([]EntryRange, len(src))
	for i, r := range src {
		out[i] = EntryRange{Buyer: r.Buyer, StartTicket: r.StartTicket, EndTicket: r.EndTicket, PricePaid: new(big.Int).Set(r.PricePaid)}
	}
	return out
}

// Sold returns the cumulative ticket total for a raffle.
func (l *EntryLedger) Sold(key Key) uint64 {
	src := l.ranges[key]
	if len(src) == 0 {
		return 0
	}
	return src[len(src)-1].EndTicket
}

// ResolveWinner maps a random value to the buyer holding the winning ticket:
// winningTicket = randomValue mod totalEntriesSold, located by binary search.
// Pure with respect to its inputs; rerunning it yields the same winner.
func (l *EntryLedger) ResolveWinner(key Key, randomValue *big.Int) (Address, uint64, error) {
	ranges := l.ranges[key]
	if len(ranges) == 0 {
		return ZeroAddress, 0, fmt.Errorf("raffle %s: %w", key.Hex(), ErrNoEntriesSold)
	}
	total := ranges[len(ranges)-1].EndTicket
	ticket := new(big.Int).Mod(randomValue, new(big.Int).SetUint64(total)).Uint64()

	i := sort.Search(len(ranges), func(i int) bool {
		return ranges[i].EndTicket > ticket
	})
	return ranges[i].Buyer, ticket, nil
}
