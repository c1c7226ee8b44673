package engine

import (
	"fmt"
	"math/big"
)

// PriceTier maps a fixed entry count to a fixed price. Tiers need not be
// priced linearly; bulk discounts are configured directly in the tier table.
type PriceTier struct {
	ID         uint32
	EntryCount uint64
	Price      *big.Int
}

// PriceBook stores the ordered price tiers of an operator raffle. It is
// immutable once attached to a raffle.
type PriceBook struct {
	tiers []PriceTier
}

func NewPriceBook(tiers []PriceTier) (*PriceBook, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("price book needs at least one tier")
	}
	seen := make(map[uint32]bool, len(tiers))
	book := make([]PriceTier, 0, len(tiers))
	for _, t := range tiers {
		if seen[t.ID] {
			return nil, fmt.Errorf("duplicate tier id %d", t.ID)
		}
		if t.EntryCount == 0 {
			return nil, fmt.Errorf("tier %d: %w", t.ID, ErrTicketCountZero)
		}
		if t.Price == nil || t.Price.Sign() < 0 {
			return nil, fmt.Errorf("tier %d has no valid price", t.ID)
		}
		seen[t.ID] = true
		book = append(book, PriceTier{ID: t.ID, EntryCount: t.EntryCount, Price: new(big.Int).Set(t.Price)})
	}
	return &PriceBook{tiers: book}, nil
}

// Quote resolves a tier id to its entry count and price.
func (b *PriceBook) Quote(tierID uint32) (uint64, *big.Int, error) {
	for _, t := range b.tiers {
		if t.ID == tierID {
			return t.EntryCount, new(big.Int).Set(t.Price), nil
		}
	}
	return 0, nil, fmt.Errorf("tier %d: %w", tierID, ErrUnknownTier)
}

func (b *PriceBook) Tiers() []PriceTier {
	out := make([]PriceTier, len(b.tiers))
	for i, t := range b.tiers {
		out[i] = PriceTier{ID: t.ID, EntryCount: t.EntryCount, Price: new(big.Int).Set(t.Price)}
	}
	return out
}
