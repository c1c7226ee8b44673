package custody

import (
	"fmt"
	"math/big"

	"raffle/internal/engine"
)

// collateral is the escrowed prize of one raffle. The raffle type selects
// the asset-specific transfer logic behind the uniform Release/Refund pair.
type collateral struct {
	bank       *Bank
	raffleType engine.RaffleType
	collection engine.Address // NFT collection or token contract
	tokenID    *big.Int       // NFT
	amount     *big.Int       // native value or token amount
	released   bool
}

// TakeCollateral implements engine.CustodyProvider. The transfer into escrow
// enforces the same preconditions the external asset contracts would:
// ownership and an explicit approval for the escrow account.
func (b *Bank) TakeCollateral(owner engine.Address, raffleType engine.RaffleType, collateralAddress engine.Address, collateralParam *big.Int) (engine.Custody, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch raffleType {
	case engine.TypeNFT:
		key := tokenKey(collateralParam)
		holder, ok := b.nfts[collateralAddress][key]
		if !ok || holder != owner {
			return nil, fmt.Errorf("nft %s/%s: %w", collateralAddress, collateralParam, engine.ErrCollateralNotOwned)
		}
		if b.nftApprovals[collateralAddress][key] != b.escrow {
			return nil, fmt.Errorf("nft %s/%s: %w", collateralAddress, collateralParam, engine.ErrCollateralNotApproved)
		}
		b.nfts[collateralAddress][key] = b.escrow
		delete(b.nftApprovals[collateralAddress], key)
		return &collateral{bank: b, raffleType: raffleType, collection: collateralAddress, tokenID: new(big.Int).Set(collateralParam)}, nil

	case engine.TypeNativeValue:
		if err := b.debitNative(owner, collateralParam); err != nil {
			return nil, fmt.Errorf("stake native value: %w", engine.ErrCollateralNotOwned)
		}
		b.creditNative(b.escrow, collateralParam)
		return &collateral{bank: b, raffleType: raffleType, amount: new(big.Int).Set(collateralParam)}, nil

	case engine.TypeFungibleToken:
		bal := b.tokens[collateralAddress][owner]
		if bal == nil || bal.Cmp(collateralParam) < 0 {
			return nil, fmt.Errorf("token %s: %w", collateralAddress, engine.ErrCollateralNotOwned)
		}
		allowance := b.tokenAllowances[collateralAddress][owner]
		if allowance == nil || allowance.Cmp(collateralParam) < 0 {
			return nil, fmt.Errorf("token %s: %w", collateralAddress, engine.ErrCollateralNotApproved)
		}
		if err := b.debitToken(collateralAddress, owner, collateralParam); err != nil {
			return nil, err
		}
		allowance.Sub(allowance, collateralParam)
		b.creditToken(collateralAddress, b.escrow, collateralParam)
		return &collateral{bank: b, raffleType: raffleType, collection: collateralAddress, amount: new(big.Int).Set(collateralParam)}, nil
	}
	return nil, fmt.Errorf("unsupported raffle type %s", raffleType)
}

func (c *collateral) transferTo(recipient engine.Address) error {
	b := c.bank
	b.mu.Lock()
	defer b.mu.Unlock()

	if c.released {
		return fmt.Errorf("collateral already released")
	}

	switch c.raffleType {
	case engine.TypeNFT:
		b.nfts[c.collection][tokenKey(c.tokenID)] = recipient
	case engine.TypeNativeValue:
		if err := b.debitNative(b.escrow, c.amount); err != nil {
			return err
		}
		b.creditNative(recipient, c.amount)
	case engine.TypeFungibleToken:
		if err := b.debitToken(c.collection, b.escrow, c.amount); err != nil {
			return err
		}
		b.creditToken(c.collection, recipient, c.amount)
	}
	c.released = true
	return nil
}

// Release implements engine.Custody.
func (c *collateral) Release(winner engine.Address) error {
	return c.transferTo(winner)
}

// Refund implements engine.Custody.
func (c *collateral) Refund(creator engine.Address) error {
	return c.transferTo(creator)
}
