// Package custody implements the collateral and fund custody interfaces on
// an in-memory asset ledger. It stands in for the external asset contracts
// the engine would call on a chain substrate, while keeping their transfer
// preconditions (ownership, approval) observable.
package custody

import (
	"fmt"
	"math/big"
	"sync"

	"raffle/internal/engine"
)

type Bank struct {
	mu sync.Mutex

	escrow engine.Address

	native map[engine.Address]*big.Int
	tokens map[engine.Address]map[engine.Address]*big.Int // token -> holder -> balance

	nfts         map[engine.Address]map[string]engine.Address // collection -> tokenID -> owner
	nftApprovals map[engine.Address]map[string]engine.Address // collection -> tokenID -> approved spender

	tokenAllowances map[engine.Address]map[engine.Address]*big.Int // token -> owner -> allowance for escrow
}

func NewBank(escrow engine.Address) *Bank {
	return &Bank{
		escrow:          escrow,
		native:          make(map[engine.Address]*big.Int),
		tokens:          make(map[engine.Address]map[engine.Address]*big.Int),
		nfts:            make(map[engine.Address]map[string]engine.Address),
		nftApprovals:    make(map[engine.Address]map[string]engine.Address),
		tokenAllowances: make(map[engine.Address]map[engine.Address]*big.Int),
	}
}

func tokenKey(id *big.Int) string { return id.String() }

// MintNFT assigns a token of a collection to an owner.
func (b *Bank) MintNFT(collection engine.Address, tokenID *big.Int, owner engine.Address) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.nfts[collection] == nil {
		b.nfts[collection] = make(map[string]engine.Address)
	}
	b.nfts[collection][tokenKey(tokenID)] = owner
}

// ApproveNFT lets the escrow account pull one token of the caller's.
func (b *Bank) ApproveNFT(owner, collection engine.Address, tokenID *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.nfts[collection][tokenKey(tokenID)] != owner {
		return fmt.Errorf("approve nft %s/%s: %w", collection, tokenID, engine.ErrCollateralNotOwned)
	}
	if b.nftApprovals[collection] == nil {
		b.nftApprovals[collection] = make(map[string]engine.Address)
	}
	b.nftApprovals[collection][tokenKey(tokenID)] = b.escrow
	return nil
}

// CreditNative adds native value to an account.
func (b *Bank) CreditNative(account engine.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.creditNative(account, amount)
}

func (b *Bank) creditNative(account engine.Address, amount *big.Int) {
	if b.native[account] == nil {
		b.native[account] = new(big.Int)
	}
	b.native[account].Add(b.native[account], amount)
}

func (b *Bank) debitNative(account engine.Address, amount *big.Int) error {
	bal := b.native[account]
	if bal == nil || bal.Cmp(amount) < 0 {
		return fmt.Errorf("account %s: insufficient native balance", account)
	}
	bal.Sub(bal, amount)
	return nil
}

// CreditToken adds fungible token balance to a holder.
func (b *Bank) CreditToken(token, holder engine.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.creditToken(token, holder, amount)
}

func (b *Bank) creditToken(token, holder engine.Address, amount *big.Int) {
	if b.tokens[token] == nil {
		b.tokens[token] = make(map[engine.Address]*big.Int)
	}
	if b.tokens[token][holder] == nil {
		b.tokens[token][holder] = new(big.Int)
	}
	b.tokens[token][holder].Add(b.tokens[token][holder], amount)
}

func (b *Bank) debitToken(token, holder engine.Address, amount *big.Int) error {
	bal := b.tokens[token][holder]
	if bal == nil || bal.Cmp(amount) < 0 {
		return fmt.Errorf("holder %s: insufficient balance of %s", holder, token)
	}
	bal.Sub(bal, amount)
	return nil
}

// ApproveToken grants the escrow account an allowance over the owner's
// fungible token balance.
func (b *Bank) ApproveToken(owner, token engine.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tokenAllowances[token] == nil {
		b.tokenAllowances[token] = make(map[engine.Address]*big.Int)
	}
	b.tokenAllowances[token][owner] = new(big.Int).Set(amount)
}

// NativeBalance reports an account's native balance.
func (b *Bank) NativeBalance(account engine.Address) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.native[account] == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(b.native[account])
}

// TokenBalance reports a holder's balance of a fungible token.
func (b *Bank) TokenBalance(token, holder engine.Address) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tokens[token][holder] == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(b.tokens[token][holder])
}

// NFTOwner reports the current owner of a token, or the zero address.
func (b *Bank) NFTOwner(collection engine.Address, tokenID *big.Int) engine.Address {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nfts[collection][tokenKey(tokenID)]
}

// Deposit implements engine.Bank: a buyer's payment moves into escrow.
func (b *Bank) Deposit(from engine.Address, amount *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.debitNative(from, amount); err != nil {
		return err
	}
	b.creditNative(b.escrow, amount)
	return nil
}

// Payout implements engine.Bank: escrowed funds move to a recipient.
func (b *Bank) Payout(to engine.Address, amount *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.debitNative(b.escrow, amount); err != nil {
		return err
	}
	b.creditNative(to, amount)
	return nil
}

// Transfer moves native value between two accounts.
func (b *Bank) Transfer(from, to engine.Address, amount *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.debitNative(from, amount); err != nil {
		return err
	}
	b.creditNative(to, amount)
	return nil
}
