// Package vault accrues the operator's commission and pays out signed
// referral-reward claims.
package vault

import (
	"fmt"
	"math/big"
	"sync"

	"go.uber.org/zap"

	"raffle/internal/auth"
	"raffle/internal/engine"
	"raffle/internal/logger"
)

// Payer moves native value between accounts on claim payout.
type Payer interface {
	Transfer(from, to engine.Address, amount *big.Int) error
}

type Vault struct {
	mu       sync.Mutex
	addr     engine.Address
	verifier *auth.Verifier
	payer    Payer
	balance  *big.Int
	// claim nonces are single-use; a replayed claim is rejected even when
	// the signature still verifies
	usedNonces map[uint64]bool
}

func New(addr engine.Address, verifier *auth.Verifier, payer Payer) *Vault {
	return &Vault{
		addr:       addr,
		verifier:   verifier,
		payer:      payer,
		balance:    new(big.Int),
		usedNonces: make(map[uint64]bool),
	}
}

// Address implements engine.SettlementVault.
func (v *Vault) Address() engine.Address {
	return v.addr
}

// Accrue implements engine.SettlementVault; called by settlement with the
// commission cut it just paid to the vault account.
func (v *Vault) Accrue(amount *big.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.balance.Add(v.balance, amount)
	logger.Debug("commission accrued",
		zap.String("amount", amount.String()),
		zap.String("vault balance", v.balance.String()),
	)
}

// Balance reports the commission held by the vault.
func (v *Vault) Balance() *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return new(big.Int).Set(v.balance)
}

// ClaimReferralReward pays a referral reward authorized by a signer claim
// over (nonce, target, amount).
func (v *Vault) ClaimReferralReward(target engine.Address, amount *big.Int, nonce uint64, sig []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("claim referral reward: amount must be positive")
	}
	if err := v.verifier.VerifyReferralClaim(nonce, string(target), amount, sig); err != nil {
		return fmt.Errorf("claim referral reward: %w", engine.ErrInvalidSignature)
	}
	if v.usedNonces[nonce] {
		return fmt.Errorf("claim referral reward: nonce %d: %w", nonce, engine.ErrGrantConsumed)
	}
	if v.balance.Cmp(amount) < 0 {
		return fmt.Errorf("claim referral reward: insufficient vault balance")
	}
	if err := v.payer.Transfer(v.addr, target, amount); err != nil {
		return fmt.Errorf("claim referral reward: %w", err)
	}
	v.balance.Sub(v.balance, amount)
	v.usedNonces[nonce] = true

	logger.Info("referral reward claimed",
		zap.String("target", string(target)),
		zap.String("amount", amount.String()),
		zap.Uint64("nonce", nonce),
	)
	return nil
}
