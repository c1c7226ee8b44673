package engine

import (
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"raffle/internal/logger"
)

const bpsDenominator = 10000

// settlementEngine distributes collateral and collected funds once a winner
// is resolved, or returns the collateral on the cancellation path.
type settlementEngine struct {
	bank          Bank
	vault         SettlementVault
	commissionBps uint32
}

func newSettlementEngine(bank Bank, vault SettlementVault, commissionBps uint32) *settlementEngine {
	return &settlementEngine{bank: bank, vault: vault, commissionBps: commissionBps}
}

// distribute releases the staked collateral to the winner and splits the
// collected entry funds commission -> vault, remainder -> creator. Integer
// basis-point arithmetic with floor division; the rounding remainder always
// lands with the creator.
func (s *settlementEngine) distribute(r *Raffle, winner Address) error {
	if err := r.custody.Release(winner); err != nil {
		return fmt.Errorf("release collateral of %s: %w", r.key.Hex(), err)
	}

	if r.collectedFunds.Sign() == 0 {
		return nil
	}

	commission := new(big.Int).Mul(r.collectedFunds, big.NewInt(int64(s.commissionBps)))
	commission.Div(commission, big.NewInt(bpsDenominator))
	remainder := new(big.Int).Sub(r.collectedFunds, commission)

	if commission.Sign() > 0 {
		if err := s.bank.Payout(s.vault.Address(), commission); err != nil {
			return fmt.Errorf("pay commission for %s: %w", r.key.Hex(), err)
		}
		s.vault.Accrue(commission)
	}
	if remainder.Sign() > 0 {
		if err := s.bank.Payout(r.creator, remainder); err != nil {
			return fmt.Errorf("pay creator of %s: %w", r.key.Hex(), err)
		}
	}

	logger.Debug("settlement distributed",
		zap.String("raffle", r.key.Hex()),
		zap.String("winner", string(winner)),
		zap.String("commission", commission.String()),
		zap.String("creator share", remainder.String()),
	)
	return nil
}

// cancel returns the staked collateral to the creator. Taken when the end
// time passes with zero entries sold; randomness is skipped entirely.
func (s *settlementEngine) cancel(r *Raffle) error {
	if err := r.custody.Refund(r.creator); err != nil {
		return fmt.Errorf("refund collateral of %s: %w", r.key.Hex(), err)
	}
	logger.Debug("raffle cancelled, collateral refunded", zap.String("raffle", r.key.Hex()))
	return nil
}
