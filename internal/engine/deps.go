package engine

import "math/big"

// Custody holds one raffle's staked collateral from creation until
// settlement. Every collateral kind implements the same two operations.
type Custody interface {
	// Release transfers the collateral to the raffle winner.
	Release(winner Address) error
	// Refund returns the collateral to its original creator.
	Refund(creator Address) error
}

// CustodyProvider takes collateral into escrow at raffle creation. It must
// fail with ErrCollateralNotOwned or ErrCollateralNotApproved when the
// transfer preconditions are unmet.
type CustodyProvider interface {
	TakeCollateral(owner Address, raffleType RaffleType, collateralAddress Address, collateralParam *big.Int) (Custody, error)
}

// Bank escrows collected entry funds between purchase and settlement.
type Bank interface {
	// Deposit moves a buyer's payment into escrow.
	Deposit(from Address, amount *big.Int) error
	// Payout releases escrowed funds to a recipient.
	Payout(to Address, amount *big.Int) error
}

// RandomnessSource is the outbound half of the oracle interface. The inbound
// half is Registry.FulfillRandomness, invoked by the oracle's own
// infrastructure.
type RandomnessSource interface {
	RequestRandomness(key Key) (RequestID, error)
}

// SettlementVault receives the operator's commission cut.
type SettlementVault interface {
	Address() Address
	Accrue(amount *big.Int)
}
