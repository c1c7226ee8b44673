package engine

import "errors"

// Authorization
var (
	ErrUnauthorized             = errors.New("caller is not authorized")
	ErrInvalidSignature         = errors.New("invalid signature")
	ErrCollectionNotWhitelisted = errors.New("this collection is not whitelisted")
	ErrGrantConsumed            = errors.New("authorization grant already redeemed")
)

// Lifecycle
var (
	ErrRaffleFinished        = errors.New("raffle already finished")
	ErrNotYetFinished        = errors.New("raffle not yet finished")
	ErrAlreadyFinished       = errors.New("winner already set")
	ErrRequestAlreadyPending = errors.New("randomness request already pending")
	ErrUnknownRequest        = errors.New("unknown randomness request")
)

// Accounting
var (
	ErrExceedsRaffleCap = errors.New("max ticket amount exceeded")
	ErrExceedsBuyerCap  = errors.New("bought too many entries")
	ErrTicketCountZero  = errors.New("ticket count should be bigger than 0")
	ErrIncorrectPayment = errors.New("payment must be equal to the price")
	ErrNoEntriesSold    = errors.New("no entries sold")
)

// Custody
var (
	ErrCollateralNotOwned    = errors.New("collateral not owned by creator")
	ErrCollateralNotApproved = errors.New("collateral not approved for transfer")
)

// Lookup
var (
	ErrUnknownRaffle = errors.New("unknown raffle")
	ErrUnknownTier   = errors.New("unknown price tier")
)
