package engine

import (
	"math/big"
	"time"

	"go.uber.org/zap"

	"raffle/internal/logger"
)

// Event is an observable state change published for off-line indexing.
// Events are not part of internal control flow.
type Event interface {
	EventName() string
	RaffleKey() Key
}

type RaffleCreated struct {
	Key               Key
	RaffleType        RaffleType
	Creator           Address
	CollateralAddress Address
	CollateralParam   *big.Int
	EndTime           time.Time
	Operator          bool
}

func (RaffleCreated) EventName() string { return "RaffleCreated" }
func (e RaffleCreated) RaffleKey() Key  { return e.Key }

// EntrySold carries the cumulative purchase count (not the ticket total) in
// CumulativePurchases, matching the indexer's expectations.
type EntrySold struct {
	Key                 Key
	Buyer               Address
	EntryCount          uint64
	CumulativePurchases uint64
	PricePaid           *big.Int
	Referral            Address
	ReferralTier        uint32
}

func (EntrySold) EventName() string { return "EntrySold" }
func (e EntrySold) RaffleKey() Key  { return e.Key }

type SetWinnerTriggered struct {
	Key             Key
	CollectedAmount *big.Int
}

func (SetWinnerTriggered) EventName() string { return "SetWinnerTriggered" }
func (e SetWinnerTriggered) RaffleKey() Key  { return e.Key }

type RandomnessRequested struct {
	Key       Key
	RequestID RequestID
}

func (RandomnessRequested) EventName() string { return "RandomnessRequested" }
func (e RandomnessRequested) RaffleKey() Key  { return e.Key }

type RandomnessFulfilled struct {
	Key           Key
	RequestID     RequestID
	Winner        Address
	WinningTicket uint64
}

func (RandomnessFulfilled) EventName() string { return "RandomnessFulfilled" }
func (e RandomnessFulfilled) RaffleKey() Key  { return e.Key }

type RaffleCancelled struct {
	Key Key
}

func (RaffleCancelled) EventName() string { return "RaffleCancelled" }
func (e RaffleCancelled) RaffleKey() Key  { return e.Key }

type MaxEntriesPerBuyerUpdated struct {
	Key Key
	Max uint64
}

func (MaxEntriesPerBuyerUpdated) EventName() string { return "MaxEntriesPerBuyerUpdated" }
func (e MaxEntriesPerBuyerUpdated) RaffleKey() Key  { return e.Key }

// Emitter receives every event the registry publishes.
type Emitter interface {
	Emit(Event)
}

// LogEmitter writes events to the structured log.
type LogEmitter struct{}

func (LogEmitter) Emit(e Event) {
	logger.Info("event emitted",
		zap.String("event", e.EventName()),
		zap.String("raffle", e.RaffleKey().Hex()),
		zap.Any("payload", e),
	)
}

// MultiEmitter fans an event out to several emitters in order.
type MultiEmitter []Emitter

func (m MultiEmitter) Emit(e Event) {
	for _, em := range m {
		em.Emit(e)
	}
}
