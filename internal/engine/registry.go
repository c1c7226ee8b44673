package engine

import (
	"crypto/sha256"
	"fmt"
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"

	"raffle/internal/auth"
	"raffle/internal/logger"
)

// OperatorCreateParams describe an operator-created raffle. Pricing comes
// from the attached tier book.
type OperatorCreateParams struct {
	RaffleType         RaffleType
	CollateralAddress  Address
	CollateralParam    *big.Int
	MinEntryCount      uint64
	MaxEntryCount      uint64
	EndTime            time.Time
	MaxEntriesPerBuyer uint64 // 0 = unlimited
}

// UserCreateParams describe a user-created raffle. Pricing is linear:
// every entry costs UnitPrice.
type UserCreateParams struct {
	RaffleType        RaffleType
	CollateralAddress Address
	CollateralParam   *big.Int
	EntrySupply       uint64
	UnitPrice         *big.Int
	EndTime           time.Time
}

// RegistryConfig wires the registry's collaborators. Verifier, Custody,
// Bank, Vault and Oracle are required.
type RegistryConfig struct {
	Admin           Address
	OraclePrincipal Address
	Verifier        *auth.Verifier
	Custody         CustodyProvider
	Bank            Bank
	Vault           SettlementVault
	Oracle          RandomnessSource
	CommissionBps   uint32
	Emitter         Emitter
	Clock           func() time.Time
}

// Registry owns all raffle records and serializes every entrypoint behind
// one mutex: each call runs to completion against a consistent snapshot with
// no partial-effect windows.
type Registry struct {
	mu sync.Mutex

	admin           Address
	oraclePrincipal Address
	verifier        *auth.Verifier
	custody         CustodyProvider
	bank            Bank
	emitter         Emitter
	now             func() time.Time

	ledger      *EntryLedger
	coordinator *randomnessCoordinator
	settlement  *settlementEngine

	raffles        map[Key]*Raffle
	operators      map[Address]bool
	consumedGrants map[[32]byte]bool
	sequence       uint64
}

func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Verifier == nil || cfg.Custody == nil || cfg.Bank == nil || cfg.Vault == nil || cfg.Oracle == nil {
		panic("registry: missing required collaborator")
	}
	if cfg.CommissionBps > bpsDenominator {
		panic("registry: commission above 100%")
	}
	if cfg.Emitter == nil {
		cfg.Emitter = LogEmitter{}
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Registry{
		admin:           cfg.Admin,
		oraclePrincipal: cfg.OraclePrincipal,
		verifier:        cfg.Verifier,
		custody:         cfg.Custody,
		bank:            cfg.Bank,
		emitter:         cfg.Emitter,
		now:             cfg.Clock,
		ledger:          NewEntryLedger(),
		coordinator:     newRandomnessCoordinator(cfg.Oracle),
		settlement:      newSettlementEngine(cfg.Bank, cfg.Vault, cfg.CommissionBps),
		raffles:         make(map[Key]*Raffle),
		operators:       make(map[Address]bool),
		consumedGrants:  make(map[[32]byte]bool),
	}
}

// GrantOperator adds an address to the operator role. Admin only.
func (g *Registry) GrantOperator(caller, operator Address) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if caller != g.admin {
		return fmt.Errorf("grant operator: %w", ErrUnauthorized)
	}
	g.operators[operator] = true
	logger.Info("operator role granted", zap.String("operator", string(operator)))
	return nil
}

// RevokeOperator removes an address from the operator role. Admin only.
func (g *Registry) RevokeOperator(caller, operator Address) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if caller != g.admin {
		return fmt.Errorf("revoke operator: %w", ErrUnauthorized)
	}
	delete(g.operators, operator)
	logger.Info("operator role revoked", zap.String("operator", string(operator)))
	return nil
}

// RotateSigner replaces the trusted grant signer key. Admin only. Grants
// issued under the previous key stop verifying immediately, which is what
// makes signature-based whitelisting instantly revocable.
func (g *Registry) RotateSigner(caller Address, signerHex string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if caller != g.admin {
		return fmt.Errorf("rotate signer: %w", ErrUnauthorized)
	}
	p, err := auth.PointFromHex(signerHex)
	if err != nil {
		return fmt.Errorf("rotate signer: %w", err)
	}
	g.verifier.Rotate(p)
	logger.Info("trusted signer rotated")
	return nil
}

// CreateOperatorRaffle stakes collateral owned by an operator and opens
// ticket sales priced by the tier book.
func (g *Registry) CreateOperatorRaffle(caller Address, p OperatorCreateParams, tiers []PriceTier) (Key, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.operators[caller] {
		return Key{}, fmt.Errorf("create operator raffle: %w", ErrUnauthorized)
	}
	if p.MaxEntryCount == 0 || p.MinEntryCount > p.MaxEntryCount {
		return Key{}, fmt.Errorf("create operator raffle: invalid entry bounds %d..%d", p.MinEntryCount, p.MaxEntryCount)
	}
	if !p.EndTime.After(g.now()) {
		return Key{}, fmt.Errorf("create operator raffle: end time not in the future")
	}
	book, err := NewPriceBook(tiers)
	if err != nil {
		return Key{}, fmt.Errorf("create operator raffle: %w", err)
	}

	r, err := g.create(caller, p.RaffleType, p.CollateralAddress, p.CollateralParam, p.EndTime)
	if err != nil {
		return Key{}, err
	}
	r.operator = true
	r.minEntryCount = p.MinEntryCount
	r.maxEntryCount = p.MaxEntryCount
	r.maxEntriesPerBuyer = p.MaxEntriesPerBuyer
	r.tiers = book

	g.register(r)
	return r.key, nil
}

// CreateUserRaffle stakes a caller's own collateral. The collateral's
// collection must be whitelisted, proven per call by a signer grant over
// (caller, collateralAddress) rather than a persisted allow-list.
func (g *Registry) CreateUserRaffle(caller Address, p UserCreateParams, whitelistSig []byte) (Key, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.verifier.VerifyWhitelist(string(caller), string(p.CollateralAddress), whitelistSig); err != nil {
		return Key{}, fmt.Errorf("create user raffle: %w", ErrCollectionNotWhitelisted)
	}
	if p.EntrySupply == 0 {
		return Key{}, fmt.Errorf("create user raffle: %w", ErrTicketCountZero)
	}
	if p.UnitPrice == nil || p.UnitPrice.Sign() < 0 {
		return Key{}, fmt.Errorf("create user raffle: invalid unit price")
	}
	if !p.EndTime.After(g.now()) {
		return Key{}, fmt.Errorf("create user raffle: end time not in the future")
	}

	r, err := g.create(caller, p.RaffleType, p.CollateralAddress, p.CollateralParam, p.EndTime)
	if err != nil {
		return Key{}, err
	}
	r.entrySupply = p.EntrySupply
	r.unitPrice = new(big.Int).Set(p.UnitPrice)
	// default per-buyer cap for user raffles: a fifth of the supply
	r.maxEntriesPerBuyer = p.EntrySupply / 5

	g.register(r)
	return r.key, nil
}

// create takes collateral custody and builds the record; the caller fills in
// the path-specific fields before register. Custody transfer and record
// creation are atomic under the registry mutex.
func (g *Registry) create(creator Address, raffleType RaffleType, collateralAddress Address, collateralParam *big.Int, endTime time.Time) (*Raffle, error) {
	if collateralParam == nil {
		collateralParam = new(big.Int)
	}
	custody, err := g.custody.TakeCollateral(creator, raffleType, collateralAddress, collateralParam)
	if err != nil {
		return nil, fmt.Errorf("take collateral: %w", err)
	}

	g.sequence++
	return &Raffle{
		key:               deriveKey(raffleType, collateralAddress, collateralParam, g.sequence),
		raffleType:        raffleType,
		collateralAddress: collateralAddress,
		collateralParam:   new(big.Int).Set(collateralParam),
		creator:           creator,
		endTime:           endTime,
		collectedFunds:    new(big.Int),
		buyerCounts:       make(map[Address]uint64),
		custody:           custody,
	}, nil
}

func (g *Registry) register(r *Raffle) {
	g.raffles[r.key] = r
	g.emitter.Emit(RaffleCreated{
		Key:               r.key,
		RaffleType:        r.raffleType,
		Creator:           r.creator,
		CollateralAddress: r.collateralAddress,
		CollateralParam:   new(big.Int).Set(r.collateralParam),
		EndTime:           r.endTime,
		Operator:          r.operator,
	})
	logger.Debug("raffle created",
		zap.String("raffle", r.key.Hex()),
		zap.String("type", r.raffleType.String()),
		zap.String("creator", string(r.creator)),
	)
}

// quote resolves the price of a purchase. Operator raffles price through the
// tier book; for user raffles the tier argument doubles as the entry count
// and the price is linear.
func (g *Registry) quote(r *Raffle, tierID uint32) (uint64, *big.Int, error) {
	if r.operator {
		return r.tiers.Quote(tierID)
	}
	count := uint64(tierID)
	price := new(big.Int).Mul(r.unitPrice, new(big.Int).SetUint64(count))
	return count, price, nil
}

// BuyEntry is the standard purchase path. The referral pair is carried on
// the event for off-line reward computation and does not affect accounting.
func (g *Registry) BuyEntry(key Key, buyer Address, tierID uint32, payment *big.Int, referral Address, referralTier uint32) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.raffles[key]
	if !ok {
		return fmt.Errorf("buy entry: %w", ErrUnknownRaffle)
	}
	count, price, err := g.quote(r, tierID)
	if err != nil {
		return fmt.Errorf("buy entry: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("buy entry: %w", ErrTicketCountZero)
	}
	if payment == nil || payment.Cmp(price) != 0 {
		return fmt.Errorf("buy entry: %w", ErrIncorrectPayment)
	}
	return g.recordPurchase(r, buyer, count, price, referral, referralTier)
}

// BuyDiscountEntry purchases at the tier price reduced by discountBps,
// authorized by a standing signer grant over (buyer, collection, bps).
func (g *Registry) BuyDiscountEntry(key Key, buyer Address, tierID uint32, collection Address, collectionTokenID uint64, discountBps uint32, payment *big.Int, sig []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	_ = collectionTokenID // proof-of-holding is the signer's concern, not re-checked here

	r, ok := g.raffles[key]
	if !ok {
		return fmt.Errorf("buy discount entry: %w", ErrUnknownRaffle)
	}
	if discountBps > bpsDenominator {
		return fmt.Errorf("buy discount entry: discount %d out of range", discountBps)
	}
	if err := g.verifier.VerifyDiscount(string(buyer), string(collection), discountBps, sig); err != nil {
		return fmt.Errorf("buy discount entry: %w", ErrInvalidSignature)
	}
	count, price, err := g.quote(r, tierID)
	if err != nil {
		return fmt.Errorf("buy discount entry: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("buy discount entry: %w", ErrTicketCountZero)
	}

	discount := new(big.Int).Mul(price, big.NewInt(int64(discountBps)))
	discount.Div(discount, big.NewInt(bpsDenominator))
	discounted := new(big.Int).Sub(price, discount)

	// exact payment, no overpayment tolerance
	if payment == nil || payment.Cmp(discounted) != 0 {
		return fmt.Errorf("buy discount entry: %w", ErrIncorrectPayment)
	}
	return g.recordPurchase(r, buyer, count, discounted, ZeroAddress, 0)
}

// BuyFreeEntry redeems a signer grant for an exact entry count at zero
// price. A grant is single-use: its signature hash joins the consumed set.
func (g *Registry) BuyFreeEntry(key Key, buyer Address, entryCount uint64, collection Address, collectionTokenID uint64, sig []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	_, _ = collection, collectionTokenID

	r, ok := g.raffles[key]
	if !ok {
		return fmt.Errorf("buy free entry: %w", ErrUnknownRaffle)
	}
	if entryCount == 0 {
		return fmt.Errorf("buy free entry: %w", ErrTicketCountZero)
	}
	if err := g.verifier.VerifyFreeEntry(string(buyer), key, entryCount, sig); err != nil {
		return fmt.Errorf("buy free entry: %w", ErrInvalidSignature)
	}
	grantID := sha256.Sum256(sig)
	if g.consumedGrants[grantID] {
		return fmt.Errorf("buy free entry: %w", ErrGrantConsumed)
	}
	if err := g.recordPurchase(r, buyer, entryCount, new(big.Int), ZeroAddress, 0); err != nil {
		return err
	}
	g.consumedGrants[grantID] = true
	return nil
}

// recordPurchase is the accounting core shared by all purchase paths. On any
// failure the whole purchase is discarded; no partial fill exists.
func (g *Registry) recordPurchase(r *Raffle, buyer Address, entryCount uint64, pricePaid *big.Int, referral Address, referralTier uint32) error {
	if entryCount == 0 {
		return fmt.Errorf("record purchase: %w", ErrTicketCountZero)
	}
	if r.finished || !g.now().Before(r.endTime) {
		return fmt.Errorf("record purchase: %w", ErrRaffleFinished)
	}
	if r.totalEntriesSold+entryCount > r.capacity() {
		return fmt.Errorf("record purchase: %w", ErrExceedsRaffleCap)
	}
	if r.maxEntriesPerBuyer > 0 && r.buyerCounts[buyer]+entryCount > r.maxEntriesPerBuyer {
		return fmt.Errorf("record purchase: %w", ErrExceedsBuyerCap)
	}

	if pricePaid.Sign() > 0 {
		if err := g.bank.Deposit(buyer, pricePaid); err != nil {
			return fmt.Errorf("record purchase: %w", err)
		}
	}

	rng := g.ledger.Append(r.key, buyer, entryCount, pricePaid)
	r.totalEntriesSold = rng.EndTicket
	r.purchases++
	r.buyerCounts[buyer] += entryCount
	r.collectedFunds.Add(r.collectedFunds, pricePaid)

	g.emitter.Emit(EntrySold{
		Key:                 r.key,
		Buyer:               buyer,
		EntryCount:          entryCount,
		CumulativePurchases: r.purchases,
		PricePaid:           new(big.Int).Set(pricePaid),
		Referral:            referral,
		ReferralTier:        referralTier,
	})
	logger.Debug("entry sold",
		zap.String("raffle", r.key.Hex()),
		zap.String("buyer", string(buyer)),
		zap.Uint64("count", entryCount),
		zap.Uint64("total sold", r.totalEntriesSold),
	)
	return nil
}

// SetWinner transitions a raffle to finished once its end condition holds
// and triggers the randomness request. With zero entries sold the raffle is
// cancelled instead: collateral goes back to the creator and randomness is
// skipped.
func (g *Registry) SetWinner(caller Address, key Key) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.raffles[key]
	if !ok {
		return fmt.Errorf("set winner: %w", ErrUnknownRaffle)
	}
	if r.finished {
		return fmt.Errorf("set winner: %w", ErrAlreadyFinished)
	}
	if g.now().Before(r.endTime) {
		return fmt.Errorf("set winner: %w", ErrNotYetFinished)
	}
	if r.operator && r.totalEntriesSold > 0 && r.totalEntriesSold < r.minEntryCount {
		return fmt.Errorf("set winner: %w", ErrNotYetFinished)
	}

	if r.totalEntriesSold == 0 {
		if err := g.settlement.cancel(r); err != nil {
			return fmt.Errorf("set winner: %w", err)
		}
		r.finished = true
		g.emitter.Emit(RaffleCancelled{Key: r.key})
		return nil
	}

	id, err := g.coordinator.request(r.key)
	if err != nil {
		return fmt.Errorf("set winner: %w", err)
	}
	r.finished = true
	r.pendingRequestID = id

	g.emitter.Emit(RandomnessRequested{Key: r.key, RequestID: id})
	g.emitter.Emit(SetWinnerTriggered{Key: r.key, CollectedAmount: new(big.Int).Set(r.collectedFunds)})
	logger.Info("winner draw triggered",
		zap.String("raffle", r.key.Hex()),
		zap.String("caller", string(caller)),
		zap.String("request", string(id)),
		zap.String("collected", r.collectedFunds.String()),
	)
	return nil
}

// FulfillRandomness is the oracle callback. Only the designated oracle
// principal may deliver it; a redelivery for an already fulfilled request is
// a no-op.
func (g *Registry) FulfillRandomness(caller Address, id RequestID, randomValue *big.Int) (Key, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if caller != g.oraclePrincipal {
		return Key{}, fmt.Errorf("fulfill randomness: %w", ErrUnauthorized)
	}
	key, duplicate, err := g.coordinator.consume(id)
	if err != nil {
		return Key{}, fmt.Errorf("fulfill randomness: %w", err)
	}
	if duplicate {
		logger.Debug("duplicate randomness delivery ignored", zap.String("request", string(id)))
		return key, nil
	}

	r := g.raffles[key]
	winner, ticket, err := g.ledger.ResolveWinner(key, randomValue)
	if err != nil {
		return key, fmt.Errorf("fulfill randomness: %w", err)
	}
	if err := g.settlement.distribute(r, winner); err != nil {
		return key, fmt.Errorf("fulfill randomness: %w", err)
	}
	r.winner = winner
	r.pendingRequestID = ""

	g.emitter.Emit(RandomnessFulfilled{Key: key, RequestID: id, Winner: winner, WinningTicket: ticket})
	logger.Info("winner resolved",
		zap.String("raffle", key.Hex()),
		zap.String("winner", string(winner)),
		zap.Uint64("ticket", ticket),
	)
	return key, nil
}

// SetMaxEntriesPerBuyer adjusts a raffle's per-buyer cap. Restricted to the
// admin, an operator, or the raffle's creator; the cap never exceeds the
// raffle's entry ceiling. Zero lifts the cap.
func (g *Registry) SetMaxEntriesPerBuyer(caller Address, key Key, max uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.raffles[key]
	if !ok {
		return fmt.Errorf("set max entries per buyer: %w", ErrUnknownRaffle)
	}
	if caller != g.admin && !g.operators[caller] && caller != r.creator {
		return fmt.Errorf("set max entries per buyer: %w", ErrUnauthorized)
	}
	if max > r.capacity() {
		return fmt.Errorf("set max entries per buyer: %d above raffle ceiling %d", max, r.capacity())
	}
	r.maxEntriesPerBuyer = max
	g.emitter.Emit(MaxEntriesPerBuyerUpdated{Key: key, Max: max})
	return nil
}

// Raffle returns the externally visible state of a raffle.
func (g *Registry) Raffle(key Key) (Snapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.raffles[key]
	if !ok {
		return Snapshot{}, fmt.Errorf("raffle lookup: %w", ErrUnknownRaffle)
	}
	return r.snapshot(), nil
}

// Entries returns the recorded ticket ranges of a raffle.
func (g *Registry) Entries(key Key) ([]EntryRange, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.raffles[key]; !ok {
		return nil, fmt.Errorf("entries lookup: %w", ErrUnknownRaffle)
	}
	return g.ledger.Ranges(key), nil
}
