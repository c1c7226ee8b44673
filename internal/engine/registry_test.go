package engine_test

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"raffle/internal/auth"
	"raffle/internal/engine"
)

func TestCreateOperatorRaffleRequiresRole(t *testing.T) {
	e := newEnv(t)

	id := big.NewInt(7)
	e.bank.MintNFT(nftCollection, id, "mallory")

	_, err := e.registry.CreateOperatorRaffle("mallory", engine.OperatorCreateParams{
		RaffleType:        engine.TypeNFT,
		CollateralAddress: nftCollection,
		CollateralParam:   id,
		MaxEntryCount:     10,
		EndTime:           e.clock.Now().Add(time.Hour),
	}, defaultTiers())
	require.ErrorIs(t, err, engine.ErrUnauthorized)
}

func TestCreateOperatorRaffleCollateralChecks(t *testing.T) {
	e := newEnv(t)

	id := big.NewInt(1)
	e.bank.MintNFT(nftCollection, id, "somebody-else")

	params := engine.OperatorCreateParams{
		RaffleType:        engine.TypeNFT,
		CollateralAddress: nftCollection,
		CollateralParam:   id,
		MaxEntryCount:     10,
		EndTime:           e.clock.Now().Add(time.Hour),
	}

	_, err := e.registry.CreateOperatorRaffle(operator, params, defaultTiers())
	require.ErrorIs(t, err, engine.ErrCollateralNotOwned)

	id = big.NewInt(2)
	e.bank.MintNFT(nftCollection, id, operator)
	params.CollateralParam = id
	_, err = e.registry.CreateOperatorRaffle(operator, params, defaultTiers())
	require.ErrorIs(t, err, engine.ErrCollateralNotApproved)
}

func TestCreateOperatorRaffleTakesCustody(t *testing.T) {
	e := newEnv(t)

	k := e.createNFTRaffle(t, 1, 0, 10)

	require.Equal(t, escrow, e.bank.NFTOwner(nftCollection, big.NewInt(1)))

	s, err := e.registry.Raffle(k)
	require.NoError(t, err)
	require.True(t, s.Operator)
	require.Equal(t, operator, s.Creator)
	require.Equal(t, uint64(10), s.MaxEntryCount)
	require.False(t, s.Finished)

	created := e.events.byName("RaffleCreated")
	require.Len(t, created, 1)
	require.Equal(t, k, created[0].RaffleKey())
}

func TestBuyEntryTierPricing(t *testing.T) {
	e := newEnv(t)
	k := e.createNFTRaffle(t, 1, 0, 6)

	buyer := engine.Address("bob")
	e.fund(buyer)

	// tier 1: five tickets for 0.4
	err := e.registry.BuyEntry(k, buyer, 1, milli(400), engine.ZeroAddress, 0)
	require.NoError(t, err)

	// tier 0: one ticket for 0.1
	err = e.registry.BuyEntry(k, buyer, 0, milli(100), engine.ZeroAddress, 0)
	require.NoError(t, err)

	s, err := e.registry.Raffle(k)
	require.NoError(t, err)
	require.Equal(t, uint64(6), s.TotalEntriesSold)
	require.Equal(t, uint64(2), s.Purchases)
	require.Equal(t, 0, s.CollectedFunds.Cmp(milli(500)))

	// raffle is full: one more single exceeds the ceiling
	err = e.registry.BuyEntry(k, buyer, 0, milli(100), engine.ZeroAddress, 0)
	require.ErrorIs(t, err, engine.ErrExceedsRaffleCap)

	// the sold counter on events is the purchase count, not the ticket count
	sold := e.events.byName("EntrySold")
	require.Len(t, sold, 2)
	require.Equal(t, uint64(1), sold[0].(engine.EntrySold).CumulativePurchases)
	require.Equal(t, uint64(2), sold[1].(engine.EntrySold).CumulativePurchases)
	require.Equal(t, uint64(5), sold[0].(engine.EntrySold).EntryCount)
}

func TestBuyEntryRejectsBadInput(t *testing.T) {
	e := newEnv(t)
	k := e.createNFTRaffle(t, 1, 0, 10)

	buyer := engine.Address("bob")
	e.fund(buyer)

	err := e.registry.BuyEntry(k, buyer, 9, milli(100), engine.ZeroAddress, 0)
	require.ErrorIs(t, err, engine.ErrUnknownTier)

	// underpayment and overpayment both fail: payment must be exact
	err = e.registry.BuyEntry(k, buyer, 0, milli(99), engine.ZeroAddress, 0)
	require.ErrorIs(t, err, engine.ErrIncorrectPayment)
	err = e.registry.BuyEntry(k, buyer, 0, milli(101), engine.ZeroAddress, 0)
	require.ErrorIs(t, err, engine.ErrIncorrectPayment)

	err = e.registry.BuyEntry(engine.Key{0xff}, buyer, 0, milli(100), engine.ZeroAddress, 0)
	require.ErrorIs(t, err, engine.ErrUnknownRaffle)
}

func TestUserRaffleLinearPricingAndBuyerCap(t *testing.T) {
	e := newEnv(t)
	creator := engine.Address("carol")
	k := e.createUserRaffle(t, creator, 1, 10, milli(100))

	s, err := e.registry.Raffle(k)
	require.NoError(t, err)
	require.False(t, s.Operator)
	// default per-buyer cap is a fifth of the supply
	require.Equal(t, uint64(2), s.MaxEntriesPerBuyer)

	buyer := engine.Address("bob")
	e.fund(buyer)

	// for user raffles the tier id is the entry count
	err = e.registry.BuyEntry(k, buyer, 1, milli(100), engine.ZeroAddress, 0)
	require.NoError(t, err)

	err = e.registry.BuyEntry(k, buyer, 2, milli(200), engine.ZeroAddress, 0)
	require.ErrorIs(t, err, engine.ErrExceedsBuyerCap)

	other := engine.Address("dave")
	e.fund(other)
	err = e.registry.BuyEntry(k, other, 2, milli(200), engine.ZeroAddress, 0)
	require.NoError(t, err)

	s, err = e.registry.Raffle(k)
	require.NoError(t, err)
	require.Equal(t, uint64(3), s.TotalEntriesSold)
}

func TestCreateUserRaffleRequiresWhitelistGrant(t *testing.T) {
	e := newEnv(t)
	creator := engine.Address("carol")

	id := big.NewInt(1)
	e.bank.MintNFT(nftCollection, id, creator)
	require.NoError(t, e.bank.ApproveNFT(creator, nftCollection, id))

	// grant issued for a different caller does not transfer
	sig := e.sign(t, auth.WhitelistDigest("someone-else", string(nftCollection)))
	_, err := e.registry.CreateUserRaffle(creator, engine.UserCreateParams{
		RaffleType:        engine.TypeNFT,
		CollateralAddress: nftCollection,
		CollateralParam:   id,
		EntrySupply:       10,
		UnitPrice:         milli(100),
		EndTime:           e.clock.Now().Add(time.Hour),
	}, sig)
	require.ErrorIs(t, err, engine.ErrCollectionNotWhitelisted)
}

func TestPurchaseClosesAtEndTime(t *testing.T) {
	e := newEnv(t)
	k := e.createNFTRaffle(t, 1, 0, 10)

	buyer := engine.Address("bob")
	e.fund(buyer)

	require.NoError(t, e.registry.BuyEntry(k, buyer, 0, milli(100), engine.ZeroAddress, 0))

	e.clock.Advance(2 * time.Hour)

	err := e.registry.BuyEntry(k, buyer, 0, milli(100), engine.ZeroAddress, 0)
	require.ErrorIs(t, err, engine.ErrRaffleFinished)
}

func TestBuyDiscountEntry(t *testing.T) {
	e := newEnv(t)
	k := e.createNFTRaffle(t, 1, 0, 10)

	buyer := engine.Address("bob")
	holding := engine.Address("partner-collection")
	e.fund(buyer)

	sig := e.sign(t, auth.DiscountDigest(string(buyer), string(holding), 800))

	// full tier price is rejected once a discount applies
	err := e.registry.BuyDiscountEntry(k, buyer, 0, holding, 42, 800, milli(100), sig)
	require.ErrorIs(t, err, engine.ErrIncorrectPayment)

	// 0.1 less 8% is 0.092
	err = e.registry.BuyDiscountEntry(k, buyer, 0, holding, 42, 800, milli(92), sig)
	require.NoError(t, err)

	s, err := e.registry.Raffle(k)
	require.NoError(t, err)
	require.Equal(t, 0, s.CollectedFunds.Cmp(milli(92)))

	// the grant binds the bps: paying as if 50% off with an 8% grant fails
	err = e.registry.BuyDiscountEntry(k, buyer, 0, holding, 42, 5000, milli(50), sig)
	require.ErrorIs(t, err, engine.ErrInvalidSignature)

	// and so does a grant issued to a different buyer
	otherSig := e.sign(t, auth.DiscountDigest("someone-else", string(holding), 800))
	err = e.registry.BuyDiscountEntry(k, buyer, 0, holding, 42, 800, milli(92), otherSig)
	require.ErrorIs(t, err, engine.ErrInvalidSignature)
}

func TestBuyFreeEntrySingleUse(t *testing.T) {
	e := newEnv(t)
	k := e.createNFTRaffle(t, 1, 0, 10)

	buyer := engine.Address("bob")
	holding := engine.Address("partner-collection")

	err := e.registry.BuyFreeEntry(k, buyer, 0, holding, 42, nil)
	require.ErrorIs(t, err, engine.ErrTicketCountZero)

	sig := e.sign(t, auth.FreeEntryDigest(string(buyer), k, 2))

	// count must match the granted count
	err = e.registry.BuyFreeEntry(k, buyer, 3, holding, 42, sig)
	require.ErrorIs(t, err, engine.ErrInvalidSignature)

	err = e.registry.BuyFreeEntry(k, buyer, 2, holding, 42, sig)
	require.NoError(t, err)

	s, err := e.registry.Raffle(k)
	require.NoError(t, err)
	require.Equal(t, uint64(2), s.TotalEntriesSold)
	require.Equal(t, 0, s.CollectedFunds.Sign())

	// a redeemed grant cannot be replayed
	err = e.registry.BuyFreeEntry(k, buyer, 2, holding, 42, sig)
	require.ErrorIs(t, err, engine.ErrGrantConsumed)
}

func TestSetWinnerGating(t *testing.T) {
	e := newEnv(t)
	k := e.createNFTRaffle(t, 1, 5, 10)

	buyer := engine.Address("bob")
	e.fund(buyer)
	require.NoError(t, e.registry.BuyEntry(k, buyer, 0, milli(100), engine.ZeroAddress, 0))

	// still selling
	err := e.registry.SetWinner(operator, k)
	require.ErrorIs(t, err, engine.ErrNotYetFinished)

	e.clock.Advance(2 * time.Hour)

	// past end time but below the minimum: stays blocked
	err = e.registry.SetWinner(operator, k)
	require.ErrorIs(t, err, engine.ErrNotYetFinished)
	require.Equal(t, 0, e.oracle.requests)

	err = e.registry.SetWinner(operator, engine.Key{0xff})
	require.ErrorIs(t, err, engine.ErrUnknownRaffle)
}

func TestSetWinnerCancelsUnsoldRaffle(t *testing.T) {
	e := newEnv(t)
	k := e.createNFTRaffle(t, 1, 0, 10)

	e.clock.Advance(2 * time.Hour)
	require.NoError(t, e.registry.SetWinner(operator, k))

	// collateral goes home and no randomness is requested
	require.Equal(t, operator, e.bank.NFTOwner(nftCollection, big.NewInt(1)))
	require.Equal(t, 0, e.oracle.requests)
	require.Len(t, e.events.byName("RaffleCancelled"), 1)

	s, err := e.registry.Raffle(k)
	require.NoError(t, err)
	require.True(t, s.Finished)
	require.Equal(t, engine.ZeroAddress, s.Winner)

	err = e.registry.SetWinner(operator, k)
	require.ErrorIs(t, err, engine.ErrAlreadyFinished)
}

func TestDrawAndSettlement(t *testing.T) {
	e := newEnv(t)
	k := e.createNFTRaffle(t, 1, 0, 10)

	alice := engine.Address("buyer-a")
	bob := engine.Address("buyer-b")
	e.fund(alice)
	e.fund(bob)

	// alice holds ticket 0, bob holds tickets 1..5
	require.NoError(t, e.registry.BuyEntry(k, alice, 0, milli(100), engine.ZeroAddress, 0))
	require.NoError(t, e.registry.BuyEntry(k, bob, 1, milli(400), engine.ZeroAddress, 0))

	e.clock.Advance(2 * time.Hour)
	require.NoError(t, e.registry.SetWinner(operator, k))
	require.Equal(t, 1, e.oracle.requests)

	// selling is over even though the winner is not yet known
	err := e.registry.BuyEntry(k, alice, 0, milli(100), engine.ZeroAddress, 0)
	require.ErrorIs(t, err, engine.ErrRaffleFinished)
	err = e.registry.SetWinner(operator, k)
	require.ErrorIs(t, err, engine.ErrAlreadyFinished)

	// only the oracle principal may deliver
	_, err = e.registry.FulfillRandomness("mallory", e.oracle.last, big.NewInt(3))
	require.ErrorIs(t, err, engine.ErrUnauthorized)
	_, err = e.registry.FulfillRandomness(oracleID, "req-unknown", big.NewInt(3))
	require.ErrorIs(t, err, engine.ErrUnknownRequest)

	creatorBefore := e.bank.NativeBalance(operator)

	gotKey, err := e.registry.FulfillRandomness(oracleID, e.oracle.last, big.NewInt(3))
	require.NoError(t, err)
	require.Equal(t, k, gotKey)

	// ticket 3 falls in bob's range
	s, err := e.registry.Raffle(k)
	require.NoError(t, err)
	require.Equal(t, bob, s.Winner)
	require.Equal(t, bob, e.bank.NFTOwner(nftCollection, big.NewInt(1)))

	// 0.5 collected, 5% commission: 0.025 to the vault, 0.475 to the creator
	require.Equal(t, 0, e.vault.Balance().Cmp(milli(25)))
	require.Equal(t, 0, e.bank.NativeBalance(vaultAddr).Cmp(milli(25)))
	creatorAfter := e.bank.NativeBalance(operator)
	require.Equal(t, 0, new(big.Int).Sub(creatorAfter, creatorBefore).Cmp(milli(475)))

	fulfilled := e.events.byName("RandomnessFulfilled")
	require.Len(t, fulfilled, 1)
	require.Equal(t, uint64(3), fulfilled[0].(engine.RandomnessFulfilled).WinningTicket)

	// redelivery is a no-op
	vaultBefore := new(big.Int).Set(e.vault.Balance())
	gotKey, err = e.registry.FulfillRandomness(oracleID, e.oracle.last, big.NewInt(5))
	require.NoError(t, err)
	require.Equal(t, k, gotKey)
	require.Equal(t, 0, e.vault.Balance().Cmp(vaultBefore))
	require.Len(t, e.events.byName("RandomnessFulfilled"), 1)
	s, err = e.registry.Raffle(k)
	require.NoError(t, err)
	require.Equal(t, bob, s.Winner)
}

func TestWinningTicketIsReducedModuloSupply(t *testing.T) {
	e := newEnv(t)
	k := e.createNFTRaffle(t, 1, 0, 10)

	alice := engine.Address("buyer-a")
	e.fund(alice)
	require.NoError(t, e.registry.BuyEntry(k, alice, 1, milli(400), engine.ZeroAddress, 0))

	e.clock.Advance(2 * time.Hour)
	require.NoError(t, e.registry.SetWinner(operator, k))

	huge, ok := new(big.Int).SetString("115792089237316195423570985008687907853269984665640564039457584007913129639935", 10)
	require.True(t, ok)
	_, err := e.registry.FulfillRandomness(oracleID, e.oracle.last, huge)
	require.NoError(t, err)

	fulfilled := e.events.byName("RandomnessFulfilled")
	require.Len(t, fulfilled, 1)
	require.Less(t, fulfilled[0].(engine.RandomnessFulfilled).WinningTicket, uint64(5))
}

func TestSetMaxEntriesPerBuyer(t *testing.T) {
	e := newEnv(t)
	creator := engine.Address("carol")
	k := e.createUserRaffle(t, creator, 1, 10, milli(100))

	err := e.registry.SetMaxEntriesPerBuyer("mallory", k, 5)
	require.ErrorIs(t, err, engine.ErrUnauthorized)

	err = e.registry.SetMaxEntriesPerBuyer(creator, k, 11)
	require.Error(t, err)

	require.NoError(t, e.registry.SetMaxEntriesPerBuyer(creator, k, 5))

	buyer := engine.Address("bob")
	e.fund(buyer)
	require.NoError(t, e.registry.BuyEntry(k, buyer, 5, milli(500), engine.ZeroAddress, 0))
	err = e.registry.BuyEntry(k, buyer, 1, milli(100), engine.ZeroAddress, 0)
	require.ErrorIs(t, err, engine.ErrExceedsBuyerCap)
}

func TestRotateSignerInvalidatesGrants(t *testing.T) {
	e := newEnv(t)
	k := e.createNFTRaffle(t, 1, 0, 10)

	buyer := engine.Address("bob")
	sig := e.sign(t, auth.FreeEntryDigest(string(buyer), k, 1))

	replacement := auth.Suite.Point().Pick(auth.Suite.RandomStream())
	raw, err := replacement.MarshalBinary()
	require.NoError(t, err)

	require.ErrorIs(t, e.registry.RotateSigner("mallory", "00"), engine.ErrUnauthorized)
	require.NoError(t, e.registry.RotateSigner(admin, hexEncode(raw)))

	err = e.registry.BuyFreeEntry(k, buyer, 1, "", 0, sig)
	require.ErrorIs(t, err, engine.ErrInvalidSignature)
}

func TestOperatorRoleLifecycle(t *testing.T) {
	e := newEnv(t)

	require.ErrorIs(t, e.registry.GrantOperator("mallory", "mallory"), engine.ErrUnauthorized)
	require.NoError(t, e.registry.RevokeOperator(admin, operator))

	id := big.NewInt(1)
	e.bank.MintNFT(nftCollection, id, operator)
	require.NoError(t, e.bank.ApproveNFT(operator, nftCollection, id))

	_, err := e.registry.CreateOperatorRaffle(operator, engine.OperatorCreateParams{
		RaffleType:        engine.TypeNFT,
		CollateralAddress: nftCollection,
		CollateralParam:   id,
		MaxEntryCount:     10,
		EndTime:           e.clock.Now().Add(time.Hour),
	}, defaultTiers())
	require.ErrorIs(t, err, engine.ErrUnauthorized)
}
