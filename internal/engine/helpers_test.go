package engine_test

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"testing"
	"time"

	"go.dedis.ch/kyber/v3/sign/schnorr"
	"go.dedis.ch/kyber/v3/util/key"

	"raffle/internal/auth"
	"raffle/internal/custody"
	"raffle/internal/engine"
	"raffle/internal/vault"
)

const (
	admin     = engine.Address("admin")
	operator  = engine.Address("alice")
	oracleID  = engine.Address("oracle")
	vaultAddr = engine.Address("vault")
	escrow    = engine.Address("escrow")

	nftCollection = engine.Address("nft-collection")
)

// milli converts thousandths of the native unit into its smallest
// denomination (1e15 per thousandth).
func milli(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000))
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

type manualOracle struct {
	requests int
	last     engine.RequestID
}

func (m *manualOracle) RequestRandomness(engine.Key) (engine.RequestID, error) {
	m.requests++
	m.last = engine.RequestID(fmt.Sprintf("req-%d", m.requests))
	return m.last, nil
}

type captureEmitter struct {
	events []engine.Event
}

func (c *captureEmitter) Emit(e engine.Event) {
	c.events = append(c.events, e)
}

func (c *captureEmitter) byName(name string) []engine.Event {
	var out []engine.Event
	for _, e := range c.events {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

type env struct {
	clock    *fakeClock
	bank     *custody.Bank
	vault    *vault.Vault
	oracle   *manualOracle
	events   *captureEmitter
	registry *engine.Registry
	signer   *key.Pair
}

func newEnv(t *testing.T) *env {
	t.Helper()

	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	signer := key.NewKeyPair(auth.Suite)
	verifier := auth.NewVerifier(signer.Public)
	bank := custody.NewBank(escrow)
	vlt := vault.New(vaultAddr, verifier, bank)
	orc := &manualOracle{}
	events := &captureEmitter{}

	registry := engine.NewRegistry(engine.RegistryConfig{
		Admin:           admin,
		OraclePrincipal: oracleID,
		Verifier:        verifier,
		Custody:         bank,
		Bank:            bank,
		Vault:           vlt,
		Oracle:          orc,
		CommissionBps:   500,
		Emitter:         events,
		Clock:           clock.Now,
	})
	if err := registry.GrantOperator(admin, operator); err != nil {
		t.Fatalf("grant operator: %v", err)
	}

	return &env{
		clock:    clock,
		bank:     bank,
		vault:    vlt,
		oracle:   orc,
		events:   events,
		registry: registry,
		signer:   signer,
	}
}

func (e *env) sign(t *testing.T, digest []byte) []byte {
	t.Helper()
	sig, err := schnorr.Sign(auth.Suite, e.signer.Private, digest)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return sig
}

// defaultTiers mirrors the production tier table: 1 ticket for 0.1 and a
// discounted bundle of 5 for 0.4.
func defaultTiers() []engine.PriceTier {
	return []engine.PriceTier{
		{ID: 0, EntryCount: 1, Price: milli(100)},
		{ID: 1, EntryCount: 5, Price: milli(400)},
	}
}

// createNFTRaffle mints and approves a fresh NFT and opens an operator
// raffle over it, ending one hour out.
func (e *env) createNFTRaffle(t *testing.T, tokenID int64, minEntries, maxEntries uint64) engine.Key {
	t.Helper()

	id := big.NewInt(tokenID)
	e.bank.MintNFT(nftCollection, id, operator)
	if err := e.bank.ApproveNFT(operator, nftCollection, id); err != nil {
		t.Fatalf("approve nft: %v", err)
	}

	k, err := e.registry.CreateOperatorRaffle(operator, engine.OperatorCreateParams{
		RaffleType:        engine.TypeNFT,
		CollateralAddress: nftCollection,
		CollateralParam:   id,
		MinEntryCount:     minEntries,
		MaxEntryCount:     maxEntries,
		EndTime:           e.clock.Now().Add(time.Hour),
	}, defaultTiers())
	if err != nil {
		t.Fatalf("create operator raffle: %v", err)
	}
	return k
}

// createUserRaffle opens a user raffle over a fresh NFT with linear
// pricing, ending a day out.
func (e *env) createUserRaffle(t *testing.T, creator engine.Address, tokenID int64, supply uint64, unitPrice *big.Int) engine.Key {
	t.Helper()

	id := big.NewInt(tokenID)
	e.bank.MintNFT(nftCollection, id, creator)
	if err := e.bank.ApproveNFT(creator, nftCollection, id); err != nil {
		t.Fatalf("approve nft: %v", err)
	}

	sig := e.sign(t, auth.WhitelistDigest(string(creator), string(nftCollection)))
	k, err := e.registry.CreateUserRaffle(creator, engine.UserCreateParams{
		RaffleType:        engine.TypeNFT,
		CollateralAddress: nftCollection,
		CollateralParam:   id,
		EntrySupply:       supply,
		UnitPrice:         unitPrice,
		EndTime:           e.clock.Now().Add(24 * time.Hour),
	}, sig)
	if err != nil {
		t.Fatalf("create user raffle: %v", err)
	}
	return k
}

func hexEncode(b []byte) string {
	return hex.EncodeToString(b)
}

func (e *env) fund(addr engine.Address) {
	e.bank.CreditNative(addr, milli(100_000))
}
