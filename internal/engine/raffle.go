package engine

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"
)

// Address identifies an account, collection or token contract. The engine
// treats addresses as opaque strings; their format belongs to the substrate.
type Address string

// ZeroAddress is the conventional "no address" value used for optional
// referral parameters.
const ZeroAddress Address = ""

// RaffleType is the closed set of collateral kinds a raffle can stake.
type RaffleType uint8

const (
	TypeNFT RaffleType = iota
	TypeNativeValue
	TypeFungibleToken
)

func (t RaffleType) String() string {
	switch t {
	case TypeNFT:
		return "nft"
	case TypeNativeValue:
		return "native"
	case TypeFungibleToken:
		return "token"
	}
	return fmt.Sprintf("raffletype(%d)", uint8(t))
}

// Key is the derived raffle identifier:
// sha256(raffleType || collateralAddress || collateralParam || sequence).
// Binding the key to the registry's monotonically increasing sequence value
// keeps two raffles over the same collateral from colliding.
type Key [32]byte

func (k Key) Hex() string {
	return hex.EncodeToString(k[:])
}

func ParseKey(s string) (Key, error) {
	var k Key
	raw, err := hex.DecodeString(s)
	if err != nil {
		return k, fmt.Errorf("parse raffle key: %w", err)
	}
	if len(raw) != len(k) {
		return k, fmt.Errorf("parse raffle key: want %d bytes, got %d", len(k), len(raw))
	}
	copy(k[:], raw)
	return k, nil
}

func deriveKey(raffleType RaffleType, collateralAddress Address, collateralParam *big.Int, sequence uint64) Key {
	h := sha256.New()
	h.Write([]byte{byte(raffleType)})
	h.Write([]byte(collateralAddress))
	h.Write(collateralParam.Bytes())
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], sequence)
	h.Write(seq[:])
	var k Key
	copy(k[:], h.Sum(nil))
	return k
}

// RequestID identifies an outstanding randomness request with the oracle.
type RequestID string

// Raffle is one prize-staking-and-ticket-sale cycle. All fields are guarded
// by the owning registry's mutex.
type Raffle struct {
	key               Key
	raffleType        RaffleType
	collateralAddress Address
	collateralParam   *big.Int
	creator           Address
	endTime           time.Time

	// exactly one of the two parameter sets is populated
	operator      bool
	minEntryCount uint64
	maxEntryCount uint64
	entrySupply   uint64
	unitPrice     *big.Int

	tiers              *PriceBook
	maxEntriesPerBuyer uint64 // 0 = unlimited

	totalEntriesSold uint64
	purchases        uint64
	collectedFunds   *big.Int
	buyerCounts      map[Address]uint64

	finished         bool
	winner           Address
	pendingRequestID RequestID

	custody Custody
}

// capacity is the hard ticket ceiling regardless of creation path.
func (r *Raffle) capacity() uint64 {
	if r.operator {
		return r.maxEntryCount
	}
	return r.entrySupply
}

// Snapshot is the externally visible view of a raffle.
type Snapshot struct {
	Key                Key
	RaffleType         RaffleType
	CollateralAddress  Address
	CollateralParam    *big.Int
	Creator            Address
	EndTime            time.Time
	Operator           bool
	MinEntryCount      uint64
	MaxEntryCount      uint64
	EntrySupply        uint64
	UnitPrice          *big.Int
	MaxEntriesPerBuyer uint64
	TotalEntriesSold   uint64
	Purchases          uint64
	CollectedFunds     *big.Int
	Finished           bool
	Winner             Address
	PendingRequestID   RequestID
}

func (r *Raffle) snapshot() Snapshot {
	s := Snapshot{
		Key:                r.key,
		RaffleType:         r.raffleType,
		CollateralAddress:  r.collateralAddress,
		CollateralParam:    new(big.Int).Set(r.collateralParam),
		Creator:            r.creator,
		EndTime:            r.endTime,
		Operator:           r.operator,
		MinEntryCount:      r.minEntryCount,
		MaxEntryCount:      r.maxEntryCount,
		EntrySupply:        r.entrySupply,
		MaxEntriesPerBuyer: r.maxEntriesPerBuyer,
		TotalEntriesSold:   r.totalEntriesSold,
		Purchases:          r.purchases,
		CollectedFunds:     new(big.Int).Set(r.collectedFunds),
		Finished:           r.finished,
		Winner:             r.winner,
		PendingRequestID:   r.pendingRequestID,
	}
	if r.unitPrice != nil {
		s.UnitPrice = new(big.Int).Set(r.unitPrice)
	}
	return s
}
