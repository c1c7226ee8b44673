package auth

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/sign/schnorr"
	"go.dedis.ch/kyber/v3/suites"
)

// Suite is the signature group shared by the trusted signer and every
// verification path.
var Suite = suites.MustFind("Ed25519")

// Domain tags keep a signature over one payload kind from verifying as
// another. The version suffix pins the encoding.
const (
	domainWhitelist = "raffle.grant.whitelist.v1"
	domainDiscount  = "raffle.grant.discount.v1"
	domainFreeEntry = "raffle.grant.freeentry.v1"
	domainReferral  = "raffle.claim.referral.v1"
)

// Verifier validates externally signed authorization grants against the
// trusted signer key. The key is injected at construction and replaceable
// only through Rotate.
type Verifier struct {
	mu     sync.RWMutex
	signer kyber.Point
}

func NewVerifier(signer kyber.Point) *Verifier {
	return &Verifier{signer: signer}
}

// PointFromHex decodes a hex-encoded public point as it appears in
// configuration and rotation requests.
func PointFromHex(s string) (kyber.Point, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode signer key: %w", err)
	}
	p := Suite.Point()
	if err := p.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("unmarshal signer key: %w", err)
	}
	return p, nil
}

// VerifierFromHex builds a verifier from the hex-encoded signer point.
func VerifierFromHex(s string) (*Verifier, error) {
	p, err := PointFromHex(s)
	if err != nil {
		return nil, err
	}
	return NewVerifier(p), nil
}

// Rotate replaces the trusted signer key. Grants signed by the previous key
// stop verifying immediately.
func (v *Verifier) Rotate(signer kyber.Point) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.signer = signer
}

func (v *Verifier) verify(digest, sig []byte) error {
	v.mu.RLock()
	signer := v.signer
	v.mu.RUnlock()
	return schnorr.Verify(Suite, signer, digest, sig)
}

// VerifyWhitelist checks a collection-whitelisting grant over
// (caller, collection).
func (v *Verifier) VerifyWhitelist(caller, collection string, sig []byte) error {
	return v.verify(WhitelistDigest(caller, collection), sig)
}

// VerifyDiscount checks a discount grant over (buyer, collection, bps).
func (v *Verifier) VerifyDiscount(buyer, collection string, discountBps uint32, sig []byte) error {
	return v.verify(DiscountDigest(buyer, collection, discountBps), sig)
}

// VerifyFreeEntry checks a free-entry grant over (buyer, raffleKey, count).
// The grant is scoped to an exact entry count.
func (v *Verifier) VerifyFreeEntry(buyer string, raffleKey [32]byte, entryCount uint64, sig []byte) error {
	return v.verify(FreeEntryDigest(buyer, raffleKey, entryCount), sig)
}

// VerifyReferralClaim checks a referral-reward claim over
// (nonce, target, amount).
func (v *Verifier) VerifyReferralClaim(nonce uint64, target string, amount *big.Int, sig []byte) error {
	return v.verify(ReferralClaimDigest(nonce, target, amount), sig)
}

func digest(domain string, parts ...[]byte) []byte {
	h := sha256.New()
	h.Write([]byte(domain))
	for _, p := range parts {
		var n [4]byte
		binary.BigEndian.PutUint32(n[:], uint32(len(p)))
		h.Write(n[:])
		h.Write(p)
	}
	return h.Sum(nil)
}

func uint32Bytes(v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return b[:]
}

func uint64Bytes(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

// WhitelistDigest is the signing payload for collection whitelisting.
func WhitelistDigest(caller, collection string) []byte {
	return digest(domainWhitelist, []byte(caller), []byte(collection))
}

// DiscountDigest is the signing payload for a standing discount grant.
func DiscountDigest(buyer, collection string, discountBps uint32) []byte {
	return digest(domainDiscount, []byte(buyer), []byte(collection), uint32Bytes(discountBps))
}

// FreeEntryDigest is the signing payload for a free-entry grant.
func FreeEntryDigest(buyer string, raffleKey [32]byte, entryCount uint64) []byte {
	return digest(domainFreeEntry, []byte(buyer), raffleKey[:], uint64Bytes(entryCount))
}

// ReferralClaimDigest is the signing payload for a vault referral claim.
func ReferralClaimDigest(nonce uint64, target string, amount *big.Int) []byte {
	return digest(domainReferral, uint64Bytes(nonce), []byte(target), amount.Bytes())
}
