package tx

import (
	"encoding/binary"
	"fmt"
	"math/rand"

	"github.com/minio/sha256-simd"
	"github.com/mr-tron/base58"
)

// HashSize is the length in bytes of a transaction hash
const HashSize = sha256.Size

// encodedSize is the length of the canonical encoding: 8 byte nonce, 4 byte payload
const encodedSize = 12

// ValidPayloadLimit is the exclusive upper bound on payloads that the default
// verification deems valid.
const ValidPayloadLimit = 7

// Hash is the content address of a transaction. It is used as the mempool key
// and to correlate queries with their responses.
type Hash [HashSize]byte

// String returns the base58 encoding of the hash
func (h Hash) String() string {
	return base58.Encode(h[:])
}

// Short returns the first 8 characters of the encoded hash for logging
func (h Hash) Short() string {
	s := h.String()
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

// Bytes returns a copy of the hash as a slice
func (h Hash) Bytes() []byte {
	b := make([]byte, HashSize)
	copy(b, h[:])
	return b
}

// HashFromBytes converts a byte slice back into a Hash.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, fmt.Errorf("invalid hash length, expected %d, got %d", HashSize, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Transaction is a minimal stand-in for real transaction data. It is a value
// type and is never mutated after creation.
type Transaction struct {
	Nonce   uint64
	Payload int32
}

// New creates a transaction
func New(nonce uint64, payload int32) Transaction {
	return Transaction{Nonce: nonce, Payload: payload}
}

// Random generates a transaction with a random nonce and a payload in [0, 10).
func Random(r *rand.Rand) Transaction {
	return Transaction{
		Nonce:   r.Uint64(),
		Payload: int32(r.Intn(10)),
	}
}

// Bytes returns the canonical encoding of the transaction that the hash is
// computed over.
//
// The format is:
// 8 bytes little endian nonce
// 4 bytes little endian payload
func (t Transaction) Bytes() []byte {
	buf := make([]byte, encodedSize)
	binary.LittleEndian.PutUint64(buf[:8], t.Nonce)
	binary.LittleEndian.PutUint32(buf[8:], uint32(t.Payload))
	return buf
}

// Hash returns the SHA-256 digest of the canonical encoding
func (t Transaction) Hash() Hash {
	return sha256.Sum256(t.Bytes())
}

func (t Transaction) String() string {
	return fmt.Sprintf("Tx{%d, %d}", t.Nonce, t.Payload)
}

// Status is a node's binary opinion (color) about a transaction. The zero
// value is Invalid.
type Status uint8

const (
	Invalid Status = iota
	Valid
)

// Other returns the opposite color
func (s Status) Other() Status {
	if s == Valid {
		return Invalid
	}
	return Valid
}

func (s Status) String() string {
	switch s {
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// VerifyFunc is the local acceptance predicate a node applies to transactions
// it is the first to see. A real system would validate signatures and
// balances against a ledger.
type VerifyFunc func(Transaction) Status

// Verify is the default VerifyFunc. Payloads under ValidPayloadLimit are valid.
func Verify(t Transaction) Status {
	if t.Payload < ValidPayloadLimit {
		return Valid
	}
	return Invalid
}
