// Package types holds the primitive value types shared by every consensus
// and tokenomics component: addresses, hashes, amounts, and the small
// closed set of transaction kinds the core is allowed to see.
package types

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/sha3"
)

const (
	AddressLength = 20
	HashLength    = 32
)

// Address is a 20-byte account identifier. Equality is by value.
type Address [AddressLength]byte

// Hash is a 32-byte digest.
type Hash [HashLength]byte

// ZeroAddress is the empty address.
var ZeroAddress = Address{}

// ZeroHash is the empty hash.
var ZeroHash = Hash{}

// BytesToAddress right-aligns b into an Address, truncating from the left
// if b is longer than AddressLength.
func BytesToAddress(b []byte) Address {
	var addr Address
	if len(b) > AddressLength {
		copy(addr[:], b[len(b)-AddressLength:])
	} else {
		copy(addr[AddressLength-len(b):], b)
	}
	return addr
}

// BytesToHash right-aligns b into a Hash.
func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) > HashLength {
		copy(h[:], b[len(b)-HashLength:])
	} else {
		copy(h[HashLength-len(b):], b)
	}
	return h
}

func (addr Address) Hex() string    { return "0x" + hex.EncodeToString(addr[:]) }
func (addr Address) String() string { return addr.Hex() }
func (addr Address) Bytes() []byte  { return addr[:] }

func (addr Address) Equal(other Address) bool { return bytes.Equal(addr[:], other[:]) }
func (addr Address) IsZero() bool             { return addr.Equal(ZeroAddress) }

// Less orders addresses lexicographically by their raw bytes. Every
// consensus-path iteration over addresses must sort with this comparator
// instead of relying on map iteration order, which Go deliberately
// randomizes.
func (addr Address) Less(other Address) bool {
	return bytes.Compare(addr[:], other[:]) < 0
}

func (h Hash) Hex() string    { return "0x" + hex.EncodeToString(h[:]) }
func (h Hash) String() string { return h.Hex() }
func (h Hash) Bytes() []byte  { return h[:] }

func (h Hash) Equal(other Hash) bool { return bytes.Equal(h[:], other[:]) }
func (h Hash) IsZero() bool          { return h.Equal(ZeroHash) }

// HexToAddress parses a hex string (with or without 0x prefix) into an
// Address, rejecting anything that is not exactly AddressLength bytes.
func HexToAddress(s string) (Address, error) {
	if len(s) > 2 && s[:2] == "0x" {
		s = s[2:]
	}
	if len(s) != AddressLength*2 {
		return ZeroAddress, fmt.Errorf("invalid address length: expected %d hex chars, got %d", AddressLength*2, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return ZeroAddress, fmt.Errorf("invalid hex string: %w", err)
	}
	return BytesToAddress(b), nil
}

// HexToHash parses a hex string into a Hash.
func HexToHash(s string) (Hash, error) {
	if len(s) > 2 && s[:2] == "0x" {
		s = s[2:]
	}
	if len(s) != HashLength*2 {
		return ZeroHash, fmt.Errorf("invalid hash length: expected %d hex chars, got %d", HashLength*2, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return ZeroHash, fmt.Errorf("invalid hex string: %w", err)
	}
	return BytesToHash(b), nil
}

// ParseAddress is HexToAddress with an explicit empty-string rejection,
// useful at config/genesis boundaries where a blank field is a mistake
// rather than the zero address.
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return ZeroAddress, errors.New("empty address string")
	}
	return HexToAddress(s)
}

// ParseHash is HexToHash with an explicit empty-string rejection.
func ParseHash(s string) (Hash, error) {
	if s == "" {
		return ZeroHash, errors.New("empty hash string")
	}
	return HexToHash(s)
}

// Keccak256 computes the Keccak256 digest of data. Used by chain/weights
// for commit-hash verification and by chain/validatorset for leader
// selection.
func Keccak256(data ...[]byte) []byte {
	hasher := sha3.NewLegacyKeccak256()
	for _, d := range data {
		hasher.Write(d)
	}
	return hasher.Sum(nil)
}

// Keccak256Hash is Keccak256 wrapped as a Hash.
func Keccak256Hash(data ...[]byte) Hash {
	return BytesToHash(Keccak256(data...))
}

// Uint64ToBytes encodes n as 8 big-endian bytes, the canonical encoding
// used anywhere a block height or epoch number is mixed into a hash.
func Uint64ToBytes(n uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(n & 0xff)
		n >>= 8
	}
	return b
}
