package util

import (
	"crypto/sha256"

	"golang.org/x/crypto/ripemd160" //nolint:gosec // known safe use of ripemd160 for Bitcoin address hashing
)

// Hash160 returns RIPEMD160(SHA256(b)), the hash used for both P2PKH and P2SH
// address derivation.
func Hash160(b []byte) []byte {
	sha := sha256.Sum256(b)

	h := ripemd160.New() //nolint:gosec // known safe use of ripemd160 for Bitcoin address hashing
	h.Write(sha[:])

	return h.Sum(nil)
}

// Sha256d returns SHA256(SHA256(b)).
func Sha256d(b []byte) []byte {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])

	return second[:]
}
