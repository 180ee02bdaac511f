package model

import (
	"crypto/sha256"
	"encoding/binary"

	bec "github.com/bsv-blockchain/go-sdk/primitives/ec"

	"github.com/surfswift213us/coinblesk-server/errors"
)

// PaymentRequest is the signed envelope a client submits to move funds over a
// channel. Transaction carries the raw channel transaction for a channel
// update and is empty for a purely virtual transfer. The signature covers
// every field, so a relayed request cannot be altered in transit, and the
// nonce makes each request single-use.
type PaymentRequest struct {
	SenderPublicKey   []byte
	ReceiverPublicKey []byte
	Transaction       []byte
	Amount            int64
	Nonce             int64
	Signature         []byte
}

// SigningPayload returns the byte string the request signature commits to.
// Variable-length fields are length-prefixed so no two distinct requests can
// serialize to the same payload.
func (r *PaymentRequest) SigningPayload() []byte {
	b := make([]byte, 0, 4*3+len(r.SenderPublicKey)+len(r.ReceiverPublicKey)+len(r.Transaction)+8*2)
	b = appendLengthPrefixed(b, r.SenderPublicKey)
	b = appendLengthPrefixed(b, r.ReceiverPublicKey)
	b = appendLengthPrefixed(b, r.Transaction)
	b = binary.LittleEndian.AppendUint64(b, uint64(r.Amount))
	b = binary.LittleEndian.AppendUint64(b, uint64(r.Nonce))

	return b
}

// Sign computes the request signature with the sender's private key, storing
// the DER encoded result in Signature.
func (r *PaymentRequest) Sign(privateKey *bec.PrivateKey) error {
	hash := sha256.Sum256(r.SigningPayload())

	sig, err := privateKey.Sign(hash[:])
	if err != nil {
		return errors.NewProcessingError("failed to sign payment request", err)
	}

	r.Signature = sig.Serialize()

	return nil
}

// VerifySignature checks the signature against the sender public key embedded
// in the request. It runs before any other validation so a forged request
// never reaches the ledger.
func (r *PaymentRequest) VerifySignature() error {
	if len(r.Signature) == 0 {
		return errors.ErrInvalidSignature
	}

	pubKey, err := bec.ParsePubKey(r.SenderPublicKey)
	if err != nil {
		return errors.NewBadSignatureFormatError("sender public key is not parseable", err)
	}

	sig, err := bec.ParseDERSignature(r.Signature)
	if err != nil {
		return errors.NewBadSignatureFormatError("signature is not valid DER", err)
	}

	hash := sha256.Sum256(r.SigningPayload())

	if !sig.Verify(hash[:], pubKey) {
		return errors.ErrInvalidSignature
	}

	return nil
}

func appendLengthPrefixed(b, field []byte) []byte {
	b = binary.LittleEndian.AppendUint32(b, uint32(len(field)))

	return append(b, field...)
}
