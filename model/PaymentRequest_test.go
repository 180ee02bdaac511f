package model

import (
	"testing"

	bec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surfswift213us/coinblesk-server/errors"
)

func TestPaymentRequestSignVerify(t *testing.T) {
	senderKey, err := bec.NewPrivateKey()
	require.NoError(t, err)

	receiverKey, err := bec.NewPrivateKey()
	require.NoError(t, err)

	req := &PaymentRequest{
		SenderPublicKey:   senderKey.PubKey().Compressed(),
		ReceiverPublicKey: receiverKey.PubKey().Compressed(),
		Amount:            1337,
		Nonce:             1,
	}

	require.NoError(t, req.Sign(senderKey))
	require.NoError(t, req.VerifySignature())
}

func TestPaymentRequestTamperedAmountFails(t *testing.T) {
	senderKey, err := bec.NewPrivateKey()
	require.NoError(t, err)

	req := &PaymentRequest{
		SenderPublicKey: senderKey.PubKey().Compressed(),
		Amount:          1337,
		Nonce:           1,
	}
	require.NoError(t, req.Sign(senderKey))

	req.Amount = 9999

	err = req.VerifySignature()
	require.Error(t, err)
	assert.Equal(t, errors.ERR_INVALID_SIGNATURE, errors.CodeOf(err))
}

func TestPaymentRequestWrongKeyFails(t *testing.T) {
	senderKey, err := bec.NewPrivateKey()
	require.NoError(t, err)

	otherKey, err := bec.NewPrivateKey()
	require.NoError(t, err)

	req := &PaymentRequest{
		SenderPublicKey: senderKey.PubKey().Compressed(),
		Amount:          100,
		Nonce:           7,
	}
	require.NoError(t, req.Sign(otherKey))

	require.Error(t, req.VerifySignature())
}

func TestPaymentRequestMissingSignature(t *testing.T) {
	req := &PaymentRequest{Amount: 100, Nonce: 1}

	err := req.VerifySignature()
	require.Error(t, err)
	assert.Equal(t, errors.ERR_INVALID_SIGNATURE, errors.CodeOf(err))
}

func TestPaymentRequestPayloadLengthPrefixed(t *testing.T) {
	// The boundary between variable-length fields must be unambiguous.
	a := &PaymentRequest{SenderPublicKey: []byte{0x01, 0x02}, ReceiverPublicKey: []byte{0x03}}
	b := &PaymentRequest{SenderPublicKey: []byte{0x01}, ReceiverPublicKey: []byte{0x02, 0x03}}

	assert.NotEqual(t, a.SigningPayload(), b.SigningPayload())
}
