package model

import (
	"bytes"

	"github.com/bsv-blockchain/go-bt/v2/bscript"

	"github.com/surfswift213us/coinblesk-server/errors"
	"github.com/surfswift213us/coinblesk-server/util"
)

// TimeLockedAddress is a P2SH address spendable either by client and server
// together at any time, or by the client alone once LockTime has passed.
//
// The redeem script is
//
//	OP_IF <serverPubKey> OP_CHECKSIGVERIFY
//	OP_ELSE <lockTime> OP_CHECKLOCKTIMEVERIFY OP_DROP OP_ENDIF
//	<clientPubKey> OP_CHECKSIG
//
// so the address hash is a pure function of (clientPubKey, serverPubKey,
// lockTime) and re-deriving from the same inputs always reproduces the same
// address.
type TimeLockedAddress struct {
	ClientPublicKey []byte
	ServerPublicKey []byte
	LockTime        int64
}

func NewTimeLockedAddress(clientPublicKey, serverPublicKey []byte, lockTime int64) *TimeLockedAddress {
	return &TimeLockedAddress{
		ClientPublicKey: clientPublicKey,
		ServerPublicKey: serverPublicKey,
		LockTime:        lockTime,
	}
}

// RedeemScript derives the CLTV redeem script for this address.
func (t *TimeLockedAddress) RedeemScript() (*bscript.Script, error) {
	s := &bscript.Script{}

	if err := s.AppendOpcodes(bscript.OpIF); err != nil {
		return nil, err
	}

	if err := s.AppendPushData(t.ServerPublicKey); err != nil {
		return nil, err
	}

	if err := s.AppendOpcodes(bscript.OpCHECKSIGVERIFY, bscript.OpELSE); err != nil {
		return nil, err
	}

	if err := s.AppendPushData(scriptNum(t.LockTime)); err != nil {
		return nil, err
	}

	if err := s.AppendOpcodes(bscript.OpCHECKLOCKTIMEVERIFY, bscript.OpDROP, bscript.OpENDIF); err != nil {
		return nil, err
	}

	if err := s.AppendPushData(t.ClientPublicKey); err != nil {
		return nil, err
	}

	if err := s.AppendOpcodes(bscript.OpCHECKSIG); err != nil {
		return nil, err
	}

	return s, nil
}

// Hash returns HASH160 of the redeem script, the P2SH address hash.
func (t *TimeLockedAddress) Hash() ([]byte, error) {
	redeemScript, err := t.RedeemScript()
	if err != nil {
		return nil, err
	}

	return util.Hash160(*redeemScript), nil
}

// LockingScript returns the P2SH output script paying this address.
func (t *TimeLockedAddress) LockingScript() (*bscript.Script, error) {
	hash, err := t.Hash()
	if err != nil {
		return nil, err
	}

	s := &bscript.Script{}

	if err := s.AppendOpcodes(bscript.OpHASH160); err != nil {
		return nil, err
	}

	if err := s.AppendPushData(hash); err != nil {
		return nil, err
	}

	if err := s.AppendOpcodes(bscript.OpEQUAL); err != nil {
		return nil, err
	}

	return s, nil
}

// TimeLockedAddressFromRedeemScript reverses RedeemScript. It is used to
// rebuild the address entity from its persisted script bytes.
func TimeLockedAddressFromRedeemScript(redeemScript []byte) (*TimeLockedAddress, error) {
	p := &scriptReader{b: redeemScript}

	if !p.expectOp(bscript.OpIF) {
		return nil, errors.NewInvalidArgumentError("redeem script does not start with OP_IF")
	}

	serverKey, ok := p.pushData()
	if !ok || len(serverKey) != 33 {
		return nil, errors.NewInvalidArgumentError("redeem script has no valid server key")
	}

	if !p.expectOp(bscript.OpCHECKSIGVERIFY) || !p.expectOp(bscript.OpELSE) {
		return nil, errors.NewInvalidArgumentError("redeem script has unexpected opcode after server key")
	}

	lockTimeBytes, ok := p.pushData()
	if !ok || len(lockTimeBytes) == 0 || len(lockTimeBytes) > 5 {
		return nil, errors.NewInvalidArgumentError("redeem script has no valid lock time")
	}

	if !p.expectOp(bscript.OpCHECKLOCKTIMEVERIFY) || !p.expectOp(bscript.OpDROP) || !p.expectOp(bscript.OpENDIF) {
		return nil, errors.NewInvalidArgumentError("redeem script has unexpected opcode after lock time")
	}

	clientKey, ok := p.pushData()
	if !ok || len(clientKey) != 33 {
		return nil, errors.NewInvalidArgumentError("redeem script has no valid client key")
	}

	if !p.expectOp(bscript.OpCHECKSIG) || !p.done() {
		return nil, errors.NewInvalidArgumentError("redeem script has trailing bytes")
	}

	return &TimeLockedAddress{
		ClientPublicKey: clientKey,
		ServerPublicKey: serverKey,
		LockTime:        scriptNumDecode(lockTimeBytes),
	}, nil
}

// Equals compares by derived address hash.
func (t *TimeLockedAddress) Equals(other *TimeLockedAddress) bool {
	if t == nil || other == nil {
		return t == other
	}

	h1, err1 := t.Hash()
	h2, err2 := other.Hash()

	return err1 == nil && err2 == nil && bytes.Equal(h1, h2)
}

// scriptNum encodes n as a minimally-encoded script number, the operand
// format OP_CHECKLOCKTIMEVERIFY expects.
func scriptNum(n int64) []byte {
	if n == 0 {
		return []byte{}
	}

	neg := n < 0
	if neg {
		n = -n
	}

	var out []byte
	for n > 0 {
		out = append(out, byte(n&0xff))
		n >>= 8
	}

	if out[len(out)-1]&0x80 != 0 {
		if neg {
			out = append(out, 0x80)
		} else {
			out = append(out, 0x00)
		}
	} else if neg {
		out[len(out)-1] |= 0x80
	}

	return out
}

func scriptNumDecode(b []byte) int64 {
	if len(b) == 0 {
		return 0
	}

	var n int64
	for i, v := range b {
		n |= int64(v) << (8 * i)
	}

	if b[len(b)-1]&0x80 != 0 {
		n &= ^(int64(0x80) << (8 * (len(b) - 1)))
		return -n
	}

	return n
}

// scriptReader is a minimal cursor over raw script bytes. Only direct pushes
// (opcode 1-75) are expected in redeem scripts we produce.
type scriptReader struct {
	b   []byte
	pos int
}

func (r *scriptReader) expectOp(op uint8) bool {
	if r.pos >= len(r.b) || r.b[r.pos] != op {
		return false
	}

	r.pos++

	return true
}

func (r *scriptReader) pushData() ([]byte, bool) {
	if r.pos >= len(r.b) {
		return nil, false
	}

	length := int(r.b[r.pos])
	if length < 1 || length > 75 {
		return nil, false
	}

	r.pos++

	if r.pos+length > len(r.b) {
		return nil, false
	}

	data := r.b[r.pos : r.pos+length]
	r.pos += length

	return data, true
}

func (r *scriptReader) done() bool {
	return r.pos == len(r.b)
}
