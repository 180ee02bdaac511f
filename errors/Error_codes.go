package errors

// ERR identifies the class of an error. The numeric values are stable and may
// be returned to clients, so existing values must never be renumbered.
type ERR int32

const (
	ERR_UNKNOWN          ERR = 0
	ERR_INVALID_ARGUMENT ERR = 1
	ERR_NOT_FOUND        ERR = 2
	ERR_PROCESSING       ERR = 3
	ERR_CONFIGURATION    ERR = 4

	// Request and signature validation.
	ERR_INVALID_SIGNATURE  ERR = 10
	ERR_INVALID_REQUEST    ERR = 11
	ERR_INVALID_NONCE      ERR = 12
	ERR_INVALID_AMOUNT     ERR = 13
	ERR_UNKNOWN_ACCOUNT    ERR = 14
	ERR_INSUFFICIENT_FUNDS ERR = 15
	ERR_INVALID_LOCK_TIME  ERR = 16

	// Channel transaction validation.
	ERR_TX_INVALID                  ERR = 30
	ERR_UNKNOWN_UTXO                ERR = 31
	ERR_ALREADY_SPENT               ERR = 32
	ERR_NOT_MINED                   ERR = 33
	ERR_NOT_P2SH                    ERR = 34
	ERR_UNKNOWN_TLA                 ERR = 35
	ERR_MULTIPLE_ACCOUNTS           ERR = 36
	ERR_WRONG_SIGNER                ERR = 37
	ERR_LOCK_TOO_SOON               ERR = 38
	ERR_BAD_SIGNATURE_FORMAT        ERR = 39
	ERR_SCRIPT_INVALID              ERR = 40
	ERR_INSUFFICIENT_FEE            ERR = 41
	ERR_MISSING_SERVER_OUTPUT       ERR = 42
	ERR_MULTIPLE_SERVER_OUTPUTS     ERR = 43
	ERR_CHANGE_LOCK_TOO_SOON        ERR = 44
	ERR_UNSUPPORTED_EXTERNAL_OUTPUT ERR = 45
	ERR_AMOUNT_MISMATCH             ERR = 46
	ERR_NON_POSITIVE_AMOUNT         ERR = 47
	ERR_CHANNEL_CEILING_EXCEEDED    ERR = 48
	ERR_CHANNEL_LOCKED              ERR = 49

	// Storage.
	ERR_STORAGE_ERROR    ERR = 60
	ERR_STORAGE_CONFLICT ERR = 61

	// Operational.
	ERR_BROADCAST_FAILED ERR = 70
)

var ERR_name = map[int32]string{
	0:  "UNKNOWN",
	1:  "INVALID_ARGUMENT",
	2:  "NOT_FOUND",
	3:  "PROCESSING",
	4:  "CONFIGURATION",
	10: "INVALID_SIGNATURE",
	11: "INVALID_REQUEST",
	12: "INVALID_NONCE",
	13: "INVALID_AMOUNT",
	14: "UNKNOWN_ACCOUNT",
	15: "INSUFFICIENT_FUNDS",
	16: "INVALID_LOCK_TIME",
	30: "TX_INVALID",
	31: "UNKNOWN_UTXO",
	32: "ALREADY_SPENT",
	33: "NOT_MINED",
	34: "NOT_P2SH",
	35: "UNKNOWN_TLA",
	36: "MULTIPLE_ACCOUNTS",
	37: "WRONG_SIGNER",
	38: "LOCK_TOO_SOON",
	39: "BAD_SIGNATURE_FORMAT",
	40: "SCRIPT_INVALID",
	41: "INSUFFICIENT_FEE",
	42: "MISSING_SERVER_OUTPUT",
	43: "MULTIPLE_SERVER_OUTPUTS",
	44: "CHANGE_LOCK_TOO_SOON",
	45: "UNSUPPORTED_EXTERNAL_OUTPUT",
	46: "AMOUNT_MISMATCH",
	47: "NON_POSITIVE_AMOUNT",
	48: "CHANNEL_CEILING_EXCEEDED",
	49: "CHANNEL_LOCKED",
	60: "STORAGE_ERROR",
	61: "STORAGE_CONFLICT",
	70: "BROADCAST_FAILED",
}

func (x ERR) Enum() string {
	name, ok := ERR_name[int32(x)]
	if !ok {
		return "UNKNOWN"
	}

	return name
}

func (x ERR) String() string {
	return x.Enum()
}
