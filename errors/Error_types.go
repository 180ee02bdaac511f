package errors

var (
	ErrUnknown                   = New(ERR_UNKNOWN, "unknown error")
	ErrInvalidArgument           = New(ERR_INVALID_ARGUMENT, "invalid argument")
	ErrNotFound                  = New(ERR_NOT_FOUND, "not found")
	ErrProcessing                = New(ERR_PROCESSING, "error processing")
	ErrConfiguration             = New(ERR_CONFIGURATION, "configuration error")
	ErrInvalidSignature          = New(ERR_INVALID_SIGNATURE, "Signature is not valid")
	ErrInvalidRequest            = New(ERR_INVALID_REQUEST, "invalid request")
	ErrInvalidNonce              = New(ERR_INVALID_NONCE, "Invalid nonce")
	ErrInvalidAmount             = New(ERR_INVALID_AMOUNT, "invalid amount")
	ErrUnknownAccount            = New(ERR_UNKNOWN_ACCOUNT, "account unknown to server")
	ErrInsufficientFunds         = New(ERR_INSUFFICIENT_FUNDS, "insufficient funds")
	ErrInvalidLockTime           = New(ERR_INVALID_LOCK_TIME, "lock time is outside the allowed window")
	ErrTxInvalid                 = New(ERR_TX_INVALID, "tx invalid")
	ErrUnknownUTXO               = New(ERR_UNKNOWN_UTXO, "Transaction spends unknown UTXOs")
	ErrAlreadySpent              = New(ERR_ALREADY_SPENT, "Input is already spent")
	ErrNotMined                  = New(ERR_NOT_MINED, "UTXO must be mined")
	ErrNotP2SH                   = New(ERR_NOT_P2SH, "Transaction must spent P2SH addresses")
	ErrUnknownTLA                = New(ERR_UNKNOWN_TLA, "Used TLA inputs are not known to server")
	ErrMultipleAccounts          = New(ERR_MULTIPLE_ACCOUNTS, "Inputs must be from one account")
	ErrWrongSigner               = New(ERR_WRONG_SIGNER, "Inputs must be from sender account")
	ErrLockTooSoon               = New(ERR_LOCK_TOO_SOON, "inputs locked for less than the minimum duration")
	ErrBadSignatureFormat        = New(ERR_BAD_SIGNATURE_FORMAT, "Signature for input had wrong format")
	ErrScriptInvalid             = New(ERR_SCRIPT_INVALID, "input does not correctly spend the referenced output")
	ErrInsufficientFee           = New(ERR_INSUFFICIENT_FEE, "Insufficient transaction fee")
	ErrMissingServerOutput       = New(ERR_MISSING_SERVER_OUTPUT, "Transaction must have exactly one output for server")
	ErrMultipleServerOutputs     = New(ERR_MULTIPLE_SERVER_OUTPUTS, "Transaction has multiple server outputs")
	ErrChangeLockTooSoon         = New(ERR_CHANGE_LOCK_TOO_SOON, "change locked for less than the minimum duration")
	ErrUnsupportedExternalOutput = New(ERR_UNSUPPORTED_EXTERNAL_OUTPUT, "Sending to external addresses is not yet supported")
	ErrAmountMismatch            = New(ERR_AMOUNT_MISMATCH, "claimed amount does not match server output delta")
	ErrNonPositiveAmount         = New(ERR_NON_POSITIVE_AMOUNT, "Can't send zero or negative amount")
	ErrChannelCeilingExceeded    = New(ERR_CHANNEL_CEILING_EXCEEDED, "Maximum channel value reached")
	ErrChannelLocked             = New(ERR_CHANNEL_LOCKED, "Channel is locked")
	ErrStorageError              = New(ERR_STORAGE_ERROR, "storage error")
	ErrStorageConflict           = New(ERR_STORAGE_CONFLICT, "storage serialization conflict")
	ErrBroadcastFailed           = New(ERR_BROADCAST_FAILED, "broadcast failed")
)

// errors initialization functions

func NewInvalidArgumentError(message string, params ...interface{}) error {
	return New(ERR_INVALID_ARGUMENT, message, params...)
}
func NewNotFoundError(message string, params ...interface{}) error {
	return New(ERR_NOT_FOUND, message, params...)
}
func NewProcessingError(message string, params ...interface{}) error {
	return New(ERR_PROCESSING, message, params...)
}
func NewConfigurationError(message string, params ...interface{}) error {
	return New(ERR_CONFIGURATION, message, params...)
}
func NewInvalidSignatureError(message string, params ...interface{}) error {
	return New(ERR_INVALID_SIGNATURE, message, params...)
}
func NewInvalidRequestError(message string, params ...interface{}) error {
	return New(ERR_INVALID_REQUEST, message, params...)
}
func NewInvalidNonceError(message string, params ...interface{}) error {
	return New(ERR_INVALID_NONCE, message, params...)
}
func NewInvalidAmountError(message string, params ...interface{}) error {
	return New(ERR_INVALID_AMOUNT, message, params...)
}
func NewUnknownAccountError(message string, params ...interface{}) error {
	return New(ERR_UNKNOWN_ACCOUNT, message, params...)
}
func NewInsufficientFundsError(message string, params ...interface{}) error {
	return New(ERR_INSUFFICIENT_FUNDS, message, params...)
}
func NewInvalidLockTimeError(message string, params ...interface{}) error {
	return New(ERR_INVALID_LOCK_TIME, message, params...)
}
func NewTxInvalidError(message string, params ...interface{}) error {
	return New(ERR_TX_INVALID, message, params...)
}
func NewUnknownUTXOError(message string, params ...interface{}) error {
	return New(ERR_UNKNOWN_UTXO, message, params...)
}
func NewAlreadySpentError(message string, params ...interface{}) error {
	return New(ERR_ALREADY_SPENT, message, params...)
}
func NewNotMinedError(message string, params ...interface{}) error {
	return New(ERR_NOT_MINED, message, params...)
}
func NewNotP2SHError(message string, params ...interface{}) error {
	return New(ERR_NOT_P2SH, message, params...)
}
func NewUnknownTLAError(message string, params ...interface{}) error {
	return New(ERR_UNKNOWN_TLA, message, params...)
}
func NewMultipleAccountsError(message string, params ...interface{}) error {
	return New(ERR_MULTIPLE_ACCOUNTS, message, params...)
}
func NewWrongSignerError(message string, params ...interface{}) error {
	return New(ERR_WRONG_SIGNER, message, params...)
}
func NewLockTooSoonError(message string, params ...interface{}) error {
	return New(ERR_LOCK_TOO_SOON, message, params...)
}
func NewBadSignatureFormatError(message string, params ...interface{}) error {
	return New(ERR_BAD_SIGNATURE_FORMAT, message, params...)
}
func NewScriptInvalidError(message string, params ...interface{}) error {
	return New(ERR_SCRIPT_INVALID, message, params...)
}
func NewInsufficientFeeError(message string, params ...interface{}) error {
	return New(ERR_INSUFFICIENT_FEE, message, params...)
}
func NewMissingServerOutputError(message string, params ...interface{}) error {
	return New(ERR_MISSING_SERVER_OUTPUT, message, params...)
}
func NewMultipleServerOutputsError(message string, params ...interface{}) error {
	return New(ERR_MULTIPLE_SERVER_OUTPUTS, message, params...)
}
func NewChangeLockTooSoonError(message string, params ...interface{}) error {
	return New(ERR_CHANGE_LOCK_TOO_SOON, message, params...)
}
func NewUnsupportedExternalOutputError(message string, params ...interface{}) error {
	return New(ERR_UNSUPPORTED_EXTERNAL_OUTPUT, message, params...)
}
func NewAmountMismatchError(message string, params ...interface{}) error {
	return New(ERR_AMOUNT_MISMATCH, message, params...)
}
func NewNonPositiveAmountError(message string, params ...interface{}) error {
	return New(ERR_NON_POSITIVE_AMOUNT, message, params...)
}
func NewChannelCeilingExceededError(message string, params ...interface{}) error {
	return New(ERR_CHANNEL_CEILING_EXCEEDED, message, params...)
}
func NewChannelLockedError(message string, params ...interface{}) error {
	return New(ERR_CHANNEL_LOCKED, message, params...)
}
func NewStorageError(message string, params ...interface{}) error {
	return New(ERR_STORAGE_ERROR, message, params...)
}
func NewStorageConflictError(message string, params ...interface{}) error {
	return New(ERR_STORAGE_CONFLICT, message, params...)
}
func NewBroadcastFailedError(message string, params ...interface{}) error {
	return New(ERR_BROADCAST_FAILED, message, params...)
}
