package pool

import (
	"errors"

	errorsmod "cosmossdk.io/errors"
)

// Codespace groups the engine error codes.
const Codespace = "subdex"

// Engine errors. They are returned unwrapped so callers can match with errors.Is.
var (
	ErrOverflowOccured                   = errorsmod.Register(Codespace, 1, "overflow occured")
	ErrUnderflowOccured                  = errorsmod.Register(Codespace, 2, "underflow occured")
	ErrUnderflowOrOverflowOccured        = errorsmod.Register(Codespace, 3, "underflow or overflow occured")
	ErrInvariantNotNull                  = errorsmod.Register(Codespace, 4, "invariant not null")
	ErrTotalSharesNotNull                = errorsmod.Register(Codespace, 5, "total shares not null")
	ErrInsufficientPool                  = errorsmod.Register(Codespace, 6, "insufficient pool")
	ErrSecondAssetAmountBelowExpectation = errorsmod.Register(Codespace, 7, "asset amount below expectation")
	ErrInvalidShares                     = errorsmod.Register(Codespace, 8, "invalid shares")
	ErrInsufficientShares                = errorsmod.Register(Codespace, 9, "insufficient shares")
	ErrDoesNotOwnShare                   = errorsmod.Register(Codespace, 10, "does not own share")
	ErrAmountShouldBeGreaterThanZero     = errorsmod.Register(Codespace, 11, "amount should be greater than zero")
	ErrInvalidFeePolicy                  = errorsmod.Register(Codespace, 12, "invalid fee policy")
	ErrInvalidPair                       = errorsmod.Register(Codespace, 13, "invalid asset pair")
	ErrInvalidWindow                     = errorsmod.Register(Codespace, 14, "invalid observation window")
)

// IsEngineError reports whether err wraps one of the registered engine codes.
func IsEngineError(err error) bool {
	codespace, _, ok := ErrorCode(err)
	return ok && codespace == Codespace
}

// ErrorCode finds the registered error in err's chain, following both
// fmt %w wrapping and errorsmod.Wrap.
func ErrorCode(err error) (codespace string, code uint32, ok bool) {
	var coded *errorsmod.Error
	if !errors.As(err, &coded) {
		return "", 0, false
	}
	return coded.Codespace(), coded.ABCICode(), true
}
