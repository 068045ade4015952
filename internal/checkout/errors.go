package checkout

import "errors"

var (
	ErrValidation     = errors.New("invalid or empty products array")
	ErrVerification   = errors.New("payment verification failed")
	ErrAmountMismatch = errors.New("gateway order does not match checkout")
)
