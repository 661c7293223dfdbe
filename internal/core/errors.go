package core

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/vovakirdan/relayhub/internal/store"
)

// Error codes for domain errors. They are stable and exposed to API clients.
const (
	ErrCodeChainNotSupported   = "chain_not_supported"
	ErrCodeInsufficientFee     = "insufficient_fee"
	ErrCodeMessageNotFound     = "message_not_found"
	ErrCodeInsufficientStake   = "insufficient_stake"
	ErrCodeUnauthorized        = "unauthorized"
	ErrCodeRelayerNotActive    = "relayer_not_active"
	ErrCodeWrongStatus         = "wrong_status"
	ErrCodeChallengeExpired    = "challenge_expired"
	ErrCodeChallengeWindowOpen = "challenge_window_open"
	ErrCodeInvalidProof        = "invalid_proof"
	ErrCodeTransferFailed      = "transfer_failed"
	ErrCodeZeroAddress         = "zero_address"
	ErrCodeAlreadyInitialized  = "already_initialized"
	ErrCodeNotInitialized      = "not_initialized"
	ErrCodeTreasuryShortfall   = "treasury_shortfall"
)

var (
	ErrInvalidProof       = errors.New("invalid proof")
	ErrTransferFailed     = errors.New("transfer failed")
	ErrZeroAddress        = errors.New("zero address")
	ErrAlreadyInitialized = errors.New("already initialized")
	ErrNotInitialized     = errors.New("hub not initialized")

	// ErrInvariant marks internal consistency failures. It never reaches
	// callers as a domain code and always aborts the running command.
	ErrInvariant = errors.New("invariant violated")
)

type ChainNotSupportedError struct {
	ChainID uint32
}

func (e ChainNotSupportedError) Error() string {
	return fmt.Sprintf("chain %d not supported", e.ChainID)
}

// InsufficientFeeError is returned when a message fee is below the chain base
// fee, and also when a treasury withdrawal exceeds the balance. In the latter
// case Required is the requested amount and Provided the available balance.
type InsufficientFeeError struct {
	Required *uint256.Int
	Provided *uint256.Int
}

func (e InsufficientFeeError) Error() string {
	return fmt.Sprintf("insufficient fee: required %s, provided %s", e.Required.Dec(), e.Provided.Dec())
}

type MessageNotFoundError struct {
	MessageID uint64
}

func (e MessageNotFoundError) Error() string {
	return fmt.Sprintf("message %d not found", e.MessageID)
}

type InsufficientStakeError struct {
	Required *uint256.Int
	Provided *uint256.Int
}

func (e InsufficientStakeError) Error() string {
	return fmt.Sprintf("insufficient stake: required %s, provided %s", e.Required.Dec(), e.Provided.Dec())
}

type UnauthorizedError struct {
	Caller common.Address
}

func (e UnauthorizedError) Error() string {
	return fmt.Sprintf("caller %s is not authorized", e.Caller.Hex())
}

type RelayerNotActiveError struct {
	Relayer common.Address
}

func (e RelayerNotActiveError) Error() string {
	return fmt.Sprintf("relayer %s is not active", e.Relayer.Hex())
}

type WrongStatusError struct {
	MessageID uint64
	Expected  store.MessageStatus
	Actual    store.MessageStatus
}

func (e WrongStatusError) Error() string {
	return fmt.Sprintf("message %d: expected status %s, got %s", e.MessageID, e.Expected, e.Actual)
}

type ChallengeExpiredError struct {
	MessageID uint64
	Deadline  uint64
}

func (e ChallengeExpiredError) Error() string {
	return fmt.Sprintf("challenge for message %d expired (deadline %d)", e.MessageID, e.Deadline)
}

type ChallengeWindowOpenError struct {
	MessageID uint64
	Deadline  uint64
}

func (e ChallengeWindowOpenError) Error() string {
	return fmt.Sprintf("challenge window for message %d open until %d", e.MessageID, e.Deadline)
}

// TreasuryShortfallError is returned when the treasury cannot cover a
// relayer reward, which happens once the owner has withdrawn fees that
// pending messages still owe.
type TreasuryShortfallError struct {
	Required  *uint256.Int
	Available *uint256.Int
}

func (e TreasuryShortfallError) Error() string {
	return fmt.Sprintf("treasury balance %s cannot cover %s", e.Available.Dec(), e.Required.Dec())
}

// ErrorCode returns the stable code for a domain error, or an empty string
// for internal failures.
func ErrorCode(err error) string {
	var (
		chainErr  ChainNotSupportedError
		feeErr    InsufficientFeeError
		notFound  MessageNotFoundError
		stakeErr  InsufficientStakeError
		authErr   UnauthorizedError
		inactive  RelayerNotActiveError
		statusErr WrongStatusError
		expired   ChallengeExpiredError
		windowErr ChallengeWindowOpenError
		shortfall TreasuryShortfallError
	)

	switch {
	case err == nil:
		return ""
	case errors.As(err, &chainErr):
		return ErrCodeChainNotSupported
	case errors.As(err, &feeErr):
		return ErrCodeInsufficientFee
	case errors.As(err, &notFound):
		return ErrCodeMessageNotFound
	case errors.As(err, &stakeErr):
		return ErrCodeInsufficientStake
	case errors.As(err, &authErr):
		return ErrCodeUnauthorized
	case errors.As(err, &inactive):
		return ErrCodeRelayerNotActive
	case errors.As(err, &statusErr):
		return ErrCodeWrongStatus
	case errors.As(err, &expired):
		return ErrCodeChallengeExpired
	case errors.As(err, &windowErr):
		return ErrCodeChallengeWindowOpen
	case errors.As(err, &shortfall):
		return ErrCodeTreasuryShortfall
	case errors.Is(err, ErrInvalidProof):
		return ErrCodeInvalidProof
	case errors.Is(err, ErrTransferFailed):
		return ErrCodeTransferFailed
	case errors.Is(err, ErrZeroAddress):
		return ErrCodeZeroAddress
	case errors.Is(err, ErrAlreadyInitialized):
		return ErrCodeAlreadyInitialized
	case errors.Is(err, ErrNotInitialized):
		return ErrCodeNotInitialized
	default:
		return ""
	}
}

func invariantf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvariant, fmt.Sprintf(format, args...))
}
