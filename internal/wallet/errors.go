package wallet

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/farmgoods-io/farm-wallet-client/internal/eip1193"
)

var (
	ErrNoWalletAvailable   = errors.New("no wallet available")
	ErrUserRejected        = errors.New("user rejected the request")
	ErrUnknownChain        = errors.New("wallet does not know the target chain")
	ErrNotConnected        = errors.New("wallet not connected")
	ErrConnectInProgress   = errors.New("wallet connection already in progress")
	ErrWrongNetwork        = errors.New("wallet is not on the payment network")
	ErrGasEstimationFailed = errors.New("gas estimation failed")
)

type ConnectErrorKind string

const (
	KindNoWalletAvailable ConnectErrorKind = "noWalletAvailable"
	KindUserRejected      ConnectErrorKind = "userRejected"
	KindFailed            ConnectErrorKind = "failed"
)

// ConnectError is returned by Connect in place of a wallet.
type ConnectError struct {
	Kind     ConnectErrorKind
	Strategy StrategyKind
	Err      error
}

func newConnectError(strategy StrategyKind, err error) *ConnectError {
	kind := KindFailed
	switch {
	case errors.Is(err, ErrNoWalletAvailable):
		kind = KindNoWalletAvailable
	case errors.Is(err, ErrUserRejected), eip1193.IsUserRejected(err):
		kind = KindUserRejected
	}
	return &ConnectError{Kind: kind, Strategy: strategy, Err: err}
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect via %s: %s: %v", e.Strategy, e.Kind, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

func (e *ConnectError) Is(target error) bool {
	switch e.Kind {
	case KindNoWalletAvailable:
		return target == ErrNoWalletAvailable
	case KindUserRejected:
		return target == ErrUserRejected
	}
	return false
}

// providerErr maps a wallet rejection to ErrUserRejected, keeping the cause.
func providerErr(err error, msg string) error {
	if eip1193.IsUserRejected(err) {
		return errors.Mark(errors.Wrap(err, msg), ErrUserRejected)
	}
	return errors.Wrap(err, msg)
}
