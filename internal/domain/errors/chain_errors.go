package errors

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrChainUnavailable indicates a transient RPC/network failure. Callers
// retry within budget; it must never be conflated with ErrNotFound.
var ErrChainUnavailable = errors.New("blockchain rpc unavailable")

// ErrNotFound indicates the transaction or receipt genuinely does not
// exist (yet). Expected while scanning or before mining.
var ErrNotFound = errors.New("not found on chain")

// TransactionRevertedError is returned for a transaction that failed
// on-chain. A reverted transaction will never succeed, so this is fatal
// with no retry.
type TransactionRevertedError struct {
	TxHash string
}

func (e *TransactionRevertedError) Error() string {
	return fmt.Sprintf("transaction %s reverted on-chain", e.TxHash)
}

// NewTransactionRevertedError creates a new TransactionRevertedError
func NewTransactionRevertedError(txHash string) *TransactionRevertedError {
	return &TransactionRevertedError{TxHash: txHash}
}

// TransferMismatchError is returned when a mined transfer does not match
// the expected recipient or amount. Definitive, never retried.
type TransferMismatchError struct {
	Reason   string
	Expected decimal.Decimal
	Actual   decimal.Decimal
}

func (e *TransferMismatchError) Error() string {
	if e.Expected.IsZero() && e.Actual.IsZero() {
		return fmt.Sprintf("transfer mismatch: %s", e.Reason)
	}
	return fmt.Sprintf("transfer mismatch: %s (expected %s, got %s)",
		e.Reason, e.Expected.String(), e.Actual.String())
}

// NewTransferMismatchError creates a new TransferMismatchError
func NewTransferMismatchError(reason string, expected, actual decimal.Decimal) *TransferMismatchError {
	return &TransferMismatchError{Reason: reason, Expected: expected, Actual: actual}
}
