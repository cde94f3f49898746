package usecase

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/lexinote/payment-service/internal/infrastructure/chain"
)

// Verification failure reasons surfaced on failed payments
const (
	ReasonReverted          = "transaction reverted on-chain"
	ReasonWrongContract     = "wrong token contract"
	ReasonNoTransferEvent   = "no transfer event found"
	ReasonRecipientMismatch = "recipient mismatch"
	ReasonAmountMismatch    = "amount mismatch"
)

// VerificationResult is the verdict on a single receipt
type VerificationResult struct {
	Valid       bool
	Reason      string
	Sender      string
	Amount      decimal.Decimal
	BlockNumber int64
}

// TransferVerifier decides whether a fetched receipt contains a token
// transfer satisfying an expectation. Pure computation over
// already-fetched data — no I/O — so it can be exercised without a chain
// connection.
type TransferVerifier struct {
	tokenContract string
}

// NewTransferVerifier creates a verifier bound to one token contract
func NewTransferVerifier(tokenContract string) *TransferVerifier {
	return &TransferVerifier{tokenContract: strings.ToLower(tokenContract)}
}

// Verify checks the receipt against the expected recipient and amount.
// Tolerance is absolute in USDT (default 0.01), stricter than the
// relative tolerance used while scanning for candidate transactions.
func (v *TransferVerifier) Verify(receipt *chain.Receipt, expectedRecipient string, expectedAmount, tolerance decimal.Decimal) VerificationResult {
	if !receipt.Succeeded() {
		return VerificationResult{Reason: ReasonReverted}
	}

	if !strings.EqualFold(receipt.To, v.tokenContract) {
		return VerificationResult{Reason: ReasonWrongContract}
	}

	transfers := parseTransferLogs(receipt, v.tokenContract)
	if len(transfers) == 0 {
		return VerificationResult{Reason: ReasonNoTransferEvent}
	}

	recipient := strings.ToLower(expectedRecipient)
	var recipientSeen bool
	for _, t := range transfers {
		if t.to != recipient {
			continue
		}
		recipientSeen = true

		if t.amount.Sub(expectedAmount).Abs().LessThanOrEqual(tolerance) {
			return VerificationResult{
				Valid:       true,
				Sender:      t.from,
				Amount:      t.amount,
				BlockNumber: receipt.BlockNumber,
			}
		}
	}

	if recipientSeen {
		return VerificationResult{Reason: ReasonAmountMismatch}
	}
	return VerificationResult{Reason: ReasonRecipientMismatch}
}

type parsedTransfer struct {
	from   string
	to     string
	amount decimal.Decimal
}

// parseTransferLogs extracts every Transfer event emitted by the token
// contract: topics[1] = from, topics[2] = to (both indexed), data = value
func parseTransferLogs(receipt *chain.Receipt, tokenContract string) []parsedTransfer {
	var transfers []parsedTransfer
	for _, l := range receipt.Logs {
		if len(l.Topics) < 3 {
			continue
		}
		if !strings.EqualFold(l.Topics[0], chain.TransferEventHash) {
			continue
		}
		if !strings.EqualFold(l.Address, tokenContract) {
			continue
		}
		transfers = append(transfers, parsedTransfer{
			from:   topicToAddress(l.Topics[1]),
			to:     topicToAddress(l.Topics[2]),
			amount: baseUnitsToUSDT(l.Data),
		})
	}
	return transfers
}

// topicToAddress takes the low 20 bytes of a 32-byte topic as a lowercase
// hex address
func topicToAddress(topic string) string {
	t := strings.TrimPrefix(strings.ToLower(topic), "0x")
	if len(t) >= 40 {
		return "0x" + t[len(t)-40:]
	}
	return "0x" + strings.Repeat("0", 40-len(t)) + t
}

// baseUnitsToUSDT converts big-endian base units into a USDT amount
func baseUnitsToUSDT(data []byte) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetBytes(data), 0).Shift(-chain.USDTDecimals)
}
