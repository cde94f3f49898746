package chain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// USDT BEP-20 contract on BSC mainnet
const USDTContractAddress = "0x55d398326f99059fF775485246999027B3197955"

// Transfer event hash: Keccak256("Transfer(address,address,uint256)")
const TransferEventHash = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"

// USDT on BSC uses the full 18 decimals, unlike its 6-decimal ERC-20 sibling
const USDTDecimals = 18

// Transaction is the subset of an on-chain transaction the pipeline needs
type Transaction struct {
	Hash     string
	From     string
	To       string
	ValueWei decimal.Decimal
	Pending  bool
}

// Log is a receipt log entry
type Log struct {
	Address string
	Topics  []string
	Data    []byte
	Index   uint
}

// Receipt is the subset of a transaction receipt the verifier consumes.
// To carries the transaction's destination (the token contract for a
// BEP-20 transfer), not the receipt's contract-creation field.
type Receipt struct {
	TxHash      string
	Status      uint64
	BlockNumber int64
	GasUsed     uint64
	To          string
	Logs        []Log
}

// Succeeded reports whether the transaction executed without reverting
func (r *Receipt) Succeeded() bool {
	return r.Status == 1
}

// TransferMatch describes a token transfer located during block scanning
type TransferMatch struct {
	TxHash      string
	FromAddress string
	ToAddress   string
	Amount      decimal.Decimal
	BlockNumber int64
	Timestamp   time.Time
}

// FindTransferParams narrows the scan for a matching transfer.
// FromAddress is optional; when set, only transfers from that sender
// match. ToleranceFraction is relative (0.01 = 1%), looser than the
// absolute tolerance applied once a concrete transaction is verified.
type FindTransferParams struct {
	FromAddress       string
	ToAddress         string
	ExpectedAmount    decimal.Decimal
	ToleranceFraction decimal.Decimal
	MaxBlocksToScan   int64
}

// Reader isolates every blockchain RPC call behind a narrow interface so
// the scheduler and verifier are testable without a live network.
//
// Failure semantics: transient RPC/network failures surface as
// ErrChainUnavailable; genuine absence surfaces as ErrNotFound. Callers
// must never conflate the two — the distinction drives retry-vs-fail
// decisions.
type Reader interface {
	GetTransaction(ctx context.Context, txHash string) (*Transaction, error)
	GetReceipt(ctx context.Context, txHash string) (*Receipt, error)

	// GetConfirmations returns currentBlock - receiptBlock + 1, or 0 when
	// the transaction is not yet mined.
	GetConfirmations(ctx context.Context, txHash string) (int64, error)

	// FindTransfer scans the most recent blocks' token-transfer events
	// for one matching the expectation. Used only while a payment has no
	// known transaction hash.
	FindTransfer(ctx context.Context, params FindTransferParams) (*TransferMatch, error)

	GetBalance(ctx context.Context, address string) (decimal.Decimal, error)
	GetCurrentBlock(ctx context.Context) (int64, error)
}
