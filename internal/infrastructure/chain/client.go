package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	domainErrors "github.com/lexinote/payment-service/internal/domain/errors"
)

const erc20ABI = `[{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"payable":false,"stateMutability":"view","type":"function"}]`

// rpcRetryAttempts bounds the internal retry on rate-limited RPC calls.
// This is the reader's own budget, separate from the scheduler's
// payment-level retry counting.
const rpcRetryAttempts = 3

// Config holds the chain client settings
type Config struct {
	Endpoints     []string
	TokenContract string
	RPCTimeout    time.Duration
}

// Client implements Reader over a JSON-RPC BSC endpoint
type Client struct {
	eth           *ethclient.Client
	tokenContract common.Address
	rpcTimeout    time.Duration
	erc20         abi.ABI
	logger        *zap.Logger
}

var _ Reader = (*Client)(nil)

// NewClient dials the first reachable endpoint from the configured list
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("no rpc endpoints configured")
	}
	if cfg.RPCTimeout <= 0 {
		cfg.RPCTimeout = 5 * time.Second
	}

	parsedABI, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse erc20 abi: %w", err)
	}

	var eth *ethclient.Client
	var dialErr error
	for _, endpoint := range cfg.Endpoints {
		eth, dialErr = ethclient.Dial(endpoint)
		if dialErr == nil {
			logger.Info("Connected to BSC endpoint", zap.String("endpoint", endpoint))
			break
		}
		logger.Warn("Failed to dial BSC endpoint, trying next",
			zap.String("endpoint", endpoint),
			zap.Error(dialErr))
	}
	if eth == nil {
		return nil, fmt.Errorf("failed to dial any rpc endpoint: %w", dialErr)
	}

	return &Client{
		eth:           eth,
		tokenContract: common.HexToAddress(cfg.TokenContract),
		rpcTimeout:    cfg.RPCTimeout,
		erc20:         parsedABI,
		logger:        logger,
	}, nil
}

// Close releases the underlying RPC connection
func (c *Client) Close() {
	c.eth.Close()
}

// GetTransaction retrieves a transaction by hash
func (c *Client) GetTransaction(ctx context.Context, txHash string) (*Transaction, error) {
	var tx *types.Transaction
	var pending bool

	err := c.withRetry(ctx, "eth_getTransactionByHash", func(callCtx context.Context) error {
		var callErr error
		tx, pending, callErr = c.eth.TransactionByHash(callCtx, common.HexToHash(txHash))
		return callErr
	})
	if err != nil {
		return nil, err
	}

	from := ""
	if sender, senderErr := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx); senderErr == nil {
		from = strings.ToLower(sender.Hex())
	}
	to := ""
	if tx.To() != nil {
		to = strings.ToLower(tx.To().Hex())
	}

	return &Transaction{
		Hash:     tx.Hash().Hex(),
		From:     from,
		To:       to,
		ValueWei: decimal.NewFromBigInt(tx.Value(), 0),
		Pending:  pending,
	}, nil
}

// GetReceipt retrieves a transaction receipt. The returned Receipt.To is
// the transaction's destination address so the verifier can check the
// token contract.
func (c *Client) GetReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	hash := common.HexToHash(txHash)

	var receipt *types.Receipt
	err := c.withRetry(ctx, "eth_getTransactionReceipt", func(callCtx context.Context) error {
		var callErr error
		receipt, callErr = c.eth.TransactionReceipt(callCtx, hash)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	var tx *types.Transaction
	err = c.withRetry(ctx, "eth_getTransactionByHash", func(callCtx context.Context) error {
		var callErr error
		tx, _, callErr = c.eth.TransactionByHash(callCtx, hash)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	to := ""
	if tx.To() != nil {
		to = strings.ToLower(tx.To().Hex())
	}

	logs := make([]Log, 0, len(receipt.Logs))
	for _, l := range receipt.Logs {
		topics := make([]string, 0, len(l.Topics))
		for _, topic := range l.Topics {
			topics = append(topics, topic.Hex())
		}
		logs = append(logs, Log{
			Address: strings.ToLower(l.Address.Hex()),
			Topics:  topics,
			Data:    l.Data,
			Index:   l.Index,
		})
	}

	return &Receipt{
		TxHash:      receipt.TxHash.Hex(),
		Status:      receipt.Status,
		BlockNumber: receipt.BlockNumber.Int64(),
		GasUsed:     receipt.GasUsed,
		To:          to,
		Logs:        logs,
	}, nil
}

// GetConfirmations returns currentBlock - receiptBlock + 1, or 0 when the
// transaction is not yet mined.
func (c *Client) GetConfirmations(ctx context.Context, txHash string) (int64, error) {
	var receipt *types.Receipt
	err := c.withRetry(ctx, "eth_getTransactionReceipt", func(callCtx context.Context) error {
		var callErr error
		receipt, callErr = c.eth.TransactionReceipt(callCtx, common.HexToHash(txHash))
		return callErr
	})
	if err != nil {
		if isNotFound(err) {
			return 0, nil
		}
		return 0, err
	}

	current, err := c.GetCurrentBlock(ctx)
	if err != nil {
		return 0, err
	}

	confirmations := current - receipt.BlockNumber.Int64() + 1
	if confirmations < 0 {
		confirmations = 0
	}
	return confirmations, nil
}

// FindTransfer scans the most recent blocks' Transfer event logs for one
// matching the expected recipient and amount within the relative
// tolerance. Newest match wins.
func (c *Client) FindTransfer(ctx context.Context, params FindTransferParams) (*TransferMatch, error) {
	current, err := c.GetCurrentBlock(ctx)
	if err != nil {
		return nil, err
	}

	fromBlock := current - params.MaxBlocksToScan
	if fromBlock < 0 {
		fromBlock = 0
	}

	// topics[2] is the indexed recipient; filtering server-side keeps the
	// result set small on public endpoints
	query := ethereum.FilterQuery{
		FromBlock: big.NewInt(fromBlock),
		ToBlock:   big.NewInt(current),
		Addresses: []common.Address{c.tokenContract},
		Topics: [][]common.Hash{
			{common.HexToHash(TransferEventHash)},
			nil,
			{addressTopic(params.ToAddress)},
		},
	}

	var logs []types.Log
	err = c.withRetry(ctx, "eth_getLogs", func(callCtx context.Context) error {
		var callErr error
		logs, callErr = c.eth.FilterLogs(callCtx, query)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	tolerance := params.ExpectedAmount.Mul(params.ToleranceFraction)

	for i := len(logs) - 1; i >= 0; i-- {
		l := logs[i]
		if len(l.Topics) < 3 {
			continue
		}

		sender := strings.ToLower(common.HexToAddress(l.Topics[1].Hex()).Hex())
		if params.FromAddress != "" && sender != strings.ToLower(params.FromAddress) {
			continue
		}

		amount := weiToDecimal(new(big.Int).SetBytes(l.Data), USDTDecimals)
		if amount.Sub(params.ExpectedAmount).Abs().GreaterThan(tolerance) {
			continue
		}

		c.logger.Info("Found matching transfer during block scan",
			zap.String("tx_hash", l.TxHash.Hex()),
			zap.String("from", sender),
			zap.String("amount", amount.String()),
			zap.Uint64("block", l.BlockNumber))

		return &TransferMatch{
			TxHash:      l.TxHash.Hex(),
			FromAddress: sender,
			ToAddress:   strings.ToLower(params.ToAddress),
			Amount:      amount,
			BlockNumber: int64(l.BlockNumber),
			Timestamp:   time.Now().UTC(),
		}, nil
	}

	return nil, domainErrors.ErrNotFound
}

// GetBalance returns the token balance of an address in USDT
func (c *Client) GetBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	input, err := c.erc20.Pack("balanceOf", common.HexToAddress(address))
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to pack balanceOf call: %w", err)
	}

	msg := ethereum.CallMsg{To: &c.tokenContract, Data: input}

	var output []byte
	err = c.withRetry(ctx, "eth_call", func(callCtx context.Context) error {
		var callErr error
		output, callErr = c.eth.CallContract(callCtx, msg, nil)
		return callErr
	})
	if err != nil {
		return decimal.Zero, err
	}

	results, err := c.erc20.Unpack("balanceOf", output)
	if err != nil || len(results) == 0 {
		return decimal.Zero, fmt.Errorf("failed to unpack balanceOf result: %w", err)
	}
	raw, ok := results[0].(*big.Int)
	if !ok {
		return decimal.Zero, fmt.Errorf("unexpected balanceOf result type %T", results[0])
	}

	return weiToDecimal(raw, USDTDecimals), nil
}

// GetCurrentBlock returns the latest block number
func (c *Client) GetCurrentBlock(ctx context.Context) (int64, error) {
	var height uint64
	err := c.withRetry(ctx, "eth_blockNumber", func(callCtx context.Context) error {
		var callErr error
		height, callErr = c.eth.BlockNumber(callCtx)
		return callErr
	})
	if err != nil {
		return 0, err
	}
	return int64(height), nil
}

// withRetry runs an RPC call with a per-call timeout, retrying
// rate-limited calls with exponential backoff and normalizing failures to
// the domain error taxonomy.
func (c *Client) withRetry(ctx context.Context, method string, call func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < rpcRetryAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, c.rpcTimeout)
		err := call(callCtx)
		cancel()

		if err == nil {
			return nil
		}
		if isNotFound(err) {
			return domainErrors.ErrNotFound
		}
		lastErr = err

		if !isRateLimited(err) {
			break
		}

		backoff := time.Duration(1<<attempt) * 500 * time.Millisecond
		c.logger.Warn("RPC call rate limited, backing off",
			zap.String("method", method),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff))

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", domainErrors.ErrChainUnavailable, ctx.Err())
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("%w: %s: %v", domainErrors.ErrChainUnavailable, method, lastErr)
}

func isNotFound(err error) bool {
	return errors.Is(err, ethereum.NotFound) || strings.Contains(err.Error(), "not found")
}

func isRateLimited(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests")
}

// addressTopic left-pads an address into a 32-byte log topic
func addressTopic(address string) common.Hash {
	return common.BytesToHash(common.HexToAddress(address).Bytes())
}

// weiToDecimal converts base units into a token amount
func weiToDecimal(wei *big.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(wei, 0).Shift(-decimals)
}
