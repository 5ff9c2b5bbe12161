package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fundbridge/fundbridge/internal/domain/entities"
	"github.com/fundbridge/fundbridge/internal/infrastructure/config"
	"github.com/fundbridge/fundbridge/pkg/retry"
)

// fallbackGasLimit is used when gas estimation fails for a transaction we
// still want to attempt; CCTP calls fit comfortably inside it.
const fallbackGasLimit = 300_000

// backend is the subset of the ethclient surface the chain client uses.
type backend interface {
	CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Client talks to one chain's RPC endpoint: stablecoin reads, the approve and
// burn calls on the source side, and the mint call on the destination side.
// Reads go through a bounded retry; writes are submitted once and their
// receipts awaited.
type Client struct {
	chain   entities.Chain
	cfg     config.RPCConfig
	eth     backend
	logger  *zap.Logger
	retrier *retry.Retrier
	cache   *snapshotCache

	signerMu sync.RWMutex
	signer   Signer

	decMu    sync.Mutex
	decimals int32
	decKnown bool
}

// NewClient dials the chain's RPC endpoint and returns a client for it
func NewClient(chain entities.Chain, cfg config.RPCConfig, logger *zap.Logger) (*Client, error) {
	if err := chain.Validate(); err != nil {
		return nil, entities.NewTransferError(entities.KindConfigurationError, err)
	}
	eth, err := ethclient.Dial(chain.RPCEndpoint)
	if err != nil {
		return nil, entities.NewTransferError(entities.KindNetworkError,
			fmt.Errorf("dial %s rpc: %w", chain.Name, err))
	}
	return newClient(chain, eth, cfg, logger), nil
}

func newClient(chain entities.Chain, eth backend, cfg config.RPCConfig, logger *zap.Logger) *Client {
	policy := retry.DefaultPolicy()
	if cfg.ReadRetries > 0 {
		policy.MaxRetries = cfg.ReadRetries
	}
	return &Client{
		chain:   chain,
		cfg:     cfg,
		eth:     eth,
		logger:  logger,
		retrier: retry.NewRetrier(policy, logger),
		cache:   newSnapshotCache(cfg.SnapshotTTL),
	}
}

// Chain returns the chain this client is bound to
func (c *Client) Chain() entities.Chain {
	return c.chain
}

// BindSigner attaches the wallet used for write operations. Read operations
// work without one.
func (c *Client) BindSigner(s Signer) {
	c.signerMu.Lock()
	c.signer = s
	c.signerMu.Unlock()
}

func (c *Client) boundSigner() (Signer, *entities.TransferError) {
	c.signerMu.RLock()
	defer c.signerMu.RUnlock()
	if c.signer == nil {
		return nil, entities.NewTransferError(entities.KindSignerNotBound, nil)
	}
	return c.signer, nil
}

// SwitchActiveNetwork points the bound signer at the given chain id
func (c *Client) SwitchActiveNetwork(chainID uint64) error {
	signer, terr := c.boundSigner()
	if terr != nil {
		return terr
	}
	return signer.SwitchChain(chainID)
}

// TokenBalance returns the stablecoin balance of account in whole tokens,
// serving from the snapshot cache when a recent read exists.
func (c *Client) TokenBalance(ctx context.Context, account common.Address) (decimal.Decimal, error) {
	key := balanceKey(c.chain.ID, account)
	if value, ok := c.cache.get(key); ok {
		return value, nil
	}
	return c.FreshTokenBalance(ctx, account)
}

// FreshTokenBalance reads the balance from the chain, bypassing the cache
func (c *Client) FreshTokenBalance(ctx context.Context, account common.Address) (decimal.Decimal, error) {
	data, err := erc20ABI.Pack("balanceOf", account)
	if err != nil {
		return decimal.Zero, entities.NewTransferError(entities.KindConfigurationError, err)
	}
	raw, err := c.read(ctx, c.chain.StableToken, data)
	if err != nil {
		return decimal.Zero, err
	}
	value, err := c.decodeTokenAmount(ctx, "balanceOf", raw)
	if err != nil {
		return decimal.Zero, err
	}
	c.cache.put(balanceKey(c.chain.ID, account), value)
	return value, nil
}

// TokenAllowance returns the stablecoin allowance granted by owner to
// spender, serving from the snapshot cache when a recent read exists.
func (c *Client) TokenAllowance(ctx context.Context, owner, spender common.Address) (decimal.Decimal, error) {
	key := allowanceKey(c.chain.ID, owner, spender)
	if value, ok := c.cache.get(key); ok {
		return value, nil
	}
	return c.FreshTokenAllowance(ctx, owner, spender)
}

// FreshTokenAllowance reads the allowance from the chain, bypassing the cache
func (c *Client) FreshTokenAllowance(ctx context.Context, owner, spender common.Address) (decimal.Decimal, error) {
	data, err := erc20ABI.Pack("allowance", owner, spender)
	if err != nil {
		return decimal.Zero, entities.NewTransferError(entities.KindConfigurationError, err)
	}
	raw, err := c.read(ctx, c.chain.StableToken, data)
	if err != nil {
		return decimal.Zero, err
	}
	value, err := c.decodeTokenAmount(ctx, "allowance", raw)
	if err != nil {
		return decimal.Zero, err
	}
	c.cache.put(allowanceKey(c.chain.ID, owner, spender), value)
	return value, nil
}

// ApproveSpender grants the TokenMessenger contract an allowance of amount
// whole tokens and waits for the approval to confirm.
func (c *Client) ApproveSpender(ctx context.Context, amount decimal.Decimal) (string, error) {
	units, err := c.decimalToUnits(ctx, amount)
	if err != nil {
		return "", err
	}
	data, err := packApprove(c.chain.TokenMessenger, units)
	if err != nil {
		return "", entities.NewTransferError(entities.KindConfigurationError, err)
	}
	txHash, err := c.sendAndConfirm(ctx, c.chain.StableToken, data, entities.KindApprovalFailed)
	if err != nil {
		return "", err
	}
	c.invalidateSnapshots()
	return txHash, nil
}

// SubmitBurn submits depositForBurn for the request and waits for the burn to
// confirm, returning the burn transaction hash.
func (c *Client) SubmitBurn(ctx context.Context, req *entities.TransferRequest) (string, error) {
	if c.chain.TokenMessenger == (common.Address{}) {
		return "", entities.NewTransferError(entities.KindConfigurationError,
			fmt.Errorf("no TokenMessenger configured for %s", c.chain.Name))
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return "", entities.NewTransferError(entities.KindConfigurationError,
			fmt.Errorf("invalid amount %q: %w", req.Amount, err))
	}
	units, err := c.decimalToUnits(ctx, amount)
	if err != nil {
		return "", err
	}
	maxFee := big.NewInt(0)
	if finalityThreshold(req) == finalityThresholdFast {
		fee, err := decimal.NewFromString(req.EffectiveMaxFee())
		if err != nil {
			return "", entities.NewTransferError(entities.KindConfigurationError,
				fmt.Errorf("invalid max fee %q: %w", req.EffectiveMaxFee(), err))
		}
		maxFee, err = c.decimalToUnits(ctx, fee)
		if err != nil {
			return "", err
		}
	}
	data, err := packDepositForBurn(units, req.DestinationChain.Domain, req.Recipient,
		c.chain.StableToken, req.DestinationCaller, maxFee, finalityThreshold(req))
	if err != nil {
		return "", entities.NewTransferError(entities.KindConfigurationError, err)
	}
	txHash, err := c.sendAndConfirm(ctx, c.chain.TokenMessenger, data, entities.KindBurnFailed)
	if err != nil {
		// A confirmed revert burned nothing and restarts cleanly. Anything
		// else after broadcast leaves a transaction that may still confirm,
		// so its hash must survive for the resume path.
		if entities.KindOf(err) == entities.KindBurnFailed {
			return "", err
		}
		return txHash, err
	}
	c.invalidateSnapshots()
	return txHash, nil
}

// SubmitMint submits receiveMessage with the attested message on the
// destination chain. The bound signer must already be pointed at this chain.
func (c *Client) SubmitMint(ctx context.Context, message, attestation hexutil.Bytes) (string, error) {
	signer, terr := c.boundSigner()
	if terr != nil {
		return "", terr
	}
	if signer.ActiveChainID() != c.chain.ID {
		return "", entities.NewTransferError(entities.KindNetworkSwitchRequired,
			fmt.Errorf("wallet is on chain id %d, mint requires %d", signer.ActiveChainID(), c.chain.ID))
	}
	if len(message) == 0 || len(attestation) == 0 {
		return "", entities.NewTransferError(entities.KindInvalidAttestation,
			fmt.Errorf("empty message or attestation payload"))
	}
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	code, err := c.eth.CodeAt(callCtx, c.chain.MessageTransmitter, nil)
	cancel()
	if err != nil {
		return "", entities.NewTransferError(entities.KindNetworkError, err)
	}
	if len(code) == 0 {
		return "", entities.NewTransferError(entities.KindConfigurationError,
			fmt.Errorf("no MessageTransmitter contract at %s on %s", c.chain.MessageTransmitter.Hex(), c.chain.Name))
	}
	data, err := packReceiveMessage(message, attestation)
	if err != nil {
		return "", entities.NewTransferError(entities.KindConfigurationError, err)
	}
	txHash, err := c.sendTx(ctx, c.chain.MessageTransmitter, data, classifyMintError)
	if err != nil {
		return "", err
	}
	if err := c.waitReceipt(ctx, common.HexToHash(txHash), classifyMintError); err != nil {
		return txHash, err
	}
	return txHash, nil
}

// VerifyBurnTx checks that a burn transaction exists and succeeded. Used when
// resuming a transfer from its burn hash.
func (c *Client) VerifyBurnTx(ctx context.Context, txHash string) error {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()
	receipt, err := c.eth.TransactionReceipt(callCtx, common.HexToHash(txHash))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return entities.NewTransferError(entities.KindBurnFailed,
				fmt.Errorf("burn transaction %s not found on %s", txHash, c.chain.Name))
		}
		return entities.NewTransferError(entities.KindNetworkError, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return entities.NewTransferError(entities.KindBurnFailed,
			fmt.Errorf("burn transaction %s reverted", txHash))
	}
	messageSentID := messageTransmitterABI.Events["MessageSent"].ID
	for _, log := range receipt.Logs {
		if log.Address == c.chain.MessageTransmitter && len(log.Topics) > 0 && log.Topics[0] == messageSentID {
			return nil
		}
	}
	return entities.NewTransferError(entities.KindBurnFailed,
		fmt.Errorf("transaction %s emitted no cross-chain message on %s", txHash, c.chain.Name))
}

// read performs an eth_call with timeout and bounded retry
func (c *Client) read(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	var out []byte
	err := c.retrier.Do(ctx, func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
		defer cancel()
		result, err := c.eth.CallContract(callCtx, ethereum.CallMsg{To: &to, Data: data}, nil)
		if err != nil {
			return err
		}
		out = result
		return nil
	})
	if err != nil {
		return nil, entities.NewTransferError(entities.KindNetworkError, err)
	}
	return out, nil
}

// sendAndConfirm submits a transaction and waits for its receipt, classifying
// failures with the given fallback kind.
func (c *Client) sendAndConfirm(ctx context.Context, to common.Address, data []byte, fallback entities.ErrorKind) (string, error) {
	classify := func(err error) *entities.TransferError {
		return classifySendError(err, fallback)
	}
	txHash, err := c.sendTx(ctx, to, data, classify)
	if err != nil {
		return "", err
	}
	if err := c.waitReceipt(ctx, common.HexToHash(txHash), classify); err != nil {
		return txHash, err
	}
	return txHash, nil
}

func (c *Client) sendTx(ctx context.Context, to common.Address, data []byte, classify func(error) *entities.TransferError) (string, error) {
	signer, terr := c.boundSigner()
	if terr != nil {
		return "", terr
	}
	from := signer.Address()

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	nonce, err := c.eth.PendingNonceAt(callCtx, from)
	if err != nil {
		return "", entities.NewTransferError(entities.KindNetworkError, err)
	}
	gasPrice, err := c.eth.SuggestGasPrice(callCtx)
	if err != nil {
		return "", entities.NewTransferError(entities.KindNetworkError, err)
	}
	msg := ethereum.CallMsg{From: from, To: &to, Data: data}
	gasLimit, err := c.eth.EstimateGas(callCtx, msg)
	if err != nil {
		// Estimation reverts surface contract rejections before any gas is
		// spent; only fall back for transport problems.
		classified := classify(err)
		if classified.Kind != entities.KindNetworkError {
			return "", classified
		}
		gasLimit = fallbackGasLimit
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := signer.SignTx(tx, new(big.Int).SetUint64(c.chain.ID))
	if err != nil {
		return "", classify(err)
	}
	if err := c.eth.SendTransaction(callCtx, signed); err != nil {
		return "", classify(err)
	}

	c.logger.Info("Transaction submitted",
		zap.String("chain", c.chain.Name),
		zap.String("tx_hash", signed.Hash().Hex()),
		zap.String("to", to.Hex()))
	return signed.Hash().Hex(), nil
}

// waitReceipt polls for the transaction receipt until it lands or the receipt
// timeout elapses. A status 0 receipt is classified as a revert.
func (c *Client) waitReceipt(ctx context.Context, txHash common.Hash, classify func(error) *entities.TransferError) error {
	deadline := time.Now().Add(c.cfg.ReceiptTimeout)
	for {
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
		receipt, err := c.eth.TransactionReceipt(callCtx, txHash)
		cancel()
		switch {
		case err == nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				return classify(fmt.Errorf("execution reverted: transaction %s failed on %s", txHash.Hex(), c.chain.Name))
			}
			return nil
		case errors.Is(err, ethereum.NotFound):
			// Not mined yet
		default:
			return entities.NewTransferError(entities.KindNetworkError, err)
		}

		if time.Now().After(deadline) {
			return entities.NewTransferError(entities.KindNetworkError,
				fmt.Errorf("timed out waiting for receipt of %s on %s", txHash.Hex(), c.chain.Name))
		}
		select {
		case <-ctx.Done():
			// The transaction is already broadcast; callers treat this like
			// any other incomplete wait, not a revert.
			return entities.NewTransferError(entities.KindNetworkError, ctx.Err())
		case <-time.After(c.cfg.ReceiptPollInterval):
		}
	}
}

// tokenDecimals reads and memoizes the stablecoin's decimals
func (c *Client) tokenDecimals(ctx context.Context) (int32, error) {
	c.decMu.Lock()
	defer c.decMu.Unlock()
	if c.decKnown {
		return c.decimals, nil
	}
	data, err := erc20ABI.Pack("decimals")
	if err != nil {
		return 0, entities.NewTransferError(entities.KindConfigurationError, err)
	}
	raw, err := c.read(ctx, c.chain.StableToken, data)
	if err != nil {
		return 0, err
	}
	results, err := erc20ABI.Unpack("decimals", raw)
	if err != nil || len(results) != 1 {
		return 0, entities.NewTransferError(entities.KindConfigurationError,
			fmt.Errorf("decode decimals: %v", err))
	}
	dec, ok := results[0].(uint8)
	if !ok {
		return 0, entities.NewTransferError(entities.KindConfigurationError,
			fmt.Errorf("unexpected decimals type %T", results[0]))
	}
	c.decimals = int32(dec)
	c.decKnown = true
	return c.decimals, nil
}

func (c *Client) decodeTokenAmount(ctx context.Context, method string, raw []byte) (decimal.Decimal, error) {
	results, err := erc20ABI.Unpack(method, raw)
	if err != nil || len(results) != 1 {
		return decimal.Zero, entities.NewTransferError(entities.KindConfigurationError,
			fmt.Errorf("decode %s result: %v", method, err))
	}
	units, ok := results[0].(*big.Int)
	if !ok {
		return decimal.Zero, entities.NewTransferError(entities.KindConfigurationError,
			fmt.Errorf("unexpected %s result type %T", method, results[0]))
	}
	dec, err := c.tokenDecimals(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(units, -dec), nil
}

// decimalToUnits converts a whole-token amount into the token's smallest units
func (c *Client) decimalToUnits(ctx context.Context, amount decimal.Decimal) (*big.Int, error) {
	dec, err := c.tokenDecimals(ctx)
	if err != nil {
		return nil, err
	}
	shifted := amount.Shift(dec)
	if !shifted.IsInteger() {
		return nil, entities.NewTransferError(entities.KindConfigurationError,
			fmt.Errorf("amount %s has more than %d decimal places", amount, dec))
	}
	return shifted.BigInt(), nil
}

func (c *Client) invalidateSnapshots() {
	c.signerMu.RLock()
	signer := c.signer
	c.signerMu.RUnlock()
	if signer != nil {
		c.cache.invalidate(c.chain.ID, signer.Address())
	}
}
