package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/ggonzalez94/routerdeploy/internal/chain/signer"
	"github.com/ggonzalez94/routerdeploy/internal/deploy"
	clierr "github.com/ggonzalez94/routerdeploy/internal/errors"
	"github.com/ggonzalez94/routerdeploy/internal/routerargs"
	"github.com/shopspring/decimal"
)

// Backend is the subset of the JSON-RPC surface the factory and verifier
// use. *ethclient.Client satisfies it.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Dial connects to an RPC endpoint.
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeNetwork, "connect rpc", err)
	}
	return client, nil
}

type Options struct {
	PollInterval       time.Duration
	ReceiptTimeout     time.Duration
	GasMultiplier      float64
	MaxFeeGwei         string
	MaxPriorityFeeGwei string
}

func DefaultOptions() Options {
	return Options{
		PollInterval:   2 * time.Second,
		ReceiptTimeout: 5 * time.Minute,
		GasMultiplier:  1.2,
	}
}

// Factory deploys contracts from compiled artifacts with EIP-1559
// creation transactions. It implements deploy.ContractFactory.
type Factory struct {
	backend   Backend
	signer    signer.Signer
	artifacts ArtifactSource
	opts      Options
	logger    *slog.Logger
}

var _ deploy.ContractFactory = (*Factory)(nil)

func NewFactory(backend Backend, txSigner signer.Signer, artifacts ArtifactSource, opts Options, logger *slog.Logger) *Factory {
	defaults := DefaultOptions()
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaults.PollInterval
	}
	if opts.ReceiptTimeout <= 0 {
		opts.ReceiptTimeout = defaults.ReceiptTimeout
	}
	if opts.GasMultiplier < 1 {
		opts.GasMultiplier = defaults.GasMultiplier
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Factory{backend: backend, signer: txSigner, artifacts: artifacts, opts: opts, logger: logger}
}

func (f *Factory) Deploy(ctx context.Context, contract string, constructorArgs []byte) (common.Address, error) {
	if f.signer == nil {
		return common.Address{}, clierr.New(clierr.CodeSigner, "missing signer")
	}
	art, err := f.artifacts.Artifact(contract)
	if err != nil {
		return common.Address{}, err
	}
	parsed, err := art.ParsedABI()
	if err != nil {
		return common.Address{}, clierr.Wrap(clierr.CodeConfig, "parse "+contract+" abi", err)
	}
	if contract == deploy.ContractRouter {
		if err := routerargs.CheckConstructor(parsed); err != nil {
			return common.Address{}, err
		}
	}
	code, err := art.CreationCode()
	if err != nil {
		return common.Address{}, clierr.Wrap(clierr.CodeConfig, "load "+contract+" bytecode", err)
	}
	data := append(append([]byte{}, code...), constructorArgs...)

	chainID, err := f.backend.ChainID(ctx)
	if err != nil {
		return common.Address{}, clierr.Wrap(clierr.CodeNetwork, "read chain id", err)
	}
	from := f.signer.Address()
	unlock := lockNonce(chainID, from)
	defer unlock()

	msg := ethereum.CallMsg{From: from, Data: data}
	gasLimit, err := f.backend.EstimateGas(ctx, msg)
	if err != nil {
		if reason, ok := revertReason(err); ok {
			return common.Address{}, clierr.New(clierr.CodeDeploymentReverted, fmt.Sprintf("%s creation would revert: %s", contract, reason))
		}
		if isExecutionReverted(err) {
			return common.Address{}, clierr.Wrap(clierr.CodeDeploymentReverted, contract+" creation would revert without reason", err)
		}
		return common.Address{}, clierr.Wrap(clierr.CodeNetwork, "estimate gas for "+contract, err)
	}
	gasLimit = uint64(float64(gasLimit) * f.opts.GasMultiplier)

	tipCap, err := resolveTipCap(ctx, f.backend, f.opts.MaxPriorityFeeGwei)
	if err != nil {
		return common.Address{}, err
	}
	header, err := f.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Address{}, clierr.Wrap(clierr.CodeNetwork, "fetch latest header", err)
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(1_000_000_000)
	}
	feeCap, err := resolveFeeCap(baseFee, tipCap, f.opts.MaxFeeGwei)
	if err != nil {
		return common.Address{}, err
	}
	nonce, err := f.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Address{}, clierr.Wrap(clierr.CodeNetwork, "fetch nonce", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		Value:     new(big.Int),
		Data:      data,
	})
	signed, err := f.signer.SignTx(chainID, tx)
	if err != nil {
		return common.Address{}, clierr.Wrap(clierr.CodeSigner, "sign transaction", err)
	}
	if err := f.backend.SendTransaction(ctx, signed); err != nil {
		return common.Address{}, clierr.Wrap(clierr.CodeNetwork, "broadcast transaction", err)
	}
	expected := crypto.CreateAddress(from, nonce)
	f.logger.Info("submitted creation transaction",
		slog.String("contract", contract),
		slog.String("tx_hash", signed.Hash().Hex()),
		slog.Uint64("nonce", nonce),
		slog.String("expected_address", expected.Hex()),
	)

	receipt, err := f.waitReceipt(ctx, signed.Hash())
	if err != nil {
		return common.Address{}, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		reason := f.replayRevert(ctx, msg, receipt.BlockNumber)
		return common.Address{}, clierr.New(clierr.CodeDeploymentReverted, fmt.Sprintf("%s creation transaction %s reverted%s", contract, signed.Hash().Hex(), reason))
	}
	addr := receipt.ContractAddress
	if addr == (common.Address{}) {
		addr = expected
	}
	f.logger.Info("contract deployed",
		slog.String("contract", contract),
		slog.String("address", addr.Hex()),
		slog.Uint64("gas_used", receipt.GasUsed),
	)
	return addr, nil
}

func (f *Factory) waitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, f.opts.ReceiptTimeout)
	defer cancel()
	ticker := time.NewTicker(f.opts.PollInterval)
	defer ticker.Stop()
	for {
		receipt, err := f.backend.TransactionReceipt(waitCtx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		// Transient polling failures are ignored until the timeout.
		if ctx.Err() != nil {
			return nil, clierr.Wrap(clierr.CodeTimeout, "interrupted waiting for receipt of "+hash.Hex(), ctx.Err())
		}
		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, clierr.Wrap(clierr.CodeTimeout, "interrupted waiting for receipt of "+hash.Hex(), ctx.Err())
			}
			return nil, clierr.Wrap(clierr.CodeTimeout, "timed out waiting for receipt of "+hash.Hex(), waitCtx.Err())
		case <-ticker.C:
		}
	}
}

// replayRevert re-executes the creation at the inclusion block to recover a
// revert reason. It returns an empty string when none is available.
func (f *Factory) replayRevert(ctx context.Context, msg ethereum.CallMsg, block *big.Int) string {
	_, err := f.backend.CallContract(ctx, msg, block)
	if err == nil {
		return ""
	}
	if reason, ok := revertReason(err); ok {
		return ": " + reason
	}
	return ""
}

func revertReason(err error) (string, bool) {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return "", false
	}
	raw, ok := dataErr.ErrorData().(string)
	if !ok {
		return "", false
	}
	data, decodeErr := hexutil.Decode(raw)
	if decodeErr != nil || len(data) == 0 {
		return "", false
	}
	if reason, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
		return reason, true
	}
	return "custom error " + hexutil.Encode(data), true
}

// isExecutionReverted matches a revert that carries no data: JSON-RPC
// error code 3 or the node's "execution reverted" message.
func isExecutionReverted(err error) bool {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == 3 {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}

var nonceLocks sync.Map

// lockNonce serialises transaction building per (chain, sender) so
// concurrent deploys in one process never reuse a pending nonce.
func lockNonce(chainID *big.Int, from common.Address) func() {
	key := chainID.String() + "/" + from.Hex()
	value, _ := nonceLocks.LoadOrStore(key, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func resolveTipCap(ctx context.Context, backend Backend, overrideGwei string) (*big.Int, error) {
	if strings.TrimSpace(overrideGwei) != "" {
		v, err := ParseGwei(overrideGwei)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "parse --max-priority-fee-gwei", err)
		}
		return v, nil
	}
	tipCap, err := backend.SuggestGasTipCap(ctx)
	if err != nil {
		return big.NewInt(2_000_000_000), nil // 2 gwei fallback
	}
	return tipCap, nil
}

func resolveFeeCap(baseFee, tipCap *big.Int, overrideGwei string) (*big.Int, error) {
	if strings.TrimSpace(overrideGwei) != "" {
		v, err := ParseGwei(overrideGwei)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "parse --max-fee-gwei", err)
		}
		if v.Cmp(tipCap) < 0 {
			return nil, clierr.New(clierr.CodeUsage, "--max-fee-gwei must be >= --max-priority-fee-gwei")
		}
		return v, nil
	}
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	feeCap.Add(feeCap, tipCap)
	return feeCap, nil
}

var gweiScale = decimal.New(1, 9)

// ParseGwei converts a decimal gwei amount to wei.
func ParseGwei(v string) (*big.Int, error) {
	clean := strings.TrimSpace(v)
	if clean == "" {
		return nil, fmt.Errorf("empty gwei value")
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid numeric value %q", v)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("value must be non-negative")
	}
	wei := d.Mul(gweiScale)
	if !wei.Equal(wei.Truncate(0)) {
		return nil, fmt.Errorf("value must resolve to an integer wei amount")
	}
	return wei.BigInt(), nil
}
