package chain

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type revertError struct {
	data string
}

func (e revertError) Error() string          { return "execution reverted" }
func (e revertError) ErrorData() interface{} { return e.data }

// fakeBackend is an in-memory chain good enough for one creation flow and
// the verifier's read calls.
type fakeBackend struct {
	mu sync.Mutex

	chainID     int64
	code        map[common.Address][]byte
	calls       map[[4]byte]func(input []byte) ([]byte, error)
	estimateErr error
	callErr     error
	nonce       uint64
	status      uint64
	noReceipt   bool

	sent []*types.Transaction
}

func newFakeBackend(chainID int64) *fakeBackend {
	return &fakeBackend{
		chainID: chainID,
		code:    map[common.Address][]byte{},
		calls:   map[[4]byte]func([]byte) ([]byte, error){},
		status:  types.ReceiptStatusSuccessful,
	}
}

func (b *fakeBackend) ChainID(context.Context) (*big.Int, error) {
	return big.NewInt(b.chainID), nil
}

func (b *fakeBackend) CodeAt(_ context.Context, account common.Address, _ *big.Int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.code[account], nil
}

func (b *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if b.callErr != nil {
		return nil, b.callErr
	}
	if len(msg.Data) < 4 {
		return nil, errors.New("short calldata")
	}
	var selector [4]byte
	copy(selector[:], msg.Data[:4])
	handler, ok := b.calls[selector]
	if !ok {
		return nil, errors.New("unexpected call")
	}
	return handler(msg.Data[4:])
}

func (b *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	if b.estimateErr != nil {
		return 0, b.estimateErr
	}
	return 1_000_000, nil
}

func (b *fakeBackend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (b *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(100), BaseFee: big.NewInt(10_000_000_000)}, nil
}

func (b *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nonce, nil
}

func (b *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, tx)
	b.nonce++
	return nil
}

func (b *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.noReceipt {
		return nil, ethereum.NotFound
	}
	for _, tx := range b.sent {
		if tx.Hash() == hash {
			return &types.Receipt{
				Status:      b.status,
				TxHash:      hash,
				BlockNumber: big.NewInt(101),
				GasUsed:     tx.Gas() / 2,
			}, nil
		}
	}
	return nil, ethereum.NotFound
}

func (b *fakeBackend) lastSent() *types.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.sent) == 0 {
		return nil
	}
	return b.sent[len(b.sent)-1]
}
