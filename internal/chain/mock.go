package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Mock fabricates deterministic transaction ids without any network call.
// Used in environments without chain configuration; every "broadcast"
// succeeds and every receipt confirms immediately.
type Mock struct{}

// SignDistribution derives a stable pseudo tx id from the distribution
// parameters, so replays of the same claim produce the same hash.
func (Mock) SignDistribution(_ context.Context, receiver string, amountWei *big.Int, proof string) (string, string, error) {
	var amount []byte
	if amountWei != nil {
		amount = amountWei.Bytes()
	}
	id := blake2b256([]byte("mock-distribution"),
		common.HexToAddress(receiver).Bytes(), amount, []byte(proof))
	raw := blake2b256([]byte("mock-raw"), id.Bytes())
	return id.Hex(), hexutil.Encode(raw.Bytes()), nil
}

// Broadcast is a no-op.
func (Mock) Broadcast(context.Context, string) error { return nil }

// GetReceipt reports immediate success for any transaction id.
func (Mock) GetReceipt(_ context.Context, txID string) (*Receipt, error) {
	return &Receipt{
		Reverted:    false,
		BlockNumber: 1,
		BlockID:     blake2b256([]byte("mock-block"), []byte(txID)).Hex(),
	}, nil
}
