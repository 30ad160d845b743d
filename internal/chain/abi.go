// Package chain — ABI packing for the rewards-pool distribution call.
package chain

import (
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// rewardsPoolABI covers the single method this backend invokes on the
// X2Earn rewards pool: distribute a token amount to a receiver, bound to an
// application id, with an opaque proof string recorded on chain.
const rewardsPoolABI = `[{
	"name": "distributeReward",
	"type": "function",
	"stateMutability": "nonpayable",
	"inputs": [
		{"name": "appId",    "type": "bytes32"},
		{"name": "amount",   "type": "uint256"},
		{"name": "receiver", "type": "address"},
		{"name": "proof",    "type": "string"}
	],
	"outputs": [{"name": "", "type": "bool"}]
}]`

var (
	poolABIOnce sync.Once
	poolABI     abi.ABI
	poolABIErr  error
)

// packDistributeReward ABI-encodes the distributeReward calldata.
func packDistributeReward(appID [32]byte, amount *big.Int, receiver common.Address, proof string) ([]byte, error) {
	poolABIOnce.Do(func() {
		poolABI, poolABIErr = abi.JSON(strings.NewReader(rewardsPoolABI))
	})
	if poolABIErr != nil {
		return nil, poolABIErr
	}
	return poolABI.Pack("distributeReward", appID, amount, receiver, proof)
}
