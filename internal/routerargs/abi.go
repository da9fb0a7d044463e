package routerargs

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	clierr "github.com/ggonzalez94/routerdeploy/internal/errors"
)

// RouterConstructorABI is the Router constructor: a single RouterParameters
// tuple. Component order is the order the contract declares.
const RouterConstructorABI = `[{
	"type": "constructor",
	"stateMutability": "nonpayable",
	"inputs": [{
		"name": "params",
		"type": "tuple",
		"internalType": "struct RouterParameters",
		"components": [
			{"name": "feeRecipient", "type": "address"},
			{"name": "fastTradeFeeBps", "type": "uint256"},
			{"name": "sniperFeeBps", "type": "uint256"},
			{"name": "limitFeeBps", "type": "uint256"},
			{"name": "feeBaseBps", "type": "uint256"},
			{"name": "permit2", "type": "address"},
			{"name": "weth9", "type": "address"},
			{"name": "v2Factory", "type": "address"},
			{"name": "v3Factory", "type": "address"},
			{"name": "pairInitCodeHash", "type": "bytes32"},
			{"name": "poolInitCodeHash", "type": "bytes32"}
		]
	}]
}]`

var routerABI = mustParseABI(RouterConstructorABI)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("parse router constructor abi: %v", err))
	}
	return parsed
}

// ConstructorInputs returns the argument list of the Router constructor.
func ConstructorInputs() abi.Arguments {
	return routerABI.Constructor.Inputs
}

// CheckConstructor cross-checks the constructor of a compiled Router ABI
// against the expected parameter tuple. Types and component names must
// match in order.
func CheckConstructor(compiled abi.ABI) error {
	want := routerABI.Constructor.Inputs
	got := compiled.Constructor.Inputs
	if len(got) != len(want) {
		return clierr.Config("artifacts.UniversalRouter.abi", fmt.Sprintf("constructor takes %d inputs, expected %d", len(got), len(want)))
	}
	for i := range want {
		if got[i].Type.String() != want[i].Type.String() {
			return clierr.Config("artifacts.UniversalRouter.abi", fmt.Sprintf("constructor input %d has type %s, expected %s", i, got[i].Type.String(), want[i].Type.String()))
		}
		wantNames := want[i].Type.TupleRawNames
		gotNames := got[i].Type.TupleRawNames
		for j := range wantNames {
			if j >= len(gotNames) || gotNames[j] != wantNames[j] {
				name := ""
				if j < len(gotNames) {
					name = gotNames[j]
				}
				return clierr.Config("artifacts.UniversalRouter.abi", fmt.Sprintf("constructor component %d is %q, expected %q", j, name, wantNames[j]))
			}
		}
	}
	return nil
}
