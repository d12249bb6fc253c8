package ledger

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Fixed ABIs for the registry and credit-token contracts. Addresses and
// network parameters come from configuration, never code.
const registryABIJSON = `[
	{"type":"function","name":"registerProject","stateMutability":"nonpayable","inputs":[{"name":"projectId","type":"string"},{"name":"owner","type":"address"},{"name":"areaCentihectares","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"approveProject","stateMutability":"nonpayable","inputs":[{"name":"projectId","type":"string"}],"outputs":[]},
	{"type":"function","name":"getProject","stateMutability":"view","inputs":[{"name":"projectId","type":"string"}],"outputs":[{"name":"owner","type":"address"},{"name":"approved","type":"bool"},{"name":"exists","type":"bool"}]},
	{"type":"function","name":"getTotalProjects","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getProjectsByOwner","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"string[]"}]},
	{"type":"event","name":"ProjectRegistered","inputs":[{"name":"projectKey","type":"bytes32","indexed":true},{"name":"projectId","type":"string","indexed":false},{"name":"owner","type":"address","indexed":false}]},
	{"type":"event","name":"ProjectApproved","inputs":[{"name":"projectKey","type":"bytes32","indexed":true},{"name":"projectId","type":"string","indexed":false}]}
]`

const tokenABIJSON = `[
	{"type":"function","name":"mint","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"},{"name":"projectId","type":"string"},{"name":"batchId","type":"string"}],"outputs":[]},
	{"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"event","name":"CreditsMinted","inputs":[{"name":"projectKey","type":"bytes32","indexed":true},{"name":"projectId","type":"string","indexed":false},{"name":"batchId","type":"string","indexed":false},{"name":"to","type":"address","indexed":false},{"name":"amount","type":"uint256","indexed":false}]},
	{"type":"event","name":"Transfer","inputs":[{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"value","type":"uint256","indexed":false}]}
]`

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("ledger: bad embedded ABI: " + err.Error())
	}
	return parsed
}

// weiPerCredit is the on-chain scaling: one carbon credit (1 tCO2) is one
// whole token with 18 decimals.
var weiPerCredit = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// CreditsToUnits converts a credit amount to token base units.
func CreditsToUnits(credits float64) *big.Int {
	units := new(big.Float).Mul(big.NewFloat(credits), new(big.Float).SetInt(weiPerCredit))
	out := new(big.Int)
	units.Int(out)
	return out
}

// UnitsToCredits converts token base units back to a credit amount.
func UnitsToCredits(units *big.Int) *big.Float {
	return new(big.Float).Quo(new(big.Float).SetInt(units), new(big.Float).SetInt(weiPerCredit))
}
