package shared

import (
	"os"
	"strings"
)

const EnvLedgerDebugMode = "LEDGER_DEBUG_MODE"

// IsLedgerDebugMode checks if ledger debug mode is enabled via environment
// variable. In debug mode the client talks to the configured testnet.
func IsLedgerDebugMode() bool {
	debugMode := os.Getenv(EnvLedgerDebugMode)
	return strings.ToLower(debugMode) == "true" || strings.ToLower(debugMode) == "1"
}
