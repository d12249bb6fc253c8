package ledger

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/bluecarbon/mrv-registry/backend/internal/entities"
)

const testMnemonic = "legal winner thank year wave sausage worth useful legal winner thank yellow"

func TestDeriveOperatorKeyRejectsInvalidMnemonic(t *testing.T) {
	_, _, err := DeriveOperatorKey("definitely not twelve valid words", 0)
	require.Error(t, err)
	require.True(t, errors.Is(err, entities.ErrWalletUnavailable))
}

func TestDeriveOperatorKeyIsDeterministic(t *testing.T) {
	key, address, err := DeriveOperatorKey(testMnemonic, 0)
	require.NoError(t, err)
	require.NotNil(t, key)
	require.NotEqual(t, common.Address{}, address)

	_, again, err := DeriveOperatorKey(testMnemonic, 0)
	require.NoError(t, err)
	require.Equal(t, address, again)
}

func TestDeriveOperatorKeyAccountsAreIndependent(t *testing.T) {
	_, first, err := DeriveOperatorKey(testMnemonic, 0)
	require.NoError(t, err)

	_, second, err := DeriveOperatorKey(testMnemonic, 1)
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}
