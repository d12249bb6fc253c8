package ledger

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"

	"github.com/bluecarbon/mrv-registry/backend/internal/entities"
)

// CreateMasterKey derives the BIP32 master key from the operator mnemonic.
func CreateMasterKey(mnemonic string) (*bip32.Key, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("%w: invalid operator mnemonic", entities.ErrWalletUnavailable)
	}

	seedBytes := bip39.NewSeed(mnemonic, "")
	masterKey, err := bip32.NewMasterKey(seedBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entities.ErrWalletUnavailable, err)
	}

	return masterKey, nil
}

// GetChildKey walks the m/44'/60'/account'/0/0 derivation path used for
// the operator custody wallet.
func GetChildKey(masterKey *bip32.Key, account uint32) (*bip32.Key, error) {
	path := []uint32{
		bip32.FirstHardenedChild + 44,
		bip32.FirstHardenedChild + 60,
		bip32.FirstHardenedChild + account,
		0,
		0,
	}

	key := masterKey
	for _, segment := range path {
		child, err := key.NewChildKey(segment)
		if err != nil {
			return nil, fmt.Errorf("failed to derive child key: %w", err)
		}
		key = child
	}

	return key, nil
}

// GetWalletPrivateKey converts a derived child key into an ECDSA private
// key and its address.
func GetWalletPrivateKey(childKey *bip32.Key) (*ecdsa.PrivateKey, common.Address, error) {
	privateKey, err := crypto.ToECDSA(childKey.Key)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("failed to convert key: %w", err)
	}

	address := crypto.PubkeyToAddress(privateKey.PublicKey)
	return privateKey, address, nil
}

// DeriveOperatorKey derives the operator signing key for the configured
// account index.
func DeriveOperatorKey(mnemonic string, account uint32) (*ecdsa.PrivateKey, common.Address, error) {
	masterKey, err := CreateMasterKey(mnemonic)
	if err != nil {
		return nil, common.Address{}, err
	}

	childKey, err := GetChildKey(masterKey, account)
	if err != nil {
		return nil, common.Address{}, err
	}

	return GetWalletPrivateKey(childKey)
}
