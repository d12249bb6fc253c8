package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	cfg "github.com/bluecarbon/mrv-registry/backend/config"
	"github.com/bluecarbon/mrv-registry/backend/internal/entities"
	"github.com/bluecarbon/mrv-registry/backend/internal/shared"
)

// Client talks to the registry and credit-token contracts over JSON-RPC.
// Connection state is an explicit field here, not ambient global state;
// construct one Client and inject it everywhere.
type Client struct {
	logger *slog.Logger
	config *cfg.Ledger

	registryABI  abi.ABI
	tokenABI     abi.ABI
	registryAddr common.Address
	tokenAddr    common.Address

	// writeMu serializes signed writes: back-to-back transitions from
	// different projects share one operator account and must not race on
	// the nonce.
	writeMu sync.Mutex

	connMu       sync.Mutex
	pending      chan struct{} // non-nil while a dial is in flight
	connectErr   error
	eth          *ethclient.Client
	operatorKey  *ecdsa.PrivateKey
	operatorAddr common.Address
}

// NewClient creates an unconnected client from configuration.
func NewClient(logger *slog.Logger, config *cfg.Ledger) *Client {
	return &Client{
		logger:       logger,
		config:       config,
		registryABI:  mustParseABI(registryABIJSON),
		tokenABI:     mustParseABI(tokenABIJSON),
		registryAddr: common.HexToAddress(config.RegistryAddress),
		tokenAddr:    common.HexToAddress(config.TokenAddress),
	}
}

// Connect dials the RPC endpoint, verifies the chain id and derives the
// operator key. Concurrent calls coalesce into a single in-flight dial;
// the wallet session is a process-wide singleton resource.
func (c *Client) Connect(ctx context.Context) error {
	c.connMu.Lock()
	if c.eth != nil {
		c.connMu.Unlock()
		return nil
	}

	if c.pending != nil {
		// Another connect is in flight; wait for its outcome.
		ch := c.pending
		c.connMu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", entities.ErrUserRejected, ctx.Err())
		}

		c.connMu.Lock()
		defer c.connMu.Unlock()
		if c.eth != nil {
			return nil
		}
		return c.connectErr
	}

	ch := make(chan struct{})
	c.pending = ch
	c.connMu.Unlock()

	eth, key, addr, err := c.dial(ctx)

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if err == nil {
		c.eth = eth
		c.operatorKey = key
		c.operatorAddr = addr
		c.logger.Info("Ledger connected", "chain_id", c.config.ChainID, "operator", addr.Hex())
	}
	c.connectErr = err
	c.pending = nil
	close(ch)

	return err
}

func (c *Client) dial(ctx context.Context) (*ethclient.Client, *ecdsa.PrivateKey, common.Address, error) {
	key, addr, err := DeriveOperatorKey(c.config.OperatorMnemonic, c.config.OperatorAccountIndex)
	if err != nil {
		return nil, nil, common.Address{}, err
	}

	eth, err := ethclient.DialContext(ctx, c.config.RPCURL)
	if err != nil {
		return nil, nil, common.Address{}, &entities.NetworkError{Op: "connect", Err: err}
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, nil, common.Address{}, &entities.NetworkError{Op: "chain id", Err: err}
	}

	if chainID.Int64() != c.config.ChainID {
		eth.Close()
		return nil, nil, common.Address{}, fmt.Errorf("%w: endpoint serves chain %d, expected %d",
			entities.ErrWrongNetwork, chainID.Int64(), c.config.ChainID)
	}

	return eth, key, addr, nil
}

// Connected reports whether a live RPC session exists.
func (c *Client) Connected() bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.eth != nil
}

// OperatorAddress returns the custody wallet address, empty before Connect.
func (c *Client) OperatorAddress() string {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.eth == nil {
		return ""
	}
	return c.operatorAddr.Hex()
}

// ChainID returns the configured chain id.
func (c *Client) ChainID() int64 { return c.config.ChainID }

// Close releases the RPC session.
func (c *Client) Close() {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.eth != nil {
		c.eth.Close()
		c.eth = nil
	}
}

// RegisterProject submits the registry write for a new project. The
// result reports submission, not confirmation; callers track confirmation
// through events or reconciliation.
func (c *Client) RegisterProject(ctx context.Context, projectID, owner string, areaHectares float64) entities.WriteResult {
	area := big.NewInt(int64(areaHectares * 100))
	return c.writeTx(ctx, "registerProject", c.registryAddr, c.registryABI,
		projectID, common.HexToAddress(owner), area)
}

// ApproveProject submits the registry approval write.
func (c *Client) ApproveProject(ctx context.Context, projectID string) entities.WriteResult {
	return c.writeTx(ctx, "approveProject", c.registryAddr, c.registryABI, projectID)
}

// Mint submits a credit-token mint for one batch.
func (c *Client) Mint(ctx context.Context, to string, amount *big.Int, projectID, batchID string) entities.WriteResult {
	return c.writeTx(ctx, "mint", c.tokenAddr, c.tokenABI,
		common.HexToAddress(to), amount, projectID, batchID)
}

// Transfer submits a credit-token transfer from the operator wallet.
func (c *Client) Transfer(ctx context.Context, to string, amount *big.Int) entities.WriteResult {
	return c.writeTx(ctx, "transfer", c.tokenAddr, c.tokenABI,
		common.HexToAddress(to), amount)
}

func (c *Client) writeTx(ctx context.Context, method string, contract common.Address, contractABI abi.ABI, args ...any) entities.WriteResult {
	if err := c.Connect(ctx); err != nil {
		return entities.WriteResult{Err: err}
	}

	// One signed write at a time per operator account.
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return entities.WriteResult{Err: fmt.Errorf("failed to pack %s calldata: %w", method, err)}
	}

	if shared.IsLedgerDebugMode() {
		c.logger.Debug("Prepared calldata",
			"method", method, "contract", contract.Hex(), "bytes", len(data))
	}

	nonce, err := c.eth.PendingNonceAt(ctx, c.operatorAddr)
	if err != nil {
		return entities.WriteResult{Err: c.mapRPCError("nonce", err)}
	}

	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return entities.WriteResult{Err: c.mapRPCError("gas price", err)}
	}

	gasLimit, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{
		From:  c.operatorAddr,
		To:    &contract,
		Value: big.NewInt(0),
		Data:  data,
	})
	if err != nil {
		return entities.WriteResult{Err: c.mapRPCError(method, err)}
	}

	// 20% gas buffer
	gasLimit = gasLimit * 12 / 10

	tx := types.NewTransaction(nonce, contract, big.NewInt(0), gasLimit, gasPrice, data)

	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(big.NewInt(c.config.ChainID)), c.operatorKey)
	if err != nil {
		return entities.WriteResult{Err: fmt.Errorf("failed to sign transaction: %w", err)}
	}

	if err = c.eth.SendTransaction(ctx, signedTx); err != nil {
		return entities.WriteResult{Err: c.mapRPCError(method, err)}
	}

	txHash := signedTx.Hash().Hex()
	c.logger.Info("Transaction submitted", "method", method, "tx_hash", txHash, "nonce", nonce)

	return entities.WriteResult{Success: true, TxHash: txHash}
}

// mapRPCError translates raw RPC failures into the error taxonomy.
func (c *Client) mapRPCError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// The caller walked away mid-operation; nothing was submitted.
		return fmt.Errorf("%w: %v", entities.ErrUserRejected, err)
	}

	msg := err.Error()
	if strings.Contains(msg, "execution reverted") || strings.Contains(msg, "revert") {
		reason := msg
		if idx := strings.Index(msg, "revert"); idx >= 0 {
			reason = strings.TrimSpace(strings.TrimPrefix(msg[idx:], "revert"))
		}
		if reason == "" {
			reason = msg
		}
		return &entities.ContractRevertError{Reason: reason}
	}

	return &entities.NetworkError{Op: op, Err: err}
}

// GetProject reads the chain's view of a project, including the
// registration transaction found via the ProjectRegistered event log.
func (c *Client) GetProject(ctx context.Context, projectID string) (*entities.LedgerProject, error) {
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}

	out, err := c.callContract(ctx, c.registryAddr, c.registryABI, "getProject", projectID)
	if err != nil {
		return nil, err
	}

	owner, _ := out[0].(common.Address)
	approved, _ := out[1].(bool)
	exists, _ := out[2].(bool)
	if !exists {
		return nil, entities.ErrNotFound
	}

	view := &entities.LedgerProject{
		ProjectID: projectID,
		Owner:     owner.Hex(),
		Approved:  approved,
	}

	// The registration tx is recoverable from the event log keyed by the
	// project id hash.
	logs, err := c.eth.FilterLogs(ctx, ethereum.FilterQuery{
		Addresses: []common.Address{c.registryAddr},
		Topics: [][]common.Hash{
			{c.registryABI.Events["ProjectRegistered"].ID},
			{crypto.Keccak256Hash([]byte(projectID))},
		},
	})
	if err != nil {
		return nil, &entities.NetworkError{Op: "filter logs", Err: err}
	}
	if len(logs) > 0 {
		view.TxHash = logs[0].TxHash.Hex()
		view.BlockNumber = logs[0].BlockNumber
	}

	return view, nil
}

// BalanceOf reads a wallet's credit-token balance.
func (c *Client) BalanceOf(ctx context.Context, address string) (*big.Int, error) {
	out, err := c.viewBigInt(ctx, c.tokenAddr, c.tokenABI, "balanceOf", common.HexToAddress(address))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// TotalSupply reads the credit-token total supply.
func (c *Client) TotalSupply(ctx context.Context) (*big.Int, error) {
	return c.viewBigInt(ctx, c.tokenAddr, c.tokenABI, "totalSupply")
}

// TotalProjects reads the registry project count.
func (c *Client) TotalProjects(ctx context.Context) (*big.Int, error) {
	return c.viewBigInt(ctx, c.registryAddr, c.registryABI, "getTotalProjects")
}

// LatestBlock returns the current chain head number.
func (c *Client) LatestBlock(ctx context.Context) (uint64, error) {
	if err := c.Connect(ctx); err != nil {
		return 0, err
	}
	block, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, &entities.NetworkError{Op: "block number", Err: err}
	}
	return block, nil
}

func (c *Client) viewBigInt(ctx context.Context, contract common.Address, contractABI abi.ABI, method string, args ...any) (*big.Int, error) {
	out, err := c.callContract(ctx, contract, contractABI, method, args...)
	if err != nil {
		return nil, err
	}
	value, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected return type %T", method, out[0])
	}
	return value, nil
}

func (c *Client) callContract(ctx context.Context, contract common.Address, contractABI abi.ABI, method string, args ...any) ([]any, error) {
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}

	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s calldata: %w", method, err)
	}

	raw, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, c.mapRPCError(method, err)
	}

	out, err := contractABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s result: %w", method, err)
	}

	return out, nil
}
