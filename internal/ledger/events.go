package ledger

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/bluecarbon/mrv-registry/backend/internal/core/ports"
	"github.com/bluecarbon/mrv-registry/backend/internal/entities"
)

// SubscribeEvents polls for registry and token contract logs and delivers
// them as LedgerEvents until ctx is cancelled. A reorg or resubscribe can
// replay a log, so delivery is at-least-once; consumers deduplicate by tx
// hash.
func (c *Client) SubscribeEvents(ctx context.Context) (<-chan entities.LedgerEvent, error) {
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}

	events := make(chan entities.LedgerEvent, 64)

	go func() {
		defer close(events)

		for {
			c.logger.Info("Starting ledger event monitoring", "rpc_url", c.config.RPCURL)

			if err := c.pollLogs(ctx, events); err != nil {
				if ctx.Err() != nil {
					return
				}
				c.logger.Warn("Ledger event monitoring error, retrying...",
					"delay", ports.LedgerSubscriptionRetryDelay, "error", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(ports.LedgerSubscriptionRetryDelay):
					continue
				}
			}

			return
		}
	}()

	return events, nil
}

func (c *Client) pollLogs(ctx context.Context, events chan<- entities.LedgerEvent) error {
	pollInterval := time.Duration(c.config.PollIntervalSeconds) * time.Second
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	lastProcessedBlock, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current block number: %w", err)
	}

	c.logger.Info("Starting ledger event monitoring from block", "block", lastProcessedBlock)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			latestBlock, err := c.eth.BlockNumber(ctx)
			if err != nil {
				c.logger.Error("Failed to get latest block number", "error", err)
				continue
			}

			if latestBlock <= lastProcessedBlock {
				continue
			}

			logs, err := c.eth.FilterLogs(ctx, ethereum.FilterQuery{
				FromBlock: new(big.Int).SetUint64(lastProcessedBlock + 1),
				ToBlock:   new(big.Int).SetUint64(latestBlock),
				Addresses: []common.Address{c.registryAddr, c.tokenAddr},
			})
			if err != nil {
				c.logger.Error("Failed to filter logs", "error", err,
					"from", lastProcessedBlock+1, "to", latestBlock)
				continue
			}

			for _, entry := range logs {
				event, ok := c.parseLog(entry)
				if !ok {
					continue
				}

				select {
				case events <- event:
				case <-ctx.Done():
					return ctx.Err()
				}
			}

			lastProcessedBlock = latestBlock
		}
	}
}

func (c *Client) parseLog(entry types.Log) (entities.LedgerEvent, bool) {
	if len(entry.Topics) == 0 {
		return entities.LedgerEvent{}, false
	}

	event := entities.LedgerEvent{
		TxHash:      entry.TxHash.Hex(),
		BlockNumber: entry.BlockNumber,
		ObservedAt:  time.Now().UTC(),
	}

	switch entry.Topics[0] {
	case c.registryABI.Events["ProjectRegistered"].ID:
		var payload struct {
			ProjectId string
			Owner     common.Address
		}
		if err := c.registryABI.UnpackIntoInterface(&payload, "ProjectRegistered", entry.Data); err != nil {
			c.logger.Error("Failed to decode ProjectRegistered event", "error", err, "tx_hash", event.TxHash)
			return entities.LedgerEvent{}, false
		}
		event.Type = entities.EventProjectRegistered
		event.ProjectID = payload.ProjectId
		event.Wallet = payload.Owner.Hex()

	case c.registryABI.Events["ProjectApproved"].ID:
		var payload struct {
			ProjectId string
		}
		if err := c.registryABI.UnpackIntoInterface(&payload, "ProjectApproved", entry.Data); err != nil {
			c.logger.Error("Failed to decode ProjectApproved event", "error", err, "tx_hash", event.TxHash)
			return entities.LedgerEvent{}, false
		}
		event.Type = entities.EventProjectApproved
		event.ProjectID = payload.ProjectId

	case c.tokenABI.Events["CreditsMinted"].ID:
		var payload struct {
			ProjectId string
			BatchId   string
			To        common.Address
			Amount    *big.Int
		}
		if err := c.tokenABI.UnpackIntoInterface(&payload, "CreditsMinted", entry.Data); err != nil {
			c.logger.Error("Failed to decode CreditsMinted event", "error", err, "tx_hash", event.TxHash)
			return entities.LedgerEvent{}, false
		}
		event.Type = entities.EventCreditsMinted
		event.ProjectID = payload.ProjectId
		event.BatchID = payload.BatchId
		event.Wallet = payload.To.Hex()
		event.Amount = payload.Amount.String()

	case c.tokenABI.Events["Transfer"].ID:
		if len(entry.Topics) < 3 {
			return entities.LedgerEvent{}, false
		}
		amount := new(big.Int).SetBytes(entry.Data)
		event.Type = entities.EventCreditsTransferred
		event.Wallet = common.BytesToAddress(entry.Topics[2].Bytes()[12:]).Hex()
		event.Amount = amount.String()

	default:
		return entities.LedgerEvent{}, false
	}

	return event, true
}
