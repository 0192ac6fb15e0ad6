package chain

import (
	"context"
	"strings"
	"time"

	"github.com/jpillora/backoff"
	"github.com/rs/zerolog/log"
)

const (
	DefaultPollInterval         = 500 * time.Millisecond
	MinPollInterval             = 250 * time.Millisecond
	DefaultBlocksToCheck        = 20
	DefaultMaxBlockReadAttempts = 10
)

// BlockReader is the chain I/O the confirmer needs. A block that has not been
// produced yet must be reported with ErrBlockDoesNotExist.
type BlockReader interface {
	BlockTransactionIDs(ctx context.Context, blockNumber uint64) ([]string, error)
}

// Scheduler decouples the poll loop from real timers.
type Scheduler interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type TimerScheduler struct{}

func (TimerScheduler) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type ConfirmOptions struct {
	PollInterval         time.Duration `json:"pollInterval,omitempty"`
	BlocksToCheck        int           `json:"blocksToCheck,omitempty"`
	MaxBlockReadAttempts int           `json:"maxBlockReadAttempts,omitempty"`
}

func (o ConfirmOptions) WithDefaults() ConfirmOptions {
	if o.PollInterval == 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.PollInterval < MinPollInterval {
		o.PollInterval = MinPollInterval
	}
	if o.BlocksToCheck <= 0 {
		o.BlocksToCheck = DefaultBlocksToCheck
	}
	if o.MaxBlockReadAttempts <= 0 {
		o.MaxBlockReadAttempts = DefaultMaxBlockReadAttempts
	}
	return o
}

// confirmState tracks where the poll loop is. It holds no timers, so the policy
// can be stepped through directly.
type confirmState struct {
	opts          ConfirmOptions
	txID          string
	block         uint64
	blocksChecked int
	readAttempts  int
}

func newConfirmState(txID string, startBlock uint64, opts ConfirmOptions) *confirmState {
	return &confirmState{opts: opts, txID: txID, block: startBlock}
}

// blockRead records a successful read of the current block. It returns true once
// the transaction is found, or a ConfirmTransactionTimeout once the block budget
// is spent.
func (s *confirmState) blockRead(ids []string) (bool, error) {
	for _, id := range ids {
		if strings.EqualFold(id, s.txID) {
			return true, nil
		}
	}
	s.blocksChecked++
	if s.blocksChecked >= s.opts.BlocksToCheck {
		return false, NewError(ErrConfirmTransactionTimeout,
			"transaction %s not observed in %d blocks; it may still be included later", s.txID, s.blocksChecked)
	}
	s.block++
	s.readAttempts = 0
	return false, nil
}

// blockMissing records that the current block does not exist yet.
func (s *confirmState) blockMissing() error {
	s.readAttempts++
	if s.readAttempts >= s.opts.MaxBlockReadAttempts {
		return NewError(ErrMaxBlockReadAttemptsTimeout,
			"block %d still missing after %d reads while confirming %s; the transaction may still be included later",
			s.block, s.readAttempts, s.txID)
	}
	return nil
}

type Confirmer struct {
	reader    BlockReader
	scheduler Scheduler
	opts      ConfirmOptions
}

func NewConfirmer(reader BlockReader, scheduler Scheduler, opts ConfirmOptions) *Confirmer {
	if scheduler == nil {
		scheduler = TimerScheduler{}
	}
	return &Confirmer{reader: reader, scheduler: scheduler, opts: opts.WithDefaults()}
}

func (c *Confirmer) Options() ConfirmOptions {
	return c.opts
}

// AwaitTransaction scans blocks from startBlock on until txID shows up and
// returns the block number that includes it.
func (c *Confirmer) AwaitTransaction(ctx context.Context, txID string, startBlock uint64) (uint64, error) {
	state := newConfirmState(txID, startBlock, c.opts)
	b := &backoff.Backoff{
		Min:    c.opts.PollInterval,
		Max:    c.opts.PollInterval * 8,
		Factor: 1.5,
	}

	for {
		ids, err := c.reader.BlockTransactionIDs(ctx, state.block)
		var delay time.Duration
		switch {
		case err == nil:
			found, stepErr := state.blockRead(ids)
			if found {
				log.Debug().Str("txId", txID).Uint64("block", state.block).Msg("transaction confirmed")
				return state.block, nil
			}
			if stepErr != nil {
				return 0, stepErr
			}
			b.Reset()
			delay = c.opts.PollInterval
		case IsKind(err, ErrBlockDoesNotExist):
			if stepErr := state.blockMissing(); stepErr != nil {
				return 0, stepErr
			}
			delay = b.Duration()
			log.Warn().Str("txId", txID).Uint64("block", state.block).Int("attempt", state.readAttempts).Dur("retryIn", delay).Msg("block not produced yet")
		default:
			return 0, err
		}

		if err := c.scheduler.Sleep(ctx, delay); err != nil {
			return 0, WrapError(ErrConfirmTransactionTimeout, err, "stopped waiting for %s at block %d", txID, state.block)
		}
	}
}
