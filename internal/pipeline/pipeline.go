package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/devblac/cw-indexer/internal/chain"
	"github.com/devblac/cw-indexer/internal/event"
	"github.com/devblac/cw-indexer/internal/extractor"
	"github.com/devblac/cw-indexer/internal/listener"
	"github.com/devblac/cw-indexer/internal/metrics"
	"github.com/devblac/cw-indexer/internal/storage"
)

// Pipeline routes matched transaction data to extractors and persists
// their output. The same routing step serves the live feed and backfill.
type Pipeline struct {
	extractors []*extractor.Extractor
	syncers    []extractor.Syncer
	chain      chain.Client
	codes      *chain.CodeIDRegistry
	store      *storage.Store
	log        *slog.Logger
	mtr        *metrics.Metrics
	dryRun     bool
}

// Options configures a Pipeline.
type Options struct {
	Extractors []*extractor.Extractor
	Syncers    []extractor.Syncer
	Chain      chain.Client
	Codes      *chain.CodeIDRegistry
	Store      *storage.Store
	Log        *slog.Logger
	Metrics    *metrics.Metrics
	DryRun     bool
}

// New builds a pipeline.
func New(opts Options) *Pipeline {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		extractors: opts.Extractors,
		syncers:    opts.Syncers,
		chain:      opts.Chain,
		codes:      opts.Codes,
		store:      opts.Store,
		log:        log,
		mtr:        opts.Metrics,
		dryRun:     opts.DryRun,
	}
}

// HandleBlock caches the decoded header so transaction times resolve
// without node round trips.
func (p *Pipeline) HandleBlock(ctx context.Context, h listener.BlockHeader) {
	if p.store == nil {
		return
	}
	err := p.store.UpsertBlock(ctx, storage.Block{
		Height:     h.Height,
		TimeUnixMs: h.TimeUnixMs,
		Timestamp:  h.Time,
	})
	if err != nil {
		p.log.Warn("block cache upsert failed", "height", h.Height, "error", err)
	}
}

// HandleTx adapts a listener transaction into the processing path.
func (p *Pipeline) HandleTx(ctx context.Context, hash string, res listener.TxResult) {
	tx := event.TxData{
		Hash:   hash,
		Height: res.Height,
		Events: res.Events,
	}
	tx.TimeUnixMs = p.blockTime(ctx, res.Height)
	if err := p.ProcessTx(ctx, tx); err != nil {
		p.log.Error("process tx failed", "tx_hash", hash, "height", res.Height, "error", err)
	}
}

// ProcessTx runs every extractor's data sources over the transaction's
// events, dispatches matches, and persists the outputs. One extractor
// failing aborts only its own batch; the others still run.
func (p *Pipeline) ProcessTx(ctx context.Context, tx event.TxData) error {
	if p.mtr != nil {
		p.mtr.TxsProcessed()
	}
	var firstErr error
	for _, x := range p.extractors {
		items := x.Match(tx)
		if len(items) == 0 {
			continue
		}
		if p.mtr != nil {
			p.mtr.Matches(len(items))
		}
		out, err := x.Extract(ctx, p.env(tx.Height, tx.TimeUnixMs, tx.Hash), items)
		if err != nil {
			if p.mtr != nil {
				p.mtr.HandlerErrors()
			}
			p.log.Error("extract failed",
				"extractor", x.Name, "tx_hash", tx.Hash, "height", tx.Height,
				"items", len(items), "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("extractor %s: %w", x.Name, err)
			}
			continue
		}
		if p.mtr != nil {
			p.mtr.ExtractionsUpserted(len(out))
		}
		p.log.Debug("extracted", "extractor", x.Name, "tx_hash", tx.Hash, "count", len(out))
	}
	return firstErr
}

// Backfill runs the sync generators, feeding their records through the
// same routing and dispatch the live path uses. An empty filter runs every
// syncer; otherwise only the named extractors are backfilled.
func (p *Pipeline) Backfill(ctx context.Context, only map[string]bool) error {
	if p.chain == nil {
		return chain.ErrNotConnected
	}
	height, err := p.chain.GetHeight(ctx)
	if err != nil {
		return fmt.Errorf("resolve chain height: %w", err)
	}
	block, err := p.chain.GetBlock(ctx, height)
	if err != nil {
		return fmt.Errorf("resolve block %d: %w", height, err)
	}

	for _, sy := range p.syncers {
		if len(only) > 0 && !only[sy.ExtractorName()] {
			continue
		}
		x := p.extractorByName(sy.ExtractorName())
		if x == nil {
			return fmt.Errorf("syncer references unknown extractor %s", sy.ExtractorName())
		}
		env := p.env(height, block.TimeUnixMs, "")
		p.log.Info("backfill start", "extractor", x.Name, "height", height)
		err := sy.Sync(ctx, env, func(item extractor.Routed) error {
			out, err := x.Extract(ctx, env, []extractor.Routed{item})
			if err != nil {
				return err
			}
			if p.mtr != nil {
				p.mtr.ExtractionsUpserted(len(out))
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("backfill %s: %w", x.Name, err)
		}
		p.log.Info("backfill done", "extractor", x.Name)
	}
	return nil
}

func (p *Pipeline) env(height uint64, timeUnixMs int64, txHash string) *extractor.Env {
	env := &extractor.Env{
		Chain:      p.chain,
		Codes:      p.codes,
		Height:     height,
		TimeUnixMs: timeUnixMs,
		TxHash:     txHash,
		Log:        p.log,
	}
	if !p.dryRun {
		env.Store = p.store
	}
	return env
}

func (p *Pipeline) extractorByName(name string) *extractor.Extractor {
	for _, x := range p.extractors {
		if x.Name == name {
			return x
		}
	}
	return nil
}

// blockTime resolves the block time from the cache, falling back to the
// node and caching the answer. Zero means unresolvable; the extraction
// still proceeds since time is metadata, not part of the fact's key.
func (p *Pipeline) blockTime(ctx context.Context, height uint64) int64 {
	if p.store != nil {
		if b, ok, err := p.store.NearestBlockBefore(ctx, height); err == nil && ok && b.Height == height {
			return b.TimeUnixMs
		}
	}
	if p.chain == nil {
		return 0
	}
	info, err := p.chain.GetBlock(ctx, height)
	if err != nil {
		p.log.Warn("block time lookup failed", "height", height, "error", err)
		if p.store != nil {
			if b, ok, err := p.store.NearestBlockBefore(ctx, height); err == nil && ok {
				return b.TimeUnixMs
			}
		}
		return 0
	}
	if p.store != nil {
		_ = p.store.UpsertBlock(ctx, storage.Block{
			Height:     info.Height,
			TimeUnixMs: info.TimeUnixMs,
			Timestamp:  info.Timestamp,
		})
	}
	return info.TimeUnixMs
}
