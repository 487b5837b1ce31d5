package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/devblac/cw-indexer/internal/chain"
	"github.com/devblac/cw-indexer/internal/event"
	"github.com/devblac/cw-indexer/internal/source"
	"github.com/devblac/cw-indexer/internal/storage"
)

// ErrUnknownHandler is a configuration error: a binding names a handler
// the extractor does not have. It is fatal and never retried.
var ErrUnknownHandler = errors.New("unknown handler")

// HandlerFunc processes one match record into zero or more extractions.
// The returned records are stamped with the enclosing block coordinates by
// Extract; handlers only fill address, name, and data.
type HandlerFunc func(ctx context.Context, env *Env, d source.Data) ([]storage.Extraction, error)

// Env is the shared per-call context handed to handlers.
type Env struct {
	Chain  chain.Client
	Codes  *chain.CodeIDRegistry
	Store  *storage.Store
	Height uint64
	// TimeUnixMs is the enclosing block's time.
	TimeUnixMs int64
	TxHash     string
	Log        *slog.Logger
}

// Client returns the chain client or ErrNotConnected when none is wired.
// Handlers that need chain state call this first and fail fast.
func (e *Env) Client() (chain.Client, error) {
	if e.Chain == nil {
		return nil, chain.ErrNotConnected
	}
	return e.Chain, nil
}

func (e *Env) logger() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return slog.Default()
}

// Binding declares which data source feeds which named handler.
type Binding struct {
	Handler string
	Source  source.DataSource
}

// Routed is a match record tagged with its destination handler.
type Routed struct {
	SourceType string
	Handler    string
	Data       source.Data
}

// Extractor owns an ordered list of bindings and a registry of named
// handlers. The registry is populated at construction; lookups never use
// runtime introspection.
type Extractor struct {
	Name     string
	Bindings []Binding

	handlers map[string]HandlerFunc
}

// New validates that every binding resolves to a registered handler and
// builds the extractor. A dangling handler name is a programming error
// surfaced immediately.
func New(name string, bindings []Binding, handlers map[string]HandlerFunc) (*Extractor, error) {
	for _, b := range bindings {
		if b.Source == nil {
			return nil, fmt.Errorf("extractor %s: binding %q has no source", name, b.Handler)
		}
		if _, ok := handlers[b.Handler]; !ok {
			return nil, fmt.Errorf("extractor %s: binding %s: %w", name, b.Handler, ErrUnknownHandler)
		}
	}
	return &Extractor{Name: name, Bindings: bindings, handlers: handlers}, nil
}

// Match runs every binding's data source over the transaction and tags
// the results for dispatch.
func (x *Extractor) Match(tx event.TxData) []Routed {
	var out []Routed
	for _, b := range x.Bindings {
		for _, d := range b.Source.Match(tx) {
			out = append(out, Routed{SourceType: b.Source.Type(), Handler: b.Handler, Data: d})
		}
	}
	return out
}

// Extract dispatches each routed item to its handler, runs all items
// concurrently with all-settled semantics, stamps the outputs with the
// block coordinates from env, and persists them as one upsert batch.
//
// Failure policy: an unresolved handler aborts before any work starts;
// chain.ErrNotConnected from any handler aborts the whole call; any other
// per-item error is logged and that item's output dropped, unless it was
// the only item, in which case the error propagates.
func (x *Extractor) Extract(ctx context.Context, env *Env, items []Routed) ([]storage.Extraction, error) {
	if len(items) == 0 {
		return nil, nil
	}

	fns := make([]HandlerFunc, len(items))
	for i, it := range items {
		fn, ok := x.handlers[it.Handler]
		if !ok {
			return nil, fmt.Errorf("extractor %s: handler %s: %w", x.Name, it.Handler, ErrUnknownHandler)
		}
		fns[i] = fn
	}

	outs := make([][]storage.Extraction, len(items))
	errs := make([]error, len(items))
	var wg sync.WaitGroup
	for i := range items {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outs[i], errs[i] = fns[i](ctx, env, items[i].Data)
		}(i)
	}
	wg.Wait()

	var extractions []storage.Extraction
	failed := 0
	for i, err := range errs {
		if err != nil {
			if errors.Is(err, chain.ErrNotConnected) {
				return nil, fmt.Errorf("extractor %s: handler %s: %w", x.Name, items[i].Handler, err)
			}
			if len(items) == 1 {
				return nil, fmt.Errorf("extractor %s: handler %s: %w", x.Name, items[i].Handler, err)
			}
			failed++
			env.logger().Error("handler failed, dropping item",
				"extractor", x.Name,
				"handler", items[i].Handler,
				"source", items[i].SourceType,
				"height", env.Height,
				"tx_hash", env.TxHash,
				"error", err)
			continue
		}
		extractions = append(extractions, outs[i]...)
	}

	for i := range extractions {
		extractions[i].Height = env.Height
		extractions[i].TimeUnixMs = env.TimeUnixMs
		extractions[i].TxHash = env.TxHash
	}

	if env.Store != nil && len(extractions) > 0 {
		if err := env.Store.UpsertExtractions(ctx, extractions); err != nil {
			return nil, fmt.Errorf("extractor %s: persist batch: %w", x.Name, err)
		}
	}
	return extractions, nil
}
