package extractor

import (
	"context"
	"fmt"

	"github.com/devblac/cw-indexer/internal/chain"
	"github.com/devblac/cw-indexer/internal/source"
)

// syncPageSize is the fixed page size for chain-state pagination during
// backfill.
const syncPageSize = 30

// Syncer regenerates the match records an extractor's live data sources
// would have produced, from a full scan of current chain state. Sync is
// restartable: re-running it reproduces the same logical set, modulo
// chain-state drift. Records are built through the same factories the
// live matchers use, so the handlers consuming them are shared.
type Syncer interface {
	// ExtractorName names the extractor whose handlers consume the
	// yielded records.
	ExtractorName() string
	Sync(ctx context.Context, env *Env, yield func(Routed) error) error
}

// paginateContracts walks all contract addresses of a code id, page by
// page, passing the last address of each page as the next cursor.
func paginateContracts(ctx context.Context, cli chain.Client, codeID uint64, fn func(page []string) error) error {
	cursor := ""
	for {
		var page []string
		err := chain.Retry(ctx, chain.DefaultRetryAttempts, chain.DefaultRetryDelay, func(ctx context.Context) error {
			var err error
			page, err = cli.GetContracts(ctx, codeID, cursor, syncPageSize)
			return err
		})
		if err != nil {
			return fmt.Errorf("contracts of code %d after %q: %w", codeID, cursor, err)
		}
		if len(page) == 0 {
			return nil
		}
		if err := fn(page); err != nil {
			return err
		}
		if len(page) < syncPageSize {
			return nil
		}
		cursor = page[len(page)-1]
	}
}

// codeKeySyncer backfills any extractor whose contracts are identified by
// a symbolic code-id key: it paginates every contract of every registered
// code id and synthesizes instantiate match records for them.
type codeKeySyncer struct {
	extractor string
	handler   string
	codeKey   string
}

// NewDAOCoreSyncer backfills the dao-core extractor.
func NewDAOCoreSyncer() Syncer {
	return &codeKeySyncer{extractor: TypeDAOCore, handler: "instantiate", codeKey: DAOCoreCodeKey}
}

// NewRolesSyncer backfills the dao-rbam role extractor.
func NewRolesSyncer() Syncer {
	return &codeKeySyncer{extractor: TypeRoles, handler: "refresh", codeKey: RolesCodeKey}
}

func (s *codeKeySyncer) ExtractorName() string { return s.extractor }

func (s *codeKeySyncer) Sync(ctx context.Context, env *Env, yield func(Routed) error) error {
	cli, err := env.Client()
	if err != nil {
		return err
	}
	for _, codeID := range env.Codes.FindWasmCodeIDsByKeys(s.codeKey) {
		err := paginateContracts(ctx, cli, codeID, func(page []string) error {
			return yield(Routed{
				SourceType: source.TypeWasmInstantiate,
				Handler:    s.handler,
				Data:       source.NewWasmInstantiateData("instantiate", codeID, page, nil),
			})
		})
		if err != nil {
			return fmt.Errorf("sync %s: %w", s.extractor, err)
		}
	}
	return nil
}
