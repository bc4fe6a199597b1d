package cmd

import (
	"context"
	"fmt"

	"mca-revenue-engine/cmd/mcaengine/config"
	"mca-revenue-engine/internal/analysis"
	"mca-revenue-engine/internal/patterns"
	"mca-revenue-engine/internal/storage/sqlite"
	"mca-revenue-engine/pkg/errors"
)

// workspace holds the pattern store, statement repository and engine one
// command works against. Without a database everything lives in memory for
// the duration of the command.
type workspace struct {
	db         *sqlite.DB
	store      *patterns.Store
	statements analysis.StatementRepository
	engine     *analysis.Engine
}

func openWorkspace(ctx context.Context, s *config.Settings, requireDatabase bool) (*workspace, error) {
	if s == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "settings", nil,
			fmt.Errorf("settings were not loaded"))
	}

	ws := &workspace{}
	var repo patterns.Repository

	if s.Database != "" {
		db, err := sqlite.Open(ctx, s.Database)
		if err != nil {
			return nil, err
		}
		ws.db = db
		repo = sqlite.NewPatternRepository(db)
		ws.statements = sqlite.NewStatementRepository(db)
	} else {
		if requireDatabase {
			return nil, errors.ConfigurationError(errors.CodeMissingConfig, config.KeyDatabase, "",
				fmt.Errorf("this command needs a persistent database")).
				WithSuggestion("Pass --database <file> or set MCAENGINE_DATABASE")
		}
		repo = patterns.NewMemoryRepository()
		ws.statements = analysis.NewMemoryStatementRepository()
	}

	store, err := patterns.NewStore(repo, s.PatternConfig())
	if err != nil {
		ws.Close()
		return nil, err
	}
	ws.store = store

	engine, err := analysis.NewEngine(store, ws.statements, s.AnalysisConfig())
	if err != nil {
		ws.Close()
		return nil, err
	}
	ws.engine = engine

	return ws, nil
}

func (w *workspace) Close() error {
	if w.db == nil {
		return nil
	}
	return w.db.Close()
}
