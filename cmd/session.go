package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/DachengChen/paiask/agent"
	"github.com/DachengChen/paiask/ai"
	"github.com/DachengChen/paiask/config"
	"github.com/DachengChen/paiask/db"
	"github.com/DachengChen/paiask/refs"
)

// session holds what every command needs besides the database: loaded
// config, the completion service and the optional reference store.
type session struct {
	log      *slog.Logger
	cfg      *config.AppConfig
	llm      ai.Provider
	searcher agent.ReferenceSearcher
	closers  []func()
}

func newSession(ctx context.Context, log *slog.Logger) (*session, error) {
	appCfg, err := config.LoadAppConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	s := &session{log: log, cfg: appCfg}

	provider, err := ai.NewProvider(ctx, appCfg.AI)
	if err != nil {
		return nil, fmt.Errorf("ai provider: %w", err)
	}
	if f, err := ai.OpenLogFile(); err != nil {
		log.Warn("ai request log unavailable", "error", err)
	} else {
		provider = ai.WithLogging(provider, f)
		s.closers = append(s.closers, func() { f.Close() })
	}
	s.llm = provider
	log.Debug("completion service ready", "provider", provider.Name())

	if appCfg.References.Enabled {
		store, err := openReferences(ctx, log, appCfg)
		if err != nil {
			log.Warn("reference search disabled", "error", err)
		} else {
			s.searcher = store
			s.closers = append(s.closers, func() { store.Close() })
		}
	}
	return s, nil
}

func openReferences(ctx context.Context, log *slog.Logger, cfg *config.AppConfig) (*refs.Store, error) {
	if cfg.References.Path == "" {
		return nil, errors.New("references.path is not set")
	}
	embedder, err := refs.NewGenAIEmbedder(ctx, cfg.AI.Gemini.APIKey, cfg.References.EmbeddingModel)
	if err != nil {
		return nil, err
	}
	return refs.Open(ctx, cfg.References.Path, embedder, log)
}

// Close releases resources in reverse order of acquisition.
func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// coordinator builds a pipeline over d. Coordinators hold no per-question
// state, so one may serve many questions.
func (s *session) coordinator(d *db.DB) (*agent.Coordinator, error) {
	return agent.New(agent.Deps{
		Inspector: d,
		Runner:    d,
		Completer: s.llm,
		Searcher:  s.searcher,
		Logger:    s.log,
	}, pipelineOptions(s.cfg))
}

// pipelineOptions maps the config file onto coordinator options. Zero
// values keep the defaults.
func pipelineOptions(cfg *config.AppConfig) agent.Options {
	opts := agent.DefaultOptions()
	p := cfg.Pipeline
	if p.MaxRetries >= 0 {
		opts.MaxRetries = p.MaxRetries
	}
	if p.SampleRows > 0 {
		opts.SampleRows = p.SampleRows
	}
	if p.MaxRows > 0 {
		opts.MaxRows = p.MaxRows
	}
	if p.PreviewRows > 0 {
		opts.PreviewRows = p.PreviewRows
	}
	if p.DefaultLimit > 0 {
		opts.DefaultLimit = p.DefaultLimit
	}
	if p.Temperature > 0 {
		opts.Temperature = p.Temperature
	}
	if p.StageTimeout.Duration > 0 {
		opts.StageTimeout = p.StageTimeout.Duration
	}
	if p.QueryTimeout.Duration > 0 {
		opts.QueryTimeout = p.QueryTimeout.Duration
	}
	if p.NarrationLanguage != "" {
		opts.NarrationLanguage = p.NarrationLanguage
	}

	r := cfg.References
	if r.TopK > 0 {
		opts.ReferenceK = r.TopK
	}
	if r.MaxChars > 0 {
		opts.ReferenceChars = r.MaxChars
	}
	if r.Timeout.Duration > 0 {
		opts.SearchTimeout = r.Timeout.Duration
	}
	return opts
}

// resolveTarget picks the database: --dsn, then --connection, then PG_URI.
func resolveTarget(store *config.ConnectionStore, connection, dsn string) (config.Config, error) {
	if dsn != "" {
		return config.Config{URI: dsn}, nil
	}
	if connection != "" {
		if store == nil {
			return config.Config{}, fmt.Errorf("connection %q: no saved connections", connection)
		}
		conn, ok := store.Get(connection)
		if !ok {
			return config.Config{}, fmt.Errorf("connection %q not found in ~/.paiask/connections.json", connection)
		}
		return conn.ToConfig(), nil
	}
	if uri := os.Getenv("PG_URI"); uri != "" {
		return config.Config{URI: uri}, nil
	}
	return config.Config{}, errors.New("no database given: pass --dsn, --connection or set PG_URI")
}

// connect opens the database named by the persistent flags.
func connect(ctx context.Context, log *slog.Logger) (*db.DB, error) {
	var store *config.ConnectionStore
	if flagConnection != "" {
		var err error
		store, err = config.NewConnectionStore()
		if err != nil {
			return nil, fmt.Errorf("failed to load connections: %w", err)
		}
	}
	target, err := resolveTarget(store, flagConnection, flagDSN)
	if err != nil {
		return nil, err
	}
	return db.Connect(ctx, log, target)
}
