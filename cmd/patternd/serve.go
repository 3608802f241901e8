package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fairwayops/patternd/internal/config"
	"github.com/fairwayops/patternd/internal/conversation"
	"github.com/fairwayops/patternd/internal/dedupe"
	"github.com/fairwayops/patternd/internal/events"
	"github.com/fairwayops/patternd/internal/extraction"
	httpapi "github.com/fairwayops/patternd/internal/http"
	"github.com/fairwayops/patternd/internal/importer"
	"github.com/fairwayops/patternd/internal/logging"
	"github.com/fairwayops/patternd/internal/pattern"
	"github.com/fairwayops/patternd/internal/responder"
	"github.com/fairwayops/patternd/internal/safety"
	"github.com/fairwayops/patternd/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the patternd daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigCh
			cancel()
		}()

		return runServe(ctx)
	},
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.New(logging.Options{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Development: cfg.Log.Development,
	})
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logging.Sync(logger) }()

	logger.Info("starting patternd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("shadow_mode", cfg.Engine.ShadowMode),
	)

	stack, err := buildStack(cfg, logger)
	if err != nil {
		return err
	}
	defer stack.Close()

	// Safety rules hot reload.
	if cfg.Safety.RulesPath != "" {
		watcher, err := safety.NewWatcher(cfg.Safety.RulesPath, stack.screener, logger.Named("safety"))
		if err != nil {
			return fmt.Errorf("watching safety rules: %w", err)
		}
		watcher.Start(ctx)
		defer watcher.Stop()
	}

	server, err := httpapi.NewServer(stack.responder, stack.importer, stack.engine, stack.store, logger.Named("http"), &httpapi.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	go runSweeps(ctx, stack, cfg.Engine.DecayInterval, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown did not finish cleanly", zap.Error(err))
	}

	logger.Info("patternd stopped")
	return nil
}

// stack holds the wired daemon components.
type stack struct {
	store     store.Store
	engine    *pattern.Engine
	screener  *safety.Screener
	responder *responder.Responder
	importer  *importer.Importer
	events    *events.Publisher
	cache     *dedupe.Cache
	closers   []func()
}

func (s *stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// buildStack wires storage, embeddings, the engine, the safety layer,
// and the pipelines.
func buildStack(cfg *config.Config, logger *zap.Logger) (*stack, error) {
	s := &stack{}
	ok := false
	defer func() {
		if !ok {
			s.Close()
		}
	}()

	dbPath, err := config.ExpandPath(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("resolving store path: %w", err)
	}
	st, err := store.NewSQLiteStore(dbPath, logger.Named("store"))
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	s.store = st
	s.closers = append(s.closers, func() { _ = st.Close() })

	engine, vectorsClose, err := buildEngine(cfg, st, logger)
	if err != nil {
		return nil, err
	}
	s.engine = engine
	s.closers = append(s.closers, vectorsClose)

	rules, err := safety.LoadRules(cfg.Safety.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("loading safety rules: %w", err)
	}
	screener, err := safety.NewScreener(rules, logger.Named("safety"))
	if err != nil {
		return nil, fmt.Errorf("compiling safety rules: %w", err)
	}
	s.screener = screener

	var publisher *events.Publisher
	if cfg.NATS.Enabled {
		publisher, err = events.Connect(cfg.NATS.URL, cfg.NATS.SubjectPrefix, logger.Named("events"))
		if err != nil {
			return nil, fmt.Errorf("connecting events publisher: %w", err)
		}
		s.closers = append(s.closers, publisher.Close)
	}
	s.events = publisher

	cache := dedupe.New(dedupe.DefaultTTL, dedupe.DefaultMaxSize)
	s.cache = cache
	s.closers = append(s.closers, cache.Close)

	s.responder = responder.New(
		st,
		engine,
		screener,
		safety.NewBudget(cfg.Safety.AutoBudgetPerHour),
		cache,
		conversation.NewTracker(cfg.Conversation.TakeoverLockout),
		publisher,
		responder.Config{
			AutoThreshold:    cfg.Engine.AutoThreshold,
			SuggestThreshold: cfg.Engine.SuggestThreshold,
			ShadowMode:       cfg.Engine.ShadowMode,
			SuggestionTTL:    cfg.Engine.SuggestionTTL,
		},
		logger.Named("responder"),
	)

	extractor, refiner, err := buildExtraction(cfg)
	if err != nil {
		return nil, err
	}
	imp := importer.New(
		st,
		engine,
		conversation.NewGrouper(cfg.Conversation.GapWindow),
		extractor,
		refiner,
		publisher,
		0,
		logger.Named("importer"),
	)
	s.importer = imp
	s.closers = append(s.closers, imp.Close)

	ok = true
	return s, nil
}

// runSweeps drives the periodic maintenance loops: confidence decay and
// suggestion expiry.
func runSweeps(ctx context.Context, s *stack, decayInterval time.Duration, logger *zap.Logger) {
	decay := time.NewTicker(decayInterval)
	defer decay.Stop()
	expire := time.NewTicker(10 * time.Minute)
	defer expire.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-decay.C:
			if _, err := s.engine.DecaySweep(ctx); err != nil {
				logger.Warn("decay sweep failed", zap.Error(err))
			}
		case <-expire.C:
			if _, err := s.responder.ExpireSweep(ctx); err != nil {
				logger.Warn("suggestion expiry sweep failed", zap.Error(err))
			}
		}
	}
}

// buildExtraction creates the candidate extractor and optional LLM
// refiner from config.
func buildExtraction(cfg *config.Config) (extraction.Extractor, extraction.Refiner, error) {
	ecfg := extraction.DefaultConfig()
	ecfg.Provider = cfg.LLM.Provider
	ecfg.Model = cfg.LLM.Model
	ecfg.APIKey = cfg.LLM.APIKey
	ecfg.BaseURL = cfg.LLM.BaseURL
	ecfg.MaxTokens = cfg.LLM.MaxTokens
	ecfg.Timeout = cfg.LLM.Timeout

	extractor, err := extraction.NewExtractor(ecfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating extractor: %w", err)
	}
	refiner, err := extraction.NewRefiner(ecfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating refiner: %w", err)
	}
	return extractor, refiner, nil
}
