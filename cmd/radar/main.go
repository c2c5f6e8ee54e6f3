package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/teramod/radar/internal/config"
	"github.com/teramod/radar/internal/data"
	"github.com/teramod/radar/internal/feed"
	"github.com/teramod/radar/internal/metrics"
	"github.com/teramod/radar/internal/output"
	"github.com/teramod/radar/internal/persist"
	"github.com/teramod/radar/internal/pub"
	"github.com/teramod/radar/internal/scripting"
	"github.com/teramod/radar/internal/snapshot"
	"github.com/teramod/radar/internal/world"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner() {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m            radar  v0.1.0                  \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m     entity tracker · atomic snapshots     \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
}

func printSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := 42 - len(label) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main radar logic ───────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := "config/radar.toml"
	if p := os.Getenv("RADAR_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load config: %w", err)
		}
		// No config file: run on defaults.
		cfg = config.Defaults()
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner()

	// 3. Optional snapshot archive (PostgreSQL)
	var archiveRepo *persist.SnapshotRepo
	var db *persist.DB
	if cfg.Archive.Enabled {
		printSection("archive")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		db, err = persist.NewDB(ctx, cfg.Archive, log)
		if err != nil {
			cancel()
			return fmt.Errorf("archive database: %w", err)
		}
		if err := persist.RunMigrations(ctx, db.Pool); err != nil {
			cancel()
			return fmt.Errorf("migrations: %w", err)
		}
		cancel()
		defer db.Close()
		archiveRepo = persist.NewSnapshotRepo(db)
		printOK("PostgreSQL connected, migrations applied")
		if cfg.Archive.Retention > 0 {
			pruneCtx, pruneCancel := context.WithTimeout(context.Background(), 30*time.Second)
			if pruned, err := archiveRepo.Prune(pruneCtx, cfg.Archive.Retention); err != nil {
				log.Warn("archive prune failed", zap.Error(err))
			} else if pruned > 0 {
				printStat("archived snapshots pruned", int(pruned))
			}
			pruneCancel()
		}
		fmt.Println()
	}

	// 4. Static data and scripts
	printSection("data")

	var templates *data.TemplateTable
	if cfg.Data.TemplatePath != "" {
		templates, err = data.LoadTemplateTable(cfg.Data.TemplatePath)
		if err != nil {
			return fmt.Errorf("load templates: %w", err)
		}
		printStat("entity templates", templates.Count())
	}

	var storeOpts []world.Option
	var luaEngine *scripting.Engine
	if cfg.Scripts.Dir != "" {
		luaEngine, err = scripting.NewEngine(cfg.Scripts.Dir, log)
		if err != nil {
			return fmt.Errorf("scripting: %w", err)
		}
		defer luaEngine.Close()
		storeOpts = append(storeOpts, world.WithCreationHook(luaEngine))
		printOK("classification scripts loaded")
	}
	fmt.Println()

	// 5. Entity store
	store := world.NewStore(world.Settings{
		RadiusMeters: cfg.Radar.RadiusMeters,
		MaxEntities:  cfg.Radar.MaxEntities,
		StaleAfter:   cfg.Radar.StaleAfter,
	}, log, storeOpts...)

	// 6. Output pipeline
	pipeline := output.NewPipeline(output.Config{
		Path:          cfg.Output.Path,
		HistoryPath:   cfg.Output.HistoryPath,
		RetryCeiling:  cfg.Output.RetryCeiling,
		RetryBase:     cfg.Output.RetryBase,
		LatencyBudget: cfg.Radar.TickInterval,
	}, log)
	if archiveRepo != nil {
		pipeline.SetOnWritten(func(snap *snapshot.Snapshot, payload []byte) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			taken, err := time.Parse(time.RFC3339Nano, snap.Timestamp)
			if err != nil {
				taken = time.Now().UTC()
			}
			if err := archiveRepo.Insert(ctx, taken, len(snap.Entities), snap.Metadata.RadarRadius, payload); err != nil {
				log.Warn("archive insert failed", zap.Error(err))
			}
		})
	}
	pipeline.Start()

	// 7. Feed server
	feedServer, err := feed.NewServer(cfg.Feed.BindAddress, cfg.Feed.QueueSize, log)
	if err != nil {
		return fmt.Errorf("feed server: %w", err)
	}
	go feedServer.AcceptLoop()

	// 8. Publisher
	var hub *pub.Hub
	if cfg.Publish.Enabled {
		hub = pub.NewHub(log)
		go hub.Run()
		go func() {
			if err := hub.Serve(cfg.Publish.BindAddress); err != nil {
				log.Warn("publisher stopped", zap.Error(err))
			}
		}()
	}

	// 9. Metrics
	if cfg.Metrics.Enabled {
		metrics.StartDebugServer(cfg.Metrics.ListenAddr, log)
	}

	// 10. Radar loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Radar.TickInterval)
	defer ticker.Stop()

	printSection("radar ready")
	printReady(fmt.Sprintf("feed listening on %s", feedServer.Addr().String()))
	if hub != nil {
		printReady(fmt.Sprintf("publishing on ws://%s/ws", cfg.Publish.BindAddress))
	}
	printReady(fmt.Sprintf("snapshots → %s (tick: %s)", cfg.Output.Path, cfg.Radar.TickInterval))
	fmt.Println()

	sweepCounter := 0
	for {
		select {
		case <-ticker.C:
			start := time.Now()

			drainEvents(store, templates, feedServer, cfg.Feed.MaxEventsPerTick)

			sweepCounter++
			if sweepCounter >= cfg.Radar.SweepEvery {
				sweepCounter = 0
				store.EvictStale(cfg.Radar.StaleAfter)
			}

			results := store.QueryRadius(cfg.Radar.RadiusMeters)
			snap := snapshot.Assemble(store.Observer(), results, cfg.Radar.RadiusMeters, store.Count(), time.Now())
			pipeline.Request(snap)
			if hub != nil {
				hub.Publish(snap)
			}

			metrics.RecordTick(time.Since(start))
			metrics.UpdateTracked(store.Count())
			metrics.UpdateInRadius(len(results))

		case sig := <-shutdownCh:
			log.Info("shutdown signal received", zap.String("signal", sig.String()))
			// Ordered teardown: no new snapshots, then no new events,
			// then finish or drop the last pending write.
			ticker.Stop()
			feedServer.Shutdown()

			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			pipeline.Flush(flushCtx)
			cancel()

			st := store.Stats()
			ps := pipeline.Stats()
			log.Info("radar stopped",
				zap.Int("entities_tracked", st.Population),
				zap.Uint64("snapshots_written", ps.Writes),
				zap.Uint64("snapshots_dropped", ps.Dropped),
				zap.Uint64("write_retries", ps.Retries),
				zap.Uint64("feed_malformed", feedServer.MalformedCount()))
			return nil
		}
	}
}

// drainEvents applies queued feed events to the store, at most maxEvents
// per tick so one chatty feed cannot starve snapshot production.
func drainEvents(store *world.Store, templates *data.TemplateTable, srv *feed.Server, maxEvents int) {
	for i := 0; i < maxEvents; i++ {
		select {
		case ev := <-srv.Events():
			applyEvent(store, templates, ev)
			metrics.RecordFeedEvent(string(ev.Type))
		default:
			return
		}
	}
}

// applyEvent routes one decoded event into the store. Template
// enrichment only fills attributes the event itself did not carry.
func applyEvent(store *world.Store, templates *data.TemplateTable, ev feed.Event) {
	switch ev.Type {
	case feed.EventObserver:
		if ev.Patch.Pos != nil {
			store.SetObserverPosition(*ev.Patch.Pos)
		}
		store.SetObserverAim(ev.Rotation, ev.Yaw, ev.Pitch)

	case feed.EventDespawn:
		store.Remove(ev.ID)

	case feed.EventSpawn, feed.EventMove, feed.EventHealth:
		patch := ev.Patch
		if templates != nil && patch.TemplateID != nil {
			if tmpl, ok := templates.Lookup(*patch.TemplateID); ok {
				if patch.Name == nil && tmpl.Name != "" {
					name := tmpl.Name
					patch.Name = &name
				}
				if patch.Level == nil && tmpl.Level > 0 {
					lv := tmpl.Level
					patch.Level = &lv
				}
				if patch.Class == nil && tmpl.Class != "" {
					cl := tmpl.Class
					patch.Class = &cl
				}
			}
		}
		store.Upsert(ev.ID, patch)
	}
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
