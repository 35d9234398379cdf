package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/entropycollective/batchsum/pkg/cancellation"
	"github.com/entropycollective/batchsum/pkg/config"
	"github.com/entropycollective/batchsum/pkg/errs"
	"github.com/entropycollective/batchsum/pkg/llm"
	"github.com/entropycollective/batchsum/pkg/llm/mock"
	"github.com/entropycollective/batchsum/pkg/logging"
	"github.com/entropycollective/batchsum/pkg/merge"
	"github.com/entropycollective/batchsum/pkg/notify"
	"github.com/entropycollective/batchsum/pkg/partial"
	"github.com/entropycollective/batchsum/pkg/persistence/ipfsstore"
	"github.com/entropycollective/batchsum/pkg/persistence/memory"
	"github.com/entropycollective/batchsum/pkg/persistence/postgres"
	"github.com/entropycollective/batchsum/pkg/pipeline"
	"github.com/entropycollective/batchsum/pkg/scheduler"
	"github.com/entropycollective/batchsum/pkg/topics"
	"github.com/entropycollective/batchsum/pkg/types"
)

func main() {
	var (
		configFile   = flag.String("config", "", "Configuration file path")
		preset       = flag.String("preset", "", "Configuration preset: default, quickstart, conservative, throughput (ignored when -config is set)")
		input        = flag.String("input", "", "Text file to segment and summarize")
		segmentChars = flag.Int("segment-chars", 1200, "Approximate characters per segment when splitting the input")
		user         = flag.String("user", "local", "User id owning the batch")
		concurrency  = flag.Int("concurrency", 0, "Concurrent segment tasks, 1-10 (overrides config)")
		priority     = flag.String("priority", "normal", "Batch priority: low, normal, high, urgent")
		pgConn       = flag.String("postgres", "", "PostgreSQL connection string (default: in-memory persistence)")
		migrations   = flag.String("migrations", "", "Migrations path for -postgres (overrides default)")
		ipfsAPI      = flag.String("ipfs-api", "", "IPFS API endpoint for archiving the final summary")
		cancelAfter  = flag.Duration("cancel-after", 0, "Request cancellation after this duration (e.g. 2s)")
		forceCancel  = flag.Bool("force", false, "Force cancellation instead of waiting for in-flight segments")
		savePartial  = flag.Bool("save-partial", true, "Preserve completed segments as a partial result on cancellation")
		watchConfig  = flag.Bool("watch-config", false, "Hot-reload the config file on change (requires -config)")
		listPartials = flag.Bool("list-partials", false, "List the user's partial results and exit")
		cleanupHours = flag.Int("cleanup-hours", 0, "Expire partial results pending longer than this many hours and exit")
		jsonOutput   = flag.Bool("json", false, "Output results in JSON format")
		quiet        = flag.Bool("quiet", false, "Minimal output (only errors and the final summary)")
	)
	flag.Parse()

	cfg, err := loadConfig(*configFile, *preset)
	if err != nil {
		fatal(*jsonOutput, err)
	}
	if *concurrency > 0 {
		cfg.Concurrency.Default = *concurrency
	}

	if err := initLogging(cfg.Logging, *quiet); err != nil {
		fatal(*jsonOutput, err)
	}
	logger := logging.GetGlobalLogger().WithComponent("batchsum")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, *pgConn, *migrations)
	if err != nil {
		fatal(*jsonOutput, err)
	}
	defer closeStore()

	extractor, err := topics.NewExtractor()
	if err != nil {
		logger.Warnf("topic extractor unavailable, topic labels degraded: %v", err)
	}

	var summarizer llm.Summarizer = errs.Guard(mock.New(), errs.DefaultBreakerConfig())

	notifier := notify.New(256)
	defer notifier.Stop()
	partials := partial.New(store, extractor)
	authorizer := &schedulerAuthorizer{}
	cancelMgr := cancellation.New(
		time.Duration(cfg.Cancellation.GracefulTimeoutMs)*time.Millisecond,
		partials,
		authorizer,
		&cancelEvents{notifier: notifier},
	)
	sched := scheduler.New(summarizer, cancelMgr, notifier, cfg)
	authorizer.scheduler = sched
	merger := merge.New(cfg.Merging, summarizer, extractor)
	pipe := pipeline.New(sched, merger, notifier, cancelMgr, partials, store)

	if *watchConfig && *configFile != "" {
		watcher, err := config.NewWatcher(*configFile, func(updated *config.Config) error {
			logger.Info("configuration reloaded", map[string]any{"path": *configFile})
			*cfg = *updated
			return nil
		})
		if err != nil {
			logger.Warnf("config watcher unavailable: %v", err)
		} else {
			defer watcher.Close()
		}
	}

	switch {
	case *listPartials:
		if err := printPartials(ctx, partials, *user, *jsonOutput); err != nil {
			fatal(*jsonOutput, err)
		}
		return
	case *cleanupHours > 0:
		n, err := partials.CleanupExpired(ctx, *cleanupHours)
		if err != nil {
			fatal(*jsonOutput, err)
		}
		fmt.Printf("expired %d partial result(s)\n", n)
		return
	}

	if *input == "" {
		flag.Usage()
		os.Exit(2)
	}

	segments, originalText, err := segmentFile(*input, *segmentChars)
	if err != nil {
		fatal(*jsonOutput, err)
	}
	logger.Info("input segmented", map[string]any{"file": *input, "segments": len(segments)})

	if !*quiet {
		subscribeProgress(notifier)
	}

	batchID, err := sched.StartBatch(ctx, segments, originalText, *user, cfg.Concurrency.Default, parsePriority(*priority))
	if err != nil {
		fatal(*jsonOutput, err)
	}

	if *cancelAfter > 0 {
		go func() {
			select {
			case <-ctx.Done():
			case <-time.After(*cancelAfter):
				_, err := sched.Cancel(ctx, cancellation.Request{
					BatchID:            batchID,
					UserID:             *user,
					Reason:             types.CancelReasonUserRequested,
					SavePartialResults: *savePartial,
					ForceCancel:        *forceCancel,
				})
				if err != nil {
					logger.Errorf("cancellation failed: %v", err)
				}
			}
		}()
	}

	batch := waitForTerminal(ctx, sched, batchID)
	if batch == nil {
		// Interrupted: cancel cooperatively so completed work is preserved.
		_, _ = sched.Cancel(context.Background(), cancellation.Request{
			BatchID:            batchID,
			UserID:             *user,
			Reason:             types.CancelReasonSystemShutdown,
			SavePartialResults: *savePartial,
			ForceCancel:        false,
		})
		os.Exit(130)
	}

	if batch.Status == types.BatchCompleted {
		if err := pipe.MergeBatch(ctx, batchID); err != nil {
			pipe.HandleError(ctx, err, "batchsum.merge", batchID)
		}
		batch, _ = sched.GetBatchResult(batchID)
	}

	if *ipfsAPI != "" && batch.FinalSummary != "" {
		archive, err := ipfsstore.New(*ipfsAPI)
		if err == nil {
			if cid, storeErr := archive.Store(ctx, batch.FinalSummary); storeErr == nil {
				logger.Info("final summary archived", map[string]any{"cid": cid})
			} else {
				logger.Warnf("summary archive failed: %v", storeErr)
			}
		} else {
			logger.Warnf("ipfs unavailable: %v", err)
		}
	}

	printResult(batch, *jsonOutput, *quiet)
	if batch.Status == types.BatchFailed {
		os.Exit(1)
	}
}

// schedulerAuthorizer adapts the scheduler's batch registry to the
// cancellation manager's ownership check. The scheduler field is set after
// construction because the scheduler itself needs the cancellation manager.
type schedulerAuthorizer struct {
	scheduler *scheduler.Scheduler
}

func (a *schedulerAuthorizer) OwnerOf(batchID uuid.UUID) (string, bool) {
	if a.scheduler == nil {
		return "", false
	}
	batch, ok := a.scheduler.GetBatchResult(batchID)
	if !ok {
		return "", false
	}
	return batch.UserID, true
}

// cancelEvents adapts the notifier to the cancellation manager's narrow
// publish-side contract.
type cancelEvents struct {
	notifier *notify.Notifier
}

func (c *cancelEvents) Publish(batchID uuid.UUID, eventName string, payload any) {
	eventType := notify.EventStatusChange
	if eventName == "CancellationRequested" {
		eventType = notify.EventCancellationRequested
	}
	c.notifier.Publish(notify.Event{BatchID: batchID, Type: eventType, Payload: payload})
}

func loadConfig(configFile, preset string) (*config.Config, error) {
	if configFile != "" {
		return config.LoadConfig(configFile)
	}
	cfg, err := config.GetPresetConfig(preset)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvironmentOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func initLogging(cfg config.LoggingConfig, quiet bool) error {
	level, err := logging.ParseLogLevel(cfg.Level)
	if err != nil {
		return err
	}
	if quiet {
		level = logging.ErrorLevel
	}
	format := logging.TextFormat
	if strings.EqualFold(cfg.Format, "json") {
		format = logging.JSONFormat
	}
	logging.InitGlobalLogger(&logging.Config{
		Level:            level,
		Format:           format,
		Output:           os.Stderr,
		EnableSanitizing: true,
	})
	return nil
}

// summaryStore is the union of the persistence ports the CLI wires together.
type summaryStore interface {
	partial.Store
	SaveMergeResult(ctx context.Context, batchID uuid.UUID, result *types.MergeResult) error
	GetMergeResult(ctx context.Context, batchID uuid.UUID) (*types.MergeResult, error)
}

func openStore(ctx context.Context, pgConn, migrationsPath string) (summaryStore, func(), error) {
	if pgConn == "" {
		return memory.New(), func() {}, nil
	}
	dbCfg := &postgres.DatabaseConfig{ConnectionString: pgConn}
	if migrationsPath != "" {
		dbCfg.MigrationsPath = migrationsPath
	}
	store, err := postgres.New(ctx, dbCfg)
	if err != nil {
		return nil, nil, err
	}
	if err := store.MigrateToLatest(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}
	return store, store.Close, nil
}

// segmentFile splits a text file into segments on blank-line boundaries,
// coalescing consecutive paragraphs until targetChars is reached. The
// real segmentation algorithm is an upstream concern; this is the minimal
// splitter the CLI needs to feed the scheduler.
func segmentFile(path string, targetChars int) ([]types.Segment, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read input: %w", err)
	}
	text := string(data)
	if strings.TrimSpace(text) == "" {
		return nil, "", fmt.Errorf("input file is empty")
	}
	if targetChars < 1 {
		targetChars = 1200
	}

	paragraphs := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n")
	var segments []types.Segment
	var current strings.Builder
	flush := func() {
		content := strings.TrimSpace(current.String())
		if content == "" {
			return
		}
		segments = append(segments, types.Segment{
			Index:   len(segments),
			Title:   fmt.Sprintf("Section %d", len(segments)+1),
			Content: content,
		})
		current.Reset()
	}
	for _, p := range paragraphs {
		if current.Len() > 0 && current.Len()+len(p) > targetChars {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
	}
	flush()
	return segments, text, nil
}

func parsePriority(s string) types.Priority {
	switch strings.ToLower(s) {
	case "low":
		return types.PriorityLow
	case "high":
		return types.PriorityHigh
	case "urgent":
		return types.PriorityUrgent
	default:
		return types.PriorityNormal
	}
}

// subscribeProgress prints a line per progress update and per terminal
// segment event to stderr, leaving stdout for the final summary.
func subscribeProgress(notifier *notify.Notifier) {
	notifier.Subscribe(func(event notify.Event) error {
		switch event.Type {
		case notify.EventProgressUpdate:
			if p, ok := event.Payload.(types.ProcessingProgress); ok {
				fmt.Fprintf(os.Stderr, "\r[%s] %5.1f%% (%d/%d segments)", p.Stage, p.OverallProgress, p.CompletedSegments, p.TotalSegments)
			}
		case notify.EventSegmentFailed:
			fmt.Fprintf(os.Stderr, "\nsegment %v failed\n", event.Payload)
		case notify.EventBatchCompleted, notify.EventBatchFailed:
			fmt.Fprintln(os.Stderr)
		}
		return nil
	})
}

func waitForTerminal(ctx context.Context, sched *scheduler.Scheduler, batchID uuid.UUID) *types.Batch {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			batch, ok := sched.GetBatchResult(batchID)
			if !ok {
				return nil
			}
			if batch.Status.IsTerminal() {
				return batch
			}
		}
	}
}

func printPartials(ctx context.Context, partials *partial.Handler, userID string, jsonOutput bool) error {
	results, err := partials.ListForUser(ctx, userID, nil, 1, 50)
	if err != nil {
		return err
	}
	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(results)
	}
	if len(results) == 0 {
		fmt.Println("no partial results")
		return nil
	}
	for _, pr := range results {
		fmt.Printf("%s  batch=%s  %5.1f%%  %s  %s\n",
			pr.ID, pr.BatchID, pr.CompletionPct*100, pr.Quality.Level, pr.Status)
	}
	return nil
}

// fatal reports err (as {"error": ...} on stdout when jsonOutput is set,
// otherwise on stderr) and exits with status 1.
func fatal(jsonOutput bool, err error) {
	if jsonOutput {
		_ = json.NewEncoder(os.Stdout).Encode(map[string]string{"error": err.Error()})
	} else {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	os.Exit(1)
}

func printResult(batch *types.Batch, jsonOutput, quiet bool) {
	if jsonOutput {
		out := map[string]any{
			"batchId":      batch.ID.String(),
			"status":       batch.Status.String(),
			"completed":    batch.Stats.CompletedSegments,
			"failed":       batch.Stats.FailedSegments,
			"total":        batch.Stats.TotalSegments,
			"finalSummary": batch.FinalSummary,
		}
		_ = json.NewEncoder(os.Stdout).Encode(out)
		return
	}
	if !quiet {
		fmt.Fprintf(os.Stderr, "batch %s: %s (%d/%d segments completed)\n",
			batch.ID, batch.Status, batch.Stats.CompletedSegments, batch.Stats.TotalSegments)
	}
	if batch.FinalSummary != "" {
		fmt.Println(batch.FinalSummary)
	}
}
