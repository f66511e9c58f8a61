// Command clepho is the interactive process's entrypoint. The
// three-pane terminal UI itself is out of scope for this repository;
// what lives here is the wiring seam a UI attaches to — the same
// Store/Scheduler/TaskExecutor instantiation the daemon performs,
// plus direct subcommands that exercise the core without a UI so the
// pipeline is reachable and testable on its own.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/clepho/clepho/internal/ai"
	"github.com/clepho/clepho/internal/config"
	"github.com/clepho/clepho/internal/duplicate"
	"github.com/clepho/clepho/internal/executor"
	"github.com/clepho/clepho/internal/face"
	"github.com/clepho/clepho/internal/photo"
	"github.com/clepho/clepho/internal/scanner"
	"github.com/clepho/clepho/internal/scheduler"
	"github.com/clepho/clepho/internal/store"
	"github.com/clepho/clepho/internal/store/migrate"
	"github.com/clepho/clepho/internal/store/postgres"
	"github.com/clepho/clepho/internal/store/sqlite"
	"github.com/clepho/clepho/internal/trash"
)

var flagConfig string

var rootCmd = &cobra.Command{
	Use:   "clepho",
	Short: "Clepho photo-collection manager",
	Long: `clepho manages an indexed photo collection: scanning, deduplication,
trash/restore, and a scheduled task queue shared with clephod. This
build exposes the core operations directly; the terminal UI that
normally drives them is a separate, out-of-scope layer.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config.toml (overrides CLEPHO_CONFIG)")

	scanCmd := &cobra.Command{
		Use:   "scan [directory]",
		Short: "Scan a directory and index new/changed photos",
		Args:  cobra.ExactArgs(1),
		RunE:  runScan,
	}

	duplicatesCmd := &cobra.Command{
		Use:   "duplicates",
		Short: "Find exact and perceptual duplicate groups",
		RunE:  runDuplicates,
	}

	trashCleanupCmd := &cobra.Command{
		Use:   "trash-cleanup",
		Short: "Age out and size-limit the trash directory",
		RunE:  runTrashCleanup,
	}

	scheduleCmd := &cobra.Command{
		Use:   "schedule [directory]",
		Short: "Schedule a scan task to run at the given time",
		Args:  cobra.ExactArgs(1),
		RunE:  runSchedule,
	}
	scheduleCmd.Flags().Duration("in", 0, "run this far in the future (default: now)")

	catchUpCmd := &cobra.Command{
		Use:   "catch-up",
		Short: "Run every due task whose hours window is open, then exit",
		RunE:  runCatchUp,
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy every table from the embedded SQLite store to PostgreSQL",
		RunE:  runMigrate,
	}

	rootCmd.AddCommand(scanCmd, duplicatesCmd, trashCleanupCmd, scheduleCmd, catchUpCmd, migrateCmd)
}

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if flagConfig != "" {
		os.Setenv("CLEPHO_CONFIG", flagConfig)
	}
	return config.Load()
}

func openStore(ctx context.Context) (store.Store, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	s, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return s, cfg, nil
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	s, cfg, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	extensions := make(map[string]bool, len(cfg.Scanner.ImageExtensions))
	for _, ext := range cfg.Scanner.ImageExtensions {
		extensions[ext] = true
	}
	sc := scanner.New(s, scanner.Options{ImageExtensions: extensions, FallbackToModTime: cfg.Scanner.FallbackToModTime})

	var bar *progressbar.ProgressBar
	for ev := range sc.Scan(ctx, args[0]) {
		switch ev.Kind {
		case "started":
			fmt.Printf("scanning %d files under %s\n", ev.Total, args[0])
			bar = progressbar.NewOptions(ev.Total,
				progressbar.OptionSetDescription("indexing"),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
		case "file":
			if bar != nil {
				bar.Add(1)
			}
			if ev.Outcome != scanner.OutcomeUnchanged {
				fmt.Printf("  %-10s %s\n", ev.Outcome, ev.Path)
			}
		case "completed":
			if bar != nil {
				bar.Finish()
			}
			fmt.Printf("done: %d new, %d updated, %d unchanged, %d failed\n",
				ev.Counts.New, ev.Counts.Updated, ev.Counts.Unchanged, ev.Counts.Failed)
		case "cancelled":
			fmt.Println("scan cancelled")
		}
	}
	return nil
}

func runDuplicates(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	s, cfg, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	engine := duplicate.New(s, duplicate.DefaultWeights)
	groups, err := engine.FindGroups(ctx, cfg.Scanner.SimilarityThreshold)
	if err != nil {
		return fmt.Errorf("find duplicate groups: %w", err)
	}
	for i, g := range groups {
		fmt.Printf("group %d (%s, %d members):\n", i, g.Kind, len(g.Members))
		for _, m := range g.Members {
			fmt.Printf("  photo %d  score=%.1f  %s\n", m.Photo.ID, m.Score, m.Photo.Path)
		}
	}
	return nil
}

func runTrashCleanup(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	s, cfg, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	mgr := trash.New(s, cfg.Trash.Path, cfg.Trash.MaxAgeDays, cfg.Trash.MaxSizeBytes)
	result, err := mgr.Cleanup(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("cleanup trash: %w", err)
	}
	fmt.Printf("aged out %d, purged %d over the size limit\n", result.AgedOut, result.OverLimit)
	return nil
}

func runSchedule(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	s, cfg, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	in, _ := cmd.Flags().GetDuration("in")
	sched := scheduler.New(s, time.Minute, buildExecutor(s, cfg))
	id, err := sched.Schedule(ctx, &photo.ScheduledTask{
		Kind:        photo.TaskScan,
		TargetPath:  args[0],
		ScheduledAt: time.Now().UTC().Add(in),
	})
	if err != nil {
		return fmt.Errorf("schedule task: %w", err)
	}
	fmt.Printf("scheduled scan task %d\n", id)
	return nil
}

// runCatchUp drains every currently-due task via the same window-
// respecting claim the poll loop uses, the interactive process's
// equivalent of clephod's --once flag — useful right after opening the
// app if the daemon hasn't been running. It does not bypass the hours
// window the way the UI's per-task "run now" action does.
func runCatchUp(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	s, cfg, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	sched := scheduler.New(s, time.Minute, buildExecutor(s, cfg))
	for {
		task, err := sched.PollOnce(ctx)
		if err != nil {
			return fmt.Errorf("poll: %w", err)
		}
		if task == nil {
			break
		}
		fmt.Printf("ran task %d (%s)\n", task.ID, task.Kind)
	}
	return nil
}

// runMigrate is a one-shot switch to a networked backend: it opens the
// embedded SQLite database directly (not through store.Store, since the
// copy needs raw *sql.DB access) and the PostgreSQL URL from config,
// then copies every table across in FK-dependency order. Safe to rerun
// after a partial failure — already-migrated rows are left untouched.
func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Database.PostgreSQLURL == "" {
		return fmt.Errorf("migrate: DATABASE_URL (or database.postgresql_url) is not set")
	}

	src, err := sqlite.Open(ctx, cfg.Database.SQLitePath)
	if err != nil {
		return fmt.Errorf("open source sqlite database: %w", err)
	}
	defer src.Close()

	dst, err := postgres.Open(ctx, cfg.Database.PostgreSQLURL, cfg.Database.PoolSize)
	if err != nil {
		return fmt.Errorf("open destination postgresql database: %w", err)
	}
	defer dst.Close()

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("copying tables"),
		progressbar.OptionSpinnerType(14),
	)
	result, err := migrate.Run(ctx, src, dst)
	bar.Finish()
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	for table, n := range result.TableCounts {
		fmt.Printf("  %-24s %d rows\n", table, n)
	}
	fmt.Println("migration complete")
	return nil
}

// buildExecutor mirrors clephod's wiring so the interactive process
// can run the same TaskExecutor against overdue tasks on startup:
// both processes instantiate Store, Scheduler, and TaskExecutor
// against the same database.
func buildExecutor(s store.Store, cfg *config.Config) *executor.Executor {
	extensions := make(map[string]bool, len(cfg.Scanner.ImageExtensions))
	for _, ext := range cfg.Scanner.ImageExtensions {
		extensions[ext] = true
	}
	sc := scanner.New(s, scanner.Options{ImageExtensions: extensions, FallbackToModTime: cfg.Scanner.FallbackToModTime})

	var vision ai.VisionClient
	var embedder ai.EmbeddingClient
	switch {
	case cfg.LLM.Provider == "openai" && cfg.LLM.APIKey != "":
		client := ai.NewOpenAIClient(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.EmbedModel, cfg.Prices)
		vision, embedder = client, client
	case cfg.LLM.Provider == "gemini" && cfg.LLM.APIKey != "":
		client, err := ai.NewGeminiClient(context.Background(), cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.EmbedModel, cfg.Prices)
		if err != nil {
			fmt.Fprintf(os.Stderr, "clepho: gemini client: %v\n", err)
			break
		}
		vision, embedder = client, client
	}
	// No Detector implementation ships in this build (embedding
	// extraction needs an external model); once one is wired here via
	// face.NewPipeline, runFaceDetection rebuilds the match index and
	// clusters unnamed faces on every run without further changes.
	var pipeline *face.Pipeline
	return executor.New(s, sc, vision, embedder, pipeline)
}
