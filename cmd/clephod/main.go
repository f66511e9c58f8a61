// Command clephod is the headless daemon: it runs the same Scheduler
// and TaskExecutor as the interactive process against the same
// database, with no UI attached, so scheduled scans/LLM batches/face
// detection keep running while nobody has the terminal open.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/clepho/clepho/internal/ai"
	"github.com/clepho/clepho/internal/config"
	"github.com/clepho/clepho/internal/executor"
	"github.com/clepho/clepho/internal/face"
	"github.com/clepho/clepho/internal/scanner"
	"github.com/clepho/clepho/internal/scheduler"
	"github.com/clepho/clepho/internal/store"
)

var (
	flagConfig   string
	flagOnce     bool
	flagInterval time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "clephod",
	Short: "Clepho's headless scheduler daemon",
	Long: `clephod polls the same task queue the interactive clepho process
does, running scans, LLM description/embedding batches, and face
detection passes on schedule without a UI attached.`,
	RunE: runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config.toml (overrides CLEPHO_CONFIG)")
	rootCmd.PersistentFlags().BoolVar(&flagOnce, "once", false, "poll for due work exactly once, then exit, instead of running forever")
	rootCmd.PersistentFlags().DurationVar(&flagInterval, "interval", 0, "poll interval (e.g. 30s); 60s when unset")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler poll loop until interrupted",
		RunE:  runServe,
	}
	rootCmd.AddCommand(serveCmd)
}

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	if flagConfig != "" {
		os.Setenv("CLEPHO_CONFIG", flagConfig)
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	exec := buildExecutor(s, cfg)

	interval := flagInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	sched := scheduler.New(s, interval, exec)

	if n, err := sched.ReapStale(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "clephod: reap stale tasks: %v\n", err)
	} else if n > 0 {
		fmt.Printf("clephod: reaped %d stale task(s) from a prior crash\n", n)
	}

	if flagOnce {
		fmt.Println("clephod: polling once")
		for {
			task, err := sched.PollOnce(ctx)
			if err != nil {
				fmt.Fprintf(os.Stderr, "clephod: poll: %v\n", err)
				break
			}
			if task == nil {
				break
			}
			fmt.Printf("clephod: ran task %d (%s)\n", task.ID, task.Kind)
		}
		return nil
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nclephod: shutting down")
		cancel()
	}()

	fmt.Printf("clephod: polling every %s (Ctrl+C to stop)\n", interval)
	sched.Run(ctx)
	return nil
}

// buildExecutor wires the TaskExecutor's optional dependencies —
// vision/embedding client, face pipeline — only when the config
// actually enables them, so a daemon with no LLM key configured still
// runs Scan tasks fine and simply fails LlmBatch/FaceDetection tasks
// with a clear error rather than crashing at startup.
func buildExecutor(s store.Store, cfg *config.Config) *executor.Executor {
	extensions := make(map[string]bool, len(cfg.Scanner.ImageExtensions))
	for _, ext := range cfg.Scanner.ImageExtensions {
		extensions[ext] = true
	}
	sc := scanner.New(s, scanner.Options{
		ImageExtensions:   extensions,
		FallbackToModTime: cfg.Scanner.FallbackToModTime,
	})

	var vision ai.VisionClient
	var embedder ai.EmbeddingClient
	switch {
	case cfg.LLM.Provider == "openai" && cfg.LLM.APIKey != "":
		client := ai.NewOpenAIClient(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.EmbedModel, cfg.Prices)
		vision = client
		embedder = client
	case cfg.LLM.Provider == "gemini" && cfg.LLM.APIKey != "":
		client, err := ai.NewGeminiClient(context.Background(), cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.EmbedModel, cfg.Prices)
		if err != nil {
			fmt.Fprintf(os.Stderr, "clephod: gemini client: %v\n", err)
			break
		}
		vision = client
		embedder = client
	}

	// Face detection has no wired external model in this daemon build;
	// TaskFaceDetection tasks fail with a clear "not configured" error
	// (executor.runFaceDetection) rather than a nil-pointer panic. Once
	// a Detector is wired via face.NewPipeline, runFaceDetection rebuilds
	// the match index and clusters unnamed faces on every run.
	var pipeline *face.Pipeline

	return executor.New(s, sc, vision, embedder, pipeline)
}
