package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/alienxp03/thinktank/internal/config"
	"github.com/alienxp03/thinktank/internal/core"
	"github.com/alienxp03/thinktank/internal/cost"
	"github.com/alienxp03/thinktank/internal/export"
	"github.com/alienxp03/thinktank/internal/llm"
	"github.com/alienxp03/thinktank/internal/memory"
	"github.com/alienxp03/thinktank/internal/persist"
	"github.com/alienxp03/thinktank/internal/runner"
	"github.com/alienxp03/thinktank/web/handlers"
)

const (
	defaultModel      = "claude-sonnet-4-6"
	defaultSynthModel = "claude-opus-4-6"
)

var (
	dbPath  string
	runsDir string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "thinktank",
	Short: "Multi-expert AI debate orchestrator",
	Long: `thinktank runs structured multi-round debates between AI expert
personas over a problem specification.

Experts make validated moves with explicit claims, confidences, and
rebuttal targets. Completed debates feed a persistent memory of lessons,
forecasts, and per-expert track records that informs future runs.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Memory database path (default: ~/.thinktank/memory.db)")
	rootCmd.PersistentFlags().StringVar(&runsDir, "runs-dir", "runs", "Directory holding debate run artifacts")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(panelsCmd)
	rootCmd.AddCommand(specsCmd)
	rootCmd.AddCommand(lessonsCmd)
	rootCmd.AddCommand(importLessonsCmd)
	rootCmd.AddCommand(forecastsCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(perfCmd)
	rootCmd.AddCommand(serveCmd)
}

func openMemory() (*memory.Store, error) {
	path := dbPath
	if path == "" {
		path = memory.DefaultDBPath()
	}
	return memory.Open(path)
}

// run command - execute a debate

var (
	panelFlag      string
	modelFlag      string
	synthModelFlag string
	outputDirFlag  string
	dryRunFlag     bool
	noMemoryFlag   bool
)

var runCmd = &cobra.Command{
	Use:   "run [spec.yaml]",
	Short: "Run a debate from a spec file",
	Long: `Run a full debate from a spec document against a panel of experts.

Examples:
  thinktank run specs/ai-timelines.yaml --panel panels/forecasters.yaml
  thinktank run specs/ai-timelines.yaml --panel panels/forecasters.yaml --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runDebate,
}

func init() {
	runCmd.Flags().StringVarP(&panelFlag, "panel", "p", "", "Panel file (required)")
	runCmd.Flags().StringVarP(&modelFlag, "model", "m", defaultModel, "Model for debate rounds")
	runCmd.Flags().StringVar(&synthModelFlag, "synth-model", defaultSynthModel, "Model for the synthesis round")
	runCmd.Flags().StringVarP(&outputDirFlag, "output-dir", "o", "", "Run artifact directory (default: --runs-dir)")
	runCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "Print a cost estimate and exit without any API calls")
	runCmd.Flags().BoolVar(&noMemoryFlag, "no-memory", false, "Disable lesson injection and the post-debate memory batch")
	runCmd.MarkFlagRequired("panel")
}

func runDebate(cmd *cobra.Command, args []string) error {
	spec, err := config.LoadSpec(args[0])
	if err != nil {
		return err
	}
	panel, err := config.LoadPanel(panelFlag)
	if err != nil {
		return err
	}
	for _, warn := range config.ValidateSpecAgainstPanel(spec, panel) {
		fmt.Fprintf(os.Stderr, "warning: %s\n", warn)
	}

	if dryRunFlag {
		return printEstimate(cost.EstimateSpec(spec, modelFlag, synthModelFlag))
	}

	// Missing credentials fail before any state is created.
	client, err := llm.NewAnthropicClientFromEnv()
	if err != nil {
		return err
	}

	var store *memory.Store
	if !noMemoryFlag {
		store, err = openMemory()
		if err != nil {
			return fmt.Errorf("failed to open memory store: %w", err)
		}
		defer store.Close()
	}

	baseDir := outputDirFlag
	if baseDir == "" {
		baseDir = runsDir
	}
	out, err := persist.NewRunDir(baseDir, spec.Title, time.Now())
	if err != nil {
		return err
	}

	fmt.Printf("\nStarting debate: %s\n", spec.Title)
	fmt.Printf("   Panel: %s (%d experts) | Rounds: %d\n", panel.Name, len(panel.Experts), len(spec.Rounds))
	fmt.Printf("   Model: %s | Synthesis: %s\n", modelFlag, synthModelFlag)
	fmt.Printf("   Output: %s\n\n", out.Path)
	fmt.Println(strings.Repeat("─", 60))

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\n\nInterrupted. Last completed round remains on disk.")
		cancel()
	}()

	r := runner.New(runner.Options{
		Spec:       spec,
		Panel:      panel,
		Client:     client,
		Model:      modelFlag,
		SynthModel: synthModelFlag,
		Memory:     store,
		Out:        out,
	})

	debate, err := r.Run(ctx, &runner.Callbacks{
		OnRoundStart: func(rc core.RoundConfig, selected []core.Expert) {
			names := make([]string, len(selected))
			for i, e := range selected {
				names[i] = e.Name
			}
			fmt.Printf("\nRound %d: %s\n", rc.Number, rc.Focus)
			fmt.Printf("   Speaking: %s\n", strings.Join(names, ", "))
		},
		OnMove: func(m core.Move) {
			fmt.Printf("\n[%s] %s (%s)\n", m.ID, m.ExpertTitle, m.Type)
			fmt.Println(strings.Repeat("─", 40))
			fmt.Println(m.Content)
			for _, c := range m.Claims {
				fmt.Printf("  • %s (%.2f, %s)\n", c.Text, c.Confidence, c.Stance)
			}
		},
		OnSkip: func(expertID string, round int, err error) {
			fmt.Printf("\n[skipped] %s produced no valid move in round %d\n", expertID, round)
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			fmt.Printf("\nDebate paused. Partial state: %s\n", out.Path)
			return nil
		}
		return fmt.Errorf("debate failed: %w", err)
	}

	actual := cost.ComputeActual(debate)
	fmt.Println(strings.Repeat("═", 60))
	fmt.Printf("Debate complete: %d moves, %d claims\n", len(debate.Moves()), debate.TotalClaims())
	fmt.Printf("Tokens: %d in / %d out — $%.4f\n", debate.InputTokens, debate.OutputTokens, actual.TotalCostUSD)
	fmt.Printf("Artifacts: %s\n", out.Path)
	return nil
}

func printEstimate(est cost.Estimate) error {
	fmt.Printf("\nDry run — no API calls made.\n\n")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ROUND\tFOCUS\tAGENTS\tSYNTHESIS")
	for _, r := range est.Rounds {
		fmt.Fprintf(w, "%d\t%s\t%d\t%v\n", r.Round, r.Focus, r.Agents, r.IsSynthesis)
	}
	w.Flush()

	fmt.Printf("\nAPI calls: %d\n", est.TotalCalls)
	fmt.Printf("Estimated tokens: %d in / %d out\n", est.InputTokens, est.OutputTokens)
	fmt.Printf("Estimated cost: $%.2f (agents $%.2f + synthesis $%.2f)\n",
		est.TotalCostUSD, est.AgentCostUSD, est.SynthCostUSD)
	return nil
}

// list command - list persisted runs

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted debate runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		dirs, err := persist.ListRuns(runsDir)
		if err != nil {
			return err
		}
		if len(dirs) == 0 {
			fmt.Println("No runs found. Start one with: thinktank run <spec.yaml> --panel <panel.yaml>")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "RUN\tTITLE\tSTATUS\tROUNDS\tCLAIMS\tSTARTED")
		for _, dir := range dirs {
			debate, err := persist.LoadState(dir)
			if err != nil {
				continue
			}
			title := debate.SpecTitle
			if len(title) > 40 {
				title = title[:37] + "..."
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
				filepath.Base(dir),
				title,
				debate.Status,
				len(debate.Rounds),
				debate.TotalClaims(),
				debate.StartedAt.Format("2006-01-02 15:04"),
			)
		}
		return w.Flush()
	},
}

// replay command - verify and re-render a persisted run

var replayCmd = &cobra.Command{
	Use:   "replay [run-dir or state-file]",
	Short: "Verify a persisted run and re-render its report",
	Long: `Load a persisted debate, check its structural integrity (move
ordering, target references, confidence ranges), and re-render the
report from state alone. Makes no API calls.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		debate, err := persist.LoadState(args[0])
		if err != nil {
			return err
		}
		if err := runner.Verify(debate); err != nil {
			return fmt.Errorf("integrity check failed: %w", err)
		}

		exporter, _ := export.GetExporter(export.FormatMarkdown)
		if err := exporter.Export(debate, os.Stdout); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "\nverified: %d moves, %d claims, status %s\n",
			len(debate.Moves()), debate.TotalClaims(), debate.Status)
		return nil
	},
}

// export command - render a run to a file

var formatFlag string

var exportCmd = &cobra.Command{
	Use:   "export [run-dir or state-file]",
	Short: "Export a debate to markdown, pdf, or json",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		debate, err := persist.LoadState(args[0])
		if err != nil {
			return err
		}

		exporter, err := export.GetExporter(export.Format(formatFlag))
		if err != nil {
			return err
		}

		filename := export.GenerateFilename(debate, exporter.FileExtension())
		f, err := os.Create(filename)
		if err != nil {
			return err
		}
		defer f.Close()

		if err := exporter.Export(debate, f); err != nil {
			return err
		}
		fmt.Printf("Exported to %s\n", filename)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&formatFlag, "format", "f", "markdown", "Export format (markdown, pdf, json)")
}

// panels / specs commands - discover config documents

func listYAMLFiles(kind, dir string) error {
	paths, err := config.DiscoverFiles(dir)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Printf("No %s directory at %s\n", kind, dir)
			return nil
		}
		return err
	}
	if len(paths) == 0 {
		fmt.Printf("No %s found in %s\n", kind, dir)
		return nil
	}
	for _, p := range paths {
		fmt.Println(p)
	}
	return nil
}

var panelsDirFlag string

var panelsCmd = &cobra.Command{
	Use:   "panels",
	Short: "List available panel files",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listYAMLFiles("panels", panelsDirFlag)
	},
}

var specsDirFlag string

var specsCmd = &cobra.Command{
	Use:   "specs",
	Short: "List available spec files",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listYAMLFiles("specs", specsDirFlag)
	},
}

func init() {
	panelsCmd.Flags().StringVar(&panelsDirFlag, "dir", "panels", "Directory to search")
	specsCmd.Flags().StringVar(&specsDirFlag, "dir", "specs", "Directory to search")
}

// lessons command

var lessonsCmd = &cobra.Command{
	Use:   "lessons",
	Short: "List lessons accumulated across debates",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openMemory()
		if err != nil {
			return err
		}
		defer store.Close()

		lessons, err := store.ListLessons()
		if err != nil {
			return err
		}
		if len(lessons) == 0 {
			fmt.Println("No lessons yet. Complete a debate to start learning.")
			return nil
		}

		for _, l := range lessons {
			fmt.Printf("[%s] (%.2f) %s\n", l.Category, l.Confidence, l.Text)
		}
		return nil
	},
}

// import-lessons command - cold-start seeding

var importLessonsCmd = &cobra.Command{
	Use:   "import-lessons [lessons.json]",
	Short: "Seed the memory store with lessons from a JSON file",
	Long: `Import lessons from a JSON array into the memory store. Existing
lesson ids are skipped, so re-importing the same file is safe.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var lessons []core.Lesson
		if err := json.Unmarshal(data, &lessons); err != nil {
			return fmt.Errorf("failed to parse lessons file: %w", err)
		}

		store, err := openMemory()
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.ImportBootstrap(lessons)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d of %d lessons\n", n, len(lessons))
		return nil
	},
}

// forecasts command

var forecastsCmd = &cobra.Command{
	Use:   "forecasts",
	Short: "List forecasts, pending first",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openMemory()
		if err != nil {
			return err
		}
		defer store.Close()

		forecasts, err := store.ListForecasts()
		if err != nil {
			return err
		}
		if len(forecasts) == 0 {
			fmt.Println("No forecasts registered.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATE\tPROB\tDEADLINE\tEXPERT\tBRIER\tTEXT")
		for _, f := range forecasts {
			brier := "-"
			if f.Brier != nil {
				brier = fmt.Sprintf("%.3f", *f.Brier)
			}
			text := f.Text
			if len(text) > 60 {
				text = text[:57] + "..."
			}
			fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\t%s\t%s\t%s\n",
				f.ID[:8], f.State, f.Probability, f.Deadline, f.ExpertID, brier, text)
		}
		w.Flush()

		if mean, perExpert, ok, err := store.BrierSummary(); err == nil && ok {
			fmt.Printf("\nMean Brier score: %.3f (lower is better)\n", mean)
			for id, b := range perExpert {
				fmt.Printf("  %s: %.3f\n", id, b)
			}
		}
		return nil
	},
}

// resolve command

var resolveCmd = &cobra.Command{
	Use:   "resolve [forecast-id] [yes|no]",
	Short: "Resolve a pending forecast against its real-world outcome",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var outcome bool
		switch strings.ToLower(args[1]) {
		case "yes", "true":
			outcome = true
		case "no", "false":
			outcome = false
		default:
			return fmt.Errorf("outcome must be yes or no, got %q", args[1])
		}

		store, err := openMemory()
		if err != nil {
			return err
		}
		defer store.Close()

		f, err := store.ResolveForecast(args[0], outcome)
		if err != nil {
			return err
		}

		fmt.Printf("Resolved %s → %s\n", f.ID, f.State)
		fmt.Printf("  Forecast: %s (p=%.2f by %s)\n", f.Text, f.Probability, f.ExpertID)
		fmt.Printf("  Brier score: %.3f\n", *f.Brier)
		return nil
	},
}

// perf command

var perfCmd = &cobra.Command{
	Use:   "perf",
	Short: "Show per-expert performance records",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openMemory()
		if err != nil {
			return err
		}
		defer store.Close()

		perf, err := store.Performance()
		if err != nil {
			return err
		}
		if len(perf) == 0 {
			fmt.Println("No performance records yet.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "EXPERT\tDEBATES\tCLAIMS\tMEAN CONF\tCHALLENGES MADE\tRECEIVED")
		for _, p := range perf {
			fmt.Fprintf(w, "%s\t%d\t%d\t%.3f\t%d\t%d\n",
				p.ExpertID, p.Debates, p.TotalClaims, p.MeanConfidence,
				p.ChallengesMade, p.ChallengesReceived)
		}
		return w.Flush()
	},
}

// serve command

var addrFlag string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve runs and memory over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openMemory()
		if err != nil {
			return err
		}
		defer store.Close()

		h := handlers.New(runsDir, store)
		fmt.Printf("Listening on %s (runs: %s)\n", addrFlag, runsDir)
		return http.ListenAndServe(addrFlag, h.Router())
	},
}

func init() {
	serveCmd.Flags().StringVar(&addrFlag, "addr", ":8080", "Listen address")
}
