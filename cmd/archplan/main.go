package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"archplan/internal/app"
	"archplan/internal/catalog"
	"archplan/internal/config"
	"archplan/internal/db"
	"archplan/internal/domain"
	"archplan/internal/repo"
	"archplan/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "archplan",
	Short: "Archplan CLI",
	Long: `Archplan turns a client briefing into a composed project plan.
- Detect: classify which discipline templates a briefing needs (primary, complementary, optional).
- Compose: merge the activities of those templates, resolve cross-discipline dependencies,
  schedule them on business days and aggregate a budget.
- Workspace: the .archplan directory holds the SQLite catalog, cache and event log; rules live in archplan.yml.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogger(viper.GetString("log-level"), viper.GetString("log-format"))
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	_ = godotenv.Load()
	viper.SetEnvPrefix("ARCHPLAN")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	for _, name := range []string{"workspace", "json", "log-level", "log-format"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func setupLogger(level, format string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelWarn
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func registerCommands() {
	rootCmd.AddCommand(detectCmd())
	rootCmd.AddCommand(composeCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(logCmd())
}

func detectCmd() *cobra.Command {
	var briefingPath string
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Detect the templates a briefing needs",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := readBriefing(cmd.InOrStdin(), briefingPath)
			if err != nil {
				return err
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, w *app.Workspace) error {
				a, err := w.Engine.Analyze(ctx, b)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(a)
				}
				printAnalysis(a)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&briefingPath, "briefing", "-", "briefing JSON file (- for stdin)")
	return cmd
}

// composeFlags are shared by compose and plan.
type composeFlags struct {
	projectID       string
	startDate       string
	compositionType string
	minScore        float64
	minPriority     int
	noOptional      bool
	force           bool
}

func (f *composeFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.projectID, "project", "", "project id")
	cmd.Flags().StringVar(&f.startDate, "start-date", "", "start date YYYY-MM-DD (defaults to today)")
	cmd.Flags().StringVar(&f.compositionType, "type", "", "composition type (automatic, manual)")
	cmd.Flags().Float64Var(&f.minScore, "min-score", 0, "drop optional templates scoring below this")
	cmd.Flags().IntVar(&f.minPriority, "min-priority", 0, "drop optional templates with a larger priority number")
	cmd.Flags().BoolVar(&f.noOptional, "no-optional", false, "drop the optional tier")
	cmd.Flags().BoolVar(&f.force, "force", false, "ignore a cached composition")
}

func (f *composeFlags) options() domain.ComposeOptions {
	opts := domain.ComposeOptions{
		ForceRegenerate: f.force,
		MinScore:        f.minScore,
		MinPriority:     f.minPriority,
		StartDate:       f.startDate,
		CompositionType: domain.CompositionType(f.compositionType),
	}
	if f.noOptional {
		include := false
		opts.IncludeOptional = &include
	}
	return opts
}

func composeCmd() *cobra.Command {
	var (
		flags        composeFlags
		analysisPath string
	)
	cmd := &cobra.Command{
		Use:   "compose",
		Short: "Compose a project from an analysis (output of detect --json)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.projectID == "" {
				return fmt.Errorf("--project required")
			}
			data, err := readInput(cmd.InOrStdin(), analysisPath)
			if err != nil {
				return err
			}
			var a domain.NeedsAnalysis
			if err := json.Unmarshal(data, &a); err != nil {
				return fmt.Errorf("invalid analysis: %w", err)
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, w *app.Workspace) error {
				p, err := w.Engine.Compose(ctx, flags.projectID, a, flags.options())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				printProject(p)
				return nil
			})
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVar(&analysisPath, "analysis", "-", "analysis JSON file (- for stdin)")
	return cmd
}

func planCmd() *cobra.Command {
	var (
		flags        composeFlags
		briefingPath string
	)
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Detect and compose in one step",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := readBriefing(cmd.InOrStdin(), briefingPath)
			if err != nil {
				return err
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, w *app.Workspace) error {
				res, err := w.Engine.Plan(ctx, flags.projectID, b, flags.options())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				printAnalysis(res.Analysis)
				fmt.Println()
				printProject(res.Project)
				return nil
			})
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVar(&briefingPath, "briefing", "-", "briefing JSON file (- for stdin)")
	return cmd
}

func catalogCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the template catalog",
		Long:  "The catalog holds the discipline templates and their activities. A fresh workspace is seeded with the built-in templates.",
	}
	c.AddCommand(catalogSeedCmd())
	c.AddCommand(catalogImportCmd())
	c.AddCommand(catalogListCmd())
	c.AddCommand(catalogShowCmd())
	return c
}

func catalogSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Write the built-in templates into the workspace catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, w *app.Workspace) error {
				templates := catalog.Builtin()
				if err := w.Engine.SeedCatalog(ctx, templates); err != nil {
					return err
				}
				return printResult(map[string]any{"seeded": len(templates)}, fmt.Sprintf("seeded %d templates", len(templates)))
			})
		},
	}
}

func catalogImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Import templates from a YAML catalog file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			templates, err := catalog.LoadFile(args[0])
			if err != nil {
				return err
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, w *app.Workspace) error {
				if err := w.Engine.SeedCatalog(ctx, templates); err != nil {
					return err
				}
				return printResult(map[string]any{"imported": len(templates)}, fmt.Sprintf("imported %d templates from %s", len(templates), args[0]))
			})
		},
	}
}

func catalogListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List catalog templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, w *app.Workspace) error {
				templates, err := w.Engine.Templates(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(templates)
				}
				printTemplates(templates)
				return nil
			})
		},
	}
}

func catalogShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show TEMPLATE_ID",
		Short: "Show the activities of a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, w *app.Workspace) error {
				t, err := w.Engine.Template(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(t)
				}
				printTemplateActivities(t)
				return nil
			})
		},
	}
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect rule config",
		Long:  "Config is the rulebook in archplan.yml: project type tables, keyword sets, estimates, dependency rules, budget bases and cache settings. Built-in defaults apply when the file is absent.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(viper.GetString("workspace"), path, true)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	}
	cmd.Flags().StringVar(&path, "config", "", "config file to read instead of the workspace archplan.yml")
	return cmd
}

func configValidateCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate archplan.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := loadConfig(viper.GetString("workspace"), path, false)
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": errorString(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "config", "", "config file to validate instead of the workspace archplan.yml")
	return cmd
}

// loadConfig reads path when set, else the workspace archplan.yml. optional
// falls back to the defaults when the workspace file is missing.
func loadConfig(workspace, path string, optional bool) (*config.Config, error) {
	switch {
	case path != "":
		return config.FromFile(path)
	case optional:
		return config.LoadOptional(workspace)
	default:
		return config.Load(workspace)
	}
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default archplan.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			return printResult(map[string]any{"path": path}, "wrote "+path)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, w *app.Workspace) error {
				handler, err := server.New(server.Config{Engine: w.Engine, BasePath: basePath, Logger: slog.Default()})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving archplan API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func logCmd() *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var (
		f        repo.EventFilter
		follow   bool
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, w *app.Workspace) error {
				cursor, err := w.Engine.LatestEventID(ctx)
				if err != nil {
					return err
				}
				events, err := w.Engine.ListEvents(ctx, f)
				if err != nil {
					return err
				}
				if !follow {
					if viper.GetBool("json") {
						return printJSON(events)
					}
					printEvents(events)
					return nil
				}
				if len(events) > 0 && events[0].ID > cursor {
					cursor = events[0].ID
				}
				for i := len(events) - 1; i >= 0; i-- {
					printEventLine(os.Stdout, events[i])
				}
				return followEvents(ctx, w.Engine, cursor, f, interval, os.Stdout)
			})
		},
	}
	cmd.Flags().IntVar(&f.Limit, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.ProjectID, "project", "", "project filter")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing new events until interrupted")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "poll interval with --follow")
	return cmd
}

type eventSource interface {
	EventsAfter(ctx context.Context, cursor int64, f repo.EventFilter) ([]domain.Event, error)
}

// followEvents polls for events past cursor until ctx is done.
func followEvents(ctx context.Context, src eventSource, cursor int64, f repo.EventFilter, interval time.Duration, out io.Writer) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		events, next, err := pollEvents(ctx, src, cursor, f)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		for _, e := range events {
			printEventLine(out, e)
		}
		cursor = next
	}
}

// pollEvents returns the events after cursor, oldest first, and the cursor to
// resume from.
func pollEvents(ctx context.Context, src eventSource, cursor int64, f repo.EventFilter) ([]domain.Event, int64, error) {
	f.Limit = 0
	f.Before = 0
	events, err := src.EventsAfter(ctx, cursor, f)
	if err != nil {
		return nil, cursor, err
	}
	if len(events) > 0 {
		cursor = events[len(events)-1].ID
	}
	return events, cursor, nil
}

func printEventLine(out io.Writer, e domain.Event) {
	if viper.GetBool("json") {
		_ = json.NewEncoder(out).Encode(e)
		return
	}
	fmt.Fprintf(out, "%d\t%s\t%s\t%s\t%s:%s\t%s\n", e.ID, e.TS, e.Type, e.ProjectID, e.EntityKind, e.EntityID, e.Payload)
}

// --- helpers ---

func withWorkspace(ctx context.Context, fn func(context.Context, *app.Workspace) error) error {
	w, err := app.Open(ctx, viper.GetString("workspace"), slog.Default())
	if err != nil {
		return err
	}
	defer w.Close()
	return fn(ctx, w)
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

func readBriefing(stdin io.Reader, path string) (domain.Briefing, error) {
	data, err := readInput(stdin, path)
	if err != nil {
		return domain.Briefing{}, err
	}
	var b domain.Briefing
	if err := json.Unmarshal(data, &b); err != nil {
		return domain.Briefing{}, err
	}
	return b, nil
}

func printResult(v any, text string) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	fmt.Println(text)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
