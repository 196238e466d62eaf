package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"refinery/cmd/refinery/chat"
	"refinery/internal/config"
	"refinery/internal/constraints"
	"refinery/internal/engine"
	"refinery/internal/export"
	"refinery/internal/introspect"
	"refinery/internal/llm"
	"refinery/internal/logging"
	"refinery/internal/session"
	"refinery/internal/store"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose   bool
	apiKey    string
	workspace string

	// Logger for non-interactive commands
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "refinery",
	Short: "refinery - a self-correcting AI chat client",
	Long: `refinery is a terminal chat client that drives a hosted generative model
through a structured self-correction protocol: every task is restated,
constrained, drafted, critiqued, and only then finalized. Autonomous (chain)
mode runs five self-refinement passes in a single response.

Run without arguments to start the interactive chat interface.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Interactive mode has its own file-based logging
		if cmd.Use == "refinery" && cmd.CalledAs() == "refinery" {
			return nil
		}

		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInteractiveChat()
	},
}

// sessionsCmd lists and searches stored sessions
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List stored sessions",
	RunE:  listSessions,
}

var searchCmd = &cobra.Command{
	Use:   "search [term]",
	Short: "Search message content across all sessions",
	Args:  cobra.MinimumNArgs(1),
	RunE:  searchSessions,
}

var exportCmd = &cobra.Command{
	Use:   "export [session-id]",
	Short: "Export a session transcript",
	Long: `Exports a stored session as an audit transcript. With no session id the
active session is exported.

Formats: text (default), markdown, json.`,
	Args: cobra.MaximumNArgs(1),
	RunE: exportSession,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage refinery configuration",
}

var configSetKeyCmd = &cobra.Command{
	Use:   "set-key [api-key]",
	Short: "Store the model API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _ := config.Load()
		cfg.APIKey = args[0]
		if err := config.Save(cfg); err != nil {
			return err
		}
		fmt.Println("API key saved.")
		return nil
	},
}

var configSetModelCmd = &cobra.Command{
	Use:   "set-model [model-name]",
	Short: "Set the model used for protocol turns",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _ := config.Load()
		cfg.Model = args[0]
		if err := config.Save(cfg); err != nil {
			return err
		}
		fmt.Printf("Model set to %s.\n", args[0])
		return nil
	},
}

var exportFormat string

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Model API key (or set GEMINI_API_KEY env)")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")

	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "text", "Export format (text, markdown, json)")

	sessionsCmd.AddCommand(searchCmd)
	configCmd.AddCommand(configSetKeyCmd)
	configCmd.AddCommand(configSetModelCmd)

	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func resolveWorkspace() string {
	if workspace != "" {
		return workspace
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}

func dotDir() string {
	dir, err := config.Dir()
	if err != nil {
		return ".refinery"
	}
	return dir
}

// openSessionStore loads the persisted session collection.
func openSessionStore() (*session.Store, error) {
	kv, err := session.NewFileKV(dotDir())
	if err != nil {
		return nil, fmt.Errorf("failed to open session storage: %w", err)
	}
	st := session.NewStore(kv)
	if err := st.Load(); err != nil {
		return nil, err
	}
	return st, nil
}

// runInteractiveChat wires the full backend and hands control to the TUI.
func runInteractiveChat() error {
	ws := resolveWorkspace()
	if err := logging.Initialize(ws); err != nil {
		fmt.Fprintf(os.Stderr, "warning: logging unavailable: %v\n", err)
	}
	defer logging.CloseAll()

	cfg, err := config.Load()
	if err != nil {
		logging.Boot("config load: %v (using defaults)", err)
	}
	if apiKey != "" {
		cfg.APIKey = apiKey
	}
	if cfg.APIKey == "" {
		return fmt.Errorf("no API key configured: run 'refinery config set-key' or set GEMINI_API_KEY")
	}

	sessions, err := openSessionStore()
	if err != nil {
		return err
	}

	llmCfg := llm.DefaultConfig(cfg.APIKey)
	llmCfg.Model = cfg.Model
	llmCfg.EnableSearch = cfg.EnableSearch
	client := llm.NewGeminiClientWithConfig(llmCfg)

	var translator llm.Translator
	if t, err := llm.NewGenAITranslator(cfg.APIKey, cfg.TranslatorModel); err != nil {
		logging.Boot("translator unavailable: %v", err)
	} else {
		translator = t
	}

	consStore := constraints.NewStore(dotDir())
	if err := consStore.Load(); err != nil {
		logging.Boot("constraints load failed: %v", err)
	}

	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()
	if watcher, err := constraints.NewWatcher(consStore, nil); err == nil {
		if err := watcher.Start(watchCtx); err == nil {
			defer watcher.Stop()
		}
	}

	mirror, err := store.NewMirror(dotDir())
	if err != nil {
		logging.Boot("transcript mirror unavailable: %v", err)
		mirror = nil
	} else {
		defer mirror.Close()
	}

	loadCtx, cancelLoad := context.WithTimeout(context.Background(), 10*time.Second)
	sources := introspect.LoadSources(loadCtx, ws, introspect.DefaultArtifacts)
	cancelLoad()

	eng := engine.New(sessions, client, engine.Options{
		Translator:  translator,
		Classifier:  introspect.NewKeywordClassifier(),
		Sources:     sources,
		Constraints: consStore,
		Mirror:      mirror,
	})

	model := chat.New(chat.Deps{
		Engine:      eng,
		Constraints: consStore,
		Mirror:      mirror,
		Config:      cfg,
	})

	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

func listSessions(cmd *cobra.Command, args []string) error {
	st, err := openSessionStore()
	if err != nil {
		return err
	}

	sessions := st.Sessions()
	if len(sessions) == 0 {
		fmt.Println("No sessions.")
		return nil
	}

	activeID := st.ActiveID()
	for i, s := range sessions {
		marker := " "
		if s.ID == activeID {
			marker = "*"
		}
		fmt.Printf("%s %2d. %-40s %3d messages  %s  %s\n",
			marker, i+1, s.Name, len(s.Messages), s.CreatedAt.Format("2006-01-02 15:04"), s.ID)
	}
	return nil
}

func searchSessions(cmd *cobra.Command, args []string) error {
	mirror, err := store.NewMirror(dotDir())
	if err != nil {
		return fmt.Errorf("failed to open search index: %w", err)
	}
	defer mirror.Close()

	term := strings.Join(args, " ")
	hits, err := mirror.Search(term, 50)
	if err != nil {
		return err
	}
	if len(hits) == 0 {
		fmt.Printf("No matches for %q.\n", term)
		return nil
	}

	logger.Debug("search complete", zap.String("term", term), zap.Int("hits", len(hits)))
	for _, h := range hits {
		snippet := strings.ReplaceAll(h.Content, "\n", " ")
		if len(snippet) > 100 {
			snippet = snippet[:100] + "..."
		}
		fmt.Printf("[%s] %-4s %s\n", h.SessionName, h.Author, snippet)
	}
	return nil
}

func exportSession(cmd *cobra.Command, args []string) error {
	st, err := openSessionStore()
	if err != nil {
		return err
	}

	var sess *session.Session
	if len(args) == 1 {
		sess = st.Get(args[0])
		if sess == nil {
			return fmt.Errorf("no session with id %s", args[0])
		}
	} else {
		sess = st.Active()
		if sess == nil {
			return fmt.Errorf("no sessions to export")
		}
	}

	exporter, err := export.NewExporter(exportFormat)
	if err != nil {
		return err
	}
	path, err := export.WriteFile(exporter, sess, "exports")
	if err != nil {
		return err
	}
	fmt.Printf("Exported %q to %s\n", sess.Name, path)
	return nil
}
