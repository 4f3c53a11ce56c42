// Package main provides the Minerva CLI application entry point.
// Minerva is a local-first conversation and project store with optional
// synchronization against a remote conversation API.
package main

import (
	"bufio"
	gocontext "context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"minerva/internal/config"
	appcontext "minerva/internal/context"
	"minerva/internal/events"
	"minerva/internal/logger"
	"minerva/internal/render"
	"minerva/internal/services"
	"minerva/internal/store"
	"minerva/internal/version"
	"minerva/pkg/minervatypes"
)

var (
	logLevel   string
	logFile    string
	testMode   bool
	configPath string
)

// app wires the store, working set, bus, and services together. Constructed
// once per command invocation; nothing lives in globals.
type app struct {
	ctx           *appcontext.AppContext
	cfg           *config.Config
	store         *store.Store
	ws            *services.WorkingSet
	bus           *events.Bus
	conversations *services.ConversationService
	projects      *services.ProjectService
	sync          *services.SyncService
}

// newApp builds and initializes the full service graph.
func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx := appcontext.New()
	ctx.SetTestMode(testMode)

	st := store.New(cfg.DataDir)
	ws := services.NewWorkingSet(st)
	bus := events.NewBus()

	concept := services.NewConceptService(ctx)
	projects := services.NewProjectService(ctx, ws)
	conversations := services.NewConversationService(ctx, ws, bus, concept, projects, cfg.DefaultExpiryDays)

	registry := services.NewRegistry()
	for _, svc := range []minervatypes.Service{concept, projects, conversations} {
		if err := registry.RegisterService(svc); err != nil {
			return nil, err
		}
	}
	if err := registry.InitializeAll(); err != nil {
		return nil, err
	}

	backend := services.NewBackend(cfg, conversations, projects)
	syncSvc := services.NewSyncService(ctx, ws, bus, backend, cfg.Poll)
	if err := registry.RegisterService(syncSvc); err != nil {
		return nil, err
	}
	if err := syncSvc.Initialize(); err != nil {
		return nil, err
	}

	// Migration window: pick up conversations still only in the legacy file.
	if st.HasLegacy() {
		if err := syncSvc.ReconcileLegacy(st.LoadLegacy()); err != nil {
			logger.Warn("Legacy reconcile failed", "error", err)
		}
	}

	return &app{
		ctx:           ctx,
		cfg:           cfg,
		store:         st,
		ws:            ws,
		bus:           bus,
		conversations: conversations,
		projects:      projects,
		sync:          syncSvc,
	}, nil
}

var rootCmd = &cobra.Command{
	Use:   "minerva",
	Short: "Minerva - local-first conversation and project store",
	Long: `Minerva manages conversations and projects in a local JSON store,
with search, auto-titling, expiry, and optional sync against a remote
conversation API.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		return logger.Configure(logLevel, logFile, testMode)
	},
}

func scopeFromFlags(cmd *cobra.Command) minervatypes.SearchScope {
	tab, _ := cmd.Flags().GetString("tab")
	projectID, _ := cmd.Flags().GetString("project")
	agentID, _ := cmd.Flags().GetString("agent")

	scope := minervatypes.SearchScope{Tab: minervatypes.SearchTab(tab), ProjectID: projectID, AgentID: agentID}
	if projectID != "" && scope.Tab == minervatypes.TabAll {
		scope.Tab = minervatypes.TabProject
	}
	if agentID != "" && scope.Tab == minervatypes.TabAll {
		scope.Tab = minervatypes.TabAgent
	}
	return scope
}

func addScopeFlags(cmd *cobra.Command) {
	cmd.Flags().String("tab", string(minervatypes.TabAll), "Scope tab (all|pinned|project|agent)")
	cmd.Flags().String("project", "", "Project id for the project tab")
	cmd.Flags().String("agent", "", "Agent id for the agent tab")
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		convs := a.conversations.List(scopeFromFlags(cmd))
		fmt.Print(render.NewListRenderer().ConversationList(convs, a.projects.GetName))
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search conversations by title, content, or tag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		convs := a.conversations.Search(args[0], scopeFromFlags(cmd))
		fmt.Print(render.NewListRenderer().ConversationList(convs, a.projects.GetName))
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <conversation-id>",
	Short: "Show a conversation's full message history",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		result := a.conversations.Find(args[0])
		if result == nil {
			return fmt.Errorf("conversation '%s' not found", args[0])
		}
		a.bus.Publish(events.TopicLoadConversation, result.Conversation.ID)

		detail, err := render.NewDetailRenderer()
		if err != nil {
			// Styled rendering is best-effort; fall back to raw markdown.
			fmt.Print(render.MarkdownSource(result.Conversation))
			return nil
		}
		out, err := detail.ConversationDetail(result.Conversation)
		if err != nil {
			fmt.Print(render.MarkdownSource(result.Conversation))
			return nil
		}
		fmt.Print(out)
		return nil
	},
}

var newCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a conversation",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		title, _ := cmd.Flags().GetString("title")
		message, _ := cmd.Flags().GetString("message")
		projectID, _ := cmd.Flags().GetString("project")
		agentID, _ := cmd.Flags().GetString("agent")
		pinned, _ := cmd.Flags().GetBool("pin")
		tags, _ := cmd.Flags().GetStringSlice("tags")
		expiryDays, _ := cmd.Flags().GetInt("expiry-days")
		neverExpire, _ := cmd.Flags().GetBool("never-expire")

		var messages []minervatypes.Message
		if message != "" {
			messages = append(messages, minervatypes.Message{Role: "user", Content: message})
		}

		id, err := a.conversations.Create(title, messages, minervatypes.CreateOptions{
			ProjectID:   projectID,
			AgentID:     agentID,
			Pinned:      pinned,
			Tags:        tags,
			ExpiryDays:  expiryDays,
			NeverExpire: neverExpire,
		})
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <conversation-id>",
	Short: "Delete a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		yes, _ := cmd.Flags().GetBool("yes")
		if !yes && !confirm(fmt.Sprintf("Delete conversation %s?", args[0])) {
			fmt.Println("Aborted.")
			return nil
		}

		if !a.conversations.Delete(args[0]) {
			return fmt.Errorf("conversation '%s' not found", args[0])
		}
		fmt.Println("Deleted.")
		return nil
	},
}

var pinCmd = &cobra.Command{
	Use:   "pin <conversation-id>",
	Short: "Toggle a conversation's pinned flag",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		if !a.conversations.TogglePin(args[0]) {
			return fmt.Errorf("conversation '%s' not found", args[0])
		}
		return nil
	},
}

var assignCmd = &cobra.Command{
	Use:   "assign <conversation-id> <project-id>",
	Short: "Assign a conversation to a project",
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		if !a.conversations.AssignToProject(args[0], args[1]) {
			return fmt.Errorf("conversation '%s' not found", args[0])
		}
		return nil
	},
}

var convertCmd = &cobra.Command{
	Use:   "convert <conversation-id>",
	Short: "Convert a conversation into a new project",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		projectID, err := a.conversations.ConvertToProject(args[0])
		if err != nil {
			return err
		}
		fmt.Println(projectID)
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove expired, unpinned conversations",
	RunE: func(_ *cobra.Command, _ []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		removed := a.conversations.CleanupExpired(time.Now())
		fmt.Printf("Removed %d expired conversation(s).\n", removed)
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull conversations from the configured backend",
	RunE: func(_ *cobra.Command, _ []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		ctx, cancel := gocontext.WithTimeout(gocontext.Background(), a.cfg.Backend.Timeout)
		defer cancel()

		if err := a.sync.PullRemote(ctx); err != nil {
			fmt.Println("Sync failed; local data is unchanged.")
			return nil
		}
		fmt.Println("Sync complete.")
		return nil
	},
}

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects",
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	RunE: func(_ *cobra.Command, _ []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		for _, p := range a.projects.ListAll() {
			fmt.Printf("%s\t%s\t(%d conversations)\n", p.ID, p.Name, len(p.Conversations))
		}
		return nil
	},
}

var projectCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		description, _ := cmd.Flags().GetString("description")
		project, err := a.projects.Create(args[0], description)
		if err != nil {
			return err
		}
		fmt.Println(project.ID)
		return nil
	},
}

var projectRenameCmd = &cobra.Command{
	Use:   "rename <project-id> <new-name>",
	Short: "Rename a project",
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		if !a.projects.Rename(args[0], args[1]) {
			return fmt.Errorf("project '%s' not found", args[0])
		}
		return nil
	},
}

var projectDeleteCmd = &cobra.Command{
	Use:   "delete <project-id>",
	Short: "Delete a project (conversations move back to general)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		yes, _ := cmd.Flags().GetBool("yes")
		if !yes && !confirm(fmt.Sprintf("Delete project %s?", args[0])) {
			fmt.Println("Aborted.")
			return nil
		}

		if !a.projects.Delete(args[0]) {
			return fmt.Errorf("project '%s' not found", args[0])
		}
		fmt.Println("Deleted.")
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run resident: autosave, follow external store writes, poll the backend",
	RunE: func(_ *cobra.Command, _ []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		unsubscribe := a.bus.Subscribe(events.TopicStoreChanged, func(evt events.Event) {
			// External writes win over unsaved in-memory state.
			if path, ok := evt.Payload.(string); ok && path != "" {
				a.ws.Reload()
			}
		})
		defer unsubscribe()

		watcher, err := store.NewWatcher(a.store, a.bus)
		if err != nil {
			return err
		}
		if err := watcher.Start(); err != nil {
			return err
		}
		defer watcher.Stop()

		autosaver := store.NewAutosaver(a.cfg.AutosaveInterval, a.ws.Flush)
		autosaver.Start()
		defer autosaver.Stop()

		if a.cfg.Backend.Enabled {
			a.sync.StartPolling()
			defer a.sync.StopPolling()
		}

		fmt.Println("Watching store; press Ctrl-C to stop.")
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println(version.Get().String())
	},
}

// confirm asks for an explicit yes before a destructive action.
func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Set log level (debug|info|warn|error) [default: info]")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to file instead of stderr")
	rootCmd.PersistentFlags().BoolVar(&testMode, "test-mode", false, "Run in deterministic test mode")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")

	for _, flag := range []string{"log-level", "log-file", "test-mode"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			fmt.Fprintf(os.Stderr, "Error binding %s flag: %v\n", flag, err)
			os.Exit(1)
		}
	}

	addScopeFlags(listCmd)
	addScopeFlags(searchCmd)

	newCmd.Flags().String("title", "", "Conversation title (auto-derived when empty)")
	newCmd.Flags().String("message", "", "Initial user message")
	newCmd.Flags().String("project", "", "Place the conversation in a project")
	newCmd.Flags().String("agent", "", "Place the conversation in an agent collection")
	newCmd.Flags().Bool("pin", false, "Pin the conversation")
	newCmd.Flags().StringSlice("tags", nil, "Tags for the conversation")
	newCmd.Flags().Int("expiry-days", 0, "Days until expiry (0 uses the configured default)")
	newCmd.Flags().Bool("never-expire", false, "Never expire this conversation")

	deleteCmd.Flags().Bool("yes", false, "Skip the confirmation prompt")
	projectDeleteCmd.Flags().Bool("yes", false, "Skip the confirmation prompt")
	projectCreateCmd.Flags().String("description", "", "Project description")

	projectCmd.AddCommand(projectListCmd, projectCreateCmd, projectRenameCmd, projectDeleteCmd)
	rootCmd.AddCommand(listCmd, searchCmd, showCmd, newCmd, deleteCmd, pinCmd,
		assignCmd, convertCmd, cleanupCmd, syncCmd, watchCmd, projectCmd, versionCmd)
}
