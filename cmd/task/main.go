// task is the CLI and server for property maintenance tasks.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/RaygunnerZA/property-task-pro-sub000/internal/config"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/db"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/events"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/logging"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/suggest"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/upload"
)

var (
	version = "dev"

	// Styles for CLI output
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	boldStyle    = lipgloss.NewStyle().Bold(true)
)

// app carries what every command needs: configuration, loggers and the
// identity the command acts as.
type app struct {
	configPath string
	envFile    string
	orgID      string
	userID     string

	cfg  *config.Config
	logs *logging.Logging
}

// load reads the .env file, the configuration and sets up logging.
func (a *app) load() error {
	// A missing .env file is normal outside development.
	if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", a.envFile, err)
	}
	if a.configPath == "" {
		a.configPath = config.ConfigPath()
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logs = logging.New(cfg.Log)
	if a.orgID == "" {
		a.orgID = os.Getenv("TASKPRO_ORG")
	}
	if a.userID == "" {
		a.userID = os.Getenv("TASKPRO_USER")
	}
	return nil
}

func (a *app) close() {
	if a.logs != nil {
		a.logs.Close()
	}
}

// runtime bundles the services a command opens. close releases them after
// waiting for background uploads and hooks.
type runtime struct {
	db      *db.DB
	events  *events.Emitter
	uploads *upload.Manager
	source  suggest.Source
}

func (r *runtime) close() {
	r.uploads.Wait()
	r.events.Wait()
	r.db.Close()
}

// open opens the database and wires events, uploads and suggestions.
func (a *app) open() (*runtime, error) {
	database, err := db.Open(a.cfg.DBPath)
	if err != nil {
		return nil, err
	}
	emitter := events.New(a.cfg.HooksDir, a.logs.For("hooks"))
	database.SetEventEmitter(emitter)

	storage := &upload.DirStorage{Root: a.cfg.UploadsDir, BaseURL: a.cfg.PublicURL}
	return &runtime{
		db:      database,
		events:  emitter,
		uploads: upload.NewManager(database, storage, a.logs.For("upload")),
		source:  a.suggestionSource(),
	}, nil
}

// suggestionSource prefers the model and falls back to keyword heuristics
// when no key is configured or the model is failing.
func (a *app) suggestionSource() suggest.Source {
	logger := a.logs.For("suggest")
	client := suggest.NewClient(suggest.ClientOptions{
		APIKey:  a.cfg.Suggest.APIKey,
		Model:   a.cfg.Suggest.Model,
		BaseURL: a.cfg.Suggest.BaseURL,
		Timeout: a.cfg.Suggest.Timeout,
		Logger:  logger,
	})
	return &suggest.Fallback{Primary: client, Secondary: suggest.Heuristic{}, Logger: logger}
}

// organisation returns the organisation to act in: the --org flag, or the
// only organisation there is.
func (a *app) organisation(ctx context.Context, database *db.DB) (string, error) {
	if a.orgID != "" {
		o, err := database.GetOrganisation(ctx, a.orgID)
		if err != nil {
			return "", err
		}
		if o == nil {
			return "", fmt.Errorf("organisation %s not found", a.orgID)
		}
		return o.ID, nil
	}
	orgs, err := database.ListOrganisations(ctx)
	if err != nil {
		return "", err
	}
	switch len(orgs) {
	case 0:
		return "", errors.New("no organisation yet, create one with: task org create <name>")
	case 1:
		return orgs[0].ID, nil
	}
	return "", errors.New("several organisations exist, pass --org")
}

// fail prints an error and exits.
func fail(err error) {
	fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
	os.Exit(1)
}

func main() {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:     "task",
		Short:   "Property maintenance tasks",
		Long:    "Describe maintenance work in plain words and turn it into assigned, scheduled tasks.",
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if err := a.load(); err != nil {
				fail(err)
			}
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
		SilenceUsage: true,
	}
	rootCmd.SetVersionTemplate(`{{.Version}}
`)

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Config file (default $TASKPRO_CONFIG or ~/.config/taskpro/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "Environment file to load")
	rootCmd.PersistentFlags().StringVar(&a.orgID, "org", "", "Organisation id (default $TASKPRO_ORG or the only organisation)")
	rootCmd.PersistentFlags().StringVar(&a.userID, "user", "", "Member id to act as (default $TASKPRO_USER)")

	rootCmd.AddCommand(newServeCmd(a))
	rootCmd.AddCommand(newOrgCmd(a))
	for _, cmd := range newEntityCmds(a) {
		rootCmd.AddCommand(cmd)
	}
	rootCmd.AddCommand(newCreateCmd(a))
	rootCmd.AddCommand(newListCmd(a))
	rootCmd.AddCommand(newShowCmd(a))
	rootCmd.AddCommand(newStatusCmd(a))
	rootCmd.AddCommand(newMessageCmd(a))

	if err := rootCmd.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
