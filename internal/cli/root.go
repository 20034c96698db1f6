package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/termhub/internal/client"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/domain/policy"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/paths"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/storage"
)

const requestTimeout = 10 * time.Second

// app holds what every command shares. It is built in PersistentPreRunE.
type app struct {
	serverURL string
	project   string
	storePath string
	logLevel  string

	// allProjects widens list and reconciliation to every project
	allProjects bool

	logger *logging.Logger
	store  storage.Store
	policy *policy.Policy
	rest   *client.REST
}

// NewRootCommand builds the termctl command tree
func NewRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "termctl",
		Short: "Manage terminal sessions on a termhub server",
		Long: `termctl creates, attaches to and cleans up PTY sessions hosted by a
termhub server, and keeps a per-project catalogue of them so idle sessions
are paused and stale ones reconciled.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.serverURL, "server", "s", envOr("TERMHUB_URL", "http://localhost:8000"), "server base URL")
	flags.StringVarP(&a.project, "project", "p", "", "project directory (default is the working directory)")
	flags.StringVar(&a.storePath, "store", "", "session catalogue path (default $TERMCTL_STORE or ~/.termctl/sessions.db)")
	flags.StringVar(&a.logLevel, "log-level", "warn", "log level")

	root.AddCommand(
		a.newCreateCommand(),
		a.newListCommand(),
		a.newAttachCommand(),
		a.newPauseCommand(),
		a.newResumeCommand(),
		a.newCloseCommand(),
	)

	// PostRun hooks are skipped when RunE fails; release resources either way
	for _, c := range root.Commands() {
		run := c.RunE
		c.RunE = func(cmd *cobra.Command, args []string) error {
			defer a.teardown()
			return run(cmd, args)
		}
	}
	return root
}

// Execute runs termctl with os.Args
func Execute() error {
	return NewRootCommand().Execute()
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	logger, err := logging.New(logging.CLIConfig(a.logLevel))
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	a.logger = logger

	// One trace per invocation so server logs can be matched to a command
	traceID := tracing.NewTraceID()
	cmd.SetContext(tracing.WithTraceID(cmd.Context(), traceID))
	logger.Debug("Command started", zap.String("command", cmd.Name()), zap.String("trace_id", string(traceID)))

	if a.project == "" {
		if a.project, err = os.Getwd(); err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}
	}
	if a.project, err = paths.Abs(a.project); err != nil {
		return fmt.Errorf("invalid project path: %w", err)
	}

	policyCfg, err := config.LoadPolicy()
	if err != nil {
		policyCfg = config.DefaultPolicy()
	}
	if a.storePath == "" {
		a.storePath = policyCfg.StorePath
	}

	// A missing catalogue is not fatal; the policy runs in memory
	if store, err := storage.OpenSQLite(a.storePath, logger.Component(logging.Storage)); err != nil {
		logger.Warn("Session catalogue unavailable, running in memory", zap.Error(err))
	} else {
		a.store = store
	}

	a.policy = policy.New(policy.Config{
		MaxSessions:       policyCfg.MaxSessions,
		InactivityTimeout: policyCfg.InactivityTimeout,
		BackgroundTimeout: policyCfg.BackgroundTimeout,
	}, a.store, nil, logger.Component(logging.Policy))

	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()
	a.policy.Load(ctx)
	if !a.allProjects {
		a.policy.SwitchProject(ctx, a.project)
	}

	a.rest = client.NewREST(strings.TrimRight(a.serverURL, "/"), logger.Component(logging.Client))
	return nil
}

func (a *app) teardown() {
	if a.policy != nil {
		a.policy.Shutdown()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// dial opens a stream and makes it the policy's controller
func (a *app) dial(ctx context.Context) (*client.Stream, error) {
	url := strings.TrimRight(a.serverURL, "/")
	switch {
	case strings.HasPrefix(url, "https://"):
		url = "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		url = "ws://" + strings.TrimPrefix(url, "http://")
	}

	stream, err := client.Dial(ctx, url+"/stream", a.logger.Component(logging.Client))
	if err != nil {
		return nil, err
	}
	a.policy.WithController(stream)
	return stream, nil
}

// lookup finds a catalogued session, accepting a unique ID prefix
func (a *app) lookup(arg string) (storage.Record, error) {
	if rec, ok := a.policy.Get(arg); ok {
		return rec, nil
	}

	var match []storage.Record
	for _, rec := range a.policy.Records("") {
		if strings.HasPrefix(rec.ID, arg) || strings.HasPrefix(strings.TrimPrefix(rec.ID, "term_"), arg) {
			match = append(match, rec)
		}
	}
	switch len(match) {
	case 0:
		return storage.Record{}, fmt.Errorf("no session matches %q", arg)
	case 1:
		return match[0], nil
	default:
		return storage.Record{}, fmt.Errorf("%q matches %d sessions", arg, len(match))
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
