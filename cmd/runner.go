package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/pulse/internal/mirror"
	"github.com/desertthunder/pulse/internal/shared"
	"github.com/desertthunder/pulse/internal/store"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

// SetLogger replaces the logger used by subsequent commands.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, serveCommand, playCommand, libraryCommand, communityCommand, settingsCommand, pagesCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// backend is the store a command works against and the identity it acts as.
type backend struct {
	store   store.Store
	ctx     context.Context
	isAdmin func(ctx context.Context) bool
	close   func()
}

// storeFlags select between the local database and a sync server.
func storeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "remote",
			Usage: "Use the sync server from [client] instead of the local database",
		},
		&cli.BoolFlag{
			Name:  "visitor",
			Usage: "Act as an anonymous visitor on the local database",
		},
	}
}

// openBackend opens the store selected by the command's flags.
//
// The local database is used as the administrator unless --visitor is set. A remote session is
// whoever the server maps the configured client token to.
func (r *Runner) openBackend(ctx context.Context, cmd *cli.Command) (*backend, error) {
	if cmd.Bool("remote") {
		return r.openRemote(ctx)
	}
	return r.openLocal(ctx, cmd.Bool("visitor"))
}

func (r *Runner) openLocal(ctx context.Context, visitor bool) (*backend, error) {
	db, err := r.openDatabase()
	if err != nil {
		return nil, err
	}

	rules := store.Rules{AdminEmail: r.config.Admin.Email}
	local := store.NewLocal(db, rules, r.logger)

	if !visitor {
		ctx = shared.WithIdentity(ctx, r.config.Admin.Email)
	}

	return &backend{
		store:   local,
		ctx:     ctx,
		isAdmin: func(ctx context.Context) bool { return rules.IsAdmin(shared.IdentityFrom(ctx)) },
		close: func() {
			local.Close()
			db.Close()
		},
	}, nil
}

func (r *Runner) openRemote(ctx context.Context) (*backend, error) {
	if r.config.Client.URL == "" {
		return nil, fmt.Errorf("%w: client.url", shared.ErrMissingConfig)
	}

	remote := store.NewRemote(r.config.Client, r.logger)
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := remote.Run(runCtx); err != nil {
			r.logger.Error("sync connection ended", "error", err)
		}
	}()

	stop := func() {
		cancel()
		<-done
	}

	select {
	case <-remote.Ready():
	case <-time.After(r.requestTimeout()):
		stop()
		return nil, fmt.Errorf("%w: no connection to %s", shared.ErrServiceUnavailable, r.config.Client.URL)
	case <-ctx.Done():
		stop()
		return nil, ctx.Err()
	}

	admin := r.config.Client.Token != ""
	return &backend{
		store:   remote,
		ctx:     ctx,
		isAdmin: func(context.Context) bool { return admin },
		close:   stop,
	}, nil
}

// openDatabase opens the configured database. Migrations are left to `setup database`.
func (r *Runner) openDatabase() (*sql.DB, error) {
	if r.config.Database.Path != ":memory:" {
		if _, err := os.Stat(r.config.Database.Path); err != nil {
			return nil, fmt.Errorf("%w: database %s not found, run `pulse setup database`", shared.ErrMissingConfig, r.config.Database.Path)
		}
	}

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)
	return db, nil
}

func (r *Runner) requestTimeout() time.Duration {
	if r.config.Client.RequestTimeout > 0 {
		return time.Duration(r.config.Client.RequestTimeout) * time.Millisecond
	}
	return 10 * time.Second
}

// loadMirror activates a read-only mirror over b and waits until every named collection has
// arrived or failed. Reads through the CLI are not counted as visits.
func (r *Runner) loadMirror(b *backend, collections ...string) (*mirror.Mirror, error) {
	marker := mirror.NewMemoryMarker()
	marker.MarkCounted()
	m := mirror.New(b.store, nil, marker, r.config.Site.DefaultFolder, r.logger)

	changed := make(chan struct{}, 1)
	unsub := m.OnChange(func(string) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsub()

	m.Activate(b.ctx)

	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(r.requestTimeout())

	for {
		pending := 0
		for _, c := range collections {
			if err := m.Err(c); err != nil {
				m.Deactivate()
				return nil, fmt.Errorf("failed to load %s: %w", c, err)
			}
			if !m.Loaded(c) {
				pending++
			}
		}
		if pending == 0 {
			return m, nil
		}

		select {
		case <-changed:
		case <-ticker.C:
		case <-deadline:
			m.Deactivate()
			return nil, fmt.Errorf("failed to load collections: %w", shared.ErrTimeout)
		case <-b.ctx.Done():
			m.Deactivate()
			return nil, b.ctx.Err()
		}
	}
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
