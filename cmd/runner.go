package main

import (
	"bufio"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/bpmx/internal/repositories"
	"github.com/desertthunder/bpmx/internal/resources"
	"github.com/desertthunder/bpmx/internal/services"
	"github.com/desertthunder/bpmx/internal/shared"
	"github.com/desertthunder/bpmx/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	creds      *services.Credentials
	api        *services.APIService
	backend    *services.BackendService
	storage    *services.ObjectWriter
	engine     *tasks.Engine
	fetcher    *resources.Fetcher
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	input      *bufio.Reader

	db *sql.DB
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config      *shared.Config
	ConfigPath  string
	Credentials *services.Credentials
	HTTPClient  *http.Client
	Logger      *log.Logger
	Output      io.Writer
	Input       io.Reader
	DB          *sql.DB
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
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Config.API.Timeout.Duration}
	}
	if opts.Credentials == nil {
		opts.Credentials = services.NewCredentials(opts.Config.Auth.TokenPath)
	}

	api := services.NewAPIService(opts.Config.API.BaseURL, opts.HTTPClient, opts.Credentials)
	backend := services.NewBackendService(api)
	jobs := opts.Config.Jobs

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		creds:      opts.Credentials,
		api:        api,
		backend:    backend,
		// uploads can outlast the API timeout, so the storage client has none
		storage: services.NewObjectWriter(&http.Client{Transport: opts.HTTPClient.Transport}),
		engine: tasks.NewEngine(backend, tasks.JobOptions{
			PollInterval:    jobs.PollInterval.Duration,
			AnalysisTimeout: jobs.AnalysisTimeout.Duration,
			RenderTimeout:   jobs.RenderTimeout.Duration,
			Workers:         jobs.Workers,
			RateLimit:       jobs.RateLimit,
		}),
		fetcher:    resources.NewFetcher(api, opts.Config.Storage.CacheDir),
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		input:      bufio.NewReader(opts.Input),
		db:         opts.DB,
	}
}

// SetLogger swaps the logger used by commands.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, tracksCommand, analyzeCommand, renderCommand, playCommand, apiCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// database opens the configured sqlite database on first use.
func (r *Runner) database() (*sql.DB, error) {
	if r.db != nil {
		return r.db, nil
	}
	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return nil, err
	}
	r.db = db
	return db, nil
}

// uploads returns the upload journal, or nil when the database is unavailable.
func (r *Runner) uploads() *repositories.UploadRepository {
	db, err := r.database()
	if err != nil {
		r.logger.Warn("upload journal unavailable", "error", err)
		return nil
	}
	return repositories.NewUploadRepository(db)
}

// Close releases the database connection.
func (r *Runner) Close() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// prompt reads one line from the runner's input after writing label.
func (r *Runner) prompt(label string) (string, error) {
	if err := r.writePlain("%s: ", label); err != nil {
		return "", err
	}
	line, err := r.input.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// drain prints progress updates until ch is closed, then signals done.
func (r *Runner) drain(ch <-chan tasks.ProgressUpdate, print func(tasks.ProgressUpdate)) <-chan struct{} {
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for update := range ch {
			print(update)
		}
	}()
	return finished
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

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
