// Package app wires the command-line surface: flag parsing, configuration
// loading, and dispatch to either server mode or one-shot chain execution.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"chainforge/internal/config"
	"chainforge/internal/definition"
	"chainforge/internal/logging"
	"chainforge/internal/registry"
	"chainforge/internal/scheduler"
	"chainforge/internal/server"
)

// Common errors of the application layer.
var (
	ErrUsage          = errors.New("usage error")
	ErrConfigNotFound = errors.New("configuration file not found")
	ErrMissingArgs    = errors.New("missing required arguments")
)

// configLoader defines the interface for loading configuration.
type configLoader interface {
	Load(filename string) (*config.Config, error)
}

// serveFunc runs the HTTP server until the context is cancelled.
type serveFunc func(ctx context.Context, addr string, handler http.Handler) error

type defaultConfigLoader struct{}

func (l *defaultConfigLoader) Load(filename string) (*config.Config, error) {
	return config.Load(filename)
}

func defaultServe(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logging.Logf(logging.Info, "Management API listening on %s", addr)
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logging.Logf(logging.Info, "Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// AppRunner encapsulates the application's execution logic and dependencies.
type AppRunner struct {
	configLoader configLoader
	serve        serveFunc
	stdout       io.Writer
}

// AppRunnerOpts allows configuring the AppRunner's dependencies.
type AppRunnerOpts struct {
	ConfigLoader configLoader
	Serve        serveFunc
	Stdout       io.Writer
}

// NewAppRunner creates a new application runner with default dependencies.
func NewAppRunner() *AppRunner {
	return NewAppRunnerWithOpts(AppRunnerOpts{})
}

// NewAppRunnerWithOpts creates a new AppRunner allowing dependency injection.
func NewAppRunnerWithOpts(opts AppRunnerOpts) *AppRunner {
	loader := opts.ConfigLoader
	if loader == nil {
		loader = &defaultConfigLoader{}
	}
	serve := opts.Serve
	if serve == nil {
		serve = defaultServe
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	return &AppRunner{configLoader: loader, serve: serve, stdout: stdout}
}

const usageText = `Usage:
  chainforge [options]

Options:
  -config string
        YAML server configuration file (optional)
  -serve
        Run the chain registry server
  -listen string
        Listen address, overrides the config file (default ":7600")
  -chain string
        Execute a single chain definition file (YAML or JSON) and exit
  -vars string
        JSON object of variable overrides for -chain mode
  -loglevel string
        Logging level (none, error, warn, info, debug) (default "info")
  -help
        Show help

Examples:
  Server mode:
    chainforge -serve -config=chainforge.yaml

  One-shot execution:
    chainforge -chain=login-flow.yaml -vars='{"username":"admin"}' -loglevel=debug
`

// Usage prints the command-line help information to the specified writer.
func (a *AppRunner) Usage(writer io.Writer) {
	fmt.Fprint(writer, usageText)
}

// Run parses command-line arguments and executes the appropriate mode.
func (a *AppRunner) Run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("chainforge", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	configFile := fs.String("config", "", "YAML server configuration file")
	serveMode := fs.Bool("serve", false, "Run the chain registry server")
	listenAddr := fs.String("listen", "", "Listen address override")
	chainFile := fs.String("chain", "", "Execute a single chain definition file and exit")
	varsJSON := fs.String("vars", "", "JSON object of variable overrides for -chain mode")
	logLevelStr := fs.String("loglevel", "info", "Logging level (none, error, warn, info, debug)")
	helpFlag := fs.Bool("help", false, "Show help")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			a.Usage(os.Stderr)
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if *helpFlag || len(args) == 0 {
		a.Usage(os.Stderr)
		return nil
	}

	logging.SetupLogging(*logLevelStr)

	cfg := config.Default()
	if *configFile != "" {
		if _, err := os.Stat(*configFile); err != nil {
			if os.IsNotExist(err) {
				log.Printf("[ERROR] Configuration file '%s' not found.", *configFile)
				return ErrConfigNotFound
			}
			return fmt.Errorf("failed to stat config file '%s': %w", *configFile, err)
		}
		loaded, err := a.configLoader.Load(*configFile)
		if err != nil {
			log.Printf("[ERROR] Error loading configuration '%s': %v", *configFile, err)
			return err
		}
		cfg = loaded
	}

	// A loglevel flag the user actually set wins over the config file.
	if !isFlagSet(fs, "loglevel") && cfg.Logging.Level != "" {
		logging.SetupLogging(cfg.Logging.Level)
	}
	if *listenAddr != "" {
		cfg.Listen = *listenAddr
	}

	reg := registry.New(scheduler.New(scheduler.Opts{}), cfg.Defaults)

	if *chainFile != "" {
		return a.runChainFile(ctx, reg, *chainFile, *varsJSON)
	}
	if *serveMode {
		return a.serve(ctx, cfg.Listen, server.NewHandler(reg))
	}

	logging.Logf(logging.Error, "Error: either -serve or -chain is required.")
	return ErrMissingArgs
}

// runChainFile registers a definition file in the given registry, executes it
// once, and prints the execution record as JSON. A run that does not complete
// cleanly is reported as an error so the process exit code reflects it.
func (a *AppRunner) runChainFile(ctx context.Context, reg *registry.Registry, filename, varsJSON string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read chain definition '%s': %w", filename, err)
	}
	contentType := ""
	if strings.HasSuffix(filename, ".json") {
		contentType = "application/json"
	}
	def, err := definition.Parse(data, contentType)
	if err != nil {
		return err
	}

	var overrides map[string]any
	if varsJSON != "" {
		if err := json.Unmarshal([]byte(varsJSON), &overrides); err != nil {
			return fmt.Errorf("%w: -vars must be a JSON object: %v", ErrUsage, err)
		}
	}

	id, err := reg.Create(def)
	if err != nil {
		return err
	}
	result, err := reg.Execute(ctx, id, overrides)
	if err != nil {
		return err
	}

	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode execution result: %w", err)
	}
	fmt.Fprintln(a.stdout, string(encoded))

	if result.Status != scheduler.StatusCompleted {
		return fmt.Errorf("chain '%s' finished with status %s", def.Name, result.Status)
	}
	return nil
}

// isFlagSet reports whether the user explicitly set a flag.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
