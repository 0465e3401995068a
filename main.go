// Innkeeper drives end-to-end journeys against a hotel booking site in a real browser.
// It runs the suite once from the command line or watches the site on an interval,
// keeping results in sqlite and exporting them as Prometheus metrics.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/TheLab-ms/innkeeper/engine"
	"github.com/TheLab-ms/innkeeper/engine/browser"
	"github.com/TheLab-ms/innkeeper/engine/db"
	"github.com/TheLab-ms/innkeeper/modules/monitor"
	"github.com/TheLab-ms/innkeeper/modules/results"
	"github.com/TheLab-ms/innkeeper/pages"
	"github.com/TheLab-ms/innkeeper/scenario"
	"github.com/TheLab-ms/innkeeper/settings"
)

// Exit codes of the run command.
const (
	exitFailed = 1
	exitConfig = 2
)

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

type globalOptions struct {
	configPath string
	verbose    bool
	install    bool
}

func main() {
	// Drivers log through the stdlib logger. Everything here uses slog.
	log.SetOutput(io.Discard)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	cancel()
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	var ee *exitError
	var ce *settings.ConfigurationError
	var fe *scenario.FixtureError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &ee):
		return ee.code
	case errors.As(err, &ce), errors.As(err, &fe):
		return exitConfig
	default:
		return exitFailed
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "innkeeper",
		Short:         "End-to-end checks for a hotel booking site.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(cmd.ErrOrStderr(), opts.verbose)
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.json", "settings file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log every step")
	root.PersistentFlags().BoolVar(&opts.install, "install", false, "download the playwright driver and Chromium before launching")

	root.AddCommand(newRunCmd(opts), newWatchCmd(opts), newContractCmd())
	return root
}

func setupLogging(w io.Writer, verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// load reads the settings and everything derived from them that a run needs.
func load(opts *globalOptions) (*settings.Settings, *pages.Contract, browser.Launcher, error) {
	path := opts.configPath
	s, err := settings.Load(path)
	if err != nil {
		return nil, nil, nil, err
	}
	c, err := loadContract(s)
	if err != nil {
		return nil, nil, nil, &settings.ConfigurationError{Path: path, Field: "contract", Err: err}
	}
	l, err := browser.NewLauncher(s.Engine)
	if err != nil {
		return nil, nil, nil, &settings.ConfigurationError{Path: path, Field: "engine", Err: err}
	}
	switch l := l.(type) {
	case *browser.PlaywrightLauncher:
		l.Install = opts.install
	case *browser.RodLauncher:
		l.ControlURL = s.RodControlURL
	}
	return s, c, l, nil
}

func loadContract(s *settings.Settings) (*pages.Contract, error) {
	if s.ContractFile != "" {
		return pages.LoadContractFile(s.ContractFile)
	}
	return pages.LoadContract(s.Contract)
}

func newRunCmd(global *globalOptions) *cobra.Command {
	var (
		only    []string
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the suite once and exit non-zero if any scenario fails.",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, c, l, err := load(global)
			if err != nil {
				return err
			}
			suite, err := scenario.Suite(s, only...)
			if err != nil {
				return err
			}
			o, err := scenario.New(l, s, c, scenario.WithLogger(slog.Default().With("engine", s.Engine)))
			if err != nil {
				return err
			}

			all := o.RunAll(cmd.Context(), suite...)
			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(all); err != nil {
					return err
				}
			} else {
				printResults(cmd.OutOrStdout(), all)
			}

			failed := 0
			for _, res := range all {
				if !res.Passed {
					failed++
				}
			}
			if failed > 0 {
				return &exitError{code: exitFailed, err: fmt.Errorf("%d of %d scenarios failed", failed, len(all))}
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&only, "scenario", "s", nil, fmt.Sprintf("only run these scenarios %v", scenario.Names))
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print results as JSON")
	return cmd
}

func printResults(w io.Writer, all []*scenario.Result) {
	for _, res := range all {
		status := "PASS"
		if !res.Passed {
			status = "FAIL"
		}
		fmt.Fprintf(w, "%s %s (%s)\n", status, res.Scenario, res.Duration.Round(time.Millisecond))
		for _, c := range res.Checks {
			mark := "ok  "
			if !c.Passed {
				mark = "FAIL"
			}
			fmt.Fprintf(w, "    %s %s", mark, c.Name)
			if c.Message != "" {
				fmt.Fprintf(w, ": %s", c.Message)
			}
			fmt.Fprintln(w)
		}
		if !res.Passed && res.Message != "" {
			fmt.Fprintf(w, "    %s\n", res.Message)
		}
	}
}

func newWatchCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run the suite on an interval and serve results, run requests, and metrics over HTTP.",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, c, l, err := load(global)
			if err != nil {
				return err
			}
			// Fail fast on bad fixtures rather than on the first scheduled run.
			if _, err := scenario.Suite(s); err != nil {
				return err
			}
			o, err := scenario.New(l, s, c, scenario.WithLogger(slog.Default().With("engine", s.Engine)))
			if err != nil {
				return err
			}

			database, err := db.OpenDir(s.DataDir)
			if err != nil {
				return err
			}
			defer database.Close()

			router := engine.NewRouter(nil)
			router.HandleFunc("GET", "/healthz", engine.ServeHealthProbe(database))

			store := results.New(database, s.Retention.Std())
			suite := func(only ...string) ([]scenario.Scenario, error) { return scenario.Suite(s, only...) }

			app := engine.NewApp(s.HTTPAddr, router)
			app.Add(store)
			app.Add(monitor.New(database, o, suite, store, s.Interval.Std()))

			slog.Info("watching", "site", s.BaseURL, "interval", s.Interval, "addr", s.HTTPAddr)
			app.Run(cmd.Context())
			return nil
		},
	}
}

func newContractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "contract [version]",
		Short: "List the built-in selector contracts or print one as YAML.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				for _, name := range pages.Contracts() {
					suffix := ""
					if name == pages.DefaultContract {
						suffix = " (default)"
					}
					fmt.Fprintln(cmd.OutOrStdout(), name+suffix)
				}
				return nil
			}
			c, err := pages.LoadContract(args[0])
			if err != nil {
				return err
			}
			buf, err := c.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(buf)
			return err
		},
	}
}
