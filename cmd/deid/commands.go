package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"document-deidentifier/internal/api"
	"document-deidentifier/internal/config"
	"document-deidentifier/internal/deid"
	"document-deidentifier/internal/mapstore"
	"document-deidentifier/internal/pipeline"
)

type rootOptions struct {
	configFile string
	envFile    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "deid",
		Short: "Reversible de-identification of documents",
		Long: `deid replaces personally identifiable information in documents with
realistic synthetic values and records a replacement map, so the originals
can be restored later or highlighted in the source PDF.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "deid.yaml", "config file (.yaml, .yml or .toml)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before configuration")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	root.AddCommand(
		newDeidentifyCmd(opts),
		newReidentifyCmd(opts),
		newVisualizeCmd(opts),
		newServeCmd(opts),
		newMapsCmd(opts),
	)
	return root
}

// loadApp reads .env, loads configuration and wires the components.
func loadApp(cmd *cobra.Command, opts *rootOptions) (*app, error) {
	if opts.envFile != "" {
		if err := godotenv.Load(opts.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", opts.envFile, err)
		}
	}
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	return newApp(cfg, cmd.ErrOrStderr())
}

// runOptions are the flags shared by deidentify and reidentify.
type runOptions struct {
	outDir string
	format string
	mapRef string
}

func (o *runOptions) bind(cmd *cobra.Command, outHelp string) {
	cmd.Flags().StringVarP(&o.outDir, "output-dir", "o", "output", outHelp)
	cmd.Flags().StringVarP(&o.format, "format", "f", "", "output extension, e.g. json or txt (default: same as input)")
}

func newDeidentifyCmd(opts *rootOptions) *cobra.Command {
	var ro runOptions
	cmd := &cobra.Command{
		Use:   "deidentify <file|dir>",
		Short: "Replace PII in a file or every supported file in a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, opts, args[0], pipeline.Deidentify, ro)
		},
	}
	ro.bind(cmd, "directory for processed files and maps")
	return cmd
}

func newReidentifyCmd(opts *rootOptions) *cobra.Command {
	var ro runOptions
	cmd := &cobra.Command{
		Use:   "reidentify <file|dir>",
		Short: "Restore original values using a replacement map",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, opts, args[0], pipeline.Reidentify, ro)
		},
	}
	ro.bind(cmd, "directory for restored files")
	cmd.Flags().StringVarP(&ro.mapRef, "map", "m", "", "replacement map file or stored run ID")
	_ = cmd.MarkFlagRequired("map")
	return cmd
}

func runPipeline(cmd *cobra.Command, opts *rootOptions, in string, mode pipeline.Mode, ro runOptions) error {
	a, err := loadApp(cmd, opts)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck // best-effort on exit
	a.pipeline.OutputFormat = ro.format
	outDir := ro.outDir

	var m deid.ReplacementMap
	if mode == pipeline.Reidentify {
		if m, err = a.pipeline.LoadMap(ro.mapRef); err != nil {
			return err
		}
	}

	info, err := os.Stat(in)
	if err != nil {
		return err
	}
	var results []pipeline.Result
	if info.IsDir() {
		results, err = a.pipeline.ProcessDir(cmd.Context(), in, outDir, mode, m)
	} else {
		var res pipeline.Result
		res, err = a.pipeline.ProcessFile(cmd.Context(), in, outDir, mode, m)
		if err == nil {
			results = append(results, res)
		}
	}
	if mode == pipeline.Deidentify && !mapstore.Persistent(a.store) {
		// The in-memory store dies with the process.
		a.log.Warn("maps", "no map store path configured, run IDs are not kept; use the map files to reidentify")
		for i := range results {
			results[i].RunID = ""
		}
	}
	printResults(cmd.OutOrStdout(), results)
	return err
}

func printResults(w io.Writer, results []pipeline.Result) {
	for _, r := range results {
		fmt.Fprintf(w, "%s -> %s (%d replacements)\n", r.Input, r.Output, r.Replacements)
		if r.MappingsPath != "" {
			fmt.Fprintf(w, "  map: %s\n", r.MappingsPath)
		}
		if r.RunID != "" {
			fmt.Fprintf(w, "  run: %s\n", r.RunID)
		}
	}
}

func newVisualizeCmd(opts *rootOptions) *cobra.Command {
	var out, mapRef string
	cmd := &cobra.Command{
		Use:   "visualize <pdf>",
		Short: "Highlight the original values of a replacement map in a PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck // best-effort on exit

			res, err := a.pipeline.Visualize(cmd.Context(), args[0], mapRef, out)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%d occurrences)\n", res.Input, res.Output, res.Replacements)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "output", "", "annotated output path, .pdf or .json (default <stem>_visualized.pdf)")
	cmd.Flags().StringVarP(&mapRef, "map", "m", "", "replacement map file or stored run ID")
	_ = cmd.MarkFlagRequired("map")
	return cmd
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck // best-effort on exit
			printBanner(cmd.OutOrStdout(), a.cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := api.New(a.cfg, a.engine, a.store, a.metrics, a.log.Named("API")).HTTPServer()
			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			a.log.Info("shutdown", "shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
}

func newMapsCmd(opts *rootOptions) *cobra.Command {
	maps := &cobra.Command{
		Use:   "maps",
		Short: "Inspect stored replacement maps",
	}
	maps.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List stored runs",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := loadApp(cmd, opts)
				if err != nil {
					return err
				}
				defer a.Close() //nolint:errcheck // best-effort on exit
				recs, err := a.store.List()
				if err != nil {
					return err
				}
				recordsTable(cmd.OutOrStdout(), recs)
				return nil
			},
		},
		&cobra.Command{
			Use:   "show <run-id>",
			Short: "Print a stored map as JSON",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := loadApp(cmd, opts)
				if err != nil {
					return err
				}
				defer a.Close() //nolint:errcheck // best-effort on exit
				rec, err := a.store.Get(args[0])
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetEscapeHTML(false)
				enc.SetIndent("", "  ")
				return enc.Encode(rec)
			},
		},
	)
	return maps
}
