// The mediaviewer command inspects HLS master playlists and drives the
// gallery playback core against a simulated decoder.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vijaykumawat897/capacitor-media-viewer/internal/config"
	"github.com/vijaykumawat897/capacitor-media-viewer/internal/events"
	"github.com/vijaykumawat897/capacitor-media-viewer/internal/media"
	"github.com/vijaykumawat897/capacitor-media-viewer/internal/parser"
	"github.com/vijaykumawat897/capacitor-media-viewer/internal/player"
	"github.com/vijaykumawat897/capacitor-media-viewer/internal/quality"
	"github.com/vijaykumawat897/capacitor-media-viewer/internal/server"
	"github.com/vijaykumawat897/capacitor-media-viewer/internal/variant"
	"github.com/vijaykumawat897/capacitor-media-viewer/internal/viewer"
)

const (
	version = "1.0.0"
)

type globalOptions struct {
	verbose    bool
	configPath string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:          "mediaviewer",
		Short:        "MediaViewer - adaptive gallery playback core",
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVar(&opts.verbose, "verbose", false, "Enable verbose logging")
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to a YAML configuration file")

	root.AddCommand(variantsCmd(opts))
	root.AddCommand(resolveCmd(opts))
	root.AddCommand(demoCmd(opts))
	root.AddCommand(versionCmd())

	return root
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	}))
}

func (o *globalOptions) load() (config.Config, error) {
	return config.Load(o.configPath)
}

func variantsCmd(opts *globalOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "variants <manifest-url>",
		Short: "List the quality variants of an HLS master playlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}

			variants, err := fetchVariants(cmd.Context(), cfg, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(variants)
			}
			return renderVariants(out, variants)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print variants as JSON")
	return cmd
}

func resolveCmd(opts *globalOptions) *cobra.Command {
	var width, height int

	cmd := &cobra.Command{
		Use:   "resolve <manifest-url>",
		Short: "Match decoded video dimensions to a variant label",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if height <= 0 {
				return errors.New("--height must be positive")
			}

			cfg, err := opts.load()
			if err != nil {
				return err
			}

			variants, err := fetchVariants(cmd.Context(), cfg, args[0])
			if err != nil {
				return err
			}

			label, ok := quality.ResolveActiveLabel(width, height, variants)
			if !ok {
				label = variant.Auto
			}
			fmt.Fprintln(cmd.OutOrStdout(), label)
			return nil
		},
	}
	cmd.Flags().IntVar(&width, "width", 0, "Decoded video width")
	cmd.Flags().IntVar(&height, "height", 0, "Decoded video height")
	return cmd
}

// fetchVariants fetches and parses a master playlist, reporting errors
// instead of degrading to an empty list.
func fetchVariants(ctx context.Context, cfg config.Config, manifestURL string) ([]variant.Variant, error) {
	text, err := parser.NewHTTPFetcher(cfg.FetchTimeout).FetchText(ctx, manifestURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch manifest: %w", err)
	}

	variants, err := parser.ParseMaster(strings.NewReader(text), manifestURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return variants, nil
}

func renderVariants(w io.Writer, variants []variant.Variant) error {
	if len(variants) == 0 {
		_, err := fmt.Fprintln(w, "no variants")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LABEL\tRESOLUTION\tURL")
	for _, v := range variants {
		resolution := "-"
		if v.HasResolution() {
			resolution = fmt.Sprintf("%dx%d", v.Width, v.Height)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", v.Label, resolution, v.URL)
	}
	return tw.Flush()
}

func demoCmd(opts *globalOptions) *cobra.Command {
	var (
		port     int
		tick     time.Duration
		advance  time.Duration
		duration time.Duration
	)

	cmd := &cobra.Command{
		Use:   "demo <payload.json|->",
		Short: "Show a gallery against a simulated decoder and print its events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if port < 0 || port > 65535 {
				return errors.New("--http port must be between 1 and 65535")
			}
			if tick <= 0 {
				return errors.New("--tick must be positive")
			}

			cfg, err := opts.load()
			if err != nil {
				return err
			}

			payload, err := readPayload(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			req, err := media.DecodeShowRequest(payload)
			if err != nil {
				return err
			}

			logger := newLogger(cmd.ErrOrStderr(), opts.verbose)
			logger.Info("MediaViewer demo starting", "version", version)

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if duration > 0 {
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			return runDemo(ctx, cfg, req, demoOptions{
				port:    port,
				tick:    tick,
				advance: advance,
				out:     cmd.OutOrStdout(),
			}, logger)
		},
	}
	cmd.Flags().IntVar(&port, "http", 0, "Serve the debug HTTP bridge on this port (0 disables)")
	cmd.Flags().DurationVar(&tick, "tick", 100*time.Millisecond, "Simulated decoder clock step")
	cmd.Flags().DurationVar(&advance, "advance", 0, "Move to the next item at this interval (0 disables)")
	cmd.Flags().DurationVar(&duration, "duration", 0, "Stop after this long (0 runs until interrupted)")
	return cmd
}

func readPayload(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}
	return data, nil
}

type demoOptions struct {
	port    int
	tick    time.Duration
	advance time.Duration
	out     io.Writer
}

// eventLine is the JSON form of an event printed by the demo.
type eventLine struct {
	Event string               `json:"event"`
	Index *int                 `json:"index,omitempty"`
	State *media.PlaybackState `json:"state,omitempty"`
}

func encodeEvent(e events.Event) eventLine {
	line := eventLine{Event: e.Type.String()}
	switch e.Type {
	case events.MediaIndexChanged:
		idx := e.Index
		line.Index = &idx
	case events.PlaybackStateChanged:
		st := e.State
		line.State = &st
	}
	return line
}

func runDemo(ctx context.Context, cfg config.Config, req media.ShowRequest, opts demoOptions, logger *slog.Logger) error {
	factory := &player.SimulatedFactory{Tick: opts.tick}

	v, err := viewer.New(cfg, factory, nil, nil, logger)
	if err != nil {
		return err
	}
	defer v.Close()

	enc := json.NewEncoder(opts.out)
	v.Subscribe(func(e events.Event) {
		enc.Encode(encodeEvent(e))
	})

	if err := v.Show(req); err != nil {
		return fmt.Errorf("failed to show gallery: %w", err)
	}

	if opts.port > 0 {
		srv := server.New(v, opts.port, logger)
		go func() {
			if err := srv.Start(ctx); err != nil {
				logger.Error("HTTP server error", "error", err)
			}
		}()
		logger.Info("debug bridge ready",
			"health", fmt.Sprintf("http://localhost:%d/health", opts.port),
			"metrics", fmt.Sprintf("http://localhost:%d/metrics", opts.port),
		)
	}

	var advanceC <-chan time.Time
	if opts.advance > 0 {
		ticker := time.NewTicker(opts.advance)
		defer ticker.Stop()
		advanceC = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("MediaViewer demo stopped")
			return v.Dismiss()
		case <-advanceC:
			idx, _ := v.Index()
			if err := v.Next(); err != nil {
				return err
			}
			if next, _ := v.Index(); next == idx {
				// Last item reached
				return v.Dismiss()
			}
		}
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "MediaViewer v%s\n", version)
		},
	}
}
