package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"drawgen/internal/adapter"
	"drawgen/internal/config"
	"drawgen/internal/domain"
	"drawgen/internal/logging"
	"drawgen/internal/repair"
	"drawgen/internal/stream"
)

var warnColor = color.New(color.FgYellow)

type rootOptions struct {
	configPath string
	envFile    string
	logLevel   string

	cfg       *config.Config
	logCloser io.Closer
}

// NewRootCmd builds the drawgen command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "drawgen",
		Short: "drawgen repairs, converts and stores generated diagrams",
		Long: `drawgen turns model-generated diagram descriptions into well-formed
diagrams. It repairs streamed output, converts between the diagram
description and the editing surface's element model, aligns connectors,
and keeps a revision history of stored diagrams served over MCP.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logCloser != nil {
				opts.logCloser.Close()
			}
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML config file")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Path to a .env file with DRAWGEN_* overrides")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (overrides config)")

	root.AddCommand(
		newServeCmd(opts),
		newRepairCmd(),
		newAlignCmd(opts),
		newConvertCmd(opts),
		newWatchCmd(opts),
		newGenerateCmd(opts),
		newPruneCmd(opts),
	)
	return root
}

// Execute runs the command tree. This is called by main.main().
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (o *rootOptions) setup() error {
	cfg, err := config.Load(o.configPath, o.envFile)
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	closer, err := logging.Setup(cfg.Logging)
	if err != nil {
		return err
	}
	o.cfg = cfg
	o.logCloser = closer
	return nil
}

func (o *rootOptions) converter() *adapter.Converter {
	return adapter.NewConverter(ConverterOptions(o.cfg))
}

// withApp opens the app for the duration of fn, cancelled on interrupt.
func (o *rootOptions) withApp(fn func(ctx context.Context, a *App) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := Open(o.cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// ── Commands ───────────────────────────────────────────────

func newServeCmd(opts *rootOptions) *cobra.Command {
	var serve ServeOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(ctx context.Context, a *App) error {
				return a.ServeMCP(ctx, serve)
			})
		},
	}
	cmd.Flags().StringVar(&serve.ScenePath, "canvas", "", "Scene file to use as the editing surface")
	cmd.Flags().StringVar(&serve.OpenDiagram, "open", "", "Diagram to show on the canvas at startup")
	return cmd
}

func newRepairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repair [file]",
		Short: "Recover a diagram description from raw model output",
		Long: `Reads raw model output from file or stdin and prints the recovered
JSON element array. Input with nothing recoverable prints [] and a warning.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			res := repair.FullRepair(input)
			if !res.Recovered {
				warn(cmd, "%s", res.Warning)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Text)
			return nil
		},
	}
}

func newAlignCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "align [file]",
		Short: "Snap bound connectors to the facing edges of their shapes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			res := repair.FullRepair(input)
			if !res.Recovered {
				warn(cmd, "%s", res.Warning)
			}
			fmt.Fprintln(cmd.OutOrStdout(), opts.converter().OptimizeCode(res.Text))
			return nil
		},
	}
}

func newConvertCmd(opts *rootOptions) *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:   "convert [file]",
		Short: "Convert between diagram code and editor elements",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			conv := opts.converter()

			switch to {
			case "editor":
				res := repair.FullRepair(input)
				if !res.Recovered {
					warn(cmd, "%s", res.Warning)
				}
				elements, decodeReport := adapter.Decode(res.Text)
				editor, report := conv.ToEditorModelReport(elements)
				if editor == nil {
					editor = []domain.EditorElement{}
				}
				for _, d := range append(decodeReport.Dropped, report.Dropped...) {
					warn(cmd, "dropped element %d (%s %s): %s", d.Index, d.Type, d.ID, d.Reason)
				}
				return writeJSON(cmd.OutOrStdout(), editor)
			case "diagram":
				editor, err := adapter.DecodeEditor(input)
				if err != nil {
					return err
				}
				code, err := adapter.Encode(conv.ToDiagramModel(editor))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), code)
				return nil
			default:
				return fmt.Errorf("--to must be 'editor' or 'diagram', got %q", to)
			}
		},
	}
	cmd.Flags().StringVar(&to, "to", "editor", "Target model: editor or diagram")
	return cmd
}

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var diagramID string
	cmd := &cobra.Command{
		Use:   "watch <file>",
		Short: "Save a diagram whenever its code file changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(ctx context.Context, a *App) error {
				return a.WatchFile(ctx, diagramID, args[0])
			})
		},
	}
	cmd.Flags().StringVar(&diagramID, "diagram", "", "Diagram to keep in sync")
	cmd.MarkFlagRequired("diagram")
	return cmd
}

func newGenerateCmd(opts *rootOptions) *cobra.Command {
	var diagramID string
	var quiet bool
	cmd := &cobra.Command{
		Use:   "generate [stream-file]",
		Short: "Save a diagram from a recorded generation event stream",
		Long: `Consumes a server-sent generation stream from file or stdin, shows
progress on stderr, and saves the repaired, aligned result to the diagram.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, closeFn, err := openInput(cmd, args)
			if err != nil {
				return err
			}
			defer closeFn()

			h := stream.Handler{
				OnProgress: func(p stream.Progress) {
					if !quiet {
						fmt.Fprintf(cmd.ErrOrStderr(), "[%s] %s\n", p.Stage, p.Message)
					}
				},
			}
			return opts.withApp(func(ctx context.Context, a *App) error {
				res, err := a.Diagrams().Generate(ctx, diagramID, r, h)
				if res != nil && res.Diagram != nil {
					fmt.Fprintln(cmd.OutOrStdout(), res.Diagram.Code)
				}
				if errors.Is(err, context.Canceled) && res != nil && res.Diagram != nil {
					warn(cmd, "generation interrupted; partial diagram saved")
					return nil
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&diagramID, "diagram", "", "Diagram to save into")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print progress")
	cmd.MarkFlagRequired("diagram")
	return cmd
}

func newPruneCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Trim every diagram's history to history.max-revisions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(ctx context.Context, a *App) error {
				n, err := a.Diagrams().PruneAll()
				if err != nil {
					return err
				}
				log.WithField("deleted", n).Debug("app: prune finished")
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d revisions\n", n)
				return nil
			})
		},
	}
}

// ── IO helpers ─────────────────────────────────────────────

func openInput(cmd *cobra.Command, args []string) (io.Reader, func(), error) {
	if len(args) == 0 || args[0] == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(args[0])
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func readInput(cmd *cobra.Command, args []string) (string, error) {
	r, closeFn, err := openInput(cmd, args)
	if err != nil {
		return "", err
	}
	defer closeFn()
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return string(data), nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func warn(cmd *cobra.Command, format string, a ...any) {
	warnColor.Fprintf(cmd.ErrOrStderr(), "warning: "+format+"\n", a...)
}
