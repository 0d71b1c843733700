// Command oakflow is a thin run/inspect front end over the engine
// package: it loads a document.json + inputs.json pair from disk,
// wires a backend and the supporting services from flags, and prints
// the run's outcome. Mirrors the teacher's cli/main.go entry point:
// cobra root command, signal-driven cancellable context, exit code
// carried out of RunE rather than calling os.Exit mid-function.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/oakflow-dev/oakflow/ast"
	"github.com/oakflow-dev/oakflow/backend"
	localbackend "github.com/oakflow-dev/oakflow/backend/local"
	containerbackend "github.com/oakflow-dev/oakflow/backend/container"
	hpcbackend "github.com/oakflow-dev/oakflow/backend/hpc"
	"github.com/oakflow-dev/oakflow/cache"
	"github.com/oakflow-dev/oakflow/config"
	"github.com/oakflow-dev/oakflow/docjson"
	"github.com/oakflow-dev/oakflow/engine"
	"github.com/oakflow-dev/oakflow/events"
	"github.com/oakflow-dev/oakflow/value"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "oakflow: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "oakflow",
		Short:         "Evaluate dataflow workflow documents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(runCmd())
	root.AddCommand(inspectCmd())
	return root
}

func newCancellableContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()
	return ctx, cancel
}

func runCmd() *cobra.Command {
	var (
		docPath      string
		inputsPath   string
		runDir       string
		cacheDir     string
		backendName  string
		containerRT  string
		guestRoot    string
		submitCmd    string
		containerCmd string
		guestWorkDir string
		maxCPU       float64
		maxMemMiB    int64
		cacheMode    string
		admission    string
		cancellation string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a workflow document against a backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadDocument(docPath)
			if err != nil {
				return err
			}
			rawInputs, err := loadInputs(inputsPath)
			if err != nil {
				return err
			}

			cfg := config.New(
				withCacheModeFlag(cacheMode),
				withAdmissionFlag(admission),
				withCancellationFlag(cancellation),
			)

			bus := events.NewBus()
			unsubscribe := logEvents(bus, cfg.Logger())
			defer unsubscribe()

			be, err := selectBackend(backendName, backendOpts{
				maxCPU: maxCPU, maxMemMiB: maxMemMiB, cfg: cfg, bus: bus,
				logger: *cfg.Logger(), containerRuntime: containerRT, guestRoot: guestRoot,
				submitCommand: submitCmd, containerCmd: containerCmd, guestWorkDir: guestWorkDir,
			})
			if err != nil {
				return err
			}

			var fileCache cache.Cache
			if cacheDir != "" {
				fc, err := cache.NewFileCache(cacheDir)
				if err != nil {
					return fmt.Errorf("open cache directory: %w", err)
				}
				fileCache = cache.NewDeduped(fc)
			}

			eng := engine.New(cfg, be, nil, fileCache, value.LocalPathResolver{}, bus)

			ctx, cancel := newCancellableContext()
			defer cancel()

			runID, outputs, err := eng.Run(ctx, doc, rawInputs, runDir)
			if err != nil {
				return err
			}

			out, err := value.ToJSON(outputs)
			if err != nil {
				return fmt.Errorf("marshal outputs: %w", err)
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			fmt.Fprintf(os.Stderr, "run %s completed\n", runID)
			return enc.Encode(out)
		},
	}

	cmd.Flags().StringVar(&docPath, "document", "", "path to a document.json file (required)")
	cmd.Flags().StringVar(&inputsPath, "inputs", "", "path to an inputs.json file (required)")
	cmd.Flags().StringVar(&runDir, "run-dir", ".", "base directory new run directories are created under")
	cmd.Flags().StringVar(&cacheDir, "cache-dir", "", "content-addressed task cache directory (disabled if empty)")
	cmd.Flags().StringVar(&backendName, "backend", "local", "execution backend: local, container, hpc")
	cmd.Flags().StringVar(&containerRT, "container-runtime", "docker", "container runtime binary (container backend)")
	cmd.Flags().StringVar(&guestRoot, "guest-root", "/oakflow", "guest-side working root (container backend)")
	cmd.Flags().StringVar(&submitCmd, "submit-command", "sbatch", "cluster submission command (hpc backend)")
	cmd.Flags().StringVar(&containerCmd, "container-command", "singularity", "guest container command (hpc backend)")
	cmd.Flags().StringVar(&guestWorkDir, "guest-work-dir", "/oakflow", "guest-side working directory (hpc backend)")
	cmd.Flags().Float64Var(&maxCPU, "max-cpu", 4, "backend CPU capacity")
	cmd.Flags().Int64Var(&maxMemMiB, "max-mem-mib", 8192, "backend memory capacity in MiB")
	cmd.Flags().StringVar(&cacheMode, "cache-mode", "enabled", "enabled, disabled, read-only")
	cmd.Flags().StringVar(&admission, "admission", "clamp", "clamp, deny")
	cmd.Flags().StringVar(&cancellation, "cancellation", "eager", "eager, lazy")
	_ = cmd.MarkFlagRequired("document")
	_ = cmd.MarkFlagRequired("inputs")

	return cmd
}

func inspectCmd() *cobra.Command {
	var docPath string
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print a document's workflow inputs, outputs, and tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadDocument(docPath)
			if err != nil {
				return err
			}
			if doc.Workflow == nil {
				return fmt.Errorf("document has no workflow")
			}
			wf := doc.Workflow
			fmt.Printf("workflow %s\n", wf.Name)
			fmt.Println("inputs:")
			for _, f := range wf.Inputs {
				fmt.Printf("  %s: %s\n", f.Name, f.Type.String())
			}
			fmt.Println("outputs:")
			for _, f := range wf.Outputs {
				fmt.Printf("  %s: %s\n", f.Name, f.Type.String())
			}
			fmt.Println("tasks:")
			for name, t := range doc.Tasks {
				fmt.Printf("  %s (%d inputs, %d outputs)\n", name, len(t.Inputs), len(t.Outputs))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&docPath, "document", "", "path to a document.json file (required)")
	_ = cmd.MarkFlagRequired("document")
	return cmd
}

func loadDocument(path string) (*ast.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	doc, err := docjson.UnmarshalDocument(raw)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func loadInputs(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read inputs: %w", err)
	}
	return engine.DecodeInputsJSON(raw)
}

func withCacheModeFlag(mode string) config.Option {
	switch mode {
	case "disabled":
		return config.WithCacheMode(config.CacheDisabled)
	case "read-only":
		return config.WithCacheMode(config.CacheReadOnly)
	default:
		return config.WithCacheMode(config.CacheEnabled)
	}
}

func withAdmissionFlag(policy string) config.Option {
	if policy == "deny" {
		return config.WithAdmissionPolicy(config.HardDeny)
	}
	return config.WithAdmissionPolicy(config.ClampAndWarn)
}

func withCancellationFlag(mode string) config.Option {
	if mode == "lazy" {
		return config.WithCancellation(config.Lazy)
	}
	return config.WithCancellation(config.Eager)
}

type backendOpts struct {
	maxCPU           float64
	maxMemMiB        int64
	cfg              *config.Config
	bus              *events.Bus
	logger           zerolog.Logger
	containerRuntime string
	guestRoot        string
	submitCommand    string
	containerCmd     string
	guestWorkDir     string
}

func selectBackend(name string, o backendOpts) (backend.Backend, error) {
	switch name {
	case "local":
		return localbackend.New(o.maxCPU, o.maxMemMiB, o.cfg, o.bus, o.logger), nil
	case "container":
		return containerbackend.New(o.containerRuntime, o.guestRoot, o.maxCPU, o.maxMemMiB, o.cfg, o.bus, o.logger), nil
	case "hpc":
		return hpcbackend.New(o.submitCommand, o.containerCmd, o.guestWorkDir, o.maxCPU, o.maxMemMiB, o.cfg, o.bus, o.logger), nil
	default:
		return nil, fmt.Errorf("unknown backend %q (local, container, hpc; tes requires a Client and is not flag-selectable)", name)
	}
}

func logEvents(bus *events.Bus, logger *zerolog.Logger) func() {
	ch, unsubscribe := bus.Subscribe(64)
	go func() {
		for ev := range ch {
			logger.Info().
				Str("kind", ev.Kind.String()).
				Str("id", ev.ID).
				Str("name", ev.Name).
				Int("exit_status", ev.ExitStatus).
				Msg("task event")
		}
	}()
	return unsubscribe
}
