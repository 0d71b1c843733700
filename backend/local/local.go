// Package local implements the local-shell backend of §4.8: the
// command runs directly under the attempt directory with stdio
// redirected to files, no input localisation or container involved.
package local

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/oakflow-dev/oakflow/backend"
	"github.com/oakflow-dev/oakflow/config"
	"github.com/oakflow-dev/oakflow/diag"
	"github.com/oakflow-dev/oakflow/events"
	"github.com/rs/zerolog"
)

// Backend runs task commands as a direct child process via the shell.
type Backend struct {
	manager *backend.Manager
	cfg     *config.Config
	bus     *events.Bus
	logger  zerolog.Logger
}

// New constructs a local backend capped at the given CPU/memory
// capacity, admitted through a backend.Manager (§4.7). bus receives the
// backend's lifecycle events (§4.6, §6.5); it may be nil to disable
// publishing.
func New(maxCPU float64, maxMemMiB int64, cfg *config.Config, bus *events.Bus, logger zerolog.Logger) *Backend {
	return &Backend{manager: backend.NewManager(maxCPU, maxMemMiB), cfg: cfg, bus: bus, logger: logger}
}

func (b *Backend) MaxConcurrency() uint64 { return 0 } // no fixed limit beyond admission accounting

func (b *Backend) Constraints(requested backend.Constraints, hints backend.Hints, span diag.Span) (backend.Constraints, error) {
	maxCPU, maxMemMiB := b.manager.Capacity()
	return backend.ResolveConstraints(requested, maxCPU, maxMemMiB, b.cfg.Admission, span, b.logger)
}

func (b *Backend) publish(id string, kind events.Kind) {
	if b.bus == nil {
		return
	}
	b.bus.Publish(events.Event{Kind: kind, ID: id, Name: id})
}

func (b *Backend) GuestInputsDir() (string, bool) { return "", false }

func (b *Backend) NeedsLocalInputs() bool { return false }

func (b *Backend) LocalizeInputs(ctx context.Context, t backend.Transferer, inputs []backend.Input) error {
	for i := range inputs {
		inputs[i].GuestPath = inputs[i].HostPath
	}
	return nil
}

// Spawn writes the command to `<attempt>/command`, execs it with `sh
// -C`, and redirects stdio to `<attempt>/stdout` and `<attempt>/stderr`
// (§4.8 local-shell row).
func (b *Backend) Spawn(ctx context.Context, req backend.Request) (<-chan backend.SpawnOutcome, error) {
	b.publish(req.ID, events.TaskCreated)
	release, err := b.manager.Acquire(ctx, req.Constraints.CPU, req.Constraints.MemoryMiB)
	if err != nil {
		return nil, err
	}

	out := make(chan backend.SpawnOutcome, 1)
	go func() {
		defer release()
		b.publish(req.ID, events.TaskStarted)
		result, spawnErr := b.run(ctx, req)
		if diag.IsKind(spawnErr, diag.KindCancelled) || ctx.Err() != nil {
			b.publish(req.ID, events.TaskCancelled)
		} else if b.bus != nil {
			b.bus.Publish(events.Event{Kind: events.TaskCompleted, ID: req.ID, Name: req.ID, ExitStatus: result.ExitCode})
		}
		out <- backend.SpawnOutcome{Result: result, Err: spawnErr}
		close(out)
	}()
	return out, nil
}

func (b *Backend) run(ctx context.Context, req backend.Request) (backend.Result, error) {
	workDir := filepath.Join(req.AttemptDir, "work")
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return backend.Result{}, fmt.Errorf("local backend: create work dir: %w", err)
	}

	commandPath := filepath.Join(req.AttemptDir, "command")
	if err := os.WriteFile(commandPath, req.Command, 0o755); err != nil {
		return backend.Result{}, fmt.Errorf("local backend: write command: %w", err)
	}

	stdoutPath := filepath.Join(req.AttemptDir, "stdout")
	stderrPath := filepath.Join(req.AttemptDir, "stderr")
	stdout, err := os.Create(stdoutPath)
	if err != nil {
		return backend.Result{}, fmt.Errorf("local backend: open stdout: %w", err)
	}
	defer stdout.Close()
	stderr, err := os.Create(stderrPath)
	if err != nil {
		return backend.Result{}, fmt.Errorf("local backend: open stderr: %w", err)
	}
	defer stderr.Close()

	cmd := exec.CommandContext(ctx, "sh", "-C", commandPath)
	cmd.Dir = workDir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	for k, v := range req.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	b.logger.Info().Str("id", req.ID).Str("work_dir", workDir).Msg("local task started")
	exitCode := 0
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return backend.Result{}, fmt.Errorf("local backend: run: %w", err)
		}
	}

	return backend.Result{ExitCode: exitCode, WorkDir: workDir, Stdout: stdoutPath, Stderr: stderrPath}, nil
}

func (b *Backend) Cleanup(ctx context.Context, workDir string) error { return nil }
