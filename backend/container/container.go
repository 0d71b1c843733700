// Package container implements the container-runtime backend of §4.8:
// a bind-mount for each input plus the work dir and the command file,
// with CPU/memory/GPU limits forwarded to the runtime CLI. Stdout and
// stderr are not bind-mounted: the runtime CLI's own output streams are
// written to the stdout/stderr files in the attempt dir on the host.
// Grounded on the teacher's core/decorator Transport pattern (§4.6
// docstring in backend.go): this is the "@docker.exec"-shaped
// transport boundary, generalised to a batch task rather than an
// interactive command.
package container

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/oakflow-dev/oakflow/backend"
	"github.com/oakflow-dev/oakflow/config"
	"github.com/oakflow-dev/oakflow/containersrc"
	"github.com/oakflow-dev/oakflow/diag"
	"github.com/oakflow-dev/oakflow/events"
	"github.com/rs/zerolog"
)

// Backend drives a container runtime CLI (docker/podman-compatible
// invocation syntax) per task.
type Backend struct {
	manager   *backend.Manager
	runtime   string // "docker", "podman", ...
	guestRoot string
	cfg       *config.Config
	bus       *events.Bus
	logger    zerolog.Logger
}

// New constructs a container backend. runtime is the CLI executable
// name (e.g. "docker"); guestRoot is the in-container mount root
// localised inputs appear under.
func New(runtime string, guestRoot string, maxCPU float64, maxMemMiB int64, cfg *config.Config, bus *events.Bus, logger zerolog.Logger) *Backend {
	return &Backend{
		manager:   backend.NewManager(maxCPU, maxMemMiB),
		runtime:   runtime,
		guestRoot: guestRoot,
		cfg:       cfg,
		bus:       bus,
		logger:    logger,
	}
}

func (b *Backend) MaxConcurrency() uint64 { return 0 }

func (b *Backend) Constraints(requested backend.Constraints, hints backend.Hints, span diag.Span) (backend.Constraints, error) {
	if requested.Container == "" {
		return backend.Constraints{}, backend.AdmissionError(span, "task has no container requirement")
	}
	maxCPU, maxMemMiB := b.manager.Capacity()
	return backend.ResolveConstraints(requested, maxCPU, maxMemMiB, b.cfg.Admission, span, b.logger)
}

func (b *Backend) publish(id string, kind events.Kind) {
	if b.bus == nil {
		return
	}
	b.bus.Publish(events.Event{Kind: kind, ID: id, Name: id})
}

func (b *Backend) GuestInputsDir() (string, bool) { return b.guestRoot, b.guestRoot != "" }

func (b *Backend) NeedsLocalInputs() bool { return true }

func (b *Backend) LocalizeInputs(ctx context.Context, t backend.Transferer, inputs []backend.Input) error {
	for i, in := range inputs {
		local := in.HostPath
		if t != nil {
			rewritten, err := t.Rewrite(in.HostPath)
			if err == nil {
				local = rewritten
			}
		}
		inputs[i].GuestPath = filepath.Join(b.guestRoot, filepath.Base(local))
	}
	return nil
}

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
		if ctx.Err() != nil {
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
		return backend.Result{}, fmt.Errorf("container backend: create work dir: %w", err)
	}
	commandPath := filepath.Join(req.AttemptDir, "command")
	if err := os.WriteFile(commandPath, req.Command, 0o755); err != nil {
		return backend.Result{}, fmt.Errorf("container backend: write command: %w", err)
	}

	src := containersrc.Parse(req.Env["OAKFLOW_CONTAINER"])

	args := []string{"run", "--rm"}
	for _, in := range req.Inputs {
		mode := "ro"
		if !in.ReadOnly {
			mode = "rw"
		}
		args = append(args, "-v", fmt.Sprintf("%s:%s:%s", in.HostPath, in.GuestPath, mode))
	}
	args = append(args, "-v", fmt.Sprintf("%s:/work:rw", workDir))
	args = append(args, "-v", fmt.Sprintf("%s:/command:ro", commandPath))
	args = append(args, "-w", "/work")
	if req.Constraints.CPU > 0 {
		args = append(args, "--cpus", strconv.FormatFloat(req.Constraints.CPU, 'f', -1, 64))
	}
	if req.Constraints.MemoryMiB > 0 {
		args = append(args, "--memory", fmt.Sprintf("%dm", req.Constraints.MemoryMiB))
	}
	if req.Constraints.GPU > 0 {
		args = append(args, "--gpus", strconv.Itoa(req.Constraints.GPU))
	}
	args = append(args, src.String(), "sh", "-C", "/work/../command")

	stdoutPath := filepath.Join(req.AttemptDir, "stdout")
	stderrPath := filepath.Join(req.AttemptDir, "stderr")
	stdout, err := os.Create(stdoutPath)
	if err != nil {
		return backend.Result{}, fmt.Errorf("container backend: open stdout: %w", err)
	}
	defer stdout.Close()
	stderr, err := os.Create(stderrPath)
	if err != nil {
		return backend.Result{}, fmt.Errorf("container backend: open stderr: %w", err)
	}
	defer stderr.Close()

	cmd := exec.CommandContext(ctx, b.runtime, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	b.logger.Info().Str("id", req.ID).Str("image", src.String()).Msg("container task started")
	exitCode := 0
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return backend.Result{}, fmt.Errorf("container backend: run: %w", err)
		}
	}

	return backend.Result{ExitCode: exitCode, WorkDir: workDir, Stdout: stdoutPath, Stderr: stderrPath}, nil
}

// Cleanup restores host ownership of container-written files, since a
// container frequently writes as root (§4.8).
func (b *Backend) Cleanup(ctx context.Context, workDir string) error {
	uid := os.Getuid()
	gid := os.Getgid()
	cmd := exec.CommandContext(ctx, b.runtime, "run", "--rm", "-v", workDir+":/work",
		"busybox", "chown", "-R", fmt.Sprintf("%d:%d", uid, gid), "/work")
	return cmd.Run()
}
