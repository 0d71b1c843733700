// Package hpc implements the HPC batch + container backend of §4.8: a
// generated shell script exports per-input mount specs through an
// environment variable (avoiding argv length limits), invokes the
// container runtime with `--containall --cleanenv --cwd
// guest_work_dir`, and is submitted to the batch scheduler
// synchronously. Partition/queue selection follows a fixed priority
// ladder: FPGA > GPU > short-task > default.
package hpc

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/oakflow-dev/oakflow/backend"
	"github.com/oakflow-dev/oakflow/config"
	"github.com/oakflow-dev/oakflow/diag"
	"github.com/oakflow-dev/oakflow/events"
	"github.com/rs/zerolog"
)

// Partition names the scheduler queue selected by the priority ladder.
type Partition string

const (
	PartitionFPGA      Partition = "fpga"
	PartitionGPU       Partition = "gpu"
	PartitionShortTask Partition = "short"
	PartitionDefault   Partition = "default"
)

// SelectPartition applies the fixed priority ladder of §4.8: a task
// asking for FPGA wins over one asking for GPU, which wins over a
// hinted short task, which falls back to the default partition.
func SelectPartition(c backend.Constraints, h backend.Hints) Partition {
	switch {
	case c.FPGA > 0:
		return PartitionFPGA
	case c.GPU > 0:
		return PartitionGPU
	case h.ShortTask:
		return PartitionShortTask
	default:
		return PartitionDefault
	}
}

// Backend submits tasks to a Slurm-compatible batch scheduler,
// executing each inside a Singularity/Apptainer container.
type Backend struct {
	manager       *backend.Manager
	submitCommand string // e.g. "sbatch", "srun"
	containerCmd  string // e.g. "singularity", "apptainer"
	guestWorkDir  string
	cfg           *config.Config
	bus           *events.Bus
	logger        zerolog.Logger
}

// New constructs an HPC backend.
func New(submitCommand, containerCmd, guestWorkDir string, maxCPU float64, maxMemMiB int64, cfg *config.Config, bus *events.Bus, logger zerolog.Logger) *Backend {
	return &Backend{
		manager:       backend.NewManager(maxCPU, maxMemMiB),
		submitCommand: submitCommand,
		containerCmd:  containerCmd,
		guestWorkDir:  guestWorkDir,
		cfg:           cfg,
		bus:           bus,
		logger:        logger,
	}
}

func (b *Backend) MaxConcurrency() uint64 { return 0 }

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

func (b *Backend) GuestInputsDir() (string, bool) { return b.guestWorkDir, true }

func (b *Backend) NeedsLocalInputs() bool { return true }

func (b *Backend) LocalizeInputs(ctx context.Context, t backend.Transferer, inputs []backend.Input) error {
	for i, in := range inputs {
		inputs[i].GuestPath = filepath.Join(b.guestWorkDir, filepath.Base(in.HostPath))
	}
	return nil
}

// mountSpec serialises one input's host:guest:mode mapping for the
// environment-variable mount list (§4.8: "to avoid arg-length limits").
func mountSpec(in backend.Input) string {
	mode := "ro"
	if !in.ReadOnly {
		mode = "rw"
	}
	return fmt.Sprintf("%s:%s:%s", in.HostPath, in.GuestPath, mode)
}

func (b *Backend) generateScript(req backend.Request, src string, partition Partition) string {
	mounts := make([]string, len(req.Inputs))
	for i, in := range req.Inputs {
		mounts[i] = mountSpec(in)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "#!/bin/sh\n")
	fmt.Fprintf(&sb, "#SBATCH --partition=%s\n", partition)
	if req.Constraints.CPU > 0 {
		fmt.Fprintf(&sb, "#SBATCH --cpus-per-task=%d\n", int(req.Constraints.CPU))
	}
	if req.Constraints.MemoryMiB > 0 {
		fmt.Fprintf(&sb, "#SBATCH --mem=%dM\n", req.Constraints.MemoryMiB)
	}
	fmt.Fprintf(&sb, "export OAKFLOW_MOUNTS=%q\n", strings.Join(mounts, ","))
	fmt.Fprintf(&sb, "%s exec --containall --cleanenv --cwd %s %s sh -C %s\n",
		b.containerCmd, b.guestWorkDir, src, filepath.Join(req.AttemptDir, "command"))
	return sb.String()
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
		return backend.Result{}, fmt.Errorf("hpc backend: create work dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(req.AttemptDir, "command"), req.Command, 0o755); err != nil {
		return backend.Result{}, fmt.Errorf("hpc backend: write command: %w", err)
	}

	hints := backend.Hints{ShortTask: req.Env["OAKFLOW_SHORT_TASK"] == "true"}
	partition := SelectPartition(req.Constraints, hints)
	src := req.Env["OAKFLOW_CONTAINER"]
	script := b.generateScript(req, src, partition)
	scriptPath := filepath.Join(req.AttemptDir, "batch.sh")
	if err := os.WriteFile(scriptPath, []byte(script), 0o755); err != nil {
		return backend.Result{}, fmt.Errorf("hpc backend: write batch script: %w", err)
	}

	stdoutPath := filepath.Join(req.AttemptDir, "stdout")
	stderrPath := filepath.Join(req.AttemptDir, "stderr")
	stdout, err := os.Create(stdoutPath)
	if err != nil {
		return backend.Result{}, fmt.Errorf("hpc backend: open stdout: %w", err)
	}
	defer stdout.Close()
	stderr, err := os.Create(stderrPath)
	if err != nil {
		return backend.Result{}, fmt.Errorf("hpc backend: open stderr: %w", err)
	}
	defer stderr.Close()

	// Synchronous submission: the wrapper's exit code is the batch
	// script's, which is the command's in nominal cases (§4.8).
	cmd := exec.CommandContext(ctx, b.submitCommand, "--wait", scriptPath)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	b.logger.Info().Str("id", req.ID).Str("partition", string(partition)).Msg("hpc task submitted")
	exitCode := 0
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return backend.Result{}, fmt.Errorf("hpc backend: submit: %w", err)
		}
	}

	return backend.Result{ExitCode: exitCode, WorkDir: workDir, Stdout: stdoutPath, Stderr: stderrPath}, nil
}

func (b *Backend) Cleanup(ctx context.Context, workDir string) error { return nil }
