// Package backend defines the abstract execution capability the task
// evaluator dispatches against (§4.6), generalised from the teacher's
// core/decorator Transport interface (Exec/Put/Get/Open*/Close) to the
// spawn/localise/constrain/cleanup shape a task backend needs.
package backend

import (
	"context"

	"github.com/oakflow-dev/oakflow/config"
	"github.com/oakflow-dev/oakflow/diag"
	"github.com/rs/zerolog"
)

// Constraints is the resolved hard-constraint record for one call
// (§3.4, §4.5 step 2): container, cpu, memory, disks, gpu, max-retries.
type Constraints struct {
	Container  string
	CPU        float64
	MemoryMiB  int64
	GPU        int
	FPGA       int
	Disks      []DiskMount
	MaxRetries int
}

// DiskMount is one declared disk requirement. Only the tes backend
// reads it (summing SizeGiB); Type is carried but no backend logs or
// reads it (§4.8 HPC row, DESIGN.md Open Questions).
type DiskMount struct {
	MountPoint string
	SizeGiB    float64
	Type       string
}

// Hints is the resolved advisory record for one call (§3.4).
type Hints struct {
	Preemptible int // retry budget for backend-reported preemption; 0 disables
	MaxCPU      float64
	MaxMemory   int64
	Cacheable   bool
	ShortTask   bool
}

// Input is one localised task input: its host path (after any download
// or bind-mount staging), its in-container guest path, whether it is
// mounted read-only, and whether it is a file or a directory.
type Input struct {
	Name       string
	HostPath   string
	GuestPath  string
	ReadOnly   bool
	IsDirectory bool
}

// Request is the generic task execution request assembled by the task
// evaluator and handed to a backend's Spawn (§6.3).
type Request struct {
	ID          string // call alias joined with scatter index
	Command     []byte
	Env         map[string]string
	Inputs      []Input
	Constraints Constraints
	AttemptDir  string
	TempDir     string
}

// Result is the generic task outcome a backend reports back (§6.3).
type Result struct {
	ExitCode int
	WorkDir  string // local path or remote URL
	Stdout   string
	Stderr   string
}

// Transferer uploads/downloads/rewrites remote paths on a backend's
// behalf (§1 "downloader/transferer interface", §4.10).
type Transferer interface {
	Rewrite(url string) (string, error)
	Download(ctx context.Context, url, destDir string) (localPath string, err error)
	Upload(ctx context.Context, localPath, destPrefix string) (url string, err error)
}

// Backend is the capability the task evaluator dispatches a call
// against (§4.6). LocalizeInputs, Spawn and Cleanup may suspend on
// I/O, hence the context; the other methods are synchronous.
type Backend interface {
	// MaxConcurrency is the advisory ceiling for scatter width.
	MaxConcurrency() uint64

	// Constraints validates requested (already resolved by the task
	// evaluator per §4.5 step 2's precedence) against this backend's
	// capacity, either clamping it down with a warning or failing with
	// a diagnostic labelled at span, per the engine's admission policy.
	Constraints(requested Constraints, hints Hints, span diag.Span) (Constraints, error)

	// GuestInputsDir names the in-container path under which localised
	// inputs appear, if this backend runs in a container.
	GuestInputsDir() (string, bool)

	// NeedsLocalInputs reports whether inputs must be copied/downloaded
	// to the local filesystem before Spawn.
	NeedsLocalInputs() bool

	// LocalizeInputs downloads/rewrites remote inputs to local paths
	// and sets their guest paths, in place.
	LocalizeInputs(ctx context.Context, t Transferer, inputs []Input) error

	// Spawn fires the request and returns a channel that receives
	// exactly one Result (or the ctx's cancellation is observed).
	Spawn(ctx context.Context, req Request) (<-chan SpawnOutcome, error)

	// Cleanup performs optional post-run cleanup (e.g. restoring
	// ownership of container-written files).
	Cleanup(ctx context.Context, workDir string) error
}

// SpawnOutcome is the value delivered on a Spawn channel: exactly one
// of Result or Err is meaningful.
type SpawnOutcome struct {
	Result Result
	Err    error
}

// AdmissionError is returned by Constraints (or by the task manager at
// enqueue time) when a request cannot be honoured even after clamping.
func AdmissionError(span diag.Span, format string, args ...any) error {
	return diag.Newf(diag.KindBackendAdmission, span, format, args...)
}

// ResolveConstraints applies the engine's admission policy (§4.5 step 3,
// §7 "Backend admission / constraint") to a requested resource ask
// against a backend's fixed CPU/memory capacity: HardDeny fails with an
// AdmissionError, ClampAndWarn reduces the ask to the cap and logs a
// warning. maxCPU/maxMemMiB <= 0 means "no fixed cap" (e.g. a
// service-backed backend) and always passes through unchanged.
func ResolveConstraints(requested Constraints, maxCPU float64, maxMemMiB int64, policy config.AdmissionPolicy, span diag.Span, logger zerolog.Logger) (Constraints, error) {
	if maxCPU <= 0 && maxMemMiB <= 0 {
		return requested, nil
	}
	overCPU := maxCPU > 0 && requested.CPU > maxCPU
	overMem := maxMemMiB > 0 && requested.MemoryMiB > maxMemMiB
	if !overCPU && !overMem {
		return requested, nil
	}
	if policy == config.HardDeny {
		return Constraints{}, AdmissionError(span,
			"task asks for (cpu=%.2f, mem=%dMiB) exceeding backend capacity (cpu=%.2f, mem=%dMiB)",
			requested.CPU, requested.MemoryMiB, maxCPU, maxMemMiB)
	}
	clamped := requested
	if overCPU {
		clamped.CPU = maxCPU
	}
	if overMem {
		clamped.MemoryMiB = maxMemMiB
	}
	logger.Warn().
		Float64("requested_cpu", requested.CPU).Int64("requested_mem_mib", requested.MemoryMiB).
		Float64("capacity_cpu", maxCPU).Int64("capacity_mem_mib", maxMemMiB).
		Msg("clamping task resource ask to backend capacity")
	return clamped, nil
}
