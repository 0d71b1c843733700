// Package tes implements the remote task-execution-service backend of
// §4.8: locally-available inputs are uploaded to a per-run
// object-store prefix under a content-addressed key (enabling dedup
// across calls); already-remote inputs pass through by URL with
// per-scheme authentication applied; outputs are requested to land
// under a per-attempt output prefix. Preemptible tasks retry up to
// their declared budget; a service-reported cancel propagates as a
// cancellation rather than a failure.
package tes

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/oakflow-dev/oakflow/backend"
	"github.com/oakflow-dev/oakflow/containersrc"
	"github.com/oakflow-dev/oakflow/diag"
	"github.com/oakflow-dev/oakflow/events"
	"github.com/rs/zerolog"
)

// Client is the remote service's task submission API; a concrete
// implementation (GA4GH TES, a cloud batch API, etc.) adapts its wire
// protocol to this shape.
type Client interface {
	Submit(ctx context.Context, task RemoteTask) (taskID string, err error)
	// Poll returns the task's terminal outcome once it has one.
	Poll(ctx context.Context, taskID string) (RemoteOutcome, error)
	Cancel(ctx context.Context, taskID string) error
}

// RemoteTask is the service's task message (§4.8).
type RemoteTask struct {
	Image      string
	Command    []byte
	Env        map[string]string
	Inputs     []RemoteInput
	OutputURLs RemoteOutputRequest
	CPU        float64
	MemoryMiB  int64
	DiskGiB    float64
}

// RemoteInput describes one input as the service sees it: a URL, its
// guest path, and a content digest for dedup (left empty by
// buildRemoteTask).
type RemoteInput struct {
	URL       string
	GuestPath string
	Digest    string
}

// RemoteOutputRequest names the prefixes the service should upload
// the work directory, stdout, and stderr to.
type RemoteOutputRequest struct {
	WorkDirPrefix string
	StdoutPrefix  string
	StderrPrefix  string
}

// RemoteOutcome is the service's terminal report for one submission.
type RemoteOutcome struct {
	ExitCode   int
	WorkDirURL string
	StdoutURL  string
	StderrURL  string
	// Preempted is true when the service reclaimed the task rather
	// than the command itself failing.
	Preempted bool
	Cancelled bool
	Err       error
}

// Backend dispatches tasks to a remote execution service.
type Backend struct {
	client    Client
	runPrefix string // per-run object-store prefix for uploaded inputs
	bus       *events.Bus
	logger    zerolog.Logger
}

// New constructs a TES-backed backend that uploads under runPrefix.
func New(client Client, runPrefix string, bus *events.Bus, logger zerolog.Logger) *Backend {
	return &Backend{client: client, runPrefix: runPrefix, bus: bus, logger: logger}
}

// MaxConcurrency is unbounded locally: the service manages its own capacity.
func (b *Backend) MaxConcurrency() uint64 { return 0 }

// Constraints never clamps: the remote service is told the requested
// ask verbatim and arbitrates its own capacity (§4.8 remote-task row).
func (b *Backend) Constraints(requested backend.Constraints, hints backend.Hints, span diag.Span) (backend.Constraints, error) {
	return requested, nil
}

func (b *Backend) publish(id string, kind events.Kind) {
	if b.bus == nil {
		return
	}
	b.bus.Publish(events.Event{Kind: kind, ID: id, Name: id})
}

func (b *Backend) GuestInputsDir() (string, bool) { return "", false }

func (b *Backend) NeedsLocalInputs() bool { return false }

// LocalizeInputs uploads every input that is not already a remote URL,
// keyed by its content digest under b.runPrefix, and rewrites already-
// remote inputs' guest path to their (possibly re-authenticated) URL.
func (b *Backend) LocalizeInputs(ctx context.Context, t backend.Transferer, inputs []backend.Input) error {
	for i, in := range inputs {
		if isRemoteURL(in.HostPath) {
			rewritten, err := t.Rewrite(in.HostPath)
			if err != nil {
				return diag.Wrap(diag.KindIO, diag.Span{}, "tes: rewrite remote input", err)
			}
			inputs[i].GuestPath = rewritten
			continue
		}
		digest, err := digestFile(in.HostPath)
		if err != nil {
			return diag.Wrap(diag.KindIO, diag.Span{}, "tes: digest input", err)
		}
		url, err := t.Upload(ctx, in.HostPath, b.runPrefix+"/"+digest)
		if err != nil {
			return diag.Wrap(diag.KindIO, diag.Span{}, "tes: upload input", err)
		}
		inputs[i].GuestPath = url
	}
	return nil
}

func isRemoteURL(s string) bool {
	for _, scheme := range []string{"s3://", "gs://", "az://", "https://", "http://"} {
		if len(s) >= len(scheme) && s[:len(scheme)] == scheme {
			return true
		}
	}
	return false
}

func digestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Spawn submits the task and retries transparently on service-reported
// preemption up to Hints.Preemptible retries; a service-reported
// cancel is propagated; any other error fails the task (§4.8).
func (b *Backend) Spawn(ctx context.Context, req backend.Request) (<-chan backend.SpawnOutcome, error) {
	b.publish(req.ID, events.TaskCreated)
	out := make(chan backend.SpawnOutcome, 1)
	go func() {
		b.publish(req.ID, events.TaskStarted)
		result, err := b.submitWithRetry(ctx, req)
		if diag.IsKind(err, diag.KindCancelled) {
			b.publish(req.ID, events.TaskCancelled)
		} else if b.bus != nil {
			b.bus.Publish(events.Event{Kind: events.TaskCompleted, ID: req.ID, Name: req.ID, ExitStatus: result.ExitCode})
		}
		out <- backend.SpawnOutcome{Result: result, Err: err}
		close(out)
	}()
	return out, nil
}

func (b *Backend) submitWithRetry(ctx context.Context, req backend.Request) (backend.Result, error) {
	src := containersrc.Parse(req.Env["OAKFLOW_CONTAINER"])
	task := b.buildRemoteTask(req, src)

	budget := preemptibleBudget(req)
	attempt := 0
	for {
		taskID, err := b.client.Submit(ctx, task)
		if err != nil {
			return backend.Result{}, diag.Wrap(diag.KindBackendPermanent, diag.Span{}, "tes: submit", err)
		}

		outcome, err := b.client.Poll(ctx, taskID)
		if err != nil {
			return backend.Result{}, diag.Wrap(diag.KindBackendTransient, diag.Span{}, "tes: poll", err)
		}
		if outcome.Cancelled {
			return backend.Result{}, diag.Newf(diag.KindCancelled, diag.Span{}, "tes: task %s cancelled by service", taskID)
		}
		if outcome.Preempted {
			attempt++
			if attempt > budget {
				return backend.Result{}, diag.Newf(diag.KindBackendTransient, diag.Span{}, "tes: task %s preempted beyond retry budget %d", taskID, budget)
			}
			b.logger.Warn().Str("id", req.ID).Int("attempt", attempt).Msg("tes task preempted, retrying")
			continue
		}
		if outcome.Err != nil {
			return backend.Result{}, diag.Wrap(diag.KindBackendPermanent, diag.Span{}, "tes: task failed", outcome.Err)
		}
		return backend.Result{
			ExitCode: outcome.ExitCode,
			WorkDir:  outcome.WorkDirURL,
			Stdout:   outcome.StdoutURL,
			Stderr:   outcome.StderrURL,
		}, nil
	}
}

// preemptibleBudget is carried on the request's environment since
// Request has no Hints field of its own; the task evaluator sets it.
func preemptibleBudget(req backend.Request) int {
	if v, ok := req.Env["OAKFLOW_PREEMPTIBLE_RETRIES"]; ok {
		var n int
		fmt.Sscanf(v, "%d", &n)
		return n
	}
	return 0
}

func (b *Backend) buildRemoteTask(req backend.Request, src containersrc.Source) RemoteTask {
	inputs := make([]RemoteInput, len(req.Inputs))
	var totalDiskGiB float64
	for i, in := range req.Inputs {
		inputs[i] = RemoteInput{URL: in.GuestPath, GuestPath: in.GuestPath}
	}
	for _, d := range req.Constraints.Disks {
		totalDiskGiB += d.SizeGiB
	}
	totalDiskGiB += 10 // root default

	attemptPrefix := path.Join(b.runPrefix, "attempts", req.ID)
	return RemoteTask{
		Image:   src.String(),
		Command: req.Command,
		Env:     req.Env,
		Inputs:  inputs,
		OutputURLs: RemoteOutputRequest{
			WorkDirPrefix: path.Join(attemptPrefix, "work"),
			StdoutPrefix:  path.Join(attemptPrefix, "stdout"),
			StderrPrefix:  path.Join(attemptPrefix, "stderr"),
		},
		CPU:       req.Constraints.CPU,
		MemoryMiB: req.Constraints.MemoryMiB,
		DiskGiB:   totalDiskGiB,
	}
}

func (b *Backend) Cleanup(ctx context.Context, workDir string) error { return nil }
