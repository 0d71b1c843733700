// Package config defines the engine's immutable configuration handle:
// one value built once at startup and threaded everywhere (§5, §7), as
// the teacher threads its *types.ValidationConfig rather than reaching
// for package-level globals.
package config

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// CancellationMode selects how a run reacts to the first task failure (§5).
type CancellationMode int

const (
	// Eager cancels all peers and fails the run immediately.
	Eager CancellationMode = iota
	// Lazy lets running tasks finish; no new tasks start; the run
	// fails after quiescence.
	Lazy
)

// AdmissionPolicy selects the behaviour when a task's resource ask
// exceeds a backend's advertised capacity (§4.5 step 3, §7).
type AdmissionPolicy int

const (
	// ClampAndWarn reduces the request to the backend's cap and logs a warning.
	ClampAndWarn AdmissionPolicy = iota
	// HardDeny fails the call with a backend-admission diagnostic.
	HardDeny
)

// CacheMode controls whether the task evaluator consults the
// content-addressed cache before dispatch (§4.5 step 6).
type CacheMode int

const (
	CacheEnabled CacheMode = iota
	CacheDisabled
	// CacheReadOnly consults the cache but never writes new entries.
	CacheReadOnly
)

// StorageCredential is a per-bucket/container credential for the
// transfer package's auth-apply step (§4.10).
type StorageCredential struct {
	Bucket string
	Query  string // pre-encoded query string fragment to attach
}

// Config is the engine's immutable configuration. Construct with New
// and do not mutate afterward; every field is read concurrently from
// goroutines across the workflow evaluator, task evaluator, and
// backends.
type Config struct {
	Cancellation CancellationMode
	Admission    AdmissionPolicy
	Cache        CacheMode

	DefaultLanguageVersion string

	// MaxScatterConcurrency bounds scatter fan-out width when a backend
	// advertises no tighter limit (§5 backpressure).
	MaxScatterConcurrency int

	// DefaultContainer/DefaultCPU/DefaultMemoryMiB/DefaultMaxRetries are
	// the engine-default tier of the requirements precedence ladder
	// (§3.4: explicit input-file override > per-call expression >
	// workflow default > engine default). This AST has no workflow-level
	// requirements block, so the "workflow default" tier collapses into
	// this one; see DESIGN.md.
	DefaultContainer  string
	DefaultCPU        float64
	DefaultMemoryMiB  int64
	DefaultMaxRetries int

	S3Region         string
	S3Credentials    map[string]StorageCredential
	GCSCredentials   map[string]StorageCredential
	AzureCredentials map[string]StorageCredential
	// AzureDefaultAccount is the storage account assumed for an az://
	// URL whose host names a container rather than a fully-qualified
	// "<account>.blob.core.windows.net" endpoint (§4.10).
	AzureDefaultAccount string
	// AzureRootContainerName is the special container name that binds
	// to the account-level (rather than per-container) credential.
	AzureRootContainerName string

	BackendTimeout time.Duration

	logger zerolog.Logger
}

// Option mutates a Config under construction.
type Option func(*Config)

// WithCancellation sets the run's cancellation mode.
func WithCancellation(m CancellationMode) Option {
	return func(c *Config) { c.Cancellation = m }
}

// WithAdmissionPolicy sets the over-capacity resolution policy.
func WithAdmissionPolicy(p AdmissionPolicy) Option {
	return func(c *Config) { c.Admission = p }
}

// WithCacheMode sets the content-addressed cache mode.
func WithCacheMode(m CacheMode) Option {
	return func(c *Config) { c.Cache = m }
}

// WithWriter redirects structured log output (defaults to os.Stderr).
func WithWriter(w io.Writer) Option {
	return func(c *Config) { c.logger = zerolog.New(w).With().Timestamp().Logger() }
}

// New builds a Config with the documented defaults, applying opts in order.
func New(opts ...Option) *Config {
	c := &Config{
		Cancellation:           Eager,
		Admission:              ClampAndWarn,
		Cache:                  CacheEnabled,
		DefaultLanguageVersion: "1.2",
		MaxScatterConcurrency:  8,
		DefaultContainer:       "docker://ubuntu:22.04",
		DefaultCPU:             1,
		DefaultMemoryMiB:       512,
		DefaultMaxRetries:      0,
		S3Region:               "us-east-1",
		S3Credentials:          map[string]StorageCredential{},
		GCSCredentials:         map[string]StorageCredential{},
		AzureCredentials:       map[string]StorageCredential{},
		AzureRootContainerName: "$root",
		BackendTimeout:         0,
		logger:                 zerolog.New(os.Stderr).With().Timestamp().Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Logger returns the configured structured logger, annotated with run
// and call identifiers by callers via .With() as the run progresses
// (mirrors the teacher's contextual-logger-per-component convention).
func (c *Config) Logger() *zerolog.Logger {
	return &c.logger
}
