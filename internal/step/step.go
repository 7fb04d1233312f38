// Package step defines the capability every backend implements, independent
// of which tagged variant (toolchain, github-release, cargo-install, ...)
// it is. internal/operation drives the pipeline against this interface;
// internal/backend/* supplies the concrete implementations.
package step

import "context"

// Outcome is the ternary result of running a step.
type Outcome int

const (
	// OutcomeNotApplicable means the backend is missing or inapplicable on
	// this host; state is untouched.
	OutcomeNotApplicable Outcome = iota
	// OutcomeOK means the step succeeded (or was already met).
	OutcomeOK
	// OutcomeErr means the step failed.
	OutcomeErr
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeErr:
		return "err"
	default:
		return "n/a"
	}
}

// VarOp names how a step wants to mutate one environment variable.
type VarOp int

const (
	VarSet VarOp = iota
	VarUnset
	VarPrepend
	VarAppend
	VarSuffix
)

func (o VarOp) String() string {
	switch o {
	case VarSet:
		return "set"
	case VarUnset:
		return "unset"
	case VarPrepend:
		return "prepend"
	case VarAppend:
		return "append"
	case VarSuffix:
		return "suffix"
	default:
		return "unknown"
	}
}

// EnvVarMutation is one requested mutation of a single variable.
type EnvVarMutation struct {
	Name  string
	Op    VarOp
	Value string
	// Sep is the join separator for Prepend/Append/Suffix (default ":").
	Sep string
}

// PathPrepend is a directory to prepend to PATH, ordered by Priority
// (lower runs first, ending up closer to the front of PATH).
type PathPrepend struct {
	Dir      string
	Priority int
}

// EnvBuilder accumulates the contributions of every step run this pipeline,
// in operation order, per spec §4.2 "Dynamic env contribution".
type EnvBuilder struct {
	Paths    []PathPrepend
	Mutations []EnvVarMutation
	// Owned records which variable names this builder's contributors
	// consider themselves authoritative over, used to compute hook reverts.
	Owned map[string]bool
}

// NewEnvBuilder returns an empty builder.
func NewEnvBuilder() *EnvBuilder {
	return &EnvBuilder{Owned: make(map[string]bool)}
}

// AddPath records a path prepend contribution.
func (b *EnvBuilder) AddPath(dir string, priority int) {
	b.Paths = append(b.Paths, PathPrepend{Dir: dir, Priority: priority})
}

// Set records a set/unset/prepend/append/suffix mutation and marks the
// variable as owned by this step.
func (b *EnvBuilder) Set(name string, op VarOp, value string) {
	b.Mutations = append(b.Mutations, EnvVarMutation{Name: name, Op: op, Value: value, Sep: ":"})
	b.Owned[name] = true
}

// RunContext carries everything a backend needs to execute one step: the
// work directory root (for relative installs like bundler's vendor/bundle),
// a cancellable context, and whether this is an upgrade-forced run.
type RunContext struct {
	Ctx       context.Context
	WorkDir   string
	Upgrade   bool
	NoCache   bool
	Timeout   int // seconds; 0 means backend default
}

// InstalledResource is reported by a step after a successful Up so the
// pipeline orchestrator can link it into the install cache's required_by
// table once the run's env_version_id is known (spec §4.3). KeyValues and
// Kind mirror internal/cache.ResourceKey without importing that package
// here, to keep step dependency-free of cache.
type InstalledResource struct {
	CacheKindName string
	KeyValues     []any
	InstallPath   string
}

// ResourceReporter is implemented by steps that install a shared,
// reference-counted resource (toolchain versions, github releases, cargo
// crates, go installs, homebrew formulae). Optional: steps that don't touch
// the install cache (e.g. "or", custom shell commands) need not implement it.
type ResourceReporter interface {
	InstalledResource() (InstalledResource, bool)
}

// Step is the capability set every operation kind implements (spec §4.2).
type Step interface {
	// Kind returns the tagged variant name, e.g. "github-release", "or".
	Kind() string

	// IsAvailable probes for the external binary this step depends on.
	IsAvailable(rc RunContext) bool

	// IsMet reports whether the requirement is already satisfied. Pure: no
	// side effects.
	IsMet(rc RunContext) (bool, error)

	// Up installs/configures the requirement if not already met (or if
	// rc.Upgrade is set), returning the outcome.
	Up(rc RunContext) Outcome

	// Down reverts whatever Up did, decrementing shared-resource refcounts.
	// Called in reverse declared order.
	Down(rc RunContext) Outcome

	// EnvContribution records this step's path/env-var contributions into b.
	// Called only after a successful Up.
	EnvContribution(b *EnvBuilder) error
}
