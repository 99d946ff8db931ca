package workflow

import "context"

// Finding is one blocking or advisory item a Scanner reports, shaped
// after dependency_check.py's per-vulnerability record (package, severity,
// description).
type Finding struct {
	Severity    string // "critical" | "high" | "medium" | "low"
	Subject     string // package/file/check name the finding is about
	Description string
}

// ScanResult is a Scanner's report, mirroring dependency_check_node's
// `dependency_check_result` dict: a finding list plus the count the
// router acts on directly.
type ScanResult struct {
	BlockingFindings int
	Findings         []Finding
}

// Scanner is the contract the Verification phase's dependency/security/
// coverage/environment checks share (spec §1: scanner internals are
// unspecified, callers only rely on this shape). blockingSeverities
// mirrors dependency_check_node's config-driven severity gate.
type Scanner interface {
	Name() string
	Check(ctx context.Context, project string, blockingSeverities []string) (ScanResult, error)
}

// StubScanner is a deterministic, always-clean Scanner used where no
// concrete scanner has been wired for a project yet. It lets Verification
// exercise the full escalate/continue router contract without requiring
// a real dependency/security/coverage backend, matching spec §1's
// "scanner internals out of scope" boundary.
type StubScanner struct {
	ScannerName string
}

// NewStubScanner constructs a named no-op scanner.
func NewStubScanner(name string) *StubScanner {
	return &StubScanner{ScannerName: name}
}

func (s *StubScanner) Name() string { return s.ScannerName }

// Check always reports zero blocking findings; a real implementation
// would shell out to the appropriate tool (npm audit, trivy, a coverage
// parser, ...) and map its output into Findings.
func (s *StubScanner) Check(ctx context.Context, project string, blockingSeverities []string) (ScanResult, error) {
	return ScanResult{}, nil
}

// ScannerSet bundles the four Verification-phase scanners spec §12
// expects alongside evaluation/optimization: dependency, security,
// coverage, environment.
type ScannerSet struct {
	Dependency  Scanner
	Security    Scanner
	Coverage    Scanner
	Environment Scanner
}

// DefaultScannerSet wires four stub scanners, ready to be swapped for
// real implementations without touching the engine's call sites.
func DefaultScannerSet() ScannerSet {
	return ScannerSet{
		Dependency:  NewStubScanner("dependency"),
		Security:    NewStubScanner("security"),
		Coverage:    NewStubScanner("coverage"),
		Environment: NewStubScanner("environment"),
	}
}
