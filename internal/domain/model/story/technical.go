package story

import "slices"

// TechnicalContext is a tagged set of optional substructures.
// A nil member means "not reported", which validators rely on.
type TechnicalContext struct {
	CodeChanges *CodeChangeSummary      `json:"codeChanges,omitempty" yaml:"codeChanges,omitempty"`
	TestResults *TestRunSummary         `json:"testResults,omitempty" yaml:"testResults,omitempty"`
	Performance *PerformanceMetrics     `json:"performance,omitempty" yaml:"performance,omitempty"`
	Security    *SecurityConsiderations `json:"securityConsiderations,omitempty" yaml:"securityConsiderations,omitempty"`
}

// CodeChangeSummary summarises the diff produced so far
type CodeChangeSummary struct {
	FilesModified []string `json:"filesModified,omitempty" yaml:"filesModified,omitempty"`
	LinesAdded    int      `json:"linesAdded" yaml:"linesAdded"`
	LinesRemoved  int      `json:"linesRemoved" yaml:"linesRemoved"`
	Summary       string   `json:"summary,omitempty" yaml:"summary,omitempty"`
}

// TestRunSummary is the result of the latest test run
type TestRunSummary struct {
	Total    int      `json:"total" yaml:"total"`
	Passed   int      `json:"passed" yaml:"passed"`
	Failed   int      `json:"failed" yaml:"failed"`
	Skipped  int      `json:"skipped" yaml:"skipped"`
	Coverage float64  `json:"coverage,omitempty" yaml:"coverage,omitempty"`
	Failures []string `json:"failures,omitempty" yaml:"failures,omitempty"`
}

// PerformanceMetrics captures measured runtime characteristics
type PerformanceMetrics struct {
	ResponseTimeMs  float64 `json:"responseTimeMs,omitempty" yaml:"responseTimeMs,omitempty"`
	ThroughputRPS   float64 `json:"throughputRps,omitempty" yaml:"throughputRps,omitempty"`
	MemoryUsageMB   float64 `json:"memoryUsageMb,omitempty" yaml:"memoryUsageMb,omitempty"`
	ExecutionTimeMs float64 `json:"executionTimeMs,omitempty" yaml:"executionTimeMs,omitempty"`
}

// SecurityConsiderations lists findings from a security review
type SecurityConsiderations struct {
	VulnerabilitiesFound int      `json:"vulnerabilitiesFound" yaml:"vulnerabilitiesFound"`
	Findings             []string `json:"findings,omitempty" yaml:"findings,omitempty"`
	Mitigations          []string `json:"mitigations,omitempty" yaml:"mitigations,omitempty"`
}

// Clone returns a deep copy; nil stays nil
func (t *TechnicalContext) Clone() *TechnicalContext {
	if t == nil {
		return nil
	}
	c := &TechnicalContext{}
	if t.CodeChanges != nil {
		cc := *t.CodeChanges
		cc.FilesModified = slices.Clone(t.CodeChanges.FilesModified)
		c.CodeChanges = &cc
	}
	if t.TestResults != nil {
		tr := *t.TestResults
		tr.Failures = slices.Clone(t.TestResults.Failures)
		c.TestResults = &tr
	}
	if t.Performance != nil {
		p := *t.Performance
		c.Performance = &p
	}
	if t.Security != nil {
		s := *t.Security
		s.Findings = slices.Clone(t.Security.Findings)
		s.Mitigations = slices.Clone(t.Security.Mitigations)
		c.Security = &s
	}
	return c
}

// HasTestResults reports whether a test run summary is present
func (t *TechnicalContext) HasTestResults() bool {
	return t != nil && t.TestResults != nil
}

// VulnerabilityCount returns 0 when no security review was reported
func (t *TechnicalContext) VulnerabilityCount() int {
	if t == nil || t.Security == nil {
		return 0
	}
	return t.Security.VulnerabilitiesFound
}
