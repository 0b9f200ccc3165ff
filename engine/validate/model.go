// Package validate runs the multi-pass workflow validation pipeline:
// structure, per-node schema, node-specific rules, AI topology, connection
// integrity, expression syntax, and version currency. Findings are
// deterministic: node declaration order first, property path second.
package validate

import (
	"strings"

	"github.com/n8nkit/n8nkit/engine/core"
	"github.com/n8nkit/n8nkit/engine/kb"
)

// Severity of a single finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Finding is one validation result entry. Code is a stable machine
// string; Property carries the parameter path so downstream tools can
// dedupe.
type Finding struct {
	Code     string         `json:"code"`
	Severity Severity       `json:"severity"`
	Message  string         `json:"message"`
	Node     string         `json:"node,omitempty"`
	Property string         `json:"property,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
}

// Statistics summarizes what the run looked at.
type Statistics struct {
	TotalNodes           int `json:"totalNodes"`
	EnabledNodes         int `json:"enabledNodes"`
	TriggerNodes         int `json:"triggerNodes"`
	ValidConnections     int `json:"validConnections"`
	InvalidConnections   int `json:"invalidConnections"`
	ExpressionsValidated int `json:"expressionsValidated"`
	ErrorCount           int `json:"errorCount"`
	WarningCount         int `json:"warningCount"`
}

// Result is the validation envelope body.
type Result struct {
	Valid       bool       `json:"valid"`
	Errors      []Finding  `json:"errors"`
	Warnings    []Finding  `json:"warnings"`
	Statistics  Statistics `json:"statistics"`
	Suggestions []string   `json:"suggestions"`
}

// HasCode reports whether any finding carries the given code.
func (r *Result) HasCode(code string) bool {
	for i := range r.Errors {
		if r.Errors[i].Code == code {
			return true
		}
	}
	for i := range r.Warnings {
		if r.Warnings[i].Code == code {
			return true
		}
	}
	return false
}

// FindingsByCode returns every finding with the given code, errors first.
func (r *Result) FindingsByCode(code string) []Finding {
	var out []Finding
	for i := range r.Errors {
		if r.Errors[i].Code == code {
			out = append(out, r.Errors[i])
		}
	}
	for i := range r.Warnings {
		if r.Warnings[i].Code == code {
			out = append(out, r.Warnings[i])
		}
	}
	return out
}

// Profile selects which findings are emitted.
type Profile string

const (
	ProfileMinimal    Profile = "minimal"
	ProfileRuntime    Profile = "runtime"
	ProfileAIFriendly Profile = "ai-friendly"
	ProfileStrict     Profile = "strict"
)

func profileRank(p Profile) int {
	switch p {
	case ProfileMinimal:
		return 0
	case ProfileRuntime:
		return 1
	case ProfileAIFriendly:
		return 2
	case ProfileStrict:
		return 3
	}
	return 1
}

// AtLeast reports whether p includes everything profile min does.
func (p Profile) AtLeast(min Profile) bool {
	return profileRank(p) >= profileRank(min)
}

// ParseProfile normalizes a user-supplied profile name.
func ParseProfile(s string) (Profile, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return ProfileRuntime, nil
	case string(ProfileMinimal):
		return ProfileMinimal, nil
	case string(ProfileRuntime):
		return ProfileRuntime, nil
	case string(ProfileAIFriendly), "ai_friendly", "aifriendly":
		return ProfileAIFriendly, nil
	case string(ProfileStrict):
		return ProfileStrict, nil
	}
	return "", core.NewError(core.KindUsage, core.CodeInvalidArgument,
		"unknown validation profile %q (want minimal, runtime, ai-friendly or strict)", s)
}

// Mode selects which properties of each node are validated.
type Mode string

const (
	ModeMinimal   Mode = "minimal"
	ModeOperation Mode = "operation"
	ModeFull      Mode = "full"
)

// ParseMode normalizes a user-supplied mode name.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return ModeOperation, nil
	case string(ModeMinimal):
		return ModeMinimal, nil
	case string(ModeOperation):
		return ModeOperation, nil
	case string(ModeFull):
		return ModeFull, nil
	}
	return "", core.NewError(core.KindUsage, core.CodeInvalidArgument,
		"unknown validation mode %q (want minimal, operation or full)", s)
}

// Options parameterize one validation run.
type Options struct {
	Profile Profile
	Mode    Mode
	// CheckExpressions scans string parameters for expression syntax.
	CheckExpressions bool
	// CheckVersions reports outdated typeVersions with their breaking
	// changes.
	CheckVersions bool
	// VersionSeverityFloor drops version findings whose worst breaking
	// change is milder than the floor. Empty keeps everything.
	VersionSeverityFloor kb.Severity
}

// DefaultOptions returns the option set implied by a profile: expression
// checks from runtime up, version currency from ai-friendly up.
func DefaultOptions(p Profile) Options {
	return Options{
		Profile:              p,
		Mode:                 ModeOperation,
		CheckExpressions:     p.AtLeast(ProfileRuntime),
		CheckVersions:        p.AtLeast(ProfileAIFriendly),
		VersionSeverityFloor: kb.SeverityLow,
	}
}
