package validate

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"

	"github.com/Open-Mobile-Kit/ba-ai-builder/store"
)

// Severity levels for validation issues.
const (
	SeverityCritical = "critical"
	SeverityError    = "error"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// DefaultThreshold is the minimum score for a pass verdict.
const DefaultThreshold = 0.8

// Issue is one itemized finding against an artifact.
type Issue struct {
	Severity string `yaml:"severity" json:"severity"`
	RuleID   string `yaml:"rule" json:"rule"`
	Message  string `yaml:"message" json:"message"`
	Line     int    `yaml:"line,omitempty" json:"line,omitempty"`
}

// Report is the immutable outcome of validating one artifact.
type Report struct {
	RunID     string     `yaml:"runId" json:"runId"`
	Kind      store.Kind `yaml:"kind" json:"kind"`
	Iteration int        `yaml:"iteration" json:"iteration"`
	Passed    bool       `yaml:"passed" json:"passed"`
	Score     float64    `yaml:"score" json:"score"`
	Threshold float64    `yaml:"threshold" json:"threshold"`
	Rules     int        `yaml:"rulesApplied" json:"rulesApplied"`
	RulesOK   int        `yaml:"rulesPassed" json:"rulesPassed"`
	Issues    []Issue    `yaml:"issues,omitempty" json:"issues,omitempty"`
}

// FeedbackText renders the report's issues as feedback for regeneration.
// Returns the empty string for a clean report.
func (r Report) FeedbackText() string {
	if len(r.Issues) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Validation of the %s document scored %.2f (threshold %.2f). Fix the following:\n", r.Kind, r.Score, r.Threshold)
	for _, issue := range r.Issues {
		fmt.Fprintf(&b, "- [%s] %s\n", issue.Severity, issue.Message)
	}
	return b.String()
}

// rule is one named check against artifact content.
type rule struct {
	id    string
	check func(content string) []Issue
}

// requiredSections lists the section headers a document kind must carry.
var requiredSections = map[store.Kind][]string{
	store.KindBRD: {
		"Executive Summary",
		"Business Objectives",
		"Functional Requirements",
		"Non-functional Requirements",
	},
	store.KindSRS: {
		"System Overview",
		"Functional Specifications",
		"Technical Requirements",
		"Interface Requirements",
		"Security Requirements",
	},
}

// RequiredSections returns the section headers a document kind must carry.
// Kinds without section requirements return nil.
func RequiredSections(kind store.Kind) []string {
	return requiredSections[kind]
}

var placeholderRe = regexp.MustCompile(`\{\{[^{}]*\}\}|\bTBD\b|\bTODO:`)

var foldCaser = cases.Fold()

// Validator scores artifacts against the per-kind rule set.
type Validator struct {
	threshold float64
}

// New creates a validator with the given pass threshold.
// A zero threshold selects DefaultThreshold.
func New(threshold float64) *Validator {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Validator{threshold: threshold}
}

// Validate scores one artifact and returns its report.
func (v *Validator) Validate(art *store.Artifact) Report {
	report := Report{
		RunID:     art.RunID,
		Kind:      art.Kind,
		Iteration: art.Iteration,
		Threshold: v.threshold,
	}

	rules := rulesFor(art.Kind)
	report.Rules = len(rules)
	critical := false

	for _, r := range rules {
		issues := r.check(art.Content)
		if len(issues) == 0 {
			report.RulesOK++
			continue
		}
		for _, issue := range issues {
			if issue.Severity == SeverityCritical {
				critical = true
			}
			report.Issues = append(report.Issues, issue)
		}
	}

	if report.Rules > 0 {
		report.Score = float64(report.RulesOK) / float64(report.Rules)
	}
	report.Passed = report.Score >= v.threshold && !critical
	return report
}

// rulesFor assembles the applicable rule set for an artifact kind.
func rulesFor(kind store.Kind) []rule {
	rules := []rule{
		{id: "not-empty", check: checkNotEmpty},
		{id: "min-length", check: checkMinLength},
		{id: "no-placeholders", check: checkPlaceholders},
		{id: "line-length", check: checkLineLength},
	}

	if kind == store.KindBRD || kind == store.KindSRS {
		rules = append(rules, rule{id: "has-headers", check: checkHeaders})
		for _, section := range requiredSections[kind] {
			rules = append(rules, sectionRule(section))
		}
	}
	return rules
}

func checkNotEmpty(content string) []Issue {
	if strings.TrimSpace(content) == "" {
		return []Issue{{Severity: SeverityCritical, RuleID: "not-empty", Message: "document is empty"}}
	}
	return nil
}

func checkMinLength(content string) []Issue {
	lines := strings.Count(strings.TrimSpace(content), "\n") + 1
	if strings.TrimSpace(content) == "" || lines >= 5 {
		return nil // emptiness is the critical rule's finding
	}
	return []Issue{{
		Severity: SeverityError,
		RuleID:   "min-length",
		Message:  fmt.Sprintf("document is too short (%d lines)", lines),
	}}
}

func checkPlaceholders(content string) []Issue {
	var issues []Issue
	for i, line := range strings.Split(content, "\n") {
		if m := placeholderRe.FindString(line); m != "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				RuleID:   "no-placeholders",
				Message:  fmt.Sprintf("unresolved placeholder %q", m),
				Line:     i + 1,
			})
		}
	}
	return issues
}

func checkLineLength(content string) []Issue {
	var issues []Issue
	for i, line := range strings.Split(content, "\n") {
		if len(line) > 200 {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				RuleID:   "line-length",
				Message:  fmt.Sprintf("line %d is very long (%d characters)", i+1, len(line)),
				Line:     i + 1,
			})
		}
	}
	return issues
}

func checkHeaders(content string) []Issue {
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			return nil
		}
	}
	return []Issue{{Severity: SeverityError, RuleID: "has-headers", Message: "document has no markdown headers"}}
}

// sectionRule builds the required-section rule for one header. Matching is
// Unicode case-insensitive and tolerant of header level.
func sectionRule(section string) rule {
	id := "section-" + strings.ReplaceAll(foldCaser.String(section), " ", "-")
	want := foldCaser.String(section)
	return rule{
		id: id,
		check: func(content string) []Issue {
			for _, line := range strings.Split(content, "\n") {
				trimmed := strings.TrimSpace(line)
				if !strings.HasPrefix(trimmed, "#") {
					continue
				}
				header := strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
				if strings.Contains(foldCaser.String(header), want) {
					return nil
				}
			}
			return []Issue{{
				Severity: SeverityError,
				RuleID:   id,
				Message:  fmt.Sprintf("missing required section %q", section),
			}}
		},
	}
}
