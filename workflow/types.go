// Package workflow composes agent invocations into the semantic
// operations the phase orchestrators are built from.
package workflow

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// IssueClass is the closed set of issue classifications. The values
// are the slash commands of the matching planning templates.
type IssueClass string

const (
	IssueClassChore   IssueClass = "/chore"
	IssueClassBug     IssueClass = "/bug"
	IssueClassFeature IssueClass = "/feature"
)

// classificationReject is the sentinel the classifier returns when it
// explicitly declines to classify an issue.
const classificationReject = "0"

// IsValid checks whether the class is in the closed set.
func (c IssueClass) IsValid() bool {
	switch c {
	case IssueClassChore, IssueClassBug, IssueClassFeature:
		return true
	}
	return false
}

// String returns the slash-command form.
func (c IssueClass) String() string {
	return string(c)
}

// Slug returns the class without its leading slash, for use in branch
// names and template arguments.
func (c IssueClass) Slug() string {
	return strings.TrimPrefix(string(c), "/")
}

// Workflow names accepted by the composite dispatcher.
var AvailableWorkflows = []string{
	"adw_plan",
	"adw_build",
	"adw_test",
	"adw_review",
	"adw_document",
	"adw_patch",
	"adw_plan_build",
	"adw_plan_build_test",
	"adw_plan_build_test_review",
	"adw_sdlc",
}

// ReviewSeverity grades a review finding.
type ReviewSeverity string

const (
	SeveritySkippable ReviewSeverity = "skippable"
	SeverityTechDebt  ReviewSeverity = "tech_debt"
	SeverityBlocker   ReviewSeverity = "blocker"
)

// ReviewIssue is one finding from the review agent.
type ReviewIssue struct {
	Number         int            `json:"review_issue_number"`
	ScreenshotPath string         `json:"screenshot_path"`
	ScreenshotURL  string         `json:"screenshot_url,omitempty"`
	Description    string         `json:"issue_description"`
	Resolution     string         `json:"issue_resolution"`
	Severity       ReviewSeverity `json:"issue_severity"`
}

// ReviewResult is the structured summary of a review run.
type ReviewResult struct {
	Success        bool          `json:"success"`
	Summary        string        `json:"review_summary"`
	Issues         []ReviewIssue `json:"review_issues"`
	Screenshots    []string      `json:"screenshots"`
	ScreenshotURLs []string      `json:"screenshot_urls"`
}

// Blockers returns the findings that must be fixed before merge.
func (r *ReviewResult) Blockers() []ReviewIssue {
	var blockers []ReviewIssue
	for _, issue := range r.Issues {
		if issue.Severity == SeverityBlocker {
			blockers = append(blockers, issue)
		}
	}
	return blockers
}

// TestResult is one test outcome reported by the test agent.
type TestResult struct {
	TestName         string `json:"test_name"`
	Passed           bool   `json:"passed"`
	ExecutionCommand string `json:"execution_command"`
	TestPurpose      string `json:"test_purpose"`
	Error            string `json:"error,omitempty"`
}

// DocumentationResult is the structured summary of a documentation run.
type DocumentationResult struct {
	Success              bool   `json:"success"`
	DocumentationCreated bool   `json:"documentation_created"`
	DocumentationPath    string `json:"documentation_path,omitempty"`
	ErrorMessage         string `json:"error_message,omitempty"`
}

var codeFencePattern = regexp.MustCompile("(?is)```(?:json)?\\s*\\n(.*?)\\n```")

// ParseJSONResponse decodes agent output that should contain JSON. The
// payload may be wrapped in a markdown code fence or surrounded by
// prose; the first JSON object or array found is decoded.
func ParseJSONResponse(text string, v any) error {
	jsonStr := strings.TrimSpace(text)
	if m := codeFencePattern.FindStringSubmatch(jsonStr); m != nil {
		jsonStr = strings.TrimSpace(m[1])
	}

	if !strings.HasPrefix(jsonStr, "{") && !strings.HasPrefix(jsonStr, "[") {
		arrStart, arrEnd := strings.Index(jsonStr, "["), strings.LastIndex(jsonStr, "]")
		objStart, objEnd := strings.Index(jsonStr, "{"), strings.LastIndex(jsonStr, "}")
		switch {
		case arrStart != -1 && (objStart == -1 || arrStart < objStart) && arrEnd != -1:
			jsonStr = jsonStr[arrStart : arrEnd+1]
		case objStart != -1 && objEnd != -1:
			jsonStr = jsonStr[objStart : objEnd+1]
		}
	}

	if err := json.Unmarshal([]byte(jsonStr), v); err != nil {
		snippet := jsonStr
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return fmt.Errorf("failed to parse JSON response: %w (text: %s)", err, snippet)
	}
	return nil
}
