// Package state persists per-run workflow state so any phase can resume
// a run from its last checkpoint. State lives at
// <agents-dir>/<adw-id>/adw_state.json and is never deleted; the files
// double as an audit trail.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// StateFilename is the file each run's state is persisted to.
const StateFilename = "adw_state.json"

// Sentinel errors for state operations.
var (
	ErrIDRequired = errors.New("adw_id is required")
	ErrNotFound   = errors.New("state not found")
)

// State is the unit of durability for one workflow run. ADWID is
// immutable once created; the other fields are filled in monotonically
// as phases complete.
type State struct {
	ADWID       string
	IssueNumber string
	BranchName  string
	PlanFile    string
	IssueClass  string

	// Issue caches a minimal issue summary so later phases can build a
	// pull request even when the live issue cannot be re-fetched.
	Issue json.RawMessage

	agentsDir string
	logger    *slog.Logger
}

// stateJSON is the persisted representation. Unset optional fields are
// written as explicit nulls to keep the on-disk format stable.
type stateJSON struct {
	ADWID       string          `json:"adw_id"`
	IssueNumber *string         `json:"issue_number"`
	BranchName  *string         `json:"branch_name"`
	PlanFile    *string         `json:"plan_file"`
	IssueClass  *string         `json:"issue_class"`
	Issue       json.RawMessage `json:"issue,omitempty"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// New creates in-memory state for a fresh run. The id must be non-empty;
// an empty id is a precondition violation, not a recoverable condition.
func New(agentsDir, adwID string, logger *slog.Logger) (*State, error) {
	if adwID == "" {
		return nil, ErrIDRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &State{ADWID: adwID, agentsDir: agentsDir, logger: logger}, nil
}

// Load reads persisted state for adwID. A missing file returns
// ErrNotFound — the normal case for a first-time run. Malformed content
// is logged and also reported as ErrNotFound so a corrupt file can
// never crash an orchestrator.
func Load(agentsDir, adwID string, logger *slog.Logger) (*State, error) {
	if adwID == "" {
		return nil, ErrIDRequired
	}
	if logger == nil {
		logger = slog.Default()
	}

	path := statePath(agentsDir, adwID)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		logger.Error("Failed to read state file", slog.String("path", path), slog.String("error", err.Error()))
		return nil, ErrNotFound
	}

	var raw stateJSON
	if err := json.Unmarshal(data, &raw); err != nil || raw.ADWID == "" {
		logger.Error("Malformed state file, treating as not found", slog.String("path", path))
		return nil, ErrNotFound
	}

	st := fromJSON(raw, agentsDir, logger)
	logger.Info("Found existing state", slog.String("path", path))
	return st, nil
}

// FromReader parses a state blob handed over by a chained invocation
// (typically piped stdin). Returns nil when the input is empty or does
// not parse as valid state.
func FromReader(r io.Reader, agentsDir string, logger *slog.Logger) *State {
	if logger == nil {
		logger = slog.Default()
	}
	data, err := io.ReadAll(r)
	if err != nil || strings.TrimSpace(string(data)) == "" {
		return nil
	}
	var raw stateJSON
	if err := json.Unmarshal(data, &raw); err != nil || raw.ADWID == "" {
		return nil
	}
	logger.Info("Loaded state from stdin", slog.String("adw_id", raw.ADWID))
	return fromJSON(raw, agentsDir, logger)
}

func fromJSON(raw stateJSON, agentsDir string, logger *slog.Logger) *State {
	return &State{
		ADWID:       raw.ADWID,
		IssueNumber: deref(raw.IssueNumber),
		BranchName:  deref(raw.BranchName),
		PlanFile:    deref(raw.PlanFile),
		IssueClass:  deref(raw.IssueClass),
		Issue:       raw.Issue,
		agentsDir:   agentsDir,
		logger:      logger,
	}
}

func (s *State) toJSON() stateJSON {
	return stateJSON{
		ADWID:       s.ADWID,
		IssueNumber: optional(s.IssueNumber),
		BranchName:  optional(s.BranchName),
		PlanFile:    optional(s.PlanFile),
		IssueClass:  optional(s.IssueClass),
		Issue:       s.Issue,
	}
}

// Path returns the file this state persists to.
func (s *State) Path() string {
	return statePath(s.agentsDir, s.ADWID)
}

func statePath(agentsDir, adwID string) string {
	return filepath.Join(agentsDir, adwID, StateFilename)
}

// Save serializes the full record, creating parent directories as
// needed and overwriting any prior content. The checkpoint label names
// the workflow step that produced this snapshot.
func (s *State) Save(checkpoint string) error {
	path := s.Path()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(s.toJSON(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}

	s.logger.Info("Saved state", slog.String("path", path), slog.String("checkpoint", checkpoint))
	return nil
}

// WriteTo emits the canonical JSON form, for piping into a chained
// phase invocation.
func (s *State) WriteTo(w io.Writer) error {
	data, err := json.MarshalIndent(s.toJSON(), "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
