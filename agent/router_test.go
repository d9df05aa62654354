package agent

import "testing"

func TestModelFor(t *testing.T) {
	tests := []struct {
		command string
		want    string
	}{
		{"/classify_issue", ModelSonnet},
		{"/classify_adw", ModelSonnet},
		{"/generate_branch_name", ModelSonnet},
		{"/test", ModelSonnet},
		{"/resolve_failed_test", ModelSonnet},
		{"/commit", ModelSonnet},
		{"/pull_request", ModelSonnet},
		{"/chore", ModelSonnet},
		{"/document", ModelSonnet},
		{"/implement", ModelOpus},
		{"/review", ModelOpus},
		{"/bug", ModelOpus},
		{"/feature", ModelOpus},
		{"/patch", ModelOpus},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			if got := ModelFor(tt.command, ModelSonnet); got != tt.want {
				t.Errorf("ModelFor(%s) = %s, want %s", tt.command, got, tt.want)
			}
		})
	}
}

func TestModelForUnknownCommandUsesDefault(t *testing.T) {
	if got := ModelFor("/unknown_command", "sonnet"); got != "sonnet" {
		t.Errorf("expected default model, got %s", got)
	}
	if got := ModelFor("", "opus"); got != "opus" {
		t.Errorf("expected default model for empty command, got %s", got)
	}
}
