package tui

import (
	"testing"
)

func TestShouldPrompt_DisabledInCI(t *testing.T) {
	tests := []struct {
		name   string
		envVar string
		value  string
	}{
		{"generic CI", "CI", "true"},
		{"GitHub Actions", "GITHUB_ACTIONS", "true"},
		{"GitLab CI", "GITLAB_CI", "true"},
		{"Jenkins", "JENKINS_URL", "http://jenkins.local"},
		{"Buildkite", "BUILDKITE", "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.envVar, tt.value)
			if ShouldPrompt() {
				t.Errorf("ShouldPrompt() = true with %s=%s", tt.envVar, tt.value)
			}
		})
	}
}

func TestPromptForSelect_NoOptions(t *testing.T) {
	_, err := PromptForSelect("Choose:", []string{})
	if err == nil {
		t.Error("expected error when no options provided, got nil")
	}
}

func TestRequiredValidator(t *testing.T) {
	check := required("password")

	if err := check("   "); err == nil {
		t.Error("expected blank input to be rejected")
	} else if err.Error() != "password is required" {
		t.Errorf("unexpected message %q", err.Error())
	}

	if err := check("s3cret"); err != nil {
		t.Errorf("expected non-blank input to pass, got %v", err)
	}
}
