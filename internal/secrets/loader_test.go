package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	keyFile := filepath.Join(dir, "key")
	if err := os.WriteFile(keyFile, []byte("  from-file\n"), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	emptyFile := filepath.Join(dir, "empty")
	if err := os.WriteFile(emptyFile, []byte("\n"), 0o600); err != nil {
		t.Fatalf("write empty file: %v", err)
	}

	t.Setenv("CAREER_ASSISTANT_TEST_SECRET", " from-env ")

	tests := []struct {
		name    string
		src     Source
		want    string
		wantErr string
	}{
		{
			name: "file wins",
			src:  Source{Name: "key", File: keyFile, Value: "inline", Env: "CAREER_ASSISTANT_TEST_SECRET"},
			want: "from-file",
		},
		{
			name: "inline value",
			src:  Source{Name: "key", Value: " inline ", Env: "CAREER_ASSISTANT_TEST_SECRET"},
			want: "inline",
		},
		{
			name: "environment",
			src:  Source{Name: "key", Env: "CAREER_ASSISTANT_TEST_SECRET"},
			want: "from-env",
		},
		{
			name:    "empty file",
			src:     Source{Name: "key", File: emptyFile},
			wantErr: "is empty",
		},
		{
			name:    "missing file",
			src:     Source{Name: "key", File: filepath.Join(dir, "nope")},
			wantErr: "reading key from file",
		},
		{
			name:    "nothing configured",
			src:     Source{Name: "gemini api key"},
			wantErr: "gemini api key is not configured",
		},
		{
			name:    "unset environment",
			src:     Source{Env: "CAREER_ASSISTANT_UNSET_SECRET"},
			wantErr: "secret is not configured (CAREER_ASSISTANT_UNSET_SECRET is empty)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(tt.src)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
