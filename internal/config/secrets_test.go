package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetEnvOrFile(t *testing.T) {
	dir := t.TempDir()
	secretFile := filepath.Join(dir, "secret")
	if err := os.WriteFile(secretFile, []byte("  file-secret\n\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	tests := []struct {
		name    string
		direct  string
		file    string
		want    string
		wantErr bool
	}{
		{name: "neither set", want: ""},
		{name: "direct only", direct: "direct-secret", want: "direct-secret"},
		{name: "file only", file: secretFile, want: "file-secret"},
		{name: "file wins over direct", direct: "direct-secret", file: secretFile, want: "file-secret"},
		{name: "missing file", file: filepath.Join(dir, "absent"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SFTPGATE_TEST_SECRET", tt.direct)
			t.Setenv("SFTPGATE_TEST_SECRET_FILE", tt.file)

			got, err := getEnvWithFileFallback("SFTPGATE_TEST_", "SECRET")
			if (err != nil) != tt.wantErr {
				t.Fatalf("getEnvWithFileFallback() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("getEnvWithFileFallback() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		in     string
		want   bool
		wantOK bool
	}{
		{"true", true, true},
		{"TRUE", true, true},
		{" yes ", true, true},
		{"1", true, true},
		{"on", true, true},
		{"false", false, true},
		{"No", false, true},
		{"0", false, true},
		{"off", false, true},
		{"", false, false},
		{"maybe", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parseBool(tt.in)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("parseBool(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestEnvPrefix(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"nas", "SFTPGATE_NAS_"},
		{"nas-backup", "SFTPGATE_NAS_BACKUP_"},
		{"edge.eu", "SFTPGATE_EDGE_EU_"},
		{"Mixed_Case", "SFTPGATE_MIXED_CASE_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := envPrefix(tt.name); got != tt.want {
				t.Errorf("envPrefix(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestInterpolateEnvVars(t *testing.T) {
	t.Setenv("SFTPGATE_TEST_HOST", "sftp.example.com")
	t.Setenv("SFTPGATE_TEST_EMPTY", "")

	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"${SFTPGATE_TEST_HOST}", "sftp.example.com"},
		{"host=${SFTPGATE_TEST_HOST}:22", "host=sftp.example.com:22"},
		{"${SFTPGATE_TEST_UNSET}", ""},
		{"${SFTPGATE_TEST_UNSET:-fallback}", "fallback"},
		{"${SFTPGATE_TEST_EMPTY:-fallback}", "fallback"},
		{"${SFTPGATE_TEST_HOST:-fallback}", "sftp.example.com"},
		{"$SFTPGATE_TEST_HOST", "$SFTPGATE_TEST_HOST"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := InterpolateEnvVars(tt.in); got != tt.want {
				t.Errorf("InterpolateEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
