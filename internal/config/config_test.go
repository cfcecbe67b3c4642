package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	projectDir := filepath.Join(tmpDir, ProjectDirName)
	if err := os.Mkdir(projectDir, 0755); err != nil {
		t.Fatalf("failed to create %s dir: %v", ProjectDirName, err)
	}

	configContent := `socket_path: /tmp/custom.sock
debounce_millis: 250
verbosity: debug
exclude_patterns:
  - "**/node_modules/**"
  - "**/.git/**"
`
	configPath := filepath.Join(projectDir, ProjectConfigFile)
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	origDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("failed to chdir: %v", err)
	}
	defer func() {
		if err := os.Chdir(origDir); err != nil {
			t.Errorf("failed to restore working directory: %v", err)
		}
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.SocketPath != "/tmp/custom.sock" {
		t.Errorf("SocketPath = %q, want %q", cfg.SocketPath, "/tmp/custom.sock")
	}
	if cfg.DebounceMillis != 250 {
		t.Errorf("DebounceMillis = %d, want 250", cfg.DebounceMillis)
	}
	if cfg.Verbosity != "debug" {
		t.Errorf("Verbosity = %q, want %q", cfg.Verbosity, "debug")
	}
	if len(cfg.ExcludePatterns) != 2 {
		t.Fatalf("len(ExcludePatterns) = %d, want 2", len(cfg.ExcludePatterns))
	}
	if cfg.ConfigDir != projectDir {
		t.Errorf("ConfigDir = %q, want %q", cfg.ConfigDir, projectDir)
	}
}

func TestLoadDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	origDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("failed to chdir: %v", err)
	}
	defer func() {
		if err := os.Chdir(origDir); err != nil {
			t.Errorf("failed to restore working directory: %v", err)
		}
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.SocketPath != DefaultSocketPath {
		t.Errorf("SocketPath = %q, want %q", cfg.SocketPath, DefaultSocketPath)
	}
	if cfg.DebounceMillis != DefaultDebounceMillis {
		t.Errorf("DebounceMillis = %d, want %d", cfg.DebounceMillis, DefaultDebounceMillis)
	}
	if cfg.Verbosity != DefaultVerbosity {
		t.Errorf("Verbosity = %q, want %q", cfg.Verbosity, DefaultVerbosity)
	}
	if len(cfg.ExcludePatterns) != 1 {
		t.Errorf("len(ExcludePatterns) = %d, want 1 (default)", len(cfg.ExcludePatterns))
	}
}

func TestValidate(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
		errMsg  string
	}{
		{
			name:    "missing watched root",
			cfg:     Config{},
			wantErr: true,
			errMsg:  "watched root is required",
		},
		{
			name:    "relative watched root",
			cfg:     Config{WatchedRoot: "relative/path"},
			wantErr: true,
			errMsg:  "must be an absolute path",
		},
		{
			name:    "watched root does not exist",
			cfg:     Config{WatchedRoot: filepath.Join(tmpDir, "nope")},
			wantErr: true,
		},
		{
			name:    "watched root is a file",
			cfg:     Config{WatchedRoot: mustTempFile(t, tmpDir)},
			wantErr: true,
			errMsg:  "is not a directory",
		},
		{
			name:    "valid config",
			cfg:     Config{WatchedRoot: tmpDir},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Errorf("Validate() error = nil, want error containing %q", tt.errMsg)
				} else if tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("Validate() error = %q, want error containing %q", err.Error(), tt.errMsg)
				}
			} else if err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func mustTempFile(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "a-file")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDiscoverProjectDir(t *testing.T) {
	tmpDir := t.TempDir()
	sub1 := filepath.Join(tmpDir, "sub1")
	sub2 := filepath.Join(sub1, "sub2")
	if err := os.MkdirAll(sub2, 0755); err != nil {
		t.Fatalf("create subdirs: %v", err)
	}
	projectDir := filepath.Join(tmpDir, ProjectDirName)
	if err := os.Mkdir(projectDir, 0755); err != nil {
		t.Fatalf("create %s: %v", ProjectDirName, err)
	}

	got := DiscoverProjectDir(sub2)
	if got != projectDir {
		t.Errorf("DiscoverProjectDir(%q) = %q, want %q", sub2, got, projectDir)
	}

	got = DiscoverProjectDir(sub1)
	if got != projectDir {
		t.Errorf("DiscoverProjectDir(%q) = %q, want %q", sub1, got, projectDir)
	}

	got = DiscoverProjectDir(tmpDir)
	if got != projectDir {
		t.Errorf("DiscoverProjectDir(%q) = %q, want %q", tmpDir, got, projectDir)
	}

	isolatedDir := t.TempDir()
	got = DiscoverProjectDir(isolatedDir)
	if got != "" {
		t.Errorf("DiscoverProjectDir(%q) = %q, want empty", isolatedDir, got)
	}
}

func TestResolveSocketPath(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		flagValue string
		want      string
	}{
		{
			name:      "flag takes priority",
			cfg:       Config{SocketPath: "/yaml/path.sock"},
			flagValue: "/flag/path.sock",
			want:      "/flag/path.sock",
		},
		{
			name:      "yaml socket_path second",
			cfg:       Config{SocketPath: "/yaml/path.sock"},
			flagValue: "",
			want:      "/yaml/path.sock",
		},
		{
			name:      "default",
			cfg:       Config{},
			flagValue: "",
			want:      DefaultSocketPath,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.ResolveSocketPath(tt.flagValue)
			if got != tt.want {
				t.Errorf("ResolveSocketPath(%q) = %q, want %q", tt.flagValue, got, tt.want)
			}
		})
	}
}

func TestWriteConfigRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	projectDir := filepath.Join(tmpDir, ProjectDirName)
	if err := os.Mkdir(projectDir, 0755); err != nil {
		t.Fatalf("failed to create %s dir: %v", ProjectDirName, err)
	}

	written := &Config{
		WatchedRoot:     "/srv/data",
		SocketPath:      "/tmp/data.sock",
		ExcludePatterns: []string{"**/.git/**", "**/node_modules/**"},
		DebounceMillis:  250,
		Verbosity:       "debug",
		Debug:           true,
	}
	configPath := filepath.Join(projectDir, ProjectConfigFile)
	if err := WriteConfig(written, configPath); err != nil {
		t.Fatalf("WriteConfig() error: %v", err)
	}

	origDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("failed to chdir: %v", err)
	}
	defer func() {
		if err := os.Chdir(origDir); err != nil {
			t.Errorf("failed to restore working directory: %v", err)
		}
	}()

	read, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if read.WatchedRoot != written.WatchedRoot {
		t.Errorf("WatchedRoot = %q, want %q", read.WatchedRoot, written.WatchedRoot)
	}
	if read.SocketPath != written.SocketPath {
		t.Errorf("SocketPath = %q, want %q", read.SocketPath, written.SocketPath)
	}
	if read.DebounceMillis != written.DebounceMillis {
		t.Errorf("DebounceMillis = %d, want %d", read.DebounceMillis, written.DebounceMillis)
	}
	if read.Verbosity != written.Verbosity {
		t.Errorf("Verbosity = %q, want %q", read.Verbosity, written.Verbosity)
	}
	if read.Debug != written.Debug {
		t.Errorf("Debug = %v, want %v", read.Debug, written.Debug)
	}
	if len(read.ExcludePatterns) != len(written.ExcludePatterns) {
		t.Fatalf("len(ExcludePatterns) = %d, want %d", len(read.ExcludePatterns), len(written.ExcludePatterns))
	}
}
