// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func writeTestConfigFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write test config file: %v", err)
	}
	return path
}

func TestNewFileLoader(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfigFile(t, dir, "config.yaml", "tracerouteRounds: 3\n")

	l := NewFileLoader(&Config{Loader: LoaderConfig{File: FileLoaderConfig{Path: path}}}, make(chan RuntimeConfig, 1))

	if l.config.File.Path != path {
		t.Errorf("Expected path to be %s, got %s", path, l.config.File.Path)
	}
	if l.cRuntime == nil {
		t.Errorf("Expected channel to be not nil")
	}
	if l.fsys == nil {
		t.Errorf("Expected filesystem to be not nil")
	}
}

func TestFileLoader_Run(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfigFile(t, dir, "config.yaml", "tracerouteRounds: 3\nmtuRounds: 9\nmagicKeys:\n  DEMO:\n    maxMeasuringSeconds: 120\n")

	want := RuntimeConfig{
		TracerouteRounds: 3,
		MtuRounds:        9,
		MagicKeys: map[string]MagicKeyConfig{
			"DEMO": {MaxMeasuringSeconds: 120},
		},
	}

	tests := []struct {
		name    string
		config  LoaderConfig
		want    RuntimeConfig
		wantErr bool
	}{
		{
			name: "Loads config from file",
			config: LoaderConfig{
				Type:     "file",
				Interval: 0,
				File:     FileLoaderConfig{Path: path},
			},
			want:    want,
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := t.Context()
			result := make(chan RuntimeConfig, 1)
			f := NewFileLoader(&Config{
				Loader: tt.config,
			}, result)

			go func(wantErr bool) {
				defer close(result)
				err := f.Run(ctx)
				if (err != nil) != wantErr {
					t.Errorf("Run() error %v, want %v", err, wantErr)
				}
			}(tt.wantErr)
			defer f.Shutdown(ctx)

			if !tt.wantErr {
				select {
				case cfg := <-result:
					if !reflect.DeepEqual(cfg, tt.want) {
						t.Errorf("Expected config to be %v, got %v", tt.want, cfg)
					}
				case <-time.After(time.Second):
					t.Fatal("timed out waiting for runtime config")
				}
			}
		})
	}
}

func TestFileLoader_getRuntimeConfig(t *testing.T) {
	dir := t.TempDir()
	validPath := writeTestConfigFile(t, dir, "valid.yaml", "tracerouteRounds: 3\n")
	malformedPath := writeTestConfigFile(t, dir, "malformed.yaml", "this is not: [valid yaml")

	tests := []struct {
		name    string
		path    string
		want    RuntimeConfig
		wantErr bool
	}{
		{
			name:    "Invalid File Path",
			path:    filepath.Join(dir, "nonexistent.yaml"),
			wantErr: true,
		},
		{
			name:    "Malformed Config File",
			path:    malformedPath,
			wantErr: true,
		},
		{
			name:    "Valid Config File",
			path:    validPath,
			want:    RuntimeConfig{TracerouteRounds: 3},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFileLoader(&Config{
				Loader: LoaderConfig{File: FileLoaderConfig{Path: tt.path}},
			}, make(chan RuntimeConfig, 1))

			cfg, err := f.getRuntimeConfig(t.Context())
			if (err != nil) != tt.wantErr {
				t.Errorf("getRuntimeConfig() error %v, want %v", err, tt.wantErr)
			}

			if !tt.wantErr && !reflect.DeepEqual(cfg, tt.want) {
				t.Errorf("Expected config to be %v, got %v", tt.want, cfg)
			}
		})
	}
}
