// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"testing"
	"time"

	"github.com/dt-netlab/pathcast/internal/helper"
)

func TestConfig_Validate(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name: "config ok",
			config: Config{
				ListenAddr: "0.0.0.0:3478",
				AdminAddr:  ":8080",
				Loader: LoaderConfig{
					Type: "http",
					Http: HttpLoaderConfig{
						Url:     "https://test.de/config",
						Timeout: time.Second,
						RetryCfg: helper.RetryConfig{
							Count: 1,
							Delay: time.Second,
						},
					},
					Interval: time.Second,
				},
			},
			wantErr: false,
		},
		{
			name: "listen addr missing port",
			config: Config{
				ListenAddr: "0.0.0.0",
				Loader: LoaderConfig{
					Type: "file",
					File: FileLoaderConfig{Path: "config.yaml"},
				},
			},
			wantErr: true,
		},
		{
			name: "admin addr malformed",
			config: Config{
				ListenAddr: "0.0.0.0:3478",
				AdminAddr:  "not-an-addr",
				Loader: LoaderConfig{
					Type: "file",
					File: FileLoaderConfig{Path: "config.yaml"},
				},
			},
			wantErr: true,
		},
		{
			name: "loader - url missing",
			config: Config{
				ListenAddr: "0.0.0.0:3478",
				Loader: LoaderConfig{
					Type: "http",
					Http: HttpLoaderConfig{
						Url:     "",
						Timeout: time.Second,
						RetryCfg: helper.RetryConfig{
							Count: 1,
							Delay: time.Second,
						},
					},
					Interval: time.Second,
				},
			},
			wantErr: true,
		},
		{
			name: "loader - url malformed",
			config: Config{
				ListenAddr: "0.0.0.0:3478",
				Loader: LoaderConfig{
					Type: "http",
					Http: HttpLoaderConfig{
						Url:     "this is not a valid url",
						Timeout: time.Second,
						RetryCfg: helper.RetryConfig{
							Count: 1,
							Delay: time.Second,
						},
					},
					Interval: time.Second,
				},
			},
			wantErr: true,
		},
		{
			name: "loader - retry count too high",
			config: Config{
				ListenAddr: "0.0.0.0:3478",
				Loader: LoaderConfig{
					Type: "http",
					Http: HttpLoaderConfig{
						Url:     "https://test.de",
						Timeout: time.Minute,
						RetryCfg: helper.RetryConfig{
							Count: 100000,
							Delay: time.Second,
						},
					},
					Interval: time.Second,
				},
			},
			wantErr: true,
		},
		{
			name: "loader - file path malformed",
			config: Config{
				ListenAddr: "0.0.0.0:3478",
				Loader: LoaderConfig{
					Type: "file",
					File: FileLoaderConfig{
						Path: "",
					},
					Interval: time.Second,
				},
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(ctx); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
