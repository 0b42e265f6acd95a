// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"log"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dt-netlab/pathcast/internal/helper"
	"github.com/dt-netlab/pathcast/internal/logger"
	"github.com/dt-netlab/pathcast/pkg/app"
	"github.com/dt-netlab/pathcast/pkg/config"
	"github.com/dt-netlab/pathcast/pkg/telemetry"
)

const (
	flagListenAddr        = "listenAddr"
	flagAdminAddr         = "adminAddr"
	flagIceServers        = "iceServers"
	flagLoaderType        = "loaderType"
	flagLoaderInterval    = "loaderInterval"
	flagLoaderHttpUrl     = "loaderHttpUrl"
	flagLoaderHttpToken   = "loaderHttpToken"
	flagLoaderHttpTimeout = "loaderHttpTimeout"
	flagLoaderRetryCount  = "loaderHttpRetryCount"
	flagLoaderRetryDelay  = "loaderHttpRetryDelay"
	flagLoaderFilePath    = "loaderFilePath"
	flagTracingExporter   = "tracingExporter"
	flagTracingUrl        = "tracingUrl"
)

// NewCmdRun creates a new run command
func NewCmdRun() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run pathcast",
		Long:  "pathcast will be started with the provided configuration",
		Run:   run,
	}

	flags := cmd.PersistentFlags()
	flags.String(flagListenAddr, "0.0.0.0:5000", "shared UDP socket bind address for WebRTC ICE/media")
	flags.String(flagAdminAddr, "0.0.0.0:8080", "admin/metrics HTTP surface bind address")
	flags.StringSlice(flagIceServers, nil, "STUN/TURN URLs offered to every peer connection")
	flags.String(flagLoaderType, "file", "runtime config loader type: file or http")
	flags.Duration(flagLoaderInterval, 5*time.Minute, "interval between runtime config reloads")
	flags.String(flagLoaderHttpUrl, "", "http loader: url to fetch the runtime configuration from")
	flags.String(flagLoaderHttpToken, "", "http loader: bearer token to authenticate the http endpoint")
	flags.Duration(flagLoaderHttpTimeout, 30*time.Second, "http loader: request timeout")
	flags.Int(flagLoaderRetryCount, 3, "http loader: amount of retries fetching the configuration")
	flags.Duration(flagLoaderRetryDelay, time.Second, "http loader: initial delay between retries")
	flags.String(flagLoaderFilePath, "", "file loader: path to the runtime configuration file")
	flags.String(flagTracingExporter, "none", "tracing exporter: none, stdout, grpc or http")
	flags.String(flagTracingUrl, "", "tracing exporter: collector url (grpc/http exporters)")

	for _, name := range []string{
		flagListenAddr, flagAdminAddr, flagIceServers,
		flagLoaderType, flagLoaderInterval, flagLoaderHttpUrl, flagLoaderHttpToken,
		flagLoaderHttpTimeout, flagLoaderRetryCount, flagLoaderRetryDelay, flagLoaderFilePath,
		flagTracingExporter, flagTracingUrl,
	} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}

	return cmd
}

func buildConfig() *config.Config {
	return &config.Config{
		ListenAddr: viper.GetString(flagListenAddr),
		AdminAddr:  viper.GetString(flagAdminAddr),
		ICEServers: viper.GetStringSlice(flagIceServers),
		Loader: config.LoaderConfig{
			Type:     viper.GetString(flagLoaderType),
			Interval: viper.GetDuration(flagLoaderInterval),
			Http: config.HttpLoaderConfig{
				Url:     viper.GetString(flagLoaderHttpUrl),
				Token:   viper.GetString(flagLoaderHttpToken),
				Timeout: viper.GetDuration(flagLoaderHttpTimeout),
				RetryCfg: helper.RetryConfig{
					Count: viper.GetInt(flagLoaderRetryCount),
					Delay: viper.GetDuration(flagLoaderRetryDelay),
				},
			},
			File: config.FileLoaderConfig{
				Path: viper.GetString(flagLoaderFilePath),
			},
		},
	}
}

// run is the entry point that wires and starts the pathcast process.
func run(cmd *cobra.Command, args []string) {
	ctx, cancel := logger.NewContextWithLogger(context.Background())
	defer cancel()
	log := logger.FromContext(ctx)

	cfg := buildConfig()
	if err := cfg.Validate(ctx); err != nil {
		log.ErrorContext(ctx, "invalid configuration", "error", err)
		exitErr(err)
		return
	}

	telecfg := telemetry.Config{
		Exporter: telemetry.Exporter(viper.GetString(flagTracingExporter)),
		Url:      viper.GetString(flagTracingUrl),
	}
	if err := telecfg.Validate(); err != nil {
		log.ErrorContext(ctx, "invalid tracing configuration", "error", err)
		exitErr(err)
		return
	}

	a, err := app.New(ctx, cfg, telecfg, nil, nil)
	if err != nil {
		log.ErrorContext(ctx, "failed to build application", "error", err)
		exitErr(err)
		return
	}

	log.InfoContext(ctx, "running pathcast", "listen_addr", cfg.ListenAddr, "admin_addr", cfg.AdminAddr)
	if err := a.Run(ctx); err != nil && ctx.Err() == nil {
		exitErr(err)
	}
}

func exitErr(err error) {
	log.Panic(err)
}
