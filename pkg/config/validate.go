// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"

	"github.com/dt-netlab/pathcast/internal/logger"
)

// Validate validates the static startup config (spec §6 "configuration
// surface": the shared UDP socket's bind address plus everything needed to
// resolve RuntimeConfig).
func (c *Config) Validate(ctx context.Context) (err error) {
	log := logger.FromContext(ctx)

	if _, _, pErr := net.SplitHostPort(c.ListenAddr); pErr != nil {
		log.Error("The listen address is not a valid host:port", "error", pErr)
		err = errors.Join(err, ErrInvalidListenAddr)
	}

	if c.AdminAddr != "" {
		if _, _, pErr := net.SplitHostPort(c.AdminAddr); pErr != nil {
			log.Error("The admin address is not a valid host:port", "error", pErr)
			err = errors.Join(err, ErrInvalidListenAddr)
		}
	}

	if vErr := c.Loader.Validate(ctx); vErr != nil {
		log.Error("The loader configuration is invalid")
		err = errors.Join(err, vErr)
	}

	if err != nil {
		return fmt.Errorf("validation of configuration failed: %w", err)
	}
	return nil
}

// Validate validates the loader configuration
func (c *LoaderConfig) Validate(ctx context.Context) error {
	log := logger.FromContext(ctx)

	if c.Interval < 0 {
		log.Error("The loader interval should be equal or above 0", "interval", c.Interval)
		return ErrInvalidLoaderInterval
	}

	switch c.Type {
	case "http":
		if _, err := url.ParseRequestURI(c.Http.Url); err != nil {
			log.Error("The loader http url is not a valid url")
			return ErrInvalidLoaderHttpURL
		}
		if c.Http.RetryCfg.Count < 0 || c.Http.RetryCfg.Count >= 5 {
			log.Error("The amount of loader http retries should be between 0 and 4", "retryCount", c.Http.RetryCfg.Count)
			return ErrInvalidLoaderHttpRetryCount
		}
	case "file":
		if c.File.Path == "" {
			log.Error("The loader file path cannot be empty")
			return ErrInvalidLoaderFilePath
		}
	}

	return nil
}
