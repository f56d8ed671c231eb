// Copyright (C) The Biodivine Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package config loads and validates experiment files.
package config

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ghodss/yaml"
	"github.com/sirupsen/logrus"
	"github.com/sybila/biodivine/sdk/go/biodivine"
	"github.com/sybila/biodivine/sdk/go/ctxlog"
)

// StdinName is the experiment name used when the experiment file
// is read from stdin and does not name itself.
const StdinName = "experiment"

// A Loader reads an experiment file and layers it on top of
// DefaultYAML.
type Loader struct {
	Stdin  io.Reader
	Logger logrus.FieldLogger

	// Experiment file to read. "-" means Stdin.
	Path string
}

// NewLoader returns a new Loader that reads from stdin when Path is
// "-" and logs warnings to logger. A nil logger means the top-level
// logger.
func NewLoader(stdin io.Reader, logger logrus.FieldLogger) *Loader {
	if logger == nil {
		logger = ctxlog.FromContext(context.Background())
	}
	return &Loader{Stdin: stdin, Logger: logger, Path: "-"}
}

// Load reads and parses the experiment file. Errors caused by the
// file's content wrap biodivine.ErrConfiguration.
func (ldr *Loader) Load() (*biodivine.Config, error) {
	var buf []byte
	var err error
	name := StdinName
	if ldr.Path == "-" {
		buf, err = io.ReadAll(ldr.Stdin)
	} else {
		buf, err = os.ReadFile(ldr.Path)
		base := filepath.Base(ldr.Path)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if err != nil {
		return nil, err
	}
	return ldr.load(buf, name)
}

func (ldr *Loader) load(buf []byte, defaultName string) (*biodivine.Config, error) {
	var supplied map[string]interface{}
	if err := yaml.Unmarshal(buf, &supplied); err != nil {
		return nil, biodivine.ConfigErrorf("%s", err)
	}

	var cfg biodivine.Config
	if err := yaml.Unmarshal(DefaultYAML, &cfg); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}
	var defaults map[string]interface{}
	if err := yaml.Unmarshal(DefaultYAML, &defaults); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}
	ldr.logExtraKeys(defaults, supplied, "")

	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, biodivine.ConfigErrorf("%s", err)
	}
	if cfg.Experiment == "" {
		cfg.Experiment = defaultName
	}
	return &cfg, nil
}

// Warn about keys that are not in the defaults. Config keys are
// matched case-insensitively, like encoding/json does. Task entries
// are not checked because unknown task keys are forwarded to the
// workers.
func (ldr *Loader) logExtraKeys(expected, supplied map[string]interface{}, prefix string) {
	allowed := map[string]interface{}{}
	for k, v := range expected {
		allowed[strings.ToLower(k)] = v
	}
	for k, vsupp := range supplied {
		lk := strings.ToLower(k)
		if prefix == "" && lk == "tasks" {
			continue
		}
		vexp, ok := allowed[lk]
		if !ok {
			ldr.Logger.Warnf("deprecated or unknown config entry: %s%s", prefix, k)
			continue
		}
		if vsupp, ok := vsupp.(map[string]interface{}); ok {
			if vexp, ok := vexp.(map[string]interface{}); ok {
				ldr.logExtraKeys(vexp, vsupp, prefix+k+".")
			}
		}
	}
}
