// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the optional YAML file backing spanbridge-demo's
// defaults, the same way the rest of this codebase reads its config.yaml
// at startup.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// File is the shape of the optional YAML config file. Every field except
// Headers mirrors a spanbridge-demo flag and is overridden by the flag when
// both are set; Headers has no flag counterpart.
type File struct {
	Endpoint     string        `yaml:"endpoint"`
	ServiceName  string        `yaml:"service_name"`
	Children     int           `yaml:"children"`
	SendInterval time.Duration `yaml:"send_interval"`
	Headers      []Header      `yaml:"headers"`
}

// Header is a single outbound HTTP header applied to every OTLP export
// request, as read from YAML.
type Header struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

// Load reads and parses path. A missing file is not an error: it returns
// the zero File so callers fall back entirely to flag defaults.
func Load(path string) (File, error) {
	var f File
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return f, nil
	}
	if err != nil {
		return f, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return f, fmt.Errorf("parsing %s: %w", path, err)
	}
	return f, nil
}
