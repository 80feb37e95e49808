// Copyright (c) 2026, The sn-sub002 Authors. All rights reserved.
//
//  SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the section-wide constants spec §5 calls for
// (elder size, recommended section size, data-copy-count, MIN_ADULT_AGE,
// operation timeout, DKG phase timeout, AE retry budget) from a TOML file
// with environment overrides.
//
// Grounded on drand/drand's config layer (a BurntSushi/toml-decoded
// struct plus a Validate step), since the teacher (kisdex-mpc-lib) is a
// library with no config package of its own.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/maidsafe/sn-sub002/internal/dkground"
	"github.com/maidsafe/sn-sub002/internal/dispatch"
	"github.com/maidsafe/sn-sub002/internal/identifier"
)

// EnvPrefix names the environment-variable override namespace, e.g.
// CORE_ELDER_SIZE.
const EnvPrefix = "CORE_"

// Config is the node-local section-wide constant set.
type Config struct {
	ElderSize              int           `toml:"elder_size"`
	RecommendedSectionSize int           `toml:"recommended_section_size"`
	DataCopyCount          int           `toml:"data_copy_count"`
	MinAdultAge            int           `toml:"min_adult_age"`
	OperationTimeout       time.Duration `toml:"operation_timeout"`
	DkgPhaseTimeout        time.Duration `toml:"dkg_phase_timeout"`
	AeRetryBudget          int           `toml:"ae_retry_budget"`
}

// Default returns the out-of-the-box constants spec §4/§4.5/§4.6 use as
// examples.
func Default() Config {
	return Config{
		ElderSize:              7,
		RecommendedSectionSize: 15,
		DataCopyCount:          4,
		MinAdultAge:            int(identifier.MinAdultAge),
		OperationTimeout:       2 * time.Minute,
		DkgPhaseTimeout:        dkground.DefaultPhaseTimeout,
		AeRetryBudget:          dispatch.DefaultRetryBudget,
	}
}

// Load reads path as TOML over the defaults, then applies CORE_*
// environment overrides, then validates.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}
	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideInt(&cfg.ElderSize, EnvPrefix+"ELDER_SIZE")
	overrideInt(&cfg.RecommendedSectionSize, EnvPrefix+"RECOMMENDED_SECTION_SIZE")
	overrideInt(&cfg.DataCopyCount, EnvPrefix+"DATA_COPY_COUNT")
	overrideInt(&cfg.MinAdultAge, EnvPrefix+"MIN_ADULT_AGE")
	overrideInt(&cfg.AeRetryBudget, EnvPrefix+"AE_RETRY_BUDGET")
	overrideDuration(&cfg.OperationTimeout, EnvPrefix+"OPERATION_TIMEOUT")
	overrideDuration(&cfg.DkgPhaseTimeout, EnvPrefix+"DKG_PHASE_TIMEOUT")
}

func overrideInt(dst *int, env string) {
	v, ok := os.LookupEnv(env)
	if !ok {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

func overrideDuration(dst *time.Duration, env string) {
	v, ok := os.LookupEnv(env)
	if !ok {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
	}
}

// Validate enforces the constant set's internal consistency: elder size
// and data-copy count of at least one, a recommended section size no
// smaller than the elder size, a min adult age in 1..254, positive
// timeouts and a retry budget of at least one. It does not compare the
// data-copy count with the elder size.
func (c Config) Validate() error {
	if c.ElderSize < 1 {
		return fmt.Errorf("config: elder_size must be >= 1")
	}
	if c.DataCopyCount < 1 {
		return fmt.Errorf("config: data_copy_count must be >= 1")
	}
	if c.RecommendedSectionSize < c.ElderSize {
		return fmt.Errorf("config: recommended_section_size must be >= elder_size")
	}
	if c.MinAdultAge < 1 || c.MinAdultAge >= 255 {
		return fmt.Errorf("config: min_adult_age out of range")
	}
	if c.OperationTimeout <= 0 || c.DkgPhaseTimeout <= 0 {
		return fmt.Errorf("config: timeouts must be positive")
	}
	if c.AeRetryBudget < 1 {
		return fmt.Errorf("config: ae_retry_budget must be >= 1")
	}
	return nil
}
