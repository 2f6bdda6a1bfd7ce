// Copyright Project Flowplane Authors
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

// Package timeout parses the timeout settings of the configuration file:
// request budgets, shutdown grace and route timeouts share one grammar.
package timeout

import (
	"fmt"
	"time"
)

// Setting describes a timeout setting that can be exactly one of:
// disable the timeout entirely, use the default, or use a specific
// value. The zero value is a Setting representing "use the default".
type Setting struct {
	val      time.Duration
	valset   bool
	disabled bool
}

// IsDisabled returns whether the timeout should be disabled entirely.
func (s Setting) IsDisabled() bool {
	return s.disabled
}

// UseDefault returns whether the default timeout value should be used.
func (s Setting) UseDefault() bool {
	return !s.disabled && !s.valset
}

// Duration returns the explicit timeout value if one exists.
func (s Setting) Duration() time.Duration {
	return s.val
}

// Or resolves the setting against a default: disabled yields zero, default
// yields d, an explicit value yields itself.
func (s Setting) Or(d time.Duration) time.Duration {
	switch {
	case s.disabled:
		return 0
	case s.valset:
		return s.val
	default:
		return d
	}
}

// DefaultSetting returns a Setting representing "use the default".
func DefaultSetting() Setting {
	return Setting{}
}

// DisabledSetting returns a Setting representing "disable the timeout".
func DisabledSetting() Setting {
	return Setting{disabled: true}
}

// DurationSetting returns a timeout setting with the given duration.
func DurationSetting(duration time.Duration) Setting {
	if duration == 0 {
		return DefaultSetting()
	}
	return Setting{val: duration, valset: true}
}

// Parse parses string representations of timeout settings in a standard
// way:
//   - an empty string means "use the default".
//   - any valid representation of "0" means "use the default".
//   - a valid Go duration string is used as the specific timeout value.
//   - "infinity" or "infinite" means "disable the timeout".
//   - any other value results in an error.
func Parse(timeout string) (Setting, error) {
	if timeout == "" {
		return DefaultSetting(), nil
	}

	if timeout == "infinity" || timeout == "infinite" {
		return DisabledSetting(), nil
	}

	d, err := time.ParseDuration(timeout)
	if err != nil {
		return Setting{}, fmt.Errorf("unable to parse timeout string %q: %w", timeout, err)
	}

	if d == 0 {
		return DefaultSetting(), nil
	}

	return DurationSetting(d), nil
}
