// Copyright 2025 Supabase, Inc.
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

package poolconfig

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cast"
)

// Canonical option keys.
const (
	KeyMinSize        = "min_size"
	KeyMaxSize        = "max_size"
	KeyMaxOverflow    = "max_overflow"
	KeyRecycle        = "recycle_seconds"
	KeyPrePing        = "pre_ping"
	KeyAcquireTimeout = "acquire_timeout_seconds"
	KeyIdleTimeout    = "idle_timeout_seconds"
	KeyStaleRetries   = "stale_retries"
	KeyReapInterval   = "reap_interval_seconds"
)

// legacyKeys maps older option names onto canonical keys.
var legacyKeys = map[string]string{
	"pool_size": KeyMaxSize,
	"recycle":   KeyRecycle,
	"timeout":   KeyAcquireTimeout,
	"min":       KeyMinSize,
	"max":       KeyMaxSize,
}

// options mirrors Config with the option-map field names.
type options struct {
	MinSize        int           `mapstructure:"min_size"`
	MaxSize        int           `mapstructure:"max_size"`
	MaxOverflow    int           `mapstructure:"max_overflow"`
	StaleRetries   int           `mapstructure:"stale_retries"`
	PrePing        bool          `mapstructure:"pre_ping"`
	Recycle        time.Duration `mapstructure:"recycle_seconds"`
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout_seconds"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout_seconds"`
	ReapInterval   time.Duration `mapstructure:"reap_interval_seconds"`
}

var knownKeys = func() map[string]bool {
	known := make(map[string]bool)
	t := reflect.TypeOf(options{})
	for i := range t.NumField() {
		known[t.Field(i).Tag.Get("mapstructure")] = true
	}
	return known
}()

// Merge applies overrides on top of defaults.
//
// Keys are case-insensitive and legacy names are accepted. Keys that match
// no option are skipped and returned, sorted, so the caller can warn about
// them. A value that cannot be coerced, or a merged result that violates
// Validate, yields an error matching ErrConfig.
func Merge(defaults Config, overrides map[string]any) (Config, []string, error) {
	opts := options{
		MinSize:        defaults.MinSize,
		MaxSize:        defaults.MaxSize,
		MaxOverflow:    defaults.MaxOverflow,
		StaleRetries:   defaults.StaleRetries,
		PrePing:        defaults.PreValidate,
		Recycle:        defaults.MaxLifetime,
		AcquireTimeout: defaults.AcquireTimeout,
		IdleTimeout:    defaults.IdleTimeout,
		ReapInterval:   defaults.ReapInterval,
	}

	type entry struct {
		raw, key string
		legacy   bool
		value    any
	}
	var (
		entries []entry
		ignored []string
	)
	for raw, value := range overrides {
		key := strings.ToLower(strings.TrimSpace(raw))
		if canonical, ok := legacyKeys[key]; ok {
			entries = append(entries, entry{raw: raw, key: canonical, legacy: true, value: value})
			continue
		}
		if !knownKeys[key] {
			ignored = append(ignored, raw)
			continue
		}
		entries = append(entries, entry{raw: raw, key: key, value: value})
	}
	slices.Sort(ignored)
	// Legacy names first so that a canonical key given alongside wins.
	slices.SortFunc(entries, func(a, b entry) int {
		if a.legacy != b.legacy {
			if a.legacy {
				return -1
			}
			return 1
		}
		return strings.Compare(a.raw, b.raw)
	})

	for _, e := range entries {
		if err := decodeOption(&opts, e.key, e.value); err != nil {
			return Config{}, ignored, &ConfigError{Key: e.raw, Value: e.value, Err: err}
		}
	}

	cfg := Config{
		PreValidate:    opts.PrePing,
		IdleTimeout:    opts.IdleTimeout,
		AcquireTimeout: opts.AcquireTimeout,
		MaxLifetime:    max(opts.Recycle, 0),
		MinSize:        opts.MinSize,
		MaxSize:        opts.MaxSize,
		MaxOverflow:    opts.MaxOverflow,
		StaleRetries:   opts.StaleRetries,
		ReapInterval:   opts.ReapInterval,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, ignored, err
	}
	return cfg, ignored, nil
}

func decodeOption(opts *options, key string, value any) error {
	// An unset acquire timeout means no pool-imposed bound.
	if key == KeyAcquireTimeout && isNone(value) {
		opts.AcquireTimeout = 0
		return nil
	}
	if value == nil {
		return errors.New("value is required")
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: coerce,
		Result:     opts,
	})
	if err != nil {
		return err
	}
	return dec.Decode(map[string]any{key: value})
}

func isNone(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && (strings.EqualFold(s, "none") || strings.TrimSpace(s) == "")
}

var durationType = reflect.TypeOf(time.Duration(0))

// coerce converts loosely typed option values into the field's type.
func coerce(_ reflect.Type, to reflect.Type, data any) (any, error) {
	switch {
	case to == durationType:
		return toSeconds(data)
	case to.Kind() == reflect.Int:
		if f, ok := data.(float64); ok && f != float64(int(f)) {
			return nil, fmt.Errorf("%v is not a whole number", f)
		}
		return cast.ToIntE(data)
	case to.Kind() == reflect.Bool:
		return cast.ToBoolE(data)
	}
	return data, nil
}

// toSeconds reads numbers as seconds and strings either as seconds
// ("30", "0.1") or as Go durations ("100ms").
func toSeconds(data any) (time.Duration, error) {
	switch v := data.(type) {
	case time.Duration:
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return secondsToDuration(f), nil
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("%q is neither seconds nor a duration", v)
		}
		return d, nil
	default:
		f, err := cast.ToFloat64E(data)
		if err != nil {
			return 0, err
		}
		return secondsToDuration(f), nil
	}
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
