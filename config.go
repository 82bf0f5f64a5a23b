// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package iothread

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joeycumines/logiface"
)

// Config models the TOML configuration file, e.g.
//
//	[scheduler]
//	initial_capacity = 64
//	[timer]
//	grace_period = "1s"
//	default_skew = "100ms"
//	[log]
//	level = "info"
//
// Zero values leave the corresponding default in place.
type Config struct {
	Scheduler SchedulerConfig `toml:"scheduler"`
	Timer     TimerConfig     `toml:"timer"`
	Log       LogConfig       `toml:"log"`
}

// SchedulerConfig configures the runtime's scheduler.
type SchedulerConfig struct {
	InitialCapacity int `toml:"initial_capacity"`
}

// TimerConfig configures the runtime's timer manager.
type TimerConfig struct {
	GracePeriod time.Duration `toml:"grace_period"`
	DefaultSkew time.Duration `toml:"default_skew"`
}

// LogConfig configures the logger built by Config.Logger.
type LogConfig struct {
	// Level is a syslog keyword (e.g. "info", "warning", "err"), "trace", or
	// "disabled". Defaults to "info".
	Level string `toml:"level"`
}

// LoadConfig decodes the TOML file at path. Unknown keys are an error.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf(`iothread: load config: %w`, err)
	}
	if err := checkUndecoded(md); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ParseConfig decodes TOML from data. Unknown keys are an error.
func ParseConfig(data string) (*Config, error) {
	var cfg Config
	md, err := toml.Decode(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf(`iothread: parse config: %w`, err)
	}
	if err := checkUndecoded(md); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func checkUndecoded(md toml.MetaData) error {
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf(`iothread: unknown config keys: %s`, strings.Join(keys, `, `))
	}
	return nil
}

// Logger builds a logger writing to w, using the configured level.
func (c *Config) Logger(w io.Writer) (*logiface.Logger[logiface.Event], error) {
	level, err := ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	return NewLogger(w, level), nil
}

// ParseLevel converts a level keyword, as produced by logiface.Level.String,
// to a logiface.Level. An empty string is treated as "info".
func ParseLevel(s string) (logiface.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case ``, `info`, `informational`:
		return logiface.LevelInformational, nil
	case `disabled`, `off`:
		return logiface.LevelDisabled, nil
	case `emerg`, `emergency`:
		return logiface.LevelEmergency, nil
	case `alert`:
		return logiface.LevelAlert, nil
	case `crit`, `critical`:
		return logiface.LevelCritical, nil
	case `err`, `error`:
		return logiface.LevelError, nil
	case `warning`, `warn`:
		return logiface.LevelWarning, nil
	case `notice`:
		return logiface.LevelNotice, nil
	case `debug`:
		return logiface.LevelDebug, nil
	case `trace`:
		return logiface.LevelTrace, nil
	default:
		return logiface.LevelDisabled, fmt.Errorf(`iothread: unknown log level %q`, s)
	}
}
