// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package iothread

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const exampleConfig = `
[scheduler]
initial_capacity = 64

[timer]
grace_period = "1s"
default_skew = "100ms"

[log]
level = "debug"
`

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig(exampleConfig)
	require.NoError(t, err)
	assert.Equal(t, &Config{
		Scheduler: SchedulerConfig{InitialCapacity: 64},
		Timer:     TimerConfig{GracePeriod: time.Second, DefaultSkew: 100 * time.Millisecond},
		Log:       LogConfig{Level: `debug`},
	}, cfg)
}

func TestParseConfig_unknownKey(t *testing.T) {
	_, err := ParseConfig("[scheduler]\ninitial_capacity = 1\nworkers = 4\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `scheduler.workers`)
}

func TestParseConfig_invalid(t *testing.T) {
	_, err := ParseConfig(`[timer]
grace_period = "soon"
`)
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), `iothread.toml`)
	require.NoError(t, os.WriteFile(path, []byte(exampleConfig), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Scheduler.InitialCapacity)

	_, err = LoadConfig(filepath.Join(t.TempDir(), `missing.toml`))
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	for _, tc := range []struct {
		in  string
		out logiface.Level
	}{
		{``, logiface.LevelInformational},
		{`info`, logiface.LevelInformational},
		{`Warning`, logiface.LevelWarning},
		{` err `, logiface.LevelError},
		{`trace`, logiface.LevelTrace},
		{`disabled`, logiface.LevelDisabled},
		{`emerg`, logiface.LevelEmergency},
	} {
		level, err := ParseLevel(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.out, level, tc.in)
	}

	// round trips
	for level := logiface.LevelDisabled; level <= logiface.LevelTrace; level++ {
		parsed, err := ParseLevel(level.String())
		require.NoError(t, err)
		assert.Equal(t, level, parsed)
	}

	_, err := ParseLevel(`loud`)
	assert.Error(t, err)
}

func TestConfig_Logger(t *testing.T) {
	var buf bytes.Buffer
	cfg := &Config{Log: LogConfig{Level: `warning`}}
	logger, err := cfg.Logger(&buf)
	require.NoError(t, err)

	logger.Info().Log(`hidden`)
	logger.Warning().Str(`k`, `v`).Log(`shown`)
	assert.NotContains(t, buf.String(), `hidden`)
	assert.Contains(t, buf.String(), `shown`)

	_, err = (&Config{Log: LogConfig{Level: `nope`}}).Logger(&buf)
	assert.Error(t, err)
}
