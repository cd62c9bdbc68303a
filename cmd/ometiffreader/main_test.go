package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ometiffreader/pkg/config"
)

func TestApplyOverrides(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Reader.NumCores = 8

	applyOverrides(cfg, overrides{numCores: 2, axis: "x", format: "tiff", logLevel: "debug"})
	assert.Equal(t, 2, cfg.Reader.NumCores)
	assert.Equal(t, "x", cfg.Export.Axis)
	assert.Equal(t, "tiff", cfg.Export.Format)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestApplyOverridesKeepsConfigForUnsetFlags(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Reader.NumCores = 3
	want := *cfg

	applyOverrides(cfg, overrides{})
	assert.Equal(t, want, *cfg)

	// Non-positive core counts are treated as unset.
	applyOverrides(cfg, overrides{numCores: -1})
	assert.Equal(t, 3, cfg.Reader.NumCores)
}
