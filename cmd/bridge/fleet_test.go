package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elegoo-bridge/core/config"
)

func TestOpenFleet_NoDevicesReturnsEmptyFleet(t *testing.T) {
	f, err := openFleet(context.Background(), &config.Config{})
	require.NoError(t, err)
	assert.Empty(t, f.printers)

	f.Close() // must not panic on an empty fleet
}
