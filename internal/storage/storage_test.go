package storage

import (
	"context"
	"testing"

	"github.com/IgorGrieder/short-url/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenRejectsUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), &config.Config{Storage: config.StorageConfig{Backend: "sqlite"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite")
}
