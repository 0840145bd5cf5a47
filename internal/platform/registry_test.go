package platform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-sync/internal/domain"
)

func TestRegistry(t *testing.T) {
	t.Run("bundled adapters are registered", func(t *testing.T) {
		assert.True(t, Known(MemoryPlatformName))
		assert.True(t, Known(WebhookPlatformName))
		assert.False(t, Known("fax-machine"))
	})

	t.Run("duplicate registration fails", func(t *testing.T) {
		err := Register(MemoryPlatformName, func(cfg Config) (Platform, error) { return nil, nil })
		assert.Error(t, err)
	})

	t.Run("unknown platform", func(t *testing.T) {
		_, err := New("fax-machine", Config{})
		assert.Error(t, err)
	})

	t.Run("names are sorted", func(t *testing.T) {
		names := Names()
		assert.Contains(t, names, MemoryPlatformName)
		assert.Contains(t, names, WebhookPlatformName)
		assert.IsIncreasing(t, names)
	})
}

func TestMemoryPlatform(t *testing.T) {
	adapter, err := New(MemoryPlatformName, Config{IntegrationID: "int-1"})
	require.NoError(t, err)

	first, err := adapter.Create(context.Background(), &domain.Ticket{Title: "one"})
	require.NoError(t, err)
	second, err := adapter.Create(context.Background(), &domain.Ticket{Title: "two"})
	require.NoError(t, err)

	assert.Equal(t, "MEM-0001", first.ExternalID)
	assert.Equal(t, "MEM-0002", second.ExternalID)
	assert.NotEmpty(t, first.ExternalURL)

	info, err := adapter.TestConnection(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, info)
}
