package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider_RejectsEmptyServiceName(t *testing.T) {
	_, err := NewProvider(context.Background(), ProviderConfig{}, 8)
	assert.Error(t, err)
}

func TestNewProvider_StdoutExporterBuildsUsableProvider(t *testing.T) {
	p, err := NewProvider(context.Background(), ProviderConfig{
		ServiceName: "rhema-test",
		Exporter:    ExporterStdout,
	}, 8)
	require.NoError(t, err)
	require.NotNil(t, p.Events)
	require.NotNil(t, p.Tracer())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))
}

func TestProvider_RegistryIsCachedPerComponent(t *testing.T) {
	p, err := NewProvider(context.Background(), ProviderConfig{
		ServiceName: "rhema-test",
		Exporter:    ExporterStdout,
	}, 8)
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	r1 := p.Registry("cache", 0)
	r2 := p.Registry("cache", 0)
	assert.Same(t, r1, r2)

	r3 := p.Registry("search", 0)
	assert.NotSame(t, r1, r3)
}
