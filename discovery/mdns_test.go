package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewService(t *testing.T) {
	service, err := newService(3001, "default")

	require.NoError(t, err)
	assert.Equal(t, ServiceType, service.Service)
	assert.Equal(t, 3001, service.Port)
	assert.Contains(t, service.TXT, "path=/ws")
	assert.Contains(t, service.TXT, "board=default")
	require.Len(t, service.IPs, 1)
	assert.NotNil(t, service.IPs[0].To4())
}

func TestAdvertiser_NilShutdown(t *testing.T) {
	var a *Advertiser
	assert.NoError(t, a.Shutdown())
}
