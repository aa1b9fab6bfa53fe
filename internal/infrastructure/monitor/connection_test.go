package monitor

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/portal/internal/infrastructure/boltdb"
)

func TestRefreshAggregatesProbes(t *testing.T) {
	dbErr := errors.New("connection refused")
	pgHealthy := true
	m := New(0, nil,
		Probe{Name: "postgresql", Critical: true, Check: func(context.Context) error {
			if pgHealthy {
				return nil
			}
			return dbErr
		}},
		Probe{Name: "buffer", Check: func(context.Context) error { return errors.New("disk full") }},
	)

	m.refresh()
	status := m.GetStatus()
	assert.True(t, m.IsOnline())
	assert.True(t, status.Components["postgresql"].Healthy)
	assert.False(t, status.Components["buffer"].Healthy)
	assert.Equal(t, "disk full", status.Components["buffer"].Error)

	pgHealthy = false
	m.refresh()
	assert.False(t, m.IsOnline())
	assert.Equal(t, "connection refused", m.GetStatus().Components["postgresql"].Error)
}

func TestNilDependenciesAreUnhealthy(t *testing.T) {
	m := New(0, nil, PostgresProbe(nil), RedisProbe(nil), BufferProbe(nil), Probe{Name: "empty"})
	m.refresh()

	assert.False(t, m.IsOnline())
	for name, component := range m.GetStatus().Components {
		assert.False(t, component.Healthy, name)
	}
}

func TestBoltProbe(t *testing.T) {
	db, err := boltdb.Open(filepath.Join(t.TempDir(), "probe.db"))
	require.NoError(t, err)

	m := New(0, nil, BoltProbe("session_store", db, true))
	m.refresh()
	assert.True(t, m.IsOnline())

	require.NoError(t, db.Close())
	m.refresh()
	assert.False(t, m.IsOnline())
}

func TestStatusIsCopied(t *testing.T) {
	m := New(0, nil, Probe{Name: "x", Check: func(context.Context) error { return nil }})
	m.refresh()

	status := m.GetStatus()
	status.Components["x"] = Component{Healthy: false}
	assert.True(t, m.GetStatus().Components["x"].Healthy)
}

func TestStopIsIdempotent(t *testing.T) {
	m := New(0, nil)
	m.Start()
	m.Stop()
	m.Stop()
}
