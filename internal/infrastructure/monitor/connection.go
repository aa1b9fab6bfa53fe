package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	bolt "go.etcd.io/bbolt"

	"github.com/fastygo/portal/internal/infrastructure/buffer"
)

// Probe checks one dependency. Critical probes decide IsOnline.
type Probe struct {
	Name     string
	Critical bool
	Timeout  time.Duration
	Check    func(ctx context.Context) error
}

type Monitor struct {
	probes []Probe

	status   Status
	mu       sync.RWMutex
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger
}

func New(interval time.Duration, logger *zap.Logger, probes ...Probe) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		probes:   probes,
		interval: interval,
		stopCh:   make(chan struct{}),
		logger:   logger,
	}
}

func (m *Monitor) Start() {
	go m.loop()
}

func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.Online
}

func (m *Monitor) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.clone()
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.refresh()
	for {
		select {
		case <-ticker.C:
			m.refresh()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Monitor) refresh() {
	status := Status{
		Online:     true,
		Components: make(map[string]Component, len(m.probes)),
		LastCheck:  time.Now(),
	}
	for _, probe := range m.probes {
		component := m.run(probe)
		status.Components[probe.Name] = component
		if probe.Critical && !component.Healthy {
			status.Online = false
		}
	}

	m.mu.Lock()
	previous := m.status
	m.status = status
	m.mu.Unlock()

	if !previous.LastCheck.IsZero() && previous.Online != status.Online {
		m.logger.Info("dependency status changed", zap.Bool("online", status.Online))
	}
}

func (m *Monitor) run(probe Probe) Component {
	timeout := probe.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if probe.Check == nil {
		return Component{Healthy: false, Error: "not configured"}
	}
	if err := probe.Check(ctx); err != nil {
		m.logger.Debug("probe failed", zap.String("probe", probe.Name), zap.Error(err))
		return Component{Healthy: false, Error: err.Error()}
	}
	return Component{Healthy: true}
}

func PostgresProbe(pool *pgxpool.Pool) Probe {
	return Probe{Name: "postgresql", Critical: true, Timeout: 3 * time.Second, Check: func(ctx context.Context) error {
		if pool == nil {
			return errNotConfigured
		}
		return pool.Ping(ctx)
	}}
}

func RedisProbe(client *redislib.Client) Probe {
	return Probe{Name: "redis", Critical: true, Timeout: 2 * time.Second, Check: func(ctx context.Context) error {
		if client == nil {
			return errNotConfigured
		}
		return client.Ping(ctx).Err()
	}}
}

// BufferProbe reports the replay buffer. It is never critical: the buffer is
// the fallback while the databases are down.
func BufferProbe(store *buffer.Store) Probe {
	return Probe{Name: "buffer", Check: func(context.Context) error {
		if store == nil {
			return errNotConfigured
		}
		_, err := store.Size()
		return err
	}}
}

// BoltProbe checks that a bbolt file still accepts read transactions.
func BoltProbe(name string, db *bolt.DB, critical bool) Probe {
	return Probe{Name: name, Critical: critical, Check: func(context.Context) error {
		if db == nil {
			return errNotConfigured
		}
		return db.View(func(*bolt.Tx) error { return nil })
	}}
}
