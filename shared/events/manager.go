package events

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Manager owns the consumers of one service process.
type Manager struct {
	consumers []*Consumer
}

func NewManager(consumers ...*Consumer) *Manager {
	return &Manager{consumers: consumers}
}

func (m *Manager) Add(c *Consumer) {
	m.consumers = append(m.consumers, c)
}

// Start starts every consumer. If one fails, those already started are
// stopped again and the error is returned.
func (m *Manager) Start(ctx context.Context, stopTimeout time.Duration) error {
	logrus.Infof("Starting %d event consumers", len(m.consumers))

	for i, c := range m.consumers {
		if err := c.Start(ctx); err != nil {
			for _, started := range m.consumers[:i] {
				started.Stop(stopTimeout)
			}
			return err
		}
	}
	return nil
}

// Stop drains all consumers concurrently, each bounded by timeout.
func (m *Manager) Stop(timeout time.Duration) {
	logrus.Info("Stopping event consumers...")

	var wg sync.WaitGroup
	for _, c := range m.consumers {
		wg.Add(1)
		go func(c *Consumer) {
			defer wg.Done()
			c.Stop(timeout)
		}(c)
	}
	wg.Wait()

	logrus.Info("Event consumers stopped")
}

// Running reports whether every consumer is in the running state.
func (m *Manager) Running() bool {
	for _, c := range m.consumers {
		if c.State() != StateRunning {
			return false
		}
	}
	return len(m.consumers) > 0
}
