package session

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Janitor sweeps expired sessions on a cron schedule in serve mode. Outside
// serve mode sessions live as long as the process.
type Janitor struct {
	manager *Manager
	cron    *cron.Cron
}

// NewJanitor schedules SweepExpired on spec (e.g. "@every 5m").
func NewJanitor(m *Manager, spec string) (*Janitor, error) {
	j := &Janitor{manager: m, cron: cron.New()}
	_, err := j.cron.AddFunc(spec, func() {
		j.manager.SweepExpired(context.Background())
	})
	if err != nil {
		return nil, eris.Wrapf(err, "session: bad janitor schedule %q", spec)
	}
	return j, nil
}

// Start begins sweeping in the background.
func (j *Janitor) Start() {
	j.cron.Start()
	zap.L().Info("session janitor started")
}

// Stop halts sweeping; a sweep in flight finishes first.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
	zap.L().Info("session janitor stopped")
}
