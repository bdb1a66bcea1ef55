package run

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranos/keelwatch/collector"
	"github.com/teranos/keelwatch/config"
	keeltest "github.com/teranos/keelwatch/internal/testing"
)

func TestSchedulerRequiresEnabledSources(t *testing.T) {
	conn := keeltest.CreateTestDB(t)
	cfg := testConfig()
	cfg.Sources = nil
	orch := NewOrchestrator(conn, cfg, collector.NewMock(), zap.NewNop().Sugar())

	sched := NewScheduler(orch, cfg, zap.NewNop().Sugar())
	assert.Error(t, sched.Start())
}

func TestSchedulerStartStop(t *testing.T) {
	conn := keeltest.CreateTestDB(t)
	cfg := testConfig()
	cfg.Scheduler = config.SchedulerConfig{
		DetectCron:    "*/15 * * * *",
		ReconcileCron: "0 */6 * * *",
	}
	orch := NewOrchestrator(conn, cfg, collector.NewMock(), zap.NewNop().Sugar())

	sched := NewScheduler(orch, cfg, zap.NewNop().Sugar())
	require.NoError(t, sched.Start())
	sched.Stop()
}

func TestSchedulerReloadUpdatesTunables(t *testing.T) {
	conn := keeltest.CreateTestDB(t)
	cfg := testConfig()
	orch := NewOrchestrator(conn, cfg, collector.NewMock(), zap.NewNop().Sugar())
	sched := NewScheduler(orch, cfg, zap.NewNop().Sugar())

	next := testConfig()
	next.Health.RemovalThreshold = 5
	next.Queue.LeaseDurationSeconds = 60
	sched.Reload(next)

	assert.Equal(t, 5, cfg.Health.RemovalThreshold)
	assert.Equal(t, 60, cfg.Queue.LeaseDurationSeconds)
}
