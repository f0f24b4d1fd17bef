package cron

import (
	"Timeline/internal/api/config"
	"Timeline/internal/job"
	"fmt"
	log "log/slog"

	"github.com/robfig/cron/v3"
)

type Manager struct {
	engine              *cron.Cron
	cfg                 config.CronConfig
	counterDirtyJob     *job.CounterReconcileJob
	counterFullJob      *job.CounterReconcileJob
	fanoutSweepJob      *job.FanoutSweepJob
	deadLetterReplayJob *job.DeadLetterReplayJob
}

func NewCronManager(
	cfg config.CronConfig,
	counterDirtyJob *job.CounterReconcileJob,
	counterFullJob *job.CounterReconcileJob,
	fanoutSweepJob *job.FanoutSweepJob,
	deadLetterReplayJob *job.DeadLetterReplayJob,
) *Manager {
	return &Manager{
		engine:              cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		cfg:                 cfg,
		counterDirtyJob:     counterDirtyJob,
		counterFullJob:      counterFullJob,
		fanoutSweepJob:      fanoutSweepJob,
		deadLetterReplayJob: deadLetterReplayJob,
	}
}

// RegisterJobs 注册定时任务，表达式为空的任务不启用，返回启用的任务数
func (s *Manager) RegisterJobs() (int, error) {
	jobs := []struct {
		name string
		spec string
		job  cron.Job
	}{
		{"counter_dirty", s.cfg.CounterDirty, s.counterDirtyJob},
		{"counter_full", s.cfg.CounterFull, s.counterFullJob},
		{"fanout_sweep", s.cfg.FanoutSweep, s.fanoutSweepJob},
		{"dead_letter_replay", s.cfg.DeadLetterReplay, s.deadLetterReplayJob},
	}
	n := 0
	for _, j := range jobs {
		if j.spec == "" {
			log.Info("cron job disabled", "job", j.name)
			continue
		}
		if _, err := s.engine.AddJob(j.spec, j.job); err != nil {
			return n, fmt.Errorf("register %s (%q): %w", j.name, j.spec, err)
		}
		n++
	}
	return n, nil
}

func (s *Manager) Start() {
	log.Info("Cron 定时任务引擎启动")
	s.engine.Start()
}

func (s *Manager) Stop() {
	log.Info("Cron 定时任务引擎停止")
	<-s.engine.Stop().Done()
}
