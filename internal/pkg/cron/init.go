package cron

import log "log/slog"

// InitCron 注册并启动定时任务，没有启用任何任务时不启动引擎
func InitCron(mgr *Manager) error {
	n, err := mgr.RegisterJobs()
	if err != nil {
		return err
	}
	if n == 0 {
		log.Warn("no cron jobs enabled")
		return nil
	}
	mgr.Start()
	log.Info("Cron Jobs started", "jobs", n)
	return nil
}
