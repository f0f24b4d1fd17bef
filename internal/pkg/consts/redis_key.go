package consts

const (
	UserCounterKey      = "timeline:counter:"
	UserCounterDirtyKey = "timeline:counter:dirty"
)

const (
	CounterReconcileLock = "lock:job:counter:"
	FanoutSweepLock      = "lock:job:fanout_sweep"
	DeadLetterReplayLock = "lock:job:dead_letter_replay"
)
