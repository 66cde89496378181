package jobs

// Queue names used by the worker.
const (
	QueueDefault = "default"
	QueueNotify  = "notify"
)

// Task type names registered on the asynq mux.
const (
	TaskOverdueScan = "ap:overdue_scan"
	TaskGLIntegrity = "gl:integrity"
)

// Cron expressions for the nightly maintenance tasks.
const (
	cronOverdueScan = "0 2 * * *"
	cronGLIntegrity = "30 2 * * *"
)
