package cron_config

type Config struct {
	// Heartbeat check, every minute
	CronScheduleHeartbeat string `env:"CRON_SCHEDULE_HEARTBEAT" envDefault:"0 * * * * *"`
	// Activity log retention, daily at 03:00
	CronScheduleActivityRetention string `env:"CRON_SCHEDULE_ACTIVITY_RETENTION" envDefault:"0 0 3 * * *"`
	// Quarantine retention, daily at 03:30
	CronScheduleQuarantineRetention string `env:"CRON_SCHEDULE_QUARANTINE_RETENTION" envDefault:"0 30 3 * * *"`
}
