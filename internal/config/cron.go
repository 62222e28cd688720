package config

import "github.com/robfig/cron/v3"

// cronParser validates consolidation.schedule entries at load time so
// a typo surfaces immediately instead of at the scheduler's next tick.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
