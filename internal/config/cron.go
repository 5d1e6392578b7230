package config

import "time"

// CronConfig lists the scheduled jobs internal/cron.Scheduler runs. The
// built-in session-TTL sweep is registered in code at startup rather than
// listed here; this section is for webhook/message/agent/custom jobs an
// operator wants scheduled alongside it.
type CronConfig struct {
	Jobs []CronJobConfig `yaml:"jobs"`
}

// CronJobConfig describes one scheduled job: when it runs (Schedule) and
// what it does (exactly one of Webhook/Message/Custom, selected by Type).
type CronJobConfig struct {
	ID      string             `yaml:"id"`
	Name    string             `yaml:"name"`
	Type    string             `yaml:"type"` // webhook|message|agent|custom
	Enabled bool               `yaml:"enabled"`
	Schedule CronScheduleConfig `yaml:"schedule"`

	Message *CronMessageConfig `yaml:"message,omitempty"`
	Webhook *CronWebhookConfig `yaml:"webhook,omitempty"`
	Custom  *CronCustomConfig  `yaml:"custom,omitempty"`

	Retry CronRetryConfig `yaml:"retry"`
}

// CronScheduleConfig selects exactly one of a cron expression, a fixed
// interval, or a one-time timestamp.
type CronScheduleConfig struct {
	Cron     string        `yaml:"cron,omitempty"`
	Every    time.Duration `yaml:"every,omitempty"`
	At       string        `yaml:"at,omitempty"`
	Timezone string        `yaml:"timezone,omitempty"`
}

// CronMessageConfig is the payload for message and agent jobs.
type CronMessageConfig struct {
	Channel   string         `yaml:"channel,omitempty"`
	ChannelID string         `yaml:"channel_id,omitempty"`
	Content   string         `yaml:"content,omitempty"`
	Template  string         `yaml:"template,omitempty"`
	Data      map[string]any `yaml:"data,omitempty"`
	Tools     []string       `yaml:"tools,omitempty"`
}

// CronWebhookConfig is the payload for webhook jobs.
type CronWebhookConfig struct {
	URL     string            `yaml:"url"`
	Method  string            `yaml:"method,omitempty"`
	Body    string            `yaml:"body,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Auth    *CronWebhookAuth  `yaml:"auth,omitempty"`
	Timeout time.Duration     `yaml:"timeout,omitempty"`
}

// CronWebhookAuth configures webhook authentication: bearer, basic, or
// api_key (a custom header).
type CronWebhookAuth struct {
	Type   string `yaml:"type"` // bearer|basic|api_key
	Token  string `yaml:"token,omitempty"`
	User   string `yaml:"user,omitempty"`
	Pass   string `yaml:"pass,omitempty"`
	Header string `yaml:"header,omitempty"`
}

// CronCustomConfig is the payload for custom jobs, dispatched by name to a
// handler registered via Scheduler.RegisterCustomHandler.
type CronCustomConfig struct {
	Handler string         `yaml:"handler"`
	Args    map[string]any `yaml:"args,omitempty"`
}

// CronRetryConfig tunes the backoff applied after a job run fails.
type CronRetryConfig struct {
	MaxRetries int           `yaml:"max_retries,omitempty"`
	Backoff    time.Duration `yaml:"backoff,omitempty"`
	MaxBackoff time.Duration `yaml:"max_backoff,omitempty"`
}
