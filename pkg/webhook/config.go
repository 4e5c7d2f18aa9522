package webhook

import "time"

// Config carries worker tuning, loaded from the environment.
type Config struct {
	PollInterval    time.Duration `env:"WEBHOOK_POLL_INTERVAL" envDefault:"5s"`
	Concurrency     int           `env:"WEBHOOK_CONCURRENCY" envDefault:"8"`
	ClaimLease      time.Duration `env:"WEBHOOK_CLAIM_LEASE" envDefault:"1m"`
	FailureCeiling  int           `env:"WEBHOOK_FAILURE_CEILING" envDefault:"100"`
	SendTimeout     time.Duration `env:"WEBHOOK_SEND_TIMEOUT" envDefault:"10s"`
	SubCacheSize    int           `env:"WEBHOOK_SUBSCRIPTION_CACHE_SIZE" envDefault:"1024"`
	SubCacheTTL     time.Duration `env:"WEBHOOK_SUBSCRIPTION_CACHE_TTL" envDefault:"30s"`
	SignatureMaxAge time.Duration `env:"WEBHOOK_SIGNATURE_MAX_AGE" envDefault:"5m"`
}

// WorkerOptions expands the config into worker options.
func (c Config) WorkerOptions() []WorkerOption {
	return []WorkerOption{
		WithPollInterval(c.PollInterval),
		WithConcurrency(c.Concurrency),
		WithClaimLease(c.ClaimLease),
		WithFailureCeiling(c.FailureCeiling),
		WithSubscriptionCacheSize(c.SubCacheSize),
		WithSubscriptionCacheTTL(c.SubCacheTTL),
		WithSender(NewSender(WithSendTimeout(c.SendTimeout))),
	}
}
