package relay

import "time"

const (
	DefaultHeartbeatTimeout = 60 * time.Minute
	DefaultSweepInterval    = 30 * time.Second
	DefaultJoinRequestTTL   = 24 * time.Hour
	DefaultPersistTimeout   = 5 * time.Second
	DefaultMaxTextLength    = 4000
	DefaultIdleTTL          = 10 * time.Minute
	DefaultReclaimInterval  = time.Minute
	DefaultInboxSize        = 256
)

type Config struct {
	// HeartbeatTimeout is how long an active participant may stay silent
	// before the sweep demotes it to timed_out.
	HeartbeatTimeout time.Duration
	SweepInterval    time.Duration
	// JoinRequestTTL bounds how long a join request waits for approval.
	JoinRequestTTL time.Duration
	PersistTimeout time.Duration
	// MaxTextLength caps caption and live text payloads, in runes.
	MaxTextLength int
	// IdleTTL is how long a room without connections or pending requests
	// is kept in memory by the Manager.
	IdleTTL         time.Duration
	ReclaimInterval time.Duration
	InboxSize       int
}

func (c Config) withDefaults() Config {
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.JoinRequestTTL <= 0 {
		c.JoinRequestTTL = DefaultJoinRequestTTL
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = DefaultPersistTimeout
	}
	if c.MaxTextLength <= 0 {
		c.MaxTextLength = DefaultMaxTextLength
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = DefaultIdleTTL
	}
	if c.ReclaimInterval <= 0 {
		c.ReclaimInterval = DefaultReclaimInterval
	}
	if c.InboxSize <= 0 {
		c.InboxSize = DefaultInboxSize
	}
	return c
}

type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
