package config

import (
	"fmt"
	"strings"
	"time"
)

// NATSConfig configures order event publishing and the confirmation consumer.
// Both are skipped when Enabled is false.
type NATSConfig struct {
	Enabled    bool             `koanf:"enabled"`
	Url        string           `koanf:"url"`
	Timeout    time.Duration    `koanf:"timeout"`
	Stream     string           `koanf:"stream"`
	Subscriber SubscriberConfig `koanf:"subscriber"`
}

// SubscriberConfig describes a durable JetStream pull consumer.
type SubscriberConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Subject  string        `koanf:"subject"`
	Consumer string        `koanf:"consumer"`
	Batch    int           `koanf:"batch"`
	Timeout  time.Duration `koanf:"timeout"`
	Interval time.Duration `koanf:"interval"`
	Workers  int           `koanf:"workers"`
}

// String returns a string representation of the NATS configuration.
func (c *NATSConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- NATS ---\n")
	b.WriteString(fmt.Sprintf("  enabled: %t\n", c.Enabled))
	if !c.Enabled {
		return b.String()
	}
	b.WriteString(fmt.Sprintf("  url: %s\n", MaskURL(c.Url)))
	b.WriteString(fmt.Sprintf("  timeout: %s\n", c.Timeout))
	b.WriteString(fmt.Sprintf("  stream: %s\n", c.Stream))
	b.WriteString(fmt.Sprintf("  subscriber.enabled: %t\n", c.Subscriber.Enabled))
	if c.Subscriber.Enabled {
		b.WriteString(fmt.Sprintf("  subscriber.subject: %s\n", c.Subscriber.Subject))
		b.WriteString(fmt.Sprintf("  subscriber.consumer: %s\n", c.Subscriber.Consumer))
		b.WriteString(fmt.Sprintf("  subscriber.batch: %d\n", c.Subscriber.Batch))
		b.WriteString(fmt.Sprintf("  subscriber.timeout: %s\n", c.Subscriber.Timeout))
		b.WriteString(fmt.Sprintf("  subscriber.interval: %s\n", c.Subscriber.Interval))
		b.WriteString(fmt.Sprintf("  subscriber.workers: %d\n", c.Subscriber.Workers))
	}
	return b.String()
}

func (c *NATSConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Url == "" {
		return fmt.Errorf("NATS URL is not configured")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("nats dial timeout is not configured")
	}
	if c.Stream == "" {
		return fmt.Errorf("nats stream is not configured")
	}
	if c.Subscriber.Enabled {
		return c.Subscriber.Validate()
	}
	return nil
}

func (c *SubscriberConfig) Validate() error {
	if c.Subject == "" {
		return fmt.Errorf("SubscriberConfig: Subject is not configured")
	}
	if c.Consumer == "" {
		return fmt.Errorf("SubscriberConfig: consumer is not configured")
	}
	if c.Batch <= 0 {
		return fmt.Errorf("SubscriberConfig: batch must be greater than zero")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("SubscriberConfig: timeout must be greater than zero")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("SubscriberConfig: interval must be greater than zero")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("SubscriberConfig: workers must be greater than zero")
	}
	return nil
}
