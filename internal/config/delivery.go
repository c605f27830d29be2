package config

import "time"

// DeliveryConfig tunes the outbound webhook delivery engine: how many
// ordered partitions the queue is split into, how deep each partition
// buffers, and the default timeout applied when an endpoint does not
// configure one.
type DeliveryConfig struct {
	Partitions     int
	QueueDepth     int
	DefaultTimeout time.Duration
}

// LoadDeliveryConfig reads environment variables to build a
// DeliveryConfig.  Defaults are used when variables are not set.
func LoadDeliveryConfig() DeliveryConfig {
	cfg := DeliveryConfig{
		Partitions:     envInt("DELIVERY_PARTITIONS", 8),
		QueueDepth:     envInt("DELIVERY_QUEUE_DEPTH", 256),
		DefaultTimeout: envDur("DELIVERY_DEFAULT_TIMEOUT", 30*time.Second),
	}
	if cfg.Partitions < 1 {
		cfg.Partitions = 1
	}
	if cfg.QueueDepth < 1 {
		cfg.QueueDepth = 1
	}
	return cfg
}
