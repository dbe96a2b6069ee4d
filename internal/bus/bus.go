package bus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"quietlink/pkg/interfaces"
	"quietlink/pkg/types"
)

// Driver names a bus implementation
type Driver string

const (
	DriverAuto  Driver = "auto"
	DriverLocal Driver = "local"
	DriverRedis Driver = "redis"
	DriverNATS  Driver = "nats"
)

// DefaultChannel is the Redis channel and NATS subject carrying deliveries
const DefaultChannel = "quietlink.deliveries"

// Handler receives every delivery published by any instance
type Handler func(*types.Delivery)

// Bus fans deliveries out to every instance. Each instance subscribes once
// and decides locally whether it holds the target session.
type Bus interface {
	interfaces.Emitter

	// Subscribe installs the single handler; it must be called before Publish
	Subscribe(ctx context.Context, handler Handler) error

	Close() error
}

// Options selects and configures the bus
type Options struct {
	Driver  Driver
	Channel string

	// RedisClient is the store's connection, nil when the store is in memory
	RedisClient *redis.Client

	NATSURL  string
	NATSName string
}

// Open resolves the driver and connects. The returned Driver is the one
// actually in use after resolving auto and downgrades.
func Open(opts Options, logger *slog.Logger) (Bus, Driver, error) {
	channel := opts.Channel
	if channel == "" {
		channel = DefaultChannel
	}

	driver := opts.Driver
	if driver == "" || driver == DriverAuto {
		driver = DriverLocal
		if opts.RedisClient != nil {
			driver = DriverRedis
		}
	}

	switch driver {
	case DriverLocal:
		return NewLocalBus(), DriverLocal, nil

	case DriverRedis:
		if opts.RedisClient == nil {
			logger.Warn("redis bus requested without a redis store, using local bus (single instance only)")
			return NewLocalBus(), DriverLocal, nil
		}
		return NewRedisBus(opts.RedisClient, channel, logger), DriverRedis, nil

	case DriverNATS:
		nc, err := nats.Connect(opts.NATSURL,
			nats.Name(opts.NATSName),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				logger.Warn("NATS disconnected", "error", err)
			}),
			nats.ReconnectHandler(func(_ *nats.Conn) {
				logger.Info("NATS reconnected")
			}),
		)
		if err != nil {
			return nil, "", fmt.Errorf("failed to connect to NATS: %w", err)
		}
		return NewNATSBus(nc, channel, logger), DriverNATS, nil

	default:
		return nil, "", fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}

var (
	_ Bus = (*LocalBus)(nil)
	_ Bus = (*RedisBus)(nil)
	_ Bus = (*NATSBus)(nil)
)
