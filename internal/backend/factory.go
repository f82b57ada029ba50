package backend

import (
	"context"
	"errors"
	"fmt"

	"spendsnap/internal/broadcast"
	"spendsnap/internal/log"
	"spendsnap/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

var _ Factory = (*DefaultFactory)(nil)

// NewFactory creates a new session context factory
func NewFactory(logger *log.Logger) *DefaultFactory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentBackend)}
}

// CreateSessionContext opens the store and the bus. The AMQP consumer runs
// until ctx is done or Cleanup is called.
func (f *DefaultFactory) CreateSessionContext(ctx context.Context, config Config) (*SessionContext, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	kv, err := f.createKV(config)
	if err != nil {
		return nil, err
	}

	bus, stopBus, err := f.createBus(ctx, config)
	if err != nil {
		kv.Close()
		return nil, err
	}

	return &SessionContext{
		KV:  kv,
		Bus: bus,
		Cleanup: func() error {
			stopBus()
			return errors.Join(bus.Close(), kv.Close())
		},
	}, nil
}

func (f *DefaultFactory) createKV(config Config) (storage.KV, error) {
	switch config.Type {
	case SQLiteBackend:
		kv, err := storage.NewSQLiteKV(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
		}
		f.logger.Info("Initialized SQLite session store", "db_path", config.SQLiteDBPath)
		return kv, nil
	case MemoryBackend:
		f.logger.Info("Initialized memory session store")
		return storage.NewMemoryKV(), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createBus(ctx context.Context, config Config) (broadcast.Bus, func(), error) {
	if config.AMQPURL == "" {
		f.logger.Info("Using in-process broadcast bus")
		return broadcast.NewLocalBus(), func() {}, nil
	}

	bus, err := broadcast.NewAMQPBus(config.AMQPURL, config.AMQPExchange, f.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize AMQP broadcast: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := bus.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			f.logger.Error("Broadcast consumer stopped", log.FieldError, err)
		}
	}()

	f.logger.Info("Initialized AMQP broadcast", "exchange", config.AMQPExchange)
	return bus, func() {
		cancel()
		<-done
	}, nil
}
