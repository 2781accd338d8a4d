package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
)

const (
	defaultGroupID = "storefront-dlq-replay"
	openTimeout    = 10 * time.Second

	envKafkaBrokers  = "STOREFRONT_KAFKA_BROKERS"
	envKafkaDLQTopic = "STOREFRONT_KAFKA_DLQ_TOPIC"
	envPostgresDSN   = "STOREFRONT_POSTGRES_DSN"
)

type config struct {
	brokers []string
	topic   string
	groupID string
	dsn     string
	execute bool
}

// replayer — то, что handler делает с разобранным dead letter.
type replayer interface {
	Replay(ctx context.Context, dl domain.DeadLetter) error
}

func parseConfig(args []string, getenv func(string) string) (config, error) {
	var (
		cfg     config
		brokers string
	)
	fs := flag.NewFlagSet("dlq-replay", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&brokers, "brokers", getenv(envKafkaBrokers), "comma-separated kafka brokers")
	fs.StringVar(&cfg.topic, "topic", getenv(envKafkaDLQTopic), "dead letter topic")
	fs.StringVar(&cfg.groupID, "group", defaultGroupID, "consumer group id")
	fs.StringVar(&cfg.dsn, "dsn", getenv(envPostgresDSN), "PostgreSQL DSN of the outbox")
	fs.BoolVar(&cfg.execute, "execute", false, "re-enqueue messages; without it only logs what would be replayed")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			cfg.brokers = append(cfg.brokers, b)
		}
	}
	if len(cfg.brokers) == 0 {
		return config{}, fmt.Errorf("brokers are required (-brokers or %s)", envKafkaBrokers)
	}
	cfg.topic = strings.TrimSpace(cfg.topic)
	if cfg.topic == "" {
		cfg.topic = kafka.TopicDeadLetterQueue
	}
	cfg.dsn = strings.TrimSpace(cfg.dsn)
	if cfg.execute && cfg.dsn == "" {
		return config{}, fmt.Errorf("postgres outbox is required for -execute (-dsn or %s)", envPostgresDSN)
	}
	return cfg, nil
}

// newHandler разбирает сообщения DLQ. Неразборчивые и неподдерживаемые
// сообщения пропускаются, ошибка постановки в очередь возвращается consumer'у.
func newHandler(r replayer, logger *log.Entry) kafka.MessageHandler {
	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		fields := log.Fields{"partition": message.Partition, "offset": message.Offset}

		dl, err := kafka.ParseDeadLetter(message)
		if err != nil {
			logger.WithError(err).WithFields(fields).Warn("skip malformed dead letter")
			return nil
		}
		fields["outbox_id"] = dl.OutboxID
		fields["event_type"] = dl.EventType

		if r == nil {
			logger.WithFields(fields).WithField("publish_error", dl.PublishError).Info("dry run: would replay dead letter")
			return nil
		}

		if err := r.Replay(ctx, dl); err != nil {
			if errors.Is(err, outbox.ErrUnsupportedEvent) {
				logger.WithError(err).WithFields(fields).Warn("skip unsupported dead letter")
				return nil
			}
			return err
		}
		return nil
	}
}

func run(ctx context.Context, cfg config) error {
	logger := log.WithField("component", "dlq-replay")

	var r replayer
	if cfg.execute {
		openCtx, cancel := context.WithTimeout(ctx, openTimeout)
		store, err := postgres.Open(openCtx, cfg.dsn)
		cancel()
		if err != nil {
			return fmt.Errorf("open postgres outbox: %w", err)
		}
		defer store.Close()
		r = outbox.NewReplayer(postgres.NewOutboxRepository(store), logger, metrics.NewOutboxMetrics())
	}

	consumer, err := kafka.NewConsumer(cfg.brokers, cfg.groupID, []string{cfg.topic}, newHandler(r, logger), kafka.ConsumerOptions{
		MaxRetries: 3,
		RetryDelay: time.Second,
		FromOldest: true,
	})
	if err != nil {
		return err
	}
	if err := consumer.Start(ctx); err != nil {
		return err
	}

	logger.WithFields(log.Fields{"topic": cfg.topic, "execute": cfg.execute}).Info("replaying dead letters, press Ctrl+C to stop")
	<-ctx.Done()
	return consumer.Stop()
}

func main() {
	_ = godotenv.Load()
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := parseConfig(os.Args[1:], os.Getenv)
	if err != nil {
		log.WithError(err).Fatal("invalid arguments")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.WithError(err).Fatal("dlq replay failed")
	}
}
