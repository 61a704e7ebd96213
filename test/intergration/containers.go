package intergration

import (
	"context"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

type Env struct {
	PG        *postgres.PostgresContainer
	Kafka     *kafka.KafkaContainer
	Redis     *tcredis.RedisContainer
	PGURL     string
	KAddr     []string
	RedisAddr string
}

// Setup starts postgres, kafka and redis. Containers already started are
// terminated when a later one fails.
func Setup(ctx context.Context) (*Env, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	env := &Env{}
	fail := func(err error) (*Env, error) {
		env.Teardown(context.Background())
		return nil, err
	}

	if err := env.startPostgres(ctx); err != nil {
		return fail(err)
	}

	kafkaC, err := kafka.Run(ctx,
		"confluentinc/confluent-local:7.5.0",
		kafka.WithClusterID("payment-reconciliation-test"),
	)
	if err != nil {
		return fail(err)
	}
	env.Kafka = kafkaC
	if env.KAddr, err = kafkaC.Brokers(ctx); err != nil {
		return fail(err)
	}

	redisC, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		return fail(err)
	}
	env.Redis = redisC
	endpoint, err := redisC.Endpoint(ctx, "")
	if err != nil {
		return fail(err)
	}
	env.RedisAddr = endpoint

	return env, nil
}

// SetupPostgres starts only postgres, for store-level tests.
func SetupPostgres(ctx context.Context) (*Env, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	env := &Env{}
	if err := env.startPostgres(ctx); err != nil {
		env.Teardown(context.Background())
		return nil, err
	}
	return env, nil
}

func (e *Env) startPostgres(ctx context.Context) error {
	pgC, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("payments"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute)),
	)
	if err != nil {
		return err
	}
	e.PG = pgC
	e.PGURL, err = pgC.ConnectionString(ctx, "sslmode=disable")
	return err
}

func (e *Env) Teardown(ctx context.Context) {
	var cs []testcontainers.Container
	if e.Redis != nil {
		cs = append(cs, e.Redis)
	}
	if e.Kafka != nil {
		cs = append(cs, e.Kafka)
	}
	if e.PG != nil {
		cs = append(cs, e.PG)
	}
	for _, c := range cs {
		_ = c.Terminate(ctx)
	}
}
