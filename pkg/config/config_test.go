package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, TransportKafka, cfg.Transport)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaAddr)
	assert.Equal(t, "inventory.events", cfg.InTopic)
	assert.Equal(t, "payment.events", cfg.OutTopic)
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, time.Second, cfg.BatchWait)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("TRANSPORT", "amqp")
	t.Setenv("KAFKA_ADDR", "k1:9092, k2:9092")
	t.Setenv("BATCH_SIZE", "25")
	t.Setenv("BATCH_WAIT", "250ms")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.StoreDriver)
	assert.Equal(t, TransportAMQP, cfg.Transport)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaAddr)
	assert.Equal(t, 25, cfg.BatchSize)
	assert.Equal(t, 250*time.Millisecond, cfg.BatchWait)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payment.yaml")
	require.NoError(t, os.WriteFile(path, []byte("IN_TOPIC: stock.allocated\nHTTP_ADDR: \":9090\"\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "stock.allocated", cfg.InTopic)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("STORE_DRIVER", "dynamodb")
	t.Setenv("BATCH_SIZE", "0")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORE_DRIVER")
	assert.Contains(t, err.Error(), "BATCH_SIZE")
}
