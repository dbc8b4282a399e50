package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "STORE_BACKEND", "DB_HOST", "DB_PORT", "REDIS_ADDR", "REDIS_DB", "POST_CACHE_TTL_SECONDS", "ELASTICSEARCH_URL", "ELASTICSEARCH_INDEX", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, BackendPostgres, cfg.Backend)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, "5432", cfg.Database.Port)
	assert.Equal(t, 300*time.Second, cfg.PostCacheTTL)
	assert.Equal(t, "posts", cfg.ElasticsearchIndex)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORE_BACKEND", "Mongo")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("POST_CACHE_TTL_SECONDS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendMongo, cfg.Backend)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, 300*time.Second, cfg.PostCacheTTL)
}

func TestLoadErrors(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORE_BACKEND", "cassandra")
	_, err = Load()
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	d := Database{Host: "db", Port: "5433", User: "u", Password: "p", Name: "n", SSLMode: "require"}
	assert.Equal(t, "host=db user=u password=p dbname=n port=5433 sslmode=require TimeZone=UTC", d.DSN())
}

func TestIntFromString(t *testing.T) {
	assert.Equal(t, 7, IntFromString(" 7 ", 1))
	assert.Equal(t, 1, IntFromString("", 1))
	assert.Equal(t, 1, IntFromString("x", 1))
}
