package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"m365prov/pkg/config"
	"m365prov/pkg/logger"
)

func TestRedactDSN(t *testing.T) {
	assert.Equal(t, "***@db:5432/m365", redactDSN("postgres://user:secret@db:5432/m365"))
	assert.Equal(t, "db:5432", redactDSN("db:5432"))
}

func TestConnect_NoURLMeansNoPool(t *testing.T) {
	pool, err := Connect(context.Background(), config.Config{}, logger.Nop())
	assert.NoError(t, err)
	assert.Nil(t, pool)

	cli, err := Redis(context.Background(), config.Config{}, logger.Nop())
	assert.NoError(t, err)
	assert.Nil(t, cli)
}

func TestRedis_BadURL(t *testing.T) {
	_, err := Redis(context.Background(), config.Config{RedisURL: "::not a url"}, logger.Nop())
	assert.Error(t, err)
}
