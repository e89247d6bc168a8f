package node

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zetanetwork/zeta/src/common"
)

type Config struct {
	Topic             string        `mapstructure:"topic"`
	ReconnectInterval time.Duration `mapstructure:"reconnect"`
	Logger            *logrus.Logger
}

func NewConfig(topic string, reconnectInterval time.Duration, logger *logrus.Logger) *Config {
	return &Config{
		Topic:             topic,
		ReconnectInterval: reconnectInterval,
		Logger:            logger,
	}
}

func DefaultConfig() *Config {
	logger := logrus.New()
	logger.Level = logrus.DebugLevel

	return &Config{
		Topic:             "zeta-social",
		ReconnectInterval: 30 * time.Second,
		Logger:            logger,
	}
}

func TestConfig(t testing.TB) *Config {
	config := DefaultConfig()

	config.Logger = common.NewTestLogger(t)

	return config
}
