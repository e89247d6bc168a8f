package config

import (
	"crypto/ecdsa"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/zetanetwork/zeta/src/common"
	"github.com/zetanetwork/zeta/src/overlay"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the node's
	// private key
	DefaultKeyfile = "priv_key"

	// DefaultBadgerFile is the default name of the folder containing the
	// Badger database
	DefaultBadgerFile = "badger_db"
)

// Default configuration values.
const (
	DefaultLogLevel          = "debug"
	DefaultServiceAddr       = "127.0.0.1:3030"
	DefaultTopic             = "zeta-social"
	DefaultBroker            = "tcp://127.0.0.1:1883"
	DefaultReconnectInterval = 30 * time.Second
	DefaultHeartbeatInterval = 10 * time.Second
	DefaultPresenceTimeout   = 30 * time.Second
	DefaultCacheSize         = 1000
	DefaultStore             = false
)

// Config contains all the configuration properties of a Zeta node.
type Config struct {
	// DataDir is the top-level directory containing Zeta configuration and
	// data
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile, when set, mirrors all log output to a file.
	LogFile string `mapstructure:"log-file"`

	// Moniker defines the friendly name of this node. When empty, a name is
	// derived from the peer id.
	Moniker string `mapstructure:"moniker"`

	// NoService disables the HTTP API and websocket service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the HTTP API and websocket
	// service.
	ServiceAddr string `mapstructure:"service-listen"`

	// Topic is the shared overlay topic that all posts travel on.
	Topic string `mapstructure:"topic"`

	// Broker is the default rendezvous address, used when the datadir does
	// not contain a bootstrap.json file.
	Broker string `mapstructure:"broker"`

	// ReconnectInterval is the period of the loop that re-dials the
	// configured rendezvous addresses.
	ReconnectInterval time.Duration `mapstructure:"reconnect"`

	// HeartbeatInterval is the period of overlay presence announcements.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat"`

	// PresenceTimeout is how long a peer may stay silent before it is
	// considered gone.
	PresenceTimeout time.Duration `mapstructure:"presence-timeout"`

	// CacheSize is the maximum number of posts kept in the feed.
	CacheSize int `mapstructure:"cache-size"`

	// Store activates persistent storage of the feed.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// Key is the private key of the node. When nil, it is loaded from, or
	// created in, the datadir.
	Key *ecdsa.PrivateKey

	// Overlay overrides the MQTT overlay. It is meant for tests and
	// in-process clusters.
	Overlay overlay.Overlay

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:           DefaultDataDir(),
		LogLevel:          DefaultLogLevel,
		ServiceAddr:       DefaultServiceAddr,
		Topic:             DefaultTopic,
		Broker:            DefaultBroker,
		ReconnectInterval: DefaultReconnectInterval,
		HeartbeatInterval: DefaultHeartbeatInterval,
		PresenceTimeout:   DefaultPresenceTimeout,
		CacheSize:         DefaultCacheSize,
		Store:             DefaultStore,
		DatabaseDir:       DefaultDatabaseDir(),
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t)
	return config
}

// SetDataDir sets the top-level Zeta directory, and updates the database
// directory if it is currently set to the default value. If the database
// directory is not currently the default, it means the user has explicitly
// set it to something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// Logger returns a formatted logrus Entry, with prefix set to "zeta". When
// LogFile is set, output is also mirrored to that file.
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)

		if c.LogFile != "" {
			pathMap := lfshook.PathMap{}
			for _, level := range logrus.AllLevels {
				if level <= c.logger.Level {
					pathMap[level] = c.LogFile
				}
			}
			c.logger.Hooks.Add(lfshook.NewHook(
				pathMap,
				&logrus.TextFormatter{},
			))
		}
	}
	return c.logger.WithField("prefix", "zeta")
}

// RawLogger returns the underlying logrus Logger of Logger().
func (c *Config) RawLogger() *logrus.Logger {
	c.Logger()
	return c.logger
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level Zeta config
// based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Zeta")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Zeta")
		} else {
			return filepath.Join(home, ".zeta")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
