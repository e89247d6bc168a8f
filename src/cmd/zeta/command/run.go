package command

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zetanetwork/zeta/src/zeta"
)

//NewRunCmd returns the command that starts a Zeta node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runZeta,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runZeta(cmd *cobra.Command, args []string) error {
	engine := zeta.NewZeta(_config)

	if err := engine.Init(); err != nil {
		_config.Logger().Error("Cannot initialize engine:", err)
		return err
	}

	engine.Run()

	return nil
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.LogFile, "Mirror log output to this file")
	cmd.Flags().String("moniker", _config.Moniker, "Optional name")

	// Service
	cmd.Flags().Bool("no-service", _config.NoService, "Do not serve the HTTP API and websocket")
	cmd.Flags().StringP("service-listen", "s", _config.ServiceAddr, "Listen IP:Port for HTTP service")

	// Overlay
	cmd.Flags().String("topic", _config.Topic, "Shared overlay topic")
	cmd.Flags().String("broker", _config.Broker, "Default rendezvous address")
	cmd.Flags().Duration("reconnect", _config.ReconnectInterval, "Time between reconnection attempts")
	cmd.Flags().Duration("heartbeat", _config.HeartbeatInterval, "Time between presence announcements")
	cmd.Flags().Duration("presence-timeout", _config.PresenceTimeout, "Silence before a peer is considered gone")

	// Store
	cmd.Flags().Int("cache-size", _config.CacheSize, "Max number of posts in the feed")
	cmd.Flags().Bool("store", _config.Store, "Use badgerDB instead of in-mem DB")
	cmd.Flags().String("db", _config.DatabaseDir, "Database directory")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.SetDataDir(_config.DataDir)

	logFields := logrus.Fields{
		"zeta.DataDir":           _config.DataDir,
		"zeta.LogLevel":          _config.LogLevel,
		"zeta.Moniker":           _config.Moniker,
		"zeta.NoService":         _config.NoService,
		"zeta.ServiceAddr":       _config.ServiceAddr,
		"zeta.Topic":             _config.Topic,
		"zeta.Broker":            _config.Broker,
		"zeta.ReconnectInterval": _config.ReconnectInterval,
		"zeta.HeartbeatInterval": _config.HeartbeatInterval,
		"zeta.PresenceTimeout":   _config.PresenceTimeout,
		"zeta.CacheSize":         _config.CacheSize,
		"zeta.Store":             _config.Store,
	}

	if _config.Store {
		logFields["zeta.DatabaseDir"] = _config.DatabaseDir
	}

	_config.Logger().WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/zeta.toml (.json, .yaml also work)
	viper.SetConfigName("zeta")          // name of config file (without extension)
	viper.AddConfigPath(_config.DataDir) // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Logger().Debugf("No config file found in: %s", _config.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}
