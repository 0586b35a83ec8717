package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Supported store drivers
const (
	DriverMongo         = "mongo"
	DriverTimescale     = "timescale"
	DriverElasticsearch = "elasticsearch"
)

// Config holds all configuration for the application
type Config struct {
	MQTT       MQTTConfig       `mapstructure:"mqtt"`
	Store      StoreConfig      `mapstructure:"store"`
	Teams      []TeamConfig     `mapstructure:"teams"`
	TimeSeries TimeSeriesConfig `mapstructure:"timeseries"`
	Bridge     BridgeConfig     `mapstructure:"bridge"`
	Publisher  PublisherConfig  `mapstructure:"publisher"`
	Health     HealthConfig     `mapstructure:"health"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// MQTTConfig holds MQTT connection configuration
type MQTTConfig struct {
	Broker          string        `mapstructure:"broker"`
	Port            int           `mapstructure:"port"`
	ClientIDPrefix  string        `mapstructure:"client_id_prefix"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	QoS             int           `mapstructure:"qos"`
	CleanSession    bool          `mapstructure:"clean_session"`
	ReconnectPeriod time.Duration `mapstructure:"reconnect_period"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
}

// StoreConfig selects and configures the document store
type StoreConfig struct {
	Driver        string              `mapstructure:"driver"`
	InsertTimeout time.Duration       `mapstructure:"insert_timeout"`
	Mongo         MongoConfig         `mapstructure:"mongo"`
	Timescale     TimescaleConfig     `mapstructure:"timescale"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
}

// MongoConfig holds MongoDB connection configuration
type MongoConfig struct {
	URI                    string        `mapstructure:"uri"`
	MaxPoolSize            uint64        `mapstructure:"max_pool_size"`
	MinPoolSize            uint64        `mapstructure:"min_pool_size"`
	ServerSelectionTimeout time.Duration `mapstructure:"server_selection_timeout"`
	StrictAPI              bool          `mapstructure:"strict_api"`
}

// TimescaleConfig holds Postgres connection configuration
type TimescaleConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// ElasticsearchConfig holds Elasticsearch connection configuration
type ElasticsearchConfig struct {
	URLs     []string `mapstructure:"urls"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
}

// TeamConfig maps a team topic to its target collection
type TeamConfig struct {
	Name       string `mapstructure:"name"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

// TimeSeriesConfig describes how team collections are created
type TimeSeriesConfig struct {
	TimeField   string `mapstructure:"time_field"`
	MetaField   string `mapstructure:"meta_field"`
	Granularity string `mapstructure:"granularity"`
}

type BridgeConfig struct {
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type PublisherConfig struct {
	ClientIDPrefix string        `mapstructure:"client_id_prefix"`
	Interval       time.Duration `mapstructure:"interval"`
	Linger         time.Duration `mapstructure:"linger"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

type HealthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// envBindings lists every scalar key that can be set from the environment.
// Example: mqtt.broker -> MQTT_BROKER
var envBindings = []string{
	"mqtt.broker", "mqtt.port", "mqtt.client_id_prefix", "mqtt.username", "mqtt.password",
	"mqtt.qos", "mqtt.clean_session", "mqtt.reconnect_period", "mqtt.connect_timeout",

	"store.driver", "store.insert_timeout",
	"store.mongo.uri", "store.mongo.max_pool_size", "store.mongo.min_pool_size",
	"store.mongo.server_selection_timeout", "store.mongo.strict_api",
	"store.timescale.host", "store.timescale.port", "store.timescale.user",
	"store.timescale.password", "store.timescale.dbname", "store.timescale.sslmode",
	"store.timescale.max_conns",
	"store.elasticsearch.urls", "store.elasticsearch.username", "store.elasticsearch.password",

	"timeseries.time_field", "timeseries.meta_field", "timeseries.granularity",
	"bridge.shutdown_timeout",
	"publisher.client_id_prefix", "publisher.interval", "publisher.linger", "publisher.timeout",
	"health.enabled", "health.addr",
	"logging.level", "logging.format",
}

// LoadConfig loads configuration from file and/or environment variables.
// configFile may be empty, in which case config.yaml is looked up in the
// working directory.
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()

	// Set default values first (lowest precedence)
	setDefaults(v, GetDefaultConfig())

	// Try to load from config file (medium precedence)
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// Environment variables (highest precedence)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envBindings {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound):
			log.Debug().Msg("No config file found, using environment variables and defaults")
		case configFile != "":
			// An explicitly requested file must be readable
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		default:
			log.Warn().Err(err).Msg("Error reading config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("mqtt.broker", d.MQTT.Broker)
	v.SetDefault("mqtt.port", d.MQTT.Port)
	v.SetDefault("mqtt.client_id_prefix", d.MQTT.ClientIDPrefix)
	v.SetDefault("mqtt.username", d.MQTT.Username)
	v.SetDefault("mqtt.password", d.MQTT.Password)
	v.SetDefault("mqtt.qos", d.MQTT.QoS)
	v.SetDefault("mqtt.clean_session", d.MQTT.CleanSession)
	v.SetDefault("mqtt.reconnect_period", d.MQTT.ReconnectPeriod)
	v.SetDefault("mqtt.connect_timeout", d.MQTT.ConnectTimeout)

	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.insert_timeout", d.Store.InsertTimeout)
	v.SetDefault("store.mongo.uri", d.Store.Mongo.URI)
	v.SetDefault("store.mongo.max_pool_size", d.Store.Mongo.MaxPoolSize)
	v.SetDefault("store.mongo.min_pool_size", d.Store.Mongo.MinPoolSize)
	v.SetDefault("store.mongo.server_selection_timeout", d.Store.Mongo.ServerSelectionTimeout)
	v.SetDefault("store.mongo.strict_api", d.Store.Mongo.StrictAPI)
	v.SetDefault("store.timescale.host", d.Store.Timescale.Host)
	v.SetDefault("store.timescale.port", d.Store.Timescale.Port)
	v.SetDefault("store.timescale.user", d.Store.Timescale.User)
	v.SetDefault("store.timescale.password", d.Store.Timescale.Password)
	v.SetDefault("store.timescale.dbname", d.Store.Timescale.DBName)
	v.SetDefault("store.timescale.sslmode", d.Store.Timescale.SSLMode)
	v.SetDefault("store.timescale.max_conns", d.Store.Timescale.MaxConns)
	v.SetDefault("store.elasticsearch.urls", d.Store.Elasticsearch.URLs)
	v.SetDefault("store.elasticsearch.username", d.Store.Elasticsearch.Username)
	v.SetDefault("store.elasticsearch.password", d.Store.Elasticsearch.Password)

	teams := make([]map[string]any, 0, len(d.Teams))
	for _, t := range d.Teams {
		teams = append(teams, map[string]any{
			"name":       t.Name,
			"database":   t.Database,
			"collection": t.Collection,
		})
	}
	v.SetDefault("teams", teams)

	v.SetDefault("timeseries.time_field", d.TimeSeries.TimeField)
	v.SetDefault("timeseries.meta_field", d.TimeSeries.MetaField)
	v.SetDefault("timeseries.granularity", d.TimeSeries.Granularity)

	v.SetDefault("bridge.shutdown_timeout", d.Bridge.ShutdownTimeout)

	v.SetDefault("publisher.client_id_prefix", d.Publisher.ClientIDPrefix)
	v.SetDefault("publisher.interval", d.Publisher.Interval)
	v.SetDefault("publisher.linger", d.Publisher.Linger)
	v.SetDefault("publisher.timeout", d.Publisher.Timeout)

	v.SetDefault("health.enabled", d.Health.Enabled)
	v.SetDefault("health.addr", d.Health.Addr)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

// GetDefaultConfig returns default configuration
func GetDefaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker:          "tcp://localhost",
			Port:            1883,
			ClientIDPrefix:  "multi-team-bridge",
			QoS:             0,
			CleanSession:    true,
			ReconnectPeriod: 5 * time.Second,
			ConnectTimeout:  30 * time.Second,
		},
		Store: StoreConfig{
			Driver:        DriverMongo,
			InsertTimeout: 5 * time.Second,
			Mongo: MongoConfig{
				URI:                    "mongodb://localhost:27017",
				MaxPoolSize:            50,
				MinPoolSize:            10,
				ServerSelectionTimeout: 10 * time.Second,
				StrictAPI:              true,
			},
			Timescale: TimescaleConfig{
				Host:     "localhost",
				Port:     5432,
				User:     "postgres",
				Password: "postgres",
				DBName:   "iot_data",
				SSLMode:  "disable",
				MaxConns: 50,
			},
			Elasticsearch: ElasticsearchConfig{
				URLs: []string{"http://localhost:9200"},
			},
		},
		Teams: DefaultTeams(10),
		TimeSeries: TimeSeriesConfig{
			TimeField:   "timestamp",
			MetaField:   "team",
			Granularity: "seconds",
		},
		Bridge: BridgeConfig{
			ShutdownTimeout: 5 * time.Second,
		},
		Publisher: PublisherConfig{
			ClientIDPrefix: "test-script",
			Interval:       500 * time.Millisecond,
			Linger:         time.Second,
			Timeout:        30 * time.Second,
		},
		Health: HealthConfig{
			Enabled: false,
			Addr:    ":8080",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// DefaultTeams returns team01..teamNN, each writing to
// workshop_teamNN.sensor_data.
func DefaultTeams(n int) []TeamConfig {
	teams := make([]TeamConfig, 0, n)
	for i := 1; i <= n; i++ {
		name := fmt.Sprintf("team%02d", i)
		teams = append(teams, TeamConfig{
			Name:       name,
			Database:   "workshop_" + name,
			Collection: "sensor_data",
		})
	}
	return teams
}

// Validate checks the configuration for values the bridge cannot run with
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMongo, DriverTimescale, DriverElasticsearch:
	default:
		return fmt.Errorf("unsupported store driver: %q", c.Store.Driver)
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}

	if len(c.Teams) == 0 {
		return errors.New("at least one team is required")
	}
	seen := make(map[string]struct{}, len(c.Teams))
	for i, t := range c.Teams {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return fmt.Errorf("team #%d has no name", i+1)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate team %q", name)
		}
		seen[name] = struct{}{}
		if t.Database == "" || t.Collection == "" {
			return fmt.Errorf("team %q needs both database and collection", name)
		}
	}

	return nil
}

// GetDBConnString returns the Postgres connection string
func (c *Config) GetDBConnString() string {
	ts := c.Store.Timescale
	log.Info().Msgf("Connecting to database at 'host=%s port=%d user=%s dbname=%s sslmode=%s'",
		ts.Host, ts.Port, ts.User, ts.DBName, ts.SSLMode)
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		ts.Host, ts.Port, ts.User, ts.Password, ts.DBName, ts.SSLMode)
}

// GetMQTTBrokerURL returns the broker URL in the form paho expects, without
// credentials.
func (c *Config) GetMQTTBrokerURL() string {
	u := c.brokerURL()
	u.User = nil
	return u.String()
}

// MQTTCredentials returns the configured username and password, falling back
// to the userinfo embedded in the broker URL.
func (c *Config) MQTTCredentials() (string, string) {
	if c.MQTT.Username != "" {
		return c.MQTT.Username, c.MQTT.Password
	}
	u := c.brokerURL()
	if u.User == nil {
		return "", ""
	}
	password, _ := u.User.Password()
	return u.User.Username(), password
}

func (c *Config) brokerURL() *url.URL {
	raw := strings.TrimSpace(c.MQTT.Broker)
	if !strings.Contains(raw, "://") {
		log.Debug().Msgf("No protocol specified in broker URL '%s', defaulting to tcp://", raw)
		raw = "tcp://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return &url.URL{Scheme: "tcp", Host: net.JoinHostPort(c.MQTT.Broker, strconv.Itoa(c.MQTT.Port))}
	}

	// Map mqtt:// and http:// style schemes onto the ones paho understands
	switch u.Scheme {
	case "mqtt", "http":
		u.Scheme = "tcp"
	case "mqtts", "https":
		u.Scheme = "ssl"
	}

	if u.Port() == "" {
		u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(c.MQTT.Port))
	}
	return u
}

// UsesTLS reports whether the broker connection needs a TLS config
func (c *Config) UsesTLS() bool {
	scheme := c.brokerURL().Scheme
	return scheme == "ssl" || scheme == "wss"
}
