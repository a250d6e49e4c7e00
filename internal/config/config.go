package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/geocluster/pkg/geokmeans"
)

// Config holds the full application configuration.
type Config struct {
	Cluster ClusterConfig `yaml:"cluster" mapstructure:"cluster"`
	Input   InputConfig   `yaml:"input" mapstructure:"input"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// ClusterConfig holds the default clustering parameters. CLI flags and API
// request options override these per run.
type ClusterConfig struct {
	NClusters int     `yaml:"n_clusters" mapstructure:"n_clusters"`
	Init      string  `yaml:"init" mapstructure:"init"`
	NInit     int     `yaml:"n_init" mapstructure:"n_init"`
	MaxIter   int     `yaml:"max_iter" mapstructure:"max_iter"`
	Tol       float64 `yaml:"tol" mapstructure:"tol"`
	Seed      uint64  `yaml:"seed" mapstructure:"seed"`
	Workers   int     `yaml:"workers" mapstructure:"workers"`
	Metric    string  `yaml:"metric" mapstructure:"metric"`
}

// InputConfig names the columns read from point files.
type InputConfig struct {
	LonColumn    string `yaml:"lon_column" mapstructure:"lon_column"`
	LatColumn    string `yaml:"lat_column" mapstructure:"lat_column"`
	WeightColumn string `yaml:"weight_column" mapstructure:"weight_column"`
	IDColumn     string `yaml:"id_column" mapstructure:"id_column"`
	Sheet        string `yaml:"sheet" mapstructure:"sheet"`
}

// StoreConfig configures the run store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	RateLimit   float64  `yaml:"rate_limit" mapstructure:"rate_limit"`
	MaxPoints   int      `yaml:"max_points" mapstructure:"max_points"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GEOCLUSTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("cluster.n_clusters", geokmeans.DefaultClusters)
	v.SetDefault("cluster.init", "k-means++")
	v.SetDefault("cluster.n_init", 0)
	v.SetDefault("cluster.max_iter", geokmeans.DefaultMaxIter)
	v.SetDefault("cluster.tol", geokmeans.DefaultTol)
	v.SetDefault("cluster.seed", 0)
	v.SetDefault("cluster.workers", 1)
	v.SetDefault("cluster.metric", "haversine")
	v.SetDefault("input.lon_column", "lon")
	v.SetDefault("input.lat_column", "lat")
	v.SetDefault("input.id_column", "id")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "geocluster.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.rate_limit", 5)
	v.SetDefault("server.max_points", 100000)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Options converts the cluster defaults into engine options.
func (c ClusterConfig) Options() ([]geokmeans.Option, error) {
	start, err := geokmeans.ParseInit(c.Init)
	if err != nil {
		return nil, eris.Wrap(err, "config: cluster init")
	}
	metric, err := geokmeans.ParseMetric(c.Metric)
	if err != nil {
		return nil, eris.Wrap(err, "config: cluster metric")
	}
	return []geokmeans.Option{
		geokmeans.WithClusters(c.NClusters),
		geokmeans.WithInit(start),
		geokmeans.WithNInit(c.NInit),
		geokmeans.WithMaxIter(c.MaxIter),
		geokmeans.WithTol(c.Tol),
		geokmeans.WithSeed(c.Seed),
		geokmeans.WithWorkers(c.Workers),
		geokmeans.WithMetric(metric),
	}, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
