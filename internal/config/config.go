package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/geodecision/internal/geo"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = eris.New("config: invalid")

// Config holds the full application configuration.
type Config struct {
	Input     InputConfig     `yaml:"input" mapstructure:"input"`
	CRS       CRSConfig       `yaml:"crs" mapstructure:"crs"`
	Split     SplitConfig     `yaml:"split" mapstructure:"split"`
	Connect   ConnectConfig   `yaml:"connect" mapstructure:"connect"`
	Isochrone IsochroneConfig `yaml:"isochrone" mapstructure:"isochrone"`
	Aggregate AggregateConfig `yaml:"aggregate" mapstructure:"aggregate"`
	Output    OutputConfig    `yaml:"output" mapstructure:"output"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// InputConfig locates the polygon layer and the network graph.
type InputConfig struct {
	Polygons      string   `yaml:"polygons" mapstructure:"polygons"`             // GeoJSON or shapefile
	IDColumn      string   `yaml:"id_column" mapstructure:"id_column"`           // polygon identifier property
	ColumnsToKeep []string `yaml:"columns_to_keep" mapstructure:"columns_to_keep"` // carried onto split points
	GraphEdges    string   `yaml:"graph_edges" mapstructure:"graph_edges"`
	GraphNodes    string   `yaml:"graph_nodes" mapstructure:"graph_nodes"`
}

// CRSConfig holds EPSG codes.
type CRSConfig struct {
	Input  int `yaml:"input" mapstructure:"input"`
	Graph  int `yaml:"graph" mapstructure:"graph"`
	Metric int `yaml:"metric" mapstructure:"metric"`
}

// SplitConfig configures the boundary splitter.
type SplitConfig struct {
	Distance    float64 `yaml:"distance" mapstructure:"distance"`
	MinSegments int     `yaml:"min_segments" mapstructure:"min_segments"`
}

// ConnectConfig configures the node connector.
type ConnectConfig struct {
	AccessType    string  `yaml:"access_type" mapstructure:"access_type"`
	Threshold     float64 `yaml:"threshold" mapstructure:"threshold"`
	KNN           int     `yaml:"knn" mapstructure:"knn"`
	Distance      float64 `yaml:"distance" mapstructure:"distance"` // walked in 60 minutes
	SnapTolerance float64 `yaml:"snap_tolerance" mapstructure:"snap_tolerance"`
	IDOffset      int64   `yaml:"id_offset" mapstructure:"id_offset"`
}

// IsochroneConfig configures the isochrone engine.
type IsochroneConfig struct {
	TripTimes      []int   `yaml:"trip_times" mapstructure:"trip_times"`
	DistanceBuffer float64 `yaml:"distance_buffer" mapstructure:"distance_buffer"`
	Weight         string  `yaml:"weight" mapstructure:"weight"`
	Undirected     bool    `yaml:"undirected" mapstructure:"undirected"`
	Workers        int     `yaml:"workers" mapstructure:"workers"`
	QuadSegs       int     `yaml:"quad_segs" mapstructure:"quad_segs"`
}

// AggregateConfig configures the band dissolve.
type AggregateConfig struct {
	Tolerance   float64 `yaml:"tolerance" mapstructure:"tolerance"`
	LayerPrefix string  `yaml:"layer_prefix" mapstructure:"layer_prefix"`
}

// OutputConfig configures where and how layers are written.
type OutputConfig struct {
	Folder         string `yaml:"folder" mapstructure:"folder"`
	Format         string `yaml:"format" mapstructure:"format"`
	CRS            int    `yaml:"crs" mapstructure:"crs"`
	IsolinesLayer  string `yaml:"isolines_layer" mapstructure:"isolines_layer"`
	UnionLayer     string `yaml:"union_layer" mapstructure:"union_layer"`
	GeoPackageName string `yaml:"geopackage_name" mapstructure:"geopackage_name"`
	// GraphEdges and GraphNodes, when set, receive the categorized graph
	// as JSON.
	GraphEdges  string `yaml:"graph_edges" mapstructure:"graph_edges"`
	GraphNodes  string `yaml:"graph_nodes" mapstructure:"graph_nodes"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Schema      string `yaml:"schema" mapstructure:"schema"`
}

// ServerConfig configures the layer API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

var outputFormats = map[string]bool{
	"geopackage": true,
	"geojson":    true,
	"shapefile":  true,
	"postgis":    true,
}

// Load reads configuration from path, or from config.{json,yaml} in the
// working directory when path is empty, then from the environment.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("GEODECISION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("crs.input", geo.EPSG4326)
	v.SetDefault("crs.graph", geo.EPSG4326)
	v.SetDefault("crs.metric", geo.EPSG2154)
	v.SetDefault("split.min_segments", 3)
	v.SetDefault("connect.threshold", 50.0)
	v.SetDefault("connect.knn", 5)
	v.SetDefault("connect.distance", 5000.0)
	v.SetDefault("connect.snap_tolerance", 1e-8)
	v.SetDefault("connect.id_offset", int64(9990000000))
	v.SetDefault("isochrone.weight", "time")
	v.SetDefault("isochrone.quad_segs", 8)
	v.SetDefault("aggregate.tolerance", 0.0)
	v.SetDefault("output.folder", "output")
	v.SetDefault("output.format", "geopackage")
	v.SetDefault("output.crs", geo.EPSG3857)
	v.SetDefault("output.isolines_layer", "isolines")
	v.SetDefault("output.union_layer", "isolines_union")
	v.SetDefault("output.geopackage_name", "output.gpkg")
	v.SetDefault("output.schema", "public")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional unless given explicitly)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the keys a command needs. Mode is one of "run",
// "split", "graph" or "serve".
func (c *Config) Validate(mode string) error {
	var errs []string
	require := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Sprintf(format, args...))
		}
	}

	switch mode {
	case "run":
		c.validateInput(require)
		require(c.Input.GraphEdges != "", "input.graph_edges is required")
		require(c.Input.GraphNodes != "", "input.graph_nodes is required")
		require(c.Connect.AccessType != "", "connect.access_type is required")
		require(c.Connect.Threshold > 0, "connect.threshold must be > 0")
		require(c.Connect.Distance > 0, "connect.distance must be > 0")
		require(len(c.Isochrone.TripTimes) > 0, "isochrone.trip_times is required")
		for _, t := range c.Isochrone.TripTimes {
			require(t > 0, "isochrone.trip_times must be > 0, got %d", t)
		}
		require(c.Isochrone.DistanceBuffer > 0, "isochrone.distance_buffer must be > 0")
		require(c.Isochrone.Workers >= 0, "isochrone.workers must be >= 0")
		require(c.Aggregate.Tolerance >= 0, "aggregate.tolerance must be >= 0")
		require(c.Output.IsolinesLayer != "", "output.isolines_layer is required")
		require(c.Output.UnionLayer != "", "output.union_layer is required")
		c.validateCRS(require, c.CRS.Graph)
		c.validateOutput(require)
	case "split":
		c.validateInput(require)
		c.validateCRS(require, 0)
		c.validateOutput(require)
	case "graph":
		require(c.Connect.Distance > 0, "connect.distance must be > 0")
	case "serve":
		require(c.Server.Port > 0, "server.port must be > 0")
		require(c.Output.Folder != "", "output.folder is required")
	default:
		return eris.Wrapf(ErrInvalid, "config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Wrapf(ErrInvalid, "config: %s", strings.Join(errs, "; "))
	}
	return nil
}

type requireFunc func(ok bool, format string, args ...any)

func (c *Config) validateInput(require requireFunc) {
	require(c.Input.Polygons != "", "input.polygons is required")
	require(c.Input.IDColumn != "", "input.id_column is required")
	require(c.Split.Distance > 0, "split.distance must be > 0")
	require(c.Split.MinSegments >= 1, "split.min_segments must be >= 1")
}

func (c *Config) validateCRS(require requireFunc, graph int) {
	check := func(from, to int) {
		require(geo.ValidateCRS(from, to) == nil, "no transform from EPSG:%d to EPSG:%d", from, to)
	}
	require(geo.ValidateMetric(c.CRS.Metric) == nil, "crs.metric EPSG:%d is not a metric crs", c.CRS.Metric)
	check(c.CRS.Input, c.CRS.Metric)
	check(c.CRS.Metric, c.Output.CRS)
	if graph != 0 {
		check(graph, c.CRS.Metric)
	}
}

func (c *Config) validateOutput(require requireFunc) {
	require(outputFormats[c.Output.Format], "output.format %q is not supported", c.Output.Format)
	if c.Output.Format == "postgis" {
		require(c.Output.DatabaseURL != "", "output.database_url is required for postgis")
	} else {
		require(c.Output.Folder != "", "output.folder is required")
	}
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
