package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Tables   TablesConfig   `yaml:"tables" mapstructure:"tables"`
	Fields   FieldsConfig   `yaml:"fields" mapstructure:"fields"`
	Output   OutputConfig   `yaml:"output" mapstructure:"output"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Metrics  MetricsConfig  `yaml:"metrics" mapstructure:"metrics"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the attribute store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Schema      string `yaml:"schema" mapstructure:"schema"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
	Retries     int    `yaml:"retries" mapstructure:"retries"`
}

// TablesConfig names the input layers and every derived table.
type TablesConfig struct {
	// Inputs, which must exist in the store.
	BBService     string `yaml:"bb_service" mapstructure:"bb_service"`
	AddressPoints string `yaml:"address_points" mapstructure:"address_points"`
	Counties      string `yaml:"counties" mapstructure:"counties"`
	Municipal     string `yaml:"municipal" mapstructure:"municipal"`
	Unincorp      string `yaml:"unincorporated" mapstructure:"unincorporated"`

	// Overlay outputs, written by the geoprocessing engine.
	AnalysisAreas   string `yaml:"analysis_areas" mapstructure:"analysis_areas"`
	ServiceDissolve string `yaml:"service_dissolve" mapstructure:"service_dissolve"`
	ServicePairwise string `yaml:"service_pairwise" mapstructure:"service_pairwise"`
	NoServiceID     string `yaml:"no_service_id" mapstructure:"no_service_id"`

	// Attribute outputs.
	AddressServiceFinal string `yaml:"address_service_final" mapstructure:"address_service_final"`
	NoService           string `yaml:"no_service" mapstructure:"no_service"`
	MSBA                string `yaml:"msba" mapstructure:"msba"`
	AddressCountArea    string `yaml:"address_count_area" mapstructure:"address_count_area"`
	AddressCountType    string `yaml:"address_count_type" mapstructure:"address_count_type"`
	AddressCountCounty  string `yaml:"address_count_county" mapstructure:"address_count_county"`
}

// FieldsConfig names the attribute fields the pipeline reads.
type FieldsConfig struct {
	AddressID   string   `yaml:"address_id" mapstructure:"address_id"`
	Key         string   `yaml:"key" mapstructure:"key"`
	KeySources  []string `yaml:"key_sources" mapstructure:"key_sources"`
	Name        string   `yaml:"name" mapstructure:"name"`
	AreaType    string   `yaml:"area_type" mapstructure:"area_type"`
	CountyNbr   string   `yaml:"county_nbr" mapstructure:"county_nbr"`
	IdentitySfx string   `yaml:"identity_suffix" mapstructure:"identity_suffix"`
}

// OutputConfig configures report files.
type OutputConfig struct {
	Dir      string `yaml:"dir" mapstructure:"dir"`
	XLSX     bool   `yaml:"xlsx" mapstructure:"xlsx"`
	Manifest bool   `yaml:"manifest" mapstructure:"manifest"`
}

// PipelineConfig configures stage execution.
type PipelineConfig struct {
	ContinueOnError bool `yaml:"continue_on_error" mapstructure:"continue_on_error"`
	LogEvery        int  `yaml:"log_every" mapstructure:"log_every"`
}

// MetricsConfig configures the Prometheus textfile written after a run.
type MetricsConfig struct {
	Textfile string `yaml:"textfile" mapstructure:"textfile"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from ./config.yaml, if present, and environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. A named file that cannot be
// read is an error; with path empty a missing ./config.yaml is not.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}
	v.SetConfigType("yaml")

	// Environment
	v.SetEnvPrefix("BROADBAND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "broadband.db")
	v.SetDefault("store.schema", "")
	v.SetDefault("store.max_conns", 0)
	v.SetDefault("store.min_conns", 0)
	v.SetDefault("store.retries", 3)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("tables.bb_service", "Utilities_BroadbandService_20200930")
	v.SetDefault("tables.address_points", "AddressPoints_20200923")
	v.SetDefault("tables.counties", "county_boundaries")
	v.SetDefault("tables.municipal", "municipal_boundaries")
	v.SetDefault("tables.unincorporated", "unincorporated_boundaries")
	v.SetDefault("tables.analysis_areas", "Analysis_Areas")
	v.SetDefault("tables.service_dissolve", "BB_Service_Dissolve")
	v.SetDefault("tables.service_pairwise", "BB_Service_Dissolve_Pairwise")
	v.SetDefault("tables.no_service_id", "NoService_Id")
	v.SetDefault("tables.address_service_final", "Address_Service_Final")
	v.SetDefault("tables.no_service", "NoService")
	v.SetDefault("tables.msba", "MSBA")
	v.SetDefault("tables.address_count_area", "AddressCount_AreaName")
	v.SetDefault("tables.address_count_type", "AddressCount_AreaType")
	v.SetDefault("tables.address_count_county", "AddressCount_County")

	v.SetDefault("fields.address_id", "FID_AddressPoints")
	v.SetDefault("fields.key", "Key")
	v.SetDefault("fields.key_sources", []string{"UTProvCode", "TRANSTECH", "MAXADDOWN", "MAXADUP"})
	v.SetDefault("fields.name", "NAME")
	v.SetDefault("fields.area_type", "AREA_TYPE")
	v.SetDefault("fields.county_nbr", "COUNTYNBR")
	v.SetDefault("fields.identity_suffix", "_1")

	v.SetDefault("output.dir", ".")
	v.SetDefault("output.xlsx", false)
	v.SetDefault("output.manifest", true)
	v.SetDefault("pipeline.continue_on_error", true)
	v.SetDefault("pipeline.log_every", 1000000)
	v.SetDefault("metrics.textfile", "")

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

// Validate checks the settings a command needs before it touches the store.
// Every problem is reported, not just the first.
func (c *Config) Validate(command string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	if c.Store.Retries < 0 {
		errs = append(errs, "store.retries must not be negative")
	}

	switch command {
	case "analyze", "run":
		if len(c.Fields.KeySources) != 4 {
			errs = append(errs, "fields.key_sources must name 4 fields")
		}
		if c.Pipeline.LogEvery <= 0 {
			errs = append(errs, "pipeline.log_every must be positive")
		}
	}
	switch command {
	case "postprocess", "run":
		if c.Output.Dir == "" {
			errs = append(errs, "output.dir is required")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
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
