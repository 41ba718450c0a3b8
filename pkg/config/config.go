package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/gmatflow/gmatflow/pkg/gmat"
	"github.com/gmatflow/gmatflow/pkg/plot"
	"github.com/gmatflow/gmatflow/pkg/scenario"
	"github.com/gmatflow/gmatflow/pkg/stores"
	"github.com/gmatflow/gmatflow/pkg/telemetry"
)

// FileName is the workspace config looked up in the working directory.
const FileName = "gmatflow.yaml"

// EnvPrefix prefixes environment overrides, e.g. GMATFLOW_GMAT_CONSOLE.
const EnvPrefix = "GMATFLOW"

// Config is the workspace configuration.
type Config struct {
	Workspace WorkspaceConfig `mapstructure:"workspace" yaml:"workspace"`
	GMAT      GMATConfig      `mapstructure:"gmat" yaml:"gmat"`
	Transpile TranspileConfig `mapstructure:"transpile" yaml:"transpile"`
	Plot      PlotConfig      `mapstructure:"plot" yaml:"plot"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	Policy    PolicyConfig    `mapstructure:"policy" yaml:"policy"`
}

// WorkspaceConfig is the data directory layout.
type WorkspaceConfig struct {
	DataDir string `mapstructure:"data_dir" yaml:"data_dir" validate:"required"`

	// Scenario is the scenario file read by default.
	Scenario string `mapstructure:"scenario" yaml:"scenario" validate:"required"`

	// Script is where the generated script is written.
	Script string `mapstructure:"script" yaml:"script" validate:"required"`

	// OutputDir receives the engine report.
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir" validate:"required"`

	// PlotDir receives the charts.
	PlotDir string `mapstructure:"plot_dir" yaml:"plot_dir" validate:"required"`
}

// GMATConfig configures the engine runner.
type GMATConfig struct {
	// Console is the console executable. Empty searches GMAT_CONSOLE, the
	// default install locations and PATH.
	Console string `mapstructure:"console" yaml:"console"`

	Timeout    Duration `mapstructure:"timeout" yaml:"timeout" validate:"gte=0"`
	Retries    int      `mapstructure:"retries" yaml:"retries" validate:"gte=0,lte=10"`
	RetryDelay Duration `mapstructure:"retry_delay" yaml:"retry_delay" validate:"gte=0"`

	Remote RemoteConfig `mapstructure:"remote" yaml:"remote"`
}

// RemoteConfig describes an SSH host with a console installed.
type RemoteConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Host    string `mapstructure:"host" yaml:"host" validate:"required_if=Enabled true"`
	Port    int    `mapstructure:"port" yaml:"port" validate:"omitempty,min=1,max=65535"`
	User    string `mapstructure:"user" yaml:"user" validate:"required_if=Enabled true"`

	AuthMethod string `mapstructure:"auth_method" yaml:"auth_method" validate:"omitempty,oneof=password key agent"`
	Password   string `mapstructure:"password" yaml:"password,omitempty"`
	PrivateKey string `mapstructure:"private_key" yaml:"private_key,omitempty"`
	Passphrase string `mapstructure:"passphrase" yaml:"passphrase,omitempty"`

	KnownHosts            string `mapstructure:"known_hosts" yaml:"known_hosts,omitempty"`
	StrictHostKeyChecking bool   `mapstructure:"strict_host_key_checking" yaml:"strict_host_key_checking"`

	Console    string `mapstructure:"console" yaml:"console" validate:"required_if=Enabled true"`
	WorkDir    string `mapstructure:"work_dir" yaml:"work_dir"`
	ReportPath string `mapstructure:"report_path" yaml:"report_path,omitempty"`

	ConnectTimeout Duration `mapstructure:"connect_timeout" yaml:"connect_timeout" validate:"gte=0"`
}

// TranspileConfig configures the script builder.
type TranspileConfig struct {
	// Extended writes the supplementary script statements.
	Extended bool `mapstructure:"extended" yaml:"extended"`
	// OverridesTimeout bounds a Starlark overrides script.
	OverridesTimeout Duration `mapstructure:"overrides_timeout" yaml:"overrides_timeout" validate:"gte=0"`
}

// PlotConfig configures the chart renderer.
type PlotConfig struct {
	Theme  string `mapstructure:"theme" yaml:"theme" validate:"omitempty,oneof=dark light"`
	Width  int    `mapstructure:"width" yaml:"width" validate:"omitempty,min=200,max=8192"`
	Height int    `mapstructure:"height" yaml:"height" validate:"omitempty,min=200,max=8192"`
}

// TelemetryConfig configures logging, tracing and metrics.
type TelemetryConfig struct {
	LogLevel  string `mapstructure:"log_level" yaml:"log_level" validate:"oneof=trace debug info warn error"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format" validate:"oneof=console json"`

	// Tracing selects the span exporter.
	Tracing      string  `mapstructure:"tracing" yaml:"tracing" validate:"oneof=none stdout otlp"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint,omitempty" validate:"required_if=Tracing otlp"`
	SamplingRate float64 `mapstructure:"sampling_rate" yaml:"sampling_rate" validate:"gte=0,lte=1"`

	// MetricsAddr serves /metrics during watch. Empty disables the server.
	MetricsAddr string `mapstructure:"metrics_addr" yaml:"metrics_addr,omitempty"`

	// MetricsFile receives a textfile snapshot after run.
	MetricsFile string `mapstructure:"metrics_file" yaml:"metrics_file,omitempty"`
}

// StoreConfig configures the run history database.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path" validate:"required"`
}

// PolicyConfig configures mission linting.
type PolicyConfig struct {
	// Dirs holds extra .rego and .json policies.
	Dirs []string `mapstructure:"dirs" yaml:"dirs"`

	// Strict fails runs on error-severity violations.
	Strict bool `mapstructure:"strict" yaml:"strict"`
}

// Default returns the configuration of a fresh workspace rooted at ./data.
func Default() *Config {
	return &Config{
		Workspace: WorkspaceConfig{
			DataDir:   "data",
			Scenario:  filepath.Join("data", "input", "datos_guardados.txt"),
			Script:    filepath.Join("data", "gmat", "demo.script"),
			OutputDir: filepath.Join("data", "output"),
			PlotDir:   filepath.Join("data", "plots"),
		},
		GMAT: GMATConfig{
			Timeout:    Duration(gmat.DefaultTimeout),
			Retries:    2,
			RetryDelay: Duration(5 * time.Second),
			Remote: RemoteConfig{
				Port:           22,
				AuthMethod:     string(gmat.AuthKey),
				WorkDir:        "/tmp/gmatflow",
				ConnectTimeout: Duration(30 * time.Second),
			},
		},
		Transpile: TranspileConfig{
			OverridesTimeout: Duration(scenario.DefaultOverridesTimeout),
		},
		Plot: PlotConfig{
			Theme:  string(plot.ThemeDark),
			Width:  1024,
			Height: 768,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			LogFormat:    "console",
			Tracing:      "none",
			SamplingRate: 1.0,
		},
		Store: StoreConfig{
			Path: filepath.Join("data", "gmatflow.db"),
		},
		Policy: PolicyConfig{
			Dirs: []string{},
		},
	}
}

// Load reads the config at path, or gmatflow.yaml in the working directory
// when path is empty. A missing default file is not an error. Environment
// variables prefixed with GMATFLOW_ override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so environment overrides apply even when
// the file omits them.
func setDefaults(v *viper.Viper, d *Config) {
	defaults := map[string]interface{}{
		"workspace.data_dir":   d.Workspace.DataDir,
		"workspace.scenario":   d.Workspace.Scenario,
		"workspace.script":     d.Workspace.Script,
		"workspace.output_dir": d.Workspace.OutputDir,
		"workspace.plot_dir":   d.Workspace.PlotDir,

		"gmat.console":     d.GMAT.Console,
		"gmat.timeout":     d.GMAT.Timeout.String(),
		"gmat.retries":     d.GMAT.Retries,
		"gmat.retry_delay": d.GMAT.RetryDelay.String(),

		"gmat.remote.enabled":                  d.GMAT.Remote.Enabled,
		"gmat.remote.host":                     d.GMAT.Remote.Host,
		"gmat.remote.port":                     d.GMAT.Remote.Port,
		"gmat.remote.user":                     d.GMAT.Remote.User,
		"gmat.remote.auth_method":              d.GMAT.Remote.AuthMethod,
		"gmat.remote.password":                 d.GMAT.Remote.Password,
		"gmat.remote.private_key":              d.GMAT.Remote.PrivateKey,
		"gmat.remote.passphrase":               d.GMAT.Remote.Passphrase,
		"gmat.remote.known_hosts":              d.GMAT.Remote.KnownHosts,
		"gmat.remote.strict_host_key_checking": d.GMAT.Remote.StrictHostKeyChecking,
		"gmat.remote.console":                  d.GMAT.Remote.Console,
		"gmat.remote.work_dir":                 d.GMAT.Remote.WorkDir,
		"gmat.remote.report_path":              d.GMAT.Remote.ReportPath,
		"gmat.remote.connect_timeout":          d.GMAT.Remote.ConnectTimeout.String(),

		"transpile.extended":          d.Transpile.Extended,
		"transpile.overrides_timeout": d.Transpile.OverridesTimeout.String(),

		"plot.theme":  d.Plot.Theme,
		"plot.width":  d.Plot.Width,
		"plot.height": d.Plot.Height,

		"telemetry.log_level":     d.Telemetry.LogLevel,
		"telemetry.log_format":    d.Telemetry.LogFormat,
		"telemetry.tracing":       d.Telemetry.Tracing,
		"telemetry.otlp_endpoint": d.Telemetry.OTLPEndpoint,
		"telemetry.sampling_rate": d.Telemetry.SamplingRate,
		"telemetry.metrics_addr":  d.Telemetry.MetricsAddr,
		"telemetry.metrics_file":  d.Telemetry.MetricsFile,

		"store.path": d.Store.Path,

		"policy.dirs":   d.Policy.Dirs,
		"policy.strict": d.Policy.Strict,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

var validate = validator.New()

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("invalid config: %w", err)
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s: failed %q", fieldPath(fe), fe.Tag()))
		}
		return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// fieldPath turns Config.GMAT.Remote.Host into gmat.remote.host.
func fieldPath(fe validator.FieldError) string {
	parts := strings.Split(fe.StructNamespace(), ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = snake(p)
	}
	return strings.Join(parts, ".")
}

func snake(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		upper := r >= 'A' && r <= 'Z'
		if upper && i > 0 {
			prevLower := runes[i-1] >= 'a' && runes[i-1] <= 'z'
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			if prevLower || nextLower {
				b.WriteByte('_')
			}
		}
		if upper {
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// EnsureDirs creates every directory the workspace writes into.
func (c *Config) EnsureDirs() error {
	dirs := []string{
		c.Workspace.DataDir,
		filepath.Dir(c.Workspace.Scenario),
		filepath.Dir(c.Workspace.Script),
		c.Workspace.OutputDir,
		c.Workspace.PlotDir,
		filepath.Dir(c.Store.Path),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// RemoteRunnerConfig converts the remote block for gmat.NewRemoteRunner.
func (c *Config) RemoteRunnerConfig() gmat.RemoteConfig {
	r := c.GMAT.Remote
	return gmat.RemoteConfig{
		Host:                  r.Host,
		Port:                  r.Port,
		User:                  r.User,
		AuthMethod:            gmat.AuthMethod(r.AuthMethod),
		Password:              r.Password,
		PrivateKeyPath:        r.PrivateKey,
		PrivateKeyPassphrase:  r.Passphrase,
		KnownHostsPath:        r.KnownHosts,
		StrictHostKeyChecking: r.StrictHostKeyChecking,
		Console:               r.Console,
		WorkDir:               r.WorkDir,
		ReportPath:            r.ReportPath,
		ConnectionTimeout:     r.ConnectTimeout.Std(),
		CommandTimeout:        c.GMAT.Timeout.Std(),
	}
}

// TelemetrySettings maps the telemetry block onto telemetry.Config.
func (c *Config) TelemetrySettings() *telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.Logging.Level = c.Telemetry.LogLevel
	tc.Logging.Format = c.Telemetry.LogFormat
	tc.Tracing.Exporter = c.Telemetry.Tracing
	tc.Tracing.Endpoint = c.Telemetry.OTLPEndpoint
	tc.Tracing.SamplingRate = c.Telemetry.SamplingRate
	tc.Metrics.ListenAddress = c.Telemetry.MetricsAddr
	tc.Metrics.TextfilePath = c.Telemetry.MetricsFile
	return tc
}

// StoreSettings returns the sqlite store settings.
func (c *Config) StoreSettings() stores.Config {
	return stores.Config{Path: c.Store.Path}
}
