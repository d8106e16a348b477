package config

import (
	"fmt"
	"math"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultLogLevel         = "info"
	defaultLogFormat        = "line"
	defaultHost             = "synthetic-host-1"
	defaultCadence          = time.Second
	defaultBatchSize        = 20
	defaultBaseCPU          = 25.0
	defaultBaseLatency      = 50.0
	defaultSpikeProbability = 0.05
	defaultMaxAttempts      = 5
	defaultInitialDelay     = time.Second
	defaultMaxDelay         = 30 * time.Second
	defaultSinkTimeout      = 10 * time.Second
	defaultDebugListen      = "127.0.0.1:6060"

	// SinkHTTP posts JSON or CBOR batches to an HTTP ingestion endpoint.
	SinkHTTP = "http"
	// SinkGRPC pushes protobuf batches over gRPC.
	SinkGRPC = "grpc"
	// SinkLog writes batches into debug logs only.
	SinkLog = "log"
)

// Duration wraps time.Duration for TOML parsing.
// Params: text duration string (e.g. "5s", "1m").
// Returns: parse error on invalid duration.
type Duration struct {
	time.Duration
}

// UnmarshalText parses TOML duration values.
// Params: text is raw duration bytes from TOML.
// Returns: error when value is not a valid Go duration.
func (d *Duration) UnmarshalText(text []byte) error {
	value := strings.TrimSpace(string(text))
	if value == "" {
		d.Duration = 0
		return nil
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value, err)
	}

	d.Duration = parsed
	return nil
}

// Config represents the root producer configuration.
// Params: TOML document sections.
// Returns: validated runtime configuration.
type Config struct {
	Global    GlobalConfig    `toml:"global"`
	Log       LogConfig       `toml:"log"`
	Debug     DebugConfig     `toml:"debug"`
	Producer  ProducerConfig  `toml:"producer"`
	Generator GeneratorConfig `toml:"generator"`
	Retry     RetryConfig     `toml:"retry"`
	Sink      SinkConfig      `toml:"sink"`
}

// GlobalConfig contains source identity attached to every point.
// Params: logical host and static tags.
// Returns: global identity settings.
type GlobalConfig struct {
	Host string            `toml:"host"`
	Tags map[string]string `toml:"tags"`
}

// LogConfig contains console/file logging configuration.
// Params: console and file sink options.
// Returns: logger sink settings.
type LogConfig struct {
	Console LogSinkConfig `toml:"console"`
	File    LogSinkConfig `toml:"file"`
}

// LogSinkConfig defines one logging sink.
// Params: sink options from TOML.
// Returns: sink setup.
type LogSinkConfig struct {
	Enabled bool   `toml:"enabled"`
	Level   string `toml:"level"`
	Format  string `toml:"format"`
	Path    string `toml:"path"`
}

// DebugConfig defines optional HTTP endpoint with /metrics and pprof handlers.
// Params: enabled flag and listen address in host:port format.
// Returns: debug server settings.
type DebugConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

// ProducerConfig defines generation cadence and flush threshold.
// Params: cadence between points (explicit "0s" runs without waiting) and batch size.
// Returns: loop settings.
type ProducerConfig struct {
	Cadence   *Duration `toml:"cadence"`
	BatchSize int       `toml:"batch_size"`
}

// GeneratorConfig defines synthetic sample shape.
// Params: baselines, spike probability, seed, and host probing switches.
// Returns: generator settings.
type GeneratorConfig struct {
	BaseCPU           *float64 `toml:"base_cpu"`
	BaseLatency       *float64 `toml:"base_latency"`
	SpikeProbability  *float64 `toml:"spike_probability"`
	Seed              uint64   `toml:"seed"`
	CalibrateFromHost bool     `toml:"calibrate_from_host"`
	HostTags          bool     `toml:"host_tags"`
}

// RetryConfig defines upload backoff bounds.
// Params: attempt limit and delay range.
// Returns: retry settings.
type RetryConfig struct {
	MaxAttempts  int      `toml:"max_attempts"`
	InitialDelay Duration `toml:"initial_delay"`
	MaxDelay     Duration `toml:"max_delay"`
}

// SinkConfig selects and configures the delivery target.
// Params: sink kind, per-attempt timeout, and kind-specific sections.
// Returns: sink settings.
type SinkConfig struct {
	Kind    string         `toml:"kind"`
	Timeout *Duration      `toml:"timeout"`
	HTTP    HTTPSinkConfig `toml:"http"`
	GRPC    GRPCSinkConfig `toml:"grpc"`
}

// AttemptTimeout returns the per-attempt sink timeout; zero disables it.
// Params: none.
// Returns: configured timeout or zero when unset.
func (c SinkConfig) AttemptTimeout() time.Duration {
	if c.Timeout == nil {
		return 0
	}
	return c.Timeout.Duration
}

// HTTPSinkConfig defines HTTP ingestion endpoint.
// Params: URL, bearer token, static headers, body encoding (json, cbor), and compression (none, gzip, zstd).
// Returns: HTTP sink settings.
type HTTPSinkConfig struct {
	URL         string            `toml:"url"`
	Token       string            `toml:"token"`
	Headers     map[string]string `toml:"headers"`
	Encoding    string            `toml:"encoding"`
	Compression string            `toml:"compression"`
}

// GRPCSinkConfig defines gRPC ingestion endpoint.
// Params: host:port address and bearer token.
// Returns: gRPC sink settings.
type GRPCSinkConfig struct {
	Addr  string `toml:"addr"`
	Token string `toml:"token"`
}

// Load reads, expands, validates, and returns config from path.
// Params: path to TOML config file or directory with *.toml files.
// Returns: validated config pointer or error.
func Load(path string) (*Config, error) {
	raw, err := readConfigSource(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(raw))

	var cfg Config
	if err := toml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("decode TOML %q: %w", path, err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// readConfigSource reads one TOML file or concatenates *.toml files from directory.
// Params: path to config file or directory.
// Returns: raw TOML bytes or error.
func readConfigSource(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config %q: %w", path, err)
	}

	if !info.IsDir() {
		raw, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil, fmt.Errorf("read config %q: %w", path, readErr)
		}
		return raw, nil
	}

	return readConfigDir(path)
}

// readConfigDir concatenates config snippets from one directory in file-name order.
// Params: path to directory that contains *.toml files.
// Returns: concatenated TOML content or error.
func readConfigDir(path string) ([]byte, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read config dir %q: %w", path, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".toml") {
			files = append(files, entry.Name())
		}
	}

	sort.Strings(files)
	if len(files) == 0 {
		return nil, fmt.Errorf("read config dir %q: no *.toml files", path)
	}

	var builder strings.Builder
	for _, name := range files {
		filePath := filepath.Join(path, name)
		raw, readErr := os.ReadFile(filePath)
		if readErr != nil {
			return nil, fmt.Errorf("read config %q: %w", filePath, readErr)
		}
		builder.Write(raw)
		if len(raw) == 0 || raw[len(raw)-1] != '\n' {
			builder.WriteByte('\n')
		}
		builder.WriteByte('\n')
	}

	return []byte(builder.String()), nil
}

// applyDefaults fills defaults for optional configuration fields.
// Params: receiver config pointer.
// Returns: none.
func (c *Config) applyDefaults() {
	c.Log.Console.Level = lowerOrDefault(c.Log.Console.Level, defaultLogLevel)
	c.Log.Console.Format = lowerOrDefault(c.Log.Console.Format, defaultLogFormat)
	c.Log.File.Level = lowerOrDefault(c.Log.File.Level, defaultLogLevel)
	c.Log.File.Format = lowerOrDefault(c.Log.File.Format, "json")

	if !c.Log.Console.Enabled && !c.Log.File.Enabled {
		c.Log.Console.Enabled = true
	}

	c.Global.Host = strings.TrimSpace(c.Global.Host)
	if c.Global.Host == "" {
		c.Global.Host = defaultHost
	}
	if c.Global.Tags == nil {
		c.Global.Tags = map[string]string{
			"env":    "dev",
			"source": "synthetic-producer",
		}
	}

	if strings.TrimSpace(c.Debug.Listen) == "" {
		c.Debug.Listen = defaultDebugListen
	}

	if c.Producer.Cadence == nil {
		c.Producer.Cadence = &Duration{Duration: defaultCadence}
	}
	if c.Producer.BatchSize == 0 {
		c.Producer.BatchSize = defaultBatchSize
	}

	if c.Generator.BaseCPU == nil {
		c.Generator.BaseCPU = float64Ptr(defaultBaseCPU)
	}
	if c.Generator.BaseLatency == nil {
		c.Generator.BaseLatency = float64Ptr(defaultBaseLatency)
	}
	if c.Generator.SpikeProbability == nil {
		c.Generator.SpikeProbability = float64Ptr(defaultSpikeProbability)
	}

	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = defaultMaxAttempts
	}
	if c.Retry.InitialDelay.Duration == 0 {
		c.Retry.InitialDelay.Duration = defaultInitialDelay
	}
	if c.Retry.MaxDelay.Duration == 0 {
		c.Retry.MaxDelay.Duration = defaultMaxDelay
	}

	c.Sink.Kind = strings.ToLower(strings.TrimSpace(c.Sink.Kind))
	c.Sink.HTTP.Encoding = lowerOrDefault(c.Sink.HTTP.Encoding, "json")
	c.Sink.HTTP.Compression = lowerOrDefault(c.Sink.HTTP.Compression, "none")
	if c.Sink.Timeout == nil {
		c.Sink.Timeout = &Duration{Duration: defaultSinkTimeout}
	}
}

// validate checks required fields and value ranges.
// Params: receiver config pointer.
// Returns: validation error for invalid or incomplete config.
func (c *Config) validate() error {
	if err := validateSink("log.console", c.Log.Console, false); err != nil {
		return err
	}
	if err := validateSink("log.file", c.Log.File, true); err != nil {
		return err
	}
	if err := validateDebugConfig("debug", c.Debug); err != nil {
		return err
	}

	for key := range c.Global.Tags {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("global.tags cannot contain empty key")
		}
	}

	if c.Producer.Cadence != nil && c.Producer.Cadence.Duration < 0 {
		return fmt.Errorf("producer.cadence must be >= 0")
	}
	if c.Producer.BatchSize <= 0 {
		return fmt.Errorf("producer.batch_size must be > 0")
	}

	if err := validateGeneratorConfig("generator", c.Generator); err != nil {
		return err
	}
	if err := validateRetryConfig("retry", c.Retry); err != nil {
		return err
	}

	return validateSinkConfig("sink", c.Sink)
}

// validateSink validates one logging sink configuration.
// Params: name is sink path for errors; sink is sink config; requirePath means path required when enabled.
// Returns: validation error or nil.
func validateSink(name string, sink LogSinkConfig, requirePath bool) error {
	if sink.Enabled && requirePath && strings.TrimSpace(sink.Path) == "" {
		return fmt.Errorf("%s.path is required when sink is enabled", name)
	}

	if err := validateLogLevel(sink.Level); err != nil {
		return fmt.Errorf("%s.level: %w", name, err)
	}
	if err := validateLogFormat(sink.Format); err != nil {
		return fmt.Errorf("%s.format: %w", name, err)
	}

	return nil
}

// validateLogLevel validates known log levels.
// Params: level is lower-case level name.
// Returns: error when level is unsupported.
func validateLogLevel(level string) error {
	switch strings.TrimSpace(strings.ToLower(level)) {
	case "info", "warn", "error", "panic", "debug":
		return nil
	default:
		return fmt.Errorf("unsupported value %q", level)
	}
}

// validateLogFormat validates supported sink formats.
// Params: format is lower-case format name.
// Returns: error when format is unsupported.
func validateLogFormat(format string) error {
	switch strings.TrimSpace(strings.ToLower(format)) {
	case "line", "json":
		return nil
	default:
		return fmt.Errorf("unsupported value %q", format)
	}
}

// validateDebugConfig validates debug endpoint settings.
// Params: path config path prefix; cfg debug settings.
// Returns: validation error or nil.
func validateDebugConfig(path string, cfg DebugConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(strings.TrimSpace(cfg.Listen)); err != nil {
		return fmt.Errorf("%s.listen must be host:port: %w", path, err)
	}
	return nil
}

// validateGeneratorConfig validates sample shape parameters.
// Params: path config path prefix; cfg generator settings with defaults applied.
// Returns: validation error or nil.
func validateGeneratorConfig(path string, cfg GeneratorConfig) error {
	if cfg.BaseCPU != nil {
		value := *cfg.BaseCPU
		if !isFinite(value) || value < 0 {
			return fmt.Errorf("%s.base_cpu must be a finite value >= 0", path)
		}
	}
	if cfg.BaseLatency != nil {
		value := *cfg.BaseLatency
		if !isFinite(value) || value < 1 {
			return fmt.Errorf("%s.base_latency must be a finite value >= 1", path)
		}
	}
	if cfg.SpikeProbability != nil {
		value := *cfg.SpikeProbability
		if !(value >= 0 && value <= 1) {
			return fmt.Errorf("%s.spike_probability must be within [0,1]", path)
		}
	}
	return nil
}

func isFinite(value float64) bool {
	return !math.IsNaN(value) && !math.IsInf(value, 0)
}

// validateRetryConfig validates backoff bounds.
// Params: path config path prefix; cfg retry settings with defaults applied.
// Returns: validation error or nil.
func validateRetryConfig(path string, cfg RetryConfig) error {
	if cfg.MaxAttempts <= 0 {
		return fmt.Errorf("%s.max_attempts must be > 0", path)
	}
	if cfg.InitialDelay.Duration <= 0 {
		return fmt.Errorf("%s.initial_delay must be > 0", path)
	}
	if cfg.MaxDelay.Duration < cfg.InitialDelay.Duration {
		return fmt.Errorf("%s.max_delay must be >= %s.initial_delay", path, path)
	}
	return nil
}

// validateSinkConfig validates delivery target selection.
// Params: path config path prefix; cfg sink settings.
// Returns: validation error or nil.
func validateSinkConfig(path string, cfg SinkConfig) error {
	if cfg.Timeout != nil && cfg.Timeout.Duration < 0 {
		return fmt.Errorf("%s.timeout must be >= 0", path)
	}

	switch cfg.Kind {
	case "":
		return fmt.Errorf("%s.kind is required (http, grpc, log)", path)
	case SinkHTTP:
		raw := strings.TrimSpace(cfg.HTTP.URL)
		if raw == "" {
			return fmt.Errorf("%s.http.url is required when kind = %q", path, SinkHTTP)
		}
		parsed, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("%s.http.url: %w", path, err)
		}
		if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return fmt.Errorf("%s.http.url must be an absolute http(s) URL", path)
		}
		switch cfg.HTTP.Encoding {
		case "json", "cbor":
		default:
			return fmt.Errorf("%s.http.encoding: unsupported value %q", path, cfg.HTTP.Encoding)
		}
		switch cfg.HTTP.Compression {
		case "none", "gzip", "zstd":
		default:
			return fmt.Errorf("%s.http.compression: unsupported value %q", path, cfg.HTTP.Compression)
		}
	case SinkGRPC:
		addr := strings.TrimSpace(cfg.GRPC.Addr)
		if addr == "" {
			return fmt.Errorf("%s.grpc.addr is required when kind = %q", path, SinkGRPC)
		}
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("%s.grpc.addr must be host:port: %w", path, err)
		}
	case SinkLog:
	default:
		return fmt.Errorf("%s.kind: unsupported value %q", path, cfg.Kind)
	}
	return nil
}

// lowerOrDefault returns a trimmed lower-case value or default fallback.
// Params: value to normalize; fallback value when empty.
// Returns: normalized value.
func lowerOrDefault(value, fallback string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return fallback
	}
	return normalized
}

// float64Ptr returns pointer to provided float64 value.
// Params: value to allocate.
// Returns: pointer to copied value.
func float64Ptr(value float64) *float64 {
	copied := value
	return &copied
}
