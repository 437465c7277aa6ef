package config

import (
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"spread-radar/internal/logging"
	"spread-radar/internal/market"
	"spread-radar/internal/scanner"
	"spread-radar/internal/venue"
)

// EnvPrefix prefixes every environment override, e.g. SPREADRADAR_SCANNER_TOP_N.
const EnvPrefix = "SPREADRADAR"

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scanner   ScannerConfig   `mapstructure:"scanner"`
	Venues    VenuesConfig    `mapstructure:"venues"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
	Render    RenderConfig    `mapstructure:"render"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Retention RetentionConfig `mapstructure:"retention"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity. An empty DSN disables persistence.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	EnsureSchema    bool          `mapstructure:"ensure_schema"`
}

// ScannerConfig is the file/env form of scanner.Config.
type ScannerConfig struct {
	Symbols       []string        `mapstructure:"symbols"`
	Interval      time.Duration   `mapstructure:"interval"`
	FeeBps        decimal.Decimal `mapstructure:"fee_bps"`
	SlippageBps   decimal.Decimal `mapstructure:"slippage_bps"`
	NotionalUSD   decimal.Decimal `mapstructure:"notional_usd"`
	TopN          int             `mapstructure:"top_n"`
	DiffVenueOnly bool            `mapstructure:"diff_venue_only"`
	MinDepthUSD   decimal.Decimal `mapstructure:"min_depth_usd"`
	AlertEnabled  bool            `mapstructure:"alert_enabled"`
	AlertBps      decimal.Decimal `mapstructure:"alert_bps"`
	AlertSound    bool            `mapstructure:"alert_sound"`
	ExportCSV     bool            `mapstructure:"export_csv"`
	ExportPath    string          `mapstructure:"export_path"`
}

// VenuesConfig selects and tunes venue connectors. Enabled order is query order.
type VenuesConfig struct {
	Enabled        []string          `mapstructure:"enabled"`
	Levels         int               `mapstructure:"levels"`
	Concurrency    int               `mapstructure:"concurrency"`
	RequestTimeout time.Duration     `mapstructure:"request_timeout"`
	UserAgent      string            `mapstructure:"user_agent"`
	BaseURLs       map[string]string `mapstructure:"base_urls"`
	Stream         StreamConfig      `mapstructure:"stream"`
	Uniswap        UniswapConfig     `mapstructure:"uniswap"`
}

// StreamConfig covers the binance-ws venue.
type StreamConfig struct {
	URL              string        `mapstructure:"url"`
	StaleAfter       time.Duration `mapstructure:"stale_after"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
}

// UniswapConfig covers the uniswapv2 venue. Pools are keyed by symbol.
type UniswapConfig struct {
	RPCURL string                       `mapstructure:"rpc_url"`
	Pools  map[string]venue.PoolOptions `mapstructure:"pools"`
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Cooldown time.Duration  `mapstructure:"cooldown"`
	Bell     bool           `mapstructure:"bell"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int           `mapstructure:"max_data_points"`
	Window        time.Duration `mapstructure:"window"`
}

// RenderConfig tunes the terminal table.
type RenderConfig struct {
	Every time.Duration `mapstructure:"every"`
	Plain bool          `mapstructure:"plain"`
}

// MetricsConfig enables the Prometheus listener when Listen is set.
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

// RetentionConfig prunes persisted rows. A zero MaxAge disables pruning.
type RetentionConfig struct {
	MaxAge          time.Duration `mapstructure:"max_age"`
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "spread-radar")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.ensure_schema", true)

	v.SetDefault("scanner.symbols", market.DefaultSymbols)
	v.SetDefault("scanner.interval", "1.2s")
	v.SetDefault("scanner.fee_bps", "11")
	v.SetDefault("scanner.slippage_bps", "5")
	v.SetDefault("scanner.notional_usd", "200")
	v.SetDefault("scanner.top_n", 20)
	v.SetDefault("scanner.diff_venue_only", true)
	v.SetDefault("scanner.min_depth_usd", "400")
	v.SetDefault("scanner.alert_enabled", true)
	v.SetDefault("scanner.alert_bps", "8")
	v.SetDefault("scanner.alert_sound", true)
	v.SetDefault("scanner.export_csv", false)
	v.SetDefault("scanner.export_path", "radar_export.csv")

	v.SetDefault("venues.enabled", []string{"binance", "bybit", "okx", "bingx"})
	v.SetDefault("venues.levels", venue.DefaultLevels)
	v.SetDefault("venues.concurrency", 0)
	v.SetDefault("venues.request_timeout", "5s")
	v.SetDefault("venues.user_agent", "")
	v.SetDefault("venues.stream.stale_after", "5s")
	v.SetDefault("venues.stream.handshake_timeout", "15s")

	v.SetDefault("alerting.cooldown", "5m")
	v.SetDefault("alerting.bell", true)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.timeout", "10s")

	v.SetDefault("export.max_data_points", 5000)
	v.SetDefault("export.window", "24h")

	v.SetDefault("render.every", "150ms")
	v.SetDefault("render.plain", false)

	v.SetDefault("metrics.listen", "")

	v.SetDefault("retention.max_age", "0s")
	v.SetDefault("retention.interval", "1h")
	v.SetDefault("retention.align_to_bucket", true)
	v.SetDefault("retention.advisory_lock_key", int64(0x73707264))
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			secondsToDurationHook(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			stringToDecimalHook(),
		)
	}
}

var (
	decimalType  = reflect.TypeOf(decimal.Decimal{})
	durationType = reflect.TypeOf(time.Duration(0))
)

// secondsToDurationHook reads bare numbers as seconds, so interval: 1.2 means 1.2s.
// Strings carrying a unit are left to StringToTimeDurationHookFunc.
func secondsToDurationHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != durationType || from == durationType {
			return data, nil
		}
		var secs float64
		value := reflect.ValueOf(data)
		switch from.Kind() {
		case reflect.String:
			f, err := strconv.ParseFloat(strings.TrimSpace(value.String()), 64)
			if err != nil {
				return data, nil
			}
			secs = f
		case reflect.Float32, reflect.Float64:
			secs = value.Float()
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			secs = float64(value.Int())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			secs = float64(value.Uint())
		default:
			return data, nil
		}
		if math.IsNaN(secs) || math.IsInf(secs, 0) || math.Abs(secs) > math.MaxInt64/float64(time.Second) {
			return nil, fmt.Errorf("duration %v out of range", data)
		}
		return time.Duration(math.Round(secs * float64(time.Second))), nil
	}
}

// stringToDecimalHook accepts strings and YAML numbers for decimal fields.
func stringToDecimalHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != decimalType {
			return data, nil
		}
		switch from.Kind() {
		case reflect.String:
			raw := strings.TrimSpace(data.(string))
			if raw == "" {
				return decimal.Zero, nil
			}
			d, err := decimal.NewFromString(raw)
			if err != nil {
				return nil, fmt.Errorf("parse decimal %q: %w", raw, err)
			}
			return d, nil
		case reflect.Float32, reflect.Float64,
			reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return decimal.NewFromString(fmt.Sprint(data))
		default:
			return data, nil
		}
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if len(c.Venues.Enabled) == 0 {
		return fmt.Errorf("venues.enabled must list at least one venue")
	}
	known := venue.Known()
	for _, name := range c.Venues.Enabled {
		if !slices.Contains(known, strings.ToLower(strings.TrimSpace(name))) {
			return fmt.Errorf("venues.enabled: unknown venue %q (known: %s)", name, strings.Join(known, ", "))
		}
	}
	if c.Venues.RequestTimeout <= 0 {
		return fmt.Errorf("venues.request_timeout must be greater than zero")
	}
	if c.Scanner.Interval < 0 {
		return fmt.Errorf("scanner.interval cannot be negative")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Retention.MaxAge < 0 {
		return fmt.Errorf("retention.max_age cannot be negative")
	}
	if c.Retention.MaxAge > 0 && c.Retention.Interval <= 0 {
		return fmt.Errorf("retention.interval must be greater than zero when retention.max_age is set")
	}
	if c.Alerting.Cooldown < 0 {
		return fmt.Errorf("alerting.cooldown cannot be negative")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

// ScanConfig converts the scanner section into a run configuration with a fresh run id.
// The result still has to pass scanner.Config.Validate.
func (c *Config) ScanConfig() scanner.Config {
	s := c.Scanner
	cfg := scanner.Config{
		RunID:         uuid.New(),
		Symbols:       market.ParseSymbols(strings.Join(s.Symbols, ",")),
		Interval:      s.Interval,
		FeeBps:        s.FeeBps,
		SlippageBps:   s.SlippageBps,
		NotionalUSD:   s.NotionalUSD,
		TopN:          s.TopN,
		DiffVenueOnly: s.DiffVenueOnly,
		MinDepthUSD:   s.MinDepthUSD,
		AlertBps:      optional.None[decimal.Decimal](),
		AlertSound:    s.AlertSound,
		ExportCSV:     s.ExportCSV,
		ExportPath:    strings.TrimSpace(s.ExportPath),
	}
	if s.AlertEnabled {
		cfg.AlertBps = optional.Some(s.AlertBps)
	}
	return cfg
}

// VenueOptions converts the venues section for venue.Build.
func (c *Config) VenueOptions(symbols []string, userAgent string) venue.Options {
	v := c.Venues
	if strings.TrimSpace(v.UserAgent) != "" {
		userAgent = v.UserAgent
	}
	baseURLs := make(map[string]string, len(v.BaseURLs))
	for name, url := range v.BaseURLs {
		baseURLs[strings.ToLower(name)] = url
	}
	return venue.Options{
		Timeout:   v.RequestTimeout,
		UserAgent: userAgent,
		BaseURLs:  baseURLs,
		Symbols:   symbols,
		Stream: venue.StreamOptions{
			URL:              v.Stream.URL,
			StaleAfter:       v.Stream.StaleAfter,
			HandshakeTimeout: v.Stream.HandshakeTimeout,
		},
		Uniswap: venue.UniswapOptions{
			RPCURL:  v.Uniswap.RPCURL,
			Timeout: v.RequestTimeout,
			Pools:   v.Uniswap.Pools,
		},
	}
}
