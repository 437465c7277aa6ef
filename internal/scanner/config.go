package scanner

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"

	"spread-radar/internal/market"
)

// MinInterval is the shortest pause between two cycles, whatever the configured interval.
const MinInterval = 500 * time.Millisecond

// Config holds the parameters of one scan run. It is copied at Start and never mutated.
type Config struct {
	RunID         uuid.UUID
	Symbols       []string        `validate:"min=1,dive,required"`
	Interval      time.Duration   `validate:"gte=0"`
	FeeBps        decimal.Decimal `validate:"gte=0"`
	SlippageBps   decimal.Decimal `validate:"gte=0"`
	NotionalUSD   decimal.Decimal `validate:"gt=0"`
	TopN          int             `validate:"gte=0"`
	DiffVenueOnly bool
	MinDepthUSD   decimal.Decimal `validate:"gte=0"`
	AlertBps      optional.Option[decimal.Decimal]
	AlertSound    bool
	ExportCSV     bool
	ExportPath    string `validate:"required_if=ExportCSV true"`
}

// DefaultConfig mirrors the radar's factory settings.
func DefaultConfig() Config {
	return Config{
		Symbols:       append([]string(nil), market.DefaultSymbols...),
		Interval:      1200 * time.Millisecond,
		FeeBps:        decimal.NewFromInt(11),
		SlippageBps:   decimal.NewFromInt(5),
		NotionalUSD:   decimal.NewFromInt(200),
		TopN:          20,
		DiffVenueOnly: true,
		MinDepthUSD:   decimal.NewFromInt(400),
		AlertBps:      optional.Some(decimal.NewFromInt(8)),
		AlertSound:    true,
	}
}

// SleepInterval is the pause after each cycle.
func (c Config) SleepInterval() time.Duration {
	return max(MinInterval, c.Interval)
}

// ConfigError reports a rejected scan configuration.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid scan config: %v", e.Err)
	}
	return fmt.Sprintf("invalid scan config: %s %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// Validate checks the configuration and returns a *ConfigError describing the first violation.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &ConfigError{Err: err}
	}
	fe := fieldErrs[0]
	return &ConfigError{Field: fe.Field(), Err: errors.New(describe(fe))}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "min":
		return "must not be empty"
	case "required":
		return "is required"
	case "required_if":
		return "is required when " + strings.ReplaceAll(fe.Param(), " ", " is ")
	case "gte":
		return "must be >= " + fe.Param()
	case "gt":
		return "must be > " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}
