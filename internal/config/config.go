package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/stripe/pg-schema-depcy/internal/schema"
	"github.com/stripe/pg-schema-depcy/pkg/diff"
	"github.com/stripe/pg-schema-depcy/pkg/log"
)

const (
	// FileName is the settings file picked up from the working directory when no file is given
	FileName = ".pg-schema-depcy.toml"

	defaultLogLevel = "warn"
)

type (
	// Settings is the content of a settings file, e.g.,
	//
	//	log_level = "info"
	//
	//	[plan]
	//	allowed_types = ["TABLE", "VIEW"]
	//	statement_timeout = "10s"
	//
	//	[apply]
	//	allow_hazards = ["DELETES_DATA"]
	Settings struct {
		LogLevel string        `toml:"log_level"`
		Plan     PlanSettings  `toml:"plan"`
		Apply    ApplySettings `toml:"apply"`
	}

	PlanSettings struct {
		// AllowedTypes is empty when every object type is allowed
		AllowedTypes     []string      `toml:"allowed_types"`
		StopNotAllowed   bool          `toml:"stop_not_allowed"`
		Selection        []string      `toml:"selection"`
		DataMovementMode bool          `toml:"data_movement_mode"`
		DropBeforeCreate bool          `toml:"drop_before_create"`
		StatementTimeout time.Duration `toml:"statement_timeout"`
		MaxConcurrency   int           `toml:"max_concurrency"`
	}

	ApplySettings struct {
		AllowHazards []string `toml:"allow_hazards"`
		EnvFile      string   `toml:"env_file"`
	}
)

// Default returns the settings used when there is no settings file
func Default() Settings {
	return Settings{
		LogLevel: defaultLogLevel,
		Apply: ApplySettings{
			EnvFile: DefaultEnvFile,
		},
	}
}

// Load loads the settings file at path. An empty path loads FileName from the working directory and falls back to
// the default settings if it does not exist.
func Load(path string) (Settings, error) {
	if path == "" {
		if _, err := os.Stat(FileName); errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		} else if err != nil {
			return Settings{}, fmt.Errorf("checking settings file: %w", err)
		}
		path = FileName
	}

	settings := Default()
	md, err := toml.DecodeFile(path, &settings)
	if err != nil {
		return Settings{}, fmt.Errorf("decoding settings file %q: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		var keys []string
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return Settings{}, fmt.Errorf("unknown settings in %q: %s", path, strings.Join(keys, ", "))
	}
	if err := settings.Validate(); err != nil {
		return Settings{}, fmt.Errorf("validating settings file %q: %w", path, err)
	}
	return settings, nil
}

// Validate checks the values that the settings file cannot type-check itself
func (s Settings) Validate() error {
	if _, err := log.ParseLevel(s.LogLevel); err != nil {
		return err
	}
	if _, err := s.allowedTypes(); err != nil {
		return err
	}
	if _, err := s.selection(); err != nil {
		return err
	}
	if s.Plan.StatementTimeout < 0 {
		return fmt.Errorf("statement_timeout must be positive, got %s", s.Plan.StatementTimeout)
	}
	if s.Plan.MaxConcurrency < 0 {
		return fmt.Errorf("max_concurrency must be positive, got %d", s.Plan.MaxConcurrency)
	}
	return nil
}

// Override sets a single setting from its flat key, e.g., "allowed_types" with the value "TABLE,VIEW". List values
// are comma-separated.
func (s *Settings) Override(key, val string) error {
	var err error
	switch key {
	case "log_level":
		s.LogLevel = val
	case "allowed_types":
		s.Plan.AllowedTypes = splitList(val)
	case "stop_not_allowed":
		s.Plan.StopNotAllowed, err = strconv.ParseBool(val)
	case "selection":
		s.Plan.Selection = splitList(val)
	case "data_movement_mode":
		s.Plan.DataMovementMode, err = strconv.ParseBool(val)
	case "drop_before_create":
		s.Plan.DropBeforeCreate, err = strconv.ParseBool(val)
	case "statement_timeout":
		s.Plan.StatementTimeout, err = time.ParseDuration(val)
	case "max_concurrency":
		s.Plan.MaxConcurrency, err = strconv.Atoi(val)
	case "allow_hazards":
		s.Apply.AllowHazards = splitList(val)
	case "env_file":
		s.Apply.EnvFile = val
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	if err != nil {
		return fmt.Errorf("parsing setting %q: %w", key, err)
	}
	return s.Validate()
}

func splitList(val string) []string {
	var vals []string
	for _, v := range strings.Split(val, ",") {
		if v = strings.TrimSpace(v); v != "" {
			vals = append(vals, v)
		}
	}
	return vals
}

func (s Settings) allowedTypes() ([]schema.ObjectType, error) {
	var types []schema.ObjectType
	for _, val := range s.Plan.AllowedTypes {
		t, err := schema.ParseObjectType(val)
		if err != nil {
			return nil, fmt.Errorf("parsing allowed type: %w", err)
		}
		types = append(types, t)
	}
	return types, nil
}

func (s Settings) selection() ([]schema.Reference, error) {
	var refs []schema.Reference
	for _, val := range s.Plan.Selection {
		ref, err := schema.ParseReference(val)
		if err != nil {
			return nil, fmt.Errorf("parsing selection: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// PlanOpts converts the plan settings into plan generation options
func (s Settings) PlanOpts(logger log.Logger) ([]diff.PlanOpt, error) {
	opts := []diff.PlanOpt{diff.WithLogger(logger)}

	types, err := s.allowedTypes()
	if err != nil {
		return nil, err
	}
	if len(types) > 0 {
		opts = append(opts, diff.WithAllowedTypes(types...))
	}
	if s.Plan.StopNotAllowed {
		opts = append(opts, diff.WithStopNotAllowed())
	}

	refs, err := s.selection()
	if err != nil {
		return nil, err
	}
	if len(refs) > 0 {
		opts = append(opts, diff.WithSelection(refs...))
	}

	if s.Plan.DataMovementMode {
		opts = append(opts, diff.WithDataMovementMode())
	}
	if s.Plan.DropBeforeCreate {
		opts = append(opts, diff.WithDropBeforeCreate())
	}
	if s.Plan.StatementTimeout > 0 {
		opts = append(opts, diff.WithStatementTimeout(s.Plan.StatementTimeout))
	}
	if s.Plan.MaxConcurrency > 0 {
		opts = append(opts, diff.WithMaxConcurrency(s.Plan.MaxConcurrency))
	}
	return opts, nil
}

// Level returns the parsed log level
func (s Settings) Level() log.Level {
	level, err := log.ParseLevel(s.LogLevel)
	if err != nil {
		return log.LevelWarn
	}
	return level
}
