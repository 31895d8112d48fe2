package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-logfmt/logfmt"
	"github.com/spf13/cobra"

	"github.com/stripe/pg-schema-depcy/internal/config"
	"github.com/stripe/pg-schema-depcy/internal/util"
	"github.com/stripe/pg-schema-depcy/pkg/diff"
	"github.com/stripe/pg-schema-depcy/pkg/log"
)

type schemaSourceFlags struct {
	paths    []string
	flagName string
}

func createSchemaSourceFlags(cmd *cobra.Command, flagName string, help string) *schemaSourceFlags {
	s := schemaSourceFlags{flagName: flagName}
	cmd.Flags().StringArrayVar(&s.paths, flagName, nil, help+" Either a YAML snapshot file or directories of YAML "+
		"files describing one snapshot. Can be repeated.")
	mustMarkFlagAsRequired(cmd, flagName)
	return &s
}

func parseSchemaSource(flags schemaSourceFlags) (diff.SchemaSource, error) {
	if len(flags.paths) == 0 {
		return nil, fmt.Errorf("--%s must be set", flags.flagName)
	}
	if len(flags.paths) == 1 {
		info, err := os.Stat(flags.paths[0])
		if err != nil {
			return nil, fmt.Errorf("reading --%s: %w", flags.flagName, err)
		}
		if !info.IsDir() {
			return diff.FileSchemaSource(flags.paths[0]), nil
		}
	}
	source, err := diff.DirSchemaSource(flags.paths)
	if err != nil {
		return nil, fmt.Errorf("reading --%s: %w", flags.flagName, err)
	}
	return source, nil
}

type settingsFlags struct {
	configPath string
	overrides  string
	selection  []string
}

func createSettingsFlags(cmd *cobra.Command) *settingsFlags {
	var s settingsFlags
	cmd.Flags().StringVar(&s.configPath, "config", "", fmt.Sprintf("Settings file. Defaults to %s in the working "+
		"directory if it exists", config.FileName))
	cmd.Flags().StringVar(&s.overrides, "settings", "", "logfmt key/value pairs that override the settings file "+
		"(example: --settings 'allowed_types=TABLE,VIEW data_movement_mode=true statement_timeout=10s')")
	cmd.Flags().StringArrayVar(&s.selection, "select", nil, "Only render actions on the selected object, e.g., "+
		"--select 'VIEW public.v1'. Can be repeated")
	return &s
}

func parseSettings(flags settingsFlags) (config.Settings, error) {
	settings, err := config.Load(flags.configPath)
	if err != nil {
		return config.Settings{}, err
	}

	overrides, err := logFmtToMap(flags.overrides)
	if err != nil {
		return config.Settings{}, fmt.Errorf("parsing --settings: %w", err)
	}
	for _, key := range util.SortedKeys(overrides) {
		if err := settings.Override(key, overrides[key]); err != nil {
			return config.Settings{}, fmt.Errorf("parsing --settings: %w", err)
		}
	}

	settings.Plan.Selection = append(settings.Plan.Selection, flags.selection...)
	if err := settings.Validate(); err != nil {
		return config.Settings{}, err
	}
	return settings, nil
}

func newLogger(cmd *cobra.Command, settings config.Settings) log.Logger {
	return log.LogfmtLogger(cmd.ErrOrStderr(), settings.Level())
}

func mustMarkFlagAsRequired(cmd *cobra.Command, flagName string) {
	if err := cmd.MarkFlagRequired(flagName); err != nil {
		panic(err)
	}
}

// logFmtToMap parses all LogFmt key/value pairs from the provided string into a
// map.
//
// All records are scanned. If a duplicate key is found, an error is returned.
func logFmtToMap(logFmt string) (map[string]string, error) {
	logMap := make(map[string]string)
	decoder := logfmt.NewDecoder(strings.NewReader(logFmt))
	for decoder.ScanRecord() {
		for decoder.ScanKeyval() {
			if _, ok := logMap[string(decoder.Key())]; ok {
				return nil, fmt.Errorf("duplicate key %q in logfmt", string(decoder.Key()))
			}
			logMap[string(decoder.Key())] = string(decoder.Value())
		}
	}
	if decoder.Err() != nil {
		return nil, decoder.Err()
	}
	return logMap, nil
}
