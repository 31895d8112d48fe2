package main

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kr/pretty"
	"github.com/spf13/cobra"

	"github.com/stripe/pg-schema-depcy/internal/config"
	"github.com/stripe/pg-schema-depcy/pkg/diff"
	"github.com/stripe/pg-schema-depcy/pkg/log"
)

var (
	// Match arguments in the format "regex=duration" where duration is any duration valid in time.ParseDuration
	// We'll let time.ParseDuration handle the complexity of parsing invalid duration, so the regex we're extracting is
	// all characters greedily up to the rightmost "="
	statementTimeoutModifierRegex = regexp.MustCompile(`^(?P<regex>.+)=(?P<duration>.+)$`)
	regexSTMRegexIndex            = statementTimeoutModifierRegex.SubexpIndex("regex")
	durationSTMRegexIndex         = statementTimeoutModifierRegex.SubexpIndex("duration")

	// Match arguments in the format "index duration:statement" where duration is any duration valid in
	// time.ParseDuration. In order to prevent matching on ":" in the duration, limit the character to just letters
	// and numbers. To keep the regex simple, we won't bother matching on a more specific pattern for durations.
	// time.ParseDuration can handle the complexity of parsing invalid durations
	insertStatementRegex              = regexp.MustCompile(`^(?P<index>\d+) (?P<duration>[a-zA-Z0-9\.]+):(?P<ddl>.+?);?$`)
	indexInsertStatementRegexIndex    = insertStatementRegex.SubexpIndex("index")
	durationInsertStatementRegexIndex = insertStatementRegex.SubexpIndex("duration")
	ddlInsertStatementRegexIndex      = insertStatementRegex.SubexpIndex("ddl")
)

type outputFormat string

const (
	outputFormatPretty outputFormat = "pretty"
	outputFormatSQL    outputFormat = "sql"
	outputFormatDebug  outputFormat = "debug"
)

func parseOutputFormat(val string) (outputFormat, error) {
	switch f := outputFormat(strings.ToLower(val)); f {
	case outputFormatPretty, outputFormatSQL, outputFormatDebug:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q. Must be one of: %s, %s, %s", val,
			outputFormatPretty, outputFormatSQL, outputFormatDebug)
	}
}

func buildPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "plan",
		Aliases: []string{"diff"},
		Short:   "Generate the migration script that turns one schema snapshot into another",
	}

	fromFlags := createSchemaSourceFlags(cmd, "from", "The current schema.")
	toFlags := createSchemaSourceFlags(cmd, "to", "The target schema.")
	settingsFlags := createSettingsFlags(cmd)
	planFlags := createPlanFlags(cmd)
	outputFormatStr := cmd.Flags().String("output-format", string(outputFormatPretty),
		fmt.Sprintf("Output format of the plan: %s, %s or %s", outputFormatPretty, outputFormatSQL, outputFormatDebug))
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		params, err := parseGeneratePlanParameters(cmd, *fromFlags, *toFlags, *settingsFlags, planFlags)
		if err != nil {
			return err
		}
		format, err := parseOutputFormat(*outputFormatStr)
		if err != nil {
			return err
		}

		cmd.SilenceUsage = true

		plan, err := generatePlan(cmd.Context(), params)
		if err != nil {
			return err
		} else if len(plan.Statements) == 0 {
			cmdPrintln(cmd, "Schema matches expected. No plan generated")
			return nil
		}
		cmdPrintln(cmd, planToOutputS(plan, format))
		return nil
	}

	return cmd
}

type (
	planFlags struct {
		statementTimeoutModifiers []string
		insertStatements          []string
	}

	statementTimeoutModifier struct {
		regex   *regexp.Regexp
		timeout time.Duration
	}

	insertStatement struct {
		ddl     string
		index   int
		timeout time.Duration
	}

	planConfig struct {
		statementTimeoutModifiers []statementTimeoutModifier
		insertStatements          []insertStatement
	}

	generatePlanParameters struct {
		fromSchema diff.SchemaSource
		toSchema   diff.SchemaSource
		settings   config.Settings
		planConfig planConfig
		logger     log.Logger
	}
)

func createPlanFlags(cmd *cobra.Command) *planFlags {
	var p planFlags
	cmd.Flags().StringArrayVarP(&p.statementTimeoutModifiers, "statement-timeout-modifier", "t", nil,
		"regex=timeout key-value pairs, where if a statement matches the regex, the statement will have the target"+
			" timeout. If multiple regexes match, the latest regex will take priority. Example: -t 'CREATE TABLE=5m' -t 'ADD COLUMN=10s'")
	cmd.Flags().StringArrayVarP(&p.insertStatements, "insert-statement", "s", nil,
		"<index> <timeout>:<statement> values. Will insert the statement at the index in the "+
			"generated plan with the specified timeout. This follows normal insert semantics. Example: -s '0 5s:SELECT 1'")
	return &p
}

func parseGeneratePlanParameters(
	cmd *cobra.Command,
	fromFlags, toFlags schemaSourceFlags,
	settingsFlags settingsFlags,
	planFlags *planFlags,
) (generatePlanParameters, error) {
	fromSchema, err := parseSchemaSource(fromFlags)
	if err != nil {
		return generatePlanParameters{}, err
	}
	toSchema, err := parseSchemaSource(toFlags)
	if err != nil {
		return generatePlanParameters{}, err
	}
	settings, err := parseSettings(settingsFlags)
	if err != nil {
		return generatePlanParameters{}, err
	}
	planConfig, err := planFlags.parsePlanConfig()
	if err != nil {
		return generatePlanParameters{}, err
	}
	return generatePlanParameters{
		fromSchema: fromSchema,
		toSchema:   toSchema,
		settings:   settings,
		planConfig: planConfig,
		logger:     newLogger(cmd, settings),
	}, nil
}

func (p planFlags) parsePlanConfig() (planConfig, error) {
	var statementTimeoutModifiers []statementTimeoutModifier
	for _, s := range p.statementTimeoutModifiers {
		stm, err := parseStatementTimeoutModifierStr(s)
		if err != nil {
			return planConfig{}, fmt.Errorf("parsing statement timeout modifier from %q: %w", s, err)
		}
		statementTimeoutModifiers = append(statementTimeoutModifiers, stm)
	}

	var insertStatements []insertStatement
	for _, i := range p.insertStatements {
		is, err := parseInsertStatementStr(i)
		if err != nil {
			return planConfig{}, fmt.Errorf("parsing insert statement from %q: %w", i, err)
		}
		insertStatements = append(insertStatements, is)
	}

	return planConfig{
		statementTimeoutModifiers: statementTimeoutModifiers,
		insertStatements:          insertStatements,
	}, nil
}

func parseStatementTimeoutModifierStr(val string) (statementTimeoutModifier, error) {
	submatches := statementTimeoutModifierRegex.FindStringSubmatch(val)
	if len(submatches) <= regexSTMRegexIndex || len(submatches) <= durationSTMRegexIndex {
		return statementTimeoutModifier{}, fmt.Errorf("could not parse regex and duration from arg. expected to be in the format of " +
			"'Some.*Regex=<duration>'. Example durations include: 2s, 5m, 10.5h")
	}
	regexStr := submatches[regexSTMRegexIndex]
	durationStr := submatches[durationSTMRegexIndex]

	regex, err := regexp.Compile(regexStr)
	if err != nil {
		return statementTimeoutModifier{}, fmt.Errorf("regex could not be compiled from %q: %w", regexStr, err)
	}

	duration, err := time.ParseDuration(durationStr)
	if err != nil {
		return statementTimeoutModifier{}, fmt.Errorf("duration could not be parsed from %q: %w", durationStr, err)
	}

	return statementTimeoutModifier{
		regex:   regex,
		timeout: duration,
	}, nil
}

func parseInsertStatementStr(val string) (insertStatement, error) {
	submatches := insertStatementRegex.FindStringSubmatch(val)
	if len(submatches) <= indexInsertStatementRegexIndex ||
		len(submatches) <= durationInsertStatementRegexIndex ||
		len(submatches) <= ddlInsertStatementRegexIndex {
		return insertStatement{}, fmt.Errorf("could not parse index, duration, and statement from arg. expected to be in the " +
			"format of '<index> <duration>:<statement>'. Example durations include: 2s, 5m, 10.5h")
	}
	indexStr := submatches[indexInsertStatementRegexIndex]
	index, err := strconv.Atoi(indexStr)
	if err != nil {
		return insertStatement{}, fmt.Errorf("could not parse index (an int) from %q", indexStr)
	}

	durationStr := submatches[durationInsertStatementRegexIndex]
	duration, err := time.ParseDuration(durationStr)
	if err != nil {
		return insertStatement{}, fmt.Errorf("duration could not be parsed from %q: %w", durationStr, err)
	}

	return insertStatement{
		index:   index,
		ddl:     submatches[ddlInsertStatementRegexIndex],
		timeout: duration,
	}, nil
}

func generatePlan(ctx context.Context, params generatePlanParameters) (diff.Plan, error) {
	opts, err := params.settings.PlanOpts(params.logger)
	if err != nil {
		return diff.Plan{}, err
	}

	plan, err := diff.GeneratePlan(ctx, params.fromSchema, params.toSchema, opts...)
	if err != nil {
		return diff.Plan{}, fmt.Errorf("generating plan: %w", err)
	}

	modifiedPlan, err := applyPlanModifiers(plan, params.planConfig)
	if err != nil {
		return diff.Plan{}, fmt.Errorf("applying plan modifiers: %w", err)
	}

	return modifiedPlan, nil
}

func applyPlanModifiers(plan diff.Plan, modifiers planConfig) (diff.Plan, error) {
	for _, stm := range modifiers.statementTimeoutModifiers {
		plan = plan.ApplyStatementTimeoutModifier(stm.regex, stm.timeout)
	}
	for _, is := range modifiers.insertStatements {
		var err error
		plan, err = plan.InsertStatement(is.index, diff.Statement{
			DDL:         is.ddl,
			Timeout:     is.timeout,
			LockTimeout: is.timeout,
			Hazards: []diff.MigrationHazard{{
				Type:    diff.MigrationHazardTypeIsUserGenerated,
				Message: "This statement is user-generated",
			}},
		})
		if err != nil {
			return diff.Plan{}, fmt.Errorf("inserting statement %q with timeout %s at index %d: %w",
				is.ddl, is.timeout, is.index, err)
		}
	}
	return plan, nil
}

func planToOutputS(plan diff.Plan, format outputFormat) string {
	switch format {
	case outputFormatSQL:
		return plan.SQL()
	case outputFormatDebug:
		return pretty.Sprintf("%# v", plan)
	default:
		return fmt.Sprintf("%s\n%s\n\n-- Current schema hash: %s", header("Generated plan"), planToPrettyS(plan),
			plan.CurrentSchemaHash)
	}
}

func planToPrettyS(plan diff.Plan) string {
	sb := strings.Builder{}

	// We are going to put a statement index before each statement. To do that,
	// we need to find how many characters are in the largest index, so we can provide the appropriate amount
	// of padding before the statements to align all of them
	// E.g.
	// 1.  ALTER TABLE foobar ADD COLUMN foo BIGINT
	// ....
	// 22. CREATE INDEX some_idx ON some_other_table(some_column)
	stmtNumPadding := len(strconv.Itoa(len(plan.Statements))) // find how much padding is required for the statement index
	fmtString := fmt.Sprintf("%%0%dd. %%s", stmtNumPadding)   // supply custom padding

	var stmtStrs []string
	for i, stmt := range plan.Statements {
		stmtStr := fmt.Sprintf(fmtString, getDisplayableStmtIdx(i), statementToPrettyS(stmt))
		stmtStrs = append(stmtStrs, stmtStr)
	}
	sb.WriteString(strings.Join(stmtStrs, "\n\n"))

	return sb.String()
}

func statementToPrettyS(stmt diff.Statement) string {
	if stmt.IsComment {
		return stmt.ToSQL()
	}
	sb := strings.Builder{}
	sb.WriteString(stmt.ToSQL())
	sb.WriteString(fmt.Sprintf("\n\t-- Statement Timeout: %s", stmt.Timeout))
	if stmt.LockTimeout > 0 && stmt.LockTimeout != stmt.Timeout {
		sb.WriteString(fmt.Sprintf("\n\t-- Lock Timeout: %s", stmt.LockTimeout))
	}
	for _, hazard := range stmt.Hazards {
		sb.WriteString(fmt.Sprintf("\n\t-- Hazard %s", hazardToPrettyS(hazard)))
	}
	return sb.String()
}

func hazardToPrettyS(hazard diff.MigrationHazard) string {
	if len(hazard.Message) > 0 {
		return fmt.Sprintf("%s: %s", hazard.Type, hazard.Message)
	}
	return hazard.Type
}

func getDisplayableStmtIdx(i int) int {
	return i + 1
}
