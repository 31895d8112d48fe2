package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/stripe/pg-schema-depcy/internal/config"
	"github.com/stripe/pg-schema-depcy/internal/util"
	"github.com/stripe/pg-schema-depcy/pkg/diff"
	"github.com/stripe/pg-schema-depcy/pkg/schema"
	"github.com/stripe/pg-schema-depcy/pkg/sqldb"
)

func buildApplyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Migrate a database from its current schema to the target schema (apply the plan to the database)",
	}

	fromFlags := createSchemaSourceFlags(cmd, "from", "The current schema of the database to migrate.")
	toFlags := createSchemaSourceFlags(cmd, "to", "The target schema.")
	settingsFlags := createSettingsFlags(cmd)
	planFlags := createPlanFlags(cmd)
	dsnFlag := cmd.Flags().String("dsn", "", fmt.Sprintf("Connection string for the database to migrate. Defaults "+
		"to the %s environment variable, which can also be set in the env file", config.DSNEnvVar))
	expectedSchemaHash := cmd.Flags().String("expected-schema-hash", "", "Fail if the hash of the current schema "+
		"does not match, e.g., the hash printed by plan when the plan was reviewed")
	allowedHazardsTypesStrs := cmd.Flags().StringSlice("allow-hazards", nil,
		"Specify the hazards that are allowed. Order does not matter, and duplicates are ignored. If the"+
			" migration plan contains unwanted hazards (hazards not in this list), then the migration will fail to run"+
			" (example: --allow-hazards DELETES_DATA,INDEX_BUILD)")
	skipConfirmPrompt := cmd.Flags().Bool("skip-confirm-prompt", false, "Skips prompt asking for user to confirm before applying")
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		params, err := parseGeneratePlanParameters(cmd, *fromFlags, *toFlags, *settingsFlags, planFlags)
		if err != nil {
			return err
		}
		dsn, err := resolveDSN(*dsnFlag, params.settings)
		if err != nil {
			return err
		}

		cmd.SilenceUsage = true

		fromDb, err := params.fromSchema.GetSchema(cmd.Context())
		if err != nil {
			return fmt.Errorf("getting current schema: %w", err)
		}
		params.fromSchema = diff.DatabaseSchemaSource(fromDb)
		if err := failIfSchemaHashMismatch(cmd.Context(), params.fromSchema, *expectedSchemaHash); err != nil {
			return err
		}

		plan, err := generatePlan(cmd.Context(), params)
		if err != nil {
			return err
		} else if len(plan.ExecutableStatements()) == 0 {
			cmdPrintln(cmd, "Schema matches expected. No plan generated")
			return nil
		}

		cmdPrintln(cmd, header("Review plan"))
		cmdPrint(cmd, planToPrettyS(plan), "\n\n")

		allowedHazards := append(params.settings.Apply.AllowHazards, *allowedHazardsTypesStrs...)
		if err := failIfHazardsNotAllowed(plan, allowedHazards); err != nil {
			return err
		}

		if !*skipConfirmPrompt {
			if err := mustContinuePrompt(
				fmt.Sprintf(
					"Apply migration with the following hazards: %s?",
					strings.Join(allowedHazards, ", "),
				),
			); err != nil {
				return err
			}
		}

		connPool, err := openDb(fromDb.Dialect, dsn)
		if err != nil {
			return err
		}
		defer connPool.Close()

		conn, err := connPool.Conn(cmd.Context())
		if err != nil {
			return err
		}
		defer conn.Close()

		if err := runPlan(cmd.Context(), cmd, conn, fromDb.Dialect, plan); err != nil {
			return err
		}
		cmdPrintln(cmd, "Schema applied successfully")
		return nil
	}

	return cmd
}

func resolveDSN(dsnFlag string, settings config.Settings) (string, error) {
	if dsnFlag != "" {
		return dsnFlag, nil
	}
	dsn, err := config.LookupDSN(settings.Apply.EnvFile)
	if err != nil {
		return "", err
	}
	if dsn == "" {
		return "", fmt.Errorf("a connection string must be set via --dsn or the %s environment variable", config.DSNEnvVar)
	}
	return dsn, nil
}

func failIfSchemaHashMismatch(ctx context.Context, source diff.SchemaSource, expectedHash string) error {
	if expectedHash == "" {
		return nil
	}
	hash, err := schema.GetSchemaHash(ctx, source)
	if err != nil {
		return err
	}
	if hash != expectedHash {
		return fmt.Errorf("the current schema hash %q does not match the expected hash %q. Re-generate and "+
			"review the plan", hash, expectedHash)
	}
	return nil
}

func failIfHazardsNotAllowed(plan diff.Plan, allowedHazardsTypesStrs []string) error {
	isAllowedByHazardType := make(map[diff.MigrationHazardType]bool)
	for _, val := range allowedHazardsTypesStrs {
		isAllowedByHazardType[strings.ToUpper(val)] = true
	}
	var disallowedHazardMsgs []string
	for i, stmt := range plan.Statements {
		var disallowedTypes []diff.MigrationHazardType
		for _, hzd := range stmt.Hazards {
			if !isAllowedByHazardType[hzd.Type] {
				disallowedTypes = append(disallowedTypes, hzd.Type)
			}
		}
		if len(disallowedTypes) > 0 {
			disallowedHazardMsgs = append(disallowedHazardMsgs,
				fmt.Sprintf("- Statement %d: %s", getDisplayableStmtIdx(i), strings.Join(disallowedTypes, ", ")),
			)
		}
	}
	if len(disallowedHazardMsgs) > 0 {
		return fmt.Errorf("prohibited hazards found\n"+
			"These hazards must be allowed via the allow-hazards flag, e.g., --allow-hazards %s\n"+
			"Prohibited hazards in the following statements:\n%s",
			strings.Join(getHazardTypes(plan), ","),
			strings.Join(disallowedHazardMsgs, "\n"))
	}
	return nil
}

// runPlan executes the statements of the plan one by one. Comments are skipped.
//
// The timeouts are set at the SESSION-level rather than per transaction because some statements, e.g.,
// `CREATE INDEX CONCURRENTLY`, must be executed outside a transaction block. queryable should be a single
// connection so the session settings apply to the statement that follows them.
func runPlan(ctx context.Context, cmd *cobra.Command, queryable sqldb.Queryable, dialect schema.Dialect, plan diff.Plan) (retErr error) {
	defer util.DoOnErrOrPanic(&retErr, func() {
		cmdPrintln(cmd, header("Failed"))
		cmdPrintln(cmd, "The database may be in a dirty state. Re-generate the plan before retrying")
	})

	for i, stmt := range plan.Statements {
		if stmt.IsComment {
			continue
		}
		cmdPrintln(cmd, header(fmt.Sprintf("Executing statement %d", getDisplayableStmtIdx(i))))
		cmdPrintf(cmd, "%s\n\n", statementToPrettyS(stmt))
		start := time.Now()
		for _, setting := range timeoutSettingsSQL(dialect, stmt) {
			if _, err := queryable.ExecContext(ctx, setting); err != nil {
				return fmt.Errorf("setting timeouts with %q: %w", setting, err)
			}
		}
		if err := execWithTimeout(ctx, queryable, stmt); err != nil {
			return fmt.Errorf("executing migration statement %d: %s: %w", getDisplayableStmtIdx(i), stmt.DDL, err)
		}
		cmdPrintf(cmd, "Finished executing statement. Duration: %s\n", time.Since(start))
	}
	cmdPrintln(cmd, header("Complete"))

	return nil
}

func timeoutSettingsSQL(dialect schema.Dialect, stmt diff.Statement) []string {
	lockTimeout := stmt.LockTimeout
	if lockTimeout == 0 {
		lockTimeout = stmt.Timeout
	}
	switch dialect {
	case schema.DialectPostgres:
		return []string{
			fmt.Sprintf("SET SESSION statement_timeout = %d", stmt.Timeout.Milliseconds()),
			fmt.Sprintf("SET SESSION lock_timeout = %d", lockTimeout.Milliseconds()),
		}
	case schema.DialectMSSQL:
		return []string{fmt.Sprintf("SET LOCK_TIMEOUT %d", lockTimeout.Milliseconds())}
	default:
		return nil
	}
}

// execWithTimeout cancels the statement once its timeout elapses
func execWithTimeout(ctx context.Context, queryable sqldb.Queryable, stmt diff.Statement) error {
	if stmt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, stmt.Timeout)
		defer cancel()
	}
	_, err := queryable.ExecContext(ctx, stmt.ToSQL())
	return err
}

func getHazardTypes(plan diff.Plan) []diff.MigrationHazardType {
	seenHazardTypes := make(map[diff.MigrationHazardType]bool)
	var hazardTypes []diff.MigrationHazardType
	for _, stmt := range plan.Statements {
		for _, hazard := range stmt.Hazards {
			if !seenHazardTypes[hazard.Type] {
				seenHazardTypes[hazard.Type] = true
				hazardTypes = append(hazardTypes, hazard.Type)
			}
		}
	}
	sort.Slice(hazardTypes, func(i, j int) bool {
		return hazardTypes[i] < hazardTypes[j]
	})
	return hazardTypes
}
