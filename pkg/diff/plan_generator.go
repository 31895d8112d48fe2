package diff

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/stripe/pg-schema-depcy/internal/concurrent"
	"github.com/stripe/pg-schema-depcy/internal/depcy"
	"github.com/stripe/pg-schema-depcy/internal/schema"
	"github.com/stripe/pg-schema-depcy/pkg/log"
)

var (
	ErrNotImplemented = schema.ErrNotImplemented
	// ErrNotAllowedObject is matched by the error returned when an action touches an object type that is not
	// allowed while WithStopNotAllowed is set
	ErrNotAllowedObject = fmt.Errorf("object type is not allowed")
)

// NotAllowedObjectError is returned in strict mode when an action touches an object whose type is not allowed
type NotAllowedObjectError struct {
	Reference schema.Reference
	Action    depcy.Action
}

func (e *NotAllowedObjectError) Error() string {
	return fmt.Sprintf("%s of %s %s is not allowed", e.Action, e.Reference.Type, e.Reference.QualifiedName())
}

func (e *NotAllowedObjectError) Unwrap() error {
	return ErrNotAllowedObject
}

type (
	planOptions struct {
		logger log.Logger
		// allowedTypes is nil when every type is allowed
		allowedTypes     map[schema.ObjectType]bool
		stopNotAllowed   bool
		selection        map[string]bool
		dataMovementMode bool
		dropBeforeCreate bool
		statementTimeout time.Duration
		lockTimeout      time.Duration
		maxConcurrency   int
	}

	PlanOpt func(opts *planOptions)
)

// WithLogger configures plan generation to use the provided logger instead of the default
func WithLogger(logger log.Logger) PlanOpt {
	return func(opts *planOptions) {
		opts.logger = logger
	}
}

// WithAllowedTypes restricts the plan to the given object types. Actions on other types are replaced by a HIDDEN
// comment, or fail the plan when WithStopNotAllowed is set. Columns are allowed when tables are.
func WithAllowedTypes(types ...schema.ObjectType) PlanOpt {
	return func(opts *planOptions) {
		opts.allowedTypes = make(map[schema.ObjectType]bool)
		for _, t := range types {
			opts.allowedTypes[t] = true
		}
	}
}

// WithStopNotAllowed makes plan generation fail with a NotAllowedObjectError instead of hiding actions on object
// types that are not allowed
func WithStopNotAllowed() PlanOpt {
	return func(opts *planOptions) {
		opts.stopNotAllowed = true
	}
}

// WithSelection only renders actions on the selected objects. Every other action is replaced by a HIDDEN comment.
func WithSelection(refs ...schema.Reference) PlanOpt {
	return func(opts *planOptions) {
		if opts.selection == nil {
			opts.selection = make(map[string]bool)
		}
		for _, ref := range refs {
			opts.selection[ref.Key()] = true
		}
	}
}

// WithDataMovementMode keeps the rows of recreated tables: the old table is renamed, its rows are copied into the
// new table and the renamed table is dropped at the end of the plan
func WithDataMovementMode() PlanOpt {
	return func(opts *planOptions) {
		opts.dataMovementMode = true
	}
}

// WithDropBeforeCreate renders in-place changes of views and functions as a drop followed by a create
func WithDropBeforeCreate() PlanOpt {
	return func(opts *planOptions) {
		opts.dropBeforeCreate = true
	}
}

// WithStatementTimeout sets the statement and lock timeouts of the statements that do not need a longer one
func WithStatementTimeout(timeout time.Duration) PlanOpt {
	return func(opts *planOptions) {
		opts.statementTimeout = timeout
		opts.lockTimeout = timeout
	}
}

// WithMaxConcurrency limits how many plans GeneratePlans builds at the same time
func WithMaxConcurrency(limit int) PlanOpt {
	return func(opts *planOptions) {
		opts.maxConcurrency = limit
	}
}

func newPlanOptions(opts []PlanOpt) *planOptions {
	options := &planOptions{
		logger:           log.SimpleLogger(),
		statementTimeout: statementTimeoutDefault,
		lockTimeout:      lockTimeoutDefault,
		maxConcurrency:   runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// GeneratePlan generates a migration plan that turns the schema of fromSource into the schema of toSource.
//
// Parameters:
// fromSource:	the current schema, e.g., a snapshot of the database to migrate
// toSource:	the target schema
// opts:		additional options to configure the plan generation
func GeneratePlan(ctx context.Context, fromSource, toSource SchemaSource, opts ...PlanOpt) (Plan, error) {
	options := newPlanOptions(opts)

	oldDB, err := fromSource.GetSchema(ctx)
	if err != nil {
		return Plan{}, fmt.Errorf("getting current schema: %w", err)
	}
	newDB, err := toSource.GetSchema(ctx)
	if err != nil {
		return Plan{}, fmt.Errorf("getting new schema: %w", err)
	}

	return generatePlan(oldDB, newDB, options)
}

// PlanRequest is one pair of schemas of GeneratePlans
type PlanRequest struct {
	From SchemaSource
	To   SchemaSource
}

// GeneratePlans generates the plans of independent schema pairs concurrently. The plans are returned in the
// order of the requests.
func GeneratePlans(ctx context.Context, requests []PlanRequest, opts ...PlanOpt) ([]Plan, error) {
	options := newPlanOptions(opts)
	limit := options.maxConcurrency
	if limit < 1 {
		limit = 1
	}
	runner := concurrent.NewGoroutineLimiter(int64(limit))

	var futures []concurrent.Future[Plan]
	for i, req := range requests {
		i, req := i, req
		future, err := concurrent.SubmitFuture(ctx, runner, func() (Plan, error) {
			plan, err := GeneratePlan(ctx, req.From, req.To, opts...)
			if err != nil {
				return Plan{}, fmt.Errorf("generating plan %d: %w", i, err)
			}
			return plan, nil
		})
		if err != nil {
			return nil, fmt.Errorf("submitting plan %d: %w", i, err)
		}
		futures = append(futures, future)
	}
	return concurrent.GetAll(ctx, futures...)
}

func generatePlan(oldDB, newDB *schema.Database, options *planOptions) (Plan, error) {
	if oldDB.Dialect != newDB.Dialect {
		return Plan{}, fmt.Errorf("cannot migrate a %q schema to a %q schema", oldDB.Dialect, newDB.Dialect)
	}

	oldGraph := depcy.NewDepcyGraph(oldDB, depcy.WithGraphLogger(options.logger))
	newGraph := depcy.NewDepcyGraph(newDB, depcy.WithGraphLogger(options.logger))
	diffs := depcy.CompareDatabases(oldGraph.Database(), newGraph.Database())

	result, err := depcy.Resolve(oldGraph, newGraph, diffs, depcy.WithResolverLogger(options.logger))
	if err != nil {
		return Plan{}, fmt.Errorf("resolving dependencies: %w", err)
	}
	options.logger.Debugf("resolved %d diffs into %d actions", len(diffs), len(result.Actions))

	statements, err := convertActions(oldGraph.Database(), newGraph.Database(), result, options)
	if err != nil {
		return Plan{}, fmt.Errorf("converting actions: %w", err)
	}

	hash, err := oldDB.Hash()
	if err != nil {
		return Plan{}, fmt.Errorf("generating current schema hash: %w", err)
	}

	return Plan{
		Statements:        statements,
		CurrentSchemaHash: hash,
	}, nil
}
