package provisioner

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/timescale/pgvectorizer/pkg/vconfig"
	"github.com/timescale/pgvectorizer/pkg/vectorizer"
)

// Introspector is the subset of pkg/vdb's catalog introspection this
// package needs, kept as an interface so provisioning logic can be unit
// tested without a live database.
type Introspector interface {
	SourcePrimaryKey(ctx context.Context, schema, table string) ([]vectorizer.PKColumn, error)
	TableExists(ctx context.Context, schema, table string) (bool, error)
	IsTableOwner(ctx context.Context, schema, table, role string) (bool, error)
	RoleExists(ctx context.Context, role string) (bool, error)
	SourceColumns(ctx context.Context, schema, table string) ([]vconfig.ColumnInfo, error)
}

// Pool is the subset of pgxpool.Pool needed to run transactional DDL.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Provisioner implements spec.md §4.B: creating and dropping the
// physical objects backing a vectorizer, transactionally.
type Provisioner struct {
	pool        Pool
	introspect  Introspector
	scheduler   ScheduleRegistrar
	currentUser string
}

// New builds a Provisioner. currentUser is the database role the
// process connects as, used for the "only the owner of the source table
// may create a vectorizer on it" check.
func New(pool Pool, introspect Introspector, scheduler ScheduleRegistrar, currentUser string) *Provisioner {
	if scheduler == nil {
		scheduler = NoopScheduleRegistrar{}
	}
	return &Provisioner{pool: pool, introspect: introspect, scheduler: scheduler, currentUser: currentUser}
}

// CreateVectorizer implements spec.md §4.B steps 1–7.
func (p *Provisioner) CreateVectorizer(ctx context.Context, spec vectorizer.CreateVectorizerSpec) (*vectorizer.Vectorizer, []vectorizer.Warning, error) {
	// Step 0 (ownership): only the table owner may vectorize it.
	isOwner, err := p.introspect.IsTableOwner(ctx, spec.SourceSchema, spec.SourceTable, p.currentUser)
	if err != nil {
		return nil, nil, fmt.Errorf("checking table ownership: %w", err)
	}
	if !isOwner {
		return nil, nil, fmt.Errorf("only the owner of %s.%s may create a vectorizer on it", spec.SourceSchema, spec.SourceTable)
	}

	// Step 1: derive source_pk.
	pk, err := p.introspect.SourcePrimaryKey(ctx, spec.SourceSchema, spec.SourceTable)
	if err != nil {
		return nil, nil, fmt.Errorf("deriving primary key: %w", err)
	}

	// Step 3: validate the config document against the live source columns.
	cols, err := p.introspect.SourceColumns(ctx, spec.SourceSchema, spec.SourceTable)
	if err != nil {
		return nil, nil, fmt.Errorf("listing source columns: %w", err)
	}
	if failures := vconfig.NewValidator(&spec.Config, cols, p.introspect).ValidateAll(ctx); len(failures) > 0 {
		return nil, nil, fmt.Errorf("config validation failed: %v", failures)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Step 2a: allocate a fresh id from the monotonic sequence.
	var id int64
	if err := tx.QueryRow(ctx, "SELECT nextval('ai.vectorizer_id_seq')").Scan(&id); err != nil {
		return nil, nil, fmt.Errorf("allocating vectorizer id: %w", err)
	}

	// Step 2b: derive default names and check for collisions.
	n := deriveNames(id, spec.SourceSchema, spec.SourceTable, spec.Config.Destination.TargetSchema, spec.Config.Destination.TargetTable)
	if exists, err := p.introspect.TableExists(ctx, n.TargetSchema, n.TargetTable); err != nil {
		return nil, nil, fmt.Errorf("checking target table collision: %w", err)
	} else if exists {
		return nil, nil, fmt.Errorf("target table %s.%s already exists", n.TargetSchema, n.TargetTable)
	}

	// Step 4: create target table, queue table, trigger, view.
	if _, err := tx.Exec(ctx, createTargetTableSQL(n.TargetSchema, n.TargetTable, pk, spec.Config.Embedding.Dimensions)); err != nil {
		return nil, nil, fmt.Errorf("creating target table: %w", err)
	}
	if _, err := tx.Exec(ctx, createQueueTableSQL(n.QueueSchema, n.QueueTable, pk)); err != nil {
		return nil, nil, fmt.Errorf("creating queue table: %w", err)
	}
	for _, stmt := range createTriggerSQL(n.TriggerFunc, n.TriggerName, n.QueueSchema, n.QueueTable, n.TargetSchema, n.TargetTable, spec.SourceSchema, spec.SourceTable, pk) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return nil, nil, fmt.Errorf("creating source trigger: %w", err)
		}
	}
	if _, err := tx.Exec(ctx, createViewSQL(n.ViewSchema, n.ViewName, spec.SourceSchema, spec.SourceTable, n.TargetSchema, n.TargetTable, pk)); err != nil {
		return nil, nil, fmt.Errorf("creating view: %w", err)
	}

	// Step 5: grant to existing grant_to roles only; missing roles warn.
	var warnings []vectorizer.Warning
	for _, role := range spec.Config.GrantTo.Roles {
		exists, err := p.introspect.RoleExists(ctx, role)
		if err != nil {
			return nil, nil, fmt.Errorf("checking role %q: %w", role, err)
		}
		if !exists {
			warnings = append(warnings, vectorizer.Warning{
				Code:    "grant_to_role_missing",
				Message: fmt.Sprintf("role %q does not exist, skipping grant", role),
			})
			continue
		}
		for _, stmt := range grantSQL(role, spec.SourceSchema, spec.SourceTable, n.QueueSchema, n.QueueTable, n.TargetSchema, n.TargetTable) {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return nil, nil, fmt.Errorf("granting to role %q: %w", role, err)
			}
		}
	}

	configJSON, err := json.Marshal(spec.Config)
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling config: %w", err)
	}
	pkJSON, err := json.Marshal(pk)
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling source_pk: %w", err)
	}

	// Step 7: register the scheduling job (if any) before recording the
	// row, so its id can be folded into the stored config.
	if spec.Config.Scheduling.Implementation == vconfig.SchedulingTimescaleDB {
		jobID, err := p.scheduler.RegisterJob(ctx, id, spec.Config.Scheduling.ScheduleInterval)
		if err != nil {
			return nil, nil, fmt.Errorf("registering schedule job: %w", err)
		}
		spec.Config.Scheduling.JobID = jobID
		configJSON, err = json.Marshal(spec.Config)
		if err != nil {
			return nil, nil, fmt.Errorf("marshaling config after scheduling: %w", err)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO ai.vectorizer (
			id, source_schema, source_table, source_pk,
			target_schema, target_table, view_schema, view_name,
			queue_schema, queue_table, trigger_name, config
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		id, spec.SourceSchema, spec.SourceTable, pkJSON,
		n.TargetSchema, n.TargetTable, n.ViewSchema, n.ViewName,
		n.QueueSchema, n.QueueTable, n.TriggerName, configJSON,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("recording vectorizer row: %w", err)
	}

	if spec.EnqueueExisting {
		if _, err := tx.Exec(ctx, enqueueExistingSQL(n.QueueSchema, n.QueueTable, spec.SourceSchema, spec.SourceTable, pk)); err != nil {
			return nil, nil, fmt.Errorf("enqueueing existing rows: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("committing vectorizer creation: %w", err)
	}

	return &vectorizer.Vectorizer{
		ID:           id,
		SourceSchema: spec.SourceSchema,
		SourceTable:  spec.SourceTable,
		SourcePK:     pk,
		TargetSchema: n.TargetSchema,
		TargetTable:  n.TargetTable,
		ViewSchema:   n.ViewSchema,
		ViewName:     n.ViewName,
		QueueSchema:  n.QueueSchema,
		QueueTable:   n.QueueTable,
		TriggerName:  n.TriggerName,
		Config:       spec.Config,
	}, warnings, nil
}

// DropVectorizer implements spec.md §4.B's symmetric teardown: delete the
// scheduler job (if any), drop the trigger and backing function, drop
// the queue table, delete the vectorizer row. Target table and view are
// left in place since they may hold user-visible data.
func (p *Provisioner) DropVectorizer(ctx context.Context, id int64) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var sourceSchema, sourceTable, triggerName, queueSchema, queueTable string
	var configJSON []byte
	err = tx.QueryRow(ctx, `
		SELECT source_schema, source_table, trigger_name, queue_schema, queue_table, config
		FROM ai.vectorizer WHERE id = $1 FOR UPDATE`, id).
		Scan(&sourceSchema, &sourceTable, &triggerName, &queueSchema, &queueTable, &configJSON)
	if err != nil {
		return fmt.Errorf("looking up vectorizer %d: %w", id, err)
	}

	var cfg vconfig.Document
	if err := json.Unmarshal(configJSON, &cfg); err != nil {
		return fmt.Errorf("decoding stored config: %w", err)
	}

	if cfg.Scheduling.Implementation == vconfig.SchedulingTimescaleDB && cfg.Scheduling.JobID != 0 {
		if err := p.scheduler.UnregisterJob(ctx, cfg.Scheduling.JobID); err != nil {
			return fmt.Errorf("unregistering schedule job: %w", err)
		}
	}

	funcName := fmt.Sprintf("_vectorizer_src_trg_fn_%d", id)
	for _, stmt := range dropTriggerSQL(funcName, triggerName, sourceSchema, sourceTable) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("dropping trigger: %w", err)
		}
	}
	if _, err := tx.Exec(ctx, dropQueueTableSQL(queueSchema, queueTable)); err != nil {
		return fmt.Errorf("dropping queue table: %w", err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM ai.vectorizer WHERE id = $1", id); err != nil {
		return fmt.Errorf("deleting vectorizer row: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing vectorizer drop: %w", err)
	}
	return nil
}
