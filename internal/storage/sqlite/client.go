package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/fieldatlas/backend/internal/storage/models"
	"github.com/fieldatlas/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

// NewClientWithDB wraps an existing database handle. Used by tests.
func NewClientWithDB(db *sql.DB) *Client {
	return &Client{db: db}
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS salesforce_fields (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		field_label TEXT NOT NULL,
		field_api_name TEXT NOT NULL,
		object_label TEXT NOT NULL,
		object_api_name TEXT NOT NULL DEFAULT '',
		data_type TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		help_text TEXT NOT NULL DEFAULT '',
		formula TEXT NOT NULL DEFAULT '',
		picklist_values TEXT NOT NULL DEFAULT '',
		compliance_category TEXT NOT NULL DEFAULT '',
		tag_ids TEXT NOT NULL DEFAULT '',
		owners TEXT NOT NULL DEFAULT '',
		stakeholders TEXT NOT NULL DEFAULT '',
		ingested_by TEXT NOT NULL DEFAULT '',
		usage_status TEXT NOT NULL DEFAULT '',
		is_required INTEGER NOT NULL DEFAULT 0,
		is_custom INTEGER NOT NULL DEFAULT 0,
		is_unique INTEGER NOT NULL DEFAULT 0,
		population_percentage INTEGER,
		reference_count INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_fields_object ON salesforce_fields(object_api_name);
	CREATE INDEX IF NOT EXISTS idx_fields_type ON salesforce_fields(data_type);

	CREATE TABLE IF NOT EXISTS salesforce_objects (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		object_label TEXT NOT NULL,
		object_api_name TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		plural_label TEXT NOT NULL DEFAULT '',
		key_prefix TEXT NOT NULL DEFAULT '',
		sharing_model TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '',
		is_custom INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS query_logs (
		id TEXT PRIMARY KEY,
		query TEXT NOT NULL,
		plan TEXT NOT NULL DEFAULT '',
		result_count INTEGER NOT NULL DEFAULT 0,
		processing_time_ms INTEGER NOT NULL DEFAULT 0,
		success INTEGER NOT NULL DEFAULT 1,
		error_message TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_query_logs_created ON query_logs(created_at);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

const fieldColumns = `id, field_label, field_api_name, object_label, object_api_name, data_type,
	description, help_text, formula, picklist_values, compliance_category, tag_ids,
	owners, stakeholders, ingested_by, usage_status, is_required, is_custom, is_unique,
	population_percentage, reference_count, created_at`

const objectColumns = `id, object_label, object_api_name, description, plural_label,
	key_prefix, sharing_model, tags, is_custom, created_at`

// ReplaceFields clears the fields table and bulk-inserts the given records
// in one transaction. Each dictionary upload fully replaces the previous one.
func (c *Client) ReplaceFields(ctx context.Context, records []models.FieldRecord) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM salesforce_fields"); err != nil {
		return fmt.Errorf("failed to clear fields table: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO salesforce_fields (field_label, field_api_name, object_label, object_api_name,
			data_type, description, help_text, formula, picklist_values, compliance_category,
			tag_ids, owners, stakeholders, ingested_by, usage_status, is_required, is_custom,
			is_unique, population_percentage, reference_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, r := range records {
		_, err := stmt.ExecContext(ctx,
			r.FieldLabel, r.FieldAPIName, r.ObjectLabel, r.ObjectAPIName,
			r.DataType, r.Description, r.HelpText, r.Formula, r.PicklistValues,
			r.ComplianceCategory, r.TagIDs, r.Owners, r.Stakeholders, r.IngestedBy,
			r.UsageStatus, boolToInt(r.IsRequired), boolToInt(r.IsCustom),
			boolToInt(r.IsUnique), nullableInt(r.PopulationPercentage),
			nullableInt(r.ReferenceCount), now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert field %q: %w", r.FieldAPIName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit field load: %w", err)
	}

	logger.Info("Field dictionary replaced", zap.Int("records", len(records)))
	return nil
}

// ReplaceObjects mirrors ReplaceFields for the object table.
func (c *Client) ReplaceObjects(ctx context.Context, records []models.ObjectRecord) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM salesforce_objects"); err != nil {
		return fmt.Errorf("failed to clear objects table: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO salesforce_objects (object_label, object_api_name, description, plural_label,
			key_prefix, sharing_model, tags, is_custom, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, r := range records {
		_, err := stmt.ExecContext(ctx,
			r.ObjectLabel, r.ObjectAPIName, r.Description, r.PluralLabel,
			r.KeyPrefix, r.SharingModel, r.Tags, boolToInt(r.IsCustom), now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert object %q: %w", r.ObjectAPIName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit object load: %w", err)
	}

	logger.Info("Object dictionary replaced", zap.Int("records", len(records)))
	return nil
}

// SearchFields runs a bounded SELECT with a pre-built WHERE clause. The
// clause must only reference columns resolved through the plan whitelist;
// values are always bound parameters.
func (c *Client) SearchFields(ctx context.Context, where string, args []interface{}, limit int) ([]models.FieldRecord, error) {
	query := "SELECT " + fieldColumns + " FROM salesforce_fields"
	if strings.TrimSpace(where) != "" {
		query += " WHERE " + where
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("field search failed: %w", err)
	}
	defer rows.Close()

	var records []models.FieldRecord
	for rows.Next() {
		r, err := scanField(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan field row: %w", err)
		}
		records = append(records, r)
	}

	return records, rows.Err()
}

// SearchObjects is the object-table counterpart of SearchFields.
func (c *Client) SearchObjects(ctx context.Context, where string, args []interface{}, limit int) ([]models.ObjectRecord, error) {
	query := "SELECT " + objectColumns + " FROM salesforce_objects"
	if strings.TrimSpace(where) != "" {
		query += " WHERE " + where
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("object search failed: %w", err)
	}
	defer rows.Close()

	var records []models.ObjectRecord
	for rows.Next() {
		var r models.ObjectRecord
		var isCustom int
		var createdAt int64
		err := rows.Scan(&r.ID, &r.ObjectLabel, &r.ObjectAPIName, &r.Description,
			&r.PluralLabel, &r.KeyPrefix, &r.SharingModel, &r.Tags, &isCustom, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan object row: %w", err)
		}
		r.IsCustom = isCustom != 0
		r.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, r)
	}

	return records, rows.Err()
}

func (c *Client) CountFields(ctx context.Context) (int, error) {
	var count int
	err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM salesforce_fields").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count fields: %w", err)
	}
	return count, nil
}

func (c *Client) InsertQueryLog(ctx context.Context, entry *models.QueryLogEntry) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO query_logs (id, query, plan, result_count, processing_time_ms, success, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID, entry.Query, entry.Plan, entry.ResultCount, entry.ProcessingTimeMs,
		boolToInt(entry.Success), entry.ErrorMessage, entry.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert query log: %w", err)
	}
	return nil
}

func (c *Client) RecentQueryLogs(ctx context.Context, limit int) ([]models.QueryLogEntry, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, query, plan, result_count, processing_time_ms, success, error_message, created_at
		FROM query_logs
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list query logs: %w", err)
	}
	defer rows.Close()

	var entries []models.QueryLogEntry
	for rows.Next() {
		var e models.QueryLogEntry
		var success int
		var createdAt int64
		err := rows.Scan(&e.ID, &e.Query, &e.Plan, &e.ResultCount, &e.ProcessingTimeMs,
			&success, &e.ErrorMessage, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan query log row: %w", err)
		}
		e.Success = success != 0
		e.CreatedAt = time.Unix(createdAt, 0)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

func scanField(rows *sql.Rows) (models.FieldRecord, error) {
	var r models.FieldRecord
	var isRequired, isCustom, isUnique int
	var popPct, refCount sql.NullInt64
	var createdAt int64

	err := rows.Scan(&r.ID, &r.FieldLabel, &r.FieldAPIName, &r.ObjectLabel, &r.ObjectAPIName,
		&r.DataType, &r.Description, &r.HelpText, &r.Formula, &r.PicklistValues,
		&r.ComplianceCategory, &r.TagIDs, &r.Owners, &r.Stakeholders, &r.IngestedBy,
		&r.UsageStatus, &isRequired, &isCustom, &isUnique, &popPct, &refCount, &createdAt)
	if err != nil {
		return r, err
	}

	r.IsRequired = isRequired != 0
	r.IsCustom = isCustom != 0
	r.IsUnique = isUnique != 0
	if popPct.Valid {
		v := int(popPct.Int64)
		r.PopulationPercentage = &v
	}
	if refCount.Valid {
		v := int(refCount.Int64)
		r.ReferenceCount = &v
	}
	r.CreatedAt = time.Unix(createdAt, 0)

	return r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
