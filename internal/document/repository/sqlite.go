package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/estatio/docrender/internal/document"
)

// sqliteTimeLayout is fixed width so stored timestamps compare as strings.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

const templateColumns = `id, type, name, scope_path, effective_date, sort, content_name, mime_type,
	content_text, content_bytes, strategy_id, data_model_type, revision, retired, created_at, updated_at`

// SQLiteTemplateRepo implements TemplateRepository on SQLite. An undated
// template stores an empty effective_date so the UNIQUE constraint treats
// two undated templates at one path as duplicates.
type SQLiteTemplateRepo struct {
	db *sql.DB
}

// OpenSQLite opens a SQLite database at path. ":memory:" keeps a single
// connection so every query sees the same database.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

func NewSQLiteTemplateRepo(db *sql.DB) (*SQLiteTemplateRepo, error) {
	s := &SQLiteTemplateRepo{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteTemplateRepo) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS document_templates (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		name TEXT NOT NULL,
		scope_path TEXT NOT NULL,
		effective_date TEXT NOT NULL DEFAULT '',
		sort TEXT NOT NULL,
		content_name TEXT NOT NULL,
		mime_type TEXT NOT NULL,
		content_text TEXT,
		content_bytes BLOB,
		strategy_id TEXT NOT NULL,
		data_model_type TEXT NOT NULL,
		revision INTEGER NOT NULL,
		retired INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE (type, scope_path, effective_date)
	);
	CREATE INDEX IF NOT EXISTS document_templates_scope_date ON document_templates (scope_path, effective_date);`
	if _, err := s.db.ExecContext(context.Background(), query); err != nil {
		return fmt.Errorf("migrate document_templates: %w", err)
	}
	return nil
}

func (s *SQLiteTemplateRepo) Create(ctx context.Context, t *document.Template) (string, error) {
	if err := prepareTemplate(t, time.Now().UTC()); err != nil {
		return "", err
	}
	query := `INSERT INTO document_templates (` + templateColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		t.ID, t.Type, t.Name, t.ScopePath, formatEffectiveDate(t.EffectiveDate),
		string(t.Content.Sort), t.Content.Name, t.Content.MimeType,
		nullableText(t.Content), t.Content.Bytes,
		t.RenderingStrategyID, t.DataModelTypeName, t.Revision, 0,
		t.CreatedAt.Format(sqliteTimeLayout), t.UpdatedAt.Format(sqliteTimeLayout),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return "", ErrAlreadyExists
		}
		return "", fmt.Errorf("insert template: %w", err)
	}
	return t.ID, nil
}

func (s *SQLiteTemplateRepo) Get(ctx context.Context, id string) (*document.Template, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM document_templates WHERE id = ?`, id)
	t, err := scanTemplate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

func (s *SQLiteTemplateRepo) List(ctx context.Context, typeRef string) ([]document.Template, error) {
	if typeRef == "" {
		return s.query(ctx, `SELECT `+templateColumns+` FROM document_templates ORDER BY id`)
	}
	return s.query(ctx, `SELECT `+templateColumns+` FROM document_templates WHERE type = ? ORDER BY id`, typeRef)
}

func (s *SQLiteTemplateRepo) FindByTypeAndAtPath(ctx context.Context, typeRef, path string) ([]document.Template, error) {
	out, err := s.query(ctx,
		`SELECT `+templateColumns+` FROM document_templates WHERE type = ? AND scope_path = ?`,
		typeRef, document.NormalizePath(path))
	if err != nil {
		return nil, err
	}
	sortByDateDesc(out)
	return out, nil
}

func (s *SQLiteTemplateRepo) FindTemplatesByTypeAndPathPrefixAndCurrent(ctx context.Context, typeRef, path string, asOf time.Time) ([]document.Template, error) {
	prefixes := document.Prefixes(path)
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(prefixes)), ", ")
	query := `SELECT ` + templateColumns + ` FROM document_templates
		WHERE type = ? AND retired = 0
		AND scope_path IN (` + placeholders + `)
		AND (effective_date = '' OR effective_date <= ?)`
	args := make([]any, 0, len(prefixes)+2)
	args = append(args, typeRef)
	for _, p := range prefixes {
		args = append(args, p)
	}
	args = append(args, asOf.UTC().Format(sqliteTimeLayout))
	return s.query(ctx, query, args...)
}

func (s *SQLiteTemplateRepo) UpdateContent(ctx context.Context, id string, content document.Content) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM document_templates WHERE id = ?`, id)
	current, err := scanTemplate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	changed, err := checkContentUpdate(current.Content, content)
	if err != nil {
		return 0, err
	}
	if !changed {
		return current.Revision, nil
	}
	_, err = tx.ExecContext(ctx, `UPDATE document_templates
		SET content_name = ?, mime_type = ?, content_text = ?, content_bytes = ?,
			revision = revision + 1, updated_at = ?
		WHERE id = ?`,
		content.Name, content.MimeType, nullableText(content), content.Bytes,
		time.Now().UTC().Format(sqliteTimeLayout), id)
	if err != nil {
		return 0, fmt.Errorf("update template content: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return current.Revision + 1, nil
}

func (s *SQLiteTemplateRepo) GetRevision(ctx context.Context, id string) (int64, error) {
	var rev int64
	err := s.db.QueryRowContext(ctx, `SELECT revision FROM document_templates WHERE id = ?`, id).Scan(&rev)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return rev, nil
}

func (s *SQLiteTemplateRepo) Retire(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE document_templates SET retired = 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(sqliteTimeLayout), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteTemplateRepo) query(ctx context.Context, query string, args ...any) ([]document.Template, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []document.Template{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (*document.Template, error) {
	var (
		t             document.Template
		effectiveDate string
		sort          string
		text          sql.NullString
		blob          []byte
		retired       int
		createdAt     string
		updatedAt     string
	)
	err := row.Scan(&t.ID, &t.Type, &t.Name, &t.ScopePath, &effectiveDate, &sort,
		&t.Content.Name, &t.Content.MimeType, &text, &blob,
		&t.RenderingStrategyID, &t.DataModelTypeName, &t.Revision, &retired, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	t.Content.Sort = document.Sort(sort)
	if text.Valid {
		t.Content.Text = text.String
	}
	if len(blob) > 0 {
		t.Content.Bytes = blob
	}
	if effectiveDate != "" {
		d, err := time.Parse(sqliteTimeLayout, effectiveDate)
		if err != nil {
			return nil, fmt.Errorf("parse effective date %q: %w", effectiveDate, err)
		}
		t.EffectiveDate = &d
	}
	t.Retired = retired != 0
	t.CreatedAt, _ = time.Parse(sqliteTimeLayout, createdAt)
	t.UpdatedAt, _ = time.Parse(sqliteTimeLayout, updatedAt)
	return &t, nil
}

func formatEffectiveDate(d *time.Time) string {
	if d == nil {
		return ""
	}
	return d.UTC().Format(sqliteTimeLayout)
}

func nullableText(c document.Content) sql.NullString {
	if !c.Sort.Textual() {
		return sql.NullString{}
	}
	return sql.NullString{String: c.Text, Valid: true}
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
