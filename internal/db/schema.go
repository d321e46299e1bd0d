package db

import (
	"context"
	"embed"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/tgienger/devdesk/internal/errors"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// column is a column introduced after the first release of a table.
// Existing files get it through ALTER TABLE ADD COLUMN.
type column struct {
	Table string
	Name  string
	Decl  string
}

// addedColumns is append-only. Columns are never dropped or renamed.
var addedColumns = []column{
	{"users", "password", "TEXT"},
	{"users", "phone_number", "TEXT"},
	{"users", "avatar_url", "TEXT"},
	{"users", "updated_at", "INTEGER"},
	{"teams", "description", "TEXT"},
	{"tasks", "metadata", "TEXT DEFAULT '{}'"},
	{"documents", "metadata", "TEXT DEFAULT '{}'"},
	{"development_phases", "icon", "TEXT"},
	{"development_phases", "color", "TEXT"},
}

// ftsIndex is an external-content FTS5 table mirroring text columns of a
// base table, keyed by the base table's rowid.
type ftsIndex struct {
	Table   string
	Columns []string
}

func (f ftsIndex) Name() string { return f.Table + "_fts" }

var ftsIndexes = []ftsIndex{
	{Table: "tasks", Columns: []string{"title", "description"}},
	{Table: "documents", Columns: []string{"title", "content"}},
}

func (f ftsIndex) createSQL() string {
	return fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING fts5(
    %s,
    content='%s',
    content_rowid='rowid',
    tokenize='unicode61 remove_diacritics 2'
)`, f.Name(), strings.Join(f.Columns, ", "), f.Table)
}

func (f ftsIndex) triggerSQL() []string {
	cols := strings.Join(f.Columns, ", ")
	newVals := prefixed("new.", f.Columns)
	oldVals := prefixed("old.", f.Columns)
	name := f.Name()
	return []string{
		fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS %[1]s_ai AFTER INSERT ON %[1]s BEGIN
    INSERT INTO %[2]s(rowid, %[3]s) VALUES (new.rowid, %[4]s);
END`, f.Table, name, cols, newVals),
		fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS %[1]s_ad AFTER DELETE ON %[1]s BEGIN
    INSERT INTO %[2]s(%[2]s, rowid, %[3]s) VALUES ('delete', old.rowid, %[4]s);
END`, f.Table, name, cols, oldVals),
		fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS %[1]s_au AFTER UPDATE ON %[1]s BEGIN
    INSERT INTO %[2]s(%[2]s, rowid, %[3]s) VALUES ('delete', old.rowid, %[4]s);
    INSERT INTO %[2]s(rowid, %[3]s) VALUES (new.rowid, %[5]s);
END`, f.Table, name, cols, oldVals, newVals),
	}
}

func prefixed(prefix string, cols []string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = prefix + c
	}
	return strings.Join(out, ", ")
}

// Bootstrap describes the administrative account seeded into a fresh
// database.
type Bootstrap struct {
	Username   string
	Email      string
	FullName   string
	Password   string
	BcryptCost int
}

// DefaultBootstrap returns the well-known first-run account. Its password
// is public and must be changed before real use.
func DefaultBootstrap() Bootstrap {
	return Bootstrap{
		Username:   "admin",
		Email:      "admin@example.com",
		FullName:   "System Administrator",
		Password:   "admin123",
		BcryptCost: bcrypt.DefaultCost,
	}
}

// MigrateReport describes what Migrate changed.
type MigrateReport struct {
	Fresh          bool     `json:"fresh" yaml:"fresh"`
	AddedColumns   []string `json:"added_columns" yaml:"added_columns"`
	RebuiltIndexes []string `json:"rebuilt_indexes" yaml:"rebuilt_indexes"`
	SeededAdmin    bool     `json:"seeded_admin" yaml:"seeded_admin"`
}

// Migrate brings the schema to its current shape. It is safe to run on
// every start. All changes happen in one transaction; on failure nothing
// is applied and the returned error has code SETUP_FAILED.
func (d *DB) Migrate(ctx context.Context, boot Bootstrap) (*MigrateReport, error) {
	report := &MigrateReport{}
	if boot.Username == "" {
		boot = DefaultBootstrap()
	}
	if boot.BcryptCost == 0 {
		boot.BcryptCost = bcrypt.DefaultCost
	}

	// An FTS index whose rowids no longer match its content table (a file
	// restored from a VACUUM INTO copy, for example) fails the integrity
	// check. The check runs outside the transaction because a corrupt-vtab
	// error may abort it.
	stale, err := d.staleFTSIndexes(ctx)
	if err != nil {
		return nil, apperrors.SetupFailed(err)
	}

	err = d.Transaction(ctx, func(q Querier) error {
		hasUsers, err := ObjectExists(ctx, q, "table", "users")
		if err != nil {
			return err
		}
		report.Fresh = !hasUsers

		if err := execScript(ctx, q, "schema/tables.sql"); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}

		added, err := addMissingColumns(ctx, q)
		if err != nil {
			return err
		}
		report.AddedColumns = added

		if err := execScript(ctx, q, "schema/indexes.sql"); err != nil {
			return fmt.Errorf("create indexes: %w", err)
		}

		rebuilt, err := ensureFTS(ctx, q, report.Fresh, stale)
		if err != nil {
			return err
		}
		report.RebuiltIndexes = rebuilt

		if report.Fresh {
			if err := seedAdmin(ctx, q, boot); err != nil {
				return fmt.Errorf("seed admin: %w", err)
			}
			report.SeededAdmin = true
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.SetupFailed(err)
	}

	for _, c := range report.AddedColumns {
		d.logger.Info("added column", "column", c)
	}
	for _, name := range report.RebuiltIndexes {
		d.logger.Info("rebuilt search index", "index", name)
	}
	if report.SeededAdmin {
		d.logger.Warn("seeded default administrator account; change its password before real use",
			"username", boot.Username)
	}
	return report, nil
}

func execScript(ctx context.Context, q Querier, name string) error {
	raw, err := schemaFS.ReadFile(name)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	for _, stmt := range strings.Split(string(raw), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := q.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func addMissingColumns(ctx context.Context, q Querier) ([]string, error) {
	var added []string
	live := make(map[string][]string)
	for _, c := range addedColumns {
		cols, ok := live[c.Table]
		if !ok {
			var err error
			cols, err = TableColumns(ctx, q, c.Table)
			if err != nil {
				return nil, err
			}
			live[c.Table] = cols
		}
		if slices.Contains(cols, c.Name) {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", c.Table, c.Name, c.Decl)
		if _, err := q.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("add column %s.%s: %w", c.Table, c.Name, err)
		}
		live[c.Table] = append(cols, c.Name)
		added = append(added, c.Table+"."+c.Name)
	}
	return added, nil
}

// ensureFTS creates the search tables and their triggers. An index created
// on a database that already had rows, or listed in stale, is rebuilt from
// its content table.
func ensureFTS(ctx context.Context, q Querier, fresh bool, stale []string) ([]string, error) {
	var rebuilt []string
	for _, idx := range ftsIndexes {
		existed, err := ObjectExists(ctx, q, "table", idx.Name())
		if err != nil {
			return nil, err
		}
		if _, err := q.Exec(ctx, idx.createSQL()); err != nil {
			return nil, fmt.Errorf("create %s: %w", idx.Name(), err)
		}
		for _, trig := range idx.triggerSQL() {
			if _, err := q.Exec(ctx, trig); err != nil {
				return nil, fmt.Errorf("create %s trigger: %w", idx.Name(), err)
			}
		}
		if (!existed && !fresh) || slices.Contains(stale, idx.Name()) {
			stmt := fmt.Sprintf("INSERT INTO %[1]s(%[1]s) VALUES('rebuild')", idx.Name())
			if _, err := q.Exec(ctx, stmt); err != nil {
				return nil, fmt.Errorf("rebuild %s: %w", idx.Name(), err)
			}
			rebuilt = append(rebuilt, idx.Name())
		}
	}
	return rebuilt, nil
}

func (d *DB) staleFTSIndexes(ctx context.Context) ([]string, error) {
	var stale []string
	for _, idx := range ftsIndexes {
		ok, err := ObjectExists(ctx, d, "table", idx.Name())
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		stmt := fmt.Sprintf("INSERT INTO %[1]s(%[1]s, rank) VALUES('integrity-check', 1)", idx.Name())
		if _, err := d.Exec(ctx, stmt); err != nil {
			d.logger.Warn("search index out of sync", "index", idx.Name(), "error", err)
			stale = append(stale, idx.Name())
		}
	}
	return stale, nil
}

func seedAdmin(ctx context.Context, q Querier, boot Bootstrap) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(boot.Password), boot.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	_, err = q.Exec(ctx, `
		INSERT INTO users (id, username, full_name, email, password, role, created_at, settings)
		VALUES (?, ?, ?, ?, ?, 'admin', ?, '{}')
	`, uuid.NewString(), boot.Username, boot.FullName, boot.Email, string(hash), time.Now().Unix())
	return err
}
