package verify

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	// the application database is Postgres; the mysql driver is kept
	// registered for local fixtures
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// OpenDatabase opens the application database. The driver is chosen
// from the DSN scheme: postgres:// (or postgresql://) uses pgx, and
// mysql:// uses go-sql-driver with the scheme stripped, since that
// driver takes a bare dial string.
func OpenDatabase(dsn string) (*sql.DB, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return sql.Open("pgx", dsn)
	case strings.HasPrefix(dsn, "mysql://"):
		return sql.Open("mysql", strings.TrimPrefix(dsn, "mysql://"))
	}
	return nil, errors.Errorf("unrecognized database DSN %q", dsn)
}

// A ColumnSpec names one path-bearing column and the UI pages that
// consume it. The pages label is for operator triage only.
type ColumnSpec struct {
	Name  string
	Pages string
}

// A TableSpec describes one path-bearing table.
type TableSpec struct {
	Table    string
	IDColumn string
	Columns  []ColumnSpec
}

// DefaultTables lists the application tables holding asset paths. Every
// column is nullable text holding either a bare relative path or a full
// public storage URL.
var DefaultTables = []TableSpec{
	{
		Table:    "spots",
		IDColumn: "id",
		Columns: []ColumnSpec{
			{Name: "image_path", Pages: "spot detail, map popup"},
			{Name: "image_thumb_path", Pages: "spot list, home carousel"},
			{Name: "model_path", Pages: "AR capture, 3D viewer"},
		},
	},
	{
		Table:    "cities",
		IDColumn: "id",
		Columns: []ColumnSpec{
			{Name: "image_path", Pages: "city guide"},
			{Name: "image_thumb_path", Pages: "city list"},
		},
	},
	{
		Table:    "genres",
		IDColumn: "id",
		Columns: []ColumnSpec{
			{Name: "image_path", Pages: "genre tiles, genre picker"},
		},
	},
}

// An SQLSource reads one table's path columns through database/sql.
type SQLSource struct {
	DB   *sql.DB
	Spec TableSpec
}

// SQLSources wraps every table spec over one connection.
func SQLSources(db *sql.DB, specs []TableSpec) []Source {
	var sources []Source
	for _, spec := range specs {
		sources = append(sources, &SQLSource{DB: db, Spec: spec})
	}
	return sources
}

func (s *SQLSource) Name() string { return s.Spec.Table }

func (s *SQLSource) Records() ([]Record, error) {
	cols := make([]string, 0, len(s.Spec.Columns))
	for _, c := range s.Spec.Columns {
		cols = append(cols, c.Name)
	}
	query := fmt.Sprintf("SELECT %s, %s FROM %s",
		s.Spec.IDColumn, strings.Join(cols, ", "), s.Spec.Table)
	rows, err := s.DB.Query(query)
	if err != nil {
		return nil, errors.Wrapf(err, "querying %s", s.Spec.Table)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var id sql.NullString
		dest := make([]interface{}, 0, len(cols)+1)
		dest = append(dest, &id)
		values := make([]sql.NullString, len(cols))
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, errors.Wrapf(err, "scanning %s", s.Spec.Table)
		}
		rec := Record{ID: id.String}
		for i, c := range s.Spec.Columns {
			rec.Fields = append(rec.Fields, Field{
				Name:  c.Name,
				Value: values[i].String,
				Pages: c.Pages,
			})
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
