package storage

import (
	"strconv"
	"strings"
)

// Dialect hides the SQL differences between the supported engines. Queries are
// written with "?" placeholders and rebound before execution.
type Dialect interface {
	Name() string
	Rebind(query string) string
	// DayLabel, WeekLabel and MonthLabel return expressions yielding
	// chronologically sortable text labels: YYYY-MM-DD, YYYY-Www (ISO), YYYY-MM.
	DayLabel(col string) string
	WeekLabel(col string) string
	MonthLabel(col string) string
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string              { return "sqlite" }
func (sqliteDialect) Rebind(query string) string { return query }

// order_date is stored as YYYY-MM-DD text.
func (sqliteDialect) DayLabel(col string) string   { return col }
func (sqliteDialect) WeekLabel(col string) string  { return "strftime('%G-W%V', " + col + ")" }
func (sqliteDialect) MonthLabel(col string) string { return "strftime('%Y-%m', " + col + ")" }

type postgresDialect struct{}

func (postgresDialect) Name() string { return "postgres" }

// Rebind rewrites "?" placeholders as $1, $2, ... skipping quoted literals.
func (postgresDialect) Rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func (postgresDialect) DayLabel(col string) string   { return "to_char(" + col + ", 'YYYY-MM-DD')" }
func (postgresDialect) WeekLabel(col string) string  { return "to_char(" + col + ", 'IYYY-\"W\"IW')" }
func (postgresDialect) MonthLabel(col string) string { return "to_char(" + col + ", 'YYYY-MM')" }

// SQLite and Postgres are the supported dialects.
var (
	SQLite   Dialect = sqliteDialect{}
	Postgres Dialect = postgresDialect{}
)

// DialectFor returns the dialect for a driver name.
func DialectFor(driver string) (Dialect, bool) {
	switch driver {
	case "sqlite", "":
		return SQLite, true
	case "postgres", "pgx":
		return Postgres, true
	}
	return nil, false
}
