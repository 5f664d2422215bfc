package backup

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// The dump producer writes a plain-text SQL artifact scoped to the selected
// modules' tables. Each table is emitted as a DELETE followed by one INSERT
// per row, so applying a dump replaces exactly the tables it contains and
// nothing else. Apply filters statements back through the module→table
// mapping, which is what makes selective restore safe.

const dumpHeader = "-- hilot sql_dump v1"

// Dump produces a SQL text dump of the tables belonging to the given
// modules. Modules must already be validated.
func Dump(ctx context.Context, db *sql.DB, modules []string) ([]byte, error) {
	var b strings.Builder
	b.WriteString(dumpHeader + "\n")
	b.WriteString(fmt.Sprintf("-- generated %s\n", time.Now().UTC().Format(time.RFC3339)))
	b.WriteString(fmt.Sprintf("-- modules: %s\n", strings.Join(modules, ",")))
	b.WriteString("BEGIN TRANSACTION;\n")

	for _, table := range TablesFor(modules) {
		if err := dumpTable(ctx, db, table, &b); err != nil {
			return nil, fmt.Errorf("dump table %s: %w", table, err)
		}
	}

	b.WriteString("COMMIT;\n")
	return []byte(b.String()), nil
}

func dumpTable(ctx context.Context, db *sql.DB, table string, b *strings.Builder) error {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT * FROM %q`, table))
	if err != nil {
		return fmt.Errorf("select: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("columns: %w", err)
	}

	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = fmt.Sprintf("%q", c)
	}
	colList := strings.Join(quoted, ", ")

	fmt.Fprintf(b, "DELETE FROM %q;\n", table)

	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		lits := make([]string, len(vals))
		for i, v := range vals {
			lits[i] = sqlLiteral(v)
		}
		fmt.Fprintf(b, "INSERT INTO %q (%s) VALUES (%s);\n", table, colList, strings.Join(lits, ", "))
	}
	return rows.Err()
}

// sqlLiteral renders a scanned value as a SQLite literal.
func sqlLiteral(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case int64:
		return fmt.Sprintf("%d", x)
	case float64:
		return fmt.Sprintf("%g", x)
	case bool:
		if x {
			return "1"
		}
		return "0"
	case []byte:
		return "X'" + hex.EncodeToString(x) + "'"
	case time.Time:
		return "'" + x.UTC().Format("2006-01-02 15:04:05.999999999") + "'"
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	default:
		return "'" + strings.ReplaceAll(fmt.Sprint(x), "'", "''") + "'"
	}
}

// Apply executes a dump against db, keeping only statements that target the
// given modules' tables. Statements for any other table are skipped, so data
// outside the selected modules is left untouched. The whole apply runs in a
// single transaction with deferred foreign key checks: cross-module
// references are validated once at commit, after all selected tables have
// been repopulated.
func Apply(ctx context.Context, db *sql.DB, dump []byte, modules []string) error {
	if !strings.HasPrefix(string(dump), dumpHeader) {
		return &ValidationError{Field: "dump", Message: "not a recognized sql_dump artifact"}
	}

	allowed := make(map[string]struct{})
	for _, t := range TablesFor(modules) {
		allowed[t] = struct{}{}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin restore tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "PRAGMA defer_foreign_keys = ON"); err != nil {
		return fmt.Errorf("defer foreign keys: %w", err)
	}

	for _, stmt := range splitStatements(string(dump)) {
		table, ok := statementTable(stmt)
		if !ok {
			// BEGIN/COMMIT from the dump text; we run our own transaction.
			continue
		}
		if _, sel := allowed[table]; !sel {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply statement for %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit restore: %w", err)
	}
	return nil
}

// splitStatements splits SQL text into statements on semicolons, respecting
// single-quoted string literals (with '' escapes) and skipping -- comments.
func splitStatements(text string) []string {
	var stmts []string
	var cur strings.Builder
	inString := false

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case inString:
			cur.WriteByte(c)
			if c == '\'' {
				if i+1 < len(text) && text[i+1] == '\'' {
					cur.WriteByte('\'')
					i++
				} else {
					inString = false
				}
			}
		case c == '\'':
			inString = true
			cur.WriteByte(c)
		case c == '-' && i+1 < len(text) && text[i+1] == '-':
			for i < len(text) && text[i] != '\n' {
				i++
			}
		case c == ';':
			if s := strings.TrimSpace(cur.String()); s != "" {
				stmts = append(stmts, s)
			}
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		stmts = append(stmts, s)
	}
	return stmts
}

// statementTable extracts the target table of a dump statement. Returns
// false for statements that do not touch a table (BEGIN, COMMIT).
func statementTable(stmt string) (string, bool) {
	upper := strings.ToUpper(stmt)
	var rest string
	switch {
	case strings.HasPrefix(upper, "DELETE FROM "):
		rest = stmt[len("DELETE FROM "):]
	case strings.HasPrefix(upper, "INSERT INTO "):
		rest = stmt[len("INSERT INTO "):]
	default:
		return "", false
	}
	rest = strings.TrimSpace(rest)
	if strings.HasPrefix(rest, `"`) {
		if end := strings.IndexByte(rest[1:], '"'); end >= 0 {
			return rest[1 : 1+end], true
		}
		return "", false
	}
	end := strings.IndexAny(rest, " (;")
	if end < 0 {
		end = len(rest)
	}
	return rest[:end], true
}

// Rough per-row byte estimates used by EstimateSize. Advisory only.
var tableAvgRowBytes = map[string]int64{
	"patients":             220,
	"prenatal_records":     180,
	"prenatal_checkups":    200,
	"children":             200,
	"immunizations":        150,
	"vaccines":             160,
	"vaccine_transactions": 140,
}

// estimateTables sums row-count × average-row-size for the given tables.
func estimateTables(ctx context.Context, db *sql.DB, tables []string) (int64, error) {
	var total int64
	for _, table := range tables {
		var count int64
		if err := db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %q`, table)).Scan(&count); err != nil {
			return 0, fmt.Errorf("count %s: %w", table, err)
		}
		avg := tableAvgRowBytes[table]
		if avg == 0 {
			avg = 150
		}
		total += count * avg
	}
	return total, nil
}
