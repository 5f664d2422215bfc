package backup

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/jvillanueva/hilot/internal/database"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedPatient(t *testing.T, db *sql.DB, first, last string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO patients (first_name, last_name, birth_date) VALUES (?, ?, '1995-03-12 00:00:00')`, first, last)
	if err != nil {
		t.Fatalf("seed patient: %v", err)
	}
}

func seedChild(t *testing.T, db *sql.DB, first, last string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO children (first_name, last_name, birth_date) VALUES (?, ?, '2024-07-01 00:00:00')`, first, last)
	if err != nil {
		t.Fatalf("seed child: %v", err)
	}
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestDumpScopedToModules(t *testing.T) {
	db := openTestDB(t)
	seedPatient(t, db, "Maria", "Santos")
	seedChild(t, db, "Ana", "Santos")

	out, err := Dump(context.Background(), db, []string{ModulePatientRecords})
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	text := string(out)

	if !strings.HasPrefix(text, dumpHeader) {
		t.Errorf("dump missing header, got %q", text[:40])
	}
	if !strings.Contains(text, `DELETE FROM "patients";`) {
		t.Error("dump missing patients DELETE")
	}
	if !strings.Contains(text, `INSERT INTO "patients"`) {
		t.Error("dump missing patients INSERT")
	}
	if strings.Contains(text, `"children"`) {
		t.Error("patient-only dump must not mention children")
	}
	if !strings.Contains(text, "BEGIN TRANSACTION;") || !strings.Contains(text, "COMMIT;") {
		t.Error("dump not wrapped in a transaction")
	}
}

func TestDumpQuotesStrings(t *testing.T) {
	db := openTestDB(t)
	seedPatient(t, db, "Ma'am", "O'Neil")

	out, err := Dump(context.Background(), db, []string{ModulePatientRecords})
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	if !strings.Contains(string(out), "'Ma''am'") {
		t.Error("single quotes in values must be doubled")
	}
}

func TestApplyRoundTrip(t *testing.T) {
	db := openTestDB(t)
	seedPatient(t, db, "Maria", "Santos")
	seedPatient(t, db, "Josefina", "Reyes")

	dump, err := Dump(context.Background(), db, []string{ModulePatientRecords})
	if err != nil {
		t.Fatalf("dump: %v", err)
	}

	// Diverge from the snapshot, then restore it.
	if _, err := db.Exec(`DELETE FROM patients`); err != nil {
		t.Fatalf("clear patients: %v", err)
	}
	seedPatient(t, db, "Lourdes", "Cruz")

	if err := Apply(context.Background(), db, dump, []string{ModulePatientRecords}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if n := countRows(t, db, "patients"); n != 2 {
		t.Errorf("patients after restore = %d, want 2", n)
	}
	var last string
	if err := db.QueryRow(`SELECT last_name FROM patients WHERE first_name = 'Maria'`).Scan(&last); err != nil {
		t.Fatalf("restored row missing: %v", err)
	}
	if last != "Santos" {
		t.Errorf("last_name = %q, want Santos", last)
	}
}

func TestApplySelectiveLeavesOtherTables(t *testing.T) {
	db := openTestDB(t)
	seedPatient(t, db, "Maria", "Santos")
	seedChild(t, db, "Ana", "Santos")

	// Full dump, but apply only the patient module.
	dump, err := Dump(context.Background(), db, AllModules())
	if err != nil {
		t.Fatalf("dump: %v", err)
	}

	seedChild(t, db, "Ben", "Santos")
	if _, err := db.Exec(`DELETE FROM patients`); err != nil {
		t.Fatalf("clear patients: %v", err)
	}

	if err := Apply(context.Background(), db, dump, []string{ModulePatientRecords}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if n := countRows(t, db, "patients"); n != 1 {
		t.Errorf("patients = %d, want 1", n)
	}
	// Children were not selected: the post-dump row must survive.
	if n := countRows(t, db, "children"); n != 2 {
		t.Errorf("children = %d, want 2 (untouched by selective apply)", n)
	}
}

func TestApplyRejectsForeignArtifact(t *testing.T) {
	db := openTestDB(t)
	err := Apply(context.Background(), db, []byte("DROP TABLE patients;"), []string{ModulePatientRecords})
	if _, ok := err.(*ValidationError); !ok {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestSplitStatementsRespectsStrings(t *testing.T) {
	stmts := splitStatements("INSERT INTO \"patients\" (\"note\") VALUES ('a; b''c');\n-- comment; ignored\nCOMMIT;")
	if len(stmts) != 2 {
		t.Fatalf("statements = %d, want 2: %q", len(stmts), stmts)
	}
	if !strings.Contains(stmts[0], "a; b''c") {
		t.Errorf("string literal split incorrectly: %q", stmts[0])
	}
}
