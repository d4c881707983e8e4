package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/beatvault/beatvault-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one %s migration, found %d", suffix, len(matches))
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestPurchasesMigrationEnforcesSessionUniqueness(t *testing.T) {
	content := readMigration(t, "create_purchases_tables")
	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS purchases",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_purchases_session_id ON purchases (session_id)",
		"CREATE TABLE IF NOT EXISTS purchase_items",
		"BEFORE UPDATE OR DELETE ON purchases",
	} {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestCartMigrationEnforcesEntryUniqueness(t *testing.T) {
	content := readMigration(t, "create_cart_entries_table")
	want := "CREATE UNIQUE INDEX IF NOT EXISTS ux_cart_entries_user_composition_license"
	if !strings.Contains(content, want) {
		t.Fatalf("missing %q", want)
	}
	if !strings.Contains(content, "(user_id, composition_id, license_id)") {
		t.Fatal("cart unique index must cover the full tuple")
	}
}

func TestCatalogMigrationSeedsLicenses(t *testing.T) {
	content := readMigration(t, "create_catalog_tables")
	for _, slug := range []string{"'basic'", "'premium'", "'unlimited'", "'exclusive'"} {
		if !strings.Contains(content, slug) {
			t.Errorf("missing license seed %s", slug)
		}
	}
}

func TestValidateDirAcceptsShippedMigrations(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestCreateSQLMigrationThenValidate(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Cart Notes!")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasSuffix(path, "_add_cart_notes.sql") {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "001_bad.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := migrate.ValidateDir(dir); err == nil {
		t.Fatal("expected invalid filename to fail validation")
	}
}

func TestModelsCoverEveryTable(t *testing.T) {
	if got := len(migrate.Models()); got != 9 {
		t.Fatalf("expected 9 models, got %d", got)
	}
}

func TestValidateDirRejectsDuplicateVersions(t *testing.T) {
	dir := t.TempDir()
	body := []byte("-- +goose Up\nSELECT 1;\n-- +goose Down\nSELECT 1;\n")
	for _, name := range []string{"20261001090000_first.sql", "20261001090000_second.sql"} {
		if err := os.WriteFile(filepath.Join(dir, name), body, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := migrate.ValidateDir(dir); err == nil {
		t.Fatal("expected duplicate versions to fail validation")
	}
}

func TestParseVersion(t *testing.T) {
	v, err := migrate.ParseVersion("20260101120000")
	if err != nil || v != 20260101120000 {
		t.Fatalf("ParseVersion = %d, %v", v, err)
	}
	for _, bad := range []string{"", "v1", "-3"} {
		if _, err := migrate.ParseVersion(bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestNewRequiresDatabase(t *testing.T) {
	if _, err := migrate.New(nil, "migrations", nil); err == nil {
		t.Fatal("expected nil db to be rejected")
	}
}
