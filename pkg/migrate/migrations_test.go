package migrate_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/shopsphere-backend/pkg/config"
	"github.com/angelmondragon/shopsphere-backend/pkg/db"
	"github.com/angelmondragon/shopsphere-backend/pkg/logger"
	"github.com/angelmondragon/shopsphere-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no %s migration file found", suffix)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestLedgerMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "create_ledger_tables")
	checks := []string{
		"CREATE TABLE IF NOT EXISTS ledger_accounts",
		"CREATE TABLE IF NOT EXISTS ledger_entries",
		"CONSTRAINT uq_ledger_entries_vendor_sequence UNIQUE (vendor_id, sequence)",
		"CHECK (amount > 0)",
		"CHECK (kind IN ('debit', 'credit'))",
		"DROP TABLE IF EXISTS ledger_entries",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestPurchasesMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "create_purchases_table")
	checks := []string{
		"CREATE TABLE IF NOT EXISTS purchases",
		"FOREIGN KEY (vendor_id) REFERENCES vendors(id)",
		"FOREIGN KEY (product_id) REFERENCES products(id)",
		"CHECK (quantity > 0)",
		"CHECK (total_price = quantity * unit_price)",
		"DROP TABLE IF EXISTS purchases",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestProductsMigrationKeepsQuantityNonNegative(t *testing.T) {
	content := readMigration(t, "create_products_table")
	if !strings.Contains(content, "CHECK (quantity >= 0)") {
		t.Errorf("products migration must reject negative stock")
	}
}

func TestCreateSQLMigrationWritesGooseTemplate(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Vendor Terms")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_vendor_terms.sql") {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("generated migration invalid: %v", err)
	}
}

func TestMaybeRunDevMigratesSQLite(t *testing.T) {
	client, err := db.New(context.Background(), config.DBConfig{
		Driver:     "sqlite",
		SQLitePath: "file:migrate_autorun?mode=memory&cache=shared",
	}, true, logger.New(logger.Options{ServiceName: "migrate-test"}))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer client.Close()

	cfg := &config.Config{FeatureFlags: config.FeatureFlagsConfig{UseSQLite: true}}
	if err := migrate.MaybeRunDev(context.Background(), cfg, logger.New(logger.Options{ServiceName: "migrate-test"}), client); err != nil {
		t.Fatalf("maybe run dev: %v", err)
	}
	for _, table := range []string{"vendors", "products", "purchases", "ledger_accounts", "ledger_entries", "settlement_operations", "outbox_events"} {
		if !client.DB().Migrator().HasTable(table) {
			t.Errorf("expected table %s", table)
		}
	}
}
