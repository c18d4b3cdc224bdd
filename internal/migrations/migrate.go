package migrations

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pg "github.com/golang-migrate/migrate/v4/database/postgres"
	msqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	appdb "github.com/playmatatu/billiards/internal/database"
)

const migrationsTable = "schema_migrations_migrate"

// RunMigrations applies the file-based migrations under dir/<driver> for the
// database behind databaseURL. If the schema already exists but migrate's
// metadata table does not, the database is baselined to the latest version.
func RunMigrations(databaseURL, dir string) error {
	if databaseURL == "" {
		return fmt.Errorf("database URL is empty")
	}
	if dir == "" {
		dir = "migrations"
	}

	driverName, dsn, err := appdb.Driver(databaseURL)
	if err != nil {
		return err
	}

	sqlDB, err := sql.Open(driverName, dsn)
	if err != nil {
		return fmt.Errorf("failed to open DB: %w", err)
	}
	defer sqlDB.Close()

	// checked before the migrate driver creates its metadata table
	baseline := schemaPresent(sqlDB, driverName)

	var driver database.Driver
	switch driverName {
	case appdb.DriverPostgres:
		driver, err = pg.WithInstance(sqlDB, &pg.Config{MigrationsTable: migrationsTable})
	default:
		driver, err = msqlite.WithInstance(sqlDB, &msqlite.Config{MigrationsTable: migrationsTable})
	}
	if err != nil {
		return fmt.Errorf("failed to create migrate driver: %w", err)
	}

	source := filepath.Join(dir, driverName)
	m, err := migrate.NewWithDatabaseInstance("file://"+source, driverName, driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if baseline {
		latest := findLatestMigrationVersion(source)
		if latest > 0 {
			log.Printf("[MIGRATE] Baseline DB to version %d (existing schema present)", latest)
			if ferr := m.Force(int(latest)); ferr != nil {
				log.Printf("[MIGRATE] Force to version %d failed: %v", latest, ferr)
			}
		}
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration up failed: %w", err)
	}

	log.Printf("[MIGRATE] Migrations applied from %s (no changes or up completed)", source)
	return nil
}

// schemaPresent reports whether billiard_tables exists without migrate's
// metadata table, i.e. a schema created by hand.
func schemaPresent(db *sql.DB, driver string) bool {
	exists := func(name string) bool {
		var n int
		q := `SELECT COUNT(*) FROM information_schema.tables WHERE table_name = $1`
		if driver != appdb.DriverPostgres {
			q = `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
		}
		if err := db.QueryRow(q, name).Scan(&n); err != nil {
			return false
		}
		return n > 0
	}
	return exists("billiard_tables") && !exists(migrationsTable)
}

// findLatestMigrationVersion scans the migrations directory for files that start with
// a numeric version prefix (e.g. 000001_) and returns the highest version number.
func findLatestMigrationVersion(dir string) int64 {
	files, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}

	re := regexp.MustCompile(`^0*([0-9]+)_`)
	var max int64
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		name := f.Name()
		m := re.FindStringSubmatch(name)
		if len(m) < 2 {
			continue
		}
		v, _ := strconv.ParseInt(m[1], 10, 64)
		if v > max {
			max = v
		}
	}

	return max
}
