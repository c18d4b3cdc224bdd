package database

import "testing"

func TestDriver(t *testing.T) {
	cases := []struct {
		url, driver, dsn string
	}{
		{"postgres://u:p@localhost/db?sslmode=disable", DriverPostgres, "postgres://u:p@localhost/db?sslmode=disable"},
		{"postgresql://localhost/db", DriverPostgres, "postgresql://localhost/db"},
		{"sqlite://billiards.db", DriverSQLite, "billiards.db"},
		{"sqlite:///tmp/x.db", DriverSQLite, "/tmp/x.db"},
		{":memory:", DriverSQLite, ":memory:"},
	}
	for _, tc := range cases {
		driver, dsn, err := Driver(tc.url)
		if err != nil || driver != tc.driver || dsn != tc.dsn {
			t.Errorf("Driver(%q) = %q, %q, %v", tc.url, driver, dsn, err)
		}
	}
	if _, _, err := Driver("mysql://localhost/db"); err == nil {
		t.Error("mysql url should be rejected")
	}
}

func TestConnectSQLiteMemory(t *testing.T) {
	db, err := Connect(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var n int
	if err := db.Get(&n, db.Rebind(`SELECT ? + 1`), 1); err != nil || n != 2 {
		t.Errorf("query = %d, %v", n, err)
	}
}
