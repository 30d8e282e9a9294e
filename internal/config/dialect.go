package config

import "fmt"

// Supported store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// dialect captures the SQL differences between the supported databases.
type dialect struct {
	name       string // canonical name used in config
	driverName string // database/sql driver registered by the import
	returning  bool   // INSERT ... RETURNING id supported
	schema     []string
	upsert     string // settings upsert statement
}

var dialects = map[string]dialect{
	DriverSQLite: {
		name:       DriverSQLite,
		driverName: "sqlite",
		schema:     sqliteSchema,
		upsert: `INSERT INTO admin_settings (setting_key, value) VALUES (?, ?)
			ON CONFLICT (setting_key) DO UPDATE SET value = excluded.value`,
	},
	DriverPostgres: {
		name:       DriverPostgres,
		driverName: "pgx",
		returning:  true,
		schema:     postgresSchema,
		upsert: `INSERT INTO admin_settings (setting_key, value) VALUES (?, ?)
			ON CONFLICT (setting_key) DO UPDATE SET value = excluded.value`,
	},
	DriverMySQL: {
		name:       DriverMySQL,
		driverName: "mysql",
		schema:     mysqlSchema,
		upsert: `INSERT INTO admin_settings (setting_key, value) VALUES (?, ?)
			ON DUPLICATE KEY UPDATE value = VALUES(value)`,
	},
}

func lookupDialect(driver string) (dialect, error) {
	switch driver {
	case "", "sqlite3":
		driver = DriverSQLite
	case "pgx", "postgresql":
		driver = DriverPostgres
	}
	d, ok := dialects[driver]
	if !ok {
		return dialect{}, fmt.Errorf("unsupported database driver %q (want sqlite, postgres or mysql)", driver)
	}
	return d, nil
}
