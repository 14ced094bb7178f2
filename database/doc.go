// Package database backs flowkit with SQL through GORM.
//
// DB and Component manage a pooled connection with retrying startup and
// health checks. RunStore is a run.Store on two tables, flowkit_runs and
// flowkit_checkpoints, whose schema ships as embedded golang-migrate
// migrations applied by Migrate. The "sql-table" provider reads a table in
// cursor-column order and inserts batches of map payloads.
//
// SQLite (gorm.io/driver/sqlite) is the bundled driver:
//
//	db, err := database.New(ctx, database.Config{Enabled: true, DSN: "flowkit.db"}, log)
//	if err := database.Migrate(db); err != nil { ... }
//	ctrl := run.NewController(database.NewRunStore(db))
package database
