package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/willemschots/webauth/internal"
	"github.com/willemschots/webauth/internal/db"
	"github.com/willemschots/webauth/internal/db/migrate"
	"github.com/willemschots/webauth/migrations"
)

const helpText = `Usage: dbmigrate [-status] [-timeout duration] sqlite_file

Applies the embedded migrations to sqlite_file. With -status it lists
the applied and pending migrations without applying anything.
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("dbmigrate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, helpText)
	}

	status := fs.Bool("status", false, "list applied and pending migrations")
	timeout := fs.Duration("timeout", time.Minute, "max duration of the migrations")

	if err := fs.Parse(args); err != nil {
		return 1
	}

	if fs.NArg() != 1 {
		fs.Usage()
		return 1
	}

	sqlDB, err := db.OpenSQLite(fs.Arg(0), true)
	if err != nil {
		fmt.Fprintf(stderr, "failed to open database: %v\n", err)
		return 1
	}
	defer sqlDB.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *status {
		return printStatus(ctx, sqlDB, stdout, stderr)
	}

	ran, err := migrate.RunFS(ctx, sqlDB, migrations.FS, migrate.Metadata{
		AppVersion: internal.BuildInfo.AppVersion(),
		Timestamp:  time.Now(),
	})
	if err != nil {
		fmt.Fprintf(stderr, "failed to run migrations: %v\n", err)
		return 1
	}

	if len(ran) == 0 {
		fmt.Fprintln(stdout, "database is up to date")
	}

	for _, m := range ran {
		fmt.Fprintf(stdout, "applied %d: %s\n", m.Version, m.Filename)
	}

	return 0
}

func printStatus(ctx context.Context, sqlDB *sql.DB, stdout, stderr io.Writer) int {
	ran, err := migrate.QueryMigrations(ctx, sqlDB)
	if errors.Is(err, migrate.ErrNoTable) {
		fmt.Fprintln(stdout, "no migrations applied")
	} else if err != nil {
		fmt.Fprintf(stderr, "failed to query migrations: %v\n", err)
		return 1
	}

	for _, m := range ran {
		fmt.Fprintf(stdout, "applied %d: %s (%s, %s)\n", m.Version, m.Filename, m.Metadata.AppVersion, m.Metadata.Timestamp.Format(time.RFC3339))
	}

	pending, err := migrate.Pending(ctx, sqlDB, migrations.FS)
	if err != nil {
		fmt.Fprintf(stderr, "failed to determine pending migrations: %v\n", err)
		return 1
	}

	for _, m := range pending {
		fmt.Fprintf(stdout, "pending %d: %s\n", m.Version, m.Filename)
	}

	return 0
}
