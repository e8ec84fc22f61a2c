//
// See the file COPYRIGHT for copyright information.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"github.com/go-sql-driver/mysql"
	"github.com/rowan-franciscus/onus-health-application-sub001/conf"
	"github.com/rowan-franciscus/onus-health-application-sub001/lib/noopdb"
	"github.com/rowan-franciscus/onus-health-application-sub001/store/fakedb"
	"log/slog"
	"strings"
	"time"
)

//go:embed schema/current.sql
var CurrentSchema string

//go:embed schema/*-from-*.sql
var Migrations embed.FS

// SqlDB opens the database selected by dbStoreCfg. For DBStoreTypeFake, this
// also starts the in-process server the connection points at.
func SqlDB(ctx context.Context, dbStoreCfg conf.DBStore, migrateDB bool) (*sql.DB, error) {
	var mariaCfg conf.DBStoreMaria
	var err error
	switch dbStoreCfg.Type {
	case conf.DBStoreTypeNoOp:
		// This is a DB that does nothing and returns nothing on querying.
		// It's really only useful as a stand-in for testing.
		slog.Info("Using NoOp DB")
		return sql.Open(noopdb.DriverName, "")
	case conf.DBStoreTypeFake:
		mariaCfg, err = startFakeDB(ctx, dbStoreCfg.Fake)
		if err != nil {
			return nil, fmt.Errorf("[startFakeDB]: %w", err)
		}
	case conf.DBStoreTypeMaria:
		fallthrough
	default:
		mariaCfg = dbStoreCfg.MariaDB
	}

	db, err := openDB(ctx, mariaCfg)
	if err != nil {
		return nil, fmt.Errorf("[openDB]: %w", err)
	}

	if migrateDB {
		err = MigrateDB(ctx, db)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("[MigrateDB]: %w", err)
		}
	} else {
		slog.Info("Onus DB migration not requested")
	}

	slog.Info("Connected to Onus database", "type", dbStoreCfg.Type)
	return db, nil
}

func openDB(ctx context.Context, mariaCfg conf.DBStoreMaria) (*sql.DB, error) {
	slog.Info("Setting up Onus DB connection")

	cfg := mysql.NewConfig()
	cfg.User = mariaCfg.Username
	cfg.Passwd = mariaCfg.Password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%v:%v", mariaCfg.HostName, mariaCfg.HostPort)
	cfg.DBName = mariaCfg.Database
	cfg.MultiStatements = true

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("[sql.Open]: %w", err)
	}
	if mariaCfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(int(mariaCfg.MaxOpenConns))
	}
	pingErr := db.PingContext(ctx)
	if pingErr != nil {
		_ = db.Close()
		return nil, fmt.Errorf("[db.PingContext]: %w", pingErr)
	}
	return db, nil
}

func startFakeDB(ctx context.Context, mariaCfg conf.DBStoreMaria) (conf.DBStoreMaria, error) {
	port, err := fakedb.Start(ctx,
		mariaCfg.Database,
		mariaCfg.HostName, mariaCfg.HostPort,
		mariaCfg.Username, mariaCfg.Password,
	)
	if err != nil {
		return mariaCfg, fmt.Errorf("[fakedb.Start]: %w", err)
	}
	mariaCfg.HostPort = port

	slog.Info("Started volatile fake DB", "host", mariaCfg.HostName, "port", port)
	return mariaCfg, nil
}

// DBTX is satisfied by *sql.DB, *sql.Tx and DB.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// DB logs each statement it runs at debug level.
type DB struct {
	*sql.DB
}

var _ DBTX = DB{}

func (l DB) ExecContext(ctx context.Context, s string, i ...any) (sql.Result, error) {
	start := time.Now()
	result, err := l.DB.ExecContext(ctx, s, i...)
	logQuery(s, start, err)
	return result, err
}

func (l DB) QueryContext(ctx context.Context, s string, i ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := l.DB.QueryContext(ctx, s, i...)
	logQuery(s, start, err)
	return rows, err
}

func (l DB) QueryRowContext(ctx context.Context, s string, i ...any) *sql.Row {
	start := time.Now()
	row := l.DB.QueryRowContext(ctx, s, i...)
	logQuery(s, start, nil)
	return row
}

// logQuery names a query by its leading "-- name: X" comment, or else its first word.
func logQuery(s string, start time.Time, err error) {
	queryName, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	queryName = strings.TrimPrefix(queryName, "-- name: ")
	if fields := strings.Fields(queryName); len(fields) > 0 {
		queryName = fields[0]
	}
	durationMS := float64(time.Since(start).Microseconds()) / 1000.0
	slog.Debug("Ran Onus SQL: "+queryName,
		"durationish", fmt.Sprintf("%.3fms", durationMS),
		"err", err,
	)
}

const mysqlDuplicateEntry = 1062

func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}
