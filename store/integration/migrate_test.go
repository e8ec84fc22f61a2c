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

package integration_test

import (
	"context"
	"crypto/rand"
	"database/sql"
	_ "embed"
	"fmt"
	"github.com/rowan-franciscus/onus-health-application-sub001/conf"
	"github.com/rowan-franciscus/onus-health-application-sub001/lib/testctr"
	"github.com/rowan-franciscus/onus-health-application-sub001/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"io"
	"slices"
	"testing"
)

//go:embed 01.sql
var schema01 string

// TestMigrateSameAsCurrentSchema brings up two MariaDB databases, one at
// schema version 1 and one empty, migrates both to current, and expects
// identical tables with identical "CREATE TABLE" SQL. A difference means a
// new num-from-num.sql is needed.
func TestMigrateSameAsCurrentSchema(t *testing.T) {
	if testing.Short() {
		t.Skip("needs a container runtime")
	}
	t.Parallel()
	ctx := t.Context()

	database := rand.Text()
	username := rand.Text()
	password := rand.Text()

	var db1, db2 *sql.DB
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		db1 = newUnmigratedDB(t, groupCtx, database, username, password)
		return nil
	})
	group.Go(func() error {
		db2 = newUnmigratedDB(t, groupCtx, database, username, password)
		return nil
	})
	require.NoError(t, group.Wait())
	defer shut(db1)
	defer shut(db2)

	require.NoError(t, runScript(ctx, db1, schema01))
	require.NoError(t, store.MigrateDB(ctx, db1))

	require.NoError(t, store.MigrateDB(ctx, db2))
	require.NoError(t, store.MigrateDB(ctx, db2))

	var dbTables [2][]string
	for i, db := range []*sql.DB{db1, db2} {
		rows, err := db.QueryContext(ctx, `show tables`)
		require.NoError(t, err)
		for rows.Next() {
			var tableName string
			require.NoError(t, rows.Scan(&tableName))
			dbTables[i] = append(dbTables[i], tableName)
		}
		require.NoError(t, rows.Err())
		slices.Sort(dbTables[i])
		shut(rows)
	}
	require.Equal(t, dbTables[0], dbTables[1])

	for _, tableName := range dbTables[0] {
		var name, createTable1, createTable2 string
		require.NoError(t, db1.QueryRowContext(ctx, `show create table `+tableName).Scan(&name, &createTable1))
		require.NoError(t, db2.QueryRowContext(ctx, `show create table `+tableName).Scan(&name, &createTable2))
		assert.Equal(t, createTable1, createTable2)
	}
}

func newUnmigratedDB(t *testing.T, ctx context.Context, database, username, password string) *sql.DB {
	t.Helper()

	ctr, cleanup, err := testctr.MariaDBContainer(ctx, database, username, password)
	t.Cleanup(cleanup)
	require.NoError(t, err)

	db, err := store.SqlDB(ctx,
		conf.DBStore{
			Type: conf.DBStoreTypeMaria,
			MariaDB: conf.DBStoreMaria{
				HostName: ctr.Host,
				HostPort: ctr.Port,
				Database: database,
				Username: username,
				Password: password,
			},
		},
		false,
	)
	require.NoError(t, err)
	return db
}

func runScript(ctx context.Context, db *sql.DB, script string) error {
	_, err := db.ExecContext(ctx, script)
	if err != nil {
		return fmt.Errorf("[ExecContext]: %w", err)
	}
	return nil
}

func shut(c io.Closer) {
	_ = c.Close()
}
