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

package noopdb_test

import (
	"database/sql"
	"database/sql/driver"
	"github.com/rowan-franciscus/onus-health-application-sub001/lib/noopdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"io"
	"testing"
)

func TestNoOpDB_driverSurface(t *testing.T) {
	t.Parallel()
	conn, err := noopdb.Driver{}.Open("")
	require.NoError(t, err)
	stmt, err := conn.Prepare("select 1")
	require.NoError(t, err)
	assert.Equal(t, -1, stmt.NumInput())
	tx, err := conn.Begin() //nolint:staticcheck
	require.NoError(t, err)
	result, err := stmt.Exec(nil) //nolint:staticcheck
	require.NoError(t, err)
	rows, err := stmt.Query(nil) //nolint:staticcheck
	require.NoError(t, err)
	n, err := result.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.ErrorIs(t, rows.Next(make([]driver.Value, 1)), io.EOF)
	require.NoError(t, rows.Close())
	require.NoError(t, stmt.Close())
	require.NoError(t, tx.Rollback())
	require.NoError(t, tx.Commit())
	require.NoError(t, conn.Close())
}

func TestNoOpDB_throughDatabaseSQL(t *testing.T) {
	t.Parallel()
	db, err := sql.Open(noopdb.DriverName, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.PingContext(t.Context()))

	res, err := db.ExecContext(t.Context(), "insert into X values (?, ?)", "a", 1)
	require.NoError(t, err)
	n, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rows, err := db.QueryContext(t.Context(), "select * from X where id = ?", "a")
	require.NoError(t, err)
	assert.False(t, rows.Next())
	require.NoError(t, rows.Err())
	require.NoError(t, rows.Close())

	var s string
	err = db.QueryRowContext(t.Context(), "select 1").Scan(&s)
	require.ErrorIs(t, err, sql.ErrNoRows)
}
