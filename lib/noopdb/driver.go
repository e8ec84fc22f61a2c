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

package noopdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"io"
)

// DriverName is the name to pass to sql.Open.
const DriverName = "noop"

func init() {
	sql.Register(DriverName, Driver{})
}

// Driver accepts every statement and stores nothing. Queries return no rows.
// It backs the "noop" ledger in tests, where nothing should reach a real database.
type Driver struct{}

type Conn struct{}

type Stmt struct{}

type Result struct{}

type Rows struct{}

type Tx struct{}

var (
	_ driver.Driver = Driver{}
	_ driver.Pinger = Conn{}
)

func (Driver) Open(_ string) (driver.Conn, error) {
	return Conn{}, nil
}

func (Conn) Prepare(_ string) (driver.Stmt, error) {
	return Stmt{}, nil
}

func (Conn) Close() error {
	return nil
}

func (Conn) Begin() (driver.Tx, error) {
	return Tx{}, nil
}

func (Conn) Ping(_ context.Context) error {
	return nil
}

func (Stmt) Close() error {
	return nil
}

// NumInput is -1 so database/sql doesn't check argument counts.
func (Stmt) NumInput() int {
	return -1
}

func (Stmt) Exec(_ []driver.Value) (driver.Result, error) {
	return Result{}, nil
}

func (Stmt) Query(_ []driver.Value) (driver.Rows, error) {
	return Rows{}, nil
}

func (Result) LastInsertId() (int64, error) {
	return 0, nil
}

// RowsAffected claims one row so callers that check for a write see success.
func (Result) RowsAffected() (int64, error) {
	return 1, nil
}

func (Rows) Columns() []string {
	return nil
}

func (Rows) Close() error {
	return nil
}

func (Rows) Next(_ []driver.Value) error {
	return io.EOF
}

func (Tx) Commit() error {
	return nil
}

func (Tx) Rollback() error {
	return nil
}
