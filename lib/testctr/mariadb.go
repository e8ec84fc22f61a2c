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

package testctr

import (
	"context"
	"errors"
	"fmt"
	"github.com/go-sql-driver/mysql"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"log/slog"
	"time"
)

const (
	MariaDBVersion     = "10.11.13"
	MariaDBDockerImage = "mariadb:" + MariaDBVersion

	startupTimeout = 2 * time.Minute
)

// MariaDB is a running MariaDB TestContainer.
type MariaDB struct {
	Container testcontainers.Container
	Host      string
	Port      int32
	Database  string
	Username  string
	Password  string
}

// DSN is a go-sql-driver/mysql connection string for the container's database.
func (m MariaDB) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = m.Username
	cfg.Passwd = m.Password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%v:%v", m.Host, m.Port)
	cfg.DBName = m.Database
	cfg.ParseTime = true
	cfg.MultiStatements = true
	return cfg.FormatDSN()
}

// MariaDBContainer creates and runs a MariaDB TestContainer.
//
// If there is an error on startup, this function will terminate the TestContainer before returning.
// After calling this function, the caller must be sure to defer cleanup, e.g. by `t.Cleanup(cleanup)`.
func MariaDBContainer(ctx context.Context, database, username, password string) (
	db MariaDB,
	cleanup func(),
	err error,
) {
	db = MariaDB{Database: database, Username: username, Password: password}
	cleanup = func() {}
	ctr, err := testcontainers.GenericContainer(
		ctx,
		testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        MariaDBDockerImage,
				ExposedPorts: []string{"3306/tcp"},
				WaitingFor: wait.ForLog("mariadb.org binary distribution").
					WithStartupTimeout(startupTimeout),
				Env: map[string]string{
					"MARIADB_RANDOM_ROOT_PASSWORD": "true",
					"MARIADB_DATABASE":             database,
					"MARIADB_USER":                 username,
					"MARIADB_PASSWORD":             password,
				},
			},
			Started: true,
		},
	)
	if ctr != nil {
		cleanup = func() {
			if err := ctr.Terminate(context.WithoutCancel(ctx)); err != nil {
				slog.Error("Failed to terminate container", "error", err)
			}
		}
	}
	if err != nil {
		cleanup()
		return MariaDB{}, func() {}, fmt.Errorf("[GenericContainer]: %w", err)
	}
	db.Container = ctr

	var errs []error
	host, err := ctr.Host(ctx)
	errs = append(errs, err)
	natPort, err := ctr.MappedPort(ctx, "3306/tcp")
	errs = append(errs, err)
	if err = errors.Join(errs...); err != nil {
		cleanup()
		return MariaDB{}, func() {}, err
	}
	db.Host = host
	db.Port = int32(natPort.Int())
	return db, cleanup, nil
}
