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

//go:build !nofakedb

package fakedb

import (
	"context"
	"errors"
	"fmt"
	gms "github.com/dolthub/go-mysql-server"
	gmsmemory "github.com/dolthub/go-mysql-server/memory"
	gmsserver "github.com/dolthub/go-mysql-server/server"
	gmssql "github.com/dolthub/go-mysql-server/sql"
	"log/slog"
	"net"
	"sync"
)

var (
	sysVarsOnce sync.Once
	sysVarsErr  error
)

// Start runs an in-memory MySQL-compatible server holding one empty database.
// It speaks the MySQL wire protocol, so the rest of the program reaches it
// through go-sql-driver/mysql exactly as it would a real MariaDB. Everything
// is lost when the process exits.
//
// The server stops when ctx is done.
func Start(
	ctx context.Context, dbName, host string, port int32, username, password string,
) (actualPort int32, err error) {
	db := gmsmemory.NewDatabase(dbName)
	db.BaseDatabase.EnablePrimaryKeyIndexes()
	prov := gmsmemory.NewDBProvider(db)
	engine := gms.NewDefault(prov)

	addSuperUser(engine, username, password)

	// The system variables are process-wide, and tests start many fake DBs.
	sysVarsOnce.Do(func() {
		// It's considered insecure to leave this setting empty
		// https://dev.mysql.com/doc/refman/8.4/en/server-system-variables.html#sysvar_secure_file_priv
		sysVarsErr = gmssql.SystemVariables.AssignValues(map[string]any{
			"secure_file_priv": "NULL",
		})
	})
	if sysVarsErr != nil {
		return 0, fmt.Errorf("[AssignValues]: %w", sysVarsErr)
	}

	config := gmsserver.Config{
		Protocol: "tcp",
		Address:  net.JoinHostPort(host, fmt.Sprint(port)),
	}
	s, err := gmsserver.NewServer(config, engine, gmssql.NewContext, gmsmemory.NewSessionBuilder(prov), nil)
	if err != nil {
		return 0, fmt.Errorf("[NewServer]: %w", err)
	}
	go func() {
		if err := s.Start(); err != nil {
			slog.Error("Fake DB server stopped", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()

	tcpAddr, ok := s.Listener.Addr().(*net.TCPAddr)
	if !ok {
		return 0, errors.New("fake DB is not listening on TCP")
	}
	return int32(tcpAddr.Port), nil
}

func addSuperUser(engine *gms.Engine, username string, password string) {
	mysqlDb := engine.Analyzer.Catalog.MySQLDb
	ed := mysqlDb.Editor()
	defer ed.Close()
	mysqlDb.AddEphemeralSuperUser(ed, username, "localhost", password)
}
