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

package cmd

import (
	"fmt"
	"github.com/joho/godotenv"
	"github.com/rowan-franciscus/onus-health-application-sub001/conf"
	"github.com/rowan-franciscus/onus-health-application-sub001/lib/conv"
	"log/slog"
	"os"
	"strings"
	"time"
)

// mustInitConfig reads in the .env file and ENV variables if set.
func mustInitConfig(envFileName string) *conf.OnusConfig {
	return mustApplyEnvConfig(conf.DefaultOnus(), envFileName)
}

// mustApplyEnvConfig reads in the .env file and ENV variables and applies those to baseCfg.
func mustApplyEnvConfig(baseCfg *conf.OnusConfig, envFileName string) *conf.OnusConfig {
	err := godotenv.Load(envFileName)

	if err != nil && !os.IsNotExist(err) {
		must(err)
	}
	if os.IsNotExist(err) {
		// if it's not the default
		if envFileName != envFileDefaultName {
			must(fmt.Errorf("envfile '%v' was set by the caller, but the file was not found", envFileName))
		}
		slog.Info("No .env file found. Carrying on with OnusConfig defaults and environment variable overrides")
	}

	if v, ok := lookupEnv("ONUS_HOSTNAME"); ok {
		baseCfg.Core.Host = v
	}
	if v, ok := lookupEnv("ONUS_PORT"); ok {
		baseCfg.Core.Port, err = conv.ParseInt32(v)
		must(err)
	}
	if v, ok := lookupEnv("ONUS_DEPLOYMENT"); ok {
		baseCfg.Core.Deployment = conf.ParseDeployment(v)
	}
	if v, ok := lookupEnv("ONUS_LOG_LEVEL"); ok {
		baseCfg.Core.LogLevel = v
	}
	if v, ok := lookupEnv("ONUS_AUTH_LOG_ENABLED"); ok {
		baseCfg.Core.AuthLogEnabled, err = conv.ParseBool(v)
		must(err)
	}
	if v, ok := lookupEnv("ONUS_MAX_REQUEST_BYTES"); ok {
		baseCfg.Core.MaxRequestBytes, err = conv.ParseInt64(v)
		must(err)
	}
	// Durations must be given with a time unit, e.g. "20s" or "5m10s".
	// ParseDuration will fail here if the value is just a nonzero number.
	if v, ok := lookupEnv("ONUS_ACCESS_TOKEN_LIFETIME"); ok {
		baseCfg.Core.AccessTokenLifetime = mustParseDuration(v)
	}
	if v, ok := lookupEnv("ONUS_REFRESH_TOKEN_LIFETIME"); ok {
		baseCfg.Core.RefreshTokenLifetime = mustParseDuration(v)
	}
	if v, ok := lookupEnv("ONUS_ACCESS_TOKEN_SECRET"); ok {
		baseCfg.Core.AccessTokenSecret = v
	}
	if v, ok := lookupEnv("ONUS_REFRESH_TOKEN_SECRET"); ok {
		baseCfg.Core.RefreshTokenSecret = v
	}
	if v, ok := lookupEnv("ONUS_SESSION_TIMEOUT"); ok {
		baseCfg.Session.Timeout = mustParseDuration(v)
	}
	if v, ok := lookupEnv("ONUS_SESSION_WARNING_WINDOW"); ok {
		baseCfg.Session.WarningWindow = mustParseDuration(v)
	}
	if v, ok := lookupEnv("ONUS_CLIENT_REQUEST_TIMEOUT"); ok {
		baseCfg.Session.ClientRequestTimeout = mustParseDuration(v)
	}
	if v, ok := lookupEnv("ONUS_IDLE_PRUNE_INTERVAL"); ok {
		baseCfg.Session.IdlePruneInterval = mustParseDuration(v)
	}
	if v, ok := lookupEnv("ONUS_DIRECTORY"); ok {
		baseCfg.Directory.Directory = conf.DirectoryType(strings.ToLower(v))
	}
	if v, ok := lookupEnv("ONUS_DIRECTORY_CACHE_TTL"); ok {
		baseCfg.Directory.InMemoryCacheTTL = mustParseDuration(v)
	}
	if v, ok := lookupEnv("ONUS_DB_STORE_TYPE"); ok {
		baseCfg.Store.Type = conf.DBStoreType(strings.ToLower(v))
	}
	if v, ok := lookupEnv("ONUS_DB_LEDGER_PRUNE_INTERVAL"); ok {
		baseCfg.Store.LedgerPruneInterval = mustParseDuration(v)
	}
	if v, ok := lookupEnv("ONUS_DB_HOST_NAME"); ok {
		baseCfg.Store.MariaDB.HostName = v
	}
	if v, ok := lookupEnv("ONUS_DB_HOST_PORT"); ok {
		baseCfg.Store.MariaDB.HostPort, err = conv.ParseInt32(v)
		must(err)
	}
	if v, ok := lookupEnv("ONUS_DB_DATABASE"); ok {
		baseCfg.Store.MariaDB.Database = v
	}
	if v, ok := lookupEnv("ONUS_DB_USER_NAME"); ok {
		baseCfg.Store.MariaDB.Username = v
	}
	if v, ok := lookupEnv("ONUS_DB_PASSWORD"); ok {
		baseCfg.Store.MariaDB.Password = v
	}

	return baseCfg
}

func mustParseDuration(v string) time.Duration {
	dur, err := time.ParseDuration(v)
	must(err)
	return dur
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	// When doing `docker run --env-file .env`, Docker passes in vars without removing
	// the double-quotes, e.g. ONUS_HOSTNAME="localhost" would actually get passed into
	// the program with the double-quotes in place.
	// https://github.com/docker/cli/issues/3630
	if strings.HasPrefix(v, "\"") && strings.HasSuffix(v, "\"") {
		v = v[1 : len(v)-1]
	}
	return v, true
}
