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

package conf

import (
	"errors"
	"fmt"
	"github.com/rowan-franciscus/onus-health-application-sub001/lib/redact"
	"strings"
	"time"
)

// DefaultOnus is the base configuration used for the Onus server.
// It gets overridden by values in a .env file, then the result
// of that gets overridden by environment variables.
func DefaultOnus() *OnusConfig {
	return &OnusConfig{
		Core: ConfigCore{
			Host:                 "localhost",
			Port:                 8080,
			Deployment:           DeploymentTypeDev,
			LogLevel:             "INFO",
			AccessTokenLifetime:  time.Hour,
			RefreshTokenLifetime: 30 * 24 * time.Hour,
			MaxRequestBytes:      1 << 20,
			AuthLogEnabled:       true,
		},
		Session: Session{
			Timeout:              30 * time.Minute,
			WarningWindow:        3 * time.Minute,
			CountdownTick:        time.Second,
			ClientRequestTimeout: 2 * time.Minute,
			ClientRetries:        3,
			IdlePruneInterval:    5 * time.Minute,
		},
		Store: DBStore{
			Type: DBStoreTypeFake,
			MariaDB: DBStoreMaria{
				HostName:     "localhost",
				HostPort:     3306,
				Database:     "onus",
				MaxOpenConns: 20,
			},
			Fake: DBStoreMaria{
				HostName: "localhost",
				// HostPort can be left as 0 for automatic port selection on startup
				HostPort:     0,
				Database:     "onus",
				Username:     "onus-fake",
				Password:     "onus-fake-password",
				MaxOpenConns: 5,
			},
			LedgerPruneInterval: time.Hour,
		},
		Directory: Directory{
			Directory:        DirectoryTypeTestUsers,
			TestUsers:        DefaultTestUsers(),
			InMemoryCacheTTL: time.Minute,
		},
	}
}

// Validate should be called after an OnusConfig has been fully configured.
func (c *OnusConfig) Validate() error {
	var errs []error
	errs = append(errs, c.Core.Deployment.Validate())
	errs = append(errs, c.Store.Type.Validate())
	errs = append(errs, c.Directory.Directory.Validate())
	if c.Store.Type != DBStoreTypeMaria {
		c.Store.MariaDB = DBStoreMaria{}
	}
	if c.Store.Type != DBStoreTypeFake {
		c.Store.Fake = DBStoreMaria{}
	}
	if c.Directory.Directory == DirectoryTypeDB && c.Store.Type == DBStoreTypeNoOp {
		errs = append(errs, errors.New("the db directory needs a real store, not noop"))
	}
	if c.Directory.Directory == DirectoryTypeTestUsers && c.Core.Deployment != DeploymentTypeDev {
		errs = append(errs, errors.New("do not use TestUsers outside dev! A db directory must be provided"))
	}
	if c.Directory.Directory == DirectoryTypeDB && c.Store.Type != DBStoreTypeFake {
		// Test users only get seeded into the fake DB.
		c.Directory.TestUsers = nil
	}
	if c.Core.AccessTokenSecret == "" {
		errs = append(errs, errors.New("an access token secret is required"))
	}
	if c.Core.RefreshTokenSecret == "" {
		errs = append(errs, errors.New("a refresh token secret is required"))
	}
	if c.Core.AccessTokenSecret != "" && c.Core.AccessTokenSecret == c.Core.RefreshTokenSecret {
		errs = append(errs, errors.New("access and refresh token secrets must differ"))
	}
	if c.Core.AccessTokenLifetime <= 0 {
		errs = append(errs, errors.New("access token lifetime must be positive"))
	}
	if c.Core.AccessTokenLifetime > c.Core.RefreshTokenLifetime {
		errs = append(errs, errors.New("access token lifetime should not be greater than refresh token lifetime"))
	}
	if c.Session.WarningWindow <= 0 || c.Session.WarningWindow >= c.Session.Timeout {
		errs = append(errs, fmt.Errorf("session warning window %v must be positive and shorter than the session timeout %v",
			c.Session.WarningWindow, c.Session.Timeout))
	}
	if c.Session.CountdownTick <= 0 {
		errs = append(errs, errors.New("countdown tick must be positive"))
	}
	if c.Core.MaxRequestBytes <= 0 {
		errs = append(errs, errors.New("max request bytes must be positive"))
	}
	return errors.Join(errs...)
}

func (c *OnusConfig) PrintRedacted() string {
	return c.String()
}

func (c *OnusConfig) String() string {
	b, err := redact.ToBytes(c)
	if err != nil {
		return fmt.Sprintf("failed to redact config: %v", err)
	}
	return string(b)
}

type OnusConfig struct {
	Core      ConfigCore
	Session   Session
	Store     DBStore
	Directory Directory
}

type (
	DirectoryType  string
	DeploymentType string
	DBStoreType    string
)

const (
	DirectoryTypeTestUsers   DirectoryType  = "testusers"
	DirectoryTypeDB          DirectoryType  = "db"
	DeploymentTypeDev        DeploymentType = "dev"
	DeploymentTypeStaging    DeploymentType = "staging"
	DeploymentTypeProduction DeploymentType = "production"
	DBStoreTypeMaria         DBStoreType    = "mariadb"
	DBStoreTypeFake          DBStoreType    = "fake"
	DBStoreTypeNoOp          DBStoreType    = "noop"
)

func (d DBStoreType) Validate() error {
	switch d {
	case DBStoreTypeMaria, DBStoreTypeFake, DBStoreTypeNoOp:
		return nil
	default:
		return fmt.Errorf("unknown DB store type %v", d)
	}
}

func (d DirectoryType) Validate() error {
	switch d {
	case DirectoryTypeTestUsers, DirectoryTypeDB:
		return nil
	default:
		return fmt.Errorf("unknown directory type %v", d)
	}
}

func (d DeploymentType) Validate() error {
	switch d {
	case DeploymentTypeDev, DeploymentTypeStaging, DeploymentTypeProduction:
		return nil
	default:
		return fmt.Errorf("unknown deployment type %v", d)
	}
}

func ParseDeployment(s string) DeploymentType {
	return DeploymentType(strings.ToLower(strings.TrimSpace(s)))
}

// IsProduction is used to switch off developer conveniences, like retrying
// requests that failed on connectivity.
func (d DeploymentType) IsProduction() bool {
	return d == DeploymentTypeProduction
}

type ConfigCore struct {
	Host       string
	Port       int32
	Deployment DeploymentType

	// AccessTokenLifetime is how long an access token is good for. Refreshing
	// re-reads the account, so this bounds how stale a Principal can get.
	AccessTokenLifetime  time.Duration
	RefreshTokenLifetime time.Duration

	// The two token classes are signed with separate secrets.
	AccessTokenSecret  string `redact:"true"`
	RefreshTokenSecret string `redact:"true"`

	// LogLevel should be one of DEBUG, INFO, WARN, or ERROR
	LogLevel string

	// MaxRequestBytes is a hard limit on request sizes that will be permitted by the API server.
	MaxRequestBytes int64

	// AuthLogEnabled turns on the AUTH_EVENT audit trail.
	AuthLogEnabled bool
}

type Session struct {
	// Timeout is the idle time after which a session is over, both on the
	// server and in the client's activity monitor.
	Timeout time.Duration
	// WarningWindow is how long before Timeout the client starts its countdown.
	WarningWindow time.Duration
	CountdownTick time.Duration

	ClientRequestTimeout time.Duration
	// ClientRetries bounds connectivity retries outside production.
	ClientRetries int

	IdlePruneInterval time.Duration
}

type DBStore struct {
	Type    DBStoreType
	MariaDB DBStoreMaria
	// Fake is the in-process database started for DBStoreTypeFake.
	Fake DBStoreMaria

	LedgerPruneInterval time.Duration
}

type DBStoreMaria struct {
	HostName     string
	HostPort     int32
	Database     string
	Username     string
	Password     string `redact:"true"`
	MaxOpenConns int32
}

type Directory struct {
	Directory        DirectoryType
	TestUsers        []TestUser
	InMemoryCacheTTL time.Duration
}

type TestUser struct {
	ID                  string
	Email               string
	Role                string
	EmailVerified       bool
	OnboardingCompleted bool
	ProviderVerified    bool
	// Password is a bcrypt hash.
	Password string `redact:"true"`
}
