// Copyright 2025 Supabase, Inc.
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

package sqlconn

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/multigres/dbpool/go/pools/driver"
)

// Factory names registered with the driver package.
const (
	Postgres = "postgres"
	MySQL    = "mysql"
	SQLite   = "sqlite"
)

func init() {
	driver.Register(Postgres, driver.FactoryFunc(ConnectPostgres))
	driver.Register(MySQL, driver.FactoryFunc(ConnectMySQL))
	driver.Register(SQLite, driver.FactoryFunc(ConnectSQLite))
}

// PostgresDSN builds a lib/pq URL from p.
func PostgresDSN(p driver.Params) string {
	b := driver.NewDSNBuilder("postgres").FromParams(p).Param("sslmode", p.SSLMode)
	if p.ConnectTimeout > 0 {
		// lib/pq takes whole seconds; round up so 500ms does not become 0.
		secs := int((p.ConnectTimeout + 999_999_999) / 1_000_000_000)
		b.Param("connect_timeout", strconv.Itoa(secs))
	}
	return b.Build()
}

// ConnectPostgres opens a session with lib/pq.
func ConnectPostgres(ctx context.Context, p driver.Params) (driver.Conn, error) {
	connector, err := pq.NewConnector(PostgresDSN(p))
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	return open(ctx, sql.OpenDB(connector), p)
}

// MySQLConfig translates p into a go-sql-driver config.
func MySQLConfig(p driver.Params) *mysql.Config {
	cfg := mysql.NewConfig()
	cfg.User = p.User
	cfg.Passwd = p.Password
	cfg.DBName = p.Database
	cfg.Timeout = p.ConnectTimeout
	cfg.ParseTime = true
	if p.Host != "" {
		port := p.Port
		if port == 0 {
			port = 3306
		}
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(p.Host, strconv.Itoa(port))
	}
	cfg.TLSConfig = mysqlTLS(p.SSLMode)
	if len(p.Params) > 0 {
		cfg.Params = make(map[string]string, len(p.Params))
		for k, v := range p.Params {
			cfg.Params[k] = v
		}
	}
	return cfg
}

// mysqlTLS maps libpq-style sslmode names onto go-sql-driver tls values.
func mysqlTLS(sslmode string) string {
	switch strings.ToLower(sslmode) {
	case "", "disable", "false":
		return ""
	case "require", "skip-verify":
		return "skip-verify"
	case "verify-ca", "verify-full", "true":
		return "true"
	case "prefer", "preferred", "allow":
		return "preferred"
	default:
		return sslmode
	}
}

// ConnectMySQL opens a session with go-sql-driver/mysql.
func ConnectMySQL(ctx context.Context, p driver.Params) (driver.Conn, error) {
	connector, err := mysql.NewConnector(MySQLConfig(p))
	if err != nil {
		return nil, fmt.Errorf("mysql: %w", err)
	}
	return open(ctx, sql.OpenDB(connector), p)
}

// SQLiteDSN returns the modernc.org/sqlite data source for p. Database is
// a file path or ":memory:"; Params become query parameters such as
// _pragma=busy_timeout(5000).
func SQLiteDSN(p driver.Params) string {
	dsn := p.Database
	if dsn == "" {
		dsn = ":memory:"
	}
	if len(p.Params) == 0 {
		return dsn
	}
	q := url.Values{}
	for k, v := range p.Params {
		q.Set(k, v)
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + q.Encode()
}

// ConnectSQLite opens a session with modernc.org/sqlite.
func ConnectSQLite(ctx context.Context, p driver.Params) (driver.Conn, error) {
	db, err := sql.Open(SQLite, SQLiteDSN(p))
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	return open(ctx, db, p)
}

func open(ctx context.Context, db *sql.DB, p driver.Params) (driver.Conn, error) {
	if p.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.ConnectTimeout)
		defer cancel()
	}
	conn, err := New(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.Driver, err)
	}
	return conn, nil
}
