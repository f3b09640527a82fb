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

// Package pgpass reads PostgreSQL password files
// (hostname:port:database:username:password per line).
package pgpass

import (
	"fmt"
	"strconv"

	"github.com/jackc/pgpassfile"
	"github.com/spf13/afero"
)

// Load parses the password file at path. Like libpq, it refuses a file
// that group or others can access.
func Load(fs afero.Fs, path string) (*pgpassfile.Passfile, error) {
	info, err := fs.Stat(path)
	if err != nil {
		return nil, err
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		return nil, fmt.Errorf("password file %s has group or world access (%04o); must be 0600 or stricter", path, perm)
	}
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return pgpassfile.ParsePassfile(f)
}

// Lookup returns the password of the first entry matching the connection.
// An empty host matches "localhost"; a zero port matches "5432". An entry
// with an empty password counts as no match.
func Lookup(pf *pgpassfile.Passfile, host string, port int, database, user string) (string, bool) {
	if pf == nil {
		return "", false
	}
	if host == "" {
		host = "localhost"
	}
	if port == 0 {
		port = 5432
	}
	pw := pf.FindPassword(host, strconv.Itoa(port), database, user)
	return pw, pw != ""
}
