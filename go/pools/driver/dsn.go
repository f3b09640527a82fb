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

package driver

import (
	"net/url"
	"strconv"
)

// DSNBuilder builds URL-style connection strings.
type DSNBuilder struct {
	scheme   string
	user     string
	password string
	host     string
	port     int
	database string
	params   url.Values
}

// NewDSNBuilder starts a DSN with the given URL scheme.
func NewDSNBuilder(scheme string) *DSNBuilder {
	return &DSNBuilder{scheme: scheme, params: url.Values{}}
}

// FromParams fills the builder from p, including its extra params.
func (b *DSNBuilder) FromParams(p Params) *DSNBuilder {
	return b.Auth(p.User, p.Password).
		Host(p.Host, p.Port).
		Database(p.Database).
		Params(p.Params)
}

func (b *DSNBuilder) Auth(user, password string) *DSNBuilder {
	b.user, b.password = user, password
	return b
}

func (b *DSNBuilder) Host(host string, port int) *DSNBuilder {
	b.host, b.port = host, port
	return b
}

func (b *DSNBuilder) Database(name string) *DSNBuilder {
	b.database = name
	return b
}

// Param sets a query parameter. Empty values are skipped.
func (b *DSNBuilder) Param(key, value string) *DSNBuilder {
	if value != "" {
		b.params.Set(key, value)
	}
	return b
}

func (b *DSNBuilder) Params(params map[string]string) *DSNBuilder {
	for k, v := range params {
		b.Param(k, v)
	}
	return b
}

// Build returns the DSN. Query parameters are sorted by key.
func (b *DSNBuilder) Build() string {
	u := url.URL{Scheme: b.scheme, Host: b.host}
	if b.port > 0 {
		u.Host += ":" + strconv.Itoa(b.port)
	}
	if b.user != "" {
		if b.password != "" {
			u.User = url.UserPassword(b.user, b.password)
		} else {
			u.User = url.User(b.user)
		}
	}
	if b.database != "" {
		u.Path = "/" + b.database
	}
	u.RawQuery = b.params.Encode()
	return u.String()
}
