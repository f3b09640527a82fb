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

package connpool

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Attribute keys and state values from the OTel database semantic
// conventions.
const (
	attrKeyPoolName = "db.client.connection.pool.name"
	attrKeyState    = "db.client.connection.state"

	stateIdle = "idle"
	stateUsed = "used"
)

// ConnectionCount wraps the db.client.connection.count up/down counter so
// callers pass a pool name and state instead of attribute keys.
type ConnectionCount struct {
	metric.Int64UpDownCounter
}

// Add records a change in the number of connections in state.
func (c ConnectionCount) Add(ctx context.Context, delta int64, poolName, state string) {
	c.Int64UpDownCounter.Add(ctx, delta, metric.WithAttributes(
		attribute.String(attrKeyPoolName, poolName),
		attribute.String(attrKeyState, state),
	))
}

// Metrics holds the OpenTelemetry instruments shared by every pool of a
// registry. A nil *Metrics records nothing.
type Metrics struct {
	connCount ConnectionCount
	created   metric.Int64Counter
	timeouts  metric.Int64Counter
	waitTime  metric.Float64Histogram
}

// NewMetrics creates the pool instruments on meter. A nil meter yields
// no-op instruments.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		return &Metrics{
			connCount: ConnectionCount{noop.Int64UpDownCounter{}},
			created:   noop.Int64Counter{},
			timeouts:  noop.Int64Counter{},
			waitTime:  noop.Float64Histogram{},
		}, nil
	}

	var errs []error
	count, err := meter.Int64UpDownCounter(
		"db.client.connection.count",
		metric.WithDescription("The number of connections that are currently in state described by the state attribute."),
		metric.WithUnit("{connection}"),
	)
	errs = append(errs, err)

	created, err := meter.Int64Counter(
		"db.client.connection.created",
		metric.WithDescription("The number of physical connections opened by the pool."),
		metric.WithUnit("{connection}"),
	)
	errs = append(errs, err)

	timeouts, err := meter.Int64Counter(
		"db.client.connection.timeouts",
		metric.WithDescription("The number of connection acquisitions that timed out."),
		metric.WithUnit("{timeout}"),
	)
	errs = append(errs, err)

	waitTime, err := meter.Float64Histogram(
		"db.client.connection.wait_time",
		metric.WithDescription("The time it took to obtain a connection from the pool after waiting."),
		metric.WithUnit("s"),
	)
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &Metrics{
		connCount: ConnectionCount{count},
		created:   created,
		timeouts:  timeouts,
		waitTime:  waitTime,
	}, nil
}

func (m *Metrics) move(pool, from, to string) {
	if m == nil {
		return
	}
	ctx := context.Background()
	if from != "" {
		m.connCount.Add(ctx, -1, pool, from)
	}
	if to != "" {
		m.connCount.Add(ctx, 1, pool, to)
	}
}

func (m *Metrics) addIdle(pool string, delta int) {
	if m == nil || delta == 0 {
		return
	}
	m.connCount.Add(context.Background(), int64(delta), pool, stateIdle)
}

func (m *Metrics) recordCreated(pool string) {
	if m == nil {
		return
	}
	m.created.Add(context.Background(), 1, metric.WithAttributes(attribute.String(attrKeyPoolName, pool)))
}

func (m *Metrics) recordTimeout(pool string) {
	if m == nil {
		return
	}
	m.timeouts.Add(context.Background(), 1, metric.WithAttributes(attribute.String(attrKeyPoolName, pool)))
}

func (m *Metrics) recordWait(pool string, d time.Duration) {
	if m == nil {
		return
	}
	m.waitTime.Record(context.Background(), d.Seconds(), metric.WithAttributes(attribute.String(attrKeyPoolName, pool)))
}
