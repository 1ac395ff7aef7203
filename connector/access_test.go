// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2020 SONiC Project
// Use of this source code is governed by an Apache-2.0
// license that can be found in the LICENSE file.

package connector_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonic-net/go-swsssdk/connector"
	"github.com/sonic-net/go-swsssdk/fault"
)

// connector with CONFIG_DB connected to a fresh miniredis
func setupAccess(t *testing.T) (*miniredis.Miniredis, *connector.Connector) {
	m := miniredis.RunT(t)
	c := connector.New(testConfig(m))
	require.NoError(t, c.Connect(context.Background(), "CONFIG_DB", false), "connect error")
	t.Cleanup(c.CloseAll)
	return m, c
}

func TestGetField(t *testing.T) {
	m, c := setupAccess(t)
	ctx := context.Background()

	m.DB(4).HSet("PORT|Ethernet0", "admin_status", "up")

	value, ok, err := c.GetField(ctx, "CONFIG_DB", "PORT|Ethernet0", "admin_status", false)
	require.NoError(t, err, "get error")
	assert.True(t, ok, "field missing")
	assert.Equal(t, "up", value, "wrong value")

	// absent data is an empty result, not an error
	_, ok, err = c.GetField(ctx, "CONFIG_DB", "PORT|Ethernet0", "mtu", false)
	require.NoError(t, err, "get error")
	assert.False(t, ok, "missing field reported present")

	_, ok, err = c.GetField(ctx, "CONFIG_DB", "PORT|Ethernet4", "admin_status", false)
	require.NoError(t, err, "get error")
	assert.False(t, ok, "missing hash reported present")

	// the store cannot represent null, so "None" reads back as absent
	m.DB(4).HSet("PORT|Ethernet8", "alias", "None")
	_, ok, err = c.GetField(ctx, "CONFIG_DB", "PORT|Ethernet8", "alias", false)
	require.NoError(t, err, "get error")
	assert.False(t, ok, "literal None reported present")
}

func TestGetAll(t *testing.T) {
	m, c := setupAccess(t)
	ctx := context.Background()

	m.DB(4).HSet("PORT|Ethernet0", "admin_status", "up")
	m.DB(4).HSet("PORT|Ethernet0", "mtu", "9100")

	fields, ok, err := c.GetAll(ctx, "CONFIG_DB", "PORT|Ethernet0", false)
	require.NoError(t, err, "get_all error")
	assert.True(t, ok, "hash missing")
	assert.Equal(t, map[string]string{"admin_status": "up", "mtu": "9100"}, fields, "wrong fields")

	fields, ok, err = c.GetAll(ctx, "CONFIG_DB", "PORT|Ethernet4", false)
	require.NoError(t, err, "get_all error")
	assert.False(t, ok, "missing hash reported present")
	assert.Nil(t, fields, "missing hash returned fields")
}

func TestSetFieldAndRemove(t *testing.T) {
	m, c := setupAccess(t)
	ctx := context.Background()

	created, err := c.SetField(ctx, "CONFIG_DB", "PORT|Ethernet0", "admin_status", "up", false)
	require.NoError(t, err, "set error")
	assert.Equal(t, int64(1), created, "wrong created count")
	assert.Equal(t, "up", m.DB(4).HGet("PORT|Ethernet0", "admin_status"), "value not stored")

	removed, err := c.Remove(ctx, "CONFIG_DB", "PORT|Ethernet0", false)
	require.NoError(t, err, "delete error")
	assert.Equal(t, int64(1), removed, "wrong removed count")
	assert.False(t, m.DB(4).Exists("PORT|Ethernet0"), "key survived delete")
}

func TestKeys(t *testing.T) {
	m, c := setupAccess(t)
	ctx := context.Background()

	// an empty database yields no keys and no error
	keys, err := c.Keys(ctx, "CONFIG_DB", "*", false)
	require.NoError(t, err, "keys error")
	assert.Nil(t, keys, "phantom keys")

	m.DB(4).HSet("PORT|Ethernet0", "admin_status", "up")
	m.DB(4).HSet("PORT|Ethernet4", "admin_status", "down")
	m.DB(4).HSet("VLAN|Vlan100", "vlanid", "100")

	keys, err = c.Keys(ctx, "CONFIG_DB", "PORT|*", false)
	require.NoError(t, err, "keys error")
	assert.ElementsMatch(t, []string{"PORT|Ethernet0", "PORT|Ethernet4"}, keys, "wrong keys")
}

func TestRemoveByPattern(t *testing.T) {
	m, c := setupAccess(t)
	ctx := context.Background()

	m.DB(4).HSet("PORT|Ethernet0", "admin_status", "up")
	m.DB(4).HSet("PORT|Ethernet4", "admin_status", "down")
	m.DB(4).HSet("VLAN|Vlan100", "vlanid", "100")

	err := c.RemoveByPattern(ctx, "CONFIG_DB", "PORT|*", false)
	require.NoError(t, err, "delete_all_by_pattern error")

	assert.False(t, m.DB(4).Exists("PORT|Ethernet0"), "PORT|Ethernet0 survived")
	assert.False(t, m.DB(4).Exists("PORT|Ethernet4"), "PORT|Ethernet4 survived")
	assert.True(t, m.DB(4).Exists("VLAN|Vlan100"), "unrelated key removed")
}

func TestSchemaErrorNotRetried(t *testing.T) {
	m, c := setupAccess(t)
	ctx := context.Background()

	// a plain string key makes every hash command fail permanently
	require.NoError(t, m.DB(4).Set("MARKER", "x"), "fixture error")

	start := time.Now()
	_, _, err := c.GetAll(ctx, "CONFIG_DB", "MARKER", false)
	elapsed := time.Since(start)

	assert.True(t, fault.IsErrSchema(err), "wrong error class: %v", err)
	assert.Less(t, elapsed, time.Second, "schema error was retried")
}

// a blocking read for data that never appears returns unavailability
// after the configured maximum wait, not indefinitely
func TestBlockingBoundedWait(t *testing.T) {
	_, c := setupAccess(t)
	ctx := context.Background()

	start := time.Now()
	_, _, err := c.GetAll(ctx, "CONFIG_DB", "PORT|Ethernet0", true)
	elapsed := time.Since(start)

	assert.True(t, fault.IsErrUnavailableData(err), "wrong error class: %v", err)
	assert.GreaterOrEqual(t, elapsed, 250*time.Millisecond, "gave up before the maximum wait")
	assert.Less(t, elapsed, 3*time.Second, "blocked past the maximum wait")
}

// closing the connection underneath a blocking wait surfaces
// unavailability promptly; the subscription bookkeeping is shared
// between the waiting goroutine and the closer
func TestBlockingWaitClosedConnection(t *testing.T) {
	_, c := setupAccess(t)
	ctx := context.Background()

	go func() {
		time.Sleep(50 * time.Millisecond)
		c.Close("CONFIG_DB")
	}()

	start := time.Now()
	_, _, err := c.GetAll(ctx, "CONFIG_DB", "PORT|Ethernet0", true)
	elapsed := time.Since(start)

	assert.True(t, fault.IsErrUnavailableData(err), "wrong error class: %v", err)
	assert.Less(t, elapsed, 3*time.Second, "hung after close")
}

// a blocking read unblocks when the awaited keyspace notification
// arrives; miniredis generates no keyspace events, so the test
// publishes them the way Redis would
func TestBlockingAcquired(t *testing.T) {
	m, c := setupAccess(t)
	ctx := context.Background()

	done := make(chan struct{})
	defer close(done)

	go func() {
		time.Sleep(50 * time.Millisecond)
		m.DB(4).HSet("PORT|Ethernet0", "admin_status", "up")
		for {
			select {
			case <-done:
				return
			case <-time.After(20 * time.Millisecond):
				// keyevent notifications carry the key as payload
				m.Publish("__keyevent@4__:hset", "PORT|Ethernet0")
			}
		}
	}()

	fields, ok, err := c.GetAll(ctx, "CONFIG_DB", "PORT|Ethernet0", true)
	require.NoError(t, err, "blocking get_all error")
	assert.True(t, ok, "data missing after unblock")
	assert.Equal(t, map[string]string{"admin_status": "up"}, fields, "wrong fields")
}

func TestExistsExpirePublish(t *testing.T) {
	m, c := setupAccess(t)
	ctx := context.Background()

	m.DB(4).HSet("PORT|Ethernet0", "admin_status", "up")

	exists, err := c.Exists(ctx, "CONFIG_DB", "PORT|Ethernet0")
	require.NoError(t, err, "exists error")
	assert.True(t, exists, "key reported missing")

	exists, err = c.Exists(ctx, "CONFIG_DB", "PORT|Ethernet4")
	require.NoError(t, err, "exists error")
	assert.False(t, exists, "phantom key")

	err = c.Expire(ctx, "CONFIG_DB", "PORT|Ethernet0", time.Minute)
	require.NoError(t, err, "expire error")
	assert.Equal(t, time.Minute, m.DB(4).TTL("PORT|Ethernet0"), "wrong TTL")

	n, err := c.Publish(ctx, "CONFIG_DB", "test-channel", "hello")
	require.NoError(t, err, "publish error")
	assert.Equal(t, int64(0), n, "unexpected subscriber")
}
