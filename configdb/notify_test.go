// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2020 SONiC Project
// Use of this source code is governed by an Apache-2.0
// license that can be found in the LICENSE file.

package configdb_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonic-net/go-swsssdk/codec"
	"github.com/sonic-net/go-swsssdk/configdb"
	"github.com/sonic-net/go-swsssdk/fault"
)

// one observed change event
type change struct {
	table string
	key   codec.Key
	row   codec.Row
	kind  configdb.ChangeKind
}

// collect handler callbacks onto a channel for assertion
func collector(events chan<- change) configdb.HandlerFunc {
	return func(table string, key codec.Key, row codec.Row, kind configdb.ChangeKind) {
		events <- change{table: table, key: key, row: row, kind: kind}
	}
}

func waitChange(t *testing.T, events <-chan change) change {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no change event received")
		return change{}
	}
}

func TestChangeDispatch(t *testing.T) {
	m, store := setupStore(t)
	ctx := context.Background()

	events := make(chan change, 16)
	store.Subscribe("PORT", collector(events))

	require.NoError(t, store.StartListening(ctx), "listen error")
	defer store.StopListening()

	// miniredis generates no keyspace events; publish them the way
	// Redis would
	m.DB(4).HSet("PORT|Ethernet0", "admin_status", "up")
	m.Publish("__keyspace@4__:PORT|Ethernet0", "hset")

	ev := waitChange(t, events)
	assert.Equal(t, "PORT", ev.table, "wrong table")
	assert.Equal(t, codec.Key{"Ethernet0"}, ev.key, "wrong key")
	assert.Equal(t, codec.Row{"admin_status": "up"}, ev.row, "wrong row")
	assert.Equal(t, configdb.ChangeSet, ev.kind, "wrong kind")

	m.DB(4).Del("PORT|Ethernet0")
	m.Publish("__keyspace@4__:PORT|Ethernet0", "del")

	ev = waitChange(t, events)
	assert.Equal(t, configdb.ChangeDelete, ev.kind, "wrong kind")
	assert.Empty(t, ev.row, "deleted entry carried a row")
}

// events for unwatched tables and malformed channels are dropped
func TestChangeDispatchFiltering(t *testing.T) {
	m, store := setupStore(t)
	ctx := context.Background()

	events := make(chan change, 16)
	store.Subscribe("PORT", collector(events))

	require.NoError(t, store.StartListening(ctx), "listen error")
	defer store.StopListening()

	m.DB(4).HSet("VLAN|Vlan100", "vlanid", "100")
	m.Publish("__keyspace@4__:VLAN|Vlan100", "hset")

	// a key without a separator is not a table entry
	m.Publish("__keyspace@4__:"+configdb.InitIndicator, "set")

	m.DB(4).HSet("PORT|Ethernet0", "mtu", "9100")
	m.Publish("__keyspace@4__:PORT|Ethernet0", "hset")

	ev := waitChange(t, events)
	assert.Equal(t, "PORT", ev.table, "event for unwatched table leaked")
	assert.Equal(t, codec.Key{"Ethernet0"}, ev.key, "wrong key")

	select {
	case ev := <-events:
		t.Fatalf("unexpected extra event: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubscribeCancel(t *testing.T) {
	m, store := setupStore(t)
	ctx := context.Background()

	first := make(chan change, 16)
	second := make(chan change, 16)
	sub := store.Subscribe("PORT", collector(first))
	store.Subscribe("PORT", collector(second))

	require.NoError(t, store.StartListening(ctx), "listen error")
	defer store.StopListening()

	publish := func() {
		m.DB(4).HSet("PORT|Ethernet0", "admin_status", "up")
		m.Publish("__keyspace@4__:PORT|Ethernet0", "hset")
	}

	// both handlers watch the same table
	publish()
	waitChange(t, first)
	waitChange(t, second)

	sub.Cancel()
	publish()
	waitChange(t, second)
	select {
	case <-first:
		t.Fatal("cancelled handler still fired")
	case <-time.After(100 * time.Millisecond):
	}

	// unsubscribe removes the remaining handler too
	store.Unsubscribe("PORT")
	publish()
	select {
	case <-second:
		t.Fatal("unsubscribed handler still fired")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStartListeningTwice(t *testing.T) {
	_, store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.StartListening(ctx), "listen error")
	defer store.StopListening()

	err := store.StartListening(ctx)
	assert.True(t, fault.IsErrProcess(err), "wrong error class: %v", err)
}

func TestStopListeningIdempotent(t *testing.T) {
	_, store := setupStore(t)
	ctx := context.Background()

	// stop before start is a silent no-op
	store.StopListening()

	require.NoError(t, store.StartListening(ctx), "listen error")
	store.StopListening()
	store.StopListening()

	// the loop can be restarted after a stop
	require.NoError(t, store.StartListening(ctx), "restart error")
	store.StopListening()
}

func TestChangeKindString(t *testing.T) {
	assert.Equal(t, "set", configdb.ChangeSet.String(), "wrong string")
	assert.Equal(t, "delete", configdb.ChangeDelete.String(), "wrong string")
	assert.Equal(t, "ChangeKind(7)", configdb.ChangeKind(7).String(), "wrong string")
}
