// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2020 SONiC Project
// Use of this source code is governed by an Apache-2.0
// license that can be found in the LICENSE file.

package configdb

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/sonic-net/go-swsssdk/background"
	"github.com/sonic-net/go-swsssdk/codec"
	"github.com/sonic-net/go-swsssdk/fault"
)

// ChangeKind - best-effort classification of a change event
//
// the classification re-checks existence after the event, so a key
// re-created or re-deleted in between is misreported; treat the kind
// as advisory
type ChangeKind int

const (
	ChangeSet ChangeKind = iota
	ChangeDelete
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeSet:
		return "set"
	case ChangeDelete:
		return "delete"
	default:
		return fmt.Sprintf("ChangeKind(%d)", int(k))
	}
}

// HandlerFunc - callback for a change to a watched table
type HandlerFunc func(table string, key codec.Key, row codec.Row, kind ChangeKind)

// Subscription - one registered handler
type Subscription struct {
	store   *Store
	table   string
	handler HandlerFunc
}

// Cancel - remove this handler; safe while the dispatch loop runs
func (sub *Subscription) Cancel() {
	if nil == sub {
		return
	}
	sub.store.removeSubscription(sub)
}

// Subscribe - register a handler for changes to one table
//
// several handlers may watch the same table; registration is safe to
// call concurrently with an active dispatch loop
func (s *Store) Subscribe(table string, handler HandlerFunc) *Subscription {
	sub := &Subscription{
		store:   s,
		table:   table,
		handler: handler,
	}
	s.handlersLock.Lock()
	s.handlers[table] = append(s.handlers[table], sub)
	s.handlersLock.Unlock()
	return sub
}

// Unsubscribe - remove every handler registered for a table
func (s *Store) Unsubscribe(table string) {
	s.handlersLock.Lock()
	delete(s.handlers, table)
	s.handlersLock.Unlock()
}

func (s *Store) removeSubscription(sub *Subscription) {
	s.handlersLock.Lock()
	defer s.handlersLock.Unlock()

	subs := s.handlers[sub.table]
	for i, item := range subs {
		if item == sub {
			s.handlers[sub.table] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if 0 == len(s.handlers[sub.table]) {
		delete(s.handlers, sub.table)
	}
}

// snapshot of the handlers watching one table
func (s *Store) subscribers(table string) []HandlerFunc {
	s.handlersLock.RLock()
	defer s.handlersLock.RUnlock()

	subs := s.handlers[table]
	if 0 == len(subs) {
		return nil
	}
	handlers := make([]HandlerFunc, len(subs))
	for i, sub := range subs {
		handlers[i] = sub.handler
	}
	return handlers
}

// StartListening - start the change dispatch loop
//
// subscribes to the keyspace events of the whole database and fires
// registered handlers until StopListening is called
func (s *Store) StartListening(ctx context.Context) error {
	client, err := s.conn.Client(s.dbName)
	if nil != err {
		return err
	}
	id, err := s.conn.DBID(s.dbName)
	if nil != err {
		return err
	}

	s.listenLock.Lock()
	defer s.listenLock.Unlock()

	if nil != s.background {
		return fault.AlreadyListening
	}

	pubsub := client.PSubscribe(ctx, keyspaceChannel(id, "*"))

	// consume the subscription confirmation so that an event published
	// right after this call returns cannot race the server-side
	// subscribe
	timeout := s.conn.Configuration().NotificationTimeout
	if _, err := pubsub.ReceiveTimeout(ctx, timeout); nil != err {
		_ = pubsub.Close()
		return err
	}
	s.pubsub = pubsub

	s.log.Info("starting change dispatch…")
	processes := background.Processes{
		&dispatcher{store: s},
	}
	s.background = background.Start(processes, s.log)
	return nil
}

// StopListening - stop the dispatch loop; idempotent
func (s *Store) StopListening() {
	s.listenLock.Lock()
	defer s.listenLock.Unlock()

	if nil == s.background {
		return
	}

	// closing the channel unblocks the dispatch loop
	_ = s.pubsub.Close()
	s.background.Stop()
	s.background = nil
	s.pubsub = nil
	s.log.Info("change dispatch stopped")
}

// the long-running dispatch loop
type dispatcher struct {
	store *Store
}

func (d *dispatcher) Run(args interface{}, shutdown <-chan struct{}) {
	s := d.store
	ch := s.pubsub.Channel()

loop:
	for {
		select {
		case <-shutdown:
			break loop
		case msg, ok := <-ch:
			if !ok {
				break loop
			}
			s.dispatch(context.Background(), msg)
		}
	}
}

// decode one keyspace event and fire the handlers for its table
func (s *Store) dispatch(ctx context.Context, msg *redis.Message) {
	// channel layout: __keyspace@<id>__:<key>
	parts := strings.SplitN(msg.Channel, ":", 2)
	if 2 != len(parts) {
		return
	}
	hash := parts[1]

	table, rowKey, ok := s.codec.SplitHash(hash)
	if !ok {
		// not a table entry
		return
	}

	handlers := s.subscribers(table)
	if nil == handlers {
		return
	}

	client, err := s.conn.Client(s.dbName)
	if nil != err {
		return
	}
	raw, err := client.HGetAll(ctx, hash).Result()
	if nil != err {
		s.log.Warnf("re-read of %q failed: %s", hash, err)
		return
	}

	// existence recheck: racy when the key flaps between the event
	// and the re-read
	kind := ChangeSet
	if 0 == len(raw) {
		kind = ChangeDelete
	}

	key := s.codec.DeserializeKey(rowKey)
	row := s.codec.RawToTyped(raw)
	for _, handler := range handlers {
		handler(table, key, row, kind)
	}
}

// channel name carrying keyspace events for one key (or pattern)
func keyspaceChannel(id int, key string) string {
	return fmt.Sprintf("__keyspace@%d__:%s", id, key)
}

// receive timeout as reported by the pub-sub channel
func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
