// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2020 SONiC Project
// Use of this source code is governed by an Apache-2.0
// license that can be found in the LICENSE file.

package connector

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/bitmark-inc/logger"
	"github.com/redis/go-redis/v9"

	"github.com/sonic-net/go-swsssdk/fault"
)

// pub-sub pattern covering keyspace and keyevent notifications
const keyspacePattern = "__key*__:*"

// one live connection to a single logical database
type handle struct {
	id     int
	client *redis.Client
	pubsub *redis.PubSub // keyspace notification channel, nil when closed
}

// Connector - registry of database connections
//
// at most one live client per logical database name; safe for use
// from multiple goroutines
type Connector struct {
	sync.RWMutex
	cfg     Config
	log     *logger.L
	handles map[string]*handle
}

// New - create a connector for a given configuration
//
// zero fields of the configuration are filled with defaults
func New(cfg Config) *Connector {
	cfg.applyDefaults()
	return &Connector{
		cfg:     cfg,
		log:     logger.New("connector"),
		handles: make(map[string]*handle),
	}
}

// Configuration - the effective configuration
func (c *Connector) Configuration() Config {
	return c.cfg
}

// DBID - numeric Redis database index for a logical name
func (c *Connector) DBID(dbName string) (int, error) {
	db, ok := c.cfg.Databases[dbName]
	if !ok {
		return 0, fault.MissingDatabaseConfig
	}
	return db.ID, nil
}

// Separator - key separator for a logical name
func (c *Connector) Separator(dbName string) (string, error) {
	db, ok := c.cfg.Databases[dbName]
	if !ok {
		return "", fault.MissingDatabaseConfig
	}
	return db.Separator, nil
}

// Connect - open the connection for a logical database name
//
// with retry false a single attempt is made and a connection error
// returned on failure; with retry true the attempt is repeated with a
// fixed backoff until it succeeds or ctx is cancelled.  Connecting an
// already connected name is a no-op.
func (c *Connector) Connect(ctx context.Context, dbName string, retry bool) error {
	if !retry {
		return c.connectOnce(ctx, dbName)
	}

	for {
		err := c.connectOnce(ctx, dbName)
		if nil == err {
			return nil
		}
		if fault.IsErrNotFound(err) {
			// a missing map entry will not heal by retrying
			return err
		}
		c.log.Warnf("connecting to db: %q failed: %s  retry in: %s", dbName, err, c.cfg.ConnectRetryWait)
		c.Close(dbName)
		if err := sleepContext(ctx, c.cfg.ConnectRetryWait); nil != err {
			return err
		}
	}
}

// single connection attempt
func (c *Connector) connectOnce(ctx context.Context, dbName string) error {
	db, ok := c.cfg.Databases[dbName]
	if !ok {
		return fault.MissingDatabaseConfig
	}

	c.Lock()
	if _, ok := c.handles[dbName]; ok {
		c.Unlock()
		return nil
	}
	c.Unlock()

	client := redis.NewClient(c.options(db.ID))

	if err := client.Ping(ctx).Err(); nil != err {
		_ = client.Close()
		return fault.ConnectionError(fmt.Sprintf("cannot connect to db: %q: %s", dbName, err))
	}

	// notifications are off in a stock Redis configuration
	if "" != c.cfg.KeyspaceEvents {
		if err := client.ConfigSet(ctx, "notify-keyspace-events", c.cfg.KeyspaceEvents).Err(); nil != err {
			_ = client.Close()
			return fault.ConnectionError(fmt.Sprintf("cannot enable keyspace events on db: %q: %s", dbName, err))
		}
	}

	c.Lock()
	if _, ok := c.handles[dbName]; ok {
		// lost a connect race; keep the established connection
		c.Unlock()
		_ = client.Close()
		return nil
	}
	c.handles[dbName] = &handle{
		id:     db.ID,
		client: client,
	}
	c.Unlock()

	c.log.Debugf("connected to db: %q (%d)", dbName, db.ID)
	return nil
}

// client options for one database index
func (c *Connector) options(id int) *redis.Options {
	if "" != c.cfg.UnixSocketPath && "" == c.cfg.RedisHost {
		return &redis.Options{
			Network: "unix",
			Addr:    c.cfg.UnixSocketPath,
			DB:      id,
		}
	}
	return &redis.Options{
		Addr: net.JoinHostPort(c.cfg.RedisHost, fmt.Sprintf("%d", c.cfg.RedisPort)),
		DB:   id,
	}
}

// Close - release the client and any notification channel for a name
//
// closing an unconnected name is a no-op
func (c *Connector) Close(dbName string) {
	c.Lock()
	h, ok := c.handles[dbName]
	if ok {
		delete(c.handles, dbName)
	}
	c.Unlock()

	if !ok {
		return
	}
	if nil != h.pubsub {
		_ = h.pubsub.Close()
	}
	_ = h.client.Close()
	c.log.Debugf("closed db: %q", dbName)
}

// CloseAll - close every registered connection
func (c *Connector) CloseAll() {
	c.RLock()
	names := make([]string, 0, len(c.handles))
	for name := range c.handles {
		names = append(names, name)
	}
	c.RUnlock()

	for _, name := range names {
		c.Close(name)
	}
}

// Client - the raw Redis client for a connected name
//
// an unregistered name is a caller error, reported as a distinct
// missing-client condition rather than a transient absence
func (c *Connector) Client(dbName string) (*redis.Client, error) {
	c.RLock()
	h, ok := c.handles[dbName]
	c.RUnlock()
	if !ok {
		return nil, fault.MissingClientError(fmt.Sprintf("no client connected for db: %q", dbName))
	}
	return h.client, nil
}

// look up the full handle
func (c *Connector) handleFor(dbName string) (*handle, error) {
	c.RLock()
	h, ok := c.handles[dbName]
	c.RUnlock()
	if !ok {
		return nil, fault.MissingClientError(fmt.Sprintf("no client connected for db: %q", dbName))
	}
	return h, nil
}

// open the keyspace notification channel for a database
//
// the initial subscription confirmation is consumed so that a
// following read attempt cannot race the server-side subscribe
func (c *Connector) subscribeNotification(ctx context.Context, dbName string) error {
	h, err := c.handleFor(dbName)
	if nil != err {
		return err
	}
	if nil != c.notification(dbName) {
		return nil
	}

	c.log.Debug("subscribe to keyspace notification")
	pubsub := h.client.PSubscribe(ctx, keyspacePattern)
	if _, err := pubsub.ReceiveTimeout(ctx, c.cfg.NotificationTimeout); nil != err {
		_ = pubsub.Close()
		return err
	}

	c.Lock()
	if nil != h.pubsub {
		// lost a subscribe race; keep the established channel
		c.Unlock()
		_ = pubsub.Close()
		return nil
	}
	h.pubsub = pubsub
	c.Unlock()
	return nil
}

// close the keyspace notification channel, if any
func (c *Connector) unsubscribeNotification(dbName string) {
	c.Lock()
	h, ok := c.handles[dbName]
	var pubsub *redis.PubSub
	if ok && nil != h.pubsub {
		pubsub = h.pubsub
		h.pubsub = nil
	}
	c.Unlock()

	if nil != pubsub {
		c.log.Debug("unsubscribe from keyspace notification")
		_ = pubsub.Close()
	}
}

// current notification channel or nil
func (c *Connector) notification(dbName string) *redis.PubSub {
	c.RLock()
	defer c.RUnlock()
	h, ok := c.handles[dbName]
	if !ok {
		return nil
	}
	return h.pubsub
}

// sleep that honours cancellation
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
