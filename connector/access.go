// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2020 SONiC Project
// Use of this source code is governed by an Apache-2.0
// license that can be found in the LICENSE file.

package connector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sonic-net/go-swsssdk/fault"
)

// repeated access failures imply the database itself is unhealthy:
// escalate log severity past the error threshold, and drop back to
// warnings past the suppression threshold to avoid flooding
const (
	attemptErrorThreshold = 10
	attemptSuppression    = attemptErrorThreshold + 5
)

// a single attempt against the database
//
// returns an UnavailableDataError class error when the requested data
// is not present
type attemptFunc func(client *redis.Client) error

// executeWithRetry - run one attempt function under the retry policy
//
//	success              → close any notification channel and return
//	schema error         → never retried, surfaced immediately
//	data unavailable     → non-blocking: surfaced to the caller
//	                       blocking: subscribe to keyspace events and
//	                       wait, bounded by MaximumDataWait
//	connection error     → close, back off, reconnect, retry forever
//
// ctx is the only way to bound the total time across reconnects
func (c *Connector) executeWithRetry(ctx context.Context, dbName string, op string, blocking bool, await string, f attemptFunc) error {
	attempts := 0

	for {
		if err := ctx.Err(); nil != err {
			return err
		}

		client, err := c.Client(dbName)
		if nil != err {
			return err
		}

		err = f(client)
		if nil == err {
			c.unsubscribeNotification(dbName)
			return nil
		}

		switch {
		case fault.IsErrUnavailableData(err):
			if !blocking {
				return err
			}
			c.log.Warnf("%s", err)
			if nil == c.notification(dbName) {
				// subscribe first, then retry immediately to close
				// the race between the failed read and a change that
				// arrives while unsubscribed
				if serr := c.subscribeNotification(ctx, dbName); nil != serr {
					c.log.Warnf("keyspace subscribe on db: %q failed: %s", dbName, serr)
					if cerr := c.recoverConnection(ctx, dbName); nil != cerr {
						return cerr
					}
				}
				continue
			}
			if c.waitForNotification(ctx, dbName, await) {
				continue
			}
			c.unsubscribeNotification(dbName)
			return err

		case isResponseError(err):
			// something is fundamentally wrong with the request
			// itself; retrying cannot pass unless the schema changes
			c.log.Errorf("bad DB request [%s:%s]: %s", dbName, op, err)
			return fault.SchemaError(fmt.Sprintf("bad DB request [%s:%s]: %s", dbName, op, err))

		default:
			attempts += 1
			msg := fmt.Sprintf("DB access failure by [%s:%s]: %s", dbName, op, err)
			if attemptErrorThreshold < attempts && attempts < attemptSuppression {
				c.log.Error(msg)
			} else {
				c.log.Warn(msg)
			}
			if cerr := c.recoverConnection(ctx, dbName); nil != cerr {
				return cerr
			}
		}
	}
}

// wait for a keyspace notification for the awaited data
//
// two timeouts are at work: the per-message notification timeout and
// the overall maximum data wait.  A keyevent message carries the
// changed key as its payload while a keyspace message carries the
// event name, so the awaited token is the hash key for single-hash
// reads and the event name for key enumeration.
func (c *Connector) waitForNotification(ctx context.Context, dbName string, await string) bool {
	pubsub := c.notification(dbName)
	if nil == pubsub {
		return false
	}

	c.log.Debugf("listening on pub-sub channel of db: %q", dbName)
	deadline := time.Now().Add(c.cfg.MaximumDataWait)

	for time.Now().Before(deadline) {
		if nil != ctx.Err() {
			return false
		}

		m, err := pubsub.ReceiveTimeout(ctx, c.cfg.NotificationTimeout)
		if nil != err {
			if isTimeout(err) {
				continue
			}
			c.log.Warnf("keyspace channel of db: %q failed: %s", dbName, err)
			return false
		}

		msg, ok := m.(*redis.Message)
		if !ok {
			// subscription confirmations and pings carry no data
			continue
		}
		if msg.Payload == await {
			c.log.Infof("%q acquired via pub-sub on db: %q", await, dbName)
			// settling period before re-reading
			if nil != sleepContext(ctx, c.cfg.DataRetrievalWait) {
				return false
			}
			return true
		}
	}

	c.log.Warnf("no notification for %q from db: %q received before timeout", await, dbName)
	return false
}

// close the failed connection, back off and reconnect persistently
func (c *Connector) recoverConnection(ctx context.Context, dbName string) error {
	c.log.Warn("could not connect to Redis - waiting before trying again")
	c.Close(dbName)
	if err := sleepContext(ctx, c.cfg.ConnectRetryWait); nil != err {
		return err
	}
	return c.Connect(ctx, dbName, true)
}

// a server response error as opposed to a transport failure
func isResponseError(err error) bool {
	if errors.Is(err, redis.Nil) {
		return false
	}
	var responseError redis.Error
	return errors.As(err, &responseError)
}

// receive timeout as reported by the pub-sub channel
func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Keys - all keys of a database matching a glob pattern
//
// an empty database returns nil with no error when blocking is false,
// otherwise the bounded wait applies; the awaited token is the "hset"
// event since any hash write may populate an empty database
func (c *Connector) Keys(ctx context.Context, dbName string, pattern string, blocking bool) ([]string, error) {
	if "" == pattern {
		pattern = "*"
	}

	var keys []string
	err := c.executeWithRetry(ctx, dbName, "keys", blocking, "hset", func(client *redis.Client) error {
		result, err := client.Keys(ctx, pattern).Result()
		if nil != err {
			return err
		}
		if 0 == len(result) {
			return fault.UnavailableDataError(fmt.Sprintf("db %q is empty", dbName))
		}
		keys = result
		return nil
	})
	if nil != err {
		if !blocking && fault.IsErrUnavailableData(err) {
			return nil, nil
		}
		return nil, err
	}
	return keys, nil
}

// GetField - one field of a hash
//
// ok is false when the hash or field is absent; the literal value
// "None" reads back as absent since the store cannot represent a
// null value
func (c *Connector) GetField(ctx context.Context, dbName string, hash string, field string, blocking bool) (string, bool, error) {
	var value string
	err := c.executeWithRetry(ctx, dbName, "get", blocking, hash, func(client *redis.Client) error {
		result, err := client.HGet(ctx, hash, field).Result()
		if errors.Is(err, redis.Nil) || (nil == err && "" == result) {
			return fault.UnavailableDataError(fmt.Sprintf("key %q field %q unavailable in db %q", hash, field, dbName))
		}
		if nil != err {
			return err
		}
		value = result
		return nil
	})
	if nil != err {
		if !blocking && fault.IsErrUnavailableData(err) {
			return "", false, nil
		}
		return "", false, err
	}
	if "None" == value {
		return "", false, nil
	}
	return value, true, nil
}

// GetAll - the whole field map of a hash
//
// ok is false when the hash does not exist
func (c *Connector) GetAll(ctx context.Context, dbName string, hash string, blocking bool) (map[string]string, bool, error) {
	var fields map[string]string
	err := c.executeWithRetry(ctx, dbName, "get_all", blocking, hash, func(client *redis.Client) error {
		result, err := client.HGetAll(ctx, hash).Result()
		if nil != err {
			return err
		}
		if 0 == len(result) {
			return fault.UnavailableDataError(fmt.Sprintf("key %q unavailable in db %q", hash, dbName))
		}
		fields = result
		return nil
	})
	if nil != err {
		if !blocking && fault.IsErrUnavailableData(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return fields, true, nil
}

// SetField - set one field of a hash
//
// returns the number of fields created (zero for an overwrite)
func (c *Connector) SetField(ctx context.Context, dbName string, hash string, field string, value string, blocking bool) (int64, error) {
	var created int64
	err := c.executeWithRetry(ctx, dbName, "set", blocking, hash, func(client *redis.Client) error {
		result, err := client.HSet(ctx, hash, field, value).Result()
		if nil != err {
			return err
		}
		created = result
		return nil
	})
	return created, err
}

// Remove - delete a whole key
//
// returns the number of keys removed
func (c *Connector) Remove(ctx context.Context, dbName string, key string, blocking bool) (int64, error) {
	var removed int64
	err := c.executeWithRetry(ctx, dbName, "delete", blocking, key, func(client *redis.Client) error {
		result, err := client.Del(ctx, key).Result()
		if nil != err {
			return err
		}
		removed = result
		return nil
	})
	return removed, err
}

// RemoveByPattern - delete every key matching a glob pattern
func (c *Connector) RemoveByPattern(ctx context.Context, dbName string, pattern string, blocking bool) error {
	return c.executeWithRetry(ctx, dbName, "delete_all_by_pattern", blocking, pattern, func(client *redis.Client) error {
		keys, err := client.Keys(ctx, pattern).Result()
		if nil != err {
			return err
		}
		for _, key := range keys {
			if err := client.Del(ctx, key).Err(); nil != err {
				return err
			}
		}
		return nil
	})
}

// Exists - existence check for a key; never retried
func (c *Connector) Exists(ctx context.Context, dbName string, key string) (bool, error) {
	client, err := c.Client(dbName)
	if nil != err {
		return false, err
	}
	n, err := client.Exists(ctx, key).Result()
	if nil != err {
		return false, err
	}
	return n > 0, nil
}

// Expire - set a timeout on a key; never retried
func (c *Connector) Expire(ctx context.Context, dbName string, key string, timeout time.Duration) error {
	client, err := c.Client(dbName)
	if nil != err {
		return err
	}
	return client.Expire(ctx, key, timeout).Err()
}

// Publish - publish a message on a channel; never retried
//
// returns the number of subscribers that received the message
func (c *Connector) Publish(ctx context.Context, dbName string, channel string, message string) (int64, error) {
	client, err := c.Client(dbName)
	if nil != err {
		return 0, err
	}
	return client.Publish(ctx, channel, message).Result()
}
