// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2020 SONiC Project
// Use of this source code is governed by an Apache-2.0
// license that can be found in the LICENSE file.

package configdb

import (
	"context"
	"errors"
	"sync"

	"github.com/bitmark-inc/logger"
	"github.com/redis/go-redis/v9"

	"github.com/sonic-net/go-swsssdk/background"
	"github.com/sonic-net/go-swsssdk/codec"
	"github.com/sonic-net/go-swsssdk/connector"
)

// InitIndicator - marker key written once the configuration database
// has been fully populated after boot
const InitIndicator = "CONFIG_DB_INITIALIZED"

// DatabaseName - the conventional configuration database
const DatabaseName = "CONFIG_DB"

// Store - typed table operations over one database connection
//
// table operations issue one store command per key; see PipeStore for
// the pipelined strategy
type Store struct {
	conn   *connector.Connector
	dbName string
	codec  codec.Codec
	log    *logger.L

	handlersLock sync.RWMutex
	handlers     map[string][]*Subscription

	listenLock sync.Mutex
	pubsub     *redis.PubSub
	background *background.T
}

// NewStore - create a store over an existing connector
//
// the database name must appear in the connector's database map
func NewStore(conn *connector.Connector, dbName string) (*Store, error) {
	separator, err := conn.Separator(dbName)
	if nil != err {
		return nil, err
	}
	return &Store{
		conn:     conn,
		dbName:   dbName,
		codec:    codec.New(separator),
		log:      logger.New("configdb"),
		handlers: make(map[string][]*Subscription),
	}, nil
}

// Codec - the key/value codec for this database
func (s *Store) Codec() codec.Codec {
	return s.codec
}

// DatabaseName - the logical database this store operates on
func (s *Store) DatabaseName() string {
	return s.dbName
}

// Connect - connect the underlying database
//
// with waitForInit true the call waits until the initialisation
// marker appears, watching its keyspace notifications; cancel ctx to
// bound the wait
func (s *Store) Connect(ctx context.Context, waitForInit bool, retry bool) error {
	if err := s.conn.Connect(ctx, s.dbName, retry); nil != err {
		return err
	}
	if waitForInit {
		return s.waitForInit(ctx)
	}
	return nil
}

// Close - close the underlying database connection
func (s *Store) Close() {
	s.StopListening()
	s.conn.Close(s.dbName)
}

// block until the initialisation marker key is present
func (s *Store) waitForInit(ctx context.Context) error {
	client, err := s.conn.Client(s.dbName)
	if nil != err {
		return err
	}

	initialised, err := s.initialised(ctx, client)
	if nil != err || initialised {
		return err
	}

	id, err := s.conn.DBID(s.dbName)
	if nil != err {
		return err
	}

	pattern := keyspaceChannel(id, InitIndicator)
	pubsub := client.PSubscribe(ctx, pattern)
	defer pubsub.Close()

	s.log.Infof("waiting for %s", InitIndicator)

	timeout := s.conn.Configuration().NotificationTimeout
	for {
		if err := ctx.Err(); nil != err {
			return err
		}

		m, err := pubsub.ReceiveTimeout(ctx, timeout)
		if nil != err {
			if isTimeout(err) {
				// re-check in case the marker was set while the
				// subscription was still being established
				initialised, err := s.initialised(ctx, client)
				if nil != err || initialised {
					return err
				}
				continue
			}
			return err
		}

		if _, ok := m.(*redis.Message); !ok {
			continue
		}
		initialised, err := s.initialised(ctx, client)
		if nil != err {
			return err
		}
		if initialised {
			return nil
		}
	}
}

func (s *Store) initialised(ctx context.Context, client *redis.Client) (bool, error) {
	value, err := client.Get(ctx, InitIndicator).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if nil != err {
		return false, err
	}
	return "" != value, nil
}

// GetEntry - read one table entry
//
// an absent entry yields an empty row, not an error
func (s *Store) GetEntry(ctx context.Context, table string, key codec.Key) (codec.Row, error) {
	client, err := s.conn.Client(s.dbName)
	if nil != err {
		return nil, err
	}
	raw, err := client.HGetAll(ctx, s.codec.HashKey(table, key)).Result()
	if nil != err {
		return nil, err
	}
	return s.codec.RawToTyped(raw), nil
}

// SetEntry - write one table entry, removing unmentioned columns
//
// a nil row deletes the entry; an empty row creates an entry with no
// columns.  The read-diff-delete of stale columns is not atomic with
// respect to concurrent writers: per-field last-writer-wins.
func (s *Store) SetEntry(ctx context.Context, table string, key codec.Key, row codec.Row) error {
	client, err := s.conn.Client(s.dbName)
	if nil != err {
		return err
	}

	hash := s.codec.HashKey(table, key)
	if nil == row {
		return client.Del(ctx, hash).Err()
	}

	original, err := s.GetEntry(ctx, table, key)
	if nil != err {
		return err
	}

	if err := client.HSet(ctx, hash, s.codec.RowToRaw(row)).Err(); nil != err {
		return err
	}

	// remove columns present before but unmentioned now
	for column, value := range original {
		if _, ok := row[column]; ok {
			continue
		}
		rawColumn := column
		if _, isList := value.([]string); isList {
			rawColumn += "@"
		}
		if err := client.HDel(ctx, hash, rawColumn).Err(); nil != err {
			return err
		}
	}
	return nil
}

// ModEntry - upsert one table entry, keeping unmentioned columns
//
// a nil row still deletes the whole entry
func (s *Store) ModEntry(ctx context.Context, table string, key codec.Key, row codec.Row) error {
	client, err := s.conn.Client(s.dbName)
	if nil != err {
		return err
	}
	return s.modEntryClient(ctx, client, table, s.codec.SerializeKey(key), row)
}

// upsert with an already serialized row key
func (s *Store) modEntryClient(ctx context.Context, client *redis.Client, table string, serializedKey string, row codec.Row) error {
	hash := s.codec.HashKey(table, codec.Key{serializedKey})
	if nil == row {
		return client.Del(ctx, hash).Err()
	}
	return client.HSet(ctx, hash, s.codec.RowToRaw(row)).Err()
}

// GetKeys - all row keys of one table
//
// with split true the table prefix is stripped before
// deserialization; keys without a separator are skipped
func (s *Store) GetKeys(ctx context.Context, table string, split bool) ([]codec.Key, error) {
	client, err := s.conn.Client(s.dbName)
	if nil != err {
		return nil, err
	}
	hashes, err := client.Keys(ctx, s.codec.TablePattern(table)).Result()
	if nil != err {
		return nil, err
	}

	keys := make([]codec.Key, 0, len(hashes))
	for _, hash := range hashes {
		if split {
			_, rowKey, ok := s.codec.SplitHash(hash)
			if !ok {
				continue
			}
			keys = append(keys, s.codec.DeserializeKey(rowKey))
		} else {
			keys = append(keys, s.codec.DeserializeKey(hash))
		}
	}
	return keys, nil
}

// GetTable - read a whole table
//
// the result maps serialized row keys to rows; multi-part keys are
// recovered with the codec.  Keys without a separator are skipped,
// not fatal.
func (s *Store) GetTable(ctx context.Context, table string) (codec.Table, error) {
	client, err := s.conn.Client(s.dbName)
	if nil != err {
		return nil, err
	}
	hashes, err := client.Keys(ctx, s.codec.TablePattern(table)).Result()
	if nil != err {
		return nil, err
	}

	data := make(codec.Table)
	for _, hash := range hashes {
		_, rowKey, ok := s.codec.SplitHash(hash)
		if !ok {
			continue
		}
		raw, err := client.HGetAll(ctx, hash).Result()
		if nil != err {
			return nil, err
		}
		data[rowKey] = s.codec.RawToTyped(raw)
	}
	return data, nil
}

// DeleteTable - delete every entry of one table
func (s *Store) DeleteTable(ctx context.Context, table string) error {
	client, err := s.conn.Client(s.dbName)
	if nil != err {
		return err
	}
	hashes, err := client.Keys(ctx, s.codec.TablePattern(table)).Result()
	if nil != err {
		return err
	}
	for _, hash := range hashes {
		if err := client.Del(ctx, hash).Err(); nil != err {
			return err
		}
	}
	return nil
}

// GetConfig - read the whole database as a snapshot
//
// keys without a separator (including the initialisation marker) are
// skipped
func (s *Store) GetConfig(ctx context.Context) (codec.Snapshot, error) {
	client, err := s.conn.Client(s.dbName)
	if nil != err {
		return nil, err
	}
	hashes, err := client.Keys(ctx, "*").Result()
	if nil != err {
		return nil, err
	}

	data := make(codec.Snapshot)
	for _, hash := range hashes {
		table, rowKey, ok := s.codec.SplitHash(hash)
		if !ok {
			continue
		}
		raw, err := client.HGetAll(ctx, hash).Result()
		if nil != err {
			return nil, err
		}
		if nil == data[table] {
			data[table] = make(codec.Table)
		}
		data[table][rowKey] = s.codec.RawToTyped(raw)
	}
	return data, nil
}

// ModConfig - write multiple tables into the database
//
// entries and columns not mentioned in the snapshot are kept; a nil
// table value deletes that whole table, a nil row deletes that entry
func (s *Store) ModConfig(ctx context.Context, data codec.Snapshot) error {
	client, err := s.conn.Client(s.dbName)
	if nil != err {
		return err
	}
	for table, tableData := range data {
		if nil == tableData {
			if err := s.DeleteTable(ctx, table); nil != err {
				return err
			}
			continue
		}
		for serializedKey, row := range tableData {
			if err := s.modEntryClient(ctx, client, table, serializedKey, row); nil != err {
				return err
			}
		}
	}
	return nil
}
