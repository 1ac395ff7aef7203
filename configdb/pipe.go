// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2020 SONiC Project
// Use of this source code is governed by an Apache-2.0
// license that can be found in the LICENSE file.

package configdb

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/sonic-net/go-swsssdk/codec"
	"github.com/sonic-net/go-swsssdk/connector"
)

// PipeStore - pipelined strategy for whole-snapshot operations
//
// external contract identical to Store: any sequence of ModConfig and
// GetConfig calls produces the same database state and snapshots as
// the plain strategy.  Enumeration uses cursor-based SCAN in fixed
// batches and batch commands travel through one pipeline to amortise
// round trips.
type PipeStore struct {
	*Store
	scanBatch int64
}

// NewPipeStore - create a pipelined store over an existing connector
func NewPipeStore(conn *connector.Connector, dbName string) (*PipeStore, error) {
	store, err := NewStore(conn, dbName)
	if nil != err {
		return nil, err
	}
	return &PipeStore{
		Store:     store,
		scanBatch: conn.Configuration().ScanBatchSize,
	}, nil
}

// queue deletion of one SCAN batch; returns the next cursor
//
// the pipeline is executed by the caller once everything is queued
func (p *PipeStore) deleteEntries(ctx context.Context, client *redis.Client, pipe redis.Pipeliner, pattern string, cursor uint64) (uint64, error) {
	keys, next, err := client.Scan(ctx, cursor, pattern, p.scanBatch).Result()
	if nil != err {
		return 0, err
	}
	for _, key := range keys {
		pipe.Del(ctx, key)
	}
	return next, nil
}

// queue deletion of a whole table
//
// scan-and-drain until the cursor returns to its zero sentinel
func (p *PipeStore) deleteTable(ctx context.Context, client *redis.Client, pipe redis.Pipeliner, table string) error {
	pattern := p.codec.TablePattern(table)
	cursor, err := p.deleteEntries(ctx, client, pipe, pattern, 0)
	if nil != err {
		return err
	}
	for 0 != cursor {
		cursor, err = p.deleteEntries(ctx, client, pipe, pattern, cursor)
		if nil != err {
			return err
		}
	}
	return nil
}

// queue an upsert of one entry
func (p *PipeStore) modEntry(ctx context.Context, pipe redis.Pipeliner, table string, serializedKey string, row codec.Row) {
	hash := p.codec.HashKey(table, codec.Key{serializedKey})
	if nil == row {
		pipe.Del(ctx, hash)
		return
	}
	pipe.HSet(ctx, hash, p.codec.RowToRaw(row))
}

// ModConfig - write multiple tables through one pipeline
//
// same contract as Store.ModConfig
func (p *PipeStore) ModConfig(ctx context.Context, data codec.Snapshot) error {
	client, err := p.conn.Client(p.dbName)
	if nil != err {
		return err
	}

	pipe := client.Pipeline()
	for table, tableData := range data {
		if nil == tableData {
			if err := p.deleteTable(ctx, client, pipe, table); nil != err {
				return err
			}
			continue
		}
		for serializedKey, row := range tableData {
			p.modEntry(ctx, pipe, table, serializedKey, row)
		}
	}
	_, err = pipe.Exec(ctx)
	return err
}

// read one SCAN batch into the snapshot; returns the next cursor
func (p *PipeStore) getConfigBatch(ctx context.Context, client *redis.Client, data codec.Snapshot, cursor uint64) (uint64, error) {
	keys, next, err := client.Scan(ctx, cursor, "*", p.scanBatch).Result()
	if nil != err {
		return 0, err
	}

	// the initialisation marker is not a table entry and would make
	// the pipelined HGETALL fail
	hashes := make([]string, 0, len(keys))
	for _, key := range keys {
		if InitIndicator == key {
			continue
		}
		hashes = append(hashes, key)
	}
	if 0 == len(hashes) {
		return next, nil
	}

	pipe := client.Pipeline()
	commands := make([]*redis.MapStringStringCmd, len(hashes))
	for i, hash := range hashes {
		commands[i] = pipe.HGetAll(ctx, hash)
	}
	if _, err := pipe.Exec(ctx); nil != err {
		return 0, err
	}

	for i, hash := range hashes {
		table, rowKey, ok := p.codec.SplitHash(hash)
		if !ok {
			continue
		}
		raw, err := commands[i].Result()
		if nil != err {
			return 0, err
		}
		if nil == data[table] {
			data[table] = make(codec.Table)
		}
		data[table][rowKey] = p.codec.RawToTyped(raw)
	}
	return next, nil
}

// GetConfig - read the whole database through pipelined batches
//
// same contract as Store.GetConfig
func (p *PipeStore) GetConfig(ctx context.Context) (codec.Snapshot, error) {
	client, err := p.conn.Client(p.dbName)
	if nil != err {
		return nil, err
	}

	data := make(codec.Snapshot)
	cursor, err := p.getConfigBatch(ctx, client, data, 0)
	if nil != err {
		return nil, err
	}
	for 0 != cursor {
		cursor, err = p.getConfigBatch(ctx, client, data, cursor)
		if nil != err {
			return nil, err
		}
	}
	return data, nil
}

// SetBulk - write several raw hashes through one pipeline
func (p *PipeStore) SetBulk(ctx context.Context, entries map[string]map[string]string) error {
	client, err := p.conn.Client(p.dbName)
	if nil != err {
		return err
	}
	pipe := client.Pipeline()
	for hash, fields := range entries {
		pipe.HSet(ctx, hash, fields)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// DelBulk - delete several keys through one pipeline
func (p *PipeStore) DelBulk(ctx context.Context, hashes []string) error {
	client, err := p.conn.Client(p.dbName)
	if nil != err {
		return err
	}
	pipe := client.Pipeline()
	for _, hash := range hashes {
		pipe.Del(ctx, hash)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// HDelBulk - delete several hash fields through one pipeline
func (p *PipeStore) HDelBulk(ctx context.Context, fields map[string][]string) error {
	client, err := p.conn.Client(p.dbName)
	if nil != err {
		return err
	}
	pipe := client.Pipeline()
	for hash, names := range fields {
		if 0 == len(names) {
			continue
		}
		pipe.HDel(ctx, hash, names...)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// GetAllBulk - read several raw hashes through one pipeline
//
// results are returned in the order of the requested hashes; a
// missing hash yields an empty map
func (p *PipeStore) GetAllBulk(ctx context.Context, hashes []string) ([]map[string]string, error) {
	client, err := p.conn.Client(p.dbName)
	if nil != err {
		return nil, err
	}

	pipe := client.Pipeline()
	commands := make([]*redis.MapStringStringCmd, len(hashes))
	for i, hash := range hashes {
		commands[i] = pipe.HGetAll(ctx, hash)
	}
	if _, err := pipe.Exec(ctx); nil != err {
		return nil, err
	}

	results := make([]map[string]string, len(hashes))
	for i, command := range commands {
		raw, err := command.Result()
		if nil != err {
			return nil, err
		}
		results[i] = raw
	}
	return results, nil
}
