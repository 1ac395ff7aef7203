// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2020 SONiC Project
// Use of this source code is governed by an Apache-2.0
// license that can be found in the LICENSE file.

package connector

import (
	"encoding/json"
	"os"
	"time"

	"github.com/sonic-net/go-swsssdk/fault"
)

// connection defaults
//
// the switch runs an unprotected Redis on loopback, so no
// authentication parameters exist
const (
	DefaultRedisHost      = "127.0.0.1"
	DefaultRedisPort      = 6379
	DefaultUnixSocketPath = "/var/run/redis/redis.sock"
)

// retry and notification timing defaults
const (
	// wait before attempting to reconnect
	DefaultConnectRetryWait = 10 * time.Second

	// settling period after a notification before re-reading
	DefaultDataRetrievalWait = 3 * time.Second

	// wait for any single pub-sub message
	DefaultNotificationTimeout = 10 * time.Second

	// overall cap on waiting for one piece of missing data
	DefaultMaximumDataWait = 60 * time.Second
)

// DefaultKeyspaceEvents - keyspace event classes enabled on connect
//
// K - keyspace events, published with __keyspace@<db>__ prefix
// E - keyevent events, published with __keyevent@<db>__ prefix
// A - alias for all event classes
//
// set on every connect since notifications are disabled in a stock
// Redis configuration
const DefaultKeyspaceEvents = "KEA"

// DefaultScanBatchSize - keys per SCAN step in the pipelined strategy
const DefaultScanBatchSize = 30

// Database - per-database connection parameters
type Database struct {
	ID        int    `json:"db"`
	Separator string `json:"separator"`
}

// Config - explicit configuration for a Connector
//
// a zero value is completed with the defaults above by New
type Config struct {
	RedisHost      string
	RedisPort      int
	UnixSocketPath string // used instead of TCP when set

	Databases map[string]Database

	ConnectRetryWait    time.Duration
	DataRetrievalWait   time.Duration
	NotificationTimeout time.Duration
	MaximumDataWait     time.Duration

	KeyspaceEvents string // empty leaves the Redis configuration untouched
	ScanBatchSize  int64
}

// DefaultDatabases - the standard switch database map
func DefaultDatabases() map[string]Database {
	return map[string]Database{
		"APPL_DB":         {ID: 0, Separator: ":"},
		"ASIC_DB":         {ID: 1, Separator: ":"},
		"COUNTERS_DB":     {ID: 2, Separator: ":"},
		"LOGLEVEL_DB":     {ID: 3, Separator: ":"},
		"CONFIG_DB":       {ID: 4, Separator: "|"},
		"PFC_WD_DB":       {ID: 5, Separator: ":"},
		"FLEX_COUNTER_DB": {ID: 5, Separator: ":"},
		"STATE_DB":        {ID: 6, Separator: "|"},
	}
}

// DefaultConfig - configuration matching the stock switch setup
func DefaultConfig() Config {
	return Config{
		RedisHost:           DefaultRedisHost,
		RedisPort:           DefaultRedisPort,
		Databases:           DefaultDatabases(),
		ConnectRetryWait:    DefaultConnectRetryWait,
		DataRetrievalWait:   DefaultDataRetrievalWait,
		NotificationTimeout: DefaultNotificationTimeout,
		MaximumDataWait:     DefaultMaximumDataWait,
		KeyspaceEvents:      DefaultKeyspaceEvents,
		ScanBatchSize:       DefaultScanBatchSize,
	}
}

// fill in zero fields with their defaults
func (cfg *Config) applyDefaults() {
	if "" == cfg.RedisHost && "" == cfg.UnixSocketPath {
		cfg.RedisHost = DefaultRedisHost
	}
	if 0 == cfg.RedisPort {
		cfg.RedisPort = DefaultRedisPort
	}
	if nil == cfg.Databases {
		cfg.Databases = DefaultDatabases()
	}
	if 0 == cfg.ConnectRetryWait {
		cfg.ConnectRetryWait = DefaultConnectRetryWait
	}
	if 0 == cfg.DataRetrievalWait {
		cfg.DataRetrievalWait = DefaultDataRetrievalWait
	}
	if 0 == cfg.NotificationTimeout {
		cfg.NotificationTimeout = DefaultNotificationTimeout
	}
	if 0 == cfg.MaximumDataWait {
		cfg.MaximumDataWait = DefaultMaximumDataWait
	}
	if 0 == cfg.ScanBatchSize {
		cfg.ScanBatchSize = DefaultScanBatchSize
	}
}

// databaseMapFile - on-disk database map layout
//
// matches the database.json shipped on the switch image
type databaseMapFile struct {
	DatabaseMap map[string]Database `json:"db_map"`
}

// LoadDatabaseMap - read a database map from a JSON file
//
// layout: {"db_map": {"CONFIG_DB": {"db": 4, "separator": "|"}, ...}}
func LoadDatabaseMap(path string) (map[string]Database, error) {
	data, err := os.ReadFile(path)
	if nil != err {
		return nil, err
	}

	var file databaseMapFile
	if err := json.Unmarshal(data, &file); nil != err {
		return nil, err
	}
	if 0 == len(file.DatabaseMap) {
		return nil, fault.MissingDatabaseConfig
	}

	// duplicate database ids with different separators are allowed
	// (aliased databases share one Redis index), but every entry
	// needs a separator
	for _, db := range file.DatabaseMap {
		if "" == db.Separator {
			return nil, fault.InvalidSeparator
		}
		if db.ID < 0 {
			return nil, fault.InvalidDatabaseID
		}
	}
	return file.DatabaseMap, nil
}
