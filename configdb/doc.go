// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2020 SONiC Project
// Use of this source code is governed by an Apache-2.0
// license that can be found in the LICENSE file.

// Package configdb - typed table access to the switch configuration
// database
//
// A Store maps tables of keyed rows with typed columns onto the flat
// string hashes of the state database.  Two strategies share one
// external contract: the plain Store issues one command per key, the
// PipeStore enumerates with SCAN cursors and batches commands through
// a pipeline for large snapshots.
//
// A Store also dispatches keyspace change notifications to handlers
// registered per table:
//
//	store, _ := configdb.NewStore(conn, "CONFIG_DB")
//	store.Connect(ctx, true, false)
//	store.Subscribe("BGP_NEIGHBOR", func(table string, key codec.Key, row codec.Row, kind configdb.ChangeKind) {
//		// ...
//	})
//	store.StartListening(ctx)
package configdb
