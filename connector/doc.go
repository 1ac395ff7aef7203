// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2020 SONiC Project
// Use of this source code is governed by an Apache-2.0
// license that can be found in the LICENSE file.

// Package connector - resilient access to the switch-state Redis
// databases
//
// A Connector owns at most one live Redis client per logical database
// name together with an optional keyspace-notification subscription.
// Primitive hash reads are wrapped in a retry protocol:
//
//   - transient connection failures close the client, wait a fixed
//     backoff and reconnect, indefinitely
//   - server response errors are never retried
//   - missing data either returns an absent result immediately or,
//     for blocking calls, waits on keyspace notifications bounded by
//     a maximum overall wait
//
// The store is assumed to be a local, unauthenticated Redis reachable
// over TCP or a unix socket.
package connector
