// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2020 SONiC Project
// Use of this source code is governed by an Apache-2.0
// license that can be found in the LICENSE file.

// Package portutil - bridge/port mapping helpers
//
// translates between interface names, numeric interface indices and
// the object identifiers used by the switch abstraction layer, reading
// the mapping tables from COUNTERS_DB and ASIC_DB
package portutil
