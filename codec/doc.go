// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2020 SONiC Project
// Use of this source code is governed by an Apache-2.0
// license that can be found in the LICENSE file.

// Package codec - mapping between typed table rows and the flat
// string hash representation used by the state database
//
// A table entry is a Redis hash whose key is:
//
//	TABLE_NAME<sep>serialized-row-key
//
// and whose fields are strings.  A list-valued column F is stored
// under the field name "F@" with its elements comma-joined.  An entry
// with no columns at all is stored as the single field "NULL" with
// value "NULL" so that it remains distinguishable from a missing
// entry.
//
// Round trip holds only for rows whose column names do not end in "@"
// and whose list elements contain no commas.  This restriction is
// documented, not enforced.
package codec
