// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2020 SONiC Project
// Use of this source code is governed by an Apache-2.0
// license that can be found in the LICENSE file.

package codec

import (
	"fmt"
	"strings"
)

// reserved placeholder field for an entry with no columns
const (
	nullField = "NULL"
	nullValue = "NULL"
)

// suffix marking a list-valued column in the raw hash
const listSuffix = "@"

// Key - ordered parts of a row key
//
// a single element for a plain key, more for a multi-part key
type Key []string

// Row - one table entry: column name to value
//
// values are either string or []string; a nil Row means "delete the
// entry" while an empty Row is a valid entry with no columns
type Row map[string]interface{}

// Table - row entries keyed by their serialized row key
//
// a nil Row value marks the entry for deletion
type Table map[string]Row

// Snapshot - whole database contents: table name to table
//
// a nil Table value marks the whole table for deletion
type Snapshot map[string]Table

// Codec - key and value conversions for one database
//
// the separator is a per-database property, conventionally "|"
type Codec struct {
	Separator string
}

// New - create a codec for a given key separator
func New(separator string) Codec {
	return Codec{Separator: separator}
}

// SerializeKey - join the parts of a multi-part key
//
// serialization is unambiguous only if individual parts never
// contain the separator
func (c Codec) SerializeKey(key Key) string {
	if 1 == len(key) {
		return key[0]
	}
	return strings.Join(key, c.Separator)
}

// DeserializeKey - split a serialized key back into its parts
//
// a single-part key whose text happens to contain the separator is
// indistinguishable from a multi-part key; this is an accepted
// limitation of the flat encoding
func (c Codec) DeserializeKey(raw string) Key {
	return Key(strings.Split(raw, c.Separator))
}

// HashKey - compose the full database key for a table entry
func (c Codec) HashKey(table string, key Key) string {
	return strings.ToUpper(table) + c.Separator + c.SerializeKey(key)
}

// TablePattern - glob pattern matching every entry of a table
func (c Codec) TablePattern(table string) string {
	return strings.ToUpper(table) + c.Separator + "*"
}

// SplitHash - split a full database key into table name and
// serialized row key
//
// ok is false for keys without a separator; such keys are not table
// entries and are skipped by all callers
func (c Codec) SplitHash(hash string) (table string, rowKey string, ok bool) {
	parts := strings.SplitN(hash, c.Separator, 2)
	if 2 != len(parts) {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// RowToRaw - encode a typed row into the raw string hash
//
// nil input maps to nil ("delete"); an empty row maps to the NULL
// placeholder field
func (c Codec) RowToRaw(row Row) map[string]string {
	if nil == row {
		return nil
	}
	if 0 == len(row) {
		return map[string]string{nullField: nullValue}
	}
	raw := make(map[string]string, len(row))
	for column, value := range row {
		switch v := value.(type) {
		case []string:
			raw[column+listSuffix] = strings.Join(v, ",")
		case string:
			raw[column] = v
		default:
			raw[column] = fmt.Sprint(v)
		}
	}
	return raw
}

// RawToTyped - decode a raw string hash into a typed row
//
// the NULL placeholder carries no data and is dropped; an empty
// input decodes to an empty row
func (c Codec) RawToTyped(raw map[string]string) Row {
	if nil == raw {
		return nil
	}
	typed := make(Row)
	for rawColumn, value := range raw {
		switch {
		case nullField == rawColumn:
			// placeholder for an entry with no columns

		case strings.HasSuffix(rawColumn, listSuffix):
			typed[strings.TrimSuffix(rawColumn, listSuffix)] = strings.Split(value, ",")

		default:
			typed[rawColumn] = value
		}
	}
	return typed
}
