// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2020 SONiC Project
// Use of this source code is governed by an Apache-2.0
// license that can be found in the LICENSE file.

package fault

// error base
type GenericError string

// to allow for different classes of errors
type ConnectionError GenericError
type InvalidError GenericError
type MissingClientError GenericError
type NotFoundError GenericError
type ProcessError GenericError
type SchemaError GenericError
type UnavailableDataError GenericError

// common errors - keep in alphabetic order
var (
	AlreadyConnected      = ConnectionError("already connected")
	AlreadyListening      = ProcessError("already listening")
	NotListening          = ProcessError("not listening")
	CannotConnect         = ConnectionError("cannot connect to database")
	NotConnected          = ConnectionError("not connected")
	DataUnavailable       = UnavailableDataError("data unavailable")
	DatabaseEmpty         = UnavailableDataError("database is empty")
	InvalidDatabaseID     = InvalidError("invalid database id")
	InvalidDatabaseName   = InvalidError("invalid database name")
	InvalidKey            = InvalidError("invalid key")
	InvalidPattern        = InvalidError("invalid pattern")
	InvalidSeparator      = InvalidError("invalid separator")
	MissingClient         = MissingClientError("no client connected for database")
	MissingDatabaseConfig = NotFoundError("database configuration is not found")
	NotificationTimedOut  = UnavailableDataError("no notification received before timeout")
)

// the error interface base method
func (e GenericError) Error() string { return string(e) }

// the error interface methods
func (e ConnectionError) Error() string      { return string(e) }
func (e InvalidError) Error() string         { return string(e) }
func (e MissingClientError) Error() string   { return string(e) }
func (e NotFoundError) Error() string        { return string(e) }
func (e ProcessError) Error() string         { return string(e) }
func (e SchemaError) Error() string          { return string(e) }
func (e UnavailableDataError) Error() string { return string(e) }

// determine the class of an error
func IsErrConnection(e error) bool      { _, ok := e.(ConnectionError); return ok }
func IsErrInvalid(e error) bool         { _, ok := e.(InvalidError); return ok }
func IsErrMissingClient(e error) bool   { _, ok := e.(MissingClientError); return ok }
func IsErrNotFound(e error) bool        { _, ok := e.(NotFoundError); return ok }
func IsErrProcess(e error) bool         { _, ok := e.(ProcessError); return ok }
func IsErrSchema(e error) bool          { _, ok := e.(SchemaError); return ok }
func IsErrUnavailableData(e error) bool { _, ok := e.(UnavailableDataError); return ok }
