// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2020 SONiC Project
// Use of this source code is governed by an Apache-2.0
// license that can be found in the LICENSE file.

// Package background - run processes in the background
//
// Starts a list of background processes and provides a single Stop
// that closes every shutdown channel and waits for all processes to
// return.
package background

// the shutdown and completed channels for a single background
type shutdown struct {
	shutdown chan struct{}
	finished chan struct{}
}

// T - handle for the stop
type T struct {
	s []shutdown
}

// Process - interface for a background process
//
// Run must return when the shutdown channel is closed.
type Process interface {
	Run(args interface{}, shutdown <-chan struct{})
}

// Processes - list of processes to start
type Processes []Process

// Start - start up a set of background processes
// all with the same args value
func Start(processes Processes, args interface{}) *T {

	register := new(T)
	register.s = make([]shutdown, len(processes))

	// start each background
	for i, p := range processes {
		shutdownChannel := make(chan struct{})
		finishedChannel := make(chan struct{})
		register.s[i].shutdown = shutdownChannel
		register.s[i].finished = finishedChannel
		go func(p Process, shutdown <-chan struct{}, finished chan<- struct{}) {
			p.Run(args, shutdown)
			close(finished)
		}(p, shutdownChannel, finishedChannel)
	}
	return register
}

// Stop - stop a set of background processes and wait until all have
// finished
func (t *T) Stop() {

	if nil == t {
		return
	}

	// shutdown all background tasks
	for _, shutdown := range t.s {
		close(shutdown.shutdown)
	}

	// wait for them to finish
	for _, shutdown := range t.s {
		<-shutdown.finished
	}
}
