// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package nampipe provides the bounded-concurrency engine underneath the
// neural associative memory experiment pipeline. Tasks are launched
// (scattered) into a [TaskPool] whose limit caps how many run at once, and
// their results are delivered back (gathered) one at a time to the goroutine
// that owns the [Job]. Launch and aggregation are kept apart so that work
// runs concurrently while the code consuming results stays sequential and
// needs no locking.
//
// Gathering blocks on a completion channel; there is no polling. A task keeps
// its pool slot until its result has been gathered, so a [Gather.Scatter]
// into a full pool gathers results until a slot is free. A gather function
// that returns an error stops that Scatter before it launches anything.
//
// The sub-packages build the experiment pipeline on top of this engine:
// experiment partitioning, job execution via worker processes, per-job
// analysis, and the merging and finalization of result tables.
package nampipe
