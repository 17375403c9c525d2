// Package memory is an in-memory store.Store for tests, development and
// single-process deployments.
//
// Every mutation runs under one store-wide lock taken from a
// lease.Registry, so a batch lease is atomic with respect to every other
// lease and release, the same guarantee the SQL backends get from row
// locks. Callers always receive copies.
//
// When MaxJobs is set, inserting past the bound drops the oldest inserted
// job. Eviction follows insertion order only and may drop a job that is
// still processing, so the bound is best effort.
package memory
