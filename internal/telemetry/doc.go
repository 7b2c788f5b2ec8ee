// Package telemetry reads host memory pressure while a run is in flight.
//
// The package provides three pieces:
//
//   - HostSampler: a synchronous read of resident memory and swap usage.
//     A failed read returns the last good values marked stale instead of
//     an error, so callers never stall on the operating system.
//
//   - Poller: a background loop that keeps sampling while the scheduler is
//     blocked on a model load or generation call. Samples are buffered in a
//     bounded FIFO that drops the oldest reading on overflow.
//
//   - KVCacheEstimator: an estimate of attention cache size for a context
//     window. The default is a heuristic and can be replaced by a measured
//     value without touching the scheduler.
package telemetry
