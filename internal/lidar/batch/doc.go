// Package batch flattens many point-cloud files.
//
// Responsibilities: discovering input files under a directory, naming
// outputs, running load, flatten and persist for each file with a bounded
// number of workers, and reporting per-file outcomes to the optional
// diagnostics writer and run ledger.
// Key types: Runner, Summary.
//
// A failure in one file is logged and recorded; the remaining files still
// run. Each file owns its points and grid, so workers share nothing but the
// filesystem, the ledger store and the logger.
package batch
