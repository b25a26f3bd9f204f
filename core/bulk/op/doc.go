// Package op defines the vocabulary shared by every bulk component: the operation kinds,
// the immutable per-call Options, the Result and Stats returned to callers, and the typed
// Error used to report configuration and engine failures.
//
// # Options
//
// Options is a plain value. The executor never writes to it; anything it learns while
// running (generated keys, counts, skipped rows) is returned in a Result instead.
// Start from Defaults so the on-by-default switches (insert order, HOLDLOCK, unique
// staging names) keep their defaults:
//
//	opts := op.Defaults()
//	opts.SetOutputIdentity = true
//	opts.UpdateByProperties = []string{"SKU"}
//
// # Errors
//
// Every domain failure is an *Error carrying a Reason. Compare with errors.Is against the
// exported sentinels:
//
//	if errors.Is(err, op.ErrUnsupportedOperation) {
//	    // fall back to a two step sync
//	}
package op
