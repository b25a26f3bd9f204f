// Package utils provides common utility functions for bulksync.
// It includes helper functions for type conversion between driver values and Go
// fields, and the key rendering used to compare match keys read back from different
// drivers.
package utils
