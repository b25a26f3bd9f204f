// Package sqlgen renders the SQL of a bulk call.
//
// Build turns a table.Descriptor into a Plan: the statements that create staging, prepare
// the target, merge, collect output and clean up. Each engine renders its own shape:
//
//	sqlserver  one MERGE with OUTPUT INTO an output table
//	postgres   INSERT ... ON CONFLICT / UPDATE ... FROM / DELETE ... USING with RETURNING
//	mysql      INSERT ... ON DUPLICATE KEY UPDATE, UPDATE and DELETE joins, LAST_INSERT_ID
//	sqlite     one INSERT ... ON CONFLICT ... RETURNING per object, joins for the rest
//
// Output rows always carry the output columns followed by the ordinal (NULL when the
// engine cannot report it) and a one letter action: I, U, D or R.
package sqlgen
