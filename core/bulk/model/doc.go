// Package model describes how Go objects map onto table columns for bulk operations.
//
// An Entity lists Properties. A property carries its column, type facts (key, nullability,
// generation, defaults, precision) and two accessor closures, Get and Set, that read and
// write the object field. Owned structs are flattened into dotted names such as
// "Dimensions.Width", so include/exclude filters can name either the owner or a single
// child.
//
// FromGorm builds an Entity from a gorm model using gorm's own schema parser, so the
// column naming matches whatever gorm would use for the same struct.
//
// # Converters
//
// A Converter changes a value on its way to and from the database. The built-in
// converters are json, unix (time as unix seconds) and text (enums by name); register
// more with RegisterConverter and select them with `bulk:"converter:<name>"`.
package model
