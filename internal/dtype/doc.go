// Package dtype maps HDF5 datatypes to Go values and record layouts.
//
// Two directions are covered:
//
//   - [Plan] pairs a compound datatype with a [record.Layout]. [ForLayout]
//     builds the compound written for a layout; [FromType] derives a
//     layout from a stored datatype so that files written elsewhere can be
//     read. [Plan.Pack] and [Plan.Unpack] move rows between the two.
//   - [Values] decodes attribute payloads into plain Go values.
//
// # Type Mapping
//
//	Record kind | HDF5 datatype
//	------------|---------------------------------------------
//	Int, Uint   | fixed-point, little-endian
//	Float       | IEEE float, 4 or 8 bytes
//	Bool        | enum {FALSE=0, TRUE=1} over int8
//	Complex     | compound {r, i} of two floats
//	String      | variable-length UTF-8 string (global heap)
//
// On the read side, fixed-length strings also map to String and other
// enums map to their integer base type.
package dtype
