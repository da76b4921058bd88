// Package pbconv converts domain records to and from protobuf well-known
// Struct values, the shape used on the wire and in the history file.
package pbconv
