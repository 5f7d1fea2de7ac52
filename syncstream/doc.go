// Package syncstream reads and writes the contact and group sync streams
// exchanged with linked devices.
//
// A stream is a sequence of records. Each record is a varint length, the
// protobuf-encoded details, and then the avatar bytes if the details
// declare an avatar. Fields are written in ascending field-number order so
// output for equal input is byte-identical.
package syncstream
