// Package message implements the typed message envelope carried inside a
// lanshare record-layer frame: a one-byte kind tag followed by a
// length-delimited payload, plus manual binary encoders/decoders for every
// message kind the protocol defines.
//
// Field layout follows the teacher's encoding/binary convention (its
// file/manager.go serializeFileRequest and friends, not part of this
// module): fixed-width fields packed at known
// offsets with big-endian byte order, variable-length fields preceded by
// their own length prefix. No schema compiler is used, matching the style
// the teacher already established for its wire messages.
package message
