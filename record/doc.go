// Package record implements the length-prefixed authenticated transport
// framing layered directly on top of the split Noise cipher states that
// package noise produces. Each frame on the wire is
// [u32 BE length][ciphertext || 16B tag]; the 4-byte length prefix is
// itself the additional authenticated data for that frame, binding frame
// boundaries the same way the teacher's crypto/noise_handshake.go binds
// its own Noise transport messages with SendCipher/RecvCipher.Encrypt.
package record
