package message

import "fmt"

// Kind identifies the type of a TypedMessage. Values are normative and must
// not be renumbered; they appear on the wire.
type Kind uint8

const (
	KindHandshakeInit     Kind = 0x01
	KindHandshakeResponse Kind = 0x02
	KindHandshakeFinal    Kind = 0x03
	KindHandshakeComplete Kind = 0x04

	KindPing       Kind = 0x10
	KindPong       Kind = 0x11
	KindDisconnect Kind = 0x12

	KindFileAnnounce Kind = 0x20
	KindFileRequest  Kind = 0x21
	KindFileChunk    Kind = 0x22
	KindFileChunkAck Kind = 0x23
	KindFileComplete Kind = 0x24
	KindFileCancel   Kind = 0x25
	KindFileResume   Kind = 0x26

	KindClipboardData Kind = 0x30
	KindClipboardAck  Kind = 0x31
)

func (k Kind) String() string {
	switch k {
	case KindHandshakeInit:
		return "HandshakeInit"
	case KindHandshakeResponse:
		return "HandshakeResponse"
	case KindHandshakeFinal:
		return "HandshakeFinal"
	case KindHandshakeComplete:
		return "HandshakeComplete"
	case KindPing:
		return "Ping"
	case KindPong:
		return "Pong"
	case KindDisconnect:
		return "Disconnect"
	case KindFileAnnounce:
		return "FileAnnounce"
	case KindFileRequest:
		return "FileRequest"
	case KindFileChunk:
		return "FileChunk"
	case KindFileChunkAck:
		return "FileChunkAck"
	case KindFileComplete:
		return "FileComplete"
	case KindFileCancel:
		return "FileCancel"
	case KindFileResume:
		return "FileResume"
	case KindClipboardData:
		return "ClipboardData"
	case KindClipboardAck:
		return "ClipboardAck"
	default:
		return fmt.Sprintf("Kind(0x%02x)", uint8(k))
	}
}

// ClipboardContentType enumerates the clipboard payload kinds carried by
// ClipboardData.
type ClipboardContentType uint8

const (
	ClipboardText  ClipboardContentType = 0
	ClipboardImage ClipboardContentType = 1
	ClipboardRTF   ClipboardContentType = 2
	ClipboardHTML  ClipboardContentType = 3
	ClipboardFiles ClipboardContentType = 4
)
