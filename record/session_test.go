package record

import (
	"encoding/binary"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/lanshare-dev/lanshare/crypto"
	"github.com/lanshare-dev/lanshare/message"
	"github.com/lanshare-dev/lanshare/noise"
)

// pairedSessions runs a real Noise-XX handshake over an in-memory pipe
// and returns both sides' Session, ready for transport-layer testing
// without re-deriving keys by hand.
func pairedSessions(t *testing.T) (client, server *Session) {
	t.Helper()

	initiatorConn, responderConn := net.Pipe()

	initiatorLocal, err := crypto.NewLocalIdentity()
	if err != nil {
		t.Fatalf("NewLocalIdentity: %v", err)
	}
	initiatorDH, err := crypto.GenerateDHKeyPair()
	if err != nil {
		t.Fatalf("GenerateDHKeyPair: %v", err)
	}
	responderLocal, err := crypto.NewLocalIdentity()
	if err != nil {
		t.Fatalf("NewLocalIdentity: %v", err)
	}
	responderDH, err := crypto.GenerateDHKeyPair()
	if err != nil {
		t.Fatalf("GenerateDHKeyPair: %v", err)
	}

	initiatorHS, err := noise.New(noise.Initiator, initiatorLocal, initiatorDH)
	if err != nil {
		t.Fatalf("noise.New(initiator): %v", err)
	}
	responderHS, err := noise.New(noise.Responder, responderLocal, responderDH)
	if err != nil {
		t.Fatalf("noise.New(responder): %v", err)
	}

	type outcome struct {
		result *noise.Result
		err    error
	}
	initiatorCh := make(chan outcome, 1)
	responderCh := make(chan outcome, 1)

	go func() {
		r, err := initiatorHS.Run(initiatorConn)
		initiatorCh <- outcome{r, err}
	}()
	go func() {
		r, err := responderHS.Run(responderConn)
		responderCh <- outcome{r, err}
	}()

	var initiatorOut, responderOut outcome
	select {
	case initiatorOut = <-initiatorCh:
	case <-time.After(2 * time.Second):
		t.Fatal("initiator handshake timed out")
	}
	select {
	case responderOut = <-responderCh:
	case <-time.After(2 * time.Second):
		t.Fatal("responder handshake timed out")
	}
	if initiatorOut.err != nil {
		t.Fatalf("initiator handshake: %v", initiatorOut.err)
	}
	if responderOut.err != nil {
		t.Fatalf("responder handshake: %v", responderOut.err)
	}

	return New(initiatorConn, initiatorOut.result), New(responderConn, responderOut.result)
}

func TestSessionSendRecvRoundTrip(t *testing.T) {
	client, server := pairedSessions(t)
	defer client.Close()
	defer server.Close()

	done := make(chan error, 1)
	go func() {
		kind, payload, err := server.Recv()
		if err != nil {
			done <- err
			return
		}
		if kind != message.KindPing {
			done <- errPing(kind)
			return
		}
		if string(payload) != "hello" {
			done <- errPing(kind)
			return
		}
		done <- nil
	}()

	if err := client.Send(message.KindPing, []byte("hello")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("server goroutine: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server to receive")
	}
}

func errPing(k message.Kind) error {
	return &mismatchError{kind: k}
}

type mismatchError struct{ kind message.Kind }

func (e *mismatchError) Error() string { return "unexpected kind or payload: " + e.kind.String() }

func TestSessionBidirectional(t *testing.T) {
	client, server := pairedSessions(t)
	defer client.Close()
	defer server.Close()

	clientDone := make(chan error, 1)
	go func() {
		kind, payload, err := client.Recv()
		if err != nil {
			clientDone <- err
			return
		}
		if kind != message.KindPong || string(payload) != "pong" {
			clientDone <- errPing(kind)
			return
		}
		clientDone <- nil
	}()

	serverDone := make(chan error, 1)
	go func() {
		kind, payload, err := server.Recv()
		if err != nil {
			serverDone <- err
			return
		}
		if kind != message.KindPing || string(payload) != "ping" {
			serverDone <- errPing(kind)
			return
		}
		serverDone <- server.Send(message.KindPong, []byte("pong"))
	}()

	if err := client.Send(message.KindPing, []byte("ping")); err != nil {
		t.Fatalf("client Send: %v", err)
	}

	for i, ch := range []chan error{serverDone, clientDone} {
		select {
		case err := <-ch:
			if err != nil {
				t.Fatalf("goroutine %d: %v", i, err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("goroutine %d timed out", i)
		}
	}
}

func TestSessionRecvRejectsTruncatedFrame(t *testing.T) {
	client, server := pairedSessions(t)
	defer client.Close()
	defer server.Close()

	// Write a length prefix promising more bytes than will ever arrive,
	// then close the writer half: Recv must surface this as a fatal
	// transport error rather than blocking forever or panicking.
	go func() {
		_, _ = client.conn.Write([]byte{0, 0, 1, 0})
		client.Close()
	}()

	if _, _, err := server.Recv(); err == nil {
		t.Error("expected an error for a frame that never completes")
	}
}

// sealTestFrame seals a frame exactly the way Session.Send does, but
// returns the raw bytes instead of writing them, so a test can replay or
// reorder frames on the wire independently of sess's own send counter.
func sealTestFrame(t *testing.T, sess *Session, kind message.Kind, payload []byte) []byte {
	t.Helper()
	env := message.Envelope{Kind: kind, Payload: payload}
	plaintext, err := env.Marshal()
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(plaintext)+aeadTagSize))
	ciphertext, err := sess.result.Send.Encrypt(nil, lenPrefix[:], plaintext)
	if err != nil {
		t.Fatalf("encrypt test frame: %v", err)
	}
	return append(lenPrefix[:], ciphertext...)
}

// writeFrame injects raw bytes into the wire feeding recv's conn, from the
// opposite end of the pipe, without going through a Session's own Send
// (which would consume and advance its own send counter again).
func writeFrame(t *testing.T, sender *Session, frame []byte) <-chan error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() {
		_, err := sender.conn.Write(frame)
		errCh <- err
	}()
	return errCh
}

func TestSessionRecvRejectsReplayedFrame(t *testing.T) {
	client, server := pairedSessions(t)
	defer client.Close()
	defer server.Close()

	frame1 := sealTestFrame(t, client, message.KindPing, []byte("one"))
	frame2 := sealTestFrame(t, client, message.KindPing, []byte("two"))

	writeCh := writeFrame(t, client, frame1)
	if kind, payload, err := server.Recv(); err != nil || kind != message.KindPing || string(payload) != "one" {
		t.Fatalf("first Recv: kind=%v payload=%q err=%v", kind, payload, err)
	}
	if err := <-writeCh; err != nil {
		t.Fatalf("write frame1: %v", err)
	}

	writeCh = writeFrame(t, client, frame2)
	if kind, payload, err := server.Recv(); err != nil || kind != message.KindPing || string(payload) != "two" {
		t.Fatalf("second Recv: kind=%v payload=%q err=%v", kind, payload, err)
	}
	if err := <-writeCh; err != nil {
		t.Fatalf("write frame2: %v", err)
	}

	// Replaying frame1 now that the receiver's counter has moved past it
	// must be rejected: frame1's ciphertext was sealed under the nonce
	// derived from counter 0, but server.result.Recv's internal counter
	// is now 2, so AEAD authentication fails (spec.md §8 "Counter
	// strictness").
	writeCh = writeFrame(t, client, frame1)
	if _, _, err := server.Recv(); !errors.Is(err, ErrAEADFailure) {
		t.Errorf("replayed frame err = %v, want ErrAEADFailure", err)
	}
	<-writeCh
}

func TestSessionRecvRejectsOutOfOrderFrame(t *testing.T) {
	client, server := pairedSessions(t)
	defer client.Close()
	defer server.Close()

	_ = sealTestFrame(t, client, message.KindPing, []byte("skipped"))
	frame2 := sealTestFrame(t, client, message.KindPing, []byte("second"))

	// Deliver only the second frame. It was sealed under counter 1, but
	// server.result.Recv still expects counter 0 next, so it must be
	// rejected rather than silently accepted out of order.
	writeCh := writeFrame(t, client, frame2)
	if _, _, err := server.Recv(); !errors.Is(err, ErrAEADFailure) {
		t.Errorf("out-of-order frame err = %v, want ErrAEADFailure", err)
	}
	<-writeCh
}

func TestSessionRemoteIdentity(t *testing.T) {
	client, server := pairedSessions(t)
	defer client.Close()
	defer server.Close()

	if client.Remote().PeerID == "" {
		t.Error("client did not learn a remote peer id")
	}
	if server.Remote().PeerID == "" {
		t.Error("server did not learn a remote peer id")
	}
	if client.Remote().PeerID == server.Remote().PeerID {
		t.Error("client and server should have authenticated distinct peer ids")
	}
}
