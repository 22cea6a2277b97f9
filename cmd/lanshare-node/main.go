// Package main provides a minimal command-line LAN peer: it wires
// identity, discovery, the peer manager, and the file-transfer engine
// into one running process for manual testing and demonstration.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lanshare-dev/lanshare/crypto"
	"github.com/lanshare-dev/lanshare/discovery"
	"github.com/lanshare-dev/lanshare/file"
	"github.com/lanshare-dev/lanshare/message"
	"github.com/lanshare-dev/lanshare/peer"
	"github.com/sirupsen/logrus"
)

// CLIConfig holds command-line configuration options for the node.
type CLIConfig struct {
	listenPort int
	inboxDir   string
	connectTo  string
	announce   string
	useMDNS    bool
	logLevel   string
	help       bool
}

// parseCLIFlags parses command-line flags and returns the configuration.
// Network flags: -port, -connect, -mdns
// Transfer flags: -inbox, -announce
// Logging flags: -log-level
func parseCLIFlags() *CLIConfig {
	cfg := &CLIConfig{}

	flag.IntVar(&cfg.listenPort, "port", 0, "listen port (0 selects an ephemeral port)")
	flag.StringVar(&cfg.connectTo, "connect", "", "comma-separated host:port endpoints to dial on startup")
	flag.BoolVar(&cfg.useMDNS, "mdns", false, "discover and announce peers over LAN multicast")
	flag.StringVar(&cfg.inboxDir, "inbox", "./inbox", "directory completed incoming transfers are placed in")
	flag.StringVar(&cfg.announce, "announce", "", "path of a file to announce to peers on startup")
	flag.StringVar(&cfg.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flag.BoolVar(&cfg.help, "help", false, "show usage")
	flag.Parse()

	return cfg
}

func main() {
	cfg := parseCLIFlags()
	if cfg.help {
		flag.Usage()
		return
	}

	level, err := logrus.ParseLevel(cfg.logLevel)
	if err != nil {
		logrus.Fatalf("invalid -log-level %q: %v", cfg.logLevel, err)
	}
	logrus.SetLevel(level)

	identity, err := crypto.NewLocalIdentity()
	if err != nil {
		logrus.Fatalf("failed to create local identity: %v", err)
	}
	defer identity.Close()

	var adapter discovery.Adapter
	if cfg.useMDNS {
		adapter, err = discovery.NewMDNSAdapter()
		if err != nil {
			logrus.Fatalf("failed to start mDNS discovery: %v", err)
		}
	}

	mgr, err := peer.NewManager(peer.Config{Local: identity, ListenPort: cfg.listenPort, Discovery: adapter})
	if err != nil {
		logrus.Fatalf("failed to create peer manager: %v", err)
	}

	port, err := mgr.Start()
	if err != nil {
		logrus.Fatalf("failed to start peer manager: %v", err)
	}

	engine := file.NewEngine(mgr, cfg.inboxDir)

	logrus.WithFields(logrus.Fields{
		"peer_id": identity.PeerID(),
		"port":    port,
		"inbox":   cfg.inboxDir,
	}).Info("lanshare node started")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go pumpPeerEvents(mgr, engine)
	go pumpTransferEvents(engine)

	for _, endpoint := range splitEndpoints(cfg.connectTo) {
		if err := mgr.ConnectTo(endpoint); err != nil {
			logrus.WithError(err).WithField("endpoint", endpoint).Warn("initial connect failed")
		}
	}

	if cfg.announce != "" {
		go announceAfterSettle(engine, cfg.announce)
	}

	<-ctx.Done()
	logrus.Info("shutting down")
	mgr.Close()
}

func splitEndpoints(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// announceAfterSettle gives initial connections a moment to complete their
// handshake before broadcasting the announce, since Announce fans out only
// to peers already in Connected peers.
func announceAfterSettle(engine *file.Engine, path string) {
	time.Sleep(time.Second)
	transferID, err := engine.Announce(path)
	if err != nil {
		logrus.WithError(err).WithField("path", path).Warn("failed to announce file")
		return
	}
	logrus.WithFields(logrus.Fields{"transfer_id": transferID, "path": path}).Info("announced file")
}

func pumpPeerEvents(mgr *peer.Manager, engine *file.Engine) {
	for ev := range mgr.Events() {
		switch e := ev.(type) {
		case peer.PeerDiscovered:
			logrus.WithFields(logrus.Fields{"peer_id": e.PeerID, "endpoint": e.Endpoint}).Info("peer discovered")
		case peer.PeerConnected:
			logrus.WithFields(logrus.Fields{"peer_id": e.PeerID, "direction": e.Direction}).Info("peer connected")
		case peer.PeerDisconnected:
			logrus.WithFields(logrus.Fields{"peer_id": e.PeerID, "reason": e.Reason}).Info("peer disconnected")
		case peer.PeerConnectionFailed:
			logrus.WithFields(logrus.Fields{"target": e.PeerIDOrEndpoint, "reason": e.Reason}).Warn("connection failed")
		case peer.PongReceived:
			logrus.WithFields(logrus.Fields{"peer_id": e.PeerID, "latency": e.Latency}).Debug("pong received")
		case peer.MessageReceived:
			handleMessage(engine, e)
		}
	}
}

func handleMessage(engine *file.Engine, e peer.MessageReceived) {
	switch e.Kind {
	case message.KindFileAnnounce, message.KindFileRequest, message.KindFileChunk,
		message.KindFileChunkAck, message.KindFileComplete, message.KindFileCancel, message.KindFileResume:
		if err := engine.HandleMessage(e.PeerID, e.Kind, e.Payload); err != nil {
			logrus.WithError(err).WithField("peer_id", e.PeerID).Warn("file engine rejected message")
		}
	case message.KindClipboardData, message.KindClipboardAck:
		// Clipboard capture/injection is a host concern; the core only
		// transports it, so this node just logs receipt.
		logrus.WithField("peer_id", e.PeerID).Info("clipboard message received")
	case message.KindDisconnect:
		logrus.WithField("peer_id", e.PeerID).Info("peer requested disconnect")
	default:
		logrus.WithFields(logrus.Fields{"peer_id": e.PeerID, "kind": e.Kind}).Debug("unhandled message kind")
	}
}

func pumpTransferEvents(engine *file.Engine) {
	for ev := range engine.Events() {
		switch e := ev.(type) {
		case file.TransferProgress:
			logrus.WithFields(logrus.Fields{
				"transfer_id": e.TransferID,
				"bytes":       e.BytesTransferred,
				"total":       e.TotalBytes,
			}).Debug("transfer progress")
		case file.TransferCompleted:
			logrus.WithFields(logrus.Fields{
				"transfer_id": e.TransferID,
				"success":     e.Success,
				"path":        e.Path,
				"reason":      e.Reason,
			}).Info("transfer completed")
		}
	}
}
