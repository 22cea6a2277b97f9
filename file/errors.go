package file

import "errors"

// Sentinel errors making up the spec's Transfer error category (§7). Unlike
// Crypto, Handshake, Transport, and Protocol errors, a Transfer error never
// tears down the underlying session — only the offending transfer.
var (
	ErrUnknownTransfer       = errors.New("file: unknown transfer id")
	ErrTransferExists        = errors.New("file: transfer id already active")
	ErrChunkHashMismatch     = errors.New("file: chunk hash mismatch")
	ErrWholeFileHashMismatch = errors.New("file: whole-file hash mismatch")
	ErrRetryBudgetExhausted  = errors.New("file: retry budget exhausted")
	ErrPathOutsideInbox      = errors.New("file: resolved path escapes inbox")
	ErrNoCheckpoint          = errors.New("file: no checkpoint for transfer")
)
