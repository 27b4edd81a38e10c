// Package yerr is the unified error taxonomy used across Yoop.
//
// Every operation that can fail in a user-visible way returns an *Error
// carrying a stable code (see spec §7). Callers that only care about the
// category should use errors.Is against the Kind sentinels below;
// callers that need the structured fields (file/chunk, needed/available,
// ...) can use errors.As against *Error.
package yerr

import (
	"errors"
	"fmt"
)

// Kind identifies the error category. Kinds are comparable and are what
// errors.Is matches against.
type Kind int

const (
	KindUnknown Kind = iota
	KindNoNetwork
	KindBroadcastFailed
	KindCodeNotFound
	KindCodeExpired
	KindCodeCollision
	KindConnectionLost
	KindChecksumMismatch
	KindTransferCancelled
	KindTransferRejected
	KindResumeMismatch
	KindResumeRejected
	KindPermissionDenied
	KindInsufficientSpace
	KindFileNotFound
	KindInvalidPath
	KindRateLimited
	KindConnectionRejected
	KindInvalidCodeFormat
	KindTLSError
	KindSignatureInvalid
	KindProtocolError
	KindUnsupportedVersion
	KindUnexpectedMessage
	KindConfigError
	KindInvalidConfig
	KindDeviceNotTrusted
	KindTrustDbError
	KindTimeout
	KindKeepAliveFailed
	KindClipboardError
	KindClipboardEmpty
	KindUnsupportedClipboardType
	KindInternal
)

// code returns the stable EXXX code for kinds that have one (spec §7).
func (k Kind) code() string {
	switch k {
	case KindNoNetwork:
		return "E001"
	case KindBroadcastFailed:
		return "E002"
	case KindCodeNotFound:
		return "E003"
	case KindCodeExpired:
		return "E004"
	case KindConnectionLost:
		return "E005"
	case KindChecksumMismatch:
		return "E006"
	case KindPermissionDenied:
		return "E007"
	case KindInsufficientSpace:
		return "E008"
	case KindRateLimited:
		return "E009"
	case KindConnectionRejected:
		return "E010"
	default:
		return ""
	}
}

// String returns the lowercase, metrics/log-friendly name of k, e.g.
// "no_network" for KindNoNetwork.
func (k Kind) String() string {
	switch k {
	case KindNoNetwork:
		return "no_network"
	case KindBroadcastFailed:
		return "broadcast_failed"
	case KindCodeNotFound:
		return "code_not_found"
	case KindCodeExpired:
		return "code_expired"
	case KindCodeCollision:
		return "code_collision"
	case KindConnectionLost:
		return "connection_lost"
	case KindChecksumMismatch:
		return "checksum_mismatch"
	case KindTransferCancelled:
		return "transfer_cancelled"
	case KindTransferRejected:
		return "transfer_rejected"
	case KindResumeMismatch:
		return "resume_mismatch"
	case KindResumeRejected:
		return "resume_rejected"
	case KindPermissionDenied:
		return "permission_denied"
	case KindInsufficientSpace:
		return "insufficient_space"
	case KindFileNotFound:
		return "file_not_found"
	case KindInvalidPath:
		return "invalid_path"
	case KindRateLimited:
		return "rate_limited"
	case KindConnectionRejected:
		return "connection_rejected"
	case KindInvalidCodeFormat:
		return "invalid_code_format"
	case KindTLSError:
		return "tls_error"
	case KindSignatureInvalid:
		return "signature_invalid"
	case KindProtocolError:
		return "protocol_error"
	case KindUnsupportedVersion:
		return "unsupported_version"
	case KindUnexpectedMessage:
		return "unexpected_message"
	case KindConfigError:
		return "config_error"
	case KindInvalidConfig:
		return "invalid_config"
	case KindDeviceNotTrusted:
		return "device_not_trusted"
	case KindTrustDbError:
		return "trust_db_error"
	case KindTimeout:
		return "timeout"
	case KindKeepAliveFailed:
		return "keep_alive_failed"
	case KindClipboardError:
		return "clipboard_error"
	case KindClipboardEmpty:
		return "clipboard_empty"
	case KindUnsupportedClipboardType:
		return "unsupported_clipboard_type"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// KindOf extracts the Kind carried by err, or KindUnknown if err doesn't
// wrap a *Error.
func KindOf(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return KindUnknown
	}
	return e.Kind
}

// Recoverable reports whether the session should retry this kind of error
// up to its configured bound before surfacing it (spec §7).
func (k Kind) Recoverable() bool {
	switch k {
	case KindConnectionLost, KindChecksumMismatch, KindRateLimited, KindTimeout, KindKeepAliveFailed:
		return true
	default:
		return false
	}
}

// Error is the concrete error type returned by every Yoop operation.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]any
	Wrapped error
}

func (e *Error) Error() string {
	code := e.Kind.code()
	if code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", code, e.Message)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// Is makes errors.Is(err, yerr.NoNetwork) etc. work against a *Error by
// comparing Kind, not identity or message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Code returns the stable EXXX code, or "" if this kind has none.
func (e *Error) Code() string { return e.Kind.code() }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Wrapped: err}
}

func WithFields(kind Kind, message string, fields map[string]any) *Error {
	return &Error{Kind: kind, Message: message, Fields: fields}
}

// Sentinel values for errors.Is comparisons. Only Kind is compared.
var (
	NoNetwork          = &Error{Kind: KindNoNetwork}
	CodeNotFound       = &Error{Kind: KindCodeNotFound}
	CodeExpired        = &Error{Kind: KindCodeExpired}
	CodeCollision      = &Error{Kind: KindCodeCollision}
	ConnectionLost     = &Error{Kind: KindConnectionLost}
	ChecksumMismatch   = &Error{Kind: KindChecksumMismatch}
	TransferCancelled  = &Error{Kind: KindTransferCancelled}
	TransferRejected   = &Error{Kind: KindTransferRejected}
	ResumeMismatch     = &Error{Kind: KindResumeMismatch}
	ResumeRejected     = &Error{Kind: KindResumeRejected}
	PermissionDenied   = &Error{Kind: KindPermissionDenied}
	InsufficientSpace  = &Error{Kind: KindInsufficientSpace}
	RateLimited        = &Error{Kind: KindRateLimited}
	ConnectionRejected = &Error{Kind: KindConnectionRejected}
	InvalidCodeFormat  = &Error{Kind: KindInvalidCodeFormat}
	SignatureInvalid   = &Error{Kind: KindSignatureInvalid}
	ProtocolError      = &Error{Kind: KindProtocolError}
	UnsupportedVersion = &Error{Kind: KindUnsupportedVersion}
	DeviceNotTrusted   = &Error{Kind: KindDeviceNotTrusted}
	TrustDbError       = &Error{Kind: KindTrustDbError}
	Timeout            = &Error{Kind: KindTimeout}
	KeepAliveFailed    = &Error{Kind: KindKeepAliveFailed}
	ClipboardError     = &Error{Kind: KindClipboardError}
	ClipboardEmpty     = &Error{Kind: KindClipboardEmpty}
)

// Is reports whether err's Kind matches target's Kind, walking the chain.
func Is(err, target error) bool { return errors.Is(err, target) }

// ExitCode maps a Kind to the CLI exit code table in spec §6.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var e *Error
	if !errors.As(err, &e) {
		return 1
	}
	switch e.Kind {
	case KindInvalidCodeFormat, KindInvalidConfig, KindInvalidPath:
		return 2
	case KindNoNetwork, KindBroadcastFailed, KindConnectionLost, KindCodeNotFound, KindTimeout, KindKeepAliveFailed:
		return 3
	case KindTransferCancelled:
		return 4
	default:
		return 1
	}
}
