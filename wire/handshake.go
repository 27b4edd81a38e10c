package wire

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/sanchxt/yoop-sub002/yerr"
)

// HandshakeTimeout bounds each step of the Hello/HelloAck/AuthProof
// exchange.
const HandshakeTimeout = 10 * time.Second

const nonceSize = 32

// HandshakeResult is what a completed handshake establishes about the
// remote party.
type HandshakeResult struct {
	PeerDeviceID   uuid.UUID
	PeerDeviceName string
	PeerPublicKey  ed25519.PublicKey
	SessionKind    string
}

// Local describes this side's identity for the handshake.
type Local struct {
	DeviceID   uuid.UUID
	DeviceName string
	PublicKey  ed25519.PublicKey
	Sign       func([]byte) []byte
}

// Initiate runs the connecting side of the handshake: send Hello,
// receive HelloAck+nonce, sign it, send AuthProof, wait for the peer's
// own AuthProof (mutual authentication — both sides prove key
// possession, not just the connector).
func Initiate(conn net.Conn, local Local, sessionKind string) (*HandshakeResult, error) {
	ourNonce := make([]byte, nonceSize)
	if _, err := rand.Read(ourNonce); err != nil {
		return nil, yerr.Wrap(yerr.KindInternal, "failed to generate handshake nonce", err)
	}
	hello := Hello{
		DeviceID:        local.DeviceID,
		DeviceName:      local.DeviceName,
		PublicKey:       local.PublicKey,
		ProtocolVersion: ProtocolVersion,
		SessionKind:     sessionKind,
		Nonce:           ourNonce,
	}
	if err := WriteFrame(conn, TypeHello, hello.Encode()); err != nil {
		return nil, err
	}

	_ = conn.SetReadDeadline(time.Now().Add(HandshakeTimeout))
	ack, err := expectHelloAck(conn)
	if err != nil {
		return nil, err
	}

	ourSig := local.Sign(ack.Nonce)
	if err := WriteFrame(conn, TypeAuthProof, AuthProof{Signature: ourSig}.Encode()); err != nil {
		return nil, err
	}

	_ = conn.SetReadDeadline(time.Now().Add(HandshakeTimeout))
	peerProof, err := expectAuthProof(conn)
	if err != nil {
		return nil, err
	}
	if len(ack.PublicKey) != ed25519.PublicKeySize || !ed25519.Verify(ack.PublicKey, ourNonce, peerProof.Signature) {
		return nil, yerr.New(yerr.KindSignatureInvalid, "peer's auth proof signature did not verify")
	}

	_ = conn.SetReadDeadline(time.Time{})
	return &HandshakeResult{
		PeerDeviceID:   ack.DeviceID,
		PeerDeviceName: ack.DeviceName,
		PeerPublicKey:  ack.PublicKey,
		SessionKind:    sessionKind,
	}, nil
}

// Accept runs the listening side: receive Hello, reply with a fresh
// nonce in HelloAck, verify the connector's AuthProof signature against
// the public key it just advertised, then send our own AuthProof over
// the nonce from the connector's Hello so the connector can verify us too.
func Accept(conn net.Conn, local Local) (*HandshakeResult, error) {
	_ = conn.SetReadDeadline(time.Now().Add(HandshakeTimeout))
	hello, err := expectHello(conn)
	if err != nil {
		return nil, err
	}
	if hello.ProtocolVersion != ProtocolVersion {
		reject := Reject{Code: "E_UNSUPPORTED_VERSION", Message: fmt.Sprintf("want protocol version %d", ProtocolVersion)}
		_ = WriteFrame(conn, TypeReject, reject.Encode())
		return nil, yerr.WithFields(yerr.KindUnsupportedVersion, "peer protocol version unsupported",
			map[string]any{"got": hello.ProtocolVersion, "want": ProtocolVersion})
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, yerr.Wrap(yerr.KindInternal, "failed to generate handshake nonce", err)
	}
	ack := HelloAck{DeviceID: local.DeviceID, DeviceName: local.DeviceName, PublicKey: local.PublicKey, Nonce: nonce}
	if err := WriteFrame(conn, TypeHelloAck, ack.Encode()); err != nil {
		return nil, err
	}

	_ = conn.SetReadDeadline(time.Now().Add(HandshakeTimeout))
	proof, err := expectAuthProof(conn)
	if err != nil {
		return nil, err
	}
	if len(hello.PublicKey) != ed25519.PublicKeySize || !ed25519.Verify(hello.PublicKey, nonce, proof.Signature) {
		reject := Reject{Code: "E_SIGNATURE_INVALID", Message: "auth proof signature did not verify"}
		_ = WriteFrame(conn, TypeReject, reject.Encode())
		return nil, yerr.New(yerr.KindSignatureInvalid, "auth proof signature did not verify")
	}

	ourProof := AuthProof{Signature: local.Sign(hello.Nonce)}
	if err := WriteFrame(conn, TypeAuthProof, ourProof.Encode()); err != nil {
		return nil, err
	}

	_ = conn.SetReadDeadline(time.Time{})
	return &HandshakeResult{
		PeerDeviceID:   hello.DeviceID,
		PeerDeviceName: hello.DeviceName,
		PeerPublicKey:  hello.PublicKey,
		SessionKind:    hello.SessionKind,
	}, nil
}

func expectHello(conn net.Conn) (Hello, error) {
	f, rerr := ReadFrame(conn)
	if rerr != nil {
		return Hello{}, yerr.Wrap(yerr.KindConnectionLost, "failed to read Hello", rerr)
	}
	if f.Type != TypeHello {
		return Hello{}, unexpected(TypeHello, f.Type)
	}
	return DecodeHello(f.Payload)
}

func expectHelloAck(conn net.Conn) (HelloAck, error) {
	f, rerr := ReadFrame(conn)
	if rerr != nil {
		return HelloAck{}, yerr.Wrap(yerr.KindConnectionLost, "failed to read HelloAck", rerr)
	}
	if f.Type == TypeReject {
		rej, _ := DecodeReject(f.Payload)
		return HelloAck{}, yerr.WithFields(yerr.KindConnectionRejected, rej.Message, map[string]any{"code": rej.Code})
	}
	if f.Type != TypeHelloAck {
		return HelloAck{}, unexpected(TypeHelloAck, f.Type)
	}
	return DecodeHelloAck(f.Payload)
}

func expectAuthProof(conn net.Conn) (AuthProof, error) {
	f, rerr := ReadFrame(conn)
	if rerr != nil {
		return AuthProof{}, yerr.Wrap(yerr.KindConnectionLost, "failed to read AuthProof", rerr)
	}
	if f.Type == TypeReject {
		rej, _ := DecodeReject(f.Payload)
		return AuthProof{}, yerr.WithFields(yerr.KindConnectionRejected, rej.Message, map[string]any{"code": rej.Code})
	}
	if f.Type != TypeAuthProof {
		return AuthProof{}, unexpected(TypeAuthProof, f.Type)
	}
	return DecodeAuthProof(f.Payload)
}

func unexpected(want, got Type) error {
	return yerr.WithFields(yerr.KindUnexpectedMessage, fmt.Sprintf("expected %s, got %s", want, got),
		map[string]any{"expected": want.String(), "actual": got.String()})
}
