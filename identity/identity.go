// Package identity implements the per-device long-lived signing keypair
// (spec §3 DeviceIdentity, §4.2), the two content hashes, and the
// TLS 1.3 transport channel whose certificate is bound to that keypair.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/sanchxt/yoop-sub002/yerr"
)

// Identity is "this device": a stable UUID, a display name, and an
// Ed25519 keypair. The secret key never leaves the process that loaded
// it (it is not exposed by String/MarshalJSON on the wire-facing
// PublicIdentity projection).
type Identity struct {
	DeviceID   uuid.UUID
	DeviceName string
	PublicKey  ed25519.PublicKey
	SecretKey  ed25519.PrivateKey
}

// PublicIdentity is what gets sent to a peer in the Hello message: no
// secret key.
type PublicIdentity struct {
	DeviceID   uuid.UUID `json:"device_id"`
	DeviceName string    `json:"device_name"`
	PublicKey  []byte    `json:"public_key"`
}

func (id Identity) Public() PublicIdentity {
	return PublicIdentity{DeviceID: id.DeviceID, DeviceName: id.DeviceName, PublicKey: id.PublicKey}
}

// keystoreV1 is the on-disk JSON shape of identity.json (spec §6).
type keystoreV1 struct {
	Version    string    `json:"version"`
	DeviceID   uuid.UUID `json:"device_id"`
	DeviceName string    `json:"device_name"`
	PublicKey  string    `json:"public_key"`
	SecretKey  string    `json:"secret_key"`
}

const keystoreVersion = "YoopIdentityV1"

// LoadOrGenerate loads identity.json from path, generating and persisting
// a new one if it does not exist. deviceName is only used on first
// generation.
func LoadOrGenerate(path, deviceName string) (*Identity, error) {
	raw, err := os.ReadFile(path) // #nosec G304 -- operator-configured data dir
	if err == nil {
		return decodeKeystore(raw)
	}
	if !os.IsNotExist(err) {
		return nil, yerr.Wrap(yerr.KindConfigError, "failed to read identity store", err)
	}

	pub, sec, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, yerr.Wrap(yerr.KindInternal, "failed to generate device keypair", err)
	}
	id := &Identity{
		DeviceID:   uuid.New(),
		DeviceName: deviceName,
		PublicKey:  pub,
		SecretKey:  sec,
	}
	if err := save(path, id); err != nil {
		return nil, err
	}
	return id, nil
}

func decodeKeystore(raw []byte) (*Identity, error) {
	var ks keystoreV1
	if err := json.Unmarshal(raw, &ks); err != nil {
		return nil, yerr.Wrap(yerr.KindConfigError, "failed to parse identity store", err)
	}
	if ks.Version != keystoreVersion {
		return nil, yerr.New(yerr.KindConfigError, fmt.Sprintf("unsupported identity store version %q", ks.Version))
	}
	pub, err := base64.StdEncoding.DecodeString(ks.PublicKey)
	if err != nil {
		return nil, yerr.Wrap(yerr.KindConfigError, "identity store: invalid public_key encoding", err)
	}
	sec, err := base64.StdEncoding.DecodeString(ks.SecretKey)
	if err != nil {
		return nil, yerr.Wrap(yerr.KindConfigError, "identity store: invalid secret_key encoding", err)
	}
	return &Identity{
		DeviceID:   ks.DeviceID,
		DeviceName: ks.DeviceName,
		PublicKey:  ed25519.PublicKey(pub),
		SecretKey:  ed25519.PrivateKey(sec),
	}, nil
}

func save(path string, id *Identity) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return yerr.Wrap(yerr.KindConfigError, "failed to create identity store directory", err)
	}
	ks := keystoreV1{
		Version:    keystoreVersion,
		DeviceID:   id.DeviceID,
		DeviceName: id.DeviceName,
		PublicKey:  base64.StdEncoding.EncodeToString(id.PublicKey),
		SecretKey:  base64.StdEncoding.EncodeToString(id.SecretKey),
	}
	b, err := json.MarshalIndent(ks, "", "  ")
	if err != nil {
		return yerr.Wrap(yerr.KindInternal, "failed to encode identity store", err)
	}
	b = append(b, '\n')

	// Atomic write: temp file in the same directory, then rename.
	tmp, err := os.CreateTemp(dir, ".identity-*.tmp")
	if err != nil {
		return yerr.Wrap(yerr.KindConfigError, "failed to create temp identity file", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return yerr.Wrap(yerr.KindConfigError, "failed to write identity store", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return yerr.Wrap(yerr.KindConfigError, "failed to fsync identity store", err)
	}
	if err := tmp.Close(); err != nil {
		return yerr.Wrap(yerr.KindConfigError, "failed to close identity store", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		return yerr.Wrap(yerr.KindConfigError, "failed to chmod identity store", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return yerr.Wrap(yerr.KindConfigError, "failed to rename identity store into place", err)
	}
	return nil
}

// Sign signs message with the device secret key.
func (id *Identity) Sign(message []byte) []byte {
	return ed25519.Sign(id.SecretKey, message)
}

// Verify verifies sig over message against pub.
func Verify(pub ed25519.PublicKey, message, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, message, sig)
}
