package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"time"

	"github.com/sanchxt/yoop-sub002/yerr"
)

// SelfSignedCert builds a self-signed TLS 1.3 certificate whose public
// key *is* the device's Ed25519 identity key (spec §4.2, Open Question
// decision #2 in DESIGN.md: pin the key, not a CA chain). Peers verify
// the connection by comparing this certificate's public key against the
// key recorded for the device in the trust store, not against any
// system root.
func (id *Identity) SelfSignedCert() (tls.Certificate, error) {
	serial, err := randomSerial()
	if err != nil {
		return tls.Certificate{}, err
	}
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: id.DeviceID.String()},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().AddDate(10, 0, 0),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(nil, tmpl, tmpl, id.PublicKey, id.SecretKey)
	if err != nil {
		return tls.Certificate{}, yerr.Wrap(yerr.KindTLSError, "failed to create self-signed certificate", err)
	}
	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  id.SecretKey,
	}, nil
}

func randomSerial() (*big.Int, error) {
	limit := new(big.Int).Lsh(big.NewInt(1), 128)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return nil, yerr.Wrap(yerr.KindInternal, "failed to generate certificate serial", err)
	}
	return n, nil
}

// PinnedTLSConfig builds a tls.Config that presents our self-signed cert
// and, when verifyPeerKey is non-nil, rejects any peer certificate whose
// embedded Ed25519 public key doesn't match it. Standard chain
// verification is disabled (InsecureSkipVerify) because pinning *is* the
// verification: there is no CA here, by design.
func (id *Identity) PinnedTLSConfig(cert tls.Certificate, verifyPeerKey func(peerPub []byte) error) *tls.Config {
	cfg := &tls.Config{
		Certificates:       []tls.Certificate{cert},
		MinVersion:         tls.VersionTLS13,
		InsecureSkipVerify: true, // pinning replaces chain trust, see doc comment
	}
	if verifyPeerKey != nil {
		cfg.VerifyPeerCertificate = func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			if len(rawCerts) == 0 {
				return yerr.New(yerr.KindTLSError, "peer presented no certificate")
			}
			peerCert, err := x509.ParseCertificate(rawCerts[0])
			if err != nil {
				return yerr.Wrap(yerr.KindTLSError, "failed to parse peer certificate", err)
			}
			peerPub, ok := peerCert.PublicKey.(ed25519.PublicKey)
			if !ok {
				return yerr.New(yerr.KindTLSError, "peer certificate is not Ed25519")
			}
			return verifyPeerKey(peerPub)
		}
	}
	return cfg
}
