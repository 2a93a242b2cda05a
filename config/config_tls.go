package config

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha1"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	mrand "math/rand"
	"net"
	"os"
	"sync"
	"time"
)

type ConfigTLS struct {
	mutex            *sync.RWMutex    `json:"-"`
	DomainNameServer []string         `json:"dns"`
	Certificates     []*ConfigTLSPath `json:"certificates"`
}

type ConfigTLSPath struct {
	mutex       sync.RWMutex    `json:"-"`
	Certificate string          `json:"certificate"`
	Key         string          `json:"key"`
	certificate tls.Certificate `json:"-"`
}

// Configurate loads the configured certificates, generating a self-signed
// one when none are provided.
func (t *ConfigTLS) Configurate() error {
	if t.mutex == nil {
		t.mutex = &sync.RWMutex{}
	}
	if err := t.reloadCertificates(); err != nil {
		return fmt.Errorf("could not load certificates: %v", err)
	}
	if len(t.Certificates) == 0 {
		certificate, err := generateCertificate(t.getDNS())
		if err != nil {
			return fmt.Errorf("could not generate self-signed certificate: %v", err)
		}
		t.mutex.Lock()
		t.Certificates = append(t.Certificates, &ConfigTLSPath{certificate: certificate})
		t.mutex.Unlock()
	}
	return nil
}

// GetCertificate returns the first client supported certificate.
func (t *ConfigTLS) GetCertificate(clientHello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	if len(t.Certificates) == 0 {
		return nil, fmt.Errorf("no certificates configured")
	}
	if clientHello != nil {
		for _, tlsPath := range t.Certificates {
			tlsPath.mutex.RLock()
			certificate := tlsPath.certificate
			tlsPath.mutex.RUnlock()
			if err := clientHello.SupportsCertificate(&certificate); err == nil {
				return &certificate, nil
			}
		}
	}
	tlsPath := t.Certificates[0]
	tlsPath.mutex.RLock()
	certificate := tlsPath.certificate
	tlsPath.mutex.RUnlock()
	return &certificate, nil
}

func (t *ConfigTLS) reloadCertificates() error {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	for _, tlsPath := range t.Certificates {
		if err := tlsPath.reloadCertificate(); err != nil {
			return err
		}
	}
	return nil
}

func (p *ConfigTLSPath) reloadCertificate() error {
	if p.Certificate == "" || p.Key == "" {
		return nil
	}
	certificate, err := tls.LoadX509KeyPair(p.Certificate, p.Key)
	if err != nil {
		return fmt.Errorf("could not load certificate %q: %v", p.Certificate, err)
	}
	p.mutex.Lock()
	p.certificate = certificate
	p.mutex.Unlock()
	return nil
}

func (t *ConfigTLS) getDNS() []string {
	list := t.DomainNameServer
	if len(list) == 0 {
		list = []string{"localhost"}
		if hostname, err := os.Hostname(); err == nil {
			list = append([]string{hostname}, list...)
		}
	}
	return list
}

// generateCertificate creates a self-signed ECDSA certificate.
func generateCertificate(dns []string) (certificate tls.Certificate, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		return certificate, fmt.Errorf("could not generate ecdsa key: %v", err)
	}
	certificate.PrivateKey = key

	pubKeyBytes, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return certificate, fmt.Errorf("could not marshal public key: %v", err)
	}
	ski := sha1.Sum(pubKeyBytes)

	leaf := &x509.Certificate{
		SerialNumber:          big.NewInt(mrand.Int63()),
		Subject:               pkix.Name{CommonName: "localhost"},
		PublicKey:             key.Public(),
		PublicKeyAlgorithm:    x509.ECDSA,
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(90 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:              dns,
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("::1")},
		IsCA:                  true,
		BasicConstraintsValid: true,
		SignatureAlgorithm:    x509.ECDSAWithSHA384,
		SubjectKeyId:          ski[:],
		AuthorityKeyId:        ski[:],
	}
	leafDer, err := x509.CreateCertificate(rand.Reader, leaf, leaf, key.Public(), key)
	if err != nil {
		return certificate, fmt.Errorf("could not create ecdsa certificate: %v", err)
	}
	certificate.Certificate = [][]byte{leafDer}
	certificate.Leaf, err = x509.ParseCertificate(leafDer)
	if err != nil {
		return certificate, fmt.Errorf("could not parse ecdsa certificate: %v", err)
	}
	return certificate, nil
}
