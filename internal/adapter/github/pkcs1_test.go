package github

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
)

func generateKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func TestParsePKCS1RoundTrip(t *testing.T) {
	want := generateKey(t)
	der := x509.MarshalPKCS1PrivateKey(want)

	got, err := parsePKCS1(der)
	if err != nil {
		t.Fatalf("parsePKCS1: %v", err)
	}
	if got.N.Cmp(want.N) != 0 || got.E != want.E || got.D.Cmp(want.D) != 0 {
		t.Fatal("parsed key does not match original")
	}
	if len(got.Primes) != 2 || got.Primes[0].Cmp(want.Primes[0]) != 0 {
		t.Fatal("parsed primes do not match original")
	}
}

func TestParsePrivateKeyPKCS1PEM(t *testing.T) {
	want := generateKey(t)
	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(want),
	})

	got, err := parsePrivateKey(pemBytes)
	if err != nil {
		t.Fatalf("parsePrivateKey: %v", err)
	}
	if got.N.Cmp(want.N) != 0 {
		t.Fatal("parsed key does not match original")
	}
}

func TestParsePrivateKeyPKCS8PEM(t *testing.T) {
	want := generateKey(t)
	der, err := x509.MarshalPKCS8PrivateKey(want)
	if err != nil {
		t.Fatalf("marshal pkcs8: %v", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	got, err := parsePrivateKey(pemBytes)
	if err != nil {
		t.Fatalf("parsePrivateKey: %v", err)
	}
	if got.N.Cmp(want.N) != 0 {
		t.Fatal("parsed key does not match original")
	}
}

func TestParsePrivateKeyMalformed(t *testing.T) {
	cases := []struct {
		name string
		pem  []byte
	}{
		{"not pem", []byte("garbage")},
		{"wrong block type", pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte{0x30}})},
		{"truncated der", pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: []byte{0x30, 0x82, 0x04}})},
		{"wrong outer tag", pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: []byte{0x02, 0x01, 0x00}})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := parsePrivateKey(tc.pem); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
