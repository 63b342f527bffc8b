package github

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"math/big"
)

// parsePrivateKey decodes a PEM-encoded RSA private key. PKCS#8 blocks
// ("PRIVATE KEY") go through the standard parser; PKCS#1 blocks
// ("RSA PRIVATE KEY", the format GitHub App keys download in) are read
// with a minimal DER walker below.
func parsePrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in private key")
	}

	switch block.Type {
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse pkcs8 key: %w", err)
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("pkcs8 key is %T, want RSA", key)
		}
		return rsaKey, nil
	case "RSA PRIVATE KEY":
		return parsePKCS1(block.Bytes)
	default:
		return nil, fmt.Errorf("unsupported PEM block type %q", block.Type)
	}
}

// parsePKCS1 reads a PKCS#1 RSAPrivateKey DER structure:
// SEQUENCE { version, n, e, d, p, q, dP, dQ, qInv } with every field an
// INTEGER.
func parsePKCS1(der []byte) (*rsa.PrivateKey, error) {
	r := derReader{buf: der}

	body, err := r.readSequence()
	if err != nil {
		return nil, fmt.Errorf("parse pkcs1 key: %w", err)
	}
	seq := derReader{buf: body}

	version, err := seq.readInt()
	if err != nil {
		return nil, fmt.Errorf("parse pkcs1 version: %w", err)
	}
	if version.Sign() != 0 {
		return nil, fmt.Errorf("unsupported pkcs1 version %s", version)
	}

	fields := make([]*big.Int, 8)
	names := []string{"modulus", "public exponent", "private exponent", "prime1", "prime2", "exponent1", "exponent2", "coefficient"}
	for i := range fields {
		if fields[i], err = seq.readInt(); err != nil {
			return nil, fmt.Errorf("parse pkcs1 %s: %w", names[i], err)
		}
	}

	key := &rsa.PrivateKey{
		PublicKey: rsa.PublicKey{
			N: fields[0],
			E: int(fields[1].Int64()),
		},
		D:      fields[2],
		Primes: []*big.Int{fields[3], fields[4]},
	}
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("validate pkcs1 key: %w", err)
	}
	key.Precompute()
	return key, nil
}

const (
	tagInteger  = 0x02
	tagSequence = 0x30
)

// derReader walks a DER buffer left to right.
type derReader struct {
	buf []byte
	pos int
}

func (r *derReader) readSequence() ([]byte, error) {
	return r.readElement(tagSequence)
}

func (r *derReader) readInt() (*big.Int, error) {
	raw, err := r.readElement(tagInteger)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty integer at offset %d", r.pos)
	}
	if raw[0]&0x80 != 0 {
		return nil, fmt.Errorf("negative integer at offset %d", r.pos)
	}
	return new(big.Int).SetBytes(raw), nil
}

// readElement consumes one tag-length-value element, checking the tag
// and decoding short or long form lengths.
func (r *derReader) readElement(tag byte) ([]byte, error) {
	if r.pos >= len(r.buf) {
		return nil, fmt.Errorf("truncated DER at offset %d", r.pos)
	}
	if r.buf[r.pos] != tag {
		return nil, fmt.Errorf("tag 0x%02x at offset %d, want 0x%02x", r.buf[r.pos], r.pos, tag)
	}
	r.pos++

	length, err := r.readLength()
	if err != nil {
		return nil, err
	}
	if r.pos+length > len(r.buf) {
		return nil, fmt.Errorf("element length %d overruns buffer at offset %d", length, r.pos)
	}

	val := r.buf[r.pos : r.pos+length]
	r.pos += length
	return val, nil
}

func (r *derReader) readLength() (int, error) {
	if r.pos >= len(r.buf) {
		return 0, fmt.Errorf("truncated length at offset %d", r.pos)
	}
	b := r.buf[r.pos]
	r.pos++

	if b&0x80 == 0 {
		return int(b), nil
	}

	numBytes := int(b & 0x7f)
	if numBytes == 0 || numBytes > 4 {
		return 0, fmt.Errorf("unsupported length-of-length %d at offset %d", numBytes, r.pos)
	}
	if r.pos+numBytes > len(r.buf) {
		return 0, fmt.Errorf("truncated long-form length at offset %d", r.pos)
	}

	length := 0
	for i := 0; i < numBytes; i++ {
		length = length<<8 | int(r.buf[r.pos])
		r.pos++
	}
	return length, nil
}
