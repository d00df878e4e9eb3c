package templatecrypt_test

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/templatecrypt"
)

func newTestKey(t *testing.T) *templatecrypt.Key {
	t.Helper()
	k, err := templatecrypt.DeriveKey([]byte("correct horse battery"), []byte("unit-salt"), templatecrypt.MinIterations)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	t.Cleanup(k.Close)
	return k
}

func TestRoundTrip(t *testing.T) {
	k := newTestKey(t)

	inputs := [][]byte{
		{},
		[]byte("Test"),
		[]byte("0.12,0.5,-0.33,1e-3"),
		bytes.Repeat([]byte{0xff, 0x00, 0x7f}, 600),
	}
	for _, in := range inputs {
		blob, err := k.Encrypt(in)
		if err != nil {
			t.Fatalf("Encrypt(%d bytes): %v", len(in), err)
		}
		if len(blob) != len(in)+templatecrypt.BlobOverhead {
			t.Errorf("blob length = %d, want %d", len(blob), len(in)+templatecrypt.BlobOverhead)
		}
		out, err := k.Decrypt(blob)
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if !bytes.Equal(out, in) {
			t.Errorf("round trip mismatch: got %q, want %q", out, in)
		}
	}
}

func TestEncrypt_FreshNonceEachCall(t *testing.T) {
	k := newTestKey(t)
	a, _ := k.Encrypt([]byte("Test"))
	b, _ := k.Encrypt([]byte("Test"))
	if bytes.Equal(a, b) {
		t.Error("two encryptions of the same plaintext must differ")
	}
}

func TestDecrypt_TamperedFailsClosed(t *testing.T) {
	k := newTestKey(t)
	blob, err := k.Encrypt([]byte("Test biometric template data"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	for i := 0; i < len(blob); i++ {
		tampered := append([]byte(nil), blob...)
		tampered[i] ^= 0x01
		out, err := k.Decrypt(tampered)
		if !errors.Is(err, templatecrypt.ErrCrypto) {
			t.Fatalf("byte %d flipped: expected ErrCrypto, got %v", i, err)
		}
		if out != nil {
			t.Fatalf("byte %d flipped: expected no plaintext, got %q", i, out)
		}
	}
}

func TestDecrypt_Truncated(t *testing.T) {
	k := newTestKey(t)
	if _, err := k.Decrypt([]byte{templatecrypt.BlobVersion, 1, 2, 3}); !errors.Is(err, templatecrypt.ErrCrypto) {
		t.Errorf("expected ErrCrypto, got %v", err)
	}
}

func TestDecrypt_WrongKey(t *testing.T) {
	k := newTestKey(t)
	other, err := templatecrypt.DeriveKey([]byte("correct horse battery"), []byte("other-salt"), templatecrypt.MinIterations)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	blob, _ := k.Encrypt([]byte("Test"))
	if _, err := other.Decrypt(blob); !errors.Is(err, templatecrypt.ErrCrypto) {
		t.Errorf("expected ErrCrypto, got %v", err)
	}
}

func TestDeriveKey_Deterministic(t *testing.T) {
	a := newTestKey(t)
	b := newTestKey(t)
	blob, _ := a.Encrypt([]byte("Test"))
	if _, err := b.Decrypt(blob); err != nil {
		t.Errorf("same passphrase and salt must derive the same key: %v", err)
	}
}

func TestDeriveKey_RejectsWeakParameters(t *testing.T) {
	cases := []struct {
		name       string
		pass, salt string
		iterations int
	}{
		{"low iterations", "pass", "salt", templatecrypt.MinIterations - 1},
		{"empty passphrase", "", "salt", templatecrypt.MinIterations},
		{"empty salt", "pass", "", templatecrypt.MinIterations},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := templatecrypt.DeriveKey([]byte(tc.pass), []byte(tc.salt), tc.iterations); !errors.Is(err, templatecrypt.ErrCrypto) {
				t.Errorf("expected ErrCrypto, got %v", err)
			}
		})
	}
}

func TestNewKey_WrongLength(t *testing.T) {
	if _, err := templatecrypt.NewKey(make([]byte, 16)); !errors.Is(err, templatecrypt.ErrCrypto) {
		t.Errorf("expected ErrCrypto, got %v", err)
	}
	if _, err := templatecrypt.NewKey(make([]byte, templatecrypt.KeySize)); err != nil {
		t.Errorf("unexpected error for %d-byte key: %v", templatecrypt.KeySize, err)
	}
}

func TestClose_ReleasesKey(t *testing.T) {
	k, _ := templatecrypt.NewKey(bytes.Repeat([]byte{7}, templatecrypt.KeySize))
	blob, _ := k.Encrypt([]byte("Test"))
	k.Close()
	k.Close()

	if _, err := k.Decrypt(blob); !errors.Is(err, templatecrypt.ErrCrypto) {
		t.Errorf("expected ErrCrypto after Close, got %v", err)
	}
	if _, err := k.Encrypt([]byte("x")); !errors.Is(err, templatecrypt.ErrCrypto) {
		t.Errorf("expected ErrCrypto after Close, got %v", err)
	}
}

func TestKey_NeverFormatsMaterial(t *testing.T) {
	k, _ := templatecrypt.NewKey(bytes.Repeat([]byte{0x41}, templatecrypt.KeySize))
	for _, s := range []string{fmt.Sprint(k), fmt.Sprintf("%v", k), fmt.Sprintf("%#v", k)} {
		if bytes.Contains([]byte(s), []byte("AAAA")) {
			t.Errorf("formatted key leaked material: %s", s)
		}
	}
}
