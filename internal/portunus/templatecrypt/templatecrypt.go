// Package templatecrypt protects enrolled biometric templates at rest.
//
// A single symmetric key is derived from the deployment passphrase and
// salt with PBKDF2-HMAC-SHA256 and used with XChaCha20-Poly1305. Encrypted
// blobs have the layout
//
//	[Version: 1 byte (0x01)] [Nonce: 24 bytes (random)] [Ciphertext+Tag: N+16 bytes]
//
// and the version byte is authenticated as additional data, so any change
// to the blob fails decryption instead of producing garbage.
package templatecrypt

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"
)

// KeySize is the derived key length in bytes (256 bits).
const KeySize = chacha20poly1305.KeySize

// MinIterations is the lowest PBKDF2 iteration count DeriveKey accepts.
const MinIterations = 100_000

// BlobVersion prefixes every encrypted template.
const BlobVersion byte = 0x01

// BlobOverhead is version + nonce + tag.
const BlobOverhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// ErrCrypto covers every key or ciphertext failure: wrong key length,
// truncated blob, unknown version, failed authentication, closed key.
var ErrCrypto = errors.New("template crypto failure")

// Key is the in-memory template key. It is never logged: the fmt verbs
// render it redacted.
type Key struct {
	mu     sync.RWMutex
	b      []byte
	closed bool
}

// DeriveKey stretches passphrase and salt into a KeySize key.
func DeriveKey(passphrase, salt []byte, iterations int) (*Key, error) {
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("%w: empty passphrase", ErrCrypto)
	}
	if len(salt) == 0 {
		return nil, fmt.Errorf("%w: empty salt", ErrCrypto)
	}
	if iterations < MinIterations {
		return nil, fmt.Errorf("%w: %d iterations is below the minimum of %d",
			ErrCrypto, iterations, MinIterations)
	}
	return &Key{b: pbkdf2.Key(passphrase, salt, iterations, KeySize, sha256.New)}, nil
}

// NewKey wraps raw key material. The slice is copied.
func NewKey(raw []byte) (*Key, error) {
	if len(raw) != KeySize {
		return nil, fmt.Errorf("%w: key is %d bytes, want %d", ErrCrypto, len(raw), KeySize)
	}
	return &Key{b: append([]byte(nil), raw...)}, nil
}

// Close zeroes the key material. Later Encrypt/Decrypt calls fail with
// ErrCrypto. Close is idempotent.
func (k *Key) Close() {
	k.mu.Lock()
	defer k.mu.Unlock()
	for i := range k.b {
		k.b[i] = 0
	}
	k.b = nil
	k.closed = true
}

func (k *Key) String() string   { return "templatecrypt.Key(REDACTED)" }
func (k *Key) GoString() string { return k.String() }

// Encrypt seals plaintext under the key with a fresh random nonce.
func (k *Key) Encrypt(plaintext []byte) ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	aead, err := k.aead()
	if err != nil {
		return nil, err
	}

	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("%w: generating nonce: %v", ErrCrypto, err)
	}

	out := make([]byte, 1+len(nonce), BlobOverhead+len(plaintext))
	out[0] = BlobVersion
	copy(out[1:], nonce[:])
	return aead.Seal(out, nonce[:], plaintext, []byte{BlobVersion}), nil
}

// Decrypt opens a blob produced by Encrypt. It fails closed: a blob that
// does not authenticate yields ErrCrypto and no plaintext.
func (k *Key) Decrypt(blob []byte) ([]byte, error) {
	if len(blob) < BlobOverhead {
		return nil, fmt.Errorf("%w: blob is %d bytes, minimum is %d", ErrCrypto, len(blob), BlobOverhead)
	}
	if blob[0] != BlobVersion {
		return nil, fmt.Errorf("%w: blob version %d is not supported", ErrCrypto, blob[0])
	}

	k.mu.RLock()
	defer k.mu.RUnlock()

	aead, err := k.aead()
	if err != nil {
		return nil, err
	}

	nonce := blob[1 : 1+chacha20poly1305.NonceSizeX]
	plaintext, err := aead.Open(nil, nonce, blob[1+chacha20poly1305.NonceSizeX:], blob[:1])
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed (wrong key or tampered data)", ErrCrypto)
	}
	return plaintext, nil
}

// aead must be called with k.mu held.
func (k *Key) aead() (cipher.AEAD, error) {
	if k.closed {
		return nil, fmt.Errorf("%w: key has been released", ErrCrypto)
	}
	a, err := chacha20poly1305.NewX(k.b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	return a, nil
}
