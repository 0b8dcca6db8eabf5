package discovery

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/pbkdf2"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/Eriyc/music-visualizer/remote"
)

var (
	// ErrBadChecksum is returned when a hand-off blob fails authentication.
	ErrBadChecksum = errors.New("discovery: blob checksum mismatch")
	// ErrMalformedBlob is returned for blobs that cannot be decoded.
	ErrMalformedBlob = errors.New("discovery: malformed blob")
)

// Oakley group 1 (RFC 2409), the group controllers use for the hand-off.
var (
	dhPrime = mustHex("ffffffffffffffffc90fdaa22168c234c4c6628b80dc1cd1" +
		"29024e088a67cc74020bbea63b139b22514a08798e3404dd" +
		"ef9519b3cd3a431b302b0a6df25f14374fe1356d6d51c245" +
		"e485b576625e7ec6f44c42e9a63a3620ffffffffffffffff")
	dhGenerator = big.NewInt(2)
)

func mustHex(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("discovery: bad constant")
	}
	return n
}

// keyPair is a Diffie-Hellman key pair over the hand-off group.
type keyPair struct {
	private *big.Int
	public  *big.Int
}

func newKeyPair() (*keyPair, error) {
	buf := make([]byte, 95)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	priv := new(big.Int).SetBytes(buf)
	return &keyPair{
		private: priv,
		public:  new(big.Int).Exp(dhGenerator, priv, dhPrime),
	}, nil
}

func (k *keyPair) publicKey() []byte {
	return k.public.Bytes()
}

func (k *keyPair) sharedSecret(remotePublic []byte) []byte {
	pub := new(big.Int).SetBytes(remotePublic)
	return new(big.Int).Exp(pub, k.private, dhPrime).Bytes()
}

func hmacSHA1(key, data []byte) []byte {
	mac := hmac.New(sha1.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// decryptBlob opens the outer layer of an addUser hand-off: iv, payload
// and an HMAC-SHA1 checksum, keyed from the DH shared secret.
func decryptBlob(shared, blob []byte) ([]byte, error) {
	if len(blob) < 16+20 {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedBlob, len(blob))
	}
	iv := blob[:16]
	encrypted := blob[16 : len(blob)-20]
	cksum := blob[len(blob)-20:]

	baseKey := sha1.Sum(shared)
	checksumKey := hmacSHA1(baseKey[:16], []byte("checksum"))
	encryptionKey := hmacSHA1(baseKey[:16], []byte("encryption"))

	if !hmac.Equal(hmacSHA1(checksumKey, encrypted), cksum) {
		return nil, ErrBadChecksum
	}

	block, err := aes.NewCipher(encryptionKey[:16])
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(encrypted))
	cipher.NewCTR(block, iv).XORKeyStream(out, encrypted)
	return out, nil
}

// credentialsFromBlob opens the inner layer, which is keyed by the device
// id and the user name, and parses the credential record inside.
func credentialsFromBlob(username string, encoded []byte, deviceID string) (remote.Credentials, error) {
	data, err := base64.StdEncoding.DecodeString(string(encoded))
	if err != nil {
		return remote.Credentials{}, fmt.Errorf("%w: %v", ErrMalformedBlob, err)
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return remote.Credentials{}, fmt.Errorf("%w: %d byte payload", ErrMalformedBlob, len(data))
	}

	key, err := blobKey(username, deviceID)
	if err != nil {
		return remote.Credentials{}, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return remote.Credentials{}, err
	}
	for i := 0; i < len(data); i += aes.BlockSize {
		block.Decrypt(data[i:i+aes.BlockSize], data[i:i+aes.BlockSize])
	}

	for i := len(data) - 1; i >= aes.BlockSize; i-- {
		data[i] ^= data[i-aes.BlockSize]
	}

	return parseCredentialRecord(username, data)
}

func blobKey(username, deviceID string) ([]byte, error) {
	secret := sha1.Sum([]byte(deviceID))
	derived, err := pbkdf2.Key(sha1.New, string(secret[:]), []byte(username), 0x100, 20)
	if err != nil {
		return nil, err
	}
	hashed := sha1.Sum(derived)
	key := make([]byte, 0, 24)
	key = append(key, hashed[:]...)
	key = binary.BigEndian.AppendUint32(key, 20)
	return key, nil
}

type recordReader struct {
	data []byte
	pos  int
}

func (r *recordReader) byte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, fmt.Errorf("%w: truncated record", ErrMalformedBlob)
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *recordReader) int() (int, error) {
	lo, err := r.byte()
	if err != nil {
		return 0, err
	}
	if lo&0x80 == 0 {
		return int(lo), nil
	}
	hi, err := r.byte()
	if err != nil {
		return 0, err
	}
	return int(lo&0x7f) | int(hi)<<7, nil
}

func (r *recordReader) bytes() ([]byte, error) {
	n, err := r.int()
	if err != nil {
		return nil, err
	}
	if r.pos+n > len(r.data) {
		return nil, fmt.Errorf("%w: field of %d bytes overruns record", ErrMalformedBlob, n)
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func parseCredentialRecord(username string, data []byte) (remote.Credentials, error) {
	r := &recordReader{data: data}
	if _, err := r.byte(); err != nil {
		return remote.Credentials{}, err
	}
	if _, err := r.bytes(); err != nil {
		return remote.Credentials{}, err
	}
	if _, err := r.byte(); err != nil {
		return remote.Credentials{}, err
	}
	authType, err := r.int()
	if err != nil {
		return remote.Credentials{}, err
	}
	if _, err := r.byte(); err != nil {
		return remote.Credentials{}, err
	}
	authData, err := r.bytes()
	if err != nil {
		return remote.Credentials{}, err
	}

	return remote.Credentials{
		Username: username,
		AuthType: remote.AuthType(authType),
		AuthData: append([]byte(nil), authData...),
	}, nil
}
