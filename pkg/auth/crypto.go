package auth

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

var errPadding = errors.New("invalid padding")

// passwordKey derives the AES-256 key shared with the web client: the first 32
// bytes of the URL-safe base64 form of the private key, padded with '='.
func passwordKey(privateKey string) []byte {
	enc := []byte(base64.URLEncoding.EncodeToString([]byte(privateKey)))
	if len(enc) > 32 {
		enc = enc[:32]
	}
	for len(enc) < 32 {
		enc = append(enc, '=')
	}
	return enc
}

// EncryptPassword returns base64(iv || AES-256-CBC(PKCS#7(password))).
func EncryptPassword(password, privateKey string) (string, error) {
	block, err := aes.NewCipher(passwordKey(privateKey))
	if err != nil {
		return "", err
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}
	plain := pkcs7Pad([]byte(password), aes.BlockSize)
	out := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, plain)
	return base64.StdEncoding.EncodeToString(append(iv, out...)), nil
}

// DecryptPassword reverses EncryptPassword.
func DecryptPassword(encrypted, privateKey string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("decode password: %w", err)
	}
	if len(data) < 2*aes.BlockSize || len(data)%aes.BlockSize != 0 {
		return "", fmt.Errorf("decode password: ciphertext has invalid length %d", len(data))
	}
	block, err := aes.NewCipher(passwordKey(privateKey))
	if err != nil {
		return "", err
	}
	iv, body := data[:aes.BlockSize], data[aes.BlockSize:]
	plain := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, body)
	plain, err = pkcs7Unpad(plain, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// PasswordFromTransport decrypts an encrypted password and falls back to the
// value as sent when it is not one.
func PasswordFromTransport(value, privateKey string) string {
	if privateKey == "" {
		return value
	}
	plain, err := DecryptPassword(value, privateKey)
	if err != nil {
		return value
	}
	return plain
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 || len(b)%size != 0 {
		return nil, errPadding
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, errPadding
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, errPadding
		}
	}
	return b[:len(b)-n], nil
}
