// Package aescbc implements the gateway's content encryption: AES-CBC with
// PKCS#7 padding and a fixed all-zero IV.
//
// The zero IV is part of the gateway wire contract. Identical plaintexts
// produce identical ciphertexts; that is a known property of the protocol and
// must not be "fixed" here, or the gateway can no longer decrypt requests.
package aescbc

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/leavestylecode/alipay-sdk-go/keys"
)

// EncryptType is the value of the encrypt_type request parameter.
const EncryptType = "AES"

var (
	ErrInvalidKey = errors.New("invalid aes key")
	ErrDecrypt    = errors.New("aes decrypt failed")
)

var zeroIV = make([]byte, aes.BlockSize)

// Encrypt encrypts plaintext with the base64 key and returns base64 ciphertext.
func Encrypt(plaintext string, keyBase64 string) (string, error) {
	block, err := newBlock(keyBase64)
	if err != nil {
		return "", err
	}
	padded := pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, zeroIV).CryptBlocks(out, padded)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. Every failure wraps ErrDecrypt or ErrInvalidKey.
func Decrypt(ciphertextBase64 string, keyBase64 string) (string, error) {
	block, err := newBlock(keyBase64)
	if err != nil {
		return "", err
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(ciphertextBase64))
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext base64: %v", ErrDecrypt, err)
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: ciphertext length %d is not a multiple of %d", ErrDecrypt, len(raw), aes.BlockSize)
	}
	out := make([]byte, len(raw))
	cipher.NewCBCDecrypter(block, zeroIV).CryptBlocks(out, raw)
	plain, err := unpad(out, aes.BlockSize)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return string(plain), nil
}

func newBlock(keyBase64 string) (cipher.Block, error) {
	key, err := keys.ParseAESKey(keyBase64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return block, nil
}

func pad(data []byte, size int) []byte {
	n := size - len(data)%size
	return append(append([]byte(nil), data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(data []byte, size int) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty plaintext")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > size || n > len(data) {
		return nil, errors.New("bad padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errors.New("bad padding")
		}
	}
	return data[:len(data)-n], nil
}
