package tokenstore

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Sealed files are JSON envelopes:
//
//	{"sealed": 1, "salt": "<b64>", "nonce": "<b64>", "data": "<b64 ciphertext+tag>"}
//
// The key is Argon2id(passphrase, salt); the cipher is XChaCha20-Poly1305.
const sealVersion = 1

const (
	saltLen     = 16
	argonTime   = 1
	argonMemory = 64 * 1024
	argonLanes  = 4
)

type envelope struct {
	Sealed int    `json:"sealed"`
	Salt   string `json:"salt"`
	Nonce  string `json:"nonce"`
	Data   string `json:"data"`
}

func deriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, argonTime, argonMemory, argonLanes, chacha20poly1305.KeySize)
}

func seal(plaintext, passphrase []byte) ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}

	aead, err := chacha20poly1305.NewX(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	ciphertext := aead.Seal(nil, nonce, plaintext, []byte{sealVersion})

	return json.MarshalIndent(envelope{
		Sealed: sealVersion,
		Salt:   base64.StdEncoding.EncodeToString(salt),
		Nonce:  base64.StdEncoding.EncodeToString(nonce),
		Data:   base64.StdEncoding.EncodeToString(ciphertext),
	}, "", "  ")
}

func unseal(data, passphrase []byte) ([]byte, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	if env.Sealed != sealVersion {
		return nil, fmt.Errorf("sealed file version %d is not supported", env.Sealed)
	}

	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil {
		return nil, fmt.Errorf("decoding salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil || len(nonce) != chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("invalid nonce")
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.Data)
	if err != nil {
		return nil, fmt.Errorf("decoding data: %w", err)
	}

	aead, err := chacha20poly1305.NewX(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte{sealVersion})
	if err != nil {
		return nil, fmt.Errorf("wrong passphrase or tampered file: %w", err)
	}
	return plaintext, nil
}

func isSealed(data []byte) bool {
	if !bytes.Contains(data, []byte(`"sealed"`)) {
		return false
	}
	var probe struct {
		Sealed int `json:"sealed"`
	}
	return json.Unmarshal(data, &probe) == nil && probe.Sealed != 0
}
