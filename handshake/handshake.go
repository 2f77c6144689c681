// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package handshake implements the key exchange that opens an encrypted
// ADNL channel to a lite server.
//
// The client generates an ephemeral ed25519 key and 160 random session
// parameters, encrypts the parameters with a key derived from the X25519
// shared secret between the ephemeral key and the server's long-term key, and
// sends them in a single 256-byte packet. Both sides then derive the AES-CTR
// stream ciphers for each direction from the session parameters.
package handshake

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"
	"io"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/curve25519"
)

const (
	// PacketSize is the size of the client handshake packet
	PacketSize = 256
	// ParamsSize is the size of the random session parameters
	ParamsSize = 160
)

// pub.ed25519 constructor id, little endian
var keyIdPrefix = []byte{0xc6, 0xb4, 0x13, 0x48}

var (
	ErrKeyMismatch      = errors.New("handshake: packet is not addressed to this key")
	ErrChecksumMismatch = errors.New("handshake: parameter checksum mismatch")
)

// Session holds the stream ciphers of an established channel
type Session struct {
	Send cipher.Stream
	Recv cipher.Stream
}

// KeyIdFromPublic returns the short id of an ed25519 public key
func KeyIdFromPublic(pub ed25519.PublicKey) [32]byte {
	h := sha256.New()
	h.Write(keyIdPrefix)
	h.Write(pub)
	var ret [32]byte
	copy(ret[:], h.Sum(nil))
	return ret
}

// SharedSecret computes the X25519 shared secret between an ed25519 private
// key and a peer's ed25519 public key
func SharedSecret(priv ed25519.PrivateKey, peer ed25519.PublicKey) ([]byte, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("handshake: invalid private key size %d", len(priv))
	}
	h := sha512.Sum512(priv.Seed())
	scalar := h[:32]
	scalar[0] &= 248
	scalar[31] &= 127
	scalar[31] |= 64
	point, err := new(edwards25519.Point).SetBytes(peer)
	if err != nil {
		return nil, fmt.Errorf("handshake: invalid peer key: %w", err)
	}
	return curve25519.X25519(scalar, point.BytesMontgomery())
}

func newStream(key []byte, iv []byte) (cipher.Stream, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewCTR(block, iv), nil
}

func handshakeStream(secret []byte, checksum []byte) (cipher.Stream, error) {
	key := make([]byte, 0, 32)
	key = append(key, secret[0:16]...)
	key = append(key, checksum[16:32]...)
	iv := make([]byte, 0, 16)
	iv = append(iv, checksum[0:4]...)
	iv = append(iv, secret[20:32]...)
	return newStream(key, iv)
}

func newSession(params []byte, isClient bool) (*Session, error) {
	rx, err := newStream(params[0:32], params[64:80])
	if err != nil {
		return nil, err
	}
	tx, err := newStream(params[32:64], params[80:96])
	if err != nil {
		return nil, err
	}
	if isClient {
		return &Session{Send: tx, Recv: rx}, nil
	}
	return &Session{Send: rx, Recv: tx}, nil
}

// Client builds the handshake packet for a server with the given public key
// and returns it along with the client side of the session
func Client(serverKey ed25519.PublicKey, rand io.Reader) ([]byte, *Session, error) {
	params := make([]byte, ParamsSize)
	if _, err := io.ReadFull(rand, params); err != nil {
		return nil, nil, err
	}
	ephemeralPub, ephemeralPriv, err := ed25519.GenerateKey(rand)
	if err != nil {
		return nil, nil, err
	}
	secret, err := SharedSecret(ephemeralPriv, serverKey)
	if err != nil {
		return nil, nil, err
	}
	checksum := sha256.Sum256(params)
	stream, err := handshakeStream(secret, checksum[:])
	if err != nil {
		return nil, nil, err
	}
	encrypted := make([]byte, ParamsSize)
	stream.XORKeyStream(encrypted, params)
	keyId := KeyIdFromPublic(serverKey)
	packet := make([]byte, 0, PacketSize)
	packet = append(packet, keyId[:]...)
	packet = append(packet, ephemeralPub...)
	packet = append(packet, checksum[:]...)
	packet = append(packet, encrypted...)
	session, err := newSession(params, true)
	if err != nil {
		return nil, nil, err
	}
	return packet, session, nil
}

// Server processes a client handshake packet and returns the server side of the session
func Server(priv ed25519.PrivateKey, packet []byte) (*Session, error) {
	if len(packet) != PacketSize {
		return nil, fmt.Errorf("handshake: invalid packet size %d", len(packet))
	}
	keyId := KeyIdFromPublic(priv.Public().(ed25519.PublicKey))
	if !bytes.Equal(packet[0:32], keyId[:]) {
		return nil, ErrKeyMismatch
	}
	secret, err := SharedSecret(priv, ed25519.PublicKey(packet[32:64]))
	if err != nil {
		return nil, err
	}
	checksum := packet[64:96]
	stream, err := handshakeStream(secret, checksum)
	if err != nil {
		return nil, err
	}
	params := make([]byte, ParamsSize)
	stream.XORKeyStream(params, packet[96:])
	got := sha256.Sum256(params)
	if !bytes.Equal(got[:], checksum) {
		return nil, ErrChecksumMismatch
	}
	return newSession(params, false)
}
