package identity

import (
	"crypto/rand"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// mnemonicWords is the number of words in a generated phrase: 16 bytes of
// seed entropy, one word per byte.
const mnemonicWords = 16

var wordIndex map[string]byte

func init() {
	wordIndex = make(map[string]byte, len(wordlist))
	for i, w := range wordlist {
		wordIndex[w] = byte(i)
	}
}

// GenerateMnemonic returns a fresh 16-word recovery phrase encoding 16
// random seed bytes (§4.A generate_mnemonic).
func GenerateMnemonic() ([]string, error) {
	seed := make([]byte, mnemonicWords)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("identity: generate mnemonic seed: %w", err)
	}
	return seedToWords(seed), nil
}

func seedToWords(seed []byte) []string {
	words := make([]string, len(seed))
	for i, b := range seed {
		words[i] = wordlist[b]
	}
	return words
}

func wordsToSeed(words []string) ([]byte, error) {
	if len(words) != mnemonicWords {
		return nil, fmt.Errorf("identity: mnemonic must have %d words, got %d", mnemonicWords, len(words))
	}
	seed := make([]byte, len(words))
	for i, w := range words {
		b, ok := wordIndex[strings.ToLower(strings.TrimSpace(w))]
		if !ok {
			return nil, fmt.Errorf("identity: unknown mnemonic word %q", w)
		}
		seed[i] = b
	}
	return seed, nil
}

// FromMnemonic deterministically derives the passphrase-KDF salt and the
// master key from the mnemonic's seed bytes, while generating fresh,
// non-deterministic KEM and signature keypairs (§4.A, §9 "Deterministic
// restoration from mnemonic"). Two restores of the same mnemonic therefore
// share a master key but differ in user_id; this is intentional and must
// be documented to callers of this package.
func FromMnemonic(words []string, passphrase string) (*Identity, *UnlockedIdentity, error) {
	seed, err := wordsToSeed(words)
	if err != nil {
		return nil, nil, err
	}

	saltSrc := blake2b.Sum256(append([]byte("msscs-mnemonic-salt-v1:"), seed...))
	masterSrc := blake2b.Sum256(append([]byte("msscs-mnemonic-master-v1:"), seed...))
	salt := saltSrc[:]
	var masterKey [32]byte
	copy(masterKey[:], masterSrc[:])

	kemPub, kemSec, err := kemScheme().GenerateKeyPair()
	if err != nil {
		return nil, nil, fmt.Errorf("identity: generate KEM keypair: %w", err)
	}
	signPub, signSec, err := signScheme().GenerateKey()
	if err != nil {
		return nil, nil, fmt.Errorf("identity: generate signature keypair: %w", err)
	}

	return seal(passphrase, salt, masterKey, kemPub, kemSec, signPub, signSec)
}
