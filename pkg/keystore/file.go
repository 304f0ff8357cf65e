package keystore

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bridgeval/engine/protocols/keygen"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/scrypt"
)

const (
	fileExt  = ".key"
	saltFile = "keystore.salt"
	saltSize = 16

	version    uint16 = 1
	flagSealed uint16 = 1 << 0
	headerSize        = 4 + 2 + 2 + 4 + 4
)

var magic = [4]byte{'C', 'F', 'K', 'S'}

var (
	// ErrChecksum is returned when a record does not match its checksum.
	ErrChecksum = errors.New("keystore: checksum mismatch")
	// ErrSealed is returned when a record is encrypted but the store has no passphrase.
	ErrSealed = errors.New("keystore: record is sealed but no passphrase was configured")
)

// FileStore is a Store keeping one file per key under a directory.
//
// On disk a record is
//
//	magic "CFKS" | version u16 | flags u16 | length u32 | crc32 u32 | payload
//
// with big endian integers. The payload is the CBOR encoded key share, or
// nonce || AES-256-GCM ciphertext of it when flags has flagSealed set.
type FileStore struct {
	mu   sync.RWMutex
	root string
	aead cipher.AEAD
	log  zerolog.Logger
}

// NewFileStore opens the store at root, creating the directory if needed.
//
// A non empty passphrase enables sealing: the AES key is derived with scrypt from
// the passphrase and a random salt kept in the directory.
func NewFileStore(root, passphrase string, logger zerolog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, errors.Wrap(err, "keystore: create root")
	}
	s := &FileStore{
		root: root,
		log:  logger.With().Str("component", "keystore").Logger(),
	}
	if passphrase == "" {
		return s, nil
	}
	salt, err := loadOrCreateSalt(filepath.Join(root, saltFile))
	if err != nil {
		return nil, err
	}
	key, err := scrypt.Key([]byte(passphrase), salt, 32768, 8, 1, 32)
	if err != nil {
		return nil, errors.Wrap(err, "keystore: derive key")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "keystore: create cipher")
	}
	if s.aead, err = cipher.NewGCM(block); err != nil {
		return nil, errors.Wrap(err, "keystore: create GCM")
	}
	return s, nil
}

func loadOrCreateSalt(path string) ([]byte, error) {
	salt, err := os.ReadFile(path)
	if err == nil {
		if len(salt) != saltSize {
			return nil, errors.Errorf("keystore: salt file has %d bytes", len(salt))
		}
		return salt, nil
	}
	if !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "keystore: read salt")
	}
	salt = make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, errors.Wrap(err, "keystore: generate salt")
	}
	if err := writeAtomic(path, salt); err != nil {
		return nil, errors.Wrap(err, "keystore: write salt")
	}
	return salt, nil
}

func (s *FileStore) path(publicKey []byte) string {
	return filepath.Join(s.root, KeyName(publicKey)+fileExt)
}

// Put implements Store.
func (s *FileStore) Put(_ context.Context, share *keygen.KeyShare) error {
	payload, err := encodeShare(share)
	if err != nil {
		return err
	}
	publicKey := share.PublicKeyBytes()

	flags := uint16(0)
	if s.aead != nil {
		nonce := make([]byte, s.aead.NonceSize())
		if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
			return errors.Wrap(err, "keystore: generate nonce")
		}
		// the public key is authenticated so records cannot be swapped between files
		payload = s.aead.Seal(nonce, nonce, payload, publicKey)
		flags |= flagSealed
	}

	record := make([]byte, headerSize, headerSize+len(payload))
	copy(record[0:4], magic[:])
	binary.BigEndian.PutUint16(record[4:6], version)
	binary.BigEndian.PutUint16(record[6:8], flags)
	binary.BigEndian.PutUint32(record[8:12], uint32(len(payload)))
	binary.BigEndian.PutUint32(record[12:16], crc32.ChecksumIEEE(payload))
	record = append(record, payload...)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeAtomic(s.path(publicKey), record); err != nil {
		s.log.Error().Err(err).Str("key", KeyName(publicKey)).Msg("failed to persist key share")
		return errors.Wrap(err, "keystore: persist")
	}
	s.log.Info().Str("key", KeyName(publicKey)).Bool("sealed", flags&flagSealed != 0).Msg("key share persisted")
	return nil
}

// Get implements Store.
func (s *FileStore) Get(_ context.Context, publicKey []byte) (*keygen.KeyShare, error) {
	s.mu.RLock()
	record, err := os.ReadFile(s.path(publicKey))
	s.mu.RUnlock()
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "keystore: read")
	}

	payload, flags, err := parseRecord(record)
	if err != nil {
		return nil, errors.Wrapf(err, "keystore: record %s", KeyName(publicKey))
	}
	if flags&flagSealed != 0 {
		if s.aead == nil {
			return nil, ErrSealed
		}
		nonceSize := s.aead.NonceSize()
		if len(payload) < nonceSize {
			return nil, errors.New("keystore: sealed payload too short")
		}
		if payload, err = s.aead.Open(nil, payload[:nonceSize], payload[nonceSize:], publicKey); err != nil {
			return nil, errors.Wrap(err, "keystore: open sealed record")
		}
	}

	share, err := decodeShare(payload)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(share.PublicKeyBytes(), publicKey) {
		return nil, errors.Errorf("keystore: record %s holds another key", KeyName(publicKey))
	}
	return share, nil
}

func parseRecord(record []byte) ([]byte, uint16, error) {
	if len(record) < headerSize {
		return nil, 0, errors.New("record too short")
	}
	if !bytes.Equal(record[0:4], magic[:]) {
		return nil, 0, errors.New("bad magic")
	}
	if v := binary.BigEndian.Uint16(record[4:6]); v != version {
		return nil, 0, errors.Errorf("unsupported version %d", v)
	}
	flags := binary.BigEndian.Uint16(record[6:8])
	length := binary.BigEndian.Uint32(record[8:12])
	payload := record[headerSize:]
	if uint64(len(payload)) != uint64(length) {
		return nil, 0, errors.Errorf("payload has %d bytes, expected %d", len(payload), length)
	}
	if crc32.ChecksumIEEE(payload) != binary.BigEndian.Uint32(record[12:16]) {
		return nil, 0, ErrChecksum
	}
	return payload, flags, nil
}

// List implements Store.
func (s *FileStore) List(context.Context) ([][]byte, error) {
	s.mu.RLock()
	entries, err := os.ReadDir(s.root)
	s.mu.RUnlock()
	if err != nil {
		return nil, errors.Wrap(err, "keystore: list")
	}
	var keys [][]byte
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		key, err := hex.DecodeString(strings.TrimSuffix(name, fileExt))
		if err != nil {
			s.log.Warn().Str("file", name).Msg("ignoring file with invalid key name")
			continue
		}
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i], keys[j]) < 0 })
	return keys, nil
}

// writeAtomic writes data to a temporary file, syncs it, and renames it over path.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
