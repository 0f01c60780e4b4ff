package settings

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	dbmodel "agentdock/internal/db"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Known keys. Script-path keys keep the names the panels were configured
// with in the editor extension so existing docs still apply.
const (
	KeyJiraScriptPath  = "jiraStoryBot.scriptPath"
	KeyCoderScriptPath = "coderBot.scriptPath"
	KeyJenkinsURL      = "jenkins.url"
	KeyJenkinsUser     = "jenkins.user"
	KeyJenkinsToken    = "jenkins.token"

	secretKeySize = 32
)

var ErrUnknownKey = errors.New("unknown setting key")

var knownKeys = map[string]bool{
	KeyJiraScriptPath:  false,
	KeyCoderScriptPath: false,
	KeyJenkinsURL:      false,
	KeyJenkinsUser:     false,
	KeyJenkinsToken:    true,
}

// IsKnown reports whether key is a recognised setting.
func IsKnown(key string) bool {
	_, ok := knownKeys[key]
	return ok
}

// IsSecret reports whether key is encrypted at rest and redacted on read.
func IsSecret(key string) bool {
	return knownKeys[key]
}

type Jenkins struct {
	URL      string
	User     string
	Token    string
	TokenSet bool
}

type Store struct {
	db  *gorm.DB
	key []byte
}

// NewStore uses the shared global DB. Caller must not close the db.
func NewStore(db *gorm.DB, secretPath string) (*Store, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	key, err := loadOrCreateSecretKey(secretPath)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, key: key}, nil
}

// Close is a no-op; DB is process-wide and must not be closed by the store.
func (s *Store) Close() error {
	return nil
}

// Get returns the decrypted value for key. ok is false when no override is stored.
func (s *Store) Get(key string) (string, bool, error) {
	if !IsKnown(key) {
		return "", false, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	raw, ok, err := s.rawValueOptional(key)
	if err != nil || !ok {
		return "", false, err
	}
	if !IsSecret(key) {
		return raw, true, nil
	}
	plain, err := decryptValue(raw, s.key)
	if err != nil {
		return "", false, err
	}
	return plain, true, nil
}

// Set stores value for key. A blank value removes the override.
func (s *Store) Set(key, value string) error {
	return s.SetMany(map[string]string{key: value})
}

// SetMany writes all values in one transaction.
func (s *Store) SetMany(values map[string]string) error {
	if s == nil || s.db == nil {
		return errors.New("settings store is not initialized")
	}
	for key := range values {
		if !IsKnown(key) {
			return fmt.Errorf("%w: %s", ErrUnknownKey, key)
		}
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		for key, value := range values {
			value = strings.TrimSpace(value)
			if value == "" {
				if err := tx.Where("key = ?", key).Delete(&dbmodel.Config{}).Error; err != nil {
					return err
				}
				continue
			}
			if IsSecret(key) {
				enc, err := encryptValue(value, s.key)
				if err != nil {
					return err
				}
				value = enc
			}
			if err := upsertValue(tx, key, value); err != nil {
				return err
			}
		}
		return nil
	})
}

// Snapshot returns every known key for display. Secrets are never returned;
// a "<key>_set" flag reports whether one is stored.
func (s *Store) Snapshot() (map[string]any, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("settings store is not initialized")
	}
	keys := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		raw, ok, err := s.rawValueOptional(k)
		if err != nil {
			return nil, err
		}
		if IsSecret(k) {
			out[k+"_set"] = ok
			continue
		}
		out[k] = raw
	}
	return out, nil
}

func (s *Store) LoadJenkins() (Jenkins, error) {
	url, _, err := s.Get(KeyJenkinsURL)
	if err != nil {
		return Jenkins{}, err
	}
	user, _, err := s.Get(KeyJenkinsUser)
	if err != nil {
		return Jenkins{}, err
	}
	token, tokenSet, err := s.Get(KeyJenkinsToken)
	if err != nil {
		return Jenkins{}, err
	}
	return Jenkins{
		URL:      strings.TrimRight(strings.TrimSpace(url), "/"),
		User:     strings.TrimSpace(user),
		Token:    token,
		TokenSet: tokenSet,
	}, nil
}

// SaveJenkins writes URL and user; an empty token keeps the stored one.
func (s *Store) SaveJenkins(cfg Jenkins) error {
	values := map[string]string{
		KeyJenkinsURL:  cfg.URL,
		KeyJenkinsUser: cfg.User,
	}
	if strings.TrimSpace(cfg.Token) != "" {
		values[KeyJenkinsToken] = cfg.Token
	}
	return s.SetMany(values)
}

func (s *Store) rawValue(key string) (string, error) {
	if s == nil || s.db == nil {
		return "", errors.New("settings store is not initialized")
	}
	var row dbmodel.Config
	if err := s.db.Model(&dbmodel.Config{}).Select("value").Where("key = ?", key).Take(&row).Error; err != nil {
		return "", err
	}
	return row.Value, nil
}

func (s *Store) rawValueOptional(key string) (string, bool, error) {
	v, err := s.rawValue(key)
	if err == nil {
		return v, true, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	return "", false, err
}

func upsertValue(tx *gorm.DB, key, value string) error {
	now := time.Now().UTC().Unix()
	row := dbmodel.Config{
		Key:       key,
		Value:     value,
		UpdatedAt: now,
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.Assignments(map[string]any{
			"value":      row.Value,
			"updated_at": row.UpdatedAt,
		}),
	}).Create(&row).Error
}

func loadOrCreateSecretKey(secretPath string) ([]byte, error) {
	if err := os.MkdirAll(filepath.Dir(secretPath), 0o755); err != nil {
		return nil, err
	}
	if b, err := os.ReadFile(secretPath); err == nil {
		if len(b) != secretKeySize {
			return nil, fmt.Errorf("invalid settings secret size: got %d", len(b))
		}
		return b, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	key := make([]byte, secretKeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	if err := os.WriteFile(secretPath, key, 0o600); err != nil {
		return nil, err
	}
	return key, nil
}

func encryptValue(plain string, key []byte) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plain), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func decryptValue(enc string, key []byte) (string, error) {
	blob, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return "", err
	}
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	nonceSize := gcm.NonceSize()
	if len(blob) < nonceSize {
		return "", errors.New("ciphertext too short")
	}
	plain, err := gcm.Open(nil, blob[:nonceSize], blob[nonceSize:], nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
