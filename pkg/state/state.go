// Package state persists assistant state that must survive restarts: the
// topic registry, user profiles, rules, and feedback. Payloads are JSON,
// optionally encrypted at rest.
package state

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/echomind-ai/echomind/pkg/convo"
	"github.com/echomind-ai/echomind/pkg/errors"
	"github.com/echomind-ai/echomind/pkg/learner"
	"github.com/echomind-ai/echomind/pkg/log"
	"github.com/echomind-ai/echomind/pkg/rules"
	"github.com/echomind-ai/echomind/pkg/secure"
)

var (
	bucketTopics   = []byte("topics")
	bucketProfiles = []byte("profiles")
	bucketRules    = []byte("rules")
	bucketFeedback = []byte("feedback")
)

// Store persists assistant state in a bbolt database.
type Store struct {
	db        *bolt.DB
	encryptor secure.Encryptor
}

// NewStore opens (or creates) the database at path. A nil encryptor stores
// payloads in the clear.
func NewStore(path string, encryptor secure.Encryptor) (*Store, error) {
	if path == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "state store path cannot be empty")
	}
	if encryptor == nil {
		encryptor = secure.Noop{}
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errors.Wrap(errors.ErrStoreUnavailable, "failed to open state store: %v", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketTopics, bucketProfiles, bucketRules, bucketFeedback} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	log.Debug("Opened state store", "path", path)
	return &Store{db: db, encryptor: encryptor}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) put(bucket []byte, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	sealed, err := s.encryptor.Encrypt(data)
	if err != nil {
		return fmt.Errorf("failed to encrypt value: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), sealed)
	})
}

func (s *Store) delete(bucket []byte, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete([]byte(key))
	})
}

// forEach decodes every value in a bucket into fresh instances produced by
// decode.
func (s *Store) forEach(bucket []byte, decode func(data []byte) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(_, sealed []byte) error {
			data, err := s.encryptor.Decrypt(sealed)
			if err != nil {
				return fmt.Errorf("failed to decrypt value: %w", err)
			}
			return decode(data)
		})
	})
}

// SaveTopic persists a topic entry.
func (s *Store) SaveTopic(entry learner.TopicEntry) error {
	return s.put(bucketTopics, entry.Topic, entry)
}

// DeleteTopic removes a persisted topic.
func (s *Store) DeleteTopic(topic string) error {
	return s.delete(bucketTopics, topic)
}

// Topics loads every persisted topic entry.
func (s *Store) Topics() ([]learner.TopicEntry, error) {
	var entries []learner.TopicEntry
	err := s.forEach(bucketTopics, func(data []byte) error {
		var entry learner.TopicEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			return err
		}
		entries = append(entries, entry)
		return nil
	})
	return entries, err
}

// SaveProfile persists a user profile.
func (s *Store) SaveProfile(profile convo.UserProfile) error {
	return s.put(bucketProfiles, profile.UserID, profile)
}

// Profiles loads every persisted user profile.
func (s *Store) Profiles() ([]convo.UserProfile, error) {
	var profiles []convo.UserProfile
	err := s.forEach(bucketProfiles, func(data []byte) error {
		var profile convo.UserProfile
		if err := json.Unmarshal(data, &profile); err != nil {
			return err
		}
		profiles = append(profiles, profile)
		return nil
	})
	return profiles, err
}

// SaveRule persists a rule.
func (s *Store) SaveRule(rule rules.Rule) error {
	return s.put(bucketRules, rule.ID, rule)
}

// DeleteRule removes a persisted rule.
func (s *Store) DeleteRule(id string) error {
	return s.delete(bucketRules, id)
}

// Rules loads every persisted rule.
func (s *Store) Rules() ([]rules.Rule, error) {
	var out []rules.Rule
	err := s.forEach(bucketRules, func(data []byte) error {
		var rule rules.Rule
		if err := json.Unmarshal(data, &rule); err != nil {
			return err
		}
		out = append(out, rule)
		return nil
	})
	return out, err
}

// SaveFeedback appends a feedback record.
func (s *Store) SaveFeedback(fb convo.Feedback) error {
	key := fmt.Sprintf("%s/%d", fb.UserID, fb.Timestamp.UnixNano())
	return s.put(bucketFeedback, key, fb)
}

// Feedback loads every persisted feedback record.
func (s *Store) Feedback() ([]convo.Feedback, error) {
	var out []convo.Feedback
	err := s.forEach(bucketFeedback, func(data []byte) error {
		var fb convo.Feedback
		if err := json.Unmarshal(data, &fb); err != nil {
			return err
		}
		out = append(out, fb)
		return nil
	})
	return out, err
}
