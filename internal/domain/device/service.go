// Package device manages this player's identity: a stable UUID and a
// user-facing name, kept in the state store across restarts.
package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/neon-player-backend/internal/infra/store"
)

// Key is the store key holding the identity record.
const Key = "device"

// DefaultName is used when the hostname is unavailable.
const DefaultName = "Neon Player"

const storeTimeout = 2 * time.Second

// Info is the identity reported to clients.
type Info struct {
	UUID string `json:"id"`
	Name string `json:"name"`
}

type record struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

// Service holds the identity in memory and writes changes through to the
// store. A missing or unreachable store yields a session-only identity.
type Service struct {
	mu    sync.RWMutex
	store store.Store
	info  Info
}

// NewService loads the identity from st, creating and saving a new one
// when none exists or the stored record is unusable.
func NewService(st store.Store) *Service {
	s := &Service{store: st}
	if err := s.load(); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Warn().Err(err).Msg("Device identity unreadable, generating a new one")
		}
		s.info = Info{UUID: uuid.New().String(), Name: defaultName()}
		if err := s.save(); err != nil {
			log.Warn().Err(err).Msg("Failed to persist device identity")
		}
	}
	log.Info().Str("uuid", s.info.UUID).Str("name", s.info.Name).Msg("Device identity ready")
	return s
}

func (s *Service) load() error {
	if s.store == nil {
		return store.ErrNotFound
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	data, err := s.store.Get(ctx, Key)
	if err != nil {
		return err
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("invalid device record: %w", err)
	}
	if _, err := uuid.Parse(rec.UUID); err != nil {
		return fmt.Errorf("invalid device uuid %q: %w", rec.UUID, err)
	}
	s.info = Info{UUID: rec.UUID, Name: rec.Name}
	if s.info.Name == "" {
		s.info.Name = defaultName()
	}
	return nil
}

func (s *Service) save() error {
	if s.store == nil {
		return nil
	}
	data, err := json.Marshal(record{UUID: s.info.UUID, Name: s.info.Name})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	return s.store.Set(ctx, Key, data)
}

// Info returns the current identity.
func (s *Service) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info
}

// UUID returns just the device UUID.
func (s *Service) UUID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info.UUID
}

// SetName renames the device. The new name is kept in memory even when
// the store write fails.
func (s *Service) SetName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("device name must not be empty")
	}
	if len(name) > 64 {
		return fmt.Errorf("device name too long: %d characters", len(name))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.info.Name = name
	return s.save()
}

func defaultName() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return DefaultName
	}
	return hostname
}
