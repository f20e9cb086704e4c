// Package totem manages the facial-recognition terminals and authenticates
// their API keys.
package totem

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"classroll/internal/apperr"
	"classroll/internal/model"
)

var (
	ErrMissingKey  = apperr.Unauthorized("totem api key is required")
	ErrInvalidKey  = apperr.Unauthorized("invalid or inactive totem api key")
	ErrNotFound    = apperr.NotFound("totem not found")
	ErrUnknownRoom = apperr.Validation("room does not exist")
)

const keyBytes = 32

// Store is the totem persistence. Lookups return nil, nil when nothing matches.
type Store interface {
	Insert(ctx context.Context, t model.Totem, keyHash string) (*model.Totem, error)
	Get(ctx context.Context, id string) (*model.Totem, error)
	ByKeyHash(ctx context.Context, keyHash string) (*model.Totem, error)
	List(ctx context.Context) ([]model.Totem, error)
	SetActive(ctx context.Context, id string, active bool) (*model.Totem, error)
	SetKeyHash(ctx context.Context, id, keyHash string) (*model.Totem, error)
	Touch(ctx context.Context, id string, at time.Time) error
}

type Service struct {
	store  Store
	log    *zap.Logger
	now    func() time.Time
	newKey func() (string, error)
}

func NewService(store Store, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, log: log, now: time.Now, newKey: generateKey}
}

func generateKey() (string, error) {
	b := make([]byte, keyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Authenticate resolves an API key to its active totem and records the
// contact time.
func (s *Service) Authenticate(ctx context.Context, apiKey string) (*model.Totem, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrMissingKey
	}
	t, err := s.store.ByKeyHash(ctx, hashKey(apiKey))
	if err != nil {
		return nil, err
	}
	if t == nil || !t.Active {
		return nil, ErrInvalidKey
	}

	now := s.now().UTC()
	if err := s.store.Touch(ctx, t.ID, now); err != nil {
		s.log.Warn("totem last_seen_at update failed", zap.String("totem_id", t.ID), zap.Error(err))
	} else {
		t.LastSeenAt = &now
	}
	return t, nil
}

// CreateInput describes a new totem.
type CreateInput struct {
	Name     string
	Location string
	RoomID   string
}

// Create registers a totem. The returned value is the only one that ever
// carries the plaintext API key.
func (s *Service) Create(ctx context.Context, in CreateInput) (*model.Totem, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Location = strings.TrimSpace(in.Location)
	switch {
	case len([]rune(in.Name)) < 2 || len([]rune(in.Name)) > 60:
		return nil, apperr.Validation("name must have between 2 and 60 characters")
	case len([]rune(in.Location)) < 2 || len([]rune(in.Location)) > 120:
		return nil, apperr.Validation("location must have between 2 and 120 characters")
	case in.RoomID == "":
		return nil, apperr.Validation("room is required")
	}

	key, err := s.newKey()
	if err != nil {
		return nil, err
	}
	t, err := s.store.Insert(ctx, model.Totem{
		ID:       uuid.NewString(),
		Name:     in.Name,
		Location: in.Location,
		RoomID:   in.RoomID,
		Active:   true,
	}, hashKey(key))
	if err != nil {
		return nil, err
	}
	t.APIKey = key
	s.log.Info("totem created", zap.String("totem_id", t.ID), zap.String("room_id", t.RoomID))
	return t, nil
}

func (s *Service) Get(ctx context.Context, id string) (*model.Totem, error) {
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrNotFound
	}
	return t, nil
}

func (s *Service) List(ctx context.Context) ([]model.Totem, error) {
	list, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []model.Totem{}
	}
	return list, nil
}

// SetActive enables or disables a totem. A disabled totem fails
// authentication until re-enabled.
func (s *Service) SetActive(ctx context.Context, id string, active bool) (*model.Totem, error) {
	t, err := s.store.SetActive(ctx, id, active)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrNotFound
	}
	s.log.Info("totem status changed", zap.String("totem_id", id), zap.Bool("active", active))
	return t, nil
}

// RegenerateKey replaces the totem's key; the old one stops working at once.
func (s *Service) RegenerateKey(ctx context.Context, id string) (*model.Totem, error) {
	key, err := s.newKey()
	if err != nil {
		return nil, err
	}
	t, err := s.store.SetKeyHash(ctx, id, hashKey(key))
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrNotFound
	}
	t.APIKey = key
	s.log.Info("totem key regenerated", zap.String("totem_id", id))
	return t, nil
}
