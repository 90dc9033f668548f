package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/chacha20poly1305"
)

// ErrContentNotFound indica que el contenido del trabajo ya fue purgado
// o nunca existio.
var ErrContentNotFound = errors.New("transient content not found")

// ContentStore guarda los cuerpos sanitizados de un trabajo en
// almacenamiento transitorio cifrado, acotado por TTL. Se purga en
// cada transicion terminal; nunca sobrevive a la ventana de retencion.
type ContentStore interface {
	Put(ctx context.Context, jobID string, texts []string, ttl time.Duration) error
	Get(ctx context.Context, jobID string) ([]string, error)
	Purge(ctx context.Context, jobID string) error
}

// cipherBox encapsula el cifrado simetrico del contenido en reposo.
type cipherBox struct {
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	}
}

// newCipherBox recibe la clave en hex (32 bytes). Clave vacia desactiva
// el cifrado solo para entornos de desarrollo.
func newCipherBox(hexKey string) (*cipherBox, error) {
	if hexKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("content encryption key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("content encryption key: %w", err)
	}
	return &cipherBox{aead: aead}, nil
}

func (b *cipherBox) seal(plain []byte) ([]byte, error) {
	if b == nil {
		return plain, nil
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return append(nonce, b.aead.Seal(nil, nonce, plain, nil)...), nil
}

func (b *cipherBox) open(sealed []byte) ([]byte, error) {
	if b == nil {
		return sealed, nil
	}
	if len(sealed) < chacha20poly1305.NonceSizeX {
		return nil, errors.New("sealed content too short")
	}
	nonce, ciphertext := sealed[:chacha20poly1305.NonceSizeX], sealed[chacha20poly1305.NonceSizeX:]
	return b.aead.Open(nil, nonce, ciphertext, nil)
}

type redisContentStore struct {
	client *redis.Client
	box    *cipherBox
	prefix string
}

// NewRedisContentStore construye el store respaldado en redis con
// cifrado chacha20poly1305. hexKey vacia deja el contenido en claro.
func NewRedisContentStore(client *redis.Client, hexKey string) (ContentStore, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	box, err := newCipherBox(hexKey)
	if err != nil {
		return nil, err
	}
	return &redisContentStore{
		client: client,
		box:    box,
		prefix: "upload:content:",
	}, nil
}

func (s *redisContentStore) Put(ctx context.Context, jobID string, texts []string, ttl time.Duration) error {
	plain, err := json.Marshal(texts)
	if err != nil {
		return err
	}
	sealed, err := s.box.seal(plain)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+jobID, sealed, ttl).Err()
}

func (s *redisContentStore) Get(ctx context.Context, jobID string) ([]string, error) {
	sealed, err := s.client.Get(ctx, s.prefix+jobID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrContentNotFound
	}
	if err != nil {
		return nil, err
	}
	plain, err := s.box.open(sealed)
	if err != nil {
		return nil, err
	}
	var texts []string
	if err := json.Unmarshal(plain, &texts); err != nil {
		return nil, err
	}
	return texts, nil
}

func (s *redisContentStore) Purge(ctx context.Context, jobID string) error {
	return s.client.Del(ctx, s.prefix+jobID).Err()
}

// memoryContentStore respalda tests y despliegues sin redis.
type memoryContentStore struct {
	mu    sync.Mutex
	box   *cipherBox
	items map[string]memoryContentItem
}

type memoryContentItem struct {
	sealed    []byte
	expiresAt time.Time
}

func NewMemoryContentStore(hexKey string) (ContentStore, error) {
	box, err := newCipherBox(hexKey)
	if err != nil {
		return nil, err
	}
	return &memoryContentStore{
		box:   box,
		items: make(map[string]memoryContentItem),
	}, nil
}

func (s *memoryContentStore) Put(_ context.Context, jobID string, texts []string, ttl time.Duration) error {
	plain, err := json.Marshal(texts)
	if err != nil {
		return err
	}
	sealed, err := s.box.seal(plain)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[jobID] = memoryContentItem{
		sealed:    sealed,
		expiresAt: time.Now().UTC().Add(ttl),
	}
	return nil
}

func (s *memoryContentStore) Get(_ context.Context, jobID string) ([]string, error) {
	s.mu.Lock()
	item, ok := s.items[jobID]
	if ok && time.Now().UTC().After(item.expiresAt) {
		delete(s.items, jobID)
		ok = false
	}
	s.mu.Unlock()

	if !ok {
		return nil, ErrContentNotFound
	}
	plain, err := s.box.open(item.sealed)
	if err != nil {
		return nil, err
	}
	var texts []string
	if err := json.Unmarshal(plain, &texts); err != nil {
		return nil, err
	}
	return texts, nil
}

func (s *memoryContentStore) Purge(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, jobID)
	return nil
}
