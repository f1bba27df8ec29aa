package predictions

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTTL bounds how stale a served prediction document can be.
const DefaultTTL = 60 * time.Second

const latestKey = "latest"

// Document is a parsed prediction payload. The schema is owned by the
// prediction pipeline; this service treats it as opaque JSON.
type Document = map[string]any

type cacheEntry struct {
	doc     Document
	expires time.Time
}

// Service caches prediction documents in memory in front of the blob store.
// The "latest" document is refilled under a mutex with a double-checked
// cache read so concurrent misses collapse into one fetch; per-game keys
// tolerate duplicate fetches and skip the lock.
type Service struct {
	store Store
	ttl   time.Duration
	log   zerolog.Logger

	refillMu sync.Mutex
	mu       sync.RWMutex
	entries  map[string]cacheEntry
}

func NewService(store Store, ttl time.Duration, log zerolog.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		store:   store,
		ttl:     ttl,
		log:     log,
		entries: make(map[string]cacheEntry),
	}
}

// Latest returns the latest predictions document.
func (s *Service) Latest(ctx context.Context) (Document, error) {
	if doc, ok := s.cached(latestKey); ok {
		return doc, nil
	}

	s.refillMu.Lock()
	defer s.refillMu.Unlock()

	// Re-check after acquiring the lock; another request may have refilled.
	if doc, ok := s.cached(latestKey); ok {
		return doc, nil
	}

	doc, err := s.fetch(ctx, "latest.json")
	if err != nil {
		return nil, err
	}
	s.put(latestKey, doc)
	s.log.Info().Msg("cached latest predictions")
	return doc, nil
}

// GameDetail returns the detail document for one game.
func (s *Service) GameDetail(ctx context.Context, gameID string) (Document, error) {
	key := "game:" + gameID
	if doc, ok := s.cached(key); ok {
		return doc, nil
	}

	doc, err := s.fetch(ctx, "game_details/"+SanitizeGameID(gameID)+".json")
	if err != nil {
		return nil, err
	}
	s.put(key, doc)
	return doc, nil
}

// Meta describes the prediction model behind the latest document.
type Meta struct {
	ModelVersion    string   `json:"model_version"`
	LastRun         string   `json:"last_run"`
	OddsUpdated     string   `json:"odds_updated"`
	FeatureCount    int      `json:"feature_count"`
	TrainingGames   int      `json:"training_games"`
	TrainingSeasons []string `json:"training_seasons"`
	APIVersion      string   `json:"api_version"`
}

// Meta extracts model metadata from the latest predictions, falling back to
// zero values when predictions are unavailable.
func (s *Service) Meta(ctx context.Context) Meta {
	meta := Meta{
		ModelVersion:    "unknown",
		TrainingSeasons: []string{},
		APIVersion:      "1.0.0",
	}

	doc, err := s.Latest(ctx)
	if err != nil {
		return meta
	}
	raw, ok := doc["meta"].(map[string]any)
	if !ok {
		return meta
	}

	if v, ok := raw["model_version"].(string); ok && v != "" {
		meta.ModelVersion = v
	}
	if v, ok := raw["generated_at"].(string); ok {
		meta.LastRun = v
	}
	if v, ok := raw["data_freshness"].(string); ok {
		meta.OddsUpdated = v
	}
	if v, ok := raw["feature_count"].(float64); ok {
		meta.FeatureCount = int(v)
	}
	if v, ok := raw["training_games"].(float64); ok {
		meta.TrainingGames = int(v)
	}
	if v, ok := raw["training_seasons"].([]any); ok {
		for _, season := range v {
			if str, ok := season.(string); ok {
				meta.TrainingSeasons = append(meta.TrainingSeasons, str)
			}
		}
	}
	if v, ok := raw["api_version"].(string); ok && v != "" {
		meta.APIVersion = v
	}
	return meta
}

// SanitizeGameID neutralizes path separators so a game id cannot escape the
// game_details/ prefix.
func SanitizeGameID(gameID string) string {
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(gameID)
}

func (s *Service) fetch(ctx context.Context, key string) (Document, error) {
	body, err := s.store.Fetch(ctx, key)
	if err != nil {
		return nil, err
	}

	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("invalid JSON in prediction document")
		return nil, ErrUnavailable
	}
	return doc, nil
}

func (s *Service) cached(key string) (Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[key]
	if !ok || time.Now().After(entry.expires) {
		return nil, false
	}
	return entry.doc, true
}

func (s *Service) put(key string, doc Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = cacheEntry{doc: doc, expires: time.Now().Add(s.ttl)}
}

// Invalidate drops one cached key, or everything when key is empty.
func (s *Service) Invalidate(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key == "" {
		s.entries = make(map[string]cacheEntry)
		return
	}
	delete(s.entries, key)
}

// IsNotFound reports whether err means the document does not exist, as
// opposed to the backend being unavailable.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
