// Package profile resolves player ids to display names.
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"hexwatch-backend/config"
	"hexwatch-backend/pkg/logger"
)

// Unknown is returned when a name cannot be resolved.
const Unknown = "Unknown"

type profileResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Resolver looks up player names from the session server and caches hits.
type Resolver struct {
	baseURL string
	client  *http.Client
	cache   *cache.Cache
	log     logger.Logger
}

// NewResolver creates a resolver. A nil client gets the configured timeout.
func NewResolver(cfg config.ProfileConfig, client *http.Client, log logger.Logger) *Resolver {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &Resolver{
		baseURL: strings.TrimRight(cfg.URL, "/") + "/",
		client:  client,
		cache:   cache.New(ttl, 2*ttl),
		log:     logger.OrNop(log),
	}
}

// Name returns the current name of player id, or Unknown.
func (r *Resolver) Name(ctx context.Context, id string) string {
	if id == "" {
		return Unknown
	}
	if v, ok := r.cache.Get(id); ok {
		return v.(string)
	}

	name, err := r.fetch(ctx, id)
	if err != nil {
		r.log.Debug(ctx, "profile lookup failed", logger.String("id", id), logger.Error(err))
		return Unknown
	}
	r.cache.SetDefault(id, name)
	return name
}

func (r *Resolver) fetch(ctx context.Context, id string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+id, nil)
	if err != nil {
		return "", err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("profile lookup returned status %d", resp.StatusCode)
	}
	var p profileResponse
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return "", fmt.Errorf("decode profile: %w", err)
	}
	if p.Name == "" {
		return "", fmt.Errorf("profile %s has no name", id)
	}
	return p.Name, nil
}
