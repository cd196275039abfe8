// Package history reads a player's items from their SkyBlock profiles and the
// item-history service and merges them into the ledger.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"hexwatch-backend/config"
	"hexwatch-backend/internal/colorimetry"
	"hexwatch-backend/internal/itemdata"
	"hexwatch-backend/internal/model"
	"hexwatch-backend/internal/store"
	"hexwatch-backend/pkg/logger"
)

// Location marks ledger records learned from item history.
const Location = "item_history"

// ErrDisabled is returned when the history service is not configured.
var ErrDisabled = errors.New("item history is disabled")

// Item is one entry of a player's item history. LastChecked is epoch ms.
type Item struct {
	ID          string  `json:"_id"`
	ItemID      string  `json:"itemId"`
	Colour      string  `json:"colour"`
	LastChecked float64 `json:"lastChecked"`
}

type playerItems struct {
	Items []Item `json:"items"`
}

// Client talks to the item-history service.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client. A nil http client gets the configured timeout.
func NewClient(cfg config.HistoryConfig, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{baseURL: strings.TrimRight(cfg.URL, "/"), client: client}
}

// PlayerItems lists the items the service has seen owner holding.
func (c *Client) PlayerItems(ctx context.Context, owner string) ([]Item, error) {
	u := c.baseURL + "/items/player/" + url.PathEscape(owner)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("item history request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("item history returned status %d", resp.StatusCode)
	}
	var body playerItems
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode item history: %w", err)
	}
	return body.Items, nil
}

// Resolver refreshes ledger ownership from a player's current inventories
// and their item history.
type Resolver struct {
	client    *Client
	inventory *InventoryClient
	store     store.Store
	watched   map[string]string
	log       logger.Logger
	now       func() time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithInventory adds the profiles source. Its records win over item history
// for the same item.
func WithInventory(c *InventoryClient) Option {
	return func(r *Resolver) { r.inventory = c }
}

// WithClock overrides the time stamped on inventory records.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// NewResolver creates a resolver limited to the watched item kinds. With a
// nil client and no inventory source it is disabled.
func NewResolver(client *Client, st store.Store, watched map[string]string, log logger.Logger, opts ...Option) *Resolver {
	r := &Resolver{client: client, store: st, watched: watched, log: logger.OrNop(log), now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Enabled reports whether Refresh will reach any source.
func (r *Resolver) Enabled() bool {
	return r != nil && (r.client != nil || r.inventory != nil)
}

// Refresh records owner's watched items and returns how many were written.
// Inventory records are taken first; a history entry for an item already
// found in an inventory is dropped. A failing source is logged and skipped
// unless every source fails.
//
// History timestamps are milliseconds and are divided down to the seconds
// the scanner writes, so both sources meet in the same last_seen gate.
func (r *Resolver) Refresh(ctx context.Context, owner string) (int, error) {
	if !r.Enabled() {
		return 0, ErrDisabled
	}

	var (
		pieces []model.Piece
		errs   []error
		found  = make(map[string]bool)
	)
	add := func(p model.Piece) {
		if found[p.ItemUUID] {
			return
		}
		found[p.ItemUUID] = true
		pieces = append(pieces, p)
	}

	if r.inventory != nil {
		inv, err := r.inventoryPieces(ctx, owner)
		if err != nil {
			r.log.Warn(ctx, "inventory read failed", logger.String("owner", owner), logger.Error(err))
			errs = append(errs, err)
		}
		for _, p := range inv {
			add(p)
		}
	}
	if r.client != nil {
		hist, err := r.historyPieces(ctx, owner)
		if err != nil {
			r.log.Warn(ctx, "item history read failed", logger.String("owner", owner), logger.Error(err))
			errs = append(errs, err)
		}
		for _, p := range hist {
			add(p)
		}
	}

	sources := 0
	if r.inventory != nil {
		sources++
	}
	if r.client != nil {
		sources++
	}
	if len(errs) == sources {
		return 0, errors.Join(errs...)
	}
	if len(pieces) == 0 {
		return 0, nil
	}
	if err := r.store.UpsertBatch(ctx, pieces); err != nil {
		return 0, fmt.Errorf("failed to record items for %s: %w", owner, err)
	}
	return len(pieces), nil
}

func (r *Resolver) inventoryPieces(ctx context.Context, owner string) ([]model.Piece, error) {
	containers, err := r.inventory.Containers(ctx, owner)
	if err != nil {
		return nil, err
	}
	now := r.now().Unix()
	var pieces []model.Piece
	for _, c := range containers {
		items, err := itemdata.Decode(c.Data)
		if err != nil {
			r.log.Debug(ctx, "skipping undecodable inventory",
				logger.String("owner", owner), logger.String("location", c.Name), logger.Error(err))
			continue
		}
		for _, it := range items {
			if _, ok := r.watched[it.Kind]; !ok || it.UUID == "" || !it.HasColor {
				continue
			}
			pieces = append(pieces, model.Piece{
				ItemUUID: it.UUID,
				ItemKind: it.Kind,
				Owner:    owner,
				Location: c.Name,
				LastSeen: now,
				HexCode:  it.Hex(),
			})
		}
	}
	return pieces, nil
}

func (r *Resolver) historyPieces(ctx context.Context, owner string) ([]model.Piece, error) {
	items, err := r.client.PlayerItems(ctx, owner)
	if err != nil {
		return nil, err
	}
	pieces := make([]model.Piece, 0, len(items))
	for _, it := range items {
		if _, ok := r.watched[it.ItemID]; !ok || it.ID == "" {
			continue
		}
		hex, err := colorimetry.NormalizeHex(it.Colour)
		if err != nil {
			r.log.Debug(ctx, "skipping history item with bad colour",
				logger.String("item", it.ID), logger.String("colour", it.Colour))
			continue
		}
		pieces = append(pieces, model.Piece{
			ItemUUID: it.ID,
			ItemKind: it.ItemID,
			Owner:    owner,
			Location: Location,
			LastSeen: int64(it.LastChecked / 1000),
			HexCode:  hex,
		})
	}
	return pieces, nil
}
