package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"hexwatch-backend/config"
)

// Container is one encoded inventory of a player. Name is the inventory's
// field name, suffixed with the slot index for backpacks.
type Container struct {
	Name string
	Data string
}

type encodedInventory struct {
	Data string `json:"data"`
}

// inventories carries the containers read for a member. The profiles API
// nests them under "inventory"; older responses put them on the member.
type inventories struct {
	Contents      *encodedInventory           `json:"inv_contents"`
	Armor         *encodedInventory           `json:"inv_armor"`
	Wardrobe      *encodedInventory           `json:"wardrobe_contents"`
	EnderChest    *encodedInventory           `json:"ender_chest_contents"`
	Backpacks     map[string]encodedInventory `json:"backpack_contents"`
	PersonalVault *encodedInventory           `json:"personal_vault_contents"`
}

type profileMember struct {
	inventories
	Inventory *inventories `json:"inventory"`
}

type profilesResponse struct {
	Success  *bool  `json:"success,omitempty"`
	Cause    string `json:"cause"`
	Profiles []struct {
		Members map[string]json.RawMessage `json:"members"`
	} `json:"profiles"`
}

// InventoryClient reads a player's current inventories from the SkyBlock
// profiles endpoint.
type InventoryClient struct {
	url    string
	key    string
	client *http.Client
}

// NewInventoryClient creates a client. A nil http client gets the configured
// timeout.
func NewInventoryClient(cfg config.InventoryConfig, client *http.Client) *InventoryClient {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &InventoryClient{url: cfg.URL, key: cfg.APIKey, client: client}
}

// Containers lists owner's inventories across all their profiles, in a
// stable order: profiles as returned, then inventory kind, then backpack
// index.
func (c *InventoryClient) Containers(ctx context.Context, owner string) ([]Container, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return nil, fmt.Errorf("invalid profiles url: %w", err)
	}
	q := u.Query()
	q.Set("uuid", owner)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.key != "" {
		req.Header.Set("API-Key", c.key)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("profiles request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("profiles returned status %d", resp.StatusCode)
	}
	var body profilesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode profiles: %w", err)
	}
	if body.Success != nil && !*body.Success {
		return nil, errors.New("profiles request rejected: " + body.Cause)
	}

	key := strings.ToLower(strings.ReplaceAll(owner, "-", ""))
	var out []Container
	for _, p := range body.Profiles {
		raw, ok := memberOf(p.Members, key)
		if !ok {
			continue
		}
		var m profileMember
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("failed to decode profile member: %w", err)
		}
		inv := m.inventories
		if m.Inventory != nil {
			inv = *m.Inventory
		}
		out = append(out, inv.containers()...)
	}
	return out, nil
}

func memberOf(members map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	if raw, ok := members[key]; ok {
		return raw, true
	}
	for id, raw := range members {
		if strings.ToLower(strings.ReplaceAll(id, "-", "")) == key {
			return raw, true
		}
	}
	return nil, false
}

func (inv inventories) containers() []Container {
	var out []Container
	add := func(name string, e *encodedInventory) {
		if e != nil && e.Data != "" {
			out = append(out, Container{Name: name, Data: e.Data})
		}
	}
	add("inv_contents", inv.Contents)
	add("inv_armor", inv.Armor)
	add("wardrobe_contents", inv.Wardrobe)
	add("ender_chest_contents", inv.EnderChest)

	slots := make([]string, 0, len(inv.Backpacks))
	for slot := range inv.Backpacks {
		slots = append(slots, slot)
	}
	sort.Slice(slots, func(i, j int) bool {
		a, errA := strconv.Atoi(slots[i])
		b, errB := strconv.Atoi(slots[j])
		if errA != nil || errB != nil {
			return slots[i] < slots[j]
		}
		return a < b
	})
	for _, slot := range slots {
		bp := inv.Backpacks[slot]
		add("backpack_contents_"+slot, &bp)
	}

	add("personal_vault_contents", inv.PersonalVault)
	return out
}
