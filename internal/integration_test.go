package internal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"hexwatch-backend/config"
	"hexwatch-backend/internal/api"
	hexdb "hexwatch-backend/internal/db"
	"hexwatch-backend/internal/itemdata/itemdatatest"
	"hexwatch-backend/internal/model"
	"hexwatch-backend/internal/notification"
	"hexwatch-backend/internal/palette"
	"hexwatch-backend/internal/scraper"
	"hexwatch-backend/internal/store"
)

const (
	seller      = "0123456789abcdef0123456789abcdef"
	sellerDash  = "01234567-89ab-cdef-0123-456789abcdef"
	jacketUUID  = "6b1f0c52-3d1e-4a0e-9d1f-1f4c2c7b9a10"
	staleUUID   = "8c2e1d63-4e2f-4b1f-8e20-2a5d3d8caa21"
	jacketColor = 0xF2DF11
)

// feed replays auction pages in order and repeats the last one.
type feed struct {
	mu    sync.Mutex
	pages []scraper.AuctionPage
	hits  int
}

func (f *feed) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	i := min(f.hits, len(f.pages)-1)
	f.hits++
	page := f.pages[i]
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(page)
}

// TestAuctionToAlertLifecycle runs one seeded scan cycle against a fake
// auction feed and follows the new listing into the ledger, the webhook and
// the HTTP API.
func TestAuctionToAlertLifecycle(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// --- Ledger ---
	gormDB, err := gorm.Open(sqlite.Open("file:lifecycle?mode=memory&cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	defer sqlDB.Close()
	require.NoError(t, hexdb.Migrate(gormDB))
	st := store.NewGormStore(gormDB)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// An older record of the same color owned by someone else.
	require.NoError(t, st.Upsert(ctx, model.Piece{
		ItemUUID: "older-boots", ItemKind: "OXFORD_SHOES", Owner: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		Location: "auction_house", LastSeen: 10, HexCode: "F2DF11",
	}))

	// --- Catalog ---
	catalog, err := palette.NewCatalog(map[string]map[string]string{
		"CHESTPLATE": {"SUPERIOR_DRAGON_CHESTPLATE": "F2DF11", "BLAZE_CHESTPLATE": "F7DA33"},
		"BOOTS":      {"FARM_SUIT_BOOTS": "FFFF00"},
		"OTHER":      {"CRYSTAL_1F0030": "1F0030"},
	})
	require.NoError(t, err)
	ranker := palette.NewRanker(catalog)

	// --- Upstream auction feed ---
	jacket := scraper.Auction{
		UUID:       "5f1a2b3c4d5e",
		Auctioneer: sellerDash,
		ItemName:   "✪ Cashmere Jacket",
		ItemBytes: itemdatatest.MustEncode(t, itemdatatest.Stack{
			Kind: "CASHMERE_JACKET", UUID: jacketUUID, Color: jacketColor,
		}),
		Start:       1500,
		BIN:         true,
		StartingBid: 15_000_000,
	}
	stale := jacket
	stale.UUID = "stale"
	stale.Start = 900
	stale.ItemBytes = itemdatatest.MustEncode(t, itemdatatest.Stack{
		Kind: "CASHMERE_JACKET", UUID: staleUUID, Color: jacketColor,
	})

	upstream := &feed{pages: []scraper.AuctionPage{
		{TotalPages: 1, LastUpdated: 1000},
		{TotalPages: 1, LastUpdated: 2000, Auctions: []scraper.Auction{stale, jacket}},
	}}
	auctions := httptest.NewServer(upstream)
	defer auctions.Close()

	// --- Webhook receiver ---
	posted := make(chan notification.WebhookMessage, 4)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg notification.WebhookMessage
		if err := json.NewDecoder(r.Body).Decode(&msg); err == nil {
			posted <- msg
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	cfg := config.New()
	cfg.Scraper.URL = auctions.URL
	cfg.Webhook.URL = hook.URL
	cfg.Webhook.RatePerSec = 0
	cfg.Server.CacheTTLSeconds = 0
	require.NoError(t, cfg.Validate())

	pool := notification.NewWorkerPool(1, 4, notification.Deps{
		Store:         st,
		Webhook:       notification.NewWebhookClient(cfg.Webhook, hook.Client()),
		WebhookConfig: cfg.Webhook,
	})
	pool.Start(ctx)

	svc := scraper.NewService(cfg, st, ranker,
		scraper.WithHTTPClient(auctions.Client()),
		scraper.WithDispatcher(pool))

	// --- Scan ---
	require.NoError(t, svc.Init(ctx))
	cursor, ok := svc.Cursor()
	require.True(t, ok)
	assert.Equal(t, int64(1000), cursor)

	outcome, err := svc.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, scraper.OutcomeProcessed, outcome)
	cursor, _ = svc.Cursor()
	assert.Equal(t, int64(2000), cursor)

	persisted, ok, err := st.LoadCursor(ctx, cfg.Scraper.CursorName)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2000), persisted)

	outcome, err = svc.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, scraper.OutcomeIdle, outcome, "an unchanged page is not processed twice")

	// --- Ledger state ---
	piece, err := st.Get(ctx, jacketUUID)
	require.NoError(t, err)
	assert.Equal(t, "CASHMERE_JACKET", piece.ItemKind)
	assert.Equal(t, seller, piece.Owner)
	assert.Equal(t, scraper.LocationAuctionHouse, piece.Location)
	assert.Equal(t, "F2DF11", piece.HexCode)

	_, err = st.Get(ctx, staleUUID)
	assert.ErrorIs(t, err, store.ErrNotFound, "listings older than the cursor are ignored")

	// --- Webhook ---
	select {
	case msg := <-posted:
		require.Len(t, msg.Embeds, 1)
		embed := msg.Embeds[0]
		assert.Equal(t, "✪  Cashmere  Jacket", embed.Title)
		assert.Equal(t, cfg.Webhook.AuctionURL+"5f1a2b3c4d5e", embed.URL)
		assert.Equal(t, jacketColor, embed.Color)
		assert.Empty(t, msg.Content, "no mention role is configured")
		last := embed.Fields[len(embed.Fields)-1]
		assert.Equal(t, "Matching hexes", last.Name)
		assert.Contains(t, last.Value, "Oxford Shoes")
	case <-time.After(5 * time.Second):
		t.Fatal("webhook was not called")
	}

	// --- HTTP API ---
	handler := api.NewHandler(cfg, api.Deps{Store: st, Ranker: ranker})
	router := api.NewRouter(&cfg.Server, handler)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/pieces?hex=f2df11", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var byColor struct {
		Hex    string        `json:"hex"`
		Pieces []model.Piece `json:"pieces"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &byColor))
	assert.Equal(t, "F2DF11", byColor.Hex)
	assert.Len(t, byColor.Pieces, 2)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/owners/"+sellerDash+"/pieces", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var owned struct {
		Owner  string `json:"owner"`
		Pieces []struct {
			ItemUUID string          `json:"item_uuid"`
			Slot     string          `json:"slot"`
			Matches  []palette.Match `json:"matches"`
		} `json:"pieces"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &owned))
	assert.Equal(t, seller, owned.Owner)
	require.Len(t, owned.Pieces, 1)
	assert.Equal(t, jacketUUID, owned.Pieces[0].ItemUUID)
	assert.Equal(t, "CHESTPLATE", owned.Pieces[0].Slot)
	require.NotEmpty(t, owned.Pieces[0].Matches)
	assert.Equal(t, "SUPERIOR_DRAGON_CHESTPLATE", owned.Pieces[0].Matches[0].Names)
	assert.InDelta(t, 0, owned.Pieces[0].Matches[0].Score, 1e-9)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/perfects", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), jacketUUID)
}
