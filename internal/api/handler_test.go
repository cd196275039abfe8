package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"hexwatch-backend/config"
	hexdb "hexwatch-backend/internal/db"
	"hexwatch-backend/internal/history"
	"hexwatch-backend/internal/itemdata/itemdatatest"
	"hexwatch-backend/internal/model"
	"hexwatch-backend/internal/palette"
	"hexwatch-backend/internal/store"
)

const (
	alice = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	bob   = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router *gin.Engine
	store  store.Store
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gormDB, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, hexdb.Migrate(gormDB))
	return store.NewGormStore(gormDB)
}

func newTestEnv(t *testing.T, withHistory func(store.Store) *history.Resolver) *testEnv {
	t.Helper()
	catalog, err := palette.NewCatalog(map[string]map[string]string{
		"CHESTPLATE": {"SUPERIOR_DRAGON_CHESTPLATE": "F2DF11", "REAPER_CHESTPLATE": "1B1B1B"},
		"HELMET":     {"SUPERIOR_DRAGON_HELMET": "F2DF11", "WISE_DRAGON_HELMET": "29F0E9"},
		"LEGGINGS":   {"SUPERIOR_DRAGON_LEGGINGS": "F2DF11"},
		"BOOTS":      {"SUPERIOR_DRAGON_BOOTS": "F2DF11"},
		"OTHER":      {"CRYSTAL_1F0030": "1F0030"},
	})
	require.NoError(t, err)

	cfg := config.New()
	cfg.Server.RateLimitPerSec = 1000
	st := newTestStore(t)
	var hist *history.Resolver
	if withHistory != nil {
		hist = withHistory(st)
	}
	h := NewHandler(cfg, Deps{
		Store:   st,
		Ranker:  palette.NewRanker(catalog),
		WebPush: &webpush.Options{VAPIDPublicKey: "BPublicKey"},
		History: hist,
	})
	return &testEnv{router: NewRouter(&cfg.Server, h), store: st}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) seed(t *testing.T, pieces ...model.Piece) {
	t.Helper()
	require.NoError(t, e.store.UpsertBatch(context.Background(), pieces))
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestCompare(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/api/compare?hex1=F2DF11&hex2=%23f2df11", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"hex1":"F2DF11","hex2":"F2DF11","ciede2000":0,"cie76":0}`, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/compare?hex2=F2DF11&hex1=f2df11", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))

	w = env.do(t, http.MethodGet, "/api/compare?hex1=F2DF11&hex2=zzzzzz", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = env.do(t, http.MethodGet, "/api/compare?hex1=F2DF11", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClosest(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/api/closest?hex=F2DF11&slot=chestplate&limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Hex     string          `json:"hex"`
		Slot    string          `json:"slot"`
		Metric  string          `json:"metric"`
		Matches []palette.Match `json:"matches"`
	}
	decode(t, w, &resp)
	assert.Equal(t, "CHESTPLATE", resp.Slot)
	assert.Equal(t, "ciede2000", resp.Metric)
	require.Len(t, resp.Matches, 2)
	assert.Equal(t, palette.Match{Names: "SUPERIOR_DRAGON_CHESTPLATE", Score: 0}, resp.Matches[0])

	w = env.do(t, http.MethodGet, "/api/closest?hex=F2DF11&slot=chestplate&metric=cie76", nil)
	require.Equal(t, http.StatusOK, w.Code)

	for _, path := range []string{
		"/api/closest?hex=F2DF11&slot=gloves",
		"/api/closest?hex=F2DF11",
		"/api/closest?hex=F2DF11&slot=helmet&metric=manhattan",
		"/api/closest?hex=F2DF11&slot=helmet&limit=0",
	} {
		assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, path, nil).Code, path)
	}
}

func TestPieces(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seed(t,
		model.Piece{ItemUUID: "a", ItemKind: "VELVET_TOP_HAT", Owner: alice, Location: "auction_house", LastSeen: 10, HexCode: "F2DF11"},
		model.Piece{ItemUUID: "b", ItemKind: "OXFORD_SHOES", Owner: bob, Location: "auction_house", LastSeen: 20, HexCode: "F2DF11"},
		model.Piece{ItemUUID: "c", ItemKind: "OXFORD_SHOES", Owner: bob, Location: "auction_house", LastSeen: 30, HexCode: "F2DF12"},
		model.Piece{ItemUUID: "d", ItemKind: "SATIN_TROUSERS", Owner: bob, Location: "auction_house", LastSeen: 30, HexCode: "000000"},
	)

	t.Run("exact color", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/pieces?hex=f2df11&exclude=a", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Pieces []model.Piece `json:"pieces"`
		}
		decode(t, w, &resp)
		require.Len(t, resp.Pieces, 1)
		assert.Equal(t, "b", resp.Pieces[0].ItemUUID)
	})

	t.Run("near color", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/pieces/near?hex=F2DF11&max_distance=2", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Pieces []struct {
				ItemUUID string  `json:"item_uuid"`
				Distance float64 `json:"distance"`
			} `json:"pieces"`
		}
		decode(t, w, &resp)
		require.Len(t, resp.Pieces, 3)
		assert.Equal(t, 0.0, resp.Pieces[0].Distance)
		assert.Equal(t, "c", resp.Pieces[2].ItemUUID)
		assert.Greater(t, resp.Pieces[2].Distance, 0.0)

		w = env.do(t, http.MethodGet, "/api/pieces/near?hex=F2DF11&max_distance=2&kind=oxford_shoes&owner="+bob, nil)
		decode(t, w, &resp)
		assert.Len(t, resp.Pieces, 2)

		assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/pieces/near?hex=F2DF11&max_distance=-1", nil).Code)
		assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/pieces/near?hex=F2DF11&owner=nobody", nil).Code)
	})

	t.Run("duplicates", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/dupes", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Groups []struct {
				Hex    string        `json:"hex"`
				Pieces []model.Piece `json:"pieces"`
			} `json:"groups"`
		}
		decode(t, w, &resp)
		require.Len(t, resp.Groups, 1)
		assert.Equal(t, "F2DF11", resp.Groups[0].Hex)
		assert.Len(t, resp.Groups[0].Pieces, 2)

		w = env.do(t, http.MethodGet, "/api/dupes?owner=01234567-89ab-cdef-0123-456789abcdef", nil)
		decode(t, w, &resp)
		assert.Empty(t, resp.Groups)
	})

	t.Run("perfect matches", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/perfects", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Pieces []struct {
				ItemUUID string   `json:"item_uuid"`
				Matches  []string `json:"matches"`
			} `json:"pieces"`
		}
		decode(t, w, &resp)
		require.Len(t, resp.Pieces, 2)
		assert.Equal(t, []string{
			"SUPERIOR_DRAGON_BOOTS", "SUPERIOR_DRAGON_CHESTPLATE", "SUPERIOR_DRAGON_HELMET", "SUPERIOR_DRAGON_LEGGINGS",
		}, resp.Pieces[0].Matches)
	})

	t.Run("owner pieces ranked", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/owners/"+bob+"/pieces?limit=1", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Owner   string `json:"owner"`
			History bool   `json:"history"`
			Pieces  []struct {
				ItemUUID string          `json:"item_uuid"`
				Slot     string          `json:"slot"`
				Matches  []palette.Match `json:"matches"`
			} `json:"pieces"`
		}
		decode(t, w, &resp)
		assert.Equal(t, bob, resp.Owner)
		assert.False(t, resp.History)
		require.Len(t, resp.Pieces, 3)
		assert.Equal(t, "b", resp.Pieces[0].ItemUUID)
		assert.Equal(t, "BOOTS", resp.Pieces[0].Slot)
		assert.Len(t, resp.Pieces[0].Matches, 1)
		assert.Equal(t, "c", resp.Pieces[1].ItemUUID)

		assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/owners/bob/pieces", nil).Code)
	})
}

func TestOwnerPieces_MergesHistory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":[{"_id":"h1","itemId":"VELVET_TOP_HAT","colour":"29F0E9","lastChecked":5000}]}`))
	}))
	defer server.Close()

	env := newTestEnv(t, func(s store.Store) *history.Resolver {
		return history.NewResolver(
			history.NewClient(config.HistoryConfig{URL: server.URL}, server.Client()),
			s, config.New().Scraper.WatchedItems, nil)
	})

	w := env.do(t, http.MethodGet, "/api/owners/"+alice+"/pieces?history=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		History bool `json:"history"`
		Pieces  []struct {
			ItemUUID string          `json:"item_uuid"`
			Location string          `json:"location"`
			LastSeen int64           `json:"last_seen"`
			Matches  []palette.Match `json:"matches"`
		} `json:"pieces"`
	}
	decode(t, w, &resp)
	assert.True(t, resp.History)
	require.Len(t, resp.Pieces, 1)
	assert.Equal(t, "h1", resp.Pieces[0].ItemUUID)
	assert.Equal(t, history.Location, resp.Pieces[0].Location)
	assert.Equal(t, int64(5), resp.Pieces[0].LastSeen)
	assert.Equal(t, "WISE_DRAGON_HELMET", resp.Pieces[0].Matches[0].Names)
}

func TestOwnerPieces_InventoryWinsOverHistory(t *testing.T) {
	hat := itemdatatest.MustEncode(t, itemdatatest.Stack{Kind: "VELVET_TOP_HAT", UUID: "h1", Color: 0xF2DF11})
	profiles := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "profiles": []any{
			map[string]any{"members": map[string]any{alice: map[string]any{"inventory": map[string]any{
				"wardrobe_contents": map[string]any{"data": hat},
			}}}},
		}})
	}))
	defer profiles.Close()
	items := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":[{"_id":"h1","itemId":"VELVET_TOP_HAT","colour":"29F0E9","lastChecked":5000}]}`))
	}))
	defer items.Close()

	env := newTestEnv(t, func(s store.Store) *history.Resolver {
		return history.NewResolver(
			history.NewClient(config.HistoryConfig{URL: items.URL}, items.Client()),
			s, config.New().Scraper.WatchedItems, nil,
			history.WithInventory(history.NewInventoryClient(config.InventoryConfig{URL: profiles.URL}, profiles.Client())))
	})

	w := env.do(t, http.MethodGet, "/api/owners/"+alice+"/pieces?history=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Pieces []struct {
			ItemUUID string          `json:"item_uuid"`
			Location string          `json:"location"`
			HexCode  string          `json:"hex_code"`
			Matches  []palette.Match `json:"matches"`
		} `json:"pieces"`
	}
	decode(t, w, &resp)
	require.Len(t, resp.Pieces, 1)
	assert.Equal(t, "wardrobe_contents", resp.Pieces[0].Location)
	assert.Equal(t, "F2DF11", resp.Pieces[0].HexCode)
	assert.Equal(t, "SUPERIOR_DRAGON_HELMET", resp.Pieces[0].Matches[0].Names)
}

func TestSubscriptions(t *testing.T) {
	env := newTestEnv(t, nil)
	endpoint := "https://push.example.com/send/abc%3D%3D"

	w := env.do(t, http.MethodPut, "/api/subscriptions", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid request"}`, w.Body.String())

	w = env.do(t, http.MethodPut, "/api/subscriptions", gin.H{"endpoint": endpoint, "p256dh": "k", "auth": "a", "max_distance": -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPut, "/api/subscriptions", gin.H{"endpoint": endpoint, "p256dh": "k", "auth": "a"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodGet, "/api/subscriptions?endpoint="+endpoint, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"endpoint":"`+endpoint+`","max_distance":1}`, w.Body.String())

	w = env.do(t, http.MethodPut, "/api/subscriptions", gin.H{"endpoint": endpoint, "p256dh": "k2", "auth": "a2", "max_distance": 4.5})
	require.Equal(t, http.StatusCreated, w.Code)
	w = env.do(t, http.MethodGet, "/api/subscriptions?endpoint="+endpoint, nil)
	assert.JSONEq(t, `{"endpoint":"`+endpoint+`","max_distance":4.5}`, w.Body.String())

	w = env.do(t, http.MethodDelete, "/api/subscriptions", gin.H{"endpoint": endpoint})
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.do(t, http.MethodGet, "/api/subscriptions?endpoint="+endpoint, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/api/subscriptions", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMiscRoutes(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/api/vapid_public_key", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"public_key":"BPublicKey"}`, w.Body.String())

	w = env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")

	w = env.do(t, http.MethodGet, "/api/nothing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestVAPIDKeyUnconfigured(t *testing.T) {
	h := NewHandler(config.New(), Deps{})
	r := gin.New()
	r.GET("/k", h.GetVAPIDPublicKey)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/k", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
