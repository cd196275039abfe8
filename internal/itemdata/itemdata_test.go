package itemdata_test

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hexwatch-backend/internal/colorimetry"
	"hexwatch-backend/internal/itemdata"
	"hexwatch-backend/internal/itemdata/itemdatatest"
)

func TestDecodeFirst(t *testing.T) {
	payload := itemdatatest.MustEncode(t, itemdatatest.Stack{
		MinecraftID: 299,
		Kind:        "CASHMERE_JACKET",
		UUID:        "5c6e2ad1-1b2f-4c0e-9d7a-0a1b2c3d4e5f",
		Color:       0xF2DF11,
	})

	it, err := itemdata.DecodeFirst(payload)
	require.NoError(t, err)
	assert.Equal(t, "CASHMERE_JACKET", it.Kind)
	assert.Equal(t, "5c6e2ad1-1b2f-4c0e-9d7a-0a1b2c3d4e5f", it.UUID)
	assert.Equal(t, 299, it.MinecraftID)
	assert.True(t, it.HasColor)
	assert.Equal(t, "F2DF11", it.Hex())
}

func TestDecode_SmallColorIsZeroPadded(t *testing.T) {
	payload := itemdatatest.MustEncode(t, itemdatatest.Stack{Kind: "OXFORD_SHOES", UUID: "u", Color: 0x00012A})

	it, err := itemdata.DecodeFirst(payload)
	require.NoError(t, err)
	assert.Equal(t, "00012A", it.Hex())
}

func TestDecode_SkipsStacksWithoutAttributes(t *testing.T) {
	payload := itemdatatest.MustEncode(t,
		itemdatatest.Stack{},
		itemdatatest.Stack{Kind: "SATIN_TROUSERS", UUID: "a", NoColor: true},
	)

	items, err := itemdata.Decode(payload)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "SATIN_TROUSERS", items[0].Kind)
	assert.False(t, items[0].HasColor)
	assert.Equal(t, "", items[0].Hex())
}

func TestDecode_UncompressedNBT(t *testing.T) {
	payload := itemdatatest.MustEncode(t, itemdatatest.Stack{Kind: "VELVET_TOP_HAT", UUID: "x", Color: 1})
	compressed, err := base64.StdEncoding.DecodeString(payload)
	require.NoError(t, err)
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	require.NoError(t, err)
	var raw bytes.Buffer
	_, err = raw.ReadFrom(zr)
	require.NoError(t, err)

	items, err := itemdata.DecodeRaw(raw.Bytes())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "VELVET_TOP_HAT", items[0].Kind)
}

func TestDecode_Malformed(t *testing.T) {
	testCases := []struct {
		name    string
		payload string
	}{
		{name: "not base64", payload: "%%%"},
		{name: "not nbt", payload: base64.StdEncoding.EncodeToString([]byte("hello world"))},
		{name: "broken gzip", payload: base64.StdEncoding.EncodeToString([]byte{0x1f, 0x8b, 0x00})},
		{name: "empty", payload: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := itemdata.DecodeFirst(tc.payload)
			assert.True(t, errors.Is(err, itemdata.ErrMalformedPayload), "got %v", err)
		})
	}
}

func stockOf(m map[string]string) itemdata.StockHex {
	return func(kind string) (string, bool) {
		h, ok := m[kind]
		return h, ok
	}
}

func TestClassify(t *testing.T) {
	stock := stockOf(map[string]string{
		"SUPERIOR_DRAGON_CHESTPLATE": "F2DF11",
		"RANCHERS_BOOTS":             "CC5500",
		"REAPER_BOOTS":               "1B1B1B",
		"YOUNG_DRAGON_BOOTS":         "DDE4F0",
	})

	colored := func(kind string, hex string, mcID int) itemdata.Item {
		rgb, err := colorimetry.ParseHex(hex)
		require.NoError(t, err)
		return itemdata.Item{Kind: kind, Color: rgb, HasColor: true, MinecraftID: mcID}
	}

	testCases := []struct {
		name     string
		item     itemdata.Item
		expected itemdata.Variant
	}{
		{name: "Stock color", item: colored("SUPERIOR_DRAGON_CHESTPLATE", "F2DF11", 299), expected: itemdata.VariantDefault},
		{name: "Starred stock color", item: colored("STARRED_SUPERIOR_DRAGON_CHESTPLATE", "F2DF11", 299), expected: itemdata.VariantDefault},
		{name: "Dye item", item: itemdata.Item{Kind: "SUPERIOR_DRAGON_CHESTPLATE", DyeItem: "DYE_PURE_BLACK", HasColor: true}, expected: itemdata.VariantDefault},
		{name: "Freely dyed", item: colored("VELVET_TOP_HAT", "123456", 298), expected: itemdata.VariantDefault},
		{name: "Unknown kind", item: colored("MYSTERY_BOOTS", "123456", 301), expected: itemdata.VariantDefault},
		{name: "Bleached", item: colored("YOUNG_DRAGON_BOOTS", "A06540", 301), expected: itemdata.VariantBleached},
		{name: "No color means bleached", item: itemdata.Item{Kind: "YOUNG_DRAGON_BOOTS"}, expected: itemdata.VariantBleached},
		{name: "Rancher orange", item: colored("RANCHERS_BOOTS", "CC5500", 301), expected: itemdata.VariantDefault},
		{name: "Reaper red", item: colored("REAPER_BOOTS", "FF0000", 301), expected: itemdata.VariantDefault},
		{name: "Crystal", item: colored("YOUNG_DRAGON_BOOTS", "1F0030", 301), expected: itemdata.VariantCrystal},
		{name: "Fairy", item: colored("YOUNG_DRAGON_BOOTS", "FF007F", 301), expected: itemdata.VariantFairy},
		{name: "Fairy hex on og id", item: colored("YOUNG_DRAGON_BOOTS", "CC0066", 301), expected: itemdata.VariantOGFairy},
		{name: "Fairy hex on other id", item: colored("SUPERIOR_DRAGON_CHESTPLATE", "CC0066", 299), expected: itemdata.VariantFairy},
		{name: "OG fairy", item: colored("YOUNG_DRAGON_BOOTS", "FF00FF", 301), expected: itemdata.VariantOGFairy},
		{name: "Exotic", item: colored("SUPERIOR_DRAGON_CHESTPLATE", "123456", 299), expected: itemdata.VariantExotic},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, itemdata.Classify(tc.item, stock))
		})
	}
}
