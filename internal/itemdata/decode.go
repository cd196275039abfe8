// Package itemdata decodes the base64 + gzip + NBT item payloads attached to
// auctions and inventories.
package itemdata

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/Tnze/go-mc/nbt"

	"hexwatch-backend/internal/colorimetry"
)

// ErrMalformedPayload is returned for payloads that cannot be decoded or lack
// the expected structure.
var ErrMalformedPayload = errors.New("malformed item payload")

// maxPayload bounds the decompressed NBT size.
const maxPayload = 4 << 20

// Item is the identity and dye of one decoded stack.
type Item struct {
	Kind        string
	UUID        string
	Name        string
	MinecraftID int
	Color       colorimetry.RGB
	HasColor    bool
	DyeItem     string
	Modifier    string
}

// Hex returns the dye color as six upper-case hex digits, or "" when the
// stack carries no color.
func (it Item) Hex() string {
	if !it.HasColor {
		return ""
	}
	return it.Color.Hex()
}

// Decode reads every non-empty stack from an encoded payload.
func Decode(encoded string) ([]Item, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrMalformedPayload, err)
	}
	return DecodeRaw(raw)
}

// DecodeFirst decodes a payload and returns its first stack. Auction payloads
// carry exactly one.
func DecodeFirst(encoded string) (Item, error) {
	items, err := Decode(encoded)
	if err != nil {
		return Item{}, err
	}
	if len(items) == 0 {
		return Item{}, fmt.Errorf("%w: no item stacks", ErrMalformedPayload)
	}
	return items[0], nil
}

// DecodeRaw decodes NBT bytes, gzip compressed or not.
func DecodeRaw(raw []byte) ([]Item, error) {
	var r io.Reader = bytes.NewReader(raw)
	if len(raw) >= 2 && raw[0] == 0x1f && raw[1] == 0x8b {
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("%w: gzip: %v", ErrMalformedPayload, err)
		}
		defer zr.Close()
		r = zr
	}

	var root map[string]any
	if _, err := nbt.NewDecoder(bufio.NewReader(io.LimitReader(r, maxPayload))).Decode(&root); err != nil {
		return nil, fmt.Errorf("%w: nbt: %v", ErrMalformedPayload, err)
	}

	stacks, ok := asList(root["i"])
	if !ok {
		return nil, fmt.Errorf("%w: missing item list", ErrMalformedPayload)
	}

	items := make([]Item, 0, len(stacks))
	for _, s := range stacks {
		stack, ok := s.(map[string]any)
		if !ok {
			continue
		}
		it, ok := itemFromStack(stack)
		if !ok {
			continue
		}
		items = append(items, it)
	}
	return items, nil
}

// itemFromStack extracts an item, skipping empty slots and vanilla items
// without SkyBlock attributes.
func itemFromStack(stack map[string]any) (Item, bool) {
	tag, _ := stack["tag"].(map[string]any)
	extra, _ := tag["ExtraAttributes"].(map[string]any)
	kind, _ := extra["id"].(string)
	if kind == "" {
		return Item{}, false
	}

	it := Item{Kind: kind}
	it.UUID, _ = extra["uuid"].(string)
	it.DyeItem, _ = extra["dye_item"].(string)
	it.Modifier, _ = extra["modifier"].(string)
	if id, ok := asInt(stack["id"]); ok {
		it.MinecraftID = int(id)
	}

	display, _ := tag["display"].(map[string]any)
	it.Name, _ = display["Name"].(string)
	if c, ok := asInt(display["color"]); ok {
		it.Color = colorimetry.FromInt(int32(c))
		it.HasColor = true
	}
	return it, true
}

func asInt(v any) (int64, bool) {
	if v == nil {
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()), true
	}
	return 0, false
}

func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []map[string]any:
		out := make([]any, len(l))
		for i := range l {
			out[i] = l[i]
		}
		return out, true
	}
	return nil, false
}
