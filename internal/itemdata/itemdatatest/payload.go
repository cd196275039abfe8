// Package itemdatatest builds item payloads for tests.
package itemdatatest

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"testing"

	"github.com/Tnze/go-mc/nbt"
)

// Stack describes one item stack. A zero Kind encodes a stack without
// SkyBlock attributes.
type Stack struct {
	MinecraftID int16
	Kind        string
	UUID        string
	DyeItem     string
	Modifier    string
	Color       int32
	NoColor     bool
}

type nbtStack struct {
	ID    int16  `nbt:"id"`
	Count int8   `nbt:"Count"`
	Tag   nbtTag `nbt:"tag"`
}

type nbtTag struct {
	Display         map[string]int32  `nbt:"display"`
	ExtraAttributes map[string]string `nbt:"ExtraAttributes"`
}

type nbtPayload struct {
	Items []nbtStack `nbt:"i"`
}

// Encode returns base64(gzip(nbt)) for stacks.
func Encode(stacks ...Stack) (string, error) {
	p := nbtPayload{Items: make([]nbtStack, 0, len(stacks))}
	for _, s := range stacks {
		id := s.MinecraftID
		if id == 0 {
			id = 298
		}
		st := nbtStack{ID: id, Count: 1, Tag: nbtTag{
			Display:         map[string]int32{},
			ExtraAttributes: map[string]string{},
		}}
		if !s.NoColor {
			st.Tag.Display["color"] = s.Color
		}
		if s.Kind != "" {
			st.Tag.ExtraAttributes["id"] = s.Kind
		}
		if s.UUID != "" {
			st.Tag.ExtraAttributes["uuid"] = s.UUID
		}
		if s.DyeItem != "" {
			st.Tag.ExtraAttributes["dye_item"] = s.DyeItem
		}
		if s.Modifier != "" {
			st.Tag.ExtraAttributes["modifier"] = s.Modifier
		}
		p.Items = append(p.Items, st)
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := nbt.NewEncoder(zw).Encode(p, ""); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// MustEncode is Encode that fails the test on error.
func MustEncode(tb testing.TB, stacks ...Stack) string {
	tb.Helper()
	s, err := Encode(stacks...)
	if err != nil {
		tb.Fatalf("encode payload: %v", err)
	}
	return s
}
