package mw

import (
	"bytes"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"

	"hexwatch-backend/internal/colorimetry"
)

// Query parameters that carry a color and are folded to canonical hex.
var hexParams = map[string]bool{"hex": true, "hex1": true, "hex2": true}

// ColorKey builds the cache key for a color query: the route plus its query
// values in canonical form, so "f2df11" and "#F2DF11" share one entry. The
// second result is false when a hex value does not parse; such requests are
// left to the handler and never cached.
func ColorKey(route string, q url.Values) (string, bool) {
	names := make([]string, 0, len(q))
	for name := range q {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(route)
	for _, name := range names {
		v := strings.TrimSpace(q.Get(name))
		switch {
		case v == "":
			continue
		case hexParams[name]:
			hex, err := colorimetry.NormalizeHex(v)
			if err != nil {
				return "", false
			}
			v = hex
		case name == "slot":
			v = strings.ToUpper(v)
		case name == "metric":
			v = strings.ToLower(v)
		}
		b.WriteByte('|')
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(v)
	}
	return b.String(), true
}

type answer struct {
	status int
	header http.Header
	body   []byte
}

func (a answer) replay(c *gin.Context) {
	h := c.Writer.Header()
	for k, v := range a.header {
		h[k] = v
	}
	h.Set("X-Cache", "HIT")
	c.Data(a.status, a.header.Get("Content-Type"), a.body)
}

type recorder struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (r *recorder) Write(b []byte) (int, error) {
	r.buf.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *recorder) WriteString(s string) (int, error) {
	r.buf.WriteString(s)
	return r.ResponseWriter.WriteString(s)
}

// ColorCache answers repeated color lookups from store, keyed by ColorKey.
// Only 2xx answers are kept.
func ColorCache(store *cache.Cache, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		key, ok := ColorKey(route, c.Request.URL.Query())
		if c.Request.Method != http.MethodGet || !ok {
			c.Next()
			return
		}

		if hit, found := store.Get(key); found {
			hit.(answer).replay(c)
			c.Abort()
			return
		}

		rec := &recorder{ResponseWriter: c.Writer}
		c.Writer = rec
		c.Next()

		if status := rec.Status(); status >= 200 && status < 300 {
			store.Set(key, answer{
				status: status,
				header: rec.Header().Clone(),
				body:   bytes.Clone(rec.buf.Bytes()),
			}, ttl)
		}
	}
}
