package mw

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

const cacheHeader = "X-Cache"

// ResponseCache keeps recent GET responses in memory. Entries expire after the
// TTL or when their path is invalidated, whichever comes first.
type ResponseCache struct {
	store *cache.Cache
	ttl   time.Duration
}

type snapshot struct {
	status int
	header http.Header
	body   []byte
}

// recordingWriter copies the body on its way to the client.
type recordingWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *recordingWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

func NewResponseCache(ttl time.Duration) *ResponseCache {
	return &ResponseCache{store: cache.New(ttl, 2*ttl), ttl: ttl}
}

// Handler serves hits from memory and stores 2xx misses.
func (rc *ResponseCache) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := c.Request.URL.RequestURI()
		if v, ok := rc.store.Get(key); ok {
			snap := v.(*snapshot)
			h := c.Writer.Header()
			for k, vals := range snap.header {
				h[k] = vals
			}
			h.Set(cacheHeader, "HIT")
			c.Writer.WriteHeader(snap.status)
			_, _ = c.Writer.Write(snap.body)
			c.Abort()
			return
		}

		w := &recordingWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Header(cacheHeader, "MISS")

		c.Next()

		status := w.Status()
		if status < 200 || status >= 300 {
			return
		}
		header := w.Header().Clone()
		header.Del(cacheHeader)
		rc.store.Set(key, &snapshot{
			status: status,
			header: header,
			body:   bytes.Clone(w.buf.Bytes()),
		}, rc.ttl)
	}
}

// Invalidate drops every entry whose request URI starts with prefix and
// reports how many were dropped.
func (rc *ResponseCache) Invalidate(prefix string) int {
	n := 0
	for key := range rc.store.Items() {
		if strings.HasPrefix(key, prefix) {
			rc.store.Delete(key)
			n++
		}
	}
	return n
}
