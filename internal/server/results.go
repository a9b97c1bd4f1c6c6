package server

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/searchandrescuegg/firstaid/internal/emergency"
)

// resultCache answers a repeated upload of identical content, such as a
// client retry, without calling the vendor again. A nil cache is disabled.
type resultCache struct {
	transcriptions *expirable.LRU[uint64, string]
	analyses       *expirable.LRU[uint64, *emergency.DetectionSummary]
}

func newResultCache(size int, ttl time.Duration) *resultCache {
	if size <= 0 || ttl <= 0 {
		return nil
	}
	return &resultCache{
		transcriptions: expirable.NewLRU[uint64, string](size, nil, ttl),
		analyses:       expirable.NewLRU[uint64, *emergency.DetectionSummary](size, nil, ttl),
	}
}

func (c *resultCache) transcription(digest uint64) (string, bool) {
	if c == nil {
		return "", false
	}
	text, ok := c.transcriptions.Get(digest)
	if ok {
		slog.Debug("serving cached transcription", slog.String("upload_hash", fmt.Sprintf("%016x", digest)))
	}
	return text, ok
}

func (c *resultCache) storeTranscription(digest uint64, text string) {
	if c == nil {
		return
	}
	c.transcriptions.Add(digest, text)
}

func (c *resultCache) analysis(digest uint64) (*emergency.DetectionSummary, bool) {
	if c == nil {
		return nil, false
	}
	summary, ok := c.analyses.Get(digest)
	if ok {
		slog.Debug("serving cached image analysis", slog.String("upload_hash", fmt.Sprintf("%016x", digest)))
	}
	return summary, ok
}

func (c *resultCache) storeAnalysis(digest uint64, summary *emergency.DetectionSummary) {
	if c == nil || summary == nil {
		return
	}
	c.analyses.Add(digest, summary)
}
