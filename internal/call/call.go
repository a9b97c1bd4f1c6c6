// Package call places outbound check-in calls through the voice agent
// vendor and mirrors the vendor's call state on demand. Nothing here owns
// call state: each status request is one point-in-time snapshot.
package call

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/searchandrescuegg/firstaid/internal/emergency"
	"github.com/searchandrescuegg/firstaid/pkg/retell"
)

type VoiceClient interface {
	ListAgents(ctx context.Context) ([]retell.Agent, error)
	CreatePhoneCall(ctx context.Context, req retell.CreatePhoneCallRequest) (*retell.Call, error)
	GetCall(ctx context.Context, callID string) (*retell.Call, error)
}

// SnapshotCache holds final call snapshots and the shared claim on the
// ended notification. GetCall returns nil on a miss. ClaimEnded reports
// whether this caller is the first to see the call end.
type SnapshotCache interface {
	GetCall(ctx context.Context, callID string) (*emergency.CallHandle, error)
	PutCall(ctx context.Context, handle *emergency.CallHandle, ttl time.Duration) error
	ClaimEnded(ctx context.Context, callID string, ttl time.Duration) (bool, error)
}

type Notifier interface {
	Notify(ctx context.Context, event emergency.CallEvent)
}

type Options struct {
	APIKey           string
	AgentID          string
	AgentPhoneNumber string
	UserPhoneNumber  string
	CacheTTL         time.Duration
}

type Caller struct {
	client   VoiceClient
	opts     Options
	cache    SnapshotCache
	notifier Notifier

	// ended call IDs already announced, used when the cache is absent or down
	announcedMu sync.Mutex
	announced   *expirable.LRU[string, struct{}]
	now         func() time.Time
}

const (
	announcedSize       = 10000
	defaultAnnouncedTTL = time.Hour
)

type Option func(*Caller)

func WithCache(cache SnapshotCache) Option {
	return func(c *Caller) { c.cache = cache }
}

func WithNotifier(n Notifier) Option {
	return func(c *Caller) { c.notifier = n }
}

func NewCaller(client VoiceClient, opts Options, options ...Option) *Caller {
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = defaultAnnouncedTTL
	}

	c := &Caller{
		client:    client,
		opts:      opts,
		announced: expirable.NewLRU[string, struct{}](announcedSize, nil, ttl),
		now:       time.Now,
	}
	for _, o := range options {
		o(c)
	}
	return c
}

func (c *Caller) InitiateCall(ctx context.Context) (*emergency.CallHandle, error) {
	if c.opts.AgentPhoneNumber == "" || c.opts.UserPhoneNumber == "" {
		return nil, emergency.Configuration("phone numbers not configured in environment variables")
	}
	if c.opts.APIKey == "" {
		return nil, emergency.Configuration("RETELL_API_KEY is not set")
	}

	agentID, err := c.agentID(ctx)
	if err != nil {
		return nil, err
	}

	call, err := c.client.CreatePhoneCall(ctx, retell.CreatePhoneCallRequest{
		FromNumber:      c.opts.AgentPhoneNumber,
		ToNumber:        c.opts.UserPhoneNumber,
		OverrideAgentID: agentID,
	})
	if err != nil {
		return nil, emergency.Upstream("create phone call", err)
	}

	slog.Info("emergency call initiated", slog.String("call_id", call.CallID), slog.String("agent_id", agentID), slog.String("vendor_status", call.CallStatus))

	handle := &emergency.CallHandle{CallID: call.CallID, Status: emergency.CallStatusInitiated}
	c.notify(ctx, handle)

	return handle, nil
}

func (c *Caller) agentID(ctx context.Context) (string, error) {
	if c.opts.AgentID != "" {
		return c.opts.AgentID, nil
	}

	agents, err := c.client.ListAgents(ctx)
	if err != nil {
		return "", emergency.Upstream("list agents", err)
	}
	if len(agents) == 0 {
		return "", emergency.Configuration("no voice agents configured")
	}

	return agents[0].AgentID, nil
}

func (c *Caller) GetCallStatusAndResults(ctx context.Context, callID string) (*emergency.CallHandle, error) {
	if callID == "" {
		return nil, emergency.Validation("call_id is required")
	}
	if c.opts.APIKey == "" {
		return nil, emergency.Configuration("RETELL_API_KEY is not set")
	}

	if c.cache != nil {
		cached, err := c.cache.GetCall(ctx, callID)
		if err != nil {
			slog.Warn("failed to read call snapshot from cache", slog.String("error", err.Error()), slog.String("call_id", callID))
		} else if cached != nil {
			slog.Debug("serving call snapshot from cache", slog.String("call_id", callID))
			return cached, nil
		}
	}

	call, err := c.client.GetCall(ctx, callID)
	if err != nil {
		return nil, emergency.Upstream("get call", err)
	}

	handle := snapshot(callID, call)
	slog.Debug("fetched call status", slog.String("call_id", callID), slog.String("status", handle.Status))

	if !handle.Ended() {
		return handle, nil
	}

	if c.cache != nil && final(handle) {
		if err := c.cache.PutCall(ctx, handle, c.opts.CacheTTL); err != nil {
			slog.Warn("failed to cache call snapshot", slog.String("error", err.Error()), slog.String("call_id", callID))
		}
	}

	if c.firstTimeEnded(ctx, callID) {
		c.notify(ctx, handle)
	}

	return handle, nil
}

// snapshot attaches the transcript and recording only when the call has
// ended.
func snapshot(callID string, call *retell.Call) *emergency.CallHandle {
	handle := &emergency.CallHandle{CallID: callID, Status: call.CallStatus}
	if handle.Ended() {
		transcript, recordingURL := call.Transcript, call.RecordingURL
		handle.Transcript = &transcript
		handle.RecordingURL = &recordingURL
	}
	return handle
}

// final reports whether an ended snapshot carries everything the vendor will
// ever add to it. The vendor fills the recording and transcript in after the
// status flips to ended, so partial snapshots must keep being fetched.
func final(handle *emergency.CallHandle) bool {
	return handle.Ended() &&
		handle.Transcript != nil && *handle.Transcript != "" &&
		handle.RecordingURL != nil && *handle.RecordingURL != ""
}

func (c *Caller) firstTimeEnded(ctx context.Context, callID string) bool {
	if c.cache != nil {
		claimed, err := c.cache.ClaimEnded(ctx, callID, c.opts.CacheTTL)
		if err == nil {
			return claimed
		}
		slog.Warn("failed to claim ended call notification", slog.String("error", err.Error()), slog.String("call_id", callID))
	}

	c.announcedMu.Lock()
	defer c.announcedMu.Unlock()

	if c.announced.Contains(callID) {
		return false
	}
	c.announced.Add(callID, struct{}{})
	return true
}

func (c *Caller) notify(ctx context.Context, handle *emergency.CallHandle) {
	if c.notifier == nil {
		return
	}

	event := emergency.CallEvent{
		EventID:    uuid.NewString(),
		CallID:     handle.CallID,
		Status:     handle.Status,
		OccurredAt: c.now().UTC(),
	}
	if handle.Transcript != nil {
		event.Transcript = *handle.Transcript
	}
	if handle.RecordingURL != nil {
		event.RecordingURL = *handle.RecordingURL
	}

	c.notifier.Notify(ctx, event)
}
