package dragonfly

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/searchandrescuegg/firstaid/internal/emergency"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startDragonfly(t *testing.T) *DragonflyClient {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := testcontainers.Run(ctx, "docker.dragonflydb.io/dragonflydb/dragonfly:v1.30.3",
		testcontainers.WithExposedPorts("6379/tcp"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("6379/tcp")),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client, err := NewClient(ctx, &redis.Options{Addr: endpoint}, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client
}

func TestCallSnapshots(t *testing.T) {
	client := startDragonfly(t)
	ctx := context.Background()

	missing, err := client.GetCall(ctx, "call_unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)

	transcript, recording := "Agent: hello", "https://example.com/rec.wav"
	handle := &emergency.CallHandle{
		CallID:       "call_1",
		Status:       emergency.CallStatusEnded,
		Transcript:   &transcript,
		RecordingURL: &recording,
	}

	require.NoError(t, client.PutCall(ctx, handle, time.Minute))

	got, err := client.GetCall(ctx, "call_1")
	require.NoError(t, err)
	assert.Equal(t, handle, got)
}

func TestClaimEnded(t *testing.T) {
	client := startDragonfly(t)
	ctx := context.Background()

	claimed, err := client.ClaimEnded(ctx, "call_3", time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = client.ClaimEnded(ctx, "call_3", time.Minute)
	require.NoError(t, err)
	assert.False(t, claimed)

	// the claim does not shadow the snapshot key
	got, err := client.GetCall(ctx, "call_3")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCallSnapshotsExpire(t *testing.T) {
	client := startDragonfly(t)
	ctx := context.Background()

	require.NoError(t, client.PutCall(ctx, &emergency.CallHandle{CallID: "call_2", Status: emergency.CallStatusEnded}, time.Second))

	assert.Eventually(t, func() bool {
		got, err := client.GetCall(ctx, "call_2")
		return err == nil && got == nil
	}, 5*time.Second, 100*time.Millisecond)
}

func TestNewClientUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := NewClient(ctx, &redis.Options{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond}, time.Second)
	assert.ErrorContains(t, err, "failed to ping redis")
}
