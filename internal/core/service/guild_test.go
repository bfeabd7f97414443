package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"timebot/internal/core/domain"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

// count returns how many log lines carry msg as their message.
func (s *syncBuffer) count(msg string) int {
	return strings.Count(s.String(), `"message":"`+msg+`"`)
}

func testLogger(buf *syncBuffer) *zerolog.Logger {
	l := zerolog.New(buf).Level(zerolog.DebugLevel)
	return &l
}

type recordingHandler struct {
	mu      sync.Mutex
	seen    []string
	started chan string
	block   chan struct{}
	panicOn string
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{started: make(chan string, 1024)}
}

func (h *recordingHandler) HandleInteraction(ctx context.Context, _ domain.GuildID, i *discordgo.Interaction) error {
	h.started <- i.ID

	if h.block != nil {
		select {
		case <-h.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if i.ID == h.panicOn {
		panic("handler exploded")
	}

	h.record(i.ID)
	return nil
}

func (h *recordingHandler) HandleMessage(_ context.Context, _ domain.GuildID, m *discordgo.Message) error {
	h.record(m.ID)
	return nil
}

func (h *recordingHandler) record(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, id)
}

func (h *recordingHandler) ids() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.seen...)
}

func interaction(id string, guild string) Interaction {
	return Interaction{Payload: &discordgo.Interaction{
		ID:      id,
		Type:    discordgo.InteractionApplicationCommand,
		GuildID: guild,
	}}
}

func TestGuildHandler_ProcessesInOrder(t *testing.T) {
	const events = 200

	handlers := make([]*recordingHandler, 4)
	guilds := make([]*GuildHandler, 4)
	for i := range guilds {
		handlers[i] = newRecordingHandler()
		guilds[i] = NewGuildHandler(domain.GuildID(i+1), fmt.Sprintf("guild-%d", i+1), handlers[i], GuildOptions{})
		guilds[i].Start(t.Context())
	}

	var wg sync.WaitGroup
	for g := range guilds {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := range events {
				if n%2 == 0 {
					assert.NoError(t, guilds[g].Send(interaction(fmt.Sprint(n), "")))
				} else {
					assert.NoError(t, guilds[g].Send(Message{Payload: &discordgo.Message{ID: fmt.Sprint(n)}}))
				}
			}
		}()
	}
	wg.Wait()

	want := make([]string, 0, events)
	for n := range events {
		want = append(want, fmt.Sprint(n))
	}

	for i, h := range handlers {
		require.Eventually(t, func() bool { return len(h.ids()) == events }, waitFor, tick)
		assert.Equal(t, want, h.ids(), "guild %d", i+1)
		require.NoError(t, guilds[i].Close(time.Second))
	}
}

func TestGuildHandler_CloseDrainsQueuedEvents(t *testing.T) {
	h := newRecordingHandler()
	g := NewGuildHandler(7, "seven", h, GuildOptions{})

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, g.Send(interaction(id, "7")))
	}

	g.Start(t.Context())
	require.NoError(t, g.Close(time.Second))

	assert.Equal(t, []string{"a", "b", "c"}, h.ids())

	select {
	case <-g.Done():
	default:
		t.Fatal("loop still running after Close")
	}

	require.ErrorIs(t, g.Send(interaction("d", "7")), domain.ErrMailboxClosed)
}

func TestGuildHandler_CloseTimeout(t *testing.T) {
	buf := &syncBuffer{}
	metrics := newRecordingMetrics()

	h := newRecordingHandler()
	h.block = make(chan struct{})
	defer close(h.block)

	g := NewGuildHandler(7, "seven", h, GuildOptions{Logger: testLogger(buf), Metrics: metrics})
	g.Start(t.Context())

	require.NoError(t, g.Send(interaction("stuck", "7")))
	<-h.started

	start := time.Now()
	err := g.Close(30 * time.Millisecond)
	require.ErrorIs(t, err, domain.ErrCloseTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	// the cancelled context releases the stuck handler
	require.Eventually(t, func() bool {
		select {
		case <-g.Done():
			return true
		default:
			return false
		}
	}, waitFor, tick)

	assert.Empty(t, h.ids())
	assert.Equal(t, []bool{true}, metrics.closes())
	assert.Equal(t, 1, buf.count("guild handler did not stop in time, cancelled"))

	// repeated calls report the first outcome without waiting again
	start = time.Now()
	require.ErrorIs(t, g.Close(time.Hour), domain.ErrCloseTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestGuildHandler_RecoversFromPanic(t *testing.T) {
	buf := &syncBuffer{}
	h := newRecordingHandler()
	h.panicOn = "bad"

	g := NewGuildHandler(7, "seven", h, GuildOptions{Logger: testLogger(buf)})
	g.Start(t.Context())

	require.NoError(t, g.Send(interaction("bad", "7")))
	require.NoError(t, g.Send(interaction("good", "7")))

	require.Eventually(t, func() bool { return len(h.ids()) == 1 }, waitFor, tick)
	assert.Equal(t, []string{"good"}, h.ids())
	assert.Equal(t, 1, buf.count("recovered from panic while handling event"))

	require.NoError(t, g.Close(time.Second))
}

func TestGuildHandler_CloseWithoutStart(t *testing.T) {
	h := newRecordingHandler()
	g := NewGuildHandler(7, "seven", h, GuildOptions{})

	require.NoError(t, g.Send(interaction("never", "7")))
	require.NoError(t, g.Close(time.Second))

	g.Start(t.Context())

	select {
	case <-g.Done():
	default:
		t.Fatal("handler that was never started should be done after Close")
	}

	assert.Empty(t, h.ids())
}

func TestGuildHandler_StopsWhenContextCancelled(t *testing.T) {
	h := newRecordingHandler()
	g := NewGuildHandler(7, "seven", h, GuildOptions{})

	ctx, cancel := context.WithCancel(t.Context())
	g.Start(ctx)
	cancel()

	require.Eventually(t, func() bool {
		select {
		case <-g.Done():
			return true
		default:
			return false
		}
	}, waitFor, tick)

	require.ErrorIs(t, g.Send(interaction("late", "7")), domain.ErrMailboxClosed)
	require.NoError(t, g.Close(time.Second))
}
