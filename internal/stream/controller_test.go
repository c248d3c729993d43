package stream

import (
	"strings"
	"sync"
	"testing"
	"time"

	"Bloom/internal/markdown"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingTarget struct {
	mu        sync.Mutex
	renders   []string
	streaming []bool
}

func (r *recordingTarget) Render(html string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renders = append(r.renders, html)
}

func (r *recordingTarget) SetStreaming(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streaming = append(r.streaming, on)
}

func (r *recordingTarget) snapshot() ([]string, []bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.renders...), append([]bool(nil), r.streaming...)
}

func identity(s string) string { return s }

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not finish")
	}
}

func TestController_RevealsChunksInOrder(t *testing.T) {
	c := NewController(WithRenderer(identity), WithInterval(time.Millisecond), WithSettleDelay(0))
	target := &recordingTarget{}

	waitFor(t, c.Start(target, "Hello world"))

	renders, streaming := target.snapshot()
	assert.Equal(t, []string{"Hell", "Hello wo", "Hello world"}, renders)
	assert.Equal(t, []bool{true, false}, streaming)
	assert.False(t, c.Active())
}

func TestController_FinalRenderMatchesMarkdown(t *testing.T) {
	c := NewController(WithInterval(time.Millisecond), WithSettleDelay(0))
	target := &recordingTarget{}

	waitFor(t, c.Start(target, "Hello world"))

	renders, _ := target.snapshot()
	require.Len(t, renders, 3)
	assert.Equal(t, markdown.Render("Hell"), renders[0])
	assert.Equal(t, markdown.Render("Hello world"), renders[2])
}

func TestController_ChunksCountRunes(t *testing.T) {
	c := NewController(WithRenderer(identity), WithChunkSize(2), WithInterval(time.Millisecond), WithSettleDelay(0))
	target := &recordingTarget{}

	waitFor(t, c.Start(target, "héllo"))

	renders, _ := target.snapshot()
	assert.Equal(t, []string{"hé", "héll", "héllo"}, renders)
}

func TestController_ScrollsEveryChunk(t *testing.T) {
	var mu sync.Mutex
	scrolls := 0
	c := NewController(
		WithRenderer(identity),
		WithInterval(time.Millisecond),
		WithSettleDelay(0),
		WithScroll(func() {
			mu.Lock()
			scrolls++
			mu.Unlock()
		}),
	)

	waitFor(t, c.Start(&recordingTarget{}, strings.Repeat("x", 10)))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, scrolls)
}

func TestController_EmptyTextCompletes(t *testing.T) {
	c := NewController(WithRenderer(identity), WithSettleDelay(0))
	target := &recordingTarget{}

	waitFor(t, c.Start(target, ""))

	renders, streaming := target.snapshot()
	assert.Equal(t, []string{""}, renders)
	assert.Equal(t, []bool{true, false}, streaming)
}

func TestController_StaysStreamingDuringSettle(t *testing.T) {
	c := NewController(WithRenderer(identity), WithInterval(time.Millisecond), WithSettleDelay(time.Hour))
	target := &recordingTarget{}

	done := c.Start(target, "abc")
	require.Eventually(t, func() bool {
		renders, _ := target.snapshot()
		return len(renders) == 1
	}, time.Second, time.Millisecond)

	assert.True(t, c.Active())
	_, streaming := target.snapshot()
	assert.Equal(t, []bool{true}, streaming)

	c.Finalize()
	waitFor(t, done)
	renders, streaming := target.snapshot()
	assert.Equal(t, []string{"abc", "abc"}, renders)
	assert.Equal(t, []bool{true, false}, streaming)
}

func TestController_StartFinalizesPrevious(t *testing.T) {
	c := NewController(WithRenderer(identity), WithInterval(time.Hour), WithSettleDelay(0))
	first := &recordingTarget{}
	second := &recordingTarget{}

	firstDone := c.Start(first, "a long message that will not finish")
	require.Eventually(t, func() bool {
		renders, _ := first.snapshot()
		return len(renders) == 1
	}, time.Second, time.Millisecond)

	secondDone := c.Start(second, "next")
	waitFor(t, firstDone)

	renders, streaming := first.snapshot()
	assert.Equal(t, []string{"a lo", "a lo"}, renders, "finalized against the buffered text")
	assert.Equal(t, []bool{true, false}, streaming)

	waitFor(t, secondDone)
	renders, _ = second.snapshot()
	assert.Equal(t, []string{"next"}, renders)
	assert.False(t, c.Active())
}

func TestController_FinalizeIdleIsNoop(t *testing.T) {
	c := NewController()
	assert.NotPanics(t, c.Finalize)
	assert.NoError(t, c.Close())
	assert.False(t, c.Active())
}

func TestController_CloseStopsGoroutine(t *testing.T) {
	c := NewController(WithRenderer(identity), WithInterval(time.Hour))
	target := &recordingTarget{}

	done := c.Start(target, "abcdefgh")
	require.NoError(t, c.Close())
	waitFor(t, done)

	_, streaming := target.snapshot()
	assert.Equal(t, false, streaming[len(streaming)-1])
}
