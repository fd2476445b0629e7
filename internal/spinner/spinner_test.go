package spinner

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSpinner_DrawsAndClears(t *testing.T) {
	var out syncBuffer
	s := Start(&out, "0/2 settled")

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "0/2 settled")
	}, time.Second, 10*time.Millisecond)

	s.SetMessage("1/2 settled")
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "1/2 settled")
	}, time.Second, 10*time.Millisecond)

	s.Stop()
	s.Stop()

	got := out.String()
	assert.True(t, strings.HasSuffix(got, "\r"), "line should be cleared on stop")
}

func TestSpinner_StopBeforeFirstFrame(t *testing.T) {
	var out syncBuffer
	s := Start(&out, "loading")
	s.Stop()

	assert.NotContains(t, out.String(), "loading")
}
