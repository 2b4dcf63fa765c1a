package notify

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHubEmitDispatchesToAllListeners(t *testing.T) {
	h := NewHub[int]()
	var sum int64
	h.Register(func(v int) { atomic.AddInt64(&sum, int64(v)) })
	h.Register(func(v int) { atomic.AddInt64(&sum, int64(v*10)) })

	h.Emit(3)

	assert.Equal(t, int64(33), atomic.LoadInt64(&sum))
}

func TestRegistrationCloseRemovesListenerExactlyOnce(t *testing.T) {
	h := NewHub[string]()
	var calls int
	reg := h.Register(func(string) { calls++ })
	assert.Equal(t, 1, h.Len())

	reg.Close()
	reg.Close() // idempotent
	assert.Equal(t, 0, h.Len())

	h.Emit("x")
	assert.Equal(t, 0, calls)
}

func TestListenerMayDeregisterDuringDispatch(t *testing.T) {
	h := NewHub[int]()
	var reg *Registration
	var secondCalls int
	reg = h.Register(func(int) { reg.Close() })
	h.Register(func(int) { secondCalls++ })

	assert.NotPanics(t, func() {
		h.Emit(1)
	})
	assert.Equal(t, 1, secondCalls)
	assert.Equal(t, 1, h.Len())
}
