package core

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	SetLogOutput(io.Discard)
	m.Run()
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   LogLevelDebug,
		"INFO":    LogLevelInfo,
		"":        LogLevelInfo,
		"warning": LogLevelWarn,
		"error":   LogLevelError,
	}
	for in, want := range cases {
		got, err := ParseLogLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLogLevel("loud")
	require.Error(t, err)
}

func TestEventRegisterFireUnregister(t *testing.T) {
	require.True(t, EventInitialize())
	defer EventShutdown()

	listener := &struct{ hits int }{}
	ok := EventRegister(EVENT_CODE_KEY_PRESSED, listener, func(ctx EventContext) bool {
		listener.hits++
		ke, ok := ctx.Data.(*KeyEvent)
		require.True(t, ok)
		assert.Equal(t, KEY_ESCAPE, ke.KeyCode)
		return true
	})
	require.True(t, ok)

	// the same listener can not be registered twice for one code
	assert.False(t, EventRegister(EVENT_CODE_KEY_PRESSED, listener, func(EventContext) bool { return false }))

	assert.True(t, EventFire(EventContext{Type: EVENT_CODE_KEY_PRESSED, Data: &KeyEvent{KeyCode: KEY_ESCAPE}}))
	assert.Equal(t, 1, listener.hits)

	// nobody listens to this one
	assert.False(t, EventFire(EventContext{Type: EVENT_CODE_RESIZED}))

	require.True(t, EventUnregister(EVENT_CODE_KEY_PRESSED, listener))
	assert.False(t, EventFire(EventContext{Type: EVENT_CODE_KEY_PRESSED, Data: &KeyEvent{KeyCode: KEY_ESCAPE}}))
	assert.Equal(t, 1, listener.hits)
}

func TestEventHandledStopsPropagation(t *testing.T) {
	require.True(t, EventInitialize())
	defer EventShutdown()

	var order []string
	first, second := &struct{}{}, &struct{ x int }{}
	EventRegister(EVENT_CODE_APPLICATION_QUIT, first, func(EventContext) bool {
		order = append(order, "first")
		return true
	})
	EventRegister(EVENT_CODE_APPLICATION_QUIT, second, func(EventContext) bool {
		order = append(order, "second")
		return false
	})

	EventFire(EventContext{Type: EVENT_CODE_APPLICATION_QUIT})
	assert.Equal(t, []string{"first"}, order)
}

func TestInputFiresOnStateChangeOnly(t *testing.T) {
	require.True(t, EventInitialize())
	defer EventShutdown()
	require.NoError(t, InputInitialize())
	defer InputShutdown()

	pressed := 0
	EventRegister(EVENT_CODE_KEY_PRESSED, t, func(EventContext) bool {
		pressed++
		return false
	})

	InputProcessKey(KEY_A, true)
	InputProcessKey(KEY_A, true)
	assert.Equal(t, 1, pressed)
	assert.True(t, InputIsKeyDown(KEY_A))
	assert.False(t, InputWasKeyDown(KEY_A))

	require.NoError(t, InputUpdate(0.016))
	assert.True(t, InputWasKeyDown(KEY_A))

	InputProcessMouseMove(10, 20)
	x, y := InputGetMousePosition()
	assert.Equal(t, int32(10), x)
	assert.Equal(t, int32(20), y)
}

func TestMetricsAverage(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < int(AVG_COUNT); i++ {
		m.Update(0.010)
	}
	assert.InDelta(t, 10.0, m.FrameTime(), 1e-9)

	for i := 0; i < 101; i++ {
		m.Update(0.010)
	}
	assert.Greater(t, m.FPS(), 0.0)
}

func TestClock(t *testing.T) {
	c := NewClock()
	c.Update()
	assert.Zero(t, c.Elapsed())

	c.Start()
	c.Update()
	assert.GreaterOrEqual(t, c.Elapsed(), 0.0)
	c.Stop()
}
