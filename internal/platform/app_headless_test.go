//go:build !windows && !darwin

package platform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeadlessApp_StopEndsRun(t *testing.T) {
	quits := 0
	app := NewApp(AppConfig{NoTray: true, OnQuit: func() { quits++ }})

	done := make(chan error, 1)
	go func() { done <- app.Run() }()

	app.Stop()
	app.Stop()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
	assert.Equal(t, 1, quits)
}
