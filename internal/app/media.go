package app

import (
	"github.com/dkeye/copilot/internal/app/quality"
	"github.com/dkeye/copilot/internal/app/screenshare"
	"github.com/dkeye/copilot/internal/core"
)

// MediaSession groups what a connection owns on the conferencing side.
type MediaSession struct {
	Conn    core.MediaConnection
	Share   *screenshare.Session
	Quality *quality.Monitor
}

// Close stops the share and the monitor before tearing down the transport.
func (m *MediaSession) Close() {
	if m.Quality != nil {
		m.Quality.Disable()
	}
	if m.Share != nil {
		m.Share.Stop()
	}
	if m.Conn != nil {
		m.Conn.Close()
	}
}
