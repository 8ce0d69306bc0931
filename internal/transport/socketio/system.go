package socketio

import (
	"os"

	"github.com/edumarques81/neon-player-backend/internal/version"
)

// SystemInfo describes the running player for the settings screen.
type SystemInfo struct {
	ID            string `json:"id"`
	Host          string `json:"host"`
	Name          string `json:"name"`
	SystemVersion string `json:"systemversion"`
	BuildDate     string `json:"builddate,omitempty"`
	Output        string `json:"output"`
	Store         string `json:"store"`
	Clients       int    `json:"clients"`
	QueueLength   int    `json:"queueLength"`
}

// SystemInfo returns the current system information.
func (s *Server) SystemInfo() SystemInfo {
	v := version.GetInfo()
	id := s.device.Info()
	info := SystemInfo{
		ID:            id.UUID,
		Name:          id.Name,
		SystemVersion: v.Version,
		BuildDate:     v.BuildTime,
		Output:        s.outputKind,
		Store:         s.storeKind,
		Clients:       s.ClientCount(),
		QueueLength:   len(s.ctrl.Playlist()),
	}
	if hostname, err := os.Hostname(); err == nil {
		info.Host = hostname
	}
	return info
}
