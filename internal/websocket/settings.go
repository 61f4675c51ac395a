package websocket

import (
	"time"

	"classcast/pkg/types"
)

// Settings tunes the realtime transport
type Settings struct {
	SendBuffer      int
	WriteTimeout    time.Duration
	PingInterval    time.Duration
	PongTimeout     time.Duration
	MaxMessageBytes int64
	ReadBufferSize  int
	WriteBufferSize int
	AllowedOrigins  []string // empty allows every origin
}

// DefaultSettings returns classroom-scale defaults
func DefaultSettings() Settings {
	return Settings{
		SendBuffer:      100,
		WriteTimeout:    5 * time.Second,
		PingInterval:    30 * time.Second,
		PongTimeout:     60 * time.Second,
		MaxMessageBytes: types.MaxEventBytes,
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.SendBuffer <= 0 {
		s.SendBuffer = d.SendBuffer
	}
	if s.WriteTimeout <= 0 {
		s.WriteTimeout = d.WriteTimeout
	}
	if s.PingInterval <= 0 {
		s.PingInterval = d.PingInterval
	}
	if s.PongTimeout <= 0 {
		s.PongTimeout = d.PongTimeout
	}
	if s.MaxMessageBytes <= 0 {
		s.MaxMessageBytes = d.MaxMessageBytes
	}
	if s.ReadBufferSize <= 0 {
		s.ReadBufferSize = d.ReadBufferSize
	}
	if s.WriteBufferSize <= 0 {
		s.WriteBufferSize = d.WriteBufferSize
	}
	return s
}
