package monitor

import (
	"errors"
	"time"
)

var errNotConfigured = errors.New("not configured")

type Component struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

type Status struct {
	Online     bool                 `json:"online"`
	Components map[string]Component `json:"components"`
	LastCheck  time.Time            `json:"last_check"`
}

func (s Status) clone() Status {
	out := s
	if s.Components != nil {
		out.Components = make(map[string]Component, len(s.Components))
		for k, v := range s.Components {
			out.Components[k] = v
		}
	}
	return out
}
