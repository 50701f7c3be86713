package httpserver

import (
	"log/slog"
	"net/http"
	"time"
)

type Option func(*config)

// Timeouts bound the phases of a connection. Zero fields leave the current
// value in place.
type Timeouts struct {
	Read  time.Duration
	Write time.Duration
	Idle  time.Duration
	// Shutdown covers closing the listener and running every drain.
	Shutdown time.Duration
}

func (t Timeouts) over(base Timeouts) Timeouts {
	pick := func(v, fallback time.Duration) time.Duration {
		if v > 0 {
			return v
		}
		return fallback
	}
	return Timeouts{
		Read:     pick(t.Read, base.Read),
		Write:    pick(t.Write, base.Write),
		Idle:     pick(t.Idle, base.Idle),
		Shutdown: pick(t.Shutdown, base.Shutdown),
	}
}

func WithAddr(addr string) Option {
	if addr == "" {
		panic("httpserver: empty listen address")
	}
	return func(c *config) { c.addr = addr }
}

func WithTimeouts(t Timeouts) Option {
	if t.Read < 0 || t.Write < 0 || t.Idle < 0 || t.Shutdown < 0 {
		panic("httpserver: negative timeout")
	}
	return func(c *config) { c.timeouts = t.over(c.timeouts) }
}

// WithServer uses srv as the base. Timeouts already set on it win over options.
func WithServer(srv *http.Server) Option {
	if srv == nil {
		panic("httpserver: nil base server")
	}
	return func(c *config) { c.server = srv }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithDrain registers work to finish after the listener closes, such as
// campaigns still dispatching in the background. Drains run in order.
func WithDrain(name string, fn DrainFunc) Option {
	if fn == nil {
		panic("httpserver: nil drain " + name)
	}
	return func(c *config) { c.drains = append(c.drains, namedDrain{name: name, fn: fn}) }
}
