package registry

import (
	"log/slog"
	"time"

	"oras.land/oras-go/v2"
	"oras.land/oras-go/v2/registry/remote/credentials"
)

// Option configures a Pusher.
type Option func(*Pusher)

// WithPlainHTTP enables plain HTTP (no TLS) for registries.
// This is useful for local development registries.
func WithPlainHTTP(enabled bool) Option {
	return func(p *Pusher) {
		p.plainHTTP = enabled
	}
}

// WithUserAgent sets the User-Agent header for registry requests.
func WithUserAgent(ua string) Option {
	return func(p *Pusher) {
		p.userAgent = ua
	}
}

// WithCredentialStore sets the credential store for authentication.
func WithCredentialStore(store credentials.Store) Option {
	return func(p *Pusher) {
		p.credStore = store
	}
}

// WithDockerConfig reads credentials from the docker config file.
// If the config cannot be loaded, the pusher falls back to no credentials.
func WithDockerConfig() Option {
	return func(p *Pusher) {
		store, err := credentials.NewStoreFromDocker(credentials.StoreOptions{})
		if err != nil {
			return
		}
		p.credStore = store
	}
}

// WithTarget pushes into target instead of a remote repository.
func WithTarget(target oras.Target) Option {
	return func(p *Pusher) {
		p.target = target
	}
}

// WithLogger sets the logger for push operations.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pusher) {
		p.logger = logger
	}
}

// withClock overrides the creation timestamp source.
func withClock(now func() time.Time) Option {
	return func(p *Pusher) {
		p.now = now
	}
}
