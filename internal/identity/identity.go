// Package identity supplies the opaque authenticated user identifier.
package identity

import (
	"errors"
	"sync"
)

// ErrNoUser indicates no authenticated user is available.
var ErrNoUser = errors.New("no authenticated user")

// Provider holds the current user id and notifies subscribers on change.
// The id is opaque; minute never inspects its contents.
type Provider struct {
	mu      sync.RWMutex
	userID  string
	subs    map[int]func(string)
	nextSub int
}

// NewStatic builds a provider seeded with a fixed user id, typically the
// user_id from runtime config.
func NewStatic(userID string) *Provider {
	return &Provider{userID: userID, subs: map[int]func(string){}}
}

// CurrentUserID returns the signed-in user id, or "" when signed out.
func (p *Provider) CurrentUserID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.userID
}

// Require returns the user id or ErrNoUser when signed out.
func (p *Provider) Require() (string, error) {
	if id := p.CurrentUserID(); id != "" {
		return id, nil
	}
	return "", ErrNoUser
}

// Set replaces the current user id and notifies subscribers.
func (p *Provider) Set(userID string) {
	p.mu.Lock()
	p.userID = userID
	subs := make([]func(string), 0, len(p.subs))
	for _, fn := range p.subs {
		subs = append(subs, fn)
	}
	p.mu.Unlock()

	for _, fn := range subs {
		fn(userID)
	}
}

// Subscribe registers a session-change callback and returns its cancel func.
func (p *Provider) Subscribe(fn func(string)) func() {
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}
