package bridge

import (
	"strconv"
	"sync"
)

// Registry maps correlation handles to pending tokens.
//
// Handles are minted from a monotonically increasing counter and rendered as
// decimal strings, so they stay unique for the life of the client and survive
// any serialization the engine boundary applies to them.
//
// Thread Safety: all methods are safe for concurrent use.
type Registry struct {
	mu     sync.Mutex
	next   uint64
	tokens map[string]Token
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tokens: make(map[string]Token)}
}

// Store registers a token and returns the handle minted for it.
func (r *Registry) Store(token Token) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	handle := strconv.FormatUint(r.next, 10)
	r.next++
	r.tokens[handle] = token
	return handle
}

// Peek returns the token for handle without removing it. Used for
// intermediate notifications that do not end the operation's lifecycle.
func (r *Registry) Peek(handle string) (Token, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.tokens[handle]
	return token, ok
}

// Remove returns the token for handle and deletes the entry. Lookup and
// removal are a single atomic step so a handle can be consumed only once.
func (r *Registry) Remove(handle string) (Token, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.tokens[handle]
	if ok {
		delete(r.tokens, handle)
	}
	return token, ok
}

// Len returns the number of pending tokens.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tokens)
}

// Pending returns a snapshot of all registered tokens, in no particular
// order.
func (r *Registry) Pending() []Token {
	r.mu.Lock()
	defer r.mu.Unlock()

	tokens := make([]Token, 0, len(r.tokens))
	for _, token := range r.tokens {
		tokens = append(tokens, token)
	}
	return tokens
}
