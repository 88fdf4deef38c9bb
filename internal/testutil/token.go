package testutil

import (
	"fmt"
	"sync"
)

// FixedTokens generates sequential, predictable correlation tokens.
//
// Production code uses UUIDv7 tokens; tests that assert on log output or
// need byte-identical runs substitute this source instead.
type FixedTokens struct {
	mu   sync.Mutex
	next int
}

// Generate returns "token-1", "token-2", ...
func (g *FixedTokens) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("token-%d", g.next)
}
