package bot

import (
	"math/rand"
	"sync"
)

// botRng is the package-level random source used by all bot strategies.
// When nil, the functions below delegate to the global math/rand default.
// Use SeedBotRng to set a deterministic source for reproducible skirmishes.
var (
	botMu  sync.Mutex
	botRng *rand.Rand
)

// SeedBotRng sets a deterministic random source for reproducible bot behavior.
func SeedBotRng(seed int64) {
	botMu.Lock()
	defer botMu.Unlock()
	botRng = rand.New(rand.NewSource(seed))
}

// ResetBotRng reverts to the default (non-deterministic) global random source.
func ResetBotRng() {
	botMu.Lock()
	defer botMu.Unlock()
	botRng = nil
}

func botFloat64() float64 {
	botMu.Lock()
	defer botMu.Unlock()
	if botRng != nil {
		return botRng.Float64()
	}
	return rand.Float64()
}

func botIntn(n int) int {
	botMu.Lock()
	defer botMu.Unlock()
	if botRng != nil {
		return botRng.Intn(n)
	}
	return rand.Intn(n)
}
