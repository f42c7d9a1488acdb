package strategy

import (
	"math/rand"
	"strings"
	"sync"
	"time"
)

// Random is the source used for placeholder pillars, recovery tokens and
// fallback day assignment. Tests pass a seeded source.
type Random interface {
	Intn(n int) int
}

type lockedRandom struct {
	mu sync.Mutex
	r  *rand.Rand
}

func NewRandom(seed int64) Random {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &lockedRandom{r: rand.New(rand.NewSource(seed))}
}

func (l *lockedRandom) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}

const tokenAlphabet = "abcdefghijkmnpqrstuvwxyz23456789"

func randomToken(rnd Random, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte(tokenAlphabet[rnd.Intn(len(tokenAlphabet))])
	}
	return b.String()
}
