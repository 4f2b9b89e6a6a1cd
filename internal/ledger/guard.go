package ledger

import (
	"sort"
	"sync"

	"github.com/puzpuzpuz/xsync/v4"
)

// Guard serialises select-and-record sequences per modality.
type Guard struct {
	locks *xsync.Map[string, *sync.Mutex]
}

func NewGuard() *Guard {
	return &Guard{locks: xsync.NewMap[string, *sync.Mutex]()}
}

// Lock acquires the locks of every listed modality in sorted order and
// returns the function that releases them.
func (g *Guard) Lock(modalities ...string) (unlock func()) {
	keys := append([]string(nil), modalities...)
	sort.Strings(keys)

	held := make([]*sync.Mutex, 0, len(keys))
	for i, k := range keys {
		if i > 0 && keys[i-1] == k {
			continue
		}
		mu, _ := g.locks.LoadOrStore(k, &sync.Mutex{})
		mu.Lock()
		held = append(held, mu)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}
