package cardlock

import (
	"context"
	"sync"
)

// Locker serialises work on a single card. Different cards never block each
// other.
type Locker interface {
	Lock(ctx context.Context, cardID int64) (unlock func(), err error)
}

// Local is an in-process Locker. Entries are dropped once nobody holds or
// waits for them.
type Local struct {
	mu    sync.Mutex
	cards map[int64]*entry
}

type entry struct {
	sem  chan struct{}
	refs int
}

func NewLocal() *Local {
	return &Local{cards: make(map[int64]*entry)}
}

func (l *Local) Lock(ctx context.Context, cardID int64) (func(), error) {
	l.mu.Lock()
	e, ok := l.cards[cardID]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		l.cards[cardID] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(cardID, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			l.release(cardID, e)
		})
	}, nil
}

func (l *Local) release(cardID int64, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.cards, cardID)
	}
}

func (l *Local) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.cards)
}
