package schematic

import "sync"

// pathLocks serializes operations on the same absolute path within this
// process. Entries are dropped once nobody holds or waits for them.
type pathLocks struct {
	mu    sync.Mutex
	paths map[string]*pathLock
}

type pathLock struct {
	mu   sync.Mutex
	refs int
}

func newPathLocks() *pathLocks {
	return &pathLocks{paths: make(map[string]*pathLock)}
}

func (l *pathLocks) lock(path string) (unlock func()) {
	l.mu.Lock()
	pl, ok := l.paths[path]
	if !ok {
		pl = &pathLock{}
		l.paths[path] = pl
	}
	pl.refs++
	l.mu.Unlock()

	pl.mu.Lock()
	return func() {
		pl.mu.Unlock()
		l.mu.Lock()
		pl.refs--
		if pl.refs == 0 {
			delete(l.paths, path)
		}
		l.mu.Unlock()
	}
}

func (l *pathLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.paths)
}
