package pairing

// nonceWindow remembers the most recent nonces so a value is never issued
// twice while it could still be presented. Not safe for concurrent use.
type nonceWindow struct {
	seen  map[string]struct{}
	order []string
	next  int
}

func newNonceWindow(size int) *nonceWindow {
	if size < 1 {
		size = 1
	}
	return &nonceWindow{
		seen:  make(map[string]struct{}, size),
		order: make([]string, 0, size),
	}
}

func (w *nonceWindow) contains(nonce []byte) bool {
	_, ok := w.seen[string(nonce)]
	return ok
}

// add records nonce, evicting the oldest entry when full. It returns false
// if nonce is already in the window.
func (w *nonceWindow) add(nonce []byte) bool {
	key := string(nonce)
	if _, ok := w.seen[key]; ok {
		return false
	}
	if len(w.order) < cap(w.order) {
		w.order = append(w.order, key)
	} else {
		delete(w.seen, w.order[w.next])
		w.order[w.next] = key
		w.next = (w.next + 1) % len(w.order)
	}
	w.seen[key] = struct{}{}
	return true
}

func (w *nonceWindow) len() int {
	return len(w.seen)
}
