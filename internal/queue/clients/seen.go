package clients

const seenWindowCap = 512

// seenWindow remembers recently observed event ids with a bounded size,
// so a console or display running a full shift does not accumulate ids
// forever. Callers synchronize access.
type seenWindow struct {
	ids   map[string]struct{}
	order []string
}

func newSeenWindow() *seenWindow {
	return &seenWindow{ids: make(map[string]struct{})}
}

// observe records id and reports whether it was already in the window.
func (w *seenWindow) observe(id string) bool {
	if _, ok := w.ids[id]; ok {
		return true
	}
	w.ids[id] = struct{}{}
	w.order = append(w.order, id)
	if len(w.order) > seenWindowCap {
		oldest := w.order[0]
		w.order = w.order[1:]
		delete(w.ids, oldest)
	}
	return false
}
