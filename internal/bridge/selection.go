package bridge

import "github.com/starford/clustermap/internal/notify"

// SelectionHub is an in-process SelectionSource. The HTTP API calls Select;
// the bridge forwards each payload to the renderer.
type SelectionHub struct {
	subs notify.List[any]
}

// NewSelectionHub returns an empty hub.
func NewSelectionHub() *SelectionHub {
	return &SelectionHub{}
}

// SubscribeSelection implements SelectionSource.
func (h *SelectionHub) SubscribeSelection(fn func(payload any)) func() {
	return h.subs.Subscribe(fn)
}

// Select broadcasts payload to every subscriber.
func (h *SelectionHub) Select(payload any) {
	h.subs.Notify(payload)
}

// Subscribers returns the number of subscribers.
func (h *SelectionHub) Subscribers() int {
	return h.subs.Len()
}
