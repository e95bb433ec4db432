package battle

// HonorProgress tracks the cumulative honor score of one session. The target
// fires at most once.
type HonorProgress struct {
	current  int
	previous int
	target   int
	fired    bool
}

// NewHonorProgress returns a tracker for target. A zero target disables the
// goal.
func NewHonorProgress(target int) *HonorProgress {
	return &HonorProgress{target: target}
}

// Update records a sampled honor total and returns the change since the
// previous sample.
func (h *HonorProgress) Update(honors int) int {
	h.previous = h.current
	h.current = honors
	return h.current - h.previous
}

func (h *HonorProgress) Current() int { return h.current }

func (h *HonorProgress) Target() int { return h.target }

// Reached reports true exactly once: on the first call where the current
// total meets a non-zero target.
func (h *HonorProgress) Reached() bool {
	if h.fired || h.target <= 0 || h.current < h.target {
		return false
	}
	h.fired = true
	return true
}

// Fired reports whether the goal has already been reported.
func (h *HonorProgress) Fired() bool { return h.fired }
