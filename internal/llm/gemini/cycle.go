package gemini

// cycleState tracks model rotation across retryable failures: which model
// is next, how many attempts were spent, and whether a full cycle of the
// model list just failed. Transitions are pure so the retry policy can be
// tested without network calls.
type cycleState struct {
	modelCount  int
	maxAttempts int
	modelIndex  int
	attempts    int
}

func newCycleState(modelCount, maxAttempts int) *cycleState {
	return &cycleState{modelCount: modelCount, maxAttempts: maxAttempts}
}

// fail records a retryable failure of the current model and advances to the
// next one. fullCycle is true when every model in the list has now failed
// since the last pause, which calls for the long backoff. more is false
// once the total attempt budget is exhausted.
func (s *cycleState) fail() (fullCycle, more bool) {
	s.modelIndex = (s.modelIndex + 1) % s.modelCount
	s.attempts++
	if s.attempts >= s.maxAttempts {
		return false, false
	}
	return s.attempts%s.modelCount == 0, true
}

// current returns the index of the model to try next.
func (s *cycleState) current() int {
	return s.modelIndex
}
