package scheduler

const maxWindowEntries = 1024

// contextWindow tracks the documents resident in the model context. It is
// a fixed-size ring; when the token budget is exceeded it evicts the
// oldest entries down to 90% of the budget.
type contextWindow struct {
	maxTokens int
	entries   []int
	head      int
	size      int
	tokens    int
}

func newContextWindow(maxTokens, capacity int) *contextWindow {
	if capacity <= 0 {
		capacity = maxWindowEntries
	}
	return &contextWindow{maxTokens: maxTokens, entries: make([]int, capacity)}
}

// Add records a document's tokens and returns how many older documents
// were evicted to make room.
func (w *contextWindow) Add(tokens int) int {
	evicted := 0
	if w.size == len(w.entries) {
		w.evictOldest()
		evicted++
	}
	w.entries[(w.head+w.size)%len(w.entries)] = tokens
	w.size++
	w.tokens += tokens

	if w.maxTokens > 0 && w.tokens > w.maxTokens {
		target := w.maxTokens * 9 / 10
		for w.tokens > target && w.size > 1 {
			w.evictOldest()
			evicted++
		}
	}
	return evicted
}

func (w *contextWindow) evictOldest() {
	w.tokens -= w.entries[w.head]
	w.entries[w.head] = 0
	w.head = (w.head + 1) % len(w.entries)
	w.size--
}

// Tokens is the current token total.
func (w *contextWindow) Tokens() int { return w.tokens }

// Len is the number of resident documents.
func (w *contextWindow) Len() int { return w.size }
