package system

import "sync"

// TailBuffer keeps the last N bytes written to it. Used to attach the end of
// ffmpeg's stderr to errors without buffering whole logs.
type TailBuffer struct {
	mu   sync.Mutex
	max  int
	data []byte
}

func NewTailBuffer(max int) *TailBuffer {
	if max <= 0 {
		max = 4096
	}
	return &TailBuffer{max: max}
}

func (t *TailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data = append(t.data, p...)
	if over := len(t.data) - t.max; over > 0 {
		t.data = append(t.data[:0], t.data[over:]...)
	}
	return len(p), nil
}

func (t *TailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.data)
}
