package relay

import (
	"io"
	"sync"

	"go.uber.org/zap"
)

// Display receives every relayed frame once, however many peers it reached.
// It is the server-side chat history; headless deployments use NopDisplay.
type Display interface {
	Show(f Frame)
}

type DisplayFunc func(f Frame)

func (fn DisplayFunc) Show(f Frame) { fn(f) }

type NopDisplay struct{}

func (NopDisplay) Show(Frame) {}

type LogDisplay struct {
	Log *zap.Logger
}

func (d LogDisplay) Show(f Frame) {
	d.Log.Info("chat_history", zap.ByteString("frame", f))
}

// WriterDisplay appends each frame plus a newline to W.
type WriterDisplay struct {
	mu sync.Mutex
	W  io.Writer
}

func NewWriterDisplay(w io.Writer) *WriterDisplay { return &WriterDisplay{W: w} }

func (d *WriterDisplay) Show(f Frame) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, _ = d.W.Write(append(append(make([]byte, 0, len(f)+1), f...), '\n'))
}
