package relay

import (
	"time"

	"go.uber.org/zap"

	"github.com/hongjun500/chat-relay/pkg/logger"
)

const (
	DefaultReadBuffer   = 1024
	DefaultWriteTimeout = 5 * time.Second
)

// Options configures a Relay
type Options struct {
	ReadBuffer   int           // bytes per receive call, one call is one frame
	WriteTimeout time.Duration // per-send deadline; 0 to disable
	Echo         bool          // deliver a frame back to its sender too
	Farewell     Frame         // sent to every peer on Shutdown; nil to skip

	Display   Display   // chat history sink, defaults to NopDisplay
	Forwarder Forwarder // federation, optional
	Logger    *zap.Logger
}

func DefaultOptions() Options {
	return Options{
		ReadBuffer:   DefaultReadBuffer,
		WriteTimeout: DefaultWriteTimeout,
		Echo:         true,
		Farewell:     Frame("Server Disconnected!"),
	}
}

func (o *Options) normalize() {
	if o.ReadBuffer <= 0 {
		o.ReadBuffer = DefaultReadBuffer
	}
	if o.WriteTimeout < 0 {
		o.WriteTimeout = 0
	}
	if o.Display == nil {
		o.Display = NopDisplay{}
	}
	if o.Logger == nil {
		o.Logger = logger.Named("relay")
	}
}
