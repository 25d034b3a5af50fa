package execshell

import (
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"
)

const (
	drainLineCapturedMessageConstant = "captured line"
	drainStoppedMessageConstant      = "stream drain stopped on read error"
	drainCancelledMessageConstant    = "stream drain cancelled"
	logFieldStreamConstant           = "stream"
	logFieldSequenceConstant         = "sequence"
	logFieldLineConstant             = "line"
)

// StreamDrain consumes one stream on its own goroutine, capturing every line in
// order until end of stream or cancellation.
type StreamDrain struct {
	stream     StreamName
	source     io.ReadCloser
	lineReader *LineReader
	logger     *zap.Logger
	lineLimit  int

	cancelled atomic.Bool
	done      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once

	mutex     sync.Mutex
	lines     []CapturedLine
	truncated bool
}

// NewStreamDrain binds a drain to source. A lineLimit of zero keeps every line;
// otherwise lines past the limit are read and discarded.
func NewStreamDrain(stream StreamName, source io.ReadCloser, decoder *encoding.Decoder, logger *zap.Logger, lineLimit int) *StreamDrain {
	if logger == nil {
		logger = zap.NewNop()
	}
	if lineLimit < 0 {
		lineLimit = 0
	}
	return &StreamDrain{
		stream:     stream,
		source:     source,
		lineReader: NewLineReader(source, decoder),
		logger:     logger.With(zap.Stringer(logFieldStreamConstant, stream)),
		lineLimit:  lineLimit,
		done:       make(chan struct{}),
	}
}

// Start begins consumption. Subsequent calls are no-ops.
func (drain *StreamDrain) Start() {
	drain.startOnce.Do(func() {
		go drain.consume()
	})
}

// Cancel asks the drain to stop after its current read returns.
func (drain *StreamDrain) Cancel() {
	drain.cancelled.Store(true)
}

// Abort cancels the drain and closes its source so a blocked read returns.
func (drain *StreamDrain) Abort() {
	drain.Cancel()
	drain.closeSource()
}

// Join waits up to gracePeriod for the drain to finish and reports whether it did.
func (drain *StreamDrain) Join(gracePeriod time.Duration) bool {
	if gracePeriod <= 0 {
		select {
		case <-drain.done:
			return true
		default:
			return false
		}
	}

	joinTimer := time.NewTimer(gracePeriod)
	defer joinTimer.Stop()

	select {
	case <-drain.done:
		return true
	case <-joinTimer.C:
		return false
	}
}

// Done is closed once the drain goroutine has exited.
func (drain *StreamDrain) Done() <-chan struct{} {
	return drain.done
}

// Collected returns a copy of the lines captured so far.
func (drain *StreamDrain) Collected() []CapturedLine {
	drain.mutex.Lock()
	defer drain.mutex.Unlock()
	return append([]CapturedLine{}, drain.lines...)
}

// Truncated reports whether lines were discarded because of the line limit.
func (drain *StreamDrain) Truncated() bool {
	drain.mutex.Lock()
	defer drain.mutex.Unlock()
	return drain.truncated
}

// Stream identifies the drained stream.
func (drain *StreamDrain) Stream() StreamName {
	return drain.stream
}

func (drain *StreamDrain) consume() {
	defer close(drain.done)
	defer drain.closeSource()

	sequence := 0
	for {
		if drain.cancelled.Load() {
			drain.logger.Debug(drainCancelledMessageConstant, zap.Int(logFieldSequenceConstant, sequence))
			return
		}

		lineText, readError := drain.lineReader.Next()
		if readError != nil {
			if !errors.Is(readError, io.EOF) && !errors.Is(readError, os.ErrClosed) {
				drain.logger.Debug(drainStoppedMessageConstant, zap.Error(readError))
			}
			return
		}

		drain.record(CapturedLine{Stream: drain.stream, Sequence: sequence, Text: lineText})
		drain.logger.Debug(drainLineCapturedMessageConstant, zap.Int(logFieldSequenceConstant, sequence), zap.String(logFieldLineConstant, lineText))
		sequence++
	}
}

func (drain *StreamDrain) record(line CapturedLine) {
	drain.mutex.Lock()
	defer drain.mutex.Unlock()
	if drain.lineLimit > 0 && len(drain.lines) >= drain.lineLimit {
		drain.truncated = true
		return
	}
	drain.lines = append(drain.lines, line)
}

func (drain *StreamDrain) closeSource() {
	drain.closeOnce.Do(func() {
		if drain.source != nil {
			_ = drain.source.Close()
		}
	})
}
