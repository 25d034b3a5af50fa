package utils

import (
	"errors"
	"io"
	"sync"
	"syscall"

	"go.uber.org/zap/zapcore"
)

var _ zapcore.WriteSyncer = (*FlushingWriter)(nil)

// FlushingWriter serializes writes to a destination and pushes each one through
// immediately. It satisfies zapcore.WriteSyncer so loggers and command output can
// share a destination without interleaving partial lines.
type FlushingWriter struct {
	mutex       sync.Mutex
	destination io.Writer
}

// NewFlushingWriter wraps destination. A nil destination discards output and an
// existing FlushingWriter is returned unchanged.
func NewFlushingWriter(destination io.Writer) *FlushingWriter {
	if existingWriter, alreadyWrapped := destination.(*FlushingWriter); alreadyWrapped && existingWriter != nil {
		return existingWriter
	}
	if destination == nil {
		destination = io.Discard
	}
	return &FlushingWriter{destination: destination}
}

// Write writes data and flushes the destination when it buffers.
func (flushingWriter *FlushingWriter) Write(data []byte) (int, error) {
	flushingWriter.mutex.Lock()
	defer flushingWriter.mutex.Unlock()

	bytesWritten, writeError := flushingWriter.destination.Write(data)
	if writeError != nil {
		return bytesWritten, writeError
	}
	return bytesWritten, flushingWriter.flush()
}

// Sync flushes the destination and commits it to stable storage when it is a file.
// Pipes and terminals reject fsync; those errors are ignored.
func (flushingWriter *FlushingWriter) Sync() error {
	flushingWriter.mutex.Lock()
	defer flushingWriter.mutex.Unlock()

	if flushError := flushingWriter.flush(); flushError != nil {
		return flushError
	}

	syncer, canSync := flushingWriter.destination.(interface{ Sync() error })
	if !canSync {
		return nil
	}
	syncError := syncer.Sync()
	if isUnsyncableDestination(syncError) {
		return nil
	}
	return syncError
}

func (flushingWriter *FlushingWriter) flush() error {
	if flusher, canFlush := flushingWriter.destination.(interface{ Flush() error }); canFlush {
		return flusher.Flush()
	}
	return nil
}

func isUnsyncableDestination(syncError error) bool {
	return errors.Is(syncError, syscall.EINVAL) || errors.Is(syncError, syscall.ENOTSUP) || errors.Is(syncError, syscall.ENOTTY)
}
