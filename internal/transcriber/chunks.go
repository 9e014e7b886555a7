package transcriber

import (
	"context"
	"errors"
	"io"
	"time"
)

const (
	pcmBytesPerSample = 2
	DefaultChunkSpan  = 100 * time.Millisecond
)

// ChunkBytes is the size of a 16-bit mono PCM chunk covering d at the session sample rate.
func ChunkBytes(cfg SessionConfig, d time.Duration) int {
	if d <= 0 {
		d = DefaultChunkSpan
	}
	n := int(int64(cfg.SampleRateHz) * pcmBytesPerSample * int64(d) / int64(time.Second))
	n -= n % pcmBytesPerSample
	if n < pcmBytesPerSample {
		return pcmBytesPerSample
	}
	return n
}

// ReadChunks turns r into an ordered chunk channel that is closed at EOF. The returned wait
// function blocks until reading stops and reports any read error other than EOF. Cancel ctx
// if the channel is abandoned before it is drained.
func ReadChunks(ctx context.Context, r io.Reader, size int) (<-chan AudioChunk, func() error) {
	if size <= 0 {
		size = pcmBytesPerSample
	}
	out := make(chan AudioChunk)
	done := make(chan struct{})
	var readErr error
	go func() {
		defer close(done)
		defer close(out)
		for {
			buf := make([]byte, size)
			n, err := io.ReadFull(r, buf)
			if n > 0 {
				select {
				case out <- AudioChunk(buf[:n]):
				case <-ctx.Done():
					readErr = ctx.Err()
					return
				}
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return
			}
			if err != nil {
				readErr = err
				return
			}
		}
	}()
	return out, func() error {
		<-done
		return readErr
	}
}
