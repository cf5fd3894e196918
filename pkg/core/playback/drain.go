package playback

import (
	"context"
	"errors"
	"io"
	"time"
)

// DefaultTick is the pull interval used by Drain.
const DefaultTick = 20 * time.Millisecond

// Drain pulls one tick's worth of PCM from the timeline every tick and writes
// it to w, advancing the output clock in real time. It is the sink for
// outputs that are pushed to (a player process's stdin, or io.Discard when
// running without a speaker). Drain returns nil when ctx is cancelled or the
// timeline is closed.
func Drain(ctx context.Context, t *Timeline, w io.Writer, tick time.Duration) error {
	if tick <= 0 {
		tick = DefaultTick
	}
	f := t.Format()
	bytesPerTick := int64(f.BytesPerSecond()) * int64(tick) / int64(time.Second)
	width := int64(2 * f.Channels)
	bytesPerTick -= bytesPerTick % width
	if bytesPerTick <= 0 {
		bytesPerTick = width
	}
	buf := make([]byte, bytesPerTick)

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := t.Read(buf)
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			if _, err := w.Write(buf[:n]); err != nil {
				return err
			}
		}
	}
}
