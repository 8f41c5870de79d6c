package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"

	"terrastream.ai/internal/sim/stream"
)

// JSONLZstdWriter appends JSON lines to hourly zstd files under baseDir.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

// Flush pushes buffered lines through the encoder so a reader sees complete
// frames.
func (w *JSONLZstdWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return nil
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 64*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// ChunkEventLogger records streamer events. OnChunkEvent never blocks the
// tick: events are queued and written by a background goroutine, and dropped
// when the queue is full.
type ChunkEventLogger struct {
	w       *JSONLZstdWriter
	queue   chan stream.Event
	done    chan struct{}
	dropped atomic.Uint64
	errs    atomic.Uint64
	once    sync.Once
}

func NewChunkEventLogger(dataDir string, queue int) *ChunkEventLogger {
	if queue <= 0 {
		queue = 1024
	}
	l := &ChunkEventLogger{
		w:     NewJSONLZstdWriter(filepath.Join(dataDir, "events"), "chunks"),
		queue: make(chan stream.Event, queue),
		done:  make(chan struct{}),
	}
	go l.loop()
	return l
}

func (l *ChunkEventLogger) loop() {
	defer close(l.done)
	for e := range l.queue {
		if err := l.w.Write(e); err != nil {
			l.errs.Add(1)
		}
	}
}

func (l *ChunkEventLogger) OnChunkEvent(e stream.Event) {
	select {
	case l.queue <- e:
	default:
		l.dropped.Add(1)
	}
}

func (l *ChunkEventLogger) Dropped() uint64 { return l.dropped.Load() }
func (l *ChunkEventLogger) Errors() uint64  { return l.errs.Load() }

// Close drains the queue and finishes the current file. Events delivered
// after Close are not allowed.
func (l *ChunkEventLogger) Close() error {
	l.once.Do(func() { close(l.queue) })
	<-l.done
	return l.w.Close()
}

// ReadEvents decodes one chunk event file.
func ReadEvents(path string) ([]stream.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeEvents(f)
}

func DecodeEvents(r io.Reader) ([]stream.Event, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []stream.Event
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var e stream.Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return out, fmt.Errorf("event line %d: %w", len(out)+1, err)
		}
		out = append(out, e)
	}
	return out, sc.Err()
}
