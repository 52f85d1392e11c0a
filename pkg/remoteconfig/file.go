package remoteconfig

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ErrWatcherFailed indicates the filesystem watcher could not be started.
var ErrWatcherFailed = errors.New("failed to initialize config file watcher")

// FileSource reads the envelope from a local file. A missing file is "no
// config".
type FileSource[T any] struct {
	path    string
	maxBody int64
	logger  *zap.Logger
}

var _ Source[InteractionConfig] = (*FileSource[InteractionConfig])(nil)

// NewFileSource creates a file-backed source. A nil logger is replaced with
// a no-op logger.
func NewFileSource[T any](path string, logger *zap.Logger) *FileSource[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSource[T]{
		path:    filepath.Clean(path),
		maxBody: DefaultMaxBodyBytes,
		logger:  logger,
	}
}

// Name implements Source.
func (s *FileSource[T]) Name() string {
	return "file:" + s.path
}

// Fetch implements Source.
func (s *FileSource[T]) Fetch(ctx context.Context) ([]T, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("opening %s: %w", s.path, err)
	}
	defer func() { _ = f.Close() }()

	body, err := io.ReadAll(io.LimitReader(f, s.maxBody+1))
	if err != nil {
		return nil, false, fmt.Errorf("reading %s: %w", s.path, err)
	}
	if int64(len(body)) > s.maxBody {
		return nil, false, &DecodeError{
			Reason:  ReasonBodyTooLarge,
			Preview: preview(body),
			Err:     fmt.Errorf("file exceeds %d bytes", s.maxBody),
		}
	}
	return decodeEnvelope[T](body)
}

// Watch signals on the returned channel whenever the file is written,
// created, renamed or removed. The directory is watched so editors that
// replace the file atomically are seen. Signals coalesce; the channel is
// closed when ctx is done.
func (s *FileSource[T]) Watch(ctx context.Context) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(s.path), err)
	}

	changes := make(chan struct{}, 1)
	go func() {
		defer close(changes)
		defer func() { _ = watcher.Close() }()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != s.path {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
					!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
					continue
				}
				select {
				case changes <- struct{}{}:
				default:
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("Config file watcher error",
					zap.String("path", s.path),
					zap.Error(err))
			}
		}
	}()
	return changes, nil
}
