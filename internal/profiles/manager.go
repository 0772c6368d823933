package profiles

import (
	"context"
	"hash/fnv"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/mescon/chronarr/internal/logger"
)

const debounceDelay = 250 * time.Millisecond

// Manager owns the profiles file: it parses it, keeps the last good version,
// and hands validated updates to subscribers when the file changes on disk.
type Manager struct {
	path string

	mu   sync.RWMutex
	file *File

	// lastHash tracks the last committed content so editor quirks that fire
	// multiple write events without content changes don't republish.
	lastHash uint64

	// subsMu guards the subscriber list and ensures we never send on a
	// channel that is concurrently being closed in Unsubscribe.
	subsMu sync.Mutex
	subs   []chan *File

	validator func(ctx context.Context, f *File) error
}

func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// SetValidator installs a hook run by reloads before committing and
// publishing a changed file. A non-nil error rejects the new content.
func (m *Manager) SetValidator(fn func(ctx context.Context, f *File) error) {
	m.validator = fn
}

// Parse reads and parses the file without committing it.
func (m *Manager) Parse() (*File, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Load parses the file and commits it as the current version.
func (m *Manager) Load() (*File, error) {
	f, err := m.Parse()
	if err != nil {
		return nil, err
	}
	m.commit(f)
	return f, nil
}

// Get returns the last committed file, or nil before the first Load.
func (m *Manager) Get() *File {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.file
}

func (m *Manager) commit(f *File) {
	m.mu.Lock()
	m.file = f
	m.lastHash = hashFile(f)
	m.mu.Unlock()
}

// hashFile returns a stable hash of the file's canonical form so whitespace
// and comment edits don't count as changes.
func hashFile(f *File) uint64 {
	if f == nil {
		return 0
	}
	b, err := yaml.Marshal(f)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

// Subscribe returns a channel that receives each newly committed file.
func (m *Manager) Subscribe(buffer int) chan *File {
	ch := make(chan *File, buffer)
	m.subsMu.Lock()
	m.subs = append(m.subs, ch)
	m.subsMu.Unlock()
	return ch
}

// Unsubscribe removes and closes a channel returned by Subscribe.
func (m *Manager) Unsubscribe(ch chan *File) {
	if ch == nil {
		return
	}
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for i, s := range m.subs {
		if s == ch {
			last := len(m.subs) - 1
			m.subs[i] = m.subs[last]
			m.subs[last] = nil
			m.subs = m.subs[:last]
			close(ch)
			return
		}
	}
}

func (m *Manager) publish(f *File) {
	// Hold subsMu while sending to avoid send-on-closed panics.
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		if ch == nil {
			continue
		}
		// Deliver the latest version. If the subscriber is slow and its
		// buffer is full, drop one stale item and push the newest.
		select {
		case ch <- f:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- f:
			default:
				logger.Debugf("Profiles update dropped (subscriber slow)")
			}
		}
	}
}

// reload re-reads the file and publishes it when the content changed and
// passes validation. Bad content keeps the last good version in place.
func (m *Manager) reload(ctx context.Context) {
	f, err := m.Parse()
	if err != nil {
		logger.Warnf("Profiles file %s rejected: %v", m.path, err)
		return
	}

	h := hashFile(f)
	m.mu.RLock()
	unchanged := h != 0 && h == m.lastHash
	m.mu.RUnlock()
	if unchanged {
		logger.Debugf("Profiles file unchanged, skipping publish")
		return
	}

	if m.validator != nil {
		vctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := m.validator(vctx, f)
		cancel()
		if err != nil {
			logger.Warnf("Profiles file %s rejected by validator: %v", m.path, err)
			return
		}
	}

	m.commit(f)
	m.publish(f)
	logger.Infof("Profiles file %s reloaded (%d profiles)", m.path, len(f.Profiles))
}

// Watch blocks watching the file's directory until ctx is cancelled. Change
// events are debounced before reloading so partial editor writes never parse.
// A broken watcher is recreated with jittered exponential backoff.
func (m *Manager) Watch(ctx context.Context) error {
	dir := filepath.Dir(m.path)
	file := filepath.Base(m.path)

	const (
		restartBackoffBase = 250 * time.Millisecond
		restartBackoffMax  = 5 * time.Second
	)
	backoff := restartBackoffBase
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounceDelay, func() {
			m.reload(ctx)
		})
	}
	wait := func() time.Duration {
		w := backoff + time.Duration(rng.Int63n(int64(backoff/2)+1))
		if backoff < restartBackoffMax {
			backoff *= 2
			if backoff > restartBackoffMax {
				backoff = restartBackoffMax
			}
		}
		return w
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		w, err := fsnotify.NewWatcher()
		if err != nil {
			logger.Warnf("Profiles watcher init failed: %v", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait()):
				continue
			}
		}

		// Watch the directory, not the file: editors replace files via
		// rename, and the file may not exist yet.
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			logger.Warnf("Profiles watcher add failed for %s: %v", dir, err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait()):
				continue
			}
		}

		backoff = restartBackoffBase
		logger.Debugf("Profiles watcher started for %s", m.path)

		broken := false
		for !broken {
			select {
			case <-ctx.Done():
				_ = w.Close()
				return nil
			case ev, ok := <-w.Events:
				if !ok {
					broken = true
					break
				}
				if strings.EqualFold(filepath.Base(ev.Name), file) {
					if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove|fsnotify.Chmod) != 0 {
						debounce()
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					broken = true
					break
				}
				if err == nil {
					continue
				}
				// Overflow means events were missed; reload once and keep going.
				if strings.Contains(strings.ToLower(err.Error()), "overflow") {
					logger.Warnf("Profiles watcher overflow, forcing reload: %v", err)
					debounce()
					continue
				}
				logger.Warnf("Profiles watcher error: %v", err)
				if strings.Contains(strings.ToLower(err.Error()), "closed") {
					broken = true
					break
				}
			}
		}

		_ = w.Close()
		if ctx.Err() != nil {
			return nil
		}
		d := wait()
		logger.Warnf("Profiles watcher stopped, restarting in %s", d)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(d):
		}
	}
}
