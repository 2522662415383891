// Package vault writes finished notes and attachment bytes under a root
// directory on the local filesystem.
package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultDelimiter separates appended entries inside an existing note.
const DefaultDelimiter = "***"

// CreatedNote records a note write for the daily digest.
type CreatedNote struct {
	Path string
	At   time.Time
}

// Vault is the storage collaborator. All paths passed in are relative to the
// vault root; returned paths are relative too. An empty delimiter joins
// appended entries with a blank line only.
type Vault struct {
	root      string
	delimiter string
	log       zerolog.Logger

	mu      sync.Mutex
	created []CreatedNote
	now     func() time.Time
}

func New(root, delimiter string, log zerolog.Logger) *Vault {
	return &Vault{root: root, delimiter: delimiter, log: log, now: time.Now}
}

// Root returns the vault root directory.
func (v *Vault) Root() string { return v.root }

// AppendNote writes body to relPath, creating parent folders as needed. When
// the note already exists the body is appended after the delimiter.
func (v *Vault) AppendNote(relPath, body string) error {
	abs := filepath.Join(v.root, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("create note folder: %w", err)
	}

	existing, err := os.ReadFile(abs)
	switch {
	case err == nil:
		sep := "\n\n"
		if v.delimiter != "" {
			sep = "\n\n" + v.delimiter + "\n\n"
		}
		joined := strings.TrimRight(string(existing), "\n") + sep + body + "\n"
		if err := os.WriteFile(abs, []byte(joined), 0o644); err != nil {
			return fmt.Errorf("append note: %w", err)
		}
	case os.IsNotExist(err):
		if err := os.WriteFile(abs, []byte(body+"\n"), 0o644); err != nil {
			return fmt.Errorf("write note: %w", err)
		}
	default:
		return fmt.Errorf("read note: %w", err)
	}

	v.mu.Lock()
	v.created = append(v.created, CreatedNote{Path: relPath, At: v.now()})
	v.mu.Unlock()

	v.log.Debug().Str("path", relPath).Msg("note written")
	return nil
}

// SaveAttachment writes data to relPath, resolving name collisions by
// suffixing _1, _2, ... before the extension. Returns the path actually
// written, relative to the root.
func (v *Vault) SaveAttachment(relPath string, data []byte) (string, error) {
	unique, err := v.uniquePath(relPath)
	if err != nil {
		return "", err
	}
	abs := filepath.Join(v.root, filepath.FromSlash(unique))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("create attachment folder: %w", err)
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return "", fmt.Errorf("write attachment: %w", err)
	}
	return unique, nil
}

func (v *Vault) uniquePath(relPath string) (string, error) {
	ext := filepath.Ext(relPath)
	base := strings.TrimSuffix(relPath, ext)
	candidate := relPath
	for i := 1; ; i++ {
		_, err := os.Stat(filepath.Join(v.root, filepath.FromSlash(candidate)))
		if os.IsNotExist(err) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("stat attachment: %w", err)
		}
		candidate = fmt.Sprintf("%s_%d%s", base, i, ext)
	}
}

// CreatedSince returns notes recorded at or after t, oldest first.
func (v *Vault) CreatedSince(t time.Time) []CreatedNote {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []CreatedNote
	for _, n := range v.created {
		if !n.At.Before(t) {
			out = append(out, n)
		}
	}
	return out
}
