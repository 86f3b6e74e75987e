// Package lock implements the advisory marker-file lock that serializes
// writers to a database file shared through a synced folder.
//
// The lock is a courtesy convention between cooperating processes: every
// participant must use this package with the same lock path. A marker left
// behind by a crashed or killed process is never expired automatically; an
// operator removes it (see Clear) after confirming nobody is writing.
package lock

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"
)

// Extension replaces the database file's extension to form the default lock path.
const Extension = ".lock"

const header = "DATABASE LOCK"

// ErrAlreadyLocked is matched by every *LockedError.
var ErrAlreadyLocked = errors.New("database is already locked")

// LockedError reports contention. Contents is the competing marker's text so
// the caller can see who holds the database and why.
type LockedError struct {
	Path     string
	Contents string
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("Database is already locked.\n\nLock file: %s\n\n%s", e.Path, e.Contents)
}

func (e *LockedError) Is(target error) bool { return target == ErrAlreadyLocked }

// Options controls Acquire. The zero value gives the plain advisory behaviour
// at the default path.
type Options struct {
	Path      string // explicit lock path; DefaultPath(dbPath) when empty
	Purpose   string // short human description, e.g. "prune survey; ingest survey"
	RunID     string // invocation id echoed into the marker
	Exclusive bool   // create the marker with O_EXCL where the filesystem allows it
}

// Handle references a marker written by Acquire.
type Handle struct {
	Path string
	// Advisory is true when the exclusive create was unavailable and the
	// marker was written with a plain check-then-write.
	Advisory bool
}

// DefaultPath returns dbPath with its extension replaced by ".lock".
func DefaultPath(dbPath string) string {
	ext := filepath.Ext(dbPath)
	return strings.TrimSuffix(dbPath, ext) + Extension
}

// Acquire writes a lock marker for dbPath. It never waits or retries: if a
// marker already exists it returns a *LockedError carrying that marker's
// contents.
func Acquire(dbPath string, opts Options) (*Handle, error) {
	path := opts.Path
	if path == "" {
		path = DefaultPath(dbPath)
	}

	if existing, err := os.ReadFile(path); err == nil {
		return nil, &LockedError{Path: path, Contents: string(existing)}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("checking lock file %s: %w", path, err)
	}

	contents := markerContents(dbPath, opts, time.Now())

	if opts.Exclusive {
		err := createExclusive(path, contents)
		switch {
		case err == nil:
			return &Handle{Path: path}, nil
		case errors.Is(err, fs.ErrExist):
			// Lost the create race to another process.
			return nil, lostRace(path)
		}
		// Exclusive create unsupported here; fall through to the advisory write.
	}

	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		return nil, fmt.Errorf("writing lock file %s: %w", path, err)
	}
	return &Handle{Path: path, Advisory: opts.Exclusive}, nil
}

// releasedBeforeRead stands in for the contents of a marker that was removed
// between a failed exclusive create and the read of its contents.
const releasedBeforeRead = "(lock released before it could be read)\n"

// lostRace builds the LockedError for a marker another process created first.
func lostRace(path string) *LockedError {
	existing, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist), err == nil && len(existing) == 0:
		return &LockedError{Path: path, Contents: releasedBeforeRead}
	case err != nil:
		return &LockedError{Path: path, Contents: fmt.Sprintf("(lock file unreadable: %v)\n", err)}
	}
	return &LockedError{Path: path, Contents: string(existing)}
}

func createExclusive(path, contents string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(contents); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("writing lock file %s: %w", path, err)
	}
	return f.Close()
}

// Release removes the marker. A marker that is already gone is not an error,
// and a nil handle is a no-op, so Release is safe in a deferred call.
func (h *Handle) Release() error {
	if h == nil {
		return nil
	}
	if err := os.Remove(h.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing lock file %s: %w", h.Path, err)
	}
	return nil
}

// Clear removes a marker left behind by another process. Manual recovery only.
func Clear(path string) error {
	return (&Handle{Path: path}).Release()
}

func markerContents(dbPath string, opts Options, now time.Time) string {
	lines := []string{
		header,
		"Database: " + dbPath,
		"Locked by: " + Identity(),
		"Time (UTC): " + now.UTC().Format(time.RFC3339),
	}
	if opts.RunID != "" {
		lines = append(lines, "Run: "+opts.RunID)
	}
	if opts.Purpose != "" {
		lines = append(lines, "Purpose: "+opts.Purpose)
	}
	return strings.Join(lines, "\n") + "\n"
}

// Identity returns "user@host" for the current process.
func Identity() string {
	name := "unknown"
	if u, err := user.Current(); err == nil && u.Username != "" {
		name = u.Username
	} else if v := os.Getenv("USER"); v != "" {
		name = v
	} else if v := os.Getenv("USERNAME"); v != "" {
		name = v
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return name + "@" + host
}

// Info is a parsed lock marker.
type Info struct {
	Path     string
	Database string
	Holder   string
	Locked   time.Time // zero if the timestamp could not be parsed
	RunID    string
	Purpose  string
	Raw      string
}

// Age reports how long ago the marker was written, or 0 if unknown.
func (i Info) Age(now time.Time) time.Duration {
	if i.Locked.IsZero() {
		return 0
	}
	return now.Sub(i.Locked)
}

// Read parses the marker at path. The bool is false when no marker exists.
func Read(path string) (Info, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Info{}, false, nil
	}
	if err != nil {
		return Info{}, false, fmt.Errorf("reading lock file %s: %w", path, err)
	}
	return parseMarker(path, string(data)), true, nil
}

func parseMarker(path, raw string) Info {
	info := Info{Path: path, Raw: raw}
	sc := bufio.NewScanner(strings.NewReader(raw))
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "Database":
			info.Database = value
		case "Locked by":
			info.Holder = value
		case "Time (UTC)":
			if t, err := time.Parse(time.RFC3339, value); err == nil {
				info.Locked = t
			} else if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
				info.Locked = t
			}
		case "Run":
			info.RunID = value
		case "Purpose":
			info.Purpose = value
		}
	}
	return info
}
