// Package filesystem is the per-platform filesystem adapter the FTP
// session drives: stat, directory listing, open-for-read (routed through
// filecache's mmap cache), open-for-write, rename, delete, mkdir, rmdir.
// Paths in and out are host-native; UTF-8 is the boundary encoding FTP
// sees, matching the wire protocol's UTF8 feature.
package filesystem

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/embeddable-ftpd/ftpd/filecache"
)

// FileType classifies a directory entry.
type FileType int

const (
	Regular FileType = iota
	Directory
	Symlink
	Other
)

// Info is the result of a Stat call.
type Info struct {
	Present bool
	Type    FileType
	Size    int64
	ModTime time.Time
	// Perm is a 9-character rwx×(owner,group,other) permission string,
	// e.g. "rwxr-xr-x".
	Perm string
}

// WriteMode selects OpenWriteable's open semantics.
type WriteMode int

const (
	// TruncateCreate creates the file if absent, truncating it otherwise.
	TruncateCreate WriteMode = iota
	// AppendCreate creates the file if absent, seeking to the end
	// otherwise.
	AppendCreate
)

// Filesystem is the adapter the session drives. Every operation takes
// host-native, UTF-8 paths and returns an explicit status.
type Filesystem interface {
	Stat(path string) (Info, error)
	CanOpenDir(path string) bool
	// ListDir returns entries sorted lexicographically, byte-wise, by
	// name, so LIST/NLST output is reproducible.
	ListDir(path string) ([]DirEntry, error)
	OpenReadable(path string) (*filecache.Handle, error)
	OpenWriteable(path string, mode WriteMode) (io.WriteCloser, error)
	Rename(from, to string) error
	RemoveFile(path string) error
	RemoveDir(path string) error
	CreateDir(path string) error
}

// DirEntry is one row of a directory listing.
type DirEntry struct {
	Name string
	Info Info
}

// LocalFilesystem implements Filesystem against the host OS filesystem,
// rooted nowhere in particular — the caller (the session, via vpath) is
// responsible for confining paths to a user's root before they reach here.
type LocalFilesystem struct{}

// NewLocalFilesystem returns a Filesystem backed by the local OS.
func NewLocalFilesystem() *LocalFilesystem {
	return &LocalFilesystem{}
}

func toInfo(fi os.FileInfo) Info {
	typ := Regular
	switch {
	case fi.Mode()&os.ModeSymlink != 0:
		typ = Symlink
	case fi.IsDir():
		typ = Directory
	case !fi.Mode().IsRegular():
		typ = Other
	}
	return Info{
		Present: true,
		Type:    typ,
		Size:    fi.Size(),
		ModTime: fi.ModTime(),
		Perm:    permString(fi.Mode()),
	}
}

// permString renders the 9 rwx bits of mode as "rwxr-xr-x" style text.
func permString(mode os.FileMode) string {
	const letters = "rwxrwxrwx"
	perm := mode.Perm()
	out := make([]byte, 9)
	for i := 0; i < 9; i++ {
		bit := fs.FileMode(1 << uint(8-i))
		if perm&bit != 0 {
			out[i] = letters[i]
		} else {
			out[i] = '-'
		}
	}
	return string(out)
}

// Stat reports whether path exists and, if so, its type, size, mtime, and
// permission string.
func (LocalFilesystem) Stat(path string) (Info, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Info{}, nil
		}
		return Info{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return toInfo(fi), nil
}

// CanOpenDir reports whether path can be opened as a directory.
func (LocalFilesystem) CanOpenDir(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil || !fi.IsDir() {
		return false
	}
	_, err = f.Readdirnames(1)
	return err == nil || err == io.EOF
}

// ListDir returns path's entries sorted byte-wise by name.
func (LocalFilesystem) ListDir(path string) ([]DirEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening directory %s: %w", path, err)
	}
	defer f.Close()

	names, err := f.Readdirnames(-1)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", path, err)
	}
	sort.Strings(names)

	entries := make([]DirEntry, 0, len(names))
	for _, name := range names {
		fi, err := os.Lstat(filepath.Join(path, name))
		if err != nil {
			continue // entry removed between Readdirnames and Lstat
		}
		entries = append(entries, DirEntry{Name: name, Info: toInfo(fi)})
	}
	return entries, nil
}

// OpenReadable returns a shared, reference-counted memory mapping of
// path's contents, acquired through filecache so concurrent readers of the
// same live path share one mapping.
func (LocalFilesystem) OpenReadable(path string) (*filecache.Handle, error) {
	return filecache.Acquire(path)
}

// OpenWriteable opens path for streamed writing in the given mode.
func (LocalFilesystem) OpenWriteable(path string, mode WriteMode) (io.WriteCloser, error) {
	flags := os.O_WRONLY | os.O_CREATE
	switch mode {
	case TruncateCreate:
		flags |= os.O_TRUNC
	case AppendCreate:
		flags |= os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening %s for write: %w", path, err)
	}
	return f, nil
}

// Rename is atomic within a filesystem; callers that must not overwrite an
// existing target should Stat it first (this adapter does not pre-check).
func (LocalFilesystem) Rename(from, to string) error {
	if err := os.Rename(from, to); err != nil {
		return fmt.Errorf("renaming %s to %s: %w", from, to, err)
	}
	return nil
}

// RemoveFile removes a regular file.
func (LocalFilesystem) RemoveFile(path string) error {
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	return nil
}

// RemoveDir removes an empty directory; it fails if the directory is not
// empty.
func (LocalFilesystem) RemoveDir(path string) error {
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("removing directory %s: %w", path, err)
	}
	return nil
}

// CreateDir creates a directory with mode 0755 on POSIX (the OS default
// ACL applies on Windows).
func (LocalFilesystem) CreateDir(path string) error {
	if err := os.Mkdir(path, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", path, err)
	}
	return nil
}
