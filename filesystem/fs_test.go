package filesystem

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func Test_LocalFilesystem_Stat(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(file, []byte("hi"), 0644); err != nil {
		t.Fatal(err)
	}

	fs := NewLocalFilesystem()

	t.Run("missing", func(t *testing.T) {
		info, err := fs.Stat(filepath.Join(dir, "nope"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if info.Present {
			t.Fatal("expected Present=false for a missing path")
		}
	})

	t.Run("file", func(t *testing.T) {
		info, err := fs.Stat(file)
		if err != nil {
			t.Fatal(err)
		}
		if !info.Present || info.Type != Regular || info.Size != 2 {
			t.Fatalf("unexpected info: %+v", info)
		}
		if len(info.Perm) != 9 {
			t.Fatalf("expected 9-char perm string, got %q", info.Perm)
		}
	})

	t.Run("dir", func(t *testing.T) {
		info, err := fs.Stat(dir)
		if err != nil {
			t.Fatal(err)
		}
		if !info.Present || info.Type != Directory {
			t.Fatalf("unexpected info: %+v", info)
		}
	})
}

func Test_LocalFilesystem_CanOpenDir(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(file, []byte("hi"), 0644); err != nil {
		t.Fatal(err)
	}

	fs := NewLocalFilesystem()
	if !fs.CanOpenDir(dir) {
		t.Fatal("expected dir to be openable")
	}
	if fs.CanOpenDir(file) {
		t.Fatal("expected a regular file to not be openable as a dir")
	}
	if fs.CanOpenDir(filepath.Join(dir, "nope")) {
		t.Fatal("expected a missing path to not be openable as a dir")
	}
}

func Test_LocalFilesystem_ListDir_sortedByName(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"charlie", "alpha", "bravo"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	fs := NewLocalFilesystem()
	entries, err := fs.ListDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	want := []string{"alpha", "bravo", "charlie"}
	for i, w := range want {
		if entries[i].Name != w {
			t.Fatalf("entry %d: want %q, got %q", i, w, entries[i].Name)
		}
	}
}

func Test_LocalFilesystem_OpenReadable(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(file, []byte("content"), 0644); err != nil {
		t.Fatal(err)
	}

	fs := NewLocalFilesystem()
	h, err := fs.OpenReadable(file)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Release()
	if string(h.Bytes()) != "content" {
		t.Fatalf("unexpected contents: %q", h.Bytes())
	}
}

func Test_LocalFilesystem_OpenWriteable_truncateVsAppend(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.txt")
	fs := NewLocalFilesystem()

	w, err := fs.OpenWriteable(file, TruncateCreate)
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte("hello"))
	w.Close()

	w, err = fs.OpenWriteable(file, AppendCreate)
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte(" world"))
	w.Close()

	got, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello world" {
		t.Fatalf("unexpected contents after append: %q", got)
	}

	w, err = fs.OpenWriteable(file, TruncateCreate)
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte("new"))
	w.Close()

	got, err = os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "new" {
		t.Fatalf("unexpected contents after truncate: %q", got)
	}
}

func Test_LocalFilesystem_Rename(t *testing.T) {
	dir := t.TempDir()
	from := filepath.Join(dir, "from.txt")
	to := filepath.Join(dir, "to.txt")
	if err := os.WriteFile(from, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	fs := NewLocalFilesystem()
	if err := fs.Rename(from, to); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(to); err != nil {
		t.Fatalf("expected renamed file to exist: %v", err)
	}
	if _, err := os.Stat(from); !os.IsNotExist(err) {
		t.Fatal("expected source to be gone after rename")
	}
}

func Test_LocalFilesystem_RemoveFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	fs := NewLocalFilesystem()
	if err := fs.RemoveFile(file); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(file); !os.IsNotExist(err) {
		t.Fatal("expected file to be gone")
	}
}

func Test_LocalFilesystem_CreateDir_and_RemoveDir(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")

	fs := NewLocalFilesystem()
	if err := fs.CreateDir(sub); err != nil {
		t.Fatal(err)
	}
	info, err := fs.Stat(sub)
	if err != nil || !info.Present || info.Type != Directory {
		t.Fatalf("expected sub to be a directory, got %+v, err=%v", info, err)
	}

	if err := fs.RemoveDir(sub); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(sub); !os.IsNotExist(err) {
		t.Fatal("expected directory to be gone")
	}
}

func Test_LocalFilesystem_RemoveDir_nonEmptyFails(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "a.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	fs := NewLocalFilesystem()
	if err := fs.RemoveDir(sub); err == nil {
		t.Fatal("expected an error removing a non-empty directory")
	}
}

func Test_permString(t *testing.T) {
	tests := []struct {
		mode os.FileMode
		want string
	}{
		{0755, "rwxr-xr-x"},
		{0644, "rw-r--r--"},
		{0600, "rw-------"},
		{0777, "rwxrwxrwx"},
		{0000, "---------"},
	}
	for _, tt := range tests {
		if got := permString(tt.mode); got != tt.want {
			t.Errorf("permString(%o) = %q, want %q", tt.mode, got, tt.want)
		}
	}
}

func Test_LocalFilesystem_DiskFree(t *testing.T) {
	fs := NewLocalFilesystem()
	info, err := fs.DiskFree(t.TempDir())
	if err != nil {
		t.Skipf("DiskFree unsupported on this platform: %v", err)
	}
	if info.Blocks == 0 {
		t.Fatal("expected a non-zero total block count")
	}
	if info.BlocksFree > info.Blocks {
		t.Fatalf("free blocks %d exceeds total blocks %d", info.BlocksFree, info.Blocks)
	}
}

func Test_toInfo_modTime(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	fi, err := os.Lstat(file)
	if err != nil {
		t.Fatal(err)
	}
	info := toInfo(fi)
	if info.ModTime.IsZero() || info.ModTime.After(time.Now().Add(time.Minute)) {
		t.Fatalf("unexpected ModTime: %v", info.ModTime)
	}
}
