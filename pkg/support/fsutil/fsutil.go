// Package fsutil contains utilities for working with the file system.
package fsutil

import (
	"math/rand/v2"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// FileExists returns whether the file or directory exists or an error if something went wrong in the filesystem.
func FileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, errors.Wrapf(err, "failed to FileExists(%q)", path)
}

// ReplaceTildeInDir by the user's home directory. Returns dir if it doesn't start with "~".
//
// It returns an error if `dir` has an unknown user or some other filesystem error (e.g: `~unknown/...`)
func ReplaceTildeInDir(dir string) (string, error) {
	if len(dir) == 0 || dir[0] != '~' {
		return dir, nil
	}
	var userName string
	if dir != "~" && !strings.HasPrefix(dir, "~/") {
		sepIdx := strings.IndexRune(dir, '/')
		if sepIdx == -1 {
			userName = dir[1:]
		} else {
			userName = dir[1:sepIdx]
		}
	}
	var usr *user.User
	var err error
	if userName == "" {
		usr, err = user.Current()
	} else {
		usr, err = user.Lookup(userName)
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to lookup home directory for user in path %q", dir)
	}
	return filepath.Join(usr.HomeDir, dir[1+len(userName):]), nil
}

// AtomicFile is a file written under a temporary name in the directory of its final path.
// Commit renames it onto the final path; Abort (or a failed Commit) removes it, so readers
// never see a partially written file at the final path.
//
// Typical use:
//
//	f, err := fsutil.CreateAtomic(path)
//	if err != nil { return err }
//	defer f.Abort()
//	... write to f ...
//	return f.Commit()
type AtomicFile struct {
	*os.File
	path string
	done bool
}

// FilePermMode is the permission (before umask) of the files created by CreateAtomic.
const FilePermMode = os.FileMode(0666)

// CreateAtomic creates the temporary file for path.
//
// The committed file gets the permissions of the file it replaces if there is one, and
// FilePermMode (adjusted by the umask) otherwise, the same as os.Create.
func CreateAtomic(path string) (*AtomicFile, error) {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	var f *os.File
	var err error
	for range 100 {
		name := filepath.Join(dir, "."+base+".tmp-"+strconv.FormatUint(uint64(rand.Uint32()), 10))
		f, err = os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_EXCL, FilePermMode)
		if !errors.Is(err, os.ErrExist) {
			break
		}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create temporary file for %q", path)
	}
	if info, statErr := os.Stat(path); statErr == nil && info.Mode().IsRegular() {
		if err = f.Chmod(info.Mode().Perm()); err != nil {
			_ = f.Close()
			removeTemp(f.Name())
			return nil, errors.Wrapf(err, "failed to os.Chmod(%q, %s)", f.Name(), info.Mode().Perm())
		}
	}
	return &AtomicFile{File: f, path: path}, nil
}

// Path returns the final path of the file.
func (f *AtomicFile) Path() string {
	return f.path
}

// Commit syncs and closes the temporary file and renames it to the final path.
// On failure the temporary file is removed.
func (f *AtomicFile) Commit() error {
	if f.done {
		return errors.Errorf("file %q already committed or aborted", f.path)
	}
	f.done = true
	tmpName := f.Name()
	err := f.Sync()
	if err != nil {
		err = errors.Wrapf(err, "failed to sync %q", tmpName)
	}
	if closeErr := f.Close(); closeErr != nil && err == nil {
		err = errors.Wrapf(closeErr, "failed to close %q", tmpName)
	}
	if err == nil {
		if renameErr := os.Rename(tmpName, f.path); renameErr != nil {
			err = errors.Wrapf(renameErr, "failed to rename %q to %q", tmpName, f.path)
		}
	}
	if err != nil {
		removeTemp(tmpName)
	}
	return err
}

// Abort closes and removes the temporary file. It is a no-op after Commit or a previous Abort.
func (f *AtomicFile) Abort() {
	if f.done {
		return
	}
	f.done = true
	_ = f.Close()
	removeTemp(f.Name())
}

func removeTemp(name string) {
	if err := os.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		klog.Warningf("failed to remove temporary file %q: %v", name, err)
	}
}
