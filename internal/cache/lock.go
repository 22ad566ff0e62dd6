package cache

import (
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// fileLock is an exclusive advisory lock on one path. The file is created
// when missing.
type fileLock struct {
	f *os.File
}

func lockFile(path string) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o666)
	if err != nil {
		return nil, errors.Wrapf(err, "cache: open %s", path)
	}
	for {
		err = unix.Flock(int(f.Fd()), unix.LOCK_EX)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "cache: lock %s", path)
	}
	return &fileLock{f: f}, nil
}

// File returns the locked file, positioned at its start.
func (l *fileLock) File() *os.File {
	return l.f
}

// Unlock releases the lock and closes the file. It is safe to call twice.
func (l *fileLock) Unlock() {
	if l == nil || l.f == nil {
		return
	}
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN); err != nil {
		log.Warnf("cache: unlock %s: %v", l.f.Name(), err)
	}
	l.f.Close()
	l.f = nil
}
