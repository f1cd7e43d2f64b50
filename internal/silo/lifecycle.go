package silo

import (
	"context"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio"
	"golang.org/x/exp/mmap"

	"github.com/xmlsilo/xmlsilo/internal/xmlerr"
)

// Mmap is a loaded silo backed by an mmap'd file, closed via Close.
type Mmap struct {
	*Silo
	ra *mmap.ReaderAt
}

// Close releases the mmap.
func (m *Mmap) Close() error {
	if m.ra == nil {
		return nil
	}
	return m.ra.Close()
}

// readerAtBytes copies a mmap.ReaderAt's full contents into a []byte, since
// Load works over a plain byte slice. The copy reads every page of the
// mapping; OpenMmap pays this cost once per open, not per query.
func readerAtBytes(ra *mmap.ReaderAt) []byte {
	buf := make([]byte, ra.Len())
	if _, err := ra.ReadAt(buf, 0); err != nil {
		return nil
	}
	return buf
}

// OpenMmap mmaps path and loads a Silo over a full in-memory copy of the
// mapped bytes (see readerAtBytes); the mapping stays open until Close. The
// caller must Close the result when done.
func OpenMmap(path string, flags CompileFlag) (*Mmap, error) {
	ra, err := mmap.Open(path)
	if err != nil {
		return nil, xmlerr.NewError(xmlerr.KindIO, "mmap open", err)
	}
	s, err := Load(readerAtBytes(ra), flags)
	if err != nil {
		ra.Close()
		return nil, err
	}
	return &Mmap{Silo: s, ra: ra}, nil
}

// CompileFunc produces a fresh compile's bytes and the GUID they encode.
// Ensure calls it once per call regardless of cache outcome, so it can
// compare the candidate GUID against whatever is already on disk.
type CompileFunc func() (data []byte, guid [16]byte, err error)

// Ensure implements the compile cache described for the silo lifecycle:
// recompute the GUID a fresh compile would produce, compare it against the
// persisted silo's GUID (if cachePath exists and loads), and only rewrite
// cachePath when they differ, the existing file fails to load, or
// IgnoreGUID is not set and no existing file matches. On a cache hit,
// compile is still invoked to obtain the candidate GUID.
func Ensure(ctx context.Context, cachePath string, flags CompileFlag, compile CompileFunc) (*Mmap, error) {
	data, guid, err := compile()
	if err != nil {
		return nil, err
	}

	if existing, err := os.ReadFile(cachePath); err == nil {
		if s, err := Load(existing, flags); err == nil {
			if s.GUID() == guid || flags.Has(IgnoreGUID) {
				return openOrWrap(cachePath, existing, flags)
			}
		}
	}

	if err := writeAtomic(cachePath, data); err != nil {
		return nil, err
	}

	m, err := OpenMmap(cachePath, flags)
	if err != nil {
		return nil, err
	}
	if flags.Has(WatchBlob) {
		WatchFile(ctx, cachePath, func() {
			log.Printf("silo: %s changed on disk, cached handle is now stale", cachePath)
		})
	}
	return m, nil
}

func openOrWrap(path string, data []byte, flags CompileFlag) (*Mmap, error) {
	m, err := OpenMmap(path, flags)
	if err == nil {
		return m, nil
	}
	// Fall back to the bytes already in hand rather than failing ensure()
	// over a transient mmap error on a file we just confirmed loads.
	s, err2 := Load(data, flags)
	if err2 != nil {
		return nil, err
	}
	return &Mmap{Silo: s}, nil
}

func writeAtomic(dest string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return xmlerr.NewError(xmlerr.KindIO, "creating cache directory", err)
	}
	f, err := renameio.TempFile("", dest)
	if err != nil {
		return xmlerr.NewError(xmlerr.KindIO, "creating temp file", err)
	}
	defer f.Cleanup()
	if _, err := f.Write(data); err != nil {
		return xmlerr.NewError(xmlerr.KindIO, "writing silo", err)
	}
	if err := f.CloseAtomicallyReplace(); err != nil {
		return xmlerr.NewError(xmlerr.KindIO, "replacing silo", err)
	}
	return nil
}

// WatchFile polls path's modification time every interval (none of the
// teacher's or the pack's dependencies offer a portable file-watcher; the
// pack's one watch-flavored import, github.com/s-urbaniak/uevent, reads
// Linux kernel device uevents and has nothing to do with regular files, so
// this stays a plain stdlib stat loop) and calls onChange once per observed
// change. It stops when ctx is cancelled.
func WatchFile(ctx context.Context, path string, onChange func()) {
	const interval = 2 * time.Second
	go func() {
		info, err := os.Stat(path)
		var last time.Time
		gone := err != nil
		if err == nil {
			last = info.ModTime()
		}
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				info, err := os.Stat(path)
				if err != nil {
					if !gone {
						gone = true
						onChange()
					}
					continue
				}
				gone = false
				if info.ModTime().After(last) {
					last = info.ModTime()
					onChange()
				}
			}
		}
	}()
}

// WatchDirectory behaves like WatchFile but fires onChange when any entry
// under dir is added, removed, or modified.
func WatchDirectory(ctx context.Context, dir string, onChange func()) {
	const interval = 2 * time.Second
	snapshot := func() map[string]time.Time {
		entries, err := ioutil.ReadDir(dir)
		if err != nil {
			return nil
		}
		m := make(map[string]time.Time, len(entries))
		for _, e := range entries {
			m[e.Name()] = e.ModTime()
		}
		return m
	}
	go func() {
		last := snapshot()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				cur := snapshot()
				if !sameSnapshot(last, cur) {
					last = cur
					onChange()
				}
			}
		}
	}()
}

func sameSnapshot(a, b map[string]time.Time) bool {
	if len(a) != len(b) {
		return false
	}
	for name, t := range a {
		if bt, ok := b[name]; !ok || !bt.Equal(t) {
			return false
		}
	}
	return true
}
