// Package object implements the stream-like File and Directory views over a
// cluster chain that the engine hands out to callers, grounded on
// original_source/ps2mc.py's ps2mc_file/ps2mc_directory classes.
package object

import (
	"bytes"
	"fmt"
	"io"

	ps2errors "github.com/dargueta/ps2mc/errors"
	"github.com/dargueta/ps2mc/dirent"
	"github.com/dargueta/ps2mc/fat"
)

// OpenMode describes how a File was opened, mirroring the read/write/append
// distinctions original_source/ps2mc.py derives from a Python mode string.
type OpenMode struct {
	Write  bool
	Append bool
}

// DirentUpdater is implemented by the owning engine so File can persist
// changes to its own directory entry (first cluster, length, modified time)
// and fan the update out to any other open handles on the same entry.
type DirentUpdater interface {
	UpdateDirent(loc dirent.Dirloc, self *File, newFirstCluster *uint32, newLength *uint32, setModified bool) error
}

// File is a read/write/seek view over one file's cluster chain.
type File struct {
	engine *fat.Engine
	update DirentUpdater

	Dirloc       dirent.Dirloc
	Name         string
	firstCluster uint32
	length       uint32
	clusterSize  uint
	mode         OpenMode

	chain *fat.Chain

	bufferCluster uint32
	buffer        []byte
	bufferValid   bool

	pos    uint32
	closed bool
}

// New creates a File over an existing cluster chain. update may be nil for
// anonymous, unlinked views (e.g. archive import staging) that never need to
// persist dirent changes.
func New(
	engine *fat.Engine,
	update DirentUpdater,
	loc dirent.Dirloc,
	firstCluster uint32,
	length uint32,
	clusterSize uint,
	mode OpenMode,
	name string,
) *File {
	return &File{
		engine:       engine,
		update:       update,
		Dirloc:       loc,
		Name:         name,
		firstCluster: firstCluster,
		length:       length,
		clusterSize:  clusterSize,
		mode:         mode,
	}
}

// Length returns the file's current length in bytes.
func (f *File) Length() uint32 {
	return f.length
}

// FirstCluster returns the file's first allocatable cluster index.
func (f *File) FirstCluster() uint32 {
	return f.firstCluster
}

func (f *File) findFileCluster(n uint32) (uint32, error) {
	if f.chain == nil {
		f.chain = fat.NewChain(f.engine, f.firstCluster)
	}
	return f.chain.At(n)
}

func (f *File) readFileCluster(n uint32) ([]byte, error) {
	if f.bufferValid && n == f.bufferCluster {
		return f.buffer, nil
	}

	cluster, err := f.findFileCluster(n)
	if err != nil {
		return nil, err
	}
	if cluster == fat.ChainEnd {
		return nil, nil
	}

	buf, err := f.engine.ReadAllocatableCluster(cluster)
	if err != nil {
		return nil, err
	}
	f.buffer = buf
	f.bufferCluster = n
	f.bufferValid = true
	return buf, nil
}

// extendFile allocates the n'th cluster of the file (0-based), linking it
// into the chain, and returns its allocatable-cluster index. ok is false if
// the card is out of space.
func (f *File) extendFile(n uint32) (cluster uint32, ok bool, err error) {
	cluster, ok, err = f.engine.Allocate()
	if err != nil || !ok {
		return 0, ok, err
	}

	if n == 0 {
		f.firstCluster = cluster
		f.chain = nil
		if f.update != nil {
			fc := cluster
			if err := f.update.UpdateDirent(f.Dirloc, f, &fc, nil, false); err != nil {
				return 0, false, err
			}
		}
		return cluster, true, nil
	}

	prev, err := f.chain.At(n - 1)
	if err != nil {
		return 0, false, err
	}
	if err := f.engine.Set(prev, cluster|fat.AllocatedBit); err != nil {
		return 0, false, err
	}
	return cluster, true, nil
}

// writeFileCluster writes buf (exactly one cluster) as logical cluster n of
// the file, extending the chain if n is past the current end. setModified is
// the modified-time request this write was made under, reused verbatim if
// the write runs out of space partway through and has to report a truncated
// length.
func (f *File) writeFileCluster(n uint32, buf []byte, setModified bool) (bool, error) {
	cluster, err := f.findFileCluster(n)
	if err != nil {
		return false, err
	}

	if cluster != fat.ChainEnd {
		if err := f.engine.WriteAllocatableCluster(cluster, buf); err != nil {
			return false, err
		}
		f.buffer = buf
		f.bufferCluster = n
		f.bufferValid = true
		return true, nil
	}

	clusterEnd := ceilDiv(f.length, uint32(f.clusterSize))
	chainLen, err := f.chain.Len()
	if err != nil {
		return false, err
	}
	if chainLen != clusterEnd {
		return false, ps2errors.ErrFileSystemCorrupted.WithMessage("file length doesn't match cluster chain length")
	}

	for i := clusterEnd; i < n; i++ {
		c, ok, err := f.extendFile(i)
		if err != nil {
			return false, err
		}
		if !ok {
			if i != clusterEnd {
				f.length = (i - 1) * uint32(f.clusterSize)
				newLen := f.length
				if f.update != nil {
					if err := f.update.UpdateDirent(f.Dirloc, f, nil, &newLen, setModified); err != nil {
						return false, err
					}
				}
			}
			return false, nil
		}
		if err := f.engine.WriteAllocatableCluster(c, make([]byte, f.clusterSize)); err != nil {
			return false, err
		}
	}

	cluster, ok, err := f.extendFile(n)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	if err := f.engine.WriteAllocatableCluster(cluster, buf); err != nil {
		return false, err
	}
	f.buffer = buf
	f.bufferCluster = n
	f.bufferValid = true
	return true, nil
}

// UpdateNotify is called by the owning engine on every other open handle to
// this dirent when one handle changes its first cluster or length,
// invalidating this handle's cached chain and cluster buffer.
func (f *File) UpdateNotify(firstCluster uint32, length uint32) {
	if f.firstCluster != firstCluster {
		f.firstCluster = firstCluster
		f.chain = nil
	}
	f.length = length
	f.bufferValid = false
}

// Read implements io.Reader.
func (f *File) Read(p []byte) (int, error) {
	if f.closed {
		return 0, fmt.Errorf("object: file is closed")
	}

	remaining := int64(f.length) - int64(f.pos)
	if remaining <= 0 {
		return 0, io.EOF
	}
	size := int64(len(p))
	if size > remaining {
		size = remaining
	}

	written := 0
	for int64(written) < size {
		clusterSize := uint32(f.clusterSize)
		off := f.pos % clusterSize
		chunk := clusterSize - off
		if int64(chunk) > size-int64(written) {
			chunk = uint32(size - int64(written))
		}

		buf, err := f.readFileCluster(f.pos / clusterSize)
		if err != nil {
			return written, err
		}
		if buf == nil {
			break
		}

		copy(p[written:int64(written)+int64(chunk)], buf[off:off+chunk])
		f.pos += chunk
		written += int(chunk)
	}

	if written == 0 {
		return 0, io.EOF
	}
	return written, nil
}

// ReadLine is Read, except it stops early the first time it sees eol within
// the cluster it's currently reading, mirroring
// original_source/ps2mc.py's read(size, eol) line-read mode. p bounds how
// much can be read as with Read; ReadLine returns fewer bytes than len(p)
// without error once eol is found.
func (f *File) ReadLine(p []byte, eol byte) (int, error) {
	if f.closed {
		return 0, fmt.Errorf("object: file is closed")
	}

	remaining := int64(f.length) - int64(f.pos)
	if remaining <= 0 {
		return 0, io.EOF
	}
	size := int64(len(p))
	if size > remaining {
		size = remaining
	}

	written := 0
	for int64(written) < size {
		clusterSize := uint32(f.clusterSize)
		off := f.pos % clusterSize
		chunk := clusterSize - off
		if int64(chunk) > size-int64(written) {
			chunk = uint32(size - int64(written))
		}

		buf, err := f.readFileCluster(f.pos / clusterSize)
		if err != nil {
			return written, err
		}
		if buf == nil {
			break
		}

		foundEOL := false
		if idx := bytes.IndexByte(buf[off:off+chunk], eol); idx != -1 {
			chunk = uint32(idx) + 1
			foundEOL = true
		}

		copy(p[written:int64(written)+int64(chunk)], buf[off:off+chunk])
		f.pos += chunk
		written += int(chunk)

		if foundEOL {
			break
		}
	}

	if written == 0 {
		return 0, io.EOF
	}
	return written, nil
}

// Write implements io.Writer.
func (f *File) Write(p []byte) (int, error) {
	return f.write(p, true)
}

// write is Write's real body, parameterized by the modified-time request the
// caller wants this write to carry. Ordinary callers always want true;
// Directory.WriteAtCascade passes a caller-chosen value so that a directory
// rewriting one of its own dirents can decide, the way
// original_source/ps2mc.py's write_raw_ent does, whether this write should
// itself request a modified-time bump one level further up the tree.
func (f *File) write(p []byte, setModified bool) (int, error) {
	if f.closed {
		return 0, fmt.Errorf("object: file is closed")
	}

	pos := f.pos
	if f.mode.Append {
		pos = f.length
	} else if !f.mode.Write {
		return 0, ps2errors.ErrReadOnly.WithMessage(f.Name)
	}

	clusterSize := uint32(f.clusterSize)
	written := 0
	for written < len(p) {
		clusterIndex := pos / clusterSize
		off := pos % clusterSize
		chunkLen := clusterSize - off
		if int(chunkLen) > len(p)-written {
			chunkLen = uint32(len(p) - written)
		}

		var buf []byte
		if chunkLen == clusterSize {
			buf = append([]byte(nil), p[written:written+int(chunkLen)]...)
		} else {
			existing, err := f.readFileCluster(clusterIndex)
			if err != nil {
				return written, err
			}
			if existing == nil {
				existing = make([]byte, clusterSize)
			}
			buf = append([]byte(nil), existing...)
			copy(buf[off:off+chunkLen], p[written:written+int(chunkLen)])
		}

		ok, err := f.writeFileCluster(clusterIndex, buf, setModified)
		if err != nil {
			return written, err
		}
		if !ok {
			return written, ps2errors.ErrNoSpace.WithMessage(f.Name)
		}

		pos += chunkLen
		f.pos = pos

		var newLength *uint32
		if pos > f.length {
			f.length = pos
			newLength = &f.length
		}
		if f.update != nil {
			if err := f.update.UpdateDirent(f.Dirloc, f, nil, newLength, setModified); err != nil {
				return written, err
			}
		}

		written += int(chunkLen)
	}

	return written, nil
}

// Seek implements io.Seeker.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	if f.closed {
		return 0, fmt.Errorf("object: file is closed")
	}

	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = int64(f.pos)
	case io.SeekEnd:
		base = int64(f.length)
	default:
		return 0, fmt.Errorf("object: invalid whence %d", whence)
	}

	newPos := base + offset
	if newPos < 0 {
		return 0, fmt.Errorf("object: negative seek position")
	}
	f.pos = uint32(newPos)
	return newPos, nil
}

// Close marks the file unusable for further I/O. The engine is responsible
// for removing it from the open-file registry.
func (f *File) Close() error {
	f.closed = true
	f.chain = nil
	f.bufferValid = false
	return nil
}

func ceilDiv(a, b uint32) uint32 {
	return (a + b - 1) / b
}
