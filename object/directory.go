package object

import (
	"fmt"
	"io"

	ps2dirent "github.com/dargueta/ps2mc/dirent"
)

// Directory is an indexable, iterable sequence of directory entries backed
// by a File, grounded on original_source/ps2mc.py's ps2mc_directory.
type Directory struct {
	file *File
}

// NewDirectory wraps f (whose length must already be a multiple of
// dirent.Size) as a Directory.
func NewDirectory(f *File) *Directory {
	return &Directory{file: f}
}

// File returns the underlying File, e.g. to Close it.
func (d *Directory) File() *File {
	return d.file
}

// Len returns the number of entry slots (used or not) in the directory.
func (d *Directory) Len() uint32 {
	return d.file.Length() / ps2dirent.Size
}

// At reads the entry at the given index.
func (d *Directory) At(index uint32) (*ps2dirent.Dirent, error) {
	if _, err := d.file.Seek(int64(index)*ps2dirent.Size, io.SeekStart); err != nil {
		return nil, err
	}

	buf := make([]byte, ps2dirent.Size)
	if _, err := io.ReadFull(d.file, buf); err != nil {
		return nil, fmt.Errorf("object: directory index %d not found: %w", index, err)
	}
	return ps2dirent.Decode(buf)
}

// WriteAt writes ent at the given index, extending the directory's backing
// file if index is past its current end. Equivalent to
// WriteAtCascade(index, ent, true).
func (d *Directory) WriteAt(index uint32, ent *ps2dirent.Dirent) error {
	return d.WriteAtCascade(index, ent, true)
}

// WriteAtCascade is WriteAt with explicit control over whether this write
// itself requests a modified-time bump one level further up the tree,
// mirroring original_source/ps2mc.py's write_raw_ent's set_modified
// parameter. UpdateDirent uses this to cascade a file's modified time to its
// containing directory while stopping a directory's own modified time from
// ever reaching its parent.
func (d *Directory) WriteAtCascade(index uint32, ent *ps2dirent.Dirent, setModified bool) error {
	buf, err := ent.Encode()
	if err != nil {
		return err
	}

	if _, err := d.file.Seek(int64(index)*ps2dirent.Size, io.SeekStart); err != nil {
		return err
	}
	_, err = d.file.write(buf, setModified)
	return err
}

// All reads every entry in the directory in slot order.
func (d *Directory) All() ([]*ps2dirent.Dirent, error) {
	n := d.Len()
	entries := make([]*ps2dirent.Dirent, 0, n)
	for i := uint32(0); i < n; i++ {
		ent, err := d.At(i)
		if err != nil {
			return nil, err
		}
		entries = append(entries, ent)
	}
	return entries, nil
}

// Close closes the underlying file.
func (d *Directory) Close() error {
	return d.file.Close()
}
