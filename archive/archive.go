// Package archive defines the in-memory save-archive model shared by
// archive/psu, archive/max, archive/cbs and archive/sps, grounded on
// original_source/ps2save.py's ps2_save_file class: a single directory
// entry describing the save as a whole, plus an ordered list of the files
// it contains.
package archive

import (
	"bytes"

	ps2dirent "github.com/dargueta/ps2mc/dirent"
	ps2errors "github.com/dargueta/ps2mc/errors"
)

// File pairs one archived file's directory metadata with its raw content.
type File struct {
	Dirent *ps2dirent.Dirent
	Data   []byte
}

// SaveFile is a complete save archive read into memory: the save directory's
// own dirent (name, mode, timestamps, file count) and every file beneath
// it. Every format reader in this module tree produces one of these, and
// every writer consumes one, so converting between formats is just a
// Load/Save pair.
type SaveFile struct {
	Dirent *ps2dirent.Dirent
	Files  []File
}

// IconSys returns the raw bytes of the save's icon.sys file, or nil if it
// doesn't carry one at least 964 bytes long, mirroring ps2_save_file.get_icon_sys minus the icon
// geometry parsing that stays out of scope (no icon.sys structure decoding,
// just the opaque blob, matching Engine.IconSys in the root package).
func (sf *SaveFile) IconSys() []byte {
	for _, f := range sf.Files {
		if f.Dirent.Name == "icon.sys" && len(f.Data) >= 964 {
			return f.Data
		}
	}
	return nil
}

// DefaultToD fills in ent's Created/Modified fields with the current time
// when they decode to a time at or before the Unix epoch (as an all-zero
// ToD does), the same leniency
// load_codebreaker/load_sharkport apply to headers carrying garbage
// timestamps.
func DefaultToD(ent *ps2dirent.Dirent) {
	now := ps2dirent.Now()
	if ent.Created.Time().Unix() <= 0 {
		ent.Created = now
	}
	if ent.Modified.Time().Unix() <= 0 {
		ent.Modified = now
	}
}

// ValidateFiles reports ErrMalformedArchive if any entry isn't a plain
// file: save archives are flat, they cannot carry subdirectories.
func ValidateFiles(files []File) error {
	for _, f := range files {
		if !ps2dirent.IsFile(f.Dirent.Mode) {
			return ps2errors.ErrMalformedArchive.WithMessage("non-file entry in save archive")
		}
	}
	return nil
}

// ZeroTerminate trims b at its first NUL byte, or returns all of it as a
// string if there isn't one, mirroring ps2mc_dir.py's zero_terminate.
func ZeroTerminate(b []byte) string {
	idx := bytes.IndexByte(b, 0)
	if idx == -1 {
		idx = len(b)
	}
	return string(b[:idx])
}

// Type identifies the on-disk save-archive format a byte sequence is in.
type Type string

const (
	TypePSU     Type = "psu"
	TypeMAX     Type = "max"
	TypeCBS     Type = "cbs"
	TypeSPS     Type = "sps"
	TypeUnknown Type = ""
)

var (
	maxMagic = []byte("Ps2PowerSave")
	spsMagic = []byte("\x0d\x00\x00\x00SharkPortSave")
	cbsMagic = []byte("CFU\x00")
)

// DetectType sniffs the archive format from its leading bytes, mirroring
// original_source/ps2save.py's detect_file_type. header should hold at
// least 3*dirent.Size bytes to recognize a PSU file; anything shorter or
// unrecognized yields TypeUnknown rather than an error.
func DetectType(header []byte) Type {
	switch {
	case bytes.HasPrefix(header, maxMagic):
		return TypeMAX
	case bytes.HasPrefix(header, spsMagic):
		return TypeSPS
	case bytes.HasPrefix(header, cbsMagic):
		return TypeCBS
	}

	if len(header) < ps2dirent.Size*3 {
		return TypeUnknown
	}
	dirEnt, err1 := ps2dirent.Decode(header[:ps2dirent.Size])
	dotEnt, err2 := ps2dirent.Decode(header[ps2dirent.Size : ps2dirent.Size*2])
	dotdotEnt, err3 := ps2dirent.Decode(header[ps2dirent.Size*2 : ps2dirent.Size*3])
	if err1 != nil || err2 != nil || err3 != nil {
		return TypeUnknown
	}
	if ps2dirent.IsDir(dirEnt.Mode) && ps2dirent.IsDir(dotEnt.Mode) && ps2dirent.IsDir(dotdotEnt.Mode) &&
		dirEnt.Length >= 2 && dotEnt.Name == "." && dotdotEnt.Name == ".." {
		return TypePSU
	}
	return TypeUnknown
}
