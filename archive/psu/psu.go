// Package psu reads and writes PS2 "EMS" (.psu) save archives: a save
// directory's dirent, synthesized "." and ".." dirents, and one
// dirent-plus-data pair per file, each padded to a 1024-byte cluster
// boundary. Grounded on original_source/ps2save.py's load_ems/save_ems.
package psu

import (
	"bytes"
	"io"

	"github.com/dargueta/ps2mc/archive"
	ps2dirent "github.com/dargueta/ps2mc/dirent"
	ps2errors "github.com/dargueta/ps2mc/errors"
	"github.com/dargueta/ps2mc/internal/roundbits"
)

const clusterSize = 1024

// Load parses a PSU stream into a SaveFile. It mirrors load_ems: the first
// three dirents are the save directory plus synthesized "." and ".."
// entries, the stored directory length counts files+2 (the returned
// SaveFile's Dirent.Length holds the file count alone), and every
// subsequent file must be a plain file, not a subdirectory.
func Load(r io.Reader) (*archive.SaveFile, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(raw) < ps2dirent.Size*3 {
		return nil, ps2errors.ErrMalformedArchive.WithMessage("psu stream too short for directory header")
	}

	dirEnt, err := ps2dirent.Decode(raw[:ps2dirent.Size])
	if err != nil {
		return nil, ps2errors.ErrMalformedArchive.WrapError(err)
	}
	dotEnt, err := ps2dirent.Decode(raw[ps2dirent.Size : ps2dirent.Size*2])
	if err != nil {
		return nil, ps2errors.ErrMalformedArchive.WrapError(err)
	}
	dotdotEnt, err := ps2dirent.Decode(raw[ps2dirent.Size*2 : ps2dirent.Size*3])
	if err != nil {
		return nil, ps2errors.ErrMalformedArchive.WrapError(err)
	}

	if !ps2dirent.IsDir(dirEnt.Mode) || !ps2dirent.IsDir(dotEnt.Mode) || !ps2dirent.IsDir(dotdotEnt.Mode) {
		return nil, ps2errors.ErrMalformedArchive.WithMessage("psu leading entries are not all directories")
	}
	if dirEnt.Length < 2 {
		return nil, ps2errors.ErrMalformedArchive.WithMessage("psu directory length field is too small")
	}
	numFiles := int(dirEnt.Length - 2)

	offset := ps2dirent.Size * 3
	files := make([]archive.File, 0, numFiles)
	for i := 0; i < numFiles; i++ {
		if offset+ps2dirent.Size > len(raw) {
			return nil, ps2errors.ErrMalformedArchive.WithMessage("psu stream truncated mid-file-header")
		}
		fileEnt, err := ps2dirent.Decode(raw[offset : offset+ps2dirent.Size])
		if err != nil {
			return nil, ps2errors.ErrMalformedArchive.WrapError(err)
		}
		offset += ps2dirent.Size

		if !ps2dirent.IsFile(fileEnt.Mode) {
			return nil, ps2errors.ErrMalformedArchive.WithMessage("psu entry is a subdirectory, not a file")
		}

		length := int(fileEnt.Length)
		if offset+length > len(raw) {
			return nil, ps2errors.ErrMalformedArchive.WithMessage("psu stream truncated mid-file-data")
		}
		data := make([]byte, length)
		copy(data, raw[offset:offset+length])
		offset += int(roundbits.RoundUp(uint(length), clusterSize))

		files = append(files, archive.File{Dirent: fileEnt, Data: data})
	}
	dirEnt.Length = uint32(numFiles)

	return &archive.SaveFile{Dirent: dirEnt, Files: files}, nil
}

// Save writes sf out in PSU form, synthesizing "." and ".." dirents from
// the save directory's own timestamps the way save_ems does.
func Save(w io.Writer, sf *archive.SaveFile) error {
	if err := archive.ValidateFiles(sf.Files); err != nil {
		return err
	}

	dirEnt := *sf.Dirent
	dirEnt.Length = uint32(len(sf.Files) + 2)
	dirEnt.Mode |= ps2dirent.ModeDir | ps2dirent.ModeExists

	dotEnt := ps2dirent.Dirent{
		Mode:     ps2dirent.ModeRWX | ps2dirent.ModeDir | ps2dirent.ModeProtected | ps2dirent.ModeExists,
		Created:  dirEnt.Created,
		Modified: dirEnt.Modified,
		Name:     ".",
	}
	dotdotEnt := dotEnt
	dotdotEnt.Name = ".."

	var buf bytes.Buffer
	if err := encodeDirent(&buf, &dirEnt); err != nil {
		return err
	}
	if err := encodeDirent(&buf, &dotEnt); err != nil {
		return err
	}
	if err := encodeDirent(&buf, &dotdotEnt); err != nil {
		return err
	}

	for _, f := range sf.Files {
		fileEnt := *f.Dirent
		fileEnt.Length = uint32(len(f.Data))
		if err := encodeDirent(&buf, &fileEnt); err != nil {
			return err
		}
		buf.Write(f.Data)
		padded := int(roundbits.RoundUp(uint(len(f.Data)), clusterSize))
		buf.Write(make([]byte, padded-len(f.Data)))
	}

	_, err := w.Write(buf.Bytes())
	return err
}

func encodeDirent(buf *bytes.Buffer, ent *ps2dirent.Dirent) error {
	raw, err := ent.Encode()
	if err != nil {
		return err
	}
	buf.Write(raw)
	return nil
}
