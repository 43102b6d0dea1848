// Package max reads and writes MAX Drive (.max) save archives: a 92-byte
// header followed by an LZARI-compressed body, itself a sequence of
// 4-byte-length-plus-32-byte-name file records, each zero-padded so that
// the next record starts at an offset whose value plus 8 is a multiple of
// 16. Grounded on original_source/ps2save.py's load_max_drive/
// save_max_drive.
package max

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/dargueta/ps2mc/archive"
	ps2dirent "github.com/dargueta/ps2mc/dirent"
	ps2errors "github.com/dargueta/ps2mc/errors"
	"github.com/dargueta/ps2mc/internal/roundbits"
	"github.com/dargueta/ps2mc/lzari"
)

const (
	magic      = "Ps2PowerSave"
	headerSize = 0x5C

	fileRecordHeaderSize = 4 + 32
)

// Load parses a MAX Drive stream into a SaveFile.
//
// clen normally equals len(compressed)+4, but some real-world saves store
// the uncompressed length in clen instead; load_max_drive handles both by
// falling back to "read everything left in the stream" when clen==length.
func Load(r io.Reader) (*archive.SaveFile, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(raw) < headerSize {
		return nil, ps2errors.ErrMalformedArchive.WithMessage("max drive stream too short for header")
	}
	if string(raw[:12]) != magic {
		return nil, ps2errors.ErrMalformedArchive.WithMessage("max drive magic mismatch")
	}

	_ = binary.LittleEndian.Uint32(raw[12:16]) // crc, not validated on load
	dirname := archive.ZeroTerminate(raw[16:48])
	clen := binary.LittleEndian.Uint32(raw[80:84])
	dirlen := binary.LittleEndian.Uint32(raw[84:88])
	length := binary.LittleEndian.Uint32(raw[88:92])

	var compressed []byte
	if clen == length {
		compressed = raw[headerSize:]
	} else {
		if clen < 4 {
			return nil, ps2errors.ErrMalformedArchive.WithMessage("max drive clen field is too small")
		}
		bodyLen := int(clen - 4)
		if headerSize+bodyLen > len(raw) {
			return nil, ps2errors.ErrMalformedArchive.WithMessage("max drive stream truncated mid-body")
		}
		compressed = raw[headerSize : headerSize+bodyLen]
	}

	body, err := lzari.Decode(compressed, int(length))
	if err != nil {
		return nil, ps2errors.ErrLzariCorrupt.WrapError(err)
	}

	now := ps2dirent.Now()
	dirEnt := &ps2dirent.Dirent{
		Mode:     ps2dirent.ModeRWX | ps2dirent.ModeDir | ps2dirent.ModeProtected | ps2dirent.ModeExists,
		Length:   dirlen,
		Created:  now,
		Modified: now,
		Name:     dirname,
	}

	files, err := parseFileRecords(body, now)
	if err != nil {
		return nil, err
	}
	if uint32(len(files)) != dirlen {
		return nil, ps2errors.ErrMalformedArchive.WithMessage("max drive file count mismatch")
	}

	return &archive.SaveFile{Dirent: dirEnt, Files: files}, nil
}

func parseFileRecords(body []byte, stamp ps2dirent.ToD) ([]archive.File, error) {
	var files []archive.File
	offset := 0
	for offset < len(body) {
		if offset+fileRecordHeaderSize > len(body) {
			return nil, ps2errors.ErrMalformedArchive.WithMessage("max drive body truncated mid-file-header")
		}
		length := int(binary.LittleEndian.Uint32(body[offset : offset+4]))
		name := archive.ZeroTerminate(body[offset+4 : offset+36])
		offset += fileRecordHeaderSize

		if offset+length > len(body) {
			return nil, ps2errors.ErrMalformedArchive.WithMessage("max drive body truncated mid-file-data")
		}
		data := make([]byte, length)
		copy(data, body[offset:offset+length])
		offset += length

		padded := int(roundbits.RoundUp(uint(offset)+8, 16)) - 8
		offset = padded

		files = append(files, archive.File{
			Dirent: &ps2dirent.Dirent{
				Mode:     ps2dirent.ModeRWX | ps2dirent.ModeFile | ps2dirent.ModeProtected | ps2dirent.ModeExists,
				Length:   uint32(length),
				Created:  stamp,
				Modified: stamp,
				Name:     name,
			},
			Data: data,
		})
	}
	return files, nil
}

// Save writes sf out in MAX Drive form. iconsysname is left blank: the
// original derives it from icon.sys's Shift-JIS title via a character
// substitution table (sjistab) that isn't available to this port, and
// icon.sys title/geometry decoding is out of scope here regardless.
func Save(w io.Writer, sf *archive.SaveFile) error {
	if err := archive.ValidateFiles(sf.Files); err != nil {
		return err
	}

	var body bytes.Buffer
	for _, f := range sf.Files {
		var nameBuf [32]byte
		copy(nameBuf[:], f.Dirent.Name)

		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(f.Data)))

		body.Write(lenBuf[:])
		body.Write(nameBuf[:])
		body.Write(f.Data)

		padded := int(roundbits.RoundUp(uint(body.Len())+8, 16)) - 8
		body.Write(make([]byte, padded-body.Len()))
	}

	length := body.Len()
	compressed := lzari.Encode(body.Bytes())

	var header [headerSize]byte
	copy(header[:12], magic)
	var dirnameBuf [32]byte
	copy(dirnameBuf[:], sf.Dirent.Name)
	copy(header[16:48], dirnameBuf[:])
	// header[48:80] is the icon.sys filename field, left zeroed.
	binary.LittleEndian.PutUint32(header[80:84], uint32(len(compressed)+4))
	binary.LittleEndian.PutUint32(header[84:88], uint32(len(sf.Files)))
	binary.LittleEndian.PutUint32(header[88:92], uint32(length))

	crc := crc32.ChecksumIEEE(append(append([]byte{}, header[:]...), compressed...))
	binary.LittleEndian.PutUint32(header[12:16], crc)

	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(compressed)
	return err
}
