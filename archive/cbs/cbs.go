// Package cbs reads and writes Codebreaker (.cbs) save archives: a
// variable-length header followed by an RC4-then-zlib-compressed body of
// 64-byte-header-plus-data file records. Grounded on
// original_source/ps2save.py's load_codebreaker (there is no
// save_codebreaker in the original; Save here follows the same wire layout
// in reverse).
package cbs

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"

	"github.com/dargueta/ps2mc/archive"
	ps2dirent "github.com/dargueta/ps2mc/dirent"
	ps2errors "github.com/dargueta/ps2mc/errors"
)

const (
	magic = "CFU\x00"

	// fixedHeaderSize is the portion of the header after magic/d04/hlen and
	// before the variable-length title: dlen, flen, dirname, created,
	// modified, d44, d48, dirmode, d50, d54, d58.
	fixedHeaderSize = 80
	minHeaderLen    = 92 + 32

	fileHeaderSize = 64
)

// rc4S is the fixed RC4 permutation this format encrypts/decrypts with
// directly, rather than deriving the permutation from a key via the usual
// key-scheduling algorithm. crypto/rc4's public Cipher type always performs
// that key schedule internally and has no way to accept a precomputed
// permutation, so this package runs the same textbook RC4 keystream loop
// crypto/rc4 uses, seeded from a copy of this literal table instead of a
// key (see rc4Crypt below).
var rc4S = [256]byte{
	0x5f, 0x1f, 0x85, 0x6f, 0x31, 0xaa, 0x3b, 0x18,
	0x21, 0xb9, 0xce, 0x1c, 0x07, 0x4c, 0x9c, 0xb4,
	0x81, 0xb8, 0xef, 0x98, 0x59, 0xae, 0xf9, 0x26,
	0xe3, 0x80, 0xa3, 0x29, 0x2d, 0x73, 0x51, 0x62,
	0x7c, 0x64, 0x46, 0xf4, 0x34, 0x1a, 0xf6, 0xe1,
	0xba, 0x3a, 0x0d, 0x82, 0x79, 0x0a, 0x5c, 0x16,
	0x71, 0x49, 0x8e, 0xac, 0x8c, 0x9f, 0x35, 0x19,
	0x45, 0x94, 0x3f, 0x56, 0x0c, 0x91, 0x00, 0x0b,
	0xd7, 0xb0, 0xdd, 0x39, 0x66, 0xa1, 0x76, 0x52,
	0x13, 0x57, 0xf3, 0xbb, 0x4e, 0xe5, 0xdc, 0xf0,
	0x65, 0x84, 0xb2, 0xd6, 0xdf, 0x15, 0x3c, 0x63,
	0x1d, 0x89, 0x14, 0xbd, 0xd2, 0x36, 0xfe, 0xb1,
	0xca, 0x8b, 0xa4, 0xc6, 0x9e, 0x67, 0x47, 0x37,
	0x42, 0x6d, 0x6a, 0x03, 0x92, 0x70, 0x05, 0x7d,
	0x96, 0x2f, 0x40, 0x90, 0xc4, 0xf1, 0x3e, 0x3d,
	0x01, 0xf7, 0x68, 0x1e, 0xc3, 0xfc, 0x72, 0xb5,
	0x54, 0xcf, 0xe7, 0x41, 0xe4, 0x4d, 0x83, 0x55,
	0x12, 0x22, 0x09, 0x78, 0xfa, 0xde, 0xa7, 0x06,
	0x08, 0x23, 0xbf, 0x0f, 0xcc, 0xc1, 0x97, 0x61,
	0xc5, 0x4a, 0xe6, 0xa0, 0x11, 0xc2, 0xea, 0x74,
	0x02, 0x87, 0xd5, 0xd1, 0x9d, 0xb7, 0x7e, 0x38,
	0x60, 0x53, 0x95, 0x8d, 0x25, 0x77, 0x10, 0x5e,
	0x9b, 0x7f, 0xd8, 0x6e, 0xda, 0xa2, 0x2e, 0x20,
	0x4f, 0xcd, 0x8f, 0xcb, 0xbe, 0x5a, 0xe0, 0xed,
	0x2c, 0x9a, 0xd4, 0xe2, 0xaf, 0xd0, 0xa9, 0xe8,
	0xad, 0x7a, 0xbc, 0xa8, 0xf2, 0xee, 0xeb, 0xf5,
	0xa6, 0x99, 0x28, 0x24, 0x6c, 0x2b, 0x75, 0x5d,
	0xf8, 0xd3, 0x86, 0x17, 0xfb, 0xc0, 0x7b, 0xb3,
	0x58, 0xdb, 0xc7, 0x4b, 0xff, 0x04, 0x50, 0xe9,
	0x88, 0x69, 0xc9, 0x2a, 0xab, 0xfd, 0x5b, 0x1b,
	0x8a, 0xd9, 0xec, 0x27, 0x44, 0x0e, 0x33, 0xc8,
	0x6b, 0x93, 0x32, 0x48, 0xb6, 0x30, 0x43, 0xa5,
}

// rc4Crypt runs t through the RC4 keystream seeded directly from the
// permutation s, mutating neither. RC4 is symmetric, so the same call
// encrypts and decrypts.
func rc4Crypt(s [256]byte, t []byte) []byte {
	out := make([]byte, len(t))
	j := 0
	for ii := range t {
		i := (ii + 1) % 256
		j = (j + int(s[i])) % 256
		s[i], s[j] = s[j], s[i]
		out[ii] = t[ii] ^ s[(int(s[i])+int(s[j]))%256]
	}
	return out
}

// Load parses a Codebreaker stream into a SaveFile.
func Load(r io.Reader) (*archive.SaveFile, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(raw) < 4 || string(raw[:4]) != magic {
		return nil, ps2errors.ErrMalformedArchive.WithMessage("codebreaker magic mismatch")
	}
	if len(raw) < 12 {
		return nil, ps2errors.ErrMalformedArchive.WithMessage("codebreaker stream too short for header")
	}
	hlen := int(binary.LittleEndian.Uint32(raw[8:12]))
	if hlen < minHeaderLen {
		return nil, ps2errors.ErrMalformedArchive.WithMessage("codebreaker header length too short")
	}
	if len(raw) < hlen {
		return nil, ps2errors.ErrMalformedArchive.WithMessage("codebreaker stream truncated mid-header")
	}

	h := raw[12:hlen]
	dlen := binary.LittleEndian.Uint32(h[0:4])
	flen := binary.LittleEndian.Uint32(h[4:8])
	dirname := archive.ZeroTerminate(h[8:40])
	created, err := ps2dirent.DecodeToD(h[40:48])
	if err != nil {
		return nil, ps2errors.ErrMalformedArchive.WrapError(err)
	}
	modified, err := ps2dirent.DecodeToD(h[48:56])
	if err != nil {
		return nil, ps2errors.ErrMalformedArchive.WrapError(err)
	}
	dirmode := uint16(binary.LittleEndian.Uint32(h[64:68]))

	if !ps2dirent.IsDir(dirmode) {
		dirmode = ps2dirent.ModeRWX | ps2dirent.ModeDir | ps2dirent.ModeProtected
	}
	dirEnt := &ps2dirent.Dirent{Mode: dirmode, Created: created, Modified: modified, Name: dirname}
	archive.DefaultToD(dirEnt)

	if uint32(len(raw)-hlen) < flen {
		return nil, ps2errors.ErrMalformedArchive.WithMessage("codebreaker stream truncated mid-body")
	}
	body := raw[hlen : hlen+int(flen)]

	decrypted := rc4Crypt(rc4S, body)
	zr, err := zlib.NewReader(bytes.NewReader(decrypted))
	if err != nil {
		return nil, ps2errors.ErrMalformedArchive.WrapError(err)
	}
	defer zr.Close()
	decompressed := make([]byte, dlen)
	if _, err := io.ReadFull(zr, decompressed); err != nil {
		return nil, ps2errors.ErrMalformedArchive.WrapError(err)
	}

	files, err := parseFileRecords(decompressed)
	if err != nil {
		return nil, err
	}
	dirEnt.Length = uint32(len(files))

	return &archive.SaveFile{Dirent: dirEnt, Files: files}, nil
}

func parseFileRecords(body []byte) ([]archive.File, error) {
	var files []archive.File
	for len(body) > 0 {
		if len(body) < fileHeaderSize {
			return nil, ps2errors.ErrMalformedArchive.WithMessage("codebreaker body truncated mid-file-header")
		}
		created, err := ps2dirent.DecodeToD(body[0:8])
		if err != nil {
			return nil, ps2errors.ErrMalformedArchive.WrapError(err)
		}
		modified, err := ps2dirent.DecodeToD(body[8:16])
		if err != nil {
			return nil, ps2errors.ErrMalformedArchive.WrapError(err)
		}
		size := binary.LittleEndian.Uint32(body[16:20])
		mode := binary.LittleEndian.Uint16(body[20:22])
		name := archive.ZeroTerminate(body[32:64])
		body = body[fileHeaderSize:]

		if uint32(len(body)) < size {
			return nil, ps2errors.ErrMalformedArchive.WithMessage("codebreaker body truncated mid-file-data")
		}
		data := make([]byte, size)
		copy(data, body[:size])
		body = body[size:]

		if !ps2dirent.IsFile(mode) {
			return nil, ps2errors.ErrMalformedArchive.WithMessage("codebreaker entry is a subdirectory, not a file")
		}
		ent := &ps2dirent.Dirent{Mode: mode, Length: size, Created: created, Modified: modified, Name: name}
		archive.DefaultToD(ent)
		files = append(files, archive.File{Dirent: ent, Data: data})
	}
	return files, nil
}

// Save writes sf out in Codebreaker form. title is left blank: the
// original derives it from icon.sys's Shift-JIS title, which this port
// doesn't decode (see max.Save's doc comment for why).
func Save(w io.Writer, sf *archive.SaveFile) error {
	if err := archive.ValidateFiles(sf.Files); err != nil {
		return err
	}

	var body bytes.Buffer
	for _, f := range sf.Files {
		body.Write(ps2dirent.EncodeToD(f.Dirent.Created))
		body.Write(ps2dirent.EncodeToD(f.Dirent.Modified))
		var sizeBuf [4]byte
		binary.LittleEndian.PutUint32(sizeBuf[:], uint32(len(f.Data)))
		body.Write(sizeBuf[:])
		var modeBuf [2]byte
		binary.LittleEndian.PutUint16(modeBuf[:], f.Dirent.Mode)
		body.Write(modeBuf[:])
		body.Write(make([]byte, 10)) // h06, h08, h0C reserved fields
		var nameBuf [32]byte
		copy(nameBuf[:], f.Dirent.Name)
		body.Write(nameBuf[:])
		body.Write(f.Data)
	}
	dlen := body.Len()

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write(body.Bytes()); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}

	encrypted := rc4Crypt(rc4S, compressed.Bytes())

	hlen := minHeaderLen

	var header bytes.Buffer
	header.WriteString(magic)
	var d04Buf [4]byte
	header.Write(d04Buf[:])
	var hlenBuf [4]byte
	binary.LittleEndian.PutUint32(hlenBuf[:], uint32(hlen))
	header.Write(hlenBuf[:])

	var dlenBuf, flenBuf [4]byte
	binary.LittleEndian.PutUint32(dlenBuf[:], uint32(dlen))
	binary.LittleEndian.PutUint32(flenBuf[:], uint32(len(encrypted)))
	header.Write(dlenBuf[:])
	header.Write(flenBuf[:])

	var dirnameBuf [32]byte
	copy(dirnameBuf[:], sf.Dirent.Name)
	header.Write(dirnameBuf[:])
	header.Write(ps2dirent.EncodeToD(sf.Dirent.Created))
	header.Write(ps2dirent.EncodeToD(sf.Dirent.Modified))
	header.Write(make([]byte, 8)) // d44, d48 reserved fields
	var dirmodeBuf [4]byte
	binary.LittleEndian.PutUint32(dirmodeBuf[:], uint32(sf.Dirent.Mode))
	header.Write(dirmodeBuf[:])
	header.Write(make([]byte, 12)) // d50, d54, d58 reserved fields
	titleBuf := make([]byte, hlen-fixedHeaderSize-12) // title left blank, see doc comment
	header.Write(titleBuf)

	if _, err := w.Write(header.Bytes()); err != nil {
		return err
	}
	_, err := w.Write(encrypted)
	return err
}
