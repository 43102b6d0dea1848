// Package dirent decodes and encodes the 512-byte directory entry format PS2
// memory cards use for both files and directories, grounded on
// original_source/ps2mc_dir.py's _dirent_fmt/_tod_fmt struct layouts.
package dirent

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/noxer/bytewriter"
)

// Size is the fixed on-disk size of one directory entry.
const Size = 512

// Mode bit flags, named after original_source/ps2mc_dir.py's DF_* constants.
const (
	ModeRead       = 0x0001
	ModeWrite      = 0x0002
	ModeExecute    = 0x0004
	ModeRWX        = ModeRead | ModeWrite | ModeExecute
	ModeProtected  = 0x0008
	ModeFile       = 0x0010
	ModeDir        = 0x0020
	ModeDirCreated = 0x0040
	modeUnknown080 = 0x0080
	modeUnknown100 = 0x0100
	ModeCreated    = 0x0200
	modeUnknown400 = 0x0400
	ModePocketstn  = 0x0800
	ModePSX        = 0x1000
	ModeHidden     = 0x2000
	modeUnknown4000 = 0x4000
	ModeExists     = 0x8000
)

// ToD is the 8-byte "time of day" timestamp embedded in dirents, stored as
// JST (the card's own local time, nine hours ahead of UTC) rather than UTC.
type ToD struct {
	Second byte
	Minute byte
	Hour   byte
	Day    byte
	Month  byte
	Year   uint16
}

// FromTime converts a time.Time into a ToD, following
// original_source/ps2mc_dir.py's time_to_tod: the stored fields are the JST
// wall-clock reading, i.e. UTC plus nine hours.
func FromTime(t time.Time) ToD {
	jst := t.UTC().Add(9 * time.Hour)
	return ToD{
		Second: byte(jst.Second()),
		Minute: byte(jst.Minute()),
		Hour:   byte(jst.Hour()),
		Day:    byte(jst.Day()),
		Month:  byte(jst.Month()),
		Year:   uint16(jst.Year()),
	}
}

// Time converts a ToD back to a UTC time.Time, following
// original_source/ps2mc_dir.py's tod_to_time. A zero month is treated as
// January, matching the original's defensive clamp.
func (t ToD) Time() time.Time {
	month := t.Month
	if month == 0 {
		month = 1
	}
	jst := time.Date(
		int(t.Year), time.Month(month), int(t.Day),
		int(t.Hour), int(t.Minute), int(t.Second), 0, time.UTC,
	)
	return jst.Add(-9 * time.Hour)
}

// Now returns the current time as a ToD.
func Now() ToD {
	return FromTime(time.Now())
}

// DecodeToD parses a raw 8-byte ToD field, the same layout embedded in a
// dirent's Created/Modified, for formats that store timestamps outside of
// a full dirent (Codebreaker and SharkPort archive headers).
func DecodeToD(buf []byte) (ToD, error) {
	if len(buf) != 8 {
		return ToD{}, fmt.Errorf("dirent: expected 8 bytes for ToD, got %d", len(buf))
	}
	var raw rawTod
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &raw); err != nil {
		return ToD{}, fmt.Errorf("dirent: %w", err)
	}
	return ToD{raw.Second, raw.Minute, raw.Hour, raw.Day, raw.Month, raw.Year}, nil
}

// EncodeToD serializes a ToD into its raw 8-byte field layout.
func EncodeToD(t ToD) []byte {
	raw := rawTod{Second: t.Second, Minute: t.Minute, Hour: t.Hour, Day: t.Day, Month: t.Month, Year: t.Year}
	buf := make([]byte, 8)
	writer := bytewriter.New(buf)
	binary.Write(writer, binary.LittleEndian, &raw)
	return buf
}

// Dirloc addresses one directory entry by its parent directory's first FAT
// cluster and the entry's index within that directory, mirroring how the
// filesystem engine locates entries without needing a full path.
type Dirloc struct {
	ParentCluster uint32
	EntryIndex    uint32
}

// Dirent is the decoded form of one 512-byte directory entry.
type Dirent struct {
	Mode        uint16
	Length      uint32
	Created     ToD
	FATCluster  uint32
	ParentEntry uint32
	Modified    ToD
	Attr        uint32
	Name        string
}

// IsFile reports whether mode describes an existing regular file.
func IsFile(mode uint16) bool {
	return mode&(ModeFile|ModeDir|ModeExists) == (ModeFile | ModeExists)
}

// IsDir reports whether mode describes an existing directory.
func IsDir(mode uint16) bool {
	return mode&(ModeFile|ModeDir|ModeExists) == (ModeDir | ModeExists)
}

// IsExists reports whether mode's ModeExists bit is set at all, i.e. whether
// the entry is live rather than deleted/never-used.
func IsExists(mode uint16) bool {
	return mode&ModeExists != 0
}

type rawTod struct {
	_      byte
	Second byte
	Minute byte
	Hour   byte
	Day    byte
	Month  byte
	Year   uint16
}

type rawDirent struct {
	Mode        uint16
	_           uint16
	Length      uint32
	Created     rawTod
	FATCluster  uint32
	ParentEntry uint32
	Modified    rawTod
	Attr        uint32
	_           [28]byte
	Name        [448]byte
}

// Decode parses a Size-byte buffer into a Dirent.
func Decode(buf []byte) (*Dirent, error) {
	if len(buf) != Size {
		return nil, fmt.Errorf("dirent: expected %d bytes, got %d", Size, len(buf))
	}

	var raw rawDirent
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &raw); err != nil {
		return nil, fmt.Errorf("dirent: %w", err)
	}

	nameEnd := bytes.IndexByte(raw.Name[:], 0)
	if nameEnd == -1 {
		nameEnd = len(raw.Name)
	}

	return &Dirent{
		Mode:        raw.Mode,
		Length:      raw.Length,
		Created:     ToD{raw.Created.Second, raw.Created.Minute, raw.Created.Hour, raw.Created.Day, raw.Created.Month, raw.Created.Year},
		FATCluster:  raw.FATCluster,
		ParentEntry: raw.ParentEntry,
		Modified:    ToD{raw.Modified.Second, raw.Modified.Minute, raw.Modified.Hour, raw.Modified.Day, raw.Modified.Month, raw.Modified.Year},
		Attr:        raw.Attr,
		Name:        string(raw.Name[:nameEnd]),
	}, nil
}

// Encode serializes d into a freshly allocated Size-byte buffer. It returns
// an error if d.Name is too long to fit in the 448-byte name field
// (including its terminating NUL).
func (d *Dirent) Encode() ([]byte, error) {
	if len(d.Name) >= 448 {
		return nil, fmt.Errorf("dirent: name %q is too long (max 447 bytes)", d.Name)
	}

	var raw rawDirent
	raw.Mode = d.Mode
	raw.Length = d.Length
	raw.Created = rawTod{Second: d.Created.Second, Minute: d.Created.Minute, Hour: d.Created.Hour, Day: d.Created.Day, Month: d.Created.Month, Year: d.Created.Year}
	raw.FATCluster = d.FATCluster
	raw.ParentEntry = d.ParentEntry
	raw.Modified = rawTod{Second: d.Modified.Second, Minute: d.Modified.Minute, Hour: d.Modified.Hour, Day: d.Modified.Day, Month: d.Modified.Month, Year: d.Modified.Year}
	raw.Attr = d.Attr
	copy(raw.Name[:], d.Name)

	buf := make([]byte, Size)
	writer := bytewriter.New(buf)
	if err := binary.Write(writer, binary.LittleEndian, &raw); err != nil {
		return nil, fmt.Errorf("dirent: %w", err)
	}
	return buf, nil
}
