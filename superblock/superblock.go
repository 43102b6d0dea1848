// Package superblock reads and writes the 340-byte superblock that opens
// every PS2 memory card image, grounded on the struct layout in
// original_source/ps2mc.py's unpack_superblock/pack_superblock
// ("<28s12sHHHHLLLLLL8x128s128sbbxx").
package superblock

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/noxer/bytewriter"

	ps2errors "github.com/dargueta/ps2mc/errors"
)

// Size is the fixed on-disk size of a superblock, in bytes.
const Size = 340

// Magic is the expected first 28 bytes of a valid superblock.
var Magic = [28]byte{'S', 'o', 'n', 'y', ' ', 'P', 'S', '2', ' ', 'M', 'e', 'm', 'o', 'r', 'y', ' ', 'C', 'a', 'r', 'd', ' ', 'F', 'o', 'r', 'm', 'a', 't', 0}

// maxIndirectFATClusters is the fixed size of the indirect FAT cluster and
// bad-erase-block-list arrays (128 bytes / 4 bytes per entry).
const maxIndirectFATClusters = 32

// Superblock is the decoded form of a memory card's superblock.
type Superblock struct {
	Magic                   [28]byte
	Version                 [12]byte
	PageSize                uint16
	PagesPerCluster         uint16
	PagesPerEraseBlock      uint16
	Unused                  uint16
	ClustersPerCard         uint32
	AllocatableClusterStart uint32
	AllocatableClusterEnd   uint32
	RootdirFATCluster       uint32
	BackupBlock1            uint32
	BackupBlock2            uint32
	IndirectFATClusters     [maxIndirectFATClusters]uint32
	BadEraseBlocks          [maxIndirectFATClusters]uint32
	CardFlags               int8
	CardType                int8
}

// ClusterSize returns the size in bytes of one cluster, derived from the
// page size and pages-per-cluster fields.
func (s *Superblock) ClusterSize() uint {
	return uint(s.PageSize) * uint(s.PagesPerCluster)
}

// BadBlocks returns the erase block numbers the card reports as bad,
// skipping the 0xFFFFFFFF "no bad block" sentinel format() fills unused
// slots with. Read-only: original_source/ps2mc.py's bad-block scanning
// logic probes real hardware, which is out of scope here.
func (s *Superblock) BadBlocks() []uint32 {
	var bad []uint32
	for _, v := range s.BadEraseBlocks {
		if v != 0xFFFFFFFF {
			bad = append(bad, v)
		}
	}
	return bad
}

// Decode parses a Size-byte buffer into a Superblock.
func Decode(buf []byte) (*Superblock, error) {
	if len(buf) != Size {
		return nil, fmt.Errorf("superblock: expected %d bytes, got %d", Size, len(buf))
	}

	var raw struct {
		Magic                   [28]byte
		Version                 [12]byte
		PageSize                uint16
		PagesPerCluster         uint16
		PagesPerEraseBlock      uint16
		Unused                  uint16
		ClustersPerCard         uint32
		AllocatableClusterStart uint32
		AllocatableClusterEnd   uint32
		RootdirFATCluster       uint32
		BackupBlock1            uint32
		BackupBlock2            uint32
		_                       [8]byte
		IndirectFATClusters     [maxIndirectFATClusters]uint32
		BadEraseBlocks          [maxIndirectFATClusters]uint32
		CardFlags               int8
		CardType                int8
		_                       [2]byte
	}

	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &raw); err != nil {
		return nil, ps2errors.ErrFileSystemCorrupted.WrapError(err)
	}

	if raw.Magic != Magic {
		return nil, ps2errors.ErrFileSystemCorrupted.WithMessage("bad superblock magic")
	}

	return &Superblock{
		Magic:                   raw.Magic,
		Version:                 raw.Version,
		PageSize:                raw.PageSize,
		PagesPerCluster:         raw.PagesPerCluster,
		PagesPerEraseBlock:      raw.PagesPerEraseBlock,
		Unused:                  raw.Unused,
		ClustersPerCard:         raw.ClustersPerCard,
		AllocatableClusterStart: raw.AllocatableClusterStart,
		AllocatableClusterEnd:   raw.AllocatableClusterEnd,
		RootdirFATCluster:       raw.RootdirFATCluster,
		BackupBlock1:            raw.BackupBlock1,
		BackupBlock2:            raw.BackupBlock2,
		IndirectFATClusters:     raw.IndirectFATClusters,
		BadEraseBlocks:          raw.BadEraseBlocks,
		CardFlags:               raw.CardFlags,
		CardType:                raw.CardType,
	}, nil
}

// Encode serializes s into a freshly allocated Size-byte buffer.
func (s *Superblock) Encode() []byte {
	buf := make([]byte, Size)
	writer := bytewriter.New(buf)

	var raw struct {
		Magic                   [28]byte
		Version                 [12]byte
		PageSize                uint16
		PagesPerCluster         uint16
		PagesPerEraseBlock      uint16
		Unused                  uint16
		ClustersPerCard         uint32
		AllocatableClusterStart uint32
		AllocatableClusterEnd   uint32
		RootdirFATCluster       uint32
		BackupBlock1            uint32
		BackupBlock2            uint32
		Pad1                    [8]byte
		IndirectFATClusters     [maxIndirectFATClusters]uint32
		BadEraseBlocks          [maxIndirectFATClusters]uint32
		CardFlags               int8
		CardType                int8
		Pad2                    [2]byte
	}

	raw.Magic = s.Magic
	raw.Version = s.Version
	raw.PageSize = s.PageSize
	raw.PagesPerCluster = s.PagesPerCluster
	raw.PagesPerEraseBlock = s.PagesPerEraseBlock
	raw.Unused = s.Unused
	raw.ClustersPerCard = s.ClustersPerCard
	raw.AllocatableClusterStart = s.AllocatableClusterStart
	raw.AllocatableClusterEnd = s.AllocatableClusterEnd
	raw.RootdirFATCluster = s.RootdirFATCluster
	raw.BackupBlock1 = s.BackupBlock1
	raw.BackupBlock2 = s.BackupBlock2
	raw.IndirectFATClusters = s.IndirectFATClusters
	raw.BadEraseBlocks = s.BadEraseBlocks
	raw.CardFlags = s.CardFlags
	raw.CardType = s.CardType

	binary.Write(writer, binary.LittleEndian, &raw)
	return buf
}
