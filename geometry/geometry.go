// Package geometry holds named presets for the handful of memory card sizes
// PS2 titles actually shipped against, mirroring disks.DiskGeometry's
// embedded-CSV-of-presets pattern.
package geometry

import (
	_ "embed"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
)

// CardGeometry describes the physical layout of a memory card image before
// any filesystem has been imposed on it: page size, cluster size (in pages),
// erase block size (in pages), and total page count.
type CardGeometry struct {
	Slug             string `csv:"slug"`
	Name             string `csv:"name"`
	PageSize         uint   `csv:"page_size"`
	PagesPerCluster  uint   `csv:"pages_per_cluster"`
	PagesPerEraseBlk uint   `csv:"pages_per_erase_block"`
	PagesPerCard     uint   `csv:"pages_per_card"`
}

// ClusterSize returns the size in bytes of one allocation cluster.
func (g CardGeometry) ClusterSize() uint {
	return g.PageSize * g.PagesPerCluster
}

// EraseBlockSize returns the size in bytes of one erase block.
func (g CardGeometry) EraseBlockSize() uint {
	return g.PageSize * g.PagesPerEraseBlk
}

// ClustersPerCard returns the total number of clusters the card's raw page
// count divides into.
func (g CardGeometry) ClustersPerCard() uint {
	return g.PagesPerCard / g.PagesPerCluster
}

// TotalSizeBytes returns the size of the unformatted image, not accounting
// for spare/ECC bytes.
func (g CardGeometry) TotalSizeBytes() int64 {
	return int64(g.PageSize) * int64(g.PagesPerCard)
}

// Validate checks the invariants format() relies on: a minimum page size,
// and a cluster size fixed at 1024 bytes (every real PS2 memory card uses
// 1024-byte clusters regardless of total capacity).
func (g CardGeometry) Validate() error {
	if g.PageSize < 512 {
		return fmt.Errorf("geometry %q: page size %d is below the minimum of 512", g.Slug, g.PageSize)
	}
	if g.PagesPerCluster < 1 {
		return fmt.Errorf("geometry %q: pages per cluster must be at least 1", g.Slug)
	}
	if g.PageSize*g.PagesPerCluster != 1024 {
		return fmt.Errorf(
			"geometry %q: page_size * pages_per_cluster must equal 1024, got %d",
			g.Slug, g.PageSize*g.PagesPerCluster,
		)
	}
	return nil
}

//go:embed card-geometries.csv
var cardGeometriesRawCSV string

var cardGeometries = make(map[string]CardGeometry)

// Lookup returns the named preset (e.g. "8mb", "16mb", "32mb", "64mb").
func Lookup(slug string) (CardGeometry, error) {
	geometry, ok := cardGeometries[slug]
	if ok {
		return geometry, nil
	}
	return CardGeometry{}, fmt.Errorf("no predefined card geometry exists with slug %q", slug)
}

// All returns every known preset, in no particular order.
func All() []CardGeometry {
	result := make([]CardGeometry, 0, len(cardGeometries))
	for _, g := range cardGeometries {
		result = append(result, g)
	}
	return result
}

func init() {
	reader := strings.NewReader(cardGeometriesRawCSV)
	err := gocsv.UnmarshalToCallback(reader, func(row CardGeometry) error {
		if _, exists := cardGeometries[row.Slug]; exists {
			return fmt.Errorf("duplicate definition for card geometry %q", row.Slug)
		}
		if err := row.Validate(); err != nil {
			return err
		}
		cardGeometries[row.Slug] = row
		return nil
	})
	if err != nil && err != io.EOF {
		panic(err)
	}
}
