package partition

import (
	"github.com/listdb/listdb/errors"
	"github.com/listdb/listdb/proto"
	h3 "github.com/uber/h3-go/v4"
)

const (
	defaultCount         = 8
	defaultGeoResolution = 7

	maxGeoResolution = 15

	// maxCount is bounded by the partition bits of an entity id.
	maxCount = 1 << (64 - proto.PartitionSeqBits)
)

type Config struct {
	Count         uint32 `json:"count"`
	GeoResolution int    `json:"geo_resolution"`
}

// Assigner picks the storage partition of an entity. Hash spaces mix the
// allocation sequence; geo spaces mix the H3 cell of the entity's location,
// so all points inside one cell share a partition.
type Assigner struct {
	count uint32
	res   int
}

func NewAssigner(cfg *Config) (*Assigner, error) {
	if cfg.Count == 0 {
		cfg.Count = defaultCount
	}
	if cfg.Count > maxCount {
		return nil, errors.ErrExceedMaxPartitions
	}
	if cfg.GeoResolution == 0 {
		cfg.GeoResolution = defaultGeoResolution
	}
	if cfg.GeoResolution < 0 || cfg.GeoResolution > maxGeoResolution {
		return nil, errors.ErrInvalidLocation
	}
	return &Assigner{count: cfg.Count, res: cfg.GeoResolution}, nil
}

func (a *Assigner) Count() uint32 {
	return a.count
}

func (a *Assigner) Resolution() int {
	return a.res
}

// Assign maps an allocation sequence onto a partition.
func (a *Assigner) Assign(seq uint64) proto.PartitionID {
	return AltMod(Mix64(seq), a.count)
}

// AssignGeo maps a point onto the partition of its H3 cell.
func (a *Assigner) AssignGeo(lat, lng float64) proto.PartitionID {
	return a.AssignCell(a.CellOf(lat, lng))
}

// AssignCell maps an H3 cell onto a partition.
func (a *Assigner) AssignCell(cell uint64) proto.PartitionID {
	return AltMod(Mix64(cell), a.count)
}

// CellOf returns the H3 cell index of a point at the configured resolution.
func (a *Assigner) CellOf(lat, lng float64) uint64 {
	return uint64(h3.LatLngToCell(h3.NewLatLng(lat, lng), a.res))
}
