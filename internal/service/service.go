// Package service composes the persistent DDS cache with its two
// background collaborators, healing and reaping, into the single entry
// point an embedding process (a FUSE layer, out of scope here) actually
// calls through.
package service

import (
	"github.com/ddscache/ddscached/internal/cachepath"
	"github.com/ddscache/ddscached/internal/dds"
	"github.com/ddscache/ddscached/internal/ddscache"
	"github.com/ddscache/ddscached/internal/heal"
	"github.com/ddscache/ddscached/internal/reaper"
)

// Service wraps a Cache so that Load transparently schedules healing on an
// incomplete hit and Store transparently schedules source-chunk reaping on
// a complete write.
type Service struct {
	Cache              *ddscache.Cache
	Healer             *heal.Dispatcher
	Reaper             *reaper.Reaper
	CacheRootForBundle string
}

// New wires a Service from already-constructed collaborators.
func New(cache *ddscache.Cache, healer *heal.Dispatcher, reap *reaper.Reaper, cacheRootForBundle string) *Service {
	return &Service{Cache: cache, Healer: healer, Reaper: reap, CacheRootForBundle: cacheRootForBundle}
}

// Load reads (id, maxZoom), dispatching a healing attempt in the background
// when the hit is incomplete.
func (s *Service) Load(id cachepath.Identity, maxZoom int) ([]byte, ddscache.Hints, bool) {
	var hints ddscache.Hints
	data, ok := s.Cache.Load(id, maxZoom, &hints, s.CacheRootForBundle)
	if ok && hints.NeedsHealing && len(hints.MissingIndices) > 0 {
		s.Healer.Dispatch(id, maxZoom, hints.MissingIndices)
	}
	return data, hints, ok
}

// Store writes a complete artifact, dispatching source-chunk reaping in the
// background once the artifact has no missing indices.
func (s *Service) Store(id cachepath.Identity, maxZoom int, data []byte, missingIndices []int) bool {
	ok := s.Cache.Store(id, maxZoom, data, missingIndices, s.CacheRootForBundle)
	if ok && len(missingIndices) == 0 {
		rec, ok := s.Cache.LoadMetadata(id, maxZoom)
		if ok {
			s.Reaper.Dispatch(id, maxZoom, reaper.ChunksPerRow(rec.W), reaper.ChunksPerRow(rec.H))
		}
	}
	return ok
}

// StoreIncremental writes a partial artifact, dispatching source-chunk
// reaping in the background only once the merge it produces leaves no
// missing indices — i.e. this particular incremental write is the one that
// completes the tile, not merely one of several partial writers.
func (s *Service) StoreIncremental(id cachepath.Identity, maxZoom int, format dds.Format, width, height int, mipmapBytes map[int][]byte, missingIndices []int, bundleMtime int64) bool {
	ok := s.Cache.StoreIncremental(id, maxZoom, format, width, height, mipmapBytes, missingIndices, bundleMtime)
	if ok && len(missingIndices) == 0 {
		rec, found := s.Cache.LoadMetadata(id, maxZoom)
		if found && len(rec.PopulatedMipmaps) == rec.MM {
			s.Reaper.Dispatch(id, maxZoom, reaper.ChunksPerRow(width), reaper.ChunksPerRow(height))
		}
	}
	return ok
}
