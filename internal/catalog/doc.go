// Package catalog builds COCO-shaped object detection catalogs from VIA
// video annotation exports.
//
// Responsibilities: composite id synthesis, attribute resolution,
// per-frame filtering and deduplication of object events, per-source
// catalog assembly, and merging many per-source catalogs into one.
//
// Every id minted for a source carries that source's SourceId in its
// high-order digits, so catalogs built independently never collide and
// merging is plain concatenation. No file discovery, video probing or
// frame extraction happens here; see internal/pipeline and internal/video.
package catalog
