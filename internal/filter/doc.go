// Package filter runs the chunk filter pipeline of chunked datasets.
//
// Writing passes a chunk through the filters in message order and reading
// undoes them in reverse. Each stored chunk carries a mask whose bit i
// records that filter i was skipped for it, which happens when an optional
// filter is unavailable or fails.
//
// Deflate (zlib through klauspost/compress), shuffle and Fletcher-32 are
// implemented. SZIP, N-bit, scale-offset and third-party filters are
// recognised but cannot run: a pipeline that requires one fails to build,
// and an optional one is carried as a placeholder.
//
// audata tables are written with the stack h5py builds for
// compression='gzip', shuffle=True, fletcher32=True:
//
//	p, _ := filter.NewPipeline(message.NewFilterPipeline(
//		message.ShuffleFilter(rowSize),
//		message.DeflateFilter(6),
//		message.Fletcher32Filter(),
//	))
//	stored, mask, _ := p.Encode(chunk)
package filter
