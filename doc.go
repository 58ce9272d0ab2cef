// Package styler performs reference-driven audio style transfer in pure Go.
//
// Given a reference recording and a target recording, the engine measures
// acoustic features of both (spectral shape, mel statistics, BS.1770
// loudness, true peak, pitch, stereo image, reverberation), inverts the
// difference into a set of mastering-style parameters (EQ, compression,
// reverb, stereo width, pitch shift, loudness normalization, limiting), and
// renders those parameters onto the target audio.
//
// # Quick Start
//
//	engine, err := styler.New(styler.Config{CacheDir: "/var/cache/styler"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Close()
//
//	params, metrics, err := engine.Transfer(ctx,
//	    "reference.wav", "target.mp3", "styled.wav", styler.ModeStyle)
//
// The individual stages are also exposed for callers that want to inspect
// or adjust intermediate results:
//
//	ref, _ := engine.Analyze(ctx, "reference.wav")
//	tgt, _ := engine.Analyze(ctx, "target.flac")
//	p := engine.Invert(ref, tgt, styler.ModePaired)
//	metrics, err := engine.Render(ctx, "target.flac", "styled.wav", p)
//
// # Architecture
//
// Decoding streams WAV, MP3, FLAC and Ogg Vorbis files as overlapping
// chunks sized to a memory budget, resampled to a fixed 48 kHz engine rate.
// Feature extraction runs per chunk on a small bounded worker pool and the
// per-chunk results are merged into one feature set. Rendering splits long
// buffers into the same overlapping chunks, processes them in parallel
// through the effect chain, and stitches them with a linear crossfade so
// output duration equals input duration. Under memory pressure the renderer
// retries with smaller chunks and a reduced chain, and as a last resort
// returns the input unmodified with a fallback flag in [QualityMetrics].
//
// # Caching
//
// When [Config.CacheDir] is set, analysis and render results are cached,
// keyed by input content hash and parameter hash, with TTL expiry and LRU
// eviction bounded by size and entry caps. A changed input file or
// parameter set never serves a stale artifact.
//
// # Thread Safety
//
// An [Engine] is safe for concurrent use. Buffers returned by its methods
// are independently owned and never shared between goroutines.
package styler
