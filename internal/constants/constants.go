// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Output layout constants
const (
	// NoMatchesDir is the catch-all directory for photos without a recognized face
	NoMatchesDir = "_NoMatches"

	// PortraitsDir holds the cropped portraits produced by auto-discovery
	PortraitsDir = "_Portraits_To_Tag"

	// PortraitPrefix is the file name prefix of untagged portraits (Person_0.jpg, ...)
	PortraitPrefix = "Person_"

	// PortraitExt is the extension portraits are written with
	PortraitExt = ".jpg"
)

// Face matching constants
const (
	// DefaultTolerance is the maximum embedding distance for two faces to be the same person
	// Lower values = stricter matching
	DefaultTolerance = 0.6

	// DefaultPortraitPadding is the padding in pixels added around a face when cropping a portrait
	DefaultPortraitPadding = 40

	// DefaultPortraitQuality is the JPEG quality of saved portraits
	DefaultPortraitQuality = 95
)

// Processing constants
const (
	// DefaultConcurrency is the default number of parallel oracle calls (1 = sequential)
	DefaultConcurrency = 1

	// MaxConcurrency caps the number of parallel oracle calls
	MaxConcurrency = 32
)

// Progress fractions for the phases of a run
const (
	ProgressLearnEnd   = 0.25
	ProgressMatchStart = 0.25
	ProgressMatchEnd   = 0.75
	ProgressRouting    = 0.9

	ProgressDiscoverStart = 0.1
	ProgressDiscoverEnd   = 0.6
	ProgressResumeStart   = 0.7
)

// Event channel constants
const (
	// EventChannelBuffer is the buffer size for event channels
	EventChannelBuffer = 100
)
