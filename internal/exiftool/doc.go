// Package exiftool wraps the external metadata tool as a black-box
// collaborator.
//
// Every call spawns an ephemeral process whose lifetime never exceeds the
// call; timeouts are enforced through the context. The runner exposes JSON
// extraction, targeted tag reads, tag writes and binary tag extraction
// (used by the thumbnail deriver for RAW previews).
package exiftool
