// Package manifest turns the ```cargo block embedded in a source file's
// leading //! comment into a complete Cargo.toml.
//
// Extraction and normalization are pure: the same source path, manifest
// directory and fragment always produce byte-identical output. The project
// cache relies on this to decide whether the generated manifest is stale, so
// nothing in this package may depend on timestamps or map iteration order.
//
// # Embedded manifest
//
//	//! Optional prose.
//	//!
//	//! ```cargo
//	//! [dependencies]
//	//! anyhow = "1.0"
//	//!
//	//! [cargo-wop]
//	//! default-action = ["build"]
//	//! filter = { "libexample.so" = "example.so" }
//	//! ```
//
// The [cargo-wop] table is understood only by this wrapper. It is stripped
// from the emitted manifest and returned as a ToolSection.
package manifest
