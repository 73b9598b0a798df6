// Package core materializes single-file projects and drives cargo against
// them.
//
// # Components
//
// ProjectCache maps a source file to a project directory under a fixed
// cache root and keeps the generated Cargo.toml in sync with the manifest
// embedded in the source. Staleness is detected by content comparison only.
//
// Executor runs cargo with inherited standard streams and forwards
// interrupt signals to the child.
//
// BuildRunner implements the two-phase build: an ordinary build followed by
// a report pass whose compiler-artifact messages name the produced files.
// ArtifactResolver then copies, renames or skips each file according to the
// [cargo-wop] filter table.
//
// # Determinism
//
//  1. The project directory name depends only on the absolute source path.
//  2. The generated manifest depends only on the source path, the project
//     directory and the embedded fragment.
//  3. Artifacts are processed in sorted path order.
package core
