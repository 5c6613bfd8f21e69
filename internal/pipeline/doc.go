// Package pipeline runs the seven processing stages for one video.
//
// Each stage receives an immutable Snapshot of the artifacts earlier stages
// persisted, does its work through the media, generative and storage
// gateways inside a scratch directory scoped to the video and stage, and
// returns a typed result. The Orchestrator alone persists results and
// progress, so stage code never writes the video record directly.
//
// A run starts at any stage and continues to RENDER_VIDEO. The first failure
// stops the run, marks the video as errored with the causal message, and is
// returned to the caller; artifacts from stages that already finished stay in
// place for a later regeneration.
package pipeline
