// Package videostore persists video records, their transcripts, captions,
// scene metadata and stage artifacts.
//
// Writes are partial: each method updates only the columns or child rows it
// owns, so a stage saving captions never rewrites the title a user changed
// meanwhile. Progress updates are guarded in SQL so that, within one stage,
// progress only moves up. Status transitions follow
// uploading -> processing -> ready | error, and a ready or errored video may
// be moved back into processing to regenerate from a chosen stage.
package videostore
