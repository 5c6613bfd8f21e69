package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"reelsmith/internal/generative"
	"reelsmith/internal/logging"
	"reelsmith/internal/services"
	"reelsmith/internal/stage"
	"reelsmith/internal/storage"
	"reelsmith/internal/subtitles"
	"reelsmith/internal/videostore"
)

const subtitleFile = "captions.srt"

func (o *Orchestrator) extractAudio(ctx context.Context, snap Snapshot, ws workspace, rep *reporter) (result, error) {
	src, err := o.fetchOriginal(ctx, snap, ws, stage.ExtractAudio)
	if err != nil {
		return nil, err
	}
	rep.report(ctx, 10)

	opts := o.settings.Audio
	if strings.TrimSpace(opts.Format) == "" {
		opts.Format = "mp3"
	}
	name := "audio." + opts.Format
	out := ws.path(name)
	if err := o.deps.Media.ExtractAudio(ctx, src, out, opts, rep.span(ctx, 10, 85)); err != nil {
		return nil, err
	}

	key := storage.VideoKey(snap.Video.ID, name)
	obj, err := storage.Upload(ctx, o.deps.Blobs, key, out, storage.ContentTypeFor(key))
	if err != nil {
		return nil, err
	}
	rep.report(ctx, 95)
	return artifactResult{
		artifact: artifactFor(snap.Video.ID, videostore.ArtifactAudio, obj),
		stale:    replacedKey(snap, videostore.ArtifactAudio, obj.Key),
	}, nil
}

func (o *Orchestrator) transcribe(ctx context.Context, snap Snapshot, ws workspace, rep *reporter) (result, error) {
	audio, ok := snap.Artifact(videostore.ArtifactAudio)
	if !ok {
		return nil, missing(stage.Transcribe, "extracted audio")
	}
	data, err := o.readBlob(ctx, audio.Key)
	if err != nil {
		return nil, err
	}
	rep.report(ctx, 20)

	tr, err := o.deps.Generative.Transcribe(ctx, data, path.Base(audio.Key))
	if err != nil {
		return nil, err
	}
	rep.report(ctx, 80)

	lang := tr.Language
	if o.deps.Generative.Mode() == generative.ModeFallback {
		// The fallback cannot detect language; the container tag is better than a guess.
		if tagged := o.probeLanguage(ctx, ws, audio.Key, data); tagged != "" {
			lang = tagged
		}
	}

	segments := make([]videostore.Segment, 0, len(tr.Segments))
	for _, seg := range tr.Segments {
		segments = append(segments, videostore.Segment{
			ID:         seg.ID,
			Text:       seg.Text,
			StartSec:   seg.StartSec,
			EndSec:     seg.EndSec,
			Confidence: seg.Confidence,
			Speaker:    seg.Speaker,
		})
	}
	return transcriptResult{transcript: videostore.NewTranscript{
		VideoID:    snap.Video.ID,
		Text:       tr.Text,
		Segments:   segments,
		Language:   lang,
		Confidence: tr.Confidence,
	}}, nil
}

func (o *Orchestrator) probeLanguage(ctx context.Context, ws workspace, key string, data []byte) string {
	local := ws.path(path.Base(key))
	if err := writeFile(local, data); err != nil {
		return ""
	}
	info, err := o.deps.Media.Probe(ctx, local)
	if err != nil {
		logging.WithContext(ctx, o.logger).Debug("audio language probe failed", logging.Error(err))
		return ""
	}
	return info.AudioLanguage
}

func (o *Orchestrator) enhanceScript(ctx context.Context, snap Snapshot, _ workspace, rep *reporter) (result, error) {
	if snap.Transcript == nil {
		return nil, missing(stage.EnhanceScript, "transcript")
	}
	enh, err := o.deps.Generative.EnhanceScript(ctx, snap.Transcript.OriginalText, snap.Video.Title)
	if err != nil {
		return nil, err
	}
	rep.report(ctx, 60)

	summary, err := o.deps.Generative.Summarize(ctx, enh.EnhancedText)
	if err != nil {
		return nil, err
	}
	rep.report(ctx, 90)
	return enhancementResult{
		transcriptID: snap.Transcript.ID,
		enhanced:     enh.EnhancedText,
		improvements: enh.Improvements,
		summary:      summary,
	}, nil
}

func (o *Orchestrator) generateVoiceover(ctx context.Context, snap Snapshot, _ workspace, rep *reporter) (result, error) {
	text := strings.TrimSpace(snap.Transcript.ScriptText())
	if text == "" {
		return nil, missing(stage.GenerateVoiceover, "script text")
	}
	rep.report(ctx, 10)

	voice, err := o.deps.Generative.SynthesizeVoice(ctx, text, o.settings.Voice)
	if err != nil {
		return nil, err
	}
	rep.report(ctx, 70)

	format := strings.TrimSpace(voice.Format)
	if format == "" {
		format = "mp3"
	}
	key := storage.VideoKey(snap.Video.ID, "voiceover."+format)
	obj, err := o.deps.Blobs.Put(ctx, key, bytes.NewReader(voice.Audio), storage.ContentTypeFor(key))
	if err != nil {
		return nil, err
	}
	rep.report(ctx, 95)
	return artifactResult{
		artifact: artifactFor(snap.Video.ID, videostore.ArtifactVoiceover, obj),
		stale:    replacedKey(snap, videostore.ArtifactVoiceover, obj.Key),
	}, nil
}

func (o *Orchestrator) detectScenes(ctx context.Context, snap Snapshot, ws workspace, rep *reporter) (result, error) {
	src, err := o.fetchOriginal(ctx, snap, ws, stage.DetectScenes)
	if err != nil {
		return nil, err
	}
	rep.report(ctx, 10)

	thumbs, err := o.deps.Media.Thumbnails(ctx, src, ws.path("thumbs"), o.settings.ThumbnailCount, rep.span(ctx, 10, 60))
	if err != nil {
		return nil, err
	}

	keyframes := make([]videostore.Keyframe, 0, len(thumbs))
	uploaded := make([]string, 0, len(thumbs))
	for i, thumb := range thumbs {
		key := storage.VideoKey(snap.Video.ID, "thumbnails", fmt.Sprintf("%03d.jpg", i+1))
		obj, err := storage.Upload(ctx, o.deps.Blobs, key, thumb.Path, storage.ContentTypeFor(key))
		if err != nil {
			return nil, err
		}
		keyframes = append(keyframes, videostore.Keyframe{TimeSec: thumb.TimeSec, Key: obj.Key, URL: obj.URL})
		uploaded = append(uploaded, obj.Key)
		rep.report(ctx, 60+35*float64(i+1)/float64(len(thumbs)))
	}

	duration := snap.Video.OriginalFile.DurationSeconds
	if duration <= 0 {
		info, err := o.deps.Media.Probe(ctx, src)
		if err != nil {
			return nil, err
		}
		duration = info.DurationSeconds
	}

	var stale []string
	for _, kf := range snap.Video.Metadata.Keyframes {
		if kf.Key != "" && !slices.Contains(uploaded, kf.Key) {
			stale = append(stale, kf.Key)
		}
	}
	return scenesResult{
		keyframes: keyframes,
		scenes:    evenScenes(duration, len(thumbs)),
		stale:     stale,
	}, nil
}

// evenScenes splits [0, duration] into count contiguous scenes, one per
// thumbnail slice.
func evenScenes(duration float64, count int) []videostore.Scene {
	if duration <= 0 || count <= 0 {
		return []videostore.Scene{}
	}
	slice := duration / float64(count)
	scenes := make([]videostore.Scene, count)
	for i := range scenes {
		end := slice * float64(i+1)
		if i == count-1 {
			end = duration
		}
		scenes[i] = videostore.Scene{Index: i, StartSec: slice * float64(i), EndSec: end}
	}
	return scenes
}

func (o *Orchestrator) generateCaptions(ctx context.Context, snap Snapshot, _ workspace, rep *reporter) (result, error) {
	if snap.Transcript == nil || len(snap.Transcript.Segments) == 0 {
		return nil, missing(stage.GenerateCaptions, "transcript segments")
	}
	spans := make([]subtitles.Span, 0, len(snap.Transcript.Segments))
	for _, seg := range snap.Transcript.Segments {
		spans = append(spans, subtitles.Span{Start: seg.StartSec, End: seg.EndSec, Text: seg.Text})
	}
	cues := subtitles.FromSegments(spans, subtitles.DefaultOptions())
	if len(cues) == 0 {
		return nil, services.Wrap(services.ErrNotFound, string(stage.GenerateCaptions), "captions",
			"transcript segments contain no captionable speech", nil)
	}
	rep.report(ctx, 40)

	if issues := subtitles.Validate(cues, snap.Video.OriginalFile.DurationSeconds); len(issues) > 0 {
		logging.WithContext(ctx, o.logger).Info("caption timing adjusted",
			logging.String(logging.FieldEventType, "caption_validation"),
			logging.Any("issues", issues),
		)
	}

	captions := make([]videostore.Caption, len(cues))
	for i, cue := range cues {
		captions[i] = videostore.Caption{
			ID:       fmt.Sprintf("cap-%04d", i+1),
			StartSec: cue.Start,
			EndSec:   cue.End,
			Text:     cue.Text,
		}
	}

	key := storage.VideoKey(snap.Video.ID, subtitleFile)
	obj, err := o.deps.Blobs.Put(ctx, key, bytes.NewReader(subtitles.Format(cues)), storage.ContentTypeFor(key))
	if err != nil {
		return nil, err
	}
	rep.report(ctx, 90)
	return captionsResult{
		captions: captions,
		subtitle: artifactFor(snap.Video.ID, videostore.ArtifactSubtitle, obj),
	}, nil
}

func (o *Orchestrator) renderVideo(ctx context.Context, snap Snapshot, ws workspace, rep *reporter) (result, error) {
	sub, ok := snap.Artifact(videostore.ArtifactSubtitle)
	if !ok {
		return nil, missing(stage.RenderVideo, "subtitle file")
	}
	src, err := o.fetchOriginal(ctx, snap, ws, stage.RenderVideo)
	if err != nil {
		return nil, err
	}
	subPath := ws.path(subtitleFile)
	if _, err := storage.Download(ctx, o.deps.Blobs, sub.Key, subPath); err != nil {
		return nil, err
	}

	opts := o.settings.Render
	if voice, ok := snap.Artifact(videostore.ArtifactVoiceover); ok {
		voicePath := ws.path(path.Base(voice.Key))
		if _, err := storage.Download(ctx, o.deps.Blobs, voice.Key, voicePath); err != nil {
			return nil, err
		}
		info, err := o.deps.Media.Probe(ctx, src)
		if err != nil {
			return nil, err
		}
		opts.VoiceoverPath = voicePath
		opts.MixOriginal = info.HasAudio
	}
	rep.report(ctx, 15)

	out := ws.path("processed.mp4")
	if err := o.deps.Media.RenderWithCaptions(ctx, src, out, subPath, opts, rep.span(ctx, 15, 85)); err != nil {
		return nil, err
	}
	info, err := o.deps.Media.Probe(ctx, out)
	if err != nil {
		return nil, err
	}
	rep.report(ctx, 90)

	key := storage.VideoKey(snap.Video.ID, "processed.mp4")
	obj, err := storage.Upload(ctx, o.deps.Blobs, key, out, storage.ContentTypeFor(key))
	if err != nil {
		return nil, err
	}
	rep.report(ctx, 98)

	format := info.Format
	if format == "" {
		format = "mp4"
	}
	return renderResult{processed: videostore.FileRef{
		URL:             obj.URL,
		Key:             obj.Key,
		SizeBytes:       obj.SizeBytes,
		DurationSeconds: info.DurationSeconds,
		Format:          format,
		Resolution:      videostore.Resolution{Width: info.Width, Height: info.Height},
	}}, nil
}

// fetchOriginal downloads the uploaded source into the workspace.
func (o *Orchestrator) fetchOriginal(ctx context.Context, snap Snapshot, ws workspace, st stage.Stage) (string, error) {
	original := snap.Video.OriginalFile
	if original == nil || strings.TrimSpace(original.Key) == "" {
		return "", missing(st, "original file")
	}
	dst := ws.path("source" + strings.ToLower(filepath.Ext(original.Key)))
	if _, err := storage.Download(ctx, o.deps.Blobs, original.Key, dst); err != nil {
		return "", err
	}
	return dst, nil
}

func (o *Orchestrator) readBlob(ctx context.Context, key string) ([]byte, error) {
	body, err := o.deps.Blobs.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, services.Wrap(services.ErrGateway, "storage", "read", key, err)
	}
	return data, nil
}

func missing(st stage.Stage, what string) error {
	return services.Wrap(services.ErrNotFound, string(st), "precondition",
		fmt.Sprintf("%s is missing; run an earlier stage first", what), nil)
}

func artifactFor(videoID string, kind videostore.ArtifactKind, obj storage.Object) videostore.Artifact {
	return videostore.Artifact{
		VideoID:     videoID,
		Kind:        kind,
		Key:         obj.Key,
		URL:         obj.URL,
		SizeBytes:   obj.SizeBytes,
		ContentType: obj.ContentType,
	}
}

// replacedKey returns the previous key of kind when the new output lives elsewhere.
func replacedKey(snap Snapshot, kind videostore.ArtifactKind, key string) []string {
	prev, ok := snap.Artifact(kind)
	if !ok || prev.Key == "" || prev.Key == key {
		return nil
	}
	return []string{prev.Key}
}
