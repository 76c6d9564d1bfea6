package stt

import (
	"mime"
	"path/filepath"
	"strings"

	"cloud.google.com/go/speech/apiv1/speechpb"
)

// mediaFormat describes how an uploaded container maps to a recognition encoding
type mediaFormat struct {
	extension  string
	encoding   speechpb.RecognitionConfig_AudioEncoding
	sampleRate int32
}

// zero sample rate lets the service read it from the file header
var mediaFormats = map[string]mediaFormat{
	"audio/wav":    {".wav", speechpb.RecognitionConfig_LINEAR16, 0},
	"audio/x-wav":  {".wav", speechpb.RecognitionConfig_LINEAR16, 0},
	"audio/wave":   {".wav", speechpb.RecognitionConfig_LINEAR16, 0},
	"audio/flac":   {".flac", speechpb.RecognitionConfig_FLAC, 0},
	"audio/x-flac": {".flac", speechpb.RecognitionConfig_FLAC, 0},
	"audio/ogg":    {".ogg", speechpb.RecognitionConfig_OGG_OPUS, 48000},
	"audio/opus":   {".opus", speechpb.RecognitionConfig_OGG_OPUS, 48000},
	"audio/webm":   {".webm", speechpb.RecognitionConfig_WEBM_OPUS, 48000},
	"video/webm":   {".webm", speechpb.RecognitionConfig_WEBM_OPUS, 48000},
	"audio/amr":    {".amr", speechpb.RecognitionConfig_AMR, 8000},
	"audio/amr-wb": {".awb", speechpb.RecognitionConfig_AMR_WB, 16000},
	"audio/basic":  {".au", speechpb.RecognitionConfig_MULAW, 8000},
	"audio/mpeg":   {".mp3", speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, 0},
	"video/mp4":    {".mp4", speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, 0},
	"audio/mp4":    {".m4a", speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, 0},
}

var extensionTypes = map[string]string{
	".wav":  "audio/wav",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".opus": "audio/opus",
	".webm": "audio/webm",
	".amr":  "audio/amr",
	".awb":  "audio/amr-wb",
	".au":   "audio/basic",
	".mp3":  "audio/mpeg",
	".mp4":  "video/mp4",
	".m4a":  "audio/mp4",
}

// lookupFormat resolves a format by content type first, then by file extension
func lookupFormat(filename, contentType string) (mediaFormat, bool) {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		if f, ok := mediaFormats[strings.ToLower(mediaType)]; ok {
			return f, true
		}
	}
	if t, ok := extensionTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return mediaFormats[t], true
	}
	return mediaFormat{}, false
}

// extensionFor picks a filename extension so the remote API can sniff the container
func extensionFor(contentType string) string {
	if f, ok := lookupFormat("", contentType); ok {
		return f.extension
	}
	return ""
}
