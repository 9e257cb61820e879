package audio

import (
	"os"
	"path/filepath"
	"strings"
)

// ResolveFile finds an audio file on disk given the path stored with a
// transcription. Stored paths come from earlier processing runs and may
// be relative to the managed audio directory, absolute paths from
// another deployment, or bare filenames.
// Priority: 1) audioDir/storedPath  2) audioDir + suffix of storedPath
// 3) storedPath as an absolute path.
func ResolveFile(audioDir, storedPath string) string {
	if storedPath == "" {
		return ""
	}

	// 1) relative to the managed audio directory
	if audioDir != "" {
		full := filepath.Join(audioDir, storedPath)
		if _, err := os.Stat(full); err == nil {
			return full
		}

		// 2) stored path is absolute but the file was moved under
		// audioDir: try each trailing sub-path.
		// e.g. /app/media/audio/2026/sesion_12.mp3 → 2026/sesion_12.mp3
		parts := strings.Split(filepath.ToSlash(storedPath), "/")
		for i := range parts {
			if i == 0 {
				continue
			}
			candidate := filepath.Join(audioDir, filepath.Join(parts[i:]...))
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}

	// 3) same machine, same filesystem
	if filepath.IsAbs(storedPath) {
		if _, err := os.Stat(storedPath); err == nil {
			return storedPath
		}
	}

	return ""
}

// ContentType guesses the MIME type from the file extension, falling
// back to audio/mpeg.
func ContentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return "audio/wav"
	case ".m4a", ".mp4":
		return "audio/mp4"
	case ".ogg", ".oga":
		return "audio/ogg"
	case ".flac":
		return "audio/flac"
	default:
		return "audio/mpeg"
	}
}
