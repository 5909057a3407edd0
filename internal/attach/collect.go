package attach

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// Default patterns skipped when collecting a directory, on top of whatever
// the repository's .gitignore excludes.
var defaultIgnorePatterns = []string{
	".git/",
	"node_modules/",
	".DS_Store",
}

// CollectDir stages every file under root as a pending attachment,
// honoring the root .gitignore. Used by execute mode, which accepts
// arbitrary file types.
func CollectDir(root string) ([]Attachment, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	patterns := append([]string(nil), defaultIgnorePatterns...)
	if data, err := os.ReadFile(filepath.Join(root, ".gitignore")); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line != "" && !strings.HasPrefix(line, "#") {
				patterns = append(patterns, line)
			}
		}
	}
	matcher := gitignore.CompileIgnoreLines(patterns...)

	var atts []Attachment
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // Skip unreadable entries
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return nil
		}
		if matcher.MatchesPath(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		atts = append(atts, Attachment{
			Name:      NormalizeName(filepath.ToSlash(rel)),
			MimeType:  detectMimeType(path),
			LocalPath: path,
			State:     StatePending,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect %s: %w", root, err)
	}
	return atts, nil
}

func detectMimeType(path string) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		// Strip any charset parameter; the backend wants the bare type.
		if i := strings.Index(t, ";"); i >= 0 {
			t = t[:i]
		}
		return t
	}
	return "application/octet-stream"
}
