package textutil

import (
	"path"
	"strings"
)

// unsafeInFileName maps characters that break paths or shells on common
// filesystems. Separators become dashes; the rest disappear.
var unsafeInFileName = strings.NewReplacer(
	"/", "-", "\\", "-", ":", "-", "*", "-",
	"?", "", "\"", "", "<", "", ">", "", "|", "",
)

// SanitizeFileName makes name safe to use as a single path element.
func SanitizeFileName(name string) string {
	return strings.TrimSpace(unsafeInFileName.Replace(strings.TrimSpace(name)))
}

// SanitizeToken lowercases value to an ASCII token of letters, digits, '-'
// and '_'. Anything else becomes '_'. Empty results yield "unknown".
func SanitizeToken(value string) string {
	token := strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z':
			return r + 'a' - 'A'
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, strings.TrimSpace(value))
	if token = strings.Trim(token, "_-"); token == "" {
		return "unknown"
	}
	return token
}

// WorkspaceName derives a display name from a document path or URL: the
// last path element without its extension, underscores read as spaces.
func WorkspaceName(source string) string {
	source = strings.TrimSpace(source)
	if strings.Contains(source, "://") {
		if i := strings.IndexAny(source, "?#"); i >= 0 {
			source = source[:i]
		}
	}
	source = strings.TrimRight(strings.ReplaceAll(source, "\\", "/"), "/")
	base := path.Base(source)
	if base == "." || base == "/" {
		base = ""
	}
	if ext := path.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	if name := SanitizeFileName(strings.ReplaceAll(base, "_", " ")); name != "" {
		return name
	}
	return "Untitled"
}

// DownloadName builds the attachment name for a workspace output file.
func DownloadName(workspaceName, file string) string {
	return SanitizeToken(workspaceName) + "-" + SanitizeFileName(file)
}
