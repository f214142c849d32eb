package stream

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

const hlsHeader = "#EXTM3U"

// Quality is one rendition of a stream: a human-readable label derived from
// the declared resolution, and its media URL.
type Quality struct {
	Label string
	URL   string
}

// Manifest is the parsed variant playlist. Qualities keep the playlist's
// order; the platform always lists its self-declared best rendition first.
type Manifest struct {
	Qualities []Quality
}

// ParseManifest scans a variant playlist for stream-info entries. The line
// following each entry (skipping comments) is the rendition URL. Duplicate
// labels keep the first occurrence.
func ParseManifest(text string) (*Manifest, error) {
	if !strings.Contains(text, hlsHeader) {
		return nil, fmt.Errorf("invalid playlist: missing %s header", hlsHeader)
	}

	lines := strings.Split(text, "\n")
	seen := make(map[string]struct{})

	var qualities []Quality

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "#EXT-X-STREAM-INF") {
			continue
		}

		label := labelForStreamInfo(line)

		for j := i + 1; j < len(lines); j++ {
			next := strings.TrimSpace(lines[j])
			if next == "" || strings.HasPrefix(next, "#") {
				continue
			}

			if _, duplicate := seen[label]; !duplicate {
				seen[label] = struct{}{}
				qualities = append(qualities, Quality{Label: label, URL: next})
			}
			i = j
			break
		}
	}

	return &Manifest{Qualities: qualities}, nil
}

func labelForStreamInfo(line string) string {
	if strings.Contains(strings.ToLower(line), "audio_only") {
		return "Audio Only"
	}

	resolution := streamInfoAttr(line, "RESOLUTION")

	switch resolution {
	case "1920x1080":
		return "Source"
	case "1280x720":
		return "High"
	case "852x480", "640x480":
		return "Medium"
	case "640x360":
		return "Low"
	case "284x160":
		return "Mobile"
	}

	if strings.HasPrefix(resolution, "160x") {
		return "Mobile"
	}

	return "unknown"
}

func streamInfoAttr(line, name string) string {
	idx := strings.Index(line, name+"=")
	if idx < 0 {
		return ""
	}

	value := line[idx+len(name)+1:]
	if end := strings.IndexByte(value, ','); end >= 0 {
		value = value[:end]
	}

	return strings.Trim(value, `"`)
}

// Labels returns the quality labels in playlist order.
func (m *Manifest) Labels() []string {
	labels := make([]string, 0, len(m.Qualities))
	for _, q := range m.Qualities {
		labels = append(labels, q.Label)
	}

	return labels
}

// URLByLabel looks a rendition up by label, first exactly, then by
// case-insensitive substring, so "720p" matches "720p (High)".
func (m *Manifest) URLByLabel(label string) (string, bool) {
	if q, ok := lo.Find(m.Qualities, func(q Quality) bool {
		return q.Label == label
	}); ok {
		return q.URL, true
	}

	needle := strings.ToLower(label)
	if q, ok := lo.Find(m.Qualities, func(q Quality) bool {
		return strings.Contains(strings.ToLower(q.Label), needle)
	}); ok {
		return q.URL, true
	}

	return "", false
}

var symbolicQualities = map[string]string{
	"best":       "Source",
	"source":     "Source",
	"high":       "High",
	"medium":     "Medium",
	"low":        "Low",
	"mobile":     "Mobile",
	"audio":      "Audio Only",
	"audio_only": "Audio Only",
}

// Resolve maps a requested quality to a rendition URL. An unavailable
// quality falls back to the first (best) listed rendition; resolution never
// fails just because the exact quality is missing.
func (m *Manifest) Resolve(quality string) (string, error) {
	if len(m.Qualities) == 0 {
		return "", fmt.Errorf("playlist has no renditions")
	}

	target := quality
	if mapped, ok := symbolicQualities[strings.ToLower(quality)]; ok {
		target = mapped
	}

	if url, ok := m.URLByLabel(target); ok {
		return url, nil
	}

	return m.Qualities[0].URL, nil
}
