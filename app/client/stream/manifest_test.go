package stream

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const samplePlaylist = `#EXTM3U
#EXT-X-TWITCH-INFO:NODE="video-edge.example",MANIFEST-NODE="video-weaver.example",SERVER-TIME="1700000000.00"
#EXT-X-MEDIA:TYPE=VIDEO,GROUP-ID="chunked",NAME="1080p60 (source)",AUTOSELECT=YES,DEFAULT=YES
#EXT-X-STREAM-INF:PROGRAM-ID=1,BANDWIDTH=6214307,CODECS="avc1.64002A,mp4a.40.2",RESOLUTION=1920x1080,VIDEO="chunked",FRAME-RATE=60.000
https://video.example/chunked/index.m3u8
#EXT-X-MEDIA:TYPE=VIDEO,GROUP-ID="720p60",NAME="720p60",AUTOSELECT=YES,DEFAULT=YES
#EXT-X-STREAM-INF:PROGRAM-ID=1,BANDWIDTH=3422999,CODECS="avc1.4D401F,mp4a.40.2",RESOLUTION=1280x720,VIDEO="720p60",FRAME-RATE=60.000
https://video.example/720p60/index.m3u8
#EXT-X-STREAM-INF:PROGRAM-ID=1,BANDWIDTH=1427999,CODECS="avc1.4D401F,mp4a.40.2",RESOLUTION=852x480,VIDEO="480p30",FRAME-RATE=30.000
https://video.example/480p30/index.m3u8
#EXT-X-STREAM-INF:PROGRAM-ID=1,BANDWIDTH=630000,CODECS="avc1.4D401F,mp4a.40.2",RESOLUTION=640x360,VIDEO="360p30",FRAME-RATE=30.000
https://video.example/360p30/index.m3u8
#EXT-X-STREAM-INF:PROGRAM-ID=1,BANDWIDTH=128000,CODECS="mp4a.40.2",VIDEO="audio_only"
https://video.example/audio_only/index.m3u8
`

func TestParseManifestOrder(t *testing.T) {
	manifest, err := ParseManifest(samplePlaylist)
	require.NoError(t, err)

	require.Equal(t, []string{"Source", "High", "Medium", "Low", "Audio Only"}, manifest.Labels())
	require.Equal(t, "https://video.example/chunked/index.m3u8", manifest.Qualities[0].URL)
}

func TestParseManifestRejectsNonHLS(t *testing.T) {
	_, err := ParseManifest("<html>not a playlist</html>")
	require.Error(t, err)
}

func TestParseManifestIdempotent(t *testing.T) {
	first, err := ParseManifest(samplePlaylist)
	require.NoError(t, err)

	second, err := ParseManifest(samplePlaylist)
	require.NoError(t, err)

	require.Equal(t, first.Labels(), second.Labels())
	require.Equal(t, first.Qualities, second.Qualities)
}

func TestParseManifestDuplicateLabelsKeepFirst(t *testing.T) {
	playlist := `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=1,RESOLUTION=1920x1080
https://video.example/a.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2,RESOLUTION=1920x1080
https://video.example/b.m3u8
`

	manifest, err := ParseManifest(playlist)
	require.NoError(t, err)

	require.Equal(t, []string{"Source"}, manifest.Labels())
	require.Equal(t, "https://video.example/a.m3u8", manifest.Qualities[0].URL)
}

func TestResolveSymbolicQualities(t *testing.T) {
	manifest, err := ParseManifest(samplePlaylist)
	require.NoError(t, err)

	url, err := manifest.Resolve("best")
	require.NoError(t, err)
	require.Equal(t, "https://video.example/chunked/index.m3u8", url)

	url, err = manifest.Resolve("high")
	require.NoError(t, err)
	require.Equal(t, "https://video.example/720p60/index.m3u8", url)

	url, err = manifest.Resolve("medium")
	require.NoError(t, err)
	require.Equal(t, "https://video.example/480p30/index.m3u8", url)

	url, err = manifest.Resolve("low")
	require.NoError(t, err)
	require.Equal(t, "https://video.example/360p30/index.m3u8", url)
}

func TestResolveUnavailableQualityFallsBack(t *testing.T) {
	manifest, err := ParseManifest(samplePlaylist)
	require.NoError(t, err)

	// No 160p rendition exists; the first (best) entry wins.
	url, err := manifest.Resolve("mobile")
	require.NoError(t, err)
	require.Equal(t, "https://video.example/chunked/index.m3u8", url)
}

func TestResolveBestWithTwoRenditions(t *testing.T) {
	playlist := `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=6000000,RESOLUTION=1920x1080
https://video.example/1080.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=630000,RESOLUTION=640x360
https://video.example/360.m3u8
`

	manifest, err := ParseManifest(playlist)
	require.NoError(t, err)

	url, err := manifest.Resolve("best")
	require.NoError(t, err)
	require.Equal(t, "https://video.example/1080.m3u8", url)
}

func TestURLByLabelSubstringMatch(t *testing.T) {
	manifest, err := ParseManifest(samplePlaylist)
	require.NoError(t, err)

	url, ok := manifest.URLByLabel("audio")
	require.True(t, ok)
	require.Equal(t, "https://video.example/audio_only/index.m3u8", url)

	url, ok = manifest.URLByLabel("SOURCE")
	require.True(t, ok)
	require.Equal(t, "https://video.example/chunked/index.m3u8", url)

	_, ok = manifest.URLByLabel("4k")
	require.False(t, ok)
}

func TestResolveEmptyManifest(t *testing.T) {
	manifest := &Manifest{}

	_, err := manifest.Resolve("best")
	require.Error(t, err)
}
