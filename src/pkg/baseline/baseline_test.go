package baseline

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gh-nvat/layoutchk/src/pkg/models"
	"github.com/gh-nvat/layoutchk/src/pkg/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, w, h int, fill color.Color, level png.CompressionLevel) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, fill)
		}
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: level}
	require.NoError(t, enc.Encode(&buf, img))
	return buf.Bytes()
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func newTestLayout(t *testing.T) *Layout {
	t.Helper()
	layout, err := NewLayout(t.TempDir(), models.RebaselineConfig{})
	require.NoError(t, err)
	return layout
}

func TestFilenames(t *testing.T) {
	assert.Equal(t, "fast/dom/a-expected.txt", ExpectedFilename("fast/dom/a.html", models.SuffixText))
	assert.Equal(t, "svg/b-expected.checksum", ExpectedFilename("svg/b.svg", models.SuffixImageHash))
	assert.Equal(t, "layout-test-results/fast/a-actual.png", ActualArchiveName("fast/a.html", models.SuffixImage))
}

func TestLayoutFallbackChain(t *testing.T) {
	layout := newTestLayout(t)
	root := layout.LayoutTestsDir

	chain := layout.FallbackChain("fast/a.html", models.SuffixText, platform.WinXP)
	var paths []string
	for _, loc := range chain {
		paths = append(paths, loc.Path())
	}
	assert.Equal(t, []string{
		filepath.Join(root, "platform/chromium-win-xp/fast/a-expected.txt"),
		filepath.Join(root, "platform/chromium-win/fast/a-expected.txt"),
		filepath.Join(root, "platform/chromium-mac/fast/a-expected.txt"),
		filepath.Join(root, "fast/a-expected.txt"),
	}, paths)

	target := layout.TargetPath("fast/a.html", models.SuffixText, platform.WinXP)
	assert.Equal(t, paths[0], target)
	assert.Len(t, StripOwn(chain, strings.ToUpper(target)), 3)
}

func TestLayoutConfigOverrides(t *testing.T) {
	root := t.TempDir()
	layout, err := NewLayout(root, models.RebaselineConfig{
		BaselineDirTemplate: "baselines/[PLATFORM]",
		Platforms: map[string]models.PlatformConfig{
			"linux": {Fallback: []string{"win"}},
			"mac":   {BaselineDir: "/abs/mac"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "baselines/win"), layout.BaselineDir(platform.Win))
	assert.Equal(t, "/abs/mac", layout.BaselineDir(platform.Mac))

	chain := layout.FallbackChain("a.html", models.SuffixImage, platform.Linux)
	require.Len(t, chain, 3)
	assert.Equal(t, filepath.Join(root, "baselines/win"), chain[1].Dir)
}

func TestLayoutConfigErrors(t *testing.T) {
	_, err := NewLayout(t.TempDir(), models.RebaselineConfig{BaselineDirTemplate: "platform/[SERVICE]"})
	assert.Error(t, err)

	_, err = NewLayout(t.TempDir(), models.RebaselineConfig{
		Platforms: map[string]models.PlatformConfig{"win": {Fallback: []string{"beos"}}},
	})
	assert.ErrorIs(t, err, platform.ErrUnknownPlatform)

	_, err = NewLayout(t.TempDir(), models.RebaselineConfig{
		Platforms: map[string]models.PlatformConfig{"win": {Fallback: []string{"win"}}},
	})
	assert.Error(t, err)
}

func TestPixelComparator(t *testing.T) {
	red := color.RGBA{R: 255, A: 255}
	blue := color.RGBA{B: 255, A: 255}
	cmp := PixelComparator{}

	a := encodePNG(t, 4, 4, red, png.DefaultCompression)
	sameDifferentEncoding := encodePNG(t, 4, 4, red, png.NoCompression)
	other := encodePNG(t, 4, 4, blue, png.DefaultCompression)
	bigger := encodePNG(t, 5, 4, red, png.DefaultCompression)

	assert.False(t, cmp.DiffersAsImage(a, a, 0))
	assert.False(t, cmp.DiffersAsImage(a, sameDifferentEncoding, 0))
	assert.True(t, cmp.DiffersAsImage(a, other, 0))
	assert.True(t, cmp.DiffersAsImage(a, bigger, 100))
	assert.True(t, cmp.DiffersAsImage([]byte("not a png"), []byte("also not"), 0))
	assert.False(t, cmp.DiffersAsImage([]byte("raw"), []byte("raw"), 0))

	assert.True(t, cmp.DiffersAsText([]byte("a\n"), []byte("b\n")))
	assert.False(t, cmp.DiffersAsText([]byte("same"), []byte("same")))
}

func TestPixelComparatorTolerance(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	var base bytes.Buffer
	require.NoError(t, png.Encode(&base, img))

	img.Set(0, 0, color.RGBA{A: 255})
	var oneOff bytes.Buffer
	require.NoError(t, png.Encode(&oneOff, img))

	cmp := PixelComparator{}
	// one pixel of four differs: 25%
	assert.True(t, cmp.DiffersAsImage(base.Bytes(), oneOff.Bytes(), 0))
	assert.True(t, cmp.DiffersAsImage(base.Bytes(), oneOff.Bytes(), 24.9))
	assert.False(t, cmp.DiffersAsImage(base.Bytes(), oneOff.Bytes(), 25))
}

func TestResolveDuplicate(t *testing.T) {
	const test = "fast/a.html"
	newBytes := []byte("layer at (0,0) size 800x600\n")

	tests := []struct {
		name         string
		setup        func(t *testing.T, layout *Layout)
		want         Decision
		wantFallback string // platform whose dir holds the fallback, "" for generic, "-" for none
	}{
		{
			name:         "nothing to fall back to",
			setup:        func(t *testing.T, layout *Layout) {},
			want:         Keep,
			wantFallback: "-",
		},
		{
			name: "identical generic baseline",
			setup: func(t *testing.T, layout *Layout) {
				writeFile(t, filepath.Join(layout.LayoutTestsDir, "fast/a-expected.txt"), newBytes)
			},
			want:         Redundant,
			wantFallback: "",
		},
		{
			name: "identical mac baseline",
			setup: func(t *testing.T, layout *Layout) {
				writeFile(t, layout.TargetPath(test, models.SuffixText, platform.Mac), newBytes)
			},
			want:         Redundant,
			wantFallback: "mac",
		},
		{
			name: "first fallback differs, later matches: keep",
			setup: func(t *testing.T, layout *Layout) {
				writeFile(t, layout.TargetPath(test, models.SuffixText, platform.Win), []byte("different"))
				writeFile(t, layout.TargetPath(test, models.SuffixText, platform.Mac), newBytes)
			},
			want:         Keep,
			wantFallback: "win",
		},
		{
			name: "own existing baseline is ignored",
			setup: func(t *testing.T, layout *Layout) {
				writeFile(t, layout.TargetPath(test, models.SuffixText, platform.WinXP), newBytes)
				writeFile(t, filepath.Join(layout.LayoutTestsDir, "fast/a-expected.txt"), []byte("old"))
			},
			want:         Keep,
			wantFallback: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			layout := newTestLayout(t)
			tt.setup(t, layout)

			resolver := NewResolver(NewFSStore(), PixelComparator{}, 0)
			target := layout.TargetPath(test, models.SuffixText, platform.WinXP)
			chain := layout.FallbackChain(test, models.SuffixText, platform.WinXP)
			candidate := models.BaselineCandidate{Test: test, Suffix: models.SuffixText, Platform: platform.WinXP, Content: newBytes}

			// passing the unstripped chain must not change the answer
			for _, c := range [][]Location{StripOwn(chain, target), chain} {
				res, err := resolver.ResolveDuplicate(candidate, target, c)
				require.NoError(t, err)
				assert.Equal(t, tt.want, res.Decision)

				switch tt.wantFallback {
				case "-":
					assert.Empty(t, res.FallbackPath)
				case "":
					assert.Equal(t, filepath.Join(layout.LayoutTestsDir, "fast/a-expected.txt"), res.FallbackPath)
				default:
					assert.Equal(t, layout.TargetPath(test, models.SuffixText, platform.Platform(tt.wantFallback)), res.FallbackPath)
				}
			}
		})
	}
}

func TestResolveDuplicateImage(t *testing.T) {
	layout := newTestLayout(t)
	const test = "svg/a.svg"
	macPNG := encodePNG(t, 3, 3, color.White, png.BestCompression)
	writeFile(t, layout.TargetPath(test, models.SuffixImage, platform.Mac), macPNG)

	resolver := NewResolver(NewFSStore(), PixelComparator{}, 0)
	target := layout.TargetPath(test, models.SuffixImage, platform.Win)
	chain := StripOwn(layout.FallbackChain(test, models.SuffixImage, platform.Win), target)

	same := models.BaselineCandidate{Test: test, Suffix: models.SuffixImage, Platform: platform.Win,
		Content: encodePNG(t, 3, 3, color.White, png.NoCompression)}
	res, err := resolver.ResolveDuplicate(same, target, chain)
	require.NoError(t, err)
	assert.Equal(t, Redundant, res.Decision)

	changed := same
	changed.Content = encodePNG(t, 3, 3, color.Black, png.NoCompression)
	res, err = resolver.ResolveDuplicate(changed, target, chain)
	require.NoError(t, err)
	assert.Equal(t, Keep, res.Decision)
}

func TestResolveDuplicateIdempotent(t *testing.T) {
	layout := newTestLayout(t)
	const test = "a.html"
	writeFile(t, filepath.Join(layout.LayoutTestsDir, "a-expected.txt"), []byte("x"))

	resolver := NewResolver(NewFSStore(), PixelComparator{}, 0)
	target := layout.TargetPath(test, models.SuffixText, platform.Linux)
	chain := StripOwn(layout.FallbackChain(test, models.SuffixText, platform.Linux), target)
	candidate := models.BaselineCandidate{Test: test, Suffix: models.SuffixText, Platform: platform.Linux, Content: []byte("x")}

	first, err := resolver.ResolveDuplicate(candidate, target, chain)
	require.NoError(t, err)
	second, err := resolver.ResolveDuplicate(candidate, target, chain)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRedundantDeletionKeepsContentReachable(t *testing.T) {
	layout := newTestLayout(t)
	store := NewFSStore()
	const test = "fast/b.html"
	content := []byte("same everywhere\n")

	macPath := layout.TargetPath(test, models.SuffixText, platform.Mac)
	linuxPath := layout.TargetPath(test, models.SuffixText, platform.Linux)
	writeFile(t, macPath, content)
	writeFile(t, linuxPath, []byte("stale linux copy"))

	resolver := NewResolver(store, PixelComparator{}, 0)
	chain := layout.FallbackChain(test, models.SuffixText, platform.Linux)
	res, err := resolver.ResolveDuplicate(models.BaselineCandidate{Test: test, Suffix: models.SuffixText, Platform: platform.Linux, Content: content},
		linuxPath, StripOwn(chain, linuxPath))
	require.NoError(t, err)
	require.Equal(t, Redundant, res.Decision)

	require.NoError(t, store.Delete(linuxPath))
	loc, ok := Lookup(store, chain)
	require.True(t, ok)
	got, err := store.Read(loc.Path())
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

type failingReadStore struct {
	FSStore
}

func (failingReadStore) Exists(path string) bool { return true }

func (failingReadStore) Read(path string) ([]byte, error) {
	return nil, errors.New("permission denied")
}

func TestResolveDuplicateIOError(t *testing.T) {
	layout := newTestLayout(t)
	resolver := NewResolver(&failingReadStore{}, PixelComparator{}, 0)
	target := layout.TargetPath("a.html", models.SuffixText, platform.Win)
	chain := StripOwn(layout.FallbackChain("a.html", models.SuffixText, platform.Win), target)

	res, err := resolver.ResolveDuplicate(models.BaselineCandidate{Test: "a.html", Suffix: models.SuffixText, Content: []byte("x")}, target, chain)
	require.Error(t, err)
	assert.Equal(t, Keep, res.Decision)

	var ioErr *ResolutionIOError
	require.True(t, errors.As(err, &ioErr))
	assert.Equal(t, chain[0].Path(), ioErr.Path)
}

func TestFSStoreMove(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "staging", "x.txt")
	dst := filepath.Join(dir, "deep", "nested", "x.txt")
	writeFile(t, src, []byte("moved"))

	store := NewFSStore()
	require.NoError(t, store.Move(src, dst))
	assert.False(t, store.Exists(src))
	got, err := store.Read(dst)
	require.NoError(t, err)
	assert.Equal(t, []byte("moved"), got)

	require.NoError(t, store.Delete(dst))
	require.NoError(t, store.Delete(dst), "deleting a missing file is not an error")
}
