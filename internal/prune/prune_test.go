package prune

// ============================================================================
// Prune 測試檔案
// 職責：驗證空白判斷、大小門檻、失敗計數與分批處理
// ============================================================================

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func transparentTile() image.Image {
	return image.NewNRGBA(image.Rect(0, 0, 256, 256))
}

func dotTile() image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, 256, 256))
	img.SetNRGBA(128, 128, color.NRGBA{R: 255, A: 255})
	return img
}

func noiseTile() image.Image {
	r := rand.New(rand.NewSource(1))
	img := image.NewNRGBA(image.Rect(0, 0, 256, 256))
	for i := range img.Pix {
		img.Pix[i] = byte(r.Intn(256))
	}
	return img
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestIsBlank(t *testing.T) {
	dir := t.TempDir()

	blankPath := filepath.Join(dir, "blank.png")
	writePNG(t, blankPath, transparentTile())
	ok, err := IsBlank(blankPath, DefaultSizeThreshold)
	require.NoError(t, err)
	assert.True(t, ok)

	dotPath := filepath.Join(dir, "dot.png")
	writePNG(t, dotPath, dotTile())
	info, err := os.Stat(dotPath)
	require.NoError(t, err)
	require.Less(t, info.Size(), int64(DefaultSizeThreshold), "fixture must pass the size gate")
	ok, err = IsBlank(dotPath, DefaultSizeThreshold)
	require.NoError(t, err)
	assert.False(t, ok, "one visible pixel keeps the tile")

	// 透明像素但 RGB 非零，不等於全透明參考影像
	tinted := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for i := 0; i < len(tinted.Pix); i += 4 {
		tinted.Pix[i] = 255
	}
	tintedPath := filepath.Join(dir, "tinted.png")
	writePNG(t, tintedPath, tinted)
	ok, err = IsBlank(tintedPath, DefaultSizeThreshold)
	require.NoError(t, err)
	assert.False(t, ok)

	// 調色盤影像：透明索引
	pal := image.NewPaletted(image.Rect(0, 0, 32, 32), color.Palette{color.NRGBA{}, color.NRGBA{G: 255, A: 255}})
	palPath := filepath.Join(dir, "palette.png")
	writePNG(t, palPath, pal)
	ok, err = IsBlank(palPath, DefaultSizeThreshold)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIsBlankSizeGate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blank.png")
	writePNG(t, path, transparentTile())

	ok, err := IsBlank(path, 10)
	require.NoError(t, err)
	assert.False(t, ok, "files above the threshold are never decoded")
}

func TestIsBlankDecodeError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.png")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o644))

	ok, err := IsBlank(path, DefaultSizeThreshold)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrTileDecode)

	_, err = IsBlank(filepath.Join(t.TempDir(), "missing.png"), DefaultSizeThreshold)
	assert.ErrorIs(t, err, ErrTileDecode)
}

func TestPrune(t *testing.T) {
	root := t.TempDir()
	blank1 := filepath.Join(root, "12", "100", "200.png")
	blank2 := filepath.Join(root, "12", "101", "200.PNG")
	dot := filepath.Join(root, "12", "100", "201.png")
	noise := filepath.Join(root, "13", "200", "400.png")
	broken := filepath.Join(root, "13", "200", "401.png")
	other := filepath.Join(root, "manifest.json")

	writePNG(t, blank1, transparentTile())
	writePNG(t, blank2, transparentTile())
	writePNG(t, dot, dotTile())
	writePNG(t, noise, noiseTile())
	require.NoError(t, os.WriteFile(broken, []byte("garbage"), 0o644))
	require.NoError(t, os.WriteFile(other, []byte("{}"), 0o644))

	p := New(Config{BatchSize: 2, Workers: 3, Logger: zaptest.NewLogger(t).Sugar()})
	sum, err := p.Prune(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, Summary{
		Scanned:      5,
		Removed:      2,
		SkippedLarge: 1,
		DecodeFailed: 1,
		Batches:      3,
	}, sum)

	assert.False(t, exists(blank1))
	assert.False(t, exists(blank2))
	assert.True(t, exists(dot))
	assert.True(t, exists(noise))
	assert.True(t, exists(broken), "unreadable tiles are kept")
	assert.True(t, exists(other))
}

func TestPruneEmptyDir(t *testing.T) {
	sum, err := New(Config{}).Prune(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Summary{}, sum)
}

func TestPruneMissingDir(t *testing.T) {
	_, err := New(Config{}).Prune(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestPruneCancelledBeforeFirstBatch(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "0", "0", "0.png")
	writePNG(t, path, transparentTile())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Config{}).Prune(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, exists(path))
}

func TestWorkerCount(t *testing.T) {
	assert.Equal(t, 7, New(Config{Workers: 7}).WorkerCount())

	n := New(Config{MaxWorkers: 2, Multiplier: 4}).WorkerCount()
	assert.LessOrEqual(t, n, 2)
	assert.GreaterOrEqual(t, n, 1)
}
