package prune

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"

	// 註冊解碼器
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	// ErrTileDecode 圖磚無法讀取或解碼
	ErrTileDecode = errors.New("prune: tile decode failed")
	// ErrTileDelete 空白圖磚無法刪除
	ErrTileDelete = errors.New("prune: tile delete failed")
)

// verdict 單一圖磚的判斷結果
type verdict int

const (
	notBlank verdict = iota
	tooLarge
	blank
)

// IsBlank 判斷圖磚是否完全透明
//
// 檔案大於 threshold 位元組時直接判定為非空白（不解碼）。
// 否則解碼後與同尺寸、全為 (0,0,0,0) 的影像逐像素精確比較。
// 解碼失敗時回傳 false 與 ErrTileDecode。
func IsBlank(path string, threshold int64) (bool, error) {
	v, err := inspect(path, threshold)
	return v == blank, err
}

func inspect(path string, threshold int64) (verdict, error) {
	info, err := os.Stat(path)
	if err != nil {
		return notBlank, fmt.Errorf("%w: %s: %v", ErrTileDecode, path, err)
	}
	if info.Size() > threshold {
		return tooLarge, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return notBlank, fmt.Errorf("%w: %s: %v", ErrTileDecode, path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return notBlank, fmt.Errorf("%w: %s: %v", ErrTileDecode, path, err)
	}
	if isTransparent(img) {
		return blank, nil
	}
	return notBlank, nil
}

// isTransparent 每個像素轉為 straight RGBA 後是否皆為 0
func isTransparent(img image.Image) bool {
	switch m := img.(type) {
	case *image.NRGBA:
		return allZero(m.Pix, m.Stride, m.Rect.Dx()*4, m.Rect.Dy())
	case *image.RGBA:
		return allZero(m.Pix, m.Stride, m.Rect.Dx()*4, m.Rect.Dy())
	}

	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			if c != (color.NRGBA{}) {
				return false
			}
		}
	}
	return true
}

func allZero(pix []byte, stride, rowBytes, rows int) bool {
	for y := 0; y < rows; y++ {
		row := pix[y*stride : y*stride+rowBytes]
		for _, v := range row {
			if v != 0 {
				return false
			}
		}
	}
	return true
}
