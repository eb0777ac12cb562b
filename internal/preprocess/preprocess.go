package preprocess

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/Brownie44l1/skincheck-api/internal/tensor"
)

// DecodeError reports a buffer that is not a supported image encoding.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid image: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode decodes an image buffer. Supported: JPEG, PNG, GIF, WebP, BMP, TIFF.
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", &DecodeError{Err: errors.New("empty buffer")}
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", &DecodeError{Err: err}
	}
	return img, format, nil
}

// ToRGB converts any colour model to opaque 8-bit RGB. Alpha is dropped,
// not composited, so the colour channels keep their straight values.
func ToRGB(img image.Image) *image.NRGBA {
	out := imaging.Clone(img)
	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = 0xff
	}
	return out
}

// Resize scales img to size x size, ignoring the aspect ratio.
func Resize(img image.Image, size int) image.Image {
	return resize.Resize(uint(size), uint(size), img, resize.Bicubic)
}

// Pixels returns the HWC 8-bit RGB values of img.
func Pixels(img image.Image) []uint8 {
	rgb := ToRGB(img)
	b := rgb.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]uint8, 0, w*h*tensor.Channels)
	for y := 0; y < h; y++ {
		row := rgb.Pix[y*rgb.Stride : y*rgb.Stride+w*4]
		for x := 0; x < w; x++ {
			out = append(out, row[x*4], row[x*4+1], row[x*4+2])
		}
	}
	return out
}

// Image decodes data and returns its 224x224 RGB pixels, unnormalized.
func Image(data []byte) ([]uint8, error) {
	img, _, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return Pixels(Resize(ToRGB(img), tensor.ImageSize)), nil
}

// Rescale writes pixels divided by 255 into dst.
func Rescale(dst []float32, pixels []uint8) {
	for i, p := range pixels {
		dst[i] = float32(p) / 255
	}
}

// Preprocess turns an uploaded buffer into a (1,224,224,3) batch in [0,1].
func Preprocess(data []byte) (*tensor.Batch, error) {
	pixels, err := Image(data)
	if err != nil {
		return nil, err
	}
	batch := tensor.NewBatch(1)
	Rescale(batch.Image(0), pixels)
	return batch, nil
}
