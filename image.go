package main

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png"
	"strings"

	xdraw "golang.org/x/image/draw"
)

// tileHorizontally paints the source image twice side by side on a white
// canvas of 2*targetWidth x targetHeight. Cut paper sizes are physically
// produced by printing two copies on one full sheet and cutting it, so the
// composite must exist before the image is persisted or sent to the printer.
// A source that already matches the target dimensions is copied pixel for
// pixel; anything else is resampled to fill each half.
func tileHorizontally(src image.Image, targetWidth, targetHeight int) *image.RGBA {
	canvas := image.NewRGBA(image.Rect(0, 0, targetWidth*2, targetHeight))
	xdraw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, xdraw.Src)

	left := image.Rect(0, 0, targetWidth, targetHeight)
	right := image.Rect(targetWidth, 0, targetWidth*2, targetHeight)

	b := src.Bounds()
	if b.Dx() == targetWidth && b.Dy() == targetHeight {
		xdraw.Draw(canvas, left, src, b.Min, xdraw.Over)
		xdraw.Draw(canvas, right, src, b.Min, xdraw.Over)
		return canvas
	}

	xdraw.CatmullRom.Scale(canvas, left, src, b, xdraw.Over, nil)
	xdraw.CatmullRom.Scale(canvas, right, src, b, xdraw.Over, nil)
	return canvas
}

// decodeImageData decodes a base64 image payload, tolerating a data URL
// prefix ("data:image/jpeg;base64,....") as sent by the kiosk front-end.
func decodeImageData(data string) (image.Image, error) {
	if strings.HasPrefix(data, "data:") {
		if i := strings.IndexByte(data, ','); i >= 0 {
			data = data[i+1:]
		}
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 image: %w", err)
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	return img, nil
}

// encodeJPEGBase64 encodes an image at full print quality and returns a bare
// base64 string ready for the hardware agent's temp-image endpoint.
func encodeJPEGBase64(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: PrintJPEGQuality}); err != nil {
		return "", fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// isCutFrame reports whether a frame type requires the duplicate-and-tile
// transform before printing.
func isCutFrame(frameType string) bool {
	return frameType == FramePortraitCut || frameType == FrameLandscapeCut
}

// framesForOrientation returns the full and cut frame types for an
// orientation. Portrait is the default for anything unrecognized.
func framesForOrientation(orientation string) (full, cut string) {
	if orientation == OrientationLandscape {
		return FrameLandscapeFull, FrameLandscapeCut
	}
	return FramePortraitFull, FramePortraitCut
}
