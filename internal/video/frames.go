package video

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png"
	"os"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Frame is one output frame. A frame with several paths is a composite
// stored as separate bands; the first three are mapped to red, green and
// blue.
type Frame struct {
	Date  time.Time
	Paths []string
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}

// loadFrame decodes a frame, blending composite bands into one RGB image.
func loadFrame(fr Frame) (image.Image, error) {
	if len(fr.Paths) == 0 {
		return nil, fmt.Errorf("frame %s has no images", fr.Date.Format("2006-01-02"))
	}
	first, err := loadImage(fr.Paths[0])
	if err != nil {
		return nil, err
	}
	if len(fr.Paths) == 1 {
		return first, nil
	}

	bands := []image.Image{first}
	for _, p := range fr.Paths[1:] {
		img, err := loadImage(p)
		if err != nil {
			return nil, err
		}
		bands = append(bands, img)
	}
	return blend(bands, first.Bounds().Size()), nil
}

// blend maps the luminance of up to three bands onto the R, G and B
// channels of one image of the given size.
func blend(bands []image.Image, size image.Point) *image.RGBA {
	rect := image.Rect(0, 0, size.X, size.Y)
	grays := make([]*image.Gray, 3)
	for i := range grays {
		grays[i] = image.NewGray(rect)
		if i < len(bands) {
			draw.ApproxBiLinear.Scale(grays[i], rect, bands[i], bands[i].Bounds(), draw.Src, nil)
		}
	}

	out := image.NewRGBA(rect)
	for y := 0; y < size.Y; y++ {
		for x := 0; x < size.X; x++ {
			out.SetRGBA(x, y, color.RGBA{
				R: grays[0].GrayAt(x, y).Y,
				G: grays[1].GrayAt(x, y).Y,
				B: grays[2].GrayAt(x, y).Y,
				A: 0xff,
			})
		}
	}
	return out
}

// evenSize rounds dimensions down to even numbers, which yuv420p needs.
func evenSize(p image.Point) image.Point {
	return image.Pt(p.X&^1, p.Y&^1)
}

// normalize scales img to size, returning it unchanged when it already
// matches.
func normalize(img image.Image, size image.Point) *image.RGBA {
	rect := image.Rect(0, 0, size.X, size.Y)
	out := image.NewRGBA(rect)
	if img.Bounds().Size() == size {
		draw.Copy(out, image.Point{}, img, img.Bounds(), draw.Src, nil)
		return out
	}
	draw.CatmullRom.Scale(out, rect, img, img.Bounds(), draw.Src, nil)
	return out
}

// stamp writes text into the lower left corner. The 7x13 bitmap face is
// rendered small and scaled up with the frame width.
func stamp(img *image.RGBA, text string) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil() + 8
	height := face.Metrics().Height.Ceil() + 6

	label := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(label, label.Bounds(), image.NewUniform(color.RGBA{0, 0, 0, 160}), image.Point{}, draw.Src)
	d := &font.Drawer{
		Dst:  label,
		Src:  image.NewUniform(color.White),
		Face: face,
		Dot:  fixed.P(4, 3+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)

	scale := img.Bounds().Dx() / 400
	if scale < 1 {
		scale = 1
	}
	margin := 6 * scale
	dst := image.Rect(margin, img.Bounds().Dy()-margin-height*scale, margin+width*scale, img.Bounds().Dy()-margin)
	draw.NearestNeighbor.Scale(img, dst, label, label.Bounds(), draw.Over, nil)
}

// stageFrames writes frames into dir as numbered JPEGs normalized to the
// first frame's size. Unreadable frames are skipped and reported.
func stageFrames(dir string, frames []Frame, caption string, label bool) (FrameSet, []error, error) {
	set := FrameSet{Dir: dir}
	var skipped []error
	var size image.Point

	for _, fr := range frames {
		img, err := loadFrame(fr)
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		if set.Count == 0 {
			size = evenSize(img.Bounds().Size())
			if size.X == 0 || size.Y == 0 {
				skipped = append(skipped, fmt.Errorf("frame %s is too small", fr.Date.Format("2006-01-02")))
				continue
			}
			set.Width, set.Height = size.X, size.Y
		}

		out := normalize(img, size)
		if label {
			text := fr.Date.UTC().Format("2006-01-02")
			if caption != "" {
				text += "  " + caption
			}
			stamp(out, text)
		}
		if err := writeJPEG(set.Path(set.Count), out); err != nil {
			return set, skipped, err
		}
		set.Count++
	}
	return set, skipped, nil
}

func writeJPEG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create frame %s: %w", path, err)
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 95}); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode frame %s: %w", path, err)
	}
	return f.Close()
}
