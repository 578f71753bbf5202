// Package tiffio reads microscopy volumes stored as single-plane TIFF files
// and writes rendered overlay stacks.
//
// Only the first page of a TIFF file is decoded. A multi-page T/Z/C hyperstack
// has to be split into planes first, e.g. Fiji "Image > Stacks > Stack to Images"
// or `tiffsplit`, renaming the pages to t{T}_z{Z}_c{C}.tif (zero-based).
package tiffio

import (
	"bufio"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/LdDl/spindle-track/spindle"
	"github.com/pkg/errors"
	"golang.org/x/image/tiff"
)

var (
	// ErrIncompleteVolume is returned when some (t, z, c) plane is missing or has wrong size
	ErrIncompleteVolume = errors.New("incomplete volume")
	// ErrNoPlanes is returned when input directory holds no plane files
	ErrNoPlanes = errors.New("no plane files found")
)

var planeName = regexp.MustCompile(`^t(\d+)_z(\d+)_c(\d+)\.tiff?$`)

// PlaneFileName returns canonical file name of plane (t, z, c)
func PlaneFileName(t, z, c int) string {
	return "t" + strconv.Itoa(t) + "_z" + strconv.Itoa(z) + "_c" + strconv.Itoa(c) + ".tif"
}

type planeKey struct {
	t, z, c int
}

// LoadVolume assembles every t{T}_z{Z}_c{C}.tif file of dir into a volume.
// Indices are zero-based and dense: shape is (max T + 1, max Z + 1, max C + 1).
// All planes must have the same size. Other files are ignored.
func LoadVolume(dir string) (*spindle.Volume, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "can't read input directory %s", dir)
	}
	files := make(map[planeKey]string)
	shape := planeKey{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := planeName.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		key := planeKey{}
		key.t, _ = strconv.Atoi(m[1])
		key.z, _ = strconv.Atoi(m[2])
		key.c, _ = strconv.Atoi(m[3])
		files[key] = filepath.Join(dir, entry.Name())
		shape.t = max(shape.t, key.t+1)
		shape.z = max(shape.z, key.z+1)
		shape.c = max(shape.c, key.c+1)
	}
	if len(files) == 0 {
		return nil, errors.Wrapf(ErrNoPlanes, "directory %s", dir)
	}
	if len(files) != shape.t*shape.z*shape.c {
		return nil, errors.Wrapf(ErrIncompleteVolume, "found %d planes, expected %dx%dx%d", len(files), shape.t, shape.z, shape.c)
	}

	var vol *spindle.Volume
	for t := 0; t < shape.t; t++ {
		for z := 0; z < shape.z; z++ {
			for c := 0; c < shape.c; c++ {
				path, ok := files[planeKey{t, z, c}]
				if !ok {
					return nil, errors.Wrapf(ErrIncompleteVolume, "missing %s", PlaneFileName(t, z, c))
				}
				img, err := readImage(path)
				if err != nil {
					return nil, err
				}
				bounds := img.Bounds()
				if vol == nil {
					vol, err = spindle.NewVolume(shape.t, shape.z, shape.c, bounds.Dy(), bounds.Dx())
					if err != nil {
						return nil, err
					}
				}
				if bounds.Dy() != vol.Rows || bounds.Dx() != vol.Cols {
					return nil, errors.Wrapf(ErrIncompleteVolume, "%s is %dx%d, expected %dx%d", path, bounds.Dy(), bounds.Dx(), vol.Rows, vol.Cols)
				}
				copyPlane(vol.Plane(t, z, c), img)
			}
		}
	}
	return vol, nil
}

func readImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "can't open %s", path)
	}
	defer f.Close()
	img, err := tiff.Decode(bufio.NewReader(f))
	if err != nil {
		return nil, errors.Wrapf(err, "can't decode %s", path)
	}
	return img, nil
}

// copyPlane writes intensities of img into plane (row-major). Non-gray images are converted to 16-bit luminance
func copyPlane(plane []float64, img image.Image) {
	bounds := img.Bounds()
	cols := bounds.Dx()
	switch src := img.(type) {
	case *image.Gray16:
		for r := 0; r < bounds.Dy(); r++ {
			for c := 0; c < cols; c++ {
				plane[r*cols+c] = float64(src.Gray16At(bounds.Min.X+c, bounds.Min.Y+r).Y)
			}
		}
	case *image.Gray:
		for r := 0; r < bounds.Dy(); r++ {
			for c := 0; c < cols; c++ {
				plane[r*cols+c] = float64(src.GrayAt(bounds.Min.X+c, bounds.Min.Y+r).Y)
			}
		}
	default:
		for r := 0; r < bounds.Dy(); r++ {
			for c := 0; c < cols; c++ {
				gray := color.Gray16Model.Convert(img.At(bounds.Min.X+c, bounds.Min.Y+r)).(color.Gray16)
				plane[r*cols+c] = float64(gray.Y)
			}
		}
	}
}

// WriteVolume stores every plane of vol in dir as 16-bit gray TIFF named by PlaneFileName.
// Values are rounded and clamped to [0, 65535].
func WriteVolume(dir string, vol *spindle.Volume) error {
	if err := vol.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "can't create directory %s", dir)
	}
	for t := 0; t < vol.Times; t++ {
		for z := 0; z < vol.Slices; z++ {
			for c := 0; c < vol.Channels; c++ {
				img := image.NewGray16(image.Rect(0, 0, vol.Cols, vol.Rows))
				for idx, v := range vol.Plane(t, z, c) {
					img.SetGray16(idx%vol.Cols, idx/vol.Cols, color.Gray16{Y: clampUint16(v)})
				}
				if err := WriteTIFF(filepath.Join(dir, PlaneFileName(t, z, c)), img); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func clampUint16(v float64) uint16 {
	switch {
	case v <= 0:
		return 0
	case v >= 65535:
		return 65535
	default:
		return uint16(v + 0.5)
	}
}

// WriteTIFF encodes img as deflate-compressed TIFF
func WriteTIFF(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "can't create %s", path)
	}
	w := bufio.NewWriter(f)
	if err := tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		f.Close()
		return errors.Wrapf(err, "can't encode %s", path)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return errors.Wrapf(err, "can't write %s", path)
	}
	return f.Close()
}

// overlayPalette holds 254 gray levels plus pure red and white
var overlayPalette = func() color.Palette {
	p := make(color.Palette, 0, 256)
	for i := 0; i < 254; i++ {
		y := uint8(i * 255 / 253)
		p = append(p, color.RGBA{R: y, G: y, B: y, A: 255})
	}
	p = append(p, color.RGBA{R: 255, A: 255}, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	return p
}()

// WriteOverlayStack writes frames as a multi-frame GIF (one image per frame, in order)
// plus one TIFF per frame named {base}_{frameIndex}.tif next to it.
// frameIndices must have the same length as frames.
func WriteOverlayStack(dir, base string, frames []*image.RGBA, frameIndices []int, delay int) error {
	if len(frames) != len(frameIndices) {
		return errors.Errorf("got %d frames but %d frame indices", len(frames), len(frameIndices))
	}
	if len(frames) == 0 {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "can't create directory %s", dir)
	}

	anim := &gif.GIF{
		Image: make([]*image.Paletted, 0, len(frames)),
		Delay: make([]int, 0, len(frames)),
	}
	for i, frame := range frames {
		paletted := image.NewPaletted(frame.Bounds(), overlayPalette)
		draw.Draw(paletted, paletted.Bounds(), frame, frame.Bounds().Min, draw.Src)
		anim.Image = append(anim.Image, paletted)
		anim.Delay = append(anim.Delay, delay)

		path := filepath.Join(dir, base+"_"+strconv.Itoa(frameIndices[i])+".tif")
		if err := WriteTIFF(path, frame); err != nil {
			return err
		}
	}

	path := filepath.Join(dir, base+".gif")
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "can't create %s", path)
	}
	if err := gif.EncodeAll(f, anim); err != nil {
		f.Close()
		return errors.Wrapf(err, "can't encode %s", path)
	}
	return f.Close()
}
