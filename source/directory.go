package source

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/nvr-ai/go-detect/images"
	"github.com/pkg/errors"
)

// imageFile is one entry of an image sequence.
type imageFile struct {
	// Path is the path to the image file.
	Path string
	// Frame is the frame number parsed from a "frame-N" name, or -1.
	Frame int
}

// Directory plays the images of a directory as a video.
//
// Files named "frame-N.ext" are played in ascending N, followed by any other
// images in name order. Files are decoded lazily, one per call to Next.
type Directory struct {
	mu    sync.Mutex
	files []imageFile
	next  int
	loop  bool
}

// OpenDirectory lists the JPEG, PNG and BMP images in dir.
//
// Arguments:
//   - dir: Directory path containing image files.
//   - loop: Whether to restart from the first image after the last one.
//
// Returns:
//   - *Directory: The provider.
//   - error: An error if the directory cannot be read or holds no images.
//
// @example
// frames, err := OpenDirectory("./frames", true)
//
//	if err != nil {
//	    log.Fatal(err)
//	}
func OpenDirectory(dir string, loop bool) (*Directory, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read directory %s", dir)
	}

	var files []imageFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		switch ext {
		case ".jpg", ".jpeg", ".png", ".bmp":
			frame := -1
			if num, ok := strings.CutPrefix(strings.TrimSuffix(name, filepath.Ext(name)), "frame-"); ok {
				if n, err := strconv.Atoi(num); err == nil && n >= 0 {
					frame = n
				}
			}
			files = append(files, imageFile{Path: filepath.Join(dir, name), Frame: frame})
		}
	}
	if len(files) == 0 {
		return nil, errors.Errorf("no images in %s", dir)
	}

	sort.SliceStable(files, func(i, j int) bool {
		a, b := files[i], files[j]
		switch {
		case a.Frame >= 0 && b.Frame >= 0:
			return a.Frame < b.Frame
		case a.Frame >= 0 || b.Frame >= 0:
			return a.Frame >= 0
		}
		return a.Path < b.Path
	})

	return &Directory{files: files, loop: loop}, nil
}

// Len returns the number of images in the sequence.
func (d *Directory) Len() int {
	return len(d.files)
}

// Next implements Provider. Once the sequence is exhausted and looping is
// off, no frame is available. An image that fails to decode is skipped on the
// following call.
func (d *Directory) Next(ctx context.Context) (images.Frame, bool, error) {
	if err := ctx.Err(); err != nil {
		return images.Frame{}, false, err
	}

	d.mu.Lock()
	if d.next >= len(d.files) {
		if !d.loop {
			d.mu.Unlock()
			return images.Frame{}, false, nil
		}
		d.next = 0
	}
	file := d.files[d.next]
	d.next++
	d.mu.Unlock()

	frame, err := DecodeFile(file.Path)
	if err != nil {
		return images.Frame{}, false, err
	}
	return frame, true, nil
}
