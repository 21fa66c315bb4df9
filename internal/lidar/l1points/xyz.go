package l1points

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"strings"

	"github.com/banshee-data/lidar2map/internal/fsutil"
	"github.com/paulmach/orb"
)

// XYZOpener reads whitespace or comma separated text point files:
//
//	x y z [intensity [return_number [classification]]]
//
// Lines starting with '#' are comments; a "# epsg:NNNN" comment sets the
// CRS. Missing trailing columns default to intensity 0, return 1 and
// classification 2 (ground), which suits bare-earth exports.
type XYZOpener struct {
	FS   fsutil.FileSystem
	Path string
}

// NewXYZOpener returns an opener for path on fsys.
func NewXYZOpener(fsys fsutil.FileSystem, path string) *XYZOpener {
	return &XYZOpener{FS: fsys, Path: path}
}

func (o *XYZOpener) Name() string { return o.Path }

// Open scans the file once for the header, then reopens it for streaming.
func (o *XYZOpener) Open() (Reader, error) {
	header, err := o.scanHeader()
	if err != nil {
		return nil, err
	}
	f, err := o.FS.Open(o.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", o.Path, err)
	}
	return &xyzReader{header: header, file: f, scanner: newScanner(f), path: o.Path}, nil
}

func (o *XYZOpener) scanHeader() (Header, error) {
	f, err := o.FS.Open(o.Path)
	if err != nil {
		return Header{}, fmt.Errorf("open %s: %w", o.Path, err)
	}
	defer f.Close()

	var h Header
	first := true
	sc := newScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		if strings.HasPrefix(text, "#") {
			if epsg, ok := parseEPSGComment(text); ok {
				h.EPSG = epsg
			}
			continue
		}
		p, err := parseXYZLine(text)
		if err != nil {
			return Header{}, fmt.Errorf("%s:%d: %w", o.Path, line, err)
		}
		if first {
			h.Bounds = orb.Bound{Min: p.XY(), Max: p.XY()}
			first = false
		} else {
			h.Bounds = h.Bounds.Extend(p.XY())
		}
		h.PointCount++
	}
	if err := sc.Err(); err != nil {
		return Header{}, fmt.Errorf("scan %s: %w", o.Path, err)
	}
	if h.PointCount == 0 {
		return Header{}, fmt.Errorf("%s: no points", o.Path)
	}
	return h, nil
}

type xyzReader struct {
	header  Header
	file    fs.File
	scanner *bufio.Scanner
	path    string
	line    int
}

func (r *xyzReader) Header() Header { return r.header }

func (r *xyzReader) Next() (Point, error) {
	for r.scanner.Scan() {
		r.line++
		text := strings.TrimSpace(r.scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		p, err := parseXYZLine(text)
		if err != nil {
			return Point{}, fmt.Errorf("%s:%d: %w", r.path, r.line, err)
		}
		return p, nil
	}
	if err := r.scanner.Err(); err != nil {
		return Point{}, fmt.Errorf("scan %s: %w", r.path, err)
	}
	return Point{}, io.EOF
}

func (r *xyzReader) Close() error { return r.file.Close() }

func newScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	return sc
}

func parseEPSGComment(text string) (int, bool) {
	body := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(text, "#")))
	if !strings.HasPrefix(body, "epsg:") {
		return 0, false
	}
	code, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(body, "epsg:")))
	if err != nil || code <= 0 {
		return 0, false
	}
	return code, true
}

func parseXYZLine(text string) (Point, error) {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ' ' || r == '\t' || r == ','
	})
	if len(fields) < 3 {
		return Point{}, fmt.Errorf("expected at least 3 columns, got %d", len(fields))
	}

	var p Point
	var err error
	if p.X, err = strconv.ParseFloat(fields[0], 64); err != nil {
		return Point{}, fmt.Errorf("parse x: %w", err)
	}
	if p.Y, err = strconv.ParseFloat(fields[1], 64); err != nil {
		return Point{}, fmt.Errorf("parse y: %w", err)
	}
	if p.Z, err = strconv.ParseFloat(fields[2], 64); err != nil {
		return Point{}, fmt.Errorf("parse z: %w", err)
	}

	p.ReturnNumber = 1
	p.Classification = ClassGround
	if len(fields) > 3 {
		v, err := strconv.ParseUint(fields[3], 10, 16)
		if err != nil {
			return Point{}, fmt.Errorf("parse intensity: %w", err)
		}
		p.Intensity = uint16(v)
	}
	if len(fields) > 4 {
		v, err := strconv.ParseUint(fields[4], 10, 8)
		if err != nil {
			return Point{}, fmt.Errorf("parse return number: %w", err)
		}
		p.ReturnNumber = uint8(v)
	}
	if len(fields) > 5 {
		v, err := strconv.ParseUint(fields[5], 10, 8)
		if err != nil {
			return Point{}, fmt.Errorf("parse classification: %w", err)
		}
		p.Classification = uint8(v)
	}
	return p, nil
}
