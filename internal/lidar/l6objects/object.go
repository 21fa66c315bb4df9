package l6objects

import (
	"strings"

	"github.com/paulmach/orb"
)

// Well-known tag keys.
const (
	TagElevation = "elevation"
	TagGenerator = "generator"
	TagTile      = "tile"
)

// Tag is one key/value annotation.
type Tag struct {
	Key   string
	Value string
}

// Tags is an ordered tag list.
type Tags []Tag

// Get returns the first value stored under key.
func (t Tags) Get(key string) (string, bool) {
	for _, tag := range t {
		if tag.Key == key {
			return tag.Value, true
		}
	}
	return "", false
}

// Set replaces the value of key, or appends it.
func (t Tags) Set(key, value string) Tags {
	for i := range t {
		if t[i].Key == key {
			out := append(Tags(nil), t...)
			out[i].Value = value
			return out
		}
	}
	return append(append(Tags(nil), t...), Tag{key, value})
}

// key is the merge identity of a tag list; the tile tag is ignored.
func (t Tags) key() string {
	var b strings.Builder
	for _, tag := range t {
		if tag.Key == TagTile {
			continue
		}
		b.WriteString(tag.Key)
		b.WriteByte('=')
		b.WriteString(tag.Value)
		b.WriteByte(0)
	}
	return b.String()
}

// Meta is the data every object carries.
type Meta struct {
	Symbol Symbol
	Tags   Tags
}

func (m *Meta) meta() *Meta { return m }

// Object is a map object: *PointObject, *LineObject or *AreaObject.
type Object interface {
	Kind() Kind
	Geometry() orb.Geometry
	meta() *Meta
}

// MetaOf returns the symbol and tags of o.
func MetaOf(o Object) Meta { return *o.meta() }

// PointObject is a point symbol such as a boulder.
type PointObject struct {
	Meta
	Point orb.Point
}

// LineObject is a line symbol such as a contour.
type LineObject struct {
	Meta
	Line orb.LineString
}

// AreaObject is an area symbol such as a vegetation band.
type AreaObject struct {
	Meta
	Polygon orb.Polygon
}

func (*PointObject) Kind() Kind { return KindPoint }
func (*LineObject) Kind() Kind  { return KindLine }
func (*AreaObject) Kind() Kind  { return KindArea }

func (o *PointObject) Geometry() orb.Geometry { return o.Point }
func (o *LineObject) Geometry() orb.Geometry  { return o.Line }
func (o *AreaObject) Geometry() orb.Geometry  { return o.Polygon }

// NewPoint, NewLine and NewArea build objects with the given tags.
func NewPoint(sym Symbol, p orb.Point, tags ...Tag) *PointObject {
	return &PointObject{Meta: Meta{Symbol: sym, Tags: tags}, Point: p}
}

func NewLine(sym Symbol, ls orb.LineString, tags ...Tag) *LineObject {
	return &LineObject{Meta: Meta{Symbol: sym, Tags: tags}, Line: ls}
}

func NewArea(sym Symbol, p orb.Polygon, tags ...Tag) *AreaObject {
	return &AreaObject{Meta: Meta{Symbol: sym, Tags: tags}, Polygon: p}
}
