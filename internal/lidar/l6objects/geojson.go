package l6objects

import (
	"github.com/paulmach/orb/geojson"
)

// FeatureCollection exports the document for the external serializer. Each
// object becomes a feature with "symbol", "symbol_name" and "kind"
// properties, its tags as properties, and the ordered tag list under
// "tags". Features are ordered by symbol, then by document order.
func (d *Document) FeatureCollection() *geojson.FeatureCollection {
	d.mu.Lock()
	defer d.mu.Unlock()

	fc := geojson.NewFeatureCollection()
	for _, sym := range d.sortedSymbolsLocked() {
		for _, obj := range d.objects[sym] {
			m := obj.meta()
			f := geojson.NewFeature(obj.Geometry())
			f.Properties["symbol"] = int(sym)
			f.Properties["symbol_name"] = sym.String()
			f.Properties["kind"] = obj.Kind().String()
			tags := make([][2]string, len(m.Tags))
			for i, t := range m.Tags {
				tags[i] = [2]string{t.Key, t.Value}
				if _, taken := f.Properties[t.Key]; !taken {
					f.Properties[t.Key] = t.Value
				}
			}
			f.Properties["tags"] = tags
			fc.Append(f)
		}
	}
	return fc
}
