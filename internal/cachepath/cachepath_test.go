package cachepath

import "testing"

func TestResolveDeterministic(t *testing.T) {
	id := Identity{Row: 21728, Col: 34432, MapType: "BI", TilenameZoom: 12}
	a := Resolve("/cache", id, 16)
	b := Resolve("/cache", id, 16)
	if a != b {
		t.Fatalf("Resolve is not deterministic: %+v != %+v", a, b)
	}
}

func TestResolveDiffersByMaxZoom(t *testing.T) {
	id := Identity{Row: 21728, Col: 34432, MapType: "BI", TilenameZoom: 12}
	a := Resolve("/cache", id, 16)
	b := Resolve("/cache", id, 17)
	if a == b {
		t.Fatalf("Resolve should differ by max_zoom: %+v == %+v", a, b)
	}
}

func TestResolveNegativeCoordinates(t *testing.T) {
	id := Identity{Row: -5, Col: -15, MapType: "BI", TilenameZoom: 12}
	p := Resolve("/cache", id, 10)
	if p.DDS == "" || p.DDM == "" {
		t.Fatalf("expected non-empty paths for negative coordinates, got %+v", p)
	}
}

func TestResolvePairSharesBasename(t *testing.T) {
	id := Identity{Row: 100, Col: 200, MapType: "OSM", TilenameZoom: 12}
	p := Resolve("/cache", id, 14)
	ddsBase := p.DDS[:len(p.DDS)-len(".dds")]
	ddmBase := p.DDM[:len(p.DDM)-len(".ddm")]
	if ddsBase != ddmBase {
		t.Fatalf("dds/ddm basenames differ: %q vs %q", ddsBase, ddmBase)
	}
}
