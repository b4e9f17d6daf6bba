package cluster

import "testing"

func TestEncode(t *testing.T) {
	tests := []struct {
		name      string
		lat       float64
		lng       float64
		precision int
		want      string
	}{
		{"Seattle", 47.6062, -122.3321, 6, "c23nb6"},
		{"Berlin", 52.5200, 13.4050, 6, "u33dc0"},
		{"London", 51.5074, -0.1278, 6, "gcpvj0"},
		{"Seoul city hall", 37.5666791, 126.9782914, 9, "wydm9qycb"},
		{"Busan", 35.1796, 129.0756, 6, "wy7b1h"},
		{"precision below range", 47.6062, -122.3321, 0, "c"},
		{"precision above range", 37.5666791, 126.9782914, 12, "wydm9qycb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Encode(tt.lat, tt.lng, tt.precision); got != tt.want {
				t.Errorf("Encode(%f, %f, %d) = %q, want %q", tt.lat, tt.lng, tt.precision, got, tt.want)
			}
		})
	}
}

func TestPrecisionForZoom(t *testing.T) {
	tests := []struct {
		zoom int
		want int
	}{
		{0, 1}, {2, 1}, {5, 2}, {7, 3}, {10, 4}, {12, 5}, {15, 6}, {17, 7}, {19, 8}, {20, 9}, {22, 9},
	}
	for _, tt := range tests {
		if got := PrecisionForZoom(tt.zoom); got != tt.want {
			t.Errorf("PrecisionForZoom(%d) = %d, want %d", tt.zoom, got, tt.want)
		}
	}

	prev := 0
	for z := 0; z <= 22; z++ {
		p := PrecisionForZoom(z)
		if p < prev {
			t.Fatalf("precision decreased at zoom %d", z)
		}
		prev = p
	}
}
