package cluster

import "strings"

// base32 is the geohash base32 alphabet.
const base32 = "0123456789bcdefghjkmnpqrstuvwxyz"

// MaxPrecision is the longest geohash used as a cluster key.
const MaxPrecision = 9

// Encode encodes latitude and longitude into a geohash of the given length.
// Precision below 1 is treated as 1 and above MaxPrecision as MaxPrecision.
func Encode(lat, lng float64, precision int) string {
	precision = max(1, min(precision, MaxPrecision))

	latRange := [2]float64{-90.0, 90.0}
	lngRange := [2]float64{-180.0, 180.0}

	var geohash strings.Builder
	geohash.Grow(precision)

	bits := 0
	var ch uint

	even := true
	for geohash.Len() < precision {
		if even {
			mid := (lngRange[0] + lngRange[1]) / 2
			if lng > mid {
				ch |= 1 << (4 - bits)
				lngRange[0] = mid
			} else {
				lngRange[1] = mid
			}
		} else {
			mid := (latRange[0] + latRange[1]) / 2
			if lat > mid {
				ch |= 1 << (4 - bits)
				latRange[0] = mid
			} else {
				latRange[1] = mid
			}
		}

		even = !even
		bits++

		if bits == 5 {
			geohash.WriteByte(base32[ch])
			bits = 0
			ch = 0
		}
	}

	return geohash.String()
}

// PrecisionForZoom maps a web-map zoom level to the geohash length whose
// cells are roughly one marker-radius wide at that zoom. Higher zoom means
// finer cells and therefore smaller clusters.
func PrecisionForZoom(zoom int) int {
	switch {
	case zoom <= 2:
		return 1
	case zoom <= 5:
		return 2
	case zoom <= 7:
		return 3
	case zoom <= 10:
		return 4
	case zoom <= 12:
		return 5
	case zoom <= 15:
		return 6
	case zoom <= 17:
		return 7
	case zoom <= 19:
		return 8
	default:
		return MaxPrecision
	}
}
