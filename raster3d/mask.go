// SPDX-License-Identifier: MIT

package raster3d

// Resampler is the capability interface behind a Map's resampling hook
// (§4.E, §9): Sample maps a window-relative coordinate to a cell value,
// resampling from the map's underlying region as needed. The default
// implementation is nearest-neighbour; bilinear or other kernels are
// alternative implementations a caller may install instead.
type Resampler interface {
	Sample(m *Map, x, y, z float64) (float64, error)
}

// NearestNeighborResampler rounds a window-relative coordinate to the
// nearest cell and returns that cell's value verbatim.
type NearestNeighborResampler struct{}

func (NearestNeighborResampler) Sample(m *Map, x, y, z float64) (float64, error) {
	cx := int(x + 0.5)
	cy := int(y + 0.5)
	cz := int(z + 0.5)
	return m.GetValue(cx, cy, cz)
}

// Mask wraps a second Map of the same region whose null cells mark
// locations to suppress in the owning Map (§4.E). Mask is itself an
// opened, read-only Map; it is queried through its own resampler the
// same way any other Map would be, per the Open Question in §9 on
// mismatched mask/target windows: the mask resamples via its own
// region regardless of the target's window.
type Mask struct {
	Map *Map
}

// Apply coerces value to the null sentinel if the mask's value at
// (x,y,z) is null; otherwise it returns value unchanged.
func (mask *Mask) Apply(x, y, z float64, value float64) (float64, error) {
	if mask == nil || mask.Map == nil {
		return value, nil
	}
	mv, err := mask.Map.sampleWindow(x, y, z)
	if err != nil {
		return value, err
	}
	if IsNullF64(mv) {
		return NullF64(), nil
	}
	return value, nil
}
