package geom

import "math"

// BoundingSphere is a spherical bounding region defined by a center and radius.
type BoundingSphere struct {
	Center Vertex
	Radius float64
}

// BoundingSphereFromPoints computes a tight bounding sphere of a point set
// using Ritter's two-pass algorithm, falling back to the naive
// box-centered sphere when that turns out smaller.
func BoundingSphereFromPoints(points []Vertex) BoundingSphere {
	if len(points) == 0 {
		return BoundingSphere{}
	}

	// track the extreme point along each axis
	minPointX, minPointY, minPointZ := points[0], points[0], points[0]
	maxPointX, maxPointY, maxPointZ := points[0], points[0], points[0]

	for _, p := range points[1:] {
		if p.X < minPointX.X {
			minPointX = p
		}
		if p.Y < minPointY.Y {
			minPointY = p
		}
		if p.Z < minPointZ.Z {
			minPointZ = p
		}
		if p.X > maxPointX.X {
			maxPointX = p
		}
		if p.Y > maxPointY.Y {
			maxPointY = p
		}
		if p.Z > maxPointZ.Z {
			maxPointZ = p
		}
	}

	// pick the axis pair with the largest span as the initial diameter
	xSpan := maxPointX.Sub(minPointX).MagnitudeSquared()
	ySpan := maxPointY.Sub(minPointY).MagnitudeSquared()
	zSpan := maxPointZ.Sub(minPointZ).MagnitudeSquared()

	diameter1, diameter2 := minPointX, maxPointX
	maxSpan := xSpan
	if ySpan > maxSpan {
		diameter1, diameter2 = minPointY, maxPointY
		maxSpan = ySpan
	}
	if zSpan > maxSpan {
		diameter1, diameter2 = minPointZ, maxPointZ
	}

	ritterCenter := diameter1.Add(diameter2).Scale(0.5)
	radiusSquared := diameter2.Sub(ritterCenter).MagnitudeSquared()
	ritterRadius := math.Sqrt(radiusSquared)

	// naive sphere centered on the axis-aligned box
	minBoxPt := Vertex{minPointX.X, minPointY.Y, minPointZ.Z}
	maxBoxPt := Vertex{maxPointX.X, maxPointY.Y, maxPointZ.Z}
	naiveCenter := minBoxPt.Add(maxBoxPt).Scale(0.5)
	naiveRadius := 0.0

	for _, p := range points {
		if r := p.Sub(naiveCenter).Magnitude(); r > naiveRadius {
			naiveRadius = r
		}

		// grow the Ritter sphere to include any point outside it
		oldCenterToPointSquared := p.Sub(ritterCenter).MagnitudeSquared()
		if oldCenterToPointSquared > radiusSquared {
			oldCenterToPoint := math.Sqrt(oldCenterToPointSquared)
			ritterRadius = (ritterRadius + oldCenterToPoint) * 0.5
			radiusSquared = ritterRadius * ritterRadius

			oldToNew := oldCenterToPoint - ritterRadius
			ritterCenter = Vertex{
				(ritterRadius*ritterCenter.X + oldToNew*p.X) / oldCenterToPoint,
				(ritterRadius*ritterCenter.Y + oldToNew*p.Y) / oldCenterToPoint,
				(ritterRadius*ritterCenter.Z + oldToNew*p.Z) / oldCenterToPoint,
			}
		}
	}

	if naiveRadius < ritterRadius {
		return BoundingSphere{Center: naiveCenter, Radius: naiveRadius}
	}
	return BoundingSphere{Center: ritterCenter, Radius: ritterRadius}
}

// BoundingBox is an axis-aligned box defined by minimum and maximum corners.
type BoundingBox struct {
	Min, Max Vertex
}

// BoundingBoxFromPoints computes the axis-aligned bounding box of a point set.
func BoundingBoxFromPoints(points []Vertex) BoundingBox {
	box := BoundingBox{
		Min: Vertex{math.Inf(1), math.Inf(1), math.Inf(1)},
		Max: Vertex{math.Inf(-1), math.Inf(-1), math.Inf(-1)},
	}

	for _, p := range points {
		box.Min.X = math.Min(box.Min.X, p.X)
		box.Min.Y = math.Min(box.Min.Y, p.Y)
		box.Min.Z = math.Min(box.Min.Z, p.Z)
		box.Max.X = math.Max(box.Max.X, p.X)
		box.Max.Y = math.Max(box.Max.Y, p.Y)
		box.Max.Z = math.Max(box.Max.Z, p.Z)
	}

	return box
}
