package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// MassProperties is the aggregate of a body's mass distribution: total mass,
// center-of-mass frame and the principal diagonal of the inertia tensor in
// that frame.
type MassProperties struct {
	Mass     float64
	Center   mgl64.Vec3
	Rotation mgl64.Quat
	Inertia  mgl64.Vec3
}

// AggregateMass derives mass properties from a collider set.
//
// Per-collider masses are summed and the mass-weighted centroid becomes the
// center of mass. Each shape contributes its own inertia tensor rotated into
// the body frame plus a parallel-axis correction for its offset from the
// aggregate center. The summed tensor is diagonalized with Jacobi rotations;
// the resulting principal frame becomes the center-of-mass rotation.
//
// When autoMass is false, fixedMass is used as the total and distributed
// across colliders proportionally to volume (uniformly when all volumes are
// zero). The distributed shares replace the shapes' own masses everywhere,
// including each shape's central inertia.
//
// The function is pure and idempotent: the same collider set in the same
// order yields the same result.
func AggregateMass(colliders []Collider, fixedMass float64, autoMass bool) MassProperties {
	if len(colliders) == 0 {
		return MassProperties{Rotation: mgl64.QuatIdent()}
	}

	masses := make([]float64, len(colliders))
	total := 0.0
	if autoMass {
		for i, c := range colliders {
			masses[i] = math.Max(c.LocalMass(), 0)
			total += masses[i]
		}
	} else {
		totalVolume := 0.0
		for _, c := range colliders {
			totalVolume += c.Volume()
		}
		for i, c := range colliders {
			if totalVolume > 0 {
				masses[i] = fixedMass * c.Volume() / totalVolume
			} else {
				masses[i] = fixedMass / float64(len(colliders))
			}
		}
		total = fixedMass
	}

	var center mgl64.Vec3
	if total > 0 {
		for i, c := range colliders {
			offset, _ := c.LocalTransform()
			center = center.Add(offset.Mul(masses[i] / total))
		}
	} else {
		// Degenerate distribution: no mass to weight by, so the centroid is
		// the plain average and the tensor stays zero.
		for _, c := range colliders {
			offset, _ := c.LocalTransform()
			center = center.Add(offset.Mul(1 / float64(len(colliders))))
		}
		return MassProperties{Center: center, Rotation: mgl64.QuatIdent()}
	}

	var tensor [3][3]float64
	for i, c := range colliders {
		offset, orient := c.LocalTransform()
		inertia := c.LocalInertia()
		if !autoMass {
			inertia = c.UnitInertia().Mul(masses[i])
		}
		addRotatedDiagonal(&tensor, inertia, orient)
		addParallelAxis(&tensor, masses[i], offset.Sub(center))
	}

	inertia, frame := jacobiEigen(tensor)
	return MassProperties{
		Mass:     total,
		Center:   center,
		Rotation: frameQuat(frame),
		Inertia:  inertia,
	}
}

// addRotatedDiagonal accumulates R*diag(i)*R^T into t.
func addRotatedDiagonal(t *[3][3]float64, diag mgl64.Vec3, q mgl64.Quat) {
	cols := [3]mgl64.Vec3{
		q.Rotate(mgl64.Vec3{1, 0, 0}),
		q.Rotate(mgl64.Vec3{0, 1, 0}),
		q.Rotate(mgl64.Vec3{0, 0, 1}),
	}
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			sum := 0.0
			for k := 0; k < 3; k++ {
				sum += cols[k][r] * diag[k] * cols[k][c]
			}
			t[r][c] += sum
		}
	}
}

// addParallelAxis accumulates the Huygens-Steiner correction
// m*((d.d)E - d*d^T) for a shape displaced by d from the center of mass.
func addParallelAxis(t *[3][3]float64, mass float64, d mgl64.Vec3) {
	if mass <= 0 {
		return
	}
	dd := d.Dot(d)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			v := -d[r] * d[c]
			if r == c {
				v += dd
			}
			t[r][c] += mass * v
		}
	}
}

const jacobiSweeps = 32

// jacobiEigen diagonalizes a symmetric 3x3 matrix with cyclic Jacobi
// rotations. It returns the eigenvalues and the eigenvector matrix (columns
// are eigenvectors, matching the eigenvalue order). An already-diagonal
// input returns immediately with the identity frame, so the axis order of a
// diagonal tensor is preserved. The sweep order is fixed, making the result
// deterministic for a given input.
func jacobiEigen(m [3][3]float64) (mgl64.Vec3, [3][3]float64) {
	v := [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	a := m

	scale := 0.0
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			scale = math.Max(scale, math.Abs(a[r][c]))
		}
	}
	if scale == 0 {
		return mgl64.Vec3{}, v
	}
	tol := 1e-12 * scale

	for sweep := 0; sweep < jacobiSweeps; sweep++ {
		off := math.Abs(a[0][1]) + math.Abs(a[0][2]) + math.Abs(a[1][2])
		if off < tol {
			break
		}
		for p := 0; p < 2; p++ {
			for q := p + 1; q < 3; q++ {
				if math.Abs(a[p][q]) < tol {
					continue
				}
				theta := (a[q][q] - a[p][p]) / (2 * a[p][q])
				t := math.Copysign(1, theta) / (math.Abs(theta) + math.Sqrt(theta*theta+1))
				c := 1 / math.Sqrt(t*t+1)
				s := t * c

				for k := 0; k < 3; k++ {
					akp, akq := a[k][p], a[k][q]
					a[k][p] = c*akp - s*akq
					a[k][q] = s*akp + c*akq
				}
				for k := 0; k < 3; k++ {
					apk, aqk := a[p][k], a[q][k]
					a[p][k] = c*apk - s*aqk
					a[q][k] = s*apk + c*aqk
				}
				for k := 0; k < 3; k++ {
					vkp, vkq := v[k][p], v[k][q]
					v[k][p] = c*vkp - s*vkq
					v[k][q] = s*vkp + c*vkq
				}
			}
		}
	}

	return mgl64.Vec3{a[0][0], a[1][1], a[2][2]}, v
}

// frameQuat converts an eigenvector matrix into a unit rotation, flipping
// the last column first if the frame came out left-handed.
func frameQuat(v [3][3]float64) mgl64.Quat {
	det := v[0][0]*(v[1][1]*v[2][2]-v[1][2]*v[2][1]) -
		v[0][1]*(v[1][0]*v[2][2]-v[1][2]*v[2][0]) +
		v[0][2]*(v[1][0]*v[2][1]-v[1][1]*v[2][0])
	if det < 0 {
		for r := 0; r < 3; r++ {
			v[r][2] = -v[r][2]
		}
	}
	m := mgl64.Mat4{
		v[0][0], v[1][0], v[2][0], 0,
		v[0][1], v[1][1], v[2][1], 0,
		v[0][2], v[1][2], v[2][2], 0,
		0, 0, 0, 1,
	}
	return mgl64.Mat4ToQuat(m).Normalize()
}
