package astrocore

import "math"

// Quaternion is a Hamilton (x, y, z, w) unit quaternion used for
// kinematic attitude representation. Rotation composition and the
// direction-cosine-matrix conversion follow the teacher's R1/R2/R3/
// Rot313Vec style in spirit (legacy/smd/rotation.go), generalized here
// from Euler-angle composition to quaternion algebra per the data
// model's Quaternion contract.
type Quaternion struct {
	X, Y, Z, W float64
}

// IdentityQuaternion returns the no-rotation quaternion.
func IdentityQuaternion() Quaternion {
	return Quaternion{0, 0, 0, 1}
}

// FromAxisAngle builds a unit quaternion representing a rotation of
// angle radians about axis.
func FromAxisAngle(axis Vector3, angle float64) Quaternion {
	a := axis.Unit()
	s := math.Sin(angle / 2)
	return Quaternion{a.X * s, a.Y * s, a.Z * s, math.Cos(angle / 2)}
}

// Norm returns the magnitude of q.
func (q Quaternion) Norm() float64 {
	return math.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)
}

// Unit normalizes q to unit length.
func (q Quaternion) Unit() Quaternion {
	n := q.Norm()
	if EqualWithinAbs(n, 0, 1e-12) {
		return IdentityQuaternion()
	}
	return Quaternion{q.X / n, q.Y / n, q.Z / n, q.W / n}
}

// Conjugate returns (-x, -y, -z, w).
func (q Quaternion) Conjugate() Quaternion {
	return Quaternion{-q.X, -q.Y, -q.Z, q.W}
}

// Inverse returns the multiplicative inverse of q (the conjugate, scaled
// by 1/|q|²).
func (q Quaternion) Inverse() Quaternion {
	n2 := q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W
	c := q.Conjugate()
	return Quaternion{c.X / n2, c.Y / n2, c.Z / n2, c.W / n2}
}

// Multiply returns the Hamilton product q ⊗ o, representing the
// composed rotation "apply o, then q".
func (q Quaternion) Multiply(o Quaternion) Quaternion {
	return Quaternion{
		X: q.W*o.X + q.X*o.W + q.Y*o.Z - q.Z*o.Y,
		Y: q.W*o.Y - q.X*o.Z + q.Y*o.W + q.Z*o.X,
		Z: q.W*o.Z + q.X*o.Y - q.Y*o.X + q.Z*o.W,
		W: q.W*o.W - q.X*o.X - q.Y*o.Y - q.Z*o.Z,
	}
}

// Rotate applies q's rotation to vector v.
func (q Quaternion) Rotate(v Vector3) Vector3 {
	qv := Quaternion{v.X, v.Y, v.Z, 0}
	r := q.Multiply(qv).Multiply(q.Conjugate())
	return Vector3{r.X, r.Y, r.Z}
}

// ToDCM converts q to its 3x3 direction cosine matrix.
func (q Quaternion) ToDCM() *Matrix {
	x, y, z, w := q.X, q.Y, q.Z, q.W
	return NewMatrix(3, 3, []float64{
		1 - 2*(y*y+z*z), 2 * (x*y - z*w), 2 * (x*z + y*w),
		2 * (x*y + z*w), 1 - 2*(x*x+z*z), 2 * (y*z - x*w),
		2 * (x*z - y*w), 2 * (y*z + x*w), 1 - 2*(x*x+y*y),
	})
}

// FromDCM converts a 3x3 direction cosine matrix to a unit quaternion,
// using Shepperd's method to avoid the singularities of a naive trace
// formula.
func FromDCM(m *Matrix) Quaternion {
	tr := m.At(0, 0) + m.At(1, 1) + m.At(2, 2)
	var q Quaternion
	switch {
	case tr > 0:
		s := 0.5 / math.Sqrt(tr+1.0)
		q.W = 0.25 / s
		q.X = (m.At(2, 1) - m.At(1, 2)) * s
		q.Y = (m.At(0, 2) - m.At(2, 0)) * s
		q.Z = (m.At(1, 0) - m.At(0, 1)) * s
	case m.At(0, 0) > m.At(1, 1) && m.At(0, 0) > m.At(2, 2):
		s := 2.0 * math.Sqrt(1.0+m.At(0, 0)-m.At(1, 1)-m.At(2, 2))
		q.W = (m.At(2, 1) - m.At(1, 2)) / s
		q.X = 0.25 * s
		q.Y = (m.At(0, 1) + m.At(1, 0)) / s
		q.Z = (m.At(0, 2) + m.At(2, 0)) / s
	case m.At(1, 1) > m.At(2, 2):
		s := 2.0 * math.Sqrt(1.0+m.At(1, 1)-m.At(0, 0)-m.At(2, 2))
		q.W = (m.At(0, 2) - m.At(2, 0)) / s
		q.X = (m.At(0, 1) + m.At(1, 0)) / s
		q.Y = 0.25 * s
		q.Z = (m.At(1, 2) + m.At(2, 1)) / s
	default:
		s := 2.0 * math.Sqrt(1.0+m.At(2, 2)-m.At(0, 0)-m.At(1, 1))
		q.W = (m.At(1, 0) - m.At(0, 1)) / s
		q.X = (m.At(0, 2) + m.At(2, 0)) / s
		q.Y = (m.At(1, 2) + m.At(2, 1)) / s
		q.Z = 0.25 * s
	}
	return q.Unit()
}

// TRIAD builds an attitude quaternion from two observed body-frame
// vectors and their corresponding reference-frame vectors (the first
// pair is trusted exactly; the second only fixes the rotation about it).
func TRIAD(bRef1, bRef2, rRef1, rRef2 Vector3) Quaternion {
	t1b := bRef1.Unit()
	t2b := bRef1.Cross(bRef2).Unit()
	t3b := t1b.Cross(t2b)

	t1r := rRef1.Unit()
	t2r := rRef1.Cross(rRef2).Unit()
	t3r := t1r.Cross(t2r)

	// BN maps reference frame -> body frame.
	bn := NewMatrix(3, 3, []float64{
		t1b.X, t2b.X, t3b.X,
		t1b.Y, t2b.Y, t3b.Y,
		t1b.Z, t2b.Z, t3b.Z,
	}).Mul(NewMatrix(3, 3, []float64{
		t1r.X, t1r.Y, t1r.Z,
		t2r.X, t2r.Y, t2r.Z,
		t3r.X, t3r.Y, t3r.Z,
	}))
	return FromDCM(bn)
}

// SLERP spherically interpolates between q0 and q1 at fraction t ∈ [0,1].
func SLERP(q0, q1 Quaternion, t float64) Quaternion {
	cosHalfTheta := q0.X*q1.X + q0.Y*q1.Y + q0.Z*q1.Z + q0.W*q1.W
	if cosHalfTheta < 0 {
		q1 = Quaternion{-q1.X, -q1.Y, -q1.Z, -q1.W}
		cosHalfTheta = -cosHalfTheta
	}
	if cosHalfTheta > 0.9995 {
		return LERP(q0, q1, t)
	}
	halfTheta := math.Acos(cosHalfTheta)
	sinHalfTheta := math.Sqrt(1 - cosHalfTheta*cosHalfTheta)
	ra := math.Sin((1-t)*halfTheta) / sinHalfTheta
	rb := math.Sin(t*halfTheta) / sinHalfTheta
	return Quaternion{
		X: q0.X*ra + q1.X*rb,
		Y: q0.Y*ra + q1.Y*rb,
		Z: q0.Z*ra + q1.Z*rb,
		W: q0.W*ra + q1.W*rb,
	}.Unit()
}

// LERP linearly interpolates and renormalizes between q0 and q1.
func LERP(q0, q1 Quaternion, t float64) Quaternion {
	return Quaternion{
		X: q0.X + (q1.X-q0.X)*t,
		Y: q0.Y + (q1.Y-q0.Y)*t,
		Z: q0.Z + (q1.Z-q0.Z)*t,
		W: q0.W + (q1.W-q0.W)*t,
	}.Unit()
}

// KinematicDerivative returns dq/dt for a body rotating at angular
// velocity omega (rad/s, expressed in the body frame), i.e.
// q̇ = 0.5 * q ⊗ (ω, 0).
func (q Quaternion) KinematicDerivative(omega Vector3) Quaternion {
	omegaQ := Quaternion{omega.X, omega.Y, omega.Z, 0}
	p := q.Multiply(omegaQ)
	return Quaternion{0.5 * p.X, 0.5 * p.Y, 0.5 * p.Z, 0.5 * p.W}
}
