package astrocore

import (
	"math"
	"testing"
)

func TestQuaternionRotate(t *testing.T) {
	q := FromAxisAngle(NewVector3(0, 0, 1), math.Pi/2)
	got := q.Rotate(NewVector3(1, 0, 0))
	if !vec3Equal(got, NewVector3(0, 1, 0), 1e-9) {
		t.Fatalf("90deg rotation about z failed: %+v", got)
	}
}

func TestQuaternionDCMRoundTrip(t *testing.T) {
	q := FromAxisAngle(NewVector3(1, 2, 3), 0.7).Unit()
	dcm := q.ToDCM()
	back := FromDCM(dcm)
	// q and -q represent the same rotation.
	if !(closeQ(q, back) || closeQ(q, Quaternion{-back.X, -back.Y, -back.Z, -back.W})) {
		t.Fatalf("DCM round trip failed: %+v vs %+v", q, back)
	}
}

func closeQ(a, b Quaternion) bool {
	return EqualWithinAbs(a.X, b.X, 1e-6) && EqualWithinAbs(a.Y, b.Y, 1e-6) &&
		EqualWithinAbs(a.Z, b.Z, 1e-6) && EqualWithinAbs(a.W, b.W, 1e-6)
}

func TestSLERPEndpoints(t *testing.T) {
	q0 := IdentityQuaternion()
	q1 := FromAxisAngle(NewVector3(0, 0, 1), math.Pi/2)
	if !closeQ(SLERP(q0, q1, 0), q0) {
		t.Fatal("SLERP at t=0 should equal q0")
	}
	if !closeQ(SLERP(q0, q1, 1), q1) {
		t.Fatal("SLERP at t=1 should equal q1")
	}
}

func TestTRIAD(t *testing.T) {
	r1 := NewVector3(1, 0, 0)
	r2 := NewVector3(0, 1, 0)
	q := FromAxisAngle(NewVector3(0, 0, 1), math.Pi/4).Unit()
	b1 := q.Rotate(r1)
	b2 := q.Rotate(r2)
	got := TRIAD(b1, b2, r1, r2)
	rotated := got.Rotate(r1)
	if !vec3Equal(rotated, b1, 1e-6) {
		t.Fatalf("TRIAD reconstruction failed: %+v vs %+v", rotated, b1)
	}
}
