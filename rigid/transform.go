// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package rigid composes the "camera <- reference <- frame" rigid
// transform and its gradients.
package rigid

// Pose is a rigid transform encoded as (rotation-vector R, translation T);
// 6 numbers, matching the packed-state layout of state.go.
type Pose struct {
	R [3]float64
	T [3]float64
}

// Apply returns R*p + t for this pose.
func (p Pose) Apply(v [3]float64) [3]float64 {
	R, _ := RFromR(p.R)
	rv := mulMat3Vec(R, v)
	return [3]float64{rv[0] + p.T[0], rv[1] + p.T[1], rv[2] + p.T[2]}
}

// TransformPoint applies this pose to v and returns the result together
// with dvOut/dR (3x3, flattened): the gradient of R*v+t w.r.t. the pose's
// own rotation-vector component. dvOut/dT is always the identity and is
// never materialized.
func (p Pose) TransformPoint(v [3]float64) (out [3]float64, dOut_dR Mat3) {
	R, dR_dr := RFromR(p.R)
	rv := mulMat3Vec(R, v)
	out = [3]float64{rv[0] + p.T[0], rv[1] + p.T[1], rv[2] + p.T[2]}
	for k := 0; k < 3; k++ {
		dv := mulMat3Vec(dR_dr[k], v)
		dOut_dR[0*3+k] = dv[0]
		dOut_dR[1*3+k] = dv[1]
		dOut_dR[2*3+k] = dv[2]
	}
	return
}

// Joint is the result of Compose: the camera<-frame transform together
// with its four nonzero gradient blocks. The other four blocks a full
// Jacobian of (rj,tj) w.r.t. (rc,tc,rf,tf) would carry are either zero
// (drj/dtc, drj/dtf, dtj/drf) or the identity (dtj/dtc); callers must not
// materialize them.
type Joint struct {
	Pose    Pose
	DRj_DRc Mat3          // 3x3, flattened row-major
	DRj_DRf Mat3          // 3x3
	DTj_DRc [3][3]float64 // dtj_i/drc_k
	DTj_DTf Mat3          // = Rc, dtj_i/dtf_k
}

// Compose computes the joint "camera<-reference<-frame" transform
//
//	Rj = Rc * Rf,  tj = Rc*tf + tc
//
// and its four gradient blocks. If atIdentity is
// true the camera is the reference camera: composition is skipped and the
// joint transform is exactly the frame transform (gradients w.r.t. the
// (nonexistent) camera extrinsics are never requested by the caller in
// that case).
func Compose(camera, frame Pose, atIdentity bool) Joint {
	if atIdentity {
		// The joint transform is exactly the frame transform, so drj/drf
		// and dtj/dtf are the identity; drj/drc and dtj/drc don't exist
		// (the reference camera carries no extrinsic state) and callers
		// must never index into them here.
		return Joint{Pose: frame, DRj_DRf: identity3(), DTj_DTf: identity3()}
	}

	Rc, dRc_drc := RFromR(camera.R)
	Rf, dRf_drf := RFromR(frame.R)

	Rj := mulMat3Mat3(Rc, Rf)
	tj := mulMat3Vec(Rc, frame.T)
	tj[0] += camera.T[0]
	tj[1] += camera.T[1]
	tj[2] += camera.T[2]

	// dRj/drc_k = (dRc/drc_k) * Rf
	var dRj_drc [3]Mat3
	for k := 0; k < 3; k++ {
		dRj_drc[k] = mulMat3Mat3(dRc_drc[k], Rf)
	}
	// dRj/drf_k = Rc * (dRf/drf_k)
	var dRj_drf [3]Mat3
	for k := 0; k < 3; k++ {
		dRj_drf[k] = mulMat3Mat3(Rc, dRf_drf[k])
	}

	rj := RToR(Rj)
	_, dRj_drj := RFromR(rj)
	drj_dRj := pinv3x9Left(dRj_drj) // 3x9: tangent-space inverse at rj

	var dRj_drc_flat, dRj_drf_flat [3][9]float64
	for k := 0; k < 3; k++ {
		for e := 0; e < 9; e++ {
			dRj_drc_flat[k][e] = dRj_drc[k][e]
			dRj_drf_flat[k][e] = dRj_drf[k][e]
		}
	}

	var dRj_rc, dRj_rf Mat3
	for row := 0; row < 3; row++ {
		for k := 0; k < 3; k++ {
			var sc, sf float64
			for e := 0; e < 9; e++ {
				sc += drj_dRj[row][e] * dRj_drc_flat[k][e]
				sf += drj_dRj[row][e] * dRj_drf_flat[k][e]
			}
			dRj_rc[3*row+k] = sc
			dRj_rf[3*row+k] = sf
		}
	}

	// dtj/drc_k = (dRc/drc_k) * tf
	var dtj_drc [3][3]float64
	for k := 0; k < 3; k++ {
		v := mulMat3Vec(dRc_drc[k], frame.T)
		dtj_drc[0][k], dtj_drc[1][k], dtj_drc[2][k] = v[0], v[1], v[2]
	}

	return Joint{
		Pose:    Pose{R: rj, T: tj},
		DRj_DRc: dRj_rc,
		DRj_DRf: dRj_rf,
		DTj_DRc: dtj_drc,
		DTj_DTf: Rc,
	}
}
