// Command astrofit fits a classical-orbital-element state and its
// covariance to a batch of radar observations, per §4.7's batch
// least-squares contract. Flag parsing and TOML scenario loading are
// grounded on legacy/cmd/od/main.go's viper usage; logging follows
// legacy/smd/estimate.go's kitlog.NewLogfmtLogger/With pattern; the
// residual CSV writer mirrors legacy/cmd/od/main.go's
// "%s-residuals.csv" output.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/kestrel-space/astrocore"
	"github.com/kestrel-space/astrocore/elements"
	"github.com/kestrel-space/astrocore/eop"
	"github.com/kestrel-space/astrocore/forcemodel"
	"github.com/kestrel-space/astrocore/observation"
	"github.com/kestrel-space/astrocore/od"
	"github.com/kestrel-space/astrocore/propagation"
	kitlog "github.com/go-kit/kit/log"
	"github.com/spf13/viper"
)

const defaultScenario = "~~unset~~"

var scenario = flag.String("scenario", defaultScenario, "TOML scenario file (without extension)")

func main() {
	flag.Parse()
	logger := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stdout))
	logger = kitlog.With(logger, "subsys", "astrofit")

	if *scenario == defaultScenario {
		logger.Log("level", "error", "msg", "no -scenario provided")
		os.Exit(1)
	}

	cfgName := strings.TrimSuffix(*scenario, ".toml")
	viper.AddConfigPath(".")
	viper.SetConfigName(cfgName)
	if err := viper.ReadInConfig(); err != nil {
		logger.Log("level", "error", "msg", "reading scenario", "err", err)
		os.Exit(1)
	}

	mu := viper.GetFloat64("orbit.gm")
	if mu == 0 {
		mu = astrocore.Earth.GM
	}

	nominal := astrocore.NewStateVector(
		astrocore.NewEpoch(viper.GetFloat64("mission.startEpoch")),
		astrocore.NewVector3(
			viper.GetFloat64("orbit.r1"), viper.GetFloat64("orbit.r2"), viper.GetFloat64("orbit.r3"),
		),
		astrocore.NewVector3(
			viper.GetFloat64("orbit.v1"), viper.GetFloat64("orbit.v2"), viper.GetFloat64("orbit.v3"),
		),
		astrocore.FrameJ2000,
	)

	obsFile := viper.GetString("measurements.file")
	obs, err := loadRadarCSV(obsFile, mu)
	if err != nil {
		logger.Log("level", "error", "msg", "loading measurements", "file", obsFile, "err", err)
		os.Exit(1)
	}
	logger.Log("level", "info", "msg", "loaded measurements", "count", len(obs))

	model := forcemodel.NewEarthModel()
	build := func(sv astrocore.StateVector) propagation.Propagator {
		return propagation.NewRK4Propagator(sv, model, 10)
	}

	maxIter := viper.GetInt("filter.maxIterations")
	if maxIter == 0 {
		maxIter = 25
	}
	tol := viper.GetFloat64("filter.tolerance")
	if tol == 0 {
		tol = 1e-8
	}

	result, err := od.BatchLeastSquares(nominal, obs, build, tol, maxIter)
	if err != nil {
		logger.Log("level", "error", "msg", "batch least squares", "err", err)
		os.Exit(1)
	}
	logger.Log("level", "info", "msg", "converged", "converged", result.Converged, "iterations", result.Iterations)

	ce, err := elements.FromCartesian(result.State, mu)
	if err != nil {
		logger.Log("level", "error", "msg", "converting fitted state to elements", "err", err)
		os.Exit(1)
	}
	fmt.Printf("a=%.6f km  e=%.6f  i=%.4f deg  RAAN=%.4f deg  argp=%.4f deg  nu=%.4f deg\n",
		ce.SemiMajorAxis, ce.Eccentricity,
		degrees(ce.Inclination), degrees(ce.RAAN), degrees(ce.ArgPerigee), degrees(ce.TrueAnomaly))
	r, c := result.Covariance.Dims()
	fmt.Printf("covariance: %dx%d, trace=%.6e\n", r, c, traceOf(result.Covariance))

	outPrefix := viper.GetString("filter.outPrefix")
	if outPrefix == "" {
		outPrefix = "astrofit"
	}
	if err := writeResidualCSV(outPrefix+"-residuals.csv", obs, build(result.State)); err != nil {
		logger.Log("level", "error", "msg", "writing residual CSV", "err", err)
		os.Exit(1)
	}
}

func degrees(rad float64) float64 { return rad * 180 / math.Pi }

func traceOf(m *astrocore.Matrix) float64 {
	r, _ := m.Dims()
	var sum float64
	for i := 0; i < r; i++ {
		sum += m.At(i, i)
	}
	return sum
}

// loadRadarCSV reads a CSV with columns epoch,range,az,el,siteLat,
// siteLon,siteAlt,sigmaRange,sigmaAngle (radians/km throughout) into
// observation.Radar values.
func loadRadarCSV(path string, mu float64) ([]observation.Observation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	var out []observation.Observation
	for i, row := range rows {
		if i == 0 || len(row) < 9 {
			continue // header or short row
		}
		vals := make([]float64, 9)
		for j, field := range row[:9] {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, astrocore.NewError(astrocore.ErrDimensionMismatch, "row %d col %d: %v", i, j, err)
			}
			vals[j] = v
		}
		site := geodeticToECEF(vals[4], vals[5], vals[6])
		out = append(out, observation.NewRadar(
			astrocore.NewEpoch(vals[0]), site, vals[4], vals[5],
			vals[1], vals[2], vals[3], vals[7], vals[8], eop.ZeroProvider,
		))
	}
	return out, nil
}

func geodeticToECEF(latRad, lonRad, altKm float64) astrocore.Vector3 {
	e2 := astrocore.WGS84Eccentricitysq()
	sinLat := math.Sin(latRad)
	n := astrocore.Earth.RadiusEq / math.Sqrt(1-e2*sinLat*sinLat)
	x := (n + altKm) * math.Cos(latRad) * math.Cos(lonRad)
	y := (n + altKm) * math.Cos(latRad) * math.Sin(lonRad)
	z := (n*(1-e2) + altKm) * sinLat
	return astrocore.NewVector3(x, y, z)
}

func writeResidualCSV(path string, obs []observation.Observation, p propagation.Propagator) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	defer w.Flush()
	if err := w.Write([]string{"epoch", "res0", "res1", "res2"}); err != nil {
		return err
	}
	for _, o := range obs {
		if _, err := p.Propagate(o.Epoch()); err != nil {
			return err
		}
		residual, err := o.Residual(p)
		if err != nil {
			return err
		}
		row := []string{fmt.Sprintf("%.6f", o.Epoch().POSIXSeconds())}
		for i := 0; i < residual.Len(); i++ {
			row = append(row, fmt.Sprintf("%.9e", residual.At(i)))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}
