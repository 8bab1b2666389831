// Package scanparams parses and validates the physical and geometric
// metadata of a single CT scan from its key/value parameter file.
//
// The source format is one `Key=Value` pair per line, as written by the
// scanner control software. Required keys are validated eagerly; unknown
// keys are ignored so that newer scanner revisions remain readable.
package scanparams

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// DetectorType distinguishes the two supported detector families. The
// calibration pipeline differs materially between them, so the type is a
// tagged variant rather than a free-form string.
type DetectorType int

const (
	// DetectorEID is an energy-integrating detector with a single
	// intensity channel.
	DetectorEID DetectorType = iota

	// DetectorPCD is a photon-counting detector with energy-resolved
	// channels (total, low and high energy bins).
	DetectorPCD
)

func (t DetectorType) String() string {
	switch t {
	case DetectorEID:
		return "EID"
	case DetectorPCD:
		return "PCD"
	}
	return fmt.Sprintf("DetectorType(%d)", int(t))
}

// MarshalYAML encodes the detector type as its canonical string form.
func (t DetectorType) MarshalYAML() (interface{}, error) {
	return t.String(), nil
}

// UnmarshalYAML decodes the canonical string form.
func (t *DetectorType) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseDetectorType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseDetectorType parses the detector-type string of the parameter file.
func ParseDetectorType(s string) (DetectorType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "EID":
		return DetectorEID, nil
	case "PCD":
		return DetectorPCD, nil
	}
	return 0, &MalformedValueError{Field: "DetectorType", Value: s}
}

// FreeRayWindow designates a detector sub-region with no object in the
// beam path. The bounds are 1-based and inclusive, matching the row/column
// numbering used by the scanner software.
type FreeRayWindow struct {
	Row1 int `yaml:"row1"`
	Row2 int `yaml:"row2"`
	Col1 int `yaml:"col1"`
	Col2 int `yaml:"col2"`
}

// Rows returns the window height in pixels.
func (w FreeRayWindow) Rows() int { return w.Row2 - w.Row1 + 1 }

// Cols returns the window width in pixels.
func (w FreeRayWindow) Cols() int { return w.Col2 - w.Col1 + 1 }

// Validate checks the internal consistency of the window bounds.
func (w FreeRayWindow) Validate() error {
	if w.Row1 <= 0 || w.Col1 <= 0 {
		return &WindowError{Window: w, Reason: "bounds must be positive"}
	}
	if w.Row1 >= w.Row2 {
		return &WindowError{Window: w, Reason: "row1 must be smaller than row2"}
	}
	if w.Col1 >= w.Col2 {
		return &WindowError{Window: w, Reason: "col1 must be smaller than col2"}
	}
	return nil
}

// ValidateWithin checks the window against the detector dimensions.
func (w FreeRayWindow) ValidateWithin(rows, cols int) error {
	if err := w.Validate(); err != nil {
		return err
	}
	if w.Row2 > rows || w.Col2 > cols {
		return &WindowError{Window: w, Reason: fmt.Sprintf("exceeds detector dimensions %dx%d", rows, cols)}
	}
	return nil
}

// Derived holds the parameter fields computed during project creation
// rather than read from the parameter file: the detector dimensions taken
// from the first raw image, the calibration window, the binning factor
// actually applied, and the resulting pixel sizes and post-binning
// dimensions.
type Derived struct {
	DetectorRows int           `yaml:"detectorRows"`
	DetectorCols int           `yaml:"detectorCols"`
	Window       FreeRayWindow `yaml:"freeRayWindow"`

	// BinningFactor is the power-of-two block-sum factor applied to every
	// projection, in [1,32].
	BinningFactor int `yaml:"binningFactor"`

	// PixelSizePostBinning is the detector pixel pitch after binning, in
	// the same unit as the raw pixel size (mm).
	PixelSizePostBinning float64 `yaml:"pixelSizePostBinning"`

	// EffectivePixelSize is the post-binning pitch projected back to the
	// rotation-axis plane by dividing out the geometric magnification.
	EffectivePixelSize float64 `yaml:"effectivePixelSize"`

	RowsPostBinning int `yaml:"rowsPostBinning"`
	ColsPostBinning int `yaml:"colsPostBinning"`
}

// Parameters is the immutable metadata record of one scan. It is created
// once by Parse and never modified afterwards; the builder attaches the
// computed Derived block to a copy via WithDerived.
type Parameters struct {
	// Identification (informational only).
	ProjectName string   `yaml:"projectName"`
	Scanner     string   `yaml:"scanner"`
	Measurers   []string `yaml:"measurers"`
	Date        string   `yaml:"date"`
	DateFormat  string   `yaml:"dateFormat"`

	// Geometry.
	GeometryType           string  `yaml:"geometryType"`
	DistanceSourceDetector float64 `yaml:"distanceSourceDetector"`
	DistanceSourceOrigin   float64 `yaml:"distanceSourceOrigin"`
	DistanceUnit           string  `yaml:"distanceUnit"`

	// Acquisition. Angles is the arithmetic expansion of
	// AngleFirst..AngleLast with step AngleInterval, in degrees.
	NumberImages  int       `yaml:"numberImages"`
	AngleFirst    float64   `yaml:"angleFirst"`
	AngleInterval float64   `yaml:"angleInterval"`
	AngleLast     float64   `yaml:"angleLast"`
	Angles        []float64 `yaml:"angles"`

	// Detector.
	Detector         string       `yaml:"detector"`
	DetectorType     DetectorType `yaml:"detectorType"`
	Binning          string       `yaml:"binning"`
	PixelSize        float64      `yaml:"pixelSize"`
	PixelSizeUnit    string       `yaml:"pixelSizeUnit"`
	ExposureTime     float64      `yaml:"exposureTime"`
	ExposureTimeUnit string       `yaml:"exposureTimeUnit"`

	// X-ray source.
	Tube                    string  `yaml:"tube"`
	Target                  string  `yaml:"target"`
	Voltage                 float64 `yaml:"voltage"`
	VoltageUnit             string  `yaml:"voltageUnit"`
	Current                 float64 `yaml:"current"`
	CurrentUnit             string  `yaml:"currentUnit"`
	XRayFilter              string  `yaml:"xRayFilter"`
	XRayFilterThickness     float64 `yaml:"xRayFilterThickness"`
	XRayFilterThicknessUnit string  `yaml:"xRayFilterThicknessUnit"`

	// Derived is nil until project creation attaches the computed fields.
	Derived *Derived `yaml:"derived,omitempty"`
}

// Magnification returns the geometric magnification DSD/DSO.
func (p *Parameters) Magnification() float64 {
	return p.DistanceSourceDetector / p.DistanceSourceOrigin
}

// Clone returns a deep copy of the parameter record.
func (p *Parameters) Clone() *Parameters {
	out := *p
	out.Measurers = append([]string(nil), p.Measurers...)
	out.Angles = append([]float64(nil), p.Angles...)
	if p.Derived != nil {
		d := *p.Derived
		out.Derived = &d
	}
	return &out
}

// WithDerived returns a copy of the parameters with the given derived
// fields attached. The receiver is left untouched.
func (p *Parameters) WithDerived(d Derived) *Parameters {
	out := p.Clone()
	out.Derived = &d
	return out
}

// requiredKeys are the parameter-file keys that must be present.
var requiredKeys = []string{
	"ProjectName",
	"GeometryType",
	"DistanceSourceDetector",
	"DistanceSourceOrigin",
	"NumberImages",
	"AngleFirst",
	"AngleInterval",
	"AngleLast",
	"DetectorType",
	"PixelSize",
}

// ParseFile reads and parses a scan-parameter file from disk.
func ParseFile(path string) (*Parameters, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scan parameters: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads `Key=Value` pairs from r and produces a validated parameter
// record. Required keys per the scanner file format are ProjectName,
// GeometryType, DistanceSourceDetector, DistanceSourceOrigin, NumberImages,
// AngleFirst, AngleInterval, AngleLast, DetectorType and PixelSize.
func Parse(r io.Reader) (*Parameters, error) {
	kv := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		eq := strings.Index(line, "=")
		if eq < 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		if key == "" {
			continue
		}
		kv[key] = val
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read scan parameters: %w", err)
	}

	for _, key := range requiredKeys {
		if _, ok := kv[key]; !ok {
			return nil, &MissingFieldError{Field: key}
		}
	}

	p := &Parameters{
		ProjectName:             kv["ProjectName"],
		Scanner:                 kv["Scanner"],
		Date:                    kv["Date"],
		DateFormat:              kv["DateFormat"],
		GeometryType:            kv["GeometryType"],
		DistanceUnit:            kv["DistanceUnit"],
		Detector:                kv["Detector"],
		Binning:                 kv["Binning"],
		PixelSizeUnit:           kv["PixelSizeUnit"],
		ExposureTimeUnit:        kv["ExposureTimeUnit"],
		Tube:                    kv["Tube"],
		Target:                  kv["Target"],
		VoltageUnit:             kv["VoltageUnit"],
		CurrentUnit:             kv["CurrentUnit"],
		XRayFilter:              kv["XRayFilter"],
		XRayFilterThicknessUnit: kv["XRayFilterThicknessUnit"],
	}

	if m := kv["Measurers"]; m != "" {
		for _, name := range strings.Split(m, ",") {
			if name = strings.TrimSpace(name); name != "" {
				p.Measurers = append(p.Measurers, name)
			}
		}
	}

	var err error
	if p.DistanceSourceDetector, err = parseFloat(kv, "DistanceSourceDetector"); err != nil {
		return nil, err
	}
	if p.DistanceSourceOrigin, err = parseFloat(kv, "DistanceSourceOrigin"); err != nil {
		return nil, err
	}
	if p.AngleFirst, err = parseFloat(kv, "AngleFirst"); err != nil {
		return nil, err
	}
	if p.AngleInterval, err = parseFloat(kv, "AngleInterval"); err != nil {
		return nil, err
	}
	if p.AngleLast, err = parseFloat(kv, "AngleLast"); err != nil {
		return nil, err
	}
	if p.PixelSize, err = parseFloat(kv, "PixelSize"); err != nil {
		return nil, err
	}
	if p.NumberImages, err = parseInt(kv, "NumberImages"); err != nil {
		return nil, err
	}
	if p.DetectorType, err = ParseDetectorType(kv["DetectorType"]); err != nil {
		return nil, err
	}

	// Optional numeric fields are parsed only when present, but a present
	// value must still be numeric.
	for _, opt := range []struct {
		key string
		dst *float64
	}{
		{"ExposureTime", &p.ExposureTime},
		{"Voltage", &p.Voltage},
		{"Current", &p.Current},
		{"XRayFilterThickness", &p.XRayFilterThickness},
	} {
		if _, ok := kv[opt.key]; !ok {
			continue
		}
		if *opt.dst, err = parseFloat(kv, opt.key); err != nil {
			return nil, err
		}
	}

	if err := validate(p); err != nil {
		return nil, err
	}

	p.Angles, err = expandAngles(p.AngleFirst, p.AngleInterval, p.AngleLast)
	if err != nil {
		return nil, err
	}
	if len(p.Angles) != p.NumberImages {
		return nil, &AngleCountError{Declared: p.NumberImages, Generated: len(p.Angles)}
	}

	return p, nil
}

func parseFloat(kv map[string]string, key string) (float64, error) {
	raw := kv[key]
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &MalformedValueError{Field: key, Value: raw}
	}
	return v, nil
}

func parseInt(kv map[string]string, key string) (int, error) {
	// The scanner software writes integer fields in floating-point
	// notation on some firmware revisions, so integers are parsed as
	// floats and required to be integral.
	v, err := parseFloat(kv, key)
	if err != nil {
		return 0, err
	}
	if v != math.Trunc(v) {
		return 0, &MalformedValueError{Field: key, Value: kv[key]}
	}
	return int(v), nil
}

func validate(p *Parameters) error {
	if p.ProjectName == "" {
		return &MissingFieldError{Field: "ProjectName"}
	}
	if p.DistanceSourceDetector <= 0 {
		return &OutOfRangeError{Field: "DistanceSourceDetector", Value: p.DistanceSourceDetector, Constraint: "> 0"}
	}
	if p.DistanceSourceOrigin <= 0 {
		return &OutOfRangeError{Field: "DistanceSourceOrigin", Value: p.DistanceSourceOrigin, Constraint: "> 0"}
	}
	if p.DistanceSourceOrigin >= p.DistanceSourceDetector {
		return &OutOfRangeError{Field: "DistanceSourceOrigin", Value: p.DistanceSourceOrigin, Constraint: "< DistanceSourceDetector"}
	}
	if p.NumberImages <= 0 {
		return &OutOfRangeError{Field: "NumberImages", Value: float64(p.NumberImages), Constraint: "> 0"}
	}
	if p.PixelSize <= 0 {
		return &OutOfRangeError{Field: "PixelSize", Value: p.PixelSize, Constraint: "> 0"}
	}
	return nil
}

// expandAngles generates the arithmetic angle sequence first, first+step,
// ... up to the last value reachable without overshooting last. A small
// relative epsilon absorbs the accumulated floating-point step error so
// that the endpoint itself is included when exactly reachable.
func expandAngles(first, step, last float64) ([]float64, error) {
	if step == 0 {
		if first != last {
			return nil, &OutOfRangeError{Field: "AngleInterval", Value: step, Constraint: "!= 0 when AngleFirst != AngleLast"}
		}
		return []float64{first}, nil
	}
	span := (last - first) / step
	if span < 0 {
		return nil, &OutOfRangeError{Field: "AngleInterval", Value: step, Constraint: "must step from AngleFirst towards AngleLast"}
	}
	n := int(math.Floor(span+1e-9)) + 1
	angles := make([]float64, n)
	for i := range angles {
		angles[i] = first + float64(i)*step
	}
	return angles, nil
}
