package ctproject

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Diagonalizable/HelTomo/pkg/scanparams"
)

// DefaultArtifactName derives the persisted artifact name of a project:
// {projectName}ct_project_{lowercased mode}_binning_{binningFactor}.
func DefaultArtifactName(p *Project) string {
	factor := 1
	if p.Params.Derived != nil {
		factor = p.Params.Derived.BinningFactor
	}
	return fmt.Sprintf("%sct_project_%s_binning_%d",
		p.Params.ProjectName, strings.ToLower(p.Mode.String()), factor)
}

// bufferMeta describes one persisted sinogram buffer in the artifact
// header.
type bufferMeta struct {
	Bin  string `yaml:"bin"`
	File string `yaml:"file"`

	Cols   int `yaml:"cols"`
	Angles int `yaml:"angles"`
	Rows   int `yaml:"rows,omitempty"`
}

// artifactHeader is the YAML metadata half of a persisted project.
type artifactHeader struct {
	Mode       string                 `yaml:"mode"`
	Parameters *scanparams.Parameters `yaml:"parameters"`
	Buffers    []bufferMeta           `yaml:"buffers"`
}

// Save writes the project under dir as a named aggregate artifact: a YAML
// header <name>.yaml plus one raw little-endian float64 buffer file per
// energy bin. An empty name selects DefaultArtifactName. Save returns the
// name actually used.
func Save(p *Project, dir, name string) (string, error) {
	if name == "" {
		name = DefaultArtifactName(p)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create artifact directory: %w", err)
	}

	header := artifactHeader{
		Mode:       p.Mode.String(),
		Parameters: p.Params,
	}
	for _, bin := range p.Bins() {
		meta := bufferMeta{
			Bin:  bin.String(),
			File: fmt.Sprintf("%s.%s.f64", name, bin),
		}
		var raw []float64
		switch p.Mode {
		case Mode2D:
			s := p.sino2D[bin]
			meta.Cols, meta.Angles = s.NumCols, s.NumAngles
			raw = s.Raw()
		case Mode3D:
			s := p.sino3D[bin]
			meta.Cols, meta.Angles, meta.Rows = s.NumCols, s.NumAngles, s.NumRows
			raw = s.Raw()
		}
		if err := writeBuffer(filepath.Join(dir, meta.File), raw); err != nil {
			return "", err
		}
		header.Buffers = append(header.Buffers, meta)
	}

	data, err := yaml.Marshal(&header)
	if err != nil {
		return "", fmt.Errorf("marshal artifact header: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name+".yaml"), data, 0644); err != nil {
		return "", fmt.Errorf("write artifact header: %w", err)
	}
	return name, nil
}

// Load reads a project artifact previously written by Save. Bin
// completeness for the detector type is re-validated on load, so a
// truncated PCD artifact fails rather than yielding a partially populated
// project.
func Load(dir, name string) (*Project, error) {
	data, err := os.ReadFile(filepath.Join(dir, name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("read artifact header: %w", err)
	}
	var header artifactHeader
	if err := yaml.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("parse artifact header: %w", err)
	}
	if header.Parameters == nil {
		return nil, fmt.Errorf("artifact %s: header carries no scan parameters", name)
	}
	mode, err := ParseMode(header.Mode)
	if err != nil {
		return nil, err
	}

	switch mode {
	case Mode2D:
		bufs := make(map[EnergyBin]*Sinogram2D, len(header.Buffers))
		for _, meta := range header.Buffers {
			bin, err := ParseEnergyBin(meta.Bin)
			if err != nil {
				return nil, err
			}
			raw, err := readBuffer(filepath.Join(dir, meta.File), meta.Angles*meta.Cols)
			if err != nil {
				return nil, err
			}
			s := NewSinogram2D(meta.Angles, meta.Cols)
			copy(s.data, raw)
			bufs[bin] = s
		}
		return New2D(header.Parameters, bufs)

	case Mode3D:
		bufs := make(map[EnergyBin]*Sinogram3D, len(header.Buffers))
		for _, meta := range header.Buffers {
			bin, err := ParseEnergyBin(meta.Bin)
			if err != nil {
				return nil, err
			}
			raw, err := readBuffer(filepath.Join(dir, meta.File), meta.Cols*meta.Angles*meta.Rows)
			if err != nil {
				return nil, err
			}
			s := NewSinogram3D(meta.Cols, meta.Angles, meta.Rows)
			copy(s.data, raw)
			bufs[bin] = s
		}
		return New3D(header.Parameters, bufs)
	}
	return nil, fmt.Errorf("ctproject: unknown reconstruction mode %q", header.Mode)
}

func writeBuffer(path string, data []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create sinogram buffer file: %w", err)
	}
	defer f.Close()
	if err := binary.Write(f, binary.LittleEndian, data); err != nil {
		return fmt.Errorf("write sinogram buffer %s: %w", path, err)
	}
	return nil
}

func readBuffer(path string, want int) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sinogram buffer file: %w", err)
	}
	defer f.Close()
	data := make([]float64, want)
	if err := binary.Read(f, binary.LittleEndian, data); err != nil {
		return nil, fmt.Errorf("read sinogram buffer %s: %w", path, err)
	}
	return data, nil
}
