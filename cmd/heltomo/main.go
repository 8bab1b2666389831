package main

import (
	"flag"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Diagonalizable/HelTomo/internal/projsource"
	"github.com/Diagonalizable/HelTomo/pkg/config"
	"github.com/Diagonalizable/HelTomo/pkg/ctproject"
	"github.com/Diagonalizable/HelTomo/pkg/geometry"
	"github.com/Diagonalizable/HelTomo/pkg/preview"
	"github.com/Diagonalizable/HelTomo/pkg/scanparams"
	"github.com/Diagonalizable/HelTomo/pkg/sinogram"
)

func main() {
	paramsPath := flag.String("params", "", "Scan parameter file (Key=Value lines)")
	inputDir := flag.String("input", "", "Directory containing raw projection images (PNG/JPEG)")
	dicomInput := flag.Bool("dicom", false, "Treat the input directory as a DICOM series")
	configPath := flag.String("config", "heltomo.yaml", "Pipeline configuration file (YAML)")
	outputDir := flag.String("output", "", "Artifact output directory (overrides config)")
	artifactName := flag.String("name", "", "Explicit artifact name (overrides the derived default)")
	debugMode := flag.Bool("debug", false, "Enable debug mode with verbose logging")
	flag.Parse()

	logger := initLogger(*debugMode)

	if *paramsPath == "" || *inputDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load pipeline configuration")
	}
	if *outputDir != "" {
		cfg.Output.Dir = *outputDir
	}
	if *artifactName != "" {
		cfg.Output.Name = *artifactName
	}

	params, err := scanparams.ParseFile(*paramsPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to parse scan parameters")
	}
	logger.WithFields(logrus.Fields{
		"project":  params.ProjectName,
		"scanner":  params.Scanner,
		"images":   params.NumberImages,
		"detector": params.DetectorType.String(),
	}).Info("Scan parameters loaded")

	mode, err := ctproject.ParseMode(cfg.Pipeline.Mode)
	if err != nil {
		logger.WithError(err).Fatal("Invalid reconstruction mode")
	}

	var source sinogram.Source
	if *dicomInput {
		source, err = projsource.NewDICOMDir(*inputDir)
	} else {
		source, err = projsource.NewDir(*inputDir)
	}
	if err != nil {
		logger.WithError(err).Fatal("Failed to open projection source")
	}

	builder := &sinogram.Builder{
		Params: params,
		Mode:   mode,
		Source: source,
		Window: scanparams.FreeRayWindow{
			Row1: cfg.Window.Row1,
			Row2: cfg.Window.Row2,
			Col1: cfg.Window.Col1,
			Col2: cfg.Window.Col2,
		},
		CORShift:      cfg.Pipeline.CORShift,
		BinningFactor: cfg.Pipeline.BinningFactor,
		Workers:       cfg.Pipeline.NumWorkers,
		Log:           logger,
	}

	start := time.Now()
	project, err := builder.Build()
	if err != nil {
		logger.WithError(err).Fatal("Sinogram assembly failed")
	}
	logger.WithField("elapsed", time.Since(start).Round(time.Millisecond)).Info("Project built")

	geo, err := geometry.FromParameters(project.Params)
	if err != nil {
		logger.WithError(err).Fatal("Failed to derive normalized geometry")
	}
	logger.WithFields(logrus.Fields{
		"magnification":          geo.Magnification,
		"sourceToOriginPixels":   geo.SourceToOriginPixels,
		"originToDetectorPixels": geo.OriginToDetectorPixels,
		"detectorRows":           geo.DetectorRows,
		"detectorCols":           geo.DetectorCols,
	}).Info("Normalized geometry")

	name, err := ctproject.Save(project, cfg.Output.Dir, cfg.Output.Name)
	if err != nil {
		logger.WithError(err).Fatal("Failed to save project artifact")
	}
	logger.WithFields(logrus.Fields{
		"dir":  cfg.Output.Dir,
		"name": name,
	}).Info("Project artifact saved")

	if cfg.Preview.Enabled {
		pngPath := filepath.Join(cfg.Preview.Dir, name+".png")
		if err := preview.SavePNG(project, pngPath); err != nil {
			logger.WithError(err).Warn("Failed to render sinogram preview")
		} else {
			logger.WithField("path", pngPath).Info("Sinogram preview written")
		}
		if cfg.Preview.Heatmap {
			heatPath := filepath.Join(cfg.Preview.Dir, name+"_heatmap.png")
			if err := preview.SaveHeatmap(project, heatPath); err != nil {
				logger.WithError(err).Warn("Failed to render sinogram heatmap")
			} else {
				logger.WithField("path", heatPath).Info("Sinogram heatmap written")
			}
		}
	}
}

// initLogger initializes the logger with appropriate level
func initLogger(debugMode bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	if debugMode {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   true,
		})
		logger.Debug("Debug logging enabled")
	} else {
		logger.SetLevel(logrus.InfoLevel)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}
