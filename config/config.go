// Package config holds the build settings for the navmesh generator and
// loads them from a YAML file layered over the built-in defaults.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/navforge/navforge/mesher"
)

// Grid layout constants. A map tile covers GridSize world units and is
// voxelized with CellsPerTile cells per side, giving the base cell size.
const (
	GridSize     = 533.3333313
	CellsPerTile = 80
	// BaseUnitDim is the edge length of one cell in world units.
	BaseUnitDim = float32(0.2666666)
)

// Build collects the tunable mesh generation parameters. Region sides are in
// cells and get squared into span-count areas when converted to a run config.
type Build struct {
	CellSize               float32 `yaml:"cell_size"`
	CellHeight             float32 `yaml:"cell_height"`
	TileSize               int32   `yaml:"tile_size"`
	BorderSize             int32   `yaml:"border_size"`
	WalkableSlopeAngle     float32 `yaml:"walkable_slope_angle"`
	WalkableHeight         int32   `yaml:"walkable_height"`
	WalkableClimb          int32   `yaml:"walkable_climb"`
	WalkableRadius         int32   `yaml:"walkable_radius"`
	MaxEdgeLen             int32   `yaml:"max_edge_len"`
	MaxSimplificationError float32 `yaml:"max_simplification_error"`
	MinRegionSide          int32   `yaml:"min_region_side"`
	MergeRegionSide        int32   `yaml:"merge_region_side"`
	DetailSampleDist       float32 `yaml:"detail_sample_dist"`
	DetailSampleMaxError   float32 `yaml:"detail_sample_max_error"`
	SpanMergeThreshold     int32   `yaml:"span_merge_threshold"`
}

// Log configures the process logger.
type Log struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Config is the root of the YAML configuration file.
type Config struct {
	Build       Build  `yaml:"build"`
	Log         Log    `yaml:"log"`
	OutputDir   string `yaml:"output_dir"`
	OffMeshFile string `yaml:"off_mesh_file"`
	Workers     int    `yaml:"workers"`
}

// Default returns the configuration used when no file overrides are given.
func Default() *Config {
	return &Config{
		Build: Build{
			CellSize:               BaseUnitDim,
			CellHeight:             BaseUnitDim,
			TileSize:               CellsPerTile,
			BorderSize:             5,
			WalkableSlopeAngle:     60.0,
			WalkableHeight:         6,
			WalkableClimb:          4,
			WalkableRadius:         2,
			MaxEdgeLen:             CellsPerTile + 1,
			MaxSimplificationError: 1.8,
			MinRegionSide:          60,
			MergeRegionSide:        50,
			DetailSampleDist:       BaseUnitDim * 16.0,
			DetailSampleMaxError:   BaseUnitDim,
			SpanMergeThreshold:     4,
		},
		Log: Log{
			Level: "info",
			File:  "logs/navforge.log",
		},
		OutputDir: "mmaps",
		Workers:   1,
	}
}

// Load reads the YAML file at path over the defaults. A missing path returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings that would make a build fail midway.
func (c *Config) Validate() error {
	rc := c.Build.ToRunConfig()
	if err := rc.Validate(); err != nil {
		return err
	}
	if c.Build.TileSize <= 0 {
		return fmt.Errorf("%w: tile_size %d must be > 0", mesher.ErrInvalidConfig, c.Build.TileSize)
	}
	if c.Build.BorderSize < 0 {
		return fmt.Errorf("%w: border_size %d must be >= 0", mesher.ErrInvalidConfig, c.Build.BorderSize)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers %d must be >= 0", mesher.ErrInvalidConfig, c.Workers)
	}
	return nil
}

// ToRunConfig converts the settings to a pipeline run config. Grid size and
// bounds are filled per tile by the pipeline.
func (b *Build) ToRunConfig() mesher.Config {
	return mesher.Config{
		TileSize:               b.TileSize,
		BorderSize:             b.BorderSize,
		CS:                     b.CellSize,
		CH:                     b.CellHeight,
		WalkableSlopeAngle:     b.WalkableSlopeAngle,
		WalkableHeight:         b.WalkableHeight,
		WalkableClimb:          b.WalkableClimb,
		WalkableRadius:         b.WalkableRadius,
		MaxEdgeLen:             b.MaxEdgeLen,
		MaxSimplificationError: b.MaxSimplificationError,
		MinRegionArea:          b.MinRegionSide * b.MinRegionSide,
		MergeRegionArea:        b.MergeRegionSide * b.MergeRegionSide,
		MaxVertsPerPoly:        mesher.MaxVertsPerPolygon,
		DetailSampleDist:       b.DetailSampleDist,
		DetailSampleMaxError:   b.DetailSampleMaxError,
		SpanMergeThreshold:     b.SpanMergeThreshold,
	}
}
