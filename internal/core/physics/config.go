package physics

import (
	"fmt"
	"os"

	"github.com/go-gl/mathgl/mgl64"
	"gopkg.in/yaml.v3"
)

// Config carries the world-level simulation settings.
type Config struct {
	// Gravity is the global gravity vector in m/s^2.
	Gravity [3]float64 `json:"gravity" yaml:"gravity"`
	// FixedTimestep is the simulation tick length in seconds.
	FixedTimestep float64 `json:"fixed_timestep" yaml:"fixed_timestep"`
	// MaxBodies caps the number of live bodies; CreateBody fails with
	// ErrWorldFull beyond it. Zero means unlimited.
	MaxBodies int `json:"max_bodies,omitempty" yaml:"max_bodies,omitempty"`
	// SleepThreshold is the default per-body activity level below which a
	// body becomes eligible to sleep.
	SleepThreshold float64 `json:"sleep_threshold" yaml:"sleep_threshold"`
	// SleepTime is how long activity must stay below the threshold before
	// the solver puts a body to sleep, in seconds.
	SleepTime float64 `json:"sleep_time" yaml:"sleep_time"`
	// MaxAngularVelocity is the default angular velocity clamp in rad/s.
	MaxAngularVelocity float64 `json:"max_angular_velocity" yaml:"max_angular_velocity"`
	// PositionIterations is the default position solver iteration count.
	PositionIterations uint32 `json:"position_iterations" yaml:"position_iterations"`
	// VelocityIterations is the default velocity solver iteration count.
	VelocityIterations uint32 `json:"velocity_iterations" yaml:"velocity_iterations"`
	// BroadphaseCellSize is the spatial grid cell size used by the built-in
	// backend, in meters.
	BroadphaseCellSize float64 `json:"broadphase_cell_size" yaml:"broadphase_cell_size"`
	// SweepSubsteps is how many intermediate positions a swept move samples
	// for contacts.
	SweepSubsteps int `json:"sweep_substeps" yaml:"sweep_substeps"`
	// StepWorkers caps the goroutines used for parallel integration inside
	// a tick. Zero or negative means one goroutine per body.
	StepWorkers int `json:"step_workers,omitempty" yaml:"step_workers,omitempty"`
}

// DefaultConfig returns the settings used when nothing is configured
// explicitly: 50 Hz ticks, Earth gravity, moderate solver iteration counts.
func DefaultConfig() Config {
	return Config{
		Gravity:            [3]float64{0, -9.81, 0},
		FixedTimestep:      0.02,
		MaxBodies:          4096,
		SleepThreshold:     0.05,
		SleepTime:          0.5,
		MaxAngularVelocity: 50,
		PositionIterations: 4,
		VelocityIterations: 8,
		BroadphaseCellSize: 5.0,
		SweepSubsteps:      4,
		StepWorkers:        0,
	}
}

// Validate checks the configuration for values the simulation cannot run
// with.
func (c Config) Validate() error {
	if c.FixedTimestep <= 0 {
		return fmt.Errorf("fixed_timestep must be positive, got %v", c.FixedTimestep)
	}
	if c.MaxBodies < 0 {
		return fmt.Errorf("max_bodies must not be negative, got %d", c.MaxBodies)
	}
	if c.SleepThreshold < 0 {
		return fmt.Errorf("sleep_threshold must not be negative, got %v", c.SleepThreshold)
	}
	if c.SleepTime < 0 {
		return fmt.Errorf("sleep_time must not be negative, got %v", c.SleepTime)
	}
	if c.MaxAngularVelocity <= 0 {
		return fmt.Errorf("max_angular_velocity must be positive, got %v", c.MaxAngularVelocity)
	}
	if c.BroadphaseCellSize <= 0 {
		return fmt.Errorf("broadphase_cell_size must be positive, got %v", c.BroadphaseCellSize)
	}
	if c.SweepSubsteps < 1 {
		return fmt.Errorf("sweep_substeps must be at least 1, got %d", c.SweepSubsteps)
	}
	return nil
}

// GravityVec returns the gravity vector as an mgl64.Vec3.
func (c Config) GravityVec() mgl64.Vec3 {
	return mgl64.Vec3{c.Gravity[0], c.Gravity[1], c.Gravity[2]}
}

// LoadConfig reads a yaml config file and fills unset values from
// DefaultConfig.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg := DefaultConfig()
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err = cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}
