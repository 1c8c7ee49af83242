package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"github.com/zeusync/kinetic/internal/core/observability/log"
	"github.com/zeusync/kinetic/internal/core/physics"
	"github.com/zeusync/kinetic/internal/core/physics/native"
	"github.com/zeusync/kinetic/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to a yaml world config")
	streamHost := flag.String("stream-host", "0.0.0.0", "state stream bind host")
	streamPort := flag.Int("stream-port", 8090, "state stream bind port")
	flag.Parse()

	logger := log.New(log.LevelInfo)

	cfg := physics.DefaultConfig()
	if *configPath != "" {
		loaded, err := physics.LoadConfig(*configPath)
		if err != nil {
			logger.Fatal("load config", log.Error(err))
		}
		cfg = loaded
	}

	backend := native.New(cfg, logger)
	world, err := physics.NewWorld(cfg, backend, logger)
	if err != nil {
		logger.Fatal("create world", log.Error(err))
	}

	if err := seedScene(world); err != nil {
		logger.Fatal("seed scene", log.Error(err))
	}

	stream := server.NewStateStreamServer(logger)
	if err := stream.Start(*streamHost, *streamPort); err != nil {
		logger.Fatal("start state stream", log.Error(err))
	}

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	ticker := time.NewTicker(time.Duration(cfg.FixedTimestep * float64(time.Second)))
	defer ticker.Stop()

	logger.Info("simulation loop running", log.Float64("timestep", cfg.FixedTimestep))
loop:
	for {
		select {
		case <-stopCh:
			break loop
		case now := <-ticker.C:
			if err := world.Step(cfg.FixedTimestep); err != nil {
				logger.Error("tick failed", log.Error(err))
				continue
			}
			world.NotifyFrame(now)
			if stream.ClientCount() > 0 {
				stream.Broadcast(world.Tick(), world.Snapshot())
			}
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := stream.Stop(shutdownCtx); err != nil {
		logger.Warn("stop state stream", log.Error(err))
	}
	if err := world.Close(); err != nil {
		logger.Warn("close world", log.Error(err))
	}
	logger.Info("simulation stopped", log.Uint64("ticks", world.Tick()))
}

// seedScene builds a small demo island: a kinematic ground slab and a
// stack of dynamic spheres dropped onto it.
func seedScene(world *physics.World) error {
	ground, err := world.CreateBody(uuid.New(), mgl64.Vec3{0, -1, 0}, mgl64.QuatIdent())
	if err != nil {
		return err
	}
	ground.SetKinematic(true)
	ground.AddCollider(physics.NewBoxCollider(mgl64.Vec3{50, 1, 50}, 0))

	for i := 0; i < 4; i++ {
		ball, err := world.CreateBody(uuid.New(), mgl64.Vec3{0, 5 + 3*float64(i), 0}, mgl64.QuatIdent())
		if err != nil {
			return err
		}
		ball.AddCollider(physics.NewSphereCollider(0.5, 1))
	}
	return nil
}
