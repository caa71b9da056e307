package grader

import (
	"sync"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/sqlportal/grader/config"
)

// Service wires the grading worker to its dependencies and owns the
// shutdown channel.
type Service struct {
	logger *zap.Logger

	mainDB *sqlx.DB

	waitGroup *sync.WaitGroup
	stop      chan struct{}

	worker *Worker
}

func NewService(wg *sync.WaitGroup) *Service {
	return &Service{
		waitGroup: wg,
		stop:      make(chan struct{}),
	}
}

func (s *Service) Start(cfg config.Config) error {
	// set up common dependencies
	if err := s.SetupLogger(cfg); err != nil {
		return err
	}
	if err := s.ConnectMainDB(cfg); err != nil {
		return err
	}

	s.worker = NewWorker(s.logger, s.mainDB, cfg.SandboxDBConfig, s.waitGroup, s.stop)
	s.worker.Start(cfg.WorkerConfig)

	return nil
}

func (s *Service) Stop() {
	s.worker.Stop()
	close(s.stop)
}

func (s *Service) SetupLogger(cfg config.Config) error {
	logger, err := cfg.LoggerConfig.Build()
	if err != nil {
		return err
	}

	s.logger = logger

	return nil
}

func (s *Service) ConnectMainDB(cfg config.Config) error {
	db, err := connectDB(cfg.MainDBConfig.DSN(cfg.MainDBConfig.Database))
	if err != nil {
		return err
	}

	s.mainDB = db

	s.logger.Info(
		"main database connected",
		zap.String("host", cfg.MainDBConfig.Host),
		zap.String("database", cfg.MainDBConfig.Database),
	)

	return nil
}
