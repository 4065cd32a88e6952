package pipeline

import (
	"sessionsync/internal/encode"
	"sessionsync/internal/inference"
	"sessionsync/internal/nwb"
	"sessionsync/internal/probe"
	"sessionsync/internal/store"
	"sessionsync/pkg/logger"
)

// Option customizes a Service; unset collaborators get working defaults
// derived from the configuration.
type Option func(*Service)

func WithLogger(log *logger.Logger) Option {
	return func(s *Service) { s.log = log }
}

func WithProber(p probe.Prober) Option {
	return func(s *Service) { s.prober = p }
}

func WithStore(db *store.DBClient) Option {
	return func(s *Service) { s.db = db }
}

func WithEncoder(e *encode.Encoder) Option {
	return func(s *Service) { s.encoder = e }
}

// WithRunners replaces the pose and facemap collaborators; nil entries
// disable the corresponding stage.
func WithRunners(pose, facemap inference.Runner) Option {
	return func(s *Service) {
		s.pose = pose
		s.facemap = facemap
	}
}

func WithAssembler(a nwb.Assembler) Option {
	return func(s *Service) { s.assembler = a }
}
