package services

import (
	"context"
	"net/http"

	"manualqa/client"
)

// UsageService reports quota usage
type UsageService struct {
	pipeline *client.Pipeline
}

// NewUsageService creates a usage facade
func NewUsageService(p *client.Pipeline) *UsageService {
	return &UsageService{pipeline: p}
}

// Get returns the current usage
func (s *UsageService) Get(ctx context.Context) (*Usage, error) {
	var usage Usage
	err := s.pipeline.Do(ctx, &client.Request{
		Operation: "usage.get",
		Method:    http.MethodGet,
		Path:      "/usage",
	}, &usage)
	if err != nil {
		return nil, err
	}
	return &usage, nil
}
