package health

import "context"

// Status is the aggregated health of the service.
type Status string

const (
	// Healthy indicates every component answered.
	Healthy Status = "ok"
	// Degraded indicates the pipeline works partially, e.g. retrieval
	// up but embedding provider unreachable.
	Degraded Status = "degraded"
	// Unhealthy indicates no component answered.
	Unhealthy Status = "error"
)

// CheckResult is the outcome of one component check.
type CheckResult string

const (
	CheckOK    CheckResult = "ok"
	CheckError CheckResult = "error"
)

// Report aggregates component check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service probes the vector store and the embedding provider.
type Service struct {
	store     VectorStorePinger
	embedding EmbeddingChecker
}

// New creates a Service. embedding can be nil when no provider check
// is wanted, e.g. to avoid spending tokens on every probe.
func New(store VectorStorePinger, embedding EmbeddingChecker) *Service {
	return &Service{store: store, embedding: embedding}
}

// Check probes all components and aggregates the outcome.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	checks["vector_store"] = resultOf(s.store.Ping(ctx))
	if s.embedding != nil {
		checks["embedding"] = resultOf(s.embedding.HealthCheck(ctx))
	}

	failed := 0
	for _, v := range checks {
		if v == CheckError {
			failed++
		}
	}

	status := Healthy
	switch {
	case failed == len(checks):
		status = Unhealthy
	case failed > 0:
		status = Degraded
	}

	return Report{Status: status, Checks: checks}
}

func resultOf(err error) CheckResult {
	if err != nil {
		return CheckError
	}
	return CheckOK
}
