package domain

type (
	DependencyCheckStatus string

	LivenessResponseStatus string

	ReadinessResponseStatus string
)

const (
	DependencyCheckStatusHealthy   DependencyCheckStatus = "healthy"
	DependencyCheckStatusDegraded  DependencyCheckStatus = "degraded"
	DependencyCheckStatusUnhealthy DependencyCheckStatus = "unhealthy"
	DependencyCheckStatusDisabled  DependencyCheckStatus = "disabled"
)

const (
	LivenessResponseStatusAlive    LivenessResponseStatus = "alive"
	LivenessResponseStatusDegraded LivenessResponseStatus = "degraded"
	LivenessResponseStatusDead     LivenessResponseStatus = "dead"
)

const (
	ReadinessResponseStatusReady    ReadinessResponseStatus = "ready"
	ReadinessResponseStatusDegraded ReadinessResponseStatus = "degraded"
	ReadinessResponseStatusNotReady ReadinessResponseStatus = "not_ready"
)
