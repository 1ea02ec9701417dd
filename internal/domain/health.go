package domain

import (
	"time"
)

type (
	// DependencyStatus is the health of a single backing service.
	DependencyStatus struct {
		Status       DependencyCheckStatus `json:"status"`
		ResponseTime float32               `json:"response_time_ms"`
		LastChecked  time.Time             `json:"last_checked"`
		Error        string                `json:"error,omitempty"`
	}

	LivenessResult struct {
		OverallStatus LivenessResponseStatus `json:"status"`
		Uptime        float32                `json:"uptime_seconds"`
	}

	ReadinessResult struct {
		OverallStatus ReadinessResponseStatus `json:"status"`
		Storage       DependencyStatus        `json:"storage"`
		Cache         DependencyStatus        `json:"cache"`
		Queue         DependencyStatus        `json:"queue"`
	}
)
