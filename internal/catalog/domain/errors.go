package domain

import "errors"

var (
	ErrPlanNotFound = errors.New("plan_not_found")
	ErrInvalidPlan  = errors.New("invalid_plan")
)
