package model

import (
	"fmt"
	"strings"
)

type FunctionalRequirement struct {
	ID          string `json:"id" bson:"id"`
	Title       string `json:"title" bson:"title"`
	Description string `json:"description" bson:"description"`
	Priority    string `json:"priority" bson:"priority"`
	Status      string `json:"status" bson:"status"`
}

func (r *FunctionalRequirement) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("%w: requirement title is required", ErrValidation)
	}
	if r.Priority != "" && !oneOf(r.Priority, priorities) {
		return fmt.Errorf("%w: invalid priority %q", ErrValidation, r.Priority)
	}
	return nil
}

type NonFunctionalRequirement struct {
	ID          string `json:"id" bson:"id"`
	Category    string `json:"category" bson:"category"`
	Description string `json:"description" bson:"description"`
	Metric      string `json:"metric" bson:"metric"`
	Priority    string `json:"priority" bson:"priority"`
}

func (r *NonFunctionalRequirement) Validate() error {
	if strings.TrimSpace(r.Category) == "" {
		return fmt.Errorf("%w: requirement category is required", ErrValidation)
	}
	if strings.TrimSpace(r.Description) == "" {
		return fmt.Errorf("%w: requirement description is required", ErrValidation)
	}
	if r.Priority != "" && !oneOf(r.Priority, priorities) {
		return fmt.Errorf("%w: invalid priority %q", ErrValidation, r.Priority)
	}
	return nil
}
