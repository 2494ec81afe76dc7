package domain

import (
	"errors"
	"strings"
	"time"
)

// Project is the container for one biological question or experiment topic.
type Project struct {
	ID             string
	Name           string
	Description    string
	Owner          string
	OrganizationID string
	Tags           []string
	Notes          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (p Project) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("project id is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("project name is required")
	}
	if strings.TrimSpace(p.Owner) == "" {
		return errors.New("project owner is required")
	}
	return nil
}
