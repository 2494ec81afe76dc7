package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ArtifactType tags a stored output object.
type ArtifactType string

const (
	ArtifactProcessedData ArtifactType = "processed-data"
	ArtifactTabular       ArtifactType = "tabular"
	ArtifactImage         ArtifactType = "image"
	ArtifactDocument      ArtifactType = "document"
	ArtifactStructured    ArtifactType = "structured-data"
)

// NormalizeArtifactType maps runner-reported type tags (including the legacy
// file-extension spellings stored by older configurations) to the canonical
// enum.
func NormalizeArtifactType(value string) ArtifactType {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(ArtifactProcessedData), "h5ad":
		return ArtifactProcessedData
	case string(ArtifactTabular), "csv":
		return ArtifactTabular
	case string(ArtifactImage), "png":
		return ArtifactImage
	case string(ArtifactDocument), "pdf", "html":
		return ArtifactDocument
	case string(ArtifactStructured), "json":
		return ArtifactStructured
	default:
		return ""
	}
}

// Artifact is one stored output object belonging to a StepRun. Immutable
// once created; owned exclusively by its StepRun.
type Artifact struct {
	ID        string
	StepRunID string
	Name      string
	Type      ArtifactType
	ObjectKey string
	SizeBytes int64
	SHA256    string
	Metadata  Metadata
	CreatedAt time.Time
}

func (a Artifact) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return errors.New("artifact id is required")
	}
	if strings.TrimSpace(a.StepRunID) == "" {
		return errors.New("step run id is required")
	}
	if strings.TrimSpace(a.Name) == "" {
		return errors.New("artifact name is required")
	}
	if NormalizeArtifactType(string(a.Type)) == "" {
		return fmt.Errorf("unsupported artifact type: %q", a.Type)
	}
	if strings.TrimSpace(a.ObjectKey) == "" {
		return errors.New("object key is required")
	}
	return nil
}
