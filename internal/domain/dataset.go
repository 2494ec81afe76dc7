package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DatasetType tags the assay modality of an uploaded dataset.
type DatasetType string

const (
	DatasetSingleCell DatasetType = "single_cell"
	DatasetBulkRNA    DatasetType = "bulk_rna"
	DatasetSpatial    DatasetType = "spatial"
	DatasetMultiome   DatasetType = "multiome"
)

// Dataset is the immutable raw input created once at upload time.
// RawURI points at the uploaded object (h5ad, 10x bundle, csv) and is
// never mutated after creation.
type Dataset struct {
	ID        string
	ProjectID string
	Name      string
	Type      DatasetType
	RawURI    string
	Metadata  Metadata
	Tags      []string
	Notes     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (d Dataset) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return errors.New("dataset id is required")
	}
	if strings.TrimSpace(d.ProjectID) == "" {
		return errors.New("project id is required")
	}
	if strings.TrimSpace(d.Name) == "" {
		return errors.New("dataset name is required")
	}
	switch d.Type {
	case DatasetSingleCell, DatasetBulkRNA, DatasetSpatial, DatasetMultiome:
	default:
		return fmt.Errorf("unsupported dataset type: %q", d.Type)
	}
	return nil
}
