// Package catalog is a read-only table and volume lookup backed by a YAML
// file. It stands in for the catalog service's entity store so the
// credential endpoints can resolve ids to storage locations.
//
// File format:
//
//	tables:
//	  - table_id: 6f1c...
//	    name: trips
//	    catalog_name: main
//	    schema_name: default
//	    storage_location: s3://lake/main/default/trips
//	volumes:
//	  - volume_id: 9a2b...
//	    name: raw
//	    catalog_name: main
//	    schema_name: landing
//	    storage_location: abfss://raw@acct.dfs.core.windows.net/landing
package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rescale/credvend/internal/cloud"
	"github.com/rescale/credvend/internal/models"
)

// Lookup resolves catalog ids. Implementations return a cloud.KindNotFound
// error for unknown ids.
type Lookup interface {
	GetTable(ctx context.Context, tableID string) (*models.TableInfo, error)
	GetVolume(ctx context.Context, volumeID string) (*models.VolumeInfo, error)
}

// File is the on-disk catalog document.
type File struct {
	Tables  []models.TableInfo  `yaml:"tables"`
	Volumes []models.VolumeInfo `yaml:"volumes"`
}

// Store is an immutable in-memory index over a catalog File.
type Store struct {
	tables  map[string]models.TableInfo
	volumes map[string]models.VolumeInfo
}

var (
	// ErrDuplicateID is returned when two entries share an id.
	ErrDuplicateID = errors.New("duplicate catalog id")

	// ErrMissingID is returned for an entry without an id.
	ErrMissingID = errors.New("catalog entry has no id")
)

// Load reads a catalog YAML file. An empty path yields an empty store.
func Load(path string) (*Store, error) {
	if path == "" {
		return New(File{})
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return s, nil
}

// Parse decodes catalog YAML. Unknown keys are rejected so typos in ids or
// locations surface at startup.
func Parse(data []byte) (*Store, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return New(f)
}

// New indexes f by id.
func New(f File) (*Store, error) {
	s := &Store{
		tables:  make(map[string]models.TableInfo, len(f.Tables)),
		volumes: make(map[string]models.VolumeInfo, len(f.Volumes)),
	}
	for i, t := range f.Tables {
		if t.TableID == "" {
			return nil, fmt.Errorf("tables[%d] (%s): %w", i, t.Name, ErrMissingID)
		}
		if _, dup := s.tables[t.TableID]; dup {
			return nil, fmt.Errorf("table %s: %w", t.TableID, ErrDuplicateID)
		}
		s.tables[t.TableID] = t
	}
	for i, v := range f.Volumes {
		if v.VolumeID == "" {
			return nil, fmt.Errorf("volumes[%d] (%s): %w", i, v.Name, ErrMissingID)
		}
		if _, dup := s.volumes[v.VolumeID]; dup {
			return nil, fmt.Errorf("volume %s: %w", v.VolumeID, ErrDuplicateID)
		}
		s.volumes[v.VolumeID] = v
	}
	return s, nil
}

// GetTable returns a copy of the table with the given id.
func (s *Store) GetTable(_ context.Context, tableID string) (*models.TableInfo, error) {
	t, ok := s.tables[tableID]
	if !ok {
		return nil, cloud.NewNotFoundError("catalog.GetTable", fmt.Errorf("Table not found: %s", tableID))
	}
	return &t, nil
}

// GetVolume returns a copy of the volume with the given id.
func (s *Store) GetVolume(_ context.Context, volumeID string) (*models.VolumeInfo, error) {
	v, ok := s.volumes[volumeID]
	if !ok {
		return nil, cloud.NewNotFoundError("catalog.GetVolume", fmt.Errorf("Volume not found: %s", volumeID))
	}
	return &v, nil
}

// Counts returns the number of tables and volumes.
func (s *Store) Counts() (tables, volumes int) {
	return len(s.tables), len(s.volumes)
}

var _ Lookup = (*Store)(nil)
