// Package registry is the only path by which the pipeline reads or writes the
// deployed model. It translates storage failures into the pipeline error kinds.
package registry

import (
	"context"
	"errors"
	"os"

	"github.com/ILLUVRSE/training-pipeline/internal/estimator"
	"github.com/ILLUVRSE/training-pipeline/internal/models"
	"github.com/ILLUVRSE/training-pipeline/internal/pipelineerr"
)

type Registry interface {
	// Exists reports whether a model is stored at slot. A missing object is
	// (false, nil); only a failed probe returns an error.
	Exists(ctx context.Context, slot models.Slot) (bool, error)
	// Load fetches and decodes the model at slot.
	Load(ctx context.Context, slot models.Slot) (*estimator.Model, error)
	// Save uploads the local model file to slot, replacing what is there.
	// Concurrent writers are not coordinated: the last upload wins.
	Save(ctx context.Context, localPath string, slot models.Slot, deleteLocal bool) error
}

// BlobRegistry implements Registry over any BlobStore.
type BlobRegistry struct {
	blobs BlobStore
}

func New(blobs BlobStore) *BlobRegistry {
	return &BlobRegistry{blobs: blobs}
}

func (r *BlobRegistry) Exists(ctx context.Context, slot models.Slot) (bool, error) {
	keys, err := r.blobs.List(ctx, slot.Bucket, slot.Key)
	if err != nil {
		return false, pipelineerr.DataAccess("probe "+slot.String(), err)
	}
	for _, k := range keys {
		if k == slot.Key {
			return true, nil
		}
	}
	return false, nil
}

func (r *BlobRegistry) Load(ctx context.Context, slot models.Slot) (*estimator.Model, error) {
	b, err := r.blobs.Get(ctx, slot.Bucket, slot.Key)
	if err != nil {
		return nil, pipelineerr.DataAccess("fetch "+slot.String(), err)
	}
	m, err := estimator.Unmarshal(b)
	if err != nil {
		return nil, pipelineerr.ModelLoad("decode "+slot.String(), err)
	}
	return m, nil
}

func (r *BlobRegistry) Save(ctx context.Context, localPath string, slot models.Slot, deleteLocal bool) error {
	if err := r.upload(ctx, localPath, slot); err != nil {
		return err
	}
	if deleteLocal {
		if err := os.Remove(localPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return pipelineerr.DataAccess("remove "+localPath, err)
		}
	}
	return nil
}

// upload streams the local file to slot. The file is closed before Save
// removes it.
func (r *BlobRegistry) upload(ctx context.Context, localPath string, slot models.Slot) error {
	f, err := os.Open(localPath)
	if err != nil {
		return pipelineerr.DataAccess("open "+localPath, err)
	}
	defer f.Close()
	if err := r.blobs.Put(ctx, slot.Bucket, slot.Key, f); err != nil {
		return pipelineerr.Publish("upload "+slot.String(), err)
	}
	return nil
}
