package command

import (
	"fmt"
	"os"

	"github.com/pixil98/go-simlock/internal/entity"
	"github.com/pixil98/go-simlock/internal/storage"
)

type EntitiesConfig struct {
	Path string `json:"path"`
}

func (c *EntitiesConfig) validate() error {
	if c.Path == "" {
		return fmt.Errorf("entities: path is required")
	}
	_, err := os.Stat(c.Path)
	if err != nil {
		return fmt.Errorf("entities: invalid path %q: %w", c.Path, err)
	}

	return nil
}

func (c *EntitiesConfig) BuildDirectory(opts ...entity.DirectoryOpt) (*entity.Directory, error) {
	store, err := storage.NewFileStore[*entity.Entity](c.Path)
	if err != nil {
		return nil, fmt.Errorf("creating entity store: %w", err)
	}

	dir, err := entity.NewDirectory(store, opts...)
	if err != nil {
		return nil, fmt.Errorf("indexing entities: %w", err)
	}

	return dir, nil
}
