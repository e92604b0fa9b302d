package command

import (
	"fmt"

	"github.com/pixil98/go-service"
	"github.com/pixil98/go-simlock/internal/entity"
)

func BuildWorkers(config interface{}) (service.WorkerList, error) {
	cfg, ok := config.(*Config)
	if !ok {
		return nil, fmt.Errorf("unable to cast config")
	}

	ns, err := cfg.Nats.buildNatsServer()
	if err != nil {
		return nil, fmt.Errorf("creating nats server: %w", err)
	}

	node := newAuthorityNode(cfg, ns)

	dir, err := cfg.Entities.BuildDirectory(entity.WithRetireHook(node.retire))
	if err != nil {
		return nil, fmt.Errorf("creating entity directory: %w", err)
	}
	node.directory = dir

	return service.WorkerList{
		"nats":      ns,
		"authority": node,
	}, nil
}
