package handlers

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/beobridge/halo-bridge-go/internal/adapters/homeassistant"
	"github.com/beobridge/halo-bridge-go/internal/core/halosync"
	"github.com/beobridge/halo-bridge-go/internal/database"
	"github.com/beobridge/halo-bridge-go/internal/halo"
)

// Handlers bundles the dependencies the API endpoints need.
type Handlers struct {
	logger    *logrus.Logger
	client    *halo.Client
	sync      *halosync.Synchronizer
	bindings  *database.BindingRepository
	snapshots *database.SnapshotRepository
	ha        *homeassistant.Client
	startTime time.Time
}

func New(
	logger *logrus.Logger,
	client *halo.Client,
	sync *halosync.Synchronizer,
	bindings *database.BindingRepository,
	snapshots *database.SnapshotRepository,
	ha *homeassistant.Client,
) *Handlers {
	return &Handlers{
		logger:    logger,
		client:    client,
		sync:      sync,
		bindings:  bindings,
		snapshots: snapshots,
		ha:        ha,
		startTime: time.Now(),
	}
}
