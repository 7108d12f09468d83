package contracts

import (
	"context"

	"github.com/julienschmidt/httprouter"
)

type Handler interface {
	RegisterRoutes(*httprouter.Router)
}

// Worker is a background loop owned by the application. Run blocks until ctx
// is cancelled.
type Worker interface {
	Name() string
	Run(ctx context.Context) error
}

// Handlers registers several handlers on one router.
type Handlers []Handler

func (hs Handlers) RegisterRoutes(router *httprouter.Router) {
	for _, h := range hs {
		h.RegisterRoutes(router)
	}
}
