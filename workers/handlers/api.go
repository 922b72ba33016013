package handlers

import (
	"net/http"

	"gobridgecore/compressor"
	"gobridgecore/events"
	"gobridgecore/messenger"
	"gobridgecore/optimizer"
	"gobridgecore/registry"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/websocket"
)

// Pinger reports whether the persistence backend is reachable
type Pinger interface {
	Ping() error
}

// API serves the bridge core over HTTP, every handler is a method on it
type API struct {
	SourceChain uint64

	registry   *registry.Registry
	messenger  *messenger.Messenger
	optimizer  *optimizer.Optimizer
	compressor *compressor.Compressor
	bus        *events.Bus
	store      Pinger

	upgrader websocket.Upgrader
	logger   log.Logger
}

type Deps struct {
	Registry   *registry.Registry
	Messenger  *messenger.Messenger
	Optimizer  *optimizer.Optimizer
	Compressor *compressor.Compressor
	Bus        *events.Bus
	Store      Pinger
}

func New(sourceChain uint64, deps Deps) *API {
	return &API{
		SourceChain: sourceChain,
		registry:    deps.Registry,
		messenger:   deps.Messenger,
		optimizer:   deps.Optimizer,
		compressor:  deps.Compressor,
		bus:         deps.Bus,
		store:       deps.Store,
		upgrader:    websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		logger:      log.New("module", "api"),
	}
}
