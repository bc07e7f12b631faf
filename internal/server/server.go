package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/berfenger/meteremu/internal/config"
	"github.com/berfenger/meteremu/internal/core/port"
)

type Server struct {
	host     string
	port     uint
	httpLog  bool
	backend  port.Backend
	frontend port.Frontend
}

func NewServer(cfg config.Config, backend port.Backend, frontend port.Frontend) *http.Server {
	NewServer := &Server{
		host:     cfg.Server.Host,
		port:     cfg.Server.Port,
		httpLog:  cfg.HttpLog,
		backend:  backend,
		frontend: frontend,
	}

	// Declare Server config
	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", NewServer.host, NewServer.port),
		Handler:     NewServer.RegisterRoutes(),
		IdleTimeout: time.Minute,
		ReadTimeout: 10 * time.Second,
		// no WriteTimeout: websocket connections are long lived
	}

	return server
}
