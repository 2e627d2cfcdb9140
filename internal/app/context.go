package app

import (
	"satfetch/internal/auth"
	"satfetch/internal/catalog"
	"satfetch/internal/config"
	"satfetch/internal/logger"
	"satfetch/internal/transport"
)

// Context holds the core environment and shared resources for satfetch.
// It acts as the single source of truth for the application state.
type Context struct {
	Config *config.Config
	Logger *logger.Logger

	Tokens  auth.TokenSource
	HTTP    *transport.Client
	Catalog *catalog.Client
}

// NewContext initializes the base environment without touching the network.
func NewContext(cfg *config.Config, log *logger.Logger) *Context {
	return &Context{
		Config: cfg,
		Logger: log,
	}
}

// Connect discovers credentials, primes the authenticated transport, and
// wires the catalog client. Must be called before any catalog operation.
func (c *Context) Connect() error {
	creds, err := auth.Discover(c.Logger)
	if err != nil {
		return err
	}
	c.Tokens = auth.NewToken(creds, c.Config.API.TokenURL)

	httpClient, err := transport.New(c.Tokens)
	if err != nil {
		return err
	}
	c.HTTP = httpClient
	c.Catalog = catalog.NewClient(c.Config.API.BaseURL, httpClient)
	return nil
}
