// Package api exposes a read-only HTTP inspection surface over the
// format engine: registered formats, file summaries and full graph
// dumps. It is the serve-mode counterpart of the inspect and dump CLI
// commands; nothing here mutates files.
package api

import (
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/strata/internal/logger"
	"github.com/samcharles93/strata/pkg/blockfile"
)

// Server answers inspection requests against a frozen registry. Files
// are resolved inside Root to keep the surface from reading arbitrary
// paths.
type Server struct {
	reg  *blockfile.Registry
	root string
	log  logger.Logger
}

// NewServer creates a server rooted at dir.
func NewServer(reg *blockfile.Registry, dir string, log logger.Logger) *Server {
	return &Server{reg: reg, root: dir, log: log}
}

// Register mounts the inspection routes.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/v1/formats", s.handleFormats)
	e.GET("/v1/inspect", s.handleInspect)
	e.GET("/v1/dump", s.handleDump)
	e.GET("/v1/block", s.handleBlock)
}

type formatInfo struct {
	Name       string   `json:"name"`
	Extensions []string `json:"extensions,omitempty"`
	Signature  string   `json:"signature,omitempty"`
	Framing    string   `json:"framing"`
	Blocks     []string `json:"blocks"`
}

func (s *Server) handleFormats(c *echo.Context) error {
	out := make([]formatInfo, 0, len(s.reg.Formats()))
	for _, f := range s.reg.Formats() {
		framing := "table"
		if f.Framing == blockfile.FramingFlat {
			framing = "flat"
		}
		out = append(out, formatInfo{
			Name:       f.Name,
			Extensions: f.Extensions,
			Signature:  string(f.Signature),
			Framing:    framing,
			Blocks:     f.Schema.BlockOrder,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"formats": out})
}

func (s *Server) handleInspect(c *echo.Context) error {
	g, err := s.open(c)
	if err != nil {
		return writeOpenError(c, err)
	}
	return c.JSON(http.StatusOK, g.Summarize())
}

func (s *Server) handleDump(c *echo.Context) error {
	g, err := s.open(c)
	if err != nil {
		return writeOpenError(c, err)
	}
	return c.JSON(http.StatusOK, g.Dump())
}

func (s *Server) handleBlock(c *echo.Context) error {
	g, err := s.open(c)
	if err != nil {
		return writeOpenError(c, err)
	}
	idx, err := strconv.Atoi(c.QueryParam("index"))
	if err != nil || idx < 0 || idx >= len(g.Blocks()) {
		return writeBadRequest(c, "index must name a block of the file")
	}
	dump := g.Dump()
	blocks := dump["blocks"].([]map[string]any)
	return c.JSON(http.StatusOK, blocks[idx])
}

func (s *Server) open(c *echo.Context) (*blockfile.Graph, error) {
	rel := c.QueryParam("path")
	if rel == "" {
		return nil, errMissingPath
	}
	full := filepath.Join(s.root, filepath.Clean("/"+rel))
	g, err := blockfile.Open(full, s.reg)
	if err != nil {
		return nil, err
	}
	s.log.Debug("opened for inspection",
		"path", rel, "format", g.Format.Name, "load_id", g.LoadID.String(),
		"blocks", len(g.Blocks()), "warnings", len(g.Warnings))
	return g, nil
}
