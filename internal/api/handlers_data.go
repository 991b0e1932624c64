package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/open2e/open2e/internal/backup"
	"github.com/open2e/open2e/internal/commands"
	"github.com/open2e/open2e/internal/database"
	"github.com/open2e/open2e/internal/sqlbridge"
)

type sqlRequest struct {
	Query  string `json:"query"`
	Values []any  `json:"values"`
}

func sqlError(op string, err error) error {
	if errors.Is(err, database.ErrUnknownDatabase) || errors.Is(err, sqlbridge.ErrEmptyQuery) {
		return &commands.Error{Kind: commands.KindInvalidArgument, Op: op, Err: err}
	}
	return &commands.Error{Kind: commands.KindDatabase, Op: op, Err: err}
}

func (s *Server) bindSQL(c echo.Context, op string) (sqlRequest, error) {
	var req sqlRequest
	if err := decodeOptional(c.Request().Body, &req); err != nil {
		return req, &commands.Error{Kind: commands.KindInvalidArgument, Op: op, Err: err}
	}
	return req, nil
}

// POST /api/v1/sql/:db/select
func (s *Server) sqlSelect(c echo.Context) error {
	req, err := s.bindSQL(c, "sql.select")
	if err != nil {
		return writeError(c, err)
	}

	rows, err := s.sql.Select(c.Request().Context(), c.Param("db"), req.Query, req.Values)
	if err != nil {
		return writeError(c, sqlError("sql.select", err))
	}
	return c.JSON(http.StatusOK, rows)
}

// POST /api/v1/sql/:db/execute
func (s *Server) sqlExecute(c echo.Context) error {
	req, err := s.bindSQL(c, "sql.execute")
	if err != nil {
		return writeError(c, err)
	}

	res, err := s.sql.Execute(c.Request().Context(), c.Param("db"), req.Query, req.Values)
	if err != nil {
		return writeError(c, sqlError("sql.execute", err))
	}
	return c.JSON(http.StatusOK, res)
}

// GET /api/v1/backup
func (s *Server) exportBackup(c echo.Context) error {
	data, err := s.backup.Export(c.Request().Context())
	if err != nil {
		return writeError(c, &commands.Error{Kind: commands.KindDatabase, Op: "backup.export", Err: err})
	}

	filename := fmt.Sprintf("open2e-backup-%s.json", time.Now().Format("2006-01-02"))
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.JSON(http.StatusOK, data)
}

// POST /api/v1/backup
func (s *Server) importBackup(c echo.Context) error {
	data, err := backup.Decode(c.Request().Body)
	if err != nil {
		return writeError(c, &commands.Error{Kind: commands.KindInvalidArgument, Op: "backup.import", Err: err})
	}

	if err := s.backup.Import(c.Request().Context(), data); err != nil {
		return writeError(c, &commands.Error{Kind: commands.KindDatabase, Op: "backup.import", Err: err})
	}
	return c.NoContent(http.StatusNoContent)
}
