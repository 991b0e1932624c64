package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/open2e/open2e/internal/commands"
	"github.com/open2e/open2e/internal/settings"
)

// storeError classifies settings store failures.
func storeError(op string, err error) error {
	if errors.Is(err, settings.ErrInvalidName) {
		return &commands.Error{Kind: commands.KindInvalidArgument, Op: op, Err: err}
	}
	return &commands.Error{Kind: commands.KindStore, Op: op, Err: err}
}

// GET /api/v1/store/:name
func (s *Server) getStoreDocument(c echo.Context) error {
	var entries map[string]any
	err := s.store.View(c.Param("name"), func(doc *settings.Document) error {
		entries = doc.Entries()
		return nil
	})
	if err != nil {
		return writeError(c, storeError("store.entries", err))
	}
	return c.JSON(http.StatusOK, entries)
}

// PUT /api/v1/store/:name replaces the whole document.
func (s *Server) replaceStoreDocument(c echo.Context) error {
	var values map[string]any
	if err := decodeOptional(c.Request().Body, &values); err != nil || values == nil {
		if err == nil {
			err = errors.New("request body must be a JSON object")
		}
		return writeError(c, &commands.Error{Kind: commands.KindInvalidArgument, Op: "store.replace", Err: err})
	}

	err := s.store.Update(c.Param("name"), func(doc *settings.Document) error {
		doc.Replace(values)
		return nil
	})
	if err != nil {
		return writeError(c, storeError("store.replace", err))
	}
	return c.NoContent(http.StatusNoContent)
}

type storeValue struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// GET /api/v1/store/:name/:key
func (s *Server) getStoreValue(c echo.Context) error {
	key := c.Param("key")

	var (
		value any
		found bool
	)
	err := s.store.View(c.Param("name"), func(doc *settings.Document) error {
		value, found = doc.Get(key)
		return nil
	})
	if err != nil {
		return writeError(c, storeError("store.get", err))
	}
	if !found {
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error: fmt.Sprintf("key %q not found", key),
			Kind:  commands.KindStore,
		})
	}
	return c.JSON(http.StatusOK, storeValue{Key: key, Value: value})
}

// PUT /api/v1/store/:name/:key with {"value": ...}
func (s *Server) setStoreValue(c echo.Context) error {
	var body struct {
		Value any `json:"value"`
	}
	if err := decodeOptional(c.Request().Body, &body); err != nil {
		return writeError(c, &commands.Error{Kind: commands.KindInvalidArgument, Op: "store.set", Err: err})
	}

	key := c.Param("key")
	err := s.store.Update(c.Param("name"), func(doc *settings.Document) error {
		doc.Set(key, body.Value)
		return nil
	})
	if err != nil {
		return writeError(c, storeError("store.set", err))
	}
	return c.JSON(http.StatusOK, storeValue{Key: key, Value: body.Value})
}

// DELETE /api/v1/store/:name/:key
func (s *Server) deleteStoreValue(c echo.Context) error {
	key := c.Param("key")

	var deleted bool
	err := s.store.Update(c.Param("name"), func(doc *settings.Document) error {
		deleted = doc.Delete(key)
		return nil
	})
	if err != nil {
		return writeError(c, storeError("store.delete", err))
	}
	if !deleted {
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error: fmt.Sprintf("key %q not found", key),
			Kind:  commands.KindStore,
		})
	}
	return c.NoContent(http.StatusNoContent)
}
