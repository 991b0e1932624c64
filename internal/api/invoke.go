package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/open2e/open2e/internal/commands"
	"github.com/open2e/open2e/internal/keycheck"
)

// ErrorResponse is the body of every failed command or bridge call.
type ErrorResponse struct {
	Error string        `json:"error"`
	Kind  commands.Kind `json:"kind"`
}

type invokeArgs struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// invoke runs one host command. The body is a JSON object of arguments and
// may be empty.
// POST /api/v1/invoke/:command
func (s *Server) invoke(c echo.Context) error {
	var args invokeArgs
	if err := decodeOptional(c.Request().Body, &args); err != nil {
		return writeError(c, &commands.Error{Kind: commands.KindInvalidArgument, Op: "invoke", Err: err})
	}

	ctx := c.Request().Context()
	name := c.Param("command")

	var (
		result any
		err    error
	)
	switch name {
	case "initialize_app":
		result, err = s.commands.InitializeApp(ctx)
	case "load_window":
		result, err = s.commands.LoadWindow(ctx)
	case "show_window":
		result, err = s.commands.ShowWindow(ctx)
	case "get_total_memory_gb":
		result, err = s.commands.GetTotalMemoryGB(ctx)
	case "validate_key":
		result, err = s.commands.ValidateKey(ctx, args.Key)
	case "open_url":
		err = s.commands.OpenURL(ctx, args.URL)
	default:
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error: fmt.Sprintf("unknown command %q", name),
			Kind:  commands.KindInvalidArgument,
		})
	}

	if err != nil {
		s.logger.Warn().Err(err).Str("command", name).Str("kind", string(commands.KindOf(err))).Msg("command failed")
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"result": result})
}

// writeError renders err with the status its kind maps to.
func writeError(c echo.Context, err error) error {
	kind := commands.KindOf(err)
	return c.JSON(statusFor(kind, err), ErrorResponse{Error: err.Error(), Kind: kind})
}

func statusFor(kind commands.Kind, err error) int {
	switch kind {
	case commands.KindInvalidArgument:
		return http.StatusBadRequest
	case commands.KindValidation:
		if errors.Is(err, keycheck.ErrNetwork) || errors.Is(err, keycheck.ErrService) {
			return http.StatusBadGateway
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// decodeOptional decodes a JSON body into v. An empty body leaves v alone.
func decodeOptional(body io.Reader, v any) error {
	if body == nil {
		return nil
	}
	err := json.NewDecoder(body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
