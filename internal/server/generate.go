package server

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/webbuilder/internal/builder"
	"github.com/mohammad-safakhou/webbuilder/internal/generator"
	"github.com/mohammad-safakhou/webbuilder/internal/helpers"
)

type pageBuilder interface {
	Run(ctx context.Context, req builder.PromptRequest) (builder.GeneratedPage, error)
}

// GenerateHandler exposes one-shot generation without persistence. Unlike
// chat, errors surface as HTTP status codes.
type GenerateHandler struct {
	Builder    pageBuilder
	UploadsDir string
	MaxUpload  int64
}

func (h *GenerateHandler) Register(g *echo.Group) {
	g.POST("", h.generate)
	g.POST("/upload", h.upload)
}

func (h *GenerateHandler) generate(c echo.Context) error {
	var req builder.PromptRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return h.run(c, req)
}

func (h *GenerateHandler) upload(c echo.Context) error {
	if h.MaxUpload > 0 {
		c.Request().Body = http.MaxBytesReader(c.Response(), c.Request().Body, h.MaxUpload)
	}
	form, err := c.MultipartForm()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid multipart form: %v", err))
	}
	req := builder.PromptRequest{Prompt: c.FormValue("prompt")}
	if err := os.MkdirAll(h.UploadsDir, 0o755); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if req.Images, err = h.saveFiles(form.File["images"]); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if req.Docs, err = h.saveFiles(form.File["docs"]); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return h.run(c, req)
}

func (h *GenerateHandler) run(c echo.Context, req builder.PromptRequest) error {
	page, err := h.Builder.Run(c.Request().Context(), req)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, page)
	case generator.IsUpstream(err):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// saveFiles stores each upload as {uuid}_{name} and returns the paths.
func (h *GenerateHandler) saveFiles(files []*multipart.FileHeader) ([]string, error) {
	var paths []string
	for _, fh := range files {
		name := uuid.New().String() + "_" + helpers.SafeFilename(fh.Filename)
		dest := filepath.Join(h.UploadsDir, name)
		if err := copyUpload(fh, dest); err != nil {
			return nil, fmt.Errorf("save %s: %w", fh.Filename, err)
		}
		paths = append(paths, dest)
	}
	return paths, nil
}

func copyUpload(fh *multipart.FileHeader, dest string) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
