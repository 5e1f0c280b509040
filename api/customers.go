package api

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"sales-portal/domain"
	"sales-portal/ingest"
)

type importResponse struct {
	Filename string `json:"filename"`
	Imported int    `json:"imported"`
}

func (h *handlers) listCustomers(c echo.Context) error {
	ctx := c.Request().Context()
	var (
		customers []domain.Customer
		err       error
	)
	switch {
	case c.QueryParam("file") != "":
		customers, err = h.Customers.ListByFile(ctx, c.QueryParam("file"))
	case c.QueryParam("category") != "":
		customers, err = h.Customers.ListByCategory(ctx, c.QueryParam("category"))
	default:
		customers, err = h.Customers.ListAll(ctx)
	}
	if err != nil {
		return writeError(c, h.log, "storage", err)
	}
	return c.JSON(http.StatusOK, customers)
}

func (h *handlers) listFiles(c echo.Context) error {
	files, err := h.Customers.Files(c.Request().Context())
	if err != nil {
		return writeError(c, h.log, "storage", err)
	}
	return c.JSON(http.StatusOK, files)
}

func (h *handlers) listCategories(c echo.Context) error {
	cats, err := h.Customers.Categories(c.Request().Context())
	if err != nil {
		return writeError(c, h.log, "storage", err)
	}
	return c.JSON(http.StatusOK, cats)
}

func (h *handlers) importCustomers(c echo.Context) error {
	buf, filename, err := h.readUpload(c)
	if err != nil {
		return writeError(c, h.log, "upload", err)
	}
	if strings.TrimSpace(c.QueryParam("filename")) != "" {
		filename = strings.TrimSpace(c.QueryParam("filename"))
	}
	rows, err := ingest.Parse(buf, filename)
	if err != nil {
		return writeError(c, h.log, "parse", err)
	}
	n, err := h.Customers.ImportFromCSV(c.Request().Context(), rows, filename)
	if err != nil {
		return writeError(c, h.log, "import", err)
	}
	return c.JSON(http.StatusOK, importResponse{Filename: filename, Imported: n})
}

func (h *handlers) purgeFile(c echo.Context) error {
	if err := h.Customers.Purge(c.Request().Context(), c.Param("filename")); err != nil {
		return writeError(c, h.log, "purge", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) lookupCSV(c echo.Context) error {
	column := strings.TrimSpace(c.QueryParam("column"))
	if column == "" {
		return writeError(c, h.log, "lookup", fmt.Errorf("%w: column is required", domain.ErrValidation))
	}
	buf, filename, err := h.readUpload(c)
	if err != nil {
		return writeError(c, h.log, "upload", err)
	}
	rows, err := ingest.Parse(buf, filename)
	if err != nil {
		return writeError(c, h.log, "parse", err)
	}
	return c.JSON(http.StatusOK, ingest.Lookup(rows, column, c.QueryParam("value")))
}

// readUpload returns the CSV payload from a multipart "file" field or the raw
// body, bounded by MaxUploadBytes.
func (h *handlers) readUpload(c echo.Context) ([]byte, string, error) {
	req := c.Request()
	limit := h.MaxUploadBytes
	if strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		fh, err := c.FormFile("file")
		if err != nil {
			return nil, "", fmt.Errorf("%w: multipart upload needs a file field: %v", domain.ErrValidation, err)
		}
		if fh.Size > limit {
			return nil, "", fmt.Errorf("%w: upload exceeds %d bytes", domain.ErrValidation, limit)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, "", fmt.Errorf("%w: open upload: %v", domain.ErrValidation, err)
		}
		defer f.Close()
		buf, err := readLimited(f, limit)
		return buf, fh.Filename, err
	}
	buf, err := readLimited(req.Body, limit)
	return buf, "", err
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	buf, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read upload: %v", domain.ErrValidation, err)
	}
	if int64(len(buf)) > limit {
		return nil, fmt.Errorf("%w: upload exceeds %d bytes", domain.ErrValidation, limit)
	}
	return buf, nil
}
