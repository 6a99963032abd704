// ABOUTME: Tests for the legal docs client against an httptest fake service.
// ABOUTME: Covers template listing, PDF naming, and upload success and failure reporting.

package legaldocs

import (
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/get-templates", r.URL.Path)
		_, _ = w.Write([]byte(`{"available templates":["nda","lease"]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL + "/"})
	templates, err := c.Templates(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"nda", "lease"}, templates)
}

func TestTemplates_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(Config{URL: srv.URL}).Templates(t.Context())
	assert.ErrorIs(t, err, ErrTemplates)

	_, err = NewClient(Config{}).Templates(t.Context())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestPDFName(t *testing.T) {
	assert.Equal(t, "nda.pdf", PDFName("nda"))
	assert.Equal(t, "nda.pdf", PDFName("nda.pdf"))
}

func TestUploadTemplate(t *testing.T) {
	pdf := []byte("%PDF-1.4 template")

	t.Run("success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/upload-template", r.URL.Path)
			require.NoError(t, r.ParseMultipartForm(1<<20))
			assert.Equal(t, "nda", r.FormValue("name"))

			file, header, err := r.FormFile("file")
			require.NoError(t, err)
			defer file.Close()
			assert.Equal(t, "nda.pdf", header.Filename)
			assert.Equal(t, "application/pdf", header.Header.Get("Content-Type"))
			data, _ := io.ReadAll(file)
			assert.Equal(t, pdf, data)

			_, _ = w.Write([]byte(`{"message":"stored"}`))
		}))
		defer srv.Close()

		res := NewClient(Config{URL: srv.URL}).UploadTemplate(t.Context(), base64.StdEncoding.EncodeToString(pdf), "nda")
		assert.Equal(t, &UploadResult{Result: "stored", Filename: "nda", StatusCode: 200, Success: true}, res)
	})

	t.Run("rejected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "duplicate template", http.StatusConflict)
		}))
		defer srv.Close()

		res := NewClient(Config{URL: srv.URL}).UploadTemplate(t.Context(), base64.StdEncoding.EncodeToString(pdf), "nda.pdf")
		assert.False(t, res.Success)
		assert.Equal(t, http.StatusConflict, res.StatusCode)
		assert.Equal(t, "Failed to upload template: duplicate template", res.Result)
	})

	t.Run("bad base64", func(t *testing.T) {
		res := NewClient(Config{URL: "http://127.0.0.1:1"}).UploadTemplate(t.Context(), "%%%", "nda")
		assert.False(t, res.Success)
		assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
		assert.Equal(t, "Error uploading template", res.Result)
	})
}
