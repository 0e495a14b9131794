package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/RichardoC/orion/internal/extract"
	"go.uber.org/zap"
)

// multipartOverhead covers boundaries and part headers around the file.
const multipartOverhead = 1 << 20

type UploadResponse struct {
	Success bool `json:"success"`
	extract.Document
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.extractor.MaxBytes+multipartOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			errorJSON(w, http.StatusBadRequest, "File too large.")
			return
		}
		errorJSON(w, http.StatusBadRequest, "No file uploaded.")
		return
	}
	defer file.Close()

	declared := header.Header.Get("Content-Type")
	if err := h.extractor.Accept(header.Size, declared, header.Filename); err != nil {
		errorJSON(w, http.StatusBadRequest, h.uploadMessage(err))
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, h.extractor.MaxBytes+1))
	if err != nil {
		h.logger.Error("Failed to read upload", zap.Error(err))
		errorJSON(w, http.StatusInternalServerError, "Failed to process file.")
		return
	}

	doc, err := h.extractor.Extract(data, declared, header.Filename)
	if err != nil {
		if errors.Is(err, extract.ErrTooLarge) || errors.Is(err, extract.ErrUnsupportedType) || errors.Is(err, extract.ErrEmpty) {
			errorJSON(w, http.StatusBadRequest, h.uploadMessage(err))
			return
		}
		h.logger.Error("Failed to extract upload",
			zap.Error(err),
			zap.String("filename", header.Filename))
		errorJSON(w, http.StatusInternalServerError, "Failed to process file.")
		return
	}

	h.logger.Info("Processed upload",
		zap.String("filename", header.Filename),
		zap.String("fileType", doc.FileType),
		zap.Int64("fileSize", doc.FileSize))
	writeJSON(w, http.StatusOK, UploadResponse{Success: true, Document: doc})
}

func (h *Handler) uploadMessage(err error) string {
	switch {
	case errors.Is(err, extract.ErrTooLarge):
		return fmt.Sprintf("File too large. Maximum size is %dMB.", h.extractor.MaxBytes>>20)
	case errors.Is(err, extract.ErrUnsupportedType):
		return "Unsupported file type. Upload a text, markdown or PDF file."
	case errors.Is(err, extract.ErrEmpty):
		return "No text could be extracted from the file."
	default:
		return "Failed to process file."
	}
}
