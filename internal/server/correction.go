package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/jvbeek/palimpsest/internal/align"
	"github.com/jvbeek/palimpsest/internal/observe"
	"github.com/jvbeek/palimpsest/internal/pagexml"
	"github.com/jvbeek/palimpsest/internal/textio"
	"github.com/jvbeek/palimpsest/internal/usage"
)

// methodManual is the usage record method name for this endpoint.
const methodManual = "manual"

// handleManual corrects an OCR document against a manual transcription.
//
// The request is multipart/form-data with two required file fields, ocr_file
// and transcription_file. When ocr_file is a PAGE-XML document the corrected
// text is written back into its TextLine elements and the full document is
// returned as application/xml; plain text comes back as text/plain. Optional
// form fields ngram_length, add_original, and unmatched override the
// configured engine parameters for this request.
func (s *Server) handleManual(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observe.Logger(ctx)
	start := time.Now()

	s.metrics.ActiveRequests.Add(ctx, 1)
	defer s.metrics.ActiveRequests.Add(ctx, -1)

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	ocrData, err := formFile(r, "ocr_file")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	manData, err := formFile(r, "transcription_file")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cfg := s.cfg()
	opts, err := requestOptions(r, cfg.Correction.Options())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Usage accounting is best effort. A broken store must not block
	// corrections, so failures are logged and the request proceeds.
	recordID := int64(0)
	if key, ok := keyFrom(ctx); ok {
		recordID, err = s.store.Begin(ctx, key.ID, methodManual, len(ocrData))
		if err != nil {
			logger.Error("recording usage", "error", err, "organisation", key.Organisation)
			recordID = 0
		}
	}
	status := usage.StatusFailed
	correctedSize := 0
	defer func() {
		if recordID == 0 {
			return
		}
		if err := s.store.Finish(ctx, recordID, status, correctedSize); err != nil {
			logger.Error("finishing usage record", "error", err)
		}
	}()

	// A leading '<' means the OCR source claims to be XML. From there it
	// must be a well-formed PAGE-XML document; silently degrading a broken
	// scan to plain text would corrupt the output.
	var doc *pagexml.Document
	var ocrLines []string
	if pagexml.LooksLikeXML(ocrData) {
		doc, err = pagexml.Parse(bytes.NewReader(ocrData))
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("ocr_file: %v", err))
			return
		}
		ocrLines = doc.Lines()
	} else {
		ocrLines, err = textio.ReadLines(bytes.NewReader(ocrData))
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("ocr_file: %v", err))
			return
		}
	}

	manLines, err := textio.ReadLines(bytes.NewReader(manData))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("transcription_file: %v", err))
		return
	}

	ocrSeq, err := align.Tokenize(ocrLines)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("ocr_file: %v", err))
		return
	}
	manSeq, err := align.Tokenize(manLines)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("transcription_file: %v", err))
		return
	}

	_, span := observe.StartCorrection(ctx, methodManual, len(ocrSeq.Words), len(manSeq.Words))
	res, err := align.New(opts...).Correct(ocrSeq, manSeq)
	if err != nil {
		span.End()
		s.metrics.RecordCorrection(ctx, methodManual, "error", time.Since(start).Seconds(), 0, 0)
		logger.Error("correcting document", "error", err)
		writeError(w, http.StatusInternalServerError, "correction failed")
		return
	}
	observe.FinishCorrection(span,
		res.Stats.Substituted+res.Stats.Fallbacks, res.Stats.Insertions, res.Stats.Unmatched)

	lines := res.TextLines()

	var out bytes.Buffer
	contentType := "text/plain; charset=utf-8"
	if doc != nil {
		contentType = "application/xml"
		if err := doc.UpdateLines(lines); err != nil {
			logger.Error("writing corrected document", "error", err)
			writeError(w, http.StatusInternalServerError, "correction failed")
			return
		}
		if _, err := doc.WriteTo(&out); err != nil {
			logger.Error("writing corrected document", "error", err)
			writeError(w, http.StatusInternalServerError, "correction failed")
			return
		}
	} else if err := textio.WriteLines(&out, lines); err != nil {
		logger.Error("writing corrected document", "error", err)
		writeError(w, http.StatusInternalServerError, "correction failed")
		return
	}

	status = usage.StatusSuccess
	correctedSize = out.Len()

	s.metrics.RecordAlignment(ctx, res.Stats.Matches, res.Stats.Spans)
	s.metrics.RecordCorrection(ctx, methodManual, "ok", time.Since(start).Seconds(),
		res.Stats.Substituted+res.Stats.Fallbacks, res.Stats.Unmatched)
	logger.Info("corrected document",
		"ocr_words", len(ocrSeq.Words),
		"substituted", res.Stats.Substituted,
		"fallbacks", res.Stats.Fallbacks,
		"insertions", res.Stats.Insertions,
		"unmatched", res.Stats.Unmatched,
		"duration", time.Since(start))

	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write(out.Bytes())
}

// formFile reads one required multipart file field fully into memory.
func formFile(r *http.Request, field string) ([]byte, error) {
	f, _, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, fmt.Errorf("missing required file field %q", field)
		}
		return nil, fmt.Errorf("reading %s: %w", field, err)
	}
	defer func(f multipart.File) { _ = f.Close() }(f)

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", field, err)
	}
	return data, nil
}

// requestOptions extends the configured engine options with the per-request
// form overrides.
func requestOptions(r *http.Request, base []align.Option) ([]align.Option, error) {
	opts := base

	if v := r.FormValue("ngram_length"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("ngram_length: %q is not a positive integer", v)
		}
		opts = append(opts, align.WithNGramLength(n))
	}
	if v := r.FormValue("add_original"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("add_original: %q is not a boolean", v)
		}
		opts = append(opts, align.WithShowOriginal(on))
	}
	if v := r.FormValue("unmatched"); v != "" {
		p := align.UnmatchedPolicy(v)
		if !p.IsValid() {
			return nil, fmt.Errorf("unmatched: %q is not a recognised policy", v)
		}
		opts = append(opts, align.WithUnmatchedPolicy(p))
	}
	return opts, nil
}
