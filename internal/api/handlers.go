package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/vidqa/domain"
	"github.com/satriahrh/vidqa/domain/repositories"
	"github.com/satriahrh/vidqa/internal/websocket"
	"github.com/satriahrh/vidqa/usecase"
)

const uploadMessage = "Video processed and transcript stored."

// errUploadTooLarge is reported as 413 but is still an input error
var errUploadTooLarge = fmt.Errorf("%w: upload exceeds the size limit", domain.ErrInvalidInput)

type handler struct {
	ingestion      Ingester
	queries        Querier
	hub            *websocket.Hub
	maxUploadBytes int64
	logger         *zap.Logger
}

func (h *handler) upload(c echo.Context) error {
	req, err := h.bindIngest(c)
	if err != nil {
		return h.fail(c, err)
	}

	session, err := h.ingestion.Ingest(c.Request().Context(), req)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(http.StatusCreated, UploadResponse{
		SessionID: session.ID,
		Message:   uploadMessage,
	})
}

func (h *handler) transcript(c echo.Context) error {
	req, err := h.bindIngest(c)
	if err != nil {
		return h.fail(c, err)
	}

	index, err := h.ingestion.Transcribe(c.Request().Context(), req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, TranscriptResponse{Transcript: index})
}

func (h *handler) ask(c echo.Context) error {
	var req AskRequest
	if err := decodeStrict(c.Request().Body, &req); err != nil {
		return h.fail(c, err)
	}

	result, err := h.queries.Ask(c.Request().Context(), req.SessionID, req.Question)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *handler) getSession(c echo.Context) error {
	session, err := h.queries.Session(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, SessionResponse{
		SessionID:    session.ID,
		Source:       session.Source,
		Language:     session.Language,
		Transcript:   session.TranscriptIndex,
		Conversation: session.Conversation,
		CreatedAt:    session.CreatedAt,
		ExpiresAt:    session.ExpiresAt,
	})
}

// sessionSocket checks the session before upgrading so unknown sessions get
// a plain HTTP error
func (h *handler) sessionSocket(c echo.Context) error {
	sessionID := c.Param("id")
	if _, err := h.queries.Session(c.Request().Context(), sessionID); err != nil {
		return h.fail(c, err)
	}
	return h.hub.ServeSession(c, sessionID)
}

// bindIngest reads an ingest request from a JSON or multipart body
func (h *handler) bindIngest(c echo.Context) (usecase.IngestRequest, error) {
	r := c.Request()
	if r.ContentLength > h.maxUploadBytes {
		return usecase.IngestRequest{}, errUploadTooLarge
	}
	r.Body = http.MaxBytesReader(c.Response(), r.Body, h.maxUploadBytes)

	mediaType, _, err := mime.ParseMediaType(r.Header.Get(echo.HeaderContentType))
	if err != nil {
		return usecase.IngestRequest{}, fmt.Errorf("%w: missing or malformed content type", domain.ErrInvalidInput)
	}

	switch mediaType {
	case echo.MIMEApplicationJSON:
		var body IngestRequest
		if err := decodeStrict(r.Body, &body); err != nil {
			return usecase.IngestRequest{}, err
		}
		return usecase.IngestRequest{RemoteReference: body.RemoteReference}, nil

	case echo.MIMEMultipartForm:
		return h.bindMultipart(c)

	default:
		return usecase.IngestRequest{}, fmt.Errorf("%w: unsupported content type %q", domain.ErrInvalidInput, mediaType)
	}
}

func (h *handler) bindMultipart(c echo.Context) (usecase.IngestRequest, error) {
	r := c.Request()
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		return usecase.IngestRequest{}, classifyBodyError(err)
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	header, err := c.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return usecase.IngestRequest{}, fmt.Errorf("%w: multipart body needs a file part", domain.ErrInvalidInput)
		}
		return usecase.IngestRequest{}, classifyBodyError(err)
	}

	file, err := header.Open()
	if err != nil {
		return usecase.IngestRequest{}, fmt.Errorf("open upload: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return usecase.IngestRequest{}, classifyBodyError(err)
	}

	return usecase.IngestRequest{
		RemoteReference: c.FormValue("remote_reference"),
		Upload: &repositories.UploadedFile{
			Filename:    header.Filename,
			ContentType: header.Header.Get(echo.HeaderContentType),
			Data:        data,
		},
	}, nil
}

// decodeStrict decodes exactly one JSON object with no unknown fields
func decodeStrict(body io.Reader, v any) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return classifyBodyError(err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("%w: unexpected data after JSON body", domain.ErrInvalidInput)
	}
	return nil
}

func classifyBodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return errUploadTooLarge
	}
	return fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errUploadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrTranscriptUnavailable), errors.Is(err, domain.ErrAnsweringUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// fail writes the error body for err. Only input errors echo their detail.
func (h *handler) fail(c echo.Context, err error) error {
	code := domain.Code(err)
	status := statusFor(err)

	message := domain.Message(code)
	if code == domain.CodeInvalidInput {
		message = strings.TrimPrefix(err.Error(), domain.ErrInvalidInput.Error()+": ")
	}

	fields := []zap.Field{
		zap.String("method", c.Request().Method),
		zap.String("path", c.Path()),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", fields...)
	} else {
		h.logger.Warn("Request failed", fields...)
	}

	return c.JSON(status, ErrorResponse{Error: code, Message: message})
}

// httpError renders errors raised by echo itself, such as unknown routes or
// the body limit, in the same shape as handler errors
func (h *handler) httpError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
	}

	var code string
	switch {
	case status == http.StatusNotFound:
		code = domain.CodeNotFound
	case status == http.StatusUnauthorized:
		code = domain.CodeUnauthorized
	case status >= 400 && status < 500:
		code = domain.CodeInvalidInput
	default:
		code = domain.CodeInternal
		h.logger.Error("Unhandled error", zap.String("path", c.Path()), zap.Error(err))
	}

	message := http.StatusText(status)
	if code == domain.CodeInternal {
		message = domain.Message(code)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, ErrorResponse{Error: code, Message: message})
	}
	if err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
