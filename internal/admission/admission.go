// Package admission turns a validated submission into a persisted, placed
// contribution. It owns the allocate-and-insert retry loop that keeps lattice
// positions unique under concurrent submissions, and the compensating blob
// cleanup when an admission fails partway.
package admission

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/AppachchiCodes/The-Human-Monument/internal/blobstore"
	"github.com/AppachchiCodes/The-Human-Monument/internal/config"
	"github.com/AppachchiCodes/The-Human-Monument/internal/model"
	"github.com/AppachchiCodes/The-Human-Monument/internal/shortid"
	"github.com/AppachchiCodes/The-Human-Monument/internal/spiral"
	"github.com/AppachchiCodes/The-Human-Monument/internal/storage"
)

var (
	// ErrValidation marks client errors; the API maps them to 400 with the
	// wrapped message.
	ErrValidation = errors.New("invalid submission")
	// ErrAllocationExhausted is returned when the bounded allocate-and-insert
	// retry loop never won a slot. Surfaced as an internal error.
	ErrAllocationExhausted = errors.New("could not allocate a free position")
)

const (
	// DefaultAllocateAttempts bounds the allocate-and-insert loop. Each lost
	// race means another submission committed, so in practice one retry
	// suffices.
	DefaultAllocateAttempts = 4
	codeAttempts            = 5
)

var allowedAudio = []string{
	"audio/mpeg",
	"audio/wav",
	"audio/webm",
	// Browser recorders commonly tag webm audio with the video container
	// type.
	"video/webm",
}

var validate = validator.New()

// Request is one submission, already demultiplexed from the wire format.
// Exactly one of Content, Drawing or Data is set depending on Kind.
type Request struct {
	Kind       model.Kind `validate:"required,oneof=TEXT DRAWING IMAGE AUDIO"`
	Content    string     // TEXT: inline text
	Drawing    string     // DRAWING: base64 data URL
	Data       []byte     // IMAGE, AUDIO: raw upload bytes
	SourceAddr string
}

// BlobStore is the slice of the blob store admission needs.
type BlobStore interface {
	Put(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, objectKey string) error
}

// CleanupEnqueuer schedules a deferred blob delete when the inline
// compensating delete fails.
type CleanupEnqueuer interface {
	EnqueueCleanup(ctx context.Context, objectKey string) error
}

// Service runs admissions.
type Service struct {
	store    storage.Store
	blobs    BlobStore
	cleanup  CleanupEnqueuer
	cfg      *config.Config
	log      *logrus.Logger
	attempts int
}

// Option tweaks Service construction.
type Option func(*Service)

// WithAllocateAttempts overrides the allocate-and-insert retry bound.
func WithAllocateAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.attempts = n
		}
	}
}

// New constructs a Service. cleanup may be nil when no queue is wired (dev
// mode); failed compensating deletes are then only logged.
func New(store storage.Store, blobs BlobStore, cleanup CleanupEnqueuer, cfg *config.Config, log *logrus.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		blobs:    blobs,
		cleanup:  cleanup,
		cfg:      cfg,
		log:      log,
		attempts: DefaultAllocateAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// payload is the validated blob (or inline text) extracted from a Request.
type payload struct {
	content     string
	data        []byte
	contentType string
	ext         string
}

// Submit admits one contribution: validate, assign a public code, store the
// payload blob, then allocate a lattice position and insert under the
// store's uniqueness constraints. Admission is all-or-nothing: any failure
// after the blob write triggers a compensating delete.
func (s *Service) Submit(ctx context.Context, req Request) (*model.Contribution, error) {
	pl, err := s.validateRequest(req)
	if err != nil {
		return nil, err
	}

	code, err := s.freshCode(ctx)
	if err != nil {
		return nil, err
	}

	c := &model.Contribution{
		ID:         uuid.NewString(),
		PublicCode: code,
		Kind:       req.Kind,
		Content:    pl.content,
		Status:     model.StatusApproved,
		SourceAddr: req.SourceAddr,
	}

	if req.Kind.HasBlob() {
		c.ObjectKey = blobstore.ObjectKey(req.Kind, c.ID, pl.ext)
		if err := s.blobs.Put(ctx, c.ObjectKey, bytes.NewReader(pl.data), int64(len(pl.data)), pl.contentType); err != nil {
			return nil, fmt.Errorf("store payload: %w", err)
		}
	}

	if err := s.place(ctx, c); err != nil {
		s.compensate(ctx, c.ObjectKey)
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"code": c.PublicCode,
		"kind": c.Kind,
		"x":    c.X,
		"y":    c.Y,
	}).Info("contribution admitted")
	return c, nil
}

// place runs the bounded allocate-and-insert loop. Occupancy is re-read on
// every attempt so a lost race retries against fresh state; the store's
// unique position constraint is the serialization point that picks the
// winner.
func (s *Service) place(ctx context.Context, c *model.Contribution) error {
	for attempt := 0; attempt < s.attempts; attempt++ {
		occupied, err := s.store.OccupiedPositions(ctx)
		if err != nil {
			return fmt.Errorf("read occupancy: %w", err)
		}
		pos, err := spiral.Allocate(occupied)
		if err != nil {
			// Non-prefix occupancy is data corruption, never retried.
			return fmt.Errorf("allocate position: %w", err)
		}
		c.X, c.Y = pos.X, pos.Y
		err = s.store.Insert(ctx, c)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, storage.ErrPositionTaken):
			s.log.WithFields(logrus.Fields{
				"x":       pos.X,
				"y":       pos.Y,
				"attempt": attempt + 1,
			}).Debug("lost allocation race, retrying")
			continue
		case errors.Is(err, storage.ErrCodeTaken):
			// The pre-insert collision check raced with another submission
			// using the same code. Mint a new one and go again.
			code, cerr := s.freshCode(ctx)
			if cerr != nil {
				return cerr
			}
			c.PublicCode = code
			continue
		default:
			return err
		}
	}
	return ErrAllocationExhausted
}

// compensate deletes an already-stored payload blob after a failed
// admission. Best-effort: a failed delete is logged and handed to the
// cleanup queue, never escalated to the caller.
func (s *Service) compensate(ctx context.Context, objectKey string) {
	if objectKey == "" {
		return
	}
	err := s.blobs.Delete(ctx, objectKey)
	if err == nil {
		return
	}
	s.log.WithFields(logrus.Fields{
		"object_key": objectKey,
		"error":      err,
	}).Warn("compensating blob delete failed")
	if s.cleanup == nil {
		return
	}
	if err := s.cleanup.EnqueueCleanup(ctx, objectKey); err != nil {
		s.log.WithFields(logrus.Fields{
			"object_key": objectKey,
			"error":      err,
		}).Error("could not enqueue blob cleanup")
	}
}

func (s *Service) freshCode(ctx context.Context) (string, error) {
	for i := 0; i < codeAttempts; i++ {
		code, err := shortid.New()
		if err != nil {
			return "", fmt.Errorf("generate public code: %w", err)
		}
		exists, err := s.store.CodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check public code: %w", err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", errors.New("public code space exhausted")
}

func (s *Service) validateRequest(req Request) (*payload, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: kind must be one of TEXT, DRAWING, IMAGE, AUDIO", ErrValidation)
	}
	switch req.Kind {
	case model.KindText:
		return s.validateText(req.Content)
	case model.KindDrawing:
		return s.validateDrawing(req.Drawing)
	case model.KindImage:
		return s.validateImage(req.Data)
	case model.KindAudio:
		return s.validateAudio(req.Data)
	}
	return nil, fmt.Errorf("%w: kind must be one of TEXT, DRAWING, IMAGE, AUDIO", ErrValidation)
}

func (s *Service) validateText(content string) (*payload, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: text content is required", ErrValidation)
	}
	if n := len([]rune(content)); n > s.cfg.MaxTextChars {
		return nil, fmt.Errorf("%w: text content exceeds %d characters", ErrValidation, s.cfg.MaxTextChars)
	}
	return &payload{content: content}, nil
}

func (s *Service) validateDrawing(dataURL string) (*payload, error) {
	if dataURL == "" {
		return nil, fmt.Errorf("%w: drawing data is required", ErrValidation)
	}
	_, encoded, found := strings.Cut(dataURL, ";base64,")
	if !found || !strings.HasPrefix(dataURL, "data:image/") {
		return nil, fmt.Errorf("%w: drawing must be a base64 image data URL", ErrValidation)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: drawing data is not valid base64", ErrValidation)
	}
	if int64(len(data)) > s.cfg.MaxDrawingBytes {
		return nil, fmt.Errorf("%w: drawing exceeds size limit", ErrValidation)
	}
	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return nil, fmt.Errorf("%w: drawing payload is not an image", ErrValidation)
	}
	return &payload{data: data, contentType: mtype.String(), ext: mtype.Extension()}, nil
}

func (s *Service) validateImage(data []byte) (*payload, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: image file is required", ErrValidation)
	}
	if int64(len(data)) > s.cfg.MaxImageBytes {
		return nil, fmt.Errorf("%w: image exceeds size limit", ErrValidation)
	}
	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return nil, fmt.Errorf("%w: only image files are allowed", ErrValidation)
	}
	return &payload{data: data, contentType: mtype.String(), ext: mtype.Extension()}, nil
}

func (s *Service) validateAudio(data []byte) (*payload, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: audio file is required", ErrValidation)
	}
	if int64(len(data)) > s.cfg.MaxAudioBytes {
		return nil, fmt.Errorf("%w: audio exceeds size limit", ErrValidation)
	}
	mtype := mimetype.Detect(data)
	allowed := false
	for _, t := range allowedAudio {
		if mtype.Is(t) {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("%w: invalid audio format", ErrValidation)
	}
	return &payload{data: data, contentType: mtype.String(), ext: mtype.Extension()}, nil
}
