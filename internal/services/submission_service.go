package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/martincass/UCAMtracker/internal/logger"
	"github.com/martincass/UCAMtracker/internal/metrics"
	"github.com/martincass/UCAMtracker/internal/models"
	"github.com/martincass/UCAMtracker/internal/realtime"
	"github.com/martincass/UCAMtracker/internal/storage"
	"github.com/martincass/UCAMtracker/internal/validation"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	DefaultMaxPhotoBytes = 5 << 20
	maxNotesLength       = 2000
	sniffLength          = 3072
)

// photoTypes are the raster formats accepted for submission photos.
var photoTypes = []string{"image/jpeg", "image/png", "image/webp", "image/heic", "image/heif"}

// PhotoPolicy bounds how many photos a submission carries.
type PhotoPolicy struct {
	Name string
	Min  int
	Max  int
}

var (
	PhotosExactTwo = PhotoPolicy{Name: "exact-two", Min: 2, Max: 2}
	PhotosUpToFive = PhotoPolicy{Name: "up-to-five", Min: 0, Max: 5}
)

func PhotoPolicyByName(name string) PhotoPolicy {
	if name == PhotosUpToFive.Name {
		return PhotosUpToFive
	}
	return PhotosExactTwo
}

func (p PhotoPolicy) check(n int) error {
	if n < p.Min || n > p.Max {
		if p.Min == p.Max {
			return invalid("photos", fmt.Sprintf("exactly %d photos are required", p.Min))
		}
		return invalid("photos", fmt.Sprintf("between %d and %d photos are allowed", p.Min, p.Max))
	}
	return nil
}

// PhotoUpload is one photo attached to a new submission. Kind defaults by
// position: entry, weighing, then extra.
type PhotoUpload struct {
	Kind     models.PhotoKind
	Filename string
	Size     int64
	Reader   io.Reader
}

type CreateSubmissionInput struct {
	Date        string
	WeighingKg  float64
	PartID      string
	Plant       string
	Shift       string
	Product     string
	ProducedQty *float64
	ScrapQty    *float64
	Notes       string
}

type SubmissionFilter struct {
	ClientID string
	Status   string
	DateFrom string
	DateTo   string
	Date     string
	Product  string
	Limit    int
	Offset   int
}

type SubmissionOptions struct {
	Photos        PhotoPolicy
	MaxPhotoBytes int64
}

type SubmissionService struct {
	db        *gorm.DB
	bucket    storage.Bucket
	publisher realtime.Publisher
	opts      SubmissionOptions
}

func NewSubmissionService(db *gorm.DB, bucket storage.Bucket, publisher realtime.Publisher, opts SubmissionOptions) *SubmissionService {
	if opts.MaxPhotoBytes <= 0 {
		opts.MaxPhotoBytes = DefaultMaxPhotoBytes
	}
	if opts.Photos.Name == "" {
		opts.Photos = PhotosExactTwo
	}
	return &SubmissionService{db: db, bucket: bucket, publisher: publisher, opts: opts}
}

func (s *SubmissionService) validate(in *CreateSubmissionInput, photos []PhotoUpload) error {
	verr := &ValidationError{}
	in.Date = strings.TrimSpace(in.Date)
	if !validation.IsISODate(in.Date) {
		verr.add("date", "must be a date in YYYY-MM-DD format")
	}
	switch {
	case !validation.IsFinite(in.WeighingKg):
		verr.add("weighing_kg", "must be a finite number")
	case in.WeighingKg <= 0:
		verr.add("weighing_kg", "must be greater than 0")
	}
	checkQty := func(field string, v *float64) {
		switch {
		case v == nil:
		case !validation.IsFinite(*v):
			verr.add(field, "must be a finite number")
		case *v < 0:
			verr.add(field, "must be at least 0")
		}
	}
	checkQty("produced_qty", in.ProducedQty)
	checkQty("scrap_qty", in.ScrapQty)
	if in.Shift != "" {
		if _, ok := models.ParseShift(in.Shift); !ok {
			verr.add("shift", "must be one of: Morning Afternoon Night")
		}
	}
	if len(in.Notes) > maxNotesLength {
		verr.add("notes", fmt.Sprintf("must be at most %d characters", maxNotesLength))
	}
	if err := s.opts.Photos.check(len(photos)); err != nil {
		var pe *ValidationError
		if errors.As(err, &pe) {
			verr.Fields = append(verr.Fields, pe.Fields...)
		}
	}
	for i, ph := range photos {
		if ph.Size > s.opts.MaxPhotoBytes {
			verr.add(fmt.Sprintf("photos[%d]", i), fmt.Sprintf("must be at most %d bytes", s.opts.MaxPhotoBytes))
		}
	}
	return verr.orNil()
}

// Create stores the photos and then the submission row, in that order. When
// any step fails the photos already stored are deleted again.
func (s *SubmissionService) Create(ctx context.Context, p *Principal, in CreateSubmissionInput, photos []PhotoUpload) (*models.Submission, error) {
	if p.IsAdmin() {
		return nil, fmt.Errorf("%w: only clients create submissions", ErrForbidden)
	}
	clientID := p.ClientID()
	if clientID == "" {
		return nil, fmt.Errorf("%w: account has no client", ErrForbidden)
	}
	if err := s.validate(&in, photos); err != nil {
		return nil, err
	}

	sub := &models.Submission{
		ID:          uuid.NewString(),
		ClientID:    clientID,
		ClientName:  p.ClientName(),
		UserID:      p.UserID(),
		UserEmail:   p.User.Email,
		Date:        in.Date,
		PartID:      strings.TrimSpace(in.PartID),
		Plant:       strings.TrimSpace(in.Plant),
		Shift:       models.Shift(in.Shift),
		Product:     strings.TrimSpace(in.Product),
		ProducedQty: in.ProducedQty,
		ScrapQty:    in.ScrapQty,
		WeighingKg:  in.WeighingKg,
		Notes:       strings.TrimSpace(in.Notes),
		Status:      models.StatusPending,
		Version:     1,
	}
	log := logger.WithSubmission(sub.ID, clientID)

	var stored []string
	cleanup := func() {
		for _, path := range stored {
			if err := s.bucket.Delete(context.WithoutCancel(ctx), path); err != nil {
				log.WithField("path", path).WithError(err).Warn("Failed to remove orphaned photo")
			}
		}
	}

	for i, ph := range photos {
		photo, err := s.storePhoto(ctx, sub, i+1, ph)
		if err != nil {
			cleanup()
			return nil, err
		}
		stored = append(stored, photo.Path)
		sub.Photos = append(sub.Photos, *photo)
	}

	if err := s.db.WithContext(ctx).Create(sub).Error; err != nil {
		cleanup()
		return nil, fmt.Errorf("insert submission: %w", err)
	}

	metrics.SubmissionsCreated.Inc()
	log.WithField("photos", len(sub.Photos)).Info("Submission created")
	return sub, nil
}

func (s *SubmissionService) storePhoto(ctx context.Context, sub *models.Submission, position int, ph PhotoUpload) (*models.SubmissionPhoto, error) {
	field := fmt.Sprintf("photos[%d]", position-1)
	head := make([]byte, sniffLength)
	n, err := io.ReadFull(ph.Reader, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read photo: %w", err)
	}
	head = head[:n]
	if n == 0 {
		return nil, invalid(field, "is empty")
	}

	mt := mimetype.Detect(head)
	if !mimetype.EqualsAny(mt.String(), photoTypes...) {
		return nil, invalid(field, "must be a JPEG, PNG, WebP or HEIC image")
	}

	kind := ph.Kind
	if kind == "" {
		kind = defaultPhotoKind(position)
	}
	path := fmt.Sprintf("%s/%s/%d-%s%s", sub.ClientID, sub.ID, position, kind, mt.Extension())

	body := io.LimitReader(io.MultiReader(bytes.NewReader(head), ph.Reader), s.opts.MaxPhotoBytes+1)
	size, err := s.bucket.Put(ctx, path, body)
	if err != nil {
		return nil, fmt.Errorf("upload photo %d: %w", position, err)
	}
	if size > s.opts.MaxPhotoBytes {
		_ = s.bucket.Delete(context.WithoutCancel(ctx), path)
		return nil, invalid(field, fmt.Sprintf("must be at most %d bytes", s.opts.MaxPhotoBytes))
	}

	return &models.SubmissionPhoto{
		SubmissionID: sub.ID,
		Position:     position,
		Kind:         kind,
		Path:         path,
		URL:          fmt.Sprintf("/api/v1/submissions/%s/photos/%d", sub.ID, position),
		ContentType:  mt.String(),
		Size:         size,
	}, nil
}

func defaultPhotoKind(position int) models.PhotoKind {
	switch position {
	case 1:
		return models.PhotoEntry
	case 2:
		return models.PhotoWeighing
	default:
		return models.PhotoExtra
	}
}

// ListForClient lists only the caller's own tenant.
func (s *SubmissionService) ListForClient(ctx context.Context, p *Principal, f SubmissionFilter) ([]models.Submission, error) {
	f.ClientID = p.ClientID()
	if f.ClientID == "" {
		return []models.Submission{}, nil
	}
	return s.list(ctx, f)
}

// ListAll lists every tenant, optionally filtered by client.
func (s *SubmissionService) ListAll(ctx context.Context, f SubmissionFilter) ([]models.Submission, error) {
	return s.list(ctx, f)
}

func (s *SubmissionService) list(ctx context.Context, f SubmissionFilter) ([]models.Submission, error) {
	q := s.db.WithContext(ctx).Model(&models.Submission{}).
		Preload("Photos", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") })

	if f.ClientID != "" {
		q = q.Where("client_id = ?", f.ClientID)
	}
	if f.Status != "" {
		status, ok := models.ParseSubmissionStatus(f.Status)
		if !ok {
			return nil, invalid("status", "must be one of: pending approved rejected")
		}
		q = q.Where("status = ?", status)
	}
	if f.Date != "" {
		q = q.Where("date LIKE ?", f.Date+"%")
	}
	if f.DateFrom != "" {
		q = q.Where("date >= ?", f.DateFrom)
	}
	if f.DateTo != "" {
		q = q.Where("date <= ?", f.DateTo)
	}
	if f.Product != "" {
		q = q.Where("LOWER(product) LIKE ?", "%"+strings.ToLower(f.Product)+"%")
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit).Offset(f.Offset)
	}

	var out []models.Submission
	err := q.Order("date DESC, created_at DESC").Find(&out).Error
	return out, err
}

// Get returns a submission visible to the caller. Other tenants' rows are
// reported as not found.
func (s *SubmissionService) Get(ctx context.Context, p *Principal, id string) (*models.Submission, error) {
	var sub models.Submission
	err := s.db.WithContext(ctx).
		Preload("Photos", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&sub, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !p.IsAdmin() && sub.ClientID != p.ClientID() {
		return nil, ErrNotFound
	}
	return &sub, nil
}

// OpenPhoto streams a stored photo of a submission visible to the caller.
func (s *SubmissionService) OpenPhoto(ctx context.Context, p *Principal, id string, position int) (io.ReadCloser, *models.SubmissionPhoto, error) {
	sub, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, nil, err
	}
	for i := range sub.Photos {
		photo := &sub.Photos[i]
		if photo.Position != position {
			continue
		}
		rc, err := s.bucket.Open(ctx, photo.Path)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, ErrNotFound
		}
		if err != nil {
			return nil, nil, err
		}
		return rc, photo, nil
	}
	return nil, nil, ErrNotFound
}

// StatusUpdate is the outcome of UpdateStatus.
type StatusUpdate struct {
	Submission *models.Submission `json:"submission"`
	Changed    bool               `json:"changed"`
}

// UpdateStatus sets a submission's review status. Re-applying the current
// status is a no-op. With expectedVersion the update only applies if the row
// is still at that version (ErrConflict otherwise); without it the last
// writer wins.
func (s *SubmissionService) UpdateStatus(ctx context.Context, admin *Principal, id, statusName string, expectedVersion *int) (*StatusUpdate, error) {
	status, ok := models.ParseSubmissionStatus(statusName)
	if !ok {
		return nil, invalid("status", "must be one of: pending approved rejected")
	}

	var sub models.Submission
	changed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&sub, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if sub.Status == status {
			return nil
		}
		if expectedVersion != nil && *expectedVersion != sub.Version {
			return ErrConflict
		}

		now := timeNow()
		reviewer := admin.UserID()
		q := tx.Model(&models.Submission{}).Where("id = ?", sub.ID)
		if expectedVersion != nil {
			q = q.Where("version = ?", *expectedVersion)
		}
		res := q.Updates(map[string]interface{}{
			"status":      status,
			"version":     gorm.Expr("version + 1"),
			"reviewed_by": reviewer,
			"reviewed_at": now,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}
		previous := sub.Status
		if err := tx.First(&sub, "id = ?", sub.ID).Error; err != nil {
			return err
		}
		changed = true
		return recordAudit(tx, reviewer, models.AuditSubmissionStatus, "", datatypes.JSONMap{
			"submission_id": sub.ID,
			"from":          string(previous),
			"to":            string(status),
			"version":       sub.Version,
		})
	})
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Where("submission_id = ?", sub.ID).Order("position ASC").Find(&sub.Photos).Error; err != nil {
		return nil, err
	}

	if changed {
		metrics.StatusChanges.WithLabelValues(string(status)).Inc()
		logger.WithSubmission(sub.ID, sub.ClientID).
			WithField("status", status).
			WithField("version", sub.Version).
			Info("Submission status changed")
		if s.publisher != nil {
			s.publisher.Publish(realtime.Event{
				Type:         realtime.EventSubmissionStatus,
				SubmissionID: sub.ID,
				ClientID:     sub.ClientID,
				Status:       string(sub.Status),
				Version:      sub.Version,
				At:           timeNow(),
			})
		}
	}
	return &StatusUpdate{Submission: &sub, Changed: changed}, nil
}
