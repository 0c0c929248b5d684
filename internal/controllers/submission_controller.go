package controllers

import (
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/martincass/UCAMtracker/internal/export"
	"github.com/martincass/UCAMtracker/internal/i18n"
	"github.com/martincass/UCAMtracker/internal/logger"
	"github.com/martincass/UCAMtracker/internal/middleware"
	"github.com/martincass/UCAMtracker/internal/models"
	"github.com/martincass/UCAMtracker/internal/services"
	"github.com/martincass/UCAMtracker/internal/validation"
)

type SubmissionController struct {
	responder
	submissions *services.SubmissionService
	jobs        *services.JobService
}

func NewSubmissionController(submissions *services.SubmissionService, jobs *services.JobService, tr *i18n.Translator) *SubmissionController {
	return &SubmissionController{responder: responder{tr: tr}, submissions: submissions, jobs: jobs}
}

// CreateSubmissionRequest is the multipart form of a new report. Photos are
// sent as photo_entry and photo_weighing, or as repeated photos fields.
type CreateSubmissionRequest struct {
	Date        string   `form:"date" binding:"required,isodate"`
	WeighingKg  float64  `form:"weighing_kg" binding:"required,finite,gt=0"`
	PartID      string   `form:"part_id" binding:"max=64"`
	Plant       string   `form:"plant" binding:"max=128"`
	Shift       string   `form:"shift" binding:"omitempty,oneof=Morning Afternoon Night"`
	Product     string   `form:"product" binding:"max=128"`
	ProducedQty *float64 `form:"produced_qty" binding:"omitempty,finite,gte=0"`
	ScrapQty    *float64 `form:"scrap_qty" binding:"omitempty,finite,gte=0"`
	Notes       string   `form:"notes" binding:"max=2000"`
}

type UpdateStatusRequest struct {
	Status          string `json:"status" binding:"required"`
	ExpectedVersion *int   `json:"expected_version"`
}

type SheetsExportRequest struct {
	ClientID string `json:"client_id"`
	Status   string `json:"status"`
	Date     string `json:"date"`
	From     string `json:"from"`
	To       string `json:"to"`
}

func filterFromQuery(c *gin.Context) services.SubmissionFilter {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	return services.SubmissionFilter{
		ClientID: c.Query("client_id"),
		Status:   c.Query("status"),
		Date:     c.Query("date"),
		DateFrom: c.Query("from"),
		DateTo:   c.Query("to"),
		Product:  c.Query("product"),
		Limit:    limit,
		Offset:   offset,
	}
}

func (sc *SubmissionController) Create(c *gin.Context) {
	var req CreateSubmissionRequest
	if err := c.ShouldBind(&req); err != nil {
		sc.validationFailed(c, validation.FieldErrors(err))
		return
	}

	var uploads []services.PhotoUpload
	var files []multipart.File
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()

	if form, err := c.MultipartForm(); err == nil {
		add := func(field string, kind models.PhotoKind) error {
			for _, fh := range form.File[field] {
				f, err := fh.Open()
				if err != nil {
					return err
				}
				files = append(files, f)
				uploads = append(uploads, services.PhotoUpload{Kind: kind, Filename: fh.Filename, Size: fh.Size, Reader: f})
			}
			return nil
		}
		for _, src := range []struct {
			field string
			kind  models.PhotoKind
		}{
			{"photo_entry", models.PhotoEntry},
			{"photo_weighing", models.PhotoWeighing},
			{"photos", ""},
		} {
			if err := add(src.field, src.kind); err != nil {
				sc.respondError(c, err)
				return
			}
		}
	}

	sub, err := sc.submissions.Create(c.Request.Context(), middleware.CurrentPrincipal(c), services.CreateSubmissionInput{
		Date:        req.Date,
		WeighingKg:  req.WeighingKg,
		PartID:      req.PartID,
		Plant:       req.Plant,
		Shift:       req.Shift,
		Product:     req.Product,
		ProducedQty: req.ProducedQty,
		ScrapQty:    req.ScrapQty,
		Notes:       req.Notes,
	}, uploads)
	if err != nil {
		sc.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": sc.t(c, "submission.success", nil),
		"data":    sub,
	})
}

// List returns the caller's own submissions.
func (sc *SubmissionController) List(c *gin.Context) {
	subs, err := sc.submissions.ListForClient(c.Request.Context(), middleware.CurrentPrincipal(c), filterFromQuery(c))
	if err != nil {
		sc.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": subs})
}

func (sc *SubmissionController) Get(c *gin.Context) {
	sub, err := sc.submissions.Get(c.Request.Context(), middleware.CurrentPrincipal(c), c.Param("id"))
	if err != nil {
		sc.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": sub})
}

func (sc *SubmissionController) Photo(c *gin.Context) {
	position, err := strconv.Atoi(c.Param("position"))
	if err != nil {
		sc.respondError(c, services.ErrNotFound)
		return
	}

	rc, photo, err := sc.submissions.OpenPhoto(c.Request.Context(), middleware.CurrentPrincipal(c), c.Param("id"), position)
	if err != nil {
		sc.respondError(c, err)
		return
	}
	defer rc.Close()

	c.Header("Cache-Control", "private, max-age=3600")
	c.DataFromReader(http.StatusOK, photo.Size, photo.ContentType, rc, nil)
}

func (sc *SubmissionController) ExportCSV(c *gin.Context) {
	subs, err := sc.submissions.ListForClient(c.Request.Context(), middleware.CurrentPrincipal(c), filterFromQuery(c))
	if err != nil {
		sc.respondError(c, err)
		return
	}
	sc.writeCSV(c, "submissions", subs)
}

func (sc *SubmissionController) AdminList(c *gin.Context) {
	subs, err := sc.submissions.ListAll(c.Request.Context(), filterFromQuery(c))
	if err != nil {
		sc.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": subs})
}

func (sc *SubmissionController) AdminExportCSV(c *gin.Context) {
	subs, err := sc.submissions.ListAll(c.Request.Context(), filterFromQuery(c))
	if err != nil {
		sc.respondError(c, err)
		return
	}
	sc.writeCSV(c, "all-submissions", subs)
}

func (sc *SubmissionController) writeCSV(c *gin.Context, prefix string, subs []models.Submission) {
	c.Header("Content-Type", export.ContentTypeCSV)
	c.Header("Content-Disposition", `attachment; filename="`+export.Filename(prefix, timeNow())+`"`)
	c.Status(http.StatusOK)
	if err := export.WriteSubmissions(c.Writer, subs); err != nil {
		logger.WithError(err, "export").Error("Failed to write CSV export")
	}
}

func (sc *SubmissionController) UpdateStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if !sc.bind(c, &req) {
		return
	}

	res, err := sc.submissions.UpdateStatus(c.Request.Context(), middleware.CurrentPrincipal(c), c.Param("id"), req.Status, req.ExpectedVersion)
	if err != nil {
		sc.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"changed": res.Changed,
		"data":    res.Submission,
	})
}

// ExportSheets queues a spreadsheet export and answers before it runs.
func (sc *SubmissionController) ExportSheets(c *gin.Context) {
	var req SheetsExportRequest
	if c.Request.ContentLength > 0 && !sc.bind(c, &req) {
		return
	}

	job, err := sc.jobs.EnqueueSheetsExport(c.Request.Context(), middleware.CurrentPrincipal(c), services.SubmissionFilter{
		ClientID: req.ClientID,
		Status:   req.Status,
		Date:     req.Date,
		DateFrom: req.From,
		DateTo:   req.To,
	})
	if err != nil {
		sc.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"success": true, "data": job})
}

func (sc *SubmissionController) GetJob(c *gin.Context) {
	job, err := sc.jobs.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		sc.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": job})
}
