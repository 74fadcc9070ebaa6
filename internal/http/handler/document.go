package handler

import (
	"github.com/gofiber/fiber/v2"

	"docportal/internal/apperr"
	"docportal/internal/model"
	"docportal/internal/service"
)

// ListDocuments lists the documents visible to the caller.
//
// @Summary List documents
// @Tags Documents
// @Produce json
// @Param limit query int false "Page size (default 10, max 100)"
// @Param offset query int false "Offset"
// @Success 200 {object} service.DocumentListResult
// @Failure 400 {object} errorPayload
// @Failure 401 {object} errorPayload
// @Router /documents [get]
func ListDocuments(docs service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := callerOf(c)
		if err != nil {
			return err
		}
		limit, err := queryInt(c, "limit", 10)
		if err != nil {
			return err
		}
		offset, err := queryInt(c, "offset", 0)
		if err != nil {
			return err
		}

		res, err := docs.List(c.UserContext(), caller, limit, offset)
		if err != nil {
			return err
		}
		return c.JSON(res)
	}
}

// UploadDocument accepts multipart/form-data with fields file, title and
// optional description.
//
// @Summary Upload a document
// @Tags Documents
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Content"
// @Param title formData string true "Title"
// @Param description formData string false "Description"
// @Success 201 {object} model.Document
// @Failure 400 {object} errorPayload
// @Failure 403 {object} errorPayload
// @Failure 413 {object} errorPayload
// @Router /documents [post]
func UploadDocument(docs service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := callerOf(c)
		if err != nil {
			return err
		}

		form, err := c.MultipartForm()
		if err != nil {
			return fileRequired()
		}
		files := form.File["file"]
		if len(files) == 0 {
			return fileRequired()
		}
		fh := files[0]

		f, err := fh.Open()
		if err != nil {
			e := apperr.Field("file", "cannot be read")
			e.Code = "FILE_OPEN_ERROR"
			return e
		}
		defer f.Close()

		in := service.CreateDocumentInput{
			Title:        firstValue(form.Value["title"]),
			OriginalName: fh.Filename,
			ContentType:  fh.Header.Get(fiber.HeaderContentType),
			Size:         fh.Size,
			Body:         f,
		}
		if v, ok := form.Value["description"]; ok && len(v) > 0 {
			in.Description = &v[0]
		}

		doc, err := docs.Create(c.UserContext(), caller, in)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(doc)
	}
}

// GetDocument returns one document with the caller's capabilities.
//
// @Summary Get a document
// @Tags Documents
// @Produce json
// @Param id path int true "Document id"
// @Success 200 {object} model.DocumentAccess
// @Failure 404 {object} errorPayload
// @Router /documents/{id} [get]
func GetDocument(docs service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := callerOf(c)
		if err != nil {
			return err
		}
		id, err := paramID(c, "id")
		if err != nil {
			return err
		}
		doc, err := docs.Get(c.UserContext(), caller, id)
		if err != nil {
			return err
		}
		return c.JSON(doc)
	}
}

// UpdateDocument changes title and/or description. An empty description
// clears it.
//
// @Summary Update document metadata
// @Tags Documents
// @Accept json
// @Produce json
// @Param id path int true "Document id"
// @Param payload body updateDocumentRequest true "Fields to change"
// @Success 200 {object} model.Document
// @Failure 400 {object} errorPayload
// @Failure 403 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Router /documents/{id} [patch]
func UpdateDocument(docs service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := callerOf(c)
		if err != nil {
			return err
		}
		id, err := paramID(c, "id")
		if err != nil {
			return err
		}
		var req updateDocumentRequest
		if err := bind(c, &req); err != nil {
			return err
		}

		doc, err := docs.Update(c.UserContext(), caller, id, model.DocumentPatch{
			Title:       req.Title,
			Description: req.Description,
		})
		if err != nil {
			return err
		}
		return c.JSON(doc)
	}
}

// DeleteDocument removes the document, its grants and its content.
//
// @Summary Delete a document
// @Tags Documents
// @Param id path int true "Document id"
// @Success 204
// @Failure 403 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Failure 502 {object} errorPayload
// @Router /documents/{id} [delete]
func DeleteDocument(docs service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := callerOf(c)
		if err != nil {
			return err
		}
		id, err := paramID(c, "id")
		if err != nil {
			return err
		}
		if err := docs.Delete(c.UserContext(), caller, id); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// DownloadDocument streams the content as an attachment.
//
// @Summary Download a document
// @Tags Documents
// @Produce octet-stream
// @Param id path int true "Document id"
// @Success 200 {file} binary
// @Failure 404 {object} errorPayload
// @Router /documents/{id}/download [get]
func DownloadDocument(docs service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := callerOf(c)
		if err != nil {
			return err
		}
		id, err := paramID(c, "id")
		if err != nil {
			return err
		}
		dl, err := docs.Download(c.UserContext(), caller, id)
		if err != nil {
			return err
		}

		doc := dl.Document
		c.Attachment(doc.OriginalName)
		c.Set(fiber.HeaderContentType, doc.ContentType)
		c.Set(fiber.HeaderXContentTypeOptions, "nosniff")
		c.Set(fiber.HeaderETag, `"`+doc.Checksum+`"`)
		c.Set("X-Checksum-Blake3", doc.Checksum)
		// The body is closed by fasthttp once the stream is drained.
		return c.SendStream(dl.Body, int(doc.Size))
	}
}

func fileRequired() error {
	e := apperr.Field("file", "required")
	e.Code = "FILE_REQUIRED"
	return e
}

func firstValue(v []string) string {
	if len(v) == 0 {
		return ""
	}
	return v[0]
}
