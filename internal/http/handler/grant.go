package handler

import (
	"github.com/gofiber/fiber/v2"

	"docportal/internal/model"
	"docportal/internal/service"
)

// ListGrants lists who has access to a document.
//
// @Summary List grants of a document
// @Tags Grants
// @Produce json
// @Param id path int true "Document id"
// @Success 200 {array} model.AccessGrant
// @Failure 403 {object} errorPayload
// @Router /documents/{id}/grants [get]
func ListGrants(docs service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := callerOf(c)
		if err != nil {
			return err
		}
		docID, err := paramID(c, "id")
		if err != nil {
			return err
		}
		grants, err := docs.ListGrants(c.UserContext(), caller, docID)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"data": grants})
	}
}

// PutGrant gives a user access to a document, replacing any previous
// capabilities. can_read defaults to true.
//
// @Summary Grant access
// @Tags Grants
// @Accept json
// @Produce json
// @Param id path int true "Document id"
// @Param userID path int true "User id"
// @Param payload body grantRequest false "Capabilities"
// @Success 200 {object} model.AccessGrant
// @Failure 400 {object} errorPayload
// @Failure 403 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Router /documents/{id}/grants/{userID} [put]
func PutGrant(docs service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := callerOf(c)
		if err != nil {
			return err
		}
		docID, err := paramID(c, "id")
		if err != nil {
			return err
		}
		userID, err := paramID(c, "userID")
		if err != nil {
			return err
		}

		var req grantRequest
		if len(c.Body()) > 0 {
			if err := bind(c, &req); err != nil {
				return err
			}
		}
		caps := model.Capabilities{CanRead: true, CanEdit: req.CanEdit, CanDelete: req.CanDelete}
		if req.CanRead != nil {
			caps.CanRead = *req.CanRead
		}

		g, err := docs.Grant(c.UserContext(), caller, docID, userID, caps)
		if err != nil {
			return err
		}
		return c.JSON(g)
	}
}

// DeleteGrant revokes a user's access to a document.
//
// @Summary Revoke access
// @Tags Grants
// @Param id path int true "Document id"
// @Param userID path int true "User id"
// @Success 204
// @Failure 403 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Router /documents/{id}/grants/{userID} [delete]
func DeleteGrant(docs service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := callerOf(c)
		if err != nil {
			return err
		}
		docID, err := paramID(c, "id")
		if err != nil {
			return err
		}
		userID, err := paramID(c, "userID")
		if err != nil {
			return err
		}
		if err := docs.Revoke(c.UserContext(), caller, docID, userID); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
