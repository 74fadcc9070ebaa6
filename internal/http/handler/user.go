package handler

import (
	"github.com/gofiber/fiber/v2"

	"docportal/internal/model"
	"docportal/internal/service"
)

// ListUsers lists all accounts.
//
// @Summary List users
// @Tags Users
// @Produce json
// @Success 200 {array} model.User
// @Failure 403 {object} errorPayload
// @Router /users [get]
func ListUsers(users service.UserService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := callerOf(c)
		if err != nil {
			return err
		}
		list, err := users.List(c.UserContext(), caller)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"data": list})
	}
}

// CreateUser creates an account with role user.
//
// @Summary Create a user
// @Tags Users
// @Accept json
// @Produce json
// @Param payload body createUserRequest true "Account"
// @Success 201 {object} model.User
// @Failure 400 {object} errorPayload
// @Failure 403 {object} errorPayload
// @Failure 409 {object} errorPayload
// @Router /users [post]
func CreateUser(users service.UserService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := callerOf(c)
		if err != nil {
			return err
		}
		var req createUserRequest
		if err := bind(c, &req); err != nil {
			return err
		}
		u, err := users.Create(c.UserContext(), caller, req.Email, req.Password)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(u)
	}
}

// DeleteUser removes an account and its grants.
//
// @Summary Delete a user
// @Tags Users
// @Param id path int true "User id"
// @Success 204
// @Failure 403 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Failure 409 {object} errorPayload
// @Router /users/{id} [delete]
func DeleteUser(users service.UserService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := callerOf(c)
		if err != nil {
			return err
		}
		id, err := paramID(c, "id")
		if err != nil {
			return err
		}
		if err := users.Delete(c.UserContext(), caller, id); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// ChangeUserRole promotes or demotes an account.
//
// @Summary Change a user's role
// @Tags Users
// @Accept json
// @Produce json
// @Param id path int true "User id"
// @Param payload body changeRoleRequest true "Role"
// @Success 200 {object} model.User
// @Failure 400 {object} errorPayload
// @Failure 403 {object} errorPayload
// @Failure 409 {object} errorPayload
// @Router /users/{id}/role [put]
func ChangeUserRole(users service.UserService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := callerOf(c)
		if err != nil {
			return err
		}
		id, err := paramID(c, "id")
		if err != nil {
			return err
		}
		var req changeRoleRequest
		if err := bind(c, &req); err != nil {
			return err
		}
		role, _ := model.ParseRole(req.Role)
		u, err := users.ChangeRole(c.UserContext(), caller, id, role)
		if err != nil {
			return err
		}
		return c.JSON(u)
	}
}
