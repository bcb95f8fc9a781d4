// internal/web/respond.go
package web

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/owl29bd/cctv-automation-backend/internal/database"
	"github.com/owl29bd/cctv-automation-backend/internal/errdefs"
)

const defaultPage = 1

// PaginatedResponse is the list envelope used by the maintenance endpoints.
type PaginatedResponse struct {
	Limit       int         `json:"limit"`
	Page        int         `json:"page"`
	TotalPages  int         `json:"totalPages"`
	HasPrevPage bool        `json:"hasPrevPage"`
	HasNextPage bool        `json:"hasNextPage"`
	TotalData   int         `json:"totalData"`
	Data        interface{} `json:"data"`
}

func paginate[T any](page database.Page[T], data interface{}) PaginatedResponse {
	return PaginatedResponse{
		Limit:       page.Limit,
		Page:        page.Page,
		TotalPages:  page.TotalPages,
		HasPrevPage: page.HasPrevPage(),
		HasNextPage: page.HasNextPage(),
		TotalData:   page.TotalItems,
		Data:        data,
	}
}

// pageParams reads page and limit, falling back to defaults on junk input.
func pageParams(c *gin.Context) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", strconv.Itoa(defaultPage)))
	if err != nil || page < 1 {
		page = defaultPage
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(database.DefaultPageLimit)))
	if err != nil || limit < 1 {
		limit = database.DefaultPageLimit
	}
	if limit > database.MaxPageLimit {
		limit = database.MaxPageLimit
	}
	return page, limit
}

func respondError(c *gin.Context, err error) {
	status := errdefs.HTTPStatus(err)
	kind := errdefs.KindOf(err)

	message := err.Error()
	var domainErr *errdefs.Error
	if errors.As(err, &domainErr) {
		message = domainErr.Message
	}
	if kind == errdefs.KindInternal {
		logrus.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
		message = "internal server error"
	}

	c.JSON(status, errdefs.NewErrorBody(kind, message))
}

func badRequest(c *gin.Context, err error) {
	respondError(c, errdefs.InvalidArgument("%s", err.Error()))
}
