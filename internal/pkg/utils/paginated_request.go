package utils

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kollektive-hackathon/multichain/internal/pkg/reject"
)

const (
	pageSizeMissing  string = "error.request.page-size-missing"
	pageTokenMissing string = "error.request.page-token-missing"
)

const maxPageSize = 100

type PageRequest struct {
	Size   int
	Token  int
	Offset int
}

func NewPageRequest(c *gin.Context) (PageRequest, *reject.ProblemWithTrace) {
	pageSize, pageSizeError := strconv.Atoi(c.Query("page_size"))
	if pageSizeError == nil && pageSize < 1 {
		pageSizeError = fmt.Errorf("page size %d is not positive", pageSize)
	}

	if pageSizeError != nil {
		return PageRequest{}, reject.BadRequest("Page size not specified", pageSizeMissing, pageSizeError)
	}

	pageToken, pageTokenError := strconv.Atoi(c.Query("page_token"))
	if pageTokenError == nil && pageToken < 0 {
		pageTokenError = fmt.Errorf("page token %d is negative", pageToken)
	}

	if pageTokenError != nil {
		return PageRequest{}, reject.BadRequest("Page token not specified", pageTokenMissing, pageTokenError)
	}

	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	offset := pageSize * pageToken

	return PageRequest{
		Size:   pageSize,
		Token:  pageToken,
		Offset: offset,
	}, nil
}
