package repo

import "callpop/pkg/models"

func paginate[T any](data []T, total int64, limit, offset int) *models.PaginationResult[T] {
	if limit <= 0 {
		limit = 20
	}
	page := (offset / limit) + 1
	totalPages := int((total + int64(limit) - 1) / int64(limit))

	return &models.PaginationResult[T]{
		Data:       data,
		Total:      total,
		Page:       page,
		PerPage:    limit,
		TotalPages: totalPages,
	}
}
